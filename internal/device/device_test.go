package device

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleProcDevices = `I: Bus=0011 Vendor=0001 Product=0001 Version=ab41
N: Name="AT Translated Set 2 keyboard"
P: Phys=isa0060/serio0/input0
S: Sysfs=/devices/platform/i8042/serio0/input/input3
U: Uniq=
H: Handlers=sysrq kbd event3 leds
B: PROP=0
B: EV=120013
B: KEY=402000000 3803078f800d001 feffffdfffefffff fffffffffffffffe
B: MSC=10
B: LED=7

I: Bus=0003 Vendor=046d Product=c52b Version=0111
N: Name="Logitech USB Receiver Mouse"
P: Phys=usb-0000:00:14.0-2/input1
S: Sysfs=/devices/pci0000:00/0000:00:14.0/usb1/input1
U: Uniq=
H: Handlers=mouse0 event4
B: PROP=0
B: EV=17
B: KEY=ffff0000 0 0 0 0
B: REL=1943
B: MSC=10

I: Bus=0006 Vendor=0000 Product=0000 Version=0000
N: Name="remapd"
P: Phys=
S: Sysfs=/devices/virtual/input/input22
U: Uniq=
H: Handlers=sysrq kbd event5 leds
B: PROP=0
B: EV=120013
B: KEY=402000000 3803078f800d001 feffffdfffefffff fffffffffffffffe

I: Bus=0019 Vendor=0000 Product=0005 Version=0000
N: Name="Power Button"
P: Phys=LNXPWRBN/button/input0
S: Sysfs=/devices/LNXSYSTM:00/LNXPWRBN:00/input/input0
U: Uniq=
H: Handlers=kbd event0
B: PROP=0
B: EV=3
B: KEY=10000000000000 0
`

func TestParseProcDevicesKeyboardsOnly(t *testing.T) {
	devices := parseProcDevices(strings.NewReader(sampleProcDevices), Selection{
		VirtualName: "remapd",
	})

	require.Len(t, devices, 1)
	assert.Equal(t, "AT Translated Set 2 keyboard", devices[0].Name)
	assert.Equal(t, "event3", devices[0].Handler)
	assert.Equal(t, "/dev/input/event3", devices[0].Path())
	assert.True(t, devices[0].Keyboard)
}

func TestParseProcDevicesWithPointers(t *testing.T) {
	devices := parseProcDevices(strings.NewReader(sampleProcDevices), Selection{
		WithPointers: true,
		VirtualName:  "remapd",
	})

	require.Len(t, devices, 2)
	names := []string{devices[0].Name, devices[1].Name}
	assert.Contains(t, names, "AT Translated Set 2 keyboard")
	assert.Contains(t, names, "Logitech USB Receiver Mouse")
}

func TestParseProcDevicesSkipsOwnVirtualDevice(t *testing.T) {
	devices := parseProcDevices(strings.NewReader(sampleProcDevices), Selection{
		VirtualName: "remapd",
	})
	for _, d := range devices {
		assert.NotEqual(t, "remapd", d.Name)
	}
}

func TestParseProcDevicesAllowDeny(t *testing.T) {
	devices := parseProcDevices(strings.NewReader(sampleProcDevices), Selection{
		WithPointers: true,
		VirtualName:  "remapd",
		Deny:         []string{"Logitech"},
	})
	require.Len(t, devices, 1)
	assert.Equal(t, "AT Translated Set 2 keyboard", devices[0].Name)

	devices = parseProcDevices(strings.NewReader(sampleProcDevices), Selection{
		WithPointers: true,
		VirtualName:  "remapd",
		Allow:        []string{"Logitech"},
	})
	require.Len(t, devices, 1)
	assert.Equal(t, "Logitech USB Receiver Mouse", devices[0].Name)
}

func TestDecodeInputEvent(t *testing.T) {
	buf := make([]byte, inputEventSize)
	binary.LittleEndian.PutUint16(buf[16:18], evKey)
	binary.LittleEndian.PutUint16(buf[18:20], 30) // KEY_A
	binary.LittleEndian.PutUint32(buf[20:24], valueDown)

	ev, ok := decodeInputEvent(buf, 2)
	require.True(t, ok)
	assert.Equal(t, evKey, ev.Type)
	assert.Equal(t, uint16(30), ev.Code)
	assert.Equal(t, int32(valueDown), ev.Value)
	assert.Equal(t, 2, ev.Device)

	_, ok = decodeInputEvent(buf[:10], 0)
	assert.False(t, ok)
}
