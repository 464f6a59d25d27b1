//go:build linux

package device

import (
	"encoding/binary"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"remapd/internal/keys"
	"remapd/internal/logging"
)

// uinput ioctls (legacy interface).
const (
	uiSetEvBit   = 0x40045564
	uiSetKeyBit  = 0x40045565
	uiSetRelBit  = 0x40045566
	uiDevCreate  = 0x5501
	uiDevDestroy = 0x5502

	// uinputMaxNameSize is the name field size in struct uinput_user_dev.
	uinputMaxNameSize = 80

	// userDevSize is sizeof(struct uinput_user_dev): name, input_id,
	// ff_effects_max and four 64-entry abs arrays.
	userDevSize = uinputMaxNameSize + 8 + 4 + 4*64*4

	busVirtual = 0x06
)

// VirtualDevice is the uinput device translated events are published on.
// It advertises EV_REP so the kernel regenerates key repeat; the grabber
// drops repeats on the input side.
type VirtualDevice struct {
	file *os.File
	name string
}

// CreateVirtual registers a uinput device with key, button and (with
// pointer support) relative axes.
func CreateVirtual(name string, withPointers bool) (*VirtualDevice, error) {
	file, err := os.OpenFile("/dev/uinput", os.O_WRONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("open /dev/uinput: %w", err)
	}
	v := &VirtualDevice{file: file, name: name}

	fd := int(file.Fd())
	for _, ev := range []int{int(evKey), int(evSyn), int(evRep)} {
		if err := unix.IoctlSetInt(fd, uiSetEvBit, ev); err != nil {
			file.Close()
			return nil, fmt.Errorf("enable event type %#x: %w", ev, err)
		}
	}
	// the whole keyboard range plus pointer buttons
	for code := 1; code < 0x100; code++ {
		if err := unix.IoctlSetInt(fd, uiSetKeyBit, code); err != nil {
			file.Close()
			return nil, fmt.Errorf("enable key %d: %w", code, err)
		}
	}
	for code := int(keys.ButtonLeft); code <= int(keys.ButtonTask); code++ {
		if err := unix.IoctlSetInt(fd, uiSetKeyBit, code); err != nil {
			file.Close()
			return nil, fmt.Errorf("enable button %#x: %w", code, err)
		}
	}
	if withPointers {
		if err := unix.IoctlSetInt(fd, uiSetEvBit, int(evRel)); err != nil {
			file.Close()
			return nil, fmt.Errorf("enable relative axes: %w", err)
		}
		for axis := 0; axis < 3; axis++ { // REL_X, REL_Y, REL_Z
			if err := unix.IoctlSetInt(fd, uiSetRelBit, axis); err != nil {
				file.Close()
				return nil, fmt.Errorf("enable axis %d: %w", axis, err)
			}
		}
	}

	if err := v.writeUserDev(); err != nil {
		file.Close()
		return nil, err
	}
	if err := unix.IoctlSetInt(fd, uiDevCreate, 0); err != nil {
		file.Close()
		return nil, fmt.Errorf("create uinput device: %w", err)
	}

	logging.Info("virtual device created", "name", name)
	return v, nil
}

// writeUserDev fills struct uinput_user_dev and hands it to the kernel.
func (v *VirtualDevice) writeUserDev() error {
	buf := make([]byte, userDevSize)
	copy(buf[:uinputMaxNameSize-1], v.name)
	// struct input_id: bustype, vendor, product, version
	binary.LittleEndian.PutUint16(buf[uinputMaxNameSize:], busVirtual)
	binary.LittleEndian.PutUint16(buf[uinputMaxNameSize+2:], 0x1d6b)
	binary.LittleEndian.PutUint16(buf[uinputMaxNameSize+4:], 0x0101)
	binary.LittleEndian.PutUint16(buf[uinputMaxNameSize+6:], 1)
	if _, err := v.file.Write(buf); err != nil {
		return fmt.Errorf("write uinput device description: %w", err)
	}
	return nil
}

// SendKeyEvent publishes one translated key event.
func (v *VirtualDevice) SendKeyEvent(e keys.KeyEvent) bool {
	value := int32(valueDown)
	if e.State == keys.Up || e.State == keys.UpAsync {
		value = valueUp
	}
	return v.writeEvent(evKey, uint16(e.Key), value)
}

// SendRaw forwards a non-key event from a grabbed device unchanged.
func (v *VirtualDevice) SendRaw(ev Event) bool {
	return v.writeEvent(ev.Type, ev.Code, ev.Value)
}

// Flush emits a SYN_REPORT so the queued events take effect.
func (v *VirtualDevice) Flush() bool {
	return v.writeEvent(evSyn, synReport, 0)
}

func (v *VirtualDevice) writeEvent(typ, code uint16, value int32) bool {
	buf := make([]byte, inputEventSize)
	binary.LittleEndian.PutUint16(buf[16:18], typ)
	binary.LittleEndian.PutUint16(buf[18:20], code)
	binary.LittleEndian.PutUint32(buf[20:24], uint32(value))
	if _, err := v.file.Write(buf); err != nil {
		logging.Error("virtual device write failed", "error", err)
		return false
	}
	return true
}

// Close destroys the uinput device.
func (v *VirtualDevice) Close() error {
	if v.file == nil {
		return nil
	}
	unix.IoctlSetInt(int(v.file.Fd()), uiDevDestroy, 0)
	err := v.file.Close()
	v.file = nil
	return err
}
