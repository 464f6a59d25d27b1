// Package device provides the Linux input layer: enumeration of keyboards
// and pointer devices, exclusive grabbing via evdev, raw event decoding and
// the uinput virtual device translated events are published on.
package device

import (
	"bufio"
	"encoding/binary"
	"io"
	"strings"
)

// Linux input event types and values used by the grabber and the virtual
// device.
const (
	evSyn uint16 = 0x00
	evKey uint16 = 0x01
	evRel uint16 = 0x02
	evAbs uint16 = 0x03
	evMsc uint16 = 0x04
	evRep uint16 = 0x14

	synReport = 0

	valueUp     = 0
	valueDown   = 1
	valueRepeat = 2
)

// inputEventSize is the size of struct input_event on 64-bit Linux.
const inputEventSize = 24

// Event is one raw event read from a grabbed device.
type Event struct {
	Type   uint16
	Code   uint16
	Value  int32
	Device int
}

// decodeInputEvent decodes one struct input_event. The timestamp is not
// needed downstream and is skipped.
func decodeInputEvent(buf []byte, device int) (Event, bool) {
	if len(buf) < inputEventSize {
		return Event{}, false
	}
	return Event{
		Type:   binary.LittleEndian.Uint16(buf[16:18]),
		Code:   binary.LittleEndian.Uint16(buf[18:20]),
		Value:  int32(binary.LittleEndian.Uint32(buf[20:24])),
		Device: device,
	}, true
}

// Info describes one enumerated input device.
type Info struct {
	Name    string
	Handler string // event node name, e.g. "event3"
	Phys    string
	// Keyboard is set when the key capability bitmap looks like a full
	// keyboard rather than a button-only device.
	Keyboard bool
	// Pointer is set when a mouse handler is attached.
	Pointer bool
}

// Path returns the device node path.
func (i Info) Path() string { return "/dev/input/" + i.Handler }

// Selection filters enumerated devices.
type Selection struct {
	// WithPointers includes mouse devices, needed when the keymap has
	// mouse mappings.
	WithPointers bool
	// Allow lists name substrings to include; empty includes all.
	Allow []string
	// Deny lists name substrings to exclude.
	Deny []string
	// VirtualName excludes the daemon's own virtual device.
	VirtualName string
}

// parseProcDevices reads the /proc/bus/input/devices format and returns
// the devices worth grabbing. Virtual devices are skipped: grabbing our
// own output would loop events back.
func parseProcDevices(r io.Reader, sel Selection) []Info {
	var devices []Info
	var cur Info
	flush := func() {
		if cur.Handler != "" && (cur.Keyboard || (sel.WithPointers && cur.Pointer)) {
			if selectable(cur, sel) {
				devices = append(devices, cur)
			}
		}
		cur = Info{}
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "N: Name="):
			cur.Name = strings.Trim(strings.TrimPrefix(line, "N: Name="), `"`)
		case strings.HasPrefix(line, "P: Phys="):
			cur.Phys = strings.TrimPrefix(line, "P: Phys=")
		case strings.HasPrefix(line, "H: Handlers="):
			for _, part := range strings.Fields(strings.TrimPrefix(line, "H: Handlers=")) {
				if strings.HasPrefix(part, "event") {
					cur.Handler = part
				}
				if strings.HasPrefix(part, "mouse") {
					cur.Pointer = true
				}
			}
		case strings.HasPrefix(line, "B: KEY="):
			// a real keyboard carries a wide key bitmap; buttons alone
			// (power switches, mice) keep it short
			if len(strings.TrimPrefix(line, "B: KEY=")) > 20 {
				cur.Keyboard = true
			}
		case line == "":
			flush()
		}
	}
	flush()
	return devices
}

// selectable applies the allow/deny patterns and skips virtual devices.
func selectable(d Info, sel Selection) bool {
	if sel.VirtualName != "" && strings.Contains(d.Name, sel.VirtualName) {
		return false
	}
	if strings.HasPrefix(strings.ToLower(d.Phys), "virtual") {
		return false
	}
	for _, pat := range sel.Deny {
		if pat != "" && strings.Contains(d.Name, pat) {
			return false
		}
	}
	if len(sel.Allow) == 0 {
		return true
	}
	for _, pat := range sel.Allow {
		if pat != "" && strings.Contains(d.Name, pat) {
			return true
		}
	}
	return false
}
