//go:build linux

package device

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"remapd/internal/keys"
	"remapd/internal/logging"
)

// EVIOCGRAB is the evdev ioctl for exclusive access. Grabbed events are
// no longer delivered to other readers of the device.
const eviocgrab = 0x40044590

// grabbedDevice is one exclusively held input device.
type grabbedDevice struct {
	info  Info
	file  *os.File
	index int
}

// Grabber holds the set of exclusively grabbed input devices and merges
// their event streams into one channel.
type Grabber struct {
	mu      sync.Mutex
	devices []*grabbedDevice
	events  chan Event
	done    chan struct{}
	wg      sync.WaitGroup
	closed  bool
	held    bool
}

// Grab enumerates the selected devices and takes exclusive access to each.
// Failing to grab a single device is fatal: a partially grabbed set would
// leak untranslated keys to the session.
func Grab(sel Selection) (*Grabber, error) {
	f, err := os.Open("/proc/bus/input/devices")
	if err != nil {
		return nil, fmt.Errorf("enumerate input devices: %w", err)
	}
	infos := parseProcDevices(f, sel)
	f.Close()

	if len(infos) == 0 {
		return nil, fmt.Errorf("no grabbable input devices found")
	}

	g := &Grabber{events: make(chan Event, 64), done: make(chan struct{})}
	for i, info := range infos {
		file, err := os.OpenFile(info.Path(), os.O_RDONLY, 0)
		if err != nil {
			g.Close()
			return nil, fmt.Errorf("open %s: %w", info.Path(), err)
		}
		dev := &grabbedDevice{info: info, file: file, index: i}
		if err := dev.setGrab(true); err != nil {
			file.Close()
			g.Close()
			return nil, fmt.Errorf("grab %s (%s): %w", info.Name, info.Path(), err)
		}
		g.devices = append(g.devices, dev)
		logging.Info("grabbed input device", "name", info.Name, "path", info.Path())
	}
	g.held = true

	for _, dev := range g.devices {
		g.wg.Add(1)
		go g.readLoop(dev)
	}
	return g, nil
}

func (d *grabbedDevice) setGrab(on bool) error {
	v := 0
	if on {
		v = 1
	}
	return unix.IoctlSetInt(int(d.file.Fd()), eviocgrab, v)
}

// readLoop decodes events from one device into the shared channel. Key
// repeats are dropped here: the virtual device advertises EV_REP and the
// kernel regenerates them on the output side.
func (g *Grabber) readLoop(dev *grabbedDevice) {
	defer g.wg.Done()
	buf := make([]byte, inputEventSize)
	for {
		if _, err := dev.file.Read(buf); err != nil {
			g.mu.Lock()
			closed := g.closed
			g.mu.Unlock()
			if !closed {
				logging.Warn("input device read failed", "name", dev.info.Name, "error", err)
			}
			return
		}
		ev, ok := decodeInputEvent(buf, dev.index)
		if !ok {
			continue
		}
		if ev.Type == evKey && ev.Value == valueRepeat {
			continue
		}
		select {
		case g.events <- ev:
		case <-g.done:
			return
		}
	}
}

// Events returns the merged event stream.
func (g *Grabber) Events() <-chan Event { return g.events }

// Names returns the grabbed device names, indexed by device index.
func (g *Grabber) Names() []string {
	names := make([]string, len(g.devices))
	for i, d := range g.devices {
		names[i] = d.info.Name
	}
	return names
}

// Suspend releases exclusive access without closing the devices, for
// locked desktop sessions.
func (g *Grabber) Suspend() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.held {
		return
	}
	for _, d := range g.devices {
		if err := d.setGrab(false); err != nil {
			logging.Warn("releasing device grab failed", "name", d.info.Name, "error", err)
		}
	}
	g.held = false
	logging.Info("device grabs released")
}

// Resume reacquires exclusive access after Suspend.
func (g *Grabber) Resume() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.held {
		return
	}
	for _, d := range g.devices {
		if err := d.setGrab(true); err != nil {
			logging.Warn("reacquiring device grab failed", "name", d.info.Name, "error", err)
		}
	}
	g.held = true
	logging.Info("device grabs reacquired")
}

// Close releases and closes every grabbed device.
func (g *Grabber) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	close(g.done)
	for _, d := range g.devices {
		d.setGrab(false)
		d.file.Close()
	}
	g.mu.Unlock()
	g.wg.Wait()
	close(g.events)
}

// ToKeyEvent converts a raw event into the key model. ok is false for
// events the stage does not translate; the caller forwards those raw.
func ToKeyEvent(ev Event) (keys.KeyEvent, bool) {
	if ev.Type != evKey {
		return keys.KeyEvent{}, false
	}
	k := keys.Key(ev.Code)
	if !keys.IsPhysical(k) {
		return keys.KeyEvent{}, false
	}
	switch ev.Value {
	case valueDown:
		return keys.KeyEvent{Key: k, State: keys.Down}, true
	case valueUp:
		return keys.KeyEvent{Key: k, State: keys.Up}, true
	}
	return keys.KeyEvent{}, false
}
