// Package keys defines the key and key-event model used by the translation
// engine: physical keys with evdev-aligned codes, user-defined logical keys,
// virtual toggle keys, action keys and reserved marker codes.
package keys

import (
	"fmt"
	"strconv"
	"strings"
)

// Key is a 32-bit key identifier. The code space is partitioned into
// disjoint ranges so a key's kind can be derived from its value alone.
type Key uint32

// Code-range partitioning.
const (
	// KeyNone is the zero key, used as a no-op separator in sequences.
	KeyNone Key = 0

	// Physical keys occupy the evdev code range, including pointer buttons.
	firstPhysical Key = 0x001
	lastPhysical  Key = 0x2FF

	// Logical keys are registered at keymap compile time.
	FirstLogical Key = 0x300
	lastLogical  Key = 0x3FF

	// Virtual keys are internal toggles with no physical embodiment.
	FirstVirtual Key = 0x400
	lastVirtual  Key = 0x4FF

	// Action keys instruct the front-end to run command N.
	FirstAction Key = 0x500
	lastAction  Key = 0x5FF

	// Reserved marker codes.
	KeyTimeout      Key = 0xF000 // carries a duration in the event
	KeyInputTimeout Key = 0xF001 // quiet-period marker
	KeyAny          Key = 0xF002 // matches any single event
)

// MaxVirtualKeys is the number of addressable virtual toggles.
const MaxVirtualKeys = int(lastVirtual-FirstVirtual) + 1

// MaxActionKeys is the number of addressable action keys.
const MaxActionKeys = int(lastAction-FirstAction) + 1

// IsPhysical reports whether k is a physical keyboard key or pointer button.
func IsPhysical(k Key) bool { return k >= firstPhysical && k <= lastPhysical }

// IsLogical reports whether k is a registered logical identity code.
func IsLogical(k Key) bool { return k >= FirstLogical && k <= lastLogical }

// IsVirtual reports whether k is a virtual toggle key.
func IsVirtual(k Key) bool { return k >= FirstVirtual && k <= lastVirtual }

// IsAction reports whether k is an action key.
func IsAction(k Key) bool { return k >= FirstAction && k <= lastAction }

// IsMarker reports whether k is one of the reserved marker codes.
func IsMarker(k Key) bool {
	return k == KeyNone || k == KeyTimeout || k == KeyInputTimeout || k == KeyAny
}

// IsPointerButton reports whether k is a mouse or pointer button.
func IsPointerButton(k Key) bool { return k >= ButtonLeft && k <= ButtonTask }

// VirtualKey returns the n-th virtual key, or KeyNone if out of range.
func VirtualKey(n int) Key {
	if n < 0 || n >= MaxVirtualKeys {
		return KeyNone
	}
	return FirstVirtual + Key(n)
}

// ActionKey returns the action key for command index n, or KeyNone if out
// of range.
func ActionKey(n int) Key {
	if n < 0 || n >= MaxActionKeys {
		return KeyNone
	}
	return FirstAction + Key(n)
}

// ActionIndex returns the command index an action key stands for.
func ActionIndex(k Key) int { return int(k - FirstAction) }

// Side selects one physical alternative of a logical key.
type Side int

const (
	SideLeft Side = iota
	SideRight
)

// logicalEntry is one registered {both,left,right} triple.
type logicalEntry struct {
	name  string
	both  Key
	left  Key
	right Key
}

// LogicalKeys is the registry of logical-key triples. The keymap compiler
// registers user definitions on top of the standard modifier aliases.
type LogicalKeys struct {
	entries []logicalEntry
}

// NewLogicalKeys returns a registry preloaded with the standard modifier
// aliases Shift, Control, Alt and Meta.
func NewLogicalKeys() *LogicalKeys {
	l := &LogicalKeys{}
	l.Register("Shift", ShiftLeft, ShiftRight)
	l.Register("Control", ControlLeft, ControlRight)
	l.Register("Alt", AltLeft, AltRight)
	l.Register("Meta", MetaLeft, MetaRight)
	return l
}

// Register adds a logical key and returns its identity code. Registering a
// name twice replaces the previous sides and keeps the code.
func (l *LogicalKeys) Register(name string, left, right Key) (Key, error) {
	for i, e := range l.entries {
		if e.name == name {
			l.entries[i].left = left
			l.entries[i].right = right
			return e.both, nil
		}
	}
	both := FirstLogical + Key(len(l.entries))
	if both > lastLogical {
		return KeyNone, fmt.Errorf("too many logical keys (max %d)", int(lastLogical-FirstLogical)+1)
	}
	l.entries = append(l.entries, logicalEntry{name: name, both: both, left: left, right: right})
	return both, nil
}

// Resolve maps a logical identity to one of its physical sides. Non-logical
// keys are returned unchanged.
func (l *LogicalKeys) Resolve(k Key, side Side) Key {
	left, right, ok := l.Sides(k)
	if !ok {
		return k
	}
	if side == SideRight {
		return right
	}
	return left
}

// Sides returns the two physical alternatives of a logical key.
func (l *LogicalKeys) Sides(k Key) (left, right Key, ok bool) {
	if !IsLogical(k) {
		return KeyNone, KeyNone, false
	}
	i := int(k - FirstLogical)
	if i >= len(l.entries) {
		return KeyNone, KeyNone, false
	}
	return l.entries[i].left, l.entries[i].right, true
}

// Lookup returns the identity code registered under name.
func (l *LogicalKeys) Lookup(name string) (Key, bool) {
	for _, e := range l.entries {
		if e.name == name {
			return e.both, true
		}
	}
	return KeyNone, false
}

// Name returns the registered name of a logical key.
func (l *LogicalKeys) Name(k Key) (string, bool) {
	if !IsLogical(k) {
		return "", false
	}
	i := int(k - FirstLogical)
	if i >= len(l.entries) {
		return "", false
	}
	return l.entries[i].name, true
}

// KeyName returns the canonical name of a key. Logical keys need the
// registry and are not covered here.
func KeyName(k Key) string {
	if name, ok := physicalNames[k]; ok {
		return name
	}
	switch {
	case k == KeyNone:
		return "None"
	case k == KeyTimeout:
		return "Timeout"
	case k == KeyInputTimeout:
		return "InputTimeout"
	case k == KeyAny:
		return "Any"
	case IsVirtual(k):
		return "Virtual" + strconv.Itoa(int(k-FirstVirtual))
	case IsAction(k):
		return "Action" + strconv.Itoa(ActionIndex(k))
	}
	return fmt.Sprintf("Key(%#x)", uint32(k))
}

// KeyFromName resolves a canonical key name to its code. Logical names are
// resolved by the keymap compiler against its registry, not here.
func KeyFromName(name string) (Key, bool) {
	if k, ok := physicalCodes[name]; ok {
		return k, true
	}
	switch name {
	case "None":
		return KeyNone, true
	case "Timeout":
		return KeyTimeout, true
	case "InputTimeout":
		return KeyInputTimeout, true
	case "Any":
		return KeyAny, true
	}
	if n, ok := strings.CutPrefix(name, "Virtual"); ok {
		if i, err := strconv.Atoi(n); err == nil && i >= 0 && i < MaxVirtualKeys {
			return VirtualKey(i), true
		}
	}
	if n, ok := strings.CutPrefix(name, "Action"); ok {
		if i, err := strconv.Atoi(n); err == nil && i >= 0 && i < MaxActionKeys {
			return ActionKey(i), true
		}
	}
	return KeyNone, false
}
