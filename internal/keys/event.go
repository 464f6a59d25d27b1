package keys

import (
	"fmt"
	"time"
)

// KeyState describes the edge or predicate a key event carries. In input
// streams only Down and Up occur; the remaining states are bookkeeping and
// pattern predicates.
type KeyState int

const (
	// Down is a key press.
	Down KeyState = iota
	// Up is a key release.
	Up
	// DownMatched records a Down that already participated in a match and
	// must not match again.
	DownMatched
	// UpAsync is an Up emitted out of order with respect to its Down.
	UpAsync
	// Not is a negative predicate in patterns: the key must not be held.
	Not
)

// String returns the state name used in logs and test failures.
func (s KeyState) String() string {
	switch s {
	case Down:
		return "Down"
	case Up:
		return "Up"
	case DownMatched:
		return "DownMatched"
	case UpAsync:
		return "UpAsync"
	case Not:
		return "Not"
	default:
		return fmt.Sprintf("KeyState(%d)", int(s))
	}
}

// KeyEvent is one element of an input stream, an output stream or a
// pattern. Timeout is only meaningful on the timeout marker keys.
type KeyEvent struct {
	Key     Key
	State   KeyState
	Timeout time.Duration
}

func (e KeyEvent) String() string {
	switch e.Key {
	case KeyTimeout, KeyInputTimeout:
		return fmt.Sprintf("%s(%s)", KeyName(e.Key), e.Timeout)
	}
	return fmt.Sprintf("%s %s", KeyName(e.Key), e.State)
}

// KeySequence is an ordered run of key events. Patterns and outputs share
// the representation; the matcher interprets pattern states as predicates.
type KeySequence []KeyEvent

// MakeInputTimeoutEvent constructs the marker event the driver feeds back
// into the stage once a quiet period of d has elapsed since the last
// translated input.
func MakeInputTimeoutEvent(d time.Duration) KeyEvent {
	return KeyEvent{Key: KeyInputTimeout, State: Up, Timeout: d}
}

// IsInputTimeoutEvent reports whether e is a quiet-period marker.
func IsInputTimeoutEvent(e KeyEvent) bool { return e.Key == KeyInputTimeout }
