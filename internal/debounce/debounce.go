// Package debounce suppresses switch bounce on worn buttons by spacing out
// successive Down events for the same key.
package debounce

import (
	"time"

	"remapd/internal/keys"
)

// DefaultDelay is the minimum press-to-press spacing when none is
// configured.
const DefaultDelay = 50 * time.Millisecond

// Debouncer delays a key press that follows the previous press of the
// same key too closely. The caller postpones flushing by the returned
// duration.
type Debouncer struct {
	delay    time.Duration
	lastDown map[keys.Key]time.Time
	now      func() time.Time
}

// New creates a debouncer with the given minimum press spacing.
func New(delay time.Duration) *Debouncer {
	if delay <= 0 {
		delay = DefaultDelay
	}
	return &Debouncer{
		delay:    delay,
		lastDown: make(map[keys.Key]time.Time),
		now:      time.Now,
	}
}

// OnKeyDown records a press and returns how long the caller must wait
// before sending it. Zero means send immediately. When more events are
// already queued behind this one the press is never delayed, so sequences
// stay in order.
func (d *Debouncer) OnKeyDown(k keys.Key, moreQueued bool) time.Duration {
	now := d.now()
	last, seen := d.lastDown[k]
	d.lastDown[k] = now

	if moreQueued || !seen {
		return 0
	}
	if elapsed := now.Sub(last); elapsed < d.delay {
		return d.delay - elapsed
	}
	return 0
}
