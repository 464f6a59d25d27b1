// Package stage implements the translation core: a greedy longest-match
// recognizer over multi-key input sequences and the state machine that
// turns grabbed input events into the stream sent to the virtual device.
package stage

import (
	"time"

	"remapd/internal/keys"
)

// matchState is the outcome of matching a pattern against the input buffer.
type matchState int

const (
	noMatch matchState = iota
	// mightMatch: the pattern matches the whole pending buffer as a prefix
	// and could complete with more input.
	mightMatch
	// fullMatch: every pattern element is satisfied.
	fullMatch
)

// bufferedEvent is an input event held in the stage buffer together with
// the index of the device it came from. A Down that was forwarded to the
// output unmapped stays buffered with forwarded set: it no longer counts
// as pending but can still complete a pattern, which then lifts and
// re-presses it around the mapped output.
type bufferedEvent struct {
	keys.KeyEvent
	device    int
	forwarded bool
}

// matchResult carries everything the stage needs to apply a match.
type matchResult struct {
	state matchState

	// matchedIdx are the buffer indices consumed by pattern elements, in
	// buffer order.
	matchedIdx []int

	// skippedUps are buffer indices of releases the pattern ignored
	// because it never references their key. They are flushed as UpAsync
	// when the match applies.
	skippedUps []int

	// bindings maps logical identity codes to the physical side that
	// matched first within this pattern.
	bindings map[keys.Key]keys.Key

	// armTimeout is non-zero when the pattern is waiting on a terminal
	// timeout element and the stage should arm an input timeout.
	armTimeout time.Duration
}

// consumedEnd returns the buffer boundary up to which this match reaches.
func (r *matchResult) consumedEnd() int {
	end := 0
	for _, i := range r.matchedIdx {
		if i >= end {
			end = i + 1
		}
	}
	for _, i := range r.skippedUps {
		if i >= end {
			end = i + 1
		}
	}
	return end
}

// matchLen is the number of pattern-consumed events, used for the greedy
// longest-match comparison between full matches.
func (r *matchResult) matchLen() int { return len(r.matchedIdx) }

// matcher evaluates one pattern against the buffer. held reports whether a
// key is currently down (toggled, for virtual keys).
type matcher struct {
	pattern keys.KeySequence
	buf     []bufferedEvent
	held    func(keys.Key) bool
	logical *keys.LogicalKeys
}

// matchSequence runs the matcher. The rules are:
//
//   - Down requires an incoming Down not yet matched; Up the corresponding
//     release; DownMatched a key already held; Not succeeds only when the
//     key is not held; a timeout element succeeds once the delivered quiet
//     period reaches its duration; Any consumes any single event; None is
//     a separator.
//   - Logical keys match either physical side; the first side that matches
//     binds the identity for the rest of the pattern.
//   - DownMatched buffer entries and input-timeout markers the pattern
//     does not expect are transparent.
//   - Buffered releases of keys the pattern never references are skipped
//     and reported for asynchronous emission.
func matchSequence(pattern keys.KeySequence, buf []bufferedEvent, held func(keys.Key) bool, logical *keys.LogicalKeys) matchResult {
	m := &matcher{pattern: pattern, buf: buf, held: held, logical: logical}
	return m.run()
}

func (m *matcher) run() matchResult {
	res := matchResult{state: noMatch}
	p, i := 0, 0

	for {
		if p == len(m.pattern) {
			res.state = fullMatch
			return res
		}
		pe := m.pattern[p]

		// predicates that consume no input
		if pe.Key == keys.KeyNone {
			p++
			continue
		}
		if pe.State == keys.Not {
			if m.keyDown(pe.Key) {
				return matchResult{state: noMatch}
			}
			p++
			continue
		}
		if pe.State == keys.DownMatched {
			if j, ok := m.findDownMatched(i, pe.Key, res.bindings); ok {
				res.bindings = m.bind(res.bindings, pe.Key, m.buf[j].Key)
				res.matchedIdx = append(res.matchedIdx, j)
				if j >= i {
					i = j + 1
				}
				p++
				continue
			}
			if m.keyDown(pe.Key) {
				p++
				continue
			}
			return matchResult{state: noMatch}
		}

		if i == len(m.buf) {
			res.state = mightMatch
			if pe.Key == keys.KeyTimeout {
				res.armTimeout = pe.Timeout
			}
			return res
		}
		ie := m.buf[i]

		// transparent buffer entries
		if ie.State == keys.DownMatched {
			i++
			continue
		}
		if keys.IsInputTimeoutEvent(ie.KeyEvent) && pe.Key != keys.KeyTimeout {
			i++
			continue
		}
		if ie.forwarded && ie.State == keys.Down {
			// a forwarded Down is only consumed when the current element
			// wants exactly it; otherwise it is held context
			consumable := pe.State == keys.Down && pe.Key != keys.KeyTimeout &&
				m.keyMatches(pe.Key, ie.Key, res.bindings)
			if !consumable {
				i++
				continue
			}
		}

		if pe.Key == keys.KeyTimeout {
			if keys.IsInputTimeoutEvent(ie.KeyEvent) && ie.Timeout >= pe.Timeout {
				res.matchedIdx = append(res.matchedIdx, i)
				i++
				p++
				continue
			}
			return matchResult{state: noMatch}
		}

		if pe.Key == keys.KeyAny {
			res.matchedIdx = append(res.matchedIdx, i)
			i++
			p++
			continue
		}

		switch pe.State {
		case keys.Down:
			if ie.State == keys.Down && m.keyMatches(pe.Key, ie.Key, res.bindings) {
				res.bindings = m.bind(res.bindings, pe.Key, ie.Key)
				res.matchedIdx = append(res.matchedIdx, i)
				i++
				p++
				continue
			}
			if (ie.State == keys.Up || ie.State == keys.UpAsync) && !m.patternReferences(ie.Key) {
				res.skippedUps = append(res.skippedUps, i)
				i++
				continue
			}
			return matchResult{state: noMatch}

		case keys.Up, keys.UpAsync:
			if ie.State == keys.Up || ie.State == keys.UpAsync {
				if m.keyMatches(pe.Key, ie.Key, res.bindings) {
					res.bindings = m.bind(res.bindings, pe.Key, ie.Key)
					res.matchedIdx = append(res.matchedIdx, i)
					i++
					p++
					continue
				}
				if !m.patternReferences(ie.Key) {
					res.skippedUps = append(res.skippedUps, i)
					i++
					continue
				}
			}
			return matchResult{state: noMatch}

		default:
			return matchResult{state: noMatch}
		}
	}
}

// findDownMatched scans for a DownMatched buffer entry satisfying the
// pattern key. Entries before i are earlier matches still held; they are
// legitimate targets too.
func (m *matcher) findDownMatched(from int, pk keys.Key, bindings map[keys.Key]keys.Key) (int, bool) {
	for j := 0; j < len(m.buf); j++ {
		if m.buf[j].State != keys.DownMatched {
			continue
		}
		if m.keyMatches(pk, m.buf[j].Key, bindings) {
			return j, true
		}
	}
	return 0, false
}

// keyDown evaluates the held predicate with logical expansion.
func (m *matcher) keyDown(k keys.Key) bool {
	if left, right, ok := m.logical.Sides(k); ok {
		return m.held(left) || m.held(right)
	}
	return m.held(k)
}

// keyMatches reports whether a pattern key accepts an input key, honoring
// an existing logical binding.
func (m *matcher) keyMatches(pk, ik keys.Key, bindings map[keys.Key]keys.Key) bool {
	if pk == keys.KeyAny || pk == ik {
		return true
	}
	left, right, ok := m.logical.Sides(pk)
	if !ok {
		return false
	}
	if bound, has := bindings[pk]; has {
		return ik == bound
	}
	return ik == left || ik == right
}

// bind records the physical side a logical pattern key matched.
func (m *matcher) bind(bindings map[keys.Key]keys.Key, pk, ik keys.Key) map[keys.Key]keys.Key {
	if !keys.IsLogical(pk) || pk == ik {
		return bindings
	}
	if bindings == nil {
		bindings = make(map[keys.Key]keys.Key, 2)
	}
	if _, has := bindings[pk]; !has {
		bindings[pk] = ik
	}
	return bindings
}

// patternReferences reports whether the pattern mentions a key, with
// logical sides expanded. Patterns containing Any reference everything.
func (m *matcher) patternReferences(k keys.Key) bool {
	for _, pe := range m.pattern {
		if pe.Key == keys.KeyAny || pe.Key == k {
			return true
		}
		if left, right, ok := m.logical.Sides(pe.Key); ok {
			if left == k || right == k {
				return true
			}
		}
	}
	return false
}
