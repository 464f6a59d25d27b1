package stage

import (
	"time"

	"remapd/internal/keymap"
	"remapd/internal/keys"
	"remapd/internal/logging"
)

// AnyDevice marks events with no originating device, such as injected
// virtual-key toggles and input-timeout deliveries. It passes every device
// filter.
const AnyDevice = -1

// outputDown is one key currently held by the virtual device.
type outputDown struct {
	// key is the physical key pressed on the virtual device.
	key keys.Key
	// trigger is the input key whose release takes this key back up.
	trigger keys.Key
	// passthrough records that the key was forwarded unmapped.
	passthrough bool
	// temporarilyReleased is set while the key is lifted around a mapped
	// output and will be pressed again if its trigger is still held.
	temporarilyReleased bool
}

// stageContext is the runtime activation state of one keymap context.
type stageContext struct {
	meta *keymap.Context
	// focusActive tracks the last SetActiveContexts signal.
	focusActive bool
	// deviceMatched holds the grabbed-device indices the device filter
	// matches; nil when the filter is absent.
	deviceMatched map[int]bool
}

// Stage consumes one grabbed key event at a time and produces the events
// the caller must forward. It is single-threaded and non-reentrant: one
// driver goroutine owns it, no operation blocks.
type Stage struct {
	cfg      *keymap.Config
	contexts []stageContext

	buf            []bufferedEvent
	output         []outputDown
	physicalDown   map[keys.Key]int
	toggledVirtual map[keys.Key]bool
	lastDevice     int
	exitLatched    bool

	free [][]keys.KeyEvent
}

// New builds a stage from a compiled keymap. All contexts start
// focus-active until the front-end sends its first signal.
func New(cfg *keymap.Config) *Stage {
	s := &Stage{
		cfg:            cfg,
		physicalDown:   make(map[keys.Key]int),
		toggledVirtual: make(map[keys.Key]bool),
		lastDevice:     AnyDevice,
	}
	s.contexts = make([]stageContext, len(cfg.Contexts))
	for i := range cfg.Contexts {
		s.contexts[i] = stageContext{meta: &cfg.Contexts[i], focusActive: true}
	}
	return s
}

// SetActiveContexts declares which context indices the front-end considers
// focus-eligible. Calling it twice with the same indices is a no-op.
func (s *Stage) SetActiveContexts(indices []int) {
	for i := range s.contexts {
		s.contexts[i].focusActive = false
	}
	for _, idx := range indices {
		if idx >= 0 && idx < len(s.contexts) {
			s.contexts[idx].focusActive = true
		}
	}
}

// EvaluateDeviceFilters recomputes per-context device activation from the
// grabbed-device name list.
func (s *Stage) EvaluateDeviceFilters(deviceNames []string) {
	for i := range s.contexts {
		c := &s.contexts[i]
		if c.meta.Device.Empty() {
			c.deviceMatched = nil
			continue
		}
		c.deviceMatched = make(map[int]bool)
		for idx, name := range deviceNames {
			if c.meta.Device.Matches(name) {
				c.deviceMatched[idx] = true
			}
		}
	}
}

// HasMouseMappings reports whether the keymap references pointer buttons.
func (s *Stage) HasMouseMappings() bool { return s.cfg.HasMouseMappings() }

// IsOutputDown reports whether the virtual device currently holds any key.
func (s *Stage) IsOutputDown() bool {
	for _, od := range s.output {
		if !od.temporarilyReleased {
			return true
		}
	}
	return false
}

// OutputDownCount returns the number of keys the virtual device holds.
func (s *Stage) OutputDownCount() int {
	n := 0
	for _, od := range s.output {
		if !od.temporarilyReleased {
			n++
		}
	}
	return n
}

// ShouldExit reports whether the exit sequence has matched. Once set it
// stays set and Update becomes a no-op.
func (s *Stage) ShouldExit() bool { return s.exitLatched }

// ReuseBuffer hands a drained output slice back for reuse. The caller must
// not retain it afterwards.
func (s *Stage) ReuseBuffer(buf []keys.KeyEvent) {
	if buf != nil {
		s.free = append(s.free, buf[:0])
	}
}

func (s *Stage) takeBuffer() []keys.KeyEvent {
	if n := len(s.free); n > 0 {
		buf := s.free[n-1]
		s.free = s.free[:n-1]
		return buf
	}
	return make([]keys.KeyEvent, 0, 8)
}

// Update is the main entry: push one input event, run the match loop and
// return the events to forward. The result may end with an input-timeout
// marker the caller must schedule and re-deliver via MakeInputTimeoutEvent.
func (s *Stage) Update(event keys.KeyEvent, device int) []keys.KeyEvent {
	out := s.takeBuffer()
	if s.exitLatched {
		return out
	}
	s.lastDevice = device

	switch {
	case keys.IsInputTimeoutEvent(event):
		s.buf = append(s.buf, bufferedEvent{KeyEvent: event, device: device})

	case event.State == keys.Down:
		if keys.IsVirtual(event.Key) {
			s.toggledVirtual[event.Key] = true
		} else if keys.IsPhysical(event.Key) {
			s.physicalDown[event.Key]++
		}
		s.buf = append(s.buf, bufferedEvent{KeyEvent: event, device: device})

	case event.State == keys.Up || event.State == keys.UpAsync:
		if keys.IsVirtual(event.Key) {
			delete(s.toggledVirtual, event.Key)
		} else if keys.IsPhysical(event.Key) {
			if s.physicalDown[event.Key] == 0 {
				logging.Warn("dropping release for key that was never pressed",
					"key", keys.KeyName(event.Key), "device", device)
				return out
			}
			if s.physicalDown[event.Key]--; s.physicalDown[event.Key] == 0 {
				delete(s.physicalDown, event.Key)
			}
		}
		s.buf = append(s.buf, bufferedEvent{KeyEvent: event, device: device})

	default:
		logging.Warn("dropping input event with unexpected state",
			"key", keys.KeyName(event.Key), "state", event.State.String())
		return out
	}

	s.matchLoop(&out)
	s.stripInputTimeouts()
	return out
}

// matchLoop drains the pending buffer: apply the best match, or flush the
// front event as passthrough, until only held keys remain or a pattern is
// still in play.
func (s *Stage) matchLoop(out *[]keys.KeyEvent) {
	for s.hasPending() {
		cand, might, arm := s.bestMatch()
		if might {
			if arm > 0 {
				*out = append(*out, keys.KeyEvent{Key: keys.KeyInputTimeout, State: keys.Down, Timeout: arm})
			}
			return
		}
		if cand == nil {
			s.passthroughFront(out)
			continue
		}
		if cand.exit {
			logging.Info("exit sequence matched")
			s.exitLatched = true
			s.buf = s.buf[:0]
			return
		}
		s.applyMatch(cand, out)
	}
}

// hasPending reports whether the buffer holds anything besides keys held
// by earlier matches or already forwarded to the output.
func (s *Stage) hasPending() bool {
	for _, e := range s.buf {
		if e.State != keys.DownMatched && !e.forwarded {
			return true
		}
	}
	return false
}

// stripInputTimeouts removes quiet-period markers that were not consumed
// within the Update call that buffered them.
func (s *Stage) stripInputTimeouts() {
	kept := s.buf[:0]
	for _, e := range s.buf {
		if !keys.IsInputTimeoutEvent(e.KeyEvent) {
			kept = append(kept, e)
		}
	}
	s.buf = kept
}

// candidate is a full match ready to apply.
type candidate struct {
	res     matchResult
	context int
	output  keys.KeySequence
	command int
	exit    bool
}

// bestMatch evaluates the exit sequence and every mapping of every usable
// context against the buffer. Any viable might-match defers any full match
// (a might-match spans the whole pending buffer, so whatever it completes
// into is strictly longer); ties between full matches go to the first
// context, then the first mapping.
func (s *Stage) bestMatch() (best *candidate, might bool, arm time.Duration) {
	consider := func(c candidate) {
		// a result that consumed nothing is vacuous: it neither covers the
		// pending prefix nor makes progress when applied
		if c.res.matchLen() == 0 {
			return
		}
		switch c.res.state {
		case fullMatch:
			if best == nil || c.res.matchLen() > best.res.matchLen() {
				cc := c
				best = &cc
			}
		case mightMatch:
			might = true
			if c.res.armTimeout > 0 && (arm == 0 || c.res.armTimeout < arm) {
				arm = c.res.armTimeout
			}
		}
	}

	if len(s.cfg.ExitSequence) > 0 {
		c := candidate{exit: true, command: -1}
		c.res = matchSequence(s.cfg.ExitSequence, s.buf, s.keyDown, s.cfg.Logical)
		consider(c)
	}

	for ci := range s.contexts {
		if !s.contextUsable(ci, s.lastDevice) {
			continue
		}
		ctx := s.contexts[ci].meta
		for mi := range ctx.Mappings {
			m := &ctx.Mappings[mi]
			c := candidate{context: ci, output: m.Output, command: m.Command}
			c.res = matchSequence(m.Input, s.buf, s.keyDown, s.cfg.Logical)
			consider(c)
		}
		if !ctx.Fallthrough {
			break
		}
	}
	if might {
		return nil, true, arm
	}
	return best, false, 0
}

// contextUsable evaluates the three activation gates: focus signal, device
// filter against the event's device, modifier filter against the held
// output keys.
func (s *Stage) contextUsable(ci, device int) bool {
	c := &s.contexts[ci]
	if !c.focusActive {
		return false
	}
	if !c.meta.Device.Empty() {
		if len(c.deviceMatched) == 0 {
			return false
		}
		if device != AnyDevice && !c.deviceMatched[device] {
			return false
		}
	}
	for _, req := range c.meta.Modifier {
		if s.modifierDown(req.Key) == req.Not {
			return false
		}
	}
	return true
}

// modifierDown evaluates a modifier-filter key against the output state.
func (s *Stage) modifierDown(k keys.Key) bool {
	if keys.IsVirtual(k) {
		return s.toggledVirtual[k]
	}
	if left, right, ok := s.cfg.Logical.Sides(k); ok {
		return s.outputHas(left) || s.outputHas(right)
	}
	return s.outputHas(k)
}

func (s *Stage) outputHas(k keys.Key) bool {
	for _, od := range s.output {
		if od.key == k {
			return true
		}
	}
	return false
}

// keyDown is the held predicate handed to the matcher: toggled state for
// virtual keys, physical state otherwise.
func (s *Stage) keyDown(k keys.Key) bool {
	if keys.IsVirtual(k) {
		return s.toggledVirtual[k]
	}
	return s.physicalDown[k] > 0
}

// passthroughFront flushes the first pending buffer event unchanged. A
// flushed Down stays buffered as forwarded so a later pattern can still
// consume it; everything else leaves the buffer.
func (s *Stage) passthroughFront(out *[]keys.KeyEvent) {
	idx := -1
	for i, e := range s.buf {
		if e.State != keys.DownMatched && !e.forwarded {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	e := s.buf[idx]

	switch {
	case keys.IsInputTimeoutEvent(e.KeyEvent) || keys.IsVirtual(e.Key):
		// internal markers never reach the virtual device
		s.buf = append(s.buf[:idx], s.buf[idx+1:]...)

	case e.State == keys.Down:
		s.pressKey(e.Key, e.Key, true, out)
		s.buf[idx].forwarded = true

	case e.State == keys.Up || e.State == keys.UpAsync:
		s.buf = append(s.buf[:idx], s.buf[idx+1:]...)
		s.releaseTriggered(e.Key, e.State == keys.UpAsync, out)

	default:
		s.buf = append(s.buf[:idx], s.buf[idx+1:]...)
	}
}

// pressKey emits a Down with canonicalization: a key the virtual device
// already holds is not pressed again.
func (s *Stage) pressKey(k, trigger keys.Key, passthrough bool, out *[]keys.KeyEvent) {
	for i := range s.output {
		if s.output[i].key == k && !s.output[i].temporarilyReleased {
			return
		}
	}
	*out = append(*out, keys.KeyEvent{Key: k, State: keys.Down})
	s.output = append(s.output, outputDown{key: k, trigger: trigger, passthrough: passthrough})
}

// releaseTriggered emits Ups for every output key owed to a trigger, in
// reverse press order, and drops the trigger's held-key record. Orphan
// releases are suppressed.
func (s *Stage) releaseTriggered(trigger keys.Key, async bool, out *[]keys.KeyEvent) {
	s.removeHeldEntry(trigger)
	s.releaseOutputs(trigger, async, out)
}

// releaseOutputs releases the output keys owed to a trigger without
// touching the input buffer.
func (s *Stage) releaseOutputs(trigger keys.Key, async bool, out *[]keys.KeyEvent) {
	state := keys.Up
	if async {
		state = keys.UpAsync
	}
	for i := len(s.output) - 1; i >= 0; i-- {
		od := s.output[i]
		if od.trigger != trigger {
			continue
		}
		if !od.temporarilyReleased {
			*out = append(*out, keys.KeyEvent{Key: od.key, State: state})
		}
		s.output = append(s.output[:i], s.output[i+1:]...)
	}
}

// removeHeldEntry drops the buffer record of a held key: a DownMatched
// entry or a forwarded Down.
func (s *Stage) removeHeldEntry(k keys.Key) {
	for i, e := range s.buf {
		if e.Key == k && (e.State == keys.DownMatched || (e.forwarded && e.State == keys.Down)) {
			s.buf = append(s.buf[:i], s.buf[i+1:]...)
			return
		}
	}
}

// applyMatch rewrites the buffer and emits the mapped output for a full
// match.
func (s *Stage) applyMatch(c *candidate, out *[]keys.KeyEvent) {
	matched := make(map[int]bool, len(c.res.matchedIdx))
	for _, i := range c.res.matchedIdx {
		matched[i] = true
	}
	skipped := make(map[int]bool, len(c.res.skippedUps))

	// releases the pattern skipped happened physically; let them out
	// before the mapped output so held-key bookkeeping stays consistent.
	// Their buffer records are dropped during the rewrite below to keep
	// the recorded indices stable.
	heldDrop := make(map[keys.Key]int)
	for _, i := range c.res.skippedUps {
		skipped[i] = true
		heldDrop[s.buf[i].Key]++
		s.releaseOutputs(s.buf[i].Key, true, out)
	}

	// forwarded keys consumed by the match are lifted around the output
	for _, i := range c.res.matchedIdx {
		e := s.buf[i]
		if e.State != keys.Down {
			continue
		}
		for j := range s.output {
			od := &s.output[j]
			if od.key == e.Key && !od.temporarilyReleased {
				*out = append(*out, keys.KeyEvent{Key: od.key, State: keys.UpAsync})
				od.temporarilyReleased = true
			}
		}
	}

	// replay the consumed events to find which keys stay held and which
	// one triggers the release of the mapped output
	stillHeld := make(map[int]bool)
	downIdx := make(map[keys.Key][]int)
	trigger := keys.KeyNone
	for _, i := range c.res.matchedIdx {
		e := s.buf[i]
		switch e.State {
		case keys.Down:
			downIdx[e.Key] = append(downIdx[e.Key], i)
		case keys.Up, keys.UpAsync:
			if stack := downIdx[e.Key]; len(stack) > 0 {
				downIdx[e.Key] = stack[:len(stack)-1]
			}
		}
	}
	for _, stack := range downIdx {
		for _, i := range stack {
			stillHeld[i] = true
		}
	}
	for _, i := range c.res.matchedIdx {
		if stillHeld[i] {
			trigger = s.buf[i].Key
		}
	}

	s.emitOutput(s.resolveOutput(c), trigger, c.res.bindings, out)

	// buffer rewrite: held consumed Downs become DownMatched, everything
	// else consumed disappears, later events stay pending
	end := c.res.consumedEnd()
	kept := s.buf[:0]
	for i, e := range s.buf {
		held := e.State == keys.DownMatched || (e.forwarded && e.State == keys.Down)
		switch {
		case i >= end:
			kept = append(kept, e)
		case skipped[i]:
			// flushed above
		case matched[i]:
			if stillHeld[i] {
				e.State = keys.DownMatched
				e.forwarded = false
				kept = append(kept, e)
			}
		case held && heldDrop[e.Key] > 0:
			heldDrop[e.Key]--
		case held:
			kept = append(kept, e)
		case keys.IsInputTimeoutEvent(e.KeyEvent):
			// transparent marker, spent
		default:
			kept = append(kept, e)
		}
	}
	s.buf = kept

	// keys lifted around the output come back if still physically held
	for i := len(s.output) - 1; i >= 0; i-- {
		od := &s.output[i]
		if !od.temporarilyReleased {
			continue
		}
		if s.physicalDown[od.trigger] > 0 {
			*out = append(*out, keys.KeyEvent{Key: od.key, State: keys.Down})
			od.temporarilyReleased = false
		} else {
			s.output = append(s.output[:i], s.output[i+1:]...)
		}
	}
}

// resolveOutput picks the output sequence of a match: the mapping's own
// sequence, the first usable context's output for its command block, or
// the command's action key when no context provides one.
func (s *Stage) resolveOutput(c *candidate) keys.KeySequence {
	if c.command < 0 {
		return c.output
	}
	for ci := range s.contexts {
		if !s.contextUsable(ci, s.lastDevice) {
			continue
		}
		if out, ok := s.contexts[ci].meta.CommandOutputs[c.command]; ok {
			return out
		}
		if !s.contexts[ci].meta.Fallthrough {
			break
		}
	}
	if k := keys.ActionKey(c.command); k != keys.KeyNone {
		return keys.KeySequence{{Key: k, State: keys.Down}}
	}
	logging.Warn("command index out of range", "command", c.command)
	return nil
}

// emitOutput appends a mapped output sequence with canonicalization.
func (s *Stage) emitOutput(seq keys.KeySequence, trigger keys.Key, bindings map[keys.Key]keys.Key, out *[]keys.KeyEvent) {
	for _, e := range seq {
		k := e.Key
		if bound, ok := bindings[k]; ok {
			k = bound
		} else if keys.IsLogical(k) {
			k = s.cfg.Logical.Resolve(k, keys.SideLeft)
		}

		switch {
		case k == keys.KeyNone:

		case k == keys.KeyTimeout:
			*out = append(*out, keys.KeyEvent{Key: keys.KeyTimeout, State: keys.Down, Timeout: e.Timeout})

		case keys.IsAction(k) || keys.IsVirtual(k):
			// the caller dispatches the Down; the Up carries nothing
			if e.State == keys.Down {
				*out = append(*out, keys.KeyEvent{Key: k, State: keys.Down})
			}

		case e.State == keys.Down:
			s.pressKey(k, trigger, false, out)

		case e.State == keys.Up:
			s.releaseOutputKey(k, out)

		case e.State == keys.Not:
			// lift an interfering key for the remainder of the output
			for j := range s.output {
				od := &s.output[j]
				if od.key == k && !od.temporarilyReleased {
					*out = append(*out, keys.KeyEvent{Key: k, State: keys.UpAsync})
					od.temporarilyReleased = true
				}
			}
		}
	}
}

// releaseOutputKey emits an Up for a key the virtual device holds,
// suppressing it otherwise.
func (s *Stage) releaseOutputKey(k keys.Key, out *[]keys.KeyEvent) {
	for i := len(s.output) - 1; i >= 0; i-- {
		if s.output[i].key == k {
			if !s.output[i].temporarilyReleased {
				*out = append(*out, keys.KeyEvent{Key: k, State: keys.Up})
			}
			s.output = append(s.output[:i], s.output[i+1:]...)
			return
		}
	}
}
