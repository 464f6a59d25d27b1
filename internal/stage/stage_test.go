package stage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remapd/internal/keymap"
	"remapd/internal/keys"
)

// Test helpers

func down(k keys.Key) keys.KeyEvent { return keys.KeyEvent{Key: k, State: keys.Down} }
func up(k keys.Key) keys.KeyEvent   { return keys.KeyEvent{Key: k, State: keys.Up} }

func timeoutElem(d time.Duration) keys.KeyEvent {
	return keys.KeyEvent{Key: keys.KeyTimeout, State: keys.Down, Timeout: d}
}

func mapping(in, out keys.KeySequence) keymap.Mapping {
	return keymap.Mapping{Input: in, Output: out, Command: -1}
}

func newConfig(ctxs ...keymap.Context) *keymap.Config {
	return &keymap.Config{Contexts: ctxs, Logical: keys.NewLogicalKeys()}
}

func singleContext(mappings ...keymap.Mapping) *keymap.Config {
	return newConfig(keymap.Context{Mappings: mappings})
}

// feed runs a trace through the stage and returns the concatenated output.
func feed(s *Stage, events ...keys.KeyEvent) []keys.KeyEvent {
	var all []keys.KeyEvent
	for _, e := range events {
		out := s.Update(e, 0)
		all = append(all, out...)
		s.ReuseBuffer(out)
	}
	return all
}

func TestSimpleRemap(t *testing.T) {
	// A -> B
	s := New(singleContext(
		mapping(keys.KeySequence{down(keys.A)}, keys.KeySequence{down(keys.B)}),
	))

	out := feed(s, down(keys.A), up(keys.A))
	require.Equal(t, []keys.KeyEvent{down(keys.B), up(keys.B)}, out)
}

func TestSequenceMapping(t *testing.T) {
	// A A-up B -> C
	s := New(singleContext(
		mapping(
			keys.KeySequence{down(keys.A), up(keys.A), down(keys.B)},
			keys.KeySequence{down(keys.C)},
		),
	))

	// nothing leaks out before the sequence resolves
	out := feed(s, down(keys.A), up(keys.A))
	assert.Empty(t, out)

	out = feed(s, down(keys.B))
	assert.Equal(t, []keys.KeyEvent{down(keys.C)}, out)

	out = feed(s, up(keys.B))
	assert.Equal(t, []keys.KeyEvent{up(keys.C)}, out)
}

func TestSequenceAbortFlushesInOrder(t *testing.T) {
	// A A-up B -> C, but a third key disproves the sequence
	s := New(singleContext(
		mapping(
			keys.KeySequence{down(keys.A), up(keys.A), down(keys.B)},
			keys.KeySequence{down(keys.C)},
		),
	))

	out := feed(s, down(keys.A), up(keys.A), down(keys.D))
	assert.Equal(t, []keys.KeyEvent{down(keys.A), up(keys.A), down(keys.D)}, out)
}

func TestGreedyLongestMatch(t *testing.T) {
	// A -> X and A B -> Y
	cfg := singleContext(
		mapping(keys.KeySequence{down(keys.A)}, keys.KeySequence{down(keys.X)}),
		mapping(
			keys.KeySequence{down(keys.A), up(keys.A), down(keys.B)},
			keys.KeySequence{down(keys.Y)},
		),
	)

	s := New(cfg)
	out := feed(s, down(keys.A), up(keys.A), down(keys.B), up(keys.B))
	assert.Equal(t, []keys.KeyEvent{down(keys.Y), up(keys.Y)}, out,
		"longer pattern wins while it is still viable")

	s = New(cfg)
	out = feed(s, down(keys.A), up(keys.A), down(keys.C))
	assert.Equal(t, []keys.KeyEvent{down(keys.X), up(keys.X), down(keys.C)}, out,
		"shorter match fires once the longer pattern is disproved")
}

func TestContextFallthrough(t *testing.T) {
	// context 0 (editor, fallthrough) maps A->B, context 1 maps A->C
	cfg := newConfig(
		keymap.Context{
			Fallthrough: true,
			Mappings: []keymap.Mapping{
				mapping(keys.KeySequence{down(keys.A)}, keys.KeySequence{down(keys.B)}),
			},
		},
		keymap.Context{
			Mappings: []keymap.Mapping{
				mapping(keys.KeySequence{down(keys.A)}, keys.KeySequence{down(keys.C)}),
			},
		},
	)

	s := New(cfg)
	s.SetActiveContexts([]int{0, 1})
	out := feed(s, down(keys.A), up(keys.A))
	assert.Equal(t, []keys.KeyEvent{down(keys.B), up(keys.B)}, out)

	s = New(cfg)
	s.SetActiveContexts([]int{1})
	out = feed(s, down(keys.A), up(keys.A))
	assert.Equal(t, []keys.KeyEvent{down(keys.C), up(keys.C)}, out)
}

func TestNonFallthroughStopsSearch(t *testing.T) {
	// context 0 matches its filter but maps nothing for B; context 1 would
	s := New(newConfig(
		keymap.Context{
			Mappings: []keymap.Mapping{
				mapping(keys.KeySequence{down(keys.A)}, keys.KeySequence{down(keys.X)}),
			},
		},
		keymap.Context{
			Mappings: []keymap.Mapping{
				mapping(keys.KeySequence{down(keys.B)}, keys.KeySequence{down(keys.Y)}),
			},
		},
	))

	out := feed(s, down(keys.B), up(keys.B))
	assert.Equal(t, []keys.KeyEvent{down(keys.B), up(keys.B)}, out,
		"second context must not be searched past a non-fallthrough block")
}

func TestTimeoutPattern(t *testing.T) {
	// A timeout(300ms) -> X
	cfg := singleContext(
		mapping(
			keys.KeySequence{down(keys.A), timeoutElem(300 * time.Millisecond)},
			keys.KeySequence{down(keys.X)},
		),
	)

	s := New(cfg)
	out := feed(s, down(keys.A))
	require.Len(t, out, 1)
	assert.Equal(t, keys.KeyInputTimeout, out[0].Key)
	assert.Equal(t, 300*time.Millisecond, out[0].Timeout)

	// quiet period elapsed: the driver re-delivers the timeout
	out = feed(s, keys.MakeInputTimeoutEvent(300*time.Millisecond))
	assert.Equal(t, []keys.KeyEvent{down(keys.X)}, out)

	out = feed(s, up(keys.A))
	assert.Equal(t, []keys.KeyEvent{up(keys.X)}, out)
}

func TestTimeoutCancelledByEarlyInput(t *testing.T) {
	cfg := singleContext(
		mapping(
			keys.KeySequence{down(keys.A), timeoutElem(300 * time.Millisecond)},
			keys.KeySequence{down(keys.X)},
		),
	)

	s := New(cfg)
	out := feed(s, down(keys.A))
	require.Len(t, out, 1)
	require.Equal(t, keys.KeyInputTimeout, out[0].Key)

	// B arrives at 200ms: the driver first re-delivers the elapsed time,
	// then the new key; A flushes as passthrough
	out = feed(s, keys.MakeInputTimeoutEvent(200*time.Millisecond))
	assert.Equal(t, []keys.KeyEvent{down(keys.A)}, out)

	out = feed(s, down(keys.B))
	assert.Equal(t, []keys.KeyEvent{down(keys.B)}, out)

	out = feed(s, up(keys.A), up(keys.B))
	assert.Equal(t, []keys.KeyEvent{up(keys.A), up(keys.B)}, out)
}

func TestVirtualKeyToggle(t *testing.T) {
	v := keys.VirtualKey(0)
	// F1 -> @virtual0; a virtual0-gated context maps A->B
	cfg := newConfig(
		keymap.Context{
			Fallthrough: true,
			Modifier:    []keymap.ModifierReq{{Key: v}},
			Mappings: []keymap.Mapping{
				mapping(keys.KeySequence{down(keys.A)}, keys.KeySequence{down(keys.B)}),
			},
		},
		keymap.Context{
			Mappings: []keymap.Mapping{
				mapping(keys.KeySequence{down(keys.F1)}, keys.KeySequence{down(v)}),
			},
		},
	)

	s := New(cfg)

	out := feed(s, down(keys.F1))
	require.Equal(t, []keys.KeyEvent{down(v)}, out, "virtual Down goes to the caller")

	// the driver toggles and re-injects the edge
	out = s.Update(down(v), AnyDevice)
	assert.Empty(t, out, "virtual keys never reach the virtual device")
	s.ReuseBuffer(out)

	out = feed(s, up(keys.F1))
	assert.Empty(t, out)

	out = feed(s, down(keys.A), up(keys.A))
	assert.Equal(t, []keys.KeyEvent{down(keys.B), up(keys.B)}, out,
		"virtual toggle activates the gated context")

	// toggle off again
	out = feed(s, down(keys.F1))
	require.Equal(t, []keys.KeyEvent{down(v)}, out)
	s.ReuseBuffer(s.Update(up(v), AnyDevice))
	feed(s, up(keys.F1))

	out = feed(s, down(keys.A), up(keys.A))
	assert.Equal(t, []keys.KeyEvent{down(keys.A), up(keys.A)}, out)
}

func TestForwardedModifierLiftedAroundMatch(t *testing.T) {
	// Shift was forwarded before its context became active; the match then
	// lifts it, emits the output, and presses it again
	cfg := newConfig(
		keymap.Context{
			Mappings: []keymap.Mapping{
				mapping(
					keys.KeySequence{down(keys.ShiftLeft), down(keys.Q)},
					keys.KeySequence{down(keys.B)},
				),
			},
		},
	)

	s := New(cfg)
	s.SetActiveContexts([]int{})

	out := feed(s, down(keys.ShiftLeft))
	require.Equal(t, []keys.KeyEvent{down(keys.ShiftLeft)}, out, "no active context: plain passthrough")

	s.SetActiveContexts([]int{0})

	out = feed(s, down(keys.Q))
	require.Equal(t, []keys.KeyEvent{
		{Key: keys.ShiftLeft, State: keys.UpAsync},
		down(keys.B),
		down(keys.ShiftLeft),
	}, out)

	out = feed(s, up(keys.Q))
	assert.Equal(t, []keys.KeyEvent{up(keys.B)}, out)

	out = feed(s, up(keys.ShiftLeft))
	assert.Equal(t, []keys.KeyEvent{up(keys.ShiftLeft)}, out)
}

func TestLogicalKeyBindsSide(t *testing.T) {
	cfg := newConfig(keymap.Context{})
	shift, ok := cfg.Logical.Lookup("Shift")
	require.True(t, ok)
	cfg.Contexts[0].Mappings = []keymap.Mapping{
		mapping(
			keys.KeySequence{down(shift), down(keys.A)},
			keys.KeySequence{down(shift), down(keys.X), up(keys.X), up(shift)},
		),
	}

	s := New(cfg)
	out := feed(s, down(keys.ShiftRight), down(keys.A))
	assert.Equal(t, []keys.KeyEvent{
		down(keys.ShiftRight), down(keys.X), up(keys.X), up(keys.ShiftRight),
	}, out, "output resolves the logical key to the side that matched")
}

func TestExitSequence(t *testing.T) {
	cfg := singleContext(
		mapping(keys.KeySequence{down(keys.A)}, keys.KeySequence{down(keys.B)}),
	)
	cfg.ExitSequence = keys.KeySequence{down(keys.Escape)}

	s := New(cfg)
	require.False(t, s.ShouldExit())

	out := feed(s, down(keys.Escape))
	assert.Empty(t, out)
	assert.True(t, s.ShouldExit())

	// latched: further updates are no-ops
	out = feed(s, down(keys.A), up(keys.A))
	assert.Empty(t, out)
	assert.True(t, s.ShouldExit())
}

func TestRedundantDownSuppressed(t *testing.T) {
	// A -> B and C -> B held together only press B once
	s := New(singleContext(
		mapping(keys.KeySequence{down(keys.A)}, keys.KeySequence{down(keys.B)}),
		mapping(keys.KeySequence{down(keys.C)}, keys.KeySequence{down(keys.B)}),
	))

	out := feed(s, down(keys.A), down(keys.C))
	assert.Equal(t, []keys.KeyEvent{down(keys.B)}, out)

	out = feed(s, up(keys.C))
	assert.Empty(t, out, "the suppressed press owes no release")

	out = feed(s, up(keys.A))
	assert.Equal(t, []keys.KeyEvent{up(keys.B)}, out)
}

func TestOrphanUpDropped(t *testing.T) {
	s := New(singleContext(
		mapping(keys.KeySequence{down(keys.A)}, keys.KeySequence{down(keys.B)}),
	))

	out := feed(s, up(keys.C))
	assert.Empty(t, out, "a release without a press is an invariant violation, dropped")
}

func TestDeviceFilter(t *testing.T) {
	devFilter, err := keymap.NewFilter("foo")
	require.NoError(t, err)
	cfg := newConfig(
		keymap.Context{
			Device:      devFilter,
			Fallthrough: true,
			Mappings: []keymap.Mapping{
				mapping(keys.KeySequence{down(keys.A)}, keys.KeySequence{down(keys.B)}),
			},
		},
	)

	s := New(cfg)
	s.EvaluateDeviceFilters([]string{"foo keyboard", "bar keyboard"})

	out := s.Update(down(keys.A), 0)
	assert.Equal(t, []keys.KeyEvent{down(keys.B)}, out)
	s.ReuseBuffer(s.Update(up(keys.A), 0))

	out = s.Update(down(keys.A), 1)
	assert.Equal(t, []keys.KeyEvent{down(keys.A)}, out,
		"events from a non-matching device pass through")
}

func TestCommandResolvedPerContext(t *testing.T) {
	cfg := newConfig(
		keymap.Context{
			Fallthrough: true,
			Mappings: []keymap.Mapping{
				{Input: keys.KeySequence{down(keys.F2)}, Command: 0},
			},
		},
		keymap.Context{
			CommandOutputs: map[int]keys.KeySequence{
				0: {down(keys.X)},
			},
		},
	)
	cfg.CommandNames = []string{"open"}

	s := New(cfg)
	out := feed(s, down(keys.F2))
	assert.Equal(t, []keys.KeyEvent{down(keys.X)}, out)
}

func TestCommandWithoutOutputBecomesAction(t *testing.T) {
	cfg := newConfig(
		keymap.Context{
			Mappings: []keymap.Mapping{
				{Input: keys.KeySequence{down(keys.F2)}, Command: 3},
			},
		},
	)
	cfg.CommandNames = []string{"a", "b", "c", "d"}

	s := New(cfg)
	out := feed(s, down(keys.F2))
	require.Len(t, out, 1)
	assert.Equal(t, keys.ActionKey(3), out[0].Key)
	assert.Equal(t, keys.Down, out[0].State)

	out = feed(s, up(keys.F2))
	assert.Empty(t, out, "action releases carry nothing")
}

func TestTimeoutInOutput(t *testing.T) {
	s := New(singleContext(
		mapping(
			keys.KeySequence{down(keys.A)},
			keys.KeySequence{down(keys.B), timeoutElem(100 * time.Millisecond), up(keys.B)},
		),
	))

	out := feed(s, down(keys.A))
	require.Len(t, out, 3)
	assert.Equal(t, down(keys.B), out[0])
	assert.Equal(t, keys.KeyTimeout, out[1].Key)
	assert.Equal(t, 100*time.Millisecond, out[1].Timeout)
	assert.Equal(t, up(keys.B), out[2])
}

// Property 1: every emitted Down is balanced by an Up or still held.
func TestDownUpBalance(t *testing.T) {
	cfg := singleContext(
		mapping(keys.KeySequence{down(keys.A)}, keys.KeySequence{down(keys.X)}),
		mapping(
			keys.KeySequence{down(keys.A), up(keys.A), down(keys.B)},
			keys.KeySequence{down(keys.Y)},
		),
	)
	s := New(cfg)

	trace := []keys.KeyEvent{
		down(keys.A), up(keys.A), down(keys.B), up(keys.B),
		down(keys.C), down(keys.A), up(keys.C), up(keys.A),
		down(keys.A), up(keys.A), down(keys.D), up(keys.D),
	}
	out := feed(s, trace...)

	balance := make(map[keys.Key]int)
	for _, e := range out {
		switch e.State {
		case keys.Down:
			balance[e.Key]++
		case keys.Up, keys.UpAsync:
			balance[e.Key]--
		}
	}
	for k, n := range balance {
		assert.GreaterOrEqual(t, n, 0, "key %s released more often than pressed", keys.KeyName(k))
	}
	assert.False(t, s.IsOutputDown(), "all keys released at end of trace")
	for k, n := range balance {
		assert.Zero(t, n, "key %s still accounted as held", keys.KeyName(k))
	}
}

// Property 2: keys that appear in no pattern pass through in order.
func TestPurePassthroughPreservesOrder(t *testing.T) {
	s := New(singleContext(
		mapping(keys.KeySequence{down(keys.A)}, keys.KeySequence{down(keys.X)}),
	))

	trace := []keys.KeyEvent{
		down(keys.H), down(keys.E), up(keys.H), up(keys.E),
		down(keys.L), up(keys.L), down(keys.O), up(keys.O),
	}
	out := feed(s, trace...)
	assert.Equal(t, trace, out)
}

// Property 4: SetActiveContexts is idempotent.
func TestSetActiveContextsIdempotent(t *testing.T) {
	cfg := newConfig(
		keymap.Context{
			Fallthrough: true,
			Mappings: []keymap.Mapping{
				mapping(keys.KeySequence{down(keys.A)}, keys.KeySequence{down(keys.B)}),
			},
		},
		keymap.Context{
			Mappings: []keymap.Mapping{
				mapping(keys.KeySequence{down(keys.A)}, keys.KeySequence{down(keys.C)}),
			},
		},
	)

	s1 := New(cfg)
	s1.SetActiveContexts([]int{0, 1})
	out1 := feed(s1, down(keys.A), up(keys.A))

	s2 := New(cfg)
	s2.SetActiveContexts([]int{0, 1})
	s2.SetActiveContexts([]int{0, 1})
	out2 := feed(s2, down(keys.A), up(keys.A))

	assert.Equal(t, out1, out2)
}

// Property 5: ReuseBuffer never changes observable output.
func TestReuseBufferIsSemanticallyTransparent(t *testing.T) {
	cfg := singleContext(
		mapping(keys.KeySequence{down(keys.A)}, keys.KeySequence{down(keys.X)}),
		mapping(
			keys.KeySequence{down(keys.A), up(keys.A), down(keys.B)},
			keys.KeySequence{down(keys.Y)},
		),
	)
	trace := []keys.KeyEvent{
		down(keys.A), up(keys.A), down(keys.B), up(keys.B),
		down(keys.A), up(keys.A), down(keys.C), up(keys.C),
	}

	recycling := New(cfg)
	var withReuse []keys.KeyEvent
	for _, e := range trace {
		out := recycling.Update(e, 0)
		withReuse = append(withReuse, out...)
		recycling.ReuseBuffer(out)
	}

	plain := New(cfg)
	var withoutReuse []keys.KeyEvent
	for _, e := range trace {
		withoutReuse = append(withoutReuse, plain.Update(e, 0)...)
	}

	assert.Equal(t, withoutReuse, withReuse)
}

func TestHasMouseMappings(t *testing.T) {
	withMouse := singleContext(
		mapping(keys.KeySequence{down(keys.ButtonLeft)}, keys.KeySequence{down(keys.A)}),
	)
	assert.True(t, New(withMouse).HasMouseMappings())

	withoutMouse := singleContext(
		mapping(keys.KeySequence{down(keys.A)}, keys.KeySequence{down(keys.B)}),
	)
	assert.False(t, New(withoutMouse).HasMouseMappings())
}

func TestIsOutputDown(t *testing.T) {
	s := New(singleContext(
		mapping(keys.KeySequence{down(keys.A)}, keys.KeySequence{down(keys.B)}),
	))

	assert.False(t, s.IsOutputDown())
	feed(s, down(keys.A))
	assert.True(t, s.IsOutputDown())
	feed(s, up(keys.A))
	assert.False(t, s.IsOutputDown())
}
