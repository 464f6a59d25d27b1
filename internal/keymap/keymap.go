// Package keymap holds the compiled keymap configuration the front-end
// sends over the socket: contexts with focus, device and modifier filters,
// input to output mappings, logical-key definitions, named command blocks
// and the exit sequence. The text format lives in the front-end; the
// back-end consumes the compiled JSON form.
package keymap

import (
	"fmt"
	"time"

	"remapd/internal/keys"
)

// ModifierReq is one element of a context's modifier filter: the key must
// be held (or, negated, must not be held) for the context to be active.
type ModifierReq struct {
	Key keys.Key
	Not bool
}

// Mapping binds an input pattern either to a direct output sequence or to
// a command block resolved per context at match time.
type Mapping struct {
	Input  keys.KeySequence
	Output keys.KeySequence
	// Command is the command index when the mapping refers to a named
	// block, -1 otherwise.
	Command int
}

// Context is one ordered block of mappings gated by filters.
type Context struct {
	Class    Filter
	Title    Filter
	Path     Filter
	Device   Filter
	Modifier []ModifierReq
	// Fallthrough lets later contexts also attempt matching when this one
	// produces no match.
	Fallthrough bool
	Mappings    []Mapping
	// CommandOutputs resolves command indices to outputs inside this
	// context.
	CommandOutputs map[int]keys.KeySequence
}

// Config is the compiled keymap.
type Config struct {
	Contexts     []Context
	CommandNames []string
	Logical      *keys.LogicalKeys
	ExitSequence keys.KeySequence
}

// HasMouseMappings reports whether any mapping input references a pointer
// button. The device layer grabs pointer devices only in that case.
func (c *Config) HasMouseMappings() bool {
	for _, ctx := range c.Contexts {
		for _, m := range ctx.Mappings {
			for _, e := range m.Input {
				if keys.IsPointerButton(e.Key) {
					return true
				}
				if left, right, ok := c.Logical.Sides(e.Key); ok {
					if keys.IsPointerButton(left) || keys.IsPointerButton(right) {
						return true
					}
				}
			}
		}
	}
	return false
}

// document is the JSON wire form of a compiled keymap.
type document struct {
	LogicalKeys []logicalKeyDoc `json:"logical_keys,omitempty"`
	Commands    []string        `json:"commands,omitempty"`
	Contexts    []contextDoc    `json:"contexts"`
	Exit        []eventDoc      `json:"exit_sequence,omitempty"`
}

type logicalKeyDoc struct {
	Name  string `json:"name"`
	Left  string `json:"left"`
	Right string `json:"right"`
}

type contextDoc struct {
	Class       string       `json:"class,omitempty"`
	Title       string       `json:"title,omitempty"`
	Path        string       `json:"path,omitempty"`
	Device      string       `json:"device,omitempty"`
	Modifier    []string     `json:"modifier,omitempty"`
	Fallthrough bool         `json:"fallthrough,omitempty"`
	Mappings    []mappingDoc `json:"mappings,omitempty"`
}

type mappingDoc struct {
	Input   []eventDoc `json:"input,omitempty"`
	Output  []eventDoc `json:"output,omitempty"`
	Command string     `json:"command,omitempty"`
}

type eventDoc struct {
	Key       string `json:"key"`
	State     string `json:"state,omitempty"`
	TimeoutMs int    `json:"timeout_ms,omitempty"`
}

// compileError carries the position of the offending element.
type compileError struct {
	where string
	err   error
}

func (e *compileError) Error() string { return fmt.Sprintf("keymap: %s: %v", e.where, e.err) }
func (e *compileError) Unwrap() error { return e.err }

func errAt(where string, format string, args ...any) error {
	return &compileError{where: where, err: fmt.Errorf(format, args...)}
}

// compile turns the wire document into a Config.
func compile(doc *document) (*Config, error) {
	cfg := &Config{
		Logical:      keys.NewLogicalKeys(),
		CommandNames: doc.Commands,
	}

	for i, lk := range doc.LogicalKeys {
		where := fmt.Sprintf("logical_keys[%d]", i)
		left, err := resolveKey(cfg, lk.Left)
		if err != nil {
			return nil, errAt(where, "left: %v", err)
		}
		right, err := resolveKey(cfg, lk.Right)
		if err != nil {
			return nil, errAt(where, "right: %v", err)
		}
		if _, err := cfg.Logical.Register(lk.Name, left, right); err != nil {
			return nil, errAt(where, "%v", err)
		}
	}

	commandIndex := make(map[string]int, len(doc.Commands))
	for i, name := range doc.Commands {
		if _, dup := commandIndex[name]; dup {
			return nil, errAt(fmt.Sprintf("commands[%d]", i), "duplicate command %q", name)
		}
		commandIndex[name] = i
	}

	for ci, cd := range doc.Contexts {
		where := fmt.Sprintf("contexts[%d]", ci)
		ctx := Context{
			Fallthrough:    cd.Fallthrough,
			CommandOutputs: make(map[int]keys.KeySequence),
		}
		var err error
		if ctx.Class, err = NewFilter(cd.Class); err != nil {
			return nil, errAt(where, "class: %v", err)
		}
		if ctx.Title, err = NewFilter(cd.Title); err != nil {
			return nil, errAt(where, "title: %v", err)
		}
		if ctx.Path, err = NewFilter(cd.Path); err != nil {
			return nil, errAt(where, "path: %v", err)
		}
		if ctx.Device, err = NewFilter(cd.Device); err != nil {
			return nil, errAt(where, "device: %v", err)
		}
		for _, mod := range cd.Modifier {
			req := ModifierReq{}
			name := mod
			if len(name) > 0 && name[0] == '!' {
				req.Not = true
				name = name[1:]
			}
			if req.Key, err = resolveKey(cfg, name); err != nil {
				return nil, errAt(where, "modifier: %v", err)
			}
			ctx.Modifier = append(ctx.Modifier, req)
		}

		for mi, md := range cd.Mappings {
			mwhere := fmt.Sprintf("%s.mappings[%d]", where, mi)
			switch {
			case len(md.Input) > 0:
				m := Mapping{Command: -1}
				if m.Input, err = compileSequence(cfg, md.Input, true); err != nil {
					return nil, errAt(mwhere, "input: %v", err)
				}
				if md.Command != "" {
					idx, ok := commandIndex[md.Command]
					if !ok {
						return nil, errAt(mwhere, "unknown command %q", md.Command)
					}
					m.Command = idx
				} else {
					if m.Output, err = compileSequence(cfg, md.Output, false); err != nil {
						return nil, errAt(mwhere, "output: %v", err)
					}
				}
				ctx.Mappings = append(ctx.Mappings, m)
			case md.Command != "":
				// command block output, resolved per context at match time
				idx, ok := commandIndex[md.Command]
				if !ok {
					return nil, errAt(mwhere, "unknown command %q", md.Command)
				}
				out, err := compileSequence(cfg, md.Output, false)
				if err != nil {
					return nil, errAt(mwhere, "output: %v", err)
				}
				ctx.CommandOutputs[idx] = out
			default:
				return nil, errAt(mwhere, "mapping needs an input or a command")
			}
		}
		cfg.Contexts = append(cfg.Contexts, ctx)
	}

	var err error
	if cfg.ExitSequence, err = compileSequence(cfg, doc.Exit, true); err != nil {
		return nil, errAt("exit_sequence", "%v", err)
	}
	return cfg, nil
}

// resolveKey resolves a key name against the physical tables and the
// logical registry built so far.
func resolveKey(cfg *Config, name string) (keys.Key, error) {
	if k, ok := cfg.Logical.Lookup(name); ok {
		return k, nil
	}
	if k, ok := keys.KeyFromName(name); ok {
		return k, nil
	}
	return keys.KeyNone, fmt.Errorf("unknown key %q", name)
}

// compileSequence turns event documents into a KeySequence. Pattern
// sequences accept the predicate states; outputs only down, up and not.
func compileSequence(cfg *Config, docs []eventDoc, pattern bool) (keys.KeySequence, error) {
	var seq keys.KeySequence
	for i, ed := range docs {
		k, err := resolveKey(cfg, ed.Key)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %v", i, err)
		}
		e := keys.KeyEvent{Key: k}
		switch ed.State {
		case "", "down":
			e.State = keys.Down
		case "up":
			e.State = keys.Up
		case "not":
			e.State = keys.Not
		case "down_matched":
			if !pattern {
				return nil, fmt.Errorf("[%d]: state %q only valid in patterns", i, ed.State)
			}
			e.State = keys.DownMatched
		default:
			return nil, fmt.Errorf("[%d]: unknown state %q", i, ed.State)
		}
		if k == keys.KeyTimeout {
			if ed.TimeoutMs <= 0 {
				return nil, fmt.Errorf("[%d]: timeout needs a positive timeout_ms", i)
			}
			e.Timeout = time.Duration(ed.TimeoutMs) * time.Millisecond
		} else if ed.TimeoutMs != 0 {
			return nil, fmt.Errorf("[%d]: timeout_ms only valid on Timeout", i)
		}
		seq = append(seq, e)
	}
	return seq, nil
}
