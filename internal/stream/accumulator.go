package stream

import (
	"context"
	"encoding/json"
	"iter"
	"slices"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/google/uuid"

	"github.com/dotcommander/relay/internal/metricskey"
)

// ErrEnded is returned when events are added after End.
var ErrEnded = errors.New("stream: accumulator already ended")

// Reasons a streamed call is dropped.
const (
	DropBadArgs  = "invalid-arguments"
	DropNameless = "missing-name"
	DropNoArgs   = "missing-arguments"
)

// ToolCall is a complete call reassembled from the stream.
type ToolCall struct {
	Index   int
	ID      string
	Name    string
	Args    map[string]any
	RawArgs string
}

// Dropped records a call that could not be used.
type Dropped struct {
	Index   int
	Name    string
	RawArgs string
	Reason  string
	Err     error
}

// Result is what one generation pass produced.
type Result struct {
	Text     string
	Calls    []ToolCall
	Dropped  []Dropped
	Warnings []string
	Finish   string
	Canceled bool
}

type fragment struct {
	id   string
	name string
	args strings.Builder
}

// Accumulator collects the events of a single generation pass.
// It is not safe for concurrent use.
type Accumulator struct {
	onText func(Segment, string)

	text      strings.Builder
	fragments map[int]*fragment
	whole     map[int]ToolCall
	warnings  []string
	finish    string
	ended     bool
}

// NewAccumulator starts a pass whose text buffer begins with initial.
// onText, when set, receives every text event in arrival order.
func NewAccumulator(initial string, onText func(Segment, string)) *Accumulator {
	a := &Accumulator{
		onText:    onText,
		fragments: map[int]*fragment{},
		whole:     map[int]ToolCall{},
	}
	a.text.WriteString(initial)
	return a
}

// Text returns the narrative text buffered so far.
func (a *Accumulator) Text() string {
	return a.text.String()
}

// Add consumes one event. An error event is returned as the error.
func (a *Accumulator) Add(ev Event) error {
	if a.ended {
		return ErrEnded
	}
	switch ev.Kind {
	case KindText:
		if ev.Text == "" {
			return nil
		}
		a.text.WriteString(ev.Text)
		if a.onText != nil {
			a.onText(ev.Segment, ev.Text)
		}
	case KindToolCallDelta:
		f, ok := a.fragments[ev.Index]
		if !ok {
			f = &fragment{}
			a.fragments[ev.Index] = f
		}
		if f.id == "" && ev.ID != "" {
			f.id = ev.ID
		}
		if f.name == "" && ev.Name != "" {
			f.name = ev.Name
		}
		f.args.WriteString(ev.Args)
	case KindToolCall:
		if len(a.fragments) > 0 {
			logger.KV(xlog.DEBUG, "reason", "whole_call_after_fragments", "index", ev.Index, "tool", ev.Name)
			return nil
		}
		if _, seen := a.whole[ev.Index]; seen {
			return nil
		}
		a.whole[ev.Index] = ToolCall{Index: ev.Index, ID: ev.ID, Name: ev.Name, RawArgs: ev.Args}
	case KindWarning:
		if ev.Text != "" && !slices.Contains(a.warnings, ev.Text) {
			a.warnings = append(a.warnings, ev.Text)
		}
	case KindFinish:
		a.finish = ev.Text
	case KindError:
		if ev.Err == nil {
			return errors.New("stream: provider reported an error")
		}
		return ev.Err
	}
	return nil
}

// End closes the pass and resolves the accumulated calls, ordered by index.
// Calls whose arguments are not a JSON object are dropped, as are fragments
// that carry arguments but never received a name and named fragments whose
// arguments never arrived.
func (a *Accumulator) End() Result {
	res := a.partial()
	if a.ended {
		return res
	}
	a.ended = true

	candidates := map[int]ToolCall{}
	for idx, call := range a.whole {
		if _, fragmented := a.fragments[idx]; fragmented {
			continue
		}
		candidates[idx] = call
	}
	for idx, f := range a.fragments {
		args := f.args.String()
		if f.name == "" {
			if strings.TrimSpace(args) != "" {
				res.Dropped = append(res.Dropped, a.drop(Dropped{
					Index:   idx,
					RawArgs: args,
					Reason:  DropNameless,
					Err:     errors.New("provider streamed tool arguments without a tool name"),
				}))
			}
			continue
		}
		if strings.TrimSpace(args) == "" {
			// the stream ended between the name and the arguments
			res.Dropped = append(res.Dropped, a.drop(Dropped{
				Index:  idx,
				Name:   f.name,
				Reason: DropNoArgs,
				Err:    errors.Newf("no arguments streamed for %s", f.name),
			}))
			continue
		}
		candidates[idx] = ToolCall{Index: idx, ID: f.id, Name: f.name, RawArgs: args}
	}

	indices := make([]int, 0, len(candidates))
	for idx := range candidates {
		indices = append(indices, idx)
	}
	slices.Sort(indices)

	for _, idx := range indices {
		call := candidates[idx]
		args, err := parseArgs(call.RawArgs)
		if err != nil {
			res.Dropped = append(res.Dropped, a.drop(Dropped{
				Index:   idx,
				Name:    call.Name,
				RawArgs: call.RawArgs,
				Reason:  DropBadArgs,
				Err:     err,
			}))
			continue
		}
		call.Args = args
		if call.ID == "" {
			call.ID = "call_" + uuid.NewString()
		}
		res.Calls = append(res.Calls, call)
	}
	slices.SortFunc(res.Dropped, func(x, y Dropped) int { return x.Index - y.Index })
	return res
}

// partial returns the text-only view of the pass, without resolving calls.
func (a *Accumulator) partial() Result {
	return Result{
		Text:     a.text.String(),
		Warnings: slices.Clone(a.warnings),
		Finish:   a.finish,
	}
}

func (a *Accumulator) drop(d Dropped) Dropped {
	metricskey.StatsStreamCallsDropped.IncrCounter(1, d.Reason)
	level := xlog.WARNING
	if d.Reason == DropNameless {
		// a provider protocol violation rather than a model mistake
		level = xlog.ERROR
	}
	logger.KV(level,
		"reason", d.Reason,
		"index", d.Index,
		"tool", d.Name,
		"args_len", len(d.RawArgs),
		"err", d.Err,
	)
	return d
}

// parseArgs decodes a call's argument document. Blank arguments of a whole
// call are an empty object, which is how providers encode calls to tools
// without parameters.
func parseArgs(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, errors.Wrap(err, "parse tool arguments")
	}
	if args == nil {
		return nil, errors.New("tool arguments must be a JSON object")
	}
	return args, nil
}

// Drive feeds events into acc until the sequence ends, ctx is done, or an
// error event arrives.
//
// Cancellation is checked once per event. A canceled pass returns the text
// buffered so far with Canceled set and no calls. An error event stops the
// pass and is returned together with the buffered text.
func Drive(ctx context.Context, events iter.Seq[Event], acc *Accumulator) (Result, error) {
	for ev := range events {
		if ctx.Err() != nil {
			return canceled(acc), nil
		}
		if err := acc.Add(ev); err != nil {
			if ctx.Err() != nil && errors.Is(err, context.Canceled) {
				return canceled(acc), nil
			}
			acc.ended = true
			return acc.partial(), err
		}
	}
	if ctx.Err() != nil {
		return canceled(acc), nil
	}
	return acc.End(), nil
}

func canceled(acc *Accumulator) Result {
	acc.ended = true
	res := acc.partial()
	res.Canceled = true
	return res
}
