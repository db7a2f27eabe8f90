// Package stream turns a model's generation events into narrative text and a
// set of complete tool calls.
package stream

import (
	"fmt"

	"github.com/effective-security/xlog"
)

var logger = xlog.NewPackageLogger("github.com/dotcommander/relay/internal", "stream")

// Kind identifies what an Event carries.
type Kind int

// Event kinds.
const (
	KindText Kind = iota
	KindToolCallDelta
	KindToolCall
	KindWarning
	KindError
	KindFinish
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindToolCallDelta:
		return "tool-call-delta"
	case KindToolCall:
		return "tool-call"
	case KindWarning:
		return "warning"
	case KindError:
		return "error"
	case KindFinish:
		return "finish"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Segment tells answer text apart from reasoning text.
type Segment int

// Text segments.
const (
	SegmentAnswer Segment = iota
	SegmentThinking
)

// Event is one item of a generation stream.
//
// Index addresses a tool call within the current pass. Args holds a substring
// of the call's JSON arguments for KindToolCallDelta, and the whole document
// for KindToolCall.
type Event struct {
	Kind    Kind
	Segment Segment
	Text    string
	Index   int
	ID      string
	Name    string
	Args    string
	Err     error
}

// Text returns an answer text event.
func Text(s string) Event { return Event{Kind: KindText, Text: s} }

// Thinking returns a reasoning text event.
func Thinking(s string) Event { return Event{Kind: KindText, Segment: SegmentThinking, Text: s} }

// Delta returns a partial tool call event.
func Delta(index int, id, name, args string) Event {
	return Event{Kind: KindToolCallDelta, Index: index, ID: id, Name: name, Args: args}
}

// Call returns a whole tool call event.
func Call(index int, id, name, args string) Event {
	return Event{Kind: KindToolCall, Index: index, ID: id, Name: name, Args: args}
}

// Warning returns a provider warning event.
func Warning(s string) Event { return Event{Kind: KindWarning, Text: s} }

// Failure returns an error event.
func Failure(err error) Event { return Event{Kind: KindError, Err: err} }

// Finish returns an end-of-stream event.
func Finish(reason string) Event { return Event{Kind: KindFinish, Text: reason} }
