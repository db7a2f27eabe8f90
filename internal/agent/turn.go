package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"slices"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"

	"github.com/dotcommander/relay/internal/errs"
	"github.com/dotcommander/relay/internal/mcp"
	"github.com/dotcommander/relay/internal/metricskey"
	"github.com/dotcommander/relay/internal/proto"
	"github.com/dotcommander/relay/internal/stream"
)

var logger = xlog.NewPackageLogger("github.com/dotcommander/relay/internal", "agent")

// Generator starts one generation pass.
type Generator interface {
	Stream(ctx context.Context, req proto.Request) (iter.Seq[stream.Event], error)
}

// Toolbox is the part of the MCP service a turn uses.
type Toolbox interface {
	Resolve(id string) (mcp.Tool, error)
	IsToolEnabled(id string) bool
	ListEnabledTools() []mcp.Tool
	ExecuteTool(ctx context.Context, id string, args map[string]any) (*mcp.CallResult, error)
}

// RetryFunc decides how a failed first pass is retried.
type RetryFunc func(err error, prompt string) StreamErrorAction

// TurnInput describes one user turn.
type TurnInput struct {
	// Prompt is the user's text, mentions included.
	Prompt string
	// History is the conversation before this turn.
	History []proto.Message
	// Request carries model and sampling settings. Messages and Tools are
	// filled in by the turn.
	Request proto.Request
	// BindAll offers every enabled tool when the prompt mentions none.
	BindAll bool

	OnText func(stream.Segment, string)
	OnTool func(ToolExecution)
}

// ToolExecution is the outcome of one tool call made during a turn.
type ToolExecution struct {
	Call     stream.ToolCall
	Output   string
	IsError  bool
	Err      error
	Duration time.Duration
}

// TurnResult is what a turn produced.
type TurnResult struct {
	// Text is the visible answer: pre-tool narration followed by the
	// continuation. A failed turn ends with a readable error line.
	Text        string
	ToolResults []ToolExecution
	// Messages is the working conversation of the last generation pass
	// followed by the final assistant message.
	Messages []proto.Message
	// Dropped lists streamed calls that could not be used.
	Dropped  []stream.Dropped
	Warnings []string
	Canceled bool
	Err      error

	history []proto.Message
	prompt  string
}

// MemoryText is the assistant content to persist: the answer preceded by a
// bracketed record of the tool results it was based on.
func (r TurnResult) MemoryText() string {
	if len(r.ToolResults) == 0 {
		return r.Text
	}
	var sb strings.Builder
	sb.WriteString("[tool results]\n")
	for _, ex := range r.ToolResults {
		status := "result"
		if ex.IsError {
			status = "error"
		}
		fmt.Fprintf(&sb, "- %s (%s) %s: %s\n", ex.Call.Name, ex.Call.ID, status, oneLine(ex.Output))
	}
	sb.WriteString("[/tool results]\n\n")
	sb.WriteString(r.Text)
	return sb.String()
}

// Memory returns the conversation to persist after this turn.
func (r TurnResult) Memory() []proto.Message {
	out := slices.Clone(r.history)
	out = append(out,
		proto.Message{Role: proto.RoleUser, Content: r.prompt},
		proto.Message{Role: proto.RoleAssistant, Content: r.MemoryText()},
	)
	return out
}

const maxMemoryOutput = 2000

func oneLine(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > maxMemoryOutput {
		s = s[:maxMemoryOutput] + "…"
	}
	return s
}

// Orchestrator runs turns: one generation pass with the mentioned tools
// bound, the resulting tool calls, and exactly one continuation pass.
type Orchestrator struct {
	gen        Generator
	tools      Toolbox
	retry      RetryFunc
	maxRetries int
	backoff    time.Duration
}

// NewOrchestrator creates an orchestrator. A nil toolbox disables tools.
func NewOrchestrator(gen Generator, tools Toolbox) *Orchestrator {
	return &Orchestrator{gen: gen, tools: tools, backoff: 500 * time.Millisecond}
}

// WithRetry retries a failed first pass up to maxRetries times as decided by
// fn. Passes that already produced text are never retried.
func (o *Orchestrator) WithRetry(fn RetryFunc, maxRetries int) *Orchestrator {
	o.retry = fn
	o.maxRetries = maxRetries
	return o
}

// Turn runs one user turn.
//
// Cancelling ctx ends the turn with the text streamed so far and Canceled
// set. Tool calls already running are not aborted, but they are no longer
// awaited. A generation failure is returned and also recorded in the result,
// whose Text then ends with a readable error line.
func (o *Orchestrator) Turn(ctx context.Context, in TurnInput) (TurnResult, error) {
	started := time.Now()
	model := in.Request.Model
	defer metricskey.PerfTurn.MeasureSince(started, model)

	mentions := mcp.ScanMentions(in.Prompt)
	bound := o.bind(mentions, in.BindAll)
	prompt := in.Prompt
	if len(mentions) > 0 {
		prompt = mcp.StripMentions(prompt)
	}

	res := TurnResult{history: slices.Clone(in.History), prompt: prompt}
	messages := append(slices.Clone(in.History), proto.Message{Role: proto.RoleUser, Content: prompt})

	req := in.Request
	req.Messages = messages
	req.Tools = toRequestTools(bound)

	first, err := o.firstPass(ctx, &req, in.OnText)
	res.Warnings = first.Warnings
	res.Dropped = first.Dropped
	if err != nil {
		return o.fail(res, req.Messages, first.Text, err, model)
	}
	if first.Canceled {
		return o.canceled(res, req.Messages, first.Text), nil
	}
	if len(first.Calls) == 0 {
		res.Text = first.Text
		res.Messages = append(req.Messages, proto.Message{Role: proto.RoleAssistant, Content: first.Text})
		metricskey.StatsTurnsSucceeded.IncrCounter(1, model)
		return res, nil
	}

	execs, complete := o.execute(ctx, first.Calls, bound, in.OnTool)
	res.ToolResults = execs
	if !complete {
		return o.canceled(res, req.Messages, first.Text), nil
	}

	followUp := append(slices.Clone(req.Messages), callMessages(first.Text, execs)...)
	cont := in.Request
	cont.Messages = followUp
	cont.Tools = nil
	if req.Model != "" {
		cont.Model = req.Model
	}

	second, err := o.pass(ctx, cont, first.Text, in.OnText)
	res.Warnings = appendNew(res.Warnings, second.Warnings...)
	res.Dropped = append(res.Dropped, second.Dropped...)
	if err != nil {
		return o.fail(res, followUp, second.Text, err, model)
	}
	if second.Canceled {
		return o.canceled(res, followUp, second.Text), nil
	}
	if len(second.Calls) > 0 {
		names := make([]string, 0, len(second.Calls))
		for _, c := range second.Calls {
			names = append(names, c.Name)
		}
		logger.ContextKV(ctx, xlog.WARNING, "reason", "continuation_tool_calls_ignored", "tools", names)
	}

	res.Text = second.Text
	res.Messages = append(followUp, proto.Message{Role: proto.RoleAssistant, Content: second.Text})
	metricskey.StatsTurnsSucceeded.IncrCounter(1, model)
	return res, nil
}

// bind returns the tools offered to the first pass.
func (o *Orchestrator) bind(mentions []string, bindAll bool) []mcp.Tool {
	if o.tools == nil {
		return nil
	}
	if len(mentions) == 0 {
		if bindAll {
			return o.tools.ListEnabledTools()
		}
		return nil
	}
	bound := make([]mcp.Tool, 0, len(mentions))
	for _, id := range mentions {
		if !o.tools.IsToolEnabled(id) {
			logger.KV(xlog.NOTICE, "mention", id, "reason", "disabled")
			continue
		}
		tool, err := o.tools.Resolve(id)
		if err != nil {
			logger.KV(xlog.WARNING, "mention", id, "err", err.Error())
			continue
		}
		bound = append(bound, tool)
	}
	return bound
}

func (o *Orchestrator) firstPass(ctx context.Context, req *proto.Request, onText func(stream.Segment, string)) (stream.Result, error) {
	for attempt := 0; ; attempt++ {
		res, err := o.pass(ctx, *req, "", onText)
		if err == nil || o.retry == nil || res.Text != "" {
			return res, err
		}
		last := len(req.Messages) - 1
		action := o.retry(err, req.Messages[last].Content)
		if !action.Retry || attempt >= o.maxRetries {
			return res, action.Err
		}

		metricskey.StatsTurnsRetried.IncrCounter(1, req.Model)
		logger.ContextKV(ctx, xlog.NOTICE,
			"reason", "retry",
			"attempt", attempt+1,
			"model", req.Model,
			"err", action.Err.ReasonText(),
		)
		if action.ModelOverride != "" {
			req.Model = action.ModelOverride
		}
		if action.Prompt != "" {
			req.Messages = slices.Clone(req.Messages)
			req.Messages[last].Content = action.Prompt
		}

		select {
		case <-ctx.Done():
			return stream.Result{Canceled: true}, nil
		case <-time.After(o.backoff << attempt):
		}
	}
}

func (o *Orchestrator) pass(ctx context.Context, req proto.Request, initial string, onText func(stream.Segment, string)) (stream.Result, error) {
	acc := stream.NewAccumulator(initial, onText)
	events, err := o.gen.Stream(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			res := acc.End()
			res.Calls = nil
			res.Canceled = true
			return res, nil
		}
		return stream.Result{Text: initial}, err
	}
	return stream.Drive(ctx, events, acc)
}

type slot struct {
	index int
	exec  ToolExecution
}

// execute runs calls concurrently and returns their outcomes in call order.
// When ctx is done it stops waiting and reports only the calls that finished.
func (o *Orchestrator) execute(ctx context.Context, calls []stream.ToolCall, bound []mcp.Tool, onTool func(ToolExecution)) ([]ToolExecution, bool) {
	offered := make(map[string]bool, len(bound))
	for _, t := range bound {
		offered[t.ID()] = true
	}

	// calls outlive a cancelled turn; their results are simply not awaited
	callCtx := context.WithoutCancel(ctx)
	done := make(chan slot, len(calls))
	for i, call := range calls {
		go func() {
			done <- slot{index: i, exec: o.call(callCtx, call, offered[call.Name])}
		}()
	}

	results := make([]*ToolExecution, len(calls))
	for range calls {
		select {
		case <-ctx.Done():
			return finished(results), false
		case s := <-done:
			results[s.index] = &s.exec
			if onTool != nil {
				onTool(s.exec)
			}
		}
	}
	return finished(results), true
}

func finished(results []*ToolExecution) []ToolExecution {
	out := make([]ToolExecution, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out
}

func (o *Orchestrator) call(ctx context.Context, call stream.ToolCall, offered bool) (ex ToolExecution) {
	started := time.Now()
	ex.Call = call
	defer func() { ex.Duration = time.Since(started) }()

	if !offered || o.tools == nil {
		ex.Err = errors.Wrapf(mcp.ErrUnknownTool, "%s was not offered in this turn", call.Name)
		ex.IsError = true
		ex.Output = ex.Err.Error()
		return ex
	}

	res, err := o.tools.ExecuteTool(ctx, call.Name, call.Args)
	switch {
	case err == nil:
		ex.Output = res.Text
	case res != nil && res.IsError:
		ex.Err = err
		ex.IsError = true
		ex.Output = res.Text
	default:
		ex.Err = err
		ex.IsError = true
		ex.Output = err.Error()
	}
	return ex
}

// callMessages builds the assistant message carrying the calls and one tool
// message per outcome, in call order.
func callMessages(text string, execs []ToolExecution) []proto.Message {
	assistant := proto.Message{Role: proto.RoleAssistant, Content: text}
	out := make([]proto.Message, 0, 1+len(execs))
	for _, ex := range execs {
		assistant.ToolCalls = append(assistant.ToolCalls, proto.ToolCall{
			ID: ex.Call.ID,
			Function: proto.Function{
				Name:      ex.Call.Name,
				Arguments: rawArgs(ex.Call),
			},
		})
	}
	out = append(out, assistant)
	for _, ex := range execs {
		out = append(out, proto.Message{
			Role:    proto.RoleTool,
			Content: ex.Output,
			ToolCalls: []proto.ToolCall{{
				ID:       ex.Call.ID,
				IsError:  ex.IsError,
				Function: proto.Function{Name: ex.Call.Name},
			}},
		})
	}
	return out
}

func rawArgs(call stream.ToolCall) []byte {
	if strings.TrimSpace(call.RawArgs) != "" {
		return []byte(call.RawArgs)
	}
	bts, err := json.Marshal(call.Args)
	if err != nil || call.Args == nil {
		return []byte("{}")
	}
	return bts
}

func toRequestTools(tools []mcp.Tool) []proto.Tool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]proto.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, proto.Tool{
			Name:        t.ID(),
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}
	return out
}

func (o *Orchestrator) fail(res TurnResult, messages []proto.Message, text string, err error, model string) (TurnResult, error) {
	metricskey.StatsTurnsFailed.IncrCounter(1, model)
	line := "Error: " + errs.Describe(err)
	if text != "" {
		text = strings.TrimRight(text, "\n") + "\n\n"
	}
	res.Text = text + line
	res.Messages = messages
	res.Err = err
	return res, err
}

func (o *Orchestrator) canceled(res TurnResult, messages []proto.Message, text string) TurnResult {
	res.Text = text
	res.Messages = messages
	res.Canceled = true
	return res
}

func appendNew(dst []string, src ...string) []string {
	for _, s := range src {
		if !slices.Contains(dst, s) {
			dst = append(dst, s)
		}
	}
	return dst
}
