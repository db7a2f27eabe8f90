package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dotcommander/relay/internal/metricskey"
)

// CallResult is the outcome of one tool call.
type CallResult struct {
	Text    string
	IsError bool
	Raw     *mcp.CallToolResult
}

// Executor runs tool calls against connected servers.
type Executor struct {
	registry *Registry
	policy   ToolPolicy
}

// NewExecutor creates an executor. A nil policy allows every tool.
func NewExecutor(registry *Registry, policy ToolPolicy) *Executor {
	return &Executor{registry: registry, policy: policy}
}

// Execute calls the tool named by id once. A result the server flags as an
// error is returned together with an ErrExecution error. Every outcome is
// logged with the tool, server, status and duration.
func (e *Executor) Execute(ctx context.Context, id string, args map[string]any) (*CallResult, error) {
	started := time.Now()
	server, name := "", id
	status := "ok"
	defer func() {
		level := xlog.DEBUG
		if status != "ok" {
			level = xlog.INFO
		}
		logger.ContextKV(ctx, level,
			"tool", name,
			"server", server,
			"status", status,
			"duration", time.Since(started).String(),
		)
	}()

	if e.policy != nil && e.policy.IsToolDisabled(id) {
		status = "disabled"
		metricskey.StatsToolCallsDisabled.IncrCounter(1, id)
		return nil, errors.Wrapf(ErrToolDisabled, "%s", id)
	}

	var err error
	server, name, err = ParseToolID(id)
	if err != nil {
		server, name = "", id
		status = "malformed_id"
		return nil, err
	}
	session, ok := e.registry.session(server)
	if !ok {
		status = "not_connected"
		return nil, errors.Wrapf(ErrServerNotConnected, "%q", server)
	}
	tool, ok := e.registry.Catalog().Tool(server, name)
	if !ok {
		status = "unknown_tool"
		return nil, errors.Wrapf(ErrUnknownTool, "%q on %q", name, server)
	}
	if args == nil {
		args = map[string]any{}
	}
	if err := ValidateArgs(tool.InputSchema, args); err != nil {
		status = "invalid_arguments"
		metricskey.StatsToolCallsFailed.IncrCounter(1, id)
		return nil, errors.Mark(errors.Wrapf(err, "invalid arguments for %s", id), ErrExecution)
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	res, err := session.CallTool(ctx, req)
	metricskey.PerfToolCall.MeasureSince(started, id)
	if err != nil {
		status = "failed"
		metricskey.StatsToolCallsFailed.IncrCounter(1, id)
		return nil, errors.Mark(errors.Wrapf(err, "call %s", id), ErrExecution)
	}

	out := &CallResult{Text: ContentText(res.Content), IsError: res.IsError, Raw: res}
	if res.IsError {
		status = "tool_error"
		metricskey.StatsToolCallsFailed.IncrCounter(1, id)
		return out, errors.Mark(errors.Newf("%s: %s", id, out.Text), ErrExecution)
	}
	metricskey.StatsToolCallsSucceeded.IncrCounter(1, id)
	return out, nil
}

// ContentText concatenates the text parts of a result; other parts are shown
// as a placeholder naming their type.
func ContentText(content []mcp.Content) string {
	var sb strings.Builder
	for _, c := range content {
		switch c := c.(type) {
		case mcp.TextContent:
			sb.WriteString(c.Text)
		case *mcp.TextContent:
			sb.WriteString(c.Text)
		case mcp.ImageContent:
			sb.WriteString("[image content]")
		case mcp.AudioContent:
			sb.WriteString("[audio content]")
		case mcp.EmbeddedResource:
			sb.WriteString("[resource content]")
		default:
			fmt.Fprintf(&sb, "[%s content]", contentType(c))
		}
	}
	return sb.String()
}

func contentType(c mcp.Content) string {
	t := strings.TrimPrefix(fmt.Sprintf("%T", c), "*")
	t = strings.TrimPrefix(t, "mcp.")
	return strings.ToLower(strings.TrimSuffix(t, "Content"))
}
