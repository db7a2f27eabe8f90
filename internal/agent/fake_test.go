package agent

import (
	"context"
	"iter"
	"maps"
	"slices"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/dotcommander/relay/internal/mcp"
	"github.com/dotcommander/relay/internal/proto"
	"github.com/dotcommander/relay/internal/stream"
)

// fakeGenerator replays one scripted event list per Stream call.
type fakeGenerator struct {
	mu       sync.Mutex
	passes   [][]stream.Event
	failures []error
	requests []proto.Request
}

func (g *fakeGenerator) Stream(_ context.Context, req proto.Request) (iter.Seq[stream.Event], error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := len(g.requests)
	req.Messages = slices.Clone(req.Messages)
	g.requests = append(g.requests, req)
	if n < len(g.failures) && g.failures[n] != nil {
		return nil, g.failures[n]
	}
	if n >= len(g.passes) {
		return nil, errors.Newf("unexpected pass %d", n+1)
	}
	return slices.Values(g.passes[n]), nil
}

func (g *fakeGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requests)
}

// fakeToolbox serves tools of a single pretend server.
type fakeToolbox struct {
	mu       sync.Mutex
	tools    map[string]mcp.Tool
	disabled map[string]bool
	exec     func(ctx context.Context, id string, args map[string]any) (*mcp.CallResult, error)
	executed []string
}

func newFakeToolbox(names ...string) *fakeToolbox {
	tb := &fakeToolbox{tools: map[string]mcp.Tool{}, disabled: map[string]bool{}}
	for _, name := range names {
		tool := mcp.Tool{Server: "fs", Name: name, Description: name + " tool"}
		tb.tools[tool.ID()] = tool
	}
	tb.exec = func(_ context.Context, id string, _ map[string]any) (*mcp.CallResult, error) {
		return &mcp.CallResult{Text: "output of " + id}, nil
	}
	return tb
}

func (tb *fakeToolbox) Resolve(id string) (mcp.Tool, error) {
	if _, _, err := mcp.ParseToolID(id); err != nil {
		return mcp.Tool{}, err
	}
	tool, ok := tb.tools[id]
	if !ok {
		return mcp.Tool{}, errors.Wrap(mcp.ErrUnknownTool, id)
	}
	return tool, nil
}

func (tb *fakeToolbox) IsToolEnabled(id string) bool {
	return !tb.disabled[id]
}

func (tb *fakeToolbox) ListEnabledTools() []mcp.Tool {
	var out []mcp.Tool
	for _, id := range slices.Sorted(maps.Keys(tb.tools)) {
		if !tb.disabled[id] {
			out = append(out, tb.tools[id])
		}
	}
	return out
}

func (tb *fakeToolbox) ExecuteTool(ctx context.Context, id string, args map[string]any) (*mcp.CallResult, error) {
	tb.mu.Lock()
	tb.executed = append(tb.executed, id)
	tb.mu.Unlock()
	return tb.exec(ctx, id, args)
}

func (tb *fakeToolbox) executedIDs() []string {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return slices.Clone(tb.executed)
}
