package cmd

import (
	"bytes"
	"context"
	"io"
	"iter"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/mark3labs/mcp-go/client"
	mmcp "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/relay/internal/agent"
	"github.com/dotcommander/relay/internal/config"
	"github.com/dotcommander/relay/internal/fantasybridge"
	"github.com/dotcommander/relay/internal/mcp"
	"github.com/dotcommander/relay/internal/proto"
	"github.com/dotcommander/relay/internal/stream"
)

// fakeGenerator replays one scripted event list per Stream call.
type fakeGenerator struct {
	mu       sync.Mutex
	passes   [][]stream.Event
	requests []proto.Request
}

func (g *fakeGenerator) Stream(_ context.Context, req proto.Request) (iter.Seq[stream.Event], error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	n := len(g.requests)
	req.Messages = slices.Clone(req.Messages)
	g.requests = append(g.requests, req)
	if n >= len(g.passes) {
		return nil, errors.Newf("unexpected pass %d", n+1)
	}
	return slices.Values(g.passes[n]), nil
}

func (g *fakeGenerator) factory() agent.ClientFactory {
	return func(fantasybridge.Config) (agent.Generator, error) { return g, nil }
}

func newFSServer() *server.MCPServer {
	srv := server.NewMCPServer("fs", "1.0.0", server.WithToolCapabilities(false), server.WithResourceCapabilities(false, false))
	srv.AddTool(
		mmcp.NewTool("read",
			mmcp.WithDescription("Read a file"),
			mmcp.WithString("path", mmcp.Required()),
		),
		func(_ context.Context, req mmcp.CallToolRequest) (*mmcp.CallToolResult, error) {
			path, err := req.RequireString("path")
			if err != nil {
				return mmcp.NewToolResultError(err.Error()), nil
			}
			if path == "missing" {
				return mmcp.NewToolResultError("no such file"), nil
			}
			return mmcp.NewToolResultText("hi from " + path), nil
		},
	)
	srv.AddTool(mmcp.NewTool("rm", mmcp.WithDescription("Remove a file")), func(context.Context, mmcp.CallToolRequest) (*mmcp.CallToolResult, error) {
		return mmcp.NewToolResultText("removed"), nil
	})
	srv.AddResource(
		mmcp.NewResource("file:///notes.txt", "notes", mmcp.WithMIMEType("text/plain")),
		func(_ context.Context, req mmcp.ReadResourceRequest) ([]mmcp.ResourceContents, error) {
			return []mmcp.ResourceContents{
				mmcp.TextResourceContents{URI: req.Params.URI, MIMEType: "text/plain", Text: "remember the milk"},
			}, nil
		},
	)
	return srv
}

// inProcessDialer connects to in-process servers by name.
func inProcessDialer(servers map[string]*server.MCPServer) mcp.Dialer {
	return func(ctx context.Context, cfg mcp.ServerConfig) (mcp.Session, io.Closer, error) {
		srv, ok := servers[cfg.Name]
		if !ok {
			return nil, nil, errors.Newf("no server %q", cfg.Name)
		}
		cli, err := client.NewInProcessClient(srv)
		if err != nil {
			return nil, nil, err
		}
		if err := mcp.Handshake(ctx, cli, cfg); err != nil {
			return nil, nil, err
		}
		return cli, nil, nil
	}
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	disabled := false
	cfg := config.Default()
	cfg.CachePath = t.TempDir()
	cfg.SettingsPath = t.TempDir() + "/relay.yml"
	cfg.MaxRetries = 0
	cfg.APIs = config.APIs{
		{
			Name:   "openai",
			APIKey: "test-key",
			Models: map[string]config.Model{"gpt-4o": {}},
		},
	}
	cfg.MCPTimeout = 5 * time.Second
	cfg.MCPServers = map[string]config.MCPServerConfig{
		"fs":  {Command: "unused"},
		"off": {Command: "unused", Enabled: &disabled},
	}
	return cfg
}

// syncBuffer is written by tool goroutines and the logger at once.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *syncBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Reset()
}

type testCLI struct {
	cfg    config.Config
	gen    *fakeGenerator
	stdin  string
	stdout syncBuffer
	stderr syncBuffer
}

func (c *testCLI) run(t *testing.T, args ...string) error {
	t.Helper()
	c.stdout.Reset()
	c.stderr.Reset()
	if c.gen == nil {
		c.gen = &fakeGenerator{}
	}
	root := NewRootCmd(BuildInfo{Version: "test"}, c.cfg, nil,
		WithIO(strings.NewReader(c.stdin), &c.stdout, &c.stderr),
		WithMCPOptions(mcp.WithDialer(inProcessDialer(map[string]*server.MCPServer{"fs": newFSServer()}))),
		WithClientFactory(c.gen.factory()),
	)
	if args == nil {
		args = []string{}
	}
	root.SetArgs(args)
	return root.ExecuteContext(context.Background())
}

func (c *testCLI) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	require.NoError(t, c.run(t, args...), c.stderr.String())
	return c.stdout.String()
}
