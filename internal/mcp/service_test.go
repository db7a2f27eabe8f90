package mcp

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/relay/internal/config"
)

func newToolsServer() *server.MCPServer {
	srv := server.NewMCPServer("tools", "1.0.0", server.WithToolCapabilities(false))
	srv.AddTool(echoTool(), func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("text")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(text), nil
	})
	srv.AddTool(mcp.NewTool("fail_always"), func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultError("always fails"), nil
	})
	return srv
}

func newDocsServer() *server.MCPServer {
	srv := server.NewMCPServer("docs", "1.0.0", server.WithResourceCapabilities(false, false))
	srv.AddResource(
		mcp.NewResource("docs://readme", "readme", mcp.WithMIMEType("text/plain")),
		func(_ context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
			return []mcp.ResourceContents{
				mcp.TextResourceContents{URI: req.Params.URI, MIMEType: "text/plain", Text: "read me"},
			}, nil
		},
	)
	return srv
}

// inProcessDialer connects to in-process servers by name through the real
// mcp-go client.
func inProcessDialer(servers map[string]*server.MCPServer) Dialer {
	return func(ctx context.Context, cfg ServerConfig) (Session, io.Closer, error) {
		srv, ok := servers[cfg.Name]
		if !ok {
			return nil, nil, errors.Newf("no server %q", cfg.Name)
		}
		cli, err := client.NewInProcessClient(srv)
		if err != nil {
			return nil, nil, err
		}
		if err := Handshake(ctx, cli, cfg); err != nil {
			return nil, nil, err
		}
		return cli, nil, nil
	}
}

func testConfig() *config.Config {
	disabled := false
	cfg := &config.Config{}
	cfg.MCPTimeout = 5 * time.Second
	cfg.MCPServers = map[string]config.MCPServerConfig{
		"tools": {Command: "unused"},
		"docs":  {Command: "unused"},
		"off":   {Command: "unused", Enabled: &disabled},
	}
	return cfg
}

func newTestService(t *testing.T, cfg *config.Config) *Service {
	t.Helper()
	svc := New(cfg, WithDialer(inProcessDialer(map[string]*server.MCPServer{
		"tools": newToolsServer(),
		"docs":  newDocsServer(),
		"off":   newToolsServer(),
	})))
	t.Cleanup(func() { _ = svc.Shutdown() })
	return svc
}

func TestServiceInProcess(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, testConfig())
	require.NoError(t, svc.Initialize(ctx))

	status := svc.ConnectionStatus()
	require.Equal(t, StateConnected, status["tools"])
	require.Equal(t, StateConnected, status["docs"])
	require.Equal(t, StateDisconnected, status["off"])

	t.Run("discovery", func(t *testing.T) {
		var ids []string
		for _, tool := range svc.ListAllTools() {
			ids = append(ids, tool.ID())
		}
		require.Equal(t, []string{"mcp_tools_echo", "mcp_tools_fail_always"}, ids)

		tool, err := svc.Resolve("mcp_tools_fail_always")
		require.NoError(t, err)
		require.Equal(t, "tools", tool.Server)
		require.Equal(t, "fail_always", tool.Name)

		schema, err := svc.ToolSchema("mcp_tools_echo")
		require.NoError(t, err)
		require.Equal(t, []string{"text"}, schema.Required)
	})

	t.Run("docs server has no tools capability", func(t *testing.T) {
		require.Empty(t, svc.registry.Catalog().ToolsFor("docs"))
		require.Len(t, svc.Resources("docs"), 1)
	})

	t.Run("tools server has no resources capability", func(t *testing.T) {
		require.Empty(t, svc.Resources("tools"))
		require.NoError(t, svc.RefreshAll(ctx))
	})

	t.Run("execute", func(t *testing.T) {
		res, err := svc.ExecuteTool(ctx, "mcp_tools_echo", map[string]any{"text": "ping"})
		require.NoError(t, err)
		require.Equal(t, "ping", res.Text)

		res, err = svc.ExecuteTool(ctx, "mcp_tools_fail_always", nil)
		require.True(t, errors.Is(err, ErrExecution))
		require.Equal(t, "always fails", res.Text)
	})

	t.Run("read resource", func(t *testing.T) {
		text, err := svc.ReadResource(ctx, "docs", "docs://readme")
		require.NoError(t, err)
		require.Equal(t, "read me", text)
	})

	t.Run("test connection", func(t *testing.T) {
		require.NoError(t, svc.TestConnection(ctx, ServerConfig{Name: "docs", Command: "unused", Enabled: true}))
		require.Error(t, svc.TestConnection(ctx, ServerConfig{Name: "ghost", Command: "unused", Enabled: true}))
	})

	t.Run("add and remove", func(t *testing.T) {
		err := svc.AddServer(ctx, ServerConfig{Name: "ghost", Command: "unused", Enabled: true})
		require.True(t, errors.Is(err, ErrConnection))
		_, kept := svc.registry.Config("ghost")
		require.True(t, kept, "config retained after failed connect")

		require.NoError(t, svc.RemoveServer("docs"))
		require.NotContains(t, svc.ConnectionStatus(), "docs")
	})
}

func TestServiceEnabledTools(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.MCPDisabledTools = []string{"mcp_tools_fail_always"}
	svc := newTestService(t, cfg)
	require.NoError(t, svc.ConnectServers(ctx, "tools"))

	require.Len(t, svc.ListAllTools(), 2)
	enabled := svc.ListEnabledTools()
	require.Len(t, enabled, 1)
	require.Equal(t, "mcp_tools_echo", enabled[0].ID())
	require.False(t, svc.IsToolEnabled("mcp_tools_fail_always"))

	_, err := svc.ExecuteTool(ctx, "mcp_tools_fail_always", nil)
	require.True(t, errors.Is(err, ErrToolDisabled))
	require.False(t, svc.registry.IsConnected("docs"))
}

func TestServiceServerDisabledBySettings(t *testing.T) {
	cfg := testConfig()
	cfg.MCPDisable = []string{"docs"}
	svc := newTestService(t, cfg)
	require.NoError(t, svc.Initialize(context.Background()))
	require.False(t, svc.registry.IsConnected("docs"))
	require.True(t, svc.registry.IsConnected("tools"))
}
