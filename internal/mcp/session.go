package mcp

import (
	"context"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

// ClientName and ClientVersion are reported to servers during the handshake.
var (
	ClientName    = "relay"
	ClientVersion = "dev"
)

// Session is an initialized MCP client session.
type Session interface {
	ListTools(ctx context.Context, request mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	ListResources(ctx context.Context, request mcp.ListResourcesRequest) (*mcp.ListResourcesResult, error)
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	ReadResource(ctx context.Context, request mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error)
	Close() error
}

// Dialer opens a transport to the server and performs the initialize
// handshake. The returned transport closer may be nil when the session owns
// its transport.
type Dialer func(ctx context.Context, cfg ServerConfig) (Session, io.Closer, error)

// Dial is the Dialer backed by mcp-go clients.
func Dial(ctx context.Context, cfg ServerConfig) (Session, io.Closer, error) {
	cli, err := newClient(cfg)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to create MCP client")
	}
	if err := Handshake(ctx, cli, cfg); err != nil {
		return nil, nil, err
	}
	return cli, nil, nil
}

// Handshake starts cli and sends initialize, bounded by the server timeout.
// cli is closed on failure.
func Handshake(ctx context.Context, cli *client.Client, cfg ServerConfig) error {
	if err := cli.Start(ctx); err != nil {
		cli.Close() //nolint:errcheck,gosec
		return errors.Wrap(err, "failed to start MCP client")
	}

	initCtx := ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		initCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{Name: ClientName, Version: ClientVersion}
	if _, err := cli.Initialize(initCtx, req); err != nil {
		cli.Close() //nolint:errcheck,gosec
		if errors.Is(err, context.DeadlineExceeded) {
			return errors.Wrapf(err, "timeout while initializing %q - make sure the configuration is correct. If your server requires a docker container, make sure it's running", cfg.Name)
		}
		return errors.Wrap(err, "failed to initialize MCP client")
	}
	return nil
}

func newClient(cfg ServerConfig) (*client.Client, error) {
	switch cfg.transportType() {
	case TypeStdio:
		command, args, err := cfg.commandLine()
		if err != nil {
			return nil, err
		}
		return client.NewStdioMCPClient(command, cfg.environ(), args...)
	case TypeSSE:
		var opts []transport.ClientOption
		if h := cfg.headers(); len(h) > 0 {
			opts = append(opts, transport.WithHeaders(h))
		}
		return client.NewSSEMCPClient(cfg.URL, opts...)
	case TypeHTTP:
		var opts []transport.StreamableHTTPCOption
		if h := cfg.headers(); len(h) > 0 {
			opts = append(opts, transport.WithHTTPHeaders(h))
		}
		return client.NewStreamableHttpClient(cfg.URL, opts...)
	default:
		return nil, errors.Newf("unsupported MCP server type: %q, supported types are: stdio, sse, http", cfg.Type)
	}
}
