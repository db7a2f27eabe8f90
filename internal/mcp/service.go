// Package mcp manages connections to MCP tool-provider servers, the catalog
// of tools and resources they expose, and tool execution by canonical id.
package mcp

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/invopop/jsonschema"
	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/dotcommander/relay/internal/config"
)

var logger = xlog.NewPackageLogger("github.com/dotcommander/relay/internal", "mcp")

// Service is the entry point used by the commands and the turn orchestrator.
// It is constructed explicitly and owned by the caller.
type Service struct {
	registry *Registry
	resolver *Resolver
	executor *Executor
	policy   ToolPolicy
	servers  []ServerConfig
}

// Option configures a Service.
type Option func(*options)

type options struct {
	dial   Dialer
	policy ToolPolicy
}

// WithDialer replaces the mcp-go dialer.
func WithDialer(dial Dialer) Option {
	return func(o *options) { o.dial = dial }
}

// WithPolicy replaces the settings-backed tool policy.
func WithPolicy(policy ToolPolicy) Option {
	return func(o *options) { o.policy = policy }
}

// New creates a service for the servers configured in cfg. Nothing is
// connected until Initialize or ConnectServers.
func New(cfg *config.Config, opts ...Option) *Service {
	o := options{dial: Dial, policy: NewSettingsPolicy(cfg)}
	for _, opt := range opts {
		opt(&o)
	}
	registry := NewRegistry(o.dial)
	return &Service{
		registry: registry,
		resolver: NewResolver(registry),
		executor: NewExecutor(registry, o.policy),
		policy:   o.policy,
		servers:  ServersFromConfig(cfg),
	}
}

// Initialize registers every configured server and connects the enabled ones.
func (s *Service) Initialize(ctx context.Context) error {
	var names []string
	for _, srv := range s.servers {
		if srv.Enabled {
			names = append(names, srv.Name)
		}
	}
	return s.ConnectServers(ctx, names...)
}

// ConnectServers registers every configured server and connects the named
// ones concurrently. Unknown and disabled names are reported; every server is
// attempted.
func (s *Service) ConnectServers(ctx context.Context, names ...string) error {
	var err error
	for _, srv := range s.servers {
		if _, ok := s.registry.Config(srv.Name); ok {
			continue
		}
		if aerr := s.registry.AddServer(srv); aerr != nil {
			err = errors.CombineErrors(err, aerr)
		}
	}

	var mu sync.Mutex
	var wg errgroup.Group
	for _, name := range slices.Compact(slices.Sorted(slices.Values(names))) {
		if s.registry.IsConnected(name) {
			continue
		}
		wg.Go(func() error {
			if cerr := s.registry.Connect(ctx, name); cerr != nil {
				mu.Lock()
				err = errors.CombineErrors(err, cerr)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = wg.Wait()
	return err
}

// Shutdown disconnects every server.
func (s *Service) Shutdown() error {
	return s.registry.DisconnectAll()
}

// Servers returns the registered server configs, or the configured ones when
// nothing was registered yet.
func (s *Service) Servers() []ServerConfig {
	if servers := s.registry.Servers(); len(servers) > 0 {
		return servers
	}
	return slices.Clone(s.servers)
}

// ListAllTools returns every tool of every connected server.
func (s *Service) ListAllTools() []Tool {
	return s.registry.Catalog().AllTools()
}

// ListEnabledTools returns the tools the policy allows.
func (s *Service) ListEnabledTools() []Tool {
	all := s.ListAllTools()
	if s.policy == nil {
		return all
	}
	return slices.DeleteFunc(all, func(t Tool) bool {
		return s.policy.IsToolDisabled(t.ID())
	})
}

// IsToolEnabled reports whether the policy allows id.
func (s *Service) IsToolEnabled(id string) bool {
	return s.policy == nil || !s.policy.IsToolDisabled(id)
}

// Resolve returns the tool named by id.
func (s *Service) Resolve(id string) (Tool, error) {
	return s.resolver.Resolve(id)
}

// ToolSchema returns the input schema of the tool named by id.
func (s *Service) ToolSchema(id string) (*jsonschema.Schema, error) {
	tool, err := s.resolver.Resolve(id)
	if err != nil {
		return nil, err
	}
	return tool.InputSchema, nil
}

// ExecuteTool runs the tool named by id.
func (s *Service) ExecuteTool(ctx context.Context, id string, args map[string]any) (*CallResult, error) {
	return s.executor.Execute(ctx, id, args)
}

// IsToolID reports whether token has the shape of a canonical id.
func (s *Service) IsToolID(token string) bool {
	return IsToolID(token)
}

// AddServer registers cfg and connects it. The config is kept when the
// connection fails.
func (s *Service) AddServer(ctx context.Context, cfg ServerConfig) error {
	if err := s.registry.AddServer(cfg); err != nil {
		return err
	}
	return s.registry.Connect(ctx, cfg.Name)
}

// RemoveServer disconnects and forgets the named server.
func (s *Service) RemoveServer(name string) error {
	return s.registry.RemoveServer(name)
}

// TestConnection checks that cfg can be connected without registering it.
func (s *Service) TestConnection(ctx context.Context, cfg ServerConfig) error {
	return s.registry.TestConnection(ctx, cfg)
}

// RefreshAll refreshes the catalog of every connected server.
func (s *Service) RefreshAll(ctx context.Context) error {
	return s.registry.Catalog().RefreshAll(ctx, s.registry.Connected())
}

// ConnectionStatus returns the state of every registered server.
func (s *Service) ConnectionStatus() map[string]ConnState {
	return s.registry.Status()
}

// Resources returns the resources of the named server.
func (s *Service) Resources(server string) []Resource {
	return s.registry.Catalog().ResourcesFor(server)
}

// ReadResource reads uri from the named server and renders its contents as
// text.
func (s *Service) ReadResource(ctx context.Context, server, uri string) (string, error) {
	session, ok := s.registry.session(server)
	if !ok {
		return "", errors.Wrapf(ErrServerNotConnected, "%q", server)
	}
	req := mcp.ReadResourceRequest{}
	req.Params.URI = uri
	res, err := session.ReadResource(ctx, req)
	if err != nil {
		return "", errors.Wrapf(err, "read %s from %q", uri, server)
	}

	var sb strings.Builder
	for _, c := range res.Contents {
		switch c := c.(type) {
		case mcp.TextResourceContents:
			sb.WriteString(c.Text)
		case *mcp.TextResourceContents:
			sb.WriteString(c.Text)
		case mcp.BlobResourceContents:
			fmt.Fprintf(&sb, "[blob %s, %d bytes base64]", c.MIMEType, len(c.Blob))
		case *mcp.BlobResourceContents:
			fmt.Fprintf(&sb, "[blob %s, %d bytes base64]", c.MIMEType, len(c.Blob))
		}
	}
	return sb.String(), nil
}
