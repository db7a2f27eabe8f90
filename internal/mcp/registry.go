package mcp

import (
	"context"
	"io"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dotcommander/relay/internal/metricskey"
)

// ConnState is the lifecycle state of a server connection.
type ConnState int

// Connection states.
const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

type conn struct {
	session   Session
	transport io.Closer
}

// close closes the session and the transport; both are always attempted.
func (c *conn) close() error {
	var err error
	if c.session != nil {
		if cerr := c.session.Close(); cerr != nil {
			err = errors.CombineErrors(err, errors.Wrap(cerr, "close session"))
		}
	}
	if c.transport != nil {
		if cerr := c.transport.Close(); cerr != nil {
			err = errors.CombineErrors(err, errors.Wrap(cerr, "close transport"))
		}
	}
	return err
}

// Registry holds server configurations and at most one live connection per
// server name. Handshakes run outside the lock.
type Registry struct {
	dial    Dialer
	catalog *Catalog

	mu      sync.RWMutex
	configs map[string]ServerConfig
	conns   map[string]*conn
	states  map[string]ConnState
}

// NewRegistry creates an empty registry that connects with dial.
func NewRegistry(dial Dialer) *Registry {
	if dial == nil {
		dial = Dial
	}
	r := &Registry{
		dial:    dial,
		configs: map[string]ServerConfig{},
		conns:   map[string]*conn{},
		states:  map[string]ConnState{},
	}
	r.catalog = newCatalog(r.session)
	return r
}

// Catalog returns the tool and resource catalog fed by this registry.
func (r *Registry) Catalog() *Catalog {
	return r.catalog
}

// AddServer stores cfg, replacing any config with the same name. It never
// connects.
func (r *Registry) AddServer(cfg ServerConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[cfg.Name] = cfg
	return nil
}

// Config returns the stored config for name.
func (r *Registry) Config(name string) (ServerConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.configs[name]
	return cfg, ok
}

// Servers returns every stored config sorted by name.
func (r *Registry) Servers() []ServerConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := slices.Sorted(maps.Keys(r.configs))
	out := make([]ServerConfig, 0, len(names))
	for _, name := range names {
		out = append(out, r.configs[name])
	}
	return out
}

// Connect dials the named server, performs the handshake and populates the
// catalog. A live connection for the same name is replaced. Catalog errors are
// logged and do not fail the connect.
func (r *Registry) Connect(ctx context.Context, name string) error {
	cfg, ok := r.Config(name)
	if !ok {
		return errors.Wrapf(ErrConfigNotFound, "%q", name)
	}
	if !cfg.Enabled {
		return errors.Mark(errors.Newf("server %q is disabled", name), ErrConnection)
	}

	if r.IsConnected(name) {
		if err := r.Disconnect(name); err != nil {
			logger.KV(xlog.WARNING, "status", "close_replaced", "server", name, "err", err.Error())
		}
	}
	r.setState(name, StateConnecting)

	started := time.Now()
	session, transport, err := r.dial(ctx, cfg)
	metricskey.PerfServerConnect.MeasureSince(started, name)
	if err != nil {
		r.setState(name, StateDisconnected)
		metricskey.StatsServerConnectsFailed.IncrCounter(1, name)
		logger.ContextKV(ctx, xlog.WARNING,
			"status", "connect_failed",
			"server", name,
			"err", err.Error(),
		)
		return errors.Mark(errors.Wrapf(err, "connect %q", name), ErrConnection)
	}

	r.mu.Lock()
	old := r.conns[name]
	r.conns[name] = &conn{session: session, transport: transport}
	r.states[name] = StateConnected
	r.mu.Unlock()

	if old != nil {
		if err := old.close(); err != nil {
			logger.KV(xlog.WARNING, "status", "close_replaced", "server", name, "err", err.Error())
		}
	}
	r.catalog.Clear(name)

	logger.ContextKV(ctx, xlog.DEBUG,
		"status", "connected",
		"server", name,
		"duration", time.Since(started).String(),
	)

	if err := r.catalog.Refresh(ctx, name); err != nil {
		logger.ContextKV(ctx, xlog.WARNING,
			"status", "catalog_refresh_failed",
			"server", name,
			"err", err.Error(),
		)
	}
	return nil
}

// Disconnect closes the connection for name and clears its catalog entries.
// Close errors of the session and the transport are combined.
func (r *Registry) Disconnect(name string) error {
	r.mu.Lock()
	c := r.conns[name]
	delete(r.conns, name)
	if _, ok := r.configs[name]; ok {
		r.states[name] = StateDisconnected
	} else {
		delete(r.states, name)
	}
	r.mu.Unlock()

	r.catalog.Clear(name)
	if c == nil {
		return nil
	}
	if err := c.close(); err != nil {
		return errors.Wrapf(err, "disconnect %q", name)
	}
	return nil
}

// RemoveServer disconnects name and drops its config. Unknown names are a
// no-op.
func (r *Registry) RemoveServer(name string) error {
	err := r.Disconnect(name)
	r.mu.Lock()
	delete(r.configs, name)
	delete(r.states, name)
	r.mu.Unlock()
	return err
}

// DisconnectAll disconnects every server. All connection and catalog state is
// cleared even when some closes fail.
func (r *Registry) DisconnectAll() error {
	r.mu.Lock()
	conns := r.conns
	r.conns = map[string]*conn{}
	for name := range r.states {
		r.states[name] = StateDisconnected
	}
	r.mu.Unlock()

	r.catalog.ClearAll()

	var err error
	for _, name := range slices.Sorted(maps.Keys(conns)) {
		if cerr := conns[name].close(); cerr != nil {
			err = errors.CombineErrors(err, errors.Wrapf(cerr, "disconnect %q", name))
		}
	}
	return err
}

// IsConnected reports whether name has a live connection.
func (r *Registry) IsConnected(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[name]
	return ok
}

// Connected returns the names of connected servers, sorted.
func (r *Registry) Connected() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.conns))
}

// Status returns the state of every configured server.
func (r *Registry) Status() map[string]ConnState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]ConnState, len(r.configs))
	for name := range r.configs {
		out[name] = r.states[name]
	}
	return out
}

// TestConnection opens a throwaway session to cfg, probes its tool list and
// closes it. The registry is not touched.
func (r *Registry) TestConnection(ctx context.Context, cfg ServerConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	session, transport, err := r.dial(ctx, cfg)
	if err != nil {
		return errors.Mark(errors.Wrapf(err, "connect %q", cfg.Name), ErrConnection)
	}
	c := &conn{session: session, transport: transport}

	_, probeErr := session.ListTools(ctx, mcp.ListToolsRequest{})
	if isCapabilityUnsupported(probeErr) {
		probeErr = nil
	}
	if probeErr != nil {
		probeErr = errors.Wrapf(probeErr, "list tools of %q", cfg.Name)
	}
	return errors.CombineErrors(probeErr, c.close())
}

func (r *Registry) session(name string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.conns[name]
	if !ok {
		return nil, false
	}
	return c.session, true
}

func (r *Registry) setState(name string, state ConnState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.configs[name]; ok {
		r.states[name] = state
	}
}
