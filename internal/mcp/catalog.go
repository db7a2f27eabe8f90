package mcp

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/invopop/jsonschema"
	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/sync/errgroup"
)

// maxPages bounds cursor pagination of list requests.
const maxPages = 100

// Tool is a tool reported by a connected server.
type Tool struct {
	Server      string
	Name        string
	Description string
	InputSchema *jsonschema.Schema
	Raw         mcp.Tool
}

// ID returns the canonical id of the tool.
func (t Tool) ID() string {
	return ToolID(t.Server, t.Name)
}

// Resource is a resource reported by a connected server.
type Resource struct {
	Server      string
	URI         string
	Name        string
	Description string
	MIMEType    string
}

// Catalog keeps the tool and resource lists of connected servers.
type Catalog struct {
	sessions func(name string) (Session, bool)

	mu        sync.RWMutex
	tools     map[string][]Tool
	resources map[string][]Resource
}

func newCatalog(sessions func(string) (Session, bool)) *Catalog {
	return &Catalog{
		sessions:  sessions,
		tools:     map[string][]Tool{},
		resources: map[string][]Resource{},
	}
}

// Refresh lists the tools and resources of a connected server. A capability
// the server does not support is recorded as an empty list; other failures
// keep the previous entry and are returned.
func (c *Catalog) Refresh(ctx context.Context, name string) error {
	session, ok := c.sessions(name)
	if !ok {
		return errors.Wrapf(ErrServerNotConnected, "%q", name)
	}

	var err error

	tools, terr := listTools(ctx, session)
	switch {
	case terr == nil:
		c.store(name, session, func() { c.tools[name] = toTools(name, tools) })
	case isCapabilityUnsupported(terr):
		c.store(name, session, func() { c.tools[name] = []Tool{} })
	default:
		logger.ContextKV(ctx, xlog.WARNING, "status", "list_tools_failed", "server", name, "err", terr.Error())
		err = errors.CombineErrors(err, errors.Wrapf(terr, "list tools of %q", name))
	}

	resources, rerr := listResources(ctx, session)
	switch {
	case rerr == nil:
		c.store(name, session, func() { c.resources[name] = toResources(name, resources) })
	case isCapabilityUnsupported(rerr):
		c.store(name, session, func() { c.resources[name] = []Resource{} })
	default:
		logger.ContextKV(ctx, xlog.WARNING, "status", "list_resources_failed", "server", name, "err", rerr.Error())
		err = errors.CombineErrors(err, errors.Wrapf(rerr, "list resources of %q", name))
	}

	return err
}

// store applies fn only while session is still the live session of name, so
// a refresh racing a disconnect cannot resurrect stale entries.
func (c *Catalog) store(name string, session Session, fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if current, ok := c.sessions(name); !ok || current != session {
		return
	}
	fn()
}

// RefreshAll refreshes the given servers concurrently. Every server is
// attempted; the errors are combined.
func (c *Catalog) RefreshAll(ctx context.Context, names []string) error {
	var mu sync.Mutex
	var combined error
	var wg errgroup.Group
	for _, name := range names {
		wg.Go(func() error {
			if err := c.Refresh(ctx, name); err != nil {
				mu.Lock()
				combined = errors.CombineErrors(combined, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = wg.Wait()
	return combined
}

// AllTools returns the tools of every server sorted by canonical id.
func (c *Catalog) AllTools() []Tool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []Tool
	for _, name := range slices.Sorted(maps.Keys(c.tools)) {
		out = append(out, c.tools[name]...)
	}
	slices.SortFunc(out, func(a, b Tool) int { return strings.Compare(a.ID(), b.ID()) })
	return out
}

// ToolsFor returns the tools of one server, empty when unknown.
func (c *Catalog) ToolsFor(name string) []Tool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.tools[name])
}

// ResourcesFor returns the resources of one server, empty when unknown.
func (c *Catalog) ResourcesFor(name string) []Resource {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.resources[name])
}

// Tool finds a tool by server and local name.
func (c *Catalog) Tool(server, name string) (Tool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, t := range c.tools[server] {
		if t.Name == name {
			return t, true
		}
	}
	return Tool{}, false
}

// Clear drops the entries of one server.
func (c *Catalog) Clear(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.tools, name)
	delete(c.resources, name)
}

// ClearAll drops every entry.
func (c *Catalog) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tools = map[string][]Tool{}
	c.resources = map[string][]Resource{}
}

func listTools(ctx context.Context, session Session) ([]mcp.Tool, error) {
	var out []mcp.Tool
	req := mcp.ListToolsRequest{}
	for range maxPages {
		res, err := session.ListTools(ctx, req)
		if err != nil {
			return nil, err
		}
		out = append(out, res.Tools...)
		if res.NextCursor == "" {
			break
		}
		req.Params.Cursor = res.NextCursor
	}
	return out, nil
}

func listResources(ctx context.Context, session Session) ([]mcp.Resource, error) {
	var out []mcp.Resource
	req := mcp.ListResourcesRequest{}
	for range maxPages {
		res, err := session.ListResources(ctx, req)
		if err != nil {
			return nil, err
		}
		out = append(out, res.Resources...)
		if res.NextCursor == "" {
			break
		}
		req.Params.Cursor = res.NextCursor
	}
	return out, nil
}

func toTools(server string, tools []mcp.Tool) []Tool {
	out := make([]Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, Tool{
			Server:      server,
			Name:        t.Name,
			Description: t.Description,
			InputSchema: ConvertToolSchema(t),
			Raw:         t,
		})
	}
	return out
}

func toResources(server string, resources []mcp.Resource) []Resource {
	out := make([]Resource, 0, len(resources))
	for _, r := range resources {
		out = append(out, Resource{
			Server:      server,
			URI:         r.URI,
			Name:        r.Name,
			Description: r.Description,
			MIMEType:    r.MIMEType,
		})
	}
	return out
}
