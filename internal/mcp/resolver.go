package mcp

import "github.com/cockroachdb/errors"

// Resolver maps canonical ids to catalog entries of connected servers.
type Resolver struct {
	registry *Registry
}

// NewResolver creates a resolver over the registry's catalog.
func NewResolver(registry *Registry) *Resolver {
	return &Resolver{registry: registry}
}

// Resolve returns the tool named by id.
func (r *Resolver) Resolve(id string) (Tool, error) {
	server, name, err := ParseToolID(id)
	if err != nil {
		return Tool{}, err
	}
	if !r.registry.IsConnected(server) {
		return Tool{}, errors.Wrapf(ErrUnknownServer, "%q is not connected", server)
	}
	tool, ok := r.registry.Catalog().Tool(server, name)
	if !ok {
		return Tool{}, errors.Wrapf(ErrUnknownTool, "%q on %q", name, server)
	}
	return tool, nil
}

// ResolveAll resolves every id and returns the ones that resolved, in order,
// along with the per-id errors of the rest.
func (r *Resolver) ResolveAll(ids []string) ([]Tool, map[string]error) {
	var tools []Tool
	var failed map[string]error
	for _, id := range ids {
		tool, err := r.Resolve(id)
		if err != nil {
			if failed == nil {
				failed = map[string]error{}
			}
			failed[id] = err
			continue
		}
		tools = append(tools, tool)
	}
	return tools, failed
}
