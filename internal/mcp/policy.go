package mcp

import (
	"slices"

	"github.com/dotcommander/relay/internal/config"
)

// ToolPolicy decides whether a tool may be executed.
type ToolPolicy interface {
	IsToolDisabled(id string) bool
}

// SettingsPolicy is the ToolPolicy backed by mcp-disabled-tools and
// mcp-disable. "*" in DisabledServers disables every server.
type SettingsPolicy struct {
	DisabledTools   []string
	DisabledServers []string
}

// NewSettingsPolicy reads the policy from the settings.
func NewSettingsPolicy(cfg *config.Config) SettingsPolicy {
	return SettingsPolicy{
		DisabledTools:   cfg.MCPDisabledTools,
		DisabledServers: cfg.MCPDisable,
	}
}

// IsToolDisabled implements ToolPolicy.
func (p SettingsPolicy) IsToolDisabled(id string) bool {
	if slices.Contains(p.DisabledTools, id) {
		return true
	}
	server, _, err := ParseToolID(id)
	if err != nil {
		return false
	}
	return p.IsServerDisabled(server)
}

// IsServerDisabled reports whether every tool of the server is disabled.
func (p SettingsPolicy) IsServerDisabled(name string) bool {
	return slices.Contains(p.DisabledServers, "*") ||
		slices.Contains(p.DisabledServers, name)
}
