package mcp

import (
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/go-shellwords"
	"github.com/cockroachdb/errors"

	"github.com/dotcommander/relay/internal/config"
)

// Transport types.
const (
	TypeStdio = "stdio"
	TypeSSE   = "sse"
	TypeHTTP  = "http"
)

// ServerConfig describes how to reach one tool-provider server.
type ServerConfig struct {
	Name       string
	Type       string
	Command    string
	Args       []string
	Env        []string
	InheritEnv bool
	URL        string
	Headers    map[string]string
	Credential string
	Enabled    bool
	Timeout    time.Duration
}

// Validate checks the name and the fields required by the transport type.
func (c ServerConfig) Validate() error {
	if !ValidServerName(c.Name) {
		return errors.Newf("invalid server name %q: use letters, digits and dashes only", c.Name)
	}
	switch c.Type {
	case "", TypeStdio:
		if strings.TrimSpace(c.Command) == "" {
			return errors.Newf("server %q: stdio servers need a command", c.Name)
		}
	case TypeSSE, TypeHTTP:
		if c.URL == "" {
			return errors.Newf("server %q: %s servers need a url", c.Name, c.Type)
		}
	default:
		return errors.Newf("server %q: unsupported type %q, supported types are: stdio, sse, http", c.Name, c.Type)
	}
	return nil
}

func (c ServerConfig) transportType() string {
	if c.Type == "" {
		return TypeStdio
	}
	return c.Type
}

// commandLine returns the executable and its arguments. A command given as a
// single string with no args is split shell-style.
func (c ServerConfig) commandLine() (string, []string, error) {
	if len(c.Args) > 0 || !strings.ContainsAny(c.Command, " \t") {
		return c.Command, c.Args, nil
	}
	words, err := shellwords.Parse(c.Command)
	if err != nil {
		return "", nil, errors.Wrapf(err, "parse command of %q", c.Name)
	}
	if len(words) == 0 {
		return "", nil, errors.Newf("server %q: empty command", c.Name)
	}
	return words[0], words[1:], nil
}

func (c ServerConfig) environ() []string {
	if !c.InheritEnv {
		return c.Env
	}
	return append(os.Environ(), c.Env...)
}

func (c ServerConfig) headers() map[string]string {
	h := maps.Clone(c.Headers)
	if c.Credential == "" {
		return h
	}
	if h == nil {
		h = map[string]string{}
	}
	if _, ok := h["Authorization"]; !ok {
		h["Authorization"] = "Bearer " + c.Credential
	}
	return h
}

// ServersFromConfig builds the server list from the settings, sorted by name.
// Servers turned off in the file or listed in mcp-disable come back with
// Enabled unset.
func ServersFromConfig(cfg *config.Config) []ServerConfig {
	policy := NewSettingsPolicy(cfg)
	names := slices.Sorted(maps.Keys(cfg.MCPServers))
	servers := make([]ServerConfig, 0, len(names))
	for _, name := range names {
		s := cfg.MCPServers[name]
		credential := s.APIKey
		if credential == "" && s.APIKeyEnv != "" {
			credential = os.Getenv(s.APIKeyEnv)
		}
		servers = append(servers, ServerConfig{
			Name:       name,
			Type:       s.Type,
			Command:    s.Command,
			Args:       s.Args,
			Env:        s.Env,
			InheritEnv: !cfg.MCPNoInheritEnv,
			URL:        s.URL,
			Headers:    s.Headers,
			Credential: credential,
			Enabled:    s.IsEnabled() && !policy.IsServerDisabled(name),
			Timeout:    cfg.MCPTimeout,
		})
	}
	return servers
}
