package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"text/template"
	"time"

	_ "embed"

	"github.com/caarlos0/env/v9"
	"gopkg.in/yaml.v3"

	"github.com/dotcommander/relay/internal/errs"
)

//go:embed config_template.yml
var configTemplate string

// History backends.
const (
	HistoryFile  = "file"
	HistoryRedis = "redis"
)

// Model represents the LLM model used in the API call.
type Model struct {
	Name           string
	API            string
	MaxChars       int64    `yaml:"max-input-chars"`
	Aliases        []string `yaml:"aliases"`
	Fallback       string   `yaml:"fallback"`
	ThinkingBudget int      `yaml:"thinking-budget,omitempty"`
}

// API represents an API endpoint and its models.
type API struct {
	Name      string
	APIKey    string           `yaml:"api-key"`
	APIKeyEnv string           `yaml:"api-key-env"`
	APIKeyCmd string           `yaml:"api-key-cmd"`
	BaseURL   string           `yaml:"base-url"`
	Models    map[string]Model `yaml:"models"`
	User      string           `yaml:"user"`
}

// APIs keeps the order in which endpoints appear in the settings file.
type APIs []API

// UnmarshalYAML implements ordered API YAML decoding.
func (apis *APIs) UnmarshalYAML(node *yaml.Node) error {
	for i := 0; i+1 < len(node.Content); i += 2 {
		var api API
		if err := node.Content[i+1].Decode(&api); err != nil {
			return fmt.Errorf("error decoding YAML file: %s", err)
		}
		api.Name = node.Content[i].Value
		*apis = append(*apis, api)
	}
	return nil
}

// MCPServerConfig holds configuration for an MCP server.
type MCPServerConfig struct {
	Type      string            `yaml:"type"`
	Command   string            `yaml:"command"`
	Args      []string          `yaml:"args"`
	Env       []string          `yaml:"env"`
	URL       string            `yaml:"url"`
	Headers   map[string]string `yaml:"headers"`
	APIKey    string            `yaml:"api-key"`
	APIKeyEnv string            `yaml:"api-key-env"`
	Enabled   *bool             `yaml:"enabled"`
}

// IsEnabled reports whether the server should be connected. Servers are
// enabled unless explicitly turned off.
func (c MCPServerConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// Settings holds persisted configuration loaded from the YAML settings file
// and environment variables.
type Settings struct {
	API                 string  `yaml:"default-api" env:"API"`
	Model               string  `yaml:"default-model" env:"MODEL"`
	Raw                 bool    `yaml:"raw" env:"RAW"`
	Quiet               bool    `yaml:"quiet" env:"QUIET"`
	MaxTokens           int64   `yaml:"max-tokens" env:"MAX_TOKENS"`
	MaxCompletionTokens int64   `yaml:"max-completion-tokens" env:"MAX_COMPLETION_TOKENS"`
	Temperature         float64 `yaml:"temp" env:"TEMP"`
	TopP                float64 `yaml:"topp" env:"TOPP"`
	TopK                int64   `yaml:"topk" env:"TOPK"`
	CachePath           string  `yaml:"cache-path" env:"CACHE_PATH"`
	NoCache             bool    `yaml:"no-cache" env:"NO_CACHE"`
	MaxRetries          int     `yaml:"max-retries" env:"MAX_RETRIES"`
	WordWrap            int     `yaml:"word-wrap" env:"WORD_WRAP"`
	HTTPProxy           string  `yaml:"http-proxy" env:"HTTP_PROXY"`
	APIs                APIs    `yaml:"apis"`
	Theme               string  `yaml:"theme" env:"THEME"`
	User                string  `yaml:"user" env:"USER_ID"`
	LogLevel            string  `yaml:"log-level" env:"LOG_LEVEL"`

	HistoryBackend string `yaml:"history-backend" env:"HISTORY_BACKEND"`
	RedisURL       string `yaml:"redis-url" env:"REDIS_URL"`

	MCPServers       map[string]MCPServerConfig `yaml:"mcp-servers"`
	MCPDisable       []string                   `yaml:"mcp-disable" env:"MCP_DISABLE"`
	MCPDisabledTools []string                   `yaml:"mcp-disabled-tools" env:"MCP_DISABLED_TOOLS"`
	MCPTimeout       time.Duration              `yaml:"mcp-timeout" env:"MCP_TIMEOUT"`
	MCPNoInheritEnv  bool                       `yaml:"mcp-no-inherit-env" env:"MCP_NO_INHERIT_ENV"`
	MCPBindAll       bool                       `yaml:"mcp-bind-all" env:"MCP_BIND_ALL"`
}

// Runtime holds CLI/runtime-only options that should not be loaded from the
// settings file.
type Runtime struct {
	ShowHelp     bool
	Version      bool
	Verbose      bool
	SettingsPath string
	ContinueLast bool
	Continue     string
	Title        string
	Prefix       string
	OpenEditor   bool

	CacheReadFromID                   string
	CacheWriteToID, CacheWriteToTitle string
}

// Config is the application configuration (settings + runtime-only options).
//
// Settings fields are promoted for ergonomic access, but runtime fields are
// explicitly excluded from YAML/env parsing.
type Config struct {
	Settings `yaml:",inline"`
	Runtime  `yaml:"-" env:"-"`
}

// MCPServerNames returns the configured server names, sorted.
func (c *Config) MCPServerNames() []string {
	names := make([]string, 0, len(c.MCPServers))
	for name := range c.MCPServers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Ensure loads settings from disk and environment and applies defaults.
//
// It also creates the default settings file if it does not exist.
func Ensure() (Config, error) {
	var c Config
	home, err := os.UserHomeDir()
	if err != nil {
		return c, errs.Error{Err: err, Reason: "Could not determine home directory."}
	}

	sp := SettingsPath(home)
	c.SettingsPath = sp

	if dirErr := os.MkdirAll(filepath.Dir(sp), 0o700); dirErr != nil {
		return c, errs.Error{Err: dirErr, Reason: "Could not create configuration directory."}
	}
	if writeErr := WriteConfigFile(sp); writeErr != nil {
		return c, writeErr
	}

	if err := Load(&c, sp); err != nil {
		return c, err
	}
	if err := c.applyDefaults(home); err != nil {
		return c, err
	}
	return c, nil
}

// SettingsPath returns the settings file location under home.
func SettingsPath(home string) string {
	return filepath.Join(home, ".config", "relay", "relay.yml")
}

// Load reads the settings file at path into c and applies RELAY_ environment
// overrides.
func Load(c *Config, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return errs.Error{Err: err, Reason: "Could not read settings file."}
	}
	if err := yaml.Unmarshal(content, c); err != nil {
		return errs.Error{Err: err, Reason: "Could not parse settings file."}
	}
	if err := env.ParseWithOptions(c, env.Options{Prefix: "RELAY_"}); err != nil {
		return errs.Error{Err: err, Reason: "Could not parse environment into settings file."}
	}
	return nil
}

func (c *Config) applyDefaults(home string) error {
	def := Default()
	if c.CachePath == "" {
		c.CachePath = filepath.Join(home, ".config", "relay", "history")
	}
	if err := os.MkdirAll(filepath.Join(c.CachePath, "conversations"), 0o700); err != nil {
		return errs.Error{Err: err, Reason: "Could not create cache directory."}
	}
	if c.WordWrap == 0 {
		c.WordWrap = def.WordWrap
	}
	if c.MCPTimeout <= 0 {
		c.MCPTimeout = def.MCPTimeout
	}
	if c.HistoryBackend == "" {
		c.HistoryBackend = def.HistoryBackend
	}
	switch c.HistoryBackend {
	case HistoryFile, HistoryRedis:
	default:
		return errs.UserErrorf("Unknown history backend %q, expected %q or %q.", c.HistoryBackend, HistoryFile, HistoryRedis)
	}
	if c.HistoryBackend == HistoryRedis && c.RedisURL == "" {
		return errs.UserErrorf("The redis history backend needs %s.", "redis-url")
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	return nil
}

// WriteConfigFile creates the config file at path if it does not exist.
func WriteConfigFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return createConfigFile(path)
	} else if err != nil {
		return errs.Error{Err: err, Reason: "Could not stat path."}
	}
	return nil
}

func createConfigFile(path string) error {
	tmpl := template.Must(template.New("config").Parse(configTemplate))

	f, err := os.Create(path)
	if err != nil {
		return errs.Error{Err: err, Reason: "Could not create configuration file."}
	}
	defer func() { _ = f.Close() }()

	m := struct{ Config Config }{Config: Default()}
	if err := tmpl.Execute(f, m); err != nil {
		return errs.Error{Err: err, Reason: "Could not render template."}
	}
	return nil
}

// Default returns the default configuration values.
func Default() Config {
	return Config{
		Settings: Settings{
			API:            "openai",
			Model:          "gpt-4o",
			MaxRetries:     5,
			WordWrap:       80,
			Temperature:    1.0,
			TopP:           1.0,
			HistoryBackend: HistoryFile,
			LogLevel:       "WARNING",
			MCPTimeout:     15 * time.Second,
		},
	}
}
