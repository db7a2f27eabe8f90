package agent

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/go-shellwords"

	"github.com/dotcommander/relay/internal/config"
	"github.com/dotcommander/relay/internal/errs"
	"github.com/dotcommander/relay/internal/fantasybridge"
	"github.com/dotcommander/relay/internal/proto"
	"github.com/dotcommander/relay/internal/stream"
)

// ClientFactory creates the generator for a resolved provider.
type ClientFactory func(fantasybridge.Config) (Generator, error)

// Service resolves the configured model and provider and runs turns against
// it. It holds no terminal state and can be used by any command.
type Service struct {
	cfg           *config.Config
	tools         Toolbox
	clientFactory ClientFactory
}

// New creates an agent service. tools may be nil, in which case turns never
// bind tools.
func New(cfg *config.Config, tools Toolbox, factory ...ClientFactory) *Service {
	s := &Service{cfg: cfg, tools: tools, clientFactory: NewFantasyClient}
	if len(factory) > 0 && factory[0] != nil {
		s.clientFactory = factory[0]
	}
	return s
}

// TurnOptions are the per-invocation inputs of a turn.
type TurnOptions struct {
	History []proto.Message
	OnText  func(stream.Segment, string)
	OnTool  func(ToolExecution)
}

// Model resolves the configured model.
func (s *Service) Model() (config.Model, error) {
	_, mod, err := resolveModel(s.cfg)
	return mod, err
}

// Turn runs one user turn with prompt against the configured model.
func (s *Service) Turn(ctx context.Context, prompt string, opts TurnOptions) (TurnResult, error) {
	cfg := s.cfg

	api, mod, err := resolveModel(cfg)
	if err != nil {
		return TurnResult{}, err
	}
	// Keep runtime cfg in sync with resolved model.
	cfg.API = mod.API
	cfg.Model = mod.Name

	providerCfg, err := prepareProviderConfig(ctx, mod, api, cfg)
	if err != nil {
		return TurnResult{}, err
	}
	if err := ApplyProxyConfig(cfg.HTTPProxy, &providerCfg); err != nil {
		return TurnResult{}, err
	}
	client, err := s.clientFactory(providerCfg)
	if err != nil {
		return TurnResult{}, err
	}

	if prefix := cfg.Prefix; prefix != "" {
		prompt = strings.TrimSpace(prefix + "\n\n" + prompt)
	}
	if mod.MaxChars > 0 && int64(len(prompt)) > mod.MaxChars {
		prompt = prompt[:mod.MaxChars]
	}

	orch := NewOrchestrator(client, s.tools).WithRetry(func(err error, prompt string) StreamErrorAction {
		return ActionForStreamError(err, mod, prompt)
	}, cfg.MaxRetries)

	return orch.Turn(ctx, TurnInput{
		Prompt:  prompt,
		History: opts.History,
		Request: s.request(mod),
		BindAll: cfg.MCPBindAll,
		OnText:  opts.OnText,
		OnTool:  opts.OnTool,
	})
}

// request builds the sampling settings of a turn.
func (s *Service) request(mod config.Model) proto.Request {
	cfg := s.cfg
	req := proto.Request{
		API:   mod.API,
		Model: mod.Name,
		User:  cfg.User,
	}
	if cfg.Temperature >= 0 {
		v := cfg.Temperature
		req.Temperature = &v
	}
	if cfg.TopP >= 0 {
		v := cfg.TopP
		req.TopP = &v
	}
	if cfg.TopK > 0 {
		v := cfg.TopK
		req.TopK = &v
	}
	// o1 models do not accept max_tokens.
	if cfg.MaxTokens > 0 && !strings.HasPrefix(mod.Name, "o1") {
		v := cfg.MaxTokens
		req.MaxTokens = &v
	}
	if cfg.MaxCompletionTokens > 0 {
		v := cfg.MaxCompletionTokens
		req.MaxCompletionTokens = &v
	}
	return req
}

func resolveModel(cfg *config.Config) (config.API, config.Model, error) {
	for _, api := range cfg.APIs {
		if api.Name != cfg.API && cfg.API != "" {
			continue
		}
		for name, mod := range api.Models {
			if name == cfg.Model || slices.Contains(mod.Aliases, cfg.Model) {
				cfg.Model = name
				break
			}
		}
		mod, ok := api.Models[cfg.Model]
		if ok {
			mod.Name = cfg.Model
			mod.API = api.Name
			return api, mod, nil
		}
		if cfg.API != "" {
			available := make([]string, 0, len(api.Models))
			for name := range api.Models {
				available = append(available, name)
			}
			slices.Sort(available)
			return config.API{}, config.Model{}, errs.Error{
				Err:    errs.UserErrorf("Available models are: %s", strings.Join(available, ", ")),
				Reason: fmt.Sprintf("The API endpoint %s does not contain the model %s", cfg.API, cfg.Model),
			}
		}
	}

	return config.API{}, config.Model{}, errs.Error{
		Reason: fmt.Sprintf("Model %s is not in the settings file.", cfg.Model),
		Err:    errs.UserErrorf("Please specify an API endpoint with --api or configure the model in the settings: relay config edit"),
	}
}

// keySource describes where a provider's key comes from when the settings
// file does not have one.
type keySource struct {
	env      string
	docs     string
	reason   string
	optional bool
}

var keySources = map[string]keySource{
	"openrouter": {env: "OPENROUTER_API_KEY", docs: "https://openrouter.ai/keys", reason: "OpenRouter authentication failed"},
	"vercel":     {env: "VERCEL_API_KEY", docs: "https://vercel.com/dashboard/tokens", reason: "Vercel AI Gateway authentication failed"},
	"bedrock":    {reason: "Bedrock authentication failed", optional: true},
	"cohere":     {env: "COHERE_API_KEY", docs: "https://dashboard.cohere.com/api-keys", reason: "Cohere authentication failed"},
	"ollama":     {reason: "Ollama authentication failed", optional: true},
	"azure":      {env: "AZURE_OPENAI_KEY", docs: "https://aka.ms/oai/access", reason: "Azure authentication failed"},
	"azure-ad":   {env: "AZURE_OPENAI_KEY", docs: "https://aka.ms/oai/access", reason: "Azure authentication failed"},
	"anthropic":  {env: "ANTHROPIC_API_KEY", docs: "https://console.anthropic.com/settings/keys", reason: "Anthropic authentication failed"},
	"google":     {env: "GOOGLE_API_KEY", docs: "https://aistudio.google.com/app/apikey", reason: "Google authentication failed"},
}

var defaultKeySource = keySource{
	env:    "OPENAI_API_KEY",
	docs:   "https://platform.openai.com/account/api-keys",
	reason: "OpenAI authentication failed",
}

func prepareProviderConfig(ctx context.Context, mod config.Model, api config.API, cfg *config.Config) (fantasybridge.Config, error) {
	src, ok := keySources[mod.API]
	if !ok {
		src = defaultKeySource
	}

	var key string
	var err error
	if src.optional {
		key, err = optionalKey(ctx, api)
	} else {
		key, err = ensureKey(ctx, api, src.env, src.docs)
	}
	if err != nil {
		return fantasybridge.Config{}, errs.Error{Err: err, Reason: src.reason}
	}

	out := fantasybridge.Config{API: mod.API, APIKey: key, BaseURL: api.BaseURL}
	switch mod.API {
	case "ollama":
		if out.BaseURL == "" {
			out.BaseURL = "http://localhost:11434/v1"
		}
	case "azure-ad":
		out.API = "azure"
	case "google":
		out.ThinkingBudget = mod.ThinkingBudget
	}
	if (mod.API == "azure" || mod.API == "azure-ad") && api.User != "" {
		cfg.User = api.User
	}
	return out, nil
}

// ApplyProxyConfig configures the provider HTTP client to use an HTTP proxy.
func ApplyProxyConfig(httpProxy string, providerCfg *fantasybridge.Config) error {
	if httpProxy == "" {
		return nil
	}
	proxyURL, err := url.Parse(httpProxy)
	if err != nil {
		return errs.Error{Err: err, Reason: "There was an error parsing your proxy URL."}
	}
	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return errs.Error{Err: fmt.Errorf("default transport is not *http.Transport"), Reason: "Could not configure proxy."}
	}
	tr := base.Clone()
	tr.Proxy = http.ProxyURL(proxyURL)
	tr.DialContext = (&net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}).DialContext
	tr.TLSHandshakeTimeout = 10 * time.Second
	tr.ResponseHeaderTimeout = 30 * time.Second
	tr.IdleConnTimeout = 90 * time.Second
	tr.ExpectContinueTimeout = 1 * time.Second
	providerCfg.HTTPClient = &http.Client{Transport: tr}
	return nil
}

// NewFantasyClient creates the fantasy bridge client.
func NewFantasyClient(cfg fantasybridge.Config) (Generator, error) {
	if cfg.API == "" {
		return nil, errs.Error{Reason: "missing fantasy provider configuration"}
	}
	client, err := fantasybridge.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("new fantasy bridge client: %w", err)
	}
	return client, nil
}

func ensureKey(ctx context.Context, api config.API, defaultEnv, docsURL string) (string, error) {
	key, err := optionalKey(ctx, api)
	if err != nil {
		return "", err
	}
	if key == "" {
		key = os.Getenv(defaultEnv)
	}
	if key != "" {
		return key, nil
	}
	return "", errs.Error{
		Reason: fmt.Sprintf("%s required; set %s or update relay.yml through relay config edit.", defaultEnv, defaultEnv),
		Err:    errs.UserErrorf("You can grab one at %s", docsURL),
	}
}

func optionalKey(ctx context.Context, api config.API) (string, error) {
	key := api.APIKey
	if key == "" && api.APIKeyEnv != "" && api.APIKeyCmd == "" {
		key = os.Getenv(api.APIKeyEnv)
	}
	if key == "" && api.APIKeyCmd != "" {
		args, err := shellwords.Parse(api.APIKeyCmd)
		if err != nil {
			return "", errs.Error{Err: err, Reason: "Failed to parse api-key-cmd"}
		}
		if len(args) == 0 {
			return "", errs.Error{Reason: "api-key-cmd is empty"}
		}
		// #nosec G204 -- api-key-cmd is explicitly configured by the local user.
		out, err := exec.CommandContext(ctx, args[0], args[1:]...).Output()
		if err != nil {
			return "", errs.Error{Err: err, Reason: "Cannot exec api-key-cmd"}
		}
		key = strings.TrimSpace(string(out))
	}
	return key, nil
}
