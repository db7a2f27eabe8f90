// Package fantasybridge streams model generations through charm.land/fantasy
// and translates them into stream events.
package fantasybridge

import (
	"context"
	"fmt"
	"iter"
	"net/http"
	"strings"

	"charm.land/fantasy"
	fopenaicompat "charm.land/fantasy/providers/openaicompat"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"

	"github.com/dotcommander/relay/internal/proto"
	"github.com/dotcommander/relay/internal/stream"
)

var logger = xlog.NewPackageLogger("github.com/dotcommander/relay/internal", "fantasybridge")

const (
	apiAnthropic  = "anthropic"
	apiGoogle     = "google"
	apiOpenAI     = "openai"
	apiAzure      = "azure"
	apiAzureAD    = "azure-ad"
	apiOpenRouter = "openrouter"
	apiVercel     = "vercel"
	apiBedrock    = "bedrock"
)

// Config represents provider configuration used by the fantasy bridge.
type Config struct {
	API            string
	BaseURL        string
	APIKey         string
	HTTPClient     *http.Client
	ThinkingBudget int
}

// Client streams generations from one provider.
type Client struct {
	provider fantasy.Provider
	config   Config
}

// New creates a new Fantasy-backed client.
func New(cfg Config) (*Client, error) {
	provider, err := newProvider(cfg)
	if err != nil {
		return nil, err
	}
	return &Client{provider: provider, config: cfg}, nil
}

func newCompat(cfg Config) (fantasy.Provider, error) {
	opts := []fopenaicompat.Option{fopenaicompat.WithName(cfg.API)}
	if cfg.APIKey != "" {
		opts = append(opts, fopenaicompat.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, fopenaicompat.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, fopenaicompat.WithHTTPClient(cfg.HTTPClient))
	}
	provider, err := fopenaicompat.New(opts...)
	if err != nil {
		return nil, errors.Wrap(err, "new fantasy openai-compatible provider")
	}
	return provider, nil
}

// Stream starts one generation pass. Errors raised while the pass is running
// arrive as stream.KindError events; cancelling ctx aborts the provider call.
func (c *Client) Stream(ctx context.Context, req proto.Request) (iter.Seq[stream.Event], error) {
	model, err := c.provider.LanguageModel(ctx, req.Model)
	if err != nil {
		return nil, errors.Wrap(err, "fantasy language model")
	}
	parts, err := model.Stream(ctx, c.buildCall(req))
	if err != nil {
		return nil, errors.Wrap(err, "fantasy stream")
	}

	return func(yield func(stream.Event) bool) {
		t := newTranslator()
		for part := range parts {
			for _, ev := range t.translate(part) {
				if !yield(ev) {
					return
				}
			}
		}
	}, nil
}

func (c *Client) buildCall(req proto.Request) fantasy.Call {
	call := fantasy.Call{
		Prompt:          toFantasyPrompt(req.Messages),
		MaxOutputTokens: req.MaxTokens,
		Temperature:     req.Temperature,
		TopP:            req.TopP,
		TopK:            req.TopK,
		Tools:           fromTools(req.Tools),
		ToolChoice:      toolChoiceForRequest(req),
		ProviderOptions: fantasy.ProviderOptions{},
	}
	applyProviderOptions(&call, c.config, req)
	return call
}

// translator assigns pass-local indices to provider call ids, in the order
// calls are first seen.
type translator struct {
	indices  map[string]int
	external map[string]struct{}
	warned   map[string]struct{}
	// started calls that have not streamed any argument delta yet
	noArgs map[string]struct{}
}

func newTranslator() *translator {
	return &translator{
		indices:  map[string]int{},
		external: map[string]struct{}{},
		warned:   map[string]struct{}{},
		noArgs:   map[string]struct{}{},
	}
}

func (t *translator) index(id string) int {
	if idx, ok := t.indices[id]; ok {
		return idx
	}
	idx := len(t.indices)
	t.indices[id] = idx
	return idx
}

func (t *translator) translate(part fantasy.StreamPart) []stream.Event {
	switch part.Type {
	case fantasy.StreamPartTypeTextDelta:
		return []stream.Event{stream.Text(part.Delta)}
	case fantasy.StreamPartTypeReasoningDelta:
		return []stream.Event{stream.Thinking(part.Delta)}
	case fantasy.StreamPartTypeToolInputStart:
		if part.ProviderExecuted {
			t.external[part.ID] = struct{}{}
			return nil
		}
		t.noArgs[part.ID] = struct{}{}
		return []stream.Event{stream.Delta(t.index(part.ID), part.ID, part.ToolCallName, "")}
	case fantasy.StreamPartTypeToolInputDelta:
		if _, ok := t.external[part.ID]; ok {
			return nil
		}
		if part.Delta != "" {
			delete(t.noArgs, part.ID)
		}
		return []stream.Event{stream.Delta(t.index(part.ID), "", "", part.Delta)}
	case fantasy.StreamPartTypeToolCall:
		if _, ok := t.external[part.ID]; ok || part.ProviderExecuted {
			return nil
		}
		idx := t.index(part.ID)
		call := stream.Call(idx, part.ID, part.ToolCallName, part.ToolCallInput)
		if _, ok := t.noArgs[part.ID]; !ok {
			return []stream.Event{call}
		}
		// Providers send a start and then the finished call for tools
		// without parameters; the call's input completes the fragment.
		delete(t.noArgs, part.ID)
		input := part.ToolCallInput
		if strings.TrimSpace(input) == "" {
			input = "{}"
		}
		return []stream.Event{stream.Delta(idx, "", "", input), call}
	case fantasy.StreamPartTypeWarnings:
		var events []stream.Event
		for _, w := range part.Warnings {
			text := warningText(w.Message, w.Details, string(w.Setting))
			key := string(w.Type) + ":" + text
			if _, seen := t.warned[key]; seen {
				continue
			}
			t.warned[key] = struct{}{}
			events = append(events, stream.Warning(text))
		}
		return events
	case fantasy.StreamPartTypeError:
		err := part.Error
		if err == nil {
			err = errors.New("provider stream failed")
		}
		return []stream.Event{stream.Failure(err)}
	case fantasy.StreamPartTypeFinish:
		return []stream.Event{stream.Finish(string(part.FinishReason))}
	default:
		logger.KV(xlog.TRACE, "part", part.Type)
		return nil
	}
}

func warningText(message, details, setting string) string {
	if text := strings.TrimSpace(message); text != "" {
		return text
	}
	if text := strings.TrimSpace(details); text != "" {
		return text
	}
	if setting != "" {
		return fmt.Sprintf("unsupported setting: %s", setting)
	}
	return "provider warning"
}
