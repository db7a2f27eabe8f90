//go:build !relay_small

package fantasybridge

import (
	"charm.land/fantasy"
	fgoogle "charm.land/fantasy/providers/google"
	fopenai "charm.land/fantasy/providers/openai"
	fopenaicompat "charm.land/fantasy/providers/openaicompat"

	"github.com/dotcommander/relay/internal/proto"
)

func applyProviderOptions(call *fantasy.Call, cfg Config, req proto.Request) {
	openAIOpts := &fopenai.ProviderOptions{}
	hasOpenAIOpts := false

	if req.User != "" {
		user := req.User
		switch cfg.API {
		case apiOpenAI, apiAzure, apiAzureAD:
			openAIOpts.User = &user
			hasOpenAIOpts = true
		case apiAnthropic, apiGoogle, apiOpenRouter, apiVercel, apiBedrock:
		default:
			call.ProviderOptions[fopenaicompat.Name] = &fopenaicompat.ProviderOptions{User: &user}
		}
	}

	if req.MaxCompletionTokens != nil {
		switch cfg.API {
		case apiOpenAI, apiAzure, apiAzureAD:
			openAIOpts.MaxCompletionTokens = req.MaxCompletionTokens
			hasOpenAIOpts = true
		}
	}

	if hasOpenAIOpts {
		call.ProviderOptions[fopenai.Name] = openAIOpts
	}

	if cfg.API == apiGoogle && cfg.ThinkingBudget > 0 {
		call.ProviderOptions[fgoogle.Name] = &fgoogle.ProviderOptions{
			ThinkingConfig: &fgoogle.ThinkingConfig{
				ThinkingBudget: fantasy.Opt(int64(cfg.ThinkingBudget)),
			},
		}
	}
}
