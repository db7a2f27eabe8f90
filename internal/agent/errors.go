package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"charm.land/fantasy"

	"github.com/dotcommander/relay/internal/config"
	"github.com/dotcommander/relay/internal/errs"
)

// StreamErrorAction describes how a failed generation pass is handled.
type StreamErrorAction struct {
	Retry         bool
	Prompt        string
	ModelOverride string
	Err           errs.Error
}

// failure is the retry class of a first-pass error.
type failure int

const (
	failFinal failure = iota
	failTimeout
	failTransient
	failMissingModel
	failPromptTooLong
)

// classify sorts err into a retry class. The provider error is returned when
// there is one.
func classify(err error) (failure, *fantasy.ProviderError) {
	var pe *fantasy.ProviderError
	if !errors.As(err, &pe) {
		if errors.Is(err, context.DeadlineExceeded) {
			return failTimeout, nil
		}
		return failFinal, nil
	}
	switch {
	case pe.StatusCode == http.StatusNotFound:
		return failMissingModel, pe
	case pe.StatusCode == http.StatusBadRequest && isContextLengthExceeded(pe):
		return failPromptTooLong, pe
	case pe.StatusCode == http.StatusBadRequest:
		return failFinal, pe
	case pe.IsRetryable():
		return failTransient, pe
	default:
		return failFinal, pe
	}
}

// ActionForStreamError decides how a failed first pass is retried.
//
// It is only consulted while no text has reached the user, so a retry replays
// the same request. A retry keeps the API: it may shorten prompt or switch to
// the model's configured fallback, nothing else.
func ActionForStreamError(err error, mod config.Model, prompt string) StreamErrorAction {
	kind, pe := classify(err)
	retry := func(reason string) StreamErrorAction {
		return StreamErrorAction{Retry: true, Prompt: prompt, Err: errs.Error{Err: err, Reason: reason}}
	}
	final := func(reason string) StreamErrorAction {
		return StreamErrorAction{Err: errs.Error{Err: err, Reason: reason}}
	}

	switch kind {
	case failTimeout:
		return retry(fmt.Sprintf("The %s API request timed out.", mod.API))

	case failTransient:
		return retry(providerReason(pe, "Retryable API error."))

	case failMissingModel:
		if mod.Fallback == "" {
			return final(fmt.Sprintf("Missing model '%s' for API '%s'.", mod.Name, mod.API))
		}
		action := retry(providerReason(pe, fmt.Sprintf("%s API server error.", mod.API)))
		action.ModelOverride = mod.Fallback
		return action

	case failPromptTooLong:
		action := final("Maximum prompt size exceeded.")
		if cut := cutPrompt(pe.Message, prompt); cut != prompt {
			action.Retry = true
			action.Prompt = cut
		}
		return action
	}

	if pe != nil {
		return final(providerReason(pe, fmt.Sprintf("%s API request error.", mod.API)))
	}
	return final(fmt.Sprintf("There was a problem with the %s API request.", mod.API))
}

// providerReason is the title of the provider's status code, or fallback.
func providerReason(pe *fantasy.ProviderError, fallback string) string {
	if reason := fantasy.ErrorTitleForStatusCode(pe.StatusCode); reason != "" {
		return reason
	}
	return fallback
}

func isContextLengthExceeded(err *fantasy.ProviderError) bool {
	return strings.Contains(strings.ToLower(err.Message), "context_length_exceeded") ||
		strings.Contains(strings.ToLower(string(err.ResponseBody)), "context_length_exceeded")
}

var tokenErrRe = regexp.MustCompile(`maximum context length is (\d+) tokens. However, your messages resulted in (\d+) tokens`)

// cutPrompt shortens prompt by the overflow the provider reported, at about
// four characters per token plus a small margin. The prompt is returned as is
// when the message cannot be parsed or the cut would leave nothing.
func cutPrompt(msg, prompt string) string {
	found := tokenErrRe.FindStringSubmatch(msg)
	if len(found) != 3 { //nolint:mnd
		return prompt
	}
	limit, _ := strconv.Atoi(found[1])
	used, _ := strconv.Atoi(found[2])
	if limit > used {
		return prompt
	}

	reduceBy := 10 + (used-limit)*4 //nolint:mnd
	if len(prompt) <= reduceBy {
		return prompt
	}
	return prompt[:len(prompt)-reduceBy]
}
