//go:build relay_small

package fantasybridge

import "charm.land/fantasy"

// The small build only talks to OpenAI-compatible endpoints.
func newProvider(cfg Config) (fantasy.Provider, error) {
	return newCompat(cfg)
}
