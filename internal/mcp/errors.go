package mcp

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// Errors reported by the registry, resolver and executor. Use errors.Is to
// classify; the returned errors carry the server or tool name in the message.
var (
	ErrConfigNotFound        = errors.New("mcp: server config not found")
	ErrConnection            = errors.New("mcp: connection failed")
	ErrCapabilityUnsupported = errors.New("mcp: capability not supported")
	ErrMalformedID           = errors.New("mcp: malformed tool id")
	ErrUnknownServer         = errors.New("mcp: unknown server")
	ErrUnknownTool           = errors.New("mcp: unknown tool")
	ErrToolDisabled          = errors.New("mcp: tool disabled")
	ErrServerNotConnected    = errors.New("mcp: server not connected")
	ErrExecution             = errors.New("mcp: tool execution failed")
)

// isCapabilityUnsupported reports whether err is a provider's signal that it
// does not implement an optional method.
func isCapabilityUnsupported(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCapabilityUnsupported) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "method not found") ||
		strings.Contains(msg, "not support") ||
		strings.Contains(msg, "unsupported") ||
		strings.Contains(msg, "-32601")
}
