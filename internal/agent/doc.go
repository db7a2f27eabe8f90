// Package agent contains relay's turn logic.
//
// It resolves the model and provider configuration, binds the MCP tools a
// prompt mentions, streams the first generation pass, runs the requested
// tool calls and streams one continuation pass with their results.
package agent
