// Package proto holds the provider-neutral conversation types shared by the
// model bridge, the turn orchestrator and the conversation store.
package proto

import (
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
)

// Roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Function is the name and raw JSON arguments of a tool invocation.
type Function struct {
	Name      string `json:"name"`
	Arguments []byte `json:"arguments"`
}

// ToolCall is a single tool invocation requested by the model. On tool
// messages it identifies the call the content answers.
type ToolCall struct {
	ID       string   `json:"id"`
	IsError  bool     `json:"is_error,omitempty"`
	Function Function `json:"function"`
}

// Message is a single message in a conversation.
type Message struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

func (m Message) String() string {
	var sb strings.Builder
	switch m.Role {
	case RoleSystem:
		return ""
	case RoleUser:
		sb.WriteString("**Prompt**: ")
		sb.WriteString(m.Content)
	case RoleAssistant:
		sb.WriteString("**Assistant**: ")
		sb.WriteString(m.Content)
		for _, call := range m.ToolCalls {
			fmt.Fprintf(&sb, "\n\n> Called `%s` with `%s`", call.Function.Name, string(call.Function.Arguments))
		}
	case RoleTool:
		for _, call := range m.ToolCalls {
			status := "Result of"
			if call.IsError {
				status = "Error from"
			}
			fmt.Fprintf(&sb, "> %s `%s`:\n\n", status, call.Function.Name)
		}
		sb.WriteString("```\n")
		sb.WriteString(strings.TrimRight(m.Content, "\n"))
		sb.WriteString("\n```")
	}
	return sb.String()
}

// Conversation is a list of messages.
type Conversation []Message

func (cc Conversation) String() string {
	var sb strings.Builder
	for _, msg := range cc {
		s := msg.String()
		if s == "" {
			continue
		}
		sb.WriteString(s)
		sb.WriteString("\n\n")
	}
	return sb.String()
}

// Tool is a tool offered to the model for one generation pass.
type Tool struct {
	Name        string
	Description string
	InputSchema *jsonschema.Schema
}

// Request is a single generation request.
type Request struct {
	Messages            []Message
	API                 string
	Model               string
	User                string
	Tools               []Tool
	Temperature         *float64
	TopP                *float64
	TopK                *int64
	MaxTokens           *int64
	MaxCompletionTokens *int64
}
