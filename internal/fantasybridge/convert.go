package fantasybridge

import (
	"encoding/json"
	"errors"

	"charm.land/fantasy"
	"github.com/effective-security/xlog"
	"github.com/invopop/jsonschema"

	"github.com/dotcommander/relay/internal/proto"
)

func toFantasyPrompt(input []proto.Message) fantasy.Prompt {
	messages := make([]fantasy.Message, 0, len(input))

	for _, msg := range input {
		switch msg.Role {
		case proto.RoleSystem:
			messages = append(messages, fantasy.Message{
				Role:    fantasy.MessageRoleSystem,
				Content: []fantasy.MessagePart{fantasy.TextPart{Text: msg.Content}},
			})
		case proto.RoleUser:
			messages = append(messages, fantasy.Message{
				Role:    fantasy.MessageRoleUser,
				Content: []fantasy.MessagePart{fantasy.TextPart{Text: msg.Content}},
			})
		case proto.RoleAssistant:
			parts := make([]fantasy.MessagePart, 0, 1+len(msg.ToolCalls))
			if msg.Content != "" {
				parts = append(parts, fantasy.TextPart{Text: msg.Content})
			}
			for _, call := range msg.ToolCalls {
				parts = append(parts, fantasy.ToolCallPart{
					ToolCallID: call.ID,
					ToolName:   call.Function.Name,
					Input:      string(call.Function.Arguments),
				})
			}
			if len(parts) > 0 {
				messages = append(messages, fantasy.Message{Role: fantasy.MessageRoleAssistant, Content: parts})
			}
		case proto.RoleTool:
			// one tool message answers exactly one call
			if len(msg.ToolCalls) == 0 {
				continue
			}
			call := msg.ToolCalls[0]
			var output fantasy.ToolResultOutputContent = fantasy.ToolResultOutputContentText{Text: msg.Content}
			if call.IsError {
				output = fantasy.ToolResultOutputContentError{Error: errors.New(msg.Content)}
			}
			messages = append(messages, fantasy.Message{
				Role: fantasy.MessageRoleTool,
				Content: []fantasy.MessagePart{fantasy.ToolResultPart{
					ToolCallID: call.ID,
					Output:     output,
				}},
			})
		}
	}

	return messages
}

// fromTools declares the bound tools to the provider under their canonical
// ids.
func fromTools(tools []proto.Tool) []fantasy.Tool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]fantasy.Tool, 0, len(tools))
	for _, tool := range tools {
		out = append(out, fantasy.FunctionTool{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: schemaMap(tool.Name, tool.InputSchema),
		})
	}
	return out
}

// schemaMap renders a schema as the generic object providers expect. The
// result is always an object schema with a properties member.
func schemaMap(name string, schema *jsonschema.Schema) map[string]any {
	out := map[string]any{}
	if schema != nil {
		bts, err := json.Marshal(schema)
		if err == nil {
			err = json.Unmarshal(bts, &out)
		}
		if err != nil {
			logger.KV(xlog.WARNING, "tool", name, "reason", "schema", "err", err)
			out = map[string]any{}
		}
	}
	out["type"] = "object"
	if _, ok := out["properties"].(map[string]any); !ok {
		out["properties"] = map[string]any{}
	}
	return out
}

func toolChoiceForRequest(request proto.Request) *fantasy.ToolChoice {
	if len(request.Tools) == 0 {
		return nil
	}
	choice := fantasy.ToolChoiceAuto
	return &choice
}
