package proto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConversationString(t *testing.T) {
	conv := Conversation{
		{Role: RoleSystem, Content: "be nice"},
		{Role: RoleUser, Content: "weather?"},
		{Role: RoleAssistant, ToolCalls: []ToolCall{{
			ID:       "c1",
			Function: Function{Name: "mcp_wx_forecast", Arguments: []byte(`{"city":"Oslo"}`)},
		}}},
		{Role: RoleTool, Content: "rain\n", ToolCalls: []ToolCall{{
			ID:       "c1",
			Function: Function{Name: "mcp_wx_forecast"},
		}}},
		{Role: RoleAssistant, Content: "It rains."},
	}

	expected := "**Prompt**: weather?\n\n" +
		"**Assistant**: \n\n> Called `mcp_wx_forecast` with `{\"city\":\"Oslo\"}`\n\n" +
		"> Result of `mcp_wx_forecast`:\n\n```\nrain\n```\n\n" +
		"**Assistant**: It rains.\n\n"
	require.Equal(t, expected, conv.String())
}

func TestMessageStringToolError(t *testing.T) {
	msg := Message{Role: RoleTool, Content: "boom", ToolCalls: []ToolCall{{
		ID:       "c1",
		IsError:  true,
		Function: Function{Name: "mcp_fs_read"},
	}}}
	require.Equal(t, "> Error from `mcp_fs_read`:\n\n```\nboom\n```", msg.String())
}
