package fantasybridge

import (
	"testing"

	"charm.land/fantasy"
	"charm.land/fantasy/providers/google"
	fopenai "charm.land/fantasy/providers/openai"
	fopenaicompat "charm.land/fantasy/providers/openaicompat"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/relay/internal/proto"
	"github.com/dotcommander/relay/internal/stream"
)

func TestBuildCallGoogleThinkingBudget(t *testing.T) {
	c := &Client{config: Config{API: "google", ThinkingBudget: 256}}
	call := c.buildCall(proto.Request{})

	v, ok := call.ProviderOptions[google.Name]
	require.True(t, ok)
	opts, ok := v.(*google.ProviderOptions)
	require.True(t, ok)
	require.NotNil(t, opts.ThinkingConfig)
	require.NotNil(t, opts.ThinkingConfig.ThinkingBudget)
	require.EqualValues(t, 256, *opts.ThinkingConfig.ThinkingBudget)
}

func TestBuildCallNoProviderOptions(t *testing.T) {
	c := &Client{config: Config{API: "openai", ThinkingBudget: 512}}
	call := c.buildCall(proto.Request{})
	require.Empty(t, call.ProviderOptions)
	require.Nil(t, call.ToolChoice)
}

func TestBuildCallUserProviderOptions(t *testing.T) {
	for _, api := range []string{"openai", "azure"} {
		t.Run(api, func(t *testing.T) {
			c := &Client{config: Config{API: api}}
			call := c.buildCall(proto.Request{User: "alice"})
			v, ok := call.ProviderOptions[fopenai.Name]
			require.True(t, ok)
			opts, ok := v.(*fopenai.ProviderOptions)
			require.True(t, ok)
			require.Equal(t, "alice", *opts.User)
		})
	}

	t.Run("openai-compatible", func(t *testing.T) {
		c := &Client{config: Config{API: "deepseek"}}
		call := c.buildCall(proto.Request{User: "bob"})
		v, ok := call.ProviderOptions[fopenaicompat.Name]
		require.True(t, ok)
		opts, ok := v.(*fopenaicompat.ProviderOptions)
		require.True(t, ok)
		require.Equal(t, "bob", *opts.User)
	})

	t.Run("anthropic ignores user", func(t *testing.T) {
		c := &Client{config: Config{API: "anthropic"}}
		call := c.buildCall(proto.Request{User: "carol"})
		require.Empty(t, call.ProviderOptions)
	})
}

func TestBuildCallMaxCompletionTokens(t *testing.T) {
	limit := int64(300)
	c := &Client{config: Config{API: "openai"}}
	call := c.buildCall(proto.Request{MaxCompletionTokens: &limit})
	opts, ok := call.ProviderOptions[fopenai.Name].(*fopenai.ProviderOptions)
	require.True(t, ok)
	require.EqualValues(t, 300, *opts.MaxCompletionTokens)
}

func TestNewAzureADProviderAlias(t *testing.T) {
	client, err := New(Config{
		API:     "azure-ad",
		APIKey:  "token",
		BaseURL: "https://example.openai.azure.com",
	})
	require.NoError(t, err)
	require.NotNil(t, client)
}

func TestTranslate(t *testing.T) {
	tr := newTranslator()
	boom := errors.New("overloaded")

	parts := []fantasy.StreamPart{
		{Type: fantasy.StreamPartTypeTextStart},
		{Type: fantasy.StreamPartTypeReasoningDelta, Delta: "thinking "},
		{Type: fantasy.StreamPartTypeTextDelta, Delta: "hi"},
		{Type: fantasy.StreamPartTypeToolInputStart, ID: "tc_a", ToolCallName: "mcp_fs_read"},
		{Type: fantasy.StreamPartTypeToolInputStart, ID: "tc_b", ToolCallName: "mcp_fs_stat"},
		{Type: fantasy.StreamPartTypeToolInputDelta, ID: "tc_a", Delta: `{"p":`},
		{Type: fantasy.StreamPartTypeToolInputDelta, ID: "tc_b", Delta: `{}`},
		{Type: fantasy.StreamPartTypeToolInputDelta, ID: "tc_a", Delta: `"/"}`},
		{Type: fantasy.StreamPartTypeToolCall, ID: "tc_a", ToolCallName: "mcp_fs_read", ToolCallInput: `{"p":"/"}`},
		{Type: fantasy.StreamPartTypeToolInputStart, ID: "srv", ToolCallName: "web_search", ProviderExecuted: true},
		{Type: fantasy.StreamPartTypeToolInputDelta, ID: "srv", Delta: `{}`},
		{Type: fantasy.StreamPartTypeFinish, FinishReason: "tool-calls"},
		{Type: fantasy.StreamPartTypeError, Error: boom},
	}

	var events []stream.Event
	for _, part := range parts {
		events = append(events, tr.translate(part)...)
	}

	require.Equal(t, []stream.Event{
		stream.Thinking("thinking "),
		stream.Text("hi"),
		stream.Delta(0, "tc_a", "mcp_fs_read", ""),
		stream.Delta(1, "tc_b", "mcp_fs_stat", ""),
		stream.Delta(0, "", "", `{"p":`),
		stream.Delta(1, "", "", `{}`),
		stream.Delta(0, "", "", `"/"}`),
		stream.Call(0, "tc_a", "mcp_fs_read", `{"p":"/"}`),
		stream.Finish("tool-calls"),
		stream.Failure(boom),
	}, events)
}

func TestTranslateCallWithoutArgumentDeltas(t *testing.T) {
	tr := newTranslator()
	parts := []fantasy.StreamPart{
		{Type: fantasy.StreamPartTypeToolInputStart, ID: "tc_now", ToolCallName: "mcp_clock_now"},
		{Type: fantasy.StreamPartTypeToolCall, ID: "tc_now", ToolCallName: "mcp_clock_now"},
		{Type: fantasy.StreamPartTypeToolInputStart, ID: "tc_ls", ToolCallName: "mcp_fs_list"},
		{Type: fantasy.StreamPartTypeToolCall, ID: "tc_ls", ToolCallName: "mcp_fs_list", ToolCallInput: `{"dir":"."}`},
	}

	var events []stream.Event
	for _, part := range parts {
		events = append(events, tr.translate(part)...)
	}
	require.Equal(t, []stream.Event{
		stream.Delta(0, "tc_now", "mcp_clock_now", ""),
		stream.Delta(0, "", "", "{}"),
		stream.Call(0, "tc_now", "mcp_clock_now", ""),
		stream.Delta(1, "tc_ls", "mcp_fs_list", ""),
		stream.Delta(1, "", "", `{"dir":"."}`),
		stream.Call(1, "tc_ls", "mcp_fs_list", `{"dir":"."}`),
	}, events)

	acc := stream.NewAccumulator("", nil)
	for _, ev := range events {
		require.NoError(t, acc.Add(ev))
	}
	res := acc.End()
	require.Empty(t, res.Dropped)
	require.Len(t, res.Calls, 2)
	require.Equal(t, map[string]any{}, res.Calls[0].Args)
	require.Equal(t, map[string]any{"dir": "."}, res.Calls[1].Args)
}

func TestWarningText(t *testing.T) {
	require.Equal(t, "slow down", warningText("  slow down ", "details", "topk"))
	require.Equal(t, "details", warningText("", "details", "topk"))
	require.Equal(t, "unsupported setting: topk", warningText("", " ", "topk"))
	require.Equal(t, "provider warning", warningText("", "", ""))
}
