package mcp

import (
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"
)

func decode(t *testing.T, s string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(s), &v))
	return v
}

func TestConvertSchema(t *testing.T) {
	s := ConvertSchema(decode(t, `{
		"type": "object",
		"description": "search",
		"required": ["query", 7],
		"properties": {
			"query": {"type": "string", "enum": ["a", "b"]},
			"limit": {"type": ["integer", "null"]},
			"tags": {"type": "array", "items": {"type": "string"}},
			"opts": {"properties": {"deep": {"type": "boolean"}}},
			"blob": {"oneOf": [{"type": "string"}, {"type": "number"}]},
			"weird": 42
		}
	}`))

	require.Equal(t, "object", s.Type)
	require.Equal(t, "search", s.Description)
	require.Equal(t, []string{"query"}, s.Required)

	var names []string
	for pair := s.Properties.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	require.Equal(t, []string{"blob", "limit", "opts", "query", "tags", "weird"}, names)

	query, _ := s.Properties.Get("query")
	require.Equal(t, "string", query.Type)
	require.Equal(t, []any{"a", "b"}, query.Enum)

	limit, _ := s.Properties.Get("limit")
	require.Equal(t, "integer", limit.Type)

	tags, _ := s.Properties.Get("tags")
	require.Equal(t, "array", tags.Type)
	require.Equal(t, "string", tags.Items.Type)

	opts, _ := s.Properties.Get("opts")
	require.Equal(t, "object", opts.Type)

	blob, _ := s.Properties.Get("blob")
	require.Empty(t, blob.Type, "unions are unconstrained")

	weird, _ := s.Properties.Get("weird")
	require.Empty(t, weird.Type)
}

func TestConvertToolSchema(t *testing.T) {
	t.Run("from typed input schema", func(t *testing.T) {
		s := ConvertToolSchema(echoTool())
		require.Equal(t, "object", s.Type)
		require.Equal(t, []string{"text"}, s.Required)
		text, ok := s.Properties.Get("text")
		require.True(t, ok)
		require.Equal(t, "string", text.Type)
	})

	t.Run("from raw schema", func(t *testing.T) {
		tool := mcp.NewToolWithRawSchema("raw", "", json.RawMessage(`{"type":"object","properties":{"n":{"type":"number"}}}`))
		s := ConvertToolSchema(tool)
		n, ok := s.Properties.Get("n")
		require.True(t, ok)
		require.Equal(t, "number", n.Type)
	})

	t.Run("non object becomes empty object", func(t *testing.T) {
		tool := mcp.NewToolWithRawSchema("raw", "", json.RawMessage(`{"type":"string"}`))
		s := ConvertToolSchema(tool)
		require.Equal(t, "object", s.Type)
		require.Zero(t, s.Properties.Len())
	})
}

func TestValidateArgs(t *testing.T) {
	s := ConvertSchema(decode(t, `{
		"type": "object",
		"required": ["query"],
		"properties": {
			"query": {"type": "string"},
			"mode": {"type": "string", "enum": ["fast", "slow"]},
			"limit": {"type": "integer"},
			"ratio": {"type": "number"},
			"tags": {"type": "array", "items": {"type": "string"}},
			"any": {}
		}
	}`))

	cases := []struct {
		name string
		args string
		err  string
	}{
		{"valid", `{"query":"q","limit":3,"ratio":0.5,"tags":["x"],"any":{"k":1}}`, ""},
		{"extra properties allowed", `{"query":"q","other":true}`, ""},
		{"null allowed", `{"query":"q","limit":null}`, ""},
		{"missing required", `{"limit":1}`, "arguments: missing required query"},
		{"wrong kind", `{"query":1}`, "arguments.query: expected string, got float64"},
		{"fractional integer", `{"query":"q","limit":1.5}`, "arguments.limit: expected integer, got float64"},
		{"bad item", `{"query":"q","tags":["x",2]}`, "arguments.tags[1]: expected string, got float64"},
		{"enum", `{"query":"q","mode":"medium"}`, `arguments.mode: "medium" is not one of [fast slow]`},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			args, _ := decode(t, c.args).(map[string]any)
			err := ValidateArgs(s, args)
			if c.err == "" {
				require.NoError(t, err)
				return
			}
			require.EqualError(t, err, c.err)
		})
	}

	require.NoError(t, ValidateArgs(nil, map[string]any{"x": 1}))
}
