package mcp

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

func TestToolIDRoundTrip(t *testing.T) {
	cases := []struct{ server, tool string }{
		{"alpha", "echo"},
		{"file-system", "read_file"},
		{"gh", "list_pull_requests"},
		{"a1", "x"},
		{"srv", "name_with__double"},
		{"srv", "dashed-tool-name"},
	}
	for _, c := range cases {
		t.Run(c.server+"/"+c.tool, func(t *testing.T) {
			server, tool, err := ParseToolID(ToolID(c.server, c.tool))
			require.NoError(t, err)
			require.Equal(t, c.server, server)
			require.Equal(t, c.tool, tool)
		})
	}
}

func TestParseToolIDMalformed(t *testing.T) {
	for _, id := range []string{
		"not-a-valid-id",
		"mcp_",
		"mcp_alpha",
		"mcp_alpha_",
		"mcp__echo",
		"mcp_al pha_echo",
		"MCP_alpha_echo",
		"",
	} {
		t.Run(id, func(t *testing.T) {
			_, _, err := ParseToolID(id)
			require.True(t, errors.Is(err, ErrMalformedID), "%v", err)
			require.False(t, IsToolID(id))
		})
	}
}

func TestIsToolID(t *testing.T) {
	require.True(t, IsToolID("mcp_alpha_echo"))
	require.True(t, IsToolID("mcp_file-system_read_file"))
	require.False(t, IsToolID("mcp_alpha_echo!"))
	require.False(t, IsToolID("alpha_echo"))
}

func TestScanMentions(t *testing.T) {
	text := "use @mcp_alpha_echo and mcp_fs_read_file, then mcp_alpha_echo again. mcp_bad"
	require.Equal(t, []string{"mcp_alpha_echo", "mcp_fs_read_file"}, ScanMentions(text))
	require.Equal(t, []string{"mcp_alpha_echo"}, ScanMentions("@mcp_alpha_echo mcp_alpha_echo"))
	require.Empty(t, ScanMentions("no tools here"))
	require.Equal(t, []string{"mcp_b_x", "mcp_a_y"}, ScanMentions("mcp_b_x\nmcp_a_y\tmcp_b_x"))
}

func TestStripMentions(t *testing.T) {
	cases := []struct{ in, out string }{
		{"use @mcp_alpha_echo to say hi", "use to say hi"},
		{"mcp_alpha_echo say hi", "say hi"},
		{"say hi mcp_alpha_echo", "say hi "},
		{"keep  double  spaces", "keep  double  spaces"},
		{"line one\nmcp_a_b\nline two", "line one\n\nline two"},
		{"mcp_alpha_echo", ""},
		{"xmcp_alpha_echo stays", "xmcp_alpha_echo stays"},
		{"ask mcp_a_b, then stop", "ask , then stop"},
	}
	for _, c := range cases {
		t.Run(c.in, func(t *testing.T) {
			require.Equal(t, c.out, StripMentions(c.in))
		})
	}
}
