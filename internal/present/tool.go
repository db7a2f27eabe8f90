package present

import (
	"fmt"
	"strings"
	"time"
)

const previewLen = 72

// ToolLine renders the one-line status of a finished tool call.
func ToolLine(s Styles, id string, d time.Duration, isError bool, output string) string {
	status := s.ToolOK.Render("ok")
	if isError {
		status = s.ToolError.Render("error")
	}
	line := fmt.Sprintf("%s %s %s", s.ToolName.Render(id), status, s.Timeago.Render(d.Round(time.Millisecond).String()))
	if p := Preview(output, previewLen); p != "" {
		line += " " + s.Comment.Render(p)
	}
	return line
}

// Preview collapses s to one line of at most n runes.
func Preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
