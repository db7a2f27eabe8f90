package present

import (
	"strings"
	"unicode"

	"github.com/charmbracelet/glamour"
	"github.com/cockroachdb/errors"
)

const tabWidth = 4

// RenderMarkdown renders input for a terminal, wrapped at wordWrap columns.
// The result ends in exactly one newline.
func RenderMarkdown(input string, wordWrap int) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithEnvironmentConfig(),
		glamour.WithWordWrap(wordWrap),
	)
	if err != nil {
		return "", errors.Wrap(err, "new markdown renderer")
	}
	out, err := r.Render(input)
	if err != nil {
		return "", errors.Wrap(err, "render markdown")
	}
	out = strings.TrimRightFunc(out, unicode.IsSpace)
	return strings.ReplaceAll(out, "\t", strings.Repeat(" ", tabWidth)) + "\n", nil
}
