package present

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// PrintConfirmation writes a badge with action followed by content.
func PrintConfirmation(w io.Writer, s Styles, action, content string) {
	if action == "" {
		action = "done"
	}
	badge := s.ErrorHeader.
		Background(lipgloss.Color("#6C50FF")).
		MarginRight(1).
		SetString(strings.ToUpper(action))
	fmt.Fprintln(w, lipgloss.JoinHorizontal(lipgloss.Center, badge.String(), content))
}
