package present

import (
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
)

func isTerminal(f *os.File) func() bool {
	return sync.OnceValue(func() bool {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	})
}

var (
	stdinTTY  = isTerminal(os.Stdin)
	stdoutTTY = isTerminal(os.Stdout)
)

// IsInputTTY reports whether stdin is a terminal.
func IsInputTTY() bool { return stdinTTY() }

// IsOutputTTY reports whether stdout is a terminal.
func IsOutputTTY() bool { return stdoutTTY() }

var stdoutRenderer = sync.OnceValue(lipgloss.DefaultRenderer)

// StdoutRenderer returns the lipgloss renderer of stdout.
func StdoutRenderer() *lipgloss.Renderer {
	return stdoutRenderer()
}

var stderrRenderer = sync.OnceValue(func() *lipgloss.Renderer {
	return lipgloss.NewRenderer(os.Stderr, termenv.WithColorCache(true))
})

// StderrRenderer returns the lipgloss renderer of stderr.
func StderrRenderer() *lipgloss.Renderer {
	return stderrRenderer()
}

var (
	stdoutStyles = sync.OnceValue(func() Styles { return MakeStyles(StdoutRenderer()) })
	stderrStyles = sync.OnceValue(func() Styles { return MakeStyles(StderrRenderer()) })
)

// StdoutStyles returns the styles bound to stdout.
func StdoutStyles() Styles { return stdoutStyles() }

// StderrStyles returns the styles bound to stderr.
func StderrStyles() Styles { return stderrStyles() }
