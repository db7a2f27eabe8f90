package present

import "github.com/charmbracelet/lipgloss"

// Styles are the lipgloss styles of the CLI output, bound to one renderer.
type Styles struct {
	AppName          lipgloss.Style
	CliArgs          lipgloss.Style
	Comment          lipgloss.Style
	ConversationList lipgloss.Style
	ErrorHeader      lipgloss.Style
	ErrorDetails     lipgloss.Style
	ErrPadding       lipgloss.Style
	Flag             lipgloss.Style
	FlagComma        lipgloss.Style
	FlagDesc         lipgloss.Style
	InlineCode       lipgloss.Style
	Link             lipgloss.Style
	Pipe             lipgloss.Style
	Quote            lipgloss.Style
	SHA1             lipgloss.Style
	Timeago          lipgloss.Style
	Thinking         lipgloss.Style

	// tool and server status
	ToolName  lipgloss.Style
	ToolOK    lipgloss.Style
	ToolError lipgloss.Style
	Server    lipgloss.Style
	Connected lipgloss.Style
	Offline   lipgloss.Style
}

// MakeStyles builds the styles for r.
func MakeStyles(r *lipgloss.Renderer) Styles {
	dim := lipgloss.AdaptiveColor{Light: "#A49FA5", Dark: "#777777"}
	red := lipgloss.AdaptiveColor{Light: "#FF4672", Dark: "#ED567A"}
	green := lipgloss.AdaptiveColor{Light: "#00A66E", Dark: "#04B575"}
	purple := lipgloss.Color("#6B50FF")

	return Styles{
		AppName:          r.NewStyle().Bold(true),
		CliArgs:          r.NewStyle().Foreground(lipgloss.Color("#585858")),
		Comment:          r.NewStyle().Foreground(lipgloss.Color("#757575")),
		ConversationList: r.NewStyle().Padding(0, 1),
		ErrorHeader:      r.NewStyle().Foreground(lipgloss.Color("#F1F1F1")).Background(lipgloss.Color("#FF5F87")).Bold(true).Padding(0, 1).SetString("ERROR"),
		ErrorDetails:     r.NewStyle().Foreground(lipgloss.Color("#757575")),
		ErrPadding:       r.NewStyle().Padding(0, 1),
		Flag:             r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#00B594", Dark: "#3EEFCF"}).Bold(true),
		FlagComma:        r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#5DD6C0", Dark: "#427C72"}).SetString(","),
		FlagDesc:         r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#59575C", Dark: "#D0D0D0"}),
		InlineCode:       r.NewStyle().Foreground(lipgloss.Color("#FF5F87")).Background(lipgloss.Color("#3A3A3A")).Padding(0, 1),
		Link:             r.NewStyle().Foreground(lipgloss.Color("#00AF87")).Underline(true),
		Pipe:             r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#8470FF", Dark: "#745CFF"}),
		Quote:            r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#FF71D0", Dark: "#FF78D2"}),
		SHA1:             r.NewStyle().Foreground(purple),
		Timeago:          r.NewStyle().Foreground(dim),
		Thinking:         r.NewStyle().Foreground(dim).Italic(true),

		ToolName:  r.NewStyle().Foreground(purple).Bold(true),
		ToolOK:    r.NewStyle().Foreground(green),
		ToolError: r.NewStyle().Foreground(red),
		Server:    r.NewStyle().Bold(true),
		Connected: r.NewStyle().Foreground(green),
		Offline:   r.NewStyle().Foreground(dim),
	}
}
