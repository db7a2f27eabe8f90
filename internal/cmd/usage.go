package cmd

import (
	"fmt"
	"io"

	"github.com/muesli/termenv"
	"github.com/spf13/cobra"
	flag "github.com/spf13/pflag"

	"github.com/dotcommander/relay/internal/present"
)

func useLine(cmd *cobra.Command) string {
	s := present.StdoutStyles()
	if cmd.HasParent() {
		return s.CliArgs.Render(cmd.UseLine())
	}

	appName := cmd.Name()
	if present.StdoutRenderer().ColorProfile() == termenv.TrueColor {
		appName = present.GradientText(s.AppName, appName)
	}
	return fmt.Sprintf(
		"%s %s",
		appName,
		s.CliArgs.Render("[OPTIONS] [PREFIX TERM]"),
	)
}

func usageFunc(cmd *cobra.Command) error {
	s := present.StdoutStyles()
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Usage:\n  %s\n\n", useLine(cmd))

	if cmd.HasAvailableSubCommands() {
		fmt.Fprintln(w, "Commands:")
		for _, sub := range cmd.Commands() {
			if !sub.IsAvailableCommand() {
				continue
			}
			fmt.Fprintf(w, "  %-20s %s\n", s.Flag.Render(sub.Name()), s.FlagDesc.Render(sub.Short))
		}
		fmt.Fprintln(w)
	}

	if cmd.HasAvailableLocalFlags() {
		fmt.Fprintln(w, "Options:")
		printFlags(w, s, cmd.LocalFlags())
	}

	if cmd.HasExample() {
		if code, ok := examples[cmd.Example]; ok {
			fmt.Fprintf(
				w,
				"\nExample:\n  %s\n  %s\n",
				s.Comment.Render("# "+cmd.Example),
				cheapHighlighting(s, code),
			)
		}
	}

	return nil
}

func printFlags(w io.Writer, s present.Styles, flags *flag.FlagSet) {
	flags.VisitAll(func(f *flag.Flag) {
		if f.Hidden {
			return
		}
		if f.Shorthand == "" {
			fmt.Fprintf(
				w,
				"  %-44s %s\n",
				s.Flag.Render("--"+f.Name),
				s.FlagDesc.Render(f.Usage),
			)
		} else {
			fmt.Fprintf(
				w,
				"  %s%s %-40s %s\n",
				s.Flag.Render("-"+f.Shorthand),
				s.FlagComma,
				s.Flag.Render("--"+f.Name),
				s.FlagDesc.Render(f.Usage),
			)
		}
	})
}
