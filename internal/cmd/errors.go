package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/dotcommander/relay/internal/errs"
	"github.com/dotcommander/relay/internal/present"
)

func handleError(w io.Writer, err error) {
	s := present.StderrStyles()
	format := "\n%s\n\n"

	var ferr flagParseError
	if errors.As(err, &ferr) {
		args := []any{
			fmt.Sprintf(
				"Check out %s %s",
				s.InlineCode.Render("relay -h"),
				s.Comment.Render("for help."),
			),
			fmt.Sprintf(
				ferr.ReasonFormat(),
				s.InlineCode.Render(ferr.Flag()),
			),
		}
		fmt.Fprintf(w, format+"%s\n\n", args...)
		return
	}

	var merr errs.Error
	if errors.As(err, &merr) {
		formatArgs := []any{s.ErrPadding.Render(s.ErrorHeader.String(), merr.Reason)}
		if merr.Err != nil {
			format += "%s\n\n"
			formatArgs = append(formatArgs, s.ErrPadding.Render(s.ErrorDetails.Render(merr.Err.Error())))
		}
		fmt.Fprintf(w, format, formatArgs...)
		return
	}

	fmt.Fprintf(w, format, s.ErrPadding.Render(s.ErrorDetails.Render(err.Error())))
}
