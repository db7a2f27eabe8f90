package errs

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// UserErrorf is a user-facing error.
// This helper exists mostly to avoid linters complaining about errors starting
// with a capitalized letter.
func UserErrorf(format string, a ...any) error {
	return fmt.Errorf(format, a...)
}

// Error wraps an underlying error with a user-facing reason.
//
// Reason is meant to be short and actionable; Err may contain technical details.
// When Err is nil, Error() falls back to Reason.
type Error struct {
	Err    error
	Reason string
}

// Wrap creates an Error with the given underlying error and user-facing reason.
func Wrap(err error, reason string) Error {
	return Error{Err: err, Reason: reason}
}

// Wrapf creates an Error with the given underlying error and a formatted reason.
func Wrapf(err error, format string, a ...any) Error {
	return Error{Err: err, Reason: fmt.Sprintf(format, a...)}
}

func (e Error) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Reason
}

func (e Error) Unwrap() error {
	return e.Err
}

// ReasonText returns the user-facing reason for the error.
func (e Error) ReasonText() string {
	return e.Reason
}

const maxDetailLen = 240

// Describe reduces err to a single human-readable line.
//
// The reason of the outermost Error is preferred; the technical detail is
// appended when it adds information, truncated to keep the line readable.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) {
		return "Request canceled."
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "Request timed out."
	}

	detail := firstLine(err.Error())
	if len(detail) > maxDetailLen {
		detail = detail[:maxDetailLen] + "…"
	}

	var e Error
	if !errors.As(err, &e) || e.Reason == "" {
		return detail
	}
	if e.Err == nil || detail == "" || detail == e.Reason {
		return e.Reason
	}
	return e.Reason + " (" + detail + ")"
}

func firstLine(s string) string {
	first, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return first
}
