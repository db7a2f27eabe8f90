package cmd

import (
	"io"
	"strings"
)

// maxInput bounds how much piped input is read into a prompt.
const maxInput = 8 << 20

// readInput returns piped input, or "" when stdin is a terminal.
func (rt *runtime) readInput() (string, error) {
	if rt.inputTTY() || rt.stdin == nil {
		return "", nil
	}
	bts, err := io.ReadAll(io.LimitReader(rt.stdin, maxInput))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(bts)), nil
}

func (rt *runtime) drainStdin() {
	if rt.inputTTY() || rt.stdin == nil {
		return
	}
	_, _ = io.Copy(io.Discard, rt.stdin)
}
