package mcp

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/cockroachdb/errors"
)

// Canonical tool ids have the form mcp_<server>_<tool>. Server names may not
// contain the separator, so the id splits on the first separator after the
// prefix; tool names may contain it freely.
const (
	ToolPrefix    = "mcp_"
	ToolSeparator = "_"
	mentionMarker = "@"
)

var (
	serverNameRe = regexp.MustCompile(`^[A-Za-z0-9-]+$`)
	toolNameRe   = regexp.MustCompile(`^[A-Za-z0-9_.\-/]+$`)
)

// ValidServerName reports whether name can be used as a server name.
func ValidServerName(name string) bool {
	return serverNameRe.MatchString(name)
}

// ToolID returns the canonical id of the given server tool.
func ToolID(server, tool string) string {
	return ToolPrefix + server + ToolSeparator + tool
}

// ParseToolID splits a canonical id back into its server and tool names.
func ParseToolID(id string) (server, tool string, err error) {
	rest, ok := strings.CutPrefix(id, ToolPrefix)
	if !ok {
		return "", "", errors.Wrapf(ErrMalformedID, "%q: missing %q prefix", id, ToolPrefix)
	}
	server, tool, ok = strings.Cut(rest, ToolSeparator)
	if !ok || tool == "" {
		return "", "", errors.Wrapf(ErrMalformedID, "%q: missing tool name", id)
	}
	if !ValidServerName(server) {
		return "", "", errors.Wrapf(ErrMalformedID, "%q: invalid server name %q", id, server)
	}
	return server, tool, nil
}

// IsToolID is a pure shape check of token; it does not consult any catalog.
func IsToolID(token string) bool {
	_, tool, err := ParseToolID(token)
	return err == nil && toolNameRe.MatchString(tool)
}

// ScanMentions returns the canonical ids mentioned in text, in first-seen
// order and without duplicates. A mention is a whitespace separated token,
// optionally prefixed with @.
func ScanMentions(text string) []string {
	var ids []string
	seen := map[string]struct{}{}
	for _, tok := range tokens(text) {
		id, _, ok := mention(text[tok.start:tok.end])
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// StripMentions removes mentions from text and leaves everything else in
// place. A blank left doubled by a removal is collapsed.
func StripMentions(text string) string {
	var sb strings.Builder
	last := 0
	for _, tok := range tokens(text) {
		_, n, ok := mention(text[tok.start:tok.end])
		if !ok {
			continue
		}
		sb.WriteString(text[last:tok.start])
		last = tok.start + n
		if (tok.start == 0 || isBlank(text[tok.start-1])) && last < len(text) && isBlank(text[last]) {
			last++
		}
	}
	if last == 0 {
		return text
	}
	sb.WriteString(text[last:])
	return sb.String()
}

// mention returns the id a token mentions and the length of the token prefix
// that spells it. Trailing punctuation is not part of the mention.
func mention(token string) (id string, n int, ok bool) {
	trimmed := strings.TrimRight(token, ".,;:!?)\"'")
	id = strings.TrimPrefix(trimmed, mentionMarker)
	return id, len(trimmed), IsToolID(id)
}

type span struct{ start, end int }

func tokens(text string) []span {
	var out []span
	start := -1
	for i, r := range text {
		if unicode.IsSpace(r) {
			if start >= 0 {
				out = append(out, span{start, i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		out = append(out, span{start, len(text)})
	}
	return out
}

func isBlank(b byte) bool {
	return b == ' ' || b == '\t'
}
