package cmd

import (
	"math/rand"
	"regexp"

	"github.com/dotcommander/relay/internal/present"
)

var examples = map[string]string{
	"Write new sections for a readme":   `cat README.md | relay "write a new section to this README documenting a pdf sharing feature"`,
	"Ask a question with a tool at hand": `relay "what changed in the last three commits? use @mcp_git_log"`,
	"Keep a conversation going":          `git diff | relay -C "now write the commit message" | tee msg.txt`,
	"Offer every tool to the model":      `relay --bind-all "summarize the open issues and file a weekly report"`,
}

func randomExample() string {
	keys := make([]string, 0, len(examples))
	for k := range examples {
		keys = append(keys, k)
	}
	desc := keys[rand.Intn(len(keys))] //nolint:gosec
	return desc
}

var (
	quoteRE = regexp.MustCompile(`"([^"\\]|\\.)*"`)
	pipeRE  = regexp.MustCompile(`\|`)
)

func cheapHighlighting(s present.Styles, code string) string {
	code = quoteRE.ReplaceAllStringFunc(code, func(x string) string {
		return s.Quote.Render(x)
	})
	code = pipeRE.ReplaceAllStringFunc(code, func(x string) string {
		return s.Pipe.Render(x)
	})
	return code
}
