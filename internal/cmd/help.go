package cmd

var helpText = map[string]string{
	"model":                 "Default model (gpt-4o, claude-sonnet-4, ...)",
	"api":                   "OpenAI compatible REST API (openai, anthropic, ollama, ...)",
	"http-proxy":            "HTTP proxy to use for API requests",
	"raw":                   "Render output as raw text when connected to a TTY",
	"continue":              "Continue from a saved conversation, by id or title",
	"continue-last":         "Continue the last saved conversation",
	"title":                 "Save the conversation with the given title",
	"quiet":                 "Quiet mode: hide tool status, warnings and save notices",
	"editor":                "Edit the prompt in your $EDITOR when no input is given",
	"help":                  "Show help and exit",
	"version":               "Show version and exit",
	"verbose":               "Log at DEBUG level to stderr",
	"max-retries":           "Maximum number of times to retry API calls",
	"max-tokens":            "Maximum number of tokens in response",
	"max-completion-tokens": "Maximum number of completion tokens, for models that separate them",
	"word-wrap":             "Wrap formatted output at specific width",
	"temp":                  "Temperature (randomness) of results, from 0.0 to 2.0, -1.0 to disable",
	"topp":                  "TopP, an alternative to temperature that narrows response, from 0.0 to 1.0, -1.0 to disable",
	"topk":                  "TopK, only sample from the top K options for each subsequent token, -1 to disable",
	"no-cache":              "Disables caching of the prompt/response",
	"mcp-disable":           "Disable an MCP server by name, \"*\" disables all",
	"mcp-disable-tool":      "Disable an MCP tool by canonical id (mcp_<server>_<tool>)",
	"bind-all":              "Offer every enabled MCP tool when the prompt mentions none",
}
