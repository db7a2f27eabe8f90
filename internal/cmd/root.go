package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	glamour "github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/x/editor"
	"github.com/effective-security/xlog"
	"github.com/spf13/cobra"

	"github.com/dotcommander/relay/internal/agent"
	"github.com/dotcommander/relay/internal/config"
	"github.com/dotcommander/relay/internal/errs"
	"github.com/dotcommander/relay/internal/mcp"
	"github.com/dotcommander/relay/internal/present"
	"github.com/dotcommander/relay/internal/proto"
	"github.com/dotcommander/relay/internal/stream"
)

var logger = xlog.NewPackageLogger("github.com/dotcommander/relay/internal", "cmd")

type runtime struct {
	build  BuildInfo
	cfg    config.Config
	cfgErr error

	stdin     io.Reader
	stdout    io.Writer
	stderr    io.Writer
	inputTTY  func() bool
	outputTTY func() bool

	mcpOpts       []mcp.Option
	clientFactory agent.ClientFactory
}

// Option customizes the root command.
type Option func(*runtime)

// WithIO replaces the standard streams. Both are treated as non-terminals.
func WithIO(in io.Reader, out, errOut io.Writer) Option {
	return func(rt *runtime) {
		rt.stdin = in
		rt.stdout = out
		rt.stderr = errOut
		rt.inputTTY = func() bool { return false }
		rt.outputTTY = func() bool { return false }
	}
}

// WithMCPOptions configures the MCP services the commands create.
func WithMCPOptions(opts ...mcp.Option) Option {
	return func(rt *runtime) { rt.mcpOpts = append(rt.mcpOpts, opts...) }
}

// WithClientFactory replaces the model client factory.
func WithClientFactory(f agent.ClientFactory) Option {
	return func(rt *runtime) { rt.clientFactory = f }
}

// NewRootCmd constructs the Cobra root command.
func NewRootCmd(build BuildInfo, cfg config.Config, cfgErr error, opts ...Option) *cobra.Command {
	// XXX: unset error styles in Glamour dark and light styles.
	glamour.DarkStyleConfig.CodeBlock.Chroma.Error.BackgroundColor = new(string)
	glamour.LightStyleConfig.CodeBlock.Chroma.Error.BackgroundColor = new(string)

	rt := &runtime{
		build:     normalizeBuildInfo(build),
		cfg:       cfg,
		cfgErr:    cfgErr,
		stdin:     os.Stdin,
		stdout:    os.Stdout,
		stderr:    os.Stderr,
		inputTTY:  present.IsInputTTY,
		outputTTY: present.IsOutputTTY,
	}
	for _, opt := range opts {
		opt(rt)
	}
	mcp.ClientVersion = rt.build.Version

	rootCmd := &cobra.Command{
		Use:           "relay",
		Short:         "Chat with LLMs on the command line, with MCP tools on demand.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Example:       randomExample(),
		Args:          cobra.ArbitraryArgs,
		PersistentPreRun: func(*cobra.Command, []string) {
			setupLogging(rt.stderr, &rt.cfg)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if rt.cfg.ShowHelp {
				rt.drainStdin()
				return cmd.Usage()
			}
			if rt.cfgErr != nil {
				return rt.cfgErr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return rt.runTurn(ctx, args)
		},
	}

	rootCmd.SetOut(rt.stdout)
	rootCmd.SetErr(rt.stderr)
	rootCmd.SetUsageFunc(usageFunc)
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return newFlagParseError(err)
	})

	rootCmd.CompletionOptions.HiddenDefaultCmd = true
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	rootCmd.Version = rt.build.Version
	rootCmd.SetVersionTemplate(versionTemplate(rt.build))

	initRootFlags(rootCmd, &rt.cfg)

	rootCmd.AddCommand(newHistoryCmd(rt))
	rootCmd.AddCommand(newConfigCmd(rt))
	rootCmd.AddCommand(newMCPCmd(rt))
	rootCmd.AddCommand(newManCmd(rootCmd))

	// Enable completion now that we have subcommands.
	rootCmd.InitDefaultCompletionCmd()

	return rootCmd
}

func (rt *runtime) runTurn(ctx context.Context, args []string) error {
	cfg := &rt.cfg
	cfg.Prefix = removeWhitespace(strings.Join(args, " "))
	if os.Getenv("VIMRUNTIME") != "" {
		cfg.Quiet = true
	}

	input, err := rt.readInput()
	if err != nil {
		return errs.Wrap(err, "Could not read your input.")
	}
	if cfg.Prefix == "" && input == "" && rt.inputTTY() && cfg.OpenEditor {
		prompt, err := promptFromEditor(rt.stdin, rt.stdout, rt.stderr)
		if err != nil {
			return errs.Wrap(err, "Could not read the prompt from your editor.")
		}
		cfg.Prefix = removeWhitespace(prompt)
	}
	if cfg.Prefix == "" && input == "" {
		return errs.Error{
			Reason: "You haven't provided any prompt input.",
			Err: errs.UserErrorf(
				"You can give your prompt as arguments and/or pipe it from STDIN.\nExample: %s",
				present.StderrStyles().InlineCode.Render("relay [prompt]"),
			),
		}
	}

	hist, closeHist, err := openHistory(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeHist()

	pl, err := planConversation(cfg, hist.Index())
	if err != nil {
		return err
	}
	cfg.CacheWriteToID = pl.WriteID
	cfg.CacheWriteToTitle = pl.Title
	cfg.CacheReadFromID = pl.ReadID
	cfg.API = pl.API
	cfg.Model = pl.Model

	var history []proto.Message
	if pl.ReadID != "" {
		history, err = hist.Load(ctx, pl.ReadID)
		if err != nil {
			return errs.Wrap(err, "There was an error loading the conversation.")
		}
	}

	svc := mcp.New(cfg, rt.mcpOpts...)
	defer func() {
		if err := svc.Shutdown(); err != nil {
			logger.KV(xlog.WARNING, "reason", "mcp_shutdown", "err", err.Error())
		}
	}()
	rt.connectMentioned(ctx, svc, cfg.Prefix+"\n"+input)

	out := newAnswerWriter(rt.stdout, rt.outputTTY() && !cfg.Raw, cfg.WordWrap)
	errStyles := present.StderrStyles()
	res, err := agent.New(cfg, svc, rt.clientFactory).Turn(ctx, input, agent.TurnOptions{
		History: history,
		OnText: func(seg stream.Segment, s string) {
			if seg == stream.SegmentThinking {
				if !cfg.Quiet {
					fmt.Fprint(rt.stderr, errStyles.Thinking.Render(s))
				}
				return
			}
			out.Write(s)
		},
		OnTool: func(ex agent.ToolExecution) {
			if !cfg.Quiet {
				fmt.Fprintln(rt.stderr, present.ToolLine(errStyles, ex.Call.Name, ex.Duration, ex.IsError, ex.Output))
			}
		},
	})
	out.Close()

	if !cfg.Quiet {
		for _, w := range res.Warnings {
			fmt.Fprintln(rt.stderr, errStyles.Comment.Render("warning: "+w))
		}
	}
	for _, d := range res.Dropped {
		logger.KV(xlog.NOTICE, "reason", "dropped_call", "tool", d.Name, "drop", d.Reason)
	}

	if err != nil {
		if _, ok := err.(errs.Error); ok { //nolint:errorlint
			return err
		}
		return errs.Wrap(err, "There was a problem generating the answer.")
	}
	if res.Canceled && !cfg.Quiet {
		fmt.Fprintln(rt.stderr, errStyles.Comment.Render("\nCanceled."))
	}
	if res.Text == "" && len(res.ToolResults) == 0 {
		return nil
	}
	return saveConversation(context.WithoutCancel(ctx), rt.stderr, cfg, hist, res.Memory())
}

// connectMentioned connects the servers a turn may need: every enabled server
// when all tools are bound, otherwise those named by mentions in text.
// Connection failures leave the mentioned tools unbound.
func (rt *runtime) connectMentioned(ctx context.Context, svc *mcp.Service, text string) {
	var err error
	if rt.cfg.MCPBindAll {
		err = svc.Initialize(ctx)
	} else {
		var servers []string
		for _, id := range mcp.ScanMentions(text) {
			if server, _, perr := mcp.ParseToolID(id); perr == nil {
				servers = append(servers, server)
			}
		}
		if len(servers) == 0 {
			return
		}
		err = svc.ConnectServers(ctx, servers...)
	}
	if err == nil {
		return
	}
	logger.ContextKV(ctx, xlog.WARNING, "reason", "mcp_connect", "err", err.Error())
	if !rt.cfg.Quiet {
		fmt.Fprintln(rt.stderr, present.StderrStyles().Comment.Render("warning: "+errs.Describe(err)))
	}
}

// answerWriter streams the answer, or buffers it for markdown rendering when
// writing to a terminal.
type answerWriter struct {
	w        io.Writer
	render   bool
	wordWrap int
	buf      strings.Builder
	last     byte
}

func newAnswerWriter(w io.Writer, render bool, wordWrap int) *answerWriter {
	return &answerWriter{w: w, render: render, wordWrap: wordWrap}
}

func (a *answerWriter) Write(s string) {
	if s == "" {
		return
	}
	if a.render {
		a.buf.WriteString(s)
		return
	}
	fmt.Fprint(a.w, s)
	a.last = s[len(s)-1]
}

// Close flushes a buffered answer and ends the output with a newline.
func (a *answerWriter) Close() {
	if a.render {
		text := a.buf.String()
		if text == "" {
			return
		}
		if out, err := present.RenderMarkdown(text, a.wordWrap); err == nil {
			fmt.Fprint(a.w, out)
			return
		}
		fmt.Fprint(a.w, text)
		a.last = text[len(text)-1]
	}
	if a.last != 0 && a.last != '\n' {
		fmt.Fprintln(a.w)
	}
}

func promptFromEditor(in io.Reader, out, errOut io.Writer) (string, error) {
	f, err := os.CreateTemp("", "prompt-*.md")
	if err != nil {
		return "", fmt.Errorf("could not create temporary file: %w", err)
	}
	_ = f.Close()
	defer func() { _ = os.Remove(f.Name()) }()

	c, err := editor.Cmd("relay", f.Name())
	if err != nil {
		return "", fmt.Errorf("could not open editor: %w", err)
	}
	c.Stdin = in
	c.Stdout = out
	c.Stderr = errOut
	if err := c.Run(); err != nil {
		return "", fmt.Errorf("could not open editor: %w", err)
	}
	prompt, err := os.ReadFile(f.Name())
	if err != nil {
		return "", fmt.Errorf("could not read file: %w", err)
	}
	return string(prompt), nil
}

func removeWhitespace(s string) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	return s
}
