package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dotcommander/relay/internal/errs"
	"github.com/dotcommander/relay/internal/mcp"
	"github.com/dotcommander/relay/internal/present"
)

func newMCPCmd(rt *runtime) *cobra.Command {
	mcpCmd := &cobra.Command{
		Use:   "mcp",
		Short: "MCP server integration",
		PersistentPreRunE: func(*cobra.Command, []string) error {
			setupLogging(rt.stderr, &rt.cfg)
			rt.drainStdin()
			return rt.cfgErr
		},
	}

	mcpCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List configured MCP servers",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			rt.mcpList()
			return nil
		},
	})

	mcpCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Connect to enabled MCP servers and report their state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rt.withMCP(cmd.Context(), nil, rt.mcpStatus)
		},
	})

	var all bool
	toolsCmd := &cobra.Command{
		Use:   "tools [server...]",
		Short: "List tools from enabled MCP servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.withMCP(cmd.Context(), args, func(_ context.Context, svc *mcp.Service) error {
				return rt.mcpListTools(svc, all)
			})
		},
	}
	toolsCmd.Flags().BoolVar(&all, "all", false, "Include disabled tools")
	mcpCmd.AddCommand(toolsCmd)

	mcpCmd.AddCommand(&cobra.Command{
		Use:   "resources <server>",
		Short: "List resources of an MCP server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.withMCP(cmd.Context(), args, func(_ context.Context, svc *mcp.Service) error {
				return rt.mcpResources(svc, args[0])
			})
		},
	})

	mcpCmd.AddCommand(&cobra.Command{
		Use:   "read <server> <uri>",
		Short: "Print a resource of an MCP server",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rt.withMCP(cmd.Context(), args[:1], func(ctx context.Context, svc *mcp.Service) error {
				text, err := svc.ReadResource(ctx, args[0], args[1])
				if err != nil {
					return errs.Wrap(err, "Could not read the resource.")
				}
				fmt.Fprintln(rt.stdout, strings.TrimRight(text, "\n"))
				return nil
			})
		},
	})

	mcpCmd.AddCommand(&cobra.Command{
		Use:   "call <tool-id> [json-arguments]",
		Short: "Call an MCP tool by its canonical id",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			server, _, err := mcp.ParseToolID(args[0])
			if err != nil {
				return errs.Wrap(err, "Invalid tool id.")
			}
			return rt.withMCP(cmd.Context(), []string{server}, func(ctx context.Context, svc *mcp.Service) error {
				return rt.mcpCall(ctx, svc, args[0], args[1:])
			})
		},
	})

	mcpCmd.AddCommand(&cobra.Command{
		Use:   "test <server>",
		Short: "Check that an MCP server can be connected",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := mcp.New(&rt.cfg, rt.mcpOpts...)
			return rt.mcpTest(cmd.Context(), svc, args[0])
		},
	})

	return mcpCmd
}

// withMCP connects the named servers, or every enabled one when names is
// empty, and runs fn. Connection failures are reported, not returned, so the
// servers that did connect can still be used.
func (rt *runtime) withMCP(ctx context.Context, names []string, fn func(context.Context, *mcp.Service) error) error {
	svc := mcp.New(&rt.cfg, rt.mcpOpts...)
	defer func() { _ = svc.Shutdown() }()

	var err error
	if len(names) == 0 {
		err = svc.Initialize(ctx)
	} else {
		err = svc.ConnectServers(ctx, names...)
	}
	if err != nil && !rt.cfg.Quiet {
		fmt.Fprintln(rt.stderr, present.StderrStyles().Comment.Render("warning: "+errs.Describe(err)))
	}
	return fn(ctx, svc)
}

func (rt *runtime) mcpList() {
	s := present.StdoutStyles()
	for _, srv := range mcp.ServersFromConfig(&rt.cfg) {
		state := s.Offline.Render("(disabled)")
		if srv.Enabled {
			state = s.Connected.Render("(enabled)")
		}
		typ := srv.Type
		if typ == "" {
			typ = mcp.TypeStdio
		}
		target := srv.URL
		if target == "" {
			target = strings.TrimSpace(srv.Command + " " + strings.Join(srv.Args, " "))
		}
		fmt.Fprintf(rt.stdout, "%s %s %s %s\n", s.Server.Render(srv.Name), state, s.Comment.Render(typ), s.Comment.Render(target))
	}
}

func (rt *runtime) mcpStatus(_ context.Context, svc *mcp.Service) error {
	s := present.StdoutStyles()
	status := svc.ConnectionStatus()
	counts := map[string]int{}
	for _, t := range svc.ListAllTools() {
		counts[t.Server]++
	}
	for _, srv := range svc.Servers() {
		state, ok := status[srv.Name]
		if !ok || !srv.Enabled {
			fmt.Fprintf(rt.stdout, "%s %s\n", s.Server.Render(srv.Name), s.Offline.Render("disabled"))
			continue
		}
		line := s.Offline.Render(state.String())
		if state == mcp.StateConnected {
			line = s.Connected.Render(state.String()) + s.Comment.Render(fmt.Sprintf(" %d tools", counts[srv.Name]))
		}
		fmt.Fprintf(rt.stdout, "%s %s\n", s.Server.Render(srv.Name), line)
	}
	return nil
}

func (rt *runtime) mcpListTools(svc *mcp.Service, all bool) error {
	s := present.StdoutStyles()
	tools := svc.ListAllTools()
	slices.SortFunc(tools, func(a, b mcp.Tool) int { return strings.Compare(a.ID(), b.ID()) })
	for _, tool := range tools {
		enabled := svc.IsToolEnabled(tool.ID())
		if !enabled && !all {
			continue
		}
		line := s.ToolName.Render(tool.ID())
		if !enabled {
			line += " " + s.Offline.Render("(disabled)")
		}
		if d := present.Preview(tool.Description, 80); d != "" && !rt.cfg.Raw {
			line += " " + s.Comment.Render(d)
		}
		fmt.Fprintln(rt.stdout, line)
	}
	return nil
}

func (rt *runtime) mcpResources(svc *mcp.Service, server string) error {
	s := present.StdoutStyles()
	for _, res := range svc.Resources(server) {
		line := res.URI
		if res.Name != "" {
			line += " " + s.Comment.Render(res.Name)
		}
		if res.MIMEType != "" {
			line += " " + s.Comment.Render("("+res.MIMEType+")")
		}
		fmt.Fprintln(rt.stdout, line)
	}
	return nil
}

func (rt *runtime) mcpCall(ctx context.Context, svc *mcp.Service, id string, args []string) error {
	input := map[string]any{}
	if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
		if err := json.Unmarshal([]byte(args[0]), &input); err != nil {
			return errs.Wrap(err, "Tool arguments must be a JSON object.")
		}
	}
	res, err := svc.ExecuteTool(ctx, id, input)
	switch {
	case res != nil && res.IsError:
		return errs.Wrapf(errs.UserErrorf("%s", res.Text), "%s returned an error.", id)
	case err != nil:
		return errs.Wrapf(err, "Could not call %s.", id)
	}
	fmt.Fprintln(rt.stdout, strings.TrimRight(res.Text, "\n"))
	return nil
}

func (rt *runtime) mcpTest(ctx context.Context, svc *mcp.Service, name string) error {
	for _, srv := range svc.Servers() {
		if srv.Name != name {
			continue
		}
		if err := svc.TestConnection(ctx, srv); err != nil {
			return errs.Wrapf(err, "Could not connect to %s.", name)
		}
		present.PrintConfirmation(rt.stdout, present.StdoutStyles(), "ok", name)
		return nil
	}
	return errs.Wrap(errs.UserErrorf("no MCP server named %q", name), "Unknown MCP server.")
}
