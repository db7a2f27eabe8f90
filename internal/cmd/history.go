package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	timeago "github.com/caarlos0/timea.go"
	"github.com/spf13/cobra"

	"github.com/dotcommander/relay/internal/config"
	"github.com/dotcommander/relay/internal/errs"
	"github.com/dotcommander/relay/internal/present"
	"github.com/dotcommander/relay/internal/proto"
	"github.com/dotcommander/relay/internal/storage"
)

func newHistoryCmd(rt *runtime) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Manage saved conversations",
	}

	historyCmd.AddCommand(newHistoryListCmd(rt))
	historyCmd.AddCommand(newHistoryShowCmd(rt))
	historyCmd.AddCommand(newHistoryDeleteCmd(rt))
	historyCmd.AddCommand(newHistoryPruneCmd(rt))

	return historyCmd
}

func newHistoryListCmd(rt *runtime) *cobra.Command {
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List saved conversations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if rt.cfgErr != nil {
				return rt.cfgErr
			}
			return rt.withHistory(cmd.Context(), func(h *storage.History) error {
				conversations := h.Index().List()
				if len(conversations) == 0 {
					fmt.Fprintln(rt.stderr, "No conversations found.")
					return nil
				}
				printList(rt.stdout, conversations, rt.cfg.Raw)
				return nil
			})
		},
	}
	listCmd.Flags().BoolVarP(&rt.cfg.Raw, "raw", "r", rt.cfg.Raw, "Print ids, titles and times without styling")
	return listCmd
}

func newHistoryShowCmd(rt *runtime) *cobra.Command {
	var last bool
	showCmd := &cobra.Command{
		Use:   "show [id-or-title]",
		Short: "Show a saved conversation",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if rt.cfgErr != nil {
				return rt.cfgErr
			}
			rt.drainStdin()
			var in string
			if len(args) == 1 {
				in = args[0]
			}
			if in == "" && !last {
				return errs.Wrap(errs.UserErrorf("give a conversation id or title, or --last"), "Could not show the conversation.")
			}
			return rt.withHistory(cmd.Context(), func(h *storage.History) error {
				return rt.showConversation(cmd.Context(), h, in, last)
			})
		},
		ValidArgsFunction: rt.completeConversations,
	}
	showCmd.Flags().BoolVarP(&last, "last", "S", false, "Show the last saved conversation")
	showCmd.Flags().BoolVarP(&rt.cfg.Raw, "raw", "r", rt.cfg.Raw, "Print the conversation without markdown rendering")
	return showCmd
}

func newHistoryDeleteCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id-or-title> [more...]",
		Short: "Delete saved conversations",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if rt.cfgErr != nil {
				return rt.cfgErr
			}
			return rt.withHistory(cmd.Context(), func(h *storage.History) error {
				return rt.deleteConversations(cmd.Context(), h, args)
			})
		},
		ValidArgsFunction: rt.completeConversations,
	}
}

func newHistoryPruneCmd(rt *runtime) *cobra.Command {
	var olderThan time.Duration
	var yes bool
	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete conversations older than a duration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if rt.cfgErr != nil {
				return rt.cfgErr
			}
			if olderThan <= 0 {
				return errs.Wrap(errs.UserErrorf("missing --older-than"), "Could not delete old conversations.")
			}
			return rt.withHistory(cmd.Context(), func(h *storage.History) error {
				return rt.pruneConversations(cmd.Context(), h, olderThan, yes)
			})
		},
	}
	pruneCmd.Flags().Var(newDurationFlag(olderThan, &olderThan), "older-than", "Duration to prune; e.g. 24h, 7d, 2w")
	pruneCmd.Flags().BoolVarP(&yes, "yes", "y", false, "Delete without listing the conversations first")
	return pruneCmd
}

func (rt *runtime) withHistory(ctx context.Context, fn func(*storage.History) error) error {
	h, closeHist, err := openHistory(ctx, &rt.cfg)
	if err != nil {
		return err
	}
	defer closeHist()
	return fn(h)
}

func (rt *runtime) showConversation(ctx context.Context, h *storage.History, in string, last bool) error {
	found, err := findConversation(h.Index(), in, last)
	if err != nil {
		return errs.Wrap(err, "There was an error loading the conversation.")
	}
	messages, err := h.Load(ctx, found.ID)
	if err != nil {
		return errs.Wrap(err, "There was an error loading the conversation.")
	}

	out := proto.Conversation(messages).String()
	if rt.outputTTY() && !rt.cfg.Raw {
		if formatted, err := present.RenderMarkdown(out, rt.cfg.WordWrap); err == nil {
			out = formatted
		}
	}
	fmt.Fprint(rt.stdout, out)
	return nil
}

func (rt *runtime) deleteConversations(ctx context.Context, h *storage.History, targets []string) error {
	for _, del := range targets {
		convo, err := h.Index().Find(del)
		if err != nil {
			return errs.Wrap(err, "Couldn't find conversation to delete.")
		}
		if err := rt.deleteConversation(ctx, h, convo.ID); err != nil {
			return err
		}
	}
	return nil
}

func (rt *runtime) deleteConversation(ctx context.Context, h *storage.History, id string) error {
	if err := h.Delete(ctx, id); err != nil {
		return errs.Wrap(err, "Couldn't delete conversation.")
	}
	if !rt.cfg.Quiet {
		present.PrintConfirmation(rt.stderr, present.StderrStyles(), "deleted", shortID(id))
	}
	return nil
}

func (rt *runtime) pruneConversations(ctx context.Context, h *storage.History, olderThan time.Duration, yes bool) error {
	conversations := h.Index().ListOlderThan(olderThan)
	if len(conversations) == 0 {
		if !rt.cfg.Quiet {
			fmt.Fprintln(rt.stderr, "No conversations found.")
		}
		return nil
	}

	if !yes && !rt.cfg.Quiet {
		printList(rt.stdout, conversations, rt.cfg.Raw)
		fmt.Fprintln(rt.stderr)
		//nolint:wrapcheck // user-facing guidance error
		return errs.UserErrorf(
			"To delete the %d conversations above, run: %s",
			len(conversations),
			present.StderrStyles().InlineCode.Render(fmt.Sprintf("relay history prune --older-than %s --yes", olderThan)),
		)
	}

	for _, c := range conversations {
		if err := rt.deleteConversation(ctx, h, c.ID); err != nil {
			return err
		}
	}
	return nil
}

func (rt *runtime) completeConversations(_ *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return conversationCompletions(&rt.cfg, toComplete), cobra.ShellCompDirectiveNoFileComp
}

func conversationCompletions(cfg *config.Config, toComplete string) []string {
	if cfg.CachePath == "" {
		return nil
	}
	db, err := storage.Open(indexDir(cfg))
	if err != nil {
		return nil
	}
	defer db.Close() //nolint:errcheck
	return db.Completions(toComplete)
}

func printList(w io.Writer, conversations []storage.Conversation, raw bool) {
	s := present.StdoutStyles()
	for _, c := range conversations {
		if raw {
			fmt.Fprintf(w, "%s\t%s\t%s\n", shortID(c.ID), c.Title, c.UpdatedAt.Format(time.RFC3339))
			continue
		}
		var model string
		if c.Model != "" {
			model = s.Comment.Render(strings.TrimSpace(c.Model + " (" + c.API + ")"))
		}
		fmt.Fprintf(
			w,
			"%s\t%s\t%s\t%s\n",
			s.SHA1.Render(shortID(c.ID)),
			c.Title,
			s.Timeago.Render(timeago.Of(c.UpdatedAt)),
			model,
		)
	}
}
