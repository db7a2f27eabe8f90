package cmd

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dotcommander/relay/internal/proto"
	"github.com/dotcommander/relay/internal/storage"
)

func seedConversation(t *testing.T, h *storage.History, title string, msgs ...proto.Message) string {
	t.Helper()
	id := storage.NewConversationID()
	require.NoError(t, h.Save(context.Background(), storage.Conversation{
		ID:    id,
		Title: title,
		API:   "openai",
		Model: "gpt-4o",
	}, msgs))
	return id
}

func TestHistoryList(t *testing.T) {
	cli := &testCLI{cfg: testConfig(t)}

	out := cli.mustRun(t, "history", "list")
	require.Empty(t, out)
	require.Contains(t, cli.stderr.String(), "No conversations found.")

	h := openTestHistory(t, cli)
	id := seedConversation(t, h, "test conversation")

	out = cli.mustRun(t, "history", "list", "--raw")
	fields := strings.Split(strings.TrimSpace(out), "\t")
	require.Len(t, fields, 3)
	require.Equal(t, id[:storage.SHA1Short], fields[0])
	require.Equal(t, "test conversation", fields[1])

	out = cli.mustRun(t, "history", "list")
	require.Contains(t, out, "gpt-4o (openai)")
}

func TestHistoryShow(t *testing.T) {
	cli := &testCLI{cfg: testConfig(t)}
	h := openTestHistory(t, cli)

	msgs1 := []proto.Message{
		{Role: proto.RoleUser, Content: "first"},
		{Role: proto.RoleAssistant, Content: "one"},
	}
	msgs2 := []proto.Message{
		{Role: proto.RoleUser, Content: "second"},
		{Role: proto.RoleAssistant, Content: "two"},
	}
	id1 := seedConversation(t, h, "title-1", msgs1...)
	time.Sleep(2 * time.Millisecond)
	seedConversation(t, h, "title-2", msgs2...)

	t.Run("by id prefix", func(t *testing.T) {
		out := cli.mustRun(t, "history", "show", id1[:8])
		require.Equal(t, proto.Conversation(msgs1).String(), out)
	})

	t.Run("by title", func(t *testing.T) {
		out := cli.mustRun(t, "history", "show", "title-1")
		require.Equal(t, proto.Conversation(msgs1).String(), out)
	})

	t.Run("last", func(t *testing.T) {
		out := cli.mustRun(t, "history", "show", "--last")
		require.Equal(t, proto.Conversation(msgs2).String(), out)
	})

	t.Run("unknown", func(t *testing.T) {
		err := cli.run(t, "history", "show", "nope")
		require.ErrorContains(t, err, "no conversations found")
	})

	t.Run("nothing to show", func(t *testing.T) {
		require.Error(t, cli.run(t, "history", "show"))
	})
}

func TestHistoryDelete(t *testing.T) {
	cli := &testCLI{cfg: testConfig(t)}
	h := openTestHistory(t, cli)
	id1 := seedConversation(t, h, "first")
	id2 := seedConversation(t, h, "second")
	id3 := seedConversation(t, h, "third")

	cli.mustRun(t, "history", "delete", id1[:8], "second")
	require.Contains(t, cli.stderr.String(), "DELETED")

	// the command wrote through its own handle; reopen to observe it
	h = openTestHistory(t, cli)
	convos := h.Index().List()
	require.Len(t, convos, 1)
	require.Equal(t, id3, convos[0].ID)
	_, err := h.Load(context.Background(), id2)
	require.ErrorIs(t, err, storage.ErrNotFound)

	require.Error(t, cli.run(t, "history", "delete", "nope"))
}

func TestHistoryPrune(t *testing.T) {
	cli := &testCLI{cfg: testConfig(t)}
	h := openTestHistory(t, cli)
	seedConversation(t, h, "old one")

	t.Run("missing duration", func(t *testing.T) {
		require.Error(t, cli.run(t, "history", "prune"))
	})

	t.Run("nothing old enough", func(t *testing.T) {
		cli.mustRun(t, "history", "prune", "--older-than", "7d")
		require.Contains(t, cli.stderr.String(), "No conversations found.")
	})

	rt := &runtime{cfg: cli.cfg}
	WithIO(strings.NewReader(""), &cli.stdout, &cli.stderr)(rt)
	time.Sleep(2 * time.Millisecond)

	t.Run("asks for confirmation", func(t *testing.T) {
		err := rt.pruneConversations(context.Background(), h, time.Millisecond, false)
		require.ErrorContains(t, err, "--yes")
		require.Len(t, h.Index().List(), 1)
	})

	t.Run("deletes", func(t *testing.T) {
		require.NoError(t, rt.pruneConversations(context.Background(), h, time.Millisecond, true))
		require.Empty(t, h.Index().List())
	})
}
