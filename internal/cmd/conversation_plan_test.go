package cmd

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dotcommander/relay/internal/config"
	"github.com/dotcommander/relay/internal/errs"
	"github.com/dotcommander/relay/internal/storage"
)

func testDB(tb testing.TB) *storage.DB {
	db, err := storage.Open(":memory:")
	require.NoError(tb, err)
	tb.Cleanup(func() {
		require.NoError(tb, db.Close())
	})
	return db
}

func saveConvo(tb testing.TB, db *storage.DB, title string) string {
	tb.Helper()
	id := storage.NewConversationID()
	require.NoError(tb, db.Save(storage.Conversation{ID: id, Title: title, API: "openai", Model: "gpt-4"}))
	return id
}

func TestPlanConversation(t *testing.T) {
	newCfg := func() *config.Config {
		return &config.Config{}
	}

	t.Run("all empty", func(t *testing.T) {
		db := testDB(t)
		cfg := newCfg()
		pl, err := planConversation(cfg, db)
		require.NoError(t, err)
		require.Empty(t, pl.ReadID)
		require.NotEmpty(t, pl.WriteID)
		require.Empty(t, pl.Title)
	})

	t.Run("continue id", func(t *testing.T) {
		db := testDB(t)
		cfg := newCfg()
		id := saveConvo(t, db, "message")
		cfg.Continue = id[:5]
		cfg.Prefix = "prompt"

		pl, err := planConversation(cfg, db)
		require.NoError(t, err)
		require.Equal(t, id, pl.ReadID)
		require.Equal(t, id, pl.WriteID)
		require.Equal(t, "gpt-4", pl.Model)
		require.Equal(t, "openai", pl.API)
	})

	t.Run("continue with no prompt", func(t *testing.T) {
		db := testDB(t)
		cfg := newCfg()
		id := saveConvo(t, db, "message 1")
		cfg.ContinueLast = true

		pl, err := planConversation(cfg, db)
		require.NoError(t, err)
		require.Equal(t, id, pl.ReadID)
		require.Equal(t, id, pl.WriteID)
		require.Empty(t, pl.Title)
	})

	t.Run("continue title", func(t *testing.T) {
		db := testDB(t)
		cfg := newCfg()
		id := saveConvo(t, db, "message 1")
		cfg.Continue = "message 1"
		cfg.Prefix = "prompt"

		pl, err := planConversation(cfg, db)
		require.NoError(t, err)
		require.Equal(t, id, pl.ReadID)
		require.Equal(t, id, pl.WriteID)
	})

	t.Run("continue last", func(t *testing.T) {
		db := testDB(t)
		cfg := newCfg()
		id := saveConvo(t, db, "message 1")
		cfg.ContinueLast = true
		cfg.Prefix = "prompt"

		pl, err := planConversation(cfg, db)
		require.NoError(t, err)
		require.Equal(t, id, pl.ReadID)
		require.Equal(t, id, pl.WriteID)
		require.Empty(t, pl.Title)
	})

	t.Run("continue last with name", func(t *testing.T) {
		db := testDB(t)
		cfg := newCfg()
		id := saveConvo(t, db, "message 1")
		cfg.Continue = "message 2"
		cfg.Prefix = "prompt"

		pl, err := planConversation(cfg, db)
		require.NoError(t, err)
		require.Equal(t, id, pl.ReadID)
		require.Equal(t, "message 2", pl.Title)
		require.Equal(t, id, pl.WriteID)
	})

	t.Run("write", func(t *testing.T) {
		db := testDB(t)
		cfg := newCfg()
		cfg.Title = "some title"

		pl, err := planConversation(cfg, db)
		require.NoError(t, err)
		require.Empty(t, pl.ReadID)
		require.True(t, storage.SHA1Regexp.MatchString(pl.WriteID))
		require.Equal(t, "some title", pl.Title)
	})

	t.Run("write to existing title", func(t *testing.T) {
		db := testDB(t)
		cfg := newCfg()
		id := saveConvo(t, db, "some title")
		cfg.Title = "some title"

		pl, err := planConversation(cfg, db)
		require.NoError(t, err)
		require.Empty(t, pl.ReadID)
		require.Equal(t, id, pl.WriteID)
	})

	t.Run("continue id and write with title", func(t *testing.T) {
		db := testDB(t)
		cfg := newCfg()
		id := saveConvo(t, db, "message 1")
		cfg.Title = "some title"
		cfg.Continue = id[:10]

		pl, err := planConversation(cfg, db)
		require.NoError(t, err)
		require.Equal(t, id, pl.ReadID)
		require.NotEqual(t, id, pl.WriteID)
		require.True(t, storage.SHA1Regexp.MatchString(pl.WriteID))
		require.Equal(t, "some title", pl.Title)
	})

	t.Run("continue with empty history", func(t *testing.T) {
		db := testDB(t)
		cfg := newCfg()
		cfg.Continue = "aaa"

		_, err := planConversation(cfg, db)
		require.Error(t, err)

		e := errs.Error{}
		require.ErrorAs(t, err, &e)
		require.Equal(t, "Could not find the conversation.", e.Reason)
		require.ErrorIs(t, err, storage.ErrNoMatches)
	})

	t.Run("uses config model and api", func(t *testing.T) {
		db := testDB(t)
		cfg := newCfg()
		cfg.Model = "claude-3.7-sonnet"
		cfg.API = "anthropic"

		pl, err := planConversation(cfg, db)
		require.NoError(t, err)
		require.Equal(t, "claude-3.7-sonnet", pl.Model)
		require.Equal(t, "anthropic", pl.API)
		require.Empty(t, pl.ReadID)
		require.NotEmpty(t, pl.WriteID)
	})
}

func TestFindConversation(t *testing.T) {
	db := testDB(t)
	id := saveConvo(t, db, "only")

	found, err := findConversation(db, "", true)
	require.NoError(t, err)
	require.Equal(t, id, found.ID)

	found, err = findConversation(db, "unknown title", true)
	require.NoError(t, err)
	require.Equal(t, id, found.ID)

	_, err = findConversation(db, "unknown title", false)
	require.ErrorIs(t, err, storage.ErrNoMatches)
}
