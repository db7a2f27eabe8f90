package cmd

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/dotcommander/relay/internal/config"
	"github.com/dotcommander/relay/internal/errs"
	"github.com/dotcommander/relay/internal/present"
	"github.com/dotcommander/relay/internal/proto"
	"github.com/dotcommander/relay/internal/storage"
	"github.com/dotcommander/relay/internal/storage/cache"
	"github.com/dotcommander/relay/internal/storage/redisstore"
)

// openHistory opens the conversation index and the payload backend selected
// by history-backend. The returned func releases both.
func openHistory(ctx context.Context, cfg *config.Config) (*storage.History, func(), error) {
	db, err := storage.Open(indexDir(cfg))
	if err != nil {
		return nil, nil, errs.Wrap(err, "Could not open database.")
	}

	switch cfg.HistoryBackend {
	case config.HistoryRedis:
		store, err := redisstore.Open(ctx, cfg.RedisURL, redisstore.DefaultPrefix, 0)
		if err != nil {
			_ = db.Close()
			return nil, nil, errs.Wrap(err, "Could not connect to the redis history backend.")
		}
		return storage.NewHistory(db, store), func() {
			_ = store.Close()
			_ = db.Close()
		}, nil
	default:
		convos, err := cache.NewConversations(cfg.CachePath)
		if err != nil {
			_ = db.Close()
			return nil, nil, errs.Wrap(err, "Could not open the conversation cache.")
		}
		return storage.NewHistory(db, convos), func() { _ = db.Close() }, nil
	}
}

func indexDir(cfg *config.Config) string {
	return filepath.Join(cfg.CachePath, cache.ConversationsDir)
}

func saveConversation(ctx context.Context, w io.Writer, cfg *config.Config, hist *storage.History, msgs []proto.Message) error {
	s := present.StderrStyles()
	if cfg.NoCache {
		if !cfg.Quiet {
			fmt.Fprintf(
				w,
				"\nConversation was not saved because %s or %s is set.\n",
				s.InlineCode.Render("--no-cache"),
				s.InlineCode.Render("RELAY_NO_CACHE"),
			)
		}
		return nil
	}

	id := cfg.CacheWriteToID
	title := strings.TrimSpace(cfg.CacheWriteToTitle)
	if storage.SHA1Regexp.MatchString(title) || title == "" {
		title = firstLine(lastPrompt(msgs))
	}
	if title == "" {
		title = shortID(id)
	}

	convo := storage.Conversation{ID: id, Title: title, API: cfg.API, Model: cfg.Model}
	if err := hist.Save(ctx, convo, msgs); err != nil {
		return errs.Wrapf(
			err,
			"There was a problem writing %s to the cache. Use %s / %s to disable it.",
			id,
			s.InlineCode.Render("--no-cache"),
			s.InlineCode.Render("RELAY_NO_CACHE"),
		)
	}

	if !cfg.Quiet {
		fmt.Fprintln(
			w,
			"\nConversation saved:",
			s.InlineCode.Render(shortID(id)),
			s.Comment.Render(title),
		)
	}
	return nil
}

func lastPrompt(messages []proto.Message) string {
	var result string
	for _, msg := range messages {
		if msg.Role != proto.RoleUser {
			continue
		}
		if msg.Content == "" {
			continue
		}
		result = msg.Content
	}
	return result
}

func firstLine(s string) string {
	first, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return first
}

func shortID(id string) string {
	if len(id) > storage.SHA1Short {
		return id[:storage.SHA1Short]
	}
	return id
}
