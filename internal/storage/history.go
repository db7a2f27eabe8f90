package storage

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"

	"github.com/dotcommander/relay/internal/proto"
)

// Payloads stores the messages of conversations by id. Read returns
// ErrNotFound for an unknown id.
type Payloads interface {
	Read(ctx context.Context, id string) ([]proto.Message, error)
	Write(ctx context.Context, id string, messages []proto.Message) error
	Delete(ctx context.Context, id string) error
}

// History pairs the metadata index with a payload store.
type History struct {
	index    *DB
	payloads Payloads
}

// NewHistory creates a history over index and payloads.
func NewHistory(index *DB, payloads Payloads) *History {
	return &History{index: index, payloads: payloads}
}

// Index returns the metadata index.
func (h *History) Index() *DB {
	return h.index
}

// Load returns the messages of conversation id.
func (h *History) Load(ctx context.Context, id string) ([]proto.Message, error) {
	msgs, err := h.payloads.Read(ctx, id)
	if err != nil {
		return nil, errors.Wrapf(err, "load conversation %s", id)
	}
	return msgs, nil
}

// Save writes messages under convo.ID and updates its metadata. The payload
// is written first so the index never points at a missing conversation.
func (h *History) Save(ctx context.Context, convo Conversation, messages []proto.Message) error {
	if err := h.payloads.Write(ctx, convo.ID, messages); err != nil {
		return errors.Wrapf(err, "write conversation %s", convo.ID)
	}
	convo.Turns = countTurns(messages)
	return h.index.Save(convo)
}

// Delete removes conversation id from both stores. A payload that is already
// gone is not an error.
func (h *History) Delete(ctx context.Context, id string) error {
	if err := h.payloads.Delete(ctx, id); err != nil && !errors.Is(err, ErrNotFound) {
		return errors.Wrapf(err, "delete conversation %s", id)
	}
	return h.index.Delete(id)
}

// Prune deletes the conversations not updated within d and returns them.
func (h *History) Prune(ctx context.Context, d time.Duration) ([]Conversation, error) {
	old := h.index.ListOlderThan(d)
	for i, c := range old {
		if err := h.Delete(ctx, c.ID); err != nil {
			return old[:i], err
		}
		logger.ContextKV(ctx, xlog.DEBUG, "reason", "pruned", "id", c.ID)
	}
	return old, nil
}

func countTurns(messages []proto.Message) int {
	n := 0
	for _, m := range messages {
		if m.Role == proto.RoleUser {
			n++
		}
	}
	return n
}
