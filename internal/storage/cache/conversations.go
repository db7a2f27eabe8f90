package cache

import (
	"context"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"

	"github.com/dotcommander/relay/internal/proto"
	"github.com/dotcommander/relay/internal/storage"
)

// ConversationsDir is the directory under the cache path that holds
// conversation payloads and the index.
const ConversationsDir = "conversations"

// Conversations is the file backed payload store.
type Conversations struct {
	cache *Cache[[]proto.Message]
}

// NewConversations opens the payload store under cachePath.
func NewConversations(cachePath string) (*Conversations, error) {
	c, err := New[[]proto.Message](filepath.Join(cachePath, ConversationsDir))
	if err != nil {
		return nil, err
	}
	return &Conversations{cache: c}, nil
}

// Read returns the messages of id, or storage.ErrNotFound.
func (c *Conversations) Read(_ context.Context, id string) ([]proto.Message, error) {
	msgs, err := c.cache.Get(id)
	if errors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrapf(storage.ErrNotFound, "%s", id)
	}
	return msgs, err
}

// Write replaces the messages of id.
func (c *Conversations) Write(_ context.Context, id string, messages []proto.Message) error {
	return c.cache.Put(id, messages)
}

// Delete removes the messages of id.
func (c *Conversations) Delete(_ context.Context, id string) error {
	err := c.cache.Delete(id)
	if errors.Is(err, os.ErrNotExist) {
		return errors.Wrapf(storage.ErrNotFound, "%s", id)
	}
	return err
}
