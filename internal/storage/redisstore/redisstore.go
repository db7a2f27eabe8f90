// Package redisstore keeps conversation payloads in Redis.
//
// Each conversation is one JSON string at <prefix>/conversations/<id>.
package redisstore

import (
	"context"
	"encoding/json"
	"path"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/redis/go-redis/v9"

	"github.com/dotcommander/relay/internal/proto"
	"github.com/dotcommander/relay/internal/storage"
)

var logger = xlog.NewPackageLogger("github.com/dotcommander/relay/internal/storage", "redisstore")

// DefaultPrefix is the key namespace used by the CLI.
const DefaultPrefix = "relay"

// Store is a storage.Payloads backed by Redis.
type Store struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// New creates a store over client. A zero ttl keeps conversations forever.
func New(client *redis.Client, prefix string, ttl time.Duration) *Store {
	return &Store{client: client, prefix: prefix, ttl: ttl}
}

// Open connects to the Redis server at url and checks it answers.
func Open(ctx context.Context, url, prefix string, ttl time.Duration) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url")
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "connect to redis at %s", opts.Addr)
	}
	return New(client, prefix, ttl), nil
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) key(id string) string {
	return path.Join("/", s.prefix, "conversations", id)
}

// Read returns the messages of id, or storage.ErrNotFound.
func (s *Store) Read(ctx context.Context, id string) ([]proto.Message, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errors.Wrapf(storage.ErrNotFound, "%s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "redis get")
	}
	var msgs []proto.Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		logger.ContextKV(ctx, xlog.ERROR, "reason", "unmarshal", "id", id, "err", err.Error())
		return nil, errors.Wrapf(err, "decode conversation %s", id)
	}
	return msgs, nil
}

// Write replaces the messages of id.
func (s *Store) Write(ctx context.Context, id string, messages []proto.Message) error {
	if id == "" {
		return errors.New("write conversation: empty id")
	}
	data, err := json.Marshal(messages)
	if err != nil {
		return errors.Wrap(err, "encode conversation")
	}
	if err := s.client.Set(ctx, s.key(id), data, s.ttl).Err(); err != nil {
		return errors.Wrap(err, "redis set")
	}
	return nil
}

// Delete removes the messages of id, or returns storage.ErrNotFound.
func (s *Store) Delete(ctx context.Context, id string) error {
	n, err := s.client.Del(ctx, s.key(id)).Result()
	if err != nil {
		return errors.Wrap(err, "redis del")
	}
	if n == 0 {
		return errors.Wrapf(storage.ErrNotFound, "%s", id)
	}
	return nil
}
