// Package cache stores JSON documents as files, sharded by id prefix.
package cache

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
)

const (
	ext      = ".json"
	shardLen = 2
)

var errInvalidID = errors.New("invalid id")

// Cache keeps values of T in dir, one file per id. Writes are atomic.
type Cache[T any] struct {
	dir string
}

// New creates a cache rooted at dir.
func New[T any](dir string) (*Cache[T], error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrap(err, "create cache directory")
	}
	return &Cache[T]{dir: dir}, nil
}

// path returns the file of id. Ids shorter than a shard prefix live at the
// top level.
func (c *Cache[T]) path(id string) string {
	if len(id) < shardLen {
		return filepath.Join(c.dir, id+ext)
	}
	return filepath.Join(c.dir, id[:shardLen], id+ext)
}

func validID(id string) error {
	if id == "" || id != filepath.Base(id) || id == "." || id == ".." {
		return errors.Wrapf(errInvalidID, "%q", id)
	}
	return nil
}

// Get decodes the value stored under id. A missing entry wraps
// os.ErrNotExist.
func (c *Cache[T]) Get(id string) (T, error) {
	var v T
	if err := validID(id); err != nil {
		return v, err
	}
	bts, err := os.ReadFile(c.path(id))
	if err != nil {
		return v, errors.Wrap(err, "read cache entry")
	}
	if err := json.Unmarshal(bts, &v); err != nil {
		return v, errors.Wrapf(err, "decode cache entry %s", id)
	}
	return v, nil
}

// Put stores v under id, replacing any previous value.
func (c *Cache[T]) Put(id string, v T) error {
	if err := validID(id); err != nil {
		return err
	}
	bts, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "encode cache entry %s", id)
	}

	path := c.path(id)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return errors.Wrap(err, "create shard directory")
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return errors.Wrap(err, "create temporary entry")
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	if _, err := tmp.Write(bts); err != nil {
		return errors.Wrap(err, "write cache entry")
	}
	if err := tmp.Sync(); err != nil {
		return errors.Wrap(err, "sync cache entry")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close cache entry")
	}
	return errors.Wrap(os.Rename(tmp.Name(), path), "replace cache entry")
}

// Delete removes the entry of id. A missing entry wraps os.ErrNotExist.
func (c *Cache[T]) Delete(id string) error {
	if err := validID(id); err != nil {
		return err
	}
	return errors.Wrap(os.Remove(c.path(id)), "delete cache entry")
}
