package storage

import (
	"bufio"
	"cmp"
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/xlog"
	"github.com/gofrs/flock"
)

var logger = xlog.NewPackageLogger("github.com/dotcommander/relay/internal", "storage")

var (
	// ErrNoMatches is returned when no conversations match the query.
	ErrNoMatches = errors.New("no conversations found")
	// ErrManyMatches is returned when multiple conversations match the query.
	ErrManyMatches = errors.New("multiple conversations matched the input")
	// ErrNotFound is returned by payload stores for an unknown id.
	ErrNotFound = errors.New("conversation not found")
)

const (
	indexFileName = "index.jsonl"
	lockFileName  = "index.lock"
	memoryDS      = ":memory:"

	// the index is rewritten once it holds this many records per live
	// conversation, and never below minCompactOps
	minCompactOps  = 256
	compactPerItem = 4
)

const (
	opUpsert = "upsert"
	opDelete = "delete"
)

type record struct {
	Op           string        `json:"op"`
	ID           string        `json:"id,omitempty"`
	Conversation *Conversation `json:"conversation,omitempty"`
}

// Conversation is the metadata of one stored conversation. The messages
// themselves live in a payload store.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	UpdatedAt time.Time `json:"updated_at"`
	API       string    `json:"api,omitempty"`
	Model     string    `json:"model,omitempty"`
	// Turns counts the user turns saved so far.
	Turns int `json:"turns,omitempty"`
}

// DB is an append-only JSONL index of conversation metadata, shared between
// processes through a file lock.
type DB struct {
	mu      sync.RWMutex
	path    string
	lock    *flock.Flock
	items   map[string]Conversation
	records int
	tempDir string
}

// Open loads the index stored in dir. The special value ":memory:" opens a
// store in a temporary directory that Close removes.
func Open(dir string) (*DB, error) {
	var tempDir string
	if dir == memoryDS {
		var err error
		dir, err = os.MkdirTemp("", "relay-conversations-*")
		if err != nil {
			return nil, errors.Wrap(err, "create temporary store")
		}
		tempDir = dir
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, errors.Wrap(err, "create store directory")
	}

	db := &DB{
		path:    filepath.Join(dir, indexFileName),
		lock:    flock.New(filepath.Join(dir, lockFileName)),
		items:   map[string]Conversation{},
		tempDir: tempDir,
	}
	if err := db.load(); err != nil {
		return nil, err
	}
	return db, nil
}

// Close releases the temporary directory of a :memory: store.
func (db *DB) Close() error {
	if db.tempDir == "" {
		return nil
	}
	return errors.Wrap(os.RemoveAll(db.tempDir), "remove temporary store")
}

// Save upserts convo and stamps it with the current time.
func (db *DB) Save(convo Conversation) error {
	if strings.TrimSpace(convo.ID) == "" {
		return errors.New("save conversation: empty id")
	}
	if strings.TrimSpace(convo.Title) == "" {
		return errors.New("save conversation: empty title")
	}
	convo.UpdatedAt = time.Now().UTC()

	db.mu.Lock()
	defer db.mu.Unlock()

	db.items[convo.ID] = convo
	if err := db.appendLocked(record{Op: opUpsert, Conversation: &convo}); err != nil {
		return errors.Wrap(err, "save conversation")
	}
	return db.maybeCompactLocked()
}

// Delete removes the record of id. Unknown ids are ignored.
func (db *DB) Delete(id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("delete conversation: empty id")
	}

	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.items[id]; !ok {
		return nil
	}
	delete(db.items, id)
	if err := db.appendLocked(record{Op: opDelete, ID: id}); err != nil {
		return errors.Wrap(err, "delete conversation")
	}
	return db.maybeCompactLocked()
}

// Get returns the record with exactly id.
func (db *DB) Get(id string) (Conversation, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	convo, ok := db.items[id]
	return convo, ok
}

// List returns all conversations, most recently updated first.
func (db *DB) List() []Conversation {
	return db.filter(func(Conversation) bool { return true })
}

// ListOlderThan returns the conversations not updated within d.
func (db *DB) ListOlderThan(d time.Duration) []Conversation {
	cutoff := time.Now().Add(-d)
	return db.filter(func(c Conversation) bool { return c.UpdatedAt.Before(cutoff) })
}

// FindHEAD returns the most recently updated conversation.
func (db *DB) FindHEAD() (*Conversation, error) {
	list := db.List()
	if len(list) == 0 {
		return nil, errors.Wrap(ErrNoMatches, "find head")
	}
	return &list[0], nil
}

// Find resolves a conversation by id prefix or exact title. Inputs shorter
// than SHA1MinLen only match titles.
func (db *DB) Find(in string) (*Conversation, error) {
	matches := db.filter(func(c Conversation) bool {
		if c.Title == in {
			return true
		}
		return len(in) >= SHA1MinLen && strings.HasPrefix(c.ID, in)
	})
	switch len(matches) {
	case 0:
		return nil, errors.Wrapf(ErrNoMatches, "%s", in)
	case 1:
		return &matches[0], nil
	default:
		return nil, errors.Wrapf(ErrManyMatches, "%s", in)
	}
}

// Completions returns shell completion candidates for ids and titles.
func (db *DB) Completions(in string) []string {
	set := map[string]struct{}{}
	for _, c := range db.List() {
		short := c.ID
		if len(short) > SHA1Short {
			short = short[:SHA1Short]
		}
		if strings.HasPrefix(c.ID, in) {
			id := c.ID
			if len(in) < SHA1Short {
				id = short
			}
			set[id+"\t"+c.Title] = struct{}{}
		}
		if strings.HasPrefix(c.Title, in) {
			set[c.Title+"\t"+short] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for v := range set {
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}

func (db *DB) filter(keep func(Conversation) bool) []Conversation {
	db.mu.RLock()
	out := make([]Conversation, 0, len(db.items))
	for _, c := range db.items {
		if keep(c) {
			out = append(out, c)
		}
	}
	db.mu.RUnlock()

	slices.SortFunc(out, func(a, b Conversation) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

func (db *DB) load() error {
	if err := db.lock.Lock(); err != nil {
		return errors.Wrap(err, "lock index")
	}
	defer func() { _ = db.lock.Unlock() }()

	file, err := os.Open(db.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "open index")
	}
	defer file.Close() //nolint:errcheck

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var rec record
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return errors.Wrapf(err, "parse index line %d", line)
		}
		if err := db.apply(rec); err != nil {
			return errors.Wrapf(err, "index line %d", line)
		}
		db.records++
	}
	return errors.Wrap(scanner.Err(), "scan index")
}

func (db *DB) apply(rec record) error {
	switch rec.Op {
	case opUpsert:
		if rec.Conversation == nil || strings.TrimSpace(rec.Conversation.ID) == "" {
			return errors.New("upsert without conversation id")
		}
		db.items[rec.Conversation.ID] = *rec.Conversation
	case opDelete:
		if strings.TrimSpace(rec.ID) == "" {
			return errors.New("delete without id")
		}
		delete(db.items, rec.ID)
	default:
		return errors.Newf("unknown op %q", rec.Op)
	}
	return nil
}

func (db *DB) appendLocked(rec record) error {
	if err := db.lock.Lock(); err != nil {
		return errors.Wrap(err, "lock index")
	}
	defer func() { _ = db.lock.Unlock() }()

	bts, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "marshal record")
	}
	file, err := os.OpenFile(db.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return errors.Wrap(err, "open index")
	}
	defer func() { _ = file.Close() }()

	if _, err := file.Write(append(bts, '\n')); err != nil {
		return errors.Wrap(err, "write record")
	}
	if err := file.Sync(); err != nil {
		return errors.Wrap(err, "sync index")
	}
	db.records++
	return nil
}

func (db *DB) maybeCompactLocked() error {
	if db.records < minCompactOps || db.records < len(db.items)*compactPerItem {
		return nil
	}
	return db.compactLocked()
}

// compactLocked rewrites the index with one upsert per live conversation,
// oldest first, and swaps it in atomically.
func (db *DB) compactLocked() error {
	if err := db.lock.Lock(); err != nil {
		return errors.Wrap(err, "lock index")
	}
	defer func() { _ = db.lock.Unlock() }()

	items := make([]Conversation, 0, len(db.items))
	for _, c := range db.items {
		items = append(items, c)
	}
	slices.SortFunc(items, func(a, b Conversation) int {
		if c := a.UpdatedAt.Compare(b.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	tmp := db.path + ".tmp"
	file, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return errors.Wrap(err, "open compacted index")
	}
	enc := json.NewEncoder(file)
	for i := range items {
		if err := enc.Encode(record{Op: opUpsert, Conversation: &items[i]}); err != nil {
			_ = file.Close()
			return errors.Wrap(err, "write compacted index")
		}
	}
	if err := file.Sync(); err != nil {
		_ = file.Close()
		return errors.Wrap(err, "sync compacted index")
	}
	if err := file.Close(); err != nil {
		return errors.Wrap(err, "close compacted index")
	}
	if err := os.Rename(tmp, db.path); err != nil {
		return errors.Wrap(err, "replace index")
	}
	if dir, err := os.Open(filepath.Dir(db.path)); err == nil {
		_ = dir.Sync()
		_ = dir.Close()
	}

	logger.KV(xlog.DEBUG, "reason", "compacted", "records", db.records, "live", len(items))
	db.records = len(items)
	return nil
}
