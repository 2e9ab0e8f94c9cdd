package draft

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/vonshlovens/nebula-notes/internal/note"
)

// Cache maps note ids to unsynced edits. Persistence failures are logged as
// *note.DraftPersistenceError and swallowed: losing the local backup never
// blocks the repository write.
type Cache struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Cache
type Option func(*Cache)

// WithLogger sets the logger used for swallowed failures; nil keeps
// slog.Default()
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock overrides the timestamp source for written drafts
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// NewCache creates a draft cache over store
func NewCache(store Store, opts ...Option) *Cache {
	c := &Cache{
		store:  store,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Read returns the draft for id, or false when absent or unreadable
func (c *Cache) Read(ctx context.Context, id string) (note.Draft, bool) {
	data, err := c.store.Get(ctx, Key(id))
	if err != nil {
		c.report("read", id, err)
		return note.Draft{}, false
	}
	if data == nil {
		return note.Draft{}, false
	}

	d, err := decode(id, data)
	if err != nil {
		c.report("read", id, err)
		return note.Draft{}, false
	}
	return *d, true
}

// Write overwrites the draft for id unconditionally
func (c *Cache) Write(ctx context.Context, id, title, content string) {
	data, err := encode(note.Draft{
		NoteID:    id,
		Title:     title,
		Content:   content,
		Timestamp: c.now(),
	})
	if err != nil {
		c.report("write", id, err)
		return
	}

	if err := c.store.Set(ctx, Key(id), data); err != nil {
		c.report("write", id, err)
	}
}

// Clear removes the draft for id
func (c *Cache) Clear(ctx context.Context, id string) {
	if err := c.store.Delete(ctx, Key(id)); err != nil {
		c.report("clear", id, err)
	}
}

// List returns every readable draft, newest first
func (c *Cache) List(ctx context.Context) ([]note.Draft, error) {
	keys, err := c.store.Keys(ctx)
	if err != nil {
		return nil, err
	}

	drafts := make([]note.Draft, 0, len(keys))
	for _, key := range keys {
		if !strings.HasPrefix(key, KeyPrefix) {
			continue
		}
		if d, ok := c.Read(ctx, strings.TrimPrefix(key, KeyPrefix)); ok {
			drafts = append(drafts, d)
		}
	}

	sort.SliceStable(drafts, func(i, j int) bool {
		return drafts[i].Timestamp.After(drafts[j].Timestamp)
	})
	return drafts, nil
}

// Close releases the underlying store
func (c *Cache) Close() error {
	return c.store.Close()
}

func (c *Cache) report(op, id string, err error) {
	perr := &note.DraftPersistenceError{Op: op, NoteID: id, Err: err}
	c.logger.Warn("draft persistence failed", "note_id", id, "op", op, "error", perr)
}
