// Package draft keeps device-local shadow copies of unsaved note edits.
package draft

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vonshlovens/nebula-notes/internal/note"
)

// KeyPrefix namespaces draft entries in the underlying key/value store
const KeyPrefix = "note_draft_"

// Store is an opaque key/value backend for draft blobs.
// Get returns (nil, nil) when the key is absent.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
	Close() error
}

// Key returns the store key for a note's draft
func Key(noteID string) string {
	return KeyPrefix + noteID
}

// blob is the persisted JSON form: {title, content, timestamp}
type blob struct {
	Title     string `json:"title"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

func encode(d note.Draft) ([]byte, error) {
	return json.Marshal(blob{
		Title:     d.Title,
		Content:   d.Content,
		Timestamp: d.Timestamp.UTC().Format(time.RFC3339Nano),
	})
}

func decode(noteID string, data []byte) (*note.Draft, error) {
	var b blob
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("failed to unmarshal draft: %w", err)
	}

	d := &note.Draft{NoteID: noteID, Title: b.Title, Content: b.Content}
	if b.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339Nano, b.Timestamp)
		if err == nil {
			d.Timestamp = ts
		}
	}
	return d, nil
}
