package note

import (
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// NewID is the route id used by callers to open a blank, unpersisted note.
const NewID = "new"

// idSeparator is present in every canonical id (UUID dashes) and absent from
// locally generated ids (unix millisecond digits).
const idSeparator = "-"

// Note represents a single note as held by the canonical store
type Note struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Tags      []string  `json:"tags,omitempty"`
}

// LastModified returns UpdatedAt, falling back to CreatedAt when unset
func (n Note) LastModified() time.Time {
	if n.UpdatedAt.IsZero() {
		return n.CreatedAt
	}
	return n.UpdatedAt
}

// IsPersisted reports whether the note id has the canonical shape.
// A note that was never saved carries a local id without a separator and
// must be created rather than updated.
func (n Note) IsPersisted() bool {
	return IsCanonicalID(n.ID)
}

// IsCanonicalID reports whether id was assigned by the canonical store
func IsCanonicalID(id string) bool {
	return strings.Contains(id, idSeparator)
}

// LocalID generates an id for a note that has not been persisted yet
func LocalID(now time.Time) string {
	return strconv.FormatInt(now.UnixMilli(), 10)
}

// lastLocalID is the last millisecond value handed out by NewLocal
var lastLocalID atomic.Int64

// nextLocalID returns now in unix milliseconds, bumped past any id already
// issued by this process so that notes started together stay distinct
func nextLocalID(now time.Time) string {
	for {
		last := lastLocalID.Load()
		id := max(now.UnixMilli(), last+1)
		if lastLocalID.CompareAndSwap(last, id) {
			return strconv.FormatInt(id, 10)
		}
	}
}

// NewLocal returns a blank unpersisted note stamped with now
func NewLocal(now time.Time, content string) Note {
	now = now.UTC()
	return Note{
		ID:        nextLocalID(now),
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
		Tags:      []string{},
	}
}

// Draft is a device-local shadow copy of in-progress edits
type Draft struct {
	NoteID    string    `json:"-"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// SearchResult is one scored content chunk returned by semantic search
type SearchResult struct {
	ChunkID     string  `json:"chunk_id,omitempty"`
	NoteID      string  `json:"note_id"`
	Content     string  `json:"content"`
	Similarity  float64 `json:"similarity"`
	ChunkIndex  int     `json:"chunk_index"`
	TotalChunks int     `json:"total_chunks"`
}
