package note

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the note id is unknown to the repository
	ErrNotFound = errors.New("note not found")

	// ErrNoSession indicates there is no authenticated session to act on
	ErrNoSession = errors.New("no active session")

	// ErrRetriesExhausted marks a save that failed after every automatic retry
	ErrRetriesExhausted = errors.New("save failed after multiple attempts")
)

// TransientSaveError wraps a repository write failure during autosave.
// Attempt is zero for the first try and counts retries after that.
type TransientSaveError struct {
	NoteID  string
	Attempt int
	Err     error
}

func (e *TransientSaveError) Error() string {
	return fmt.Sprintf("save note %s (attempt %d): %v", e.NoteID, e.Attempt+1, e.Err)
}

func (e *TransientSaveError) Unwrap() error { return e.Err }

// SearchError wraps a failed semantic search request
type SearchError struct {
	Query string
	Err   error
}

func (e *SearchError) Error() string {
	return fmt.Sprintf("semantic search %q failed: %v", e.Query, e.Err)
}

func (e *SearchError) Unwrap() error { return e.Err }

// DraftPersistenceError wraps a failure to read, write, or clear a local draft.
// It is logged and never surfaced to the editing flow.
type DraftPersistenceError struct {
	Op     string
	NoteID string
	Err    error
}

func (e *DraftPersistenceError) Error() string {
	return fmt.Sprintf("draft %s for note %s: %v", e.Op, e.NoteID, e.Err)
}

func (e *DraftPersistenceError) Unwrap() error { return e.Err }
