package note

import "context"

// Repository abstracts canonical storage of notes (local database or remote API).
// It owns no retry or caching logic.
type Repository interface {
	// List returns all notes for the current user in unspecified order
	List(ctx context.Context) ([]Note, error)

	// Get returns the note or ErrNotFound
	Get(ctx context.Context, id string) (Note, error)

	// Create stores a new note; the store assigns id and timestamps
	Create(ctx context.Context, title, content string) (Note, error)

	// Update replaces title and content and bumps updated_at, or returns ErrNotFound
	Update(ctx context.Context, id, title, content string) (Note, error)

	// Delete removes the note or returns ErrNotFound
	Delete(ctx context.Context, id string) error
}

// Searcher performs similarity search over note content chunks
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
}
