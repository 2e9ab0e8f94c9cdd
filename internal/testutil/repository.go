package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/vonshlovens/nebula-notes/internal/note"
)

// ErrWriteFailed is returned by Repository writes while failures are queued
var ErrWriteFailed = errors.New("simulated write failure")

// Repository is an in-memory note.Repository with failure injection and
// call counting. Safe for concurrent use.
type Repository struct {
	mu      sync.Mutex
	notes   map[string]note.Note
	clock   *StubClock
	failN   int
	failAll bool

	// Gate, when non-nil, blocks every Create/Update until it receives or closes
	Gate chan struct{}

	Creates int
	Updates int
	Deletes int
}

// NewRepository creates an empty repository driven by clock
func NewRepository(clock *StubClock) *Repository {
	return &Repository{notes: make(map[string]note.Note), clock: clock}
}

// Seed stores n as-is and returns it
func (r *Repository) Seed(n note.Note) note.Note {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes[n.ID] = n
	return n
}

// FailNext makes the next n writes fail and clears FailAlways
func (r *Repository) FailNext(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failN = n
	r.failAll = false
}

// FailAlways makes every write fail until reset with FailNext(0)
func (r *Repository) FailAlways() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failAll = true
}

// Writes returns the number of Create and Update calls
func (r *Repository) Writes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Creates + r.Updates
}

// Snapshot returns the stored note with id
func (r *Repository) Snapshot(id string) (note.Note, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.notes[id]
	return n, ok
}

func (r *Repository) List(context.Context) ([]note.Note, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]note.Note, 0, len(r.notes))
	for _, n := range r.notes {
		out = append(out, n)
	}
	return out, nil
}

func (r *Repository) Get(_ context.Context, id string) (note.Note, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.notes[id]
	if !ok {
		return note.Note{}, note.ErrNotFound
	}
	return n, nil
}

func (r *Repository) Create(_ context.Context, title, content string) (note.Note, error) {
	r.wait()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.Creates++
	if err := r.injectedFailure(); err != nil {
		return note.Note{}, err
	}

	now := r.clock.Now()
	n := note.Note{
		ID:        uuid.NewString(),
		Title:     title,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
		Tags:      []string{},
	}
	r.notes[n.ID] = n
	return n, nil
}

func (r *Repository) Update(_ context.Context, id, title, content string) (note.Note, error) {
	r.wait()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.Updates++
	if err := r.injectedFailure(); err != nil {
		return note.Note{}, err
	}

	n, ok := r.notes[id]
	if !ok {
		return note.Note{}, note.ErrNotFound
	}
	n.Title = title
	n.Content = content
	n.UpdatedAt = r.clock.Now()
	r.notes[id] = n
	return n, nil
}

func (r *Repository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Deletes++
	if _, ok := r.notes[id]; !ok {
		return note.ErrNotFound
	}
	delete(r.notes, id)
	return nil
}

func (r *Repository) wait() {
	if r.Gate != nil {
		<-r.Gate
	}
}

// injectedFailure must be called with r.mu held
func (r *Repository) injectedFailure() error {
	if r.failAll {
		return ErrWriteFailed
	}
	if r.failN > 0 {
		r.failN--
		return ErrWriteFailed
	}
	return nil
}
