package autosave

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vonshlovens/nebula-notes/internal/draft"
	"github.com/vonshlovens/nebula-notes/internal/note"
)

// ErrClosed is returned by operations on a closed session
var ErrClosed = errors.New("session closed")

// Session holds the editing state of one open note and coordinates saves
// to the repository. At most one repository write is in flight per session.
//
// Every edit is mirrored to the draft cache before it is applied, so the
// latest text survives a crash until a save succeeds. Timer and completion
// callbacks check whether the session was closed before touching its state.
type Session struct {
	repo   note.Repository
	drafts *draft.Cache
	cfg    Config
	sched  Scheduler
	now    func() time.Time
	logger *slog.Logger
	bg     context.Context

	onSaved   func(previousID string, saved note.Note)
	onFailure func(Result)

	mu       sync.Mutex
	current  note.Note
	title    string
	content  string
	gen      uint64
	dirty    bool
	saving   bool
	editing  bool
	disposed bool
	status   Status

	tickSeq   uint64
	savedSeq  uint64
	stopTick  func() bool
	stopSaved func() bool
	stopRetry func() bool
}

func newSession(ctx context.Context, repo note.Repository, drafts *draft.Cache, opts []Option) *Session {
	s := &Session{
		repo:   repo,
		drafts: drafts,
		cfg:    DefaultConfig(),
		sched:  RealScheduler,
		now:    time.Now,
		logger: slog.Default(),
		bg:     context.WithoutCancel(ctx),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open loads a note for editing. A stored draft takes precedence over the
// repository copy and leaves the session dirty when the two differ.
//
// Opening note.NewID starts a blank local note in edit mode. A local id
// with a surviving draft reopens that unsaved note.
func Open(ctx context.Context, repo note.Repository, drafts *draft.Cache, id string, opts ...Option) (*Session, error) {
	if id == note.NewID {
		return OpenNew(ctx, repo, drafts, "", opts...), nil
	}

	s := newSession(ctx, repo, drafts, opts)
	d, hasDraft := drafts.Read(ctx, id)

	if !note.IsCanonicalID(id) {
		if !hasDraft {
			return nil, fmt.Errorf("failed to load note %s: %w", id, note.ErrNotFound)
		}
		s.current = note.Note{ID: id, CreatedAt: d.Timestamp, UpdatedAt: d.Timestamp, Tags: []string{}}
		s.title, s.content = d.Title, d.Content
		s.dirty = true
		s.logger.Info("Recovered unsaved note from draft", "note_id", id)
		return s, nil
	}

	n, err := repo.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load note %s: %w", id, err)
	}
	s.current = n
	s.title, s.content = n.Title, n.Content

	if hasDraft {
		s.title, s.content = d.Title, d.Content
		s.dirty = d.Title != n.Title || d.Content != n.Content
		s.logger.Info("Restored draft", "note_id", id, "draft_at", d.Timestamp, "dirty", s.dirty)
	}
	return s, nil
}

// OpenNew starts a local note in edit mode. Non-empty initial content
// counts as an edit.
func OpenNew(ctx context.Context, repo note.Repository, drafts *draft.Cache, initialContent string, opts ...Option) *Session {
	s := newSession(ctx, repo, drafts, opts)
	s.current = note.NewLocal(s.now(), "")

	s.mu.Lock()
	s.apply(ctx, "", initialContent)
	s.mu.Unlock()

	s.StartEditing()
	return s
}

// Note returns the canonical snapshot overlaid with the latest edits
func (s *Session) Note() note.Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.current
	n.Title, n.Content = s.title, s.content
	return n
}

// ID returns the current note id. It changes once a local note is created.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.ID
}

func (s *Session) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

func (s *Session) Saving() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saving
}

func (s *Session) Editing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.editing
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) SetTitle(ctx context.Context, title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apply(ctx, title, s.content)
}

func (s *Session) SetContent(ctx context.Context, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apply(ctx, s.title, content)
}

// Edit replaces title and content in one step
func (s *Session) Edit(ctx context.Context, title, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.apply(ctx, title, content)
}

// apply must be called with s.mu held
func (s *Session) apply(ctx context.Context, title, content string) {
	if s.disposed || (title == s.title && content == s.content) {
		return
	}
	s.drafts.Write(ctx, s.current.ID, title, content)
	s.title, s.content = title, content
	s.gen++
	s.dirty = true
}

// Save writes the latest title and content to the repository. A note that
// was never persisted is created, anything else is updated. Save returns
// OutcomeSkipped without calling the repository while another save is in
// flight. It cancels any pending retry and starts a fresh retry chain.
func (s *Session) Save(ctx context.Context) Result {
	return s.save(ctx, 0)
}

func (s *Session) save(ctx context.Context, attempt int) Result {
	s.mu.Lock()
	if s.saving || s.disposed {
		s.mu.Unlock()
		return Result{Outcome: OutcomeSkipped, Attempt: attempt}
	}
	s.saving = true
	s.status = StatusSaving
	cancelTimer(&s.stopRetry)
	snapshot, title, content, gen := s.current, s.title, s.content, s.gen
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.saving = false
		if s.status == StatusSaving {
			s.status = StatusIdle
		}
		s.mu.Unlock()
	}()

	var (
		saved note.Note
		err   error
	)
	if snapshot.IsPersisted() {
		saved, err = s.repo.Update(ctx, snapshot.ID, title, content)
	} else {
		saved, err = s.repo.Create(ctx, title, content)
	}
	if err != nil {
		return s.failed(snapshot.ID, attempt, err)
	}
	return s.succeeded(ctx, snapshot.ID, saved, gen, attempt)
}

func (s *Session) succeeded(ctx context.Context, previousID string, saved note.Note, gen uint64, attempt int) Result {
	s.mu.Lock()
	s.drafts.Clear(ctx, previousID)
	if s.gen != gen {
		// edited while the write was in flight
		s.drafts.Write(ctx, saved.ID, s.title, s.content)
	}

	if !s.disposed {
		s.current = saved
		if s.gen == gen {
			s.dirty = false
		}
		s.status = StatusSaved
		s.savedSeq++
		seq := s.savedSeq
		cancelTimer(&s.stopSaved)
		s.stopSaved = s.sched.AfterFunc(s.cfg.SavedDisplay, func() { s.clearSaved(seq) })
	}
	onSaved := s.onSaved
	s.mu.Unlock()

	s.logger.Debug("Saved note", "note_id", saved.ID, "previous_id", previousID, "attempt", attempt)
	if onSaved != nil {
		onSaved(previousID, saved)
	}
	return Result{Outcome: OutcomeSaved, Note: saved, Attempt: attempt}
}

func (s *Session) failed(id string, attempt int, cause error) Result {
	saveErr := &note.TransientSaveError{NoteID: id, Attempt: attempt, Err: cause}

	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return Result{Outcome: OutcomeFailed, Attempt: attempt, Err: saveErr}
	}
	if attempt < s.cfg.MaxRetries {
		delay := s.cfg.RetryDelay(attempt)
		next := attempt + 1
		s.stopRetry = s.sched.AfterFunc(delay, func() { s.save(s.bg, next) })
		s.mu.Unlock()

		s.logger.Warn("Save failed, retrying", "note_id", id, "attempt", attempt+1, "retry_in", delay, "error", cause)
		return Result{Outcome: OutcomeRetrying, Attempt: attempt, Err: saveErr}
	}
	onFailure := s.onFailure
	s.mu.Unlock()

	res := Result{
		Outcome: OutcomeFailed,
		Attempt: attempt,
		Err:     fmt.Errorf("%w: %w", note.ErrRetriesExhausted, saveErr),
	}
	s.logger.Error("Save failed after multiple attempts", "note_id", id, "attempts", attempt+1, "error", cause)
	if onFailure != nil {
		onFailure(res)
	}
	return res
}

func (s *Session) clearSaved(seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed || seq != s.savedSeq {
		return
	}
	if s.status == StatusSaved {
		s.status = StatusIdle
	}
	s.stopSaved = nil
}

// StartEditing enters edit mode and arms the periodic autosave
func (s *Session) StartEditing() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.editing || s.disposed {
		return
	}
	s.editing = true
	s.armTick()
}

// armTick must be called with s.mu held
func (s *Session) armTick() {
	s.tickSeq++
	seq := s.tickSeq
	s.stopTick = s.sched.AfterFunc(s.cfg.Interval, func() { s.tick(seq) })
}

func (s *Session) tick(seq uint64) {
	s.mu.Lock()
	if !s.editing || s.disposed || seq != s.tickSeq {
		s.mu.Unlock()
		return
	}
	s.armTick()
	dirty := s.dirty
	s.mu.Unlock()

	if dirty {
		s.save(s.bg, 0)
	}
}

// StopEditing leaves edit mode, disarming the periodic autosave, and saves
// when there are unsaved edits.
func (s *Session) StopEditing(ctx context.Context) Result {
	s.mu.Lock()
	if !s.editing {
		s.mu.Unlock()
		return Result{Outcome: OutcomeSkipped}
	}
	s.editing = false
	cancelTimer(&s.stopTick)
	s.mu.Unlock()

	return s.Flush(ctx)
}

// Flush saves when there are unsaved edits. It is the forced save point for
// navigating away from a note.
func (s *Session) Flush(ctx context.Context) Result {
	if !s.Dirty() {
		return Result{Outcome: OutcomeSkipped}
	}
	return s.Save(ctx)
}

// Close disarms the autosave, flushes unsaved edits and disposes the
// session. A save already in flight is not aborted; its completion only
// settles the draft cache.
func (s *Session) Close(ctx context.Context) Result {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return Result{Outcome: OutcomeSkipped}
	}
	s.editing = false
	cancelTimer(&s.stopTick)
	s.mu.Unlock()

	res := s.Flush(ctx)

	s.mu.Lock()
	s.disposed = true
	cancelTimer(&s.stopSaved)
	cancelTimer(&s.stopRetry)
	s.mu.Unlock()
	return res
}

// Delete removes the note from the repository, drops its draft and closes
// the session. A note that was never persisted only loses its draft.
func (s *Session) Delete(ctx context.Context) error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrClosed
	}
	id := s.current.ID
	s.mu.Unlock()

	if note.IsCanonicalID(id) {
		if err := s.repo.Delete(ctx, id); err != nil {
			return fmt.Errorf("failed to delete note %s: %w", id, err)
		}
	}

	s.mu.Lock()
	s.disposed = true
	s.editing = false
	cancelTimer(&s.stopTick)
	cancelTimer(&s.stopSaved)
	cancelTimer(&s.stopRetry)
	s.drafts.Clear(ctx, id)
	s.mu.Unlock()

	s.logger.Info("Deleted note", "note_id", id)
	return nil
}

func cancelTimer(stop *func() bool) {
	if *stop != nil {
		(*stop)()
		*stop = nil
	}
}
