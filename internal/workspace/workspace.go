// Package workspace edits notes through a folder of markdown files. Each
// file is backed by an autosave session: file changes become edits, and the
// session's timer and teardown saves push them to the repository.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/vonshlovens/nebula-notes/internal/autosave"
	"github.com/vonshlovens/nebula-notes/internal/draft"
	"github.com/vonshlovens/nebula-notes/internal/note"
	"github.com/vonshlovens/nebula-notes/internal/parser"
	"github.com/vonshlovens/nebula-notes/internal/watcher"
)

// TagSetter is implemented by repositories that store tags
type TagSetter interface {
	SetTags(ctx context.Context, id string, tags []string) error
}

// Workspace maps note files under a root directory onto editing sessions
type Workspace struct {
	root           string
	repo           note.Repository
	drafts         *draft.Cache
	state          *StateTracker
	parser         *parser.Parser
	sessionOpts    []autosave.Option
	ignorePatterns []string
	logger         *slog.Logger
	progress       io.Writer
	now            func() time.Time

	mu    sync.Mutex
	files map[string]*file
}

// file is one open note file
type file struct {
	session *autosave.Session
	tags    []string
}

// Option configures a Workspace
type Option func(*Workspace)

// WithSessionOptions passes opts to every autosave session
func WithSessionOptions(opts ...autosave.Option) Option {
	return func(w *Workspace) { w.sessionOpts = append(w.sessionOpts, opts...) }
}

// WithIgnorePatterns skips files matching any doublestar pattern
func WithIgnorePatterns(patterns []string) Option {
	return func(w *Workspace) { w.ignorePatterns = patterns }
}

func WithLogger(l *slog.Logger) Option {
	return func(w *Workspace) { w.logger = l }
}

// WithProgress draws scan and pull progress bars on out
func WithProgress(out io.Writer) Option {
	return func(w *Workspace) { w.progress = out }
}

func WithClock(now func() time.Time) Option {
	return func(w *Workspace) { w.now = now }
}

// New creates a workspace rooted at root
func New(root string, repo note.Repository, drafts *draft.Cache, state *StateTracker, opts ...Option) *Workspace {
	w := &Workspace{
		root:     root,
		repo:     repo,
		drafts:   drafts,
		state:    state,
		parser:   parser.NewParser(),
		logger:   slog.Default(),
		progress: io.Discard,
		now:      time.Now,
		files:    make(map[string]*file),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Root returns the workspace directory
func (w *Workspace) Root() string {
	return w.root
}

// Session returns the open session for a file, if any
func (w *Workspace) Session(path string) (*autosave.Session, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	f, ok := w.files[path]
	if !ok {
		return nil, false
	}
	return f.session, true
}

// OpenCount returns the number of open file sessions
func (w *Workspace) OpenCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.files)
}

func (w *Workspace) abs(path string) string {
	return filepath.Join(w.root, filepath.FromSlash(path))
}

// Apply handles one file event
func (w *Workspace) Apply(ctx context.Context, ev watcher.Event) error {
	switch ev.Op {
	case watcher.OpRemove:
		return w.closeFile(ctx, ev.Path)
	default:
		return w.applyFile(ctx, ev.Path)
	}
}

// applyFile turns the current file contents into an edit on its session
func (w *Workspace) applyFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(w.abs(path))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	hash := HashContent(data)
	if !w.state.Changed(path, hash) {
		w.logger.Debug("file unchanged, skipping", "path", path)
		return nil
	}
	if !parser.IsValidUTF8(string(data)) {
		return fmt.Errorf("%s is not valid UTF-8", path)
	}

	parsed, err := w.parser.ParseContent(string(data), path)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}

	f, err := w.open(ctx, path, parsed.Frontmatter.ID)
	if err != nil {
		return err
	}

	w.mu.Lock()
	f.tags = parsed.Tags
	w.mu.Unlock()

	f.session.Edit(ctx, parsed.Title, parsed.Body)
	w.state.Set(path, hash, f.session.ID(), w.now())

	w.logger.Debug("file applied", "path", path, "note_id", f.session.ID(), "dirty", f.session.Dirty())
	return nil
}

// open returns the session for path, opening one on first use. The note id
// comes from frontmatter, then from state; without either a new note is
// started.
func (w *Workspace) open(ctx context.Context, path, id string) (*file, error) {
	w.mu.Lock()
	f, ok := w.files[path]
	w.mu.Unlock()
	if ok {
		return f, nil
	}

	if id == "" {
		if known, ok := w.state.Get(path); ok {
			id = known.NoteID
		}
	}

	f = &file{}
	opts := slices.Concat(w.sessionOpts, []autosave.Option{
		autosave.OnSaved(w.savedHook(path, f)),
		autosave.OnFailure(w.failureHook(path)),
	})

	if id != "" {
		s, err := autosave.Open(ctx, w.repo, w.drafts, id, opts...)
		switch {
		case errors.Is(err, note.ErrNotFound):
			w.logger.Warn("note not found, starting a new one", "path", path, "note_id", id)
		case err != nil:
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		default:
			f.session = s
			s.StartEditing()
		}
	}
	if f.session == nil {
		f.session = autosave.OpenNew(ctx, w.repo, w.drafts, "", opts...)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if existing, ok := w.files[path]; ok {
		f.session.Close(ctx)
		return existing, nil
	}
	w.files[path] = f
	w.logger.Info("editing note", "path", path, "note_id", f.session.ID())
	return f, nil
}

// closeFile saves and closes the session of a removed file. The note
// itself is kept.
func (w *Workspace) closeFile(ctx context.Context, path string) error {
	w.mu.Lock()
	f, ok := w.files[path]
	delete(w.files, path)
	w.mu.Unlock()

	if !ok {
		w.state.Remove(path)
		return nil
	}

	res := f.session.Close(ctx)
	w.state.Remove(path)
	w.logger.Info("file removed, note kept", "path", path, "note_id", f.session.ID())
	return res.Err
}

// savedHook writes a newly assigned id into the file's frontmatter and
// pushes the file's tags
func (w *Workspace) savedHook(path string, f *file) func(previousID string, saved note.Note) {
	return func(previousID string, saved note.Note) {
		w.state.SetNoteID(path, saved.ID)

		if previousID != saved.ID {
			if err := w.writeID(path, saved.ID); err != nil {
				w.logger.Warn("failed to write note id", "path", path, "note_id", saved.ID, "error", err)
			}
		}

		ts, ok := w.repo.(TagSetter)
		if !ok {
			return
		}
		w.mu.Lock()
		tags := f.tags
		w.mu.Unlock()
		if slices.Equal(tags, saved.Tags) {
			return
		}
		if err := ts.SetTags(context.Background(), saved.ID, tags); err != nil {
			w.logger.Warn("failed to set tags", "path", path, "note_id", saved.ID, "error", err)
		}
	}
}

func (w *Workspace) failureHook(path string) func(autosave.Result) {
	return func(res autosave.Result) {
		w.logger.Error("note not saved, edits kept as draft",
			"path", path,
			"note_id", res.Note.ID,
			"error", res.Err)
	}
}

// writeID sets the id field of a file's frontmatter and records the new
// hash so the rewrite is not applied as an edit
func (w *Workspace) writeID(path, id string) error {
	abs := w.abs(path)
	data, err := os.ReadFile(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	content, err := parser.SetField(string(data), "id", id)
	if err != nil {
		return err
	}
	if err := os.WriteFile(abs, []byte(content), 0644); err != nil {
		return err
	}

	w.state.Set(path, HashContent([]byte(content)), id, w.now())
	return nil
}

// Scan applies every note file that changed since the last run and forgets
// files that are gone
func (w *Workspace) Scan(ctx context.Context) error {
	w.logger.Info("scanning workspace", "path", w.root)
	start := w.now()

	var paths []string
	err := filepath.WalkDir(w.root, func(abs string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(w.root, abs)
		if err != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if watcher.MatchesAny(w.ignorePatterns, rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() && watcher.IsNote(rel) {
			paths = append(paths, rel)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to walk workspace: %w", err)
	}

	seen := make(map[string]bool, len(paths))
	bar := progressbar.NewOptions(len(paths),
		progressbar.OptionSetWriter(w.progress),
		progressbar.OptionSetDescription("Scanning notes"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionClearOnFinish(),
	)

	var failed int
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		seen[path] = true
		if err := w.applyFile(ctx, path); err != nil {
			failed++
			w.logger.Error("failed to apply file", "path", path, "error", err)
		}
		bar.Add(1)
	}
	bar.Finish()

	var removed int
	for _, path := range w.state.Paths() {
		if !seen[path] {
			w.state.Remove(path)
			removed++
		}
	}

	w.state.SetLastScan(w.now())
	if err := w.state.Save(); err != nil {
		w.logger.Warn("failed to save state", "error", err)
	}

	w.logger.Info("scan completed",
		"files", len(paths),
		"failed", failed,
		"forgotten", removed,
		"duration_s", w.now().Sub(start).Seconds())
	return nil
}

// Watch applies events until ctx ends or events closes, then closes the
// workspace
func (w *Workspace) Watch(ctx context.Context, events <-chan watcher.Event) error {
	for {
		select {
		case <-ctx.Done():
			return w.Close(context.WithoutCancel(ctx))
		case ev, ok := <-events:
			if !ok {
				return w.Close(ctx)
			}
			if err := w.Apply(ctx, ev); err != nil {
				w.logger.Error("failed to apply event", "path", ev.Path, "op", ev.Op, "error", err)
			}
		}
	}
}

// Close saves and closes every open session and persists state. Notes that
// could not be saved stay in the draft cache.
func (w *Workspace) Close(ctx context.Context) error {
	w.mu.Lock()
	files := w.files
	w.files = make(map[string]*file)
	w.mu.Unlock()

	var errs []error
	for path, f := range files {
		if res := f.session.Close(ctx); res.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, res.Err))
		}
	}

	if err := w.state.Save(); err != nil {
		errs = append(errs, fmt.Errorf("failed to save state: %w", err))
	}
	return errors.Join(errs...)
}
