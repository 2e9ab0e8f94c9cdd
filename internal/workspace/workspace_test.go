package workspace

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vonshlovens/nebula-notes/internal/autosave"
	"github.com/vonshlovens/nebula-notes/internal/draft"
	"github.com/vonshlovens/nebula-notes/internal/note"
	"github.com/vonshlovens/nebula-notes/internal/parser"
	"github.com/vonshlovens/nebula-notes/internal/testutil"
	"github.com/vonshlovens/nebula-notes/internal/watcher"
)

const seededID = "3f2b8c1e-9a4d-4c6e-8f00-1b2c3d4e5f60"

// taggingRepo records SetTags calls on top of the in-memory repository
type taggingRepo struct {
	*testutil.Repository

	mu   sync.Mutex
	tags map[string][]string
}

func (r *taggingRepo) SetTags(_ context.Context, id string, tags []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tags[id] = tags
	return nil
}

func (r *taggingRepo) Tags(id string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tags[id]
}

type fixture struct {
	root     string
	stateDir string
	clock    *testutil.StubClock
	repo     *taggingRepo
	drafts   *draft.Cache
	sched    *testutil.ManualScheduler
	logger   *slog.Logger
	ws       *Workspace
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := testutil.FixedClock()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	f := &fixture{
		root:     t.TempDir(),
		stateDir: t.TempDir(),
		clock:    clock,
		repo:     &taggingRepo{Repository: testutil.NewRepository(clock), tags: make(map[string][]string)},
		drafts:   draft.NewCache(testutil.NewMemoryStore(), draft.WithClock(clock.Now), draft.WithLogger(logger)),
		sched:    testutil.NewManualScheduler(),
		logger:   logger,
	}
	f.ws = f.newWorkspace(t)
	return f
}

// newWorkspace opens another workspace over the same root, state and
// repository, as a restarted process would
func (f *fixture) newWorkspace(t *testing.T) *Workspace {
	t.Helper()
	state, err := NewStateTracker(f.stateDir, f.root)
	require.NoError(t, err)

	return New(f.root, f.repo, f.drafts, state,
		WithSessionOptions(
			autosave.WithScheduler(f.sched),
			autosave.WithClock(f.clock.Now),
			autosave.WithLogger(f.logger),
		),
		WithIgnorePatterns([]string{".trash/**"}),
		WithLogger(f.logger),
		WithClock(f.clock.Now),
	)
}

func (f *fixture) write(t *testing.T, path, content string) {
	t.Helper()
	abs := filepath.Join(f.root, filepath.FromSlash(path))
	require.NoError(t, os.MkdirAll(filepath.Dir(abs), 0755))
	require.NoError(t, os.WriteFile(abs, []byte(content), 0644))
}

func (f *fixture) read(t *testing.T, path string) *parser.ParsedNote {
	t.Helper()
	parsed, err := parser.NewParser().ParseFile(filepath.Join(f.root, filepath.FromSlash(path)))
	require.NoError(t, err)
	return parsed
}

func (f *fixture) apply(t *testing.T, path string, op watcher.Op) {
	t.Helper()
	require.NoError(t, f.ws.Apply(context.Background(), watcher.Event{Path: path, Op: op}))
}

func TestApplyNewFileCreatesNoteOnClose(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.write(t, "groceries.md", "milk\n")

	f.apply(t, "groceries.md", watcher.OpCreate)

	s, ok := f.ws.Session("groceries.md")
	require.True(t, ok)
	assert.True(t, s.Dirty())
	assert.False(t, note.IsCanonicalID(s.ID()))
	d, ok := f.drafts.Read(ctx, s.ID())
	require.True(t, ok)
	assert.Equal(t, "groceries", d.Title)
	assert.Equal(t, "milk\n", d.Content)

	require.NoError(t, f.ws.Close(ctx))
	assert.Equal(t, 1, f.repo.Creates)

	parsed := f.read(t, "groceries.md")
	id := parsed.Frontmatter.ID
	require.True(t, note.IsCanonicalID(id), "expected id written back, got %q", id)
	assert.Equal(t, "milk\n", parsed.Body)

	saved, ok := f.repo.Snapshot(id)
	require.True(t, ok)
	assert.Equal(t, "groceries", saved.Title)
	assert.Equal(t, "milk\n", saved.Content)

	hash, err := HashFile(filepath.Join(f.root, "groceries.md"))
	require.NoError(t, err)
	st, ok := f.ws.state.Get("groceries.md")
	require.True(t, ok)
	assert.Equal(t, id, st.NoteID)
	assert.Equal(t, hash, st.Hash, "id write-back should not look like an edit")
}

func TestApplyUnchangedFileIsSkipped(t *testing.T) {
	f := newFixture(t)
	f.write(t, "groceries.md", "milk\n")
	f.apply(t, "groceries.md", watcher.OpCreate)
	require.NoError(t, f.ws.Close(context.Background()))

	f.ws = f.newWorkspace(t)
	f.apply(t, "groceries.md", watcher.OpWrite)

	assert.Equal(t, 0, f.ws.OpenCount())
	assert.Equal(t, 1, f.repo.Writes())
}

func TestApplyExistingNoteUpdatesOnTick(t *testing.T) {
	f := newFixture(t)
	f.repo.Seed(note.Note{ID: seededID, Title: "Groceries", Content: "milk\n"})
	content := "---\nid: " + seededID + "\ntitle: Groceries\n---\nmilk, eggs\n"
	f.write(t, "list.md", content)

	f.apply(t, "list.md", watcher.OpWrite)

	s, ok := f.ws.Session("list.md")
	require.True(t, ok)
	assert.Equal(t, seededID, s.ID())
	assert.True(t, s.Dirty())

	require.True(t, f.sched.FireNext(30*time.Second))
	assert.Equal(t, 1, f.repo.Updates)
	assert.Equal(t, 0, f.repo.Creates)
	saved, _ := f.repo.Snapshot(seededID)
	assert.Equal(t, "milk, eggs\n", saved.Content)
	assert.False(t, s.Dirty())

	data, err := os.ReadFile(filepath.Join(f.root, "list.md"))
	require.NoError(t, err)
	assert.Equal(t, content, string(data), "updates must not rewrite the file")
}

func TestApplyUnknownIDStartsNewNote(t *testing.T) {
	f := newFixture(t)
	f.write(t, "orphan.md", "---\nid: "+seededID+"\n---\nstill here\n")

	f.apply(t, "orphan.md", watcher.OpCreate)
	require.NoError(t, f.ws.Close(context.Background()))

	assert.Equal(t, 1, f.repo.Creates)
	id := f.read(t, "orphan.md").Frontmatter.ID
	assert.NotEqual(t, seededID, id)
	assert.True(t, note.IsCanonicalID(id))
}

func TestEditsBetweenSavesReachSameSession(t *testing.T) {
	f := newFixture(t)
	f.write(t, "todo.md", "one\n")
	f.apply(t, "todo.md", watcher.OpCreate)
	first, _ := f.ws.Session("todo.md")

	f.write(t, "todo.md", "one\ntwo\n")
	f.apply(t, "todo.md", watcher.OpWrite)
	second, _ := f.ws.Session("todo.md")

	assert.Same(t, first, second)
	assert.Equal(t, "one\ntwo\n", second.Note().Content)
}

func TestRemovedFileClosesSessionAndKeepsNote(t *testing.T) {
	f := newFixture(t)
	f.write(t, "groceries.md", "milk\n")
	f.apply(t, "groceries.md", watcher.OpCreate)

	require.NoError(t, os.Remove(filepath.Join(f.root, "groceries.md")))
	f.apply(t, "groceries.md", watcher.OpRemove)

	assert.Equal(t, 0, f.ws.OpenCount())
	assert.Equal(t, 1, f.repo.Creates)
	assert.Equal(t, 0, f.repo.Deletes)
	_, tracked := f.ws.state.Get("groceries.md")
	assert.False(t, tracked)
}

func TestTagsPushedOnSave(t *testing.T) {
	f := newFixture(t)
	f.write(t, "errands.md", "---\ntags: [home]\n---\nbuy milk #errand\n")

	f.apply(t, "errands.md", watcher.OpCreate)
	require.NoError(t, f.ws.Close(context.Background()))

	id := f.read(t, "errands.md").Frontmatter.ID
	assert.Equal(t, []string{"home", "errand"}, f.repo.Tags(id))
}

func TestFailedSaveKeepsDraftAndReportsError(t *testing.T) {
	f := newFixture(t)
	f.repo.FailAlways()
	f.write(t, "groceries.md", "milk\n")
	f.apply(t, "groceries.md", watcher.OpCreate)
	s, _ := f.ws.Session("groceries.md")
	localID := s.ID()

	err := f.ws.Close(context.Background())
	require.Error(t, err)
	var saveErr *note.TransientSaveError
	assert.True(t, errors.As(err, &saveErr))

	_, ok := f.drafts.Read(context.Background(), localID)
	assert.True(t, ok, "unsaved edits must stay in the draft cache")

	st, ok := f.ws.state.Get("groceries.md")
	require.True(t, ok)
	assert.Equal(t, localID, st.NoteID)
}

func TestRestartRecoversUnsavedNoteByLocalID(t *testing.T) {
	f := newFixture(t)
	f.repo.FailAlways()
	f.write(t, "groceries.md", "milk\n")
	f.apply(t, "groceries.md", watcher.OpCreate)
	s, _ := f.ws.Session("groceries.md")
	localID := s.ID()
	require.Error(t, f.ws.Close(context.Background()))

	f.repo.FailNext(0)
	f.ws = f.newWorkspace(t)
	f.write(t, "groceries.md", "milk\neggs\n")
	f.apply(t, "groceries.md", watcher.OpWrite)

	s, ok := f.ws.Session("groceries.md")
	require.True(t, ok)
	assert.Equal(t, localID, s.ID())
}

func TestScan(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.md", "alpha")
	f.write(t, "sub/b.md", "beta")
	f.write(t, ".trash/c.md", "ignored")
	f.write(t, "notes.txt", "not a note")
	f.ws.state.Set("gone.md", "deadbeef", seededID, f.clock.Now())

	require.NoError(t, f.ws.Scan(context.Background()))

	assert.Equal(t, 2, f.ws.OpenCount())
	_, ok := f.ws.Session("sub/b.md")
	assert.True(t, ok)
	_, tracked := f.ws.state.Get("gone.md")
	assert.False(t, tracked)
	assert.NotNil(t, f.ws.state.LastScan())

	_, err := os.Stat(f.ws.state.Path())
	assert.NoError(t, err, "scan should persist state")
}

func TestScanRespectsCancellation(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.md", "alpha")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, f.ws.Scan(ctx), context.Canceled)
	assert.Equal(t, 0, f.ws.OpenCount())
}

func TestWatchClosesWhenEventsEnd(t *testing.T) {
	f := newFixture(t)
	f.write(t, "groceries.md", "milk\n")

	events := make(chan watcher.Event, 2)
	events <- watcher.Event{Path: "groceries.md", Op: watcher.OpCreate}
	events <- watcher.Event{Path: "missing.md", Op: watcher.OpWrite}
	close(events)

	require.NoError(t, f.ws.Watch(context.Background(), events))
	assert.Equal(t, 0, f.ws.OpenCount())
	assert.Equal(t, 1, f.repo.Creates)
}

func TestWatchClosesOnCancel(t *testing.T) {
	f := newFixture(t)
	f.write(t, "groceries.md", "milk\n")
	f.apply(t, "groceries.md", watcher.OpCreate)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, f.ws.Watch(ctx, make(chan watcher.Event)))
	assert.Equal(t, 1, f.repo.Creates)
}
