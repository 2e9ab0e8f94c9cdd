package workspace

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// FileState is what the workspace last applied from one note file
type FileState struct {
	Hash   string    `json:"hash"`
	NoteID string    `json:"note_id,omitempty"`
	SeenAt time.Time `json:"seen_at"`
}

type stateFile struct {
	Root     string                `json:"root"`
	LastScan *time.Time            `json:"last_scan,omitempty"`
	Files    map[string]*FileState `json:"files"`
}

// StateTracker remembers file hashes and note ids between runs, so
// unchanged files are not re-applied and unsaved notes keep their local id
type StateTracker struct {
	mu       sync.RWMutex
	state    *stateFile
	filePath string
	dirty    bool
}

// NewStateTracker loads the state for root from stateDir. A missing or
// unreadable state file, or one written for another root, starts empty.
func NewStateTracker(stateDir, root string) (*StateTracker, error) {
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	st := &StateTracker{
		filePath: filepath.Join(stateDir, "workspace-"+HashContent([]byte(root))[:12]+".json"),
		state:    newStateFile(root),
	}

	if err := st.load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return st, fmt.Errorf("failed to read workspace state: %w", err)
	}
	if st.state.Root != root {
		st.state = newStateFile(root)
	}
	return st, nil
}

func newStateFile(root string) *stateFile {
	return &stateFile{Root: root, Files: make(map[string]*FileState)}
}

func (st *StateTracker) load() error {
	data, err := os.ReadFile(st.filePath)
	if err != nil {
		return err
	}

	state := &stateFile{}
	if err := json.Unmarshal(data, state); err != nil {
		return err
	}
	if state.Files == nil {
		state.Files = make(map[string]*FileState)
	}

	st.state = state
	return nil
}

// Path returns the state file location
func (st *StateTracker) Path() string {
	return st.filePath
}

// Save persists the state if it changed
func (st *StateTracker) Save() error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if !st.dirty {
		return nil
	}

	data, err := json.MarshalIndent(st.state, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(st.filePath, data, 0644); err != nil {
		return err
	}

	st.dirty = false
	return nil
}

// Get returns a copy of the state for path
func (st *StateTracker) Get(path string) (FileState, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	fs, ok := st.state.Files[path]
	if !ok {
		return FileState{}, false
	}
	return *fs, true
}

// Changed reports whether hash differs from what was last applied for path
func (st *StateTracker) Changed(path, hash string) bool {
	st.mu.RLock()
	defer st.mu.RUnlock()
	fs, ok := st.state.Files[path]
	return !ok || fs.Hash != hash
}

// Set records hash for path, keeping a known note id when noteID is empty
func (st *StateTracker) Set(path, hash, noteID string, at time.Time) {
	st.mu.Lock()
	defer st.mu.Unlock()
	fs, ok := st.state.Files[path]
	if !ok {
		fs = &FileState{}
		st.state.Files[path] = fs
	}
	fs.Hash = hash
	fs.SeenAt = at
	if noteID != "" {
		fs.NoteID = noteID
	}
	st.dirty = true
}

// SetNoteID records the note a file maps to
func (st *StateTracker) SetNoteID(path, noteID string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	fs, ok := st.state.Files[path]
	if !ok {
		fs = &FileState{}
		st.state.Files[path] = fs
	}
	if fs.NoteID != noteID {
		fs.NoteID = noteID
		st.dirty = true
	}
}

// PathForNote returns the file mapped to noteID
func (st *StateTracker) PathForNote(noteID string) (string, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	for path, fs := range st.state.Files {
		if fs.NoteID == noteID {
			return path, true
		}
	}
	return "", false
}

// Remove forgets path
func (st *StateTracker) Remove(path string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if _, ok := st.state.Files[path]; ok {
		delete(st.state.Files, path)
		st.dirty = true
	}
}

// Paths returns every tracked path
func (st *StateTracker) Paths() []string {
	st.mu.RLock()
	defer st.mu.RUnlock()

	paths := make([]string, 0, len(st.state.Files))
	for path := range st.state.Files {
		paths = append(paths, path)
	}
	return paths
}

// SetLastScan records when the workspace was last fully scanned
func (st *StateTracker) SetLastScan(t time.Time) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.state.LastScan = &t
	st.dirty = true
}

// LastScan returns the last full scan time, if any
func (st *StateTracker) LastScan() *time.Time {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.state.LastScan
}

// FileCount returns the number of tracked files
func (st *StateTracker) FileCount() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.state.Files)
}
