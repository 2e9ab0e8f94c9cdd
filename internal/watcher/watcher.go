// Package watcher reports debounced changes to markdown notes under a
// workspace directory.
package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// NoteExt is the extension of files treated as notes
const NoteExt = ".md"

// Watcher monitors a workspace for note file changes
type Watcher struct {
	root           string
	fsw            *fsnotify.Watcher
	debouncer      *Debouncer
	ignorePatterns []string
	logger         *slog.Logger
	stopCh         chan struct{}
}

// New creates a watcher for root. Paths matching any ignore pattern,
// relative to root, are skipped along with everything below them.
func New(root string, debouncer *Debouncer, ignorePatterns []string, logger *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Watcher{
		root:           root,
		fsw:            fsw,
		debouncer:      debouncer,
		ignorePatterns: ignorePatterns,
		logger:         logger,
		stopCh:         make(chan struct{}),
	}, nil
}

// Start watches root and its subdirectories until ctx ends or Stop is called
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addRecursive(w.root); err != nil {
		return err
	}

	go w.processEvents(ctx)

	w.logger.Info("watcher started",
		"path", w.root,
		"ignore_patterns", len(w.ignorePatterns))

	return nil
}

// Events returns the channel of debounced note events
func (w *Watcher) Events() <-chan Event {
	return w.debouncer.Events()
}

// Stop stops watching and closes the event channel
func (w *Watcher) Stop() error {
	close(w.stopCh)
	w.debouncer.Stop()
	return w.fsw.Close()
}

// Flush emits all pending debounced events
func (w *Watcher) Flush() {
	w.debouncer.Flush()
}

func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			w.logger.Warn("error walking path", "path", path, "error", err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if rel, ok := w.rel(path); ok && rel != "." && w.Ignored(rel) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			w.logger.Warn("failed to watch directory", "path", path, "error", err)
		}
		return nil
	})
}

func (w *Watcher) rel(path string) (string, bool) {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func (w *Watcher) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			rel, ok := w.rel(event.Name)
			if !ok || w.Ignored(rel) {
				continue
			}
			w.handleEvent(event, rel)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event, rel string) {
	info, statErr := os.Stat(event.Name)
	isDir := statErr == nil && info.IsDir()

	if isDir {
		if event.Has(fsnotify.Create) {
			if err := w.addRecursive(event.Name); err != nil {
				w.logger.Warn("failed to add new directory", "path", event.Name, "error", err)
			}
		}
		return
	}
	if !IsNote(rel) {
		return
	}

	switch {
	case event.Has(fsnotify.Create):
		w.debouncer.Add(rel, OpCreate)
	case event.Has(fsnotify.Write):
		w.debouncer.Add(rel, OpWrite)
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		// A rename shows up as a remove here and a create under the new name
		w.debouncer.Add(rel, OpRemove)
	}
}

// Ignored reports whether rel, or any directory above it, matches an
// ignore pattern
func (w *Watcher) Ignored(rel string) bool {
	return MatchesAny(w.ignorePatterns, rel)
}

// MatchesAny reports whether rel or one of its parent directories matches
// any of the doublestar patterns
func MatchesAny(patterns []string, rel string) bool {
	parts := strings.Split(rel, "/")
	for _, pattern := range patterns {
		for i := len(parts); i >= 1; i-- {
			if matched, err := doublestar.Match(pattern, strings.Join(parts[:i], "/")); err == nil && matched {
				return true
			}
		}
	}
	return false
}

// IsNote reports whether path names a markdown note
func IsNote(path string) bool {
	return strings.EqualFold(filepath.Ext(path), NoteExt)
}
