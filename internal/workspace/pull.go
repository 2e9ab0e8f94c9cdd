package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/schollz/progressbar/v3"

	"github.com/vonshlovens/nebula-notes/internal/note"
	"github.com/vonshlovens/nebula-notes/internal/parser"
)

// maxFilenameLen keeps generated names well inside filesystem limits
const maxFilenameLen = 80

var unsafeFilenameChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]+`)

// PullResult counts what Pull did
type PullResult struct {
	Written   int
	Unchanged int
	Failed    int
}

// Pull writes every note in the repository into the workspace. Notes
// already mapped to a file are rewritten in place; others get a file named
// after their title. Files whose content already matches are left alone.
func (w *Workspace) Pull(ctx context.Context) (PullResult, error) {
	w.logger.Info("pulling notes into workspace", "path", w.root)
	start := w.now()

	notes, err := w.repo.List(ctx)
	if err != nil {
		return PullResult{}, fmt.Errorf("failed to list notes: %w", err)
	}

	var result PullResult
	if len(notes) == 0 {
		w.logger.Info("no notes to pull")
		return result, nil
	}

	bar := progressbar.NewOptions(len(notes),
		progressbar.OptionSetWriter(w.progress),
		progressbar.OptionSetDescription("Pulling notes"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
	)

	taken := make(map[string]bool)
	for _, n := range notes {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		written, err := w.pullNote(n, taken)
		switch {
		case err != nil:
			result.Failed++
			w.logger.Error("failed to write note", "note_id", n.ID, "error", err)
		case written:
			result.Written++
		default:
			result.Unchanged++
		}
		bar.Add(1)
	}
	bar.Finish()

	if err := w.state.Save(); err != nil {
		w.logger.Warn("failed to save state", "error", err)
	}

	w.logger.Info("pull completed",
		"written", result.Written,
		"unchanged", result.Unchanged,
		"failed", result.Failed,
		"duration_s", w.now().Sub(start).Seconds())
	return result, nil
}

// pullNote writes one note and records it in state, so watching the
// workspace afterwards does not save it back
func (w *Workspace) pullNote(n note.Note, taken map[string]bool) (bool, error) {
	path, ok := w.state.PathForNote(n.ID)
	if !ok || taken[path] {
		path = w.freePath(n, taken)
	}
	taken[path] = true

	content, err := parser.RenderNote(n)
	if err != nil {
		return false, err
	}
	hash := HashContent([]byte(content))

	abs := w.abs(path)
	if existing, err := HashFile(abs); err == nil && existing == hash {
		w.state.Set(path, hash, n.ID, w.now())
		return false, nil
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return false, fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(abs, []byte(content), 0644); err != nil {
		return false, err
	}

	w.state.Set(path, hash, n.ID, w.now())
	w.logger.Debug("pulled note", "path", path, "note_id", n.ID)
	return true, nil
}

// freePath picks a file name for n that no other note uses
func (w *Workspace) freePath(n note.Note, taken map[string]bool) string {
	base := Filename(n.Title)
	candidates := []string{base + ".md"}
	if short, _, _ := strings.Cut(n.ID, "-"); short != "" {
		candidates = append(candidates, base+" "+short+".md")
	}
	candidates = append(candidates, base+" "+n.ID+".md")

	for _, c := range candidates {
		if taken[c] {
			continue
		}
		if owner, ok := w.state.Get(c); ok && owner.NoteID != "" && owner.NoteID != n.ID {
			continue
		}
		if _, err := os.Stat(w.abs(c)); err == nil {
			if _, tracked := w.state.Get(c); !tracked {
				continue
			}
		}
		return c
	}
	return candidates[len(candidates)-1]
}

// Filename turns a note title into a safe file name without extension
func Filename(title string) string {
	name := unsafeFilenameChars.ReplaceAllString(title, " ")
	name = strings.Join(strings.Fields(name), " ")
	name = strings.Trim(name, ". ")

	if r := []rune(name); len(r) > maxFilenameLen {
		name = strings.TrimSpace(string(r[:maxFilenameLen]))
	}
	if name == "" {
		return note.UntitledTitle
	}
	return name
}
