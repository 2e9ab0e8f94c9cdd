package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/vonshlovens/nebula-notes/internal/autosave"
	"github.com/vonshlovens/nebula-notes/internal/note"
)

var testNow = time.Date(2024, 11, 5, 12, 0, 0, 0, time.UTC)

func TestOverlayDraft(t *testing.T) {
	stored := note.Note{
		ID:        "3f2b8c1e-aaaa-4bbb-8ccc-000000000001",
		Title:     "Groceries",
		Content:   "milk",
		CreatedAt: testNow.Add(-48 * time.Hour),
		UpdatedAt: testNow.Add(-24 * time.Hour),
	}

	t.Run("no draft", func(t *testing.T) {
		v := overlayDraft(stored, stored.ID, note.Draft{}, false)
		if v.fromDraft || v.Content != "milk" {
			t.Errorf("unexpected view %+v", v)
		}
	})

	t.Run("draft matches stored note", func(t *testing.T) {
		d := note.Draft{NoteID: stored.ID, Title: "Groceries", Content: "milk", Timestamp: testNow}
		if v := overlayDraft(stored, stored.ID, d, true); v.fromDraft {
			t.Error("identical draft should not be reported")
		}
	})

	t.Run("draft differs", func(t *testing.T) {
		d := note.Draft{NoteID: stored.ID, Title: "Groceries", Content: "milk, eggs", Timestamp: testNow}
		v := overlayDraft(stored, stored.ID, d, true)
		if !v.fromDraft || v.Content != "milk, eggs" {
			t.Errorf("unexpected view %+v", v)
		}
		if !v.UpdatedAt.Equal(testNow) || !v.CreatedAt.Equal(stored.CreatedAt) {
			t.Errorf("unexpected timestamps %v %v", v.CreatedAt, v.UpdatedAt)
		}
	})

	t.Run("never saved note", func(t *testing.T) {
		d := note.Draft{NoteID: "1730808000000", Content: "idea", Timestamp: testNow}
		v := overlayDraft(note.Note{}, d.NoteID, d, true)
		if !v.fromDraft || v.ID != d.NoteID || !v.CreatedAt.Equal(testNow) {
			t.Errorf("unexpected view %+v", v)
		}
	})
}

func TestWriteNote(t *testing.T) {
	v := draftView{
		Note: note.Note{
			ID:        "1730808000000",
			Title:     "",
			Content:   "idea",
			Tags:      []string{"home"},
			CreatedAt: testNow.Add(-5 * time.Minute),
			UpdatedAt: testNow.Add(-5 * time.Minute),
		},
		fromDraft: true,
	}

	var buf bytes.Buffer
	if err := writeNote(&buf, v, testNow); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"# " + note.UntitledTitle, "5 minutes ago", "Tags:     home", "nebula edit 1730808000000", "\nidea\n"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteDrafts(t *testing.T) {
	var buf bytes.Buffer
	if err := writeDrafts(&buf, nil, testNow); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(buf.String()) != "No drafts." {
		t.Errorf("unexpected output %q", buf.String())
	}

	buf.Reset()
	drafts := []note.Draft{
		{NoteID: "3f2b8c1e-aaaa-4bbb-8ccc-000000000001", Title: "Groceries", Content: "milk", Timestamp: testNow.Add(-time.Hour)},
		{NoteID: "1730808000000", Content: "first line\nsecond", Timestamp: testNow},
	}
	if err := writeDrafts(&buf, drafts, testNow); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and two rows, got %q", lines)
	}
	if !strings.Contains(lines[1], "Groceries") || !strings.Contains(lines[1], "unsaved changes") {
		t.Errorf("unexpected row %q", lines[1])
	}
	if !strings.Contains(lines[2], "first line") || !strings.Contains(lines[2], "never saved") {
		t.Errorf("unexpected row %q", lines[2])
	}
}

func TestReportSave(t *testing.T) {
	var buf bytes.Buffer

	saved := autosave.Result{Outcome: autosave.OutcomeSaved, Note: note.Note{ID: "abc-1"}}
	if err := reportSave(&buf, saved, "local"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "Saved abc-1") {
		t.Errorf("unexpected output %q", buf.String())
	}

	if err := reportSave(&buf, autosave.Result{Outcome: autosave.OutcomeSkipped}, "local"); err != nil {
		t.Errorf("skipped save should not fail: %v", err)
	}

	failed := autosave.Result{Outcome: autosave.OutcomeFailed, Err: note.ErrNoSession}
	err := reportSave(&buf, failed, "1730808000000")
	if err == nil || !errors.Is(err, note.ErrNoSession) {
		t.Fatalf("expected wrapped ErrNoSession, got %v", err)
	}
	if !strings.Contains(err.Error(), "1730808000000") {
		t.Errorf("error should name the draft: %v", err)
	}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := confirm(strings.NewReader(tt.input), ""); got != tt.expected {
			t.Errorf("confirm(%q) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}
