package db

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vonshlovens/nebula-notes/internal/note"
)

func TestEmbeddedMigrations(t *testing.T) {
	files, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		t.Fatalf("glob failed: %v", err)
	}
	if len(files) < 1 {
		t.Fatal("expected embedded migrations")
	}

	for _, f := range files {
		data, err := fs.ReadFile(migrations, f)
		if err != nil {
			t.Fatalf("failed to read %s: %v", f, err)
		}
		body := string(data)
		if !strings.Contains(body, "-- +goose Up") || !strings.Contains(body, "-- +goose Down") {
			t.Errorf("%s is missing goose annotations", f)
		}
	}
}

func TestParseID(t *testing.T) {
	if _, err := parseID("1730455200000"); !errors.Is(err, note.ErrNotFound) {
		t.Errorf("expected ErrNotFound for local id, got %v", err)
	}

	id := uuid.New()
	got, err := parseID(id.String())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != id {
		t.Errorf("parseID = %v, want %v", got, id)
	}
}

func TestNoteRowToNote(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	row := noteRow{
		ID:        uuid.MustParse("3f2b8c1e-9a4d-4c6e-8f00-1b2c3d4e5f60"),
		Title:     "Groceries",
		Content:   "milk",
		CreatedAt: time.Date(2024, 11, 1, 12, 0, 0, 0, loc),
		UpdatedAt: time.Date(2024, 11, 2, 12, 0, 0, 0, loc),
	}

	n := row.toNote()
	if n.ID != "3f2b8c1e-9a4d-4c6e-8f00-1b2c3d4e5f60" {
		t.Errorf("unexpected id %q", n.ID)
	}
	if !n.IsPersisted() {
		t.Error("database notes must carry canonical ids")
	}
	if n.Tags == nil {
		t.Error("expected empty, non-nil tags")
	}
	if n.CreatedAt.Location() != time.UTC || n.CreatedAt.Hour() != 10 {
		t.Errorf("expected UTC timestamps, got %v", n.CreatedAt)
	}
}

// testDB connects to NEBULA_TEST_DATABASE_URL and migrates a throwaway schema
func testDB(t *testing.T) *DB {
	t.Helper()
	url := os.Getenv("NEBULA_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("NEBULA_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	schema := "nebula_test_" + strings.ReplaceAll(uuid.NewString()[:8], "-", "")
	sep := "?"
	if strings.Contains(url, "?") {
		sep = "&"
	}
	db, err := Connect(ctx, url+sep+"search_path="+schema, schema)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(func() {
		_, _ = db.Pool.Exec(context.Background(), "DROP SCHEMA IF EXISTS "+schema+" CASCADE")
		db.Close()
	})

	if err := db.RunMigrations(ctx); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func TestRepositoryRoundTrip(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	created, err := db.Create(ctx, "", "Shopping list\nmilk")
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if created.Title != "Shopping list" {
		t.Errorf("expected derived title, got %q", created.Title)
	}
	if !note.IsCanonicalID(created.ID) {
		t.Errorf("expected canonical id, got %q", created.ID)
	}

	updated, err := db.Update(ctx, created.ID, "Groceries", "milk, eggs")
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.UpdatedAt.Before(created.UpdatedAt) {
		t.Error("updated_at must not go backwards")
	}

	if err := db.SetTags(ctx, created.ID, []string{"home"}); err != nil {
		t.Fatalf("set tags failed: %v", err)
	}

	got, err := db.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Content != "milk, eggs" || len(got.Tags) != 1 {
		t.Errorf("unexpected note %+v", got)
	}

	page, err := db.ListPage(ctx, 0, 500)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(page) != 1 {
		t.Errorf("expected 1 note, got %d", len(page))
	}

	status, err := db.GetStatus(ctx)
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	if status.TotalNotes != 1 || status.LastUpdated == nil {
		t.Errorf("unexpected status %+v", status)
	}

	if err := db.Delete(ctx, created.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := db.Get(ctx, created.ID); !errors.Is(err, note.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := db.Delete(ctx, created.ID); !errors.Is(err, note.ErrNotFound) {
		t.Errorf("expected ErrNotFound deleting twice, got %v", err)
	}
}
