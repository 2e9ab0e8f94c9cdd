package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/vonshlovens/nebula-notes/internal/note"
)

// Ensure DB implements Repository
var _ note.Repository = (*DB)(nil)

// MaxPageSize bounds ListPage
const MaxPageSize = 100

const noteColumns = "id, title, content, tags, created_at, updated_at"

func scanNote(row pgx.Row) (note.Note, error) {
	var r noteRow
	if err := row.Scan(&r.ID, &r.Title, &r.Content, &r.Tags, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return note.Note{}, err
	}
	return r.toNote(), nil
}

func collectNotes(rows pgx.Rows) ([]note.Note, error) {
	defer rows.Close()

	notes := []note.Note{}
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// parseID maps ids that cannot be UUIDs to ErrNotFound
func parseID(id string) (uuid.UUID, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s", note.ErrNotFound, id)
	}
	return uid, nil
}

// List returns every note, most recently updated first
func (db *DB) List(ctx context.Context) ([]note.Note, error) {
	rows, err := db.Pool.Query(ctx, "SELECT "+noteColumns+" FROM notes ORDER BY updated_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	notes, err := collectNotes(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	return notes, nil
}

// ListPage returns one page, most recently updated first. limit is clamped
// to [1, MaxPageSize].
func (db *DB) ListPage(ctx context.Context, skip, limit int) ([]note.Note, error) {
	rows, err := db.Pool.Query(ctx,
		"SELECT "+noteColumns+" FROM notes ORDER BY updated_at DESC OFFSET $1 LIMIT $2",
		max(skip, 0), min(max(limit, 1), MaxPageSize),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	notes, err := collectNotes(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	return notes, nil
}

func (db *DB) Get(ctx context.Context, id string) (note.Note, error) {
	uid, err := parseID(id)
	if err != nil {
		return note.Note{}, err
	}

	n, err := scanNote(db.Pool.QueryRow(ctx, "SELECT "+noteColumns+" FROM notes WHERE id = $1", uid))
	if errors.Is(err, pgx.ErrNoRows) {
		return note.Note{}, note.ErrNotFound
	}
	if err != nil {
		return note.Note{}, fmt.Errorf("failed to get note %s: %w", id, err)
	}
	return n, nil
}

// Create inserts a note with a fresh UUID. An empty title is derived from
// the content.
func (db *DB) Create(ctx context.Context, title, content string) (note.Note, error) {
	n, err := scanNote(db.Pool.QueryRow(ctx, `
		INSERT INTO notes (id, title, content)
		VALUES ($1, $2, $3)
		RETURNING `+noteColumns,
		uuid.New(), note.DeriveTitle(title, content), content,
	))
	if err != nil {
		return note.Note{}, fmt.Errorf("failed to create note: %w", err)
	}
	return n, nil
}

func (db *DB) Update(ctx context.Context, id, title, content string) (note.Note, error) {
	uid, err := parseID(id)
	if err != nil {
		return note.Note{}, err
	}

	n, err := scanNote(db.Pool.QueryRow(ctx, `
		UPDATE notes SET
			title = $2,
			content = $3,
			updated_at = NOW()
		WHERE id = $1
		RETURNING `+noteColumns,
		uid, title, content,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return note.Note{}, note.ErrNotFound
	}
	if err != nil {
		return note.Note{}, fmt.Errorf("failed to update note %s: %w", id, err)
	}
	return n, nil
}

// SetTags replaces the tags of a note
func (db *DB) SetTags(ctx context.Context, id string, tags []string) error {
	uid, err := parseID(id)
	if err != nil {
		return err
	}
	if tags == nil {
		tags = []string{}
	}

	tag, err := db.Pool.Exec(ctx, "UPDATE notes SET tags = $2 WHERE id = $1", uid, tags)
	if err != nil {
		return fmt.Errorf("failed to set tags on note %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return note.ErrNotFound
	}
	return nil
}

func (db *DB) Delete(ctx context.Context, id string) error {
	uid, err := parseID(id)
	if err != nil {
		return err
	}

	tag, err := db.Pool.Exec(ctx, "DELETE FROM notes WHERE id = $1", uid)
	if err != nil {
		return fmt.Errorf("failed to delete note %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return note.ErrNotFound
	}
	return nil
}
