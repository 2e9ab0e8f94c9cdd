package db

import (
	"time"

	"github.com/google/uuid"

	"github.com/vonshlovens/nebula-notes/internal/note"
)

// noteRow is a row of the notes table
type noteRow struct {
	ID        uuid.UUID `db:"id"`
	Title     string    `db:"title"`
	Content   string    `db:"content"`
	Tags      []string  `db:"tags"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r noteRow) toNote() note.Note {
	tags := r.Tags
	if tags == nil {
		tags = []string{}
	}
	return note.Note{
		ID:        r.ID.String(),
		Title:     r.Title,
		Content:   r.Content,
		Tags:      tags,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

// Status summarises the notes table
type Status struct {
	Connected   bool
	Schema      string
	TotalNotes  int
	LastUpdated *time.Time
}
