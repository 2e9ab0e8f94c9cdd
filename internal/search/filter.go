// Package search filters, orders, and ranks in-memory note collections.
package search

import (
	"strings"

	"github.com/vonshlovens/nebula-notes/internal/note"
)

// FilterByTitle keeps notes whose title contains query, ignoring case.
// A blank query returns notes unchanged. The input slice is never modified.
func FilterByTitle(notes []note.Note, query string) []note.Note {
	normalized := strings.ToLower(strings.TrimSpace(query))
	if normalized == "" {
		return notes
	}

	matched := make([]note.Note, 0, len(notes))
	for _, n := range notes {
		if strings.Contains(strings.ToLower(n.Title), normalized) {
			matched = append(matched, n)
		}
	}
	return matched
}
