package search

import (
	"fmt"
	"slices"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/vonshlovens/nebula-notes/internal/note"
)

// SortKey selects the ordering applied by Sort
type SortKey string

const (
	SortDateDesc SortKey = "date-desc" // latest first
	SortDateAsc  SortKey = "date-asc"  // earliest first
	SortNameAsc  SortKey = "name-asc"  // A-Z
	SortNameDesc SortKey = "name-desc" // Z-A
)

// SortKeys lists every supported key in display order
var SortKeys = []SortKey{SortDateDesc, SortDateAsc, SortNameAsc, SortNameDesc}

// ParseSortKey validates a user supplied sort key
func ParseSortKey(s string) (SortKey, error) {
	key := SortKey(strings.ToLower(strings.TrimSpace(s)))
	if slices.Contains(SortKeys, key) {
		return key, nil
	}
	return "", fmt.Errorf("unknown sort key %q (want one of %v)", s, SortKeys)
}

// Sort returns a new slice ordered by key. Equal elements keep their input
// order. Unknown keys return an unordered copy.
func Sort(notes []note.Note, key SortKey) []note.Note {
	sorted := slices.Clone(notes)
	if sorted == nil {
		sorted = []note.Note{}
	}

	switch key {
	case SortDateDesc:
		slices.SortStableFunc(sorted, func(a, b note.Note) int {
			return b.LastModified().Compare(a.LastModified())
		})
	case SortDateAsc:
		slices.SortStableFunc(sorted, func(a, b note.Note) int {
			return a.LastModified().Compare(b.LastModified())
		})
	case SortNameAsc:
		c := newTitleCollator()
		slices.SortStableFunc(sorted, func(a, b note.Note) int {
			return c.CompareString(a.Title, b.Title)
		})
	case SortNameDesc:
		c := newTitleCollator()
		slices.SortStableFunc(sorted, func(a, b note.Note) int {
			return c.CompareString(b.Title, a.Title)
		})
	}

	return sorted
}

// newTitleCollator builds a locale-neutral, case-insensitive collator.
// Collators keep internal buffers, so each Sort call gets its own.
func newTitleCollator() *collate.Collator {
	return collate.New(language.Und, collate.IgnoreCase)
}
