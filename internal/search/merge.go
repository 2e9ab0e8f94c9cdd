package search

import (
	"slices"

	"github.com/vonshlovens/nebula-notes/internal/note"
)

// Match is a note ranked by its best chunk similarity
type Match struct {
	Note  note.Note
	Score float64
}

// MergeSemanticResults ranks the locally held notes that appear in results.
// A note's score is the maximum similarity over its chunks. Notes referenced
// by results but absent from notes are dropped. Ties keep input order.
func MergeSemanticResults(notes []note.Note, results []note.SearchResult) []Match {
	best := make(map[string]float64, len(results))
	for _, r := range results {
		if current, ok := best[r.NoteID]; !ok || r.Similarity > current {
			best[r.NoteID] = r.Similarity
		}
	}

	matches := make([]Match, 0, len(best))
	for _, n := range notes {
		if score, ok := best[n.ID]; ok {
			matches = append(matches, Match{Note: n, Score: score})
		}
	}

	slices.SortStableFunc(matches, func(a, b Match) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})

	return matches
}

// Notes strips scores from matches
func Notes(matches []Match) []note.Note {
	notes := make([]note.Note, len(matches))
	for i, m := range matches {
		notes[i] = m.Note
	}
	return notes
}
