package search

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/vonshlovens/nebula-notes/internal/note"
)

// DefaultLimit is the chunk count requested when the caller passes none
const DefaultLimit = 10

// Engine runs semantic queries against a Searcher and ranks the results
// against the caller's loaded notes.
type Engine struct {
	searcher note.Searcher
	limit    int
}

// NewEngine creates a semantic search engine
func NewEngine(searcher note.Searcher, limit int) *Engine {
	if limit <= 0 {
		limit = DefaultLimit
	}
	return &Engine{searcher: searcher, limit: limit}
}

// Semantic queries the searcher and merges the chunk results into notes.
// Failures are returned as *note.SearchError and never retried.
func (e *Engine) Semantic(ctx context.Context, notes []note.Note, query string) ([]Match, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []Match{}, nil
	}

	start := time.Now()
	results, err := e.searcher.Search(ctx, query, e.limit)
	if err != nil {
		return nil, &note.SearchError{Query: query, Err: err}
	}

	matches := MergeSemanticResults(notes, results)

	slog.Debug("semantic search completed",
		"query", query,
		"chunks", len(results),
		"matched_notes", len(matches),
		"duration_ms", time.Since(start).Milliseconds())

	return matches, nil
}
