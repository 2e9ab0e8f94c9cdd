package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vonshlovens/nebula-notes/internal/auth"
	"github.com/vonshlovens/nebula-notes/internal/note"
)

const testToken = "test-token"

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(srv.URL+"/", auth.NewTokenProvider(testToken), opts...)
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewClient_RequiresBaseURL(t *testing.T) {
	_, err := NewClient("", auth.NewTokenProvider(testToken))
	assert.Error(t, err)
}

func TestGet(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/notes/abc-123", r.URL.Path)
		assert.Equal(t, "Bearer "+testToken, r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, map[string]any{
			"id":         "abc-123",
			"user_id":    "user-1",
			"title":      "Groceries",
			"content":    "milk",
			"created_at": "2024-11-01T10:00:00.123456+00:00",
			"updated_at": "2024-11-02T08:30:00",
		})
	})

	n, err := c.Get(context.Background(), "abc-123")
	require.NoError(t, err)

	assert.Equal(t, "abc-123", n.ID)
	assert.Equal(t, "Groceries", n.Title)
	assert.Equal(t, time.Date(2024, 11, 1, 10, 0, 0, 123456000, time.UTC), n.CreatedAt.UTC())
	assert.Equal(t, time.Date(2024, 11, 2, 8, 30, 0, 0, time.UTC), n.UpdatedAt)
	assert.NotNil(t, n.Tags)
}

func TestGet_UnparseableTimestamp(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"id": "abc-123", "created_at": "yesterday-ish"})
	})

	n, err := c.Get(context.Background(), "abc-123")
	require.NoError(t, err)
	assert.True(t, n.CreatedAt.IsZero())
}

func TestGet_NotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Note not found"})
	})

	_, err := c.Get(context.Background(), "missing-id")
	assert.ErrorIs(t, err, note.ErrNotFound)
	assert.Contains(t, err.Error(), "Note not found")
	assert.True(t, IsStatus(err, http.StatusNotFound))
}

func TestUnauthorizedSignsOut(t *testing.T) {
	var calls int
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Invalid token"})
	})

	_, err := c.Get(context.Background(), "abc-123")
	assert.ErrorIs(t, err, note.ErrNoSession)

	_, err = c.Get(context.Background(), "abc-123")
	assert.ErrorIs(t, err, note.ErrNoSession)
	assert.Equal(t, 1, calls, "no request without a session")
}

func TestNoSessionMakesNoRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("unexpected request")
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL, auth.NewTokenProvider(""))
	require.NoError(t, err)

	_, err = c.List(context.Background())
	assert.ErrorIs(t, err, note.ErrNoSession)
}

func TestServerErrorDetail(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected string
	}{
		{"string detail", `{"detail":"Vector search failed: timeout"}`, "Vector search failed: timeout"},
		{"validation detail", `{"detail":[{"msg":"field required"},{"msg":"too long"}]}`, "field required; too long"},
		{"no detail", `oops`, "API error: Internal Server Error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := c.Search(context.Background(), "q", 10)
			require.Error(t, err)
			assert.Equal(t, tt.expected, err.Error())
		})
	}
}

func TestCreateAndUpdate(t *testing.T) {
	var mu sync.Mutex
	var bodies []noteRequest

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req noteRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		mu.Lock()
		bodies = append(bodies, req)
		mu.Unlock()

		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/notes/":
			writeJSON(w, http.StatusCreated, map[string]any{"id": "new-uuid", "title": req.Title, "content": req.Content})
		case r.Method == http.MethodPut && r.URL.Path == "/notes/new-uuid":
			writeJSON(w, http.StatusOK, map[string]any{"id": "new-uuid", "title": req.Title, "content": req.Content})
		default:
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
	})

	created, err := c.Create(context.Background(), "", "first line")
	require.NoError(t, err)
	assert.Equal(t, "new-uuid", created.ID)

	updated, err := c.Update(context.Background(), created.ID, "Title", "body")
	require.NoError(t, err)
	assert.Equal(t, "body", updated.Content)

	assert.Equal(t, []noteRequest{{Title: "", Content: "first line"}, {Title: "Title", Content: "body"}}, bodies)
}

func TestDelete(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNoContent)
	})

	assert.NoError(t, c.Delete(context.Background(), "abc-123"))
}

func TestListPaging(t *testing.T) {
	const total = 5
	var skips []string

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		skip, _ := strconv.Atoi(r.URL.Query().Get("skip"))
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		skips = append(skips, r.URL.Query().Get("skip"))

		page := []map[string]any{}
		for i := skip; i < min(skip+limit, total); i++ {
			page = append(page, map[string]any{"id": fmt.Sprintf("note-%d", i)})
		}
		writeJSON(w, http.StatusOK, page)
	}, WithPageSize(2))

	notes, err := c.List(context.Background())
	require.NoError(t, err)

	assert.Len(t, notes, total)
	assert.Equal(t, "note-4", notes[4].ID)
	assert.Equal(t, []string{"0", "2", "4"}, skips)
}

func TestListEmpty(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []any{})
	})

	notes, err := c.List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, notes)
	assert.Empty(t, notes)
}

func TestWithPageSizeClamps(t *testing.T) {
	c, err := NewClient("http://localhost", auth.NewTokenProvider(testToken), WithPageSize(500))
	require.NoError(t, err)
	assert.Equal(t, MaxPageSize, c.pageSize)

	c, err = NewClient("http://localhost", auth.NewTokenProvider(testToken), WithPageSize(0))
	require.NoError(t, err)
	assert.Equal(t, 1, c.pageSize)
}

func TestSearch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings/search", r.URL.Path)

		var req searchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, searchRequest{Query: "budget", Limit: 10}, req)

		writeJSON(w, http.StatusOK, map[string]any{
			"results": []map[string]any{
				{"chunk_id": "c1", "note_id": "n-1", "content": "q3 budget", "similarity": 0.91, "chunk_index": 0, "total_chunks": 2},
				{"chunk_id": "c2", "note_id": "n-2", "content": "budget", "similarity": 0.55, "chunk_index": 1, "total_chunks": 3},
			},
			"count": 2,
		})
	})

	results, err := c.Search(context.Background(), "budget", 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "n-1", results[0].NoteID)
	assert.InDelta(t, 0.91, results[0].Similarity, 1e-9)
	assert.Equal(t, 3, results[1].TotalChunks)
}

func TestEmbedAll(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings/embed-all", r.URL.Path)
		assert.Equal(t, "1000", r.URL.Query().Get("chunk_size"))
		writeJSON(w, http.StatusOK, map[string]any{
			"total_notes":  4,
			"total_chunks": 9,
			"failed_notes": 1,
			"errors":       []string{"note n-3: empty content"},
		})
	})

	res, err := c.EmbedAll(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, EmbedAllResult{TotalNotes: 4, TotalChunks: 9, FailedNotes: 1, Errors: []string{"note n-3: empty content"}}, res)
}
