package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/vonshlovens/nebula-notes/internal/auth"
	"github.com/vonshlovens/nebula-notes/internal/note"
	"github.com/vonshlovens/nebula-notes/internal/timefmt"
)

const (
	// MaxPageSize is the largest page the notes endpoint serves
	MaxPageSize = 100

	DefaultTimeout = 30 * time.Second

	// DefaultChunkSize is the embedding chunk size used by EmbedAll
	DefaultChunkSize = 1000
)

// Ensure Client implements the note contracts
var (
	_ note.Repository = (*Client)(nil)
	_ note.Searcher   = (*Client)(nil)
)

// Client talks to the notes backend over HTTP. Every request carries the
// bearer token of the current auth session; without a session no request
// is made.
type Client struct {
	baseURL  string
	auth     auth.Provider
	client   *http.Client
	pageSize int
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithPageSize sets the list page size, clamped to [1, MaxPageSize]
func WithPageSize(n int) Option {
	return func(c *Client) { c.pageSize = min(max(n, 1), MaxPageSize) }
}

// NewClient creates a client for the backend at baseURL
func NewClient(baseURL string, provider auth.Provider, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("API base URL is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid API base URL: %w", err)
	}

	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		auth:     provider,
		client:   &http.Client{Timeout: DefaultTimeout},
		pageSize: MaxPageSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// APIError is a non-2xx response
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf("API error: %s", http.StatusText(e.StatusCode))
}

// noteResponse is the wire shape of a note. Timestamps stay strings until
// parsed so that odd formats degrade to an unknown date instead of failing
// the whole response.
type noteResponse struct {
	ID        string   `json:"id"`
	Title     string   `json:"title"`
	Content   string   `json:"content"`
	CreatedAt string   `json:"created_at"`
	UpdatedAt string   `json:"updated_at"`
	Tags      []string `json:"tags"`
}

func (r noteResponse) toNote() note.Note {
	n := note.Note{
		ID:      r.ID,
		Title:   r.Title,
		Content: r.Content,
		Tags:    r.Tags,
	}
	if n.Tags == nil {
		n.Tags = []string{}
	}
	if t, err := timefmt.Parse(r.CreatedAt); err == nil {
		n.CreatedAt = t
	} else {
		slog.Debug("unparseable created_at", "note_id", r.ID, "value", r.CreatedAt)
	}
	if t, err := timefmt.Parse(r.UpdatedAt); err == nil {
		n.UpdatedAt = t
	}
	return n
}

type noteRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type searchResponse struct {
	Results []note.SearchResult `json:"results"`
	Count   int                 `json:"count"`
}

// EmbedAllResult summarises a full reindex
type EmbedAllResult struct {
	TotalNotes  int      `json:"total_notes"`
	TotalChunks int      `json:"total_chunks"`
	FailedNotes int      `json:"failed_notes"`
	Errors      []string `json:"errors"`
}

// List fetches every note, walking pages until a short one
func (c *Client) List(ctx context.Context) ([]note.Note, error) {
	var notes []note.Note
	for skip := 0; ; {
		page, err := c.ListPage(ctx, skip, c.pageSize)
		if err != nil {
			return nil, err
		}
		notes = append(notes, page...)
		if len(page) < c.pageSize {
			break
		}
		skip += len(page)
	}
	if notes == nil {
		notes = []note.Note{}
	}
	return notes, nil
}

// ListPage fetches one page ordered by updated_at descending
func (c *Client) ListPage(ctx context.Context, skip, limit int) ([]note.Note, error) {
	q := url.Values{}
	q.Set("skip", strconv.Itoa(max(skip, 0)))
	q.Set("limit", strconv.Itoa(min(max(limit, 1), MaxPageSize)))

	var resp []noteResponse
	if err := c.do(ctx, http.MethodGet, "/notes/?"+q.Encode(), nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}

	notes := make([]note.Note, 0, len(resp))
	for _, r := range resp {
		notes = append(notes, r.toNote())
	}
	return notes, nil
}

func (c *Client) Get(ctx context.Context, id string) (note.Note, error) {
	var resp noteResponse
	if err := c.do(ctx, http.MethodGet, "/notes/"+url.PathEscape(id), nil, &resp); err != nil {
		return note.Note{}, fmt.Errorf("failed to get note %s: %w", id, err)
	}
	return resp.toNote(), nil
}

func (c *Client) Create(ctx context.Context, title, content string) (note.Note, error) {
	var resp noteResponse
	if err := c.do(ctx, http.MethodPost, "/notes/", noteRequest{Title: title, Content: content}, &resp); err != nil {
		return note.Note{}, fmt.Errorf("failed to create note: %w", err)
	}
	return resp.toNote(), nil
}

func (c *Client) Update(ctx context.Context, id, title, content string) (note.Note, error) {
	var resp noteResponse
	if err := c.do(ctx, http.MethodPut, "/notes/"+url.PathEscape(id), noteRequest{Title: title, Content: content}, &resp); err != nil {
		return note.Note{}, fmt.Errorf("failed to update note %s: %w", id, err)
	}
	return resp.toNote(), nil
}

func (c *Client) Delete(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/notes/"+url.PathEscape(id), nil, nil); err != nil {
		return fmt.Errorf("failed to delete note %s: %w", id, err)
	}
	return nil
}

// Search runs a similarity search over note chunks
func (c *Client) Search(ctx context.Context, query string, limit int) ([]note.SearchResult, error) {
	var resp searchResponse
	if err := c.do(ctx, http.MethodPost, "/embeddings/search", searchRequest{Query: query, Limit: limit}, &resp); err != nil {
		return nil, err
	}
	if resp.Results == nil {
		return []note.SearchResult{}, nil
	}
	return resp.Results, nil
}

// EmbedAll asks the backend to rebuild embeddings for every note
func (c *Client) EmbedAll(ctx context.Context, chunkSize int) (EmbedAllResult, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	var resp EmbedAllResult
	path := "/embeddings/embed-all?chunk_size=" + strconv.Itoa(chunkSize)
	if err := c.do(ctx, http.MethodPost, path, nil, &resp); err != nil {
		return EmbedAllResult{}, fmt.Errorf("failed to reindex notes: %w", err)
	}
	return resp, nil
}

// Close releases idle connections
func (c *Client) Close() error {
	c.client.CloseIdleConnections()
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	session, err := c.auth.Session(ctx)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+session.AccessToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.statusError(ctx, resp.StatusCode, respBody)
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func (c *Client) statusError(ctx context.Context, status int, body []byte) error {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	apiErr := &APIError{StatusCode: status}
	if json.Unmarshal(body, &payload) == nil && len(payload.Detail) > 0 {
		apiErr.Detail = detailText(payload.Detail)
	}

	switch status {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %w", note.ErrNotFound, apiErr)
	case http.StatusUnauthorized:
		if err := c.auth.SignOut(ctx); err != nil {
			slog.Warn("failed to clear rejected session", "error", err)
		}
		return fmt.Errorf("%w: %w", note.ErrNoSession, apiErr)
	default:
		return apiErr
	}
}

// detailText flattens a detail field, which is a string for handled errors
// and a list of validation problems otherwise.
func detailText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(raw, &items); err == nil {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if it.Msg != "" {
				msgs = append(msgs, it.Msg)
			}
		}
		if len(msgs) > 0 {
			return strings.Join(msgs, "; ")
		}
	}
	return string(raw)
}

// IsStatus reports whether err is an APIError with the given status code
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}
