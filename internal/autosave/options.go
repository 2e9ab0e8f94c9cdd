package autosave

import (
	"log/slog"
	"time"

	"github.com/vonshlovens/nebula-notes/internal/note"
)

// Config holds the autosave timings
type Config struct {
	// Interval between periodic saves while editing
	Interval time.Duration
	// SavedDisplay is how long StatusSaved is held after a success
	SavedDisplay time.Duration
	// MaxRetries bounds automatic retries after a failed save
	MaxRetries int
	// RetryBase is the first retry delay; each retry doubles it
	RetryBase time.Duration
}

// DefaultConfig returns 30s autosave, 2s saved display and three retries
// at 1s, 2s and 4s.
func DefaultConfig() Config {
	return Config{
		Interval:     30 * time.Second,
		SavedDisplay: 2 * time.Second,
		MaxRetries:   3,
		RetryBase:    time.Second,
	}
}

// RetryDelay returns the wait before retry n (zero based)
func (c Config) RetryDelay(n int) time.Duration {
	return c.RetryBase << n
}

// Option configures a Session
type Option func(*Session)

func WithConfig(cfg Config) Option {
	return func(s *Session) { s.cfg = cfg }
}

func WithScheduler(sched Scheduler) Option {
	return func(s *Session) { s.sched = sched }
}

func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// WithLogger sets the session logger; nil keeps slog.Default()
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// OnSaved registers a hook called after every successful save. previousID
// differs from saved.ID when a local note was created in the repository.
func OnSaved(fn func(previousID string, saved note.Note)) Option {
	return func(s *Session) { s.onSaved = fn }
}

// OnFailure registers a hook called once retries are exhausted
func OnFailure(fn func(Result)) Option {
	return func(s *Session) { s.onFailure = fn }
}
