package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vonshlovens/nebula-notes/internal/note"
)

// Session is an authenticated user session
type Session struct {
	AccessToken string
	// ExpiresAt is zero when the token carries no expiry
	ExpiresAt time.Time
}

// Provider supplies the current session. Session returns note.ErrNoSession
// when nobody is signed in.
type Provider interface {
	Session(ctx context.Context) (Session, error)
	SignOut(ctx context.Context) error
}

// Ensure TokenProvider implements Provider
var _ Provider = (*TokenProvider)(nil)

// TokenProvider serves a bearer token obtained out of band. A JWT whose exp
// claim has passed counts as no session; opaque tokens never expire.
type TokenProvider struct {
	mu    sync.Mutex
	token string
	now   func() time.Time
}

// NewTokenProvider creates a provider for token. An empty token means
// signed out.
func NewTokenProvider(token string) *TokenProvider {
	return &TokenProvider{token: token, now: time.Now}
}

// WithClock overrides the time used for expiry checks
func (p *TokenProvider) WithClock(now func() time.Time) *TokenProvider {
	p.now = now
	return p
}

func (p *TokenProvider) Session(context.Context) (Session, error) {
	p.mu.Lock()
	token := p.token
	p.mu.Unlock()

	if token == "" {
		return Session{}, note.ErrNoSession
	}

	s := Session{AccessToken: token}
	exp, err := Expiry(token)
	if err != nil {
		return s, nil
	}
	if !exp.IsZero() && !p.now().Before(exp) {
		return Session{}, fmt.Errorf("token expired at %s: %w", exp.Format(time.RFC3339), note.ErrNoSession)
	}
	s.ExpiresAt = exp
	return s, nil
}

// SignOut forgets the token
func (p *TokenProvider) SignOut(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.token = ""
	return nil
}

// ErrNotJWT is returned by Expiry for tokens that are not JWTs
var ErrNotJWT = errors.New("token is not a JWT")

// Expiry reads the exp claim without verifying the signature. The server
// verifies tokens; the client only needs to know when to stop using one.
func Expiry(token string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrNotJWT, err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read exp claim: %w", err)
	}
	if exp == nil {
		return time.Time{}, nil
	}
	return exp.Time, nil
}
