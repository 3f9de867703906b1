package auth

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// ErrNotRefreshable is returned by Refresh for sessions whose token cannot
// be renewed (static env token, GPG file, anonymous).
var ErrNotRefreshable = errors.New("session token cannot be refreshed")

// Session carries the credentials for one CLI invocation. It is created
// once by Resolve and handed to the API client; nothing else observes it.
type Session struct {
	mu          sync.Mutex
	source      string
	base        oauth2.TokenSource
	cached      oauth2.TokenSource
	refreshable bool
	users       *UserIDStore
}

// NewSession wraps base so tokens are reused until they expire. source
// names where the token came from, for logs. refreshable reports whether
// calling base again can yield a new token.
func NewSession(source string, base oauth2.TokenSource, refreshable bool, users *UserIDStore) *Session {
	s := &Session{
		source:      source,
		base:        base,
		refreshable: refreshable,
		users:       users,
	}
	if base != nil {
		s.cached = oauth2.ReuseTokenSource(nil, base)
	}
	return s
}

// Anonymous returns a session without a bearer token. Requests fall back to
// the cached user id.
func Anonymous(users *UserIDStore) *Session {
	return NewSession(SourceAnonymous, nil, false, users)
}

// Source names the credential source in use.
func (s *Session) Source() string {
	return s.source
}

// IsAnonymous reports whether the session has no bearer token source.
func (s *Session) IsAnonymous() bool {
	return s.base == nil
}

// Token returns the current token, fetching a new one when the cached token
// has expired. It returns nil for an anonymous session.
func (s *Session) Token(ctx context.Context) (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached == nil {
		return nil, nil
	}
	tok, err := s.cached.Token()
	if err != nil {
		return nil, err
	}
	return tok, nil
}

// BearerToken returns the access token, or "" for an anonymous session.
func (s *Session) BearerToken(ctx context.Context) (string, error) {
	tok, err := s.Token(ctx)
	if err != nil || tok == nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// Refresh discards the cached token and fetches a new one from the source.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.base == nil || !s.refreshable {
		return ErrNotRefreshable
	}

	s.cached = oauth2.ReuseTokenSource(nil, s.base)
	if _, err := s.cached.Token(); err != nil {
		return err
	}
	log.Debug().Str("source", s.source).Msg("Session token refreshed")
	return nil
}

// UserID returns the cached anonymous user id, or "".
func (s *Session) UserID() string {
	if s.users == nil {
		return ""
	}
	id, err := s.users.Load()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read cached user id")
		return ""
	}
	return id
}

// RememberUserID stores the user id assigned by the backend.
func (s *Session) RememberUserID(id string) error {
	if s.users == nil || id == "" {
		return nil
	}
	return s.users.Save(id)
}
