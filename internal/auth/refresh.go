package auth

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"time"
)

const refreshTokenFile = "refresh_token.json"

// RefreshTokenStore persists the latest rotated Supabase refresh token so the
// next invocation does not replay a revoked one. Each entry records a hash of
// the configured token it descends from; configuring a different token (a
// fresh sign-in) supersedes the saved chain.
type RefreshTokenStore struct {
	path string
	mu   sync.Mutex
}

type savedRefreshToken struct {
	Token     string    `json:"refresh_token"`
	Origin    string    `json:"origin_sha256,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewRefreshTokenStore returns a store rooted at stateDir.
func NewRefreshTokenStore(stateDir string) *RefreshTokenStore {
	return &RefreshTokenStore{path: filepath.Join(stateDir, refreshTokenFile)}
}

// Path returns the backing file.
func (s *RefreshTokenStore) Path() string {
	return s.path
}

// Load returns the saved token for the configured origin token. An empty
// origin accepts any saved token. It returns "" when nothing applies.
func (s *RefreshTokenStore) Load(origin string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := readStateFile(s.path)
	if err != nil {
		return "", fmt.Errorf("read refresh token: %w", err)
	}
	if data == nil {
		return "", nil
	}
	var saved savedRefreshToken
	if err := json.Unmarshal(data, &saved); err != nil {
		return "", fmt.Errorf("parse %s: %w", s.path, err)
	}
	if origin != "" && saved.Origin != originHash(origin) {
		return "", nil
	}
	return saved.Token, nil
}

// Save records token as the successor of origin.
func (s *RefreshTokenStore) Save(origin, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(savedRefreshToken{Token: token, Origin: originHash(origin), UpdatedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	if err := writeStateFile(s.path, append(data, '\n')); err != nil {
		return fmt.Errorf("save refresh token: %w", err)
	}
	return nil
}

func originHash(token string) string {
	if token == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
