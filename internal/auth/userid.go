package auth

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
)

const userIDFile = "user_id"

// UserIDStore persists the anonymous user id the backend assigns on first
// upload. The file is owner-only.
type UserIDStore struct {
	path string

	mu     sync.Mutex
	loaded bool
	id     string
}

// NewUserIDStore returns a store rooted at stateDir.
func NewUserIDStore(stateDir string) *UserIDStore {
	return &UserIDStore{path: filepath.Join(stateDir, userIDFile)}
}

// Path returns the backing file.
func (u *UserIDStore) Path() string {
	return u.path
}

// Load returns the cached id, or "" when none has been saved.
func (u *UserIDStore) Load() (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.loaded {
		return u.id, nil
	}

	data, err := readStateFile(u.path)
	if err != nil {
		return "", fmt.Errorf("read user id: %w", err)
	}
	u.id = strings.TrimSpace(string(data))
	u.loaded = true
	return u.id, nil
}

// Save writes id, replacing any previous value.
func (u *UserIDStore) Save(id string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.loaded && u.id == id {
		return nil
	}

	if err := writeStateFile(u.path, []byte(id+"\n")); err != nil {
		return fmt.Errorf("save user id: %w", err)
	}
	u.id = id
	u.loaded = true
	return nil
}
