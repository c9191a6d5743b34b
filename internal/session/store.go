package session

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store loads and saves the opaque session token per account identity.
// The token is whatever string the transport hands back after a successful
// login; nothing here inspects it.
type Store struct {
	// baseDir overrides the default account directory root (for tests).
	baseDir string
}

// NewStore creates a session store rooted at the default account directory.
func NewStore() *Store {
	return &Store{}
}

// NewStoreAt creates a session store rooted at dir (used by tests).
func NewStoreAt(dir string) *Store {
	return &Store{baseDir: dir}
}

func (s *Store) tokenPath(account string) string {
	if s.baseDir != "" {
		return filepath.Join(s.baseDir, account, "session.token")
	}
	return TokenPath(account)
}

// Load returns the stored token for the account, or empty string if none.
func (s *Store) Load(account string) (string, error) {
	data, err := os.ReadFile(s.tokenPath(account))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read session token: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Save persists the token for the account with 0600 permissions.
func (s *Store) Save(account, token string) error {
	path := s.tokenPath(account)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create account dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(token+"\n"), 0600); err != nil {
		return fmt.Errorf("write session token: %w", err)
	}
	return nil
}

// Delete removes the stored token. Missing token is not an error.
func (s *Store) Delete(account string) error {
	err := os.Remove(s.tokenPath(account))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete session token: %w", err)
	}
	return nil
}
