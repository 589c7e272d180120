package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

var ErrNoCredentials = errors.New("no stored credentials")

// Credentials is what the agent keeps between runs.
type Credentials struct {
	Token   string    `json:"token"`
	UserID  string    `json:"user_id"`
	SavedAt time.Time `json:"saved_at"`
}

// Store persists Credentials as a JSON file readable only by the owner.
type Store struct {
	path string
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

func (s *Store) Path() string {
	return s.path
}

// Load returns ErrNoCredentials when nothing usable was saved.
func (s *Store) Load() (Credentials, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Credentials{}, ErrNoCredentials
		}
		return Credentials{}, fmt.Errorf("failed to read credentials: %w", err)
	}

	var creds Credentials
	if err := json.Unmarshal(raw, &creds); err != nil {
		return Credentials{}, fmt.Errorf("failed to decode credentials: %w", err)
	}
	if creds.Token == "" {
		return Credentials{}, ErrNoCredentials
	}
	return creds, nil
}

// Save writes through a temp file and rename so a crash never leaves half a file.
func (s *Store) Save(creds Credentials) error {
	if creds.SavedAt.IsZero() {
		creds.SavedAt = time.Now().UTC()
	}
	raw, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".credentials-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to chmod credentials: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close credentials: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to store credentials: %w", err)
	}
	return nil
}

// Clear removes stored credentials. Clearing an empty store is not an error.
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}
	return nil
}
