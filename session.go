package xgraph

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// sessionStore persists auth_token/ct0 pairs per username as JSON files.
type sessionStore struct {
	dir string
	ttl time.Duration
}

type savedSession struct {
	AuthToken string    `json:"auth_token"`
	CT0       string    `json:"ct0"`
	SavedAt   time.Time `json:"saved_at"`
}

// newSessionStore uses ~/.go-xgraph/sessions unless dir is set.
func newSessionStore(dir string, ttl time.Duration) *sessionStore {
	if dir == "" {
		home, _ := os.UserHomeDir()
		dir = filepath.Join(home, ".go-xgraph", "sessions")
	}
	return &sessionStore{dir: dir, ttl: ttl}
}

func (s *sessionStore) path(username string) string {
	return filepath.Join(s.dir, username+".json")
}

// Save writes the session for username.
func (s *sessionStore) Save(username, authToken, ct0 string) error {
	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}
	data, err := json.MarshalIndent(savedSession{AuthToken: authToken, CT0: ct0, SavedAt: time.Now()}, "", "  ")
	if err != nil {
		return err
	}
	path := s.path(username)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write session %s: %w", path, err)
	}
	slog.Debug("session saved", slog.String("user", username))
	return nil
}

// Load returns the saved session for username. A missing or expired session
// yields empty strings and no error.
func (s *sessionStore) Load(username string) (authToken, ct0 string, err error) {
	data, err := os.ReadFile(s.path(username))
	if errors.Is(err, fs.ErrNotExist) {
		return "", "", nil
	}
	if err != nil {
		return "", "", err
	}
	var saved savedSession
	if err := json.Unmarshal(data, &saved); err != nil {
		return "", "", fmt.Errorf("parse session %s: %w", username, err)
	}
	if time.Since(saved.SavedAt) > s.ttl {
		slog.Debug("session expired", slog.String("user", username))
		return "", "", nil
	}
	return saved.AuthToken, saved.CT0, nil
}

// Remove deletes the saved session for username, if any.
func (s *sessionStore) Remove(username string) error {
	err := os.Remove(s.path(username))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// persist saves the account's current credentials, logging failures.
func (s *sessionStore) persist(acc *Account) {
	authToken, ct0, _ := acc.Credentials()
	if err := s.Save(acc.Username, authToken, ct0); err != nil {
		slog.Warn("session save failed", slog.String("user", acc.Username), slog.Any("error", err))
	}
}
