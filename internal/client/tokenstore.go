// Package client implements the Examdesk API client session manager.
package client

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// TokenStore holds the session's token pair. The pair is atomic: both
// tokens are stored or cleared together, never one without the other.
type TokenStore interface {
	Pair() (accessToken, refreshToken string)
	SetPair(accessToken, refreshToken string) error
	Clear() error
}

// MemoryTokenStore keeps the pair in memory.
type MemoryTokenStore struct {
	mu      sync.Mutex
	access  string
	refresh string
}

func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{}
}

func (s *MemoryTokenStore) Pair() (string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.access, s.refresh
}

func (s *MemoryTokenStore) SetPair(access, refresh string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = access
	s.refresh = refresh
	return nil
}

func (s *MemoryTokenStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access = ""
	s.refresh = ""
	return nil
}

// FileTokenStore persists the pair as JSON so sessions survive restarts.
type FileTokenStore struct {
	mu   sync.Mutex
	path string
}

type tokenFile struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{path: path}
}

func (s *FileTokenStore) Pair() (string, string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return "", ""
	}
	var tf tokenFile
	if err := json.Unmarshal(data, &tf); err != nil {
		return "", ""
	}
	if tf.AccessToken == "" || tf.RefreshToken == "" {
		return "", ""
	}
	return tf.AccessToken, tf.RefreshToken
}

func (s *FileTokenStore) SetPair(access, refresh string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(tokenFile{AccessToken: access, RefreshToken: refresh})
	if err != nil {
		return fmt.Errorf("failed to marshal tokens: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create token dir: %w", err)
	}

	// Write-then-rename keeps the pair-or-neither invariant on disk.
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write tokens: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to store tokens: %w", err)
	}
	return nil
}

func (s *FileTokenStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear tokens: %w", err)
	}
	return nil
}
