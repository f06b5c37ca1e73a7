// Package state provides JSON file persistence for analytics documents.
// Each component owns one document file; writes are atomic (temp file +
// rename) so a crashed process never leaves a half-written document.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// JSONStore persists a single JSON document at a fixed path.
type JSONStore struct {
	path string
	mu   sync.Mutex
}

// NewJSONStore creates a store for the document at path, creating the
// parent directory if needed.
func NewJSONStore(path string) (*JSONStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dir, err)
	}
	return &JSONStore{path: path}, nil
}

// Path returns the document path.
func (s *JSONStore) Path() string {
	return s.path
}

// Load unmarshals the document into v. A missing file is not an error;
// v is left untouched so callers start from their zero state.
func (s *JSONStore) Load(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", s.path, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", s.path, err)
	}
	return nil
}

// Save marshals v and writes it atomically using a temporary file.
func (s *JSONStore) Save(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", s.path, err)
	}

	tempPath := s.path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temporary file: %w", err)
	}

	if err := os.Rename(tempPath, s.path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", s.path, err)
	}
	return nil
}

// Reset removes the document file. A missing file is not an error.
func (s *JSONStore) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove %s: %w", s.path, err)
	}
	return nil
}
