// Package store provides durable file-based JSON persistence for users,
// sessions and chat messages. The live-state core never blocks on it
// directly; message writes arrive through the durable queue consumer.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("not found")
)

// Store is a file-backed JSON store rooted at basePath.
type Store struct {
	basePath string

	mu    sync.Mutex
	locks map[string]*FileLock
}

// New creates a Store rooted at basePath.
func New(basePath string) *Store {
	return &Store{
		basePath: basePath,
		locks:    make(map[string]*FileLock),
	}
}

// pathTo converts path elements into an absolute .json file path.
func (s *Store) pathTo(parts ...string) string {
	elems := append([]string{s.basePath}, parts...)
	return filepath.Join(elems...) + ".json"
}

// read unmarshals the record at the given path into v.
func (s *Store) read(v any, parts ...string) error {
	data, err := os.ReadFile(s.pathTo(parts...))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to read record: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return nil
}

// write marshals v and stores it at the given path. The write goes to a
// temp file first and is renamed into place, so readers never observe a
// partially written record.
func (s *Store) write(v any, parts ...string) error {
	filePath := s.pathTo(parts...)

	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	lock := s.lockFor(filePath)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer lock.Unlock()

	return s.writeLocked(v, filePath)
}

// writeLocked stores v at filePath. The caller holds the file's lock.
func (s *Store) writeLocked(v any, filePath string) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	tmpPath := filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, filePath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename file: %w", err)
	}
	return nil
}

// listDir returns the entry names (without .json) under a directory path.
func (s *Store) listDir(parts ...string) ([]string, error) {
	elems := append([]string{s.basePath}, parts...)
	dirPath := filepath.Join(elems...)

	entries, err := os.ReadDir(dirPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			names = append(names, name)
		} else if strings.HasSuffix(name, ".json") {
			names = append(names, strings.TrimSuffix(name, ".json"))
		}
	}
	return names, nil
}

// lockFor returns the per-file lock for a path.
func (s *Store) lockFor(filePath string) *FileLock {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[filePath]
	if !ok {
		lock = NewFileLock(filePath)
		s.locks[filePath] = lock
	}
	return lock
}
