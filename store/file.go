package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// FileContentStore persists content as files under a root directory.
// One key maps to one file; keys are sanitized before touching the
// filesystem.
type FileContentStore struct {
	root string
	mu   sync.Mutex
}

// NewFileContentStore creates the root directory if needed.
func NewFileContentStore(root string) (*FileContentStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create content store root: %w", err)
	}
	return &FileContentStore{root: root}, nil
}

func (s *FileContentStore) path(key string) string {
	return filepath.Join(s.root, SanitizeKey(key)+".md")
}

func (s *FileContentStore) Append(ctx context.Context, key, content string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(key)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("open content file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		return "", fmt.Errorf("append content: %w", err)
	}
	return path, nil
}

func (s *FileContentStore) Write(ctx context.Context, key, content string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.path(key)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write content file: %w", err)
	}
	return path, nil
}

func (s *FileContentStore) Read(ctx context.Context, key string) (string, error) {
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read content file: %w", err)
	}
	return string(data), nil
}
