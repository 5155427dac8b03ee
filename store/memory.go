package store

import (
	"context"
	"sync"
)

// MemoryContentStore is an in-memory ContentStore. Suitable for tests
// and single-process deployments without durability requirements.
type MemoryContentStore struct {
	mu       sync.RWMutex
	contents map[string]string
}

// NewMemoryContentStore creates an empty in-memory store.
func NewMemoryContentStore() *MemoryContentStore {
	return &MemoryContentStore{contents: make(map[string]string)}
}

func (s *MemoryContentStore) Append(ctx context.Context, key, content string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contents[key] += content
	return "memory://" + key, nil
}

func (s *MemoryContentStore) Write(ctx context.Context, key, content string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contents[key] = content
	return "memory://" + key, nil
}

func (s *MemoryContentStore) Read(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	content, ok := s.contents[key]
	if !ok {
		return "", ErrNotFound
	}
	return content, nil
}
