package graph

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"
)

// ErrCheckpointNotFound is returned when a thread has no saved state.
var ErrCheckpointNotFound = errors.New("checkpoint not found")

// Checkpoint is a full channel snapshot at one step, keyed by
// conversation thread.
type Checkpoint struct {
	ThreadID  string                     `json:"thread_id"`
	Step      int                        `json:"step"`
	NodeID    string                     `json:"node_id,omitempty"`
	State     map[string]json.RawMessage `json:"state"`
	CreatedAt time.Time                  `json:"created_at"`
}

// Checkpointer persists and restores channel snapshots between turns.
type Checkpointer interface {
	// Put saves a checkpoint.
	Put(ctx context.Context, cp *Checkpoint) error

	// GetLatest retrieves the most recent checkpoint for a thread.
	GetLatest(ctx context.Context, threadID string) (*Checkpoint, error)

	// DeleteThread removes all checkpoints for a thread.
	DeleteThread(ctx context.Context, threadID string) error
}

// MemoryCheckpointer implements in-memory checkpoint storage.
type MemoryCheckpointer struct {
	mu      sync.RWMutex
	threads map[string][]*Checkpoint
	maxKeep int
}

// NewMemoryCheckpointer keeps up to maxKeep checkpoints per thread;
// non-positive means unbounded.
func NewMemoryCheckpointer(maxKeep int) *MemoryCheckpointer {
	return &MemoryCheckpointer{
		threads: make(map[string][]*Checkpoint),
		maxKeep: maxKeep,
	}
}

func (m *MemoryCheckpointer) Put(ctx context.Context, cp *Checkpoint) error {
	if cp.ThreadID == "" {
		return errors.New("checkpoint thread id is required")
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cps := append(m.threads[cp.ThreadID], cp)
	if m.maxKeep > 0 && len(cps) > m.maxKeep {
		cps = cps[len(cps)-m.maxKeep:]
	}
	m.threads[cp.ThreadID] = cps
	return nil
}

func (m *MemoryCheckpointer) GetLatest(ctx context.Context, threadID string) (*Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cps := m.threads[threadID]
	if len(cps) == 0 {
		return nil, ErrCheckpointNotFound
	}
	return cps[len(cps)-1], nil
}

func (m *MemoryCheckpointer) DeleteThread(ctx context.Context, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.threads, threadID)
	return nil
}
