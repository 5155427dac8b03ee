// Package graph provides the minimal node-graph runtime the execution
// pipeline runs on: typed per-run state channels, a fixed node graph
// with interrupt/resume and parallel spawn, and checkpoint persistence
// keyed by conversation thread.
package graph

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Reducer defines how a channel merges an update into its current value.
type Reducer[T any] func(current, update T) (T, error)

// LastValue is the default reducer: the update wins.
func LastValue[T any]() Reducer[T] {
	return func(_, update T) (T, error) { return update, nil }
}

// ChannelReader is the non-generic view the store uses for snapshots.
// Go's type system cannot match generic method signatures through a
// plain interface, so snapshot access goes through JSON.
type ChannelReader interface {
	ChannelName() string
	Version() uint64
	MarshalValue() ([]byte, error)
	UnmarshalValue(data []byte) error
}

// Channel is a named, typed slot in the per-run store.
type Channel[T any] struct {
	name    string
	value   T
	reducer Reducer[T]
	version uint64
	mu      sync.RWMutex
}

// NewChannel creates a channel with an initial value. A nil reducer
// selects last-write-wins.
func NewChannel[T any](name string, initial T, reducer Reducer[T]) *Channel[T] {
	if reducer == nil {
		reducer = LastValue[T]()
	}
	return &Channel[T]{name: name, value: initial, reducer: reducer}
}

// Get returns the current value.
func (c *Channel[T]) Get() T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

// Update merges an update through the reducer.
func (c *Channel[T]) Update(update T) (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	merged, err := c.reducer(c.value, update)
	if err != nil {
		return c.value, err
	}
	c.value = merged
	c.version++
	return c.value, nil
}

// Set replaces the value without consulting the reducer. Used by
// checkpoint restore and full resets.
func (c *Channel[T]) Set(v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = v
	c.version++
}

func (c *Channel[T]) ChannelName() string { return c.name }

func (c *Channel[T]) Version() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

func (c *Channel[T]) MarshalValue() ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return json.Marshal(c.value)
}

func (c *Channel[T]) UnmarshalValue(data []byte) error {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("restore channel %s: %w", c.name, err)
	}
	c.Set(v)
	return nil
}

// Store holds the channels of one run.
type Store struct {
	mu       sync.RWMutex
	channels map[string]ChannelReader
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{channels: make(map[string]ChannelReader)}
}

// RegisterChannel registers a channel with the store.
func RegisterChannel[T any](s *Store, c *Channel[T]) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[c.name] = c
}

// GetChannel retrieves a typed channel by name.
func GetChannel[T any](s *Store, name string) (*Channel[T], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.channels[name]
	if !ok {
		return nil, fmt.Errorf("channel not found: %s", name)
	}
	typed, ok := ch.(*Channel[T])
	if !ok {
		return nil, fmt.Errorf("channel type mismatch: %s", name)
	}
	return typed, nil
}

// Snapshot serializes every channel value.
func (s *Store) Snapshot() (map[string]json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := make(map[string]json.RawMessage, len(s.channels))
	for name, ch := range s.channels {
		data, err := ch.MarshalValue()
		if err != nil {
			return nil, fmt.Errorf("snapshot channel %s: %w", name, err)
		}
		snap[name] = data
	}
	return snap, nil
}

// Restore loads serialized channel values. Unknown channel names are
// skipped so snapshots survive graph evolution.
func (s *Store) Restore(snap map[string]json.RawMessage) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for name, data := range snap {
		ch, ok := s.channels[name]
		if !ok {
			continue
		}
		if err := ch.UnmarshalValue(data); err != nil {
			return err
		}
	}
	return nil
}
