// Package store provides the external content store the budget manager
// offloads conversation history and oversized tool results to. Three
// backends are provided: in-memory (tests, single-process), file
// (local persistence), and Redis (distributed deployments).
package store

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned when the requested key holds no content.
var ErrNotFound = errors.New("content not found")

// ContentStore persists conversation content outside the message log.
// Append has append semantics: prior history under the same key is never
// overwritten. Both Append and Write return an opaque location string
// suitable for embedding in a pointer message.
type ContentStore interface {
	// Append adds content under the key, preserving anything already there.
	Append(ctx context.Context, key, content string) (string, error)

	// Write replaces the content under the key.
	Write(ctx context.Context, key, content string) (string, error)

	// Read returns the full content under the key.
	Read(ctx context.Context, key string) (string, error)
}

// SanitizeKey normalizes an arbitrary identifier (e.g. a tool-call id)
// into a key safe for every backend, including the filesystem.
func SanitizeKey(id string) string {
	var b strings.Builder
	b.Grow(len(id))
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "_"
	}
	return b.String()
}
