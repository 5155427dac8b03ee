// Package msglog implements the deterministic merge over the shared
// message log. The log is owned by the turn loop and only ever mutated
// through Reduce, which makes the merge the sole synchronization point
// for concurrent execution steps.
package msglog

import (
	"fmt"

	"github.com/BaSui01/agentcore/types"
)

// InvalidLogEditError signals a malformed write batch. It is fatal to the
// current turn and never silently retried.
type InvalidLogEditError struct {
	ID     string
	Reason string
}

func (e *InvalidLogEditError) Error() string {
	return fmt.Sprintf("[%s] invalid log edit for id %q: %s", types.ErrInvalidLogEdit, e.ID, e.Reason)
}

// Reduce merges a batch of proposed writes (appends, edits, deletes,
// full reset) into a new canonical sequence. It is pure and
// deterministic: the inputs are never mutated and the same inputs always
// produce the same output. Applying a batch to its own output is a no-op.
//
// Merge rules:
//   - A remove directive must target an ID present in the base or in an
//     earlier write of the same batch; anything else is an
//     InvalidLogEditError.
//   - Among multiple remove_all markers in one batch only the last is
//     authoritative: the base is discarded and only writes strictly after
//     that marker survive.
//   - A surviving write whose ID already exists overwrites that message
//     in place, preserving its position; a new ID is appended.
//   - Deletions are applied after all writes, and the merged log is
//     always clean: no message in the result carries an op marker.
func Reduce(base, writes []types.Message) ([]types.Message, error) {
	if err := validate(base, writes); err != nil {
		return nil, err
	}

	survivingBase := base
	survivingWrites := writes
	for i := len(writes) - 1; i >= 0; i-- {
		if writes[i].Op == types.OpRemoveAll {
			survivingBase = nil
			survivingWrites = writes[i+1:]
			break
		}
	}

	merged := make([]types.Message, len(survivingBase))
	copy(merged, survivingBase)

	index := make(map[string]int, len(merged))
	for i, m := range merged {
		index[m.ID] = i
	}

	deleted := make(map[string]bool)
	for _, w := range survivingWrites {
		if w.Op == types.OpRemove {
			deleted[w.ID] = true
			continue
		}
		if i, ok := index[w.ID]; ok {
			merged[i] = w
			continue
		}
		index[w.ID] = len(merged)
		merged = append(merged, w)
	}

	result := make([]types.Message, 0, len(merged))
	for _, m := range merged {
		if deleted[m.ID] {
			continue
		}
		m.Op = types.OpNone
		result = append(result, m)
	}
	return result, nil
}

// validate checks batch invariants before any merging happens, so a
// rejected batch leaves no partial state behind.
func validate(base, writes []types.Message) error {
	known := make(map[string]bool, len(base)+len(writes))
	for _, m := range base {
		known[m.ID] = true
	}

	for _, w := range writes {
		switch w.Op {
		case types.OpRemove:
			if !known[w.ID] {
				return &InvalidLogEditError{ID: w.ID, Reason: "remove target not present in base or earlier writes"}
			}
		case types.OpRemoveAll:
			if w.ID != types.RemoveAllID {
				return &InvalidLogEditError{ID: w.ID, Reason: "remove_all marker must carry the reserved sentinel id"}
			}
			known[w.ID] = true
		default:
			known[w.ID] = true
		}
	}
	return nil
}
