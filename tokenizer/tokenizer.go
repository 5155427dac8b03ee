// Package tokenizer provides token counting for budget decisions. An
// exact tiktoken-backed implementation is preferred when available; the
// estimator is the deterministic chars-per-token fallback.
package tokenizer

import (
	"fmt"
	"sync"

	"github.com/BaSui01/agentcore/types"
)

// Tokenizer is the unified token counting interface.
type Tokenizer interface {
	// CountTokens returns the token count of the given text.
	CountTokens(text string) (int, error)

	// CountMessages returns the total token count of a message list,
	// including per-message overhead (role markers, separators).
	CountMessages(messages []types.Message) (int, error)

	// Name returns the tokenizer's name.
	Name() string
}

var (
	modelTokenizers   = make(map[string]Tokenizer)
	modelTokenizersMu sync.RWMutex
)

// Register registers a tokenizer for the given model name.
func Register(model string, t Tokenizer) {
	modelTokenizersMu.Lock()
	defer modelTokenizersMu.Unlock()
	modelTokenizers[model] = t
}

// ForModel returns the tokenizer registered for the given model. It also
// tries prefix matching (e.g. "gpt-4o" matches "gpt-4o-mini").
func ForModel(model string) (Tokenizer, error) {
	modelTokenizersMu.RLock()
	defer modelTokenizersMu.RUnlock()

	if t, ok := modelTokenizers[model]; ok {
		return t, nil
	}
	for prefix, t := range modelTokenizers {
		if len(model) >= len(prefix) && model[:len(prefix)] == prefix {
			return t, nil
		}
	}
	return nil, fmt.Errorf("no tokenizer registered for model: %s", model)
}

// ForModelOrEstimator returns the registered tokenizer for the model,
// falling back to the generic estimator when none is registered.
func ForModelOrEstimator(model string) Tokenizer {
	t, err := ForModel(model)
	if err != nil {
		return NewEstimator(0)
	}
	return t
}
