package tokenizer

import (
	"unicode/utf8"

	"github.com/BaSui01/agentcore/types"
)

// DefaultCharsPerToken is the deterministic chars-per-token proxy used
// for budget thresholds when no exact tokenizer is configured.
const DefaultCharsPerToken = 4.0

// Estimator is a character-count-based token estimator. All thresholds
// in the budget manager are expressed as chars-per-token multiples, so
// the estimator gives deterministic results across processes.
type Estimator struct {
	charsPerToken float64
}

// NewEstimator creates a generic estimator. A non-positive ratio selects
// DefaultCharsPerToken.
func NewEstimator(charsPerToken float64) *Estimator {
	if charsPerToken <= 0 {
		charsPerToken = DefaultCharsPerToken
	}
	return &Estimator{charsPerToken: charsPerToken}
}

func (e *Estimator) CountTokens(text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	estimated := int(float64(utf8.RuneCountInString(text)) / e.charsPerToken)
	if estimated == 0 {
		estimated = 1
	}
	return estimated, nil
}

func (e *Estimator) CountMessages(messages []types.Message) (int, error) {
	total := 0
	for _, msg := range messages {
		tokens, err := e.CountTokens(msg.Content)
		if err != nil {
			return 0, err
		}
		// Each message has ~4 tokens of overhead (role markers, separators).
		total += tokens + 4
	}
	// Conversation-end overhead.
	total += 3
	return total, nil
}

func (e *Estimator) Name() string {
	return "estimator"
}
