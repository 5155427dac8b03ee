// Package budget implements the context budget manager: dangling
// tool-call repair, history summarization with external offload,
// compaction, hard request-ceiling enforcement, and large tool-result
// eviction. It is invoked once per turn before the model call.
package budget

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/agentcore/msglog"
	"github.com/BaSui01/agentcore/store"
	"github.com/BaSui01/agentcore/tokenizer"
	"github.com/BaSui01/agentcore/types"
)

// Config holds the budget thresholds. Character thresholds are a
// deterministic chars-per-token proxy; exact token thresholds use the
// injected tokenizer.
type Config struct {
	// SummarizeTriggerTokens starts history offload when the log exceeds
	// it. Non-positive disables summarization.
	SummarizeTriggerTokens int `yaml:"summarize_trigger_tokens"`

	// KeepLastN messages stay verbatim when summarizing.
	KeepLastN int `yaml:"keep_last_n"`

	// CompactMaxTokens bounds the message window after compaction.
	// Non-positive disables compaction.
	CompactMaxTokens int `yaml:"compact_max_tokens"`

	// HardRequestCeiling is the absolute token ceiling for one request,
	// tool definitions included. Non-positive disables enforcement.
	HardRequestCeiling int `yaml:"hard_request_ceiling"`

	// ToolBudgetRatio caps the share of the hard ceiling that tool
	// definitions may consume; beyond it the request is doomed before
	// any network call. Zero means the default of 0.5.
	ToolBudgetRatio float64 `yaml:"tool_budget_ratio"`

	// EvictMaxChars is the tool-result length above which results are
	// offloaded. Non-positive disables eviction.
	EvictMaxChars int `yaml:"evict_max_chars"`

	// EvictPreviewChars is the size of the head and tail kept in-line
	// for an evicted result.
	EvictPreviewChars int `yaml:"evict_preview_chars"`

	// EvictExemptTools are never evicted; their value is the content
	// itself.
	EvictExemptTools []string `yaml:"evict_exempt_tools"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		SummarizeTriggerTokens: 24000,
		KeepLastN:              10,
		CompactMaxTokens:       32000,
		HardRequestCeiling:     0,
		ToolBudgetRatio:        0.5,
		EvictMaxChars:          16000,
		EvictPreviewChars:      800,
		EvictExemptTools: []string{
			"read_file", "grep", "search", "list_dir", "edit_file", "glob",
		},
	}
}

// Plan is the token-bounded request produced for one model call.
type Plan struct {
	System         types.Message
	Messages       []types.Message
	ToolTokenCount int
}

// Manager applies budget policy over one thread's message log.
type Manager struct {
	cfg       Config
	tok       tokenizer.Tokenizer
	content   store.ContentStore
	logger    *zap.Logger
	exemption map[string]struct{}
}

// NewManager creates a budget manager. A nil tokenizer falls back to
// the chars-per-token estimator; a nil logger is replaced with a no-op.
func NewManager(cfg Config, tok tokenizer.Tokenizer, content store.ContentStore, logger *zap.Logger) *Manager {
	if tok == nil {
		tok = tokenizer.NewEstimator(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	exemption := make(map[string]struct{}, len(cfg.EvictExemptTools))
	for _, name := range cfg.EvictExemptTools {
		exemption[name] = struct{}{}
	}
	return &Manager{
		cfg:       cfg,
		tok:       tok,
		content:   content,
		logger:    logger.With(zap.String("component", "budget")),
		exemption: exemption,
	}
}

// RepairDanglingCalls synthesizes a cancellation tool-result for every
// assistant tool call that has no matching result message, so the log
// alternates correctly before being sent to a model.
func (m *Manager) RepairDanglingCalls(messages []types.Message) []types.Message {
	answered := make(map[string]struct{})
	for _, msg := range messages {
		if msg.Role == types.RoleTool && msg.ToolCallID != "" {
			answered[msg.ToolCallID] = struct{}{}
		}
	}

	repaired := make([]types.Message, 0, len(messages))
	for _, msg := range messages {
		repaired = append(repaired, msg)
		if msg.Role != types.RoleAssistant {
			continue
		}
		for _, call := range msg.ToolCalls {
			if _, ok := answered[call.ID]; ok {
				continue
			}
			m.logger.Debug("repairing dangling tool call",
				zap.String("tool_call_id", call.ID),
				zap.String("tool", call.Name))
			repaired = append(repaired, types.NewToolMessage(
				msglog.ToolResultID(call.ID),
				call.ID,
				call.Name,
				"Tool call was cancelled before completion.",
			))
		}
	}
	return repaired
}

// Summarize offloads the oldest messages to external storage when the
// log exceeds the trigger, keeping the last KeepLastN verbatim and
// replacing the offloaded span with a single system pointer note.
func (m *Manager) Summarize(ctx context.Context, threadID string, messages []types.Message) ([]types.Message, error) {
	if m.cfg.SummarizeTriggerTokens <= 0 || m.content == nil {
		return messages, nil
	}
	if len(messages) <= m.cfg.KeepLastN {
		return messages, nil
	}
	total, err := m.tok.CountMessages(messages)
	if err != nil {
		return nil, fmt.Errorf("count messages: %w", err)
	}
	if total <= m.cfg.SummarizeTriggerTokens {
		return messages, nil
	}

	cut := len(messages) - m.cfg.KeepLastN
	offloaded := messages[:cut]
	kept := messages[cut:]

	key := "history/" + store.SanitizeKey(threadID)
	location, err := m.content.Append(ctx, key, renderMarkdown(offloaded))
	if err != nil {
		return nil, fmt.Errorf("offload history: %w", err)
	}

	note := types.NewSystemMessage(
		"system_summary_"+store.SanitizeKey(threadID),
		fmt.Sprintf("Earlier conversation history (%d messages) was offloaded to %s.", len(offloaded), location),
	)
	m.logger.Info("summarized history",
		zap.String("thread_id", threadID),
		zap.Int("offloaded", len(offloaded)),
		zap.Int("total_tokens", total),
		zap.String("location", location))

	out := make([]types.Message, 0, len(kept)+1)
	out = append(out, note)
	out = append(out, kept...)
	return out, nil
}

// Compact drops oldest non-system messages until the window fits under
// CompactMaxTokens. It always runs, independent of summarization.
func (m *Manager) Compact(messages []types.Message) ([]types.Message, error) {
	if m.cfg.CompactMaxTokens <= 0 {
		return messages, nil
	}
	window := messages
	for len(window) > 0 {
		total, err := m.tok.CountMessages(window)
		if err != nil {
			return nil, fmt.Errorf("count messages: %w", err)
		}
		if total <= m.cfg.CompactMaxTokens {
			return window, nil
		}
		dropped := false
		for i, msg := range window {
			if msg.Role == types.RoleSystem {
				continue
			}
			window = append(append([]types.Message(nil), window[:i]...), window[i+1:]...)
			dropped = true
			break
		}
		if !dropped {
			return window, nil
		}
	}
	return window, nil
}

// BuildRequest enforces the hard request ceiling: tool definitions must
// fit on their own, the system message is trimmed by binary search over
// its characters, and oldest conversation turns are dropped until the
// whole request fits. With no ceiling configured it passes everything
// through unchanged.
func (m *Manager) BuildRequest(system types.Message, messages []types.Message, tools []types.ToolDefinition) (*Plan, error) {
	toolTokens, err := m.countTools(tools)
	if err != nil {
		return nil, err
	}
	if m.cfg.HardRequestCeiling <= 0 {
		return &Plan{System: system, Messages: messages, ToolTokenCount: toolTokens}, nil
	}
	ratio := m.cfg.ToolBudgetRatio
	if ratio <= 0 {
		ratio = 0.5
	}
	if float64(toolTokens) > float64(m.cfg.HardRequestCeiling)*ratio {
		return nil, &types.BudgetError{
			Limit:          m.cfg.HardRequestCeiling,
			ToolTokenCount: toolTokens,
			ToolCount:      len(tools),
		}
	}

	msgBudget := m.cfg.HardRequestCeiling - toolTokens

	trimmed, err := m.trimSystem(system, msgBudget)
	if err != nil {
		return nil, err
	}

	window := messages
	for len(window) > 0 {
		total, err := m.tok.CountMessages(append([]types.Message{trimmed}, window...))
		if err != nil {
			return nil, fmt.Errorf("count messages: %w", err)
		}
		if total <= msgBudget {
			break
		}
		window = window[1:]
	}
	if len(window) == 0 {
		m.logger.Warn("request reduced to trimmed system message only",
			zap.Int("budget", msgBudget))
	}
	return &Plan{System: trimmed, Messages: window, ToolTokenCount: toolTokens}, nil
}

// trimSystem binary-searches the largest character prefix of the system
// content whose message fits the budget. Character-based on purpose:
// token density is treated as roughly linear.
func (m *Manager) trimSystem(system types.Message, budget int) (types.Message, error) {
	fits := func(content string) (bool, error) {
		probe := system
		probe.Content = content
		n, err := m.tok.CountMessages([]types.Message{probe})
		if err != nil {
			return false, err
		}
		return n <= budget, nil
	}

	ok, err := fits(system.Content)
	if err != nil {
		return types.Message{}, err
	}
	if ok {
		return system, nil
	}

	runes := []rune(system.Content)
	lo, hi := 0, len(runes)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		ok, err := fits(string(runes[:mid]))
		if err != nil {
			return types.Message{}, err
		}
		if ok {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	trimmed := system
	trimmed.Content = string(runes[:lo])
	m.logger.Debug("trimmed system message",
		zap.Int("original_chars", len(runes)),
		zap.Int("kept_chars", lo))
	return trimmed, nil
}

func (m *Manager) countTools(tools []types.ToolDefinition) (int, error) {
	if len(tools) == 0 {
		return 0, nil
	}
	data, err := json.Marshal(tools)
	if err != nil {
		return 0, fmt.Errorf("marshal tool definitions: %w", err)
	}
	n, err := m.tok.CountTokens(string(data))
	if err != nil {
		return 0, fmt.Errorf("count tool definitions: %w", err)
	}
	return n, nil
}

func renderMarkdown(messages []types.Message) string {
	var b strings.Builder
	for _, msg := range messages {
		fmt.Fprintf(&b, "### %s\n\n", msg.Role)
		if msg.Content != "" {
			b.WriteString(msg.Content)
			b.WriteString("\n\n")
		}
		for _, call := range msg.ToolCalls {
			fmt.Fprintf(&b, "- tool call `%s` (%s): %s\n", call.Name, call.ID, string(call.Arguments))
		}
		if len(msg.ToolCalls) > 0 {
			b.WriteString("\n")
		}
	}
	return b.String()
}
