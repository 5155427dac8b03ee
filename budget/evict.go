package budget

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/agentcore/store"
)

// EvictResult offloads an oversized tool result to the content store
// and returns a head/tail preview plus a pointer to the full content.
// Results from exempt tools, and anything under the size threshold,
// pass through unchanged.
func (m *Manager) EvictResult(ctx context.Context, toolCallID, toolName, result string) (string, error) {
	if m.cfg.EvictMaxChars <= 0 || m.content == nil {
		return result, nil
	}
	if len(result) <= m.cfg.EvictMaxChars {
		return result, nil
	}
	if _, exempt := m.exemption[toolName]; exempt {
		return result, nil
	}

	key := "toolresult/" + store.SanitizeKey(toolCallID)
	location, err := m.content.Write(ctx, key, result)
	if err != nil {
		return "", fmt.Errorf("evict tool result: %w", err)
	}

	preview := m.cfg.EvictPreviewChars
	if preview <= 0 {
		preview = 800
	}
	runes := []rune(result)
	head := string(runes[:min(preview, len(runes))])
	tail := string(runes[max(len(runes)-preview, 0):])

	m.logger.Info("evicted large tool result",
		zap.String("tool_call_id", toolCallID),
		zap.String("tool", toolName),
		zap.Int("chars", len(result)),
		zap.String("location", location))

	return fmt.Sprintf(
		"%s\n\n... [%d characters omitted; full result stored at %s] ...\n\n%s",
		head, len(result), location, tail,
	), nil
}
