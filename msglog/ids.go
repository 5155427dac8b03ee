package msglog

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/BaSui01/agentcore/types"
)

// idTag is a versioned domain-separation tag. Bump the version whenever
// the hash input layout changes, so old and new IDs can never collide.
const idTag = "agentcore/msgid/v1"

// MessageID derives a stable, content-addressed ID for a user, assistant
// or system turn. Hashing the tag, the run/task identity and a zero-padded
// sequence discriminator means re-running the same turn against the same
// inputs reproduces identical IDs, which is what makes Reduce idempotent
// across retried or duplicated writes.
func MessageID(role types.Role, threadID string, seq int) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%08d", idTag, role, threadID, seq)
	return fmt.Sprintf("%s_%s", role, hex.EncodeToString(h.Sum(nil))[:32])
}

// ToolResultID derives the ID for the tool-result message answering the
// given tool call. One call maps to at most one result, so the call ID is
// the only discriminator needed.
func ToolResultID(toolCallID string) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|tool_result|%s", idTag, toolCallID)
	return "tool_" + hex.EncodeToString(h.Sum(nil))[:32]
}
