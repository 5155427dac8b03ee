package pipeline

// Runtime event types emitted during a turn. The harness session maps
// these one-to-one onto its externally observable protocol envelopes.
const (
	EventAssistantDelta = "assistant_delta"
	EventToolRequest    = "tool_request"
	EventToolResult     = "tool_result"
	EventToolDenied     = "tool_denied"
)

// DeltaPayload carries one streamed assistant token.
type DeltaPayload struct {
	Delta string `json:"delta"`
}

// ToolRequestPayload announces a tool call about to execute.
type ToolRequestPayload struct {
	ToolCallID    string `json:"toolCallID"`
	ToolName      string `json:"toolName"`
	ArgumentsJSON string `json:"argumentsJSON"`
}

// ToolResultPayload reports a completed tool call.
type ToolResultPayload struct {
	ToolCallID string `json:"toolCallID"`
	ToolName   string `json:"toolName"`
	Success    bool   `json:"success"`
}

// ToolDeniedPayload reports a rejected tool call.
type ToolDeniedPayload struct {
	ToolCallID string `json:"toolCallID"`
	ToolName   string `json:"toolName"`
	Reason     string `json:"reason"`
}
