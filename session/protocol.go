// Package session is the harness session: it starts, resumes and stops
// runs against the execution pipeline, converts runtime events into the
// stable externally observable event protocol, and persists run state
// plus the append-only event log.
package session

import (
	"encoding/json"
	"time"

	"github.com/BaSui01/agentcore/types"
)

// ProtocolVersion identifies the envelope format. The envelope contract
// stays stable independent of internal runtime event shapes.
const ProtocolVersion = "1.0"

// EventType enumerates the externally observable event kinds.
type EventType string

const (
	EventRunStarted     EventType = "run_started"
	EventRunResumed     EventType = "run_resumed"
	EventRunInterrupted EventType = "run_interrupted"
	EventRunFinished    EventType = "run_finished"
	EventRunCancelled   EventType = "run_cancelled"
	EventAssistantDelta EventType = "assistant_delta"
	EventToolRequest    EventType = "tool_request"
	EventToolResult     EventType = "tool_result"
	EventToolDenied     EventType = "tool_denied"
)

// Envelope is one element of the ordered, replayable event sequence
// exposed to observers. Sequence numbers are strictly monotonically
// increasing per run and never reused.
type Envelope struct {
	ProtocolVersion string          `json:"protocolVersion"`
	EventType       EventType       `json:"eventType"`
	Sequence        int64           `json:"sequence"`
	Timestamp       time.Time       `json:"timestamp"`
	RunID           string          `json:"runID"`
	SessionID       string          `json:"sessionID"`
	Payload         json.RawMessage `json:"payload,omitempty"`
}

// RunStartedPayload announces a new run.
type RunStartedPayload struct {
	ThreadID string `json:"threadID"`
	Input    string `json:"input"`
}

// RunResumedPayload announces consumption of an interrupt.
type RunResumedPayload struct {
	InterruptID string                 `json:"interruptID"`
	Decision    types.ApprovalDecision `json:"decision"`
}

// RunInterruptedPayload carries the calls awaiting approval.
type RunInterruptedPayload struct {
	InterruptID string           `json:"interruptID"`
	ToolCalls   []types.ToolCall `json:"toolCalls"`
}

// RunFinishedPayload carries the final answer.
type RunFinishedPayload struct {
	FinalAnswer string `json:"finalAnswer"`
}

// RunCancelledPayload carries the stop reason and any partial answer.
type RunCancelledPayload struct {
	Reason        string `json:"reason,omitempty"`
	PartialAnswer string `json:"partialAnswer,omitempty"`
}
