package types

import "time"

// RunPhase is the lifecycle phase of one active run.
type RunPhase string

const (
	PhaseRunning     RunPhase = "running"
	PhaseInterrupted RunPhase = "interrupted"
	PhaseFinished    RunPhase = "finished"
	PhaseCancelled   RunPhase = "cancelled"
)

// Terminal reports whether the phase admits no further transitions.
func (p RunPhase) Terminal() bool {
	return p == PhaseFinished || p == PhaseCancelled
}

// RunState is the externally observable snapshot of one run. The
// EventSequence is strictly monotonically increasing and never reused.
type RunState struct {
	RunID         string    `json:"run_id"`
	SessionID     string    `json:"session_id"`
	ThreadID      string    `json:"thread_id"`
	Phase         RunPhase  `json:"phase"`
	EventSequence int64     `json:"event_sequence"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Interruption identifies one outstanding tool-approval request. At most
// one interruption is outstanding per run; it is consumed exactly once by
// a resume call carrying an ApprovalDecision.
type Interruption struct {
	InterruptID string     `json:"interrupt_id"`
	RunID       string     `json:"run_id"`
	ToolCalls   []ToolCall `json:"tool_calls"`
}
