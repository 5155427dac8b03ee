package types

// ToolDefinition describes a callable tool: name, human description, and
// its parameter schema as JSON-schema text. The schema is treated as
// opaque by the core and forwarded to the model verbatim.
type ToolDefinition struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Parameters  string `json:"parameters"`
}

// ApprovalDecision is the binary outcome of a tool-approval interrupt.
type ApprovalDecision string

const (
	DecisionApproved ApprovalDecision = "approved"
	DecisionRejected ApprovalDecision = "rejected"
)
