package types

import "fmt"

// ErrorCode represents a unified error code across the module.
type ErrorCode string

// Protocol and budget violations are fatal to the current turn.
const (
	ErrInvalidLogEdit ErrorCode = "INVALID_LOG_EDIT"
	ErrStreamProtocol ErrorCode = "STREAM_PROTOCOL"
	ErrBudgetExceeded ErrorCode = "BUDGET_EXCEEDED"
)

// Provider-routing error codes.
const (
	ErrRateLimited         ErrorCode = "RATE_LIMITED"
	ErrCostCeiling         ErrorCode = "COST_CEILING"
	ErrProviderUnavailable ErrorCode = "PROVIDER_UNAVAILABLE"
	ErrRoutingUnavailable  ErrorCode = "ROUTING_UNAVAILABLE"
)

// Caller-misuse error codes: rejected immediately, no state mutated.
const (
	ErrNoInterrupt ErrorCode = "NO_INTERRUPTED_RUN"
	ErrRunActive   ErrorCode = "RUN_ALREADY_ACTIVE"
	ErrRunNotFound ErrorCode = "RUN_NOT_FOUND"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code      ErrorCode `json:"code"`
	Message   string    `json:"message"`
	Retryable bool      `json:"retryable"`
	Provider  string    `json:"provider,omitempty"`
	Cause     error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithProvider sets the provider name.
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}

// BudgetError is returned when tool-definition overhead alone exceeds the
// hard request ceiling. It carries the limit and the actual cost so the
// caller can react, for example by dropping tools.
type BudgetError struct {
	Limit          int `json:"limit"`
	ToolTokenCount int `json:"tool_token_count"`
	ToolCount      int `json:"tool_count"`
}

func (e *BudgetError) Error() string {
	return fmt.Sprintf("[%s] tool definitions alone exceed request ceiling: limit=%d tool_tokens=%d tools=%d",
		ErrBudgetExceeded, e.Limit, e.ToolTokenCount, e.ToolCount)
}
