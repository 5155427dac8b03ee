// Package types provides core types used across the agentcore module.
// This package has ZERO dependencies on other agentcore packages to avoid
// circular imports. All other packages should import types from here.
package types

import "encoding/json"

// Role represents the role of a message participant.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Op marks a message as a log-edit directive rather than content.
type Op string

const (
	// OpNone is ordinary content (the zero value).
	OpNone Op = ""
	// OpRemove deletes the message with the same ID from the log.
	OpRemove Op = "remove"
	// OpRemoveAll discards the entire log it is merged against.
	OpRemoveAll Op = "remove_all"
)

// RemoveAllID is the reserved sentinel ID a remove_all marker must carry.
const RemoveAllID = "__remove_all__"

// ToolCall represents a tool invocation request from the LLM.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Message represents a conversation message. Messages are immutable
// records identified by a stable ID; the log they live in is only
// mutated through msglog.Reduce.
type Message struct {
	ID         string     `json:"id"`
	Role       Role       `json:"role"`
	Content    string     `json:"content,omitempty"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Op         Op         `json:"op,omitempty"`
}

// NewMessage creates a new message with the given ID, role and content.
func NewMessage(id string, role Role, content string) Message {
	return Message{ID: id, Role: role, Content: content}
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(id, content string) Message {
	return NewMessage(id, RoleSystem, content)
}

// NewUserMessage creates a new user message.
func NewUserMessage(id, content string) Message {
	return NewMessage(id, RoleUser, content)
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(id, content string) Message {
	return NewMessage(id, RoleAssistant, content)
}

// NewToolMessage creates a new tool result message.
func NewToolMessage(id, toolCallID, name, content string) Message {
	return Message{
		ID:         id,
		Role:       RoleTool,
		Content:    content,
		Name:       name,
		ToolCallID: toolCallID,
	}
}

// RemoveMessage creates a directive deleting the message with the given ID.
func RemoveMessage(id string) Message {
	return Message{ID: id, Op: OpRemove}
}

// RemoveAllMessage creates a directive discarding the entire log.
func RemoveAllMessage() Message {
	return Message{ID: RemoveAllID, Op: OpRemoveAll}
}

// WithToolCalls adds tool calls to the message.
func (m Message) WithToolCalls(calls []ToolCall) Message {
	m.ToolCalls = calls
	return m
}
