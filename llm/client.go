// Package llm defines the model-client abstraction the execution
// pipeline calls into. Concrete on-device or cloud clients live outside
// the core; the core only depends on the streaming contract here.
package llm

import (
	"context"
	"time"

	"github.com/BaSui01/agentcore/types"
)

// ChatRequest is a token-bounded request produced by the budget manager.
type ChatRequest struct {
	Model       string                 `json:"model"`
	Messages    []types.Message        `json:"messages"`
	Tools       []types.ToolDefinition `json:"tools,omitempty"`
	MaxTokens   int                    `json:"max_tokens,omitempty"`
	Temperature float32                `json:"temperature,omitempty"`
}

// ChatUsage reports token consumption of one completed call.
type ChatUsage struct {
	PromptTokens     int     `json:"prompt_tokens,omitempty"`
	CompletionTokens int     `json:"completion_tokens,omitempty"`
	TotalTokens      int     `json:"total_tokens,omitempty"`
	Cost             float64 `json:"cost,omitempty"` // USD
}

// ChatResponse is the terminal payload of one model call.
type ChatResponse struct {
	Provider  string           `json:"provider,omitempty"`
	Model     string           `json:"model,omitempty"`
	Content   string           `json:"content"`
	ToolCalls []types.ToolCall `json:"tool_calls,omitempty"`
	Usage     ChatUsage        `json:"usage,omitempty"`
	CreatedAt time.Time        `json:"created_at,omitempty"`
}

// StreamChunk is one element of a model response stream. A chunk either
// carries an incremental Token, the terminal Final response, or an
// error. Exactly one Final ends a well-formed stream.
type StreamChunk struct {
	Token string        `json:"token,omitempty"`
	Final *ChatResponse `json:"final,omitempty"`
	Err   *types.Error  `json:"error,omitempty"`
}

// Client is the minimal model-call surface the core consumes.
type Client interface {
	// Stream issues a streaming call. The returned channel is closed by
	// the producer after the terminal chunk; cancelling ctx must stop
	// the producer.
	Stream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error)

	// Name returns the client's unique identifier.
	Name() string
}

// Drain consumes a stream enforcing the protocol: zero or more token
// chunks followed by exactly one final chunk. A missing final, a second
// final, or a token arriving after the final is a protocol violation.
// onToken, when non-nil, is invoked for every token chunk in order.
func Drain(ch <-chan StreamChunk, onToken func(token string)) (*ChatResponse, error) {
	var final *ChatResponse
	for chunk := range ch {
		if chunk.Err != nil {
			return nil, chunk.Err
		}
		if final != nil {
			return nil, types.NewError(types.ErrStreamProtocol, "chunk received after final chunk")
		}
		if chunk.Final != nil {
			final = chunk.Final
			continue
		}
		if onToken != nil {
			onToken(chunk.Token)
		}
	}
	if final == nil {
		return nil, types.NewError(types.ErrStreamProtocol, "stream ended without a final chunk")
	}
	return final, nil
}

// Complete issues a call and drains the stream into a single response.
func Complete(ctx context.Context, c Client, req *ChatRequest) (*ChatResponse, error) {
	ch, err := c.Stream(ctx, req)
	if err != nil {
		return nil, err
	}
	return Drain(ch, nil)
}
