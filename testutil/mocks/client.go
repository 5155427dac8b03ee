// Package mocks provides builder-style test doubles for the model
// client and the external tool registry.
package mocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/BaSui01/agentcore/llm"
	"github.com/BaSui01/agentcore/types"
)

// StreamScript describes one scripted model response. Chunks, when set,
// is replayed verbatim, which allows deliberately malformed streams;
// otherwise Tokens are streamed followed by exactly one Final.
type StreamScript struct {
	Tokens []string
	Final  *llm.ChatResponse
	Err    error
	Chunks []llm.StreamChunk
}

// ScriptedClient replays a queue of stream scripts in call order and
// records every request it receives.
type ScriptedClient struct {
	name string

	mu       sync.Mutex
	scripts  []StreamScript
	Requests []*llm.ChatRequest
}

// NewScriptedClient creates a client with no scripts queued.
func NewScriptedClient(name string) *ScriptedClient {
	return &ScriptedClient{name: name}
}

// Expect queues a script for the next unconsumed call.
func (c *ScriptedClient) Expect(script StreamScript) *ScriptedClient {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scripts = append(c.scripts, script)
	return c
}

// ExpectAnswer queues a plain text response.
func (c *ScriptedClient) ExpectAnswer(content string) *ScriptedClient {
	return c.Expect(StreamScript{
		Final: &llm.ChatResponse{Provider: c.name, Content: content},
	})
}

// ExpectToolCall queues a response issuing a single tool call.
func (c *ScriptedClient) ExpectToolCall(callID, toolName, argumentsJSON string) *ScriptedClient {
	return c.Expect(StreamScript{
		Final: &llm.ChatResponse{
			Provider: c.name,
			ToolCalls: []types.ToolCall{
				{ID: callID, Name: toolName, Arguments: []byte(argumentsJSON)},
			},
		},
	})
}

func (c *ScriptedClient) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	c.mu.Lock()
	c.Requests = append(c.Requests, req)
	if len(c.scripts) == 0 {
		c.mu.Unlock()
		return nil, fmt.Errorf("scripted client %s: no script queued for call %d", c.name, len(c.Requests))
	}
	script := c.scripts[0]
	c.scripts = c.scripts[1:]
	c.mu.Unlock()

	if script.Err != nil {
		return nil, script.Err
	}

	ch := make(chan llm.StreamChunk, len(script.Chunks)+len(script.Tokens)+1)
	if script.Chunks != nil {
		for _, chunk := range script.Chunks {
			ch <- chunk
		}
	} else {
		for _, token := range script.Tokens {
			ch <- llm.StreamChunk{Token: token}
		}
		ch <- llm.StreamChunk{Final: script.Final}
	}
	close(ch)
	return ch, nil
}

func (c *ScriptedClient) Name() string { return c.name }

// CallCount returns how many times Stream was invoked.
func (c *ScriptedClient) CallCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Requests)
}
