package mocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/BaSui01/agentcore/types"
)

// ToolRegistry is a canned external tool registry. It records every
// invocation it receives.
type ToolRegistry struct {
	mu      sync.Mutex
	defs    []types.ToolDefinition
	results map[string]string
	errs    map[string]error
	Calls   []types.ToolCall
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		results: make(map[string]string),
		errs:    make(map[string]error),
	}
}

// WithTool registers a tool returning a fixed result.
func (r *ToolRegistry) WithTool(name, description, result string) *ToolRegistry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs = append(r.defs, types.ToolDefinition{
		Name:        name,
		Description: description,
		Parameters:  `{"type":"object"}`,
	})
	r.results[name] = result
	return r
}

// WithFailingTool registers a tool whose invocation fails.
func (r *ToolRegistry) WithFailingTool(name string, err error) *ToolRegistry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs = append(r.defs, types.ToolDefinition{
		Name:        name,
		Description: "always fails",
		Parameters:  `{"type":"object"}`,
	})
	r.errs[name] = err
	return r
}

func (r *ToolRegistry) ListTools() []types.ToolDefinition {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.ToolDefinition(nil), r.defs...)
}

func (r *ToolRegistry) Invoke(ctx context.Context, call types.ToolCall) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls = append(r.Calls, call)
	if err, ok := r.errs[call.Name]; ok {
		return "", err
	}
	result, ok := r.results[call.Name]
	if !ok {
		return "", fmt.Errorf("tool not registered: %s", call.Name)
	}
	return result, nil
}
