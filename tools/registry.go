// Package tools provides the tool registry the pipeline dispatches
// into. Built-ins and externally supplied tools populate the same
// name-to-handler map; external entries override built-ins on name
// collision.
package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/agentcore/types"
)

// Registry is the tool surface consumed by tool dispatch. Invocation
// failures surface as ordinary errors, never as silent empty results.
type Registry interface {
	// ListTools returns the definitions of every registered tool.
	ListTools() []types.ToolDefinition

	// Invoke executes the call and returns the result content.
	Invoke(ctx context.Context, call types.ToolCall) (string, error)
}

// Handler executes one tool call.
type Handler func(ctx context.Context, call types.ToolCall) (string, error)

// MapRegistry is a mutex-guarded name-to-handler map.
type MapRegistry struct {
	mu       sync.RWMutex
	defs     map[string]types.ToolDefinition
	handlers map[string]Handler
	logger   *zap.Logger
}

// NewMapRegistry creates an empty registry.
func NewMapRegistry(logger *zap.Logger) *MapRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MapRegistry{
		defs:     make(map[string]types.ToolDefinition),
		handlers: make(map[string]Handler),
		logger:   logger,
	}
}

// Register adds a tool, replacing any existing tool of the same name.
func (r *MapRegistry) Register(def types.ToolDefinition, handler Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[def.Name]; exists {
		r.logger.Debug("tool overridden", zap.String("tool", def.Name))
	}
	r.defs[def.Name] = def
	r.handlers[def.Name] = handler
}

// Has reports whether a tool of the given name is registered.
func (r *MapRegistry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[name]
	return ok
}

// ListTools returns definitions sorted by name for deterministic output.
func (r *MapRegistry) ListTools() []types.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]types.ToolDefinition, 0, len(r.defs))
	for _, d := range r.defs {
		defs = append(defs, d)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Invoke looks the handler up once and executes it.
func (r *MapRegistry) Invoke(ctx context.Context, call types.ToolCall) (string, error) {
	r.mu.RLock()
	handler, ok := r.handlers[call.Name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("tool not registered: %s", call.Name)
	}
	return handler(ctx, call)
}
