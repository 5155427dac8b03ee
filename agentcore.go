// Package agentcore is the execution core of an LLM-driven agent
// harness: a deterministic message-log reducer, a context budget
// manager, a five-step interruptible execution pipeline, a
// provider-routing resilience layer, and a harness session exposing a
// stable event protocol.
//
// Usage:
//
//	cfg, _ := config.NewLoader().WithConfigPath("agentcore.yaml").Load()
//	h, err := agentcore.New(cfg, agentcore.WithClient(myClient))
//	res, err := h.Session.StartRun(ctx, "thread-1", "list files")
//
// This is a thin wiring layer; each subpackage is usable on its own.
package agentcore

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/agentcore/budget"
	"github.com/BaSui01/agentcore/config"
	"github.com/BaSui01/agentcore/graph"
	"github.com/BaSui01/agentcore/llm"
	"github.com/BaSui01/agentcore/pipeline"
	"github.com/BaSui01/agentcore/router"
	"github.com/BaSui01/agentcore/session"
	"github.com/BaSui01/agentcore/store"
	"github.com/BaSui01/agentcore/tokenizer"
	"github.com/BaSui01/agentcore/tools"
)

// Harness bundles a fully wired session with its shared collaborators.
type Harness struct {
	Session *session.Session
	Store   store.ContentStore
	Logger  *zap.Logger
}

type options struct {
	client       llm.Client
	providers    []router.Provider
	external     tools.Registry
	checkpointer graph.Checkpointer
}

// Option configures the harness created by [New].
type Option func(*options)

// WithClient uses a single model client directly, bypassing routing.
func WithClient(c llm.Client) Option {
	return func(o *options) { o.client = c }
}

// WithProviders routes model calls across the given providers under the
// configured routing policy.
func WithProviders(providers ...router.Provider) Option {
	return func(o *options) { o.providers = providers }
}

// WithExternalTools supplies an externally registered tool registry.
func WithExternalTools(reg tools.Registry) Option {
	return func(o *options) { o.external = reg }
}

// WithCheckpointer overrides the default in-memory checkpointer.
func WithCheckpointer(cp graph.Checkpointer) Option {
	return func(o *options) { o.checkpointer = cp }
}

// New wires a harness from configuration. A model source is required:
// either WithClient or WithProviders.
func New(cfg *config.Config, opts ...Option) (*Harness, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.client == nil && len(o.providers) == 0 && cfg.Router.Degradation != router.DegradeSynthetic {
		return nil, fmt.Errorf("no model source configured: use WithClient or WithProviders")
	}

	logger, err := cfg.Log.Build()
	if err != nil {
		return nil, err
	}
	content, err := cfg.Store.Build()
	if err != nil {
		return nil, err
	}
	sessionStore, err := session.OpenStore(cfg.Session.DatabasePath)
	if err != nil {
		return nil, err
	}

	tok := tokenizer.ForModelOrEstimator(cfg.Pipeline.Model)
	mgr := budget.NewManager(cfg.Budget, tok, content, logger)
	builtins := tools.NewBuiltins(cfg.Tools, logger)

	var rt *router.Router
	if o.client == nil {
		rt = router.New(o.providers, cfg.Router, tok, logger)
	}

	checkpointer := o.checkpointer
	if checkpointer == nil {
		checkpointer = graph.NewMemoryCheckpointer(8)
	}

	factory := func(threadID string, emit graph.EmitFunc) *pipeline.Pipeline {
		return pipeline.New(cfg.Pipeline, pipeline.Deps{
			Router:       rt,
			Client:       o.client,
			Budget:       mgr,
			Builtins:     builtins,
			External:     o.external,
			Checkpointer: checkpointer,
			Emit:         emit,
			Logger:       logger,
		}, threadID)
	}

	return &Harness{
		Session: session.New("", factory, sessionStore, logger),
		Store:   content,
		Logger:  logger,
	}, nil
}
