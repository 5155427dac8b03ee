// Package pipeline implements the five-step execution pipeline driving
// one agent turn: pre-process, model-call, route, tool-dispatch and
// tool-execute, looping until the model answers without tool calls.
// Tool approval is an interrupt/resume cycle on the tool-dispatch step;
// approved batches fan out into parallel tool-execute tasks whose
// results merge back into the log as one atomic write batch.
package pipeline

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/agentcore/budget"
	"github.com/BaSui01/agentcore/graph"
	"github.com/BaSui01/agentcore/llm"
	"github.com/BaSui01/agentcore/msglog"
	"github.com/BaSui01/agentcore/router"
	"github.com/BaSui01/agentcore/tools"
	"github.com/BaSui01/agentcore/types"
)

// Node names of the execution graph.
const (
	nodePreProcess   = "pre-process"
	nodeModelCall    = "model-call"
	nodeRoute        = "route"
	nodeToolDispatch = "tool-dispatch"
	nodeToolExecute  = "tool-execute"
)

// Channel names of the per-run store.
const (
	chanMessages    = "messages"
	chanPending     = "pending_tool_calls"
	chanFinalAnswer = "final_answer"
	chanSeq         = "seq"
)

// Config holds per-pipeline settings.
type Config struct {
	Model        string         `yaml:"model"`
	SystemPrompt string         `yaml:"system_prompt"`
	MaxTokens    int            `yaml:"max_tokens"`
	Temperature  float32        `yaml:"temperature"`
	MaxTurns     int            `yaml:"max_turns"`
	ToolGuide    bool           `yaml:"tool_guide"`
	Approval     ApprovalPolicy `yaml:"approval"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Model:     "gpt-4o",
		MaxTurns:  16,
		ToolGuide: true,
		Approval:  ApprovalPolicy{Mode: ApprovalNever},
	}
}

// Deps are the pipeline's collaborators. Router takes precedence over
// Client when both are set. External is the optional externally
// supplied tool registry; Emit receives runtime events.
type Deps struct {
	Router       *router.Router
	Client       llm.Client
	Budget       *budget.Manager
	Builtins     *tools.Builtins
	External     tools.Registry
	Checkpointer graph.Checkpointer
	Emit         graph.EmitFunc
	Logger       *zap.Logger
}

// ApprovalRequest is the interrupt payload carried while a dispatch
// batch awaits approval. Calls are in deterministic (name, id) order.
type ApprovalRequest struct {
	InterruptID string           `json:"interrupt_id"`
	Calls       []types.ToolCall `json:"calls"`
}

// Result reports the outcome of one Run or Resume.
type Result struct {
	FinalAnswer string
	Interrupted bool
	Interrupt   *ApprovalRequest
	Messages    []types.Message
	Steps       int
}

// Pipeline drives turns for one conversation thread.
type Pipeline struct {
	cfg      Config
	deps     Deps
	threadID string
	logger   *zap.Logger

	store       *graph.Store
	runtime     *graph.Runtime
	messages    *graph.Channel[[]types.Message]
	pending     *graph.Channel[[]types.ToolCall]
	finalAnswer *graph.Channel[string]
	seq         *graph.Channel[int]

	mu         sync.Mutex
	active     bool
	interrupt  *ApprovalRequest
	resumeNode string
}

// New creates a pipeline for one conversation thread.
func New(cfg Config, deps Deps, threadID string) *Pipeline {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = DefaultConfig().MaxTurns
	}

	p := &Pipeline{
		cfg:      cfg,
		deps:     deps,
		threadID: threadID,
		logger:   deps.Logger.With(zap.String("component", "pipeline"), zap.String("thread_id", threadID)),
	}

	p.store = graph.NewStore()
	p.messages = graph.NewChannel(chanMessages, []types.Message(nil), msglog.Reduce)
	p.pending = graph.NewChannel(chanPending, []types.ToolCall(nil), nil)
	p.finalAnswer = graph.NewChannel(chanFinalAnswer, "", nil)
	p.seq = graph.NewChannel(chanSeq, 0, nil)
	graph.RegisterChannel(p.store, p.messages)
	graph.RegisterChannel(p.store, p.pending)
	graph.RegisterChannel(p.store, p.finalAnswer)
	graph.RegisterChannel(p.store, p.seq)

	g := graph.NewGraph(nodePreProcess).
		AddNode(nodePreProcess, p.preProcess).
		AddNode(nodeModelCall, p.modelCall).
		AddNode(nodeRoute, p.route).
		AddNode(nodeToolDispatch, p.toolDispatch).
		AddNode(nodeToolExecute, p.toolExecute)

	// Five nodes per turn.
	p.runtime = graph.NewRuntime(g, p.store, deps.Checkpointer, threadID,
		graph.WithEmit(deps.Emit),
		graph.WithMaxSteps(cfg.MaxTurns*5),
		graph.WithLogger(p.logger))
	return p
}

// Restore loads the thread's latest checkpoint into the channel store.
func (p *Pipeline) Restore(ctx context.Context) error {
	return p.runtime.RestoreLatest(ctx)
}

// Messages returns the current merged message log.
func (p *Pipeline) Messages() []types.Message { return p.messages.Get() }

// FinalAnswer returns the most recent final-answer value.
func (p *Pipeline) FinalAnswer() string { return p.finalAnswer.Get() }

// Interrupted returns the outstanding approval request, if any.
func (p *Pipeline) Interrupted() *ApprovalRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interrupt
}

// Run appends the user input to the log and executes turns until the
// model produces a final answer or a dispatch batch needs approval.
// Only one attempt may be active per thread; concurrent calls are
// rejected, not queued.
func (p *Pipeline) Run(ctx context.Context, input string) (*Result, error) {
	if err := p.acquire(); err != nil {
		return nil, err
	}
	defer p.release()

	seq := p.nextSeq()
	userMsg := types.NewUserMessage(msglog.MessageID(types.RoleUser, p.threadID, seq), input)
	if _, err := p.messages.Update([]types.Message{userMsg}); err != nil {
		return nil, err
	}

	outcome, err := p.runtime.Execute(ctx)
	if err != nil {
		return nil, err
	}
	return p.settle(outcome), nil
}

// Resume consumes the outstanding interrupt with an approval decision
// and re-enters the parked step. Resuming with no outstanding
// interrupt, or with a stale id, is a caller error.
func (p *Pipeline) Resume(ctx context.Context, interruptID string, decision types.ApprovalDecision) (*Result, error) {
	if err := p.acquire(); err != nil {
		return nil, err
	}
	defer p.release()

	p.mu.Lock()
	if p.interrupt == nil || p.interrupt.InterruptID != interruptID {
		p.mu.Unlock()
		return nil, types.NewError(types.ErrNoInterrupt, "no interrupted run")
	}
	node := p.resumeNode
	p.interrupt = nil
	p.resumeNode = ""
	p.mu.Unlock()

	outcome, err := p.runtime.ResumeAt(ctx, node, decision)
	if err != nil {
		return nil, err
	}
	return p.settle(outcome), nil
}

// ClearInterrupt drops the outstanding approval request, if any. Used
// when a run is stopped externally.
func (p *Pipeline) ClearInterrupt() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.interrupt = nil
	p.resumeNode = ""
}

func (p *Pipeline) acquire() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active {
		return types.NewError(types.ErrRunActive, "an attempt is already active on this thread")
	}
	p.active = true
	return nil
}

func (p *Pipeline) release() {
	p.mu.Lock()
	p.active = false
	p.mu.Unlock()
}

func (p *Pipeline) settle(outcome *graph.Outcome) *Result {
	res := &Result{Steps: outcome.Steps}
	if outcome.Interrupted {
		req := outcome.Interrupt.Payload.(*ApprovalRequest)
		p.mu.Lock()
		p.interrupt = req
		p.resumeNode = outcome.Node
		p.mu.Unlock()
		res.Interrupted = true
		res.Interrupt = req
		return res
	}
	res.FinalAnswer = p.finalAnswer.Get()
	res.Messages = p.messages.Get()
	return res
}

func (p *Pipeline) nextSeq() int {
	next := p.seq.Get() + 1
	p.seq.Set(next)
	return next
}

func (p *Pipeline) newInterruptID() string {
	return uuid.NewString()
}
