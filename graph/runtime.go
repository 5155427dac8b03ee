package graph

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Event is a structured runtime event emitted by a node during a step.
type Event struct {
	Type string
	Data any
}

// EmitFunc receives runtime events in emission order.
type EmitFunc func(Event)

// InterruptRequest parks the run until an external decision arrives.
type InterruptRequest struct {
	Payload any
}

// SpawnRequest fans one step out into N parallel sub-tasks with
// isolated per-task local state. Outputs are collected in input order
// and applied atomically as one combined batch by Collect.
type SpawnRequest struct {
	Node    string
	Inputs  []any
	Then    string
	Collect func(ctx context.Context, outs []any) error
}

// Transition is a node's verdict on where execution goes next.
type Transition struct {
	Next      string
	End       bool
	Interrupt *InterruptRequest
	Spawn     *SpawnRequest
}

// Task is the per-invocation context handed to a node. Spawned tasks
// receive an isolated Local input and publish exactly one output; they
// never observe each other's state.
type Task struct {
	Store    *Store
	ThreadID string
	Step     int

	// Local is the isolated input of a spawned task, nil otherwise.
	Local any

	// Decision carries the resume decision when a node is re-entered
	// after an interrupt, nil otherwise.
	Decision any

	emit EmitFunc
	out  any
}

// Emit publishes a structured event to the run's observer.
func (t *Task) Emit(e Event) {
	if t.emit != nil {
		t.emit(e)
	}
}

// SetOutput publishes the task's single output for batch collection.
func (t *Task) SetOutput(v any) { t.out = v }

// NodeFunc executes one step.
type NodeFunc func(ctx context.Context, t *Task) (Transition, error)

// Graph is a fixed node graph with a designated entry node.
type Graph struct {
	entry string
	nodes map[string]NodeFunc
}

// NewGraph creates a graph entered at the given node.
func NewGraph(entry string) *Graph {
	return &Graph{entry: entry, nodes: make(map[string]NodeFunc)}
}

// AddNode registers a node.
func (g *Graph) AddNode(name string, fn NodeFunc) *Graph {
	g.nodes[name] = fn
	return g
}

// Outcome reports how one execution attempt ended.
type Outcome struct {
	// Interrupted is set when a node parked the run; Node is the node to
	// resume at.
	Interrupted bool
	Interrupt   *InterruptRequest
	Node        string

	Steps int
}

// RuntimeOption configures a Runtime.
type RuntimeOption func(*Runtime)

// WithEmit routes node events to the given observer.
func WithEmit(emit EmitFunc) RuntimeOption {
	return func(r *Runtime) { r.emit = emit }
}

// WithMaxSteps overrides the runaway-loop guard.
func WithMaxSteps(n int) RuntimeOption {
	return func(r *Runtime) { r.maxSteps = n }
}

// WithLogger sets the runtime logger.
func WithLogger(logger *zap.Logger) RuntimeOption {
	return func(r *Runtime) { r.logger = logger }
}

// Runtime drives one thread's graph execution over a channel store,
// checkpointing the store after every step.
type Runtime struct {
	graph        *Graph
	store        *Store
	checkpointer Checkpointer
	threadID     string
	emit         EmitFunc
	logger       *zap.Logger
	maxSteps     int
	step         int
}

// NewRuntime creates a runtime for one conversation thread.
func NewRuntime(g *Graph, store *Store, cp Checkpointer, threadID string, opts ...RuntimeOption) *Runtime {
	r := &Runtime{
		graph:        g,
		store:        store,
		checkpointer: cp,
		threadID:     threadID,
		logger:       zap.NewNop(),
		maxSteps:     256,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RestoreLatest loads the thread's most recent checkpoint into the
// store. ErrCheckpointNotFound means a fresh thread.
func (r *Runtime) RestoreLatest(ctx context.Context) error {
	cp, err := r.checkpointer.GetLatest(ctx, r.threadID)
	if err != nil {
		return err
	}
	r.step = cp.Step
	return r.store.Restore(cp.State)
}

// Execute runs from the entry node until a node ends the run or parks
// it with an interrupt.
func (r *Runtime) Execute(ctx context.Context) (*Outcome, error) {
	return r.run(ctx, r.graph.entry, nil)
}

// ResumeAt re-enters the given node with the decision attached, which
// is how an interrupting node observes the outcome of its interrupt.
func (r *Runtime) ResumeAt(ctx context.Context, node string, decision any) (*Outcome, error) {
	return r.run(ctx, node, decision)
}

func (r *Runtime) run(ctx context.Context, start string, decision any) (*Outcome, error) {
	current := start
	outcome := &Outcome{}

	for steps := 0; ; steps++ {
		if steps >= r.maxSteps {
			return nil, fmt.Errorf("graph exceeded %d steps without terminating", r.maxSteps)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		fn, ok := r.graph.nodes[current]
		if !ok {
			return nil, fmt.Errorf("unknown graph node: %s", current)
		}

		r.step++
		outcome.Steps++
		task := &Task{
			Store:    r.store,
			ThreadID: r.threadID,
			Step:     r.step,
			Decision: decision,
			emit:     r.emit,
		}
		decision = nil // only the first node after a resume sees it

		r.logger.Debug("node step",
			zap.String("node", current),
			zap.Int("step", r.step))

		tr, err := fn(ctx, task)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", current, err)
		}

		if err := r.checkpoint(ctx, current); err != nil {
			return nil, err
		}

		switch {
		case tr.Interrupt != nil:
			outcome.Interrupted = true
			outcome.Interrupt = tr.Interrupt
			outcome.Node = current
			return outcome, nil
		case tr.Spawn != nil:
			if err := r.spawn(ctx, tr.Spawn); err != nil {
				return nil, err
			}
			current = tr.Spawn.Then
		case tr.End:
			return outcome, nil
		default:
			current = tr.Next
		}
	}
}

// spawn runs N isolated sub-tasks in parallel and applies their
// collected outputs as one combined batch.
func (r *Runtime) spawn(ctx context.Context, req *SpawnRequest) error {
	fn, ok := r.graph.nodes[req.Node]
	if !ok {
		return fmt.Errorf("unknown spawn node: %s", req.Node)
	}

	outs := make([]any, len(req.Inputs))
	g, gctx := errgroup.WithContext(ctx)
	for i, input := range req.Inputs {
		task := &Task{
			Store:    r.store,
			ThreadID: r.threadID,
			Step:     r.step,
			Local:    input,
			emit:     r.emit,
		}
		g.Go(func() error {
			if _, err := fn(gctx, task); err != nil {
				return fmt.Errorf("spawned %s[%d]: %w", req.Node, i, err)
			}
			outs[i] = task.out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if req.Collect != nil {
		if err := req.Collect(ctx, outs); err != nil {
			return err
		}
	}
	return r.checkpoint(ctx, req.Node)
}

func (r *Runtime) checkpoint(ctx context.Context, node string) error {
	if r.checkpointer == nil {
		return nil
	}
	state, err := r.store.Snapshot()
	if err != nil {
		return err
	}
	return r.checkpointer.Put(ctx, &Checkpoint{
		ThreadID: r.threadID,
		Step:     r.step,
		NodeID:   node,
		State:    state,
	})
}
