package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/agentcore/graph"
	"github.com/BaSui01/agentcore/pipeline"
	"github.com/BaSui01/agentcore/types"
)

// PipelineFactory builds the pipeline for one conversation thread with
// the session's event observer attached.
type PipelineFactory func(threadID string, emit graph.EmitFunc) *pipeline.Pipeline

// RunResult is the outcome of one StartRun or ResumeRun attempt.
type RunResult struct {
	RunID       string
	Phase       types.RunPhase
	FinalAnswer string
	Interrupt   *pipeline.ApprovalRequest
}

// Session orchestrates runs over execution pipelines, one pipeline per
// conversation thread, persisting run state and the event log.
type Session struct {
	id      string
	factory PipelineFactory
	store   *Store
	logger  *zap.Logger

	mu        sync.Mutex
	pipelines map[string]*pipeline.Pipeline
	observers map[string]*threadObserver
	runs      map[string]*runHandle
}

// threadObserver retargets a thread's runtime events at the run attempt
// currently executing on it. Pipelines outlive runs, so the observer is
// the stable emit target handed to the factory.
type threadObserver struct {
	mu sync.Mutex
	h  *runHandle
}

func (o *threadObserver) attach(h *runHandle) {
	o.mu.Lock()
	o.h = h
	o.mu.Unlock()
}

func (o *threadObserver) emit(e graph.Event) {
	o.mu.Lock()
	h := o.h
	o.mu.Unlock()
	if h != nil {
		h.emitRuntime(e)
	}
}

// runHandle is the in-memory side of one run. Event emission happens
// from concurrently spawned tool tasks, so the sequence is guarded.
type runHandle struct {
	session  *Session
	pipeline *pipeline.Pipeline

	mu    sync.Mutex
	state *types.RunState

	cancel      context.CancelFunc
	interruptID string
}

// New creates a session. A generated id is used when id is empty.
func New(id string, factory PipelineFactory, store *Store, logger *zap.Logger) *Session {
	if id == "" {
		id = uuid.NewString()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		id:        id,
		factory:   factory,
		store:     store,
		logger:    logger.With(zap.String("component", "session"), zap.String("session_id", id)),
		pipelines: make(map[string]*pipeline.Pipeline),
		observers: make(map[string]*threadObserver),
		runs:      make(map[string]*runHandle),
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// StartRun begins a run on the given thread. Only one attempt may be
// active per thread; a second start is rejected, not queued.
func (s *Session) StartRun(ctx context.Context, threadID, input string) (*RunResult, error) {
	s.mu.Lock()
	for _, h := range s.runs {
		h.mu.Lock()
		active := h.state.ThreadID == threadID && h.state.Phase == types.PhaseRunning
		h.mu.Unlock()
		if active {
			s.mu.Unlock()
			return nil, types.NewError(types.ErrRunActive, "a run is already active on thread "+threadID)
		}
	}

	h := &runHandle{
		session: s,
		state: &types.RunState{
			RunID:     uuid.NewString(),
			SessionID: s.id,
			ThreadID:  threadID,
			Phase:     types.PhaseRunning,
		},
	}
	p, ok := s.pipelines[threadID]
	if !ok {
		observer := &threadObserver{}
		p = s.factory(threadID, observer.emit)
		s.pipelines[threadID] = p
		s.observers[threadID] = observer
	}
	s.observers[threadID].attach(h)
	h.pipeline = p
	s.runs[h.state.RunID] = h
	s.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	h.mu.Lock()
	h.cancel = cancel
	h.mu.Unlock()
	defer cancel()

	h.emit(EventRunStarted, RunStartedPayload{ThreadID: threadID, Input: input})
	s.saveRun(h)

	res, err := p.Run(runCtx, input)
	return s.settle(h, res, err)
}

// ResumeRun consumes the run's outstanding interrupt with an approval
// decision. Resuming a run that is not interrupted, or with a stale
// interrupt id, is a caller error.
func (s *Session) ResumeRun(ctx context.Context, runID, interruptID string, decision types.ApprovalDecision) (*RunResult, error) {
	h, err := s.handle(runID)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	if h.state.Phase != types.PhaseInterrupted || h.interruptID != interruptID {
		h.mu.Unlock()
		return nil, types.NewError(types.ErrNoInterrupt, "no interrupted run")
	}
	h.state.Phase = types.PhaseRunning
	h.interruptID = ""
	h.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	h.mu.Lock()
	h.cancel = cancel
	h.mu.Unlock()
	defer cancel()

	s.mu.Lock()
	if observer, ok := s.observers[h.state.ThreadID]; ok {
		observer.attach(h)
	}
	s.mu.Unlock()

	h.emit(EventRunResumed, RunResumedPayload{InterruptID: interruptID, Decision: decision})
	s.saveRun(h)

	res, err := h.pipeline.Resume(runCtx, interruptID, decision)
	return s.settle(h, res, err)
}

// StopRun cancels a run externally: the in-flight attempt is cancelled,
// any outstanding interrupt is cleared, and the run lands in the
// terminal cancelled phase. A partial answer, if any, is surfaced.
func (s *Session) StopRun(runID string) (*RunResult, error) {
	h, err := s.handle(runID)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	if h.state.Phase.Terminal() {
		phase := h.state.Phase
		h.mu.Unlock()
		return &RunResult{RunID: runID, Phase: phase}, nil
	}
	wasRunning := h.state.Phase == types.PhaseRunning
	h.state.Phase = types.PhaseCancelled
	h.interruptID = ""
	cancel := h.cancel
	h.mu.Unlock()

	if wasRunning && cancel != nil {
		cancel()
	}
	h.pipeline.ClearInterrupt()

	partial := h.pipeline.FinalAnswer()
	h.emit(EventRunCancelled, RunCancelledPayload{Reason: "stopped", PartialAnswer: partial})
	s.saveRun(h)

	return &RunResult{RunID: runID, Phase: types.PhaseCancelled, FinalAnswer: partial}, nil
}

// Run returns the persisted snapshot of one run.
func (s *Session) Run(runID string) (*types.RunState, error) {
	return s.store.GetRun(runID)
}

// Events replays the run's envelope log in sequence order.
func (s *Session) Events(runID string) ([]Envelope, error) {
	return s.store.EventsForRun(runID)
}

func (s *Session) handle(runID string) (*runHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.runs[runID]
	if !ok {
		return nil, types.NewError(types.ErrRunNotFound, "run not found: "+runID)
	}
	return h, nil
}

// settle translates a pipeline outcome into run-state transitions and
// protocol events.
func (s *Session) settle(h *runHandle, res *pipeline.Result, err error) (*RunResult, error) {
	if err != nil {
		h.mu.Lock()
		if h.state.Phase.Terminal() {
			// StopRun already settled this attempt.
			phase := h.state.Phase
			h.mu.Unlock()
			return &RunResult{RunID: h.state.RunID, Phase: phase, FinalAnswer: h.pipeline.FinalAnswer()}, nil
		}
		h.state.Phase = types.PhaseCancelled
		h.mu.Unlock()

		reason := err.Error()
		if errors.Is(err, context.Canceled) {
			reason = "stopped"
		}
		h.emit(EventRunCancelled, RunCancelledPayload{Reason: reason, PartialAnswer: h.pipeline.FinalAnswer()})
		s.saveRun(h)
		return nil, err
	}

	if res.Interrupted {
		h.mu.Lock()
		h.state.Phase = types.PhaseInterrupted
		h.interruptID = res.Interrupt.InterruptID
		h.mu.Unlock()

		h.emit(EventRunInterrupted, RunInterruptedPayload{
			InterruptID: res.Interrupt.InterruptID,
			ToolCalls:   res.Interrupt.Calls,
		})
		s.saveRun(h)
		return &RunResult{RunID: h.state.RunID, Phase: types.PhaseInterrupted, Interrupt: res.Interrupt}, nil
	}

	h.mu.Lock()
	h.state.Phase = types.PhaseFinished
	h.mu.Unlock()

	h.emit(EventRunFinished, RunFinishedPayload{FinalAnswer: res.FinalAnswer})
	s.saveRun(h)
	return &RunResult{RunID: h.state.RunID, Phase: types.PhaseFinished, FinalAnswer: res.FinalAnswer}, nil
}

func (s *Session) saveRun(h *runHandle) {
	h.mu.Lock()
	snapshot := *h.state
	h.mu.Unlock()
	if s.store == nil {
		return
	}
	if err := s.store.SaveRun(&snapshot, s.id); err != nil {
		s.logger.Error("persist run state", zap.String("run_id", snapshot.RunID), zap.Error(err))
	}
}

// emit appends one envelope with the next sequence number.
func (h *runHandle) emit(eventType EventType, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		h.session.logger.Error("marshal event payload", zap.Error(err))
		return
	}

	h.mu.Lock()
	h.state.EventSequence++
	env := &Envelope{
		ProtocolVersion: ProtocolVersion,
		EventType:       eventType,
		Sequence:        h.state.EventSequence,
		Timestamp:       time.Now(),
		RunID:           h.state.RunID,
		SessionID:       h.state.SessionID,
		Payload:         data,
	}
	h.mu.Unlock()

	if h.session.store != nil {
		if err := h.session.store.AppendEvent(env); err != nil {
			h.session.logger.Error("persist event", zap.Error(err))
		}
	}
}

// emitRuntime maps low-level runtime events onto protocol envelopes.
// The mapping is one-to-one; unknown runtime event types are dropped so
// internal event evolution cannot leak into the stable protocol.
func (h *runHandle) emitRuntime(e graph.Event) {
	switch e.Type {
	case pipeline.EventAssistantDelta:
		h.emit(EventAssistantDelta, e.Data)
	case pipeline.EventToolRequest:
		h.emit(EventToolRequest, e.Data)
	case pipeline.EventToolResult:
		h.emit(EventToolResult, e.Data)
	case pipeline.EventToolDenied:
		h.emit(EventToolDenied, e.Data)
	}
}
