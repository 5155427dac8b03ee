package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentcore/budget"
	"github.com/BaSui01/agentcore/graph"
	"github.com/BaSui01/agentcore/llm"
	"github.com/BaSui01/agentcore/pipeline"
	"github.com/BaSui01/agentcore/store"
	"github.com/BaSui01/agentcore/testutil/mocks"
	"github.com/BaSui01/agentcore/tools"
	"github.com/BaSui01/agentcore/types"
)

func newTestSession(t *testing.T, cfg pipeline.Config, client *mocks.ScriptedClient, external *mocks.ToolRegistry) *Session {
	t.Helper()
	st, err := OpenStore(":memory:")
	require.NoError(t, err)

	factory := func(threadID string, emit graph.EmitFunc) *pipeline.Pipeline {
		deps := pipeline.Deps{
			Client:       client,
			Budget:       budget.NewManager(budget.DefaultConfig(), nil, store.NewMemoryContentStore(), nil),
			Builtins:     tools.NewBuiltins(tools.BuiltinConfig{WorkDir: t.TempDir()}, nil),
			Checkpointer: graph.NewMemoryCheckpointer(0),
			Emit:         emit,
		}
		if external != nil {
			deps.External = external
		}
		return pipeline.New(cfg, deps, threadID)
	}
	return New("session-1", factory, st, nil)
}

func eventTypes(envelopes []Envelope) []EventType {
	out := make([]EventType, len(envelopes))
	for i, env := range envelopes {
		out[i] = env.EventType
	}
	return out
}

func TestRunLifecycleEvents(t *testing.T) {
	client := mocks.NewScriptedClient("mock").
		Expect(mocks.StreamScript{
			Tokens: []string{"hi ", "there"},
			Final:  &llm.ChatResponse{Content: "hi there"},
		})
	s := newTestSession(t, pipeline.DefaultConfig(), client, nil)

	res, err := s.StartRun(context.Background(), "thread-1", "hello")
	require.NoError(t, err)
	assert.Equal(t, types.PhaseFinished, res.Phase)
	assert.Equal(t, "hi there", res.FinalAnswer)

	envelopes, err := s.Events(res.RunID)
	require.NoError(t, err)
	assert.Equal(t, []EventType{
		EventRunStarted, EventAssistantDelta, EventAssistantDelta, EventRunFinished,
	}, eventTypes(envelopes))

	for i, env := range envelopes {
		assert.Equal(t, ProtocolVersion, env.ProtocolVersion)
		assert.Equal(t, int64(i+1), env.Sequence, "sequence strictly increases from 1")
		assert.Equal(t, res.RunID, env.RunID)
		assert.Equal(t, "session-1", env.SessionID)
	}

	run, err := s.Run(res.RunID)
	require.NoError(t, err)
	assert.Equal(t, types.PhaseFinished, run.Phase)
	assert.Equal(t, int64(len(envelopes)), run.EventSequence)
}

func TestInterruptResumeLifecycle(t *testing.T) {
	client := mocks.NewScriptedClient("mock").
		ExpectToolCall("call_1", "probe", `{}`).
		Expect(mocks.StreamScript{Final: &llm.ChatResponse{Content: "done"}})
	external := mocks.NewToolRegistry().WithTool("probe", "probes", "probe output")

	cfg := pipeline.DefaultConfig()
	cfg.Approval = pipeline.ApprovalPolicy{Mode: pipeline.ApprovalAlways}
	s := newTestSession(t, cfg, client, external)

	res, err := s.StartRun(context.Background(), "thread-1", "probe it")
	require.NoError(t, err)
	require.Equal(t, types.PhaseInterrupted, res.Phase)
	require.NotNil(t, res.Interrupt)

	run, err := s.Run(res.RunID)
	require.NoError(t, err)
	assert.Equal(t, types.PhaseInterrupted, run.Phase)

	resumed, err := s.ResumeRun(context.Background(), res.RunID, res.Interrupt.InterruptID, types.DecisionApproved)
	require.NoError(t, err)
	assert.Equal(t, types.PhaseFinished, resumed.Phase)
	assert.Equal(t, "done", resumed.FinalAnswer)

	envelopes, err := s.Events(res.RunID)
	require.NoError(t, err)
	typesSeen := eventTypes(envelopes)
	assert.Contains(t, typesSeen, EventRunInterrupted)
	assert.Contains(t, typesSeen, EventRunResumed)
	assert.Contains(t, typesSeen, EventToolRequest)
	assert.Contains(t, typesSeen, EventToolResult)
	assert.Equal(t, EventRunFinished, typesSeen[len(typesSeen)-1])
}

func TestResumeTwiceFails(t *testing.T) {
	client := mocks.NewScriptedClient("mock").
		ExpectToolCall("call_1", "probe", `{}`).
		Expect(mocks.StreamScript{Final: &llm.ChatResponse{Content: "done"}})
	external := mocks.NewToolRegistry().WithTool("probe", "probes", "out")

	cfg := pipeline.DefaultConfig()
	cfg.Approval = pipeline.ApprovalPolicy{Mode: pipeline.ApprovalAlways}
	s := newTestSession(t, cfg, client, external)

	res, err := s.StartRun(context.Background(), "thread-1", "go")
	require.NoError(t, err)
	id := res.Interrupt.InterruptID

	_, err = s.ResumeRun(context.Background(), res.RunID, id, types.DecisionApproved)
	require.NoError(t, err)

	_, err = s.ResumeRun(context.Background(), res.RunID, id, types.DecisionApproved)
	require.Error(t, err)
	assert.Equal(t, types.ErrNoInterrupt, types.GetErrorCode(err))
}

func TestResumeUnknownRun(t *testing.T) {
	s := newTestSession(t, pipeline.DefaultConfig(), mocks.NewScriptedClient("mock"), nil)
	_, err := s.ResumeRun(context.Background(), "missing", "x", types.DecisionApproved)
	require.Error(t, err)
	assert.Equal(t, types.ErrRunNotFound, types.GetErrorCode(err))
}

func TestStopInterruptedRun(t *testing.T) {
	client := mocks.NewScriptedClient("mock").
		ExpectToolCall("call_1", "probe", `{}`)
	external := mocks.NewToolRegistry().WithTool("probe", "probes", "out")

	cfg := pipeline.DefaultConfig()
	cfg.Approval = pipeline.ApprovalPolicy{Mode: pipeline.ApprovalAlways}
	s := newTestSession(t, cfg, client, external)

	res, err := s.StartRun(context.Background(), "thread-1", "go")
	require.NoError(t, err)
	require.Equal(t, types.PhaseInterrupted, res.Phase)
	id := res.Interrupt.InterruptID

	stopped, err := s.StopRun(res.RunID)
	require.NoError(t, err)
	assert.Equal(t, types.PhaseCancelled, stopped.Phase)

	_, err = s.ResumeRun(context.Background(), res.RunID, id, types.DecisionApproved)
	require.Error(t, err, "stopping clears the outstanding interrupt")
	assert.Equal(t, types.ErrNoInterrupt, types.GetErrorCode(err))

	envelopes, err := s.Events(res.RunID)
	require.NoError(t, err)
	typesSeen := eventTypes(envelopes)
	assert.Equal(t, EventRunCancelled, typesSeen[len(typesSeen)-1])
}

func TestStopTerminalRunIsNoop(t *testing.T) {
	client := mocks.NewScriptedClient("mock").ExpectAnswer("done")
	s := newTestSession(t, pipeline.DefaultConfig(), client, nil)

	res, err := s.StartRun(context.Background(), "thread-1", "hi")
	require.NoError(t, err)

	stopped, err := s.StopRun(res.RunID)
	require.NoError(t, err)
	assert.Equal(t, types.PhaseFinished, stopped.Phase)
}

func TestSecondThreadRunsIndependently(t *testing.T) {
	client := mocks.NewScriptedClient("mock").
		ExpectAnswer("answer one").
		ExpectAnswer("answer two")
	s := newTestSession(t, pipeline.DefaultConfig(), client, nil)

	r1, err := s.StartRun(context.Background(), "thread-1", "one")
	require.NoError(t, err)
	r2, err := s.StartRun(context.Background(), "thread-2", "two")
	require.NoError(t, err)

	assert.NotEqual(t, r1.RunID, r2.RunID)
	assert.Equal(t, "answer one", r1.FinalAnswer)
	assert.Equal(t, "answer two", r2.FinalAnswer)
}

func TestModelFailureCancelsRun(t *testing.T) {
	client := mocks.NewScriptedClient("mock").
		Expect(mocks.StreamScript{Err: assert.AnError})
	s := newTestSession(t, pipeline.DefaultConfig(), client, nil)

	res, err := s.StartRun(context.Background(), "thread-1", "hi")
	require.Error(t, err)
	assert.Nil(t, res)
}
