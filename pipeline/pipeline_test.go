package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentcore/budget"
	"github.com/BaSui01/agentcore/graph"
	"github.com/BaSui01/agentcore/llm"
	"github.com/BaSui01/agentcore/store"
	"github.com/BaSui01/agentcore/testutil/mocks"
	"github.com/BaSui01/agentcore/tools"
	"github.com/BaSui01/agentcore/types"
)

// eventRecorder captures emitted events; spawned tasks emit
// concurrently, so access is guarded.
type eventRecorder struct {
	mu     sync.Mutex
	events []graph.Event
}

func (r *eventRecorder) Emit(e graph.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) ofType(eventType string) []graph.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []graph.Event
	for _, e := range r.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

type fixture struct {
	pipeline *Pipeline
	client   *mocks.ScriptedClient
	external *mocks.ToolRegistry
	events   *eventRecorder
}

func newFixture(t *testing.T, cfg Config, external *mocks.ToolRegistry) *fixture {
	t.Helper()
	client := mocks.NewScriptedClient("mock")
	events := &eventRecorder{}

	mgr := budget.NewManager(budget.DefaultConfig(), nil, store.NewMemoryContentStore(), nil)
	builtins := tools.NewBuiltins(tools.BuiltinConfig{WorkDir: t.TempDir()}, nil)

	deps := Deps{
		Client:       client,
		Budget:       mgr,
		Builtins:     builtins,
		Checkpointer: graph.NewMemoryCheckpointer(0),
		Emit:         events.Emit,
		Logger:       nil,
	}
	if external != nil {
		deps.External = external
	}
	return &fixture{
		pipeline: New(cfg, deps, "thread-1"),
		client:   client,
		external: external,
		events:   events,
	}
}

func TestRunListFilesEndToEnd(t *testing.T) {
	external := mocks.NewToolRegistry().
		WithTool("ls", "list files", "main.go\ngo.mod")
	f := newFixture(t, DefaultConfig(), external)

	f.client.
		ExpectToolCall("call_1", "ls", `{}`).
		Expect(mocks.StreamScript{
			Tokens: []string{"two ", "files"},
			Final:  &llm.ChatResponse{Content: "two files"},
		})

	res, err := f.pipeline.Run(context.Background(), "list files")
	require.NoError(t, err)
	assert.False(t, res.Interrupted)
	assert.Equal(t, "two files", res.FinalAnswer)

	var assistantsWithCalls, toolResults, finalAssistants int
	for _, msg := range res.Messages {
		switch {
		case msg.Role == types.RoleAssistant && len(msg.ToolCalls) == 1:
			assistantsWithCalls++
		case msg.Role == types.RoleTool:
			toolResults++
			assert.Equal(t, "call_1", msg.ToolCallID)
			assert.Equal(t, "main.go\ngo.mod", msg.Content)
		case msg.Role == types.RoleAssistant:
			finalAssistants++
			assert.Empty(t, msg.ToolCalls)
		}
	}
	assert.Equal(t, 1, assistantsWithCalls)
	assert.Equal(t, 1, toolResults)
	assert.Equal(t, 1, finalAssistants)

	deltas := f.events.ofType(EventAssistantDelta)
	require.Len(t, deltas, 2)
	assert.Equal(t, "two ", deltas[0].Data.(DeltaPayload).Delta)
}

func TestMalformedStreamFailsBeforeAppend(t *testing.T) {
	f := newFixture(t, DefaultConfig(), nil)
	f.client.Expect(mocks.StreamScript{
		Chunks: []llm.StreamChunk{
			{Token: "a"},
			{Final: &llm.ChatResponse{Content: "done"}},
			{Token: "late"},
		},
	})

	_, err := f.pipeline.Run(context.Background(), "hello")
	require.Error(t, err)
	assert.Equal(t, types.ErrStreamProtocol, types.GetErrorCode(err))

	for _, msg := range f.pipeline.Messages() {
		assert.NotEqual(t, types.RoleAssistant, msg.Role,
			"no assistant message appended on protocol violation")
	}
}

func TestDispatchOrderIsDeterministic(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Approval = ApprovalPolicy{Mode: ApprovalAlways}
	f := newFixture(t, cfg, mocks.NewToolRegistry().
		WithTool("a", "tool a", "ra").
		WithTool("b", "tool b", "rb"))

	f.client.Expect(mocks.StreamScript{
		Final: &llm.ChatResponse{ToolCalls: []types.ToolCall{
			{ID: "2", Name: "b", Arguments: []byte(`{}`)},
			{ID: "1", Name: "a", Arguments: []byte(`{}`)},
		}},
	})

	res, err := f.pipeline.Run(context.Background(), "go")
	require.NoError(t, err)
	require.True(t, res.Interrupted)
	require.Len(t, res.Interrupt.Calls, 2)
	assert.Equal(t, "a", res.Interrupt.Calls[0].Name)
	assert.Equal(t, "1", res.Interrupt.Calls[0].ID)
	assert.Equal(t, "b", res.Interrupt.Calls[1].Name)
	assert.Equal(t, "2", res.Interrupt.Calls[1].ID)
}

func TestApproveExecutesBatch(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Approval = ApprovalPolicy{Mode: ApprovalAlways}
	external := mocks.NewToolRegistry().
		WithTool("a", "tool a", "result a").
		WithTool("b", "tool b", "result b")
	f := newFixture(t, cfg, external)

	f.client.
		Expect(mocks.StreamScript{
			Final: &llm.ChatResponse{ToolCalls: []types.ToolCall{
				{ID: "2", Name: "b", Arguments: []byte(`{}`)},
				{ID: "1", Name: "a", Arguments: []byte(`{}`)},
			}},
		}).
		ExpectAnswer("both ran")

	res, err := f.pipeline.Run(context.Background(), "go")
	require.NoError(t, err)
	require.True(t, res.Interrupted)

	res, err = f.pipeline.Resume(context.Background(), res.Interrupt.InterruptID, types.DecisionApproved)
	require.NoError(t, err)
	assert.False(t, res.Interrupted)
	assert.Equal(t, "both ran", res.FinalAnswer)
	assert.Len(t, external.Calls, 2)

	requests := f.events.ofType(EventToolRequest)
	require.Len(t, requests, 2)
	assert.Equal(t, "a", requests[0].Data.(ToolRequestPayload).ToolName)
	assert.Equal(t, "b", requests[1].Data.(ToolRequestPayload).ToolName)
}

func TestRejectCancelsBatch(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Approval = ApprovalPolicy{Mode: ApprovalAlways}
	external := mocks.NewToolRegistry().WithTool("a", "tool a", "never seen")
	f := newFixture(t, cfg, external)

	f.client.
		ExpectToolCall("call_1", "a", `{}`).
		ExpectAnswer("carrying on without the tool")

	res, err := f.pipeline.Run(context.Background(), "go")
	require.NoError(t, err)
	require.True(t, res.Interrupted)

	res, err = f.pipeline.Resume(context.Background(), res.Interrupt.InterruptID, types.DecisionRejected)
	require.NoError(t, err)
	assert.Equal(t, "carrying on without the tool", res.FinalAnswer)
	assert.Empty(t, external.Calls, "rejected batch never executes")

	var sawCancellation bool
	for _, msg := range res.Messages {
		if msg.Role == types.RoleTool && msg.ToolCallID == "call_1" {
			sawCancellation = true
			assert.Contains(t, msg.Content, "rejected")
		}
	}
	assert.True(t, sawCancellation)

	denied := f.events.ofType(EventToolDenied)
	require.Len(t, denied, 1)
	assert.Equal(t, "call_1", denied[0].Data.(ToolDeniedPayload).ToolCallID)
}

func TestResumeTwiceFails(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Approval = ApprovalPolicy{Mode: ApprovalAlways}
	f := newFixture(t, cfg, mocks.NewToolRegistry().WithTool("a", "tool a", "ra"))

	f.client.
		ExpectToolCall("call_1", "a", `{}`).
		ExpectAnswer("done")

	res, err := f.pipeline.Run(context.Background(), "go")
	require.NoError(t, err)
	require.True(t, res.Interrupted)
	id := res.Interrupt.InterruptID

	_, err = f.pipeline.Resume(context.Background(), id, types.DecisionApproved)
	require.NoError(t, err)

	_, err = f.pipeline.Resume(context.Background(), id, types.DecisionApproved)
	require.Error(t, err)
	assert.Equal(t, types.ErrNoInterrupt, types.GetErrorCode(err))
}

func TestResumeWithoutInterruptFails(t *testing.T) {
	f := newFixture(t, DefaultConfig(), nil)
	_, err := f.pipeline.Resume(context.Background(), "bogus", types.DecisionApproved)
	require.Error(t, err)
	assert.Equal(t, types.ErrNoInterrupt, types.GetErrorCode(err))
}

func TestAllowListPolicy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Approval = ApprovalPolicy{Mode: ApprovalAllowList, AllowList: []string{"a"}}
	external := mocks.NewToolRegistry().WithTool("a", "tool a", "ra")
	f := newFixture(t, cfg, external)

	f.client.
		ExpectToolCall("call_1", "a", `{}`).
		ExpectAnswer("done")

	res, err := f.pipeline.Run(context.Background(), "go")
	require.NoError(t, err)
	assert.False(t, res.Interrupted, "allow-listed tool runs without approval")
	assert.Len(t, external.Calls, 1)
}

func TestToolFailureBecomesErrorResult(t *testing.T) {
	external := mocks.NewToolRegistry().
		WithFailingTool("broken", errors.New("disk on fire"))
	f := newFixture(t, DefaultConfig(), external)

	f.client.
		ExpectToolCall("call_1", "broken", `{}`).
		ExpectAnswer("noted")

	res, err := f.pipeline.Run(context.Background(), "go")
	require.NoError(t, err, "tool failures never fail the run")

	var result types.Message
	for _, msg := range res.Messages {
		if msg.Role == types.RoleTool {
			result = msg
		}
	}
	assert.True(t, strings.HasPrefix(result.Content, "Error:"))
	assert.Contains(t, result.Content, "disk on fire")

	results := f.events.ofType(EventToolResult)
	require.Len(t, results, 1)
	assert.False(t, results[0].Data.(ToolResultPayload).Success)
}

func TestUnknownToolWithoutRegistry(t *testing.T) {
	f := newFixture(t, DefaultConfig(), nil)

	f.client.
		ExpectToolCall("call_1", "mystery", `{}`).
		ExpectAnswer("noted")

	res, err := f.pipeline.Run(context.Background(), "go")
	require.NoError(t, err)

	var result types.Message
	for _, msg := range res.Messages {
		if msg.Role == types.RoleTool {
			result = msg
		}
	}
	assert.Contains(t, result.Content, "Error: no tool registry available")
}

func TestBudgetFailureBeforeNetworkCall(t *testing.T) {
	client := mocks.NewScriptedClient("mock")
	cfg := budget.DefaultConfig()
	cfg.HardRequestCeiling = 100

	external := mocks.NewToolRegistry().
		WithTool("verbose", strings.Repeat("long description ", 40), "r")

	deps := Deps{
		Client:   client,
		Budget:   budget.NewManager(cfg, nil, store.NewMemoryContentStore(), nil),
		Builtins: tools.NewBuiltins(tools.BuiltinConfig{WorkDir: t.TempDir()}, nil),
		External: external,
	}
	p := New(DefaultConfig(), deps, "thread-1")

	_, err := p.Run(context.Background(), "hello")
	require.Error(t, err)

	var berr *types.BudgetError
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, 100, berr.Limit)
	assert.Equal(t, 0, client.CallCount(), "budget failure precedes any network call")
}

func TestRunWhileActiveRejected(t *testing.T) {
	f := newFixture(t, DefaultConfig(), nil)

	f.client.ExpectAnswer("ok")

	// Hold the attempt slot as an in-flight run would.
	require.NoError(t, f.pipeline.acquire())
	_, err := f.pipeline.Run(context.Background(), "second")
	assert.Equal(t, types.ErrRunActive, types.GetErrorCode(err))
	f.pipeline.release()

	_, err = f.pipeline.Run(context.Background(), "first")
	require.NoError(t, err)
}
