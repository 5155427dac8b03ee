package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/agentcore/graph"
	"github.com/BaSui01/agentcore/llm"
	"github.com/BaSui01/agentcore/msglog"
	"github.com/BaSui01/agentcore/types"
)

// preProcess repairs dangling tool calls, summarizes and compacts the
// log, then replaces it atomically through the reducer.
func (p *Pipeline) preProcess(ctx context.Context, task *graph.Task) (graph.Transition, error) {
	log := p.messages.Get()

	repaired := p.deps.Budget.RepairDanglingCalls(log)
	summarized, err := p.deps.Budget.Summarize(ctx, p.threadID, repaired)
	if err != nil {
		return graph.Transition{}, err
	}
	compacted, err := p.deps.Budget.Compact(summarized)
	if err != nil {
		return graph.Transition{}, err
	}

	writes := make([]types.Message, 0, len(compacted)+1)
	writes = append(writes, types.RemoveAllMessage())
	writes = append(writes, compacted...)
	if _, err := p.messages.Update(writes); err != nil {
		return graph.Transition{}, err
	}
	return graph.Transition{Next: nodeModelCall}, nil
}

// modelCall builds the request under the budget plan, streams the model
// response enforcing the single-final protocol, and appends the
// assistant message. Nothing is appended when the stream is malformed.
func (p *Pipeline) modelCall(ctx context.Context, task *graph.Task) (graph.Transition, error) {
	defs := p.toolDefs()
	system := types.NewSystemMessage(
		msglog.MessageID(types.RoleSystem, p.threadID, 0),
		p.buildSystemPrompt(defs),
	)

	plan, err := p.deps.Budget.BuildRequest(system, p.messages.Get(), defs)
	if err != nil {
		return graph.Transition{}, err
	}

	req := &llm.ChatRequest{
		Model:       p.cfg.Model,
		Messages:    append([]types.Message{plan.System}, plan.Messages...),
		Tools:       defs,
		MaxTokens:   p.cfg.MaxTokens,
		Temperature: p.cfg.Temperature,
	}

	ch, err := p.stream(ctx, req)
	if err != nil {
		return graph.Transition{}, err
	}
	final, err := llm.Drain(ch, func(token string) {
		task.Emit(graph.Event{Type: EventAssistantDelta, Data: DeltaPayload{Delta: token}})
	})
	if err != nil {
		return graph.Transition{}, err
	}

	seq := p.nextSeq()
	assistant := types.NewAssistantMessage(
		msglog.MessageID(types.RoleAssistant, p.threadID, seq),
		final.Content,
	).WithToolCalls(final.ToolCalls)
	if _, err := p.messages.Update([]types.Message{assistant}); err != nil {
		return graph.Transition{}, err
	}

	if len(final.ToolCalls) == 0 {
		p.pending.Set(nil)
		p.finalAnswer.Set(final.Content)
	} else {
		p.pending.Set(final.ToolCalls)
	}
	return graph.Transition{Next: nodeRoute}, nil
}

// route ends the turn when no tool calls are pending.
func (p *Pipeline) route(ctx context.Context, task *graph.Task) (graph.Transition, error) {
	if len(p.pending.Get()) > 0 {
		return graph.Transition{Next: nodeToolDispatch}, nil
	}
	return graph.Transition{End: true}, nil
}

// toolDispatch sorts the pending batch, gates it on the approval
// policy, and either parks for a decision, cancels it, or fans it out
// into parallel tool-execute tasks.
func (p *Pipeline) toolDispatch(ctx context.Context, task *graph.Task) (graph.Transition, error) {
	calls := sortCalls(p.pending.Get())
	if len(calls) == 0 {
		return graph.Transition{End: true}, nil
	}

	names := make([]string, len(calls))
	for i, call := range calls {
		names[i] = call.Name
	}

	decision, decided := task.Decision.(types.ApprovalDecision)
	if !decided && p.cfg.Approval.Requires(names) {
		req := &ApprovalRequest{InterruptID: p.newInterruptID(), Calls: calls}
		p.logger.Info("awaiting tool approval",
			zap.String("interrupt_id", req.InterruptID),
			zap.Strings("tools", names))
		return graph.Transition{Interrupt: &graph.InterruptRequest{Payload: req}}, nil
	}

	if decided && decision == types.DecisionRejected {
		return p.rejectBatch(task, calls)
	}

	for _, call := range calls {
		task.Emit(graph.Event{Type: EventToolRequest, Data: ToolRequestPayload{
			ToolCallID:    call.ID,
			ToolName:      call.Name,
			ArgumentsJSON: string(call.Arguments),
		}})
	}
	p.pending.Set(nil)

	inputs := make([]any, len(calls))
	for i, call := range calls {
		inputs[i] = call
	}
	return graph.Transition{Spawn: &graph.SpawnRequest{
		Node:   nodeToolExecute,
		Inputs: inputs,
		Then:   nodePreProcess,
		Collect: func(ctx context.Context, outs []any) error {
			writes := make([]types.Message, 0, len(outs))
			for _, out := range outs {
				writes = append(writes, out.(types.Message))
			}
			_, err := p.messages.Update(writes)
			return err
		},
	}}, nil
}

// rejectBatch synthesizes cancellation results for every call and
// routes back to pre-process without executing anything.
func (p *Pipeline) rejectBatch(task *graph.Task, calls []types.ToolCall) (graph.Transition, error) {
	const reason = "rejected by the user"

	writes := make([]types.Message, 0, len(calls)+1)
	writes = append(writes, types.NewSystemMessage(
		msglog.MessageID(types.RoleSystem, p.threadID, p.nextSeq()),
		"The user rejected the requested tool calls. Do not retry them; continue without their results.",
	))
	for _, call := range calls {
		task.Emit(graph.Event{Type: EventToolDenied, Data: ToolDeniedPayload{
			ToolCallID: call.ID,
			ToolName:   call.Name,
			Reason:     reason,
		}})
		writes = append(writes, types.NewToolMessage(
			msglog.ToolResultID(call.ID),
			call.ID,
			call.Name,
			"Tool call "+reason+".",
		))
	}
	if _, err := p.messages.Update(writes); err != nil {
		return graph.Transition{}, err
	}
	p.pending.Set(nil)
	return graph.Transition{Next: nodePreProcess}, nil
}

// toolExecute runs one spawned call. Failures never propagate past this
// boundary; they become Error:-prefixed tool-result content.
func (p *Pipeline) toolExecute(ctx context.Context, task *graph.Task) (graph.Transition, error) {
	call := task.Local.(types.ToolCall)

	content, err := p.invoke(ctx, call)
	success := err == nil
	if err != nil {
		content = "Error: " + err.Error()
	}

	evicted, evictErr := p.deps.Budget.EvictResult(ctx, call.ID, call.Name, content)
	if evictErr != nil {
		success = false
		evicted = "Error: " + evictErr.Error()
	}

	task.Emit(graph.Event{Type: EventToolResult, Data: ToolResultPayload{
		ToolCallID: call.ID,
		ToolName:   call.Name,
		Success:    success,
	}})

	task.SetOutput(types.NewToolMessage(
		msglog.ToolResultID(call.ID),
		call.ID,
		call.Name,
		evicted,
	))
	return graph.Transition{}, nil
}

// invoke resolves a call: built-in registry first, then the external
// registry, then a deterministic registry-missing failure.
func (p *Pipeline) invoke(ctx context.Context, call types.ToolCall) (string, error) {
	if p.deps.Builtins != nil && p.deps.Builtins.Has(call.Name) {
		return p.deps.Builtins.Invoke(ctx, call)
	}
	if p.deps.External != nil {
		return p.deps.External.Invoke(ctx, call)
	}
	return "", fmt.Errorf("no tool registry available for tool: %s", call.Name)
}

func (p *Pipeline) stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	if p.deps.Router != nil {
		return p.deps.Router.Stream(ctx, req)
	}
	if p.deps.Client != nil {
		return p.deps.Client.Stream(ctx, req)
	}
	return nil, fmt.Errorf("no model client configured")
}

// toolDefs merges built-in and external definitions by name; external
// definitions win on conflict. Output is sorted by name.
func (p *Pipeline) toolDefs() []types.ToolDefinition {
	merged := make(map[string]types.ToolDefinition)
	if p.deps.Builtins != nil {
		for _, def := range p.deps.Builtins.ListTools() {
			merged[def.Name] = def
		}
	}
	if p.deps.External != nil {
		for _, def := range p.deps.External.ListTools() {
			merged[def.Name] = def
		}
	}
	defs := make([]types.ToolDefinition, 0, len(merged))
	for _, def := range merged {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// buildSystemPrompt renders the system prompt, optionally followed by
// the merged tool guide.
func (p *Pipeline) buildSystemPrompt(defs []types.ToolDefinition) string {
	prompt := p.cfg.SystemPrompt
	if prompt == "" {
		prompt = "You are a helpful agent."
	}
	if !p.cfg.ToolGuide || len(defs) == 0 {
		return prompt
	}
	var b strings.Builder
	b.WriteString(prompt)
	b.WriteString("\n\nAvailable tools:\n")
	for _, def := range defs {
		fmt.Fprintf(&b, "- %s: %s\n", def.Name, def.Description)
	}
	return b.String()
}

// sortCalls orders a dispatch batch by (name, id) so approval prompts
// and execution order are reproducible across retries.
func sortCalls(calls []types.ToolCall) []types.ToolCall {
	sorted := append([]types.ToolCall(nil), calls...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Name != sorted[j].Name {
			return sorted[i].Name < sorted[j].Name
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted
}
