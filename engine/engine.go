// Package engine implements the Conversation Engine (spec.md §4.H), the
// kernel's heart: per-turn state machine, prompt composition, streaming
// generation, and the tool-call / delegation post-processing recursion.
// Grounded on the teacher's runner.Runner turn loop (build prompt, stream,
// recurse on tool results) generalized from a single-agent coding loop into
// a multi-agent one with leader delegation and cross-agent recursion depth
// accounting.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/swarmkernel/bus"
	"github.com/hupe1980/swarmkernel/cancelfab"
	"github.com/hupe1980/swarmkernel/config"
	"github.com/hupe1980/swarmkernel/core"
	"github.com/hupe1980/swarmkernel/dispatch"
	"github.com/hupe1980/swarmkernel/kernelerr"
	"github.com/hupe1980/swarmkernel/logging"
	"github.com/hupe1980/swarmkernel/model"
	"github.com/hupe1980/swarmkernel/parser"
	"github.com/hupe1980/swarmkernel/registry"
	"github.com/hupe1980/swarmkernel/taskqueue"
)

var noopChunk = func(string) {}

// Engine ties the registry, bus, provider adapters, parsers, dispatcher,
// task queue and cancellation fabric into the turn loop.
type Engine struct {
	registry *registry.Registry
	bus      *bus.Bus
	queue    *taskqueue.Queue
	cancel   *cancelfab.Fabric
	cfg      *config.Config
	provider ProviderFactory
	logger   *logging.KernelLogger
}

// New constructs an Engine. logger may be nil, in which case the engine and
// the dispatchers and retry wrappers it builds skip logging.
func New(reg *registry.Registry, b *bus.Bus, q *taskqueue.Queue, cf *cancelfab.Fabric, cfg *config.Config, providerFactory ProviderFactory, logger *logging.KernelLogger) *Engine {
	return &Engine{registry: reg, bus: b, queue: q, cancel: cf, cfg: cfg, provider: providerFactory, logger: logger}
}

// Chat is the external entry point: a fresh, depth-0, plain-provenance turn
// for agentID, registering its own cancellation token for the whole call
// chain this message triggers.
func (e *Engine) Chat(ctx context.Context, agentID, message string, onChunk func(string)) (string, error) {
	return e.beginTurn(ctx, agentID, 0, core.ProvenancePlain, nil, message, onChunk)
}

// Handoff transfers a work context from sourceID to targetID as a fresh turn
// on the target, publishing agent:handoff. Grounded on the pack's
// orchestration Coordinator handoff step, adapted to this kernel's
// message-based turn model instead of a typed task object.
func (e *Engine) Handoff(ctx context.Context, sourceID, targetID, handoffContext string, onChunk func(string)) (string, error) {
	source, err := e.registry.Snapshot(sourceID)
	if err != nil {
		return "", err
	}
	target, err := e.registry.Snapshot(targetID)
	if err != nil {
		return "", err
	}
	e.bus.Publish(core.EventHandoff, core.HandoffPayload{FromID: sourceID, FromName: source.Name, ToID: targetID, ToName: target.Name})

	var transcript strings.Builder
	history := source.History
	if len(history) > 10 {
		history = history[len(history)-10:]
	}
	for _, entry := range history {
		fmt.Fprintf(&transcript, "%s: %s\n", entry.Role, entry.Content)
	}

	message := fmt.Sprintf("[HANDOFF from %s]: %s\n\n%s", source.Name, handoffContext, transcript.String())
	return e.beginTurn(ctx, targetID, 0, core.ProvenanceDelegationTask, core.DelegationTaskPayload{FromName: source.Name}, message, onChunk)
}

// BroadcastResult is one agent's outcome from Broadcast.
type BroadcastResult struct {
	AgentID  string
	Response string
	Error    string
}

// Broadcast sends message to every registered agent as an independent fresh
// turn, run in parallel (one per agent's own task queue lane), and waits
// for all of them.
func (e *Engine) Broadcast(ctx context.Context, message string, onChunk func(string)) []BroadcastResult {
	agents := e.registry.ListSnapshots()
	futures := make([]*taskqueue.Future, 0, len(agents))
	ids := make([]string, 0, len(agents))
	for _, a := range agents {
		agentID := a.ID
		futures = append(futures, e.queue.Enqueue(agentID, func() (interface{}, error) {
			return e.beginTurn(ctx, agentID, 0, core.ProvenancePlain, nil, message, onChunk)
		}))
		ids = append(ids, agentID)
	}
	out := make([]BroadcastResult, len(futures))
	for i, f := range futures {
		res, err := f.Wait()
		out[i] = BroadcastResult{AgentID: ids[i]}
		if err != nil {
			out[i].Error = err.Error()
			continue
		}
		resp, _ := res.(string)
		out[i].Response = resp
	}
	return out
}

// ExecuteTodo runs a single todo item as a fresh turn, completing the todo
// on success.
func (e *Engine) ExecuteTodo(ctx context.Context, agentID, todoID string, onChunk func(string)) (string, error) {
	agent, err := e.registry.Snapshot(agentID)
	if err != nil {
		return "", err
	}
	var text string
	found := false
	for _, t := range agent.Todos {
		if t.ID == todoID {
			text, found = t.Text, true
			break
		}
	}
	if !found {
		return "", kernelerr.New(kernelerr.NotFound, "todo not found")
	}
	message := fmt.Sprintf("[TODO] %s", text)
	resp, err := e.beginTurn(ctx, agentID, 0, core.ProvenancePlain, nil, message, onChunk)
	if err == nil {
		_ = e.registry.CompleteTodo(agentID, todoID)
	}
	return resp, err
}

// ExecuteAllTodos runs every undone todo in order, sequentially.
func (e *Engine) ExecuteAllTodos(ctx context.Context, agentID string, onChunk func(string)) ([]string, error) {
	agent, err := e.registry.Snapshot(agentID)
	if err != nil {
		return nil, err
	}
	var responses []string
	for _, t := range agent.Todos {
		if t.Done {
			continue
		}
		resp, err := e.ExecuteTodo(ctx, agentID, t.ID, onChunk)
		if err != nil {
			return responses, err
		}
		responses = append(responses, resp)
	}
	return responses, nil
}

// Stop requests cancellation of agentID's current outermost turn.
func (e *Engine) Stop(agentID string) { e.cancel.Stop(agentID) }

// Delete tears down an agent's cancellation token, task queue lane, and
// registry record, in that order.
func (e *Engine) Delete(agentID string) error {
	e.cancel.CancelForDelete(agentID)
	e.queue.Teardown(agentID)
	return e.registry.Delete(agentID)
}

// TruncateHistory drops every history entry after afterIndex, exposed here
// so callers don't need a direct registry reference alongside the engine.
func (e *Engine) TruncateHistory(agentID string, afterIndex int) error {
	return e.registry.TruncateHistory(agentID, afterIndex)
}

// ClearHistory empties an agent's history.
func (e *Engine) ClearHistory(agentID string) error {
	return e.registry.ClearHistory(agentID)
}

// beginTurn opens a fresh cancellation token for agentID and runs the turn
// loop under it. Every call that is not an internal same-agent continuation
// (tool-result / delegation-result recursion) goes through here: the
// initial user chat, a delegation target picking up a task, a handoff
// target, a broadcast recipient, a todo execution.
func (e *Engine) beginTurn(ctx context.Context, agentID string, depth int, provenance core.Provenance, payload interface{}, message string, onChunk func(string)) (string, error) {
	if onChunk == nil {
		onChunk = noopChunk
	}
	tok := e.cancel.Begin(ctx, agentID)
	defer e.cancel.End(agentID, tok)

	_ = e.registry.SetStatus(agentID, core.StatusBusy)
	result, err := e.turn(ctx, tok, agentID, depth, provenance, payload, message, onChunk)
	_ = e.registry.SetThinking(agentID, "")

	// spec.md §7: cancellation by the user resolves to idle; any other
	// unhandled turn failure leaves the agent in error status.
	switch {
	case err == nil, errors.Is(err, kernelerr.CancelledByUserErr):
		_ = e.registry.SetStatus(agentID, core.StatusIdle)
	default:
		_ = e.registry.SetStatus(agentID, core.StatusError)
	}
	return result, err
}

// turn implements one pass of the state machine: building→streaming→
// post-processing. Post-processing either recurses (same token, depth+1,
// tool-result or delegation-result provenance) or returns the final answer.
func (e *Engine) turn(ctx context.Context, tok *cancelfab.Token, agentID string, depth int, provenance core.Provenance, payload interface{}, message string, onChunk func(string)) (string, error) {
	if depth > e.cfg.MaxRecursionDepth {
		return "", kernelerr.New(kernelerr.RecursionLimitReached, "recursion depth exceeded")
	}

	agent, err := e.registry.Snapshot(agentID)
	if err != nil {
		return "", err
	}
	roster := e.registry.ListSnapshots()
	messages := composePrompt(agent, roster, depth, message)

	provider, err := e.provider(agent)
	if err != nil {
		_ = e.registry.BumpErrorCount(agentID)
		return "", kernelerr.Wrap(kernelerr.ProviderFatal, "building provider adapter", err)
	}

	e.bus.Publish(core.EventStreamStart, core.StreamPayload{ID: agentID})

	opts := model.Options{Temperature: agent.Temperature, MaxTokens: agent.MaxTokens}
	chunks, errCh := provider.Generate(tok.Context(), messages, opts)

	var fullResponse strings.Builder
	var inputTokens, outputTokens int
	detectedCount := 0
	var futures []pendingDelegation
	canDelegate := agent.Leader && depth < e.cfg.MaxRecursionDepth

streamLoop:
	for {
		select {
		case <-tok.Done():
			break streamLoop
		case chunk, ok := <-chunks:
			if !ok {
				break streamLoop
			}
			if chunk.Delta != "" {
				fullResponse.WriteString(chunk.Delta)
				_ = e.registry.SetThinking(agentID, fullResponse.String())
				e.bus.Publish(core.EventStreamChunk, core.StreamPayload{ID: agentID, Chunk: chunk.Delta})
				onChunk(chunk.Delta)
				if canDelegate {
					e.detectDelegations(&agent, fullResponse.String(), &detectedCount, depth, &futures)
				}
			}
			if chunk.Done && chunk.Usage != nil {
				inputTokens, outputTokens = chunk.Usage.InputTokens, chunk.Usage.OutputTokens
			}
		}
	}

	if tok.Cancelled() {
		return fullResponse.String(), kernelerr.New(kernelerr.CancelledByUser, "turn cancelled")
	}

	if genErr, hasErr := <-errCh; hasErr && genErr != nil {
		if errors.Is(genErr, context.Canceled) || tok.Cancelled() {
			return fullResponse.String(), kernelerr.New(kernelerr.CancelledByUser, "turn cancelled")
		}
		e.bus.Publish(core.EventStreamError, core.StreamPayload{ID: agentID, Error: genErr.Error()})
		_ = e.registry.BumpErrorCount(agentID)
		return fullResponse.String(), kernelerr.Wrap(kernelerr.ProviderFatal, "generation failed", genErr)
	}

	e.bus.Publish(core.EventStreamEnd, core.StreamPayload{ID: agentID})
	if inputTokens != 0 || outputTokens != 0 {
		_ = e.registry.BumpTokenUsage(agentID, inputTokens, outputTokens)
	}

	countsAsMessage := provenance == core.ProvenancePlain || provenance == core.ProvenanceDelegationTask
	now := time.Now()
	_ = e.registry.AppendHistory(agentID, core.HistoryEntry{
		Role: core.RoleUser, Content: message, Timestamp: now, Provenance: provenance, Payload: payload,
	}, false)
	_ = e.registry.AppendHistory(agentID, core.HistoryEntry{
		Role: core.RoleAssistant, Content: fullResponse.String(), Timestamp: time.Now(),
	}, countsAsMessage)

	response := fullResponse.String()

	if agent.ProjectRoot != "" && depth < e.cfg.MaxRecursionDepth {
		calls := parser.ParseToolCalls(response)
		if len(calls) > 0 {
			results := e.runTools(ctx, agent, calls)
			continuation := formatToolResults(results)
			return e.turn(ctx, tok, agentID, depth+1, core.ProvenanceToolResult, core.ToolResultPayload{Results: results}, continuation, onChunk)
		}
	}

	if canDelegate {
		e.detectDelegations(&agent, response, &detectedCount, depth, &futures)
		if len(futures) > 0 {
			results := make([]core.DelegationResult, 0, len(futures))
			for _, pd := range futures {
				results = append(results, pd.resolve())
			}
			continuation := formatDelegationResults(results)
			return e.turn(ctx, tok, agentID, depth+1, core.ProvenanceDelegationResult, core.DelegationResultPayload{Results: results}, continuation, onChunk)
		}
	}

	return response, nil
}

// runTools dispatches every detected tool call in order against agent's
// bound project root, publishing the corresponding bus events.
func (e *Engine) runTools(ctx context.Context, agent core.Agent, calls []core.ToolCall) []core.ToolResult {
	dispatcher := dispatch.New(agent.ProjectRoot, e.cfg.CommandBlocklist, e.logger)
	results := make([]core.ToolResult, 0, len(calls))
	for _, call := range calls {
		e.bus.Publish(core.EventToolStart, core.ToolEventPayload{ID: agent.ID, Name: agent.Name, Tool: call.Name, Args: call.Args})
		res := dispatcher.Dispatch(ctx, call)
		results = append(results, res)
		switch {
		case !res.Success:
			e.bus.Publish(core.EventToolError, core.ToolEventPayload{ID: agent.ID, Name: agent.Name, Tool: call.Name, Args: call.Args, PreviewOrError: res.Error})
			_ = e.registry.BumpErrorCount(agent.ID)
		case res.IsErrorReport:
			e.bus.Publish(core.EventErrorReport, core.ErrorReportPayload{ID: agent.ID, Name: agent.Name, Description: res.Result, Timestamp: time.Now()})
		default:
			e.bus.Publish(core.EventToolResult, core.ToolEventPayload{ID: agent.ID, Name: agent.Name, Tool: call.Name, Args: call.Args, PreviewOrError: preview(res.Result)})
		}
	}
	return results
}

func preview(s string) string {
	const max = 200
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}

// pendingDelegation tracks one delegation detected mid-stream: either
// already-failed (target not found, no lane enqueued) or awaiting its
// queued future.
type pendingDelegation struct {
	targetID, targetName, task string
	immediateErr               string
	future                     *taskqueue.Future
}

func (p pendingDelegation) resolve() core.DelegationResult {
	if p.immediateErr != "" {
		return core.DelegationResult{TargetName: p.targetName, Task: p.task, Error: p.immediateErr}
	}
	raw, err := p.future.Wait()
	if err != nil {
		return core.DelegationResult{TargetID: p.targetID, TargetName: p.targetName, Task: p.task, Error: err.Error()}
	}
	resp, _ := raw.(string)
	return core.DelegationResult{TargetID: p.targetID, TargetName: p.targetName, Task: p.task, Response: resp}
}

// detectDelegations parses any delegations newly appended to fullResponse
// since detectedCount, resolves each target, enqueues a background turn on
// its task queue lane for found targets, and records an immediate failure
// for targets that don't resolve (spec.md §8: unknown target yields a
// DelegationResult carrying an error, with no queue entry).
func (e *Engine) detectDelegations(leader *core.Agent, fullResponse string, detectedCount *int, depth int, futures *[]pendingDelegation) {
	delegations := parser.ParseDelegations(fullResponse)
	if len(delegations) <= *detectedCount {
		return
	}
	fresh := delegations[*detectedCount:]
	*detectedCount = len(delegations)

	for _, d := range fresh {
		target, err := e.registry.FindByName(d.TargetName, leader.ID)
		if err != nil {
			*futures = append(*futures, pendingDelegation{
				targetName: d.TargetName, task: d.Task,
				immediateErr: fmt.Sprintf("Agent %q not found in swarm", d.TargetName),
			})
			continue
		}

		e.bus.Publish(core.EventDelegation, core.DelegationPayload{
			FromID: leader.ID, FromName: leader.Name, ToID: target.ID, ToName: target.Name, Task: d.Task,
		})
		if e.logger != nil {
			e.logger.LogDelegation(leader.Name, target.Name, d.Task)
		}
		todo, _ := e.registry.AddTodo(target.ID, fmt.Sprintf("[From %s] %s", leader.Name, d.Task))

		leaderName, targetID, taskText, todoID := leader.Name, target.ID, d.Task, todo.ID
		future := e.queue.Enqueue(target.ID, func() (interface{}, error) {
			taskMessage := fmt.Sprintf("[TASK from %s]: %s", leaderName, taskText)
			resp, err := e.beginTurn(context.Background(), targetID, depth+1, core.ProvenanceDelegationTask, core.DelegationTaskPayload{FromName: leaderName}, taskMessage, noopChunk)
			if todoID != "" {
				_ = e.registry.CompleteTodo(targetID, todoID)
			}
			return resp, err
		})
		*futures = append(*futures, pendingDelegation{targetID: target.ID, targetName: target.Name, task: d.Task, future: future})
	}
}
