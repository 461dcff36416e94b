package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/swarmkernel/bus"
	"github.com/hupe1980/swarmkernel/cancelfab"
	"github.com/hupe1980/swarmkernel/config"
	"github.com/hupe1980/swarmkernel/core"
	"github.com/hupe1980/swarmkernel/kernelerr"
	"github.com/hupe1980/swarmkernel/logging"
	"github.com/hupe1980/swarmkernel/model"
	"github.com/hupe1980/swarmkernel/registry"
	"github.com/hupe1980/swarmkernel/taskqueue"
)

// stubProvider is a deterministic model.Provider for engine tests: the reply
// is chosen by matching the last prompt message rather than by exact-string
// lookup, since continuation messages are engine-generated.
type stubProvider struct{}

func (stubProvider) Info() model.Info { return model.Info{Name: "stub", Provider: core.ProviderAnthropic} }

func (stubProvider) Generate(ctx context.Context, messages []model.Message, opts model.Options) (<-chan model.Chunk, <-chan error) {
	last := messages[len(messages)-1].Content
	var reply string
	switch {
	case strings.Contains(last, "please write file"):
		reply = `@write_file("out.txt", """hello world""")`
	case strings.HasPrefix(last, "[TOOL RESULTS]"):
		reply = "Done, file written."
	case strings.Contains(last, "please delegate"):
		reply = `@delegate(Helper, "do the subtask")`
	case strings.HasPrefix(last, "[DELEGATION RESULTS]"):
		reply = "All done, team."
	case strings.HasPrefix(last, "[TASK from"):
		reply = "subtask complete"
	default:
		reply = "ok"
	}

	out := make(chan model.Chunk, 4)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errCh)
		out <- model.Chunk{Delta: reply}
		out <- model.Chunk{Done: true, Usage: &model.TokenUsage{InputTokens: 1, OutputTokens: 1}}
	}()
	return out, errCh
}

// blockingProvider streams one chunk, signals started, then blocks until
// either release is closed (continuing normally) or ctx is cancelled.
type blockingProvider struct {
	started chan struct{}
	release chan struct{}
}

func (blockingProvider) Info() model.Info {
	return model.Info{Name: "blocking", Provider: core.ProviderAnthropic}
}

func (p blockingProvider) Generate(ctx context.Context, messages []model.Message, opts model.Options) (<-chan model.Chunk, <-chan error) {
	out := make(chan model.Chunk, 4)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errCh)
		out <- model.Chunk{Delta: "partial"}
		close(p.started)
		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
		case <-p.release:
			out <- model.Chunk{Delta: " done", Done: true, Usage: &model.TokenUsage{OutputTokens: 1}}
		}
	}()
	return out, errCh
}

func newTestEngine(t *testing.T) (*Engine, *registry.Registry) {
	t.Helper()
	e, reg, _ := newTestEngineWithFactory(t, func(core.Agent) (model.Provider, error) { return stubProvider{}, nil })
	return e, reg
}

func newTestEngineWithFactory(t *testing.T, factory ProviderFactory) (*Engine, *registry.Registry, *bus.Bus) {
	t.Helper()
	b := bus.New()
	reg, err := registry.New(registry.WithBus(b))
	require.NoError(t, err)
	q := taskqueue.New()
	cf := cancelfab.New(b, reg)
	cfg := config.Default()
	logCfg := logging.DefaultConfig()
	logCfg.Output = io.Discard
	logger := logging.NewLogger(logCfg)
	return New(reg, b, q, cf, cfg, factory, logger), reg, b
}

func TestEngine_Chat_PlainTurnCountsOneMessage(t *testing.T) {
	e, reg := newTestEngine(t)
	agent, err := reg.Create(registry.CreateFields{Name: "Coder"})
	require.NoError(t, err)

	var streamed strings.Builder
	resp, err := e.Chat(context.Background(), agent.ID, "hello there", func(d string) { streamed.WriteString(d) })
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)
	assert.Equal(t, "ok", streamed.String())

	got, err := reg.Get(agent.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Metrics.TotalMessages)
	assert.Equal(t, core.StatusIdle, got.Status)
	require.Len(t, got.History, 2)
	assert.Equal(t, core.RoleUser, got.History[0].Role)
	assert.Equal(t, core.RoleAssistant, got.History[1].Role)
}

func TestEngine_ToolCallRoundTrip(t *testing.T) {
	e, reg := newTestEngine(t)
	root := t.TempDir()
	agent, err := reg.Create(registry.CreateFields{Name: "Coder", ProjectRoot: root})
	require.NoError(t, err)

	resp, err := e.Chat(context.Background(), agent.ID, "please write file", nil)
	require.NoError(t, err)
	assert.Equal(t, "Done, file written.", resp)

	data, err := os.ReadFile(filepath.Join(root, "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestEngine_DelegationRoundTrip(t *testing.T) {
	e, reg := newTestEngine(t)
	leader, err := reg.Create(registry.CreateFields{Name: "Leader", Leader: true})
	require.NoError(t, err)
	_, err = reg.Create(registry.CreateFields{Name: "Helper"})
	require.NoError(t, err)

	resp, err := e.Chat(context.Background(), leader.ID, "please delegate", nil)
	require.NoError(t, err)
	assert.Equal(t, "All done, team.", resp)
}

func TestEngine_DelegationToUnknownAgentReturnsError(t *testing.T) {
	e, reg := newTestEngine(t)
	leader, err := reg.Create(registry.CreateFields{Name: "Leader", Leader: true})
	require.NoError(t, err)

	resp, err := e.Chat(context.Background(), leader.ID, "please delegate", nil)
	require.NoError(t, err)
	assert.Equal(t, "All done, team.", resp)

	got, err := reg.Get(leader.ID)
	require.NoError(t, err)
	var sawDelegationResultEntry bool
	for _, h := range got.History {
		if h.Provenance == core.ProvenanceDelegationResult {
			sawDelegationResultEntry = true
			payload, ok := h.Payload.(core.DelegationResultPayload)
			require.True(t, ok)
			require.Len(t, payload.Results, 1)
			assert.Equal(t, `Agent "Helper" not found in swarm`, payload.Results[0].Error)
		}
	}
	assert.True(t, sawDelegationResultEntry)
}

func TestEngine_Handoff_CarriesSourceHistoryTail(t *testing.T) {
	var captured string
	factory := func(core.Agent) (model.Provider, error) { return recordingProvider{record: &captured}, nil }
	e, reg, _ := newTestEngineWithFactory(t, factory)

	source, err := reg.Create(registry.CreateFields{Name: "Source"})
	require.NoError(t, err)
	target, err := reg.Create(registry.CreateFields{Name: "Target"})
	require.NoError(t, err)

	for i := 0; i < 12; i++ {
		require.NoError(t, reg.AppendHistory(source.ID, core.HistoryEntry{
			Role: core.RoleUser, Content: fmt.Sprintf("entry-%d", i),
		}, false))
	}

	_, err = e.Handoff(context.Background(), source.ID, target.ID, "please continue", nil)
	require.NoError(t, err)

	assert.Contains(t, captured, "[HANDOFF from Source]: please continue")
	assert.Contains(t, captured, "entry-2")
	assert.Contains(t, captured, "entry-11")
	assert.NotContains(t, captured, "entry-1\n")
}

// recordingProvider captures the final user message it was asked to
// generate against, for assertions on prompt contents.
type recordingProvider struct{ record *string }

func (recordingProvider) Info() model.Info { return model.Info{Name: "recording", Provider: core.ProviderAnthropic} }

func (p recordingProvider) Generate(ctx context.Context, messages []model.Message, opts model.Options) (<-chan model.Chunk, <-chan error) {
	*p.record = messages[len(messages)-1].Content
	out := make(chan model.Chunk, 2)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errCh)
		out <- model.Chunk{Delta: "ack"}
		out <- model.Chunk{Done: true, Usage: &model.TokenUsage{OutputTokens: 1}}
	}()
	return out, errCh
}

func TestEngine_Stop_CancelsMidStreamTurn(t *testing.T) {
	provider := blockingProvider{started: make(chan struct{}), release: make(chan struct{})}
	e, reg, b := newTestEngineWithFactory(t, func(core.Agent) (model.Provider, error) { return provider, nil })
	defer close(provider.release)

	agent, err := reg.Create(registry.CreateFields{Name: "Coder"})
	require.NoError(t, err)

	sub := b.Subscribe()
	defer sub.Cancel()

	type chatResult struct {
		resp string
		err  error
	}
	done := make(chan chatResult, 1)
	go func() {
		resp, err := e.Chat(context.Background(), agent.ID, "hello there", nil)
		done <- chatResult{resp, err}
	}()

	select {
	case <-provider.started:
	case <-time.After(2 * time.Second):
		t.Fatal("provider never reached its mid-stream blocking point")
	}

	got, err := reg.Get(agent.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusBusy, got.Status)

	e.Stop(agent.ID)

	var result chatResult
	select {
	case result = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not unblock the in-flight turn")
	}
	require.Error(t, result.err)
	assert.True(t, errors.Is(result.err, kernelerr.CancelledByUserErr), "expected a CancelledByUser error, got %v", result.err)

	var sawStopped bool
	deadline := time.After(time.Second)
	for !sawStopped {
		select {
		case evt := <-sub.Events:
			if evt.Kind == core.EventStopped {
				sawStopped = true
			}
		case <-deadline:
			t.Fatal("agent:stopped was never published")
		}
	}

	got, err = reg.Get(agent.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusIdle, got.Status)
}
