package cancelfab

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/swarmkernel/bus"
	"github.com/hupe1980/swarmkernel/core"
	"github.com/hupe1980/swarmkernel/registry"
)

func TestFabric_BeginReplacesStaleToken(t *testing.T) {
	f := New(nil, nil)
	first := f.Begin(context.Background(), "agent-1")
	second := f.Begin(context.Background(), "agent-1")

	f.End("agent-1", first) // stale: second already superseded it
	assert.False(t, second.Cancelled())
}

func TestFabric_Stop_TripsTokenAndPublishesEvent(t *testing.T) {
	b := bus.New()
	reg, err := registry.New(registry.WithBus(b))
	require.NoError(t, err)
	agent, err := reg.Create(registry.CreateFields{Name: "Coder"})
	require.NoError(t, err)

	f := New(b, reg)
	sub := b.Subscribe()
	defer sub.Cancel()

	tok := f.Begin(context.Background(), agent.ID)
	f.Stop(agent.ID)

	assert.True(t, tok.Cancelled())

	select {
	case <-tok.Done():
	case <-time.After(time.Second):
		t.Fatal("token was not cancelled")
	}

	deadline := time.After(time.Second)
	for {
		select {
		case evt := <-sub.Events:
			if evt.Kind == core.EventStopped {
				payload := evt.Payload.(core.StoppedPayload)
				assert.Equal(t, agent.ID, payload.ID)
				return
			}
		case <-deadline:
			t.Fatal("agent:stopped was never published")
		}
	}
}

func TestFabric_CancelForDelete(t *testing.T) {
	f := New(nil, nil)
	tok := f.Begin(context.Background(), "agent-1")
	f.CancelForDelete("agent-1")
	assert.True(t, tok.Cancelled())
}
