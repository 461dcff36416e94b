// Package cancelfab implements the Cancellation Fabric (spec.md §4.I):
// per-agent cancellation tokens keyed by agent id, polled at stream
// suspension points. Grounded on the teacher's BaseAgent.Start/Stop
// (context.WithCancel per agent, agent/base.go) generalized into a
// registry keyed by agent id rather than a field embedded in a
// behavioral agent type, since this kernel's Agent is a data record.
package cancelfab

import (
	"context"
	"sync"

	"github.com/hupe1980/swarmkernel/bus"
	"github.com/hupe1980/swarmkernel/core"
	"github.com/hupe1980/swarmkernel/registry"
)

// Token is one agent's cancellation handle for its current outermost turn.
type Token struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// Done returns the channel that closes when the token is tripped.
func (t *Token) Done() <-chan struct{} { return t.ctx.Done() }

// Context returns the token's cancellation-bound context, passed into
// provider.Generate so cancellation propagates into the active stream.
func (t *Token) Context() context.Context { return t.ctx }

// Cancelled reports whether the token has been tripped.
func (t *Token) Cancelled() bool {
	select {
	case <-t.ctx.Done():
		return true
	default:
		return false
	}
}

// Fabric is the registry of live cancellation tokens, one per busy agent
// (spec.md §8: "for every agent A in busy status, there exists exactly one
// cancellation token registered for A").
type Fabric struct {
	mu       sync.Mutex
	tokens   map[string]*Token
	bus      *bus.Bus
	registry *registry.Registry
}

// New constructs a Fabric. bus and reg may be nil for standalone use (e.g.
// tests); production wiring always supplies both so Stop can publish
// agent:stopped and clear runtime state.
func New(b *bus.Bus, reg *registry.Registry) *Fabric {
	return &Fabric{tokens: make(map[string]*Token), bus: b, registry: reg}
}

// Begin registers a new token for agentID's outermost turn, replacing any
// stale token left over from a prior turn. Call at the start of every
// non-recursive Conversation Engine invocation.
func (f *Fabric) Begin(ctx context.Context, agentID string) *Token {
	childCtx, cancel := context.WithCancel(ctx)
	tok := &Token{ctx: childCtx, cancel: cancel}
	f.mu.Lock()
	f.tokens[agentID] = tok
	f.mu.Unlock()
	return tok
}

// End releases the token once the outermost turn completes, provided it is
// still the live token for that agent (a newer Begin may have superseded it).
func (f *Fabric) End(agentID string, tok *Token) {
	f.mu.Lock()
	if f.tokens[agentID] == tok {
		delete(f.tokens, agentID)
	}
	f.mu.Unlock()
}

// Stop trips the token for agentID, clears its thinking buffer, sets
// status idle, and publishes agent:stopped (spec.md §4.I).
func (f *Fabric) Stop(agentID string) {
	f.mu.Lock()
	tok, ok := f.tokens[agentID]
	delete(f.tokens, agentID)
	f.mu.Unlock()
	if ok {
		tok.cancel()
	}
	if f.registry != nil {
		_ = f.registry.SetThinking(agentID, "")
		_ = f.registry.SetStatus(agentID, core.StatusIdle)
	}
	if f.bus != nil {
		name := agentID
		if f.registry != nil {
			if a, err := f.registry.Get(agentID); err == nil {
				name = a.Name
			}
		}
		f.bus.Publish(core.EventStopped, core.StoppedPayload{ID: agentID, Name: name})
	}
}

// CancelForDelete trips and releases agentID's token as part of agent
// deletion, without touching registry/bus state (the caller, registry.Delete,
// is already removing the record).
func (f *Fabric) CancelForDelete(agentID string) {
	f.mu.Lock()
	tok, ok := f.tokens[agentID]
	delete(f.tokens, agentID)
	f.mu.Unlock()
	if ok {
		tok.cancel()
	}
}
