// Package registry implements the Agent Registry (spec.md §4.F): an
// in-memory map from id to core.Agent with read-through to a persistence
// collaborator. Grounded on the teacher's session.InMemoryStore
// (RWMutex-guarded map, clone-on-read), adapted to reject-on-missing
// semantics since the registry never auto-creates agents.
package registry

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/swarmkernel/bus"
	"github.com/hupe1980/swarmkernel/core"
	"github.com/hupe1980/swarmkernel/kernelerr"
)

// Persister is the persistence collaborator interface of spec.md §6:
// loadAll/save/delete. A missing persistence layer is tolerated (in-memory
// mode) via the NoopPersister default.
type Persister interface {
	LoadAll() ([]core.Agent, error)
	Save(agent core.Agent) error
	Delete(id string) error
}

// NoopPersister discards every write and reports no agents on load.
type NoopPersister struct{}

func (NoopPersister) LoadAll() ([]core.Agent, error) { return nil, nil }
func (NoopPersister) Save(core.Agent) error          { return nil }
func (NoopPersister) Delete(string) error            { return nil }

// CreateFields is the set of fields accepted by Create.
type CreateFields struct {
	Name         string
	Role         string
	Description  string
	Provider     core.ProviderKind
	Model        string
	Endpoint     string
	Credential   string
	Instructions string
	Temperature  float64
	MaxTokens    int
	ProjectRoot  string
	Leader       bool
	DisplayMeta  core.DisplayMeta
}

// Registry is the in-memory Agent Registry.
type Registry struct {
	mu      sync.RWMutex
	agents  map[string]*core.Agent
	order   []string // insertion order, for deterministic name-collision tiebreak
	persist Persister
	bus     *bus.Bus
}

// Option configures a Registry at construction.
type Option func(*Registry)

// WithPersister installs a persistence collaborator.
func WithPersister(p Persister) Option { return func(r *Registry) { r.persist = p } }

// WithBus installs the event bus every mutating call publishes to.
func WithBus(b *bus.Bus) Option { return func(r *Registry) { r.bus = b } }

// New constructs an empty Registry and loads existing records from the
// persistence collaborator, resetting status to idle and clearing
// thinking buffers per spec.md §4.F.
func New(optFns ...Option) (*Registry, error) {
	r := &Registry{agents: make(map[string]*core.Agent), persist: NoopPersister{}}
	for _, fn := range optFns {
		fn(r)
	}
	loaded, err := r.persist.LoadAll()
	if err != nil {
		return nil, err
	}
	for i := range loaded {
		a := loaded[i]
		a.Status = core.StatusIdle
		a.CurrentThinking = ""
		r.agents[a.ID] = &a
		r.order = append(r.order, a.ID)
	}
	return r, nil
}

// Create inserts a new agent and publishes agent:created.
func (r *Registry) Create(fields CreateFields) (core.SanitizedAgent, error) {
	if fields.Name == "" {
		return core.SanitizedAgent{}, kernelerr.New(kernelerr.BadRequest, "name is required")
	}
	now := time.Now()
	a := core.Agent{
		ID:           uuid.NewString(),
		Name:         fields.Name,
		Role:         fields.Role,
		Description:  fields.Description,
		Provider:     fields.Provider,
		Model:        fields.Model,
		Endpoint:     fields.Endpoint,
		Credential:   fields.Credential,
		Instructions: fields.Instructions,
		Status:       core.StatusIdle,
		Temperature:  fields.Temperature,
		MaxTokens:    fields.MaxTokens,
		ProjectRoot:  fields.ProjectRoot,
		Leader:       fields.Leader,
		DisplayMeta:  fields.DisplayMeta,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	r.mu.Lock()
	r.agents[a.ID] = &a
	r.order = append(r.order, a.ID)
	r.mu.Unlock()

	r.save(a)
	r.publish(core.EventAgentCreated, a.Sanitize())
	return a.Sanitize(), nil
}

// Get returns a sanitised clone of the agent, or NotFound.
func (r *Registry) Get(id string) (core.SanitizedAgent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	if !ok {
		return core.SanitizedAgent{}, kernelerr.New(kernelerr.NotFound, "agent not found")
	}
	return a.Sanitize(), nil
}

// List returns sanitised clones of every agent in registry insertion order.
func (r *Registry) List() []core.SanitizedAgent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.SanitizedAgent, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.agents[id].Sanitize())
	}
	return out
}

// FindByName resolves an agent by case-insensitive name match, excluding
// excludeID, with a deterministic tiebreak on first registry insertion
// order (spec.md §3 invariant).
func (r *Registry) FindByName(name, excludeID string) (core.SanitizedAgent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.order {
		if id == excludeID {
			continue
		}
		a := r.agents[id]
		if a != nil && equalFold(a.Name, name) {
			return a.Sanitize(), nil
		}
	}
	return core.SanitizedAgent{}, kernelerr.New(kernelerr.NotFound, "Agent \""+name+"\" not found in swarm")
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return toLowerASCII(a) == toLowerASCII(b)
	}
	return toLowerASCII(a) == toLowerASCII(b)
}

func toLowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// Update applies only the whitelisted updatable fields, rejecting any
// attempt to mutate runtime state (spec.md §4.F).
func (r *Registry) Update(id string, fields core.UpdatableFields) (core.SanitizedAgent, error) {
	r.mu.Lock()
	a, ok := r.agents[id]
	if !ok {
		r.mu.Unlock()
		return core.SanitizedAgent{}, kernelerr.New(kernelerr.NotFound, "agent not found")
	}
	a.Apply(fields)
	clone := a.Clone()
	r.mu.Unlock()

	r.save(clone)
	r.publish(core.EventAgentUpdated, clone.Sanitize())
	return clone.Sanitize(), nil
}

// Delete removes the agent, aborting any in-flight work is the caller's
// (cancelfab's) responsibility — the registry only removes the record and
// publishes agent:deleted.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	a, ok := r.agents[id]
	if !ok {
		r.mu.Unlock()
		return kernelerr.New(kernelerr.NotFound, "agent not found")
	}
	delete(r.agents, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	sanitized := a.Sanitize()
	r.mu.Unlock()

	_ = r.persist.Delete(id)
	r.publish(core.EventAgentDeleted, sanitized)
	return nil
}

// mutate is the shared fire-and-forget runtime-state writer used by the
// engine (status/thinking/metrics/history), serialised per agent via the
// registry's own lock, per spec.md §5's shared-resource policy.
func (r *Registry) mutate(id string, fn func(*core.Agent)) (core.Agent, error) {
	r.mu.Lock()
	a, ok := r.agents[id]
	if !ok {
		r.mu.Unlock()
		return core.Agent{}, kernelerr.New(kernelerr.NotFound, "agent not found")
	}
	fn(a)
	clone := a.Clone()
	r.mu.Unlock()
	return clone, nil
}

// SetStatus updates runtime status and publishes agent:status.
func (r *Registry) SetStatus(id string, status core.AgentStatus) error {
	clone, err := r.mutate(id, func(a *core.Agent) { a.Status = status })
	if err != nil {
		return err
	}
	r.save(clone)
	r.publish(core.EventAgentStatus, core.StatusPayload{ID: id, Status: status})
	return nil
}

// SetThinking updates the transient "current thinking" buffer and
// publishes agent:thinking.
func (r *Registry) SetThinking(id, thinking string) error {
	_, err := r.mutate(id, func(a *core.Agent) { a.CurrentThinking = thinking })
	if err != nil {
		return err
	}
	r.publish(core.EventAgentThinking, core.ThinkingPayload{ID: id, Thinking: thinking})
	return nil
}

// AppendHistory appends one entry and bumps totalMessages iff
// countsAsMessage (exactly once per completed assistant turn, per spec.md
// §3's invariant — recursive continuations must not double-count).
func (r *Registry) AppendHistory(id string, entry core.HistoryEntry, countsAsMessage bool) error {
	clone, err := r.mutate(id, func(a *core.Agent) {
		a.History = append(a.History, entry)
		if countsAsMessage {
			a.Metrics.TotalMessages++
			a.Metrics.LastActive = time.Now()
		}
	})
	if err != nil {
		return err
	}
	r.save(clone)
	return nil
}

// BumpTokenUsage accumulates input/output token counts into metrics,
// fire-and-forget relative to the engine's critical path (spec.md §4.J).
func (r *Registry) BumpTokenUsage(id string, input, output int) error {
	clone, err := r.mutate(id, func(a *core.Agent) {
		a.Metrics.TotalInputTokens += int64(input)
		a.Metrics.TotalOutputTokens += int64(output)
	})
	if err != nil {
		return err
	}
	r.save(clone)
	return nil
}

// BumpErrorCount increments the error counter (spec.md §7 propagation rule).
func (r *Registry) BumpErrorCount(id string) error {
	clone, err := r.mutate(id, func(a *core.Agent) { a.Metrics.ErrorCount++ })
	if err != nil {
		return err
	}
	r.save(clone)
	return nil
}

// ClearHistory empties the agent's history (idempotent, per spec.md §8).
func (r *Registry) ClearHistory(id string) error {
	clone, err := r.mutate(id, func(a *core.Agent) { a.History = nil })
	if err != nil {
		return err
	}
	r.save(clone)
	return nil
}

// TruncateHistory drops every entry with index > afterIndex (spec.md §4.J).
func (r *Registry) TruncateHistory(id string, afterIndex int) error {
	clone, err := r.mutate(id, func(a *core.Agent) {
		if afterIndex+1 < len(a.History) && afterIndex >= -1 {
			a.History = a.History[:afterIndex+1]
		}
	})
	if err != nil {
		return err
	}
	r.save(clone)
	return nil
}

// AddTodo appends a todo owned by the agent.
func (r *Registry) AddTodo(id, text string) (core.Todo, error) {
	todo := core.Todo{ID: uuid.NewString(), Text: text, CreatedAt: time.Now()}
	clone, err := r.mutate(id, func(a *core.Agent) { a.Todos = append(a.Todos, todo) })
	if err != nil {
		return core.Todo{}, err
	}
	r.save(clone)
	return todo, nil
}

// ToggleTodo flips a todo's done flag, stamping/clearing CompletedAt.
// Composed with itself this is the identity (spec.md §8).
func (r *Registry) ToggleTodo(id, todoID string) error {
	clone, err := r.mutate(id, func(a *core.Agent) {
		for i := range a.Todos {
			if a.Todos[i].ID == todoID {
				a.Todos[i].Done = !a.Todos[i].Done
				if a.Todos[i].Done {
					now := time.Now()
					a.Todos[i].CompletedAt = &now
				} else {
					a.Todos[i].CompletedAt = nil
				}
				return
			}
		}
	})
	if err != nil {
		return err
	}
	r.save(clone)
	return nil
}

// CompleteTodo marks a todo done via the engine (completion timestamp
// present iff done via the engine, per spec.md §3's invariant).
func (r *Registry) CompleteTodo(id, todoID string) error {
	clone, err := r.mutate(id, func(a *core.Agent) {
		for i := range a.Todos {
			if a.Todos[i].ID == todoID && !a.Todos[i].Done {
				a.Todos[i].Done = true
				now := time.Now()
				a.Todos[i].CompletedAt = &now
				return
			}
		}
	})
	if err != nil {
		return err
	}
	r.save(clone)
	return nil
}

// DeleteTodo removes a todo by id.
func (r *Registry) DeleteTodo(id, todoID string) error {
	clone, err := r.mutate(id, func(a *core.Agent) {
		for i := range a.Todos {
			if a.Todos[i].ID == todoID {
				a.Todos = append(a.Todos[:i], a.Todos[i+1:]...)
				return
			}
		}
	})
	if err != nil {
		return err
	}
	r.save(clone)
	return nil
}

// AddRagDoc appends a reference document owned by the agent.
func (r *Registry) AddRagDoc(id, name, content string) (core.RagDoc, error) {
	doc := core.RagDoc{ID: uuid.NewString(), Name: name, Content: content, CreatedAt: time.Now()}
	clone, err := r.mutate(id, func(a *core.Agent) { a.RagDocs = append(a.RagDocs, doc) })
	if err != nil {
		return core.RagDoc{}, err
	}
	r.save(clone)
	return doc, nil
}

// DeleteRagDoc removes a reference document by id.
func (r *Registry) DeleteRagDoc(id, docID string) error {
	clone, err := r.mutate(id, func(a *core.Agent) {
		for i := range a.RagDocs {
			if a.RagDocs[i].ID == docID {
				a.RagDocs = append(a.RagDocs[:i], a.RagDocs[i+1:]...)
				return
			}
		}
	})
	if err != nil {
		return err
	}
	r.save(clone)
	return nil
}

// rawGet returns an unsanitised deep clone of the agent, taken under the
// registry's read lock; Snapshot is its exported wrapper.
func (r *Registry) rawGet(id string) (core.Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[id]
	if !ok {
		return core.Agent{}, false
	}
	return a.Clone(), true
}

// Snapshot returns a deep clone of the agent including unsanitised fields
// (credential) for collaborators that need it (e.g. the engine building a
// provider client). Not exposed to external callers.
func (r *Registry) Snapshot(id string) (core.Agent, error) {
	a, ok := r.rawGet(id)
	if !ok {
		return core.Agent{}, kernelerr.New(kernelerr.NotFound, "agent not found")
	}
	return a, nil
}

// ListSnapshots returns unsanitised clones of every agent, for prompt
// roster composition.
func (r *Registry) ListSnapshots() []core.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.Agent, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.agents[id].Clone())
	}
	return out
}

func (r *Registry) save(a core.Agent) {
	_ = r.persist.Save(a)
}

func (r *Registry) publish(kind core.EventKind, payload interface{}) {
	if r.bus != nil {
		r.bus.Publish(kind, payload)
	}
}
