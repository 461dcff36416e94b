// Package core defines the persistent data model shared by every component
// of the orchestration kernel: agents, their todos and reference documents,
// conversation history, metrics, and the transient tool-call/delegation
// types produced and consumed during a single turn.
package core

import "time"

// ProviderKind selects which Provider Adapter backend an agent talks to.
type ProviderKind string

const (
	ProviderLocalChat         ProviderKind = "localChat"
	ProviderAnthropic         ProviderKind = "anthropic"
	ProviderOpenAIChat        ProviderKind = "openAIChat"
	ProviderOpenAICompletion  ProviderKind = "openAICompletion"
	ProviderOpenAICompatible  ProviderKind = "openAICompatible"
)

// AgentStatus is the agent's runtime status.
type AgentStatus string

const (
	StatusIdle  AgentStatus = "idle"
	StatusBusy  AgentStatus = "busy"
	StatusError AgentStatus = "error"
)

// DisplayMeta carries opaque UI presentation hints round-tripped unchanged
// by the kernel.
type DisplayMeta struct {
	Icon  string `json:"icon,omitempty"`
	Color string `json:"color,omitempty"`
}

// Agent is the persistent configuration and runtime state of one swarm
// member: identity, provider binding, instructions, and everything it
// owns (todos, RAG documents, conversation history, metrics).
type Agent struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Role         string       `json:"role"`
	Description  string       `json:"description"`
	Provider     ProviderKind `json:"provider"`
	Model        string       `json:"model"`
	Endpoint     string       `json:"endpoint,omitempty"`
	Credential   string       `json:"credential,omitempty"`
	Instructions string       `json:"instructions"`
	Status       AgentStatus  `json:"status"`
	Temperature  float64      `json:"temperature"`
	MaxTokens    int          `json:"maxTokens"`

	Todos   []Todo          `json:"todos"`
	RagDocs []RagDoc        `json:"ragDocs"`
	History []HistoryEntry  `json:"history"`

	CurrentThinking string  `json:"currentThinking,omitempty"`
	Metrics         Metrics `json:"metrics"`

	ProjectRoot string      `json:"projectRoot,omitempty"`
	Leader      bool        `json:"leader"`
	DisplayMeta DisplayMeta `json:"displayMeta"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SanitizedAgent is the read-through shape returned by the registry: the
// credential value is replaced by a boolean so it never leaves the kernel.
type SanitizedAgent struct {
	Agent
	HasCredential bool `json:"hasCredential"`
}

// Sanitize returns a SanitizedAgent view of a (deep-cloned) Agent, per
// spec.md §4.F ("reads return a sanitised record").
func (a Agent) Sanitize() SanitizedAgent {
	clone := a.Clone()
	hasCred := clone.Credential != ""
	clone.Credential = ""
	return SanitizedAgent{Agent: clone, HasCredential: hasCred}
}

// Clone returns a deep copy so callers never observe mutation of the
// registry's internal state (clone-on-read, per spec.md §4.F).
func (a Agent) Clone() Agent {
	clone := a
	clone.Todos = append([]Todo(nil), a.Todos...)
	clone.RagDocs = append([]RagDoc(nil), a.RagDocs...)
	clone.History = append([]HistoryEntry(nil), a.History...)
	return clone
}

// UpdatableFields is the whitelist update() may mutate directly; runtime
// state (status, currentThinking, metrics, history, todos, ragDocs) is
// rejected per spec.md §4.F.
type UpdatableFields struct {
	Name         *string
	Role         *string
	Description  *string
	Provider     *ProviderKind
	Model        *string
	Endpoint     *string
	Credential   *string
	Instructions *string
	Temperature  *float64
	MaxTokens    *int
	ProjectRoot  *string
	Leader       *bool
	DisplayMeta  *DisplayMeta
}

// Apply mutates only the whitelisted fields present in fields, leaving
// runtime state untouched.
func (a *Agent) Apply(fields UpdatableFields) {
	if fields.Name != nil {
		a.Name = *fields.Name
	}
	if fields.Role != nil {
		a.Role = *fields.Role
	}
	if fields.Description != nil {
		a.Description = *fields.Description
	}
	if fields.Provider != nil {
		a.Provider = *fields.Provider
	}
	if fields.Model != nil {
		a.Model = *fields.Model
	}
	if fields.Endpoint != nil {
		a.Endpoint = *fields.Endpoint
	}
	if fields.Credential != nil {
		a.Credential = *fields.Credential
	}
	if fields.Instructions != nil {
		a.Instructions = *fields.Instructions
	}
	if fields.Temperature != nil {
		a.Temperature = *fields.Temperature
	}
	if fields.MaxTokens != nil {
		a.MaxTokens = *fields.MaxTokens
	}
	if fields.ProjectRoot != nil {
		a.ProjectRoot = *fields.ProjectRoot
	}
	if fields.Leader != nil {
		a.Leader = *fields.Leader
	}
	if fields.DisplayMeta != nil {
		a.DisplayMeta = *fields.DisplayMeta
	}
	a.UpdatedAt = time.Now()
}
