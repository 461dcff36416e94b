package core

import "time"

// EventKind names one of the Event Bus's published transition kinds
// (spec.md §4.A). Distinct from HistoryEntry — this is the bus envelope.
type EventKind string

const (
	EventAgentCreated EventKind = "agent:created"
	EventAgentUpdated EventKind = "agent:updated"
	EventAgentDeleted EventKind = "agent:deleted"
	EventAgentStatus  EventKind = "agent:status"
	EventAgentThinking EventKind = "agent:thinking"

	EventStreamStart EventKind = "agent:stream:start"
	EventStreamChunk EventKind = "agent:stream:chunk"
	EventStreamEnd   EventKind = "agent:stream:end"
	EventStreamError EventKind = "agent:stream:error"

	EventToolStart  EventKind = "agent:tool:start"
	EventToolResult EventKind = "agent:tool:result"
	EventToolError  EventKind = "agent:tool:error"

	EventDelegation EventKind = "agent:delegation"
	EventHandoff    EventKind = "agent:handoff"

	EventErrorReport EventKind = "agent:error:report"
	EventStopped     EventKind = "agent:stopped"
)

// Event is one published transition: a kind tag plus a JSON-shaped payload.
type Event struct {
	ID        string      `json:"id"`
	Kind      EventKind   `json:"kind"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// StatusPayload backs agent:status.
type StatusPayload struct {
	ID     string      `json:"id"`
	Status AgentStatus `json:"status"`
}

// ThinkingPayload backs agent:thinking.
type ThinkingPayload struct {
	ID      string `json:"id"`
	Thinking string `json:"thinking"`
}

// StreamPayload backs agent:stream:start/:chunk/:end/:error.
type StreamPayload struct {
	ID    string `json:"id"`
	Chunk string `json:"chunk,omitempty"`
	Error string `json:"error,omitempty"`
}

// ToolEventPayload backs agent:tool:start/:result/:error.
type ToolEventPayload struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Tool        ToolName `json:"tool"`
	Args        []string `json:"args"`
	PreviewOrError string `json:"previewOrError,omitempty"`
}

// DelegationPayload backs agent:delegation.
type DelegationPayload struct {
	FromID   string `json:"fromId"`
	FromName string `json:"fromName"`
	ToID     string `json:"toId"`
	ToName   string `json:"toName"`
	Task     string `json:"task"`
}

// HandoffPayload backs agent:handoff.
type HandoffPayload struct {
	FromID   string `json:"fromId"`
	FromName string `json:"fromName"`
	ToID     string `json:"toId"`
	ToName   string `json:"toName"`
}

// ErrorReportPayload backs agent:error:report.
type ErrorReportPayload struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Timestamp   time.Time `json:"timestamp"`
}

// StoppedPayload backs agent:stopped.
type StoppedPayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
