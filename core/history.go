package core

import "time"

// HistoryRole is the speaker of a HistoryEntry.
type HistoryRole string

const (
	RoleSystem    HistoryRole = "system"
	RoleUser      HistoryRole = "user"
	RoleAssistant HistoryRole = "assistant"
)

// Provenance tags a HistoryEntry with how the kernel itself produced it.
// Authoritative over any heuristic inference from content (spec.md §3).
type Provenance string

const (
	ProvenancePlain             Provenance = "plain"
	ProvenanceToolResult        Provenance = "tool-result"
	ProvenanceDelegationResult  Provenance = "delegation-result"
	ProvenanceDelegationTask    Provenance = "delegation-task"
)

// HistoryEntry is one turn of conversation owned by an agent. Payload
// carries the structured tool/delegation results or originating agent name
// when Provenance is non-empty; it is opaque to history itself.
type HistoryEntry struct {
	Role       HistoryRole `json:"role"`
	Content    string      `json:"content"`
	Timestamp  time.Time   `json:"timestamp"`
	Provenance Provenance  `json:"provenance,omitempty"`
	Payload    interface{} `json:"payload,omitempty"`
}

// ToolResultPayload is the structured Payload attached to a history entry
// of provenance tool-result.
type ToolResultPayload struct {
	Results []ToolResult `json:"results"`
}

// DelegationResultPayload is the structured Payload attached to a history
// entry of provenance delegation-result.
type DelegationResultPayload struct {
	Results []DelegationResult `json:"results"`
}

// DelegationTaskPayload is the structured Payload attached to a history
// entry of provenance delegation-task, carrying the originating agent name.
type DelegationTaskPayload struct {
	FromName string `json:"fromName"`
}
