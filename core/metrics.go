package core

import "time"

// Metrics tracks aggregate counters for one agent.
type Metrics struct {
	TotalMessages      int       `json:"totalMessages"`
	TotalInputTokens   int64     `json:"totalInputTokens"`
	TotalOutputTokens  int64     `json:"totalOutputTokens"`
	ErrorCount         int       `json:"errorCount"`
	LastActive         time.Time `json:"lastActive"`
}
