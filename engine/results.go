package engine

import (
	"fmt"
	"strings"

	"github.com/hupe1980/swarmkernel/core"
)

// formatToolResults renders a [TOOL RESULTS] continuation message from the
// dispatcher's outcomes, closing with a hint tailored to what happened
// (spec.md §4.H).
func formatToolResults(results []core.ToolResult) string {
	var b strings.Builder
	b.WriteString("[TOOL RESULTS]\n\n")

	anyFailure := false
	anyErrorReport := false
	for _, r := range results {
		label := fmt.Sprintf("%s(%s)", r.Name, strings.Join(r.Args, ", "))
		b.WriteString(fmt.Sprintf("--- %s ---\n", label))
		switch {
		case !r.Success:
			anyFailure = true
			b.WriteString("ERROR: " + r.Error)
		case r.IsErrorReport:
			anyErrorReport = true
			b.WriteString("ERROR REPORTED: " + r.Result)
		default:
			text := r.Result
			if r.Truncated {
				text += "\n[output truncated]"
			}
			b.WriteString(text)
		}
		b.WriteString("\n\n")
	}

	switch {
	case anyFailure:
		b.WriteString("Some tool calls failed. Review the errors above and adapt your approach.")
	case anyErrorReport:
		b.WriteString("An error was reported. Summarise it for whoever is waiting on this work.")
	default:
		b.WriteString("All tool calls succeeded. Continue the task, or give your final answer if it is complete.")
	}
	return b.String()
}

// formatDelegationResults renders a [DELEGATION RESULTS] continuation
// message for a leader awaiting its delegated subtasks.
func formatDelegationResults(results []core.DelegationResult) string {
	var b strings.Builder
	b.WriteString("[DELEGATION RESULTS]\n\n")

	anyFailure := false
	for _, r := range results {
		b.WriteString(fmt.Sprintf("--- Response from %s ---\n", r.TargetName))
		if r.Failed() {
			anyFailure = true
			b.WriteString("ERROR: " + r.Error)
		} else {
			b.WriteString(r.Response)
		}
		b.WriteString("\n\n")
	}

	if anyFailure {
		b.WriteString("Some delegated agents reported errors. Decide whether to retry, reassign, or adapt your plan.")
	} else {
		b.WriteString("Summarise the results for the user, or continue coordinating the team.")
	}
	return b.String()
}
