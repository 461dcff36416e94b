package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseDelegations_Basic(t *testing.T) {
	text := `I'll split this up.
@delegate(Coder, "implement the parser")
@delegate(Reviewer, "review the parser once it lands")`

	delegations := ParseDelegations(text)
	assert.Len(t, delegations, 2)
	assert.Equal(t, "Coder", delegations[0].TargetName)
	assert.Equal(t, "implement the parser", delegations[0].Task)
	assert.Equal(t, "Reviewer", delegations[1].TargetName)
}

func TestParseDelegations_SingleQuoted(t *testing.T) {
	delegations := ParseDelegations(`@delegate(Coder, 'fix the bug')`)
	assert.Len(t, delegations, 1)
	assert.Equal(t, "fix the bug", delegations[0].Task)
}

func TestParseDelegations_ExcludesFencedCodeBlock(t *testing.T) {
	text := "Here's an example of the syntax:\n```\n@delegate(Agent, \"example only\")\n```\nBut for real: @delegate(Coder, \"do the thing\")"
	delegations := ParseDelegations(text)
	assert.Len(t, delegations, 1)
	assert.Equal(t, "do the thing", delegations[0].Task)
}

func TestParseDelegations_ExcludesInlineBacktick(t *testing.T) {
	text := "Use `@delegate(Agent, \"task\")` syntax like this: @delegate(Coder, \"ship it\")"
	delegations := ParseDelegations(text)
	assert.Len(t, delegations, 1)
	assert.Equal(t, "ship it", delegations[0].Task)
}

func TestParseDelegations_NoMatches(t *testing.T) {
	assert.Empty(t, ParseDelegations("no delegation syntax here"))
}
