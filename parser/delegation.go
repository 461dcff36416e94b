package parser

import (
	"regexp"
	"strings"

	"github.com/hupe1980/swarmkernel/core"
)

var delegateRe = regexp.MustCompile(`(?s)@delegate\(\s*([^,]+?)\s*,\s*(?:"((?:[^"\\]|\\.)*)"|'((?:[^'\\]|\\.)*)')\s*\)`)

var (
	fencedBlockRe  = regexp.MustCompile("(?s)```.*?```")
	inlineBacktick = regexp.MustCompile("`[^`\n]*`")
)

type span struct{ start, end int }

// ParseDelegations is the Delegation Parser (spec.md §4.E): a pure function
// extracting @delegate(Agent,"task") commands, with text inside fenced or
// inline backtick spans excluded from matching.
func ParseDelegations(text string) []core.Delegation {
	excluded := excludedSpans(text)

	var out []core.Delegation
	for _, idx := range delegateRe.FindAllStringSubmatchIndex(text, -1) {
		start := idx[0]
		if within(start, excluded) {
			continue
		}
		agent := strings.TrimSpace(text[idx[2]:idx[3]])
		var task string
		if idx[4] >= 0 {
			task = unescape(text[idx[4]:idx[5]])
		} else {
			task = unescape(text[idx[6]:idx[7]])
		}
		if agent == "" {
			continue
		}
		out = append(out, core.Delegation{TargetName: agent, Task: task})
	}
	return out
}

// excludedSpans computes every byte range covered by a fenced code block
// or an inline backtick span, per spec.md §4.E's code-block exclusion.
func excludedSpans(text string) []span {
	var spans []span
	for _, idx := range fencedBlockRe.FindAllStringIndex(text, -1) {
		spans = append(spans, span{idx[0], idx[1]})
	}
	for _, idx := range inlineBacktick.FindAllStringIndex(text, -1) {
		if !within(idx[0], spans) {
			spans = append(spans, span{idx[0], idx[1]})
		}
	}
	return spans
}

func within(pos int, spans []span) bool {
	for _, s := range spans {
		if pos >= s.start && pos < s.end {
			return true
		}
	}
	return false
}
