// Package parser implements the Tool-Call Parser (spec.md §4.D) and the
// Delegation Parser (spec.md §4.E): pure, total, stateless functions from
// model output text to ordered sequences of core.ToolCall / core.Delegation.
// Deliberately kept at the string level per spec.md §9 — the wire protocol
// with the model is text, so no grammar-parser library is used.
package parser

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	"github.com/hupe1980/swarmkernel/core"
)

var wrapperPrefixes = []string{
	"<tool_call>", "</tool_call>", "<|tool_call|>", "<tool_use>", "[TOOL_CALL]", "[TOOL_CALLS]",
}

var jsonBlockRe = regexp.MustCompile(`(?s)<tool_call>(.*?)</tool_call>`)

var (
	multilineRe    = regexp.MustCompile(`(?s)@(write_file|append_file)\(\s*([^,]+?)\s*,\s*"""(.*?)"""\s*\)`)
	searchRe       = regexp.MustCompile(`@search_files\(\s*([^,]+?)\s*,\s*([^)]+?)\s*\)`)
	doubleQuotedRe = regexp.MustCompile(`@(read_file|list_dir|run_command|report_error)\(\s*"((?:[^"\\]|\\.)*)"\s*\)`)
	singleQuotedRe = regexp.MustCompile(`@(read_file|list_dir|run_command|report_error)\(\s*'((?:[^'\\]|\\.)*)'\s*\)`)
	unquotedRe     = regexp.MustCompile(`@(read_file|list_dir|run_command|report_error)\(([^)]*)\)`)
)

var aliasGroups = map[string][]string{
	"path":        {"path", "file", "filename"},
	"command":     {"command", "cmd"},
	"content":     {"content"},
	"pattern":     {"pattern", "glob"},
	"query":       {"query", "search"},
	"description": {"description", "message", "error"},
}

var toolArgKeys = map[core.ToolName][]string{
	core.ToolReadFile:    {"path"},
	core.ToolWriteFile:   {"path", "content"},
	core.ToolAppendFile:  {"path", "content"},
	core.ToolListDir:     {"path"},
	core.ToolSearchFiles: {"pattern", "query"},
	core.ToolRunCommand:  {"command"},
	core.ToolReportError: {"description"},
}

type toolMatch struct {
	start, end int
	call       core.ToolCall
	quoted     bool
}

// ParseToolCalls is total: malformed or unrecognised input never panics and
// never aborts extraction of the remaining, well-formed calls (spec.md
// §4.D: "no exceptions, no partial results" refers to never returning a
// partial/corrupt ToolCall — unparsable spans are simply skipped).
func ParseToolCalls(text string) []core.ToolCall {
	var matches []toolMatch

	for _, idx := range jsonBlockRe.FindAllStringSubmatchIndex(text, -1) {
		inner := text[idx[2]:idx[3]]
		if call, ok := parseJSONToolCall(inner); ok {
			matches = append(matches, toolMatch{start: idx[0], end: idx[1], call: call, quoted: true})
		}
	}

	masked := maskRanges(stripWrappers(text), matches)

	addMatches := func(re *regexp.Regexp, quoted bool, build func([]string) (core.ToolCall, bool)) {
		for _, idx := range re.FindAllStringSubmatchIndex(masked, -1) {
			groups := make([]string, 0, len(idx)/2)
			for i := 2; i < len(idx); i += 2 {
				if idx[i] < 0 {
					groups = append(groups, "")
					continue
				}
				groups = append(groups, masked[idx[i]:idx[i+1]])
			}
			if call, ok := build(groups); ok {
				matches = append(matches, toolMatch{start: idx[0], end: idx[1], call: call, quoted: quoted})
			}
		}
		masked = maskRanges(masked, matches)
	}

	addMatches(multilineRe, true, func(g []string) (core.ToolCall, bool) {
		name := core.ToolName(g[0])
		path := trimQuotes(strings.TrimSpace(g[1]))
		return core.ToolCall{Name: name, Args: []string{path, g[2]}}, true
	})
	addMatches(searchRe, true, func(g []string) (core.ToolCall, bool) {
		return core.ToolCall{Name: core.ToolSearchFiles, Args: []string{trimQuotes(g[0]), trimQuotes(g[1])}}, true
	})
	addMatches(doubleQuotedRe, true, func(g []string) (core.ToolCall, bool) {
		return core.ToolCall{Name: core.ToolName(g[0]), Args: []string{unescape(g[1])}}, true
	})
	addMatches(singleQuotedRe, true, func(g []string) (core.ToolCall, bool) {
		return core.ToolCall{Name: core.ToolName(g[0]), Args: []string{unescape(g[1])}}, true
	})
	addMatches(unquotedRe, false, func(g []string) (core.ToolCall, bool) {
		return core.ToolCall{Name: core.ToolName(g[0]), Args: []string{trimQuotes(strings.TrimSpace(g[1]))}}, true
	})

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].start < matches[j].start })

	seen := map[string]bool{}
	for _, m := range matches {
		if m.quoted {
			seen[dedupKey(m.call)] = true
		}
	}

	out := make([]core.ToolCall, 0, len(matches))
	for _, m := range matches {
		if !m.quoted && seen[dedupKey(m.call)] {
			continue
		}
		out = append(out, m.call)
	}
	return out
}

func dedupKey(c core.ToolCall) string {
	return string(c.Name) + "\x00" + strings.Join(c.Args, "\x00")
}

func parseJSONToolCall(raw string) (core.ToolCall, bool) {
	var envelope struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &envelope); err != nil {
		return core.ToolCall{}, false
	}
	name := core.ToolName(envelope.Name)
	if !name.IsKnown() {
		return core.ToolCall{}, false
	}

	args, err := decodeArguments(envelope.Arguments)
	if err != nil {
		return core.ToolCall{}, false
	}

	keys := toolArgKeys[name]
	vec := make([]string, 0, len(keys))
	for _, key := range keys {
		vec = append(vec, firstAlias(args, key))
	}
	return core.ToolCall{Name: name, Args: vec}, true
}

func decodeArguments(raw json.RawMessage) (map[string]interface{}, error) {
	var asMap map[string]interface{}
	if err := json.Unmarshal(raw, &asMap); err == nil {
		return asMap, nil
	}
	var asString string
	if err := json.Unmarshal(raw, &asString); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(asString), &asMap); err != nil {
		return nil, err
	}
	return asMap, nil
}

func firstAlias(args map[string]interface{}, key string) string {
	for _, alias := range aliasGroups[key] {
		if v, ok := args[alias]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}

func stripWrappers(text string) string {
	out := text
	for _, prefix := range wrapperPrefixes {
		out = strings.ReplaceAll(out, prefix, strings.Repeat(" ", len(prefix)))
	}
	return out
}

// maskRanges blanks out (with spaces, preserving offsets) every span
// already consumed by a prior match so later patterns never re-detect the
// same text.
func maskRanges(text string, matches []toolMatch) string {
	b := []byte(text)
	for _, m := range matches {
		for i := m.start; i < m.end && i < len(b); i++ {
			if b[i] != '\n' {
				b[i] = ' '
			}
		}
	}
	return string(b)
}

func trimQuotes(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

func unescape(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			i++
			b.WriteByte(s[i])
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
