package dispatch

import (
	"path/filepath"
	"strings"

	"github.com/hupe1980/swarmkernel/kernelerr"
)

const sharedBasePrefix = "/projects/"

// resolvePath implements spec.md §4.C's containment rules: strip
// surrounding quotes, coerce absolute paths to project-relative by
// stripping the project-root (or shared /projects/) prefix, then verify
// the canonicalised result still has the project root as a prefix.
func resolvePath(projectRoot, raw string) (string, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = trimSurroundingQuotes(cleaned)

	if filepath.IsAbs(cleaned) {
		switch {
		case strings.HasPrefix(cleaned, projectRoot):
			cleaned = strings.TrimPrefix(cleaned, projectRoot)
		case strings.HasPrefix(cleaned, sharedBasePrefix):
			cleaned = strings.TrimPrefix(cleaned, sharedBasePrefix)
		}
		cleaned = strings.TrimPrefix(cleaned, string(filepath.Separator))
	}

	joined := filepath.Join(projectRoot, cleaned)
	resolved := filepath.Clean(joined)

	rootWithSep := strings.TrimSuffix(projectRoot, string(filepath.Separator)) + string(filepath.Separator)
	if resolved != strings.TrimSuffix(projectRoot, string(filepath.Separator)) && !strings.HasPrefix(resolved, rootWithSep) {
		return "", kernelerr.New(kernelerr.ContainmentViolation, "path traversal not allowed")
	}
	return resolved, nil
}

func trimSurroundingQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// checkBlocklist reports a blocked-command error if command matches any
// configured blocklist regex, per spec.md §4.C.
func checkBlocklist(command string, blocklist []matcher) error {
	for _, re := range blocklist {
		if re.MatchString(command) {
			return kernelerr.New(kernelerr.ContainmentViolation, "Command blocked for security reasons")
		}
	}
	return nil
}

// matcher is the minimal surface dispatch needs from a compiled regex,
// kept as an interface so tests can supply fakes without importing regexp.
type matcher interface {
	MatchString(string) bool
}

func verifyRootAccessible(root string, statFn func(string) error) error {
	if err := statFn(root); err != nil {
		return kernelerr.Wrap(kernelerr.ToolFailure, "project path not accessible", err)
	}
	return nil
}
