// Package dispatch implements the Tool Dispatcher (spec.md §4.C):
// sandboxed execution of the fixed 7-tool vocabulary against a bound
// project root. Grounded on the teacher's tool.Tool/FunctionTool
// validate-then-call shape, specialised to this kernel's closed tool set
// rather than a model-declared JSON-schema surface.
package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/hupe1980/swarmkernel/config"
	"github.com/hupe1980/swarmkernel/core"
	"github.com/hupe1980/swarmkernel/logging"
)

const (
	runCommandTimeout  = 30 * time.Second
	maxOutputBytes     = 10_000
	maxOutputBuffer    = 1 << 20 // 1 MiB
	searchFileLimit    = 20
	searchLineLimit    = 5
)

// Dispatcher executes ToolCalls against one bound project root.
type Dispatcher struct {
	projectRoot string
	blocklist   []*regexp.Regexp
	logger      *logging.KernelLogger
}

// New constructs a Dispatcher bound to projectRoot, applying blocklist
// (config.DefaultCommandBlocklist if nil).
func New(projectRoot string, blocklist []*regexp.Regexp, logger *logging.KernelLogger) *Dispatcher {
	if blocklist == nil {
		blocklist = config.Default().CommandBlocklist
	}
	return &Dispatcher{projectRoot: filepath.Clean(projectRoot), blocklist: blocklist, logger: logger}
}

// Dispatch executes one ToolCall, always returning a ToolResult (spec.md
// §4.C's error contract: every tool returns a result, never a raw error).
func (d *Dispatcher) Dispatch(ctx context.Context, call core.ToolCall) core.ToolResult {
	start := time.Now()
	result := d.dispatch(ctx, call)
	if d.logger != nil {
		d.logger.LogToolCall(string(call.Name), time.Since(start), result.Success, result.Error)
	}
	return result
}

func (d *Dispatcher) dispatch(ctx context.Context, call core.ToolCall) core.ToolResult {
	if call.Name != core.ToolReportError && call.Name != core.ToolRunCommand {
		if err := verifyRootAccessible(d.projectRoot, func(p string) error {
			_, statErr := os.Stat(p)
			return statErr
		}); err != nil {
			return fail(call, err.Error())
		}
	}

	switch call.Name {
	case core.ToolReadFile:
		return d.readFile(call)
	case core.ToolWriteFile:
		return d.writeFile(call)
	case core.ToolAppendFile:
		return d.appendFile(call)
	case core.ToolListDir:
		return d.listDir(call)
	case core.ToolSearchFiles:
		return d.searchFiles(call)
	case core.ToolRunCommand:
		return d.runCommand(ctx, call)
	case core.ToolReportError:
		desc := arg(call.Args, 0)
		return core.ToolResult{Name: call.Name, Args: call.Args, Success: true, Result: desc, IsErrorReport: true}
	default:
		return fail(call, fmt.Sprintf("unknown tool %q", call.Name))
	}
}

func (d *Dispatcher) readFile(call core.ToolCall) core.ToolResult {
	path, err := resolvePath(d.projectRoot, arg(call.Args, 0))
	if err != nil {
		return fail(call, err.Error())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fail(call, err.Error())
	}
	return core.ToolResult{Name: call.Name, Args: call.Args, Success: true, Result: string(data)}
}

func (d *Dispatcher) writeFile(call core.ToolCall) core.ToolResult {
	path, err := resolvePath(d.projectRoot, arg(call.Args, 0))
	if err != nil {
		return fail(call, err.Error())
	}
	content := arg(call.Args, 1)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fail(call, err.Error())
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fail(call, err.Error())
	}
	return core.ToolResult{Name: call.Name, Args: call.Args, Success: true, Result: fmt.Sprintf("wrote %d bytes", len(content))}
}

func (d *Dispatcher) appendFile(call core.ToolCall) core.ToolResult {
	path, err := resolvePath(d.projectRoot, arg(call.Args, 0))
	if err != nil {
		return fail(call, err.Error())
	}
	content := arg(call.Args, 1)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fail(call, err.Error())
	}
	existing, readErr := os.ReadFile(path)
	if readErr == nil && len(existing) > 0 && existing[len(existing)-1] != '\n' {
		content = "\n" + content
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fail(call, err.Error())
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		return fail(call, err.Error())
	}
	return core.ToolResult{Name: call.Name, Args: call.Args, Success: true, Result: fmt.Sprintf("appended %d bytes", len(content))}
}

func (d *Dispatcher) listDir(call core.ToolCall) core.ToolResult {
	path, err := resolvePath(d.projectRoot, arg(call.Args, 0))
	if err != nil {
		return fail(call, err.Error())
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return fail(call, err.Error())
	}
	var dirs, files []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if e.IsDir() {
			dirs = append(dirs, e.Name()+"/")
		} else {
			files = append(files, e.Name())
		}
	}
	sort.Strings(dirs)
	sort.Strings(files)
	listing := append(dirs, files...)
	return core.ToolResult{Name: call.Name, Args: call.Args, Success: true, Result: strings.Join(listing, "\n")}
}

func (d *Dispatcher) searchFiles(call core.ToolCall) core.ToolResult {
	pattern := arg(call.Args, 0)
	query := strings.ToLower(arg(call.Args, 1))

	var matchedFiles []string
	_ = filepath.WalkDir(d.projectRoot, func(path string, entry os.DirEntry, walkErr error) error {
		if walkErr != nil || entry.IsDir() {
			return nil
		}
		if len(matchedFiles) >= searchFileLimit {
			return filepath.SkipAll
		}
		rel, _ := filepath.Rel(d.projectRoot, path)
		ok, _ := filepath.Match(pattern, filepath.Base(path))
		if !ok {
			ok, _ = filepath.Match(pattern, rel)
		}
		if !ok {
			return nil
		}
		matchedFiles = append(matchedFiles, path)
		return nil
	})

	var b strings.Builder
	found := false
	for _, f := range matchedFiles {
		data, err := os.ReadFile(f)
		if err != nil {
			continue
		}
		lines := strings.Split(string(data), "\n")
		var matches []string
		for _, line := range lines {
			if strings.Contains(strings.ToLower(line), query) {
				matches = append(matches, line)
				if len(matches) >= searchLineLimit {
					break
				}
			}
		}
		if len(matches) == 0 {
			continue
		}
		found = true
		rel, _ := filepath.Rel(d.projectRoot, f)
		fmt.Fprintf(&b, "--- %s ---\n%s\n\n", rel, strings.Join(matches, "\n"))
	}
	if !found {
		return core.ToolResult{Name: call.Name, Args: call.Args, Success: true, Result: "No matches found"}
	}
	return core.ToolResult{Name: call.Name, Args: call.Args, Success: true, Result: strings.TrimSpace(b.String())}
}

func (d *Dispatcher) runCommand(ctx context.Context, call core.ToolCall) core.ToolResult {
	command := arg(call.Args, 0)

	matchers := make([]matcher, len(d.blocklist))
	for i, re := range d.blocklist {
		matchers[i] = re
	}
	if err := checkBlocklist(command, matchers); err != nil {
		return fail(call, err.Error())
	}

	if err := verifyRootAccessible(d.projectRoot, func(p string) error { _, e := os.Stat(p); return e }); err != nil {
		return fail(call, err.Error())
	}

	runCtx, cancel := context.WithTimeout(ctx, runCommandTimeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", command)
	cmd.Dir = d.projectRoot
	var buf limitedBuffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	_ = cmd.Run() // non-zero exit is not a dispatcher failure, per spec.md §4.C

	out := buf.String()
	truncated := false
	if len(out) > maxOutputBytes {
		out = out[:maxOutputBytes]
		truncated = true
	}
	return core.ToolResult{Name: call.Name, Args: call.Args, Success: true, Result: out, Truncated: truncated}
}

// limitedBuffer caps growth at maxOutputBuffer bytes, discarding the
// remainder, per spec.md §4.C's "buffer capped at 1 MiB".
type limitedBuffer struct {
	buf bytes.Buffer
}

func (l *limitedBuffer) Write(p []byte) (int, error) {
	remaining := maxOutputBuffer - l.buf.Len()
	if remaining <= 0 {
		return len(p), nil
	}
	if len(p) > remaining {
		p = p[:remaining]
	}
	return l.buf.Write(p)
}

func (l *limitedBuffer) String() string { return l.buf.String() }

func arg(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}

func fail(call core.ToolCall, errText string) core.ToolResult {
	return core.ToolResult{Name: call.Name, Args: call.Args, Success: false, Error: errText}
}
