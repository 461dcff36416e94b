package dispatch

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/swarmkernel/config"
	"github.com/hupe1980/swarmkernel/core"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, string) {
	t.Helper()
	root := t.TempDir()
	d := New(root, config.Default().CommandBlocklist, nil)
	return d, root
}

func TestDispatch_WriteThenReadFile(t *testing.T) {
	d, _ := newTestDispatcher(t)

	writeRes := d.Dispatch(context.Background(), core.ToolCall{Name: core.ToolWriteFile, Args: []string{"notes.txt", "hello"}})
	require.True(t, writeRes.Success)

	readRes := d.Dispatch(context.Background(), core.ToolCall{Name: core.ToolReadFile, Args: []string{"notes.txt"}})
	require.True(t, readRes.Success)
	assert.Equal(t, "hello", readRes.Result)
}

func TestDispatch_PathTraversalBlocked(t *testing.T) {
	d, _ := newTestDispatcher(t)
	res := d.Dispatch(context.Background(), core.ToolCall{Name: core.ToolReadFile, Args: []string{"../../etc/passwd"}})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "path traversal not allowed")
}

func TestDispatch_AbsolutePathCoercedIntoRoot(t *testing.T) {
	d, root := newTestDispatcher(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "config.yaml"), []byte("k: v"), 0o644))

	res := d.Dispatch(context.Background(), core.ToolCall{Name: core.ToolReadFile, Args: []string{"/projects/config.yaml"}})
	require.True(t, res.Success)
	assert.Equal(t, "k: v", res.Result)
}

func TestDispatch_BlockedCommand(t *testing.T) {
	d, _ := newTestDispatcher(t)
	res := d.Dispatch(context.Background(), core.ToolCall{Name: core.ToolRunCommand, Args: []string{"rm -rf /"}})
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "blocked")
}

func TestDispatch_RunCommand_NonZeroExitIsNotFailure(t *testing.T) {
	d, _ := newTestDispatcher(t)
	res := d.Dispatch(context.Background(), core.ToolCall{Name: core.ToolRunCommand, Args: []string{"exit 7"}})
	assert.True(t, res.Success)
}

func TestDispatch_ReportError(t *testing.T) {
	d, _ := newTestDispatcher(t)
	res := d.Dispatch(context.Background(), core.ToolCall{Name: core.ToolReportError, Args: []string{"build is broken"}})
	assert.True(t, res.Success)
	assert.True(t, res.IsErrorReport)
	assert.Equal(t, "build is broken", res.Result)
}

func TestDispatch_ListDir(t *testing.T) {
	d, root := newTestDispatcher(t)
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("x"), 0o644))

	res := d.Dispatch(context.Background(), core.ToolCall{Name: core.ToolListDir, Args: []string{"."}})
	require.True(t, res.Success)
	assert.Contains(t, res.Result, "sub/")
	assert.Contains(t, res.Result, "a.txt")
}

func TestDispatch_SearchFiles(t *testing.T) {
	d, root := newTestDispatcher(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.go"), []byte("// TODO: fix this\nfunc main() {}\n"), 0o644))

	res := d.Dispatch(context.Background(), core.ToolCall{Name: core.ToolSearchFiles, Args: []string{"*.go", "TODO"}})
	require.True(t, res.Success)
	assert.Contains(t, res.Result, "TODO")
}

func TestDispatch_UnknownTool(t *testing.T) {
	d, _ := newTestDispatcher(t)
	res := d.Dispatch(context.Background(), core.ToolCall{Name: core.ToolName("nonexistent")})
	assert.False(t, res.Success)
}
