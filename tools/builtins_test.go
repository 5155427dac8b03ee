package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentcore/types"
)

func call(name, argsJSON string) types.ToolCall {
	return types.ToolCall{ID: "call-1", Name: name, Arguments: json.RawMessage(argsJSON)}
}

func newTestBuiltins(t *testing.T) *Builtins {
	t.Helper()
	cfg := DefaultBuiltinConfig()
	cfg.WorkDir = t.TempDir()
	cfg.EnableShell = true
	return NewBuiltins(cfg, nil)
}

func TestTodoRoundTrip(t *testing.T) {
	b := newTestBuiltins(t)
	ctx := context.Background()

	out, err := b.Invoke(ctx, call("todo_read", `{}`))
	require.NoError(t, err)
	assert.Equal(t, "No todos.", out)

	_, err = b.Invoke(ctx, call("todo_write", `{"todos":[{"text":"ship it","done":false},{"text":"test it","done":true}]}`))
	require.NoError(t, err)

	out, err = b.Invoke(ctx, call("todo_read", `{}`))
	require.NoError(t, err)
	assert.Contains(t, out, "[ ] ship it")
	assert.Contains(t, out, "[x] test it")
}

func TestFileTools(t *testing.T) {
	b := newTestBuiltins(t)
	ctx := context.Background()

	_, err := b.Invoke(ctx, call("write_file", `{"path":"notes.txt","content":"hello world"}`))
	require.NoError(t, err)

	out, err := b.Invoke(ctx, call("read_file", `{"path":"notes.txt"}`))
	require.NoError(t, err)
	assert.Equal(t, "hello world", out)

	_, err = b.Invoke(ctx, call("edit_file", `{"path":"notes.txt","old":"world","new":"there"}`))
	require.NoError(t, err)

	out, err = b.Invoke(ctx, call("read_file", `{"path":"notes.txt"}`))
	require.NoError(t, err)
	assert.Equal(t, "hello there", out)

	out, err = b.Invoke(ctx, call("list_dir", `{}`))
	require.NoError(t, err)
	assert.Contains(t, out, "notes.txt")
}

func TestPathConfinement(t *testing.T) {
	b := newTestBuiltins(t)
	ctx := context.Background()

	_, err := b.Invoke(ctx, call("read_file", `{"path":"../../etc/passwd"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes working directory")
}

func TestShellExec(t *testing.T) {
	b := newTestBuiltins(t)
	require.NoError(t, os.WriteFile(filepath.Join(b.cfg.WorkDir, "a.txt"), []byte("x"), 0o644))

	out, err := b.Invoke(context.Background(), call("shell_exec", `{"command":"ls"}`))
	require.NoError(t, err)
	assert.Contains(t, out, "a.txt")
}

func TestShellGate(t *testing.T) {
	cfg := DefaultBuiltinConfig()
	cfg.WorkDir = t.TempDir()
	b := NewBuiltins(cfg, nil)

	assert.False(t, b.Has("shell_exec"))
	_, err := b.Invoke(context.Background(), call("shell_exec", `{"command":"ls"}`))
	require.Error(t, err)
}

func TestDelegateGate(t *testing.T) {
	cfg := DefaultBuiltinConfig()
	cfg.WorkDir = t.TempDir()
	cfg.Delegate = func(ctx context.Context, task string) (string, error) {
		return "done: " + task, nil
	}
	b := NewBuiltins(cfg, nil)

	out, err := b.Invoke(context.Background(), call("delegate", `{"task":"summarize"}`))
	require.NoError(t, err)
	assert.Equal(t, "done: summarize", out)
}

func TestRegistryOverride(t *testing.T) {
	r := NewMapRegistry(nil)
	r.Register(types.ToolDefinition{Name: "echo"}, func(ctx context.Context, c types.ToolCall) (string, error) {
		return "first", nil
	})
	r.Register(types.ToolDefinition{Name: "echo"}, func(ctx context.Context, c types.ToolCall) (string, error) {
		return "second", nil
	})

	out, err := r.Invoke(context.Background(), call("echo", `{}`))
	require.NoError(t, err)
	assert.Equal(t, "second", out)
}

func TestRegistryMissingTool(t *testing.T) {
	r := NewMapRegistry(nil)
	_, err := r.Invoke(context.Background(), call("nope", `{}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tool not registered")
}
