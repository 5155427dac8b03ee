package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/kballard/go-shellquote"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/BaSui01/agentcore/types"
)

// DelegateFunc runs a sub-agent on an isolated task and returns its
// final answer.
type DelegateFunc func(ctx context.Context, task string) (string, error)

// BuiltinConfig feature-gates the built-in tool set.
type BuiltinConfig struct {
	// WorkDir confines filesystem and shell tools; paths escaping it are
	// rejected.
	WorkDir string `yaml:"work_dir" json:"work_dir"`

	// EnableShell gates the shell_exec tool.
	EnableShell bool `yaml:"enable_shell" json:"enable_shell"`

	// ShellTimeout bounds one shell invocation.
	ShellTimeout time.Duration `yaml:"shell_timeout" json:"shell_timeout"`

	// Delegate, when set, gates the delegate tool.
	Delegate DelegateFunc `yaml:"-" json:"-"`
}

// DefaultBuiltinConfig returns conservative defaults: filesystem and
// todo tools in the current directory, shell disabled.
func DefaultBuiltinConfig() BuiltinConfig {
	return BuiltinConfig{
		WorkDir:      ".",
		ShellTimeout: 30 * time.Second,
	}
}

// Builtins is the fixed built-in tool set: todo list read/write,
// filesystem operations, shell execution, and sub-agent delegation.
type Builtins struct {
	cfg      BuiltinConfig
	registry *MapRegistry
	logger   *zap.Logger

	todoMu sync.Mutex
	todos  []todoItem
}

type todoItem struct {
	Text string `json:"text"`
	Done bool   `json:"done"`
}

// NewBuiltins creates the built-in registry. Only feature-gated tools
// whose gate is open are registered.
func NewBuiltins(cfg BuiltinConfig, logger *zap.Logger) *Builtins {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = "."
	}
	if cfg.ShellTimeout <= 0 {
		cfg.ShellTimeout = 30 * time.Second
	}
	b := &Builtins{
		cfg:      cfg,
		registry: NewMapRegistry(logger),
		logger:   logger.With(zap.String("component", "builtin_tools")),
	}
	b.register()
	return b
}

// Registry returns the underlying registry.
func (b *Builtins) Registry() *MapRegistry { return b.registry }

// ListTools implements Registry.
func (b *Builtins) ListTools() []types.ToolDefinition { return b.registry.ListTools() }

// Invoke implements Registry.
func (b *Builtins) Invoke(ctx context.Context, call types.ToolCall) (string, error) {
	return b.registry.Invoke(ctx, call)
}

// Has reports whether the built-in set contains the named tool.
func (b *Builtins) Has(name string) bool { return b.registry.Has(name) }

func (b *Builtins) register() {
	b.registry.Register(types.ToolDefinition{
		Name:        "todo_read",
		Description: "Read the current todo list.",
		Parameters:  `{"type":"object","properties":{}}`,
	}, b.todoRead)

	b.registry.Register(types.ToolDefinition{
		Name:        "todo_write",
		Description: "Replace the todo list with the given items.",
		Parameters:  `{"type":"object","properties":{"todos":{"type":"array","items":{"type":"object","properties":{"text":{"type":"string"},"done":{"type":"boolean"}}}}},"required":["todos"]}`,
	}, b.todoWrite)

	b.registry.Register(types.ToolDefinition{
		Name:        "read_file",
		Description: "Read a file relative to the working directory.",
		Parameters:  `{"type":"object","properties":{"path":{"type":"string"}},"required":["path"]}`,
	}, b.readFile)

	b.registry.Register(types.ToolDefinition{
		Name:        "write_file",
		Description: "Write content to a file relative to the working directory.",
		Parameters:  `{"type":"object","properties":{"path":{"type":"string"},"content":{"type":"string"}},"required":["path","content"]}`,
	}, b.writeFile)

	b.registry.Register(types.ToolDefinition{
		Name:        "edit_file",
		Description: "Replace the first occurrence of old with new in a file.",
		Parameters:  `{"type":"object","properties":{"path":{"type":"string"},"old":{"type":"string"},"new":{"type":"string"}},"required":["path","old","new"]}`,
	}, b.editFile)

	b.registry.Register(types.ToolDefinition{
		Name:        "list_dir",
		Description: "List directory entries relative to the working directory.",
		Parameters:  `{"type":"object","properties":{"path":{"type":"string"}}}`,
	}, b.listDir)

	if b.cfg.EnableShell {
		b.registry.Register(types.ToolDefinition{
			Name:        "shell_exec",
			Description: "Execute a shell command in the working directory.",
			Parameters:  `{"type":"object","properties":{"command":{"type":"string"}},"required":["command"]}`,
		}, b.shellExec)
	}

	if b.cfg.Delegate != nil {
		b.registry.Register(types.ToolDefinition{
			Name:        "delegate",
			Description: "Delegate an isolated task to a sub-agent and return its answer.",
			Parameters:  `{"type":"object","properties":{"task":{"type":"string"}},"required":["task"]}`,
		}, b.delegate)
	}
}

// resolvePath confines a tool-supplied path to the working directory.
func (b *Builtins) resolvePath(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("path is required")
	}
	root, err := filepath.Abs(b.cfg.WorkDir)
	if err != nil {
		return "", err
	}
	resolved := filepath.Clean(filepath.Join(root, raw))
	if resolved != root && !strings.HasPrefix(resolved, root+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes working directory: %s", raw)
	}
	return resolved, nil
}

func arg(call types.ToolCall, field string) string {
	return gjson.GetBytes(call.Arguments, field).String()
}

func (b *Builtins) todoRead(ctx context.Context, call types.ToolCall) (string, error) {
	b.todoMu.Lock()
	defer b.todoMu.Unlock()
	if len(b.todos) == 0 {
		return "No todos.", nil
	}
	var sb strings.Builder
	for i, item := range b.todos {
		mark := " "
		if item.Done {
			mark = "x"
		}
		fmt.Fprintf(&sb, "%d. [%s] %s\n", i+1, mark, item.Text)
	}
	return sb.String(), nil
}

func (b *Builtins) todoWrite(ctx context.Context, call types.ToolCall) (string, error) {
	var args struct {
		Todos []todoItem `json:"todos"`
	}
	if err := json.Unmarshal(call.Arguments, &args); err != nil {
		return "", fmt.Errorf("parse todo_write arguments: %w", err)
	}
	b.todoMu.Lock()
	b.todos = args.Todos
	b.todoMu.Unlock()
	return fmt.Sprintf("Updated todo list (%d items).", len(args.Todos)), nil
}

func (b *Builtins) readFile(ctx context.Context, call types.ToolCall) (string, error) {
	path, err := b.resolvePath(arg(call, "path"))
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (b *Builtins) writeFile(ctx context.Context, call types.ToolCall) (string, error) {
	path, err := b.resolvePath(arg(call, "path"))
	if err != nil {
		return "", err
	}
	content := arg(call, "content")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", err
	}
	return fmt.Sprintf("Wrote %d bytes to %s.", len(content), arg(call, "path")), nil
}

func (b *Builtins) editFile(ctx context.Context, call types.ToolCall) (string, error) {
	path, err := b.resolvePath(arg(call, "path"))
	if err != nil {
		return "", err
	}
	oldText, newText := arg(call, "old"), arg(call, "new")
	if oldText == "" {
		return "", fmt.Errorf("old text is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	content := string(data)
	if !strings.Contains(content, oldText) {
		return "", fmt.Errorf("old text not found in %s", arg(call, "path"))
	}
	content = strings.Replace(content, oldText, newText, 1)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", err
	}
	return fmt.Sprintf("Edited %s.", arg(call, "path")), nil
}

func (b *Builtins) listDir(ctx context.Context, call types.ToolCall) (string, error) {
	raw := arg(call, "path")
	if raw == "" {
		raw = "."
	}
	path, err := b.resolvePath(raw)
	if err != nil {
		return "", err
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		sb.WriteString(name)
		sb.WriteByte('\n')
	}
	if sb.Len() == 0 {
		return "(empty directory)", nil
	}
	return sb.String(), nil
}

func (b *Builtins) shellExec(ctx context.Context, call types.ToolCall) (string, error) {
	command := arg(call, "command")
	words, err := shellquote.Split(command)
	if err != nil {
		return "", fmt.Errorf("parse command: %w", err)
	}
	if len(words) == 0 {
		return "", fmt.Errorf("command is required")
	}

	ctx, cancel := context.WithTimeout(ctx, b.cfg.ShellTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, words[0], words[1:]...)
	cmd.Dir = b.cfg.WorkDir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("%s: %w\n%s", words[0], err, string(out))
	}
	b.logger.Debug("shell command executed",
		zap.String("command", words[0]),
		zap.Int("output_bytes", len(out)))
	return string(out), nil
}

func (b *Builtins) delegate(ctx context.Context, call types.ToolCall) (string, error) {
	task := arg(call, "task")
	if task == "" {
		return "", fmt.Errorf("task is required")
	}
	return b.cfg.Delegate(ctx, task)
}
