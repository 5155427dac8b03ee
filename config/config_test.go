package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentcore/pipeline"
)

func TestDefaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, pipeline.ApprovalNever, cfg.Pipeline.Approval.Mode)
	assert.Equal(t, 3, cfg.Router.MaxAttempts)
}

func TestYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentcore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  level: debug
pipeline:
  model: test-model
  approval:
    mode: allowlist
    allow_list: [read_file, grep]
budget:
  hard_request_ceiling: 4096
store:
  backend: file
  path: /tmp/content
`), 0o644))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "test-model", cfg.Pipeline.Model)
	assert.Equal(t, pipeline.ApprovalAllowList, cfg.Pipeline.Approval.Mode)
	assert.Equal(t, []string{"read_file", "grep"}, cfg.Pipeline.Approval.AllowList)
	assert.Equal(t, 4096, cfg.Budget.HardRequestCeiling)
	assert.Equal(t, "file", cfg.Store.Backend)
}

func TestEnvOverridesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentcore.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pipeline:\n  model: from-yaml\n"), 0o644))

	t.Setenv("AGENTCORE_MODEL", "from-env")
	t.Setenv("AGENTCORE_COST_CEILING", "1.25")
	t.Setenv("AGENTCORE_ENABLE_SHELL", "true")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Pipeline.Model)
	assert.Equal(t, 1.25, cfg.Router.CostCeiling)
	assert.True(t, cfg.Tools.EnableShell)
}

func TestMissingFileUsesDefaults(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/nonexistent/agentcore.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Store.Backend)
}

func TestBadEnvValueFails(t *testing.T) {
	t.Setenv("AGENTCORE_HARD_REQUEST_CEILING", "not-a-number")
	_, err := NewLoader().Load()
	require.Error(t, err)
}

func TestLogBuild(t *testing.T) {
	logger, err := LogConfig{Level: "warn", Format: "console"}.Build()
	require.NoError(t, err)
	require.NotNil(t, logger)

	_, err = LogConfig{Level: "bogus"}.Build()
	require.Error(t, err)
}
