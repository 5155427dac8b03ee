// Package config loads the harness configuration. Precedence:
// built-in defaults, then the YAML file, then environment overrides.
//
// Usage:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("agentcore.yaml").
//	    WithEnvPrefix("AGENTCORE").
//	    Load()
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/BaSui01/agentcore/budget"
	"github.com/BaSui01/agentcore/pipeline"
	"github.com/BaSui01/agentcore/router"
	"github.com/BaSui01/agentcore/store"
	"github.com/BaSui01/agentcore/tools"
)

// Config is the full harness configuration.
type Config struct {
	Log      LogConfig           `yaml:"log"`
	Store    StoreConfig         `yaml:"store"`
	Budget   budget.Config       `yaml:"budget"`
	Pipeline pipeline.Config     `yaml:"pipeline"`
	Router   router.Policy       `yaml:"router"`
	Tools    tools.BuiltinConfig `yaml:"tools"`
	Session  SessionConfig       `yaml:"session"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// Build constructs the logger.
func (c LogConfig) Build() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(c.Level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", c.Level, err)
	}
	zc := zap.NewProductionConfig()
	if c.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level
	return zc.Build()
}

// StoreConfig selects the content-store backend for offloaded history
// and evicted tool results.
type StoreConfig struct {
	Backend string            `yaml:"backend"` // memory, file, redis
	Path    string            `yaml:"path"`    // file backend root
	Redis   store.RedisConfig `yaml:"redis"`
}

// Build constructs the configured content store.
func (c StoreConfig) Build() (store.ContentStore, error) {
	switch c.Backend {
	case "", "memory":
		return store.NewMemoryContentStore(), nil
	case "file":
		return store.NewFileContentStore(c.Path)
	case "redis":
		return store.NewRedisContentStore(c.Redis)
	default:
		return nil, fmt.Errorf("unknown content store backend: %s", c.Backend)
	}
}

// SessionConfig configures run-state persistence.
type SessionConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		Log:      LogConfig{Level: "info", Format: "json"},
		Store:    StoreConfig{Backend: "memory", Path: "./data/content"},
		Budget:   budget.DefaultConfig(),
		Pipeline: pipeline.DefaultConfig(),
		Router:   router.DefaultPolicy(),
		Tools:    tools.DefaultBuiltinConfig(),
		Session:  SessionConfig{DatabasePath: "./data/agentcore.db"},
	}
}

// Loader loads configuration with defaults, YAML, and env overrides.
type Loader struct {
	configPath string
	envPrefix  string
}

// NewLoader creates a loader with no file and the AGENTCORE env prefix.
func NewLoader() *Loader {
	return &Loader{envPrefix: "AGENTCORE"}
}

// WithConfigPath sets the YAML file to load. A missing file is not an
// error; defaults and env overrides still apply.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix sets the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// Load resolves the configuration.
func (l *Loader) Load() (*Config, error) {
	cfg := Default()

	if l.configPath != "" {
		data, err := os.ReadFile(l.configPath)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("parse config file %s: %w", l.configPath, err)
			}
		}
	}

	if err := l.applyEnv(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (l *Loader) applyEnv(cfg *Config) error {
	lookup := func(key string) (string, bool) {
		return os.LookupEnv(l.envPrefix + "_" + key)
	}

	if v, ok := lookup("LOG_LEVEL"); ok {
		cfg.Log.Level = v
	}
	if v, ok := lookup("LOG_FORMAT"); ok {
		cfg.Log.Format = v
	}
	if v, ok := lookup("MODEL"); ok {
		cfg.Pipeline.Model = v
	}
	if v, ok := lookup("SYSTEM_PROMPT"); ok {
		cfg.Pipeline.SystemPrompt = v
	}
	if v, ok := lookup("APPROVAL_MODE"); ok {
		cfg.Pipeline.Approval.Mode = pipeline.ApprovalMode(v)
	}
	if v, ok := lookup("STORE_BACKEND"); ok {
		cfg.Store.Backend = v
	}
	if v, ok := lookup("STORE_PATH"); ok {
		cfg.Store.Path = v
	}
	if v, ok := lookup("REDIS_ADDR"); ok {
		cfg.Store.Redis.Addr = v
	}
	if v, ok := lookup("REDIS_PASSWORD"); ok {
		cfg.Store.Redis.Password = v
	}
	if v, ok := lookup("SESSION_DB"); ok {
		cfg.Session.DatabasePath = v
	}
	if v, ok := lookup("WORK_DIR"); ok {
		cfg.Tools.WorkDir = v
	}
	if v, ok := lookup("ENABLE_SHELL"); ok {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("parse %s_ENABLE_SHELL: %w", l.envPrefix, err)
		}
		cfg.Tools.EnableShell = enabled
	}
	if v, ok := lookup("HARD_REQUEST_CEILING"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse %s_HARD_REQUEST_CEILING: %w", l.envPrefix, err)
		}
		cfg.Budget.HardRequestCeiling = n
	}
	if v, ok := lookup("COST_CEILING"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("parse %s_COST_CEILING: %w", l.envPrefix, err)
		}
		cfg.Router.CostCeiling = f
	}
	if v, ok := lookup("MAX_BACKOFF"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse %s_MAX_BACKOFF: %w", l.envPrefix, err)
		}
		cfg.Router.MaxBackoff = d
	}
	return nil
}
