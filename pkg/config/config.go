// Package config provides configuration loading, validation, and management
// for the execution engine.
//
// A single global Config instance is maintained in memory, protected by a
// mutex. GetConfig returns the config BY VALUE so callers cannot mutate
// shared state; all changes go through LoadConfig.
package config

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"ctoengine/pkg/logx"
)

// Provider name constants.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderGoogle    = "google"
	ProviderOllama    = "ollama"
	ProviderMock      = "mock"
)

// Global config instance with mutex protection.
//
//nolint:gochecknoglobals // Intentional singleton pattern for config management
var (
	config *Config
	logger *logx.Logger
	mu     sync.RWMutex
)

func getLogger() *logx.Logger {
	if logger == nil {
		logger = logx.NewLogger("config")
	}
	return logger
}

// SafetyConfig governs pre-execution task validation.
type SafetyConfig struct {
	// DenylistPhrases are case-insensitive substrings that block a task
	// description outright. Coarse by design; false positives acceptable.
	DenylistPhrases []string `yaml:"denylist_phrases"`
}

// SandboxConfig controls container runtime selection and resource limits.
type SandboxConfig struct {
	// Runtime is "docker", "podman" or "auto" (detect at startup).
	Runtime string `yaml:"runtime"`
	Image   string `yaml:"image"`

	// Limits for safety-validation sandboxes.
	SandboxMemory string `yaml:"sandbox_memory"`
	SandboxCPUs   string `yaml:"sandbox_cpus"`

	// Limits for coding-task containers.
	CodingMemory string `yaml:"coding_memory"`
	CodingCPUs   string `yaml:"coding_cpus"`

	// StaleAfterSeconds bounds how long an orphaned environment may live
	// before the sweeper reclaims it.
	StaleAfterSeconds int `yaml:"stale_after_seconds"`
}

// ExecutorConfig controls change-generation agents and workspace handling.
type ExecutorConfig struct {
	// DefaultAgent is used when a task does not pin one.
	DefaultAgent string `yaml:"default_agent"`

	// WorkspaceRoot holds persistent per-repository clones.
	WorkspaceRoot string `yaml:"workspace_root"`

	GitUserName  string `yaml:"git_user_name"`
	GitUserEmail string `yaml:"git_user_email"`
}

// OracleConfig selects the LLM provider used for assessment and review.
type OracleConfig struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`

	// PromptTokenLimit bounds diff context sent to the reviewer.
	PromptTokenLimit int `yaml:"prompt_token_limit"`

	// OllamaHost is only used with the ollama provider.
	OllamaHost string `yaml:"ollama_host"`
}

// MetricsConfig controls the Prometheus recorder and query service.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`

	// PrometheusURL points the query service at a scrape server.
	PrometheusURL string `yaml:"prometheus_url"`
}

// PersistenceConfig controls the decision audit store.
type PersistenceConfig struct {
	DBPath string `yaml:"db_path"`
}

// Config is the root engine configuration.
//
//nolint:govet // Logical grouping preferred over memory optimization
type Config struct {
	Safety      SafetyConfig      `yaml:"safety"`
	Sandbox     SandboxConfig     `yaml:"sandbox"`
	Executor    ExecutorConfig    `yaml:"executor"`
	Oracle      OracleConfig      `yaml:"oracle"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Persistence PersistenceConfig `yaml:"persistence"`

	// MaxConcurrentTasks bounds simultaneous workflow executions.
	MaxConcurrentTasks int `yaml:"max_concurrent_tasks"`
}

// DefaultDenylistPhrases are the phrases blocked when none are configured.
func DefaultDenylistPhrases() []string {
	return []string{
		"delete all",
		"drop table",
		"remove all data",
		"format disk",
		"wipe",
		"destroy",
		"credentials",
		"passwords",
		"api keys",
	}
}

// DefaultConfig returns a config with all defaults applied.
func DefaultConfig() *Config {
	return &Config{
		Safety: SafetyConfig{
			DenylistPhrases: DefaultDenylistPhrases(),
		},
		Sandbox: SandboxConfig{
			Runtime:           "auto",
			Image:             "ubuntu:24.04",
			SandboxMemory:     "512m",
			SandboxCPUs:       "0.5",
			CodingMemory:      "2g",
			CodingCPUs:        "1",
			StaleAfterSeconds: 3600,
		},
		Executor: ExecutorConfig{
			DefaultAgent:  "claude_code",
			WorkspaceRoot: ".ctoengine/workspaces",
			GitUserName:   "cto-engine",
			GitUserEmail:  "cto-engine@localhost",
		},
		Oracle: OracleConfig{
			Provider:         ProviderAnthropic,
			Model:            "claude-sonnet-4-20250514",
			MaxTokens:        4096,
			PromptTokenLimit: 8000,
			OllamaHost:       "http://localhost:11434",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9090",
		},
		Persistence: PersistenceConfig{
			DBPath: ".ctoengine/decisions.db",
		},
		MaxConcurrentTasks: 4,
	}
}

// applyDefaults fills zero-valued fields after unmarshalling a partial file.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()

	if len(c.Safety.DenylistPhrases) == 0 {
		c.Safety.DenylistPhrases = defaults.Safety.DenylistPhrases
	}
	if c.Sandbox.Runtime == "" {
		c.Sandbox.Runtime = defaults.Sandbox.Runtime
	}
	if c.Sandbox.Image == "" {
		c.Sandbox.Image = defaults.Sandbox.Image
	}
	if c.Sandbox.SandboxMemory == "" {
		c.Sandbox.SandboxMemory = defaults.Sandbox.SandboxMemory
	}
	if c.Sandbox.SandboxCPUs == "" {
		c.Sandbox.SandboxCPUs = defaults.Sandbox.SandboxCPUs
	}
	if c.Sandbox.CodingMemory == "" {
		c.Sandbox.CodingMemory = defaults.Sandbox.CodingMemory
	}
	if c.Sandbox.CodingCPUs == "" {
		c.Sandbox.CodingCPUs = defaults.Sandbox.CodingCPUs
	}
	if c.Sandbox.StaleAfterSeconds == 0 {
		c.Sandbox.StaleAfterSeconds = defaults.Sandbox.StaleAfterSeconds
	}
	if c.Executor.DefaultAgent == "" {
		c.Executor.DefaultAgent = defaults.Executor.DefaultAgent
	}
	if c.Executor.WorkspaceRoot == "" {
		c.Executor.WorkspaceRoot = defaults.Executor.WorkspaceRoot
	}
	if c.Executor.GitUserName == "" {
		c.Executor.GitUserName = defaults.Executor.GitUserName
	}
	if c.Executor.GitUserEmail == "" {
		c.Executor.GitUserEmail = defaults.Executor.GitUserEmail
	}
	if c.Oracle.Provider == "" {
		c.Oracle.Provider = defaults.Oracle.Provider
	}
	if c.Oracle.Model == "" {
		c.Oracle.Model = defaults.Oracle.Model
	}
	if c.Oracle.MaxTokens == 0 {
		c.Oracle.MaxTokens = defaults.Oracle.MaxTokens
	}
	if c.Oracle.PromptTokenLimit == 0 {
		c.Oracle.PromptTokenLimit = defaults.Oracle.PromptTokenLimit
	}
	if c.Oracle.OllamaHost == "" {
		c.Oracle.OllamaHost = defaults.Oracle.OllamaHost
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = defaults.Metrics.Addr
	}
	if c.Persistence.DBPath == "" {
		c.Persistence.DBPath = defaults.Persistence.DBPath
	}
	if c.MaxConcurrentTasks == 0 {
		c.MaxConcurrentTasks = defaults.MaxConcurrentTasks
	}
}

// Validate rejects configs that would fail later in confusing ways.
func (c *Config) Validate() error {
	switch c.Sandbox.Runtime {
	case "auto", "docker", "podman":
	default:
		return fmt.Errorf("invalid sandbox runtime %q (want auto, docker or podman)", c.Sandbox.Runtime)
	}

	switch c.Oracle.Provider {
	case ProviderAnthropic, ProviderOpenAI, ProviderGoogle, ProviderOllama, ProviderMock:
	default:
		return fmt.Errorf("invalid oracle provider %q", c.Oracle.Provider)
	}

	if c.MaxConcurrentTasks < 1 {
		return fmt.Errorf("max_concurrent_tasks must be at least 1, got %d", c.MaxConcurrentTasks)
	}

	return nil
}

// LoadConfig loads configuration from a YAML file, applying defaults for
// fields the file does not set. A missing file yields pure defaults.
func LoadConfig(path string) error {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
			getLogger().Info("Loaded config from %s", path)
		case os.IsNotExist(err):
			getLogger().Info("Config file %s not found, using defaults", path)
		default:
			return fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	config = cfg
	return nil
}

// GetConfig returns a copy of the current config.
func GetConfig() (Config, error) {
	mu.RLock()
	defer mu.RUnlock()
	if config == nil {
		return Config{}, fmt.Errorf("config not loaded, call LoadConfig first")
	}
	return *config, nil
}

// SetConfigForTest installs a config directly. Test use only.
func SetConfigForTest(cfg *Config) {
	mu.Lock()
	defer mu.Unlock()
	config = cfg
}
