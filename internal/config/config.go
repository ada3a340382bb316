// Package config loads engine settings from <workspace>/.planforge/config.json.
// A missing file means production defaults, never an error.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"planforge/internal/workspace"
)

// Config holds all planforge configuration.
type Config struct {
	// Completion oracle
	Oracle OracleConfig `json:"oracle"`

	// Task execution
	Execution ExecutionConfig `json:"execution"`

	// Logging
	Logging LoggingConfig `json:"logging"`
}

// OracleConfig configures the completion oracle used during decomposition.
type OracleConfig struct {
	Provider string `json:"provider"` // none, gemini, genai
	APIKey   string `json:"api_key"`
	Model    string `json:"model"`
	BaseURL  string `json:"base_url"`
	Timeout  string `json:"timeout"`
}

// ExecutionConfig configures the executor and its sandbox.
type ExecutionConfig struct {
	// Upper bound on concurrently running tasks per plan.
	MaxParallel int `json:"max_parallel"`

	// Timeout for a single shell command.
	CommandTimeout string `json:"command_timeout"`

	// Extra directories the sandbox may touch, beyond the workspace root.
	AllowedRoots []string `json:"allowed_roots"`
}

// LoggingConfig mirrors the section the logging package reads on its own.
type LoggingConfig struct {
	DebugMode  bool            `json:"debug_mode"`
	Categories map[string]bool `json:"categories"`
	Level      string          `json:"level"`
}

// DefaultConfig returns the default configuration: offline oracle, three
// workers, quiet logs.
func DefaultConfig() *Config {
	return &Config{
		Oracle: OracleConfig{
			Provider: "none",
			Model:    "gemini-2.0-flash",
			Timeout:  "2m",
		},
		Execution: ExecutionConfig{
			MaxParallel:    3,
			CommandTimeout: "60s",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Path returns the config file location for a workspace.
func Path(root string) string {
	return filepath.Join(root, workspace.StateDirName, "config.json")
}

// Load reads the workspace config, applying defaults and environment
// overrides.
func Load(root string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(Path(root))
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the config back to the workspace.
func (c *Config) Save(root string) error {
	path := Path(root)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides. An API key in the
// environment also selects its provider when none is configured.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Oracle.APIKey = key
		if c.Oracle.Provider == "" || c.Oracle.Provider == "none" {
			c.Oracle.Provider = "gemini"
		}
	}
	if key := os.Getenv("GOOGLE_API_KEY"); key != "" && c.Oracle.APIKey == "" {
		c.Oracle.APIKey = key
		if c.Oracle.Provider == "" || c.Oracle.Provider == "none" {
			c.Oracle.Provider = "genai"
		}
	}
	if v := os.Getenv("PLANFORGE_MAX_PARALLEL"); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil && n > 0 {
			c.Execution.MaxParallel = n
		}
	}
}

// OracleTimeout returns the oracle timeout as a duration.
func (c *Config) OracleTimeout() time.Duration {
	d, err := time.ParseDuration(c.Oracle.Timeout)
	if err != nil {
		return 2 * time.Minute
	}
	return d
}

// CommandTimeout returns the shell command timeout as a duration.
func (c *Config) CommandTimeout() time.Duration {
	d, err := time.ParseDuration(c.Execution.CommandTimeout)
	if err != nil {
		return 60 * time.Second
	}
	return d
}
