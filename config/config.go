// Package config loads buildagent settings and resolves them into a bound
// LLM client.
//
// Precedence, lowest first: built-in defaults, the YAML file, BUILDAGENT_*
// environment variables, then command-line flags applied by the caller.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultFileName is looked up in the project directory when no explicit
// config path is given.
const DefaultFileName = ".buildagent.yaml"

// Config holds all user-facing settings.
type Config struct {
	Provider      string        `yaml:"provider,omitempty"`
	Model         string        `yaml:"model,omitempty"`
	APIKey        string        `yaml:"api_key,omitempty"`
	BaseURL       string        `yaml:"base_url,omitempty"`
	MaxIterations int           `yaml:"max_iterations,omitempty"`
	BuildTool     string        `yaml:"build_tool,omitempty"`
	TaskTimeout   time.Duration `yaml:"task_timeout,omitempty"`
	MaxTokens     int           `yaml:"max_tokens,omitempty"`
	Temperature   *float64      `yaml:"temperature,omitempty"`
	Retry         RetryConfig   `yaml:"retry,omitempty"`
}

// RetryConfig enables client-side retries of transient provider errors.
type RetryConfig struct {
	MaxRetries int `yaml:"max_retries,omitempty"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		MaxTokens: 4096,
	}
}

// LoadFile reads a YAML config file over the defaults.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Load reads path when set, otherwise DefaultFileName in projectDir if it
// exists, then applies environment overrides from the process environment.
func Load(path, projectDir string) (Config, error) {
	cfg := Default()
	if path == "" {
		candidate := filepath.Join(projectDir, DefaultFileName)
		if _, err := os.Stat(candidate); err == nil {
			path = candidate
		}
	}
	if path != "" {
		loaded, err := LoadFile(path)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from BUILDAGENT_* variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("BUILDAGENT_PROVIDER"); ok && v != "" {
		c.Provider = v
	}
	if v, ok := lookup("BUILDAGENT_MODEL"); ok && v != "" {
		c.Model = v
	}
	if v, ok := lookup("BUILDAGENT_BUILD_TOOL"); ok && v != "" {
		c.BuildTool = v
	}
	if v, ok := lookup("BUILDAGENT_MAX_ITERATIONS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("BUILDAGENT_MAX_ITERATIONS: %w", err)
		}
		c.MaxIterations = n
	}
	return nil
}

// Validate checks field values. Missing credentials are reported by Resolve.
func (c Config) Validate() error {
	var errs []error
	if c.Provider != "" {
		if _, ok := providers[c.Provider]; !ok {
			errs = append(errs, fmt.Errorf("unknown provider %q (known: %s)", c.Provider, strings.Join(ProviderNames(), ", ")))
		}
	}
	if c.MaxIterations < 0 {
		errs = append(errs, fmt.Errorf("max_iterations must not be negative, got %d", c.MaxIterations))
	}
	if c.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("max_tokens must not be negative, got %d", c.MaxTokens))
	}
	if c.TaskTimeout < 0 {
		errs = append(errs, fmt.Errorf("task_timeout must not be negative, got %s", c.TaskTimeout))
	}
	if c.Retry.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("retry.max_retries must not be negative, got %d", c.Retry.MaxRetries))
	}
	switch c.BuildTool {
	case "", "gradle", "make":
	default:
		errs = append(errs, fmt.Errorf("unknown build_tool %q", c.BuildTool))
	}
	return errors.Join(errs...)
}

// String renders the config with the API key redacted.
func (c Config) String() string {
	redacted := c
	if redacted.APIKey != "" {
		redacted.APIKey = redact(redacted.APIKey)
	}
	data, err := yaml.Marshal(redacted)
	if err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return string(data)
}

func redact(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****"
}
