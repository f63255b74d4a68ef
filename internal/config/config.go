// Copyright © 2026 Weft Contributors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package config loads engine configuration from weft.yaml, environment
// variables, and defaults. Priority: CLI flags > config file > env vars >
// defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// DefaultConfigFileName is the base name of the config file (weft.yaml).
const DefaultConfigFileName = "weft"

// Config holds all configuration for the Weft engine and CLI.
type Config struct {
	// DataDir is the Weft data directory. It is computed from the
	// WEFT_DATA_DIR environment variable (default ~/.weft), never
	// read from the config file.
	DataDir string `mapstructure:"-"`

	// LLM provider configuration
	LLM LLMConfig `mapstructure:"llm"`

	// Database configuration (checkpoint store)
	Database DatabaseConfig `mapstructure:"database"`

	// Execution configuration (workflow executor)
	Execution ExecutionConfig `mapstructure:"execution"`

	// Definitions configuration (agent/workflow discovery)
	Definitions DefinitionsConfig `mapstructure:"definitions"`

	// Logging configuration
	Logging LoggingConfig `mapstructure:"logging"`
}

// LLMConfig holds LLM provider configuration.
type LLMConfig struct {
	// DefaultModel backs agents that declare no model of their own
	DefaultModel string `mapstructure:"default_model"`

	// DefaultProvider serves models that match no routing rule
	// ("openai" or "anthropic"; empty disables the fallback)
	DefaultProvider string `mapstructure:"default_provider"`

	// OpenAIAPIKey authenticates OpenAI requests (env: WEFT_LLM_OPENAI_API_KEY)
	OpenAIAPIKey string `mapstructure:"openai_api_key"`

	// OpenAIEndpoint overrides the OpenAI API base URL
	OpenAIEndpoint string `mapstructure:"openai_endpoint"`

	// AnthropicAPIKey authenticates Anthropic requests (env: WEFT_LLM_ANTHROPIC_API_KEY)
	AnthropicAPIKey string `mapstructure:"anthropic_api_key"`

	// AnthropicEndpoint overrides the Anthropic API base URL
	AnthropicEndpoint string `mapstructure:"anthropic_endpoint"`

	// TimeoutSeconds bounds a single provider request
	TimeoutSeconds int `mapstructure:"timeout_seconds"`

	// MaxAttempts bounds router retries per completion
	MaxAttempts int `mapstructure:"max_attempts"`

	// RateLimit configures request spacing shared by the provider clients
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig holds provider rate limiting configuration.
type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	BurstCapacity     int     `mapstructure:"burst_capacity"`
}

// DatabaseConfig holds checkpoint store configuration.
type DatabaseConfig struct {
	// Path to the SQLite database file. The literal ":memory:" selects
	// the in-memory store.
	Path string `mapstructure:"path"`
}

// ExecutionConfig holds workflow executor configuration.
type ExecutionConfig struct {
	// DefaultParallelLimit caps concurrent steps when a workflow
	// declares none
	DefaultParallelLimit int `mapstructure:"default_parallel_limit"`
}

// DefinitionsConfig holds definition discovery configuration.
type DefinitionsConfig struct {
	// Dir is scanned for *.agent.yaml and *.workflow.yaml files
	Dir string `mapstructure:"dir"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the zap level name: debug, info, warn, error
	Level string `mapstructure:"level"`

	// Format selects the encoder: "json" or "console"
	Format string `mapstructure:"format"`
}

// GetDataDir returns the Weft data directory, honoring WEFT_DATA_DIR.
func GetDataDir() string {
	if dir := os.Getenv("WEFT_DATA_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".weft"
	}
	return filepath.Join(home, ".weft")
}

// LoadConfig reads configuration with the standard precedence. When cfgFile
// is empty it searches the data directory, the current directory, and
// /etc/weft/ for weft.yaml; a missing file is not an error.
func LoadConfig(cfgFile string) (*Config, error) {
	dataDir := GetDataDir()

	setDefaults(dataDir)

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(dataDir)
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/weft/")
		viper.SetConfigName(DefaultConfigFileName)
		viper.SetConfigType("yaml")
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file %s: %w", viper.ConfigFileUsed(), err)
		}
	}

	// WEFT_LLM_DEFAULT_MODEL, WEFT_LOGGING_LEVEL, and so on. The replacer
	// maps nested keys (llm.default_model) onto the underscore form.
	viper.SetEnvPrefix("WEFT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	config.DataDir = dataDir

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func setDefaults(dataDir string) {
	viper.SetDefault("llm.default_model", "claude-sonnet-4-5")
	viper.SetDefault("llm.default_provider", "")
	viper.SetDefault("llm.openai_endpoint", "")
	viper.SetDefault("llm.anthropic_endpoint", "")
	viper.SetDefault("llm.timeout_seconds", 60)
	viper.SetDefault("llm.max_attempts", 3)
	viper.SetDefault("llm.rate_limit.enabled", true)
	viper.SetDefault("llm.rate_limit.requests_per_second", 2.0)
	viper.SetDefault("llm.rate_limit.burst_capacity", 5)

	viper.SetDefault("database.path", filepath.Join(dataDir, "weft.db"))

	viper.SetDefault("execution.default_parallel_limit", 4)

	viper.SetDefault("definitions.dir", filepath.Join(dataDir, "definitions"))

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "console")
}

// Validate checks configuration consistency.
func (c *Config) Validate() error {
	switch c.LLM.DefaultProvider {
	case "", "openai", "anthropic":
	default:
		return fmt.Errorf("llm.default_provider must be openai or anthropic, got %q", c.LLM.DefaultProvider)
	}
	if c.LLM.TimeoutSeconds < 0 {
		return fmt.Errorf("llm.timeout_seconds must not be negative, got %d", c.LLM.TimeoutSeconds)
	}
	if c.LLM.MaxAttempts < 0 {
		return fmt.Errorf("llm.max_attempts must not be negative, got %d", c.LLM.MaxAttempts)
	}
	if c.LLM.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("llm.rate_limit.requests_per_second must not be negative, got %g", c.LLM.RateLimit.RequestsPerSecond)
	}
	if c.Execution.DefaultParallelLimit < 1 || c.Execution.DefaultParallelLimit > 32 {
		return fmt.Errorf("execution.default_parallel_limit must be between 1 and 32, got %d", c.Execution.DefaultParallelLimit)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	return nil
}

// GenerateExampleConfig returns a commented weft.yaml suitable for writing
// into a fresh data directory.
func GenerateExampleConfig() string {
	return `# Weft configuration
# Place this file at ~/.weft/weft.yaml (or point --config at it).
# Every key can be overridden by an environment variable with the WEFT_
# prefix, e.g. WEFT_LLM_DEFAULT_MODEL.

llm:
  # Model used by agents that declare none of their own.
  default_model: claude-sonnet-4-5

  # Provider for models that match no routing rule.
  # default_provider: anthropic

  # Provider credentials. Prefer the environment variables
  # WEFT_LLM_OPENAI_API_KEY and WEFT_LLM_ANTHROPIC_API_KEY over
  # writing keys into this file.
  # openai_api_key: ""
  # anthropic_api_key: ""

  # Endpoint overrides for proxies and compatible gateways.
  # openai_endpoint: https://api.openai.com/v1
  # anthropic_endpoint: https://api.anthropic.com/v1

  timeout_seconds: 60
  max_attempts: 3

  rate_limit:
    enabled: true
    requests_per_second: 2.0
    burst_capacity: 5

database:
  # SQLite file for run checkpoints. Use ":memory:" for ephemeral runs.
  # path: ~/.weft/weft.db

execution:
  default_parallel_limit: 4

definitions:
  # Directory scanned for *.agent.yaml and *.workflow.yaml files.
  # dir: ~/.weft/definitions

logging:
  level: info
  format: console
`
}
