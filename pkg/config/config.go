package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/aixgo-dev/chatbatch/pkg/client"
	"github.com/aixgo-dev/chatbatch/pkg/observability"
)

// Config represents the application configuration
type Config struct {
	// API access
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	ChatURL string `yaml:"chat_url"`
	// UseSDK routes calls through the go-openai client instead of raw HTTP.
	UseSDK bool `yaml:"use_sdk"`

	// Model Configuration
	Model   string         `yaml:"model"`
	Options map[string]any `yaml:"options"`

	Batch      BatchConfig                 `yaml:"batch"`
	Checkpoint CheckpointConfig            `yaml:"checkpoint"`
	Logging    LoggingConfig               `yaml:"logging"`
	Tracing    observability.TracingConfig `yaml:"tracing"`
	// MetricsPort enables the /metrics and /health server when non-zero.
	MetricsPort int `yaml:"metrics_port"`
}

// BatchConfig holds dispatcher limits
type BatchConfig struct {
	Concurrency       int           `yaml:"concurrency"`
	MaxRequests       int           `yaml:"max_requests"`
	Timeout           time.Duration `yaml:"timeout"`
	Jitter            time.Duration `yaml:"jitter"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
}

// CheckpointConfig selects where progress is persisted
type CheckpointConfig struct {
	Path          string `yaml:"path"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	RedisPrefix   string `yaml:"redis_prefix"`
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

const (
	// DefaultModel is used when no model is configured.
	DefaultModel = "gpt-3.5-turbo"

	maxConfigSize = 1 << 20
)

// Load reads configuration from a YAML file, applies defaults and then lets
// set environment variables override it. An empty path yields defaults plus
// environment.
func Load(path string) (*Config, error) {
	return load(path, os.Getenv)
}

func load(path string, getenv func(string) string) (*Config, error) {
	var cfg Config

	if path != "" {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if info.Size() > maxConfigSize {
			return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigSize)
		}

		data, err := os.ReadFile(path) // #nosec G304 - path chosen by the operator
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyDefaults()
	cfg.applyEnv(getenv)

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.Batch.Concurrency == 0 {
		c.Batch.Concurrency = 1
	}
	if c.Batch.MaxRequests == 0 {
		c.Batch.MaxRequests = 1
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
}

// applyEnv overrides file values with the environment. The base URL is
// resolved once here and never changed afterwards.
func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("OPENAI_API_KEY"); v != "" {
		c.APIKey = v
	}
	if base := client.ResolveBaseURL(getenv); base != client.DefaultBaseURL || c.BaseURL == "" {
		c.BaseURL = base
	} else {
		c.BaseURL = client.NormalizeURL(c.BaseURL)
	}
	if v := getenv("CHATBATCH_CHECKPOINT"); v != "" {
		c.Checkpoint.Path = v
	}
	if v := getenv("CHATBATCH_REDIS_ADDR"); v != "" {
		c.Checkpoint.RedisAddr = v
	}
}

// Validate checks if the configuration is usable for API calls
func (c *Config) Validate() error {
	var errs []error
	if c.APIKey == "" {
		errs = append(errs, errors.New("api_key is required (or set OPENAI_API_KEY)"))
	}
	if c.Model == "" {
		errs = append(errs, errors.New("model is required"))
	}
	if c.Batch.Concurrency <= 0 {
		errs = append(errs, fmt.Errorf("batch.concurrency must be greater than 0, got %d", c.Batch.Concurrency))
	}
	if c.Batch.MaxRequests <= 0 {
		errs = append(errs, fmt.Errorf("batch.max_requests must be greater than 0, got %d", c.Batch.MaxRequests))
	}
	if c.Batch.Timeout < 0 || c.Batch.Jitter < 0 {
		errs = append(errs, errors.New("batch.timeout and batch.jitter cannot be negative"))
	}
	if c.Batch.RequestsPerSecond < 0 {
		errs = append(errs, errors.New("batch.requests_per_second cannot be negative"))
	}
	return errors.Join(errs...)
}

// Save writes the configuration to a YAML file
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
