package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoad_FileSizeLimit(t *testing.T) {
	tmpDir := t.TempDir()

	largeFile := filepath.Join(tmpDir, "large.yaml")
	data := strings.Repeat("x: value\n", 200000) // ~1.6MB
	require.NoError(t, os.WriteFile(largeFile, []byte(data), 0600))

	_, err := Load(largeFile)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestLoad_ValidFile(t *testing.T) {
	tmpDir := t.TempDir()

	validConfig := `
api_key: test-key
base_url: api.example.com
model: gpt-4
options:
  temperature: 0.5
batch:
  concurrency: 8
  max_requests: 3
  timeout: 30s
  jitter: 2s
  requests_per_second: 5
checkpoint:
  path: /tmp/run.jsonl
logging:
  level: debug
  format: json
tracing:
  exporter: stdout
metrics_port: 9090
`
	path := filepath.Join(tmpDir, "valid.yaml")
	require.NoError(t, os.WriteFile(path, []byte(validConfig), 0600))

	cfg, err := load(path, envMap(nil))
	require.NoError(t, err)

	assert.Equal(t, "test-key", cfg.APIKey)
	assert.Equal(t, "https://api.example.com", cfg.BaseURL)
	assert.Equal(t, "gpt-4", cfg.Model)
	assert.Equal(t, 0.5, cfg.Options["temperature"])
	assert.Equal(t, 8, cfg.Batch.Concurrency)
	assert.Equal(t, 3, cfg.Batch.MaxRequests)
	assert.Equal(t, 30*time.Second, cfg.Batch.Timeout)
	assert.Equal(t, 2*time.Second, cfg.Batch.Jitter)
	assert.Equal(t, 5.0, cfg.Batch.RequestsPerSecond)
	assert.Equal(t, "/tmp/run.jsonl", cfg.Checkpoint.Path)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "stdout", cfg.Tracing.Exporter)
	assert.Equal(t, 9090, cfg.MetricsPort)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_DefaultsAndEnv(t *testing.T) {
	cfg, err := load("", envMap(map[string]string{
		"OPENAI_API_KEY":       "env-key",
		"OPENAI_API_BASE_URL":  "proxy.example.com",
		"CHATBATCH_CHECKPOINT": "progress.jsonl",
		"CHATBATCH_REDIS_ADDR": "localhost:6379",
	}))
	require.NoError(t, err)

	assert.Equal(t, "env-key", cfg.APIKey)
	assert.Equal(t, "https://proxy.example.com", cfg.BaseURL)
	assert.Equal(t, DefaultModel, cfg.Model)
	assert.Equal(t, 1, cfg.Batch.Concurrency)
	assert.Equal(t, 1, cfg.Batch.MaxRequests)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "progress.jsonl", cfg.Checkpoint.Path)
	assert.Equal(t, "localhost:6379", cfg.Checkpoint.RedisAddr)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.yaml")
	body := "api_key: file-key\nbase_url: file.example\ncheckpoint:\n  path: file.jsonl\n  redis_addr: file:6379\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))

	cfg, err := load(path, envMap(map[string]string{
		"OPENAI_API_KEY":       "env-key",
		"OPENAI_BASE_URL":      "https://env.example",
		"CHATBATCH_CHECKPOINT": "env.jsonl",
		"CHATBATCH_REDIS_ADDR": "env:6379",
	}))
	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.APIKey)
	assert.Equal(t, "https://env.example", cfg.BaseURL)
	assert.Equal(t, "env.jsonl", cfg.Checkpoint.Path)
	assert.Equal(t, "env:6379", cfg.Checkpoint.RedisAddr)

	cfg, err = load(path, envMap(nil))
	require.NoError(t, err)
	assert.Equal(t, "file-key", cfg.APIKey)
	assert.Equal(t, "https://file.example", cfg.BaseURL, "file value is kept and normalized when the environment is silent")
	assert.Equal(t, "file.jsonl", cfg.Checkpoint.Path)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("batch: [unclosed"), 0600))
	_, err = Load(bad)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing_key", mutate: func(c *Config) { c.APIKey = "" }, wantErr: "api_key"},
		{name: "zero_concurrency", mutate: func(c *Config) { c.Batch.Concurrency = 0 }, wantErr: "concurrency"},
		{name: "negative_max_requests", mutate: func(c *Config) { c.Batch.MaxRequests = -1 }, wantErr: "max_requests"},
		{name: "negative_jitter", mutate: func(c *Config) { c.Batch.Jitter = -time.Second }, wantErr: "jitter"},
		{name: "negative_rps", mutate: func(c *Config) { c.Batch.RequestsPerSecond = -1 }, wantErr: "requests_per_second"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := load("", envMap(map[string]string{"OPENAI_API_KEY": "k"}))
			require.NoError(t, err)
			tt.mutate(cfg)

			err = cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saved.yaml")
	cfg, err := load("", envMap(map[string]string{"OPENAI_API_KEY": "k"}))
	require.NoError(t, err)
	cfg.Batch.Concurrency = 4

	require.NoError(t, Save(cfg, path))

	loaded, err := load(path, envMap(nil))
	require.NoError(t, err)
	assert.Equal(t, 4, loaded.Batch.Concurrency)
	assert.Equal(t, "k", loaded.APIKey)
}
