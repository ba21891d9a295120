package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, Limits{MaxRetries: 3, MaxToolRounds: 2, MaxSteps: 64}, cfg.Limits)
	require.Len(t, cfg.Providers, 2)
	assert.Equal(t, "groq", cfg.Providers[0].Name)
	assert.Equal(t, 60*time.Second, cfg.Providers[0].Timeout.Duration)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
}

func TestLoad_YAML(t *testing.T) {
	path := write(t, "arbiter.yaml", `
log_level: debug
providers:
  - name: local
    base_url: http://localhost:11434/v1
    models: [llama3, mistral]
    requests_per_second: 2
    timeout: 15s
store:
  backend: sqlite
  path: data/threads.db
  redact_pii: true
  encryption_key_env: ARBITER_KEY
  fallback_key_envs: [ARBITER_OLD_KEY]
  pii_patterns:
    employee_id: "EMP-\\d{6}"
limits:
  max_tool_rounds: 1
corpus:
  GDPR: corpus/gdpr.json
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	dir := filepath.Dir(path)
	assert.Equal(t, "debug", cfg.LogLevel)
	require.Len(t, cfg.Providers, 1)
	assert.Equal(t, []string{"llama3", "mistral"}, cfg.Providers[0].Models)
	assert.Equal(t, 15*time.Second, cfg.Providers[0].Timeout.Duration)
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, filepath.Join(dir, "data/threads.db"), cfg.Store.Path)
	assert.True(t, cfg.Store.RedactPII)
	assert.Equal(t, []string{"ARBITER_OLD_KEY"}, cfg.Store.FallbackKeyEnvs)
	assert.Equal(t, `EMP-\d{6}`, cfg.Store.PIIPatterns["employee_id"])
	assert.Equal(t, 1, cfg.Limits.MaxToolRounds)
	assert.Equal(t, 3, cfg.Limits.MaxRetries, "untouched limits keep defaults")
	assert.Equal(t, filepath.Join(dir, "corpus/gdpr.json"), cfg.Corpus["GDPR"])
}

func TestLoad_TOML(t *testing.T) {
	path := write(t, "arbiter.toml", `
log_level = "warn"

[[providers]]
name = "groq"
base_url = "https://api.groq.com/openai/v1"
api_key_env = "ARBITER_TEST_KEY"
models = ["llama-3.1-8b-instant"]
timeout = "5s"

[store]
backend = "redis"
lock = true
ttl = "24h"

[store.redis]
addr = "localhost:6379"
db = 2
`)
	t.Setenv("ARBITER_TEST_KEY", "secret")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "secret", cfg.Providers[0].APIKey())
	assert.Equal(t, 5*time.Second, cfg.Providers[0].Timeout.Duration)
	assert.Equal(t, "redis", cfg.Store.Backend)
	assert.True(t, cfg.Store.Lock)
	assert.Equal(t, 24*time.Hour, cfg.Store.TTL.Duration)
	assert.Equal(t, 2, cfg.Store.Redis.DB)
	assert.Equal(t, 30*time.Second, cfg.Store.LockTTL.Duration)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("ARBITER_STORE", "file")
	t.Setenv("ARBITER_STORE_PATH", "/tmp/threads")
	t.Setenv("ARBITER_MAX_RETRIES", "5")
	t.Setenv("ARBITER_REDACT_PII", "true")
	t.Setenv("ARBITER_HTTP_ADDR", ":9090")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "file", cfg.Store.Backend)
	assert.Equal(t, "/tmp/threads", cfg.Store.Path)
	assert.Equal(t, 5, cfg.Limits.MaxRetries)
	assert.True(t, cfg.Store.RedactPII)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
}

func TestLoad_FileBackendDefaultPath(t *testing.T) {
	t.Setenv("ARBITER_STORE", "file")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(".arbiter", "threads"), cfg.Store.Path)
}

func TestLoad_ZeroToolRoundsDisablesTools(t *testing.T) {
	cfg, err := Load(write(t, "arbiter.yaml", "limits:\n  max_tool_rounds: 0\n"))
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Limits.MaxToolRounds)
	assert.Equal(t, 3, cfg.Limits.MaxRetries)

	cfg, err = Load(write(t, "arbiter.toml", "[limits]\nmax_tool_rounds = 0\n"))
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Limits.MaxToolRounds)

	cfg, err = Load(write(t, "partial.yaml", "log_level: debug\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Limits.MaxToolRounds, "an absent key keeps the default")
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(write(t, "bad.yaml", "providers: [\n"))
	assert.Error(t, err)

	_, err = Load(write(t, "bad.toml", "store = \n"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"unknown backend", func(c *Config) { c.Store.Backend = "etcd" }, "store.backend"},
		{"redis without addr", func(c *Config) { c.Store.Backend = "redis" }, "store.redis.addr"},
		{"lock without redis", func(c *Config) { c.Store.Lock = true }, "store.lock"},
		{"no providers", func(c *Config) { c.Providers = nil }, "providers"},
		{"provider without models", func(c *Config) { c.Providers[0].Models = nil }, "providers[0].models"},
		{"retries out of range", func(c *Config) { c.Limits.MaxRetries = 11 }, "limits.max_retries"},
		{"too few steps", func(c *Config) { c.Limits.MaxSteps = 3 }, "limits.max_steps"},
		{"confidence floor", func(c *Config) { c.Policy.ConfidenceFloor = 1.5 }, "policy.confidence_floor"},
		{"unknown corpus regime", func(c *Config) { c.Corpus["HIPAA"] = "x.json" }, "corpus.HIPAA"},
		{"log format", func(c *Config) { c.LogFormat = "xml" }, "log_format"},
		{"fallback keys without active key", func(c *Config) { c.Store.FallbackKeyEnvs = []string{"OLD_KEY"} }, "store.fallback_key_envs"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)

			var verrs ValidateErrors
			require.True(t, errors.As(err, &verrs))
			fields := make([]string, len(verrs))
			for i, v := range verrs {
				fields[i] = v.Field
			}
			assert.Contains(t, fields, tt.field)
		})
	}

	assert.NoError(t, Default().Validate())
}
