// Package config loads the arbiter configuration from YAML or TOML files
// and the ARBITER_* environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration written as "30s" or "5m" in config files.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Provider is one OpenAI-compatible endpoint. Its models are tried in order
// before the next provider.
type Provider struct {
	Name              string   `yaml:"name" toml:"name"`
	BaseURL           string   `yaml:"base_url" toml:"base_url"`
	APIKeyEnv         string   `yaml:"api_key_env" toml:"api_key_env"`
	Models            []string `yaml:"models" toml:"models"`
	RequestsPerSecond float64  `yaml:"requests_per_second" toml:"requests_per_second"`
	Timeout           Duration `yaml:"timeout" toml:"timeout"`
}

// APIKey reads the provider key from its environment variable.
func (p Provider) APIKey() string {
	if p.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(p.APIKeyEnv)
}

// Redis holds the connection settings of the redis backend.
type Redis struct {
	Addr     string `yaml:"addr" toml:"addr"`
	Password string `yaml:"password" toml:"password"`
	DB       int    `yaml:"db" toml:"db"`
}

// Store selects and configures the checkpoint backend.
type Store struct {
	// Backend is one of memory, file, redis or sqlite.
	Backend string `yaml:"backend" toml:"backend"`
	// Path is the directory of the file backend or the database of the sqlite backend.
	Path   string   `yaml:"path" toml:"path"`
	Redis  Redis    `yaml:"redis" toml:"redis"`
	Prefix string   `yaml:"prefix" toml:"prefix"`
	TTL    Duration `yaml:"ttl" toml:"ttl"`
	// Lock enables the distributed per-thread lock (redis only).
	Lock    bool     `yaml:"lock" toml:"lock"`
	LockTTL Duration `yaml:"lock_ttl" toml:"lock_ttl"`
	// EncryptionKeyEnv names the variable holding a base64 AES-256 key.
	EncryptionKeyEnv string `yaml:"encryption_key_env" toml:"encryption_key_env"`
	// FallbackKeyEnvs name retired keys, tried in order when the active key
	// cannot open a checkpoint.
	FallbackKeyEnvs []string `yaml:"fallback_key_envs" toml:"fallback_key_envs"`
	// RedactPII scrubs personal data from checkpoints before they are written.
	RedactPII bool `yaml:"redact_pii" toml:"redact_pii"`
	// PIIPatterns adds label -> regular expression detectors to the defaults.
	PIIPatterns map[string]string `yaml:"pii_patterns" toml:"pii_patterns"`
}

// Limits bound a single turn.
type Limits struct {
	MaxRetries    int `yaml:"max_retries" toml:"max_retries"`
	MaxToolRounds int `yaml:"max_tool_rounds" toml:"max_tool_rounds"`
	MaxSteps      int `yaml:"max_steps" toml:"max_steps"`
}

// Policy tunes the governance gate.
type Policy struct {
	ConfidenceFloor float64 `yaml:"confidence_floor" toml:"confidence_floor"`
}

// HTTP configures the API server.
type HTTP struct {
	Addr string `yaml:"addr" toml:"addr"`
}

// Metrics configures the standalone prometheus listener. Empty serves
// /metrics on the API server only.
type Metrics struct {
	Addr string `yaml:"addr" toml:"addr"`
}

// Config is the full arbiter configuration.
type Config struct {
	LogLevel  string     `yaml:"log_level" toml:"log_level"`
	LogFormat string     `yaml:"log_format" toml:"log_format"`
	Providers []Provider `yaml:"providers" toml:"providers"`
	Store     Store      `yaml:"store" toml:"store"`
	Limits    Limits     `yaml:"limits" toml:"limits"`
	Policy    Policy     `yaml:"policy" toml:"policy"`
	// Corpus maps a regime (GDPR, CCPA, FDA) to a regulation JSON file.
	Corpus    map[string]string `yaml:"corpus" toml:"corpus"`
	ToolsFile string            `yaml:"tools_file" toml:"tools_file"`
	HTTP      HTTP              `yaml:"http" toml:"http"`
	Metrics   Metrics           `yaml:"metrics" toml:"metrics"`
}

// Default returns a configuration that runs against Groq with an
// OpenRouter fallback and keeps threads in memory.
func Default() *Config {
	return &Config{
		LogLevel:  "info",
		LogFormat: "text",
		Providers: []Provider{
			{
				Name:      "groq",
				BaseURL:   "https://api.groq.com/openai/v1",
				APIKeyEnv: "GROQ_API_KEY",
				Models:    []string{"llama-3.1-8b-instant"},
				Timeout:   Duration{60 * time.Second},
			},
			{
				Name:      "openrouter",
				BaseURL:   "https://openrouter.ai/api/v1",
				APIKeyEnv: "OPENROUTER_API_KEY",
				Models:    []string{"google/gemini-2.0-flash-001"},
				Timeout:   Duration{60 * time.Second},
			},
		},
		Store: Store{
			Backend: "memory",
			Prefix:  "arbiter:",
			LockTTL: Duration{30 * time.Second},
		},
		Limits: Limits{MaxRetries: 3, MaxToolRounds: 2, MaxSteps: 64},
		Policy: Policy{ConfidenceFloor: 0.75},
		Corpus: map[string]string{},
		HTTP:   HTTP{Addr: ":8080"},
	}
}

// Load reads path (YAML unless the extension is .toml), applies environment
// overrides and validates the result. An empty path starts from Default.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := decodeFile(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
		}
		cfg.resolvePaths(filepath.Dir(path))
	}
	cfg.ApplyEnvOverrides()
	cfg.fillDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func decodeFile(cfg *Config, path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return fmt.Errorf("failed to decode TOML file: %w", err)
		}
		return nil
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to decode YAML file: %w", err)
		}
		return nil
	}
}

// resolvePaths makes relative file references relative to the config file.
func (c *Config) resolvePaths(dir string) {
	rel := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	for regime, p := range c.Corpus {
		c.Corpus[regime] = rel(p)
	}
	c.ToolsFile = rel(c.ToolsFile)
	if c.Store.Backend == "file" || c.Store.Backend == "sqlite" {
		c.Store.Path = rel(c.Store.Path)
	}
}

// fillDefaults restores zero values a partial file left behind.
// max_tool_rounds is exempt: zero disables tool dispatch.
func (c *Config) fillDefaults() {
	d := Default()
	if c.Limits.MaxRetries <= 0 {
		c.Limits.MaxRetries = d.Limits.MaxRetries
	}
	if c.Limits.MaxSteps <= 0 {
		c.Limits.MaxSteps = d.Limits.MaxSteps
	}
	if c.Policy.ConfidenceFloor == 0 {
		c.Policy.ConfidenceFloor = d.Policy.ConfidenceFloor
	}
	if c.Store.Backend == "" {
		c.Store.Backend = d.Store.Backend
	}
	if c.Store.LockTTL.Duration == 0 {
		c.Store.LockTTL = d.Store.LockTTL
	}
	if c.Store.Path == "" {
		switch c.Store.Backend {
		case "file":
			c.Store.Path = filepath.Join(".arbiter", "threads")
		case "sqlite":
			c.Store.Path = filepath.Join(".arbiter", "threads.db")
		}
	}
	if c.Corpus == nil {
		c.Corpus = map[string]string{}
	}
}

// ApplyEnvOverrides lets ARBITER_* variables win over file values.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("ARBITER_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("ARBITER_LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
	if v := os.Getenv("ARBITER_STORE"); v != "" {
		c.Store.Backend = v
	}
	if v := os.Getenv("ARBITER_STORE_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("ARBITER_REDIS_ADDR"); v != "" {
		c.Store.Redis.Addr = v
	}
	if v := os.Getenv("ARBITER_REDIS_PASSWORD"); v != "" {
		c.Store.Redis.Password = v
	}
	if v := os.Getenv("ARBITER_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Store.Redis.DB = n
		}
	}
	if v := os.Getenv("ARBITER_REDACT_PII"); v != "" {
		c.Store.RedactPII = envBool(v)
	}
	if v := os.Getenv("ARBITER_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Limits.MaxRetries = n
		}
	}
	if v := os.Getenv("ARBITER_MAX_TOOL_ROUNDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Limits.MaxToolRounds = n
		}
	}
	if v := os.Getenv("ARBITER_TOOLS_FILE"); v != "" {
		c.ToolsFile = v
	}
	if v := os.Getenv("ARBITER_HTTP_ADDR"); v != "" {
		c.HTTP.Addr = v
	}
	if v := os.Getenv("ARBITER_METRICS_ADDR"); v != "" {
		c.Metrics.Addr = v
	}
}

func envBool(v string) bool {
	return v == "1" || strings.EqualFold(v, "true") || strings.EqualFold(v, "yes")
}

// ValidationError is a single invalid field.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors collects every invalid field.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

var (
	validBackends = map[string]bool{"memory": true, "file": true, "redis": true, "sqlite": true}
	validRegimes  = map[string]bool{"GDPR": true, "CCPA": true, "FDA": true}
)

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, ValidationError{"log_format", fmt.Sprintf("invalid format '%s', must be text or json", c.LogFormat)})
	}

	if len(c.Providers) == 0 {
		errs = append(errs, ValidationError{"providers", "at least one provider is required"})
	}
	for i, p := range c.Providers {
		field := fmt.Sprintf("providers[%d]", i)
		if p.BaseURL == "" {
			errs = append(errs, ValidationError{field + ".base_url", "is required"})
		}
		if len(p.Models) == 0 {
			errs = append(errs, ValidationError{field + ".models", "at least one model is required"})
		}
		if p.RequestsPerSecond < 0 {
			errs = append(errs, ValidationError{field + ".requests_per_second", "must not be negative"})
		}
	}

	if !validBackends[c.Store.Backend] {
		errs = append(errs, ValidationError{"store.backend", fmt.Sprintf("invalid backend '%s', must be one of: memory, file, redis, sqlite", c.Store.Backend)})
	}
	if c.Store.Backend == "redis" && c.Store.Redis.Addr == "" {
		errs = append(errs, ValidationError{"store.redis.addr", "is required for the redis backend"})
	}
	if c.Store.Lock && c.Store.Backend != "redis" {
		errs = append(errs, ValidationError{"store.lock", "distributed locking requires the redis backend"})
	}

	if len(c.Store.FallbackKeyEnvs) > 0 && c.Store.EncryptionKeyEnv == "" {
		errs = append(errs, ValidationError{"store.fallback_key_envs", "requires store.encryption_key_env"})
	}

	if c.Limits.MaxRetries < 1 || c.Limits.MaxRetries > 10 {
		errs = append(errs, ValidationError{"limits.max_retries", "must be between 1 and 10"})
	}
	if c.Limits.MaxToolRounds < 0 {
		errs = append(errs, ValidationError{"limits.max_tool_rounds", "must not be negative"})
	}
	if c.Limits.MaxSteps < 8 {
		errs = append(errs, ValidationError{"limits.max_steps", "must be at least 8"})
	}

	if c.Policy.ConfidenceFloor < 0 || c.Policy.ConfidenceFloor > 1 {
		errs = append(errs, ValidationError{"policy.confidence_floor", "must be between 0 and 1"})
	}

	for regime := range c.Corpus {
		if !validRegimes[strings.ToUpper(regime)] {
			errs = append(errs, ValidationError{"corpus." + regime, "unknown regime, must be one of: GDPR, CCPA, FDA"})
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
