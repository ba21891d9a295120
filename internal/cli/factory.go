package cli

import (
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/aretw0/arbiter"
	"github.com/aretw0/arbiter/internal/config"
	"github.com/aretw0/arbiter/internal/logging"
	"github.com/aretw0/arbiter/pkg/adapters/file"
	"github.com/aretw0/arbiter/pkg/adapters/memory"
	"github.com/aretw0/arbiter/pkg/adapters/process"
	"github.com/aretw0/arbiter/pkg/adapters/redis"
	"github.com/aretw0/arbiter/pkg/adapters/sqlite"
	"github.com/aretw0/arbiter/pkg/corpus"
	"github.com/aretw0/arbiter/pkg/domain"
	"github.com/aretw0/arbiter/pkg/llm"
	"github.com/aretw0/arbiter/pkg/observability"
	"github.com/aretw0/arbiter/pkg/persistence/middleware"
	"github.com/aretw0/arbiter/pkg/policy"
	"github.com/aretw0/arbiter/pkg/ports"
	"github.com/aretw0/arbiter/pkg/registry"
	"github.com/aretw0/arbiter/pkg/rules"
	"github.com/aretw0/arbiter/pkg/tools"
)

// App is a fully wired agent plus the resources it owns.
type App struct {
	Agent   *arbiter.Agent
	Metrics *observability.Metrics
	Tools   *registry.Registry
	Logger  *slog.Logger

	closers []func() error
}

// Close releases store connections.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewLogger builds the application logger from the config.
func NewLogger(cfg *config.Config) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	if cfg.LogFormat == "json" {
		return logging.NewJSON(os.Stderr, level), nil
	}
	return logging.New(level), nil
}

// buildOptions collects the agent options a factory adds on top of the config.
type buildOptions struct {
	generator ports.Generator
	store     ports.CheckpointStore
}

// BuildOption overrides a collaborator the config would otherwise create.
type BuildOption func(*buildOptions)

// WithGenerator replaces the provider failover chain.
func WithGenerator(g ports.Generator) BuildOption {
	return func(o *buildOptions) { o.generator = g }
}

// WithStore replaces the configured checkpoint backend. Store middleware still applies.
func WithStore(s ports.CheckpointStore) BuildOption {
	return func(o *buildOptions) { o.store = s }
}

// Build wires an Agent from cfg.
func Build(cfg *config.Config, logger *slog.Logger, opts ...BuildOption) (*App, error) {
	var bo buildOptions
	for _, opt := range opts {
		opt(&bo)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	app := &App{Logger: logger, Metrics: observability.NewMetrics(), Tools: registry.NewRegistry()}

	generator := bo.generator
	if generator == nil {
		generator = buildGenerator(cfg, logger)
	}

	store := bo.store
	var locker ports.DistributedLocker
	if store == nil {
		var closer func() error
		var err error
		store, locker, closer, err = buildStore(cfg.Store)
		if err != nil {
			return nil, err
		}
		if closer != nil {
			app.closers = append(app.closers, closer)
		}
	}
	store, err := wrapStore(store, cfg.Store)
	if err != nil {
		app.Close()
		return nil, err
	}

	agentOpts := []arbiter.Option{
		arbiter.WithStore(store),
		arbiter.WithMetrics(app.Metrics),
		arbiter.WithLogger(logger),
		arbiter.WithLifecycleHooks(observability.LoggingHooks(logger)),
		arbiter.WithRegimeRuleChecker(domain.RegimeGDPR, rules.GDPR()),
		arbiter.WithPolicy(&policy.Threshold{
			ConfidenceFloor: cfg.Policy.ConfidenceFloor,
			HoldTiers:       []domain.RiskTier{domain.RiskCritical},
		}),
		arbiter.WithLimits(arbiter.Limits{
			MaxRetries: cfg.Limits.MaxRetries,
			MaxSteps:   cfg.Limits.MaxSteps,
		}),
		arbiter.WithMaxToolRounds(cfg.Limits.MaxToolRounds),
	}
	if locker != nil {
		agentOpts = append(agentOpts, arbiter.WithLocker(locker))
	}

	corpora, err := loadCorpora(cfg.Corpus)
	if err != nil {
		app.Close()
		return nil, err
	}
	for regime, c := range corpora {
		agentOpts = append(agentOpts, arbiter.WithRetriever(regime, corpus.NewRetriever(c)))
	}
	if _, ok := corpora[domain.RegimeGDPR]; !ok {
		logger.Warn("no GDPR corpus configured, GDPR analyses will report insufficient context")
	}

	if len(corpora) > 0 {
		tools.Register(app.Tools, corpora)
	}
	if cfg.ToolsFile != "" {
		procs, err := process.LoadTools(cfg.ToolsFile)
		if err != nil {
			app.Close()
			return nil, err
		}
		process.NewRunner(process.WithRegistry(procs)).RegisterAll(app.Tools)
	}
	if app.Tools.Len() > 0 {
		agentOpts = append(agentOpts, arbiter.WithTools(app.Tools))
	}

	agent, err := arbiter.New(generator, agentOpts...)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Agent = agent
	return app, nil
}

func buildGenerator(cfg *config.Config, logger *slog.Logger) *llm.Failover {
	var targets []llm.Target
	for _, p := range cfg.Providers {
		key := p.APIKey()
		if p.APIKeyEnv != "" && key == "" {
			logger.Warn("provider key not set, skipping provider", "provider", p.Name, "env", p.APIKeyEnv)
			continue
		}
		client := llm.NewClient(p.BaseURL, key,
			llm.WithName(p.Name),
			llm.WithTimeout(p.Timeout.Duration),
			llm.WithRateLimit(p.RequestsPerSecond),
			llm.WithLogger(logger),
		)
		for _, model := range p.Models {
			targets = append(targets, llm.Target{Provider: client, Model: model})
		}
	}
	return llm.NewFailover(targets, llm.WithFailoverLogger(logger))
}

func buildStore(sc config.Store) (ports.CheckpointStore, ports.DistributedLocker, func() error, error) {
	switch sc.Backend {
	case "", "memory":
		return memory.NewStore(), nil, nil, nil
	case "file":
		return file.NewStore(sc.Path), nil, nil, nil
	case "sqlite":
		s, err := sqlite.Open(sc.Path)
		if err != nil {
			return nil, nil, nil, err
		}
		return s, nil, s.Close, nil
	case "redis":
		s := redis.New(sc.Redis.Addr, sc.Redis.Password, sc.Redis.DB,
			redis.WithPrefix(sc.Prefix),
			redis.WithTTL(sc.TTL.Duration),
		)
		var locker ports.DistributedLocker
		if sc.Lock {
			locker = redis.NewLocker(s.Client(), sc.Prefix)
		}
		return s, locker, s.Close, nil
	}
	return nil, nil, nil, fmt.Errorf("unknown store backend %q", sc.Backend)
}

// wrapStore applies redaction before encryption, so the sealed envelope never holds raw PII.
func wrapStore(store ports.CheckpointStore, sc config.Store) (ports.CheckpointStore, error) {
	var mws []middleware.Middleware
	if sc.RedactPII || len(sc.PIIPatterns) > 0 {
		patterns := middleware.DefaultPatterns()
		extra, err := middleware.CompilePatterns(sc.PIIPatterns)
		if err != nil {
			return nil, err
		}
		mws = append(mws, middleware.NewPIIMiddleware(append(patterns, extra...)...))
	}
	if sc.EncryptionKeyEnv != "" {
		key, err := envKey(sc.EncryptionKeyEnv)
		if err != nil {
			return nil, err
		}
		ec := middleware.EncryptionConfig{ActiveKey: key}
		for _, name := range sc.FallbackKeyEnvs {
			fallback, err := envKey(name)
			if err != nil {
				return nil, err
			}
			ec.FallbackKeys = append(ec.FallbackKeys, fallback)
		}
		enc, err := middleware.NewEncryptionMiddleware(ec)
		if err != nil {
			return nil, err
		}
		mws = append(mws, enc)
	}
	return middleware.Chain(store, mws...), nil
}

// envKey decodes the base64 key held by the named variable.
func envKey(name string) ([]byte, error) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return nil, fmt.Errorf("encryption key variable %s is empty", name)
	}
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("encryption key %s is not base64: %w", name, err)
	}
	return key, nil
}

func loadCorpora(paths map[string]string) (map[domain.Regime]*corpus.Corpus, error) {
	out := make(map[domain.Regime]*corpus.Corpus, len(paths))
	for name, path := range paths {
		regime, err := domain.ParseRegime(name)
		if err != nil {
			return nil, err
		}
		c, err := corpus.Load(path)
		if err != nil {
			return nil, err
		}
		out[regime] = c
	}
	return out, nil
}
