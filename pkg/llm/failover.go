package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aretw0/arbiter/internal/logging"
	"github.com/aretw0/arbiter/pkg/domain"
	"github.com/aretw0/arbiter/pkg/ports"
)

// Completer is a single provider endpoint.
type Completer interface {
	Name() string
	Complete(ctx context.Context, model string, req ports.GenerateRequest) (*ports.GenerateResponse, error)
}

// Target is one provider/model pair in failover order.
type Target struct {
	Provider Completer
	Model    string
}

// Failover tries each target in order. It implements ports.Generator.
type Failover struct {
	targets []Target
	logger  *slog.Logger
}

var _ ports.Generator = (*Failover)(nil)

// FailoverOption configures a Failover.
type FailoverOption func(*Failover)

// WithFailoverLogger sets the logger used to report downgrades.
func WithFailoverLogger(l *slog.Logger) FailoverOption {
	return func(f *Failover) { f.logger = l }
}

// NewFailover builds a generator over targets.
func NewFailover(targets []Target, opts ...FailoverOption) *Failover {
	f := &Failover{
		targets: append([]Target(nil), targets...),
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Targets returns the failover order.
func (f *Failover) Targets() []Target {
	return append([]Target(nil), f.targets...)
}

// Generate returns the first successful completion. Shape failures abort
// immediately; every other failure moves on to the next target.
func (f *Failover) Generate(ctx context.Context, req ports.GenerateRequest) (*ports.GenerateResponse, error) {
	var failures []string
	for _, t := range f.targets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		resp, err := t.Provider.Complete(ctx, t.Model, req)
		if err == nil {
			if resp.Model == "" {
				resp.Model = t.Model
			}
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, domain.ErrSchemaMismatch) || schemaFailure(err.Error()) {
			f.logger.Error("schema mismatch, aborting failover", "provider", t.Provider.Name(), "model", t.Model, "err", err)
			if errors.Is(err, domain.ErrSchemaMismatch) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %v", domain.ErrSchemaMismatch, err)
		}
		f.logger.Warn("model failed, trying next", "provider", t.Provider.Name(), "model", t.Model, "err", err)
		failures = append(failures, fmt.Sprintf("%s: %v", t.Model, err))
	}

	if len(failures) > 3 {
		failures = failures[:3]
	}
	return nil, fmt.Errorf("%w: [OUTAGE] All %d models exhausted. Errors: %s",
		domain.ErrProviderOutage, len(f.targets), strings.Join(failures, "; "))
}
