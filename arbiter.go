package arbiter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aretw0/arbiter/internal/logging"
	"github.com/aretw0/arbiter/internal/pipeline"
	"github.com/aretw0/arbiter/internal/runtime"
	"github.com/aretw0/arbiter/pkg/adapters/memory"
	"github.com/aretw0/arbiter/pkg/domain"
	"github.com/aretw0/arbiter/pkg/observability"
	"github.com/aretw0/arbiter/pkg/ports"
	"github.com/aretw0/arbiter/pkg/session"
	"github.com/aretw0/arbiter/pkg/stream"
	"github.com/google/uuid"
)

// Limits bound a single turn.
type Limits struct {
	// MaxRetries is the number of failed validations tolerated before the fallback answer.
	MaxRetries int
	// MaxToolRounds caps tool dispatch rounds per turn.
	MaxToolRounds int
	// MaxSteps is the hard bound on executed stages per turn.
	MaxSteps int
}

// DefaultLimits returns the standard bounds.
func DefaultLimits() Limits {
	l := pipeline.DefaultLimits()
	return Limits{MaxRetries: l.MaxRetries, MaxToolRounds: l.MaxToolRounds, MaxSteps: runtime.DefaultMaxSteps}
}

// Request is one caller turn.
type Request struct {
	// ThreadID selects the conversation. Empty starts a new thread.
	ThreadID string `json:"thread_id,omitempty"`
	Query    string `json:"query"`
	// Domain names the regulatory regime (GDPR, CCPA, FDA). Empty means GDPR.
	Domain string `json:"domain,omitempty"`
	// Selections answers a previous clarification. With an empty Query the
	// previous turn's query and domain are reused, unless the stored query
	// was redacted; then the query must be sent again.
	Selections []string `json:"user_selections,omitempty"`
}

// Response is the outcome of a turn.
type Response struct {
	ThreadID string              `json:"thread_id"`
	Turn     int                 `json:"turn"`
	Result   *domain.FinalResult `json:"result"`
}

// Agent is the high-level entry point: it runs compliance-analysis turns
// against a thread's checkpoint, one writer per thread at a time.
type Agent struct {
	generator    ports.Generator
	store        ports.CheckpointStore
	locker       ports.DistributedLocker
	sessions     *session.Manager
	engine       *runtime.Engine
	pipelineOpts []pipeline.Option
	sinks        []ports.EventSink
	metrics      *observability.Metrics
	hooks        domain.LifecycleHooks
	limits       Limits
	logger       *slog.Logger
}

// Option configures the Agent.
type Option func(*Agent)

// WithStore sets the checkpoint store. The default keeps threads in memory.
func WithStore(store ports.CheckpointStore) Option {
	return func(a *Agent) {
		a.store = store
	}
}

// WithLocker adds a distributed per-thread lock for multi-replica deployments.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(a *Agent) {
		a.locker = locker
	}
}

// WithRetriever sets the retrieval collaborator of a regime.
func WithRetriever(regime domain.Regime, r ports.Retriever) Option {
	return func(a *Agent) {
		a.pipelineOpts = append(a.pipelineOpts, pipeline.WithRetriever(regime, r))
	}
}

// WithRuleChecker sets the validation rules used by regimes without their own.
func WithRuleChecker(rc ports.RuleChecker) Option {
	return func(a *Agent) {
		a.pipelineOpts = append(a.pipelineOpts, pipeline.WithRuleChecker(rc))
	}
}

// WithRegimeRuleChecker sets the validation rules of one regime.
func WithRegimeRuleChecker(regime domain.Regime, rc ports.RuleChecker) Option {
	return func(a *Agent) {
		a.pipelineOpts = append(a.pipelineOpts, pipeline.WithRegimeRuleChecker(regime, rc))
	}
}

// WithPolicy sets the governance decision policy.
func WithPolicy(dp ports.DecisionPolicy) Option {
	return func(a *Agent) {
		a.pipelineOpts = append(a.pipelineOpts, pipeline.WithPolicy(dp))
	}
}

// WithTools offers tools to the generative stage.
func WithTools(td ports.ToolDispatcher) Option {
	return func(a *Agent) {
		a.pipelineOpts = append(a.pipelineOpts, pipeline.WithTools(td))
	}
}

// WithLimits overrides the turn bounds. Zero fields keep their defaults;
// use WithMaxToolRounds to disable tool dispatch.
func WithLimits(l Limits) Option {
	return func(a *Agent) {
		if l.MaxRetries > 0 {
			a.limits.MaxRetries = l.MaxRetries
		}
		if l.MaxToolRounds > 0 {
			a.limits.MaxToolRounds = l.MaxToolRounds
		}
		if l.MaxSteps > 0 {
			a.limits.MaxSteps = l.MaxSteps
		}
	}
}

// WithMaxToolRounds sets the tool dispatch rounds per turn. Zero disables
// tool dispatch; negative values are ignored.
func WithMaxToolRounds(n int) Option {
	return func(a *Agent) {
		if n >= 0 {
			a.limits.MaxToolRounds = n
		}
	}
}

// WithSinks registers event sinks that observe every turn.
func WithSinks(sinks ...ports.EventSink) Option {
	return func(a *Agent) {
		a.sinks = append(a.sinks, sinks...)
	}
}

// WithMetrics records stage, tool and result metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(a *Agent) {
		a.metrics = m
	}
}

// WithLifecycleHooks registers stage and tool observers.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(a *Agent) {
		a.hooks = a.hooks.Combine(hooks)
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) {
		a.logger = logger
	}
}

// New builds an Agent around a generator.
func New(generator ports.Generator, opts ...Option) (*Agent, error) {
	if generator == nil {
		return nil, errors.New("a generator is required")
	}
	a := &Agent{
		generator: generator,
		limits:    DefaultLimits(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = logging.NewNop()
	}
	if a.store == nil {
		a.store = memory.NewStore()
	}

	hooks := a.hooks
	if a.metrics != nil {
		hooks = hooks.Combine(a.metrics.Hooks())
		a.sinks = append(a.sinks, a.metrics.Sink())
	}

	popts := append([]pipeline.Option{
		pipeline.WithLimits(pipeline.Limits{MaxRetries: a.limits.MaxRetries, MaxToolRounds: a.limits.MaxToolRounds}),
		pipeline.WithToolHooks(hooks),
		pipeline.WithLogger(a.logger),
	}, a.pipelineOpts...)
	graph, err := pipeline.New(generator, popts...).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build stage graph: %w", err)
	}

	a.engine = runtime.NewEngine(graph,
		runtime.WithMaxSteps(a.limits.MaxSteps),
		runtime.WithLifecycleHooks(domain.LifecycleHooks{OnStageEnter: hooks.OnStageEnter, OnStageLeave: hooks.OnStageLeave}),
		runtime.WithLogger(a.logger),
	)

	sessOpts := []session.Option{session.WithLogger(a.logger)}
	if a.locker != nil {
		sessOpts = append(sessOpts, session.WithLocker(a.locker))
	}
	a.sessions = session.NewManager(a.store, sessOpts...)
	return a, nil
}

// Limits returns the effective turn bounds.
func (a *Agent) Limits() Limits {
	return a.limits
}

// Graph returns the compiled stage graph, for rendering.
func (a *Agent) Graph() *runtime.Graph {
	return a.engine.Graph()
}

// Run executes one turn. Extra sinks observe only this turn.
//
// Domain outcomes, including failures, are returned as Response.Result.
// An error means the turn could not run or was interrupted; the thread then
// holds the state of the last completed stage.
func (a *Agent) Run(ctx context.Context, req Request, sinks ...ports.EventSink) (*Response, error) {
	threadID := strings.TrimSpace(req.ThreadID)
	if threadID == "" {
		threadID = uuid.NewString()
	}
	emitter := stream.NewEmitter(threadID, append(append([]ports.EventSink(nil), a.sinks...), sinks...), stream.WithLogger(a.logger))

	var resp *Response
	err := a.sessions.WithLock(ctx, threadID, func(ctx context.Context) error {
		prior, err := a.sessions.LoadPrior(ctx, threadID)
		if err != nil {
			return err
		}
		state, err := a.newTurn(threadID, req, prior)
		if err != nil {
			return err
		}

		final, err := a.engine.Run(ctx, state, runtime.RunOptions{
			Checkpoint: func(ctx context.Context, s *domain.State) error {
				return a.store.Save(ctx, threadID, s)
			},
			OnStep: func(ctx context.Context, st runtime.Step) {
				emitter.Stage(ctx, st.Stage, st.Label, st.Before, st.After)
			},
		})
		if err != nil {
			return err
		}

		emitter.Result(ctx, final.FinalResult)
		resp = &Response{ThreadID: threadID, Turn: final.Turn, Result: final.FinalResult}
		return nil
	})
	if err != nil {
		a.logger.Warn("turn aborted", "thread_id", threadID, "err", err)
		emitter.Fail(ctx, err)
		return nil, err
	}
	return resp, nil
}

// newTurn validates req and derives the initial state of the turn.
func (a *Agent) newTurn(threadID string, req Request, prior *domain.State) (*domain.State, error) {
	query := strings.TrimSpace(req.Query)
	selections := make([]string, 0, len(req.Selections))
	for _, s := range req.Selections {
		if s = strings.TrimSpace(s); s != "" {
			selections = append(selections, s)
		}
	}

	regime, err := domain.ParseRegime(req.Domain)
	if err != nil {
		return nil, err
	}

	if query == "" {
		if prior == nil || len(selections) == 0 || prior.Query == "" {
			return nil, domain.ErrEmptyQuery
		}
		if prior.Redacted {
			return nil, fmt.Errorf("%w: the stored query of thread %s is redacted, resend it with the selections", domain.ErrEmptyQuery, threadID)
		}
		query = prior.Query
		if strings.TrimSpace(req.Domain) == "" {
			regime = prior.Domain
		}
	}
	return domain.NewTurn(threadID, query, regime, selections, prior), nil
}

// Stream runs a turn in the background and returns its events. The channel
// closes after the terminal event, which carries the result or the error.
//
// The turn never waits for the reader. A reader that falls more than the
// buffer behind loses the oldest stage events (visible as Seq gaps), never
// the terminal one. Cancel ctx to abandon the turn itself.
func (a *Agent) Stream(ctx context.Context, req Request) (threadID string, events <-chan domain.StageEvent) {
	if req.ThreadID == "" {
		req.ThreadID = uuid.NewString()
	}
	sink := stream.NewChannelSink(16)
	go func() {
		defer sink.Close()
		_, _ = a.Run(ctx, req, sink)
	}()
	return req.ThreadID, sink.Events()
}

// Threads lists the stored thread IDs.
func (a *Agent) Threads(ctx context.Context) ([]string, error) {
	return a.sessions.List(ctx)
}

// History returns the last checkpoint of a thread.
func (a *Agent) History(ctx context.Context, threadID string) (*domain.State, error) {
	return a.sessions.Load(ctx, threadID)
}

// Reset deletes a thread and its checkpoint.
func (a *Agent) Reset(ctx context.Context, threadID string) error {
	return a.sessions.Delete(ctx, threadID)
}
