package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/arbiter/internal/logging"
	"github.com/aretw0/arbiter/pkg/domain"
)

// DefaultMaxSteps bounds a single walk even if the routers never terminate.
const DefaultMaxSteps = 64

// Step is one completed stage, reported to the step observer.
type Step struct {
	Stage    string
	Label    string
	Before   *domain.State
	After    *domain.State
	Duration time.Duration
}

// RunOptions carries the per-turn callbacks of a walk.
type RunOptions struct {
	// Checkpoint persists the merged state after every stage. A failure aborts the walk.
	Checkpoint func(ctx context.Context, s *domain.State) error
	// OnStep observes each completed stage in execution order.
	OnStep func(ctx context.Context, step Step)
}

// Engine walks a compiled graph from its entry until a terminal result is set.
type Engine struct {
	graph    *Graph
	maxSteps int
	hooks    domain.LifecycleHooks
	logger   *slog.Logger
}

// Option configures the Engine.
type Option func(*Engine)

// WithMaxSteps sets the hard step bound.
func WithMaxSteps(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxSteps = n
		}
	}
}

// WithLifecycleHooks registers stage enter/leave observers.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = e.hooks.Combine(hooks)
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine creates an engine over a compiled graph.
func NewEngine(graph *Graph, opts ...Option) *Engine {
	e := &Engine{
		graph:    graph,
		maxSteps: DefaultMaxSteps,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Graph returns the graph the engine walks.
func (e *Engine) Graph() *Graph {
	return e.graph
}

// Run walks the graph starting at its entry stage.
//
// The returned state always has a final result unless an error is returned, in
// which case it is the last state that was successfully merged (and checkpointed).
// Domain failures never surface as errors: they are final results of kind error.
func (e *Engine) Run(ctx context.Context, state *domain.State, opts RunOptions) (*domain.State, error) {
	if state.Done() {
		return state, fmt.Errorf("%w: thread %s", domain.ErrFinalized, state.ThreadID)
	}
	logger := e.logger.With("thread_id", state.ThreadID, "domain", string(state.Domain))

	current := e.graph.Entry()
	for steps := 0; ; steps++ {
		if err := ctx.Err(); err != nil {
			return state, err
		}
		if steps >= e.maxSteps {
			logger.Warn("step limit reached", "limit", e.maxSteps, "stage", current)
			msg := fmt.Sprintf("%v: %d stages executed without a terminal result", domain.ErrCycleLimit, steps)
			return e.finalize(ctx, state, domain.ErrorResult(domain.CodeCycleLimit, msg), opts)
		}

		next, err := e.step(ctx, logger, current, state, opts)
		if err != nil {
			return state, err
		}
		state = next

		if state.Done() {
			return state, nil
		}
		if state.Route == domain.RouteBlocked {
			break
		}

		target, err := e.graph.next(current, state)
		if err != nil {
			return state, &StageError{Stage: current, Err: err}
		}
		if target == End {
			break
		}
		current = target
	}

	logger.Warn("walk ended without a final result", "last_stage", state.LastStage)
	return e.finalize(ctx, state, domain.ErrorResult(domain.CodeNoResult, "the pipeline ended without producing a result"), opts)
}

func (e *Engine) step(ctx context.Context, logger *slog.Logger, name string, state *domain.State, opts RunOptions) (*domain.State, error) {
	st, ok := e.graph.stages[name]
	if !ok {
		return nil, &StageError{Stage: name, Err: domain.ErrUnknownStage}
	}

	start := time.Now()
	e.emitEnter(ctx, state.ThreadID, name)
	logger.Debug("stage enter", "stage", name, "retry_count", state.RetryCount)

	partial, err := st.fn(ctx, state)
	if err != nil {
		e.emitLeave(ctx, state.ThreadID, name, time.Since(start), err)
		return nil, &StageError{Stage: name, Err: err}
	}

	next, err := domain.Merge(state, partial)
	if err != nil {
		e.emitLeave(ctx, state.ThreadID, name, time.Since(start), err)
		return nil, &StageError{Stage: name, Err: err}
	}
	next.LastStage = name

	if opts.Checkpoint != nil {
		if err := opts.Checkpoint(ctx, next); err != nil {
			e.emitLeave(ctx, state.ThreadID, name, time.Since(start), err)
			return nil, &CheckpointError{Stage: name, Err: err}
		}
	}

	elapsed := time.Since(start)
	if opts.OnStep != nil {
		opts.OnStep(ctx, Step{Stage: name, Label: st.label, Before: state, After: next, Duration: elapsed})
	}
	e.emitLeave(ctx, state.ThreadID, name, elapsed, nil)
	logger.Debug("stage leave", "stage", name, "route", next.Route.String(), "changed", partial.Keys(), "duration", elapsed)
	return next, nil
}

// finalize sets a result on behalf of the executor itself and persists it.
func (e *Engine) finalize(ctx context.Context, state *domain.State, result *domain.FinalResult, opts RunOptions) (*domain.State, error) {
	result.RetryCount = state.RetryCount
	next, err := domain.Merge(state, domain.Partial{
		FinalResult: domain.Set(result),
		History:     []domain.Message{domain.AssistantMessage(result.Transcript())},
	})
	if err != nil {
		return state, err
	}
	if opts.Checkpoint != nil {
		if err := opts.Checkpoint(ctx, next); err != nil {
			return state, &CheckpointError{Stage: End, Err: err}
		}
	}
	return next, nil
}

func (e *Engine) emitEnter(ctx context.Context, threadID, stage string) {
	if e.hooks.OnStageEnter == nil {
		return
	}
	e.hooks.OnStageEnter(ctx, &domain.StageTransition{
		Timestamp: time.Now(),
		ThreadID:  threadID,
		Stage:     stage,
	})
}

func (e *Engine) emitLeave(ctx context.Context, threadID, stage string, d time.Duration, err error) {
	if e.hooks.OnStageLeave == nil {
		return
	}
	e.hooks.OnStageLeave(ctx, &domain.StageTransition{
		Timestamp: time.Now(),
		ThreadID:  threadID,
		Stage:     stage,
		Duration:  d,
		Err:       err,
	})
}
