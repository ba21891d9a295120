// Package stream reports turn progress to event sinks.
//
// An Emitter numbers events, computes the state delta of every stage, and
// guarantees that the terminal event (a result or an error) is the last one
// any sink sees. Sink failures are logged and never reach the turn.
package stream

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/arbiter/internal/logging"
	"github.com/aretw0/arbiter/pkg/domain"
	"github.com/aretw0/arbiter/pkg/ports"
)

// Emitter fans stage events out to sinks for one turn.
type Emitter struct {
	threadID string
	sinks    []ports.EventSink
	logger   *slog.Logger
	now      func() time.Time

	mu     sync.Mutex
	seq    int
	closed bool
}

// EmitterOption configures an Emitter.
type EmitterOption func(*Emitter)

// WithLogger sets the logger used for sink failures.
func WithLogger(l *slog.Logger) EmitterOption {
	return func(e *Emitter) { e.logger = l }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) EmitterOption {
	return func(e *Emitter) { e.now = now }
}

// NewEmitter creates an emitter for threadID. Nil sinks are skipped.
func NewEmitter(threadID string, sinks []ports.EventSink, opts ...EmitterOption) *Emitter {
	e := &Emitter{
		threadID: threadID,
		logger:   logging.NewNop(),
		now:      time.Now,
	}
	for _, s := range sinks {
		if s != nil {
			e.sinks = append(e.sinks, s)
		}
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Stage reports a completed stage with the delta between before and after.
func (e *Emitter) Stage(ctx context.Context, stage, label string, before, after *domain.State) {
	ev := domain.StageEvent{
		Type:  domain.EventStage,
		Stage: stage,
		Label: label,
		Delta: domain.Diff(before, after),
	}
	if after != nil {
		ev.RetryCount = after.RetryCount
	}
	e.emit(ctx, ev)
}

// Result reports the terminal result. Later events are dropped.
func (e *Emitter) Result(ctx context.Context, res *domain.FinalResult) {
	ev := domain.StageEvent{Type: domain.EventResult, Result: res.Clone()}
	if res != nil {
		ev.RetryCount = res.RetryCount
	}
	e.emit(ctx, ev)
}

// Fail reports a turn aborted by an infrastructure failure. Later events are dropped.
func (e *Emitter) Fail(ctx context.Context, err error) {
	e.emit(ctx, domain.StageEvent{Type: domain.EventError, Error: err.Error()})
}

// Closed reports whether the terminal event was sent.
func (e *Emitter) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func (e *Emitter) emit(ctx context.Context, ev domain.StageEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.seq++
	ev.Seq = e.seq
	ev.ThreadID = e.threadID
	ev.Timestamp = e.now()
	if ev.Terminal() {
		e.closed = true
	}

	for _, s := range e.sinks {
		if err := deliver(ctx, s, ev); err != nil {
			e.logger.Warn("event sink failed", "thread_id", e.threadID, "seq", ev.Seq, "event", ev.Type, "err", err)
		}
	}
}

func deliver(ctx context.Context, s ports.EventSink, ev domain.StageEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sink panic: %v", r)
		}
	}()
	return s.Emit(ctx, ev)
}
