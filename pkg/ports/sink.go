package ports

import (
	"context"

	"github.com/aretw0/arbiter/pkg/domain"
)

// EventSink receives stage events. Errors are logged by the emitter and never abort a turn.
type EventSink interface {
	Emit(ctx context.Context, ev domain.StageEvent) error
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(ctx context.Context, ev domain.StageEvent) error

func (f EventSinkFunc) Emit(ctx context.Context, ev domain.StageEvent) error {
	return f(ctx, ev)
}
