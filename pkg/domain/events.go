package domain

import (
	"context"
	"time"
)

// EventType defines the category of a streamed event.
type EventType string

const (
	// EventStage is emitted once per completed stage, in execution order.
	EventStage EventType = "node"
	// EventResult carries the final result and is always the last event of a turn.
	EventResult EventType = "result"
	// EventError replaces EventResult when the turn aborted on an infrastructure failure.
	EventError EventType = "error"
)

// StageEvent is what the Event Emitter reports to sinks.
type StageEvent struct {
	Seq        int          `json:"seq"`
	Type       EventType    `json:"event"`
	ThreadID   string       `json:"thread_id"`
	Stage      string       `json:"node,omitempty"`
	Label      string       `json:"label,omitempty"`
	RetryCount int          `json:"retry_count"`
	Delta      *StateDiff   `json:"delta,omitempty"`
	Result     *FinalResult `json:"data,omitempty"`
	Error      string       `json:"error,omitempty"`
	Timestamp  time.Time    `json:"timestamp"`
}

// Terminal reports whether this is the last event of a turn.
func (e StageEvent) Terminal() bool {
	return e.Type == EventResult || e.Type == EventError
}

// StageTransition describes entry into or exit from a stage.
type StageTransition struct {
	Timestamp time.Time     `json:"timestamp"`
	ThreadID  string        `json:"thread_id"`
	Stage     string        `json:"stage"`
	Duration  time.Duration `json:"duration,omitempty"` // set on leave
	Err       error         `json:"-"`
}

// ToolEvent represents a tool execution.
type ToolEvent struct {
	Timestamp time.Time      `json:"timestamp"`
	ThreadID  string         `json:"thread_id"`
	CallID    string         `json:"call_id"`
	ToolName  string         `json:"tool_name"`
	Input     map[string]any `json:"input,omitempty"`
	Output    string         `json:"output,omitempty"`
	IsError   bool           `json:"is_error,omitempty"`
	Duration  time.Duration  `json:"duration,omitempty"`
}

// LifecycleHooks defines callbacks for engine observability.
// Any hook may be nil.
type LifecycleHooks struct {
	OnStageEnter func(context.Context, *StageTransition)
	OnStageLeave func(context.Context, *StageTransition)
	OnToolCall   func(context.Context, *ToolEvent)
	OnToolReturn func(context.Context, *ToolEvent)
}

// Combine returns hooks that call h first and then other.
func (h LifecycleHooks) Combine(other LifecycleHooks) LifecycleHooks {
	return LifecycleHooks{
		OnStageEnter: chainTransition(h.OnStageEnter, other.OnStageEnter),
		OnStageLeave: chainTransition(h.OnStageLeave, other.OnStageLeave),
		OnToolCall:   chainTool(h.OnToolCall, other.OnToolCall),
		OnToolReturn: chainTool(h.OnToolReturn, other.OnToolReturn),
	}
}

func chainTransition(a, b func(context.Context, *StageTransition)) func(context.Context, *StageTransition) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx context.Context, e *StageTransition) {
		a(ctx, e)
		b(ctx, e)
	}
}

func chainTool(a, b func(context.Context, *ToolEvent)) func(context.Context, *ToolEvent) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx context.Context, e *ToolEvent) {
		a(ctx, e)
		b(ctx, e)
	}
}
