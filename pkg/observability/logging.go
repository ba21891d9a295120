package observability

import (
	"context"
	"log/slog"

	"github.com/aretw0/arbiter/pkg/domain"
)

// LoggingHooks writes stage and tool transitions to logger at Debug level.
func LoggingHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnStageEnter: func(ctx context.Context, e *domain.StageTransition) {
			logger.Debug("stage_enter", "thread_id", e.ThreadID, "stage", e.Stage)
		},
		OnStageLeave: func(ctx context.Context, e *domain.StageTransition) {
			if e.Err != nil {
				logger.Warn("stage_failed", "thread_id", e.ThreadID, "stage", e.Stage, "duration", e.Duration, "err", e.Err)
				return
			}
			logger.Debug("stage_leave", "thread_id", e.ThreadID, "stage", e.Stage, "duration", e.Duration)
		},
		OnToolCall: func(ctx context.Context, e *domain.ToolEvent) {
			logger.Debug("tool_call", "thread_id", e.ThreadID, "tool_name", e.ToolName, "call_id", e.CallID)
		},
		OnToolReturn: func(ctx context.Context, e *domain.ToolEvent) {
			logger.Debug("tool_return", "thread_id", e.ThreadID, "tool_name", e.ToolName, "is_error", e.IsError, "duration", e.Duration)
		},
	}
}
