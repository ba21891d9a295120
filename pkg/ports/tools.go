package ports

import (
	"context"

	"github.com/aretw0/arbiter/pkg/domain"
)

// ToolDispatcher executes capabilities requested by the generative stage.
// Unknown tools and tool failures are reported in the result, never as an error.
type ToolDispatcher interface {
	// Tools lists the capabilities offered to the model.
	Tools() []domain.Tool

	Dispatch(ctx context.Context, call domain.ToolCall) domain.ToolResult
}
