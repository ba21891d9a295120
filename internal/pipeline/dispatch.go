package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/aretw0/arbiter/pkg/domain"
)

const toolBudgetExhausted = "Error: tool budget exhausted for this turn. Answer with the context already provided."

// dispatchTools executes the pending tool calls in order and records their results.
// It never fails the turn: every failure is an in-band tool message.
func (p *Pipeline) dispatchTools(ctx context.Context, s *domain.State) (domain.Partial, error) {
	exhausted := s.ToolRounds >= p.limits.MaxToolRounds
	results := make([]domain.Message, 0, len(s.PendingToolCalls))

	for _, call := range s.PendingToolCalls {
		if err := ctx.Err(); err != nil {
			return domain.Partial{}, err
		}

		var res domain.ToolResult
		switch {
		case exhausted:
			res = domain.ToolResult{ID: call.ID, Name: call.Name, Content: toolBudgetExhausted, IsError: true}
		case p.tools == nil:
			res = domain.ToolResult{ID: call.ID, Name: call.Name, Content: fmt.Sprintf("Error: Unknown tool '%s'", call.Name), IsError: true}
		default:
			res = p.runTool(ctx, s, call)
		}
		results = append(results, domain.ToolMessage(res))
	}

	return domain.Partial{
		History:          results,
		PendingToolCalls: domain.Set[[]domain.ToolCall](nil),
		ToolRounds:       domain.Set(s.ToolRounds + 1),
	}, nil
}

func (p *Pipeline) runTool(ctx context.Context, s *domain.State, call domain.ToolCall) domain.ToolResult {
	start := time.Now()
	if p.hooks.OnToolCall != nil {
		p.hooks.OnToolCall(ctx, &domain.ToolEvent{
			Timestamp: start,
			ThreadID:  s.ThreadID,
			CallID:    call.ID,
			ToolName:  call.Name,
			Input:     call.Args,
		})
	}

	res := p.tools.Dispatch(ctx, call)
	res.ID = call.ID
	if res.Name == "" {
		res.Name = call.Name
	}
	p.log(s).Debug("tool executed", "tool", call.Name, "is_error", res.IsError, "duration", time.Since(start))

	if p.hooks.OnToolReturn != nil {
		p.hooks.OnToolReturn(ctx, &domain.ToolEvent{
			Timestamp: time.Now(),
			ThreadID:  s.ThreadID,
			CallID:    call.ID,
			ToolName:  call.Name,
			Output:    res.Content,
			IsError:   res.IsError,
			Duration:  time.Since(start),
		})
	}
	return res
}
