package pipeline

import (
	"github.com/aretw0/arbiter/internal/runtime"
	"github.com/aretw0/arbiter/pkg/domain"
)

// Routers are pure: they only read the merged state.

func routeAfterGuardrail(s *domain.State) string {
	switch {
	case s.Done(), s.Route == domain.RouteBlocked:
		return runtime.End
	case s.Route == domain.RouteGeneral:
		return StageChat
	default:
		return StageRetrieve
	}
}

func routeAfterClarify(s *domain.State) string {
	if s.Done() || s.Route == domain.RouteDepends || s.Route == domain.RouteBlocked {
		return runtime.End
	}
	return StageGenerate
}

func routeAfterGenerate(s *domain.State) string {
	switch {
	case s.Done(), s.Route == domain.RouteBlocked:
		return runtime.End
	case len(s.PendingToolCalls) > 0:
		return StageToolDispatch
	default:
		return StageValidate
	}
}

// routeAfterValidate bounds the generation/validation cycle at MaxRetries failed attempts.
func (p *Pipeline) routeAfterValidate(s *domain.State) string {
	switch {
	case len(s.ValidationErrors) == 0:
		return StageSemanticOverride
	case s.RetryCount < p.limits.MaxRetries:
		return StageGenerate
	default:
		return StageFallback
	}
}
