package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/aretw0/arbiter/pkg/domain"
)

// validate runs the regime's rule checker. retry_count only moves when violations are found.
func (p *Pipeline) validate(ctx context.Context, s *domain.State) (domain.Partial, error) {
	var violations []string
	switch rc := p.checker(s.Domain); {
	case s.Candidate == nil:
		violations = []string{"No analysis to validate."}
	case rc != nil:
		violations = rc.Check(s.Candidate, s.Query)
	}

	if len(violations) == 0 {
		return domain.Partial{ValidationErrors: domain.Set[[]string](nil)}, nil
	}
	p.log(s).Debug("candidate rejected", "violations", len(violations), "retry_count", s.RetryCount+1)
	return domain.Partial{
		ValidationErrors: domain.Set(violations),
		RetryCount:       domain.Set(s.RetryCount + 1),
	}, nil
}

// semanticOverride applies the regime's deterministic corrections.
func (p *Pipeline) semanticOverride(ctx context.Context, s *domain.State) (domain.Partial, error) {
	if s.Candidate == nil {
		return domain.Partial{}, nil
	}
	a := s.Candidate.Clone()
	for _, o := range p.profile(s.Domain).Overrides {
		o(a, s.Query)
	}
	return domain.Partial{Candidate: domain.Set(a)}, nil
}

// governance turns the candidate into the final result according to the decision policy.
func (p *Pipeline) governance(ctx context.Context, s *domain.State) (domain.Partial, error) {
	a := s.Candidate
	if a == nil {
		return finish(s, domain.ErrorResult(domain.CodeNoResult, "No analysis for governance.")), nil
	}

	if a.NeedsClarification {
		options := make([]domain.ClarificationOption, 0, len(a.MissingPreconditions))
		for i, q := range a.MissingPreconditions {
			options = append(options, domain.ClarificationOption{ID: fmt.Sprintf("opt_%d", i+1), Text: q, Rank: i + 1})
		}
		out := finish(s, &domain.FinalResult{
			Kind:     domain.KindClarification,
			Summary:  a.Summary,
			Analysis: a,
			Options:  options,
		})
		out.ClarificationOptions = domain.Set(options)
		return out, nil
	}

	d := p.policy.Decide(a.Confidence, a.RiskTier, false)
	p.log(s).Debug("governance decision", "action", string(d.Action), "reason", d.Reason)

	switch d.Action {
	case domain.ActionBlock:
		return finish(s, &domain.FinalResult{
			Kind:     domain.KindBlocked,
			Code:     domain.CodePolicyBlock,
			Message:  d.Reason,
			Decision: &d,
		}), nil
	case domain.ActionHold:
		return finish(s, &domain.FinalResult{
			Kind:     domain.KindReviewRequired,
			Message:  d.Reason,
			Analysis: a,
			Decision: &d,
		}), nil
	default:
		return finish(s, &domain.FinalResult{
			Kind:     domain.KindAnswer,
			Analysis: a,
			Decision: &d,
		}), nil
	}
}

// fallback reports the unresolved violations once the retry bound is exhausted.
func (p *Pipeline) fallback(ctx context.Context, s *domain.State) (domain.Partial, error) {
	p.log(s).Warn("analysis failed validation", "retry_count", s.RetryCount, "violations", len(s.ValidationErrors))
	return finish(s, &domain.FinalResult{
		Kind:    domain.KindError,
		Code:    domain.CodeValidationFailed,
		Message: fmt.Sprintf("Analysis failed after %d retries. Last errors: %s", s.RetryCount, strings.Join(s.ValidationErrors, "; ")),
		Errors:  s.ValidationErrors,
	}), nil
}
