package pipeline

import (
	"context"
	"strings"

	"github.com/aretw0/arbiter/pkg/domain"
)

// blockedAnalysis is returned verbatim for requests to conceal or evade an obligation.
func blockedAnalysis() *domain.Analysis {
	return &domain.Analysis{
		Summary: "This request involves evasion of mandatory compliance obligations. " +
			"Attempting to hide data breaches violates Article 33 (Notification Authority) " +
			"and Article 34 (Notification to Data Subject).",
		LegalBasis:      "GDPR Art 5(1)(a) (Lawfulness & Transparency)",
		ScopeLimitation: "N/A - Illegal Request",
		RiskAnalysis:    "Severe regulatory fines (up to 4% global turnover) and criminal liability.",
		RiskTier:        domain.RiskHigh,
		Confidence:      1.0,
		ReasoningMap:    []domain.ReasoningEntry{},
	}
}

// guardrail records the user turn and classifies intent. It makes no external calls.
func (p *Pipeline) guardrail(ctx context.Context, s *domain.State) (domain.Partial, error) {
	q := strings.ToLower(s.Query)
	userTurn := []domain.Message{domain.UserMessage(s.Query)}

	if containsAny(q, unethicalPatterns) {
		p.log(s).Info("query blocked by guardrail")
		a := blockedAnalysis()
		out := finish(s, &domain.FinalResult{
			Kind:     domain.KindBlocked,
			Code:     domain.CodeInputRejected,
			Message:  a.Summary,
			Analysis: a,
		})
		out.History = append(userTurn, out.History...)
		out.Route = domain.Set(domain.RouteBlocked)
		return out, nil
	}

	route := domain.RouteAnalysis
	if len(strings.Fields(s.Query)) < maxGreetingWords && containsPhrase(q, greetingPatterns) {
		route = domain.RouteGeneral
	}
	return domain.Partial{History: userTurn, Route: domain.Set(route)}, nil
}
