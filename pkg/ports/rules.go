package ports

import "github.com/aretw0/arbiter/pkg/domain"

// RuleChecker validates a candidate analysis against the query that produced it.
// It must be pure: identical inputs always yield identical violations.
type RuleChecker interface {
	Check(candidate *domain.Analysis, query string) []string
}

// RuleCheckerFunc adapts a function to RuleChecker.
type RuleCheckerFunc func(candidate *domain.Analysis, query string) []string

func (f RuleCheckerFunc) Check(candidate *domain.Analysis, query string) []string {
	return f(candidate, query)
}

// DecisionPolicy maps confidence and risk to an action with a reason.
type DecisionPolicy interface {
	Decide(confidence float64, tier domain.RiskTier, forcedBlock bool) domain.Decision
}
