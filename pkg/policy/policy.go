// Package policy provides the reference decision policy used by the Governance stage.
package policy

import (
	"fmt"

	"github.com/aretw0/arbiter/pkg/domain"
)

// DefaultConfidenceFloor is the confidence below which answers are held for review.
const DefaultConfidenceFloor = 0.75

// Threshold is a deterministic policy: forced blocks are blocked, critical risk
// and low confidence are held for review, everything else is auto-approved.
type Threshold struct {
	ConfidenceFloor float64
	// HoldTiers are risk tiers that always require human review.
	HoldTiers []domain.RiskTier
}

// Default returns the standard policy.
func Default() *Threshold {
	return &Threshold{
		ConfidenceFloor: DefaultConfidenceFloor,
		HoldTiers:       []domain.RiskTier{domain.RiskCritical},
	}
}

// Decide implements ports.DecisionPolicy.
func (t *Threshold) Decide(confidence float64, tier domain.RiskTier, forcedBlock bool) domain.Decision {
	d := domain.Decision{Confidence: confidence, RiskTier: tier}
	switch {
	case forcedBlock:
		d.Action = domain.ActionBlock
		d.Reason = "Response flagged as policy violation or refusal required."
	case t.holds(tier):
		d.Action = domain.ActionHold
		d.Reason = "Critical risk topic (e.g., Penalties) mandates human oversight."
	case confidence < t.ConfidenceFloor:
		d.Action = domain.ActionHold
		d.Reason = fmt.Sprintf("Low model confidence (%.2f).", confidence)
	default:
		d.Action = domain.ActionAutoApprove
		d.Reason = "Confidence and risk levels within safe autonomous limits."
	}
	return d
}

func (t *Threshold) holds(tier domain.RiskTier) bool {
	for _, h := range t.HoldTiers {
		if h == tier {
			return true
		}
	}
	return false
}
