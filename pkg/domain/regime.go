package domain

import (
	"fmt"
	"strings"
)

// Regime selects which prompt, rule and retrieval collaborator set applies to a turn.
type Regime string

const (
	RegimeGDPR Regime = "GDPR"
	RegimeCCPA Regime = "CCPA"
	RegimeFDA  Regime = "FDA"
)

// DefaultRegime is used when a request does not name one.
const DefaultRegime = RegimeGDPR

// Regimes lists every supported regime in a stable order.
func Regimes() []Regime {
	return []Regime{RegimeGDPR, RegimeCCPA, RegimeFDA}
}

// ParseRegime normalizes a user supplied regime name. An empty name yields DefaultRegime.
func ParseRegime(s string) (Regime, error) {
	clean := strings.ToUpper(strings.TrimSpace(s))
	if clean == "" {
		return DefaultRegime, nil
	}
	for _, r := range Regimes() {
		if string(r) == clean {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRegime, s)
}
