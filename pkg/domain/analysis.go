package domain

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// RiskTier is the ordinal risk classification that drives the Governance decision.
type RiskTier string

const (
	RiskLow      RiskTier = "low"
	RiskMedium   RiskTier = "medium"
	RiskHigh     RiskTier = "high"
	RiskCritical RiskTier = "critical"
)

// Rank orders tiers from 1 (low) to 4 (critical). Unknown tiers rank 0.
func (t RiskTier) Rank() int {
	switch t {
	case RiskLow:
		return 1
	case RiskMedium:
		return 2
	case RiskHigh:
		return 3
	case RiskCritical:
		return 4
	}
	return 0
}

func (t RiskTier) Valid() bool { return t.Rank() > 0 }

// ReasoningEntry is a single Fact -> Law mapping. Each entry references exactly one subsection.
type ReasoningEntry struct {
	Fact          string `json:"fact" mapstructure:"fact"`
	LegalMeaning  string `json:"legal_meaning" mapstructure:"legal_meaning"`
	Subsection    string `json:"gdpr_subsection" mapstructure:"gdpr_subsection"`
	Justification string `json:"justification" mapstructure:"justification"`
}

// Analysis is the Analysis Record produced by the generative stage.
type Analysis struct {
	Summary              string           `json:"summary" mapstructure:"summary"`
	LegalBasis           string           `json:"legal_basis" mapstructure:"legal_basis"`
	ScopeLimitation      string           `json:"scope_limitation" mapstructure:"scope_limitation"`
	RiskAnalysis         string           `json:"risk_analysis" mapstructure:"risk_analysis"`
	RiskTier             RiskTier         `json:"risk_level" mapstructure:"risk_level"`
	Confidence           float64          `json:"confidence_score" mapstructure:"confidence_score"`
	References           []string         `json:"references,omitempty" mapstructure:"references"`
	ReasoningMap         []ReasoningEntry `json:"reasoning_map" mapstructure:"reasoning_map"`
	NeedsClarification   bool             `json:"needs_clarification" mapstructure:"needs_clarification"`
	MissingPreconditions []string         `json:"missing_preconditions,omitempty" mapstructure:"missing_preconditions"`
}

// DefaultConfidence applies when the model omits confidence_score.
const DefaultConfidence = 0.5

// Clone returns a deep copy of the analysis.
func (a *Analysis) Clone() *Analysis {
	if a == nil {
		return nil
	}
	out := *a
	out.References = append([]string(nil), a.References...)
	out.ReasoningMap = append([]ReasoningEntry(nil), a.ReasoningMap...)
	out.MissingPreconditions = append([]string(nil), a.MissingPreconditions...)
	return &out
}

// DecodeAnalysis shapes raw model output into an Analysis.
// It tolerates upper-case risk tiers and list-valued legal_basis; anything it
// cannot shape is reported as ErrSchemaMismatch.
func DecodeAnalysis(raw []byte) (*Analysis, error) {
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("%w: analysis is not a JSON object: %v", ErrSchemaMismatch, err)
	}
	for _, key := range []string{"summary", "risk_level"} {
		if _, ok := fields[key]; !ok {
			return nil, fmt.Errorf("%w: missing required field %q", ErrSchemaMismatch, key)
		}
	}

	a := &Analysis{Confidence: DefaultConfidence}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           a,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			joinListHook,
			riskTierHook,
		),
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}

	if !a.RiskTier.Valid() {
		return nil, fmt.Errorf("%w: unknown risk_level %q", ErrSchemaMismatch, a.RiskTier)
	}
	if a.Confidence < 0 || a.Confidence > 1 {
		return nil, fmt.Errorf("%w: confidence_score %.2f outside [0,1]", ErrSchemaMismatch, a.Confidence)
	}
	for _, e := range a.ReasoningMap {
		if strings.Contains(e.Subsection, ",") || strings.Contains(strings.ToLower(e.Subsection), " and ") {
			return nil, fmt.Errorf("%w: reasoning entry must reference exactly one subsection, got %q", ErrSchemaMismatch, e.Subsection)
		}
	}
	return a, nil
}

// joinListHook flattens list values headed for string fields ("legal_basis": ["Art 6", "Art 17"]).
func joinListHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to.Kind() != reflect.String || from.Kind() != reflect.Slice {
		return data, nil
	}
	items, ok := data.([]any)
	if !ok {
		return data, nil
	}
	parts := make([]string, 0, len(items))
	for _, it := range items {
		parts = append(parts, fmt.Sprint(it))
	}
	return strings.Join(parts, ", "), nil
}

func riskTierHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if to != reflect.TypeOf(RiskTier("")) || from.Kind() != reflect.String {
		return data, nil
	}
	return strings.ToLower(strings.TrimSpace(data.(string))), nil
}
