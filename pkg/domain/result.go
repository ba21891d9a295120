package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ResultKind discriminates terminal results so callers can render them without inspecting prose.
type ResultKind string

const (
	KindAnswer         ResultKind = "answer"
	KindChat           ResultKind = "chat"
	KindClarification  ResultKind = "clarification"
	KindReviewRequired ResultKind = "review_required"
	KindBlocked        ResultKind = "blocked"
	KindError          ResultKind = "error"
)

// ErrorCode classifies blocked and error results.
type ErrorCode string

const (
	CodeInputRejected       ErrorCode = "input_rejected"
	CodeInsufficientContext ErrorCode = "insufficient_context"
	CodeSchemaMismatch      ErrorCode = "schema_mismatch"
	CodeProviderOutage      ErrorCode = "provider_outage"
	CodeValidationFailed    ErrorCode = "validation_failed"
	CodeGenerationBudget    ErrorCode = "generation_budget"
	CodeCycleLimit          ErrorCode = "cycle_limit"
	CodePolicyBlock         ErrorCode = "policy_block"
	CodeNoResult            ErrorCode = "no_result"
)

// Action is the outcome of the decision policy.
type Action string

const (
	ActionAutoApprove Action = "auto_approved"
	ActionHold        Action = "review_required"
	ActionBlock       Action = "blocked"
)

// Decision is what the decision policy returned for a candidate.
type Decision struct {
	Action     Action   `json:"status"`
	Reason     string   `json:"reason"`
	Confidence float64  `json:"confidence"`
	RiskTier   RiskTier `json:"risk_level"`
}

// ClarificationOption is one ranked follow-up choice offered to the user.
type ClarificationOption struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	Rank int    `json:"rank"`
}

// Clarification is the structured answer to "clear or depends".
type Clarification struct {
	NeedsClarification bool                  `json:"needs_clarification"`
	Summary            string                `json:"summary"`
	Options            []ClarificationOption `json:"options"`
}

// DecodeClarification shapes raw model output into a Clarification.
func DecodeClarification(raw []byte) (*Clarification, error) {
	var c Clarification
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("%w: clarification: %v", ErrSchemaMismatch, err)
	}
	return &c, nil
}

// FinalResult is the terminal payload of a turn.
type FinalResult struct {
	Kind       ResultKind            `json:"type"`
	Code       ErrorCode             `json:"code,omitempty"`
	Message    string                `json:"message,omitempty"`
	Summary    string                `json:"summary,omitempty"`
	Analysis   *Analysis             `json:"analysis,omitempty"`
	Decision   *Decision             `json:"decision,omitempty"`
	Options    []ClarificationOption `json:"options,omitempty"`
	Errors     []string              `json:"errors,omitempty"`
	RetryCount int                   `json:"retry_count,omitempty"`
}

// ErrorResult builds an error-kind result.
func ErrorResult(code ErrorCode, message string) *FinalResult {
	return &FinalResult{Kind: KindError, Code: code, Message: message}
}

// Clone returns a deep copy of the result.
func (r *FinalResult) Clone() *FinalResult {
	if r == nil {
		return nil
	}
	out := *r
	out.Analysis = r.Analysis.Clone()
	if r.Decision != nil {
		d := *r.Decision
		out.Decision = &d
	}
	out.Options = append([]ClarificationOption(nil), r.Options...)
	out.Errors = append([]string(nil), r.Errors...)
	return &out
}

// Transcript renders the result as the assistant turn recorded in conversation history.
func (r *FinalResult) Transcript() string {
	if r == nil {
		return ""
	}
	switch r.Kind {
	case KindChat:
		return r.Message
	case KindClarification:
		var b strings.Builder
		b.WriteString(r.Summary)
		for _, o := range r.Options {
			fmt.Fprintf(&b, "\n%d. %s", o.Rank, o.Text)
		}
		return strings.TrimSpace(b.String())
	case KindAnswer, KindReviewRequired:
		if r.Analysis != nil {
			return r.Analysis.Summary
		}
	}
	if r.Message != "" {
		return r.Message
	}
	if r.Analysis != nil {
		return r.Analysis.Summary
	}
	return string(r.Kind)
}
