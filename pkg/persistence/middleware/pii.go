package middleware

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/aretw0/arbiter/pkg/domain"
	"github.com/aretw0/arbiter/pkg/ports"
)

// Pattern is a labelled PII detector.
type Pattern struct {
	Label string
	Expr  *regexp.Regexp
}

// DefaultPatterns detects common personal data. Longer numeric shapes come
// before phone numbers so card and SSN digits are not split into a phone match.
func DefaultPatterns() []Pattern {
	return []Pattern{
		{"EMAIL", regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)},
		{"CREDIT_CARD", regexp.MustCompile(`\b(?:\d{4}[-\s]?){3}\d{4}\b`)},
		{"SSN", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
		{"DOB", regexp.MustCompile(`\b(?:0[1-9]|1[0-2])/(?:0[1-9]|[12]\d|3[01])/(?:19|20)\d{2}\b`)},
		{"IP_ADDRESS", regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)},
		{"PHONE", regexp.MustCompile(`\b(?:\+?\d{1,3}[\s-]?)?\(?\d{3}\)?[\s.-]?\d{3}[\s.-]?\d{4}\b`)},
		{"NAME_WITH_TITLE", regexp.MustCompile(`\b(?:Mr|Ms|Mrs|Dr|Prof)\.?\s+[A-Z][a-z]+(?:\s[A-Z][a-z]+)?\b`)},
	}
}

// CompilePatterns turns label -> expression pairs into patterns.
func CompilePatterns(exprs map[string]string) ([]Pattern, error) {
	out := make([]Pattern, 0, len(exprs))
	for label, expr := range exprs {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("invalid pii pattern %s: %w", label, err)
		}
		out = append(out, Pattern{Label: strings.ToUpper(label), Expr: re})
	}
	return out, nil
}

// Redact replaces every match with [REDACTED_<LABEL>_<n>], numbering matches per label.
func Redact(text string, patterns []Pattern) string {
	for _, p := range patterns {
		n := 0
		text = p.Expr.ReplaceAllStringFunc(text, func(string) string {
			out := fmt.Sprintf("[REDACTED_%s_%d]", p.Label, n)
			n++
			return out
		})
	}
	return text
}

type piiMiddleware struct {
	next     ports.CheckpointStore
	patterns []Pattern
}

// NewPIIMiddleware creates a middleware that redacts every free-text field of
// a checkpoint before persistence. With no patterns, DefaultPatterns are used.
// Stored checkpoints are marked Redacted.
func NewPIIMiddleware(patterns ...Pattern) Middleware {
	if len(patterns) == 0 {
		patterns = DefaultPatterns()
	}
	return func(next ports.CheckpointStore) ports.CheckpointStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}
}

func (m *piiMiddleware) Save(ctx context.Context, threadID string, state *domain.State) error {
	// Deep clone to avoid side effects on the in-memory state used by the engine.
	cloned := state.Clone()
	m.redactState(cloned)
	cloned.Redacted = true
	return m.next.Save(ctx, threadID, cloned)
}

func (m *piiMiddleware) redact(text string) string {
	return Redact(text, m.patterns)
}

func (m *piiMiddleware) redactAll(in []string) {
	for i := range in {
		in[i] = m.redact(in[i])
	}
}

func (m *piiMiddleware) redactState(s *domain.State) {
	s.Query = m.redact(s.Query)
	s.RetrievedContext = m.redact(s.RetrievedContext)
	m.redactAll(s.ValidationErrors)
	m.redactAll(s.UserSelections)
	for i := range s.History {
		s.History[i].Content = m.redact(s.History[i].Content)
		m.redactCalls(s.History[i].ToolCalls)
	}
	m.redactCalls(s.PendingToolCalls)
	m.redactOptions(s.ClarificationOptions)
	m.redactAnalysis(s.Candidate)

	if r := s.FinalResult; r != nil {
		r.Message = m.redact(r.Message)
		r.Summary = m.redact(r.Summary)
		m.redactAll(r.Errors)
		m.redactOptions(r.Options)
		m.redactAnalysis(r.Analysis)
		if r.Decision != nil {
			r.Decision.Reason = m.redact(r.Decision.Reason)
		}
	}
}

func (m *piiMiddleware) redactAnalysis(a *domain.Analysis) {
	if a == nil {
		return
	}
	a.Summary = m.redact(a.Summary)
	a.LegalBasis = m.redact(a.LegalBasis)
	a.ScopeLimitation = m.redact(a.ScopeLimitation)
	a.RiskAnalysis = m.redact(a.RiskAnalysis)
	m.redactAll(a.References)
	m.redactAll(a.MissingPreconditions)
	for i := range a.ReasoningMap {
		e := &a.ReasoningMap[i]
		e.Fact = m.redact(e.Fact)
		e.LegalMeaning = m.redact(e.LegalMeaning)
		e.Justification = m.redact(e.Justification)
	}
}

func (m *piiMiddleware) redactOptions(opts []domain.ClarificationOption) {
	for i := range opts {
		opts[i].Text = m.redact(opts[i].Text)
	}
}

func (m *piiMiddleware) redactCalls(calls []domain.ToolCall) {
	for i := range calls {
		calls[i].Args = m.redactValue(calls[i].Args).(map[string]any)
	}
}

// redactValue walks decoded JSON arguments and returns a redacted copy.
func (m *piiMiddleware) redactValue(v any) any {
	switch v := v.(type) {
	case string:
		return m.redact(v)
	case map[string]any:
		if v == nil {
			return v
		}
		out := make(map[string]any, len(v))
		for k, val := range v {
			out[k] = m.redactValue(val)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, val := range v {
			out[i] = m.redactValue(val)
		}
		return out
	}
	return v
}

func (m *piiMiddleware) Load(ctx context.Context, threadID string) (*domain.State, error) {
	return m.next.Load(ctx, threadID)
}

func (m *piiMiddleware) Delete(ctx context.Context, threadID string) error {
	return m.next.Delete(ctx, threadID)
}

func (m *piiMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}
