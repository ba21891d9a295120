package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/aretw0/arbiter/pkg/domain"
	"github.com/aretw0/arbiter/pkg/ports"
)

const clarifyPrompt = `You are a regulatory analysis assistant. Given the user's query and the retrieved legal context, determine:
1. Is this query CLEAR enough to give a confident regulatory answer? Or does the answer DEPEND on additional context?

A query is CLEAR if:
- It asks about a definition (e.g., "What is personal data?")
- It refers to a specific article or regulation
- The context provides enough information to answer confidently

A query DEPENDS on context if:
- The answer varies significantly based on circumstances (e.g., "We lost patient data" depends on whether data was encrypted, how many records, whether authorities were notified)
- Critical facts are missing that would change the risk level or legal outcome

If it DEPENDS, generate 3-4 high-quality follow-up options ranked by importance, that would help narrow down the analysis. Each option should be a specific, actionable clarification question.

Respond with a JSON object {"needs_clarification": bool, "summary": string, "options": [{"id": string, "text": string, "rank": int}]}.
If the query is clear, set needs_clarification=false and options=[].`

const (
	maxClarifyOptions = 4
	contextPreviewLen = 500
)

// universalOptions are appended to every clarification request.
var universalOptions = []domain.ClarificationOption{
	{ID: "opt_custom", Text: "Other (describe your situation)", Rank: 5},
	{ID: "opt_unknown", Text: "I don't know / Skip clarification", Rank: 6},
}

// clarify decides whether the query is answerable as-is. Any failure of the
// sub-call fails open to "clear".
func (p *Pipeline) clarify(ctx context.Context, s *domain.State) (domain.Partial, error) {
	proceed := domain.Partial{Route: domain.Set(domain.RouteClear)}

	if len(s.UserSelections) > 0 {
		var b strings.Builder
		b.WriteString(s.RetrievedContext)
		b.WriteString("\n\n[USER CLARIFICATION]\n")
		for i, sel := range s.UserSelections {
			if i > 0 {
				b.WriteByte('\n')
			}
			b.WriteString("- " + sel)
		}
		proceed.RetrievedContext = domain.Set(b.String())
		return proceed, nil
	}

	if containsAny(strings.ToLower(s.Query), clearPatterns) {
		return proceed, nil
	}

	resp, err := p.generator.Generate(ctx, ports.GenerateRequest{
		Messages: []domain.Message{
			domain.SystemMessage(clarifyPrompt),
			domain.UserMessage(fmt.Sprintf("Domain: %s\nQuery: %s\nContext Preview: %s", s.Domain, s.Query, preview(s.RetrievedContext, contextPreviewLen))),
		},
		Schema: ports.SchemaClarification,
	})
	if err != nil {
		if ctx.Err() != nil {
			return domain.Partial{}, err
		}
		p.log(s).Warn("clarification check failed, proceeding", "error", err)
		return proceed, nil
	}

	c, err := domain.DecodeClarification([]byte(resp.Text))
	if err != nil {
		p.log(s).Warn("clarification output unusable, proceeding", "error", err)
		return proceed, nil
	}
	if !c.NeedsClarification || len(c.Options) == 0 {
		return proceed, nil
	}

	options := rankOptions(c.Options)
	out := finish(s, &domain.FinalResult{
		Kind:    domain.KindClarification,
		Summary: c.Summary,
		Options: options,
	})
	out.Route = domain.Set(domain.RouteDepends)
	out.ClarificationOptions = domain.Set(options)
	return out, nil
}

// rankOptions keeps the first four model options, fills missing ids and ranks,
// and appends the universal options.
func rankOptions(in []domain.ClarificationOption) []domain.ClarificationOption {
	if len(in) > maxClarifyOptions {
		in = in[:maxClarifyOptions]
	}
	out := make([]domain.ClarificationOption, 0, len(in)+len(universalOptions))
	for i, o := range in {
		if o.ID == "" {
			o.ID = fmt.Sprintf("opt_%d", i+1)
		}
		if o.Rank < 1 || o.Rank > maxClarifyOptions {
			o.Rank = i + 1
		}
		out = append(out, o)
	}
	return append(out, universalOptions...)
}

// preview truncates s to at most n runes.
func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
