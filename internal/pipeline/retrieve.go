package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/aretw0/arbiter/pkg/domain"
)

const (
	defaultResultCount      = 3
	multiArticleResultCount = 6
	insufficientContext     = "Insufficient context found."
)

// resultCount sizes retrieval by query complexity.
func resultCount(query string) int {
	if containsAny(strings.ToLower(query), multiArticlePatterns) {
		return multiArticleResultCount
	}
	return defaultResultCount
}

// retrieve assembles retrieved_context from the regime's retriever plus the injection table.
func (p *Pipeline) retrieve(ctx context.Context, s *domain.State) (domain.Partial, error) {
	prof := p.profile(s.Domain)
	retriever := p.retrievers[s.Domain]
	if retriever == nil {
		if prof.StaticContext == "" {
			return p.insufficient(s, insufficientContext), nil
		}
		return domain.Partial{RetrievedContext: domain.Set(prof.StaticContext)}, nil
	}

	k := resultCount(s.Query)
	passages, err := retriever.Search(ctx, s.Query, k)
	if err != nil {
		if ctx.Err() != nil {
			return domain.Partial{}, err
		}
		p.log(s).Warn("retrieval failed", "error", err)
		return p.insufficient(s, fmt.Sprintf("Retrieval failed: %v", err)), nil
	}
	if len(passages) == 0 {
		return p.insufficient(s, insufficientContext), nil
	}

	ids := make(map[string]struct{}, len(passages))
	for _, ps := range passages {
		ids[ps.ID] = struct{}{}
	}
	raw := len(ids)
	q := strings.ToLower(s.Query)
	for _, inj := range prof.Injections {
		if containsAny(q, inj.Triggers) {
			for _, id := range inj.IDs {
				ids[id] = struct{}{}
			}
		}
	}

	sections := make([]string, 0, len(ids))
	for _, id := range sortIDs(ids) {
		text, err := retriever.Expand(ctx, id)
		if err != nil {
			if ctx.Err() != nil {
				return domain.Partial{}, err
			}
			if !errors.Is(err, domain.ErrPassageNotFound) {
				p.log(s).Warn("passage expansion failed", "id", id, "error", err)
			}
			text = fmt.Sprintf("[Error: Article %s not found in structured data]", id)
		}
		sections = append(sections, text)
	}

	p.log(s).Debug("context assembled", "k", k, "retrieved", raw, "injected", len(ids)-raw)
	return domain.Partial{RetrievedContext: domain.Set(strings.Join(sections, "\n\n"))}, nil
}

func (p *Pipeline) insufficient(s *domain.State, msg string) domain.Partial {
	out := finish(s, &domain.FinalResult{
		Kind:    domain.KindError,
		Code:    domain.CodeInsufficientContext,
		Message: msg,
	})
	out.RetrievedContext = domain.Set("")
	out.Route = domain.Set(domain.RouteBlocked)
	return out
}

// sortIDs orders identifiers numerically when both are numbers, lexically otherwise.
func sortIDs(set map[string]struct{}) []string {
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, errA := strconv.Atoi(ids[i])
		b, errB := strconv.Atoi(ids[j])
		if errA == nil && errB == nil {
			return a < b
		}
		return ids[i] < ids[j]
	})
	return ids
}
