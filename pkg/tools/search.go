// Package tools provides the built-in capabilities offered to the generative stage.
package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/aretw0/arbiter/pkg/corpus"
	"github.com/aretw0/arbiter/pkg/domain"
	"github.com/aretw0/arbiter/pkg/registry"
	"github.com/mitchellh/mapstructure"
)

// SearchRegulationsName is the tool name exposed to the model.
const SearchRegulationsName = "search_regulations"

const searchLimit = 3

// SearchRegulationsSpec describes the search tool in JSON Schema form.
func SearchRegulationsSpec() domain.Tool {
	return domain.Tool{
		Name: SearchRegulationsName,
		Description: "Search local regulatory databases for specific legal articles and clauses. " +
			"Use this when you need to look up the exact text of a regulation before answering. " +
			"ALWAYS use this tool when the query references specific articles or when you're unsure of the exact legal text.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Keywords or article numbers to search for (e.g. 'Article 33 breach notification' or 'data erasure rights')",
				},
				"jurisdiction": map[string]any{
					"type":        "string",
					"enum":        []string{"GDPR", "CCPA", "FDA"},
					"description": "Which regulatory framework to search in.",
				},
			},
			"required": []string{"query"},
		},
	}
}

type searchArgs struct {
	Query        string `mapstructure:"query"`
	Jurisdiction string `mapstructure:"jurisdiction"`
}

// SearchRegulations returns a keyword search over the corpus of each regime.
// Regimes without a corpus report that nothing matched.
func SearchRegulations(corpora map[domain.Regime]*corpus.Corpus) registry.ToolFunction {
	return func(ctx context.Context, args map[string]any) (string, error) {
		var in searchArgs
		if err := mapstructure.WeakDecode(args, &in); err != nil {
			return "", fmt.Errorf("invalid arguments: %w", err)
		}
		if strings.TrimSpace(in.Query) == "" {
			return "", fmt.Errorf("query is required")
		}
		regime := domain.DefaultRegime
		if in.Jurisdiction != "" {
			r, err := domain.ParseRegime(in.Jurisdiction)
			if err != nil {
				return "", err
			}
			regime = r
		}

		c := corpora[regime]
		if c == nil {
			return fmt.Sprintf("No articles found matching '%s' in %s regulations.", in.Query, regime), nil
		}
		hits := c.KeywordSearch(in.Query, searchLimit)
		if len(hits) == 0 {
			return fmt.Sprintf("No articles found matching '%s' in %s regulations.", in.Query, regime), nil
		}

		parts := make([]string, len(hits))
		for i, a := range hits {
			parts[i] = a.Render()
		}
		return fmt.Sprintf("--- %s Regulation Search Results ---\n\n", regime) + strings.Join(parts, "\n\n"), nil
	}
}

// Register adds the built-in tools to r.
func Register(r *registry.Registry, corpora map[domain.Regime]*corpus.Corpus) {
	r.Register(SearchRegulationsSpec(), SearchRegulations(corpora))
}
