// Package validator checks that a regulation corpus can serve a regime profile.
package validator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/arbiter/internal/pipeline"
	"github.com/aretw0/arbiter/pkg/corpus"
)

// ValidateCorpus reports broken article references and malformed articles.
// Every article named by the profile's injection table must resolve in c, and
// every article needs a title and at least one non-empty clause.
func ValidateCorpus(c *corpus.Corpus, profile pipeline.Profile) error {
	var errors []string

	for _, a := range c.Articles() {
		if strings.TrimSpace(a.Title) == "" {
			errors = append(errors, fmt.Sprintf("Article '%s' has no title", a.ID))
		}
		if len(a.Clauses) == 0 {
			errors = append(errors, fmt.Sprintf("Article '%s' has no clauses", a.ID))
		}
		for _, cl := range a.Clauses {
			if strings.TrimSpace(cl.Text) == "" {
				errors = append(errors, fmt.Sprintf("Clause '%s' of article '%s' is empty", cl.ID, a.ID))
			}
		}
	}

	visited := make(map[string]bool)
	for _, inj := range profile.Injections {
		for _, id := range inj.IDs {
			if visited[id] {
				continue
			}
			visited[id] = true
			if _, ok := c.Article(id); !ok {
				errors = append(errors, fmt.Sprintf("Missing article '%s' (injected for %s queries)", id, inj.Name))
			}
		}
	}

	if len(errors) > 0 {
		sort.Strings(errors)
		return fmt.Errorf("found %d errors:\n- %s", len(errors), strings.Join(errors, "\n- "))
	}

	return nil
}
