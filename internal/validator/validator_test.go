package validator

import (
	"testing"

	"github.com/aretw0/arbiter/internal/pipeline"
	"github.com/aretw0/arbiter/pkg/corpus"
	"github.com/aretw0/arbiter/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func article(id, title string, clauses ...string) corpus.Article {
	a := corpus.Article{ID: id, Title: title}
	for i, text := range clauses {
		a.Clauses = append(a.Clauses, corpus.Clause{ID: id + "." + string(rune('1'+i)), Text: text})
	}
	return a
}

func TestValidateCorpus(t *testing.T) {
	profile := pipeline.Profile{
		Regime: domain.RegimeGDPR,
		Injections: []pipeline.Injection{
			{Name: "penalty", IDs: []string{"83"}},
			{Name: "rights", IDs: []string{"17", "83"}},
		},
	}

	t.Run("Valid", func(t *testing.T) {
		c := corpus.New([]corpus.Article{
			article("17", "Right to erasure", "The data subject shall have the right..."),
			article("83", "Administrative fines", "Each supervisory authority shall ensure..."),
		})
		assert.NoError(t, ValidateCorpus(c, profile))
	})

	t.Run("Broken Reference", func(t *testing.T) {
		c := corpus.New([]corpus.Article{
			article("17", "Right to erasure", "The data subject shall have the right..."),
		})
		err := ValidateCorpus(c, profile)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "found 1 errors")
		assert.Contains(t, err.Error(), "Missing article '83' (injected for penalty queries)")
	})

	t.Run("Malformed Articles", func(t *testing.T) {
		c := corpus.New([]corpus.Article{
			article("17", "", "text"),
			article("83", "Administrative fines", "  "),
			article("99", "Entry into force"),
		})
		err := ValidateCorpus(c, profile)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "found 3 errors")
		assert.Contains(t, err.Error(), "Article '17' has no title")
		assert.Contains(t, err.Error(), "Clause '83.1' of article '83' is empty")
		assert.Contains(t, err.Error(), "Article '99' has no clauses")
	})

	t.Run("Default GDPR Profile Against Sample Corpus", func(t *testing.T) {
		c, err := corpus.Load("../../pkg/corpus/testdata/gdpr.json")
		require.NoError(t, err)
		err = ValidateCorpus(c, pipeline.DefaultProfiles()[domain.RegimeGDPR])
		require.Error(t, err, "the sample corpus covers only a few articles")
		assert.Contains(t, err.Error(), "Missing article '45'")
	})
}
