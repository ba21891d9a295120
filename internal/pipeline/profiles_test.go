package pipeline

import (
	"testing"

	"github.com/aretw0/arbiter/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func TestOverrides_Idempotent(t *testing.T) {
	cases := []struct {
		name   string
		regime domain.Regime
		query  string
	}{
		{"Tax Erasure", domain.RegimeGDPR, "Can we refuse to erase invoices kept for tax purposes?"},
		{"Definition", domain.RegimeGDPR, "What is personal data?"},
		{"CCPA Sale", domain.RegimeCCPA, "Is this a sale of data?"},
		{"Untouched", domain.RegimeFDA, "Recall obligations for devices"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := &domain.Analysis{Summary: "draft", RiskTier: domain.RiskCritical, Confidence: 0.3}
			prof := DefaultProfiles()[tc.regime]

			once := a.Clone()
			for _, o := range prof.Overrides {
				o(once, tc.query)
			}
			twice := once.Clone()
			for _, o := range prof.Overrides {
				o(twice, tc.query)
			}
			assert.Equal(t, once, twice)
		})
	}
}

func TestTaxErasureOverride(t *testing.T) {
	a := &domain.Analysis{Summary: "Full erasure required.", RiskTier: domain.RiskHigh, Confidence: 0.6}
	taxErasureOverride(a, "Customer wants us to delete records we keep for tax law")

	assert.Equal(t, domain.RiskMedium, a.RiskTier)
	assert.Equal(t, 1.0, a.Confidence)
	assert.Contains(t, a.LegalBasis, "17(3)(b)")
	assert.Contains(t, a.Summary, "Partial Refusal")

	b := &domain.Analysis{Summary: "unchanged", RiskTier: domain.RiskHigh}
	taxErasureOverride(b, "Customer wants us to delete records")
	assert.Equal(t, "unchanged", b.Summary)
}

func TestCCPACitationOverride_FirstTriggerWins(t *testing.T) {
	a := &domain.Analysis{RiskTier: domain.RiskHigh}
	ccpaCitationOverride(a, "Does sharing sensitive geolocation count?")
	assert.Equal(t, "California Civil Code §1798.140(ae)", a.LegalBasis)
	assert.Equal(t, 0.95, a.Confidence)
}

func TestDefinitionOverride_KeepsHighRisk(t *testing.T) {
	a := &domain.Analysis{RiskTier: domain.RiskHigh, Confidence: 0.7}
	definitionOverride(a, "What is a personal data breach?")
	assert.Equal(t, domain.RiskHigh, a.RiskTier)
	assert.Equal(t, 0.7, a.Confidence)

	b := &domain.Analysis{RiskTier: domain.RiskMedium, Confidence: 0.7}
	definitionOverride(b, "Define pseudonymisation")
	assert.Equal(t, domain.RiskLow, b.RiskTier)
}

func TestLexicon(t *testing.T) {
	assert.True(t, containsPhrase("hi there", greetingPatterns))
	assert.True(t, containsPhrase("Thanks!", greetingPatterns))
	assert.True(t, containsPhrase("so, what can you do?", greetingPatterns))
	assert.False(t, containsPhrase("which article applies", greetingPatterns))
	assert.False(t, containsPhrase("this is helpful context", greetingPatterns))

	assert.True(t, containsAny("how do we bypass the audit", unethicalPatterns))
	assert.Equal(t, 6, resultCount("What is the maximum penalty?"))
	assert.Equal(t, 3, resultCount("Explain article 6"))
}

func TestRankOptions(t *testing.T) {
	in := []domain.ClarificationOption{
		{ID: "a", Text: "first", Rank: 2},
		{Text: "second", Rank: 9},
		{Text: "third"},
	}
	out := rankOptions(in)
	assert.Len(t, out, 5)
	assert.Equal(t, domain.ClarificationOption{ID: "a", Text: "first", Rank: 2}, out[0])
	assert.Equal(t, domain.ClarificationOption{ID: "opt_2", Text: "second", Rank: 2}, out[1])
	assert.Equal(t, domain.ClarificationOption{ID: "opt_3", Text: "third", Rank: 3}, out[2])
	assert.Equal(t, universalOptions, out[3:])
}

func TestSortIDs(t *testing.T) {
	ids := map[string]struct{}{"83": {}, "6": {}, "17": {}, "a": {}}
	assert.Equal(t, []string{"6", "17", "83", "a"}, sortIDs(ids))
}
