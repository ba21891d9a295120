package arbiter_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/aretw0/arbiter"
	"github.com/aretw0/arbiter/internal/testutils"
	"github.com/aretw0/arbiter/pkg/domain"
	"github.com/aretw0/arbiter/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunner_ChatThenExit(t *testing.T) {
	gen := testutils.NewGenerator().On(ports.SchemaNone, testutils.Reply{Text: "I am the compliance analyst."})
	agent := newAgent(t, gen)

	var out bytes.Buffer
	r := arbiter.NewRunner()
	r.Input = strings.NewReader("hello\nexit\nnever read\n")
	r.Output = &out
	r.Headless = true

	require.NoError(t, r.Run(context.Background(), agent))
	assert.Equal(t, "I am the compliance analyst.\n", out.String())
	assert.NotEmpty(t, r.ThreadID)
}

func TestRunner_AnswersClarificationByNumber(t *testing.T) {
	gen := testutils.NewGenerator().
		On(ports.SchemaClarification, testutils.Reply{Text: testutils.Clarification(t, true, "Was the laptop encrypted?", "How many records?")}).
		On(ports.SchemaAnalysis, analysisReply(t))
	agent := newAgent(t, gen)

	var out bytes.Buffer
	var labels []string
	r := arbiter.NewRunner()
	r.Input = strings.NewReader("We lost a laptop with customer records\n1, 2\n")
	r.Output = &out
	r.Headless = true
	r.Progress = func(label string) { labels = append(labels, label) }
	r.Renderer = func(s string) (string, error) { return strings.ToUpper(s), nil }

	require.NoError(t, r.Run(context.Background(), agent))

	text := out.String()
	assert.Contains(t, text, "## CLARIFICATION NEEDED")
	assert.Contains(t, text, "1. WAS THE LAPTOP ENCRYPTED?")
	assert.Contains(t, text, "## SUMMARY")
	assert.Contains(t, labels, "Checking if clarification is needed...")

	state, err := agent.History(context.Background(), r.ThreadID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Was the laptop encrypted?", "How many records?"}, state.UserSelections)
	assert.Equal(t, 1, state.Turn)
}

func TestRunner_RequiresIO(t *testing.T) {
	agent := newAgent(t, testutils.NewGenerator())
	assert.Error(t, arbiter.NewRunner().Run(context.Background(), agent))
}

func TestMarkdown(t *testing.T) {
	res := &domain.FinalResult{
		Kind:    domain.KindReviewRequired,
		Message: "Low model confidence (0.40).",
		Analysis: &domain.Analysis{
			Summary:    "Notify the authority within 72 hours.",
			LegalBasis: "GDPR Article 33(1)",
			RiskTier:   domain.RiskHigh,
			Confidence: 0.4,
			ReasoningMap: []domain.ReasoningEntry{
				{Fact: "breach found", LegalMeaning: "personal data breach", Subsection: "33(1)"},
			},
		},
		Decision: &domain.Decision{Action: domain.ActionHold, Reason: "Low model confidence (0.40)."},
	}
	md := arbiter.Markdown(res)
	assert.Contains(t, md, "**Held for human review:** Low model confidence (0.40).")
	assert.Contains(t, md, "**Risk:** high (confidence 0.40)")
	assert.Contains(t, md, "| breach found | personal data breach | 33(1) |")

	assert.Contains(t, arbiter.Markdown(domain.ErrorResult(domain.CodeCycleLimit, "too many steps")), "## Error (cycle_limit)")
	assert.Empty(t, arbiter.Markdown(nil))
}
