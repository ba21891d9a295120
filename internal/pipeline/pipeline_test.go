package pipeline_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/aretw0/arbiter/internal/pipeline"
	"github.com/aretw0/arbiter/internal/runtime"
	"github.com/aretw0/arbiter/internal/testutils"
	"github.com/aretw0/arbiter/pkg/domain"
	"github.com/aretw0/arbiter/pkg/ports"
	"github.com/aretw0/arbiter/pkg/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type run struct {
	state   *domain.State
	visited []string
	saved   int
}

func (r run) count(stage string) int {
	n := 0
	for _, v := range r.visited {
		if v == stage {
			n++
		}
	}
	return n
}

func execute(t *testing.T, p *pipeline.Pipeline, s *domain.State) run {
	t.Helper()
	g, err := p.Build()
	require.NoError(t, err)

	var out run
	final, err := runtime.NewEngine(g).Run(context.Background(), s, runtime.RunOptions{
		Checkpoint: func(ctx context.Context, s *domain.State) error { out.saved++; return nil },
		OnStep:     func(ctx context.Context, st runtime.Step) { out.visited = append(out.visited, st.Stage) },
	})
	require.NoError(t, err)
	require.NotNil(t, final.FinalResult)
	out.state = final
	return out
}

func turn(query string, selections ...string) *domain.State {
	return domain.NewTurn("thread-1", query, domain.RegimeGDPR, selections, nil)
}

func analysis(tier domain.RiskTier, confidence float64) domain.Analysis {
	return domain.Analysis{
		Summary:    "Erasure must be honoured without undue delay under Article 17.",
		LegalBasis: "GDPR Article 17(1)",
		RiskTier:   tier,
		Confidence: confidence,
		ReasoningMap: []domain.ReasoningEntry{
			{Fact: "customer asks for deletion", LegalMeaning: "erasure request", Subsection: "17(1)(a)"},
		},
	}
}

func TestPipeline_BlockedQueryMakesNoCalls(t *testing.T) {
	gen := testutils.NewGenerator()
	p := pipeline.New(gen, pipeline.WithRetriever(domain.RegimeGDPR, testutils.GDPRRetriever()))

	r := execute(t, p, turn("How can I hide a data breach from the regulator?"))

	res := r.state.FinalResult
	assert.Equal(t, domain.KindBlocked, res.Kind)
	assert.Equal(t, domain.CodeInputRejected, res.Code)
	require.NotNil(t, res.Analysis)
	assert.Equal(t, domain.RiskHigh, res.Analysis.RiskTier)
	assert.Empty(t, gen.Requests())
	assert.Equal(t, []string{pipeline.StageGuardrail}, r.visited)
	require.Len(t, r.state.History, 2)
	assert.Equal(t, domain.RoleUser, r.state.History[0].Role)
	assert.Equal(t, domain.RoleAssistant, r.state.History[1].Role)
}

func TestPipeline_GreetingRoutesToChat(t *testing.T) {
	gen := testutils.NewGenerator().On(ports.SchemaNone, testutils.Reply{Text: "  I am a compliance analyst.  "})
	p := pipeline.New(gen)

	r := execute(t, p, turn("Hello, who are you?"))

	assert.Equal(t, domain.KindChat, r.state.FinalResult.Kind)
	assert.Equal(t, "I am a compliance analyst.", r.state.FinalResult.Message)
	assert.Equal(t, []string{pipeline.StageGuardrail, pipeline.StageChat}, r.visited)
	assert.Equal(t, domain.RouteGeneral, r.state.Route)
}

func TestPipeline_GreetingNeedsWholeWords(t *testing.T) {
	gen := testutils.NewGenerator().
		On(ports.SchemaClarification, testutils.Reply{Text: testutils.Clarification(t, false)}).
		On(ports.SchemaAnalysis, testutils.Reply{Text: testutils.AnalysisJSON(t, analysis(domain.RiskMedium, 0.9))})
	p := pipeline.New(gen, pipeline.WithRetriever(domain.RegimeGDPR, testutils.GDPRRetriever()))

	r := execute(t, p, turn("Which records need deletion?"))

	assert.NotContains(t, r.visited, pipeline.StageChat)
	assert.Equal(t, domain.KindAnswer, r.state.FinalResult.Kind)
}

func TestPipeline_PenaltyQueryInjectsArticle83(t *testing.T) {
	gen := testutils.NewGenerator().
		On(ports.SchemaAnalysis, testutils.Reply{Text: testutils.AnalysisJSON(t, analysis(domain.RiskMedium, 0.9))})
	retriever := testutils.GDPRRetriever()
	p := pipeline.New(gen, pipeline.WithRetriever(domain.RegimeGDPR, retriever))

	r := execute(t, p, turn("What is the maximum fine for a late breach notification?"))

	assert.Contains(t, r.state.RetrievedContext, "Article 83: General conditions")
	assert.Contains(t, r.state.RetrievedContext, "Article 17")
	assert.Less(t, strings.Index(r.state.RetrievedContext, "Article 6:"), strings.Index(r.state.RetrievedContext, "Article 83:"))
	assert.Zero(t, gen.Calls(ports.SchemaClarification), "definition phrasing skips the clarification call")

	res := r.state.FinalResult
	require.Equal(t, domain.KindAnswer, res.Kind)
	assert.Equal(t, domain.RiskLow, res.Analysis.RiskTier, "definition queries are pinned to low risk")
	assert.Equal(t, 1.0, res.Analysis.Confidence)
	assert.Equal(t, domain.ActionAutoApprove, res.Decision.Action)
	assert.Equal(t, r.saved, len(r.visited))
}

func TestPipeline_RetriesUntilValid(t *testing.T) {
	candidate := testutils.AnalysisJSON(t, analysis(domain.RiskMedium, 0.9))
	gen := testutils.NewGenerator().On(ports.SchemaAnalysis,
		testutils.Reply{Text: candidate},
		testutils.Reply{Text: candidate},
		testutils.Reply{Text: candidate},
	)
	rules := &testutils.RuleScript{Failures: 2, Violation: "Missing citation: Article 17(3)(b)"}
	p := pipeline.New(gen,
		pipeline.WithRetriever(domain.RegimeGDPR, testutils.GDPRRetriever()),
		pipeline.WithRuleChecker(rules),
	)

	r := execute(t, p, turn("Explain Article 17 erasure obligations"))

	res := r.state.FinalResult
	assert.Equal(t, domain.KindAnswer, res.Kind)
	assert.Equal(t, 2, res.RetryCount)
	assert.Equal(t, 2, r.state.RetryCount)
	assert.Equal(t, 3, r.count(pipeline.StageValidate))
	assert.Equal(t, 1, r.count(pipeline.StageSemanticOverride))
	assert.Equal(t, 3, r.state.Generations)

	reqs := gen.Requests()
	require.Len(t, reqs, 3)
	last := reqs[2].Messages[len(reqs[2].Messages)-1]
	assert.Contains(t, last.Content, "CRITICAL LOGIC ERROR")
	assert.Contains(t, last.Content, "Missing citation: Article 17(3)(b)")
	first := reqs[0].Messages[len(reqs[0].Messages)-1]
	assert.NotContains(t, first.Content, "CRITICAL LOGIC ERROR")
}

func TestPipeline_FallbackAfterMaxRetries(t *testing.T) {
	candidate := testutils.AnalysisJSON(t, analysis(domain.RiskMedium, 0.9))
	gen := testutils.NewGenerator().On(ports.SchemaAnalysis,
		testutils.Reply{Text: candidate},
		testutils.Reply{Text: candidate},
		testutils.Reply{Text: candidate},
		testutils.Reply{Text: candidate},
	)
	rules := &testutils.RuleScript{Failures: 100, Violation: "Reasoning Map: The reasoning_map field is EMPTY."}
	p := pipeline.New(gen,
		pipeline.WithRetriever(domain.RegimeGDPR, testutils.GDPRRetriever()),
		pipeline.WithRuleChecker(rules),
	)

	r := execute(t, p, turn("Explain Article 17 erasure obligations"))

	res := r.state.FinalResult
	assert.Equal(t, domain.KindError, res.Kind)
	assert.Equal(t, domain.CodeValidationFailed, res.Code)
	assert.Equal(t, 3, res.RetryCount)
	assert.Equal(t, "Analysis failed after 3 retries. Last errors: Reasoning Map: The reasoning_map field is EMPTY.", res.Message)
	assert.Equal(t, []string{"Reasoning Map: The reasoning_map field is EMPTY."}, res.Errors)
	assert.Equal(t, 3, gen.Calls(ports.SchemaAnalysis))
	assert.Equal(t, 1, r.count(pipeline.StageFallback))
	assert.Zero(t, r.count(pipeline.StageGovernance))
}

func TestPipeline_SelectionsSkipClarification(t *testing.T) {
	gen := testutils.NewGenerator().
		On(ports.SchemaAnalysis, testutils.Reply{Text: testutils.AnalysisJSON(t, analysis(domain.RiskMedium, 0.9))})
	p := pipeline.New(gen, pipeline.WithRetriever(domain.RegimeGDPR, testutils.GDPRRetriever()))

	r := execute(t, p, turn("We lost a laptop with customer records", "The laptop was encrypted", "About 200 records"))

	assert.Zero(t, gen.Calls(ports.SchemaClarification))
	assert.Contains(t, r.state.RetrievedContext, "[USER CLARIFICATION]\n- The laptop was encrypted\n- About 200 records")
	assert.Equal(t, domain.KindAnswer, r.state.FinalResult.Kind)

	reqs := gen.Requests()
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].Messages[len(reqs[0].Messages)-1].Content, "[USER CLARIFICATION]")
}

func TestPipeline_ClarificationRanksOptions(t *testing.T) {
	gen := testutils.NewGenerator().On(ports.SchemaClarification, testutils.Reply{
		Text: testutils.Clarification(t, true, "Was the data encrypted?", "How many records?", "Who was affected?", "When was it found?", "Extra option"),
	})
	p := pipeline.New(gen, pipeline.WithRetriever(domain.RegimeGDPR, testutils.GDPRRetriever()))

	r := execute(t, p, turn("We lost a laptop with customer records"))

	res := r.state.FinalResult
	require.Equal(t, domain.KindClarification, res.Kind)
	assert.Equal(t, domain.RouteDepends, r.state.Route)
	require.Len(t, res.Options, 6)
	for i := 0; i < 4; i++ {
		assert.Equal(t, i+1, res.Options[i].Rank)
		assert.NotEmpty(t, res.Options[i].ID)
	}
	assert.Equal(t, "opt_custom", res.Options[4].ID)
	assert.Equal(t, "opt_unknown", res.Options[5].ID)
	assert.Equal(t, res.Options, r.state.ClarificationOptions)
	assert.Zero(t, gen.Calls(ports.SchemaAnalysis))
	assert.Equal(t, pipeline.StageClarify, r.visited[len(r.visited)-1])
}

func TestPipeline_ClarificationFailsOpen(t *testing.T) {
	gen := testutils.NewGenerator().
		On(ports.SchemaClarification, testutils.Reply{Text: "not json"}).
		On(ports.SchemaAnalysis, testutils.Reply{Text: testutils.AnalysisJSON(t, analysis(domain.RiskMedium, 0.9))})
	p := pipeline.New(gen, pipeline.WithRetriever(domain.RegimeGDPR, testutils.GDPRRetriever()))

	r := execute(t, p, turn("We lost a laptop with customer records"))

	assert.Equal(t, domain.KindAnswer, r.state.FinalResult.Kind)
	assert.Equal(t, 1, gen.Calls(ports.SchemaClarification))
}

func TestPipeline_InsufficientContext(t *testing.T) {
	t.Run("No Passages", func(t *testing.T) {
		gen := testutils.NewGenerator()
		p := pipeline.New(gen, pipeline.WithRetriever(domain.RegimeGDPR, &testutils.Retriever{}))

		r := execute(t, p, turn("Explain data portability"))

		res := r.state.FinalResult
		assert.Equal(t, domain.KindError, res.Kind)
		assert.Equal(t, domain.CodeInsufficientContext, res.Code)
		assert.Equal(t, "Insufficient context found.", res.Message)
		assert.Empty(t, gen.Requests())
	})

	t.Run("Retriever Error", func(t *testing.T) {
		gen := testutils.NewGenerator()
		p := pipeline.New(gen, pipeline.WithRetriever(domain.RegimeGDPR, &testutils.Retriever{Err: assert.AnError}))

		r := execute(t, p, turn("Explain data portability"))

		assert.Equal(t, domain.CodeInsufficientContext, r.state.FinalResult.Code)
		assert.Contains(t, r.state.FinalResult.Message, "Retrieval failed")
	})

	t.Run("Static Context", func(t *testing.T) {
		gen := testutils.NewGenerator().
			On(ports.SchemaAnalysis, testutils.Reply{Text: testutils.AnalysisJSON(t, analysis(domain.RiskMedium, 0.9))})
		p := pipeline.New(gen)

		s := domain.NewTurn("thread-2", "Explain the sale of personal information", domain.RegimeCCPA, nil, nil)
		r := execute(t, p, s)

		res := r.state.FinalResult
		require.Equal(t, domain.KindAnswer, res.Kind)
		assert.Contains(t, r.state.RetrievedContext, "CCPA/CPRA")
		assert.Equal(t, "California Civil Code §1798.140(v)(1)", res.Analysis.LegalBasis)
	})
}

func TestPipeline_ToolCycle(t *testing.T) {
	reg := registry.NewRegistry()
	reg.Register(domain.Tool{Name: "search_regulations"}, func(ctx context.Context, args map[string]any) (string, error) {
		return "Article 17: Right to erasure", nil
	})

	gen := testutils.NewGenerator().On(ports.SchemaAnalysis,
		testutils.Reply{ToolCalls: []domain.ToolCall{{Name: "search_regulations", Args: map[string]any{"query": "erasure"}}}},
		testutils.Reply{Text: testutils.AnalysisJSON(t, analysis(domain.RiskMedium, 0.9))},
	)

	var mu sync.Mutex
	var returned []*domain.ToolEvent
	p := pipeline.New(gen,
		pipeline.WithRetriever(domain.RegimeGDPR, testutils.GDPRRetriever()),
		pipeline.WithTools(reg),
		pipeline.WithToolHooks(domain.LifecycleHooks{
			OnToolReturn: func(ctx context.Context, e *domain.ToolEvent) {
				mu.Lock()
				defer mu.Unlock()
				returned = append(returned, e)
			},
		}),
	)

	r := execute(t, p, turn("Explain Article 17 erasure obligations"))

	require.Equal(t, domain.KindAnswer, r.state.FinalResult.Kind)
	assert.Equal(t, 1, r.count(pipeline.StageToolDispatch))
	assert.Equal(t, 1, r.state.ToolRounds)
	assert.Empty(t, r.state.PendingToolCalls)

	reqs := gen.Requests()
	require.Len(t, reqs, 2)
	assert.NotEmpty(t, reqs[0].Tools)

	var toolMsg *domain.Message
	for i, m := range reqs[1].Messages {
		if m.Role == domain.RoleTool {
			toolMsg = &reqs[1].Messages[i]
		}
	}
	require.NotNil(t, toolMsg)
	assert.Equal(t, "Article 17: Right to erasure", toolMsg.Content)
	assert.True(t, strings.HasPrefix(toolMsg.ToolCallID, "call_"))

	require.Len(t, returned, 1)
	assert.Equal(t, "search_regulations", returned[0].ToolName)
	assert.False(t, returned[0].IsError)
}

func TestPipeline_ToolAndGenerationBudgets(t *testing.T) {
	reg := registry.NewRegistry()
	reg.Register(domain.Tool{Name: "search_regulations"}, func(ctx context.Context, args map[string]any) (string, error) {
		return "nothing new", nil
	})
	call := testutils.Reply{ToolCalls: []domain.ToolCall{{ID: "c", Name: "search_regulations"}}}
	gen := testutils.NewGenerator().On(ports.SchemaAnalysis, call, call, call, call, call)

	p := pipeline.New(gen,
		pipeline.WithRetriever(domain.RegimeGDPR, testutils.GDPRRetriever()),
		pipeline.WithTools(reg),
		pipeline.WithLimits(pipeline.Limits{MaxRetries: 1, MaxToolRounds: 1}),
	)
	require.Equal(t, 3, p.Limits().GenerationBudget())

	r := execute(t, p, turn("Explain Article 17 erasure obligations"))

	res := r.state.FinalResult
	assert.Equal(t, domain.KindError, res.Kind)
	assert.Equal(t, domain.CodeGenerationBudget, res.Code)
	assert.Equal(t, 3, gen.Calls(ports.SchemaAnalysis))

	reqs := gen.Requests()
	assert.NotEmpty(t, reqs[0].Tools)
	assert.Empty(t, reqs[1].Tools, "tools are withdrawn once the round cap is reached")

	var exhausted int
	for _, m := range r.state.History {
		if m.Role == domain.RoleTool && strings.Contains(m.Content, "tool budget exhausted") {
			exhausted++
		}
	}
	assert.Equal(t, 2, exhausted)
}

func TestPipeline_GenerationFailures(t *testing.T) {
	t.Run("Outage", func(t *testing.T) {
		gen := testutils.NewGenerator()
		p := pipeline.New(gen, pipeline.WithRetriever(domain.RegimeGDPR, testutils.GDPRRetriever()))

		r := execute(t, p, turn("Explain Article 17 erasure obligations"))

		assert.Equal(t, domain.CodeProviderOutage, r.state.FinalResult.Code)
		assert.Contains(t, r.state.FinalResult.Message, "API Error")
	})

	t.Run("Schema Mismatch", func(t *testing.T) {
		gen := testutils.NewGenerator().On(ports.SchemaAnalysis, testutils.Reply{Text: `{"summary": "no risk level"}`})
		p := pipeline.New(gen, pipeline.WithRetriever(domain.RegimeGDPR, testutils.GDPRRetriever()))

		r := execute(t, p, turn("Explain Article 17 erasure obligations"))

		assert.Equal(t, domain.CodeSchemaMismatch, r.state.FinalResult.Code)
		assert.Zero(t, r.count(pipeline.StageValidate))
	})
}

func TestPipeline_Governance(t *testing.T) {
	cases := []struct {
		name     string
		analysis domain.Analysis
		kind     domain.ResultKind
	}{
		{"Auto Approve", analysis(domain.RiskMedium, 0.9), domain.KindAnswer},
		{"Critical Risk Held", analysis(domain.RiskCritical, 0.95), domain.KindReviewRequired},
		{"Low Confidence Held", analysis(domain.RiskMedium, 0.4), domain.KindReviewRequired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gen := testutils.NewGenerator().On(ports.SchemaAnalysis, testutils.Reply{Text: testutils.AnalysisJSON(t, tc.analysis)})
			p := pipeline.New(gen, pipeline.WithRetriever(domain.RegimeGDPR, testutils.GDPRRetriever()))

			r := execute(t, p, turn("Explain Article 17 erasure obligations"))

			res := r.state.FinalResult
			assert.Equal(t, tc.kind, res.Kind)
			require.NotNil(t, res.Decision)
			assert.NotEmpty(t, res.Decision.Reason)
		})
	}

	t.Run("Missing Preconditions", func(t *testing.T) {
		a := analysis(domain.RiskMedium, 0.3)
		a.NeedsClarification = true
		a.MissingPreconditions = []string{"Was the data encrypted?", "Are you the controller?"}
		gen := testutils.NewGenerator().On(ports.SchemaAnalysis, testutils.Reply{Text: testutils.AnalysisJSON(t, a)})
		p := pipeline.New(gen, pipeline.WithRetriever(domain.RegimeGDPR, testutils.GDPRRetriever()))

		r := execute(t, p, turn("Explain Article 17 erasure obligations"))

		res := r.state.FinalResult
		require.Equal(t, domain.KindClarification, res.Kind)
		require.Len(t, res.Options, 2)
		assert.Equal(t, domain.ClarificationOption{ID: "opt_2", Text: "Are you the controller?", Rank: 2}, res.Options[1])
	})
}

func TestPipeline_PriorTurnsReachPrompt(t *testing.T) {
	gen := testutils.NewGenerator().
		On(ports.SchemaAnalysis,
			testutils.Reply{Text: testutils.AnalysisJSON(t, analysis(domain.RiskMedium, 0.9))},
			testutils.Reply{Text: testutils.AnalysisJSON(t, analysis(domain.RiskMedium, 0.9))},
		)
	p := pipeline.New(gen, pipeline.WithRetriever(domain.RegimeGDPR, testutils.GDPRRetriever()))

	first := execute(t, p, turn("Explain Article 17 erasure obligations"))
	next := domain.NewTurn("thread-1", "Explain the exceptions to Article 17", domain.RegimeGDPR, nil, first.state)
	second := execute(t, p, next)

	assert.Equal(t, 1, second.state.Turn)
	assert.Len(t, second.state.History, 4)

	reqs := gen.Requests()
	require.Len(t, reqs, 2)
	var replayed bool
	for _, m := range reqs[1].Messages {
		if m.Role == domain.RoleUser && m.Content == "Explain Article 17 erasure obligations" {
			replayed = true
		}
	}
	assert.True(t, replayed)
}
