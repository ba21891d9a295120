// Package pipeline implements the compliance-analysis stages and routers and
// wires them into a graph for the runtime executor.
package pipeline

import (
	"log/slog"

	"github.com/aretw0/arbiter/internal/logging"
	"github.com/aretw0/arbiter/internal/runtime"
	"github.com/aretw0/arbiter/pkg/domain"
	"github.com/aretw0/arbiter/pkg/policy"
	"github.com/aretw0/arbiter/pkg/ports"
)

// Stage names. They are also the node names reported to event sinks.
const (
	StageGuardrail        = "guardrail"
	StageChat             = "chat"
	StageRetrieve         = "retrieve"
	StageClarify          = "clarify"
	StageGenerate         = "llm"
	StageToolDispatch     = "tool_executor"
	StageValidate         = "validator"
	StageSemanticOverride = "semantic_override"
	StageGovernance       = "governance"
	StageFallback         = "fallback"
)

// Labels are the human-readable progress messages of each stage.
var Labels = map[string]string{
	StageGuardrail:        "Running intent safety check...",
	StageChat:             "Generating conversational response...",
	StageRetrieve:         "Searching internal regulations...",
	StageClarify:          "Checking if clarification is needed...",
	StageGenerate:         "Generating compliance analysis...",
	StageValidate:         "Validating LLM citations...",
	StageSemanticOverride: "Applying regulatory overrides...",
	StageGovernance:       "Running governance decision gate...",
	StageToolDispatch:     "Executing regulation lookup tool...",
	StageFallback:         "Analysis failed, returning fallback...",
}

// Limits bound the self-correction and tool cycles of one turn.
type Limits struct {
	// MaxRetries is the number of failed validations tolerated before Fallback.
	MaxRetries int
	// MaxToolRounds caps Tool Dispatch rounds per turn.
	MaxToolRounds int
}

// DefaultLimits returns the standard bounds.
func DefaultLimits() Limits {
	return Limits{MaxRetries: 3, MaxToolRounds: 2}
}

// GenerationBudget is the maximum number of Generate invocations in one turn.
func (l Limits) GenerationBudget() int {
	return l.MaxRetries + 1 + l.MaxToolRounds
}

// Pipeline holds the collaborators shared by every stage.
type Pipeline struct {
	generator  ports.Generator
	retrievers map[domain.Regime]ports.Retriever
	checkers   map[domain.Regime]ports.RuleChecker
	rules      ports.RuleChecker
	policy     ports.DecisionPolicy
	tools      ports.ToolDispatcher
	profiles   map[domain.Regime]Profile
	limits     Limits
	hooks      domain.LifecycleHooks
	logger     *slog.Logger
}

// Option configures the Pipeline.
type Option func(*Pipeline)

// WithRetriever sets the retrieval collaborator for a regime.
func WithRetriever(regime domain.Regime, r ports.Retriever) Option {
	return func(p *Pipeline) {
		p.retrievers[regime] = r
	}
}

// WithRuleChecker sets the default validation rule set, used for regimes without their own.
func WithRuleChecker(rc ports.RuleChecker) Option {
	return func(p *Pipeline) {
		p.rules = rc
	}
}

// WithRegimeRuleChecker sets the validation rule set of a single regime.
func WithRegimeRuleChecker(regime domain.Regime, rc ports.RuleChecker) Option {
	return func(p *Pipeline) {
		p.checkers[regime] = rc
	}
}

// WithPolicy sets the decision policy used by Governance.
func WithPolicy(dp ports.DecisionPolicy) Option {
	return func(p *Pipeline) {
		if dp != nil {
			p.policy = dp
		}
	}
}

// WithTools sets the tool dispatcher offered to Generate.
func WithTools(td ports.ToolDispatcher) Option {
	return func(p *Pipeline) {
		p.tools = td
	}
}

// WithProfile replaces the profile of a regime.
func WithProfile(profile Profile) Option {
	return func(p *Pipeline) {
		p.profiles[profile.Regime] = profile
	}
}

// WithLimits sets the retry and tool bounds.
// A non-positive MaxRetries or a negative MaxToolRounds keeps the default.
func WithLimits(l Limits) Option {
	return func(p *Pipeline) {
		if l.MaxRetries > 0 {
			p.limits.MaxRetries = l.MaxRetries
		}
		if l.MaxToolRounds >= 0 {
			p.limits.MaxToolRounds = l.MaxToolRounds
		}
	}
}

// WithToolHooks registers tool call observers.
func WithToolHooks(hooks domain.LifecycleHooks) Option {
	return func(p *Pipeline) {
		p.hooks = p.hooks.Combine(hooks)
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New creates a pipeline around a generator.
func New(generator ports.Generator, opts ...Option) *Pipeline {
	p := &Pipeline{
		generator:  generator,
		retrievers: make(map[domain.Regime]ports.Retriever),
		checkers:   make(map[domain.Regime]ports.RuleChecker),
		policy:     policy.Default(),
		profiles:   DefaultProfiles(),
		limits:     DefaultLimits(),
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Limits returns the effective bounds.
func (p *Pipeline) Limits() Limits {
	return p.limits
}

// Build compiles the stage graph.
func (p *Pipeline) Build() (*runtime.Graph, error) {
	b := runtime.NewBuilder()
	add := func(name string, fn runtime.StageFunc) {
		b.AddStage(name, Labels[name], fn)
	}
	add(StageGuardrail, p.guardrail)
	add(StageChat, p.chat)
	add(StageRetrieve, p.retrieve)
	add(StageClarify, p.clarify)
	add(StageGenerate, p.generate)
	add(StageToolDispatch, p.dispatchTools)
	add(StageValidate, p.validate)
	add(StageSemanticOverride, p.semanticOverride)
	add(StageGovernance, p.governance)
	add(StageFallback, p.fallback)

	b.SetEntry(StageGuardrail)
	b.AddConditionalEdge(StageGuardrail, routeAfterGuardrail, runtime.End, StageChat, StageRetrieve)
	b.AddEdge(StageChat, runtime.End)
	b.AddEdge(StageRetrieve, StageClarify)
	b.AddConditionalEdge(StageClarify, routeAfterClarify, runtime.End, StageGenerate)
	b.AddConditionalEdge(StageGenerate, routeAfterGenerate, runtime.End, StageToolDispatch, StageValidate)
	b.AddEdge(StageToolDispatch, StageGenerate)
	b.AddConditionalEdge(StageValidate, p.routeAfterValidate, StageSemanticOverride, StageGenerate, StageFallback)
	b.AddEdge(StageSemanticOverride, StageGovernance)
	b.AddEdge(StageGovernance, runtime.End)
	b.AddEdge(StageFallback, runtime.End)
	return b.Compile()
}

func (p *Pipeline) profile(r domain.Regime) Profile {
	if prof, ok := p.profiles[r]; ok {
		return prof
	}
	return p.profiles[domain.DefaultRegime]
}

func (p *Pipeline) checker(r domain.Regime) ports.RuleChecker {
	if rc, ok := p.checkers[r]; ok {
		return rc
	}
	return p.rules
}

func (p *Pipeline) log(s *domain.State) *slog.Logger {
	return p.logger.With("thread_id", s.ThreadID, "domain", string(s.Domain))
}

// finish builds the partial that terminates the turn with r.
func finish(s *domain.State, r *domain.FinalResult) domain.Partial {
	r.RetryCount = s.RetryCount
	return domain.Partial{
		FinalResult: domain.Set(r),
		History:     []domain.Message{domain.AssistantMessage(r.Transcript())},
	}
}
