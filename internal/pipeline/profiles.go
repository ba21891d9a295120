package pipeline

import (
	"fmt"
	"strings"

	"github.com/aretw0/arbiter/pkg/domain"
)

// Injection forces identifiers into the retrieved set when any trigger occurs in the query.
type Injection struct {
	Name     string
	Triggers []string
	IDs      []string
}

// Override applies deterministic corrections to a candidate. It mutates a and
// must be idempotent: applying it to its own output changes nothing.
type Override func(a *domain.Analysis, query string)

// Profile is the per-regime collaborator set: prompt, retrieval augmentation and overrides.
type Profile struct {
	Regime       domain.Regime
	SystemPrompt string
	// StaticContext is used as retrieved context when no retriever is configured for the regime.
	StaticContext string
	Injections    []Injection
	Overrides     []Override
}

const gdprPrompt = `You are an Agentic Compliance Analyst acting as a Virtual Compliance Officer.
Your primary obligation is legal precision. You MUST follow this reasoning sequence exactly:

STEP 1: IDENTIFY FACTS. List every factual element from the user query.
STEP 2: MAP EACH FACT to a specific GDPR subsection. One fact = one subsection.
STEP 3: FILL the 'reasoning_map' FIRST. This is your ground truth.
   MAPPINGS for Art 83(2): (c)=Mitigation/Actions, (f)=Cooperation, (b)=Intent/Negligence.
   DO NOT cite 83(2)(h) for subject notification.
STEP 4: DERIVE PROSE FROM MAP.
   Your 'summary' and 'legal_basis' MUST only cite subsections that appear in your reasoning_map.
   If a subsection is not in the map, you CANNOT cite it in prose.
STEP 5: SET RISK. Use the number and severity of mapped subsections.
   Definitions = LOW. Breaches = HIGH. Single-article questions = MEDIUM.

PRECONDITION MATRIX:
Before adjudicating, evaluate if the user query provides enough context.
If critical modifiers are missing (encryption status, controller/processor role, data volume),
set needs_clarification=true, populate missing_preconditions with specific questions,
and set risk_level to 'medium' with a low confidence_score.
`

const fdaPrompt = `You are a Senior FDA Regulatory Consultant. Your goal is to provide guidance on US Food & Drug Administration regulations and recent legal precedents.

Rules of Engagement:
1. Focus on 21 CFR, FD&C Act, and recent court cases.
2. Use the provided context to cite real enforcement actions where available.
3. Your output must strictly follow the JSON schema provided.
`

const ccpaPrompt = `You are a Senior Privacy Counsel specializing in CCPA/CPRA. Your goal is to provide definitive, legally precise classifications based on California Civil Code.

Rules of Engagement:
1. Every claim must cite a specific CCPA section (e.g., §1798.140(v)(1)).
2. 'Selling' and 'Sharing' are DISTINCT legal actions with separate opt-out rights.
3. Always check for statutory exceptions (§1798.145) before classifying risk.
4. RISK CALIBRATION: Informational/Recall questions are LOW RISK. Only actionable selling/sharing is medium or high.
5. Your output must strictly follow the JSON schema provided.
`

// analysisSchemaHint is appended to every analysis prompt.
const analysisSchemaHint = `
Respond with a single JSON object with these keys:
- summary: legal analysis.
- legal_basis: specific articles cited.
- scope_limitation: precise limits.
- risk_analysis: brief justification of risk.
- risk_level: one of low, medium, high, critical.
- confidence_score: number between 0 and 1.
- references: list of cited identifiers.
- reasoning_map: list of {fact, legal_meaning, gdpr_subsection, justification}, one subsection per entry.
- needs_clarification: true if missing context prevents adjudication.
- missing_preconditions: list of clarifying questions to ask.
`

const definitionGuidance = "\n[CONTEXT NOTE: This is a DEFINITION query. Risk Level must be 'low'. Calibrate confidence to 1.0.]"

const ccpaStaticContext = "Source: CCPA/CPRA Legal Statutes (Modeled Knowledge - Statutory Exception Active)."

const fdaStaticContext = "Source: FDA regulations (21 CFR, FD&C Act). No external enforcement search is configured."

var gdprInjections = []Injection{
	{Name: "penalty", Triggers: []string{"fine", "penalty", "administrative", "sanction", "euro"}, IDs: []string{"83"}},
	{Name: "scope", Triggers: []string{"apply", "applies", "scope", "territorial", "material", "when does"}, IDs: []string{"2", "3"}},
	{Name: "definition", Triggers: []string{"define", "definition", "meaning", "what is a", "who is a"}, IDs: []string{"4"}},
	{Name: "rights", Triggers: []string{"delete", "erasure", "erase", "forget", "access", "rectify", "copy"}, IDs: []string{"6", "12", "15", "17"}},
	{Name: "dpo", Triggers: []string{"dpo", "officer", "representative", "public authority"}, IDs: []string{"37", "38", "39"}},
	{Name: "transfer", Triggers: []string{"transfer", "third country", "abroad", "adequacy"}, IDs: []string{"45", "46", "49"}},
}

// taxErasureOverride settles erasure requests that collide with tax retention duties.
func taxErasureOverride(a *domain.Analysis, query string) {
	q := strings.ToLower(query)
	if !strings.Contains(q, "tax") || !containsAny(q, []string{"erase", "delet", "refuse"}) {
		return
	}
	a.RiskTier = domain.RiskMedium
	a.Confidence = 1.0
	a.LegalBasis = "GDPR Article 17(3)(b) (Exception) & Article 6(1)(c) (Lawful Basis)"
	a.ScopeLimitation = "Only personal data strictly necessary for the legal obligation may be retained. All other personal data must be erased."
	a.Summary = "Partial Refusal. Under GDPR Article 17(3)(b), the right to erasure does not apply where processing is necessary " +
		"to comply with a legal obligation. Retention of transaction records required by tax law is lawful under Article 6(1)(c). " +
		"However, only data strictly necessary for the obligation may be retained; all other data must be erased."
}

type ccpaCitation struct {
	trigger    string
	citation   string
	tier       domain.RiskTier
	confidence float64
}

// ccpaCitations is ordered; the first trigger found in the query wins.
var ccpaCitations = []ccpaCitation{
	{"personal information", "§1798.140(v)(1)", domain.RiskLow, 1.0},
	{"sensitive", "§1798.140(ae)", domain.RiskMedium, 0.95},
	{"sale", "§1798.140(ad)", domain.RiskMedium, 0.95},
	{"share", "§1798.140(ah)", domain.RiskMedium, 0.95},
	{"fraud", "§1798.105(d)(1)", domain.RiskMedium, 0.90},
	{"delete", "§1798.105", domain.RiskMedium, 0.90},
	{"geolocation", "§1798.140(ae)", domain.RiskMedium, 0.95},
}

func ccpaCitationOverride(a *domain.Analysis, query string) {
	q := strings.ToLower(query)
	for _, c := range ccpaCitations {
		if strings.Contains(q, c.trigger) {
			a.LegalBasis = fmt.Sprintf("California Civil Code %s", c.citation)
			a.RiskTier = c.tier
			a.Confidence = c.confidence
			return
		}
	}
}

// definitionOverride pins definition queries to low risk unless the model found high risk.
func definitionOverride(a *domain.Analysis, query string) {
	if isDefinitionQuery(query) && a.RiskTier != domain.RiskHigh {
		a.RiskTier = domain.RiskLow
		a.Confidence = 1.0
	}
}

// DefaultProfiles returns the built-in profile for every supported regime.
func DefaultProfiles() map[domain.Regime]Profile {
	return map[domain.Regime]Profile{
		domain.RegimeGDPR: {
			Regime:       domain.RegimeGDPR,
			SystemPrompt: gdprPrompt + analysisSchemaHint,
			Injections:   gdprInjections,
			Overrides:    []Override{taxErasureOverride, definitionOverride},
		},
		domain.RegimeCCPA: {
			Regime:        domain.RegimeCCPA,
			SystemPrompt:  ccpaPrompt + analysisSchemaHint,
			StaticContext: ccpaStaticContext,
			Overrides:     []Override{ccpaCitationOverride, definitionOverride},
		},
		domain.RegimeFDA: {
			Regime:        domain.RegimeFDA,
			SystemPrompt:  fdaPrompt + analysisSchemaHint,
			StaticContext: fdaStaticContext,
			Overrides:     []Override{definitionOverride},
		},
	}
}
