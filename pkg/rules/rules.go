// Package rules implements the reference validation rule set for candidate analyses.
//
// A Set is a pure ports.RuleChecker: every rule reads only its inputs, so
// checking the same candidate and query twice yields identical violations
// in identical order.
package rules

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/aretw0/arbiter/pkg/domain"
)

// Rule inspects a candidate and returns the violations it finds.
type Rule func(a *domain.Analysis, query string) []string

// Set is an ordered list of rules.
type Set []Rule

// Check implements ports.RuleChecker.
func (s Set) Check(a *domain.Analysis, query string) []string {
	if a == nil {
		return []string{"No analysis to validate."}
	}
	var out []string
	for _, r := range s {
		out = append(out, r(a, query)...)
	}
	return out
}

// GDPR returns the rule set applied to GDPR analyses.
func GDPR() Set {
	return Set{
		ReasoningMap,
		ErasureCitations,
		LegalObligationScope,
		PartialRefusalRisk,
		PenaltyDepth,
	}
}

var (
	subsectionPattern = regexp.MustCompile(`\d+\(\d+\)\([a-z]\)`)
	art83Pattern      = regexp.MustCompile(`83\(2\)\([a-k]\)`)
)

var (
	authorityTerms   = []string{"authority", "regulator", "investigat", "supervis", "cooperat"}
	dataSubjectTerms = []string{"data subject", "affected", "harm", "damage", "protect", "inform"}
	factStopwords    = map[string]bool{"which": true, "their": true, "about": true, "after": true, "before": true, "under": true, "where": true}
	art83Factors     = []string{
		"nature", "gravity", "duration", "negligen", "intentional", "actions taken", "mitigat",
		"cooperate", "cooperation", "categories", "previous infringement", "notify", "notified",
	}
)

// ReasoningMap requires a populated fact map and checks every entry against it:
// no prose citation may be missing from the map, 83(2)(c) and 83(2)(f) must be
// used for their meaning, and every fact must come from the query.
func ReasoningMap(a *domain.Analysis, query string) []string {
	if len(a.ReasoningMap) == 0 {
		return []string{"Reasoning Map: The reasoning_map field is EMPTY. You MUST populate it."}
	}

	var errs []string
	mapped := make(map[string]bool, len(a.ReasoningMap))
	for _, e := range a.ReasoningMap {
		mapped[e.Subsection] = true
	}

	var orphans []string
	seen := map[string]bool{}
	for _, cited := range subsectionPattern.FindAllString(a.Summary+" "+a.LegalBasis, -1) {
		if !mapped[cited] && !seen[cited] {
			seen[cited] = true
			orphans = append(orphans, cited)
		}
	}
	if len(orphans) > 0 {
		sort.Strings(orphans)
		errs = append(errs, fmt.Sprintf("Citation Laundering: %s cited in prose but NOT in reasoning_map.", strings.Join(orphans, ", ")))
	}

	q := strings.ToLower(query)
	for _, e := range a.ReasoningMap {
		sub := strings.ToLower(e.Subsection)
		text := strings.ToLower(e.LegalMeaning + " " + e.Justification + " " + e.Fact)

		if strings.Contains(sub, "83(2)(h)") {
			errs = append(errs, "Subsection Error: Do not cite 83(2)(h) for notification. Use 83(2)(c).")
		}
		if strings.Contains(sub, "83(2)(c)") && hasAny(text, authorityTerms) && !hasAny(text, dataSubjectTerms) {
			errs = append(errs, "Semantic Split: 83(2)(c) is for data subjects, not authority cooperation.")
		}
		if strings.Contains(sub, "83(2)(f)") && !hasAny(text, authorityTerms) {
			errs = append(errs, "Semantic Mismatch: 83(2)(f) must describe cooperation with authority.")
		}

		terms := factTerms(e.Fact)
		if len(terms) > 0 && !hasAny(q, terms) {
			errs = append(errs, fmt.Sprintf("Fact Integrity: '%s' not grounded in user query.", e.Fact))
		}
	}
	return errs
}

// ErasureCitations requires Articles 17 and 6 when the query is about erasure.
func ErasureCitations(a *domain.Analysis, query string) []string {
	q := strings.ToLower(query)
	if !hasAny(q, []string{"erase", "deletion", "force"}) {
		return nil
	}
	var errs []string
	if !strings.Contains(a.LegalBasis, "17") && !strings.Contains(a.Summary, "17") {
		errs = append(errs, "Citation Integrity: Erasure/deletion discussed but Article 17 not cited.")
	}
	if !strings.Contains(a.LegalBasis, "6") && !strings.Contains(a.Summary, "6") {
		errs = append(errs, "Legal Basis Missing: Must cite Article 6 (Lawfulness).")
	}
	return errs
}

// LegalObligationScope requires "strictly necessary" scoping for legal obligation claims.
func LegalObligationScope(a *domain.Analysis, query string) []string {
	if !strings.Contains(a.LegalBasis, "17(3)(b)") && !strings.Contains(strings.ToLower(a.LegalBasis), "legal obligation") {
		return nil
	}
	if strings.Contains(strings.ToLower(a.ScopeLimitation), "strictly necessary") {
		return nil
	}
	return []string{"Scope Logic: When claiming 'legal obligation', must state 'strictly necessary'."}
}

// PartialRefusalRisk rejects partial refusals rated low risk.
func PartialRefusalRisk(a *domain.Analysis, query string) []string {
	if strings.Contains(strings.ToLower(a.Summary), "partial refusal") && a.RiskTier == domain.RiskLow {
		return []string{"Risk Signal: Partial Refusals must be MEDIUM or HIGH, not LOW."}
	}
	return nil
}

// PenaltyDepth applies to fines and mitigation: risk cannot be low and the
// Article 83(2) multi-factor test must be visible in the summary.
func PenaltyDepth(a *domain.Analysis, query string) []string {
	q := strings.ToLower(query)
	if !strings.Contains(q, "fine") && !strings.Contains(q, "mitigat") && !strings.Contains(a.LegalBasis, "83") {
		return nil
	}

	var errs []string
	if a.RiskTier == domain.RiskLow {
		errs = append(errs, "Risk Signal: Mitigation implies infringement. Risk cannot be LOW.")
	}

	summary := strings.ToLower(a.Summary)
	found := 0
	for _, f := range art83Factors {
		if strings.Contains(summary, f) {
			found++
		}
	}
	if found < 3 {
		errs = append(errs, fmt.Sprintf("Depth Check: Art 83(2) requires multi-factor test. Only %d found.", found))
	}

	if len(art83Pattern.FindAllString(a.Summary, -1)) < 2 {
		errs = append(errs, "Subsection Grounding: Must cite at least two 83(2) subsections.")
	}
	return errs
}

func factTerms(fact string) []string {
	var out []string
	for _, t := range strings.Fields(strings.ToLower(fact)) {
		if len(t) > 4 && !factStopwords[t] {
			out = append(out, t)
		}
	}
	return out
}

func hasAny(text string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(text, t) {
			return true
		}
	}
	return false
}
