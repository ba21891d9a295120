package pipeline

import (
	"strings"
	"unicode"
)

var (
	// unethicalPatterns flag requests to conceal or evade an obligation.
	unethicalPatterns = []string{"evade", "bypass", "avoid detection", "hide", "loophole", "how can i hide"}

	// greetingPatterns mark short conversational turns.
	greetingPatterns = []string{"hi", "hello", "who are you", "what can you do", "help", "thanks", "good morning", "capabilities"}

	// multiArticlePatterns suggest cross-referencing obligations and sanctions.
	multiArticlePatterns = []string{"fine", "penalty", "maximum", "sanction", "liable", "consequence", "breach"}

	// clearPatterns always count as answerable without clarification.
	clearPatterns = []string{"what is", "define", "meaning of", "article", "section", "explain"}

	// definitionPatterns calibrate generation and overrides toward low risk.
	definitionPatterns = []string{"what is", "define", "meaning of", "considered personal info", "stand for", "are ip addresses"}
)

// maxGreetingWords bounds the length of a turn classified as small talk.
const maxGreetingWords = 10

// containsAny reports whether any pattern occurs in text as a substring.
func containsAny(text string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

// containsPhrase reports whether any pattern occurs in text on word boundaries,
// so "hi" matches "hi there" but not "which".
func containsPhrase(text string, patterns []string) bool {
	padded := " " + normalizeWords(text) + " "
	for _, p := range patterns {
		if strings.Contains(padded, " "+p+" ") {
			return true
		}
	}
	return false
}

// normalizeWords lowercases text and collapses punctuation into single spaces.
func normalizeWords(text string) string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
	return strings.Join(fields, " ")
}

func isDefinitionQuery(q string) bool {
	return containsAny(strings.ToLower(q), definitionPatterns)
}
