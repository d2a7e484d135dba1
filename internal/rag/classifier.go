package rag

import "strings"

// Factual-lookup phrases route a question to the simple path. Order
// matters: these take precedence over the elaboration phrases below.
var simplePatterns = []string{
	"что такое", "кто такой", "где находится", "когда", "сколько",
	"what is", "who is", "where is", "when", "how much",
	"ما هو", "من هو", "أين", "متى", "كم",
}

var complexPatterns = []string{
	"объясни", "расскажи", "сравни", "проанализируй", "как работает",
	"explain", "tell me", "compare", "analyze", "how does",
	"اشرح", "أخبرني", "قارن", "حلل", "كيف يعمل",
}

// Classify is a fixed heuristic, not a learned model: factual phrase ->
// simple, elaboration phrase -> complex, then short questions (<=5 words,
// at most one question mark) are simple and everything else is complex.
func Classify(query string) Complexity {
	lower := strings.ToLower(query)

	for _, pattern := range simplePatterns {
		if strings.Contains(lower, pattern) {
			return ComplexitySimple
		}
	}

	for _, pattern := range complexPatterns {
		if strings.Contains(lower, pattern) {
			return ComplexityComplex
		}
	}

	if len(strings.Fields(query)) <= 5 && strings.Count(query, "?") <= 1 {
		return ComplexitySimple
	}

	return ComplexityComplex
}
