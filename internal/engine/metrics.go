package engine

import (
	"strings"
	"unicode"

	"github.com/harunnryd/kangae/internal/strategy"
)

// stopwords excluded from key-term extraction. Short function words plus
// the connectives that dominate model prose.
var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true,
	"not": true, "you": true, "all": true, "can": true, "her": true,
	"was": true, "one": true, "our": true, "out": true, "has": true,
	"have": true, "this": true, "that": true, "with": true, "from": true,
	"they": true, "will": true, "would": true, "there": true, "their": true,
	"what": true, "about": true, "which": true, "when": true, "then": true,
	"them": true, "these": true, "than": true, "into": true, "could": true,
	"because": true, "also": true, "been": true, "more": true, "some": true,
	"such": true, "only": true, "other": true, "over": true, "very": true,
	"should": true, "must": true, "each": true, "while": true, "where": true,
}

// keyTerms extracts the meaningful vocabulary of a text: lowercased,
// punctuation stripped, length > 2, stopwords removed.
func keyTerms(text string) map[string]bool {
	terms := make(map[string]bool)
	for _, field := range strings.Fields(strings.ToLower(text)) {
		word := strings.TrimFunc(field, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		})
		if len(word) <= 2 || stopwords[word] {
			continue
		}
		terms[word] = true
	}
	return terms
}

// jaccard is |a ∩ b| / |a ∪ b|; empty-vs-empty counts as full overlap.
func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	intersection := 0
	for term := range a {
		if b[term] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// coherence is the mean term overlap between a step's reasoning and each
// previous step. The first step is fully coherent by definition.
func coherence(reasoning string, previous []*strategy.Step) float64 {
	if len(previous) == 0 {
		return 1.0
	}
	terms := keyTerms(reasoning)
	sum := 0.0
	for _, prev := range previous {
		sum += jaccard(terms, keyTerms(prev.Reasoning))
	}
	return clamp01(sum / float64(len(previous)))
}

// significance weighs term overlap with the original problem against a
// reasoning-length component.
func significance(reasoning, problem string) float64 {
	overlap := jaccard(keyTerms(reasoning), keyTerms(problem))
	length := float64(len(reasoning)) / 500.0
	if length > 1 {
		length = 1
	}
	return clamp01(0.7*overlap + 0.3*length)
}

// stepComplexity blends reasoning length, identified challenges and
// concepts, and uncertainty into one [0,1] score.
func stepComplexity(reasoning string, challenges, concepts int, confidence float64) float64 {
	length := float64(len(reasoning)) / 100.0
	if length > 1 {
		length = 1
	}
	parts := []float64{
		length,
		clamp01(0.2 * float64(challenges)),
		clamp01(0.1 * float64(concepts)),
		clamp01(1 - confidence),
	}
	sum := 0.0
	for _, p := range parts {
		sum += p
	}
	return clamp01(sum / float64(len(parts)))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
