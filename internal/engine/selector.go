package engine

import "strings"

// StrategySelector resolves the reasoning strategy for a problem. It is
// pluggable so the tool surface can override routing per request.
type StrategySelector interface {
	Select(problem string) string
}

// KeywordSelector routes on surface cues in the problem text. Anything it
// cannot place lands on chain_of_thought.
type KeywordSelector struct{}

func (KeywordSelector) Select(problem string) string {
	lowered := strings.ToLower(problem)

	switch {
	case containsAny(lowered, "compare", "alternatives", "trade-off", "tradeoff", "options", "explore", "which of"):
		return "tree_of_thoughts"
	case containsAny(lowered, "plan", "roadmap", "milestones", "strategy for", "rollout"):
		return "strategic"
	case containsAny(lowered, "design", "architecture", "architect", "structure a", "build a system"):
		return "standard"
	case len(strings.Fields(lowered)) <= 8:
		return "minimal"
	default:
		return "chain_of_thought"
	}
}

func containsAny(text string, needles ...string) bool {
	for _, needle := range needles {
		if needle != "" && strings.Contains(text, needle) {
			return true
		}
	}
	return false
}
