package engine

import (
	"encoding/json"
	"strings"

	"github.com/harunnryd/kangae/internal/errors"
)

// stepAnalysis is the structured payload expected from the model for one
// reasoning step. Missing fields default conservatively: the loop keeps
// going at moderate confidence rather than stopping on a sparse reply.
type stepAnalysis struct {
	Description    string
	Reasoning      string
	ShouldContinue bool
	Confidence     float64
	Alternatives   []string
	Challenges     []string
	Concepts       []string
}

type stepAnalysisPayload struct {
	Description    *string  `json:"description"`
	Reasoning      *string  `json:"reasoning"`
	Insights       []string `json:"insights"`
	ShouldContinue *bool    `json:"shouldContinue"`
	Confidence     *float64 `json:"confidence"`
	Alternatives   []string `json:"alternatives"`
	Challenges     []string `json:"challenges"`
	Concepts       []string `json:"concepts"`
}

const (
	defaultStepConfidence = 0.7
)

// parseStepAnalysis extracts the first balanced JSON object from a model
// reply and maps it onto stepAnalysis. Replies with no parseable object
// return a Parse error; the caller turns that into a terminal error step.
func parseStepAnalysis(raw string) (*stepAnalysis, error) {
	normalized := cleanModelJSON(raw)
	candidate := extractFirstBalancedJSON(normalized, '{', '}')
	if candidate == "" {
		return nil, errors.Parse("no JSON object in model reply")
	}

	var payload stepAnalysisPayload
	if err := json.Unmarshal([]byte(candidate), &payload); err != nil {
		return nil, errors.WrapWithKind(err, "malformed step analysis", errors.ErrParse)
	}

	analysis := &stepAnalysis{
		ShouldContinue: true,
		Confidence:     defaultStepConfidence,
		Alternatives:   payload.Alternatives,
		Challenges:     payload.Challenges,
		Concepts:       payload.Concepts,
	}
	if payload.Description != nil {
		analysis.Description = strings.TrimSpace(*payload.Description)
	}
	if payload.Reasoning != nil {
		analysis.Reasoning = strings.TrimSpace(*payload.Reasoning)
	}
	if analysis.Reasoning == "" && len(payload.Insights) > 0 {
		analysis.Reasoning = strings.Join(payload.Insights, " ")
	}
	if payload.ShouldContinue != nil {
		analysis.ShouldContinue = *payload.ShouldContinue
	}
	if payload.Confidence != nil {
		analysis.Confidence = clamp01(*payload.Confidence)
	}
	return analysis, nil
}

func cleanModelJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func extractFirstBalancedJSON(input string, open, close byte) string {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(input); i++ {
		ch := input[i]
		if inString {
			if escaped {
				escaped = false
				continue
			}
			if ch == '\\' {
				escaped = true
				continue
			}
			if ch == '"' {
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case open:
			if depth == 0 {
				start = i
			}
			depth++
		case close:
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start >= 0 {
				return strings.TrimSpace(input[start : i+1])
			}
		}
	}
	return ""
}
