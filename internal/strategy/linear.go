package strategy

import (
	"fmt"
	"strings"
	"time"
)

// phase is one fixed slot in a linear strategy's sequence.
type phase struct {
	name    string
	prompt  string
	summary string
}

var standardSteps = []phase{
	{"analysis", "Analyze the problem statement and restate its core question.", "problem analysis"},
	{"components", "Break the problem into its component parts.", "component breakdown"},
	{"approaches", "Enumerate candidate approaches and their tradeoffs.", "approach enumeration"},
	{"architecture", "Shape the chosen approach into a concrete structure.", "architecture"},
	{"implementation", "Lay out the implementation of the chosen structure.", "implementation plan"},
}

var minimalSteps = []phase{
	{"analysis", "Analyze the problem and identify what matters.", "problem analysis"},
	{"approach", "Select the most direct workable approach.", "approach selection"},
	{"conclusion", "State the conclusion and its justification.", "conclusion"},
}

var strategicSteps = []phase{
	{"analyze", "Analyze the situation and constraints.", "analysis"},
	{"decompose", "Decompose the goal into ordered objectives.", "decomposition"},
	{"plan", "Plan the execution across the objectives.", "planning"},
	{"execute", "Execute the plan against each objective.", "execution"},
	{"validate", "Validate the outcome against the original goal.", "validation"},
}

// linear walks a fixed phase sequence; the terminal step is the last phase.
type linear struct {
	name    string
	phases  []phase
	model   Model
	problem string
	index   int
	tokens  int
}

func newLinear(name string, phases []phase, model Model) *linear {
	return &linear{name: name, phases: phases, model: model}
}

func (l *linear) Name() string { return l.name }

// Initialize is idempotent; repeated calls keep the current position.
func (l *linear) Initialize(problem string) {
	if l.problem != "" {
		return
	}
	l.problem = strings.TrimSpace(problem)
}

func (l *linear) NextStep() *Step {
	if l.index >= len(l.phases) {
		return nil
	}

	current := l.phases[l.index]
	reasoning := fmt.Sprintf("%s Problem: %s", current.prompt, truncate(l.problem, 200))
	tokens := estimateStepTokens(reasoning)
	l.tokens += tokens

	status := StatusActive
	if l.index == len(l.phases)-1 {
		status = StatusCompleted
	}

	step := &Step{
		ID:          newStepID(),
		Description: describePhase(current.summary, l.index, len(l.phases)),
		Reasoning:   reasoning,
		Tokens:      tokens,
		Status:      status,
		Timestamp:   time.Now().UTC(),
		Confidence:  baselineConfidence(l.Progress(), remainingComplexity(l.Progress())),
	}

	l.index++
	return step
}

func (l *linear) ShouldContinue() bool {
	return l.index < len(l.phases)
}

func (l *linear) Progress() float64 {
	if len(l.phases) == 0 {
		return 1
	}
	return float64(l.index) / float64(len(l.phases))
}

func (l *linear) Metrics() Metrics {
	progress := l.Progress()
	return Metrics{
		Confidence:      baselineConfidence(progress, remainingComplexity(progress)),
		Reasoning:       fmt.Sprintf("linear %s sequence, %d of %d phases emitted", l.name, l.index, len(l.phases)),
		TokenEfficiency: tokenEfficiency(progress, l.tokens),
		ComplexityScore: complexityScore(l.model.Complexity),
	}
}

func complexityScore(c Complexity) float64 {
	switch c {
	case ComplexityLow:
		return 0.25
	case ComplexityMedium:
		return 0.5
	case ComplexityHigh:
		return 0.75
	case ComplexityVeryHigh:
		return 1.0
	default:
		return 0.5
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
