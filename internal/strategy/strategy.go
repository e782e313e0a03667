package strategy

import (
	"fmt"
	"math"
	"time"

	"github.com/oklog/ulid/v2"
)

// StepStatus is the lifecycle state of one reasoning step.
type StepStatus string

const (
	StatusPending   StepStatus = "pending"
	StatusActive    StepStatus = "active"
	StatusCompleted StepStatus = "completed"
	StatusError     StepStatus = "error"
)

// StepMetrics carries the per-step quality scores, each in [0,1].
type StepMetrics struct {
	Coherence    float64 `json:"coherence"`
	Complexity   float64 `json:"complexity"`
	Significance float64 `json:"significance"`
}

// Step is one unit of reasoning. Once its status is completed or error the
// step is immutable.
type Step struct {
	ID          string      `json:"id"`
	Description string      `json:"description"`
	Reasoning   string      `json:"reasoning"`
	Tokens      int         `json:"tokens"`
	Status      StepStatus  `json:"status"`
	Timestamp   time.Time   `json:"timestamp"`
	Confidence  float64     `json:"confidence"`
	Metrics     StepMetrics `json:"metrics"`
}

// TokenLimit buckets a model's context budget.
type TokenLimit string

const (
	TokenVeryLow  TokenLimit = "very_low"
	TokenLow      TokenLimit = "low"
	TokenModerate TokenLimit = "moderate"
	TokenHigh     TokenLimit = "high"
	TokenVeryHigh TokenLimit = "very_high"
)

// Complexity buckets the reasoning depth a model handles well.
type Complexity string

const (
	ComplexityLow      Complexity = "low"
	ComplexityMedium   Complexity = "medium"
	ComplexityHigh     Complexity = "high"
	ComplexityVeryHigh Complexity = "very_high"
)

// Model is the descriptor strategies consume when shaping their step plan.
type Model struct {
	Name       string     `json:"name"`
	TokenLimit TokenLimit `json:"tokenLimit"`
	Complexity Complexity `json:"complexity"`
	MaxTokens  int        `json:"maxTokens,omitempty"`
	Features   []string   `json:"features,omitempty"`
}

// Alternative is a lazily generated variant of the primary step path.
type Alternative struct {
	Description string   `json:"description"`
	Steps       []string `json:"steps"`
	Confidence  float64  `json:"confidence"`
}

// Metrics summarizes a strategy's current state.
type Metrics struct {
	Confidence      float64       `json:"confidence"`
	Reasoning       string        `json:"reasoning"`
	Alternatives    []Alternative `json:"alternatives,omitempty"`
	TokenEfficiency float64       `json:"tokenEfficiency"`
	ComplexityScore float64       `json:"complexityScore"`
}

// Strategy is a state machine emitting reasoning steps for one problem.
// Termination is signaled through ShouldContinue, never through errors.
type Strategy interface {
	Name() string
	Initialize(problem string)
	NextStep() *Step
	ShouldContinue() bool
	Progress() float64
	Metrics() Metrics
}

// New constructs a strategy by name. Unknown names fall back to
// chain_of_thought.
func New(name string, model Model) Strategy {
	switch name {
	case "standard":
		return newLinear(name, standardSteps, model)
	case "minimal":
		return newLinear(name, minimalSteps, model)
	case "strategic":
		return newLinear(name, strategicSteps, model)
	case "tree_of_thoughts":
		return newTreeOfThoughts(model)
	case "chain_of_thought":
		return newChainOfThought(model)
	default:
		return newChainOfThought(model)
	}
}

// baselineConfidence computes clamp(progress*0.7 + complexityBonus, 0, 0.95)
// where the bonus shrinks as remaining complexity grows.
func baselineConfidence(progress float64, remaining Complexity) float64 {
	bonus := 0.1
	switch remaining {
	case ComplexityLow:
		bonus = 0.3
	case ComplexityMedium:
		bonus = 0.2
	}
	return clamp(progress*0.7+bonus, 0, 0.95)
}

// tokenEfficiency is progress per thousand tokens spent. Zero spend means
// zero efficiency rather than a division blowup.
func tokenEfficiency(progress float64, totalTokens int) float64 {
	if totalTokens <= 0 {
		return 0
	}
	return progress / (float64(totalTokens) / 1000.0)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// estimateStepTokens approximates the token cost of a step body.
func estimateStepTokens(text string) int {
	if text == "" {
		return 0
	}
	return int(math.Ceil(float64(len(text)) / 4))
}

func newStepID() string {
	return ulid.Make().String()
}

// remainingComplexity maps progress to the complexity left in the run.
func remainingComplexity(progress float64) Complexity {
	switch {
	case progress >= 0.75:
		return ComplexityLow
	case progress >= 0.4:
		return ComplexityMedium
	default:
		return ComplexityHigh
	}
}

func describePhase(name string, index, total int) string {
	return fmt.Sprintf("%s (%d/%d)", name, index+1, total)
}
