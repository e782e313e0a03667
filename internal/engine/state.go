package engine

import (
	"time"

	"github.com/harunnryd/kangae/internal/strategy"
)

// Phase is the lifecycle stage of one problem run.
type Phase string

const (
	PhaseInitializing      Phase = "initializing"
	PhaseProblemAnalysis   Phase = "problem_analysis"
	PhaseStrategySelection Phase = "strategy_selection"
	PhaseExecution         Phase = "execution"
	PhaseConclusion        Phase = "conclusion"
	PhaseError             Phase = "error"
	PhaseCompleted         Phase = "completed"
)

// phaseRank orders the forward-only phases. Error sits outside the order:
// it is reachable from anywhere and terminal.
var phaseRank = map[Phase]int{
	PhaseInitializing:      0,
	PhaseProblemAnalysis:   1,
	PhaseStrategySelection: 2,
	PhaseExecution:         3,
	PhaseConclusion:        4,
	PhaseCompleted:         5,
}

// AdjustmentKind tags an entry in the adjustment ledger.
type AdjustmentKind string

const (
	AdjustRaiseBudget    AdjustmentKind = "raise_budget"
	AdjustStrategySwitch AdjustmentKind = "strategy_switch"
	AdjustProgressReview AdjustmentKind = "progress_review"
)

// Adjustment is one append-only ledger entry recording a dynamic change
// made during a run.
type Adjustment struct {
	Timestamp time.Time      `json:"timestamp"`
	Kind      AdjustmentKind `json:"kind"`
	Trigger   string         `json:"trigger"`
	Details   string         `json:"details"`
}

// ProgressMetrics is the rolling view over the steps appended so far.
type ProgressMetrics struct {
	StepsCompleted    int     `json:"stepsCompleted"`
	AverageConfidence float64 `json:"averageConfidence"`
	AverageCoherence  float64 `json:"averageCoherence"`
	Progress          float64 `json:"progress"`
}

// State is the mutable per-problem record. It is owned by one engine run
// and never shared across requests.
type State struct {
	ProblemID          string           `json:"problemId"`
	OriginalProblem    string           `json:"originalProblem"`
	ProcessedProblem   string           `json:"processedProblem"`
	ProblemType        string           `json:"problemType"`
	Phase              Phase            `json:"phase"`
	Steps              []*strategy.Step `json:"steps"`
	CurrentStepIndex   int              `json:"currentStepIndex"`
	InitialTokenBudget int              `json:"initialTokenBudget"`
	TokenBudget        int              `json:"tokenBudget"`
	TokensUsed         int              `json:"tokensUsed"`
	MaxSteps           int              `json:"maxSteps"`
	StrategyName       string           `json:"strategyName"`
	ModelName          string           `json:"modelName"`
	Progress           ProgressMetrics  `json:"progressMetrics"`
	Adjustments        []Adjustment     `json:"adjustments"`
}

func newState(problemID, problem string, budget, maxSteps int) *State {
	return &State{
		ProblemID:          problemID,
		OriginalProblem:    problem,
		ProcessedProblem:   problem,
		Phase:              PhaseInitializing,
		InitialTokenBudget: budget,
		TokenBudget:        budget,
		MaxSteps:           maxSteps,
	}
}

// TransitionTo moves the state forward. Backward moves are ignored and
// Error is terminal: once entered, no transition leaves it.
func (s *State) TransitionTo(next Phase) bool {
	if s.Phase == PhaseError {
		return false
	}
	if next == PhaseError {
		s.Phase = PhaseError
		return true
	}
	if phaseRank[next] < phaseRank[s.Phase] {
		return false
	}
	s.Phase = next
	return true
}

// AppendStep records a step. When the step would overrun the token budget
// the budget is raised through the adjustment ledger so the accounting
// invariant holds; the caller decides whether to stop afterwards.
func (s *State) AppendStep(step *strategy.Step) bool {
	if len(s.Steps) >= s.MaxSteps {
		return false
	}
	if s.TokensUsed+step.Tokens > s.TokenBudget {
		s.Adjust(AdjustRaiseBudget, "step token overrun",
			"budget raised to absorb the completed step's actual usage")
		s.TokenBudget = s.TokensUsed + step.Tokens
	}

	s.Steps = append(s.Steps, step)
	s.CurrentStepIndex = len(s.Steps)
	s.TokensUsed += step.Tokens
	s.refreshProgress()
	return true
}

// BudgetExhausted reports whether the next step would start past budget.
func (s *State) BudgetExhausted() bool {
	return s.TokensUsed >= s.TokenBudget
}

// Adjust appends one ledger entry. The ledger is append-only.
func (s *State) Adjust(kind AdjustmentKind, trigger, details string) {
	s.Adjustments = append(s.Adjustments, Adjustment{
		Timestamp: time.Now().UTC(),
		Kind:      kind,
		Trigger:   trigger,
		Details:   details,
	})
}

func (s *State) refreshProgress() {
	n := len(s.Steps)
	if n == 0 {
		s.Progress = ProgressMetrics{}
		return
	}
	var confidence, coherence float64
	for _, step := range s.Steps {
		confidence += step.Confidence
		coherence += step.Metrics.Coherence
	}
	s.Progress = ProgressMetrics{
		StepsCompleted:    n,
		AverageConfidence: confidence / float64(n),
		AverageCoherence:  coherence / float64(n),
		Progress:          float64(n) / float64(s.MaxSteps),
	}
}
