package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/harunnryd/kangae/internal/cache"
	"github.com/harunnryd/kangae/internal/config"
	"github.com/harunnryd/kangae/internal/errors"
	"github.com/harunnryd/kangae/internal/logger"
	"github.com/harunnryd/kangae/internal/model"
	"github.com/harunnryd/kangae/internal/model/contract"
	"github.com/harunnryd/kangae/internal/store"
	"github.com/harunnryd/kangae/internal/strategy"
	"github.com/harunnryd/kangae/internal/token"
)

const (
	DefaultMaxSteps      = 10
	DefaultTokenBudget   = 8192
	DefaultStepTokenCap  = 1000
	DefaultStepTimeout   = 60 * time.Second
	DefaultContextWindow = 3

	cacheNamespace  = "engine"
	defaultCacheTTL = 30 * time.Minute
)

const stepSystemPrompt = `You are a step-by-step reasoning engine. Analyze the given problem state and respond with a single JSON object of the shape:
{"description": string, "reasoning": string, "shouldContinue": boolean, "confidence": number, "alternatives": [string], "challenges": [string], "concepts": [string]}
Set shouldContinue to false only when the reasoning has reached a conclusion.`

// Engine drives the iterative reasoning loop for one problem at a time.
// Construct once and share: all per-run state lives in State.
type Engine struct {
	querier     model.Querier
	optimizer   *token.Optimizer
	cache       *cache.Cache
	selector    StrategySelector
	thinkingDir string
	now         func() time.Time
}

type Option func(*Engine)

func WithOptimizer(o *token.Optimizer) Option {
	return func(e *Engine) { e.optimizer = o }
}

func WithCache(c *cache.Cache) Option {
	return func(e *Engine) { e.cache = c }
}

func WithSelector(s StrategySelector) Option {
	return func(e *Engine) { e.selector = s }
}

// WithThinkingDir enables best-effort state snapshots after each run.
func WithThinkingDir(dir string) Option {
	return func(e *Engine) { e.thinkingDir = dir }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func New(querier model.Querier, opts ...Option) *Engine {
	e := &Engine{
		querier:  querier,
		selector: KeywordSelector{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ProcessOptions tunes one run. Zero values take the documented defaults.
type ProcessOptions struct {
	Strategy       string
	MaxSteps       int
	TokenBudget    int
	StepTokenCap   int
	StepTimeout    time.Duration
	ContextWindow  int
	Temperature    float64
	OptimizeTokens bool
}

func (o ProcessOptions) withDefaults(m strategy.Model) ProcessOptions {
	if o.MaxSteps <= 0 {
		o.MaxSteps = DefaultMaxSteps
	}
	if o.TokenBudget <= 0 {
		if o.OptimizeTokens && m.MaxTokens > 0 {
			o.TokenBudget = m.MaxTokens
		} else {
			o.TokenBudget = DefaultTokenBudget
		}
	}
	if o.StepTokenCap <= 0 {
		o.StepTokenCap = DefaultStepTokenCap
	}
	if o.StepTimeout <= 0 {
		o.StepTimeout = DefaultStepTimeout
	}
	if o.ContextWindow <= 0 || o.ContextWindow > DefaultContextWindow {
		o.ContextWindow = DefaultContextWindow
	}
	return o
}

// StateMetrics is the caller-facing view of the run's final state.
type StateMetrics struct {
	FinalState   string          `json:"finalState"`
	StrategyName string          `json:"strategyName"`
	Progress     ProgressMetrics `json:"progressMetrics"`
	Adjustments  []Adjustment    `json:"adjustments,omitempty"`
}

// Result is the complete outcome of one Process call. Err is set when the
// run ended on a terminal error step; the steps completed before it are
// still present.
type Result struct {
	ProblemID     string           `json:"problemId"`
	Steps         []*strategy.Step `json:"steps"`
	Reasoning     []string         `json:"reasoning"`
	TokenUsage    int              `json:"tokenUsage"`
	ExecutionTime time.Duration    `json:"executionTime"`
	StateMetrics  StateMetrics     `json:"stateMetrics"`
	Optimization  *token.Result    `json:"optimization,omitempty"`
	Canceled      bool             `json:"canceled,omitempty"`
	Err           error            `json:"-"`
}

// Process runs the reasoning loop. It never returns an error: failures
// terminate the loop with an error step and the partial result carries
// everything completed before the failure.
func (e *Engine) Process(ctx context.Context, problem string, m strategy.Model, opts ProcessOptions) *Result {
	start := e.now()
	opts = opts.withDefaults(m)

	problemID := ulid.Make().String()
	ctx = logger.WithProblemID(ctx, problemID)

	trimmed := strings.TrimSpace(problem)
	state := newState(problemID, trimmed, opts.TokenBudget, opts.MaxSteps)
	state.ModelName = m.Name
	result := &Result{ProblemID: problemID}

	if trimmed == "" {
		state.TransitionTo(PhaseCompleted)
		return e.finish(result, state, start)
	}

	state.TransitionTo(PhaseProblemAnalysis)
	if opts.OptimizeTokens && e.optimizer != nil {
		optimized := e.optimizer.Optimize(trimmed, token.Context{
			AvailableTokens: opts.StepTokenCap,
			ModelName:       m.Name,
		})
		state.ProcessedProblem = optimized.OptimizedText
		result.Optimization = &optimized
	}

	state.TransitionTo(PhaseStrategySelection)
	name := opts.Strategy
	if name == "" {
		name = e.selector.Select(trimmed)
	} else if auto := e.selector.Select(trimmed); auto != name {
		state.Adjust(AdjustStrategySwitch, "caller override",
			fmt.Sprintf("selector preferred %s, running %s", auto, name))
	}
	strat := e.resolveStrategy(name, m)
	strat.Initialize(state.ProcessedProblem)
	state.StrategyName = strat.Name()
	slog.Debug("Strategy selected", "problem_id", problemID, "strategy", state.StrategyName)

	state.TransitionTo(PhaseExecution)
	e.run(ctx, state, strat, m, opts, result)

	if state.Phase != PhaseError && !result.Canceled {
		state.TransitionTo(PhaseConclusion)
		state.TransitionTo(PhaseCompleted)
	}
	return e.finish(result, state, start)
}

func (e *Engine) run(ctx context.Context, state *State, strat strategy.Strategy, m strategy.Model, opts ProcessOptions, result *Result) {
	for i := 0; i < state.MaxSteps && strat.ShouldContinue(); i++ {
		if ctx.Err() != nil {
			result.Canceled = true
			state.Adjust(AdjustProgressReview, "cancellation", "run aborted by caller")
			return
		}
		if state.BudgetExhausted() {
			state.Adjust(AdjustProgressReview, "budget exhausted",
				fmt.Sprintf("stopping after %d tokens of %d", state.TokensUsed, state.TokenBudget))
			return
		}

		skeleton := strat.NextStep()
		if skeleton == nil {
			return
		}

		userContent := e.buildStepContext(state, skeleton, i, opts)
		if opts.OptimizeTokens && e.optimizer != nil {
			compressed := e.optimizer.Optimize(userContent, token.Context{
				AvailableTokens: opts.StepTokenCap,
				ModelName:       m.Name,
			})
			userContent = compressed.OptimizedText
		}

		content, usage, err := e.dispatch(ctx, m, userContent, opts)
		if err != nil {
			if ctx.Err() != nil || errors.IsKind(err, errors.ErrCanceled) {
				result.Canceled = true
				state.Adjust(AdjustProgressReview, "cancellation", "provider call aborted by caller")
				return
			}
			e.failStep(state, result, "model dispatch failed", err)
			return
		}

		analysis, err := parseStepAnalysis(content)
		if err != nil {
			e.failStep(state, result, "unparseable model reply", err)
			return
		}

		step := e.mergeStep(state, skeleton, analysis, usage)
		state.AppendStep(step)
		result.Reasoning = append(result.Reasoning, step.Reasoning)

		if !analysis.ShouldContinue {
			step.Status = strategy.StatusCompleted
			return
		}
	}
}

// resolveStrategy turns a strategy name into a runnable strategy. The
// composite family is spelled "composite", optionally qualified with a
// mode and a +-separated child list: "composite:parallel" or
// "composite:weighted:chain_of_thought+tree_of_thoughts". Feedback-driven
// weight adjustment follows STRATEGY_FEEDBACK_ENABLED.
func (e *Engine) resolveStrategy(name string, m strategy.Model) strategy.Strategy {
	if name != "composite" && !strings.HasPrefix(name, "composite:") {
		return strategy.New(name, m)
	}

	mode, children := parseCompositeSpec(name)
	members := make([]strategy.Strategy, 0, len(children))
	for _, childName := range children {
		members = append(members, strategy.New(childName, m))
	}
	return strategy.NewComposite(mode, members, nil, config.StrategyFeedbackEnabled())
}

// parseCompositeSpec splits "composite[:mode[:child+child...]]". Unknown
// modes fall back to weighted; an empty child list gets the default pair.
func parseCompositeSpec(name string) (strategy.CompositeMode, []string) {
	mode := strategy.ModeWeighted
	children := []string{"chain_of_thought", "tree_of_thoughts"}

	parts := strings.SplitN(name, ":", 3)
	if len(parts) > 1 && parts[1] != "" {
		switch candidate := strategy.CompositeMode(parts[1]); candidate {
		case strategy.ModeSequential, strategy.ModeParallel, strategy.ModeWeighted:
			mode = candidate
		}
	}
	if len(parts) > 2 && parts[2] != "" {
		children = strings.Split(parts[2], "+")
	}
	return mode, children
}

// dispatch consults the cache, then routes through the fallback querier
// under the per-step deadline. Successful responses are cached.
func (e *Engine) dispatch(ctx context.Context, m strategy.Model, userContent string, opts ProcessOptions) (string, contract.Usage, error) {
	key := ""
	if e.cache != nil {
		key = cache.Key(cacheNamespace, m.Name, stepSystemPrompt, userContent, opts.Temperature, opts.StepTokenCap)
		if entry := e.cache.Get(cacheNamespace, key); entry != nil {
			return entry.Value, contract.Usage{}, nil
		}
	}

	stepCtx, cancel := context.WithTimeout(ctx, opts.StepTimeout)
	defer cancel()

	resp, err := e.querier.Query(stepCtx, contract.CompletionRequest{
		Model:       m.Name,
		Messages:    contract.SystemAndUser(stepSystemPrompt, userContent),
		Temperature: opts.Temperature,
		MaxTokens:   opts.StepTokenCap,
	})
	if err != nil {
		return "", contract.Usage{}, err
	}

	if e.cache != nil {
		e.cache.Put(cacheNamespace, key, resp.Content, defaultCacheTTL)
	}
	return resp.Content, resp.Usage, nil
}

// mergeStep folds the model's analysis into the strategy's skeleton step:
// the skeleton supplies identity and position, the analysis supplies the
// substance.
func (e *Engine) mergeStep(state *State, skeleton *strategy.Step, analysis *stepAnalysis, usage contract.Usage) *strategy.Step {
	step := *skeleton
	if analysis.Description != "" {
		step.Description = analysis.Description
	}
	if analysis.Reasoning != "" {
		step.Reasoning = analysis.Reasoning
	}
	step.Confidence = analysis.Confidence
	step.Timestamp = e.now().UTC()

	if usage.TotalTokens > 0 {
		step.Tokens = usage.TotalTokens
	} else if step.Tokens == 0 {
		step.Tokens = estimateTokens(step.Reasoning)
	}

	step.Metrics = strategy.StepMetrics{
		Coherence:    coherence(step.Reasoning, state.Steps),
		Significance: significance(step.Reasoning, state.OriginalProblem),
		Complexity:   stepComplexity(step.Reasoning, len(analysis.Challenges), len(analysis.Concepts), analysis.Confidence),
	}
	return &step
}

// failStep appends the terminal error step and moves the state to Error.
func (e *Engine) failStep(state *State, result *Result, description string, cause error) {
	step := &strategy.Step{
		ID:          ulid.Make().String(),
		Description: description,
		Reasoning:   cause.Error(),
		Status:      strategy.StatusError,
		Timestamp:   e.now().UTC(),
		Confidence:  0,
		Metrics: strategy.StepMetrics{
			Coherence: coherence(cause.Error(), state.Steps),
		},
	}
	state.AppendStep(step)
	state.TransitionTo(PhaseError)
	result.Err = cause
	slog.Warn("Step failed, terminating loop",
		"problem_id", state.ProblemID, "step", len(state.Steps), "error", cause)
}

// buildStepContext assembles the rolling prompt window: the problem, the
// last K steps, the current position, and the strategy's focus for this
// step.
func (e *Engine) buildStepContext(state *State, skeleton *strategy.Step, index int, opts ProcessOptions) string {
	var b strings.Builder
	b.WriteString("Problem: ")
	b.WriteString(state.ProcessedProblem)
	b.WriteString("\n")

	steps := state.Steps
	if len(steps) > opts.ContextWindow {
		steps = steps[len(steps)-opts.ContextWindow:]
	}
	for _, prev := range steps {
		fmt.Fprintf(&b, "Previous step (%s): %s\n", prev.Description, prev.Reasoning)
	}

	fmt.Fprintf(&b, "Current step %d of %d.\n", index+1, state.MaxSteps)
	fmt.Fprintf(&b, "Focus: %s. %s\n", skeleton.Description, skeleton.Reasoning)
	return b.String()
}

func (e *Engine) finish(result *Result, state *State, start time.Time) *Result {
	result.Steps = state.Steps
	result.TokenUsage = state.TokensUsed
	result.ExecutionTime = e.now().Sub(start)
	result.StateMetrics = StateMetrics{
		FinalState:   string(state.Phase),
		StrategyName: state.StrategyName,
		Progress:     state.Progress,
		Adjustments:  state.Adjustments,
	}

	if e.thinkingDir != "" {
		path := filepath.Join(e.thinkingDir, state.ProblemID+".json")
		if err := store.WriteSnapshot(path, state); err != nil {
			slog.Debug("Thinking snapshot skipped", "path", path, "error", err)
		}
	}
	return result
}

func estimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return int(math.Ceil(float64(len(text)) / 4))
}
