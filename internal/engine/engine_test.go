package engine

import (
	"context"
	stderrors "errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/harunnryd/kangae/internal/cache"
	"github.com/harunnryd/kangae/internal/config"
	"github.com/harunnryd/kangae/internal/model/contract"
	"github.com/harunnryd/kangae/internal/strategy"
)

type MockQuerier struct {
	mock.Mock
}

func (m *MockQuerier) Query(ctx context.Context, req contract.CompletionRequest) (*contract.CompletionResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*contract.CompletionResponse), args.Error(1)
}

func testThinkingModel() strategy.Model {
	return strategy.Model{
		Name:       "google/gemini-2.0-flash-001",
		TokenLimit: strategy.TokenHigh,
		Complexity: strategy.ComplexityMedium,
	}
}

func reply(content string, tokens int) *contract.CompletionResponse {
	return &contract.CompletionResponse{
		Content: content,
		Usage:   contract.Usage{TotalTokens: tokens},
	}
}

func TestProcess_EmptyProblem(t *testing.T) {
	querier := &MockQuerier{}
	e := New(querier)

	result := e.Process(context.Background(), "", testThinkingModel(), ProcessOptions{})

	assert.Empty(t, result.Steps)
	assert.Empty(t, result.Reasoning)
	assert.Equal(t, 0, result.TokenUsage)
	assert.Equal(t, "completed", result.StateMetrics.FinalState)
	querier.AssertNotCalled(t, "Query", mock.Anything, mock.Anything)
}

func TestProcess_SingleStepDecision(t *testing.T) {
	querier := &MockQuerier{}
	querier.On("Query", mock.Anything, mock.Anything).
		Return(reply(`{"description":"done","reasoning":"trivial","shouldContinue":false,"confidence":0.9}`, 12), nil).
		Once()

	e := New(querier)
	result := e.Process(context.Background(), "is this trivial", testThinkingModel(), ProcessOptions{})

	require.Len(t, result.Steps, 1)
	step := result.Steps[0]
	assert.Equal(t, "done", step.Description)
	assert.Equal(t, strategy.StatusCompleted, step.Status)
	assert.InDelta(t, 0.9, step.Confidence, 1e-9)
	assert.Equal(t, 1.0, step.Metrics.Coherence)
	assert.Equal(t, "completed", result.StateMetrics.FinalState)
	assert.Equal(t, 12, result.TokenUsage)
	querier.AssertNumberOfCalls(t, "Query", 1)
}

func TestProcess_TwoStepCoherentChain(t *testing.T) {
	querier := &MockQuerier{}
	querier.On("Query", mock.Anything, mock.Anything).
		Return(reply(`{"description":"analyze","reasoning":"fibonacci recursion has exponential complexity","shouldContinue":true,"confidence":0.7}`, 20), nil).
		Once()
	querier.On("Query", mock.Anything, mock.Anything).
		Return(reply(`{"description":"improve","reasoning":"use memoization to reduce complexity to linear","shouldContinue":false,"confidence":0.85}`, 20), nil).
		Once()

	e := New(querier)
	result := e.Process(context.Background(), "optimize fibonacci", testThinkingModel(), ProcessOptions{})

	require.Len(t, result.Steps, 2)
	second := result.Steps[1]
	assert.Greater(t, second.Metrics.Coherence, 0.0, "shared term should give nonzero coherence")
	assert.Greater(t, second.Metrics.Significance, 0.0)
	assert.Equal(t, 40, result.TokenUsage)
	assert.Equal(t, "completed", result.StateMetrics.FinalState)
}

func TestProcess_DispatchFailureYieldsTerminalErrorStep(t *testing.T) {
	querier := &MockQuerier{}
	querier.On("Query", mock.Anything, mock.Anything).
		Return(reply(`{"description":"first","reasoning":"made progress on the question","shouldContinue":true,"confidence":0.7}`, 15), nil).
		Once()
	querier.On("Query", mock.Anything, mock.Anything).
		Return(nil, stderrors.New("connection refused")).
		Once()

	e := New(querier)
	result := e.Process(context.Background(), "a longer problem statement that keeps the loop alive", testThinkingModel(), ProcessOptions{})

	require.Len(t, result.Steps, 2)
	last := result.Steps[len(result.Steps)-1]
	assert.Equal(t, strategy.StatusError, last.Status)
	assert.Equal(t, 0.0, last.Confidence)
	assert.Equal(t, "error", result.StateMetrics.FinalState)
	require.Error(t, result.Err)
}

func TestProcess_UnparseableReplyTerminatesLoop(t *testing.T) {
	querier := &MockQuerier{}
	querier.On("Query", mock.Anything, mock.Anything).
		Return(reply("no json here, just prose", 5), nil).
		Once()

	e := New(querier)
	result := e.Process(context.Background(), "some problem", testThinkingModel(), ProcessOptions{})

	require.Len(t, result.Steps, 1)
	assert.Equal(t, strategy.StatusError, result.Steps[0].Status)
	assert.Equal(t, "error", result.StateMetrics.FinalState)
	querier.AssertNumberOfCalls(t, "Query", 1)
}

func TestProcess_CancellationBeforeFirstCall(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	querier := &MockQuerier{}
	e := New(querier)
	result := e.Process(ctx, "some problem", testThinkingModel(), ProcessOptions{})

	assert.True(t, result.Canceled)
	assert.Empty(t, result.Steps)
	querier.AssertNotCalled(t, "Query", mock.Anything, mock.Anything)
}

func TestProcess_CancellationMidRunReturnsPartialResult(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	querier := &MockQuerier{}
	querier.On("Query", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { cancel() }).
		Return(reply(`{"description":"first","reasoning":"partial progress","shouldContinue":true,"confidence":0.7}`, 10), nil).
		Once()

	e := New(querier)
	result := e.Process(ctx, "some problem", testThinkingModel(), ProcessOptions{})

	assert.True(t, result.Canceled)
	assert.Len(t, result.Steps, 1)
	assert.NotEqual(t, "completed", result.StateMetrics.FinalState)
}

func TestProcess_MaxStepsBoundsTheLoop(t *testing.T) {
	querier := &MockQuerier{}
	querier.On("Query", mock.Anything, mock.Anything).
		Return(reply(`{"description":"more","reasoning":"still thinking about the problem","shouldContinue":true,"confidence":0.6}`, 10), nil)

	e := New(querier)
	result := e.Process(context.Background(), "an open ended question with no natural stopping point at all", testThinkingModel(), ProcessOptions{MaxSteps: 3})

	assert.LessOrEqual(t, len(result.Steps), 3)
	assert.Equal(t, "completed", result.StateMetrics.FinalState)
}

func TestProcess_StepMetricsStayInRange(t *testing.T) {
	querier := &MockQuerier{}
	querier.On("Query", mock.Anything, mock.Anything).
		Return(reply(`{"description":"dense","reasoning":"a reasoning body with challenges and concepts","shouldContinue":true,"confidence":0.4,"challenges":["a","b","c","d","e","f"],"concepts":["x","y","z"]}`, 30), nil)

	e := New(querier)
	result := e.Process(context.Background(), "bound every metric", testThinkingModel(), ProcessOptions{MaxSteps: 4})

	require.NotEmpty(t, result.Steps)
	for _, step := range result.Steps {
		assert.GreaterOrEqual(t, step.Metrics.Coherence, 0.0)
		assert.LessOrEqual(t, step.Metrics.Coherence, 1.0)
		assert.GreaterOrEqual(t, step.Metrics.Significance, 0.0)
		assert.LessOrEqual(t, step.Metrics.Significance, 1.0)
		assert.GreaterOrEqual(t, step.Metrics.Complexity, 0.0)
		assert.LessOrEqual(t, step.Metrics.Complexity, 1.0)
	}
}

func TestProcess_TokenBudgetRespectedOrRaisedByAdjustment(t *testing.T) {
	querier := &MockQuerier{}
	querier.On("Query", mock.Anything, mock.Anything).
		Return(reply(`{"description":"heavy","reasoning":"an expensive step","shouldContinue":true,"confidence":0.6}`, 90), nil)

	e := New(querier)
	result := e.Process(context.Background(), "spend tokens quickly on purpose here", testThinkingModel(), ProcessOptions{TokenBudget: 100, MaxSteps: 5})

	raised := false
	for _, adj := range result.StateMetrics.Adjustments {
		if adj.Kind == AdjustRaiseBudget {
			raised = true
		}
	}
	if !raised {
		assert.LessOrEqual(t, result.TokenUsage, 100)
	}
	// Second step would start past the 100-token budget.
	assert.LessOrEqual(t, len(result.Steps), 2)
}

func TestParseCompositeSpec(t *testing.T) {
	mode, children := parseCompositeSpec("composite")
	assert.Equal(t, strategy.ModeWeighted, mode)
	assert.Equal(t, []string{"chain_of_thought", "tree_of_thoughts"}, children)

	mode, children = parseCompositeSpec("composite:parallel")
	assert.Equal(t, strategy.ModeParallel, mode)
	assert.Equal(t, []string{"chain_of_thought", "tree_of_thoughts"}, children)

	mode, children = parseCompositeSpec("composite:sequential:minimal+standard")
	assert.Equal(t, strategy.ModeSequential, mode)
	assert.Equal(t, []string{"minimal", "standard"}, children)

	mode, _ = parseCompositeSpec("composite:sideways")
	assert.Equal(t, strategy.ModeWeighted, mode)
}

func TestProcess_CompositeStrategyRuns(t *testing.T) {
	t.Setenv(config.EnvStrategyFeedbackEnabled, "true")

	querier := &MockQuerier{}
	querier.On("Query", mock.Anything, mock.Anything).
		Return(reply(`{"description":"step","reasoning":"delegated reasoning","shouldContinue":true,"confidence":0.8}`, 10), nil)

	e := New(querier)
	result := e.Process(context.Background(), "work the problem", testThinkingModel(), ProcessOptions{
		Strategy: "composite:sequential:minimal+standard",
		MaxSteps: 4,
	})

	require.NotEmpty(t, result.Steps)
	assert.Equal(t, "composite_sequential(minimal,standard)", result.StateMetrics.StrategyName)
	assert.Equal(t, "completed", result.StateMetrics.FinalState)
}

func TestProcess_CallerStrategyOverrideRecordedInLedger(t *testing.T) {
	querier := &MockQuerier{}
	querier.On("Query", mock.Anything, mock.Anything).
		Return(reply(`{"description":"done","reasoning":"ok","shouldContinue":false,"confidence":0.8}`, 5), nil).
		Once()

	// The selector would route a two-word problem to minimal.
	e := New(querier)
	result := e.Process(context.Background(), "short question", testThinkingModel(), ProcessOptions{Strategy: "standard"})

	switched := false
	for _, adj := range result.StateMetrics.Adjustments {
		if adj.Kind == AdjustStrategySwitch {
			switched = true
		}
	}
	assert.True(t, switched)
	assert.Equal(t, "standard", result.StateMetrics.StrategyName)
}

func TestProcess_CacheHitSkipsNetwork(t *testing.T) {
	querier := &MockQuerier{}
	querier.On("Query", mock.Anything, mock.Anything).
		Return(reply(`{"description":"done","reasoning":"cached outcome","shouldContinue":false,"confidence":0.8}`, 10), nil).
		Once()

	shared := cache.New(100, 0.8)
	e := New(querier, WithCache(shared))

	first := e.Process(context.Background(), "is caching worth it", testThinkingModel(), ProcessOptions{})
	second := e.Process(context.Background(), "is caching worth it", testThinkingModel(), ProcessOptions{})

	require.Len(t, first.Steps, 1)
	require.Len(t, second.Steps, 1)
	assert.Equal(t, first.Steps[0].Reasoning, second.Steps[0].Reasoning)
	querier.AssertNumberOfCalls(t, "Query", 1)
}

func TestProcess_SnapshotWrittenWhenDirSet(t *testing.T) {
	querier := &MockQuerier{}
	querier.On("Query", mock.Anything, mock.Anything).
		Return(reply(`{"description":"done","reasoning":"ok","shouldContinue":false,"confidence":0.8}`, 5), nil).
		Once()

	dir := t.TempDir()
	e := New(querier, WithThinkingDir(dir))
	result := e.Process(context.Background(), "snapshot me", testThinkingModel(), ProcessOptions{})

	require.NotEmpty(t, result.ProblemID)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, result.ProblemID+".json", entries[0].Name())
}

func TestProcess_ExecutionTimeMeasured(t *testing.T) {
	querier := &MockQuerier{}
	querier.On("Query", mock.Anything, mock.Anything).
		Return(reply(`{"description":"done","reasoning":"ok","shouldContinue":false,"confidence":0.8}`, 5), nil).
		Once()

	instant := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	calls := 0
	e := New(querier, WithClock(func() time.Time {
		calls++
		return instant.Add(time.Duration(calls) * 50 * time.Millisecond)
	}))

	result := e.Process(context.Background(), "time me", testThinkingModel(), ProcessOptions{})
	assert.Greater(t, result.ExecutionTime, time.Duration(0))
}
