package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedStrategy replays a fixed list of steps for composite tests.
type scriptedStrategy struct {
	name  string
	steps []*Step
	index int
}

func newScripted(name string, confidences ...float64) *scriptedStrategy {
	s := &scriptedStrategy{name: name}
	for i, confidence := range confidences {
		s.steps = append(s.steps, &Step{
			ID:          newStepID(),
			Description: name,
			Status:      StatusActive,
			Timestamp:   time.Now().UTC(),
			Tokens:      10 * (i + 1),
			Confidence:  confidence,
		})
	}
	return s
}

func (s *scriptedStrategy) Name() string              { return s.name }
func (s *scriptedStrategy) Initialize(problem string) {}
func (s *scriptedStrategy) ShouldContinue() bool      { return s.index < len(s.steps) }
func (s *scriptedStrategy) Progress() float64 {
	if len(s.steps) == 0 {
		return 1
	}
	return float64(s.index) / float64(len(s.steps))
}
func (s *scriptedStrategy) Metrics() Metrics { return Metrics{ComplexityScore: 0.5} }
func (s *scriptedStrategy) NextStep() *Step {
	if s.index >= len(s.steps) {
		return nil
	}
	step := s.steps[s.index]
	s.index++
	return step
}

func TestComposite_SequentialDrainsChildrenInOrder(t *testing.T) {
	first := newScripted("first", 0.6, 0.6)
	second := newScripted("second", 0.9)

	c := NewComposite(ModeSequential, []Strategy{first, second}, nil, false)
	c.Initialize("problem")

	var order []string
	for c.ShouldContinue() {
		step := c.NextStep()
		require.NotNil(t, step)
		order = append(order, step.Description)
	}
	assert.Equal(t, []string{"first", "first", "second"}, order)
	assert.False(t, c.ShouldContinue())
}

func TestComposite_ParallelPicksHighestConfidence(t *testing.T) {
	timid := newScripted("timid", 0.3)
	bold := newScripted("bold", 0.9)

	c := NewComposite(ModeParallel, []Strategy{timid, bold}, nil, false)
	c.Initialize("problem")

	step := c.NextStep()
	require.NotNil(t, step)
	assert.Equal(t, "bold", step.Description)
}

func TestComposite_ParallelFirstWinsTies(t *testing.T) {
	a := newScripted("a", 0.7)
	b := newScripted("b", 0.7)

	c := NewComposite(ModeParallel, []Strategy{a, b}, nil, false)
	step := c.NextStep()
	require.NotNil(t, step)
	assert.Equal(t, "a", step.Description)
}

func TestComposite_WeightedDrawsProportionally(t *testing.T) {
	heavy := newScripted("heavy", 0.7, 0.7, 0.7, 0.7, 0.7, 0.7)
	light := newScripted("light", 0.7, 0.7, 0.7)

	c := NewComposite(ModeWeighted, []Strategy{heavy, light}, []float64{2, 1}, false)
	c.Initialize("problem")

	counts := map[string]int{}
	for i := 0; i < 6; i++ {
		step := c.NextStep()
		require.NotNil(t, step)
		counts[step.Description]++
	}
	assert.Equal(t, 4, counts["heavy"])
	assert.Equal(t, 2, counts["light"])
}

func TestComposite_WeightsAreImmutable(t *testing.T) {
	c := NewComposite(ModeWeighted,
		[]Strategy{newScripted("a", 0.9, 0.9), newScripted("b", 0.2, 0.2)},
		[]float64{0.7, 0.3}, true)

	for c.ShouldContinue() {
		c.NextStep()
	}
	assert.Equal(t, []float64{0.7, 0.3}, c.Weights())
}

func TestComposite_FeedbackAdjustsSelectionNotWeights(t *testing.T) {
	confident := newScripted("confident", 0.9, 0.9, 0.9)
	shaky := newScripted("shaky", 0.1, 0.1, 0.1)

	c := NewComposite(ModeWeighted, []Strategy{confident, shaky}, []float64{1, 1}, true)
	for c.ShouldContinue() {
		c.NextStep()
	}

	assert.Equal(t, []float64{1, 1}, c.Weights())
	assert.Greater(t, c.children[0].adjustment, c.children[1].adjustment)
}

func TestComposite_StopsWhenAllChildrenStop(t *testing.T) {
	c := NewComposite(ModeSequential, []Strategy{newScripted("only", 0.5)}, nil, false)
	require.NotNil(t, c.NextStep())
	assert.False(t, c.ShouldContinue())
	assert.Nil(t, c.NextStep())
}

func TestComposite_AlternativesDerivedLazily(t *testing.T) {
	c := NewComposite(ModeSequential, []Strategy{newScripted("a", 0.8, 0.8)}, nil, false)
	assert.Nil(t, c.Metrics().Alternatives)

	c.NextStep()
	c.NextStep()

	alternatives := c.Metrics().Alternatives
	require.Len(t, alternatives, 2)
	assert.GreaterOrEqual(t, alternatives[0].Confidence, alternatives[1].Confidence)
}

func TestComposite_DefaultWeightWhenMissing(t *testing.T) {
	c := NewComposite(ModeWeighted, []Strategy{newScripted("a", 0.5), newScripted("b", 0.5)}, []float64{2}, false)
	assert.Equal(t, []float64{2, 1}, c.Weights())
}
