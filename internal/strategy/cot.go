package strategy

import (
	"fmt"
	"time"
)

// chainOfThought emits a bounded run of intermediate thoughts followed by
// one conclusion step. The thought count scales with problem size.
type chainOfThought struct {
	model      Model
	problem    string
	thoughts   int
	emitted    int
	concluded  bool
	tokens     int
}

const (
	cotMinThoughts = 4
	cotMaxThoughts = 8
)

func newChainOfThought(model Model) *chainOfThought {
	return &chainOfThought{model: model, thoughts: cotMinThoughts}
}

func (c *chainOfThought) Name() string { return "chain_of_thought" }

// Initialize sizes the thought run from the problem's token count:
// roughly one extra thought per 200 tokens, within [4,8].
func (c *chainOfThought) Initialize(problem string) {
	if c.problem != "" {
		return
	}
	c.problem = problem

	problemTokens := estimateStepTokens(problem)
	thoughts := cotMinThoughts + problemTokens/200
	if thoughts > cotMaxThoughts {
		thoughts = cotMaxThoughts
	}
	c.thoughts = thoughts
}

func (c *chainOfThought) NextStep() *Step {
	if c.concluded {
		return nil
	}

	if c.emitted < c.thoughts {
		reasoning := fmt.Sprintf("Thought %d of %d about: %s", c.emitted+1, c.thoughts, truncate(c.problem, 160))
		tokens := estimateStepTokens(reasoning)
		c.tokens += tokens

		step := &Step{
			ID:          newStepID(),
			Description: fmt.Sprintf("intermediate thought %d", c.emitted+1),
			Reasoning:   reasoning,
			Tokens:      tokens,
			Status:      StatusActive,
			Timestamp:   time.Now().UTC(),
			Confidence:  baselineConfidence(c.Progress(), remainingComplexity(c.Progress())),
		}
		c.emitted++
		return step
	}

	reasoning := fmt.Sprintf("Conclusion drawn from %d chained thoughts.", c.thoughts)
	tokens := estimateStepTokens(reasoning)
	c.tokens += tokens
	c.concluded = true

	return &Step{
		ID:          newStepID(),
		Description: "conclusion",
		Reasoning:   reasoning,
		Tokens:      tokens,
		Status:      StatusCompleted,
		Timestamp:   time.Now().UTC(),
		Confidence:  baselineConfidence(1, ComplexityLow),
	}
}

func (c *chainOfThought) ShouldContinue() bool {
	return !c.concluded
}

func (c *chainOfThought) Progress() float64 {
	total := float64(c.thoughts + 1)
	done := float64(c.emitted)
	if c.concluded {
		done++
	}
	return done / total
}

func (c *chainOfThought) Metrics() Metrics {
	progress := c.Progress()
	return Metrics{
		Confidence:      baselineConfidence(progress, remainingComplexity(progress)),
		Reasoning:       fmt.Sprintf("chain of %d thoughts, %d emitted", c.thoughts, c.emitted),
		TokenEfficiency: tokenEfficiency(progress, c.tokens),
		ComplexityScore: complexityScore(c.model.Complexity),
	}
}
