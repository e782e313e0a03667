package strategy

import (
	"fmt"
	"sort"
	"strings"
)

// CompositeMode selects how a composite delegates to its children.
type CompositeMode string

const (
	ModeSequential CompositeMode = "sequential"
	ModeParallel   CompositeMode = "parallel"
	ModeWeighted   CompositeMode = "weighted"
)

// child pairs a strategy with its selection state. The configured weight
// never changes; feedback lands in the separate adjustment field.
type child struct {
	strategy   Strategy
	weight     float64
	current    float64
	attempts   int
	successes  int
	adjustment float64
}

// Composite wraps child strategies behind the single-strategy interface.
// Sequential takes the first child still able to produce a step, parallel
// picks the highest-confidence candidate across children, and weighted
// rotates through children proportionally to their weights.
type Composite struct {
	mode     CompositeMode
	children []*child
	feedback bool
	emitted  []*Step
	tokens   int
}

// NewComposite builds a composite over children. weights is positional
// and only consulted in weighted mode; missing or non-positive entries
// default to 1. feedback enables the success-rate adjustment channel.
func NewComposite(mode CompositeMode, strategies []Strategy, weights []float64, feedback bool) *Composite {
	c := &Composite{mode: mode, feedback: feedback}
	for i, s := range strategies {
		w := 1.0
		if i < len(weights) && weights[i] > 0 {
			w = weights[i]
		}
		c.children = append(c.children, &child{strategy: s, weight: w})
	}
	return c
}

func (c *Composite) Name() string {
	names := make([]string, len(c.children))
	for i, ch := range c.children {
		names[i] = ch.strategy.Name()
	}
	return fmt.Sprintf("composite_%s(%s)", c.mode, strings.Join(names, ","))
}

func (c *Composite) Initialize(problem string) {
	for _, ch := range c.children {
		ch.strategy.Initialize(problem)
	}
}

func (c *Composite) NextStep() *Step {
	var step *Step
	switch c.mode {
	case ModeParallel:
		step = c.nextParallel()
	case ModeWeighted:
		step = c.nextWeighted()
	default:
		step = c.nextSequential()
	}
	if step != nil {
		c.emitted = append(c.emitted, step)
		c.tokens += step.Tokens
	}
	return step
}

// nextSequential delegates to the first child that still has steps.
func (c *Composite) nextSequential() *Step {
	for _, ch := range c.children {
		if !ch.strategy.ShouldContinue() {
			continue
		}
		step := ch.strategy.NextStep()
		if step != nil {
			c.observe(ch, step)
			return step
		}
	}
	return nil
}

// nextParallel collects one candidate per active child and keeps the
// highest-confidence one. The first candidate wins ties.
func (c *Composite) nextParallel() *Step {
	var best *Step
	var bestChild *child
	for _, ch := range c.children {
		if !ch.strategy.ShouldContinue() {
			continue
		}
		candidate := ch.strategy.NextStep()
		if candidate == nil {
			continue
		}
		if best == nil || candidate.Confidence > best.Confidence {
			best = candidate
			bestChild = ch
		}
	}
	if best != nil {
		c.observe(bestChild, best)
	}
	return best
}

// nextWeighted uses smooth weighted round-robin over effective weights,
// so children are drawn proportionally without mutating configuration.
func (c *Composite) nextWeighted() *Step {
	for range c.children {
		var picked *child
		total := 0.0
		for _, ch := range c.children {
			if !ch.strategy.ShouldContinue() {
				continue
			}
			effective := ch.weight + ch.adjustment
			ch.current += effective
			total += effective
			if picked == nil || ch.current > picked.current {
				picked = ch
			}
		}
		if picked == nil {
			return nil
		}
		picked.current -= total

		step := picked.strategy.NextStep()
		if step != nil {
			c.observe(picked, step)
			return step
		}
	}
	return nil
}

// observe records a delegation outcome and, when feedback is enabled,
// refreshes the child's additive adjustment from its running success
// rate. Confident steps count as successes.
func (c *Composite) observe(ch *child, step *Step) {
	ch.attempts++
	if step.Status != StatusError && step.Confidence >= 0.5 {
		ch.successes++
	}
	if c.feedback && ch.attempts > 0 {
		rate := float64(ch.successes) / float64(ch.attempts)
		ch.adjustment = 0.25 * (rate - 0.5)
	}
}

// ShouldContinue reports whether any child can still produce a step.
func (c *Composite) ShouldContinue() bool {
	for _, ch := range c.children {
		if ch.strategy.ShouldContinue() {
			return true
		}
	}
	return false
}

func (c *Composite) Progress() float64 {
	if len(c.children) == 0 {
		return 1
	}
	sum := 0.0
	for _, ch := range c.children {
		sum += ch.strategy.Progress()
	}
	return sum / float64(len(c.children))
}

func (c *Composite) Metrics() Metrics {
	progress := c.Progress()
	return Metrics{
		Confidence:      baselineConfidence(progress, remainingComplexity(progress)),
		Reasoning:       fmt.Sprintf("composite %s over %d children, %d steps emitted", c.mode, len(c.children), len(c.emitted)),
		Alternatives:    c.alternatives(),
		TokenEfficiency: tokenEfficiency(progress, c.tokens),
		ComplexityScore: c.complexity(),
	}
}

// Weights returns the configured weights in child order. They are copies
// of the immutable inputs, not the feedback-adjusted values.
func (c *Composite) Weights() []float64 {
	out := make([]float64, len(c.children))
	for i, ch := range c.children {
		out[i] = ch.weight
	}
	return out
}

// alternatives lazily derives variant paths from the primary step list: a
// reversed ordering and a reworded summary, each with its own confidence.
func (c *Composite) alternatives() []Alternative {
	if len(c.emitted) < 2 {
		return nil
	}

	primary := make([]string, len(c.emitted))
	meanConfidence := 0.0
	for i, step := range c.emitted {
		primary[i] = step.Description
		meanConfidence += step.Confidence
	}
	meanConfidence /= float64(len(c.emitted))

	reversed := make([]string, len(primary))
	for i, d := range primary {
		reversed[len(primary)-1-i] = d
	}
	reworded := make([]string, len(primary))
	for i, d := range primary {
		reworded[i] = "revisit " + d
	}

	out := []Alternative{
		{Description: "reordered primary path", Steps: reversed, Confidence: clamp(meanConfidence*0.8, 0, 0.95)},
		{Description: "reworded primary path", Steps: reworded, Confidence: clamp(meanConfidence*0.6, 0, 0.95)},
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out
}

func (c *Composite) complexity() float64 {
	if len(c.children) == 0 {
		return 0
	}
	max := 0.0
	for _, ch := range c.children {
		if score := ch.strategy.Metrics().ComplexityScore; score > max {
			max = score
		}
	}
	return max
}
