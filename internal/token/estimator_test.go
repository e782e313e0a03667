package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimate_EmptyText(t *testing.T) {
	e := NewEstimator(0)
	assert.Equal(t, 0, e.Estimate("", "any-model"))
}

func TestEstimate_GrowsWithLength(t *testing.T) {
	e := NewEstimator(0)

	short := e.Estimate("short text", "m")
	long := e.Estimate("a considerably longer piece of text that should cost more tokens than the short one", "m")

	assert.Greater(t, short, 0)
	assert.Greater(t, long, short)
}

func TestEstimate_SpecialCharsCostMore(t *testing.T) {
	e := NewEstimator(0)

	plain := e.Estimate("alpha beta gamma delta epsilon", "m")
	symbols := e.Estimate("alpha[beta]{gamma}(delta)=epsilon;", "m")

	assert.Greater(t, symbols, plain)
}

func TestObserve_AdjustsRatioByEMA(t *testing.T) {
	e := NewEstimator(0.05)

	before := e.Estimate("some text to estimate for the ratio test", "gpt-x")

	// Actual usage consistently double the estimate pulls the ratio up.
	for i := 0; i < 50; i++ {
		e.Observe("gpt-x", 100, 200)
	}

	after := e.Estimate("some text to estimate for the ratio test", "gpt-x")
	assert.Greater(t, after, before)

	ratios := e.Ratios()
	assert.Greater(t, ratios["gpt-x"], 1.5)
	assert.Less(t, ratios["gpt-x"], 2.0)
}

func TestObserve_IgnoresInvalidSamples(t *testing.T) {
	e := NewEstimator(0.05)
	e.Observe("m", 0, 50)
	e.Observe("m", 50, 0)
	assert.Empty(t, e.Ratios())
}

func TestSetRatios_DropsNonPositive(t *testing.T) {
	e := NewEstimator(0)
	e.SetRatios(map[string]float64{"a": 1.2, "b": 0, "c": -1})

	ratios := e.Ratios()
	assert.Len(t, ratios, 1)
	assert.Equal(t, 1.2, ratios["a"])
}
