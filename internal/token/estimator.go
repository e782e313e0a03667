package token

import (
	"math"
	"strings"
	"sync"
	"unicode"
)

// Estimator converts raw text into token counts using a character/word
// hybrid heuristic, corrected by a per-model ratio learned from observed
// usage via an exponential moving average.
type Estimator struct {
	mu       sync.RWMutex
	ratios   map[string]float64
	emaAlpha float64
}

const defaultEMAAlpha = 0.05

func NewEstimator(emaAlpha float64) *Estimator {
	if emaAlpha <= 0 || emaAlpha >= 1 {
		emaAlpha = defaultEMAAlpha
	}
	return &Estimator{
		ratios:   make(map[string]float64),
		emaAlpha: emaAlpha,
	}
}

// Estimate returns the estimated token count for text under modelName.
// Empty text estimates to zero.
func (e *Estimator) Estimate(text string, modelName string) int {
	if text == "" {
		return 0
	}

	base := float64(int(math.Ceil(float64(len(text))/4))) +
		0.5*float64(countSpecialChars(text)) -
		0.2*float64(countWhitespaceRuns(text))
	if base < 1 {
		base = 1
	}

	estimate := base * e.ratio(modelName)
	if estimate < 1 {
		return 1
	}
	return int(math.Round(estimate))
}

// Observe feeds back an actual token count for a prior estimate, updating
// the per-model correction ratio.
func (e *Estimator) Observe(modelName string, estimated, actual int) {
	if estimated <= 0 || actual <= 0 {
		return
	}

	observed := float64(actual) / float64(estimated)

	e.mu.Lock()
	defer e.mu.Unlock()

	current, ok := e.ratios[modelName]
	if !ok {
		current = 1.0
	}
	e.ratios[modelName] = current + e.emaAlpha*(observed-current)
}

// Ratios returns a copy of the learned per-model ratios.
func (e *Estimator) Ratios() map[string]float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make(map[string]float64, len(e.ratios))
	for k, v := range e.ratios {
		out[k] = v
	}
	return out
}

// SetRatios replaces the learned ratios, used when restoring a snapshot.
func (e *Estimator) SetRatios(ratios map[string]float64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.ratios = make(map[string]float64, len(ratios))
	for k, v := range ratios {
		if v > 0 {
			e.ratios[k] = v
		}
	}
}

func (e *Estimator) ratio(modelName string) float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if r, ok := e.ratios[modelName]; ok && r > 0 {
		return r
	}
	return 1.0
}

func countSpecialChars(text string) int {
	count := 0
	for _, r := range text {
		if r > unicode.MaxASCII || (!unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsSpace(r)) {
			count++
		}
	}
	return count
}

func countWhitespaceRuns(text string) int {
	runs := 0
	inRun := false
	for _, r := range text {
		if unicode.IsSpace(r) {
			if !inRun {
				runs++
				inRun = true
			}
		} else {
			inRun = false
		}
	}
	return runs
}

// splitSentences breaks text into sentences on terminal punctuation,
// keeping the delimiter with the sentence.
func splitSentences(text string) []string {
	var sentences []string
	var sb strings.Builder

	for _, r := range text {
		sb.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if s := strings.TrimSpace(sb.String()); s != "" {
				sentences = append(sentences, s)
			}
			sb.Reset()
		}
	}
	if s := strings.TrimSpace(sb.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}
