package token

import (
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"
)

// ContentType classifies the dominant register of a prompt.
type ContentType string

const (
	ContentTechnical      ContentType = "technical"
	ContentConversational ContentType = "conversational"
	ContentNarrative      ContentType = "narrative"
	ContentDescriptive    ContentType = "descriptive"
)

// Context carries the budget the optimized text must fit into.
type Context struct {
	AvailableTokens int
	ModelName       string
}

// Result describes one optimization pass.
type Result struct {
	OptimizedText    string
	Strategy         string
	EstimatedTokens  int
	Savings          int
	Domain           ContentType
	SuggestedChanges []string
}

// Record is the persisted trace of one optimization.
type Record struct {
	OriginalTokens  int       `json:"originalTokens"`
	OptimizedTokens int       `json:"optimizedTokens"`
	Savings         int       `json:"savings"`
	Model           string    `json:"model"`
	ContextTag      string    `json:"contextTag,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// Optimizer compresses prompts to fit token budgets. It is pure: no network
// calls, deterministic output for a given input and context, and it never
// fails outward; on any internal miss it returns the input unchanged with
// strategy "none".
type Optimizer struct {
	estimator *Estimator

	mu      sync.Mutex
	records []Record
}

var (
	codeFencePattern = regexp.MustCompile("```|\\bfunc \\b|\\bdef \\b|\\bclass \\b|[{};]\\s*$")
	dialoguePattern  = regexp.MustCompile(`"[^"]+"\s*(said|asked|replied)|\b(you|your|please|thanks|hello)\b`)
	narrativePattern = regexp.MustCompile(`\b(was|were|had|went|came|happened|once|then)\b`)
	numericPattern   = regexp.MustCompile(`\d`)

	strategyHints = []struct {
		name    string
		pattern *regexp.Regexp
	}{
		{"chain_of_thought", regexp.MustCompile(`(?i)chain[- _]of[- _]thought|step[- ]by[- ]step|let'?s think`)},
		{"tree_of_thoughts", regexp.MustCompile(`(?i)tree[- _]of[- _]thoughts?|branch(es|ing)?|explore .*paths`)},
		{"deductive", regexp.MustCompile(`(?i)\bdeduc(e|tive|tion)\b|\btherefore\b|\bit follows\b`)},
		{"inductive", regexp.MustCompile(`(?i)\binduc(e|tive|tion)\b|\bgeneraliz|\bpattern(s)? suggest`)},
		{"abductive", regexp.MustCompile(`(?i)\babduc(tive|tion)\b|\bbest explanation\b|\bmost likely cause\b`)},
	}

	importanceMarkers = []string{"important", "critical", "must", "key", "essential", "required", "note", "warning"}

	redundantConnectives = []string{
		"in order to", "as a matter of fact", "it should be noted that",
		"it is worth mentioning that", "at the end of the day", "needless to say",
	}

	connectiveReplacements = map[string]string{
		"in order to":                  "to",
		"as a matter of fact":          "",
		"it should be noted that":      "",
		"it is worth mentioning that":  "",
		"at the end of the day":        "",
		"needless to say":              "",
	}
)

func NewOptimizer(estimator *Estimator) *Optimizer {
	if estimator == nil {
		estimator = NewEstimator(0)
	}
	return &Optimizer{estimator: estimator}
}

// Estimator exposes the underlying estimator.
func (o *Optimizer) Estimator() *Estimator { return o.estimator }

// Optimize transforms text to fit ctx.AvailableTokens while preserving
// meaning. The returned text never estimates above the input.
func (o *Optimizer) Optimize(text string, ctx Context) Result {
	original := o.estimator.Estimate(text, ctx.ModelName)
	if text == "" || original == 0 {
		return Result{OptimizedText: text, Strategy: "none", Domain: ContentDescriptive}
	}

	domain := classifyContent(text)
	hint := detectStrategyHint(text)

	reduction := 0.0
	if ctx.AvailableTokens > 0 && original > ctx.AvailableTokens {
		reduction = 1.0 - float64(ctx.AvailableTokens)/float64(original)
	}

	strategy := selectStrategy(reduction, domain, hint)
	if strategy == "none" {
		return Result{
			OptimizedText:   text,
			Strategy:        "none",
			EstimatedTokens: original,
			Domain:          domain,
		}
	}

	optimized, changes := o.apply(strategy, text, ctx)

	optimizedTokens := o.estimator.Estimate(optimized, ctx.ModelName)
	if optimizedTokens > original || optimized == "" {
		// The transformation did not help; keep the input.
		return Result{
			OptimizedText:   text,
			Strategy:        "none",
			EstimatedTokens: original,
			Domain:          domain,
		}
	}

	savings := original - optimizedTokens
	o.record(Record{
		OriginalTokens:  original,
		OptimizedTokens: optimizedTokens,
		Savings:         savings,
		Model:           ctx.ModelName,
		ContextTag:      string(domain),
		Timestamp:       time.Now().UTC(),
	})

	slog.Debug("Prompt optimized",
		"strategy", strategy,
		"domain", domain,
		"original_tokens", original,
		"optimized_tokens", optimizedTokens,
	)

	return Result{
		OptimizedText:    optimized,
		Strategy:         strategy,
		EstimatedTokens:  optimizedTokens,
		Savings:          savings,
		Domain:           domain,
		SuggestedChanges: changes,
	}
}

// Records returns a copy of the optimization history.
func (o *Optimizer) Records() []Record {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]Record, len(o.records))
	copy(out, o.records)
	return out
}

// ClearRecords drops the in-memory history, returning the removed count.
func (o *Optimizer) ClearRecords() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	n := len(o.records)
	o.records = nil
	return n
}

func (o *Optimizer) record(r Record) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.records = append(o.records, r)
}

func classifyContent(text string) ContentType {
	switch {
	case codeFencePattern.MatchString(text):
		return ContentTechnical
	case dialoguePattern.MatchString(strings.ToLower(text)):
		return ContentConversational
	case narrativePattern.MatchString(strings.ToLower(text)):
		return ContentNarrative
	default:
		return ContentDescriptive
	}
}

func detectStrategyHint(text string) string {
	for _, hint := range strategyHints {
		if hint.pattern.MatchString(text) {
			return hint.name
		}
	}
	return ""
}

func selectStrategy(reduction float64, domain ContentType, hint string) string {
	if hint != "" && reduction > 0 {
		switch hint {
		case "chain_of_thought":
			return "cot_step_compression"
		case "tree_of_thoughts":
			return "tot_branch_pruning"
		case "deductive":
			return "deductive_core_logic"
		case "inductive":
			return "inductive_pattern_focus"
		case "abductive":
			return "abductive_hypothesis_focus"
		}
	}

	switch {
	case reduction > 0.5:
		return "concept_extraction"
	case reduction >= 0.3:
		return string(domain) + "_compression"
	case reduction > 0:
		return "length_reduction"
	default:
		return "none"
	}
}

// apply runs the selected transformation. All variants reduce to sentence
// selection with strategy-specific scoring plus connective collapsing.
func (o *Optimizer) apply(strategy, text string, ctx Context) (string, []string) {
	var changes []string

	collapsed := collapseConnectives(text)
	if collapsed != text {
		changes = append(changes, "collapsed redundant connectives")
	}

	sentences := splitSentences(collapsed)
	if len(sentences) <= 2 {
		return collapsed, changes
	}

	scored := scoreSentences(sentences, strategy)

	budget := ctx.AvailableTokens
	if budget <= 0 {
		budget = o.estimator.Estimate(collapsed, ctx.ModelName)
	}

	kept := selectSentences(sentences, scored, func(candidate []string) bool {
		return o.estimator.Estimate(strings.Join(candidate, " "), ctx.ModelName) <= budget
	})

	if len(kept) < len(sentences) {
		changes = append(changes, "removed low-importance sentences")
	}

	return strings.Join(kept, " "), changes
}

type sentenceScore struct {
	index int
	score float64
}

// scoreSentences ranks sentences by position, importance markers, numeric
// content, and domain terms. First and last sentences always score highest.
func scoreSentences(sentences []string, strategy string) []sentenceScore {
	scores := make([]sentenceScore, len(sentences))
	for i, s := range sentences {
		lower := strings.ToLower(s)
		score := 0.0

		if i == 0 || i == len(sentences)-1 {
			score += 10.0
		}

		for _, marker := range importanceMarkers {
			if strings.Contains(lower, marker) {
				score += 2.0
			}
		}

		if numericPattern.MatchString(s) {
			score += 1.5
		}

		switch strategy {
		case "cot_step_compression":
			if strings.Contains(lower, "step") || strings.Contains(lower, "therefore") {
				score += 2.0
			}
		case "tot_branch_pruning":
			if strings.Contains(lower, "branch") || strings.Contains(lower, "option") || strings.Contains(lower, "best") {
				score += 2.0
			}
		case "deductive_core_logic":
			if strings.Contains(lower, "if ") || strings.Contains(lower, "then") || strings.Contains(lower, "therefore") {
				score += 2.0
			}
		case "technical_compression":
			if strings.ContainsAny(s, "{}()=<>") {
				score += 2.0
			}
		}

		// Mild position preference toward the front.
		score += 1.0 - float64(i)/float64(len(sentences))

		scores[i] = sentenceScore{index: i, score: score}
	}
	return scores
}

// selectSentences keeps the highest scoring sentences, in original order,
// growing the selection while fits reports the candidate still fits.
func selectSentences(sentences []string, scores []sentenceScore, fits func([]string) bool) []string {
	ordered := make([]sentenceScore, len(scores))
	copy(ordered, scores)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].score > ordered[j].score
	})

	keep := make(map[int]bool)
	// First and last are always retained.
	keep[0] = true
	keep[len(sentences)-1] = true

	for _, candidate := range ordered {
		if keep[candidate.index] {
			continue
		}
		keep[candidate.index] = true
		if !fits(assemble(sentences, keep)) {
			delete(keep, candidate.index)
		}
	}

	return assemble(sentences, keep)
}

func assemble(sentences []string, keep map[int]bool) []string {
	out := make([]string, 0, len(keep))
	for i, s := range sentences {
		if keep[i] {
			out = append(out, s)
		}
	}
	return out
}

func collapseConnectives(text string) string {
	out := text
	for _, phrase := range redundantConnectives {
		replacement := connectiveReplacements[phrase]
		out = strings.ReplaceAll(out, phrase, replacement)
		out = strings.ReplaceAll(out, capitalizeFirst(phrase), replacement)
	}
	return strings.Join(strings.Fields(out), " ")
}

func capitalizeFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
