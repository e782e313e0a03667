package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/harunnryd/kangae/internal/cache"
	"github.com/harunnryd/kangae/internal/errors"
	"github.com/harunnryd/kangae/internal/logger"
	"github.com/harunnryd/kangae/internal/model"
	"github.com/harunnryd/kangae/internal/model/contract"
)

const (
	cacheNamespace  = "pipeline"
	defaultCacheTTL = 30 * time.Minute
)

// Stage is one (provider, model, prompt) unit in the ordered sequence.
// Each stage carries its own querier so stages can target different
// providers or share one fallback registry.
type Stage struct {
	Name         string
	Querier      model.Querier
	ModelID      string
	SystemPrompt string
	Temperature  float64
	MaxTokens    int
}

// StageRecord is the accounting entry for one executed stage.
type StageRecord struct {
	StageName  string         `json:"stageName"`
	ModelID    string         `json:"modelId"`
	TokenUsage contract.Usage `json:"tokenUsage"`
	ResultText string         `json:"resultText"`
	ElapsedMs  int64          `json:"elapsedMs"`
}

// Result is the outcome of a full pipeline run. On failure the records of
// the stages completed before the failing one are still returned.
type Result struct {
	FinalResult string        `json:"finalResult"`
	TotalTokens int           `json:"totalTokens"`
	Stages      []StageRecord `json:"stages"`
}

// Options tunes one orchestrator. The zero value is usable.
type Options struct {
	// AnnotateSteps prefixes each stage's output with a STEP n ANALYSIS
	// marker before threading it into the next stage.
	AnnotateSteps bool
	// Cache, when set, is consulted before each stage's provider call.
	Cache *cache.Cache
	// Clock overrides time measurement in tests.
	Clock func() time.Time
}

// Orchestrator executes a fixed, ordered stage sequence, threading each
// stage's output into the next stage's user message. Construct a fresh
// orchestrator per request; it holds no shared state.
type Orchestrator struct {
	stages []Stage
	opts   Options
	now    func() time.Time
}

// New is the single constructor: stages carry their own provider and
// model bindings, options carry everything else.
func New(stages []Stage, opts Options) *Orchestrator {
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{stages: stages, opts: opts, now: now}
}

// Run executes the stages strictly in order. No stage starts until the
// previous one completed. On stage failure the run aborts with
// PipelineFailed carrying the one-based stage index; the partial result
// holds every record accumulated before the failure.
func (o *Orchestrator) Run(ctx context.Context, input string) (*Result, error) {
	result := &Result{}
	traceID := logger.GetTraceID(ctx)
	current := input

	for i, stage := range o.stages {
		if err := ctx.Err(); err != nil {
			return result, errors.Canceled(fmt.Sprintf("pipeline aborted before stage %d", i+1))
		}

		started := o.now()
		text, usage, err := o.runStage(ctx, stage, current)
		if err != nil {
			if ctx.Err() != nil || errors.IsKind(err, errors.ErrCanceled) {
				return result, errors.Canceled(fmt.Sprintf("pipeline aborted at stage %d", i+1))
			}
			slog.Warn("Pipeline stage failed",
				"stage", i+1, "name", stage.Name, "error", err, "trace_id", traceID)
			return result, &errors.PipelineFailedError{Stage: i + 1, Name: stage.Name, Cause: err}
		}

		result.Stages = append(result.Stages, StageRecord{
			StageName:  stage.Name,
			ModelID:    stage.ModelID,
			TokenUsage: usage,
			ResultText: text,
			ElapsedMs:  o.now().Sub(started).Milliseconds(),
		})
		result.TotalTokens += usage.TotalTokens
		result.FinalResult = text

		current = text
		if o.opts.AnnotateSteps {
			current = fmt.Sprintf("STEP %d ANALYSIS:\n%s", i+1, text)
		}
		slog.Debug("Pipeline stage completed",
			"stage", i+1, "name", stage.Name, "tokens", usage.TotalTokens, "trace_id", traceID)
	}

	return result, nil
}

// runStage consults the cache, then dispatches the two-message prompt to
// the stage's querier. Successful responses are cached under the stage's
// full request identity.
func (o *Orchestrator) runStage(ctx context.Context, stage Stage, input string) (string, contract.Usage, error) {
	key := ""
	if o.opts.Cache != nil {
		key = cache.Key(cacheNamespace, stage.ModelID, stage.SystemPrompt, input, stage.Temperature, stage.MaxTokens)
		if entry := o.opts.Cache.Get(cacheNamespace, key); entry != nil {
			return entry.Value, contract.Usage{}, nil
		}
	}

	resp, err := stage.Querier.Query(ctx, contract.CompletionRequest{
		Model:       stage.ModelID,
		Messages:    contract.SystemAndUser(stage.SystemPrompt, input),
		Temperature: stage.Temperature,
		MaxTokens:   stage.MaxTokens,
	})
	if err != nil {
		return "", contract.Usage{}, err
	}

	text := strings.TrimSpace(resp.Content)
	if o.opts.Cache != nil {
		o.opts.Cache.Put(cacheNamespace, key, text, defaultCacheTTL)
	}
	return text, resp.Usage, nil
}
