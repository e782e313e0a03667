package tool

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/harunnryd/kangae/internal/cache"
	"github.com/harunnryd/kangae/internal/engine"
	"github.com/harunnryd/kangae/internal/errors"
	"github.com/harunnryd/kangae/internal/logger"
	"github.com/harunnryd/kangae/internal/memory"
	"github.com/harunnryd/kangae/internal/model"
	"github.com/harunnryd/kangae/internal/model/contract"
	"github.com/harunnryd/kangae/internal/strategy"
	"github.com/harunnryd/kangae/internal/token"
)

const (
	generateNamespace = "generate"
	generateCacheTTL  = 30 * time.Minute

	// Thinking snapshots older than this are swept by maintenance.
	thinkingRetention = 7 * 24 * time.Hour
)

// Service is the tool surface: eight operations over the engine, the
// pipeline's shared collaborators, and the memory adapter. Dependencies
// are explicit; nothing here is a required singleton.
type Service struct {
	querier      model.Querier
	engine       *engine.Engine
	cache        *cache.Cache
	memory       *memory.Memory
	optimizer    *token.Optimizer
	history      *token.History
	thinkingDir  string
	defaultModel string
}

type Deps struct {
	Querier      model.Querier
	Engine       *engine.Engine
	Cache        *cache.Cache
	Memory       *memory.Memory
	Optimizer    *token.Optimizer
	History      *token.History
	ThinkingDir  string
	DefaultModel string
}

func NewService(deps Deps) *Service {
	return &Service{
		querier:      deps.Querier,
		engine:       deps.Engine,
		cache:        deps.Cache,
		memory:       deps.Memory,
		optimizer:    deps.Optimizer,
		history:      deps.History,
		thinkingDir:  deps.ThinkingDir,
		defaultModel: deps.DefaultModel,
	}
}

// GenerateInput is the argument object for Generate.
type GenerateInput struct {
	Prompt         string  `json:"prompt"`
	Model          string  `json:"model,omitempty"`
	MaxTokens      int     `json:"maxTokens,omitempty"`
	Temperature    float64 `json:"temperature,omitempty"`
	OptimizeTokens bool    `json:"optimizeTokens,omitempty"`
}

type GenerateOutput struct {
	Response     string         `json:"response"`
	ModelID      string         `json:"modelId"`
	TokenUsage   contract.Usage `json:"tokenUsage"`
	Optimization *token.Result  `json:"optimization,omitempty"`
	Cached       bool           `json:"cached"`
}

// Generate runs one completion through the fallback registry, consulting
// the cache first and feeding observed usage back into the estimator.
func (s *Service) Generate(ctx context.Context, in GenerateInput) (*GenerateOutput, error) {
	if strings.TrimSpace(in.Prompt) == "" {
		return nil, errors.InvalidRequest("prompt is empty")
	}
	ctx = logger.WithTraceID(ctx, ulid.Make().String())

	modelID := in.Model
	if modelID == "" {
		modelID = s.defaultModel
	}
	maxTokens := in.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	prompt := in.Prompt
	out := &GenerateOutput{ModelID: modelID}
	if in.OptimizeTokens && s.optimizer != nil {
		optimized := s.optimizer.Optimize(prompt, token.Context{
			AvailableTokens: maxTokens,
			ModelName:       modelID,
		})
		prompt = optimized.OptimizedText
		out.Optimization = &optimized
	}

	key := ""
	if s.cache != nil {
		key = cache.Key(generateNamespace, modelID, "", prompt, in.Temperature, maxTokens)
		if entry := s.cache.Get(generateNamespace, key); entry != nil {
			out.Response = entry.Value
			out.Cached = true
			return out, nil
		}
	}

	resp, err := s.querier.Query(ctx, contract.CompletionRequest{
		Model:       modelID,
		Messages:    []contract.Message{{Role: "user", Content: prompt}},
		Temperature: in.Temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return nil, err
	}

	if s.optimizer != nil && resp.Usage.PromptTokens > 0 {
		estimated := s.optimizer.Estimator().Estimate(prompt, modelID)
		if s.history != nil {
			s.history.RecordUsage(modelID, estimated, resp.Usage.PromptTokens)
		} else {
			s.optimizer.Estimator().Observe(modelID, estimated, resp.Usage.PromptTokens)
		}
	}
	if s.cache != nil {
		s.cache.Put(generateNamespace, key, resp.Content, generateCacheTTL)
	}

	out.Response = resp.Content
	out.TokenUsage = resp.Usage
	return out, nil
}

// ThinkingInput is the argument object for ThinkingProcess.
type ThinkingInput struct {
	Problem              string `json:"problem"`
	ThinkingModel        string `json:"thinkingModel,omitempty"`
	Strategy             string `json:"strategy,omitempty"`
	IncludeVisualization bool   `json:"includeVisualization,omitempty"`
	OptimizeTokens       bool   `json:"optimizeTokens,omitempty"`
}

type ThinkingOutput struct {
	Result        *engine.Result `json:"result"`
	Visualization string         `json:"visualization,omitempty"`
}

// ThinkingProcess drives the engine loop for one problem.
func (s *Service) ThinkingProcess(ctx context.Context, in ThinkingInput) (*ThinkingOutput, error) {
	ctx = logger.WithTraceID(ctx, ulid.Make().String())
	modelID := in.ThinkingModel
	if modelID == "" {
		modelID = s.defaultModel
	}

	result := s.engine.Process(ctx, in.Problem, strategy.Model{
		Name:       modelID,
		TokenLimit: strategy.TokenHigh,
		Complexity: strategy.ComplexityMedium,
	}, engine.ProcessOptions{
		Strategy:       in.Strategy,
		OptimizeTokens: in.OptimizeTokens,
	})

	out := &ThinkingOutput{Result: result}
	if in.IncludeVisualization {
		out.Visualization = renderSteps(result.Steps)
	}
	return out, nil
}

// StoreMemoryInput is the argument object for StoreMemory.
type StoreMemoryInput struct {
	Type        string   `json:"type"`
	Content     string   `json:"content"`
	Importance  float64  `json:"importance,omitempty"`
	Connections []string `json:"connections,omitempty"`
}

func (s *Service) StoreMemory(ctx context.Context, in StoreMemoryInput) (*memory.Item, error) {
	if s.memory == nil {
		return nil, errors.Internal("memory store not configured")
	}
	return s.memory.Store(ctx, in.Type, in.Content, in.Importance, in.Connections)
}

// RetrieveMemoryInput is the argument object for RetrieveMemory.
type RetrieveMemoryInput struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

func (s *Service) RetrieveMemory(ctx context.Context, in RetrieveMemoryInput) ([]memory.SearchResult, error) {
	if s.memory == nil {
		return nil, errors.Internal("memory store not configured")
	}
	return s.memory.Retrieve(ctx, in.Query, in.Limit)
}

// CheckCacheInput is the argument object for CheckCache.
type CheckCacheInput struct {
	Namespace string `json:"namespace"`
	Key       string `json:"key"`
}

// CheckCache returns the live entry or nil.
func (s *Service) CheckCache(in CheckCacheInput) *cache.Entry {
	if s.cache == nil {
		return nil
	}
	return s.cache.Get(in.Namespace, in.Key)
}

// StoreCacheInput is the argument object for StoreCache.
type StoreCacheInput struct {
	Namespace string        `json:"namespace"`
	Key       string        `json:"key"`
	Response  string        `json:"response"`
	TTL       time.Duration `json:"ttl,omitempty"`
}

func (s *Service) StoreCache(in StoreCacheInput) error {
	if s.cache == nil {
		return errors.Internal("cache not configured")
	}
	if in.Namespace == "" || in.Key == "" {
		return errors.InvalidRequest("namespace and key are required")
	}
	ttl := in.TTL
	if ttl <= 0 {
		ttl = generateCacheTTL
	}
	s.cache.Put(in.Namespace, in.Key, in.Response, ttl)
	return nil
}

// MaintenanceInput is the argument object for PerformMaintenance.
type MaintenanceInput struct {
	Systems []string `json:"systems"`
}

// PerformMaintenance sweeps the requested systems and reports removal
// counts per system. "all" expands to every known system.
func (s *Service) PerformMaintenance(ctx context.Context, in MaintenanceInput) (map[string]int, error) {
	systems := in.Systems
	for _, name := range systems {
		if name == "all" {
			systems = []string{"cache", "memory", "thinking", "optimization"}
			break
		}
	}

	removed := make(map[string]int)
	for _, name := range systems {
		switch name {
		case "cache":
			if s.cache != nil {
				removed[name] = s.cache.Maintenance()
			}
		case "memory":
			if s.memory != nil {
				n, err := s.memory.Maintenance(ctx)
				if err != nil {
					return removed, err
				}
				removed[name] = n
			}
		case "thinking":
			removed[name] = s.sweepThinking()
		case "optimization":
			if s.optimizer != nil {
				removed[name] = s.optimizer.ClearRecords()
			}
		default:
			return removed, errors.InvalidRequest(fmt.Sprintf("unknown maintenance system %q", name))
		}
	}
	return removed, nil
}

// EstimateTokensInput is the argument object for EstimateTokens.
type EstimateTokensInput struct {
	Text  string `json:"text"`
	Model string `json:"model,omitempty"`
}

type EstimateTokensOutput struct {
	Count int `json:"count"`
}

func (s *Service) EstimateTokens(in EstimateTokensInput) EstimateTokensOutput {
	if s.optimizer == nil {
		return EstimateTokensOutput{}
	}
	modelID := in.Model
	if modelID == "" {
		modelID = s.defaultModel
	}
	return EstimateTokensOutput{Count: s.optimizer.Estimator().Estimate(in.Text, modelID)}
}

// sweepThinking removes state snapshots past the retention window.
func (s *Service) sweepThinking() int {
	if s.thinkingDir == "" {
		return 0
	}
	entries, err := os.ReadDir(s.thinkingDir)
	if err != nil {
		return 0
	}

	cutoff := time.Now().Add(-thinkingRetention)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(s.thinkingDir, entry.Name())
		if err := os.Remove(path); err != nil {
			slog.Warn("Thinking snapshot removal failed", "path", path, "error", err)
			continue
		}
		removed++
	}
	return removed
}

func renderSteps(steps []*strategy.Step) string {
	if len(steps) == 0 {
		return "(no steps)"
	}
	var b strings.Builder
	for i, step := range steps {
		marker := "○"
		switch step.Status {
		case strategy.StatusCompleted:
			marker = "●"
		case strategy.StatusError:
			marker = "✗"
		}
		fmt.Fprintf(&b, "%s step %d: %s (confidence %.2f)\n", marker, i+1, step.Description, step.Confidence)
	}
	return strings.TrimRight(b.String(), "\n")
}
