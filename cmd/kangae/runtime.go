package main

import (
	"fmt"
	"strconv"

	"github.com/harunnryd/kangae/internal/cache"
	"github.com/harunnryd/kangae/internal/config"
	"github.com/harunnryd/kangae/internal/engine"
	"github.com/harunnryd/kangae/internal/memory"
	"github.com/harunnryd/kangae/internal/model"
	"github.com/harunnryd/kangae/internal/scheduler"
	"github.com/harunnryd/kangae/internal/store"
	"github.com/harunnryd/kangae/internal/token"
	"github.com/harunnryd/kangae/internal/tool"
)

// components holds the wired runtime: every dependency is constructed
// here once and passed down explicitly.
type components struct {
	dataRoot  string
	estimator *token.Estimator
	history   *token.History
	optimizer *token.Optimizer
	cache     *cache.Cache
	fallback  *model.Fallback
	engine    *engine.Engine
	memory    *memory.Memory
	service   *tool.Service
	scheduler *scheduler.Scheduler
}

// buildComponents wires the runtime from configuration. Remote-facing
// commands must call requireAPIKey first.
func buildComponents(cfg *config.Config) (*components, error) {
	dataRoot, err := store.EnsureLayout(cfg.Store.DataDir)
	if err != nil {
		return nil, fmt.Errorf("%w: data layout: %v", errConfig, err)
	}

	alpha := cfg.Optimizer.EMAAlpha
	if alpha <= 0 || alpha >= 1 {
		alpha = config.DefaultOptimizerEMAAlpha
	}
	estimator := token.NewEstimator(alpha)

	historyPath := cfg.Optimizer.HistoryPath
	if historyPath == "" {
		historyPath, err = store.TokenHistoryPath(dataRoot)
		if err != nil {
			return nil, fmt.Errorf("%w: token history path: %v", errConfig, err)
		}
	}
	history := token.NewHistory(historyPath, estimator)
	if err := history.Load(); err != nil {
		return nil, fmt.Errorf("%w: token history: %v", errConfig, err)
	}
	optimizer := token.NewOptimizer(estimator)

	cacheDir, err := store.CacheDir(dataRoot)
	if err != nil {
		return nil, fmt.Errorf("%w: cache dir: %v", errConfig, err)
	}
	targetRatio, err := strconv.ParseFloat(cfg.Cache.TargetRatio, 64)
	if err != nil || targetRatio <= 0 || targetRatio > 1 {
		targetRatio = 0.8
	}
	maxEntries := cfg.Cache.MaxEntries
	if maxEntries <= 0 {
		maxEntries = config.DefaultCacheMaxEntries
	}
	sharedCache := cache.New(maxEntries, targetRatio, cache.WithSnapshotDir(cacheDir))

	fallback, err := model.BuildFallback(cfg.Models)
	if err != nil {
		return nil, fmt.Errorf("%w: provider registry: %v", errConfig, err)
	}

	thinkingDir, err := store.ThinkingDir(dataRoot)
	if err != nil {
		return nil, fmt.Errorf("%w: thinking dir: %v", errConfig, err)
	}
	eng := engine.New(fallback,
		engine.WithOptimizer(optimizer),
		engine.WithCache(sharedCache),
		engine.WithThinkingDir(thinkingDir),
	)

	memoryDir, err := store.MemoryDir(dataRoot)
	if err != nil {
		return nil, fmt.Errorf("%w: memory dir: %v", errConfig, err)
	}
	mem, err := memory.New(memoryDir, fallback)
	if err != nil {
		return nil, fmt.Errorf("open memory store: %w", err)
	}

	service := tool.NewService(tool.Deps{
		Querier:      fallback,
		Engine:       eng,
		Cache:        sharedCache,
		Memory:       mem,
		Optimizer:    optimizer,
		History:      history,
		ThinkingDir:  thinkingDir,
		DefaultModel: cfg.Models.Default,
	})

	return &components{
		dataRoot:  dataRoot,
		estimator: estimator,
		history:   history,
		optimizer: optimizer,
		cache:     sharedCache,
		fallback:  fallback,
		engine:    eng,
		memory:    mem,
		service:   service,
		scheduler: scheduler.New(service, fallback, history, cfg.Scheduler),
	}, nil
}

// requireAPIKey guards remote-facing commands: at least one registry
// entry must carry a key, normally supplied through OPENROUTER_API_KEY.
func requireAPIKey(cfg *config.Config) error {
	for _, entry := range cfg.Models.Registry {
		if entry.APIKey != "" {
			return nil
		}
	}
	return fmt.Errorf("%w: set %s", errMissingEnv, config.EnvOpenRouterAPIKey)
}
