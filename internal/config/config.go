package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/harunnryd/kangae/internal/pathutil"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/cobra"
)

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Models    ModelsConfig    `koanf:"models"`
	Engine    EngineConfig    `koanf:"engine"`
	Pipeline  PipelineConfig  `koanf:"pipeline"`
	Optimizer OptimizerConfig `koanf:"optimizer"`
	Cache     CacheConfig     `koanf:"cache"`
	Memory    MemoryConfig    `koanf:"memory"`
	Store     StoreConfig     `koanf:"store"`
	Scheduler SchedulerConfig `koanf:"scheduler"`
}

type ServerConfig struct {
	LogLevel string `koanf:"log_level"`
}

type ModelsConfig struct {
	Default   string          `koanf:"default"`
	Embedding string          `koanf:"embedding"`
	Registry  []ModelRegistry `koanf:"registry"`
}

// ModelRegistry describes one provider endpoint and its place in the
// fallback order. Higher priority is preferred; weight breaks ties.
type ModelRegistry struct {
	Name            string  `koanf:"name"`
	Provider        string  `koanf:"provider"`
	BaseURL         string  `koanf:"base_url"`
	APIKey          string  `koanf:"api_key"`
	Priority        int     `koanf:"priority"`
	Weight          float64 `koanf:"weight"`
	RequestTimeout  string  `koanf:"request_timeout"`
	MaxRetries      int     `koanf:"max_retries"`
	MaxInFlight     int     `koanf:"max_in_flight"`
	AdaptiveTimeout bool    `koanf:"adaptive_timeout"`
}

type EngineConfig struct {
	MaxStepsPerStrategy int     `koanf:"max_steps_per_strategy"`
	TokenBudget         int     `koanf:"token_budget"`
	StepTokenCap        int     `koanf:"step_token_cap"`
	StepTimeout         string  `koanf:"step_timeout"`
	ContextWindowSteps  int     `koanf:"context_window_steps"`
	OptimizationThresh  float64 `koanf:"optimization_threshold"`
}

type PipelineConfig struct {
	Enabled bool            `koanf:"enabled"`
	Stages  []PipelineStage `koanf:"stages"`
}

// PipelineStage binds one preprocessing service to a model and prompt.
type PipelineStage struct {
	Name         string  `koanf:"name"`
	Service      string  `koanf:"service"`
	Priority     int     `koanf:"priority"`
	Model        string  `koanf:"model"`
	SystemPrompt string  `koanf:"system_prompt"`
	Temperature  float64 `koanf:"temperature"`
	MaxTokens    int     `koanf:"max_tokens"`
	TopP         float64 `koanf:"top_p"`
	Timeout      string  `koanf:"timeout"`
}

type OptimizerConfig struct {
	HistoryPath string  `koanf:"history_path"`
	EMAAlpha    float64 `koanf:"ema_alpha"`
}

type CacheConfig struct {
	DefaultTTL  string `koanf:"default_ttl"`
	MaxEntries  int    `koanf:"max_entries"`
	TargetRatio string `koanf:"target_ratio"`
}

type MemoryConfig struct {
	CollectionName string `koanf:"collection_name"`
	DefaultLimit   int    `koanf:"default_limit"`
}

type StoreConfig struct {
	DataDir     string `koanf:"data_dir"`
	LockTimeout string `koanf:"lock_timeout"`
}

type SchedulerConfig struct {
	Enabled             bool   `koanf:"enabled"`
	MaintenanceSchedule string `koanf:"maintenance_schedule"`
	HealthSweepSchedule string `koanf:"health_sweep_schedule"`
}

const (
	DefaultServerLogLevel            = "info"
	DefaultModel                     = "google/gemini-2.0-flash-001"
	DefaultEmbeddingModel            = "openai/text-embedding-3-small"
	DefaultOpenRouterBaseURL         = "https://openrouter.ai/api/v1"
	DefaultProviderPriority          = 1
	DefaultProviderWeight            = 1.0
	DefaultProviderRequestTimeout    = "30s"
	DefaultProviderMaxRetries        = 3
	DefaultProviderMaxInFlight       = 8
	DefaultEngineMaxSteps            = 10
	DefaultEngineTokenBudget         = 8192
	DefaultEngineStepTokenCap        = 1000
	DefaultEngineStepTimeout         = "60s"
	DefaultEngineContextWindowSteps  = 3
	DefaultEngineOptimizationThresh  = 0.7
	DefaultOptimizerEMAAlpha         = 0.05
	DefaultCacheTTL                  = "1h"
	DefaultCacheMaxEntries           = 1000
	DefaultCacheTargetRatio          = "0.8"
	DefaultMemoryCollection          = "kangae-memory"
	DefaultMemoryRetrieveLimit       = 5
	DefaultStoreLockTimeout          = "30s"
	DefaultSchedulerMaintenanceCron  = "@every 10m"
	DefaultSchedulerHealthSweepCron  = "@every 1m"
	DefaultPipelineStageTemperature  = 0.7
	DefaultPipelineStageMaxTokens    = 2048
	DefaultPipelineStageTimeout      = "60s"
	DefaultPipelineAnalysisPrompt    = "Analyze the problem and produce a structured breakdown. Begin your answer with the marker given in the instructions."
	DefaultPipelineReasoningPrompt   = "Reason over the prior analysis step by step and refine it. Begin your answer with the marker given in the instructions."
	DefaultPipelineSynthesisPrompt   = "Synthesize the prior analyses into a single coherent answer."
	EnvOpenRouterAPIKey              = "OPENROUTER_API_KEY"
	EnvAnthropicAPIKey               = "ANTHROPIC_API_KEY"
	EnvGeminiAPIKey                  = "GEMINI_API_KEY"
	EnvStrategyFeedbackEnabled       = "STRATEGY_FEEDBACK_ENABLED"
	EnvDataDir                       = "MCP_DB_DIR"
	EnvTokenHistoryPath              = "MCP_TOKEN_HISTORY_PATH"
)

func Load(cmd *cobra.Command) (*Config, error) {
	k := koanf.New(".")

	// Hardcoded Defaults
	defaults := map[string]interface{}{
		"server.log_level": DefaultServerLogLevel,
		"models.default":   DefaultModel,
		"models.embedding": DefaultEmbeddingModel,
		"models.registry": []ModelRegistry{
			{Name: DefaultModel, Provider: "openrouter", Priority: 2, Weight: 1.0},
		},
		"engine.max_steps_per_strategy":   DefaultEngineMaxSteps,
		"engine.token_budget":             DefaultEngineTokenBudget,
		"engine.step_token_cap":           DefaultEngineStepTokenCap,
		"engine.step_timeout":             DefaultEngineStepTimeout,
		"engine.context_window_steps":     DefaultEngineContextWindowSteps,
		"engine.optimization_threshold":   DefaultEngineOptimizationThresh,
		"pipeline.enabled":                false,
		"optimizer.ema_alpha":             DefaultOptimizerEMAAlpha,
		"cache.default_ttl":               DefaultCacheTTL,
		"cache.max_entries":               DefaultCacheMaxEntries,
		"cache.target_ratio":              DefaultCacheTargetRatio,
		"memory.collection_name":          DefaultMemoryCollection,
		"memory.default_limit":            DefaultMemoryRetrieveLimit,
		"store.lock_timeout":              DefaultStoreLockTimeout,
		"scheduler.enabled":               true,
		"scheduler.maintenance_schedule":  DefaultSchedulerMaintenanceCron,
		"scheduler.health_sweep_schedule": DefaultSchedulerHealthSweepCron,
	}

	for key, value := range defaults {
		if err := k.Set(key, value); err != nil {
			return nil, err
		}
	}

	// Config File
	cfgPath := resolveConfigPath(cmd)
	if cfgPath != "" {
		if _, err := os.Stat(cfgPath); err == nil {
			if err := k.Load(file.Provider(cfgPath), yaml.Parser()); err != nil {
				return nil, err
			}
			slog.Debug("Config file loaded", "path", cfgPath)
		}
	}

	// Environment (KANGAE_SERVER_LOG_LEVEL -> server.log_level)
	if err := k.Load(env.Provider("KANGAE_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "KANGAE_")), "_", ".")
	}), nil); err != nil {
		return nil, err
	}

	// Flags
	if cmd != nil {
		if err := k.Load(posflag.Provider(cmd.Flags(), ".", k), nil); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

func resolveConfigPath(cmd *cobra.Command) string {
	if cmd != nil {
		if flagPath, err := cmd.Flags().GetString("config"); err == nil && flagPath != "" {
			expanded, err := pathutil.Expand(flagPath)
			if err == nil {
				return expanded
			}
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".kangae", "config.yaml")
}

// applyEnvOverrides layers the recognized process environment over the
// loaded configuration.
func applyEnvOverrides(cfg *Config) {
	if dir := strings.TrimSpace(os.Getenv(EnvDataDir)); dir != "" {
		cfg.Store.DataDir = dir
	}
	if path := strings.TrimSpace(os.Getenv(EnvTokenHistoryPath)); path != "" {
		cfg.Optimizer.HistoryPath = path
	}

	key := strings.TrimSpace(os.Getenv(EnvOpenRouterAPIKey))
	for i := range cfg.Models.Registry {
		entry := &cfg.Models.Registry[i]
		if entry.APIKey == "" && entry.Provider == "openrouter" {
			entry.APIKey = key
		}
		if entry.Priority == 0 {
			entry.Priority = DefaultProviderPriority
		}
		if entry.Weight <= 0 || entry.Weight > 1 {
			entry.Weight = DefaultProviderWeight
		}
	}
}

// StrategyFeedbackEnabled reports whether composite weighted strategies may
// modulate child selection by running success rate.
func StrategyFeedbackEnabled() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(EnvStrategyFeedbackEnabled)))
	return v == "1" || v == "true" || v == "yes"
}
