package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultModel, cfg.Models.Default)
	assert.Equal(t, DefaultEngineMaxSteps, cfg.Engine.MaxStepsPerStrategy)
	assert.Equal(t, DefaultEngineTokenBudget, cfg.Engine.TokenBudget)
	assert.Equal(t, DefaultCacheMaxEntries, cfg.Cache.MaxEntries)
	assert.False(t, cfg.Pipeline.Enabled)
	assert.True(t, cfg.Scheduler.Enabled)
	require.Len(t, cfg.Models.Registry, 1)
	assert.Equal(t, "openrouter", cfg.Models.Registry[0].Provider)
	assert.Equal(t, 2, cfg.Models.Registry[0].Priority)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv(EnvDataDir, "/tmp/kangae-data")
	t.Setenv(EnvTokenHistoryPath, "/tmp/kangae-data/token_history/token_metrics.json")
	t.Setenv(EnvOpenRouterAPIKey, "sk-or-test")

	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/kangae-data", cfg.Store.DataDir)
	assert.Equal(t, "/tmp/kangae-data/token_history/token_metrics.json", cfg.Optimizer.HistoryPath)
	assert.Equal(t, "sk-or-test", cfg.Models.Registry[0].APIKey)
}

func TestStrategyFeedbackEnabled(t *testing.T) {
	t.Setenv(EnvStrategyFeedbackEnabled, "true")
	assert.True(t, StrategyFeedbackEnabled())

	t.Setenv(EnvStrategyFeedbackEnabled, "0")
	assert.False(t, StrategyFeedbackEnabled())
}

func TestDurationOrDefault(t *testing.T) {
	d, err := DurationOrDefault("", "30s")
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, d)

	d, err = DurationOrDefault("2m", "30s")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, d)

	_, err = DurationOrDefault("nonsense", "30s")
	assert.Error(t, err)

	_, err = DurationOrDefault("-5s", "30s")
	assert.Error(t, err)
}
