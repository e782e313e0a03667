package model

import (
	"fmt"
	"log/slog"

	"github.com/harunnryd/kangae/internal/config"
	"github.com/harunnryd/kangae/internal/errors"
	anthropicProvider "github.com/harunnryd/kangae/internal/model/providers/anthropic"
	geminiProvider "github.com/harunnryd/kangae/internal/model/providers/gemini"
	openrouterProvider "github.com/harunnryd/kangae/internal/model/providers/openrouter"
)

// BuildFallback constructs the fallback registry from the configured
// provider entries. Entries that cannot be constructed are skipped with a
// warning; an empty result from a non-empty registry is an error.
func BuildFallback(cfg config.ModelsConfig) (*Fallback, error) {
	fallback := NewFallback()
	registered := 0

	for _, entry := range cfg.Registry {
		provider, err := createProvider(entry)
		if err != nil {
			slog.Warn("Failed to create provider", "provider", entry.Provider, "name", entry.Name, "error", err)
			continue
		}

		timeout, err := config.DurationOrDefault(entry.RequestTimeout, config.DefaultProviderRequestTimeout)
		if err != nil {
			slog.Warn("Invalid request timeout for provider", "name", entry.Name, "error", err)
			continue
		}

		endpoint := NewEndpoint(entry.Name, provider, EndpointConfig{
			RequestTimeout:  timeout,
			MaxRetries:      entry.MaxRetries,
			MaxInFlight:     entry.MaxInFlight,
			AdaptiveTimeout: entry.AdaptiveTimeout,
		})

		fallback.Register(entry.Name, endpoint, entry.Priority, entry.Weight)
		registered++
	}

	if registered == 0 && len(cfg.Registry) > 0 {
		return nil, errors.Internal("no providers initialized")
	}

	return fallback, nil
}

func createProvider(entry config.ModelRegistry) (Provider, error) {
	switch entry.Provider {
	case "openrouter":
		if entry.APIKey == "" {
			return nil, errors.InvalidRequest("API key required for OpenRouter provider")
		}
		return openrouterProvider.New(entry.APIKey, entry.BaseURL), nil

	case "anthropic":
		if entry.APIKey == "" {
			return nil, errors.InvalidRequest("API key required for Anthropic provider")
		}
		return anthropicProvider.New(entry.APIKey), nil

	case "gemini":
		if entry.APIKey == "" {
			return nil, errors.InvalidRequest("API key required for Gemini provider")
		}
		provider, err := geminiProvider.New(entry.APIKey)
		if err != nil {
			return nil, errors.WrapWithKind(err, "failed to create Gemini provider", errors.ErrInternal)
		}
		return provider, nil

	default:
		return nil, errors.InvalidRequest(fmt.Sprintf("unknown provider type: %s", entry.Provider))
	}
}
