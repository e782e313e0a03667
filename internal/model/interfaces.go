package model

import (
	"context"

	"github.com/harunnryd/kangae/internal/model/contract"
)

// Provider is one remote model endpoint adapter.
type Provider interface {
	Generate(ctx context.Context, req contract.CompletionRequest) (*contract.CompletionResponse, error)
	Embed(ctx context.Context, text string) ([]float32, error)
	Name() string
}

// Querier is the surface the engine and orchestrator depend on. Both the
// single Endpoint and the Fallback registry satisfy it.
type Querier interface {
	Query(ctx context.Context, req contract.CompletionRequest) (*contract.CompletionResponse, error)
}
