package model

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/harunnryd/kangae/internal/errors"
	"github.com/harunnryd/kangae/internal/logger"
	"github.com/harunnryd/kangae/internal/model/contract"
)

// registration ties one endpoint to its place in the fallback order.
type registration struct {
	name     string
	endpoint *Endpoint
	priority int
	weight   float64
}

// ProviderDescriptor is the externally visible registry entry.
type ProviderDescriptor struct {
	Name                string       `json:"name"`
	Priority            int          `json:"priority"`
	Weight              float64      `json:"weight"`
	Health              HealthStatus `json:"health"`
	ConsecutiveFailures int          `json:"consecutiveFailures"`
	LastFailure         time.Time    `json:"lastFailure,omitempty"`
}

// Fallback routes each query to the best available endpoint: candidates
// are filtered by health, ordered by priority (weight breaks ties), and
// attempted one at a time until one succeeds.
type Fallback struct {
	mu      sync.RWMutex
	entries map[string]*registration
}

func NewFallback() *Fallback {
	return &Fallback{entries: make(map[string]*registration)}
}

// Register adds an endpoint under name. Registration is idempotent on
// name: re-registering replaces priority/weight but keeps one entry.
func (f *Fallback) Register(name string, endpoint *Endpoint, priority int, weight float64) {
	if weight <= 0 || weight > 1 {
		weight = 1.0
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.entries[name] = &registration{
		name:     name,
		endpoint: endpoint,
		priority: priority,
		weight:   weight,
	}
	slog.Debug("Provider registered", "name", name, "priority", priority, "weight", weight)
}

// Descriptors returns the registry contents sorted in selection order.
func (f *Fallback) Descriptors() []ProviderDescriptor {
	candidates := f.candidates(false)
	out := make([]ProviderDescriptor, 0, len(candidates))
	for _, c := range candidates {
		status, failures, lastFailure := c.endpoint.health.Snapshot()
		out = append(out, ProviderDescriptor{
			Name:                c.name,
			Priority:            c.priority,
			Weight:              c.weight,
			Health:              status,
			ConsecutiveFailures: failures,
			LastFailure:         lastFailure,
		})
	}
	return out
}

// Query attempts endpoints in selection order. On a terminal endpoint
// failure (after its own retries) the next candidate is tried. When every
// candidate fails the accumulated causes are returned as
// AllProvidersFailed. Caller cancellation aborts the current attempt and
// prevents further fallback.
func (f *Fallback) Query(ctx context.Context, req contract.CompletionRequest) (*contract.CompletionResponse, error) {
	candidates := f.candidates(true)
	traceID := logger.GetTraceID(ctx)
	problemID := logger.GetProblemID(ctx)

	if len(candidates) == 0 {
		slog.Warn("No available providers",
			"model", req.Model, "trace_id", traceID, "problem_id", problemID)
		return nil, &errors.AllProvidersFailedError{}
	}

	causes := make([]error, 0, len(candidates))
	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, errors.Canceled("fallback aborted by caller")
		}

		resp, err := candidate.endpoint.Query(ctx, req)
		if err == nil {
			return resp, nil
		}

		if ctx.Err() != nil || errors.IsKind(err, errors.ErrCanceled) {
			return nil, errors.Canceled("fallback aborted by caller")
		}

		causes = append(causes, err)
		slog.Warn("Provider exhausted, falling back",
			"endpoint", candidate.name, "error", err,
			"trace_id", traceID, "problem_id", problemID)
	}

	return nil, &errors.AllProvidersFailedError{Causes: causes}
}

// Embed routes an embedding request through the same selection order.
func (f *Fallback) Embed(ctx context.Context, text string) ([]float32, error) {
	candidates := f.candidates(true)
	if len(candidates) == 0 {
		return nil, &errors.AllProvidersFailedError{}
	}

	causes := make([]error, 0, len(candidates))
	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, errors.Canceled("embedding aborted by caller")
		}

		vec, err := candidate.endpoint.Embed(ctx, text)
		if err == nil {
			return vec, nil
		}
		causes = append(causes, err)
	}
	return nil, &errors.AllProvidersFailedError{Causes: causes}
}

// candidates snapshots registrations in selection order, optionally
// filtering out unhealthy endpoints.
func (f *Fallback) candidates(filterHealth bool) []*registration {
	f.mu.RLock()
	out := make([]*registration, 0, len(f.entries))
	for _, entry := range f.entries {
		out = append(out, entry)
	}
	f.mu.RUnlock()

	if filterHealth {
		kept := out[:0]
		for _, entry := range out {
			if entry.endpoint.Health() != Unhealthy {
				kept = append(kept, entry)
			}
		}
		out = kept
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].priority != out[j].priority {
			return out[i].priority > out[j].priority
		}
		if out[i].weight != out[j].weight {
			return out[i].weight > out[j].weight
		}
		return out[i].name < out[j].name
	})
	return out
}
