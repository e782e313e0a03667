package model

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/harunnryd/kangae/internal/concurrency"
	"github.com/harunnryd/kangae/internal/errors"
	"github.com/harunnryd/kangae/internal/logger"
	"github.com/harunnryd/kangae/internal/model/contract"
)

// EndpointConfig tunes a single endpoint's retry, timeout, and concurrency
// behavior.
type EndpointConfig struct {
	RequestTimeout  time.Duration
	MaxRetries      int
	MaxInFlight     int
	AdaptiveTimeout bool
	BackoffBase     time.Duration
}

const (
	defaultRequestTimeout  = 30 * time.Second
	defaultMaxRetries      = 3
	defaultMaxInFlight     = 8
	defaultBackoffBase     = time.Second
	adaptiveTimeoutGrowth  = 1.25
	adaptiveTimeoutCeiling = 4
	slowSuccessFraction    = 0.8
)

// Endpoint wraps a raw provider adapter with the per-endpoint policies:
// per-call deadline, bounded retries with exponential backoff and jitter,
// optional adaptive timeout, health tracking, and an in-flight limiter.
type Endpoint struct {
	name     string
	provider Provider
	mapper   errors.Mapper
	health   *HealthTracker
	limiter  *concurrency.Limiter

	cfg EndpointConfig

	mu             sync.Mutex
	currentTimeout time.Duration
}

func NewEndpoint(name string, provider Provider, cfg EndpointConfig) *Endpoint {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = defaultMaxInFlight
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = defaultBackoffBase
	}

	return &Endpoint{
		name:           name,
		provider:       provider,
		mapper:         errors.NewDefaultMapper(),
		health:         NewHealthTracker(),
		limiter:        concurrency.NewLimiter(cfg.MaxInFlight),
		cfg:            cfg,
		currentTimeout: cfg.RequestTimeout,
	}
}

func (e *Endpoint) Name() string { return e.name }

// Health returns the endpoint's tracked status.
func (e *Endpoint) Health() HealthStatus { return e.health.Status() }

// Query issues the request with retries. Transient failures (network,
// timeout, rate limit, 5xx) are retried up to MaxRetries; anything else
// surfaces immediately. The whole call is bounded by an overall deadline
// of twice the single-attempt timeout.
func (e *Endpoint) Query(ctx context.Context, req contract.CompletionRequest) (*contract.CompletionResponse, error) {
	if err := e.limiter.Acquire(); err != nil {
		return nil, err
	}
	defer e.limiter.Release()

	attemptTimeout := e.attemptTimeout()
	overallCtx, cancelOverall := context.WithTimeout(ctx, 2*attemptTimeout)
	defer cancelOverall()

	traceID := logger.GetTraceID(ctx)
	var lastErr error

	for attempt := 0; attempt < e.cfg.MaxRetries; attempt++ {
		if err := overallCtx.Err(); err != nil {
			return nil, e.wrapContextErr(err)
		}

		resp, err := e.attempt(overallCtx, req, attemptTimeout)
		if err == nil {
			e.health.RecordSuccess()
			e.adjustTimeout(resp.LatencyMs, attemptTimeout)
			slog.Debug("Provider query completed",
				"endpoint", e.name,
				"model", req.Model,
				"attempt", attempt+1,
				"latency_ms", resp.LatencyMs,
				"trace_id", traceID,
			)
			return resp, nil
		}

		mapped := e.mapper.MapError(err)
		lastErr = mapped
		e.health.RecordFailure()

		if !e.mapper.IsRetryable(mapped) {
			slog.Warn("Provider query failed terminally",
				"endpoint", e.name, "kind", e.mapper.Kind(mapped), "error", mapped, "trace_id", traceID)
			return nil, mapped
		}

		slog.Warn("Provider query failed, retrying",
			"endpoint", e.name, "attempt", attempt+1, "kind", e.mapper.Kind(mapped), "trace_id", traceID)

		if attempt < e.cfg.MaxRetries-1 {
			select {
			case <-overallCtx.Done():
				return nil, e.wrapContextErr(overallCtx.Err())
			case <-time.After(e.backoff(attempt)):
			}
		}
	}

	return nil, lastErr
}

// Embed forwards to the raw adapter under the endpoint's deadline.
func (e *Endpoint) Embed(ctx context.Context, text string) ([]float32, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.attemptTimeout())
	defer cancel()

	vec, err := e.provider.Embed(callCtx, text)
	if err != nil {
		return nil, e.mapper.MapError(err)
	}
	return vec, nil
}

func (e *Endpoint) attempt(ctx context.Context, req contract.CompletionRequest, timeout time.Duration) (*contract.CompletionResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	resp, err := e.provider.Generate(callCtx, req)
	if err != nil {
		return nil, err
	}
	if resp.LatencyMs == 0 {
		resp.LatencyMs = time.Since(start).Milliseconds()
	}
	if resp.Model == "" {
		resp.Model = req.Model
	}
	return resp, nil
}

func (e *Endpoint) attemptTimeout() time.Duration {
	if !e.cfg.AdaptiveTimeout {
		return e.cfg.RequestTimeout
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentTimeout
}

// adjustTimeout grows the deadline after a slow success and decays it back
// toward the baseline after a fast one, bounded by the ceiling.
func (e *Endpoint) adjustTimeout(latencyMs int64, used time.Duration) {
	if !e.cfg.AdaptiveTimeout {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	latency := time.Duration(latencyMs) * time.Millisecond
	ceiling := time.Duration(adaptiveTimeoutCeiling) * e.cfg.RequestTimeout

	if latency > time.Duration(float64(used)*slowSuccessFraction) {
		grown := time.Duration(float64(e.currentTimeout) * adaptiveTimeoutGrowth)
		if grown > ceiling {
			grown = ceiling
		}
		e.currentTimeout = grown
	} else if e.currentTimeout > e.cfg.RequestTimeout {
		decayed := time.Duration(float64(e.currentTimeout) / adaptiveTimeoutGrowth)
		if decayed < e.cfg.RequestTimeout {
			decayed = e.cfg.RequestTimeout
		}
		e.currentTimeout = decayed
	}
}

// backoff returns an exponential delay with jitter for the given attempt.
func (e *Endpoint) backoff(attempt int) time.Duration {
	base := e.cfg.BackoffBase << uint(attempt)
	jitter := time.Duration(rand.Int63n(int64(e.cfg.BackoffBase) + 1))
	return base + jitter
}

func (e *Endpoint) wrapContextErr(err error) error {
	if err == context.DeadlineExceeded {
		return errors.Timeout("provider call deadline exceeded")
	}
	return errors.Canceled("provider call canceled")
}
