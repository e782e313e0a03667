package model

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/harunnryd/kangae/internal/errors"
	"github.com/harunnryd/kangae/internal/model/contract"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func fastConfig() EndpointConfig {
	return EndpointConfig{
		RequestTimeout: time.Second,
		MaxRetries:     3,
		BackoffBase:    time.Millisecond,
	}
}

func testReq() contract.CompletionRequest {
	return contract.CompletionRequest{
		Model:    "test-model",
		Messages: []contract.Message{{Role: "user", Content: "hi"}},
	}
}

func TestEndpoint_RetriesTransientThenSucceeds(t *testing.T) {
	provider := NewMockProvider("p")
	provider.On("Generate", mock.Anything, mock.Anything).
		Return(nil, stderrors.New("503 service unavailable")).Twice()
	provider.On("Generate", mock.Anything, mock.Anything).
		Return(&contract.CompletionResponse{Content: "ok", Usage: contract.Usage{TotalTokens: 5}}, nil).Once()

	e := NewEndpoint("p", provider, fastConfig())

	resp, err := e.Query(context.Background(), testReq())
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, "test-model", resp.Model)
	assert.Equal(t, Healthy, e.Health(), "success restores health")
	provider.AssertNumberOfCalls(t, "Generate", 3)
}

func TestEndpoint_NonTransientSurfacesImmediately(t *testing.T) {
	provider := NewMockProvider("p")
	provider.On("Generate", mock.Anything, mock.Anything).
		Return(nil, stderrors.New("401 unauthorized")).Once()

	e := NewEndpoint("p", provider, fastConfig())

	_, err := e.Query(context.Background(), testReq())
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.ErrAuthFailed))
	provider.AssertNumberOfCalls(t, "Generate", 1)
}

func TestEndpoint_ExhaustedRetriesSurfaceLastError(t *testing.T) {
	provider := NewMockProvider("p")
	provider.On("Generate", mock.Anything, mock.Anything).
		Return(nil, stderrors.New("connection refused"))

	e := NewEndpoint("p", provider, fastConfig())

	_, err := e.Query(context.Background(), testReq())
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.ErrNetwork))
	provider.AssertNumberOfCalls(t, "Generate", 3)
}

func TestEndpoint_HealthTransitions(t *testing.T) {
	provider := NewMockProvider("p")
	provider.On("Generate", mock.Anything, mock.Anything).
		Return(nil, stderrors.New("timeout while waiting"))

	e := NewEndpoint("p", provider, fastConfig())

	// One exhausted call records three failures: degraded at 2.
	_, err := e.Query(context.Background(), testReq())
	require.Error(t, err)
	assert.Equal(t, Degraded, e.Health())

	// A second exhausted call crosses the unhealthy threshold.
	_, err = e.Query(context.Background(), testReq())
	require.Error(t, err)
	assert.Equal(t, Unhealthy, e.Health())
}

func TestEndpoint_CancellationAborts(t *testing.T) {
	provider := NewMockProvider("p")
	provider.On("Generate", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, context.Canceled)

	e := NewEndpoint("p", provider, fastConfig())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := e.Query(ctx, testReq())
	require.Error(t, err)
	assert.False(t, errors.IsKind(err, errors.ErrTimeout))
}

func TestEndpoint_LimiterRejectsExcessCalls(t *testing.T) {
	provider := NewMockProvider("p")
	release := make(chan struct{})
	provider.On("Generate", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { <-release }).
		Return(&contract.CompletionResponse{Content: "ok"}, nil)

	cfg := fastConfig()
	cfg.MaxInFlight = 1
	e := NewEndpoint("p", provider, cfg)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = e.Query(context.Background(), testReq())
	}()

	// Give the first call time to occupy the slot.
	time.Sleep(20 * time.Millisecond)

	_, err := e.Query(context.Background(), testReq())
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.ErrRateLimited))

	close(release)
	<-done
}

func TestEndpoint_AdaptiveTimeoutGrowsAndDecays(t *testing.T) {
	provider := NewMockProvider("p")
	provider.On("Generate", mock.Anything, mock.Anything).
		Return(&contract.CompletionResponse{Content: "ok", LatencyMs: 950}, nil).Once()
	provider.On("Generate", mock.Anything, mock.Anything).
		Return(&contract.CompletionResponse{Content: "ok", LatencyMs: 10}, nil)

	cfg := fastConfig()
	cfg.AdaptiveTimeout = true
	e := NewEndpoint("p", provider, cfg)

	_, err := e.Query(context.Background(), testReq())
	require.NoError(t, err)
	assert.Greater(t, e.attemptTimeout(), cfg.RequestTimeout, "slow success grows the deadline")

	for i := 0; i < 5; i++ {
		_, err = e.Query(context.Background(), testReq())
		require.NoError(t, err)
	}
	assert.Equal(t, cfg.RequestTimeout, e.attemptTimeout(), "fast successes decay to baseline")
}
