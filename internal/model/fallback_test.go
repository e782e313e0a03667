package model

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/harunnryd/kangae/internal/errors"
	"github.com/harunnryd/kangae/internal/model/contract"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestEndpoint(name string, provider Provider) *Endpoint {
	return NewEndpoint(name, provider, fastConfig())
}

func TestFallback_HigherPriorityFailsOverToLower(t *testing.T) {
	// Provider A times out through all its retries; B answers once.
	providerA := NewMockProvider("a")
	providerA.On("Generate", mock.Anything, mock.Anything).
		Return(nil, stderrors.New("request timeout"))

	providerB := NewMockProvider("b")
	providerB.On("Generate", mock.Anything, mock.Anything).
		Return(&contract.CompletionResponse{Content: "from-b"}, nil).Once()

	endpointA := newTestEndpoint("a", providerA)
	endpointB := newTestEndpoint("b", providerB)

	f := NewFallback()
	f.Register("a", endpointA, 2, 1.0)
	f.Register("b", endpointB, 1, 1.0)

	resp, err := f.Query(context.Background(), testReq())
	require.NoError(t, err)
	assert.Equal(t, "from-b", resp.Content)

	providerB.AssertNumberOfCalls(t, "Generate", 1)
	assert.Equal(t, Degraded, endpointA.Health())
}

func TestFallback_AllFail(t *testing.T) {
	providerA := NewMockProvider("a")
	providerA.On("Generate", mock.Anything, mock.Anything).
		Return(nil, stderrors.New("503 service unavailable"))
	providerB := NewMockProvider("b")
	providerB.On("Generate", mock.Anything, mock.Anything).
		Return(nil, stderrors.New("connection refused"))

	f := NewFallback()
	f.Register("a", newTestEndpoint("a", providerA), 2, 1.0)
	f.Register("b", newTestEndpoint("b", providerB), 1, 1.0)

	_, err := f.Query(context.Background(), testReq())
	require.Error(t, err)

	var apf *errors.AllProvidersFailedError
	require.True(t, stderrors.As(err, &apf))
	assert.Len(t, apf.Causes, 2)
	assert.True(t, errors.IsKind(apf.Last(), errors.ErrNetwork))
}

func TestFallback_SkipsUnhealthyWithoutIO(t *testing.T) {
	provider := NewMockProvider("a")
	endpoint := newTestEndpoint("a", provider)
	for i := 0; i < 4; i++ {
		endpoint.health.RecordFailure()
	}
	require.Equal(t, Unhealthy, endpoint.Health())

	f := NewFallback()
	f.Register("a", endpoint, 1, 1.0)

	_, err := f.Query(context.Background(), testReq())
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.ErrAllProvidersFailed))
	provider.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestFallback_RegisterIsIdempotentOnName(t *testing.T) {
	provider := NewMockProvider("a")
	endpoint := newTestEndpoint("a", provider)

	f := NewFallback()
	f.Register("a", endpoint, 1, 0.5)
	f.Register("a", endpoint, 3, 0.9)

	descriptors := f.Descriptors()
	require.Len(t, descriptors, 1)
	assert.Equal(t, 3, descriptors[0].Priority)
	assert.Equal(t, 0.9, descriptors[0].Weight)
}

func TestFallback_SelectionOrder(t *testing.T) {
	f := NewFallback()
	f.Register("low", newTestEndpoint("low", NewMockProvider("low")), 1, 1.0)
	f.Register("high", newTestEndpoint("high", NewMockProvider("high")), 5, 0.2)
	f.Register("mid-light", newTestEndpoint("mid-light", NewMockProvider("mid-light")), 3, 0.3)
	f.Register("mid-heavy", newTestEndpoint("mid-heavy", NewMockProvider("mid-heavy")), 3, 0.8)

	descriptors := f.Descriptors()
	names := make([]string, len(descriptors))
	for i, d := range descriptors {
		names[i] = d.Name
	}
	assert.Equal(t, []string{"high", "mid-heavy", "mid-light", "low"}, names)
}

func TestFallback_SingleProviderDegeneratesToDirect(t *testing.T) {
	provider := NewMockProvider("only")
	provider.On("Generate", mock.Anything, mock.Anything).
		Return(&contract.CompletionResponse{Content: "direct"}, nil).Once()

	f := NewFallback()
	f.Register("only", newTestEndpoint("only", provider), 1, 1.0)

	resp, err := f.Query(context.Background(), testReq())
	require.NoError(t, err)
	assert.Equal(t, "direct", resp.Content)
}

func TestFallback_CancellationPreventsFurtherAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	providerA := NewMockProvider("a")
	providerA.On("Generate", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { cancel() }).
		Return(nil, context.Canceled)

	providerB := NewMockProvider("b")

	f := NewFallback()
	f.Register("a", newTestEndpoint("a", providerA), 2, 1.0)
	f.Register("b", newTestEndpoint("b", providerB), 1, 1.0)

	_, err := f.Query(ctx, testReq())
	require.Error(t, err)
	providerB.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestFallback_EmptyRegistry(t *testing.T) {
	f := NewFallback()
	_, err := f.Query(context.Background(), testReq())
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.ErrAllProvidersFailed))
}
