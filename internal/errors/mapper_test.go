package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapError_ClassifiesByMessage(t *testing.T) {
	m := NewDefaultMapper()

	cases := []struct {
		name string
		err  error
		kind error
	}{
		{"rate limit", errors.New("429 too many requests"), ErrRateLimited},
		{"auth", errors.New("401 unauthorized"), ErrAuthFailed},
		{"timeout", errors.New("request timeout while waiting"), ErrTimeout},
		{"server", errors.New("503 service unavailable"), ErrServerError},
		{"network", errors.New("dial tcp: connection refused"), ErrNetwork},
		{"parse", errors.New("cannot unmarshal string into int"), ErrParse},
		{"opaque", errors.New("something odd"), ErrInternal},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mapped := m.MapError(tc.err)
			assert.True(t, errors.Is(mapped, tc.kind), "got %v", mapped)
		})
	}
}

func TestMapError_PreservesClassifiedErrors(t *testing.T) {
	m := NewDefaultMapper()

	already := RateLimited("limiter full")
	assert.Equal(t, already, m.MapError(already))
}

func TestMapError_ContextCancellation(t *testing.T) {
	m := NewDefaultMapper()

	mapped := m.MapError(context.Canceled)
	assert.True(t, errors.Is(mapped, context.Canceled))
	assert.False(t, m.IsRetryable(mapped))
}

func TestIsRetryable(t *testing.T) {
	m := NewDefaultMapper()

	assert.True(t, m.IsRetryable(Timeout("slow provider")))
	assert.True(t, m.IsRetryable(RateLimited("burst")))
	assert.True(t, m.IsRetryable(fmt.Errorf("wrap: %w", ErrServerError)))
	assert.False(t, m.IsRetryable(InvalidRequest("bad payload")))
	assert.False(t, m.IsRetryable(Canceled("caller gone")))
	assert.False(t, m.IsRetryable(nil))
}

func TestKindNames(t *testing.T) {
	m := NewDefaultMapper()

	assert.Equal(t, "AllProvidersFailed", m.Kind(&AllProvidersFailedError{}))
	assert.Equal(t, "PipelineFailed", m.Kind(&PipelineFailedError{Stage: 2, Cause: ErrServerError}))
	assert.Equal(t, "BudgetExceeded", m.Kind(fmt.Errorf("step: %w", ErrBudgetExceeded)))
	assert.Equal(t, "Unknown", m.Kind(errors.New("mystery")))
}

func TestAllProvidersFailedError_Last(t *testing.T) {
	e := &AllProvidersFailedError{Causes: []error{ErrTimeout, ErrServerError}}
	assert.Equal(t, ErrServerError, e.Last())
	assert.Nil(t, (&AllProvidersFailedError{}).Last())
}
