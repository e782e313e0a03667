package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for the engine error taxonomy. Every boundary failure in
// the provider layer, engine, and orchestrator wraps exactly one of these.
var (
	// ErrCanceled - the caller's cancellation signal fired
	ErrCanceled = errors.New("canceled")

	// ErrTimeout - a per-call or per-step deadline expired
	ErrTimeout = errors.New("timeout")

	// ErrNetwork - transport-level failure reaching a provider
	ErrNetwork = errors.New("network error")

	// ErrRateLimited - provider returned 429 or the in-flight limiter rejected the call
	ErrRateLimited = errors.New("rate limited")

	// ErrAuthFailed - provider rejected credentials (401/403)
	ErrAuthFailed = errors.New("auth failed")

	// ErrInvalidRequest - malformed request rejected by a provider (4xx)
	ErrInvalidRequest = errors.New("invalid request")

	// ErrServerError - provider-side 5xx failure
	ErrServerError = errors.New("server error")

	// ErrParse - model output could not be parsed into the expected shape
	ErrParse = errors.New("parse error")

	// ErrAllProvidersFailed - the fallback registry exhausted every provider
	ErrAllProvidersFailed = errors.New("all providers failed")

	// ErrPipelineFailed - a pipeline stage exhausted its retry/fallback budget
	ErrPipelineFailed = errors.New("pipeline failed")

	// ErrBudgetExceeded - an operation would exceed its token budget
	ErrBudgetExceeded = errors.New("budget exceeded")

	// ErrInternal - unclassified internal failure
	ErrInternal = errors.New("internal error")
)

// AllProvidersFailedError carries the per-provider causes accumulated while
// the fallback registry walked its candidate list.
type AllProvidersFailedError struct {
	Causes []error
}

func (e *AllProvidersFailedError) Error() string {
	return fmt.Sprintf("all providers failed (%d attempted)", len(e.Causes))
}

func (e *AllProvidersFailedError) Unwrap() error { return ErrAllProvidersFailed }

// Last returns the final provider's terminal error, or nil.
func (e *AllProvidersFailedError) Last() error {
	if len(e.Causes) == 0 {
		return nil
	}
	return e.Causes[len(e.Causes)-1]
}

// PipelineFailedError records the one-based index of the offending stage.
type PipelineFailedError struct {
	Stage int
	Name  string
	Cause error
}

func (e *PipelineFailedError) Error() string {
	return fmt.Sprintf("pipeline failed at stage %d (%s): %v", e.Stage, e.Name, e.Cause)
}

func (e *PipelineFailedError) Unwrap() error { return ErrPipelineFailed }

// Wrap wraps an error with context while preserving its category.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// WrapWithKind wraps an error message under a specific taxonomy kind.
func WrapWithKind(err error, message string, kind error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s (%v): %w", message, err, kind)
}

// IsKind checks whether an error belongs to a taxonomy kind.
func IsKind(err error, kind error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, kind)
}

// Canceled wraps a message as a cancellation.
func Canceled(message string) error {
	return fmt.Errorf("%s: %w", message, ErrCanceled)
}

// Timeout wraps a message as a deadline failure.
func Timeout(message string) error {
	return fmt.Errorf("%s: %w", message, ErrTimeout)
}

// RateLimited wraps a message as a rate-limit rejection.
func RateLimited(message string) error {
	return fmt.Errorf("%s: %w", message, ErrRateLimited)
}

// InvalidRequest wraps a message as a request validation failure.
func InvalidRequest(message string) error {
	return fmt.Errorf("%s: %w", message, ErrInvalidRequest)
}

// Parse wraps a message as a model-output parse failure.
func Parse(message string) error {
	return fmt.Errorf("%s: %w", message, ErrParse)
}

// Internal wraps a message as an internal error.
func Internal(message string) error {
	return fmt.Errorf("%s: %w", message, ErrInternal)
}
