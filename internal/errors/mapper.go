package errors

import (
	"context"
	"errors"
	"net"
	"strings"
)

// Mapper maps external errors to the engine error taxonomy.
type Mapper interface {
	MapError(err error) error
	IsRetryable(err error) bool
	Kind(err error) string
}

// DefaultMapper classifies transport and SDK errors by sentinel first,
// falling back to message-content heuristics for opaque errors.
type DefaultMapper struct{}

func NewDefaultMapper() *DefaultMapper {
	return &DefaultMapper{}
}

// MapError maps an external error into the taxonomy.
func (m *DefaultMapper) MapError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.Canceled) {
		return Wrap(err, "request canceled")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return WrapWithKind(err, "request timed out", ErrTimeout)
	}

	// Already classified.
	for _, kind := range []error{
		ErrCanceled, ErrTimeout, ErrNetwork, ErrRateLimited, ErrAuthFailed,
		ErrInvalidRequest, ErrServerError, ErrParse, ErrAllProvidersFailed,
		ErrPipelineFailed, ErrBudgetExceeded, ErrInternal,
	} {
		if errors.Is(err, kind) {
			return err
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return WrapWithKind(err, "network timeout", ErrTimeout)
		}
		return WrapWithKind(err, "network failure", ErrNetwork)
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "rate limit"), strings.Contains(errStr, "quota"),
		strings.Contains(errStr, "too many requests"), strings.Contains(errStr, "429"):
		return WrapWithKind(err, "rate limited", ErrRateLimited)

	case strings.Contains(errStr, "unauthorized"), strings.Contains(errStr, "forbidden"),
		strings.Contains(errStr, "invalid api key"), strings.Contains(errStr, "401"),
		strings.Contains(errStr, "403"):
		return WrapWithKind(err, "authentication failed", ErrAuthFailed)

	case strings.Contains(errStr, "timeout"), strings.Contains(errStr, "deadline exceeded"):
		return WrapWithKind(err, "request timed out", ErrTimeout)

	case strings.Contains(errStr, "bad request"), strings.Contains(errStr, "invalid request"),
		strings.Contains(errStr, "400"):
		return WrapWithKind(err, "request rejected", ErrInvalidRequest)

	case strings.Contains(errStr, "internal server error"), strings.Contains(errStr, "bad gateway"),
		strings.Contains(errStr, "service unavailable"), strings.Contains(errStr, "502"),
		strings.Contains(errStr, "503"), strings.Contains(errStr, "500"):
		return WrapWithKind(err, "provider server error", ErrServerError)

	case strings.Contains(errStr, "connection"), strings.Contains(errStr, "network"),
		strings.Contains(errStr, "unreachable"), strings.Contains(errStr, "no such host"):
		return WrapWithKind(err, "network failure", ErrNetwork)

	case strings.Contains(errStr, "unmarshal"), strings.Contains(errStr, "invalid json"),
		strings.Contains(errStr, "malformed"):
		return WrapWithKind(err, "response parse failure", ErrParse)

	default:
		return WrapWithKind(err, "provider request failed", ErrInternal)
	}
}

// IsRetryable reports whether an error is a transient category worth retrying.
func (m *DefaultMapper) IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrCanceled) {
		return false
	}
	return errors.Is(err, ErrNetwork) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrServerError)
}

// Kind returns the taxonomy name for an error.
func (m *DefaultMapper) Kind(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrCanceled), errors.Is(err, context.Canceled):
		return "Canceled"
	case errors.Is(err, ErrTimeout):
		return "Timeout"
	case errors.Is(err, ErrNetwork):
		return "Network"
	case errors.Is(err, ErrRateLimited):
		return "RateLimited"
	case errors.Is(err, ErrAuthFailed):
		return "AuthFailed"
	case errors.Is(err, ErrInvalidRequest):
		return "InvalidRequest"
	case errors.Is(err, ErrServerError):
		return "ServerError"
	case errors.Is(err, ErrParse):
		return "Parse"
	case errors.Is(err, ErrAllProvidersFailed):
		return "AllProvidersFailed"
	case errors.Is(err, ErrPipelineFailed):
		return "PipelineFailed"
	case errors.Is(err, ErrBudgetExceeded):
		return "BudgetExceeded"
	case errors.Is(err, ErrInternal):
		return "Internal"
	default:
		return "Unknown"
	}
}
