package telerror

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
)

// DefaultRetryableStatuses are the HTTP status codes treated as transient.
var DefaultRetryableStatuses = []int{
	http.StatusTooManyRequests,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
}

// Inspector provides methods for analyzing Telraam API errors.
type Inspector interface {
	// IsAuthError returns true if the error represents an authentication or authorization failure.
	IsAuthError(err error) bool

	// IsNotFoundError returns true if the error represents a resource not found error.
	IsNotFoundError(err error) bool

	// IsRateLimitError returns true if the error represents a rate limit error.
	IsRateLimitError(err error) bool

	// IsNetworkError returns true if the error represents a network connectivity error.
	IsNetworkError(err error) bool

	// IsRetryable returns true if repeating the same request may succeed.
	IsRetryable(err error) bool
}

// TelraamErrorInspector implements the Inspector interface by looking at
// error messages. It is the fallback for errors that carry no type information.
type TelraamErrorInspector struct{}

// NewInspector creates a new TelraamErrorInspector.
func NewInspector() Inspector {
	return &TelraamErrorInspector{}
}

// IsAuthError checks if the error is an authentication or authorization error.
func (i *TelraamErrorInspector) IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "401") ||
		strings.Contains(errStr, "403") ||
		strings.Contains(errStr, "unauthorized") ||
		strings.Contains(errStr, "forbidden") ||
		strings.Contains(errStr, "invalid api key")
}

// IsNotFoundError checks if the error is a not found error.
func (i *TelraamErrorInspector) IsNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "404") ||
		strings.Contains(errStr, "not found")
}

// IsRateLimitError checks if the error is a rate limit error.
func (i *TelraamErrorInspector) IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "too many requests")
}

// IsNetworkError checks if the error is a network connectivity error.
func (i *TelraamErrorInspector) IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "temporary failure") ||
		strings.Contains(errStr, "dial tcp") ||
		strings.Contains(errStr, "tls handshake") ||
		strings.Contains(errStr, "unexpected eof") ||
		strings.Contains(errStr, "network is unreachable")
}

// IsRetryable reports network and rate limit errors as retryable.
func (i *TelraamErrorInspector) IsRetryable(err error) bool {
	return i.IsNetworkError(err) || i.IsRateLimitError(err)
}

// ErrorChainInspector wraps a base inspector and adds support for checking errors
// in the error chain using errors.As. Typed errors describe themselves through
// small interfaces; anything else falls back to the base inspector.
type ErrorChainInspector struct {
	base      Inspector
	retryable map[int]bool
}

// NewErrorChainInspector creates a new ErrorChainInspector that checks both
// the error chain and falls back to string-based inspection. The status codes
// listed are retryable. A nil list means DefaultRetryableStatuses; an empty
// one retries no status at all.
func NewErrorChainInspector(base Inspector, retryableStatuses []int) Inspector {
	if retryableStatuses == nil {
		retryableStatuses = DefaultRetryableStatuses
	}
	set := make(map[int]bool, len(retryableStatuses))
	for _, code := range retryableStatuses {
		set[code] = true
	}
	return &ErrorChainInspector{base: base, retryable: set}
}

type statusCoder interface{ HTTPStatus() int }

type retryabler interface{ IsRetryable() bool }

type networker interface{ IsNetworkError() bool }

type retryAfterer interface{ RetryAfter() time.Duration }

// IsAuthError checks the error chain first, then falls back to base inspector.
func (e *ErrorChainInspector) IsAuthError(err error) bool {
	var sc statusCoder
	if errors.As(err, &sc) {
		return sc.HTTPStatus() == http.StatusUnauthorized || sc.HTTPStatus() == http.StatusForbidden
	}
	return e.base.IsAuthError(err)
}

// IsNotFoundError checks the error chain first, then falls back to base inspector.
func (e *ErrorChainInspector) IsNotFoundError(err error) bool {
	var sc statusCoder
	if errors.As(err, &sc) {
		return sc.HTTPStatus() == http.StatusNotFound
	}
	return e.base.IsNotFoundError(err)
}

// IsRateLimitError checks the error chain first, then falls back to base inspector.
func (e *ErrorChainInspector) IsRateLimitError(err error) bool {
	var sc statusCoder
	if errors.As(err, &sc) {
		return sc.HTTPStatus() == http.StatusTooManyRequests
	}
	return e.base.IsRateLimitError(err)
}

// IsNetworkError checks the error chain first, then falls back to base inspector.
func (e *ErrorChainInspector) IsNetworkError(err error) bool {
	var ne networker
	if errors.As(err, &ne) {
		return ne.IsNetworkError()
	}
	var sc statusCoder
	if errors.As(err, &sc) {
		return false
	}
	return e.base.IsNetworkError(err)
}

// IsRetryable decides whether a request should be repeated. Status-bearing
// errors are retryable only when their status is in the configured set.
// Cancellation is never retryable.
func (e *ErrorChainInspector) IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var sc statusCoder
	if errors.As(err, &sc) {
		return e.retryable[sc.HTTPStatus()]
	}
	var r retryabler
	if errors.As(err, &r) {
		return r.IsRetryable()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return e.base.IsRetryable(err)
}

// RetryAfter extracts a server-provided retry delay from the error chain.
func RetryAfter(err error) (time.Duration, bool) {
	var ra retryAfterer
	if errors.As(err, &ra) && ra.RetryAfter() > 0 {
		return ra.RetryAfter(), true
	}
	return 0, false
}
