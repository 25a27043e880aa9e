package telerror

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestTelraamErrorInspector_IsAuthError(t *testing.T) {
	inspector := NewInspector()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "401 unauthorized",
			err:  errors.New("401 Unauthorized"),
			want: true,
		},
		{
			name: "403 forbidden",
			err:  errors.New("403 Forbidden"),
			want: true,
		},
		{
			name: "invalid api key",
			err:  errors.New("Invalid API key"),
			want: true,
		},
		{
			name: "wrapped auth error",
			err:  fmt.Errorf("failed to query: %w", errors.New("401 Unauthorized")),
			want: true,
		},
		{
			name: "not an auth error",
			err:  errors.New("something went wrong"),
			want: false,
		},
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := inspector.IsAuthError(tt.err); got != tt.want {
				t.Errorf("IsAuthError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTelraamErrorInspector_IsNotFoundError(t *testing.T) {
	inspector := NewInspector()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"404 not found", errors.New("404 Not Found"), true},
		{"segment not found", errors.New("Segment not found"), true},
		{"wrapped not found error", fmt.Errorf("failed to fetch: %w", errors.New("404 Not Found")), true},
		{"not a not found error", errors.New("internal server error"), false},
		{"nil error", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := inspector.IsNotFoundError(tt.err); got != tt.want {
				t.Errorf("IsNotFoundError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTelraamErrorInspector_IsRateLimitError(t *testing.T) {
	inspector := NewInspector()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limit exceeded", errors.New("API rate limit exceeded"), true},
		{"429 too many requests", errors.New("429 Too Many Requests"), true},
		{"too many requests text", errors.New("Too many requests, slow down"), true},
		{"not a rate limit error", errors.New("timeout occurred"), false},
		{"nil error", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := inspector.IsRateLimitError(tt.err); got != tt.want {
				t.Errorf("IsRateLimitError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTelraamErrorInspector_IsNetworkError(t *testing.T) {
	inspector := NewInspector()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"connection refused", errors.New("dial tcp 127.0.0.1:443: connection refused"), true},
		{"no such host", errors.New("dial tcp: lookup telraam-api.net: no such host"), true},
		{"timeout", errors.New("request timeout after 30s"), true},
		{"connection reset", errors.New("read: connection reset by peer"), true},
		{"unexpected eof", errors.New("unexpected EOF"), true},
		{"wrapped network error", fmt.Errorf("failed to connect: %w", errors.New("connection refused")), true},
		{"not a network error", errors.New("invalid json response"), false},
		{"nil error", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := inspector.IsNetworkError(tt.err); got != tt.want {
				t.Errorf("IsNetworkError() = %v, want %v", got, tt.want)
			}
		})
	}
}

// Custom error types for testing ErrorChainInspector
type statusError struct {
	status     int
	retryAfter time.Duration
}

func (e statusError) Error() string             { return fmt.Sprintf("status %d", e.status) }
func (e statusError) HTTPStatus() int           { return e.status }
func (e statusError) RetryAfter() time.Duration { return e.retryAfter }

type transportError struct{}

func (transportError) Error() string        { return "custom transport failure" }
func (transportError) IsRetryable() bool    { return true }
func (transportError) IsNetworkError() bool { return true }

type decodeError struct{}

func (decodeError) Error() string     { return "bad json at report[2].date" }
func (decodeError) IsRetryable() bool { return false }

func TestErrorChainInspector_IsRetryable(t *testing.T) {
	inspector := NewErrorChainInspector(NewInspector(), nil)

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"429 is retryable", statusError{status: 429}, true},
		{"502 is retryable", statusError{status: 502}, true},
		{"503 is retryable", statusError{status: 503}, true},
		{"504 is retryable", statusError{status: 504}, true},
		{"500 is not in the default set", statusError{status: 500}, false},
		{"401 is not retryable", statusError{status: 401}, false},
		{"404 is not retryable", statusError{status: 404}, false},
		{"400 is not retryable", statusError{status: 400}, false},
		{"wrapped 503", fmt.Errorf("chunk 2: %w", statusError{status: 503}), true},
		{"transport error", transportError{}, true},
		{"wrapped transport error", fmt.Errorf("attempt 1: %w", transportError{}), true},
		{"decode error", decodeError{}, false},
		{"context canceled", context.Canceled, false},
		{"deadline exceeded", fmt.Errorf("fetch: %w", context.DeadlineExceeded), false},
		{"falls back to string checking", errors.New("dial tcp: connection refused"), true},
		{"unknown error", errors.New("something odd"), false},
		{"nil error", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := inspector.IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestErrorChainInspector_CustomStatuses(t *testing.T) {
	inspector := NewErrorChainInspector(NewInspector(), []int{500, 503})

	if !inspector.IsRetryable(statusError{status: 500}) {
		t.Error("500 should be retryable when configured")
	}
	if inspector.IsRetryable(statusError{status: 429}) {
		t.Error("429 should not be retryable when absent from the configured set")
	}
}

func TestErrorChainInspector_EmptyStatuses(t *testing.T) {
	inspector := NewErrorChainInspector(NewInspector(), []int{})

	for _, status := range DefaultRetryableStatuses {
		if inspector.IsRetryable(statusError{status: status}) {
			t.Errorf("%d should not be retryable with an empty status set", status)
		}
	}
	if !inspector.IsRetryable(transportError{}) {
		t.Error("transport errors stay retryable with an empty status set")
	}
}

func TestErrorChainInspector(t *testing.T) {
	chainInspector := NewErrorChainInspector(NewInspector(), nil)

	tests := []struct {
		name   string
		err    error
		method string
		want   bool
	}{
		{"401 status is auth", statusError{status: 401}, "auth", true},
		{"403 status is auth", statusError{status: 403}, "auth", true},
		{"404 status is not auth", statusError{status: 404}, "auth", false},
		{"404 status is not found", fmt.Errorf("segment 9: %w", statusError{status: 404}), "notfound", true},
		{"429 status is rate limit", statusError{status: 429}, "ratelimit", true},
		{"status error is not network", statusError{status: 503}, "network", false},
		{"transport error is network", transportError{}, "network", true},
		{"falls back to string checking", errors.New("401 Unauthorized"), "auth", true},
		{"no match in chain or string", errors.New("some other error"), "auth", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got bool
			switch tt.method {
			case "auth":
				got = chainInspector.IsAuthError(tt.err)
			case "notfound":
				got = chainInspector.IsNotFoundError(tt.err)
			case "ratelimit":
				got = chainInspector.IsRateLimitError(tt.err)
			case "network":
				got = chainInspector.IsNetworkError(tt.err)
			}
			if got != tt.want {
				t.Errorf("ErrorChainInspector.%s() = %v, want %v", tt.method, got, tt.want)
			}
		})
	}
}

func TestRetryAfter(t *testing.T) {
	if d, ok := RetryAfter(fmt.Errorf("wrapped: %w", statusError{status: 429, retryAfter: 7 * time.Second})); !ok || d != 7*time.Second {
		t.Errorf("RetryAfter() = %v, %v, want 7s, true", d, ok)
	}
	if _, ok := RetryAfter(statusError{status: 503}); ok {
		t.Error("RetryAfter() should report no hint for a zero delay")
	}
	if _, ok := RetryAfter(errors.New("plain")); ok {
		t.Error("RetryAfter() should report no hint for untyped errors")
	}
}
