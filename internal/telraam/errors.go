// Copyright 2025 SirSeer, LLC
//
// Licensed under the Business Source License 1.1 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://mariadb.com/bsl11
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package telraam

import (
	"fmt"
	"net/http"
	"time"

	relaierrors "github.com/sirseerhq/telraam-relay/internal/errors"
)

// TransportError is a failure before any HTTP response was received:
// connection refused, DNS failure, timeout, or a truncated body.
type TransportError struct {
	Method string
	Path   string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Is matches relaierrors.ErrNetworkFailure.
func (e *TransportError) Is(target error) bool {
	return target == relaierrors.ErrNetworkFailure
}

// IsRetryable is always true for transport failures.
func (e *TransportError) IsRetryable() bool { return true }

// IsNetworkError is always true for transport failures.
func (e *TransportError) IsNetworkError() bool { return true }

// HTTPError is a non-2xx response whose body could not be decoded as a
// Telraam status.
type HTTPError struct {
	StatusCode int
	Retry      time.Duration
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("telraam API returned HTTP %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// HTTPStatus returns the response status code.
func (e *HTTPError) HTTPStatus() int { return e.StatusCode }

// RetryAfter returns the server's Retry-After hint, zero if none.
func (e *HTTPError) RetryAfter() time.Duration { return e.Retry }

// Is maps well-known statuses to sentinel errors.
func (e *HTTPError) Is(target error) bool {
	return statusIs(e.StatusCode, target)
}

// APIError is a structured error decoded from a Telraam response, either
// from a non-2xx body or from a 2xx body whose status_code signals failure.
type APIError struct {
	StatusCode int
	Message    string
	Code       string
	Retry      time.Duration
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("telraam API error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("telraam API error %d: %s", e.StatusCode, e.Message)
}

// HTTPStatus returns the status code reported by the API.
func (e *APIError) HTTPStatus() int { return e.StatusCode }

// RetryAfter returns the server's Retry-After hint, zero if none.
func (e *APIError) RetryAfter() time.Duration { return e.Retry }

// Is maps well-known statuses to sentinel errors.
func (e *APIError) Is(target error) bool {
	return statusIs(e.StatusCode, target)
}

func statusIs(status int, target error) bool {
	switch target {
	case relaierrors.ErrInvalidToken:
		return status == http.StatusUnauthorized || status == http.StatusForbidden
	case relaierrors.ErrNotFound:
		return status == http.StatusNotFound
	case relaierrors.ErrRateLimit:
		return status == http.StatusTooManyRequests
	}
	return false
}

// DecodeError reports a response that did not match the expected shape.
// Field is a path such as "report[3].date"; "$" is the document root.
type DecodeError struct {
	Field string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Field, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Is matches relaierrors.ErrDecode.
func (e *DecodeError) Is(target error) bool {
	return target == relaierrors.ErrDecode
}

// IsRetryable is always false; a contract change does not heal on retry.
func (e *DecodeError) IsRetryable() bool { return false }

// ConsistencyError reports buckets that violate the requested bounds or
// ordering.
type ConsistencyError struct {
	Chunk  int
	Index  int
	Date   time.Time
	Reason string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("chunk %d, report %d at %s: %s", e.Chunk, e.Index, e.Date.UTC().Format(time.RFC3339), e.Reason)
}

// Is matches relaierrors.ErrConsistency.
func (e *ConsistencyError) Is(target error) bool {
	return target == relaierrors.ErrConsistency
}

// IsRetryable is always false.
func (e *ConsistencyError) IsRetryable() bool { return false }
