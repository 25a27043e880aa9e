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

// Package errors defines sentinel errors for consistent error handling across the application.
// These errors map to specific exit codes in the CLI for proper scripting support.
package errors

import "errors"

// Sentinel errors for consistent error handling and exit code mapping
var (
	// ErrInvalidToken indicates the Telraam API rejected the token.
	// Maps to exit code 2.
	ErrInvalidToken = errors.New("invalid telraam token")

	// ErrNotFound indicates the requested segment, camera or resource does not exist.
	// Maps to exit code 2.
	ErrNotFound = errors.New("resource not found")

	// ErrNetworkFailure indicates a network connection problem.
	// Maps to exit code 3.
	ErrNetworkFailure = errors.New("network connection failed")

	// ErrRateLimit indicates the Telraam API rate limit has been exceeded.
	// Maps to exit code 2.
	ErrRateLimit = errors.New("telraam rate limit exceeded")

	// ErrDecode indicates a response did not have the expected JSON shape.
	ErrDecode = errors.New("unexpected response shape")

	// ErrConsistency indicates the API returned data outside the requested bounds.
	ErrConsistency = errors.New("inconsistent response data")

	// ErrInvalidRange indicates a date range whose start is after its end.
	ErrInvalidRange = errors.New("invalid date range")

	// ErrPartialResult indicates some, but not all, chunks of a fetch failed.
	// Maps to exit code 4.
	ErrPartialResult = errors.New("partial result")

	// ErrNoData indicates every chunk of a fetch failed.
	ErrNoData = errors.New("no data obtained")
)
