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
	"context"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/paulmach/orb"
	"golang.org/x/time/rate"

	"github.com/sirseerhq/telraam-relay/internal/telerror"
)

// RetryConfig configures the retry behavior for API calls
type RetryConfig struct {
	// MaxAttempts is the total number of attempts, the first one included
	MaxAttempts int
	// InitialBackoff is the delay after the first failed attempt
	InitialBackoff time.Duration
	// MaxBackoff caps the computed delay
	MaxBackoff time.Duration
	// BackoffMultiplier is the multiplier for exponential backoff
	BackoffMultiplier float64
	// RetryableStatuses are the HTTP statuses treated as transient. Nil
	// means telerror.DefaultRetryableStatuses; empty retries no status.
	RetryableStatuses []int
}

// DefaultRetryConfig returns the default retry configuration
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       4,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
		RetryableStatuses: telerror.DefaultRetryableStatuses,
	}
}

// Backoff returns the delay after the given number of failed attempts:
// InitialBackoff * BackoffMultiplier^(failed-1), capped at MaxBackoff.
// It depends on nothing but its inputs.
func (c *RetryConfig) Backoff(failed int) time.Duration {
	if failed < 1 {
		return 0
	}
	mult := c.BackoffMultiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(c.InitialBackoff) * math.Pow(mult, float64(failed-1))
	if c.MaxBackoff > 0 && d > float64(c.MaxBackoff) {
		return c.MaxBackoff
	}
	if d > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

func (c *RetryConfig) maxAttempts() int {
	if c.MaxAttempts < 1 {
		return 1
	}
	return c.MaxAttempts
}

// State is the position of one retried operation in its lifecycle.
type State int

const (
	StatePending State = iota
	StateRetrying
	StateSucceeded
	StateFailedTerminal
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRetrying:
		return "retrying"
	case StateSucceeded:
		return "succeeded"
	case StateFailedTerminal:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// AttemptFailure describes a failed attempt. Delay is the wait before the
// next attempt, zero when no retry follows.
type AttemptFailure struct {
	Attempt int
	Err     error
	Delay   time.Duration
	Final   bool
}

// RetryResult is the terminal state of Retrier.Run.
type RetryResult struct {
	State    State
	Attempts int
	Err      error
}

// Retrier drives an operation through Pending, Retrying, Succeeded and
// FailedTerminal. It holds no per-operation state and may be shared.
type Retrier struct {
	config    *RetryConfig
	inspector telerror.Inspector

	// Limiter, if set, paces every attempt.
	Limiter *rate.Limiter
	// Sleep waits between attempts. Tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
	// Warnings receives one line per retry. Defaults to io.Discard.
	Warnings io.Writer
}

// NewRetrier creates a Retrier with the given configuration
func NewRetrier(config *RetryConfig) *Retrier {
	if config == nil {
		config = DefaultRetryConfig()
	}
	return &Retrier{
		config:    config,
		inspector: telerror.NewErrorChainInspector(telerror.NewInspector(), config.RetryableStatuses),
		Sleep:     sleepContext,
		Warnings:  io.Discard,
	}
}

// Config returns the retry configuration.
func (r *Retrier) Config() *RetryConfig {
	return r.config
}

// Run calls op until it succeeds, fails with a non-retryable error, or has
// used MaxAttempts attempts. onFailure, if non-nil, is told about every
// failed attempt. A cancelled context ends the run with the context error.
func (r *Retrier) Run(ctx context.Context, op func(ctx context.Context) error, onFailure func(AttemptFailure)) RetryResult {
	state := StatePending
	attempt := 0
	var lastErr error

	for {
		switch state {
		case StatePending, StateRetrying:
			if err := ctx.Err(); err != nil {
				return RetryResult{State: StateFailedTerminal, Attempts: attempt, Err: err}
			}
			if r.Limiter != nil {
				if err := r.Limiter.Wait(ctx); err != nil {
					if ctxErr := ctx.Err(); ctxErr != nil {
						err = ctxErr
					}
					return RetryResult{State: StateFailedTerminal, Attempts: attempt, Err: err}
				}
			}

			attempt++
			err := op(ctx)
			if err == nil {
				state = StateSucceeded
				continue
			}
			lastErr = err
			if ctxErr := ctx.Err(); ctxErr != nil {
				return RetryResult{State: StateFailedTerminal, Attempts: attempt, Err: ctxErr}
			}

			if !r.inspector.IsRetryable(err) || attempt >= r.config.maxAttempts() {
				if onFailure != nil {
					onFailure(AttemptFailure{Attempt: attempt, Err: err, Final: true})
				}
				state = StateFailedTerminal
				continue
			}

			delay := r.delay(attempt, err)
			if onFailure != nil {
				onFailure(AttemptFailure{Attempt: attempt, Err: err, Delay: delay})
			}
			r.warn(err, attempt, delay)

			if err := r.sleep(ctx, delay); err != nil {
				return RetryResult{State: StateFailedTerminal, Attempts: attempt, Err: err}
			}
			state = StateRetrying

		case StateSucceeded:
			return RetryResult{State: StateSucceeded, Attempts: attempt}

		case StateFailedTerminal:
			return RetryResult{State: StateFailedTerminal, Attempts: attempt, Err: lastErr}
		}
	}
}

// delay prefers the server's Retry-After hint over the computed backoff.
func (r *Retrier) delay(failed int, err error) time.Duration {
	if hint, ok := telerror.RetryAfter(err); ok {
		return hint
	}
	return r.config.Backoff(failed)
}

func (r *Retrier) warn(err error, attempt int, delay time.Duration) {
	w := r.Warnings
	if w == nil {
		return
	}
	if r.inspector.IsRateLimitError(err) {
		fmt.Fprintf(w, "Rate limit hit. Waiting %v before retry (attempt %d/%d)\n",
			delay, attempt, r.config.maxAttempts())
		return
	}
	fmt.Fprintf(w, "Request failed: %v. Retrying in %v (attempt %d/%d)\n",
		err, delay, attempt, r.config.maxAttempts())
}

func (r *Retrier) sleep(ctx context.Context, d time.Duration) error {
	if r.Sleep == nil {
		return sleepContext(ctx, d)
	}
	return r.Sleep(ctx, d)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RetryClient wraps a Client so every single call goes through a Retrier.
type RetryClient struct {
	client  Client
	retrier *Retrier
}

// NewRetryClient creates a new RetryClient. A nil retrier uses the default
// configuration.
func NewRetryClient(client Client, retrier *Retrier) *RetryClient {
	if retrier == nil {
		retrier = NewRetrier(nil)
	}
	return &RetryClient{client: client, retrier: retrier}
}

func retryCall[T any](ctx context.Context, r *Retrier, fn func(context.Context) (T, error)) (T, error) {
	var out T
	res := r.Run(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	}, nil)
	if res.Err != nil {
		var zero T
		return zero, res.Err
	}
	return out, nil
}

// Welcome implements the Client interface with retry logic
func (r *RetryClient) Welcome(ctx context.Context) (Status, error) {
	return retryCall(ctx, r.retrier, r.client.Welcome)
}

// Traffic implements the Client interface with retry logic
func (r *RetryClient) Traffic(ctx context.Context, req TrafficRequest) ([]Report, error) {
	return retryCall(ctx, r.retrier, func(ctx context.Context) ([]Report, error) {
		return r.client.Traffic(ctx, req)
	})
}

// TrafficSnapshotLive implements the Client interface with retry logic
func (r *RetryClient) TrafficSnapshotLive(ctx context.Context) (*SnapshotSet, error) {
	return retryCall(ctx, r.retrier, r.client.TrafficSnapshotLive)
}

// Cameras implements the Client interface with retry logic
func (r *RetryClient) Cameras(ctx context.Context) ([]Camera, error) {
	return retryCall(ctx, r.retrier, r.client.Cameras)
}

// CamerasBySegment implements the Client interface with retry logic
func (r *RetryClient) CamerasBySegment(ctx context.Context, segmentID string) ([]Camera, error) {
	return retryCall(ctx, r.retrier, func(ctx context.Context) ([]Camera, error) {
		return r.client.CamerasBySegment(ctx, segmentID)
	})
}

// CameraByMAC implements the Client interface with retry logic
func (r *RetryClient) CameraByMAC(ctx context.Context, mac int64) ([]Camera, error) {
	return retryCall(ctx, r.retrier, func(ctx context.Context) ([]Camera, error) {
		return r.client.CameraByMAC(ctx, mac)
	})
}

// Segment implements the Client interface with retry logic
func (r *RetryClient) Segment(ctx context.Context, id string) (*Segment, error) {
	return retryCall(ctx, r.retrier, func(ctx context.Context) (*Segment, error) {
		return r.client.Segment(ctx, id)
	})
}

// AllSegments implements the Client interface with retry logic
func (r *RetryClient) AllSegments(ctx context.Context) (*SegmentSet, error) {
	return retryCall(ctx, r.retrier, r.client.AllSegments)
}

// ActiveSegments implements the Client interface with retry logic
func (r *RetryClient) ActiveSegments(ctx context.Context, bound *orb.Bound) (*SegmentSet, error) {
	return retryCall(ctx, r.retrier, func(ctx context.Context) (*SegmentSet, error) {
		return r.client.ActiveSegments(ctx, bound)
	})
}
