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
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"
)

// sleepRecorder replaces real sleeping in tests.
type sleepRecorder struct {
	delays []time.Duration
}

func (s *sleepRecorder) Sleep(ctx context.Context, d time.Duration) error {
	s.delays = append(s.delays, d)
	return ctx.Err()
}

func testRetryConfig(maxAttempts int) *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       maxAttempts,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        10 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func newTestRetrier(maxAttempts int) (*Retrier, *sleepRecorder) {
	rec := &sleepRecorder{}
	r := NewRetrier(testRetryConfig(maxAttempts))
	r.Sleep = rec.Sleep
	return r, rec
}

func TestRetryConfig_Backoff(t *testing.T) {
	cfg := &RetryConfig{
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        time.Second,
		BackoffMultiplier: 2.0,
	}

	tests := []struct {
		failed int
		want   time.Duration
	}{
		{0, 0},
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second},
		{50, time.Second},
	}

	for _, tt := range tests {
		if got := cfg.Backoff(tt.failed); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.failed, got, tt.want)
		}
		if again := cfg.Backoff(tt.failed); again != cfg.Backoff(tt.failed) {
			t.Errorf("Backoff(%d) is not deterministic", tt.failed)
		}
	}
}

func TestRetrier_TransientThenSuccess(t *testing.T) {
	tests := []struct {
		name             string
		failures         int
		maxAttempts      int
		expectError      bool
		expectedAttempts int
	}{
		{
			name:             "succeeds immediately",
			failures:         0,
			maxAttempts:      4,
			expectedAttempts: 1,
		},
		{
			name:             "succeeds after one retry",
			failures:         1,
			maxAttempts:      4,
			expectedAttempts: 2,
		},
		{
			name:             "succeeds on the last attempt",
			failures:         3,
			maxAttempts:      4,
			expectedAttempts: 4,
		},
		{
			name:             "fails after max attempts",
			failures:         10,
			maxAttempts:      4,
			expectError:      true,
			expectedAttempts: 4,
		},
		{
			name:             "single attempt allowed",
			failures:         10,
			maxAttempts:      1,
			expectError:      true,
			expectedAttempts: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, rec := newTestRetrier(tt.maxAttempts)

			calls := 0
			transient := &TransportError{Method: http.MethodPost, Path: "reports/traffic", Err: errors.New("connection reset by peer")}
			res := r.Run(context.Background(), func(ctx context.Context) error {
				calls++
				if calls <= tt.failures {
					return transient
				}
				return nil
			}, nil)

			if calls != tt.expectedAttempts {
				t.Errorf("calls = %d, want %d", calls, tt.expectedAttempts)
			}
			if res.Attempts != tt.expectedAttempts {
				t.Errorf("Attempts = %d, want %d", res.Attempts, tt.expectedAttempts)
			}
			if tt.expectError {
				if res.State != StateFailedTerminal {
					t.Errorf("State = %v, want failed", res.State)
				}
				if !errors.Is(res.Err, transient) {
					t.Errorf("Err = %v, want the last transient error", res.Err)
				}
			} else {
				if res.State != StateSucceeded || res.Err != nil {
					t.Errorf("result = %+v, want success", res)
				}
			}

			if len(rec.delays) != tt.expectedAttempts-1 {
				t.Fatalf("slept %d times, want %d", len(rec.delays), tt.expectedAttempts-1)
			}
			for i, d := range rec.delays {
				if want := r.Config().Backoff(i + 1); d != want {
					t.Errorf("delay %d = %v, want %v", i, d, want)
				}
			}
		})
	}
}

func TestRetrier_NonRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"unauthorized", &APIError{StatusCode: http.StatusUnauthorized, Message: "Invalid API key"}},
		{"forbidden", &HTTPError{StatusCode: http.StatusForbidden}},
		{"not found", &APIError{StatusCode: http.StatusNotFound, Message: "not found"}},
		{"server error outside the set", &HTTPError{StatusCode: http.StatusInternalServerError}},
		{"decode error", &DecodeError{Field: "report[0].date", Err: errMissing}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, rec := newTestRetrier(5)

			var failures []AttemptFailure
			res := r.Run(context.Background(), func(ctx context.Context) error {
				return tt.err
			}, func(f AttemptFailure) { failures = append(failures, f) })

			if res.Attempts != 1 {
				t.Errorf("Attempts = %d, want 1", res.Attempts)
			}
			if res.Err != tt.err {
				t.Errorf("Err = %v, want %v", res.Err, tt.err)
			}
			if len(rec.delays) != 0 {
				t.Errorf("slept %d times, want 0", len(rec.delays))
			}
			if len(failures) != 1 || !failures[0].Final {
				t.Errorf("failures = %+v, want one final failure", failures)
			}
		})
	}
}

func TestRetrier_RetryableStatuses(t *testing.T) {
	for _, status := range []int{429, 502, 503, 504} {
		r, _ := newTestRetrier(3)
		calls := 0
		r.Run(context.Background(), func(ctx context.Context) error {
			calls++
			return &HTTPError{StatusCode: status}
		}, nil)
		if calls != 3 {
			t.Errorf("status %d: calls = %d, want 3", status, calls)
		}
	}

	cfg := testRetryConfig(3)
	cfg.RetryableStatuses = []int{500}
	r := NewRetrier(cfg)
	r.Sleep = (&sleepRecorder{}).Sleep
	calls := 0
	r.Run(context.Background(), func(ctx context.Context) error {
		calls++
		return &APIError{StatusCode: 500, Message: "internal"}
	}, nil)
	if calls != 3 {
		t.Errorf("configured status 500: calls = %d, want 3", calls)
	}
}

func TestRetrier_EmptyStatusesDisableStatusRetries(t *testing.T) {
	cfg := testRetryConfig(3)
	cfg.RetryableStatuses = []int{}
	r := NewRetrier(cfg)
	rec := &sleepRecorder{}
	r.Sleep = rec.Sleep

	res := r.Run(context.Background(), func(ctx context.Context) error {
		return &HTTPError{StatusCode: http.StatusServiceUnavailable}
	}, nil)
	if res.Attempts != 1 {
		t.Errorf("attempts = %d, want 1", res.Attempts)
	}
	if res.State != StateFailedTerminal {
		t.Errorf("state = %v, want %v", res.State, StateFailedTerminal)
	}
	if len(rec.delays) != 0 {
		t.Errorf("delays = %v, want none", rec.delays)
	}

	calls := 0
	r.Run(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return &TransportError{Method: http.MethodPost, Path: "reports/traffic", Err: errors.New("connection reset")}
		}
		return nil
	}, nil)
	if calls != 3 {
		t.Errorf("transport failures: calls = %d, want 3", calls)
	}
}

func TestRetrier_RetryAfterOverridesBackoff(t *testing.T) {
	r, rec := newTestRetrier(2)

	r.Run(context.Background(), func(ctx context.Context) error {
		return &APIError{StatusCode: http.StatusTooManyRequests, Message: "slow down", Retry: 7 * time.Second}
	}, nil)

	if len(rec.delays) != 1 || rec.delays[0] != 7*time.Second {
		t.Errorf("delays = %v, want [7s]", rec.delays)
	}
}

func TestRetrier_ContextCanceled(t *testing.T) {
	r := NewRetrier(testRetryConfig(5))

	ctx, cancel := context.WithCancel(context.Background())
	r.Sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}

	calls := 0
	res := r.Run(ctx, func(ctx context.Context) error {
		calls++
		return &HTTPError{StatusCode: http.StatusServiceUnavailable}
	}, nil)

	if !errors.Is(res.Err, context.Canceled) {
		t.Errorf("Err = %v, want context.Canceled", res.Err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}

	calls = 0
	res = r.Run(ctx, func(ctx context.Context) error {
		calls++
		return nil
	}, nil)
	if calls != 0 || !errors.Is(res.Err, context.Canceled) {
		t.Errorf("pre-cancelled run: calls = %d, err = %v", calls, res.Err)
	}
}

func TestRetrier_Warnings(t *testing.T) {
	r, _ := newTestRetrier(2)
	var buf bytes.Buffer
	r.Warnings = &buf

	r.Run(context.Background(), func(ctx context.Context) error {
		return &APIError{StatusCode: http.StatusTooManyRequests, Message: "slow down"}
	}, nil)

	if !strings.Contains(buf.String(), "Rate limit hit") || !strings.Contains(buf.String(), "attempt 1/2") {
		t.Errorf("unexpected warnings %q", buf.String())
	}
}

func TestStateString(t *testing.T) {
	for state, want := range map[State]string{
		StatePending:        "pending",
		StateRetrying:       "retrying",
		StateSucceeded:      "succeeded",
		StateFailedTerminal: "failed",
		State(42):           "State(42)",
	} {
		if got := state.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", int(state), got, want)
		}
	}
}

func TestRetryClient(t *testing.T) {
	mock := NewMockClient()
	failures := 2
	mock.TrafficFunc = func(ctx context.Context, req TrafficRequest) ([]Report, error) {
		if failures > 0 {
			failures--
			return nil, &HTTPError{StatusCode: http.StatusBadGateway}
		}
		return ReportsInWindow(mock.Reports, req.TimeStart, req.TimeEnd), nil
	}

	r, _ := newTestRetrier(4)
	client := NewRetryClient(mock, r)

	start := mock.Reports[0].Date
	reports, err := client.Traffic(context.Background(), TrafficRequest{ID: "348917", TimeStart: start, TimeEnd: start.Add(5 * time.Hour)})
	if err != nil {
		t.Fatalf("Traffic() error = %v", err)
	}
	if len(reports) != 5 {
		t.Errorf("got %d reports, want 5", len(reports))
	}
	if mock.Calls() != 3 {
		t.Errorf("calls = %d, want 3", mock.Calls())
	}
}

func TestRetryClient_AuthFailsOnce(t *testing.T) {
	mock := NewMockClientWithOptions(WithAuthFailure())
	r, _ := newTestRetrier(4)
	client := NewRetryClient(mock, r)

	if _, err := client.Welcome(context.Background()); err == nil {
		t.Fatal("expected auth error")
	}
	if _, err := client.Segment(context.Background(), "348917"); err == nil {
		t.Fatal("expected auth error")
	}
	if mock.Calls() != 2 {
		t.Errorf("calls = %d, want 2 (one per operation)", mock.Calls())
	}
}
