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

package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sirseerhq/telraam-relay/internal/telraam"
	"github.com/sirseerhq/telraam-relay/internal/timerange"
)

// DefaultMaxSpan is the longest window the traffic endpoint serves in one
// request (three months).
const DefaultMaxSpan = 90 * 24 * time.Hour

// Observer is told about chunk progress. Implementations must be safe for
// concurrent use when Options.Concurrency is above one.
type Observer interface {
	ChunkStarted(c timerange.Chunk)
	AttemptFailed(c timerange.Chunk, f telraam.AttemptFailure)
	ChunkFinished(c timerange.Chunk, attempts, reports int, err error)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) ChunkStarted(timerange.Chunk)                          {}
func (NopObserver) AttemptFailed(timerange.Chunk, telraam.AttemptFailure) {}
func (NopObserver) ChunkFinished(timerange.Chunk, int, int, error)        {}

type multiObserver []Observer

// Observers fans events out to several observers in order.
func Observers(obs ...Observer) Observer {
	return multiObserver(obs)
}

func (m multiObserver) ChunkStarted(c timerange.Chunk) {
	for _, o := range m {
		o.ChunkStarted(c)
	}
}

func (m multiObserver) AttemptFailed(c timerange.Chunk, f telraam.AttemptFailure) {
	for _, o := range m {
		o.AttemptFailed(c, f)
	}
}

func (m multiObserver) ChunkFinished(c timerange.Chunk, attempts, reports int, err error) {
	for _, o := range m {
		o.ChunkFinished(c, attempts, reports, err)
	}
}

// Options configures a Fetcher.
type Options struct {
	// MaxSpan is the longest chunk. Defaults to DefaultMaxSpan.
	MaxSpan time.Duration
	// Concurrency is the number of chunks fetched at once. Values below
	// two fetch sequentially.
	Concurrency int
	// RequestsPerSecond paces every attempt when positive.
	RequestsPerSecond float64
	// Burst is the limiter's bucket size. Defaults to 1.
	Burst int
	// Retry configures per-chunk retries. Defaults to telraam.DefaultRetryConfig.
	Retry *telraam.RetryConfig
	// Observer receives chunk events.
	Observer Observer
	// Warnings receives retry warnings. Defaults to io.Discard.
	Warnings io.Writer
	// Sleep replaces the backoff wait. Used by tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Fetcher retrieves traffic for arbitrary date ranges through a Client.
type Fetcher struct {
	client   telraam.Client
	maxSpan  time.Duration
	workers  int
	retrier  *telraam.Retrier
	observer Observer
}

// New creates a Fetcher.
func New(client telraam.Client, opts Options) *Fetcher {
	maxSpan := opts.MaxSpan
	if maxSpan <= 0 {
		maxSpan = DefaultMaxSpan
	}
	workers := opts.Concurrency
	if workers < 1 {
		workers = 1
	}

	retrier := telraam.NewRetrier(opts.Retry)
	if opts.Warnings != nil {
		retrier.Warnings = opts.Warnings
	}
	if opts.Sleep != nil {
		retrier.Sleep = opts.Sleep
	}
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		retrier.Limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	observer := opts.Observer
	if observer == nil {
		observer = NopObserver{}
	}

	return &Fetcher{
		client:   client,
		maxSpan:  maxSpan,
		workers:  workers,
		retrier:  retrier,
		observer: observer,
	}
}

// Plan returns the chunks Fetch would request for req.
func (f *Fetcher) Plan(req telraam.TrafficRequest) ([]timerange.Chunk, error) {
	return PlanChunks(req, f.maxSpan)
}

// PlanChunks splits req's window into chunks no longer than maxSpan and
// checks that they tile the window exactly.
func PlanChunks(req telraam.TrafficRequest, maxSpan time.Duration) ([]timerange.Chunk, error) {
	window := req.Range()
	chunks, err := timerange.Split(window, maxSpan)
	if err != nil {
		return nil, err
	}
	covered, ok := timerange.Join(chunks)
	if !ok || !covered.Start.Equal(window.Start) || !covered.End.Equal(window.End) {
		return nil, fmt.Errorf("chunk plan covers %s, want %s", covered, window)
	}
	return chunks, nil
}

// Fetch retrieves all buckets of req's window. It returns an error only when
// nothing usable was obtained; missing chunks are reported in the Outcome.
func (f *Fetcher) Fetch(ctx context.Context, req telraam.TrafficRequest) (*Outcome, error) {
	chunks, err := f.Plan(req)
	if err != nil {
		return nil, err
	}
	return f.FetchChunks(ctx, req, chunks)
}

// FetchChunks retrieves an explicit list of chunks, such as the gaps left by
// an earlier partial fetch. req supplies everything but the window.
func (f *Fetcher) FetchChunks(ctx context.Context, req telraam.TrafficRequest, chunks []timerange.Chunk) (*Outcome, error) {
	if len(chunks) == 0 {
		return nil, errors.New("no chunks to fetch")
	}
	for _, c := range chunks {
		if err := c.Validate(); err != nil {
			return nil, err
		}
	}

	results := make([]chunkResult, len(chunks))
	var err error
	if f.workers > 1 && len(chunks) > 1 {
		err = f.fetchParallel(ctx, req, chunks, results)
	} else {
		err = f.fetchSequential(ctx, req, chunks, results)
	}
	if err != nil {
		return nil, err
	}

	return merge(chunks, results)
}

type chunkResult struct {
	reports  []telraam.Report
	attempts int
	err      error
}

func (f *Fetcher) fetchSequential(ctx context.Context, req telraam.TrafficRequest, chunks []timerange.Chunk, results []chunkResult) error {
	for i, c := range chunks {
		if err := ctx.Err(); err != nil {
			return err
		}
		results[i] = f.fetchChunk(ctx, req, c)
		if err := fatal(ctx, results[i].err); err != nil {
			return err
		}
	}
	return nil
}

func (f *Fetcher) fetchParallel(ctx context.Context, req telraam.TrafficRequest, chunks []timerange.Chunk, results []chunkResult) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(f.workers)

	for i, c := range chunks {
		i, c := i, c
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i] = chunkResult{err: err}
				return nil
			}
			results[i] = f.fetchChunk(gctx, req, c)
			var consistency *telraam.ConsistencyError
			if errors.As(results[i].err, &consistency) {
				return consistency
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// fatal reports errors that abort the whole fetch rather than one chunk.
func fatal(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var consistency *telraam.ConsistencyError
	if errors.As(err, &consistency) {
		return consistency
	}
	return nil
}

func (f *Fetcher) fetchChunk(ctx context.Context, req telraam.TrafficRequest, c timerange.Chunk) chunkResult {
	f.observer.ChunkStarted(c)

	var reports []telraam.Report
	res := f.retrier.Run(ctx, func(ctx context.Context) error {
		got, err := f.client.Traffic(ctx, req.ForChunk(c))
		if err != nil {
			return err
		}
		if err := CheckChunk(c, got); err != nil {
			return err
		}
		reports = got
		return nil
	}, func(af telraam.AttemptFailure) {
		f.observer.AttemptFailed(c, af)
	})

	f.observer.ChunkFinished(c, res.Attempts, len(reports), res.Err)

	if res.Err != nil {
		return chunkResult{attempts: res.Attempts, err: res.Err}
	}
	return chunkResult{reports: reports, attempts: res.Attempts}
}

// CheckChunk verifies that reports are strictly ascending by date and that
// every date falls inside the chunk.
func CheckChunk(c timerange.Chunk, reports []telraam.Report) error {
	for i, r := range reports {
		if !c.Contains(r.Date) {
			return &telraam.ConsistencyError{
				Chunk:  c.Index,
				Index:  i,
				Date:   r.Date,
				Reason: fmt.Sprintf("bucket outside requested window %s", c.DateRange),
			}
		}
		if i > 0 && !r.Date.After(reports[i-1].Date) {
			return &telraam.ConsistencyError{
				Chunk:  c.Index,
				Index:  i,
				Date:   r.Date,
				Reason: "buckets are not in strictly ascending order",
			}
		}
	}
	return nil
}

func merge(chunks []timerange.Chunk, results []chunkResult) (*Outcome, error) {
	out := &Outcome{Chunks: chunks, Status: StatusComplete}

	total := 0
	for _, r := range results {
		total += len(r.reports)
	}
	out.Reports = make([]telraam.Report, 0, total)

	for i, r := range results {
		if r.err != nil {
			out.Failed = append(out.Failed, ChunkFailure{Chunk: chunks[i], Attempts: r.attempts, Err: r.err})
			continue
		}
		out.Reports = append(out.Reports, r.reports...)
	}

	if len(out.Failed) == len(chunks) {
		return nil, &NoDataError{Failed: out.Failed}
	}
	if len(out.Failed) > 0 {
		out.Status = StatusPartial
	}
	return out, nil
}
