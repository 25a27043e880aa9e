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

package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sirseerhq/telraam-relay/internal/config"
	"github.com/sirseerhq/telraam-relay/internal/fetch"
	"github.com/sirseerhq/telraam-relay/internal/gaps"
	"github.com/sirseerhq/telraam-relay/internal/metadata"
	"github.com/sirseerhq/telraam-relay/internal/telraam"
	"github.com/sirseerhq/telraam-relay/internal/timerange"
)

type trafficFlags struct {
	from        string
	to          string
	level       string
	granularity string
	maxSpan     string
	concurrency int
	gapsFile    string
	metadata    bool
	quiet       bool
}

func newTrafficCommand(a *app) *cobra.Command {
	var f trafficFlags

	cmd := &cobra.Command{
		Use:   "traffic <id>",
		Short: "Fetch traffic reports for a segment or camera instance",
		Long: `Fetch traffic reports for a date range and output them in order.

The range is split into chunks no longer than the API's maximum span and each
chunk is retried on transient failures. If some chunks still fail, the
reports of the others are written, the missing chunks are recorded in a gap
file and the command exits with code 4. Run "telraam-relay resume <gaps-file>"
later to fetch only what is missing.

Dates are YYYY-MM-DD, YYYY-MM-DDTHH:MM or RFC 3339, taken as UTC when no
offset is given. Relative values such as 7d or 36h count back from now.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTraffic(cmd, a, args[0], f)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.from, "from", "", "Start of the range, inclusive (required)")
	flags.StringVar(&f.to, "to", "", "End of the range, inclusive (default: now, truncated to the hour)")
	flags.StringVar(&f.level, "level", "", "segments or instance (default from config)")
	flags.StringVar(&f.granularity, "granularity", "", "Bucket format sent to the API (default from config)")
	flags.StringVar(&f.maxSpan, "max-span", "", "Longest chunk, e.g. 90d or 720h (default from config)")
	flags.IntVar(&f.concurrency, "concurrency", 0, "Chunks fetched at once (default from config)")
	flags.StringVar(&f.gapsFile, "gaps-file", "", "Where to record missing chunks (default: ~/.telraam-relay/gaps/<id>.gaps.json)")
	flags.BoolVar(&f.metadata, "metadata", false, "Save a fetch metadata record to the configured metadata directory")
	flags.BoolVar(&f.quiet, "quiet", false, "Do not show the progress bar")
	_ = cmd.MarkFlagRequired("from")

	return cmd
}

func runTraffic(cmd *cobra.Command, a *app, idArg string, f trafficFlags) error {
	id, err := parseSegmentID(idArg)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	from, err := parseDate(f.from, now)
	if err != nil {
		return fmt.Errorf("invalid --from: %w", err)
	}
	to := now.Truncate(time.Hour)
	if f.to != "" {
		if to, err = parseDate(f.to, now); err != nil {
			return fmt.Errorf("invalid --to: %w", err)
		}
	}

	if err := a.applyTrafficFlags(cmd, f); err != nil {
		return err
	}

	level, err := telraam.ParseLevel(a.cfg.Traffic.Level)
	if err != nil {
		return err
	}
	req := telraam.TrafficRequest{
		Level:     level,
		Format:    a.cfg.Traffic.Granularity,
		ID:        id,
		TimeStart: from,
		TimeEnd:   to,
	}

	chunks, err := fetch.PlanChunks(req, a.cfg.Traffic.MaxSpan)
	if err != nil {
		return err
	}

	gapPath := f.gapsFile
	if gapPath == "" {
		gapPath = gaps.DefaultPath(id)
	}

	return a.runFetch(cmd.Context(), fetchJob{
		req:      req,
		chunks:   chunks,
		maxSpan:  a.cfg.Traffic.MaxSpan,
		gapPath:  gapPath,
		metadata: f.metadata,
		quiet:    f.quiet,
	})
}

// applyTrafficFlags overrides the configuration with explicitly set flags
// and validates the result.
func (a *app) applyTrafficFlags(cmd *cobra.Command, f trafficFlags) error {
	flags := cmd.Flags()
	if flags.Changed("level") {
		a.cfg.Traffic.Level = strings.ToLower(strings.TrimSpace(f.level))
	}
	if flags.Changed("granularity") {
		a.cfg.Traffic.Granularity = f.granularity
	}
	if flags.Changed("max-span") {
		span, err := config.ParseSpan(f.maxSpan)
		if err != nil {
			return fmt.Errorf("invalid --max-span: %w", err)
		}
		a.cfg.Traffic.MaxSpan = span
	}
	if flags.Changed("concurrency") {
		a.cfg.Fetch.Concurrency = f.concurrency
	}
	return a.cfg.Validate()
}

func newResumeCommand(a *app) *cobra.Command {
	var (
		concurrency int
		withMeta    bool
		quiet       bool
	)

	cmd := &cobra.Command{
		Use:   "resume <gaps-file>",
		Short: "Fetch the chunks a partial traffic fetch left missing",
		Long: `Read a gap file written by "traffic" and fetch only the missing chunks.
Chunks that fail again stay in the gap file; the file is removed once every
chunk has been fetched.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			g, err := gaps.Load(path)
			if err != nil {
				return err
			}
			if g.Empty() {
				fmt.Fprintf(a.stderr, "No missing chunks recorded in %s\n", path)
				return gaps.Delete(path)
			}

			if cmd.Flags().Changed("concurrency") {
				a.cfg.Fetch.Concurrency = concurrency
			}
			if err := a.cfg.Validate(); err != nil {
				return err
			}

			maxSpan, err := time.ParseDuration(g.MaxSpan)
			if err != nil {
				maxSpan = a.cfg.Traffic.MaxSpan
			}

			return a.runFetch(cmd.Context(), fetchJob{
				req:      g.TrafficRequest(),
				chunks:   g.Chunks(),
				maxSpan:  maxSpan,
				previous: g,
				gapPath:  path,
				metadata: withMeta,
				quiet:    quiet,
			})
		},
	}

	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "Chunks fetched at once (default from config)")
	cmd.Flags().BoolVar(&withMeta, "metadata", false, "Save a fetch metadata record to the configured metadata directory")
	cmd.Flags().BoolVar(&quiet, "quiet", false, "Do not show the progress bar")
	return cmd
}

// fetchJob is one run of the chunked fetcher, fresh or resumed.
type fetchJob struct {
	req      telraam.TrafficRequest
	chunks   []timerange.Chunk
	maxSpan  time.Duration
	previous *gaps.GapFile
	gapPath  string
	metadata bool
	quiet    bool
}

func (a *app) runFetch(ctx context.Context, job fetchJob) error {
	client, err := a.newClient(a)
	if err != nil {
		return err
	}

	var previous *metadata.FetchRef
	if job.previous != nil {
		previous = a.previousFetch(job)
	}

	tracker := metadata.New()
	observers := []fetch.Observer{tracker}
	var progress *progressObserver
	if !job.quiet {
		progress = newProgressObserver(a.stderr, len(job.chunks))
		observers = append(observers, progress)
	}

	fetcher := fetch.New(client, fetch.Options{
		MaxSpan:           job.maxSpan,
		Concurrency:       a.cfg.Fetch.Concurrency,
		RequestsPerSecond: a.cfg.Fetch.RequestsPerSecond,
		Burst:             a.cfg.Fetch.Burst,
		Retry:             a.retryConfig(),
		Observer:          fetch.Observers(observers...),
		Warnings:          a.stderr,
	})

	if job.previous == nil {
		fmt.Fprintf(a.stderr, "Fetching %s %s over %s in %d chunk(s)...\n",
			job.req.Level, job.req.ID, job.req.Range(), len(job.chunks))
	} else {
		fmt.Fprintf(a.stderr, "Resuming %s %s: %d missing chunk(s)...\n",
			job.req.Level, job.req.ID, len(job.chunks))
	}

	outcome, err := fetcher.FetchChunks(ctx, job.req, job.chunks)
	if progress != nil {
		progress.finish()
	}
	if err != nil {
		var noData *fetch.NoDataError
		if errors.As(err, &noData) {
			a.recordGaps(job, tracker.FetchID(), noData.Failed, len(job.chunks))
			a.saveMetadata(job, tracker, "failed", previous)
		}
		return err
	}

	tracker.UpdateReportStats(outcome.Reports)

	w, err := a.openWriter()
	if err != nil {
		return err
	}
	if err := writeAll(w, outcome.Reports); err != nil {
		return fmt.Errorf("failed to write reports: %w", err)
	}

	a.saveMetadata(job, tracker, string(outcome.Status), previous)

	if outcome.Status == fetch.StatusPartial {
		a.recordGaps(job, tracker.FetchID(), outcome.Failed, len(job.chunks))
		return outcome.Err()
	}

	if job.previous != nil {
		if err := gaps.Delete(job.gapPath); err != nil {
			fmt.Fprintf(a.stderr, "Warning: %v\n", err)
		}
	}
	fmt.Fprintf(a.stderr, "Successfully fetched %d reports in %d chunk(s)\n", len(outcome.Reports), len(job.chunks))
	return nil
}

// previousFetch links a resumed fetch to the run that wrote its gap file.
// When that run saved metadata, its completion time is taken from there.
func (a *app) previousFetch(job fetchJob) *metadata.FetchRef {
	ref := &metadata.FetchRef{FetchID: job.previous.FetchID, CompletedAt: job.previous.CreatedAt}
	if !job.metadata {
		return ref
	}

	last, err := metadata.LoadLatestMetadata(a.cfg.Output.MetadataDir, job.req.ID)
	if err != nil {
		fmt.Fprintf(a.stderr, "Warning: %v\n", err)
		return ref
	}
	if last != nil && last.FetchID == ref.FetchID {
		ref.CompletedAt = last.Results.CompletedAt
	}
	return ref
}

// recordGaps writes the gap file. Failing to write it is reported but does
// not replace the fetch error.
func (a *app) recordGaps(job fetchJob, fetchID string, failed []fetch.ChunkFailure, total int) {
	g := job.previous
	if g == nil {
		g = gaps.New(fetchID, job.req, job.maxSpan, failed)
	} else {
		g.FetchID = fetchID
		g.CreatedAt = time.Now().UTC()
		g.Update(failed)
	}

	for _, f := range failed {
		fmt.Fprintf(a.stderr, "Warning: %s\n", f)
	}
	if err := gaps.Save(g, job.gapPath); err != nil {
		fmt.Fprintf(a.stderr, "Warning: failed to record gaps: %v\n", err)
		return
	}
	fmt.Fprintf(a.stderr, "%d of %d chunk(s) missing, recorded in %s\nResume with: telraam-relay resume %s\n",
		len(failed), total, job.gapPath, job.gapPath)
}

func (a *app) saveMetadata(job fetchJob, tracker *metadata.Tracker, status string, previous *metadata.FetchRef) {
	if !job.metadata {
		return
	}

	params := metadata.FetchParams{
		Level:       string(job.req.Level),
		ID:          job.req.ID,
		Granularity: job.req.Format,
		TimeStart:   job.req.TimeStart,
		TimeEnd:     job.req.TimeEnd,
		MaxSpan:     job.maxSpan.String(),
		Concurrency: a.cfg.Fetch.Concurrency,
		MaxAttempts: a.cfg.Retry.MaxAttempts,
	}
	m := tracker.GenerateMetadata(version, status, params, previous)
	path, err := metadata.SaveMetadata(m, a.cfg.Output.MetadataDir)
	if err != nil {
		fmt.Fprintf(a.stderr, "Warning: %v\n", err)
		return
	}
	fmt.Fprintf(a.stderr, "Metadata saved to %s\n", path)
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// parseDate parses an absolute date or a relative offset such as 7d or 36h
// counted back from now. Values without an offset are UTC.
func parseDate(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if s == "now" {
		return now, nil
	}

	if n, ok := strings.CutSuffix(s, "d"); ok {
		if days, err := strconv.Atoi(n); err == nil && days >= 0 {
			return now.AddDate(0, 0, -days), nil
		}
	}
	if d, err := time.ParseDuration(s); err == nil && d >= 0 {
		return now.Add(-d), nil
	}

	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as a date (use YYYY-MM-DD, RFC 3339 or a relative value like 7d)", s)
}
