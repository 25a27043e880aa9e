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

// Package metadata provides functionality for tracking and persisting metadata
// about traffic fetches. A Tracker observes a fetch chunk by chunk and
// produces a FetchMetadata record: the request parameters, the number of API
// calls made, the span of buckets received and the outcome of every chunk.
//
// Metadata is saved as indented JSON files so that external tools can audit
// fetch history. Files never contain the API token or traffic data.
package metadata

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sirseerhq/telraam-relay/internal/telraam"
	"github.com/sirseerhq/telraam-relay/internal/timerange"
)

// Tracker collects statistics during a fetch. It satisfies fetch.Observer
// and is safe for concurrent use, so it can observe a parallel fetch.
type Tracker struct {
	mu             sync.Mutex
	fetchID        string
	startTime      time.Time
	apiCallCount   int
	failedAttempts int
	chunks         map[int]ChunkRecord
	reportStats    ReportStats
}

// ReportStats holds the running totals over received reports.
type ReportStats struct {
	TotalReports int
	OldestBucket time.Time
	NewestBucket time.Time
	CoveredUntil time.Time
}

// New creates a tracker with a fresh fetch ID, started now.
func New() *Tracker {
	return &Tracker{
		fetchID:   uuid.NewString(),
		startTime: time.Now(),
		chunks:    make(map[int]ChunkRecord),
	}
}

// FetchID returns the identifier the generated metadata will carry.
func (t *Tracker) FetchID() string {
	return t.fetchID
}

// ChunkStarted records the chunk's window.
func (t *Tracker) ChunkStarted(c timerange.Chunk) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.chunks[c.Index] = ChunkRecord{Index: c.Index, Start: c.Start, End: c.End}
}

// AttemptFailed counts a failed attempt.
func (t *Tracker) AttemptFailed(timerange.Chunk, telraam.AttemptFailure) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failedAttempts++
}

// ChunkFinished records how many attempts the chunk took and its result.
func (t *Tracker) ChunkFinished(c timerange.Chunk, attempts, reports int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.apiCallCount += attempts
	rec := ChunkRecord{Index: c.Index, Start: c.Start, End: c.End, Attempts: attempts, Reports: reports}
	if err != nil {
		rec.Error = err.Error()
	}
	t.chunks[c.Index] = rec
}

// UpdateReportStats folds merged reports into the bucket statistics.
func (t *Tracker) UpdateReportStats(reports []telraam.Report) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, r := range reports {
		t.reportStats.TotalReports++
		if t.reportStats.OldestBucket.IsZero() || r.Date.Before(t.reportStats.OldestBucket) {
			t.reportStats.OldestBucket = r.Date
		}
		if r.Date.After(t.reportStats.NewestBucket) {
			t.reportStats.NewestBucket = r.Date
		}
		if end := r.End(); end.After(t.reportStats.CoveredUntil) {
			t.reportStats.CoveredUntil = end
		}
	}
}

// GenerateMetadata creates the record for the observed fetch. status is the
// fetch outcome ("complete", "partial" or "failed"). previous links a
// resumed fetch to its predecessor and may be nil.
func (t *Tracker) GenerateMetadata(relayVersion, status string, params FetchParams, previous *FetchRef) *FetchMetadata {
	t.mu.Lock()
	defer t.mu.Unlock()

	completedAt := time.Now()

	chunks := make([]ChunkRecord, 0, len(t.chunks))
	failed := 0
	for _, c := range t.chunks {
		chunks = append(chunks, c)
		if c.Error != "" {
			failed++
		}
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Index < chunks[j].Index })

	results := FetchResults{
		Status:         status,
		TotalReports:   t.reportStats.TotalReports,
		ChunksPlanned:  len(chunks),
		ChunksFailed:   failed,
		APICallCount:   t.apiCallCount,
		FailedAttempts: t.failedAttempts,
		Duration:       completedAt.Sub(t.startTime).String(),
		StartedAt:      t.startTime,
		CompletedAt:    completedAt,
	}
	if t.reportStats.TotalReports > 0 {
		oldest, newest, covered := t.reportStats.OldestBucket, t.reportStats.NewestBucket, t.reportStats.CoveredUntil
		results.OldestBucket = &oldest
		results.NewestBucket = &newest
		results.CoveredUntil = &covered
	}

	return &FetchMetadata{
		RelayVersion:  relayVersion,
		FetchID:       t.fetchID,
		Parameters:    params,
		Results:       results,
		Chunks:        chunks,
		Resumed:       previous != nil,
		PreviousFetch: previous,
	}
}

// SaveMetadata persists a record to dir atomically using a temporary file
// and rename. The file is named fetch-metadata-{timestamp}-{id}.json so that
// names sort by start time. It returns the final path.
func SaveMetadata(metadata *FetchMetadata, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create metadata directory: %w", err)
	}

	id := metadata.FetchID
	if len(id) > 8 {
		id = id[:8]
	}
	filename := fmt.Sprintf("fetch-metadata-%d-%s.json", metadata.Results.StartedAt.Unix(), id)
	path := filepath.Join(dir, filename)

	tmpFile := path + ".tmp"
	file, err := os.Create(tmpFile)
	if err != nil {
		return "", fmt.Errorf("failed to create metadata file: %w", err)
	}

	if err := WriteMetadataToWriter(metadata, file); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpFile)
		return "", fmt.Errorf("failed to write metadata: %w", err)
	}

	if err := file.Close(); err != nil {
		_ = os.Remove(tmpFile)
		return "", fmt.Errorf("failed to close metadata file: %w", err)
	}

	if err := os.Rename(tmpFile, path); err != nil {
		return "", fmt.Errorf("failed to save metadata file: %w", err)
	}

	return path, nil
}

// LoadLatestMetadata returns the most recently started fetch of id found in
// dir, or nil when there is none.
func LoadLatestMetadata(dir, id string) (*FetchMetadata, error) {
	files, err := filepath.Glob(filepath.Join(dir, "fetch-metadata-*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to list metadata files: %w", err)
	}

	var latest *FetchMetadata
	for _, file := range files {
		m, err := loadMetadata(file)
		if err != nil {
			return nil, err
		}
		if m.Parameters.ID != id {
			continue
		}
		if latest == nil || m.Results.StartedAt.After(latest.Results.StartedAt) {
			latest = m
		}
	}
	return latest, nil
}

func loadMetadata(path string) (*FetchMetadata, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata file: %w", err)
	}
	defer file.Close()

	var metadata FetchMetadata
	if err := json.NewDecoder(file).Decode(&metadata); err != nil {
		return nil, fmt.Errorf("failed to parse metadata %s: %w", filepath.Base(path), err)
	}
	return &metadata, nil
}

// WriteMetadataToWriter writes metadata as indented JSON.
func WriteMetadataToWriter(metadata *FetchMetadata, w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(metadata)
}
