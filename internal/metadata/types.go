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

// Package metadata types define the structures used for tracking and
// persisting information about traffic fetches.
package metadata

import (
	"time"
)

// FetchMetadata is the audit record of one traffic fetch: what was asked
// for, how it was split and how each chunk fared.
type FetchMetadata struct {
	RelayVersion  string        `json:"relay_version"`
	FetchID       string        `json:"fetch_id"`
	Parameters    FetchParams   `json:"parameters"`
	Results       FetchResults  `json:"results"`
	Chunks        []ChunkRecord `json:"chunks"`
	Resumed       bool          `json:"resumed"`
	PreviousFetch *FetchRef     `json:"previous_fetch,omitempty"`
}

// FetchParams captures the inputs of a fetch so it can be reproduced.
type FetchParams struct {
	Level       string    `json:"level"`
	ID          string    `json:"id"`
	Granularity string    `json:"granularity"`
	TimeStart   time.Time `json:"time_start"`
	TimeEnd     time.Time `json:"time_end"`
	MaxSpan     string    `json:"max_span"`
	Concurrency int       `json:"concurrency"`
	MaxAttempts int       `json:"max_attempts"`
}

// FetchResults summarizes a completed fetch. CoveredUntil is the end of the
// newest bucket. The bucket fields are nil when no report was received.
type FetchResults struct {
	Status         string     `json:"status"`
	TotalReports   int        `json:"total_reports"`
	ChunksPlanned  int        `json:"chunks_planned"`
	ChunksFailed   int        `json:"chunks_failed"`
	OldestBucket   *time.Time `json:"oldest_bucket,omitempty"`
	NewestBucket   *time.Time `json:"newest_bucket,omitempty"`
	CoveredUntil   *time.Time `json:"covered_until,omitempty"`
	APICallCount   int        `json:"api_calls_made"`
	FailedAttempts int        `json:"failed_attempts"`
	Duration       string     `json:"fetch_duration"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    time.Time  `json:"completed_at"`
}

// ChunkRecord is the fate of one chunk. Error is empty for a chunk that
// succeeded.
type ChunkRecord struct {
	Index    int       `json:"index"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Attempts int       `json:"attempts"`
	Reports  int       `json:"reports"`
	Error    string    `json:"error,omitempty"`
}

// FetchRef links a resumed fetch to the one that left the gaps.
type FetchRef struct {
	FetchID     string    `json:"fetch_id"`
	CompletedAt time.Time `json:"completed_at"`
}
