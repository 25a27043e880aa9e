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

// Package timerange splits a caller's date range into sub-ranges that respect
// the Telraam traffic endpoint's per-request span limit.
//
// The chunks produced by Split tile the original range exactly: the first
// chunk starts where the range starts, the last chunk ends where the range
// ends, and every chunk ends where the next one begins.
package timerange

import (
	"fmt"
	"time"

	relaierrors "github.com/sirseerhq/telraam-relay/internal/errors"
)

// DateRange is a caller-supplied interval. Start must not be after End;
// Start == End is a valid zero-length range.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Span returns the length of the range.
func (r DateRange) Span() time.Duration {
	return r.End.Sub(r.Start)
}

// Validate returns an InvalidRangeError when Start is after End.
func (r DateRange) Validate() error {
	if r.Start.After(r.End) {
		return &InvalidRangeError{Start: r.Start, End: r.End}
	}
	return nil
}

// String formats the range as start/end in RFC 3339.
func (r DateRange) String() string {
	return r.Start.UTC().Format(time.RFC3339) + "/" + r.End.UTC().Format(time.RFC3339)
}

// Chunk is one sub-range of a DateRange. Index is its position in the
// sequence returned by Split and Last marks the final chunk.
type Chunk struct {
	DateRange
	Index int  `json:"index"`
	Last  bool `json:"last"`
}

// Contains reports whether t falls inside the chunk's closed-open interval.
// A zero-length chunk, or the final chunk, also accepts its end instant.
func (c Chunk) Contains(t time.Time) bool {
	if t.Before(c.Start) || t.After(c.End) {
		return false
	}
	if t.Equal(c.End) {
		return c.Start.Equal(c.End) || c.Last
	}
	return true
}

// InvalidRangeError is returned when a range's start is after its end.
type InvalidRangeError struct {
	Start time.Time
	End   time.Time
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("start %s is after end %s", e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339))
}

// Is matches relaierrors.ErrInvalidRange.
func (e *InvalidRangeError) Is(target error) bool {
	return target == relaierrors.ErrInvalidRange
}

// IsRetryable is always false; an invalid range never succeeds on retry.
func (e *InvalidRangeError) IsRetryable() bool { return false }

// Split divides r into consecutive chunks no longer than maxSpan.
func Split(r DateRange, maxSpan time.Duration) ([]Chunk, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if maxSpan <= 0 {
		return nil, fmt.Errorf("max span must be positive, got %s", maxSpan)
	}

	if r.Span() <= maxSpan {
		return []Chunk{{DateRange: r, Index: 0, Last: true}}, nil
	}

	n := int(r.Span() / maxSpan)
	if r.Span()%maxSpan != 0 {
		n++
	}

	chunks := make([]Chunk, 0, n)
	start := r.Start
	for i := 0; start.Before(r.End); i++ {
		end := start.Add(maxSpan)
		if end.After(r.End) {
			end = r.End
		}
		chunks = append(chunks, Chunk{DateRange: DateRange{Start: start, End: end}, Index: i})
		start = end
	}
	chunks[len(chunks)-1].Last = true

	return chunks, nil
}

// Join returns the range covered by a contiguous, ordered chunk sequence.
func Join(chunks []Chunk) (DateRange, bool) {
	if len(chunks) == 0 {
		return DateRange{}, false
	}
	for i := 1; i < len(chunks); i++ {
		if !chunks[i-1].End.Equal(chunks[i].Start) {
			return DateRange{}, false
		}
	}
	return DateRange{Start: chunks[0].Start, End: chunks[len(chunks)-1].End}, true
}
