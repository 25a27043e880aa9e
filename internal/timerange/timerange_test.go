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

package timerange

import (
	"errors"
	"math/rand"
	"reflect"
	"testing"
	"time"

	relaierrors "github.com/sirseerhq/telraam-relay/internal/errors"
)

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

const day = 24 * time.Hour

func assertTiles(t *testing.T, r DateRange, maxSpan time.Duration, chunks []Chunk) {
	t.Helper()

	if len(chunks) == 0 {
		t.Fatal("no chunks")
	}
	if !chunks[0].Start.Equal(r.Start) {
		t.Errorf("first chunk starts at %v, want range start %v", chunks[0].Start, r.Start)
	}
	last := chunks[len(chunks)-1]
	if !last.End.Equal(r.End) {
		t.Errorf("last chunk ends at %v, want range end %v", last.End, r.End)
	}
	if !last.Last {
		t.Error("final chunk is not marked last")
	}

	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("chunk %d has index %d", i, c.Index)
		}
		if c.Span() > maxSpan {
			t.Errorf("chunk %d spans %s, exceeds max span %s", i, c.Span(), maxSpan)
		}
		if c.Start.After(c.End) {
			t.Errorf("chunk %d is inverted", i)
		}
		if i > 0 {
			if !chunks[i-1].End.Equal(c.Start) {
				t.Errorf("gap or overlap between chunk %d and %d", i-1, i)
			}
			if chunks[i-1].Last {
				t.Errorf("chunk %d is marked last but is not final", i-1)
			}
		}
	}
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name       string
		r          DateRange
		maxSpan    time.Duration
		wantChunks int
	}{
		{
			name:       "shorter than max span",
			r:          DateRange{Start: base, End: base.Add(10 * day)},
			maxSpan:    90 * day,
			wantChunks: 1,
		},
		{
			name:       "exactly max span",
			r:          DateRange{Start: base, End: base.Add(90 * day)},
			maxSpan:    90 * day,
			wantChunks: 1,
		},
		{
			name:       "one hour over max span",
			r:          DateRange{Start: base, End: base.Add(90*day + time.Hour)},
			maxSpan:    90 * day,
			wantChunks: 2,
		},
		{
			name:       "exact multiple",
			r:          DateRange{Start: base, End: base.Add(270 * day)},
			maxSpan:    90 * day,
			wantChunks: 3,
		},
		{
			name:       "a year in three-month chunks",
			r:          DateRange{Start: base, End: base.AddDate(1, 0, 0)},
			maxSpan:    90 * day,
			wantChunks: 5,
		},
		{
			name:       "zero length",
			r:          DateRange{Start: base, End: base},
			maxSpan:    day,
			wantChunks: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks, err := Split(tt.r, tt.maxSpan)
			if err != nil {
				t.Fatalf("Split failed: %v", err)
			}
			if len(chunks) != tt.wantChunks {
				t.Errorf("len(chunks) = %d, want %d", len(chunks), tt.wantChunks)
			}
			assertTiles(t, tt.r, tt.maxSpan, chunks)
		})
	}
}

func TestSplit_SingleChunkEqualsRange(t *testing.T) {
	r := DateRange{Start: base.Add(3 * time.Hour), End: base.Add(50 * time.Hour)}

	chunks, err := Split(r, 72*time.Hour)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("len(chunks) = %d, want 1", len(chunks))
	}
	if chunks[0].DateRange != r {
		t.Errorf("chunk = %s, want %s", chunks[0].DateRange, r)
	}
}

func TestSplit_ZeroLength(t *testing.T) {
	r := DateRange{Start: base, End: base}

	chunks, err := Split(r, time.Hour)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("len(chunks) = %d, want 1", len(chunks))
	}
	if chunks[0].Span() != 0 {
		t.Errorf("Span() = %s, want 0", chunks[0].Span())
	}
	if !chunks[0].Contains(base) {
		t.Error("zero-length chunk must contain its instant")
	}
}

func TestSplit_InvalidRange(t *testing.T) {
	r := DateRange{Start: base.Add(time.Hour), End: base}

	chunks, err := Split(r, day)
	if chunks != nil {
		t.Errorf("chunks = %v, want nil", chunks)
	}

	var rangeErr *InvalidRangeError
	if !errors.As(err, &rangeErr) {
		t.Fatalf("error = %v, want *InvalidRangeError", err)
	}
	if !errors.Is(err, relaierrors.ErrInvalidRange) {
		t.Error("error does not match ErrInvalidRange")
	}
	if rangeErr.IsRetryable() {
		t.Error("invalid range must not be retryable")
	}
}

func TestSplit_NonPositiveMaxSpan(t *testing.T) {
	for _, maxSpan := range []time.Duration{0, -time.Hour} {
		if _, err := Split(DateRange{Start: base, End: base.Add(day)}, maxSpan); err == nil {
			t.Errorf("Split(maxSpan=%s) error = nil, want error", maxSpan)
		}
	}
}

func TestSplit_Deterministic(t *testing.T) {
	r := DateRange{Start: base, End: base.Add(1000 * time.Hour)}

	first, err := Split(r, 77*time.Hour)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	second, err := Split(r, 77*time.Hour)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Error("Split returned different chunks for the same input")
	}
}

func TestSplit_TilesRandomRanges(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 500; i++ {
		start := base.Add(time.Duration(rng.Int63n(int64(365 * day))))
		span := time.Duration(rng.Int63n(int64(400 * day)))
		maxSpan := time.Duration(rng.Int63n(int64(100*day))) + time.Second
		r := DateRange{Start: start, End: start.Add(span)}

		chunks, err := Split(r, maxSpan)
		if err != nil {
			t.Fatalf("Split(%s, %s) failed: %v", r, maxSpan, err)
		}
		assertTiles(t, r, maxSpan, chunks)

		joined, ok := Join(chunks)
		if !ok {
			t.Fatalf("Join(Split(%s)) is not contiguous", r)
		}
		if !joined.Start.Equal(r.Start) || !joined.End.Equal(r.End) {
			t.Errorf("Join = %s, want %s", joined, r)
		}

		if span <= maxSpan && len(chunks) != 1 {
			t.Errorf("span %s within max span %s gave %d chunks", span, maxSpan, len(chunks))
		}
	}
}

func TestChunk_Contains(t *testing.T) {
	chunks, err := Split(DateRange{Start: base, End: base.Add(2 * day)}, day)
	if err != nil {
		t.Fatalf("Split failed: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("len(chunks) = %d, want 2", len(chunks))
	}
	first, last := chunks[0], chunks[1]

	tests := []struct {
		name  string
		chunk Chunk
		at    time.Time
		want  bool
	}{
		{"first chunk start", first, base, true},
		{"inside first chunk", first, base.Add(23 * time.Hour), true},
		{"interior end belongs to the next chunk", first, base.Add(day), false},
		{"before first chunk", first, base.Add(-time.Hour), false},
		{"final chunk start", last, base.Add(day), true},
		{"final chunk accepts the inclusive range end", last, base.Add(2 * day), true},
		{"after final chunk", last, base.Add(2*day + time.Hour), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.chunk.Contains(tt.at); got != tt.want {
				t.Errorf("Contains(%v) = %v, want %v", tt.at, got, tt.want)
			}
		})
	}
}

func TestJoin(t *testing.T) {
	if _, ok := Join(nil); ok {
		t.Error("Join(nil) ok = true, want false")
	}

	gapped := []Chunk{
		{DateRange: DateRange{Start: base, End: base.Add(day)}},
		{DateRange: DateRange{Start: base.Add(2 * day), End: base.Add(3 * day)}},
	}
	if _, ok := Join(gapped); ok {
		t.Error("Join(gapped) ok = true, want false")
	}

	overlapping := []Chunk{
		{DateRange: DateRange{Start: base, End: base.Add(2 * day)}},
		{DateRange: DateRange{Start: base.Add(day), End: base.Add(3 * day)}},
	}
	if _, ok := Join(overlapping); ok {
		t.Error("Join(overlapping) ok = true, want false")
	}
}
