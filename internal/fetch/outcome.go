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
	"fmt"
	"strings"

	relaierrors "github.com/sirseerhq/telraam-relay/internal/errors"
	"github.com/sirseerhq/telraam-relay/internal/telraam"
	"github.com/sirseerhq/telraam-relay/internal/timerange"
)

// Status distinguishes a complete fetch from one with missing chunks.
type Status string

const (
	StatusComplete Status = "complete"
	StatusPartial  Status = "partial"
)

// ChunkFailure records a chunk that could not be fetched.
type ChunkFailure struct {
	Chunk    timerange.Chunk
	Attempts int
	Err      error
}

func (f ChunkFailure) String() string {
	return fmt.Sprintf("chunk %d (%s) after %d attempt(s): %v", f.Chunk.Index, f.Chunk.DateRange, f.Attempts, f.Err)
}

// Outcome is the merged result of a chunked fetch. Reports are in chunk
// order; within a chunk they keep the order the API returned.
type Outcome struct {
	Reports []telraam.Report
	Chunks  []timerange.Chunk
	Failed  []ChunkFailure
	Status  Status
}

// Err returns nil for a complete outcome and an error matching
// relaierrors.ErrPartialResult otherwise.
func (o *Outcome) Err() error {
	if o.Status != StatusPartial {
		return nil
	}
	return fmt.Errorf("%d of %d chunks failed: %w", len(o.Failed), len(o.Chunks), relaierrors.ErrPartialResult)
}

// NoDataError is returned when every chunk failed.
type NoDataError struct {
	Failed []ChunkFailure
}

func (e *NoDataError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "all %d chunk(s) failed", len(e.Failed))
	for _, f := range e.Failed {
		b.WriteString("; ")
		b.WriteString(f.String())
	}
	return b.String()
}

// Is matches relaierrors.ErrNoData.
func (e *NoDataError) Is(target error) bool {
	return target == relaierrors.ErrNoData
}

// Unwrap exposes every chunk's error, so errors.Is can find a shared cause
// such as an invalid token.
func (e *NoDataError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failed))
	for _, f := range e.Failed {
		errs = append(errs, f.Err)
	}
	return errs
}
