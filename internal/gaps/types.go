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

package gaps

import (
	"time"

	"github.com/sirseerhq/telraam-relay/internal/telraam"
	"github.com/sirseerhq/telraam-relay/internal/timerange"
)

// CurrentVersion is the current gap file schema version.
// Increment this when making breaking changes to the GapFile structure.
const CurrentVersion = 1

// GapFile is the persistent record of a fetch with missing chunks.
type GapFile struct {
	// Version indicates the schema version of this file.
	Version int `json:"version"`

	// Checksum is the SHA256 hash of the content (excluding this field).
	Checksum string `json:"checksum"`

	// FetchID identifies the fetch that left the gaps.
	FetchID string `json:"fetch_id"`

	// CreatedAt records when the file was written, in UTC.
	CreatedAt time.Time `json:"created_at"`

	// Request is everything but the window of the original request.
	Request Request `json:"request"`

	// Range is the full window of the original request.
	Range timerange.DateRange `json:"range"`

	// MaxSpan is the chunk span the original fetch used.
	MaxSpan string `json:"max_span"`

	// Missing lists the chunks still to be fetched, in chunk order.
	Missing []Gap `json:"missing"`
}

// Request identifies the traffic series a gap file belongs to.
type Request struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	ID     string `json:"id"`
}

// Gap is one missing chunk and why it is missing.
type Gap struct {
	Chunk    timerange.Chunk `json:"chunk"`
	Attempts int             `json:"attempts"`
	Error    string          `json:"error"`
}

// TrafficRequest rebuilds the original request over the full range.
func (g *GapFile) TrafficRequest() telraam.TrafficRequest {
	return telraam.TrafficRequest{
		Level:     telraam.Level(g.Request.Level),
		Format:    g.Request.Format,
		ID:        g.Request.ID,
		TimeStart: g.Range.Start,
		TimeEnd:   g.Range.End,
	}
}

// Chunks returns the missing chunks in order.
func (g *GapFile) Chunks() []timerange.Chunk {
	chunks := make([]timerange.Chunk, len(g.Missing))
	for i, gap := range g.Missing {
		chunks[i] = gap.Chunk
	}
	return chunks
}

// Empty reports whether no chunk is missing.
func (g *GapFile) Empty() bool {
	return len(g.Missing) == 0
}
