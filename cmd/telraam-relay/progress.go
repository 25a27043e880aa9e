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
	"fmt"
	"io"

	"github.com/schollz/progressbar/v3"

	"github.com/sirseerhq/telraam-relay/internal/fetch"
	"github.com/sirseerhq/telraam-relay/internal/telraam"
	"github.com/sirseerhq/telraam-relay/internal/timerange"
)

// progressObserver draws one bar step per finished chunk.
type progressObserver struct {
	fetch.NopObserver
	bar *progressbar.ProgressBar
}

func newProgressObserver(w io.Writer, chunks int) *progressObserver {
	return &progressObserver{
		bar: progressbar.NewOptions(chunks,
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetDescription("Fetching chunks"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetPredictTime(true),
			progressbar.OptionClearOnFinish(),
		),
	}
}

func (p *progressObserver) AttemptFailed(c timerange.Chunk, f telraam.AttemptFailure) {
	if f.Final {
		return
	}
	p.bar.Describe(fmt.Sprintf("Fetching chunks (chunk %d retry %d)", c.Index+1, f.Attempt))
}

func (p *progressObserver) ChunkFinished(timerange.Chunk, int, int, error) {
	p.bar.Describe("Fetching chunks")
	_ = p.bar.Add(1)
}

func (p *progressObserver) finish() {
	_ = p.bar.Finish()
}
