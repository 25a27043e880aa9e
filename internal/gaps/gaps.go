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
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirseerhq/telraam-relay/internal/fetch"
	"github.com/sirseerhq/telraam-relay/internal/telraam"
)

// New builds a gap file from the failures of a fetch of req.
func New(fetchID string, req telraam.TrafficRequest, maxSpan time.Duration, failed []fetch.ChunkFailure) *GapFile {
	g := &GapFile{
		FetchID:   fetchID,
		CreatedAt: time.Now().UTC(),
		Request: Request{
			Level:  string(req.Level),
			Format: req.Format,
			ID:     req.ID,
		},
		Range:   req.Range(),
		MaxSpan: maxSpan.String(),
	}
	g.Update(failed)
	return g
}

// Update replaces the missing chunks with the failures of a resumed fetch.
func (g *GapFile) Update(failed []fetch.ChunkFailure) {
	g.Missing = make([]Gap, 0, len(failed))
	for _, f := range failed {
		gap := Gap{Chunk: f.Chunk, Attempts: f.Attempts}
		if f.Err != nil {
			gap.Error = f.Err.Error()
		}
		g.Missing = append(g.Missing, gap)
	}
}

// DefaultPath returns the standard gap file path for a series id:
// ~/.telraam-relay/gaps/{id}.gaps.json
func DefaultPath(id string) string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	safe := strings.NewReplacer("/", "-", `\`, "-", "..", "-").Replace(id)

	return filepath.Join(homeDir, ".telraam-relay", "gaps", safe+".gaps.json")
}

// Save atomically writes g to path with integrity validation. It uses a
// write-to-temp-and-rename pattern; the checksum is calculated and stored
// to detect corruption.
func Save(g *GapFile, path string) error {
	g.Version = CurrentVersion
	g.Checksum = ""

	checksum, err := calculateChecksum(g)
	if err != nil {
		return fmt.Errorf("failed to calculate checksum: %w", err)
	}
	g.Checksum = checksum

	if mkdirErr := os.MkdirAll(filepath.Dir(path), 0o755); mkdirErr != nil {
		return fmt.Errorf("failed to create gaps directory: %w", mkdirErr)
	}

	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal gap file: %w", err)
	}

	tempFile := path + ".tmp"
	file, err := os.OpenFile(tempFile, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create temporary gap file: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		_ = file.Close()
		_ = os.Remove(tempFile)
		return fmt.Errorf("failed to write temporary gap file: %w", err)
	}
	if err := file.Sync(); err != nil {
		_ = file.Close()
		_ = os.Remove(tempFile)
		return fmt.Errorf("failed to sync temporary gap file: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tempFile)
		return fmt.Errorf("failed to close temporary gap file: %w", err)
	}

	if err := os.Rename(tempFile, path); err != nil {
		_ = os.Remove(tempFile)
		return fmt.Errorf("failed to rename temporary gap file: %w", err)
	}

	return nil
}

// Load reads a gap file and verifies its version and checksum.
func Load(path string) (*GapFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("no gap file found at %s", path)
		}
		return nil, fmt.Errorf("failed to read gap file %s: %w", path, err)
	}

	var g GapFile
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("gap file is corrupted (invalid JSON): %w", err)
	}

	if g.Version != CurrentVersion {
		return nil, fmt.Errorf("gap file version (%d) is incompatible with current version (%d)",
			g.Version, CurrentVersion)
	}

	saved := g.Checksum
	calculated, err := calculateChecksum(&g)
	if err != nil {
		return nil, fmt.Errorf("failed to calculate checksum for validation: %w", err)
	}
	if saved != calculated {
		return nil, fmt.Errorf("gap file is corrupted (checksum mismatch)")
	}

	for i, gap := range g.Missing {
		if err := gap.Chunk.Validate(); err != nil {
			return nil, fmt.Errorf("gap file chunk %d: %w", i, err)
		}
		if gap.Chunk.Start.Before(g.Range.Start) || gap.Chunk.End.After(g.Range.End) {
			return nil, fmt.Errorf("gap file chunk %d (%s) lies outside %s", i, gap.Chunk.DateRange, g.Range)
		}
	}

	return &g, nil
}

// Delete removes a gap file. A missing file is not an error.
func Delete(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete gap file: %w", err)
	}
	return nil
}

// calculateChecksum computes the SHA256 hash of g with the checksum field
// cleared.
func calculateChecksum(g *GapFile) (string, error) {
	cp := *g
	cp.Checksum = ""

	data, err := json.Marshal(cp)
	if err != nil {
		return "", err
	}

	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}
