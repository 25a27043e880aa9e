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
	"bytes"
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	relaierrors "github.com/sirseerhq/telraam-relay/internal/errors"
	"github.com/sirseerhq/telraam-relay/internal/metadata"
	"github.com/sirseerhq/telraam-relay/internal/telraam"
	"github.com/sirseerhq/telraam-relay/test/testutil"
)

var trafficStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

const fastRetryConfig = `retry:
  max_attempts: 3
  initial_backoff: 1ms
  max_backoff: 2ms
  multiplier: 2
`

// setupEnv isolates HOME and the TELRAAM_* variables, points the API at m
// and returns the fake home and a config file with fast retries.
func setupEnv(t *testing.T, m *testutil.MockServer) (home, configPath string) {
	t.Helper()

	home = t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("TELRAAM_TOKEN", testutil.TestToken)
	t.Setenv("TELRAAM_API_URL", m.URL)
	for _, key := range []string{"TELRAAM_API_VERSION", "TELRAAM_MAX_SPAN", "TELRAAM_CONCURRENCY", "TELRAAM_MAX_ATTEMPTS", "TELRAAM_METADATA_DIR"} {
		t.Setenv(key, "")
	}

	return home, testutil.WriteConfig(t, home, fastRetryConfig)
}

func runCLI(t *testing.T, a *app, args ...string) (stdout, stderr string, err error) {
	t.Helper()

	var out, errOut bytes.Buffer
	a.stdout = &out
	a.stderr = &errOut

	cmd := newRootCommand(a)
	cmd.SetArgs(args)
	err = cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func countLines(s string) int {
	return len(strings.Split(strings.TrimSpace(s), "\n"))
}

func TestTrafficCommand(t *testing.T) {
	m := testutil.NewMockServer(t, testutil.HourlyReports(348917, trafficStart, 240))
	home, cfg := setupEnv(t, m)
	out := filepath.Join(home, "reports.ndjson")

	_, stderr, err := runCLI(t, newApp(), "traffic", "348917",
		"--config", cfg,
		"--from", "2024-01-01",
		"--to", "2024-01-11",
		"--max-span", "72h",
		"--output", out,
	)
	testutil.AssertNoError(t, err)

	testutil.AssertNDJSONOutput(t, out, 240)
	if got := len(m.TrafficRequests()); got != 4 {
		t.Errorf("server saw %d traffic requests, want 4", got)
	}
	testutil.AssertContainsString(t, stderr, "Successfully fetched 240 reports in 4 chunk(s)")
	testutil.AssertNotContainsString(t, stderr, testutil.TestToken)
}

func TestTrafficCommandJSONFormat(t *testing.T) {
	m := testutil.NewMockServer(t, testutil.HourlyReports(348917, trafficStart, 48))
	home, cfg := setupEnv(t, m)
	out := filepath.Join(home, "reports.json")

	_, _, err := runCLI(t, newApp(), "traffic", "348917",
		"--config", cfg,
		"--from", "2024-01-01",
		"--to", "2024-01-03",
		"--max-span", "1d",
		"--concurrency", "2",
		"--format", "json",
		"--quiet",
		"--output", out,
	)
	testutil.AssertNoError(t, err)
	testutil.AssertJSONOutput(t, out, 48)
}

func TestTrafficCommandPartialThenResume(t *testing.T) {
	m := testutil.NewMockServer(t, testutil.HourlyReports(348917, trafficStart, 240))
	m.FailChunk(trafficStart.Add(72*time.Hour), http.StatusServiceUnavailable, -1)
	home, cfg := setupEnv(t, m)
	gapPath := filepath.Join(home, "segment.gaps.json")
	out := filepath.Join(home, "reports.ndjson")

	_, stderr, err := runCLI(t, newApp(), "traffic", "348917",
		"--config", cfg,
		"--from", "2024-01-01",
		"--to", "2024-01-11",
		"--max-span", "72h",
		"--gaps-file", gapPath,
		"--metadata",
		"--quiet",
		"--output", out,
	)
	if !errors.Is(err, relaierrors.ErrPartialResult) {
		t.Fatalf("traffic error = %v, want ErrPartialResult", err)
	}
	if code := mapErrorToExitCode(err); code != 4 {
		t.Errorf("exit code = %d, want 4", code)
	}
	testutil.AssertContainsString(t, stderr, "telraam-relay resume "+gapPath)

	dates := testutil.AssertNDJSONOutput(t, out, 168)
	for _, d := range dates {
		if !d.Before(trafficStart.Add(72*time.Hour)) && d.Before(trafficStart.Add(144*time.Hour)) {
			t.Fatalf("report %s from the failed chunk was written", d)
		}
	}
	// 4 chunks, the failing one tried 3 times
	if got := len(m.TrafficRequests()); got != 6 {
		t.Errorf("server saw %d traffic requests, want 6", got)
	}

	testutil.AssertGapFile(t, gapPath, 1)

	meta := testutil.AssertMetadataFile(t, filepath.Join(home, ".telraam-relay", "metadata"))
	results, _ := meta["results"].(map[string]interface{})
	if results["status"] != "partial" {
		t.Errorf("metadata status = %v, want partial", results["status"])
	}
	if results["chunks_failed"] != float64(1) {
		t.Errorf("metadata chunks_failed = %v, want 1", results["chunks_failed"])
	}
	if results["api_calls_made"] != float64(6) {
		t.Errorf("metadata api_calls_made = %v, want 6", results["api_calls_made"])
	}

	m.ClearFailures()
	resumed := filepath.Join(home, "resumed.ndjson")
	_, stderr, err = runCLI(t, newApp(), "resume", gapPath, "--config", cfg, "--quiet", "--output", resumed)
	testutil.AssertNoError(t, err)

	dates = testutil.AssertNDJSONOutput(t, resumed, 72)
	if !dates[0].Equal(trafficStart.Add(72 * time.Hour)) {
		t.Errorf("first resumed report = %v, want %v", dates[0], trafficStart.Add(72*time.Hour))
	}
	testutil.AssertFileNotExists(t, gapPath)
	testutil.AssertContainsString(t, stderr, "Resuming segments 348917: 1 missing chunk(s)")
}

func TestResumeKeepsChunksThatFailAgain(t *testing.T) {
	m := testutil.NewMockServer(t, testutil.HourlyReports(348917, trafficStart, 96))
	m.FailChunk(trafficStart, http.StatusBadGateway, -1)
	m.FailChunk(trafficStart.Add(48*time.Hour), http.StatusBadGateway, -1)
	home, cfg := setupEnv(t, m)
	gapPath := filepath.Join(home, "segment.gaps.json")

	_, _, err := runCLI(t, newApp(), "traffic", "348917",
		"--config", cfg,
		"--from", "2024-01-01",
		"--to", "2024-01-05",
		"--max-span", "1d",
		"--gaps-file", gapPath,
		"--quiet",
		"--output", filepath.Join(home, "first.ndjson"),
	)
	if !errors.Is(err, relaierrors.ErrPartialResult) {
		t.Fatalf("traffic error = %v, want ErrPartialResult", err)
	}
	first := testutil.AssertGapFile(t, gapPath, 2)

	m.ClearFailures()
	m.FailChunk(trafficStart.Add(48*time.Hour), http.StatusBadGateway, -1)

	_, _, err = runCLI(t, newApp(), "resume", gapPath, "--config", cfg, "--quiet",
		"--output", filepath.Join(home, "second.ndjson"))
	if !errors.Is(err, relaierrors.ErrPartialResult) {
		t.Fatalf("resume error = %v, want ErrPartialResult", err)
	}
	testutil.AssertNDJSONOutput(t, filepath.Join(home, "second.ndjson"), 24)

	second := testutil.AssertGapFile(t, gapPath, 1)
	if first["fetch_id"] == second["fetch_id"] {
		t.Error("resume did not record a new fetch id")
	}
}

func TestTrafficHelpDescribesRange(t *testing.T) {
	stdout, _, err := runCLI(t, newApp(), "traffic", "--help")
	testutil.AssertNoError(t, err)
	testutil.AssertContainsString(t, stdout, "Start of the range, inclusive")
	testutil.AssertContainsString(t, stdout, "End of the range, inclusive")
}

func TestResumeLinksPreviousMetadata(t *testing.T) {
	m := testutil.NewMockServer(t, testutil.HourlyReports(348917, trafficStart, 48))
	m.FailChunk(trafficStart.Add(24*time.Hour), http.StatusServiceUnavailable, -1)
	home, cfg := setupEnv(t, m)
	gapPath := filepath.Join(home, "segment.gaps.json")
	metaDir := filepath.Join(home, ".telraam-relay", "metadata")

	_, _, err := runCLI(t, newApp(), "traffic", "348917",
		"--config", cfg,
		"--from", "2024-01-01",
		"--to", "2024-01-03",
		"--max-span", "1d",
		"--gaps-file", gapPath,
		"--metadata",
		"--quiet",
		"--output", filepath.Join(home, "first.ndjson"),
	)
	if !errors.Is(err, relaierrors.ErrPartialResult) {
		t.Fatalf("traffic error = %v, want ErrPartialResult", err)
	}
	first, err := metadata.LoadLatestMetadata(metaDir, "348917")
	if err != nil || first == nil {
		t.Fatalf("LoadLatestMetadata = %v, %v", first, err)
	}

	m.ClearFailures()
	_, _, err = runCLI(t, newApp(), "resume", gapPath, "--config", cfg, "--metadata", "--quiet",
		"--output", filepath.Join(home, "second.ndjson"))
	testutil.AssertNoError(t, err)

	second, err := metadata.LoadLatestMetadata(metaDir, "348917")
	if err != nil || second == nil {
		t.Fatalf("LoadLatestMetadata = %v, %v", second, err)
	}
	if second.FetchID == first.FetchID {
		t.Fatal("resume did not save its own metadata")
	}
	if !second.Resumed || second.PreviousFetch == nil {
		t.Fatalf("resumed metadata = %+v, want a previous fetch", second)
	}
	if second.PreviousFetch.FetchID != first.FetchID {
		t.Errorf("previous fetch id = %s, want %s", second.PreviousFetch.FetchID, first.FetchID)
	}
	if !second.PreviousFetch.CompletedAt.Equal(first.Results.CompletedAt) {
		t.Errorf("previous completed_at = %v, want %v", second.PreviousFetch.CompletedAt, first.Results.CompletedAt)
	}
}

func TestTrafficCommandAllChunksFail(t *testing.T) {
	m := testutil.NewMockServer(t, testutil.HourlyReports(348917, trafficStart, 48))
	home, cfg := setupEnv(t, m)
	gapPath := filepath.Join(home, "segment.gaps.json")
	out := filepath.Join(home, "reports.ndjson")

	_, stderr, err := runCLI(t, newApp(), "traffic", "348917",
		"--config", cfg,
		"--token", "not-the-key",
		"--from", "2024-01-01",
		"--to", "2024-01-03",
		"--max-span", "1d",
		"--gaps-file", gapPath,
		"--quiet",
		"--output", out,
	)
	if !errors.Is(err, relaierrors.ErrNoData) {
		t.Fatalf("traffic error = %v, want ErrNoData", err)
	}
	if code := mapErrorToExitCode(err); code != 2 {
		t.Errorf("exit code = %d, want 2", code)
	}
	// Forbidden is not retried
	if got := m.Requests(); got != 2 {
		t.Errorf("server saw %d requests, want 2", got)
	}
	testutil.AssertFileNotExists(t, out)
	testutil.AssertGapFile(t, gapPath, 2)
	testutil.AssertNotContainsString(t, stderr, "not-the-key")
	testutil.AssertNotContainsString(t, err.Error(), "not-the-key")
}

func TestTrafficCommandMissingToken(t *testing.T) {
	m := testutil.NewMockServer(t, nil)
	_, cfg := setupEnv(t, m)
	t.Setenv("TELRAAM_TOKEN", "")

	_, _, err := runCLI(t, newApp(), "traffic", "348917", "--config", cfg, "--from", "7d")
	testutil.AssertErrorContains(t, err, "TELRAAM_TOKEN")
	if code := mapErrorToExitCode(err); code != 2 {
		t.Errorf("exit code = %d, want 2", code)
	}
	if got := m.Requests(); got != 0 {
		t.Errorf("server saw %d requests, want 0", got)
	}
}

func TestTrafficCommandInvalidInput(t *testing.T) {
	m := testutil.NewMockServer(t, nil)
	_, cfg := setupEnv(t, m)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"bad id", []string{"traffic", "abc", "--from", "2024-01-01"}, "invalid segment id"},
		{"bad from", []string{"traffic", "1", "--from", "soon"}, "invalid --from"},
		{"reversed range", []string{"traffic", "1", "--from", "2024-02-01", "--to", "2024-01-01"}, "is after end"},
		{"bad span", []string{"traffic", "1", "--from", "2024-01-01", "--to", "2024-01-02", "--max-span", "0d"}, "invalid --max-span"},
		{"bad level", []string{"traffic", "1", "--from", "2024-01-01", "--to", "2024-01-02", "--level", "city"}, "invalid configuration"},
		{"bad format", []string{"traffic", "1", "--from", "2024-01-01", "--format", "csv"}, "csv"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := runCLI(t, newApp(), append(tt.args, "--config", cfg, "--quiet")...)
			testutil.AssertErrorContains(t, err, tt.want)
		})
	}
	if got := m.Requests(); got != 0 {
		t.Errorf("server saw %d requests, want 0", got)
	}
}

func TestTrafficCommandWithMockClient(t *testing.T) {
	m := testutil.NewMockServer(t, nil)
	_, cfg := setupEnv(t, m)

	mock := telraam.NewMockClient()
	a := newApp()
	a.newClient = func(*app) (telraam.Client, error) { return mock, nil }

	stdout, _, err := runCLI(t, a, "traffic", "348917", "--config", cfg,
		"--from", "2024-01-01", "--to", "2024-01-02", "--quiet")
	testutil.AssertNoError(t, err)

	if got := countLines(stdout); got != 24 {
		t.Errorf("got %d lines on stdout, want 24", got)
	}
	reqs := mock.Requests()
	if len(reqs) != 1 || reqs[0].Format != telraam.FormatPerHour || reqs[0].Level != telraam.LevelSegments {
		t.Errorf("unexpected requests: %+v", reqs)
	}
}

func TestWelcomeCommand(t *testing.T) {
	m := testutil.NewMockServer(t, nil)
	_, cfg := setupEnv(t, m)

	stdout, _, err := runCLI(t, newApp(), "welcome", "--config", cfg)
	testutil.AssertNoError(t, err)
	testutil.AssertContainsString(t, stdout, "up and running")
}

func TestSegmentsCommand(t *testing.T) {
	m := testutil.NewMockServer(t, nil)
	m.AddSegment(testutil.NewSegmentFeatureBuilder(348917))
	m.AddSegment(testutil.NewSegmentFeatureBuilder(9000001234).
		WithLineString([2]float64{3.7250, 51.0540}, [2]float64{3.7262, 51.0551}))
	m.AddSegment(testutil.NewSegmentFeatureBuilder(7).
		WithGeometry("LineString", [][2]float64{{4.70, 50.86}}))
	_, cfg := setupEnv(t, m)

	stdout, stderr, err := runCLI(t, newApp(), "segments", "--config", cfg)
	testutil.AssertNoError(t, err)
	if got := countLines(stdout); got != 2 {
		t.Errorf("got %d segments, want 2", got)
	}
	testutil.AssertContainsString(t, stderr, "skipped 1 feature(s)")
	testutil.AssertContainsString(t, stdout, `"MultiLineString"`)

	stdout, _, err = runCLI(t, newApp(), "segments", "--config", cfg, "--bbox", "4.6,50.8,4.8,50.9")
	testutil.AssertNoError(t, err)
	if got := countLines(stdout); got != 1 {
		t.Errorf("got %d segments in bbox, want 1", got)
	}
	testutil.AssertContainsString(t, stdout, `"id":348917`)
}

func TestSegmentCommand(t *testing.T) {
	m := testutil.NewMockServer(t, nil)
	m.AddSegment(testutil.NewSegmentFeatureBuilder(348917))
	m.AddCamera(testutil.NewCameraBuilder(1692, 202481587145269, 348917))
	_, cfg := setupEnv(t, m)

	stdout, _, err := runCLI(t, newApp(), "segment", "348917", "--cameras", "--config", cfg)
	testutil.AssertNoError(t, err)
	testutil.AssertContainsString(t, stdout, `"cameras":[`)
	testutil.AssertContainsString(t, stdout, `"mac":202481587145269`)

	_, _, err = runCLI(t, newApp(), "segment", "42", "--config", cfg)
	if !errors.Is(err, relaierrors.ErrNotFound) {
		t.Errorf("segment 42 error = %v, want ErrNotFound", err)
	}
}

func TestCamerasCommand(t *testing.T) {
	m := testutil.NewMockServer(t, nil)
	m.AddCamera(testutil.NewCameraBuilder(1692, 202481587145269, 348917))
	m.AddCamera(testutil.NewCameraBuilder(1693, 202481587145270, 348918).WithStatus("non_active"))
	home, cfg := setupEnv(t, m)
	out := filepath.Join(home, "cameras.json")

	_, _, err := runCLI(t, newApp(), "cameras", "--config", cfg, "--format", "json", "--output", out)
	testutil.AssertNoError(t, err)
	var cams []map[string]interface{}
	testutil.ReadJSON(t, out, &cams)
	if len(cams) != 2 {
		t.Errorf("got %d cameras, want 2", len(cams))
	}

	stdout, _, err := runCLI(t, newApp(), "cameras", "--config", cfg, "--mac", "202481587145270")
	testutil.AssertNoError(t, err)
	testutil.AssertContainsString(t, stdout, `"status":"non_active"`)

	_, _, err = runCLI(t, newApp(), "cameras", "--config", cfg, "--segment", "1", "--mac", "2")
	testutil.AssertErrorContains(t, err, "mutually exclusive")
}

func TestSnapshotCommand(t *testing.T) {
	m := testutil.NewMockServer(t, nil)
	m.SetSnapshot(
		map[string]interface{}{
			"type": "Feature",
			"geometry": map[string]interface{}{
				"type":        "MultiLineString",
				"coordinates": [][][2]float64{{{4.7113, 50.8644}, {4.7119, 50.8626}}},
			},
			"properties": map[string]interface{}{
				"segment_id": 348917,
				"date":       "2024-03-01T12:00:00.000Z",
				"period":     "hourly",
				"uptime":     0.8,
				"car":        140.0,
			},
		},
		map[string]interface{}{
			"type":       "Feature",
			"geometry":   map[string]interface{}{"type": "Point", "coordinates": []float64{4.7, 50.8}},
			"properties": map[string]interface{}{"segment_id": 1},
		},
	)
	_, cfg := setupEnv(t, m)

	stdout, stderr, err := runCLI(t, newApp(), "snapshot", "--config", cfg)
	testutil.AssertNoError(t, err)
	if got := countLines(stdout); got != 1 {
		t.Errorf("got %d snapshot features, want 1", got)
	}
	testutil.AssertContainsString(t, stdout, `"segment_id":348917`)
	testutil.AssertContainsString(t, stderr, "geometry type Point not accepted")
}

func TestResumeCommandEmptyGapFile(t *testing.T) {
	m := testutil.NewMockServer(t, testutil.HourlyReports(348917, trafficStart, 24))
	home, cfg := setupEnv(t, m)
	gapPath := filepath.Join(home, "segment.gaps.json")

	_, _, err := runCLI(t, newApp(), "traffic", "348917", "--config", cfg,
		"--from", "2024-01-01", "--to", "2024-01-02", "--gaps-file", gapPath, "--quiet")
	testutil.AssertNoError(t, err)
	testutil.AssertFileNotExists(t, gapPath)

	_, _, err = runCLI(t, newApp(), "resume", gapPath, "--config", cfg)
	testutil.AssertErrorContains(t, err, "no gap file found")
}
