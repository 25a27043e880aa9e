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

package testutil

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var reportFields = []string{"segment_id", "date", "interval", "uptime", "car", "bike", "pedestrian", "heavy"}

// AssertNDJSONOutput validates that a file holds one traffic report per
// line, in strictly ascending date order, and returns their dates.
func AssertNDJSONOutput(t *testing.T, filePath string, expectedReports int) []time.Time {
	t.Helper()

	file, err := os.Open(filePath)
	if err != nil {
		t.Fatalf("Failed to open output file: %v", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	var dates []time.Time

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		var report map[string]interface{}
		if err := json.Unmarshal([]byte(line), &report); err != nil {
			t.Errorf("Line %d: invalid JSON: %v", len(dates)+1, err)
			continue
		}
		dates = append(dates, checkReport(t, len(dates)+1, report))
	}

	if err := scanner.Err(); err != nil {
		t.Fatalf("Error reading file: %v", err)
	}

	if len(dates) != expectedReports {
		t.Errorf("Expected %d reports, got %d", expectedReports, len(dates))
	}
	assertAscending(t, dates)
	return dates
}

// AssertJSONOutput is AssertNDJSONOutput for the single-array format.
func AssertJSONOutput(t *testing.T, filePath string, expectedReports int) []time.Time {
	t.Helper()

	data, err := os.ReadFile(filePath)
	if err != nil {
		t.Fatalf("Failed to read output file: %v", err)
	}

	var reports []map[string]interface{}
	if err := json.Unmarshal(data, &reports); err != nil {
		t.Fatalf("Output is not a JSON array: %v", err)
	}

	dates := make([]time.Time, 0, len(reports))
	for i, report := range reports {
		dates = append(dates, checkReport(t, i+1, report))
	}

	if len(dates) != expectedReports {
		t.Errorf("Expected %d reports, got %d", expectedReports, len(dates))
	}
	assertAscending(t, dates)
	return dates
}

func checkReport(t *testing.T, n int, report map[string]interface{}) time.Time {
	t.Helper()

	for _, field := range reportFields {
		if _, ok := report[field]; !ok {
			t.Errorf("Report %d: missing required field '%s'", n, field)
		}
	}
	s, _ := report["date"].(string)
	d, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Errorf("Report %d: invalid date %q: %v", n, s, err)
	}
	return d
}

func assertAscending(t *testing.T, dates []time.Time) {
	t.Helper()
	for i := 1; i < len(dates); i++ {
		if !dates[i].After(dates[i-1]) {
			t.Errorf("Report %d (%s) is not after report %d (%s)", i+1, dates[i], i, dates[i-1])
		}
	}
}

// AssertMetadataFile validates the single fetch metadata file in dir and
// returns its decoded contents.
func AssertMetadataFile(t *testing.T, dir string) map[string]interface{} {
	t.Helper()

	matches, err := filepath.Glob(filepath.Join(dir, "fetch-metadata-*.json"))
	if err != nil {
		t.Fatalf("Failed to glob metadata files: %v", err)
	}
	if len(matches) == 0 {
		t.Fatal("No metadata file found")
	}
	if len(matches) > 1 {
		t.Fatalf("Expected one metadata file, found %d", len(matches))
	}

	var metadata map[string]interface{}
	ReadJSON(t, matches[0], &metadata)

	requiredFields := []string{"relay_version", "fetch_id", "parameters", "results", "chunks"}
	for _, field := range requiredFields {
		if _, ok := metadata[field]; !ok {
			t.Errorf("Missing required metadata field: %s", field)
		}
	}
	return metadata
}

// AssertGapFile validates a gap file and checks how many chunks it lists
// as missing.
func AssertGapFile(t *testing.T, path string, expectedMissing int) map[string]interface{} {
	t.Helper()

	AssertFilePermissions(t, path, 0o600)

	var gapFile map[string]interface{}
	ReadJSON(t, path, &gapFile)

	for _, field := range []string{"version", "checksum", "fetch_id", "request", "range", "missing"} {
		if _, ok := gapFile[field]; !ok {
			t.Errorf("Missing required gap file field: %s", field)
		}
	}

	missing, _ := gapFile["missing"].([]interface{})
	if len(missing) != expectedMissing {
		t.Errorf("Expected %d missing chunks, got %d", expectedMissing, len(missing))
	}
	return gapFile
}

// AssertContainsString checks if a string contains a substring
func AssertContainsString(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Errorf("Expected string to contain %q, got: %s", needle, haystack)
	}
}

// AssertNotContainsString checks if a string does not contain a substring
func AssertNotContainsString(t *testing.T, haystack, needle string) {
	t.Helper()
	if strings.Contains(haystack, needle) {
		t.Errorf("Expected string to NOT contain %q, got: %s", needle, haystack)
	}
}

// AssertErrorContains checks if an error contains expected text
func AssertErrorContains(t *testing.T, err error, expected string) {
	t.Helper()
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if !strings.Contains(err.Error(), expected) {
		t.Errorf("Expected error to contain %q, got: %v", expected, err)
	}
}

// AssertNoError fails the test if err is not nil
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
}

// AssertFilePermissions checks file has expected permissions
func AssertFilePermissions(t *testing.T, path string, expectedMode os.FileMode) {
	t.Helper()

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Failed to stat file: %v", err)
	}

	if mode := info.Mode().Perm(); mode != expectedMode {
		t.Errorf("Expected file mode %v, got %v", expectedMode, mode)
	}
}
