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

// Package testutil provides common test helpers for telraam-relay
package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// TestToken is the API key MockServer accepts.
const TestToken = "test-api-key"

// TrafficBody is the decoded body of a reports/traffic request.
type TrafficBody struct {
	Level     string `json:"level"`
	Format    string `json:"format"`
	ID        string `json:"id"`
	TimeStart string `json:"time_start"`
	TimeEnd   string `json:"time_end"`
}

type injectedFailure struct {
	status    int
	remaining int
}

// MockServer is an in-process stand-in for the Telraam API. It serves the
// reports registered on it and can be told to fail specific chunks.
type MockServer struct {
	*httptest.Server
	RequestCount int32

	mu       sync.Mutex
	reports  []map[string]interface{}
	segments []*SegmentFeatureBuilder
	cameras  []*CameraBuilder
	snapshot []map[string]interface{}
	failures map[int64]*injectedFailure
	traffic  []TrafficBody
}

// NewMockServer creates a Telraam mock serving reports. The server is
// closed when the test ends.
func NewMockServer(t *testing.T, reports []map[string]interface{}) *MockServer {
	t.Helper()

	m := &MockServer{
		reports:  reports,
		failures: make(map[int64]*injectedFailure),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1", m.handleWelcome)
	mux.HandleFunc("GET /v1/{$}", m.handleWelcome)
	mux.HandleFunc("POST /v1/reports/traffic", m.handleTraffic)
	mux.HandleFunc("GET /v1/reports/traffic_snapshot_live", m.handleSnapshot)
	mux.HandleFunc("GET /v1/segments/all", m.handleSegments)
	mux.HandleFunc("GET /v1/segments/active", m.handleSegments)
	mux.HandleFunc("GET /v1/segments/id/{id}", m.handleSegment)
	mux.HandleFunc("GET /v1/cameras", m.handleCameras)
	mux.HandleFunc("GET /v1/cameras/segment/{id}", m.handleCamerasBySegment)
	mux.HandleFunc("GET /v1/cameras/{mac}", m.handleCameraByMAC)

	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&m.RequestCount, 1)
		if r.Header.Get("X-Api-Key") != TestToken {
			writeJSON(w, http.StatusForbidden, map[string]interface{}{"message": "Forbidden"})
			return
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(m.Close)

	return m
}

// Endpoint returns the versioned API root of the mock.
func (m *MockServer) Endpoint() string {
	return m.URL + "/v1"
}

// Requests returns the number of requests served so far.
func (m *MockServer) Requests() int {
	return int(atomic.LoadInt32(&m.RequestCount))
}

// TrafficRequests returns a copy of the traffic bodies received so far.
func (m *MockServer) TrafficRequests() []TrafficBody {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]TrafficBody(nil), m.traffic...)
}

// FailChunk makes traffic requests whose window starts at start fail with
// status. times < 0 fails forever.
func (m *MockServer) FailChunk(start time.Time, status, times int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[start.UTC().Unix()] = &injectedFailure{status: status, remaining: times}
}

// ClearFailures removes every injected failure.
func (m *MockServer) ClearFailures() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = make(map[int64]*injectedFailure)
}

// AddSegment registers a road segment.
func (m *MockServer) AddSegment(b *SegmentFeatureBuilder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.segments = append(m.segments, b)
}

// AddCamera registers a camera instance.
func (m *MockServer) AddCamera(b *CameraBuilder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cameras = append(m.cameras, b)
}

// SetSnapshot sets the features of the live snapshot.
func (m *MockServer) SetSnapshot(features ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot = features
}

func (m *MockServer) handleWelcome(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status_code": 200,
		"message":     "hello! Telraam server 2.0 is up and running",
	})
}

func (m *MockServer) handleTraffic(w http.ResponseWriter, r *http.Request) {
	var body TrafficBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"message": "invalid body"})
		return
	}
	start, err1 := time.Parse(time.RFC3339, body.TimeStart)
	end, err2 := time.Parse(time.RFC3339, body.TimeEnd)
	if err1 != nil || err2 != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"message": "invalid time window"})
		return
	}

	m.mu.Lock()
	m.traffic = append(m.traffic, body)
	status := 0
	if f, ok := m.failures[start.Unix()]; ok && f.remaining != 0 {
		status = f.status
		if f.remaining > 0 {
			f.remaining--
		}
	}
	reports := m.reports
	m.mu.Unlock()

	if status != 0 {
		if status == http.StatusTooManyRequests {
			w.Header().Set("Retry-After", "0")
		}
		writeJSON(w, status, map[string]interface{}{
			"status_code": status,
			"message":     http.StatusText(status),
		})
		return
	}

	var window []map[string]interface{}
	for _, rep := range reports {
		ds, ok := rep["date"].(string)
		if !ok {
			window = append(window, rep)
			continue
		}
		d, err := time.Parse(time.RFC3339, ds)
		if err != nil {
			continue
		}
		if !d.Before(start) && d.Before(end) {
			window = append(window, rep)
		}
	}
	writeJSON(w, http.StatusOK, TrafficResponse(window))
}

func (m *MockServer) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	m.mu.Lock()
	features := m.snapshot
	m.mu.Unlock()
	writeJSON(w, http.StatusOK, FeatureCollection(features...))
}

func (m *MockServer) handleSegments(w http.ResponseWriter, _ *http.Request) {
	m.mu.Lock()
	features := make([]map[string]interface{}, 0, len(m.segments))
	for _, s := range m.segments {
		features = append(features, s.Build())
	}
	m.mu.Unlock()
	writeJSON(w, http.StatusOK, FeatureCollection(features...))
}

func (m *MockServer) handleSegment(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	m.mu.Lock()
	var features []map[string]interface{}
	for _, s := range m.segments {
		if strconv.FormatInt(s.ID(), 10) == id {
			features = append(features, s.Build())
		}
	}
	m.mu.Unlock()
	writeJSON(w, http.StatusOK, FeatureCollection(features...))
}

func (m *MockServer) handleCameras(w http.ResponseWriter, _ *http.Request) {
	m.writeCameras(w, func(*CameraBuilder) bool { return true }, false)
}

func (m *MockServer) handleCamerasBySegment(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	m.writeCameras(w, func(c *CameraBuilder) bool {
		return strconv.FormatInt(c.SegmentID(), 10) == id
	}, false)
}

func (m *MockServer) handleCameraByMAC(w http.ResponseWriter, r *http.Request) {
	mac := r.PathValue("mac")
	m.writeCameras(w, func(c *CameraBuilder) bool {
		return strconv.FormatInt(c.MAC(), 10) == mac
	}, true)
}

func (m *MockServer) writeCameras(w http.ResponseWriter, keep func(*CameraBuilder) bool, notFound bool) {
	m.mu.Lock()
	cams := []map[string]interface{}{}
	for _, c := range m.cameras {
		if keep(c) {
			cams = append(cams, c.Build())
		}
	}
	m.mu.Unlock()

	if notFound && len(cams) == 0 {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{
			"status_code": 404,
			"message":     "camera not found",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status_code": 200,
		"message":     "ok",
		"cameras":     cams,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// NewRateLimitServer creates a mock server that answers 429 with
// Retry-After for the first successAfterCount requests, then serves an
// empty traffic report.
func NewRateLimitServer(t *testing.T, retryAfter, successAfterCount int) *MockServer {
	t.Helper()
	m := &MockServer{}

	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count := atomic.AddInt32(&m.RequestCount, 1)

		if count <= int32(successAfterCount) {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			writeJSON(w, http.StatusTooManyRequests, map[string]interface{}{
				"message": "Too Many Requests",
			})
			return
		}
		writeJSON(w, http.StatusOK, TrafficResponse(nil))
	}))
	t.Cleanup(m.Close)

	return m
}

// NewErrorServer creates a mock server that always returns the specified
// status with a plain-text body.
func NewErrorServer(t *testing.T, statusCode int) *MockServer {
	t.Helper()
	m := &MockServer{}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&m.RequestCount, 1)
		w.WriteHeader(statusCode)
		_, _ = w.Write([]byte(http.StatusText(statusCode)))
	}))
	t.Cleanup(m.Close)
	return m
}

// NewTransientErrorServer creates a mock server that fails failCount times
// with errorCode, then serves reports.
func NewTransientErrorServer(t *testing.T, failCount, errorCode int, reports []map[string]interface{}) *MockServer {
	t.Helper()
	m := &MockServer{}

	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count := atomic.AddInt32(&m.RequestCount, 1)

		if count <= int32(failCount) {
			w.WriteHeader(errorCode)
			_, _ = w.Write([]byte(http.StatusText(errorCode)))
			return
		}
		writeJSON(w, http.StatusOK, TrafficResponse(reports))
	}))
	t.Cleanup(m.Close)

	return m
}
