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

package telraam

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	relaierrors "github.com/sirseerhq/telraam-relay/internal/errors"
)

// MockClient is a mock implementation of the Telraam Client interface for
// testing. It is safe for concurrent use.
type MockClient struct {
	mu sync.Mutex

	// Data to return
	Reports  []Report
	Segments []Segment
	Cams     []Camera
	Snapshot []SnapshotFeature

	// TrafficFunc, if set, replaces the default Traffic behavior
	TrafficFunc func(ctx context.Context, req TrafficRequest) ([]Report, error)

	// Error to return from every call
	Error error

	// Behavior flags
	ShouldFailAuth     bool
	ShouldFailNetwork  bool
	ShouldFailNotFound bool

	// Track calls for verification
	CallCount       int
	TrafficRequests []TrafficRequest
}

// NewMockClient creates a new mock client with default test data
func NewMockClient() *MockClient {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return &MockClient{
		Reports:  GenerateTestReports(348917, start, 72),
		Segments: generateTestSegments(),
		Cams:     generateTestCameras(),
	}
}

func (m *MockClient) enter(ctx context.Context) error {
	m.mu.Lock()
	m.CallCount++
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	if m.ShouldFailAuth {
		return &APIError{StatusCode: http.StatusUnauthorized, Message: "Invalid API key"}
	}
	if m.ShouldFailNetwork {
		return &TransportError{Method: http.MethodGet, Path: "mock", Err: fmt.Errorf("network timeout: %w", relaierrors.ErrNetworkFailure)}
	}
	if m.ShouldFailNotFound {
		return &APIError{StatusCode: http.StatusNotFound, Message: "not found"}
	}
	return m.Error
}

// Calls returns the number of calls made so far.
func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CallCount
}

// Requests returns a copy of the traffic requests seen so far.
func (m *MockClient) Requests() []TrafficRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]TrafficRequest(nil), m.TrafficRequests...)
}

// Welcome implements the Client interface
func (m *MockClient) Welcome(ctx context.Context) (Status, error) {
	if err := m.enter(ctx); err != nil {
		return Status{}, err
	}
	return Status{StatusCode: http.StatusOK, Message: "hello! Telraam server 2.0 is up and running"}, nil
}

// Traffic implements the Client interface. Without a TrafficFunc it returns
// the configured reports that fall inside the request window.
func (m *MockClient) Traffic(ctx context.Context, req TrafficRequest) ([]Report, error) {
	m.mu.Lock()
	m.TrafficRequests = append(m.TrafficRequests, req)
	m.mu.Unlock()

	if err := m.enter(ctx); err != nil {
		return nil, err
	}
	if m.TrafficFunc != nil {
		return m.TrafficFunc(ctx, req)
	}
	return ReportsInWindow(m.Reports, req.TimeStart, req.TimeEnd), nil
}

// ReportsInWindow returns the reports whose date lies in [start, end). A
// zero-length window matches reports dated exactly at start.
func ReportsInWindow(reports []Report, start, end time.Time) []Report {
	out := []Report{}
	for _, r := range reports {
		if start.Equal(end) {
			if r.Date.Equal(start) {
				out = append(out, r)
			}
			continue
		}
		if !r.Date.Before(start) && r.Date.Before(end) {
			out = append(out, r)
		}
	}
	return out
}

// TrafficSnapshotLive implements the Client interface
func (m *MockClient) TrafficSnapshotLive(ctx context.Context) (*SnapshotSet, error) {
	if err := m.enter(ctx); err != nil {
		return nil, err
	}
	return &SnapshotSet{Features: m.Snapshot}, nil
}

// Cameras implements the Client interface
func (m *MockClient) Cameras(ctx context.Context) ([]Camera, error) {
	if err := m.enter(ctx); err != nil {
		return nil, err
	}
	return m.Cams, nil
}

// CamerasBySegment implements the Client interface
func (m *MockClient) CamerasBySegment(ctx context.Context, segmentID string) ([]Camera, error) {
	if err := m.enter(ctx); err != nil {
		return nil, err
	}
	var out []Camera
	for _, c := range m.Cams {
		if fmt.Sprint(c.SegmentID) == segmentID {
			out = append(out, c)
		}
	}
	return out, nil
}

// CameraByMAC implements the Client interface
func (m *MockClient) CameraByMAC(ctx context.Context, mac int64) ([]Camera, error) {
	if err := m.enter(ctx); err != nil {
		return nil, err
	}
	var out []Camera
	for _, c := range m.Cams {
		if c.MAC == mac {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return nil, &APIError{StatusCode: http.StatusNotFound, Message: "camera not found"}
	}
	return out, nil
}

// Segment implements the Client interface
func (m *MockClient) Segment(ctx context.Context, id string) (*Segment, error) {
	if err := m.enter(ctx); err != nil {
		return nil, err
	}
	for _, s := range m.Segments {
		if string(s.ID) == id {
			seg := s
			return &seg, nil
		}
	}
	return nil, fmt.Errorf("segment %s: %w", id, relaierrors.ErrNotFound)
}

// AllSegments implements the Client interface
func (m *MockClient) AllSegments(ctx context.Context) (*SegmentSet, error) {
	if err := m.enter(ctx); err != nil {
		return nil, err
	}
	return &SegmentSet{Segments: m.Segments}, nil
}

// ActiveSegments implements the Client interface
func (m *MockClient) ActiveSegments(ctx context.Context, bound *orb.Bound) (*SegmentSet, error) {
	if err := m.enter(ctx); err != nil {
		return nil, err
	}
	segments := m.Segments
	if bound != nil {
		segments = FilterByBound(segments, *bound)
	}
	return &SegmentSet{Segments: segments}, nil
}

// GenerateTestReports creates hourly reports for one segment starting at
// start. Counts vary with the hour so merges can be checked exactly.
func GenerateTestReports(segmentID int64, start time.Time, hours int) []Report {
	reports := make([]Report, 0, hours)
	for i := 0; i < hours; i++ {
		reports = append(reports, Report{
			InstanceID: -1,
			SegmentID:  segmentID,
			Date:       start.Add(time.Duration(i) * time.Hour),
			Interval:   "hourly",
			Uptime:     0.75,
			Heavy:      float64(i % 7),
			Car:        float64(100 + i),
			Bike:       float64(20 + i%13),
			Pedestrian: float64(i % 5),
			Direction:  1,
			Timezone:   "Europe/Brussels",
			V85:        25.5,
		})
	}
	return reports
}

func generateTestSegments() []Segment {
	return []Segment{
		{
			ID:       "348917",
			Geometry: geojson.NewGeometry(orb.MultiLineString{{{4.7113, 50.8644}, {4.7119, 50.8626}}}),
			Speed:    50,
			Car:      237.2,
			Heavy:    70.3,
		},
		{
			ID:       "9000001234",
			Geometry: geojson.NewGeometry(orb.LineString{{3.7250, 51.0540}, {3.7262, 51.0551}}),
			Speed:    30,
			Oneway:   true,
		},
	}
}

func generateTestCameras() []Camera {
	added := time.Date(2019, 10, 2, 19, 42, 54, 0, time.UTC)
	return []Camera{
		{
			InstanceID:        1692,
			MAC:               202481587145269,
			UserID:            414,
			SegmentID:         348917,
			Direction:         true,
			Status:            "active",
			TimeAdded:         added,
			LastDataPackage:   added.Add(24 * time.Hour),
			IsCalibrationDone: true,
		},
	}
}

// MockClientOption allows configuring the mock client
type MockClientOption func(*MockClient)

// WithReports sets specific reports to return
func WithReports(reports []Report) MockClientOption {
	return func(m *MockClient) {
		m.Reports = reports
	}
}

// WithError makes the client return a specific error
func WithError(err error) MockClientOption {
	return func(m *MockClient) {
		m.Error = err
	}
}

// WithAuthFailure makes the client simulate authentication failure
func WithAuthFailure() MockClientOption {
	return func(m *MockClient) {
		m.ShouldFailAuth = true
	}
}

// NewMockClientWithOptions creates a mock client with options
func NewMockClientWithOptions(opts ...MockClientOption) *MockClient {
	mock := NewMockClient()
	for _, opt := range opts {
		opt(mock)
	}
	return mock
}
