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
	"fmt"
	"time"
)

// ReportBuilder provides a fluent API for creating wire-format traffic
// reports.
type ReportBuilder struct {
	segmentID  int64
	instanceID int64
	date       time.Time
	interval   string
	uptime     float64
	heavy      float64
	car        float64
	bike       float64
	pedestrian float64
	v85        float64
	omitDate   bool
}

// NewReportBuilder creates a report builder for one hourly bucket.
func NewReportBuilder(segmentID int64, date time.Time) *ReportBuilder {
	return &ReportBuilder{
		segmentID:  segmentID,
		instanceID: -1,
		date:       date.UTC(),
		interval:   "hourly",
		uptime:     0.75,
		car:        120,
		bike:       25,
		pedestrian: 4,
		heavy:      3,
		v85:        31.5,
	}
}

// WithInterval sets the bucket interval ("hourly" or "daily")
func (b *ReportBuilder) WithInterval(interval string) *ReportBuilder {
	b.interval = interval
	return b
}

// WithUptime sets the fraction of the bucket the sensor was active
func (b *ReportBuilder) WithUptime(uptime float64) *ReportBuilder {
	b.uptime = uptime
	return b
}

// WithCounts sets the per-mode counts
func (b *ReportBuilder) WithCounts(car, bike, pedestrian, heavy float64) *ReportBuilder {
	b.car = car
	b.bike = bike
	b.pedestrian = pedestrian
	b.heavy = heavy
	return b
}

// WithInstance attributes the report to a single camera instance
func (b *ReportBuilder) WithInstance(id int64) *ReportBuilder {
	b.instanceID = id
	return b
}

// WithoutDate drops the date field, which the decoder rejects.
func (b *ReportBuilder) WithoutDate() *ReportBuilder {
	b.omitDate = true
	return b
}

// Build creates the report as the API sends it
func (b *ReportBuilder) Build() map[string]interface{} {
	report := map[string]interface{}{
		"instance_id":    b.instanceID,
		"segment_id":     b.segmentID,
		"interval":       b.interval,
		"uptime":         b.uptime,
		"heavy":          b.heavy,
		"car":            b.car,
		"bike":           b.bike,
		"pedestrian":     b.pedestrian,
		"heavy_lft":      b.heavy / 2,
		"heavy_rgt":      b.heavy / 2,
		"car_lft":        b.car / 2,
		"car_rgt":        b.car / 2,
		"bike_lft":       b.bike / 2,
		"bike_rgt":       b.bike / 2,
		"pedestrian_lft": b.pedestrian / 2,
		"pedestrian_rgt": b.pedestrian / 2,
		"direction":      1,
		"timezone":       "Europe/Brussels",
		"v85":            b.v85,
		"car_speed_hist_0to70plus": []float64{
			0, 1.2, 5.4, 20.1, 40.3, 25.0, 6.0, 2.0,
		},
	}
	if !b.omitDate {
		report["date"] = b.date.Format("2006-01-02T15:04:05.000Z")
	}
	return report
}

// HourlyReports builds consecutive hourly reports starting at start.
func HourlyReports(segmentID int64, start time.Time, hours int) []map[string]interface{} {
	reports := make([]map[string]interface{}, 0, hours)
	for i := 0; i < hours; i++ {
		reports = append(reports, NewReportBuilder(segmentID, start.Add(time.Duration(i)*time.Hour)).
			WithCounts(float64(100+i), float64(20+i%13), float64(i%5), float64(i%7)).
			Build())
	}
	return reports
}

// TrafficResponse wraps reports in the reports/traffic envelope.
func TrafficResponse(reports []map[string]interface{}) map[string]interface{} {
	if reports == nil {
		reports = []map[string]interface{}{}
	}
	return map[string]interface{}{
		"status_code": 200,
		"message":     "ok",
		"report":      reports,
	}
}

// SegmentFeatureBuilder provides a fluent API for road segment features.
type SegmentFeatureBuilder struct {
	id           int64
	geometryType string
	coordinates  interface{}
	speed        float64
	oneway       bool
	roadType     string
	car          float64
	lastData     *time.Time
}

// NewSegmentFeatureBuilder creates a segment with a short two-point line
// near Leuven, offset by id so segments do not overlap.
func NewSegmentFeatureBuilder(id int64) *SegmentFeatureBuilder {
	offset := float64(id%100) * 0.001
	return &SegmentFeatureBuilder{
		id:           id,
		geometryType: "MultiLineString",
		coordinates: [][][2]float64{{
			{4.7113 + offset, 50.8644 + offset},
			{4.7119 + offset, 50.8626 + offset},
		}},
		speed:    50,
		roadType: "residential",
		car:      237.2,
	}
}

// WithLineString replaces the geometry with a LineString
func (b *SegmentFeatureBuilder) WithLineString(points ...[2]float64) *SegmentFeatureBuilder {
	b.geometryType = "LineString"
	b.coordinates = points
	return b
}

// WithGeometry sets an arbitrary geometry, including invalid ones
func (b *SegmentFeatureBuilder) WithGeometry(geometryType string, coordinates interface{}) *SegmentFeatureBuilder {
	b.geometryType = geometryType
	b.coordinates = coordinates
	return b
}

// WithOneway marks the segment as one-way
func (b *SegmentFeatureBuilder) WithOneway() *SegmentFeatureBuilder {
	b.oneway = true
	return b
}

// WithLastData sets the last data package time
func (b *SegmentFeatureBuilder) WithLastData(t time.Time) *SegmentFeatureBuilder {
	b.lastData = &t
	return b
}

// ID returns the segment id the builder was created with.
func (b *SegmentFeatureBuilder) ID() int64 {
	return b.id
}

// Build creates the GeoJSON feature
func (b *SegmentFeatureBuilder) Build() map[string]interface{} {
	props := map[string]interface{}{
		"oidn":       b.id,
		"speed":      b.speed,
		"oneway":     b.oneway,
		"road_type":  b.roadType,
		"road_speed": fmt.Sprintf("%g", b.speed),
		"car":        b.car,
		"bike":       12.5,
		"pedestrian": 3.0,
	}
	if b.lastData != nil {
		props["last_data_package"] = b.lastData.UTC().Format(time.RFC3339)
	}
	return map[string]interface{}{
		"type": "Feature",
		"geometry": map[string]interface{}{
			"type":        b.geometryType,
			"coordinates": b.coordinates,
		},
		"properties": props,
	}
}

// FeatureCollection wraps features in a GeoJSON FeatureCollection.
func FeatureCollection(features ...map[string]interface{}) map[string]interface{} {
	if features == nil {
		features = []map[string]interface{}{}
	}
	return map[string]interface{}{
		"type":     "FeatureCollection",
		"features": features,
	}
}

// CameraBuilder provides a fluent API for camera instances.
type CameraBuilder struct {
	instanceID int64
	mac        int64
	segmentID  int64
	status     string
}

// NewCameraBuilder creates an active camera watching segmentID.
func NewCameraBuilder(instanceID, mac, segmentID int64) *CameraBuilder {
	return &CameraBuilder{instanceID: instanceID, mac: mac, segmentID: segmentID, status: "active"}
}

// WithStatus sets the camera status ("active", "non_active", ...)
func (b *CameraBuilder) WithStatus(status string) *CameraBuilder {
	b.status = status
	return b
}

// MAC returns the camera's MAC address.
func (b *CameraBuilder) MAC() int64 {
	return b.mac
}

// SegmentID returns the segment the camera watches.
func (b *CameraBuilder) SegmentID() int64 {
	return b.segmentID
}

// Build creates the camera object as the API sends it
func (b *CameraBuilder) Build() map[string]interface{} {
	return map[string]interface{}{
		"instance_id":         b.instanceID,
		"mac":                 b.mac,
		"user_id":             414,
		"segment_id":          b.segmentID,
		"direction":           true,
		"status":              b.status,
		"manual":              false,
		"time_added":          "2019-10-02T19:42:54.000Z",
		"time_end":            nil,
		"last_data_package":   "2024-03-01T12:00:00.000Z",
		"first_data_package":  "2019-10-03T07:00:00.000Z",
		"pedestrians_left":    true,
		"pedestrians_right":   true,
		"bikes_left":          true,
		"bikes_right":         true,
		"cars_left":           true,
		"cars_right":          true,
		"is_calibration_done": "yes",
	}
}
