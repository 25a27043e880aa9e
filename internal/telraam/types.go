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
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/sirseerhq/telraam-relay/internal/timerange"
)

// Status is the status block every Telraam response carries. The welcome
// endpoint uses "msg" where the others use "message".
type Status struct {
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
	Code       string `json:"error_code,omitempty"`
}

// UnmarshalJSON accepts both "message" and "msg".
func (s *Status) UnmarshalJSON(data []byte) error {
	var raw struct {
		StatusCode int    `json:"status_code"`
		Message    string `json:"message"`
		Msg        string `json:"msg"`
		Code       string `json:"error_code"`
		ErrorType  string `json:"errorType"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.StatusCode = raw.StatusCode
	s.Message = raw.Message
	if s.Message == "" {
		s.Message = raw.Msg
	}
	s.Code = raw.Code
	if s.Code == "" {
		s.Code = raw.ErrorType
	}
	return nil
}

// Failed reports whether the body-level status code signals an error.
func (s Status) Failed() bool {
	return s.StatusCode > 299
}

// Level selects whether traffic is aggregated per segment or per camera instance.
type Level string

const (
	LevelSegments Level = "segments"
	LevelInstance Level = "instance"
)

// ParseLevel validates a level name.
func ParseLevel(s string) (Level, error) {
	switch Level(strings.ToLower(strings.TrimSpace(s))) {
	case LevelSegments:
		return LevelSegments, nil
	case LevelInstance:
		return LevelInstance, nil
	}
	return "", fmt.Errorf("unknown traffic level %q, expected segments or instance", s)
}

// FormatPerHour is the bucket granularity accepted by the traffic endpoint.
const FormatPerHour = "per-hour"

// telraamTimeLayout is the UTC millisecond layout the API expects in request bodies.
const telraamTimeLayout = "2006-01-02T15:04:05.000Z"

// TrafficRequest is the body of a reports/traffic call. The interval is
// closed-open: TimeEnd is not included.
type TrafficRequest struct {
	Level     Level
	Format    string
	ID        string
	TimeStart time.Time
	TimeEnd   time.Time
}

// MarshalJSON renders times in the API's UTC millisecond format.
func (r TrafficRequest) MarshalJSON() ([]byte, error) {
	level := r.Level
	if level == "" {
		level = LevelSegments
	}
	format := r.Format
	if format == "" {
		format = FormatPerHour
	}
	return json.Marshal(struct {
		Level     Level  `json:"level"`
		Format    string `json:"format"`
		ID        string `json:"id"`
		TimeStart string `json:"time_start"`
		TimeEnd   string `json:"time_end"`
	}{
		Level:     level,
		Format:    format,
		ID:        r.ID,
		TimeStart: r.TimeStart.UTC().Format(telraamTimeLayout),
		TimeEnd:   r.TimeEnd.UTC().Format(telraamTimeLayout),
	})
}

// Range returns the request's time interval.
func (r TrafficRequest) Range() timerange.DateRange {
	return timerange.DateRange{Start: r.TimeStart, End: r.TimeEnd}
}

// ForChunk returns a copy of the request narrowed to a chunk.
func (r TrafficRequest) ForChunk(c timerange.Chunk) TrafficRequest {
	r.TimeStart = c.Start
	r.TimeEnd = c.End
	return r
}

// Report is one traffic bucket: counts aggregated over a fixed interval
// starting at Date.
type Report struct {
	InstanceID             int64     `json:"instance_id"`
	SegmentID              int64     `json:"segment_id"`
	Date                   time.Time `json:"date"`
	Interval               string    `json:"interval"`
	Uptime                 float64   `json:"uptime"`
	Heavy                  float64   `json:"heavy"`
	Car                    float64   `json:"car"`
	Bike                   float64   `json:"bike"`
	Pedestrian             float64   `json:"pedestrian"`
	HeavyLeft              float64   `json:"heavy_lft"`
	HeavyRight             float64   `json:"heavy_rgt"`
	CarLeft                float64   `json:"car_lft"`
	CarRight               float64   `json:"car_rgt"`
	BikeLeft               float64   `json:"bike_lft"`
	BikeRight              float64   `json:"bike_rgt"`
	PedestrianLeft         float64   `json:"pedestrian_lft"`
	PedestrianRight        float64   `json:"pedestrian_rgt"`
	Direction              int       `json:"direction"`
	Timezone               string    `json:"timezone"`
	CarSpeedHist0to70Plus  []float64 `json:"car_speed_hist_0to70plus"`
	CarSpeedHist0to120Plus []float64 `json:"car_speed_hist_0to120plus"`
	V85                    float64   `json:"v85"`
}

// IntervalWidth maps an interval name to its duration.
func IntervalWidth(interval string) (time.Duration, bool) {
	switch interval {
	case "hourly":
		return time.Hour, true
	case "daily":
		return 24 * time.Hour, true
	}
	return 0, false
}

// End returns the end of the bucket.
func (r Report) End() time.Time {
	width, _ := IntervalWidth(r.Interval)
	return r.Date.Add(width)
}

// YesNo is a bool encoded as "yes" or "no".
type YesNo bool

// UnmarshalJSON decodes "yes"/"no"; JSON booleans are accepted too.
func (y *YesNo) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var b bool
		if bErr := json.Unmarshal(data, &b); bErr != nil {
			return fmt.Errorf("expected \"yes\" or \"no\", got %s", data)
		}
		*y = YesNo(b)
		return nil
	}
	switch s {
	case "yes":
		*y = true
	case "no":
		*y = false
	default:
		return fmt.Errorf("expected \"yes\" or \"no\", got %q", s)
	}
	return nil
}

// MarshalJSON encodes the value as "yes" or "no".
func (y YesNo) MarshalJSON() ([]byte, error) {
	if y {
		return []byte(`"yes"`), nil
	}
	return []byte(`"no"`), nil
}

// Camera is a camera instance: one device at one place on one side of a road.
// A moved or replaced camera produces a new instance.
type Camera struct {
	InstanceID        int64      `json:"instance_id"`
	MAC               int64      `json:"mac"`
	UserID            int64      `json:"user_id"`
	SegmentID         int64      `json:"segment_id"`
	Direction         bool       `json:"direction"`
	Status            string     `json:"status"`
	Manual            bool       `json:"manual"`
	TimeAdded         time.Time  `json:"time_added"`
	TimeEnd           *time.Time `json:"time_end"`
	LastDataPackage   time.Time  `json:"last_data_package"`
	FirstDataPackage  time.Time  `json:"first_data_package"`
	PedestriansLeft   bool       `json:"pedestrians_left"`
	PedestriansRight  bool       `json:"pedestrians_right"`
	BikesLeft         bool       `json:"bikes_left"`
	BikesRight        bool       `json:"bikes_right"`
	CarsLeft          bool       `json:"cars_left"`
	CarsRight         bool       `json:"cars_right"`
	IsCalibrationDone YesNo      `json:"is_calibration_done"`
}

// Active reports whether the camera is currently sending good data.
func (c Camera) Active() bool {
	return c.Status == "active" && c.TimeEnd == nil
}

// SegmentID identifies a road segment. The API sends it as a number in some
// payloads and as a string in others.
type SegmentID string

// UnmarshalJSON accepts a JSON number or string.
func (id *SegmentID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = SegmentID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("segment id must be a number or string, got %s", data)
	}
	*id = SegmentID(n.String())
	return nil
}

// MarshalJSON emits numeric ids as numbers.
func (id SegmentID) MarshalJSON() ([]byte, error) {
	if _, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// Segment is a mapped road section with its geometry and recent statistics.
type Segment struct {
	ID               SegmentID         `json:"id"`
	Geometry         *geojson.Geometry `json:"geometry"`
	Speed            float64           `json:"speed,omitempty"`
	Oneway           bool              `json:"oneway"`
	RoadType         string            `json:"road_type,omitempty"`
	RoadSpeed        string            `json:"road_speed,omitempty"`
	FirstDataPackage *time.Time        `json:"first_data_package,omitempty"`
	LastDataPackage  *time.Time        `json:"last_data_package,omitempty"`
	Pedestrian       float64           `json:"pedestrian,omitempty"`
	Bike             float64           `json:"bike,omitempty"`
	Car              float64           `json:"car,omitempty"`
	Heavy            float64           `json:"heavy,omitempty"`
	SpeedHistogram   []float64         `json:"speed_histogram,omitempty"`
	SpeedBuckets     []float64         `json:"speed_buckets,omitempty"`
	Cameras          []Camera          `json:"cameras,omitempty"`
}

// RejectedFeature records a GeoJSON feature left out of a decode because its
// geometry was invalid or of a type the caller did not accept.
type RejectedFeature struct {
	Index  int    `json:"index"`
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// SegmentSet is the decoded form of a segment FeatureCollection.
type SegmentSet struct {
	Segments []Segment
	Rejected []RejectedFeature
}

// SnapshotSet is the decoded form of a live traffic snapshot.
type SnapshotSet struct {
	Features []SnapshotFeature
	Rejected []RejectedFeature
}

// SnapshotFeature is the most recent traffic estimate for one segment.
type SnapshotFeature struct {
	SegmentID  SegmentID         `json:"segment_id"`
	Geometry   *geojson.Geometry `json:"geometry"`
	Date       time.Time         `json:"date"`
	Period     string            `json:"period,omitempty"`
	Uptime     float64           `json:"uptime"`
	Heavy      float64           `json:"heavy"`
	Car        float64           `json:"car"`
	Bike       float64           `json:"bike"`
	Pedestrian float64           `json:"pedestrian"`
	V85        float64           `json:"v85"`
}
