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
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

var errMissing = errors.New("required field is missing")

// DefaultSegmentGeometries are the geometry types a road segment may have.
var DefaultSegmentGeometries = []string{"LineString", "MultiLineString"}

// timestampLayouts are tried in order. The API mostly sends RFC 3339 with
// milliseconds but older endpoints use a space separator.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// flexTime decodes any of the timestamp layouts the API is known to emit.
type flexTime struct {
	time.Time
}

func (t *flexTime) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := parseTimestamp(s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

func (t *flexTime) value() time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.Time
}

func (t *flexTime) ptr() *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	v := t.Time
	return &v
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// decodeErr builds a DecodeError, extending the path with the field
// encoding/json reports for type mismatches.
func decodeErr(path string, err error) *DecodeError {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		path = path + "." + typeErr.Field
	}
	return &DecodeError{Field: path, Err: err}
}

// DecodeWelcome decodes the response of the API root.
func DecodeWelcome(data []byte) (Status, error) {
	var status Status
	if err := json.Unmarshal(data, &status); err != nil {
		return Status{}, decodeErr("$", err)
	}
	if status.Message == "" {
		return Status{}, &DecodeError{Field: "msg", Err: errMissing}
	}
	return status, nil
}

type reportFields Report

type wireReport struct {
	reportFields
	Date     *flexTime `json:"date"`
	Interval *string   `json:"interval"`
}

// DecodeTraffic decodes the report array of a reports/traffic response.
// Every report must carry a date and a known interval.
func DecodeTraffic(data []byte) ([]Report, error) {
	var env struct {
		Report []json.RawMessage `json:"report"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, decodeErr("$", err)
	}
	if env.Report == nil {
		return nil, &DecodeError{Field: "report", Err: errMissing}
	}

	reports := make([]Report, 0, len(env.Report))
	for i, raw := range env.Report {
		path := fmt.Sprintf("report[%d]", i)

		var w wireReport
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, decodeErr(path, err)
		}
		if w.Date == nil || w.Date.IsZero() {
			return nil, &DecodeError{Field: path + ".date", Err: errMissing}
		}
		if w.Interval == nil {
			return nil, &DecodeError{Field: path + ".interval", Err: errMissing}
		}
		if _, ok := IntervalWidth(*w.Interval); !ok {
			return nil, &DecodeError{Field: path + ".interval", Err: fmt.Errorf("unknown interval %q", *w.Interval)}
		}

		r := Report(w.reportFields)
		r.Date = w.Date.Time
		r.Interval = *w.Interval
		reports = append(reports, r)
	}
	return reports, nil
}

// DecodeCameras decodes a cameras response. The API uses both "cameras" and
// "camera" for the list.
func DecodeCameras(data []byte) ([]Camera, error) {
	var env struct {
		Cameras []json.RawMessage `json:"cameras"`
		Camera  []json.RawMessage `json:"camera"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, decodeErr("$", err)
	}
	list := env.Cameras
	if list == nil {
		list = env.Camera
	}
	if list == nil {
		return nil, &DecodeError{Field: "cameras", Err: errMissing}
	}

	cameras := make([]Camera, 0, len(list))
	for i, raw := range list {
		var w wireCamera
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, decodeErr(fmt.Sprintf("cameras[%d]", i), err)
		}
		c := Camera(w.cameraFields)
		c.TimeAdded = w.TimeAdded.value()
		c.TimeEnd = w.TimeEnd.ptr()
		c.LastDataPackage = w.LastDataPackage.value()
		c.FirstDataPackage = w.FirstDataPackage.value()
		cameras = append(cameras, c)
	}
	return cameras, nil
}

type cameraFields Camera

// wireCamera shadows Camera's timestamps so they accept every layout in
// timestampLayouts.
type wireCamera struct {
	cameraFields
	TimeAdded        *flexTime `json:"time_added"`
	TimeEnd          *flexTime `json:"time_end"`
	LastDataPackage  *flexTime `json:"last_data_package"`
	FirstDataPackage *flexTime `json:"first_data_package"`
}

type wireFeature struct {
	Type       string          `json:"type"`
	Geometry   json.RawMessage `json:"geometry"`
	Properties json.RawMessage `json:"properties"`
}

// decodeFeatures walks a FeatureCollection, handing each feature's
// properties to fn along with its geometry. Features whose geometry is
// missing, invalid or not in accept are recorded and skipped.
func decodeFeatures(data []byte, accept []string, fn func(path string, geom *geojson.Geometry, props json.RawMessage) error) ([]RejectedFeature, error) {
	var env struct {
		Type     string            `json:"type"`
		Features []json.RawMessage `json:"features"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, decodeErr("$", err)
	}
	if env.Type != "FeatureCollection" {
		return nil, &DecodeError{Field: "type", Err: fmt.Errorf("expected FeatureCollection, got %q", env.Type)}
	}

	var rejected []RejectedFeature
	for i, raw := range env.Features {
		path := fmt.Sprintf("features[%d]", i)

		var f wireFeature
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, decodeErr(path, err)
		}

		geom, gtype, reason := decodeGeometry(f.Geometry, accept)
		if reason != "" {
			rejected = append(rejected, RejectedFeature{Index: i, Type: gtype, Reason: reason})
			continue
		}
		if err := fn(path, geom, f.Properties); err != nil {
			return nil, err
		}
	}
	return rejected, nil
}

// decodeGeometry returns the parsed geometry, or a non-empty reason when the
// geometry cannot be used.
func decodeGeometry(raw json.RawMessage, accept []string) (*geojson.Geometry, string, string) {
	if isNull(raw) {
		return nil, "", "missing geometry"
	}
	geom, err := geojson.UnmarshalGeometry(raw)
	if err != nil {
		return nil, "", err.Error()
	}

	if len(accept) > 0 && !contains(accept, geom.Type) {
		return nil, geom.Type, fmt.Sprintf("geometry type %s not accepted", geom.Type)
	}
	if reason := validateGeometry(geom.Geometry()); reason != "" {
		return nil, geom.Type, reason
	}
	return geom, geom.Type, ""
}

func validateGeometry(g orb.Geometry) string {
	switch v := g.(type) {
	case nil:
		return "empty geometry"
	case orb.LineString:
		if len(v) < 2 {
			return "line string needs at least two positions"
		}
	case orb.MultiLineString:
		if len(v) == 0 {
			return "multi line string has no lines"
		}
		for _, ls := range v {
			if len(ls) < 2 {
				return "line string needs at least two positions"
			}
		}
	}

	b := g.Bound()
	if b.Min.Lon() < -180 || b.Max.Lon() > 180 || b.Min.Lat() < -90 || b.Max.Lat() > 90 {
		return "coordinates outside WGS84 bounds"
	}
	return ""
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

type segmentProperties struct {
	OIDN             *SegmentID `json:"oidn"`
	SegmentID        *SegmentID `json:"segment_id"`
	FirstDataPackage *flexTime  `json:"first_data_package"`
	LastDataPackage  *flexTime  `json:"last_data_package"`
	Speed            float64    `json:"speed"`
	Oneway           bool       `json:"oneway"`
	RoadType         string     `json:"road_type"`
	RoadSpeed        string     `json:"road_speed"`
	Pedestrian       float64    `json:"pedestrian"`
	Bike             float64    `json:"bike"`
	Car              float64    `json:"car"`
	Lorry            float64    `json:"lorry"`
	Heavy            *float64   `json:"heavy"`
	SpeedHistogram   []float64  `json:"speed_histogram"`
	SpeedBuckets     []float64  `json:"speed_buckets"`
}

// DecodeSegments decodes a segment FeatureCollection. With no accept list
// DefaultSegmentGeometries is used.
func DecodeSegments(data []byte, accept ...string) (*SegmentSet, error) {
	if len(accept) == 0 {
		accept = DefaultSegmentGeometries
	}

	set := &SegmentSet{}
	rejected, err := decodeFeatures(data, accept, func(path string, geom *geojson.Geometry, props json.RawMessage) error {
		var p segmentProperties
		if !isNull(props) {
			if err := json.Unmarshal(props, &p); err != nil {
				return decodeErr(path+".properties", err)
			}
		}

		var id SegmentID
		switch {
		case p.SegmentID != nil:
			id = *p.SegmentID
		case p.OIDN != nil:
			id = *p.OIDN
		default:
			return &DecodeError{Field: path + ".properties.segment_id", Err: errMissing}
		}

		heavy := p.Lorry
		if p.Heavy != nil {
			heavy = *p.Heavy
		}

		set.Segments = append(set.Segments, Segment{
			ID:               id,
			Geometry:         geom,
			Speed:            p.Speed,
			Oneway:           p.Oneway,
			RoadType:         p.RoadType,
			RoadSpeed:        p.RoadSpeed,
			FirstDataPackage: p.FirstDataPackage.ptr(),
			LastDataPackage:  p.LastDataPackage.ptr(),
			Pedestrian:       p.Pedestrian,
			Bike:             p.Bike,
			Car:              p.Car,
			Heavy:            heavy,
			SpeedHistogram:   p.SpeedHistogram,
			SpeedBuckets:     p.SpeedBuckets,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	set.Rejected = rejected
	return set, nil
}

type snapshotProperties struct {
	SegmentID  *SegmentID `json:"segment_id"`
	Date       *flexTime  `json:"date"`
	Period     string     `json:"period"`
	Uptime     float64    `json:"uptime"`
	Heavy      float64    `json:"heavy"`
	Car        float64    `json:"car"`
	Bike       float64    `json:"bike"`
	Pedestrian float64    `json:"pedestrian"`
	V85        float64    `json:"v85"`
}

// DecodeSnapshot decodes a traffic_snapshot_live FeatureCollection.
func DecodeSnapshot(data []byte, accept ...string) (*SnapshotSet, error) {
	if len(accept) == 0 {
		accept = DefaultSegmentGeometries
	}

	set := &SnapshotSet{}
	rejected, err := decodeFeatures(data, accept, func(path string, geom *geojson.Geometry, props json.RawMessage) error {
		var p snapshotProperties
		if isNull(props) {
			return &DecodeError{Field: path + ".properties", Err: errMissing}
		}
		if err := json.Unmarshal(props, &p); err != nil {
			return decodeErr(path+".properties", err)
		}
		if p.SegmentID == nil {
			return &DecodeError{Field: path + ".properties.segment_id", Err: errMissing}
		}

		f := SnapshotFeature{
			SegmentID:  *p.SegmentID,
			Geometry:   geom,
			Period:     p.Period,
			Uptime:     p.Uptime,
			Heavy:      p.Heavy,
			Car:        p.Car,
			Bike:       p.Bike,
			Pedestrian: p.Pedestrian,
			V85:        p.V85,
		}
		if p.Date != nil {
			f.Date = p.Date.Time
		}
		set.Features = append(set.Features, f)
		return nil
	})
	if err != nil {
		return nil, err
	}
	set.Rejected = rejected
	return set, nil
}

// FilterByBound keeps the segments whose geometry intersects b.
func FilterByBound(segments []Segment, b orb.Bound) []Segment {
	var out []Segment
	for _, s := range segments {
		if s.Geometry == nil {
			continue
		}
		if s.Geometry.Geometry().Bound().Intersects(b) {
			out = append(out, s)
		}
	}
	return out
}
