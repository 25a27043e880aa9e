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

	"github.com/paulmach/orb"
)

// Client defines the interface for interacting with the Telraam API.
// This interface allows for easy mocking in tests.
type Client interface {
	// Welcome calls the API root. It is the cheapest way to check that the
	// service is up and the token is accepted.
	Welcome(ctx context.Context) (Status, error)

	// Traffic retrieves the traffic buckets for one request window. The
	// window must not exceed the API's maximum span; callers with longer
	// ranges go through the fetch package, which chunks them.
	Traffic(ctx context.Context, req TrafficRequest) ([]Report, error)

	// TrafficSnapshotLive retrieves the most recent traffic estimate for
	// every active segment.
	TrafficSnapshotLive(ctx context.Context) (*SnapshotSet, error)

	Cameras(ctx context.Context) ([]Camera, error)
	CamerasBySegment(ctx context.Context, segmentID string) ([]Camera, error)
	CameraByMAC(ctx context.Context, mac int64) ([]Camera, error)

	// Segment looks up a single segment by id.
	Segment(ctx context.Context, id string) (*Segment, error)

	AllSegments(ctx context.Context) (*SegmentSet, error)

	// ActiveSegments lists segments with an active camera. A non-nil bound
	// keeps only segments whose geometry intersects it.
	ActiveSegments(ctx context.Context, bound *orb.Bound) (*SegmentSet, error)
}
