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
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/spf13/cobra"

	"github.com/sirseerhq/telraam-relay/internal/telraam"
)

func newWelcomeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "welcome",
		Short: "Check that the API is reachable and the token is accepted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.retryingClient()
			if err != nil {
				return err
			}
			status, err := client.Welcome(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(a.stdout, status.Message)
			return nil
		},
	}
}

func newSegmentCommand(a *app) *cobra.Command {
	var withCameras bool

	cmd := &cobra.Command{
		Use:   "segment <segment-id>",
		Short: "Show one road segment with its geometry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseSegmentID(args[0])
			if err != nil {
				return err
			}
			client, err := a.retryingClient()
			if err != nil {
				return err
			}

			seg, err := client.Segment(cmd.Context(), id)
			if err != nil {
				return err
			}
			if withCameras {
				cams, err := client.CamerasBySegment(cmd.Context(), id)
				if err != nil {
					return fmt.Errorf("failed to list cameras of segment %s: %w", id, err)
				}
				seg.Cameras = cams
			}

			w, err := a.openWriter()
			if err != nil {
				return err
			}
			return writeAll(w, []*telraam.Segment{seg})
		},
	}

	cmd.Flags().BoolVar(&withCameras, "cameras", false, "Include the cameras installed on the segment")
	return cmd
}

func newSegmentsCommand(a *app) *cobra.Command {
	var (
		active bool
		bbox   string
	)

	cmd := &cobra.Command{
		Use:   "segments",
		Short: "List road segments as GeoJSON-backed records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var bound *orb.Bound
			if bbox != "" {
				b, err := parseBBox(bbox)
				if err != nil {
					return err
				}
				bound = &b
			}

			client, err := a.retryingClient()
			if err != nil {
				return err
			}

			var set *telraam.SegmentSet
			if active || bound != nil {
				set, err = client.ActiveSegments(cmd.Context(), bound)
			} else {
				set, err = client.AllSegments(cmd.Context())
			}
			if err != nil {
				return err
			}

			reportRejected(a, set.Rejected)

			w, err := a.openWriter()
			if err != nil {
				return err
			}
			if err := writeAll(w, set.Segments); err != nil {
				return err
			}
			fmt.Fprintf(a.stderr, "Wrote %d segments\n", len(set.Segments))
			return nil
		},
	}

	cmd.Flags().BoolVar(&active, "active", false, "Only segments with an active camera")
	cmd.Flags().StringVar(&bbox, "bbox", "", "Only segments intersecting lon1,lat1,lon2,lat2 (implies --active)")
	return cmd
}

func newCamerasCommand(a *app) *cobra.Command {
	var (
		segment string
		mac     int64
	)

	cmd := &cobra.Command{
		Use:   "cameras",
		Short: "List camera instances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if segment != "" && cmd.Flags().Changed("mac") {
				return fmt.Errorf("--segment and --mac are mutually exclusive")
			}

			client, err := a.retryingClient()
			if err != nil {
				return err
			}

			var cams []telraam.Camera
			switch {
			case segment != "":
				id, perr := parseSegmentID(segment)
				if perr != nil {
					return perr
				}
				cams, err = client.CamerasBySegment(cmd.Context(), id)
			case cmd.Flags().Changed("mac"):
				cams, err = client.CameraByMAC(cmd.Context(), mac)
			default:
				cams, err = client.Cameras(cmd.Context())
			}
			if err != nil {
				return err
			}

			w, err := a.openWriter()
			if err != nil {
				return err
			}
			return writeAll(w, cams)
		},
	}

	cmd.Flags().StringVar(&segment, "segment", "", "Only cameras on this segment")
	cmd.Flags().Int64Var(&mac, "mac", 0, "Only the camera with this MAC address")
	return cmd
}

func newSnapshotCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot",
		Short: "Show the live traffic snapshot of all segments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.retryingClient()
			if err != nil {
				return err
			}
			set, err := client.TrafficSnapshotLive(cmd.Context())
			if err != nil {
				return err
			}

			reportRejected(a, set.Rejected)

			w, err := a.openWriter()
			if err != nil {
				return err
			}
			return writeAll(w, set.Features)
		},
	}
}

func reportRejected(a *app, rejected []telraam.RejectedFeature) {
	if len(rejected) == 0 {
		return
	}
	fmt.Fprintf(a.stderr, "Warning: skipped %d feature(s) with unusable geometry\n", len(rejected))
	for _, r := range rejected {
		fmt.Fprintf(a.stderr, "  features[%d] (%s): %s\n", r.Index, r.Type, r.Reason)
	}
}

// parseSegmentID accepts a positive integer id.
func parseSegmentID(s string) (string, error) {
	s = strings.TrimSpace(s)
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return "", fmt.Errorf("invalid segment id %q, expected a positive integer", s)
	}
	return strconv.FormatInt(n, 10), nil
}

// parseBBox parses "lon1,lat1,lon2,lat2" in WGS84 degrees. The corners may
// be given in any order.
func parseBBox(s string) (orb.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return orb.Bound{}, fmt.Errorf("invalid bbox %q, expected lon1,lat1,lon2,lat2", s)
	}

	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("invalid bbox %q: %w", s, err)
		}
		v[i] = f
	}

	for _, lon := range []float64{v[0], v[2]} {
		if lon < -180 || lon > 180 {
			return orb.Bound{}, fmt.Errorf("invalid bbox %q: longitude %v out of range", s, lon)
		}
	}
	for _, lat := range []float64{v[1], v[3]} {
		if lat < -90 || lat > 90 {
			return orb.Bound{}, fmt.Errorf("invalid bbox %q: latitude %v out of range", s, lat)
		}
	}

	return orb.MultiPoint{{v[0], v[1]}, {v[2], v[3]}}.Bound(), nil
}
