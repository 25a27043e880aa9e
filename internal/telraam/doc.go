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

// Package telraam provides a client for the Telraam traffic-counting API.
// It covers authentication, request construction, response classification
// and decoding of JSON and GeoJSON payloads into typed values.
//
// The package includes:
//   - A Client interface covering every supported endpoint
//   - An HTTP implementation that authenticates with the X-Api-Key header
//   - A Retrier state machine and a RetryClient built on it
//   - Mock client for testing
//   - Type definitions for reports, segments, cameras and snapshots
//
// Basic usage:
//
//	client, err := telraam.NewHTTPClient("your-telraam-token", telraam.DefaultEndpoint)
//	if err != nil {
//	    // Handle error
//	}
//	reports, err := client.Traffic(ctx, telraam.TrafficRequest{
//	    Level:     telraam.LevelSegments,
//	    ID:        "348917",
//	    TimeStart: start,
//	    TimeEnd:   end,
//	})
//	if err != nil {
//	    // Handle error
//	}
//	for _, r := range reports {
//	    // Process bucket
//	}
package telraam
