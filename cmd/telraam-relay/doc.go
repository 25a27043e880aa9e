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

// Package main implements the telraam-relay command-line interface, a thin
// layer over the Telraam traffic API client.
//
// The CLI supports:
//   - Fetching traffic reports for any date range, split into chunks the
//     API accepts and retried per chunk
//   - Resuming a partial fetch from its gap file
//   - Looking up segments (with GeoJSON geometry), cameras and the live
//     traffic snapshot
//   - NDJSON or indented JSON output to stdout or a file
//
// Usage:
//
//	telraam-relay traffic <segment-id> --from 2024-01-01 --to 2024-07-01 [flags]
//	telraam-relay resume <gaps-file>
//	telraam-relay segment <segment-id> [--cameras]
//	telraam-relay segments [--active] [--bbox lon1,lat1,lon2,lat2]
//	telraam-relay cameras [--segment id | --mac mac]
//	telraam-relay snapshot
//	telraam-relay welcome
//
// Example:
//
//	export TELRAAM_TOKEN=your_token
//	telraam-relay traffic 348917 --from 2024-01-01 --to 2024-04-01 --output traffic.ndjson
//
// The token may also be placed in a .env file in the working directory.
//
// Exit codes:
//   - 0: Success
//   - 1: General error
//   - 2: Authentication, not found or rate limit error
//   - 3: Network error
//   - 4: Partial result (some chunks are missing; see the gap file)
package main
