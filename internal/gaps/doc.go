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

// Package gaps persists the chunks a partial traffic fetch could not
// retrieve, so that a later run can request only those.
//
// A gap file records which windows are missing, never traffic data. Writes
// are atomic (write-to-temp-and-rename) and every file carries a schema
// version and a SHA256 checksum that is verified on load.
//
// Example usage:
//
//	outcome, err := fetcher.Fetch(ctx, req)
//	if err == nil && outcome.Status == fetch.StatusPartial {
//	    g := gaps.New(tracker.FetchID(), req, maxSpan, outcome.Failed)
//	    err = gaps.Save(g, gaps.DefaultPath(req.ID))
//	}
package gaps
