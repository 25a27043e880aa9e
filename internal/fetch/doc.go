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

// Package fetch retrieves traffic reports for date ranges longer than the
// Telraam API accepts in a single request.
//
// A Fetcher splits the range into chunks, retries each chunk on transient
// failures, checks that every chunk's buckets are ordered and inside the
// chunk, and merges the results in chunk order. Chunks that still fail are
// reported alongside the data instead of discarding it:
//
//	f := fetch.New(client, fetch.Options{MaxSpan: 90 * 24 * time.Hour})
//	out, err := f.Fetch(ctx, req)
//	if err != nil {
//	    // nothing usable: invalid range, inconsistent data, cancellation,
//	    // or every chunk failed (*fetch.NoDataError)
//	}
//	if out.Status == fetch.StatusPartial {
//	    // out.Failed lists the missing chunks
//	}
package fetch
