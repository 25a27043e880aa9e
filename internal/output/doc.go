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

// Package output writes fetched records as NDJSON (one JSON object per line)
// or as a single indented JSON array.
//
// Both writers stream: each record is encoded as soon as it is written, so
// the full result never has to be held in memory twice. Writers are safe for
// concurrent use.
//
// Example usage:
//
//	w, err := output.Open(output.FormatNDJSON, "traffic.ndjson")
//	if err != nil {
//	    return err
//	}
//	defer w.Close()
//
//	for _, r := range outcome.Reports {
//	    if err := w.Write(r); err != nil {
//	        return err
//	    }
//	}
package output
