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

package output

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// RecordWriter writes records one at a time.
type RecordWriter interface {
	// Write writes a single record to the output.
	Write(record any) error

	// Count returns the number of records written so far.
	Count() int

	// Close finishes the output and closes any file opened by the writer.
	// It must be called even for writers over caller-owned streams, since
	// some formats need a trailer.
	Close() error
}

// Format names an output encoding.
type Format string

const (
	FormatNDJSON Format = "ndjson"
	FormatJSON   Format = "json"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatNDJSON, FormatJSON:
		return f, nil
	}
	return "", fmt.Errorf("unknown output format %q, expected ndjson or json", s)
}

// New returns a writer for format over w. Closing it does not close w.
func New(format Format, w io.Writer) (RecordWriter, error) {
	switch format {
	case FormatNDJSON:
		return NewWriter(w), nil
	case FormatJSON:
		return NewJSONWriter(w), nil
	}
	return nil, fmt.Errorf("unknown output format %q", format)
}

// Open returns a writer for format over the file at path, or over stdout
// when path is "" or "-".
func Open(format Format, path string) (RecordWriter, error) {
	if path == "" || path == "-" {
		return New(format, os.Stdout)
	}

	switch format {
	case FormatNDJSON:
		return NewFileWriter(path)
	case FormatJSON:
		return NewJSONFileWriter(path)
	}
	return nil, fmt.Errorf("unknown output format %q", format)
}
