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
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
)

// JSONWriter writes records as the elements of one indented JSON array.
// Nothing is written until the first record; Close writes the closing
// bracket, or "[]" when no record was written.
type JSONWriter struct {
	mu        sync.Mutex
	output    io.Writer
	count     int
	closed    bool
	closeFunc func() error
}

// NewJSONWriter creates a JSON array writer over w.
func NewJSONWriter(w io.Writer) *JSONWriter {
	return &JSONWriter{output: w}
}

// NewJSONFileWriter creates a JSON array writer over a new file.
func NewJSONFileWriter(filename string) (*JSONWriter, error) {
	file, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}

	w := NewJSONWriter(file)
	w.closeFunc = file.Close
	return w, nil
}

// Write appends one element to the array.
func (w *JSONWriter) Write(record any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("failed to write record: writer is closed")
	}

	data, err := json.MarshalIndent(record, "  ", "  ")
	if err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}

	sep := ",\n  "
	if w.count == 0 {
		sep = "[\n  "
	}
	if _, err := io.WriteString(w.output, sep); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	if _, err := w.output.Write(data); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}

	w.count++
	return nil
}

// Count returns the number of records written.
func (w *JSONWriter) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Close terminates the array and closes the underlying file, if any.
// Calling Close more than once is a no-op.
func (w *JSONWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	trailer := "\n]\n"
	if w.count == 0 {
		trailer = "[]\n"
	}
	_, err := io.WriteString(w.output, trailer)

	if w.closeFunc != nil {
		if cerr := w.closeFunc(); err == nil {
			err = cerr
		}
	}
	if err != nil {
		return fmt.Errorf("failed to close output: %w", err)
	}
	return nil
}
