// internal/output/json.go
package output

import (
	"encoding/json"
	"os"

	"github.com/valpere/relay-scraper/internal/record"
)

// JSONWriter writes records as an indented JSON array.
type JSONWriter struct {
	file *os.File
}

// NewJSONWriter creates filename, and its directory if needed.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	file, err := createFile(filename)
	if err != nil {
		return nil, err
	}
	return &JSONWriter{file: file}, nil
}

// Write encodes records. An empty run produces "[]".
func (w *JSONWriter) Write(records []record.Record) error {
	if records == nil {
		records = []record.Record{}
	}
	encoder := json.NewEncoder(w.file)
	encoder.SetIndent("", "  ")
	encoder.SetEscapeHTML(false)
	return encoder.Encode(records)
}

// Close closes the JSON writer
func (w *JSONWriter) Close() error {
	if w.file != nil {
		err := w.file.Close()
		w.file = nil
		return err
	}
	return nil
}
