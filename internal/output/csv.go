// internal/output/csv.go
package output

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/valpere/relay-scraper/internal/record"
)

// CSVWriter writes records as CSV with a fixed header row.
type CSVWriter struct {
	file   *os.File
	writer *csv.Writer
}

// NewCSVWriter creates filename, and its directory if needed.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	file, err := createFile(filename)
	if err != nil {
		return nil, err
	}
	return &CSVWriter{file: file, writer: csv.NewWriter(file)}, nil
}

// NewCSVStreamWriter writes CSV to w. Close does not close w.
func NewCSVStreamWriter(w io.Writer) *CSVWriter {
	return &CSVWriter{writer: csv.NewWriter(w)}
}

// Write writes the header followed by one row per record. The header is
// written even when records is empty.
func (w *CSVWriter) Write(records []record.Record) error {
	if err := w.writer.Write(record.Columns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, r := range records {
		if err := w.writer.Write(r.Row()); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
	}
	w.writer.Flush()
	return w.writer.Error()
}

// Close flushes and closes the file.
func (w *CSVWriter) Close() error {
	if w.writer != nil {
		w.writer.Flush()
		w.writer = nil
	}
	if w.file != nil {
		err := w.file.Close()
		w.file = nil
		return err
	}
	return nil
}
