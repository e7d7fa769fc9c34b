// internal/output/manager.go
package output

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/valpere/relay-scraper/internal/config"
	"github.com/valpere/relay-scraper/internal/record"
	"github.com/valpere/relay-scraper/internal/utils"
)

type sink struct {
	format Format
	target string
	writer Writer
}

// Manager fans records out to every configured sink.
type Manager struct {
	sinks  []sink
	logger utils.Logger
}

// NewManager opens every sink named in cfg. If one fails to open, the sinks
// opened so far are closed and the error is returned.
func NewManager(ctx context.Context, cfg config.OutputConfig, logger utils.Logger) (*Manager, error) {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	m := &Manager{logger: logger}

	open := func(format Format, target string, create func() (Writer, error)) error {
		w, err := create()
		if err != nil {
			return fmt.Errorf("open %s output %s: %w", format, target, err)
		}
		m.sinks = append(m.sinks, sink{format: format, target: target, writer: w})
		return nil
	}

	var err error
	if cfg.CSV != "" {
		err = open(FormatCSV, cfg.CSV, func() (Writer, error) { return NewCSVWriter(cfg.CSV) })
	}
	if err == nil && cfg.JSON != "" {
		err = open(FormatJSON, cfg.JSON, func() (Writer, error) { return NewJSONWriter(cfg.JSON) })
	}
	if err == nil && cfg.XLSX != "" {
		err = open(FormatXLSX, cfg.XLSX, func() (Writer, error) { return NewExcelWriter(cfg.XLSX) })
	}
	if err == nil && cfg.SQL != nil {
		err = open(FormatSQL, cfg.SQL.Driver+":"+cfg.SQL.Table, func() (Writer, error) { return NewSQLWriter(ctx, *cfg.SQL) })
	}
	if err == nil && cfg.Mongo != nil {
		err = open(FormatMongo, cfg.Mongo.Database+"."+cfg.Mongo.Collection, func() (Writer, error) { return NewMongoDBWriter(ctx, *cfg.Mongo) })
	}
	if err != nil {
		m.Close()
		return nil, err
	}
	return m, nil
}

// Formats lists the open sinks.
func (m *Manager) Formats() []Format {
	out := make([]Format, len(m.sinks))
	for i, s := range m.sinks {
		out[i] = s.format
	}
	return out
}

// Write writes records to every sink. A failing sink does not stop the
// others; all failures are joined into the returned error.
func (m *Manager) Write(records []record.Record) ([]Result, error) {
	results := make([]Result, 0, len(m.sinks))
	var errs []error
	for _, s := range m.sinks {
		start := time.Now()
		err := s.writer.Write(records)
		res := Result{Format: s.format, Target: s.target, Records: len(records), Duration: time.Since(start)}
		if err != nil {
			res.Records = 0
			res.Error = err.Error()
			errs = append(errs, fmt.Errorf("write %s output %s: %w", s.format, s.target, err))
			m.logger.Errorf("Failed to write %s output %s: %v", s.format, s.target, err)
		} else {
			m.logger.Infof("Wrote %d record(s) to %s output %s", len(records), s.format, s.target)
		}
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}

// Close closes every sink and returns the joined errors.
func (m *Manager) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.writer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s output %s: %w", s.format, s.target, err))
		}
	}
	m.sinks = nil
	return errors.Join(errs...)
}
