// internal/output/excel.go
package output

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"github.com/valpere/relay-scraper/internal/record"
)

// DefaultExcelSheet is the worksheet records are written to.
const DefaultExcelSheet = "Events"

var excelColumnWidths = map[string]float64{
	"country":    10,
	"event_name": 45,
	"date":       14,
	"emails":     40,
	"source_url": 70,
}

// ExcelWriter writes records to a single worksheet of an .xlsx workbook.
// The file is saved on Close.
type ExcelWriter struct {
	file      *excelize.File
	filePath  string
	sheetName string
	rows      int
}

// NewExcelWriter creates a workbook that will be saved to filePath.
func NewExcelWriter(filePath string) (*ExcelWriter, error) {
	if filePath == "" {
		return nil, fmt.Errorf("Excel file path is required")
	}

	file := excelize.NewFile()
	if defaultSheet := file.GetSheetName(0); defaultSheet != DefaultExcelSheet {
		if err := file.SetSheetName(defaultSheet, DefaultExcelSheet); err != nil {
			return nil, err
		}
	}

	return &ExcelWriter{
		file:      file,
		filePath:  filePath,
		sheetName: DefaultExcelSheet,
	}, nil
}

// Write writes the header row and one row per record.
func (w *ExcelWriter) Write(records []record.Record) error {
	if err := w.writeRow(1, record.Columns); err != nil {
		return err
	}
	if err := w.applyHeaderStyle(); err != nil {
		return err
	}
	for i, r := range records {
		if err := w.writeRow(i+2, r.Row()); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}
	w.rows = len(records)
	return w.applyFinalFormatting()
}

func (w *ExcelWriter) writeRow(row int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return w.file.SetSheetRow(w.sheetName, cell, &cells)
}

func (w *ExcelWriter) applyHeaderStyle() error {
	style, err := w.file.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 12},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	if err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(record.Columns), 1)
	if err != nil {
		return err
	}
	return w.file.SetCellStyle(w.sheetName, "A1", last, style)
}

// applyFinalFormatting sets column widths, an auto filter over the data and
// a frozen header row.
func (w *ExcelWriter) applyFinalFormatting() error {
	for i, header := range record.Columns {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		width, ok := excelColumnWidths[header]
		if !ok {
			width = 15
		}
		if err := w.file.SetColWidth(w.sheetName, col, col, width); err != nil {
			return err
		}
	}

	last, err := excelize.CoordinatesToCellName(len(record.Columns), w.rows+1)
	if err != nil {
		return err
	}
	if err := w.file.AutoFilter(w.sheetName, "A1:"+last, nil); err != nil {
		return err
	}

	return w.file.SetPanes(w.sheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

// Close saves the workbook.
func (w *ExcelWriter) Close() error {
	if w.file == nil {
		return nil
	}
	defer func() {
		w.file.Close()
		w.file = nil
	}()

	if dir := filepath.Dir(w.filePath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	return w.file.SaveAs(w.filePath)
}
