// Package export writes extraction results to a spreadsheet.
package export

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/dgallion1/deckgest/internal/results"
	"github.com/dgallion1/deckgest/internal/schema"
)

const (
	SheetName   = "Investment Memos"
	FileName    = "investment_memos.xlsx"
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

const defaultColWidth = 30

var colWidths = map[string]float64{
	schema.FileNameKey: 30,
	"company":          20,
	"description":      50,
	"url":              30,
	"industry":         20,
	"traction":         40,
	"roundSize":        30,
}

// Exporter renders records into an XLSX workbook.
type Exporter struct {
	log *slog.Logger
}

func NewExporter(log *slog.Logger) *Exporter {
	if log == nil {
		log = slog.Default()
	}
	return &Exporter{log: log}
}

// WriteXLSX returns a workbook with one header row (File Name then the
// contract fields in order) and one row per record. An empty record list
// yields a header-only sheet. No bytes are returned on error.
func (e *Exporter) WriteXLSX(records []results.Record, c *schema.Contract) ([]byte, error) {
	start := time.Now()

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return nil, fmt.Errorf("name sheet: %w", err)
	}

	fields := c.Fields()
	keys := make([]string, 0, len(fields)+1)
	header := make([]any, 0, len(fields)+1)
	keys = append(keys, schema.FileNameKey)
	header = append(header, "File Name")
	for _, fd := range fields {
		keys = append(keys, fd.Key)
		header = append(header, fd.Name)
	}

	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}
	lastCol, _ := excelize.ColumnNumberToName(len(keys))
	if err := f.SetCellStyle(SheetName, "A1", lastCol+"1", bold); err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}

	for i, r := range records {
		row := make([]any, 0, len(keys))
		row = append(row, r.FileName)
		for _, k := range keys[1:] {
			row = append(row, r.Value(k))
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	for i, k := range keys {
		col, _ := excelize.ColumnNumberToName(i + 1)
		width, ok := colWidths[k]
		if !ok {
			width = defaultColWidth
		}
		if err := f.SetColWidth(SheetName, col, col, width); err != nil {
			return nil, fmt.Errorf("set column width: %w", err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	e.log.Info("export.xlsx.ok",
		"rows", len(records),
		"columns", len(keys),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}
