package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/nao1215/linkprobe/internal/model"
)

// Sheet names of the workbook XLSXWriter produces.
const (
	SheetSummary = "Summary"
	SheetBroken  = "Broken Links"
	SheetPages   = "Pages"
)

// XLSXWriter renders a workbook with a summary sheet, one row per broken
// link and one row per fetched page, for people who triage links in a
// spreadsheet.
type XLSXWriter struct {
	baseWriter
}

// NewXLSXWriter returns an XLSXWriter writing to output. The output is
// binary, so it is normally a file.
func NewXLSXWriter(output io.Writer) *XLSXWriter {
	return &XLSXWriter{baseWriter: newBaseWriter(output)}
}

// Write renders the report.
func (w *XLSXWriter) Write(report *model.CrawlReport) (int, error) {
	f := excelize.NewFile()
	defer f.Close()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return 0, fmt.Errorf("failed to create header style: %w", err)
	}

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return 0, fmt.Errorf("failed to rename sheet: %w", err)
	}
	if err := writeSummarySheet(f, report, bold); err != nil {
		return 0, err
	}

	brokenRows := make([][]any, len(report.Broken))
	for i, b := range report.Broken {
		brokenRows[i] = []any{b.Target, b.StatusCode, b.Failure().String(), b.Reason(), b.Referrer, b.Line, b.Text, b.External}
	}
	if err := writeTableSheet(f, SheetBroken, bold,
		[]any{"Target", "Status", "Failure", "Reason", "Found On", "Line", "Text", "External"},
		brokenRows, []float64{60, 8, 18, 30, 60, 6, 30, 9}); err != nil {
		return 0, err
	}

	pageRows := make([][]any, len(report.Pages))
	for i, p := range report.Pages {
		pageRows[i] = []any{p.URL, p.StatusCode, p.ContentType, p.Bytes, p.Duration.Milliseconds(), p.CacheStatus, p.LinksFound, p.Fingerprint}
	}
	if err := writeTableSheet(f, SheetPages, bold,
		[]any{"URL", "Status", "Content Type", "Bytes", "Time (ms)", "Cache", "Links", "Fingerprint"},
		pageRows, []float64{60, 8, 20, 12, 10, 9, 8, 66}); err != nil {
		return 0, err
	}

	n, err := f.WriteTo(w.output)
	if err != nil {
		return int(n), fmt.Errorf("failed to write workbook: %w", err)
	}
	return int(n), nil
}

func writeSummarySheet(f *excelize.File, report *model.CrawlReport, bold int) error {
	s := report.Summarize()
	rows := [][]any{
		{"Start URL", report.StartURL},
		{"Mode", string(report.Mode)},
		{"Started", report.StartedAt.Format("2006-01-02 15:04:05 MST")},
		{"Duration (ms)", report.Duration().Milliseconds()},
		{"Status", statusText(report)},
		{"Links checked", s.LinksChecked},
		{"Broken links", s.Broken},
		{"Pages fetched", s.Pages},
		{"Bytes read", s.Bytes},
		{"Cache hits", s.CacheHits},
		{"Cache misses", s.CacheMisses},
	}
	for _, fl := range failureOrder {
		rows = append(rows, []any{fl.String(), s.ByFailure[fl]})
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SheetSummary, cell, &row); err != nil {
			return fmt.Errorf("failed to write summary row: %w", err)
		}
	}
	if err := f.SetColStyle(SheetSummary, "A", bold); err != nil {
		return fmt.Errorf("failed to style summary: %w", err)
	}
	return f.SetColWidth(SheetSummary, "A", "B", 24)
}

func writeTableSheet(f *excelize.File, sheet string, bold int, header []any, rows [][]any, widths []float64) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", sheet, err)
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write %s header: %w", sheet, err)
	}
	if err := f.SetRowStyle(sheet, 1, 1, bold); err != nil {
		return fmt.Errorf("failed to style %s header: %w", sheet, err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write %s row %d: %w", sheet, i+2, err)
		}
	}
	for i, width := range widths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheet, col, col, width); err != nil {
			return fmt.Errorf("failed to size %s column %s: %w", sheet, col, err)
		}
	}
	return nil
}
