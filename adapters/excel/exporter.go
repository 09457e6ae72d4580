package excel

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"pivotdesk/domain/pivot"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// WorkbookExporter writes pivot grids as a single-sheet xlsx workbook
type WorkbookExporter struct{}

// NewWorkbookExporter creates an xlsx exporter
func NewWorkbookExporter() *WorkbookExporter {
	return &WorkbookExporter{}
}

func (e *WorkbookExporter) ContentType() string   { return xlsxContentType }
func (e *WorkbookExporter) FileExtension() string { return ".xlsx" }

// Export writes a header row of columns followed by one row per result row.
// Missing cells are left empty.
func (e *WorkbookExporter) Export(w io.Writer, sheet string, columns []string, rows []pivot.ResultRow) error {
	if sheet == "" {
		sheet = "Pivot"
	}
	if len(sheet) > 31 {
		sheet = sheet[:31]
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheet)
	if err != nil {
		return fmt.Errorf("failed to create sheet %s: %w", sheet, err)
	}
	f.SetActiveSheet(index)
	if sheet != "Sheet1" {
		if err := f.DeleteSheet("Sheet1"); err != nil {
			return fmt.Errorf("failed to drop default sheet: %w", err)
		}
	}

	for col, name := range columns {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, name); err != nil {
			return err
		}
	}

	for r, row := range rows {
		for col, name := range columns {
			v, ok := row[name]
			if !ok || v == nil {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(col+1, r+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
