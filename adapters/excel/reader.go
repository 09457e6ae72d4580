package excel

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"pivotdesk/internal"
)

// DataReader streams rows out of an .xlsx or .csv file
type DataReader struct {
	filePath string
	fileType string // "xlsx" or "csv"
	sheet    string
	logger   *internal.Logger
}

// NewDataReader creates a reader for filePath. For workbooks, sheet names the
// worksheet to read; an empty or unknown name selects the first sheet.
func NewDataReader(filePath, sheet string) *DataReader {
	fileType := "xlsx"
	if strings.EqualFold(filepath.Ext(filePath), ".csv") {
		fileType = "csv"
	}
	return &DataReader{
		filePath: filePath,
		fileType: fileType,
		sheet:    sheet,
		logger:   internal.NewDefaultLogger().With("DataReader"),
	}
}

// ReadData loads the whole file into memory
func (r *DataReader) ReadData(ctx context.Context) (*ExcelData, error) {
	data := &ExcelData{}
	headers, err := r.Scan(ctx, func(row RawRowData) error {
		data.Rows = append(data.Rows, row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	data.Headers = headers
	if data.Rows == nil {
		data.Rows = []RawRowData{}
	}
	return data, nil
}

// Scan calls visit for every data row, keyed by trimmed header, and returns
// the headers. Short rows are padded with empty cells; cells under an empty
// header are dropped. Scanning stops at the first error from visit or when
// ctx is done.
func (r *DataReader) Scan(ctx context.Context, visit func(RawRowData) error) ([]string, error) {
	if _, err := os.Stat(r.filePath); err != nil {
		return nil, fmt.Errorf("%s file not found: %s", strings.ToUpper(r.fileType), r.filePath)
	}

	start := time.Now()
	var headers []string
	count := 0
	each := func(cells []string) error {
		if headers == nil {
			headers = make([]string, len(cells))
			for i, h := range cells {
				headers[i] = strings.TrimSpace(h)
			}
			return nil
		}
		if count%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		count++
		row := make(RawRowData, len(headers))
		for j, h := range headers {
			if h == "" {
				continue
			}
			if j < len(cells) {
				row[h] = strings.TrimSpace(cells[j])
			} else {
				row[h] = ""
			}
		}
		return visit(row)
	}

	var err error
	if r.fileType == "csv" {
		err = r.eachCSVRow(each)
	} else {
		err = r.eachSheetRow(each)
	}
	if err != nil {
		return nil, err
	}
	if headers == nil {
		return nil, fmt.Errorf("%s file must have at least a header row", strings.ToUpper(r.fileType))
	}

	r.logger.Debug("%s processed in %s (%d columns, %d rows)", filepath.Base(r.filePath), time.Since(start).Round(time.Millisecond), len(headers), count)
	return headers, nil
}

func (r *DataReader) eachSheetRow(fn func([]string) error) error {
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return fmt.Errorf("failed to open Excel file: %w", err)
	}
	defer f.Close()

	sheet := r.sheet
	if idx, err := f.GetSheetIndex(sheet); sheet == "" || err != nil || idx < 0 {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return fmt.Errorf("Excel file has no sheets")
		}
		sheet = sheets[0]
	}

	rows, err := f.Rows(sheet)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", sheet, err)
	}
	defer rows.Close()

	for rows.Next() {
		cells, err := rows.Columns()
		if err != nil {
			return fmt.Errorf("failed to read row of %s: %w", sheet, err)
		}
		if err := fn(cells); err != nil {
			return err
		}
	}
	return rows.Error()
}

func (r *DataReader) eachCSVRow(fn func([]string) error) error {
	file, err := os.Open(r.filePath)
	if err != nil {
		return fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	for {
		cells, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read CSV file: %w", err)
		}
		if err := fn(cells); err != nil {
			return err
		}
	}
}
