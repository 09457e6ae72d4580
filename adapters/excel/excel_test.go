package excel

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"pivotdesk/domain/core"
	"pivotdesk/domain/pivot"
)

const salesCSV = "Region,Product,Sales\n" +
	"East,Widget,10\n" +
	"West,Gadget,20\n" +
	"East,Gadget,30\n" +
	" North ,Widget,40\n"

func writeXLSX(t *testing.T, path string, sheet string, rows [][]any) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	if sheet != "Sheet1" {
		_, err := f.NewSheet(sheet)
		require.NoError(t, err)
	}
	for r, row := range rows {
		for c, v := range row {
			cell, err := excelize.CoordinatesToCellName(c+1, r+1)
			require.NoError(t, err)
			require.NoError(t, f.SetCellValue(sheet, cell, v))
		}
	}
	require.NoError(t, f.SaveAs(path))
}

func newSource(t *testing.T) (*CatalogSource, string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sales.csv"), []byte(salesCSV), 0o644))
	writeXLSX(t, filepath.Join(dir, "orders.xlsx"), "Sheet1", [][]any{
		{"Customer", "Status"},
		{"acme", "open"},
		{"globex", "closed"},
		{"acme", "closed"},
	})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	cfg := DefaultExcelConfig()
	cfg.Dir = dir
	return NewCatalogSource(cfg), dir
}

func TestDataReader_CSV(t *testing.T) {
	_, dir := newSource(t)

	data, err := NewDataReader(filepath.Join(dir, "sales.csv"), "").ReadData(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"Region", "Product", "Sales"}, data.Headers)
	require.Len(t, data.Rows, 4)
	assert.Equal(t, "North", data.Rows[3]["Region"])
	assert.Equal(t, "40", data.Rows[3]["Sales"])
}

func TestDataReader_XLSXFallsBackToFirstSheet(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "only.xlsx")
	writeXLSX(t, path, "Sheet1", [][]any{{"A"}, {"x"}})

	data, err := NewDataReader(path, "Missing").ReadData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, data.Headers)
	assert.Equal(t, "x", data.Rows[0]["A"])
}

func TestDataReader_MissingFile(t *testing.T) {
	_, err := NewDataReader(filepath.Join(t.TempDir(), "nope.csv"), "").ReadData(context.Background())
	assert.Error(t, err)
}

func TestDataReader_ShortRowsArePadded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.csv")
	require.NoError(t, os.WriteFile(path, []byte("A,B,\n1\n2,3,extra\n"), 0o644))

	data, err := NewDataReader(path, "").ReadData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", ""}, data.Headers)
	assert.Equal(t, []RawRowData{{"A": "1", "B": ""}, {"A": "2", "B": "3"}}, data.Rows)
}

func TestDataReader_ScanStopsOnCancelledContext(t *testing.T) {
	_, dir := newSource(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewDataReader(filepath.Join(dir, "sales.csv"), "").Scan(ctx, func(RawRowData) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCatalogSource_ListDataSources(t *testing.T) {
	src, _ := newSource(t)

	names, err := src.ListDataSources(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"orders", "sales"}, names)
}

func TestCatalogSource_LoadCatalog(t *testing.T) {
	src, _ := newSource(t)
	ctx := context.Background()

	cat, err := src.LoadCatalog(ctx, "sales")
	require.NoError(t, err)
	assert.Equal(t, []string{"Region", "Product", "Sales"}, cat.Fields())
	assert.Equal(t, []string{"East", "West", "North"}, cat.Options("Region"))
	assert.Equal(t, []string{"East", "West", "North"}, cat.Options("region"))

	cat, err = src.LoadCatalog(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, []string{"acme", "globex"}, cat.Options("Customer"))
	assert.Equal(t, []string{"open", "closed"}, cat.Options("Status"))
}

func TestCatalogSource_DistinctValueCap(t *testing.T) {
	_, dir := newSource(t)
	src := NewCatalogSource(ExcelConfig{Dir: dir, MaxDistinctValues: 2})

	cat, err := src.LoadCatalog(context.Background(), "sales")
	require.NoError(t, err)
	assert.Equal(t, []string{"East", "West"}, cat.Options("Region"))
}

func TestCatalogSource_UnknownDataSource(t *testing.T) {
	src, _ := newSource(t)

	for _, name := range []string{"missing", "../sales", "", "notes"} {
		_, err := src.LoadCatalog(context.Background(), name)
		require.Error(t, err, name)
		assert.True(t, errors.Is(err, core.ErrDataSourceNotFound), name)
		assert.True(t, core.IsNotFoundError(err), name)
	}
}

func TestWorkbookExporter_Export(t *testing.T) {
	rows := []pivot.ResultRow{
		{"Region": "East", "Sales": 40.0, "Profit": 4},
		{"Region": "West", "Sales": 20.0},
	}
	cols := pivot.ColumnOrder([]string{"Region"}, rows)
	assert.Equal(t, []string{"Region", "Profit", "Sales"}, cols)

	var buf bytes.Buffer
	exp := NewWorkbookExporter()
	require.NoError(t, exp.Export(&buf, "Sales by Region", cols, rows))
	assert.Equal(t, ".xlsx", exp.FileExtension())
	assert.Contains(t, exp.ContentType(), "spreadsheetml")

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Sales by Region"}, f.GetSheetList())
	got, err := f.GetRows("Sales by Region")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"Region", "Profit", "Sales"}, got[0])
	assert.Equal(t, []string{"East", "4", "40"}, got[1])
	assert.Equal(t, []string{"West", "", "20"}, got[2])
}
