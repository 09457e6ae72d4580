package excel

// ExcelConfig holds configuration for spreadsheet data sources
type ExcelConfig struct {
	Dir               string `json:"dir"`
	Sheet             string `json:"sheet"`
	MaxDistinctValues int    `json:"max_distinct_values"`
}

// DefaultExcelConfig returns sensible defaults for spreadsheet processing
func DefaultExcelConfig() ExcelConfig {
	return ExcelConfig{
		Dir:               "./data",
		Sheet:             "Sheet1",
		MaxDistinctValues: 5000,
	}
}
