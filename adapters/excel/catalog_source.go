package excel

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"pivotdesk/domain/core"
	"pivotdesk/domain/pivot"
)

// CatalogSource exposes every .xlsx and .csv file in a directory as a data
// source. The data source name is the file name without extension.
type CatalogSource struct {
	config ExcelConfig
}

// NewCatalogSource creates a catalog source over config.Dir
func NewCatalogSource(config ExcelConfig) *CatalogSource {
	if config.MaxDistinctValues <= 0 {
		config.MaxDistinctValues = DefaultExcelConfig().MaxDistinctValues
	}
	return &CatalogSource{config: config}
}

// ListDataSources returns the sorted data source names found in the directory
func (s *CatalogSource) ListDataSources(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.config.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list data directory %s: %w", s.config.Dir, err)
	}

	seen := make(map[string]bool)
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !isSupported(entry.Name()) {
			continue
		}
		name := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// LoadCatalog reads the data source and collects the distinct values of every
// column in first-seen order.
func (s *CatalogSource) LoadCatalog(ctx context.Context, dataSource string) (*pivot.Catalog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := s.resolve(dataSource)
	if err != nil {
		return nil, err
	}

	options := make(map[string][]string)
	seen := make(map[string]map[string]bool)
	headers, err := NewDataReader(path, s.config.Sheet).Scan(ctx, func(row RawRowData) error {
		for h, v := range row {
			set, ok := seen[h]
			if !ok {
				set = make(map[string]bool)
				seen[h] = set
			}
			if set[v] || len(options[h]) >= s.config.MaxDistinctValues {
				continue
			}
			set[v] = true
			options[h] = append(options[h], v)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog for %s: %w", dataSource, err)
	}

	for _, h := range headers {
		if h != "" && options[h] == nil {
			options[h] = []string{}
		}
	}
	return pivot.NewCatalog(headers, options), nil
}

// Path returns the file backing dataSource
func (s *CatalogSource) Path(dataSource string) (string, error) {
	return s.resolve(dataSource)
}

func (s *CatalogSource) resolve(dataSource string) (string, error) {
	if dataSource == "" || strings.ContainsAny(dataSource, `/\`) || strings.Contains(dataSource, "..") {
		return "", fmt.Errorf("%w: %s", core.ErrDataSourceNotFound, dataSource)
	}
	for _, ext := range []string{".xlsx", ".csv"} {
		path := filepath.Join(s.config.Dir, dataSource+ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: %s", core.ErrDataSourceNotFound, dataSource)
}

func isSupported(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".csv":
		return true
	}
	return false
}
