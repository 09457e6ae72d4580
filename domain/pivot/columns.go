package pivot

import "sort"

// ColumnOrder lists the columns of a result grid for tabular output: the row
// fields first, then every other key in first-seen row order, sorted within
// each row.
func ColumnOrder(rowFields []string, rows []ResultRow) []string {
	seen := make(map[string]bool)
	cols := make([]string, 0, len(rowFields))
	for _, f := range rowFields {
		if !seen[f] {
			seen[f] = true
			cols = append(cols, f)
		}
	}
	for _, row := range rows {
		keys := make([]string, 0, len(row))
		for k := range row {
			if !seen[k] {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			seen[k] = true
			cols = append(cols, k)
		}
	}
	return cols
}
