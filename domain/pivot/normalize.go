package pivot

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/floats"
)

// Normalize converts a computed grid into percentages. It never modifies rows
// and always returns new row maps, except for PercentageOff or an empty grid
// where rows is returned as is.
//
// Zero totals leave the affected row, column or table untouched, and cells
// that are missing or not numeric pass through unchanged. Columns that only
// duplicate another column under its canonical name are removed from the
// output.
func Normalize(rows []ResultRow, rowFields, columnFields []string, mode PercentageMode, decimals int, hierarchy []HierarchyNode) []ResultRow {
	if len(rows) == 0 {
		return rows
	}
	switch mode {
	case PercentageRow, PercentageColumn, PercentageGrandTotal:
	default:
		return rows
	}
	if decimals < 0 {
		decimals = 0
	}

	n := newNormalizer(rows, rowFields, columnFields, decimals)
	out := n.stripped()
	switch mode {
	case PercentageRow:
		n.byRow(out, hierarchy)
	case PercentageColumn:
		n.byColumn(out)
	case PercentageGrandTotal:
		n.byGrandTotal(out)
	}
	return out
}

// CanonicalKey lowercases name and drops every character outside [a-z0-9]
func CanonicalKey(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// IsGrandTotalColumn reports whether a value column is a synthetic grand total
func IsGrandTotalColumn(name string) bool {
	return isGrandTotalLabel(name)
}

func isGrandTotalLabel(s string) bool {
	lower := strings.ToLower(s)
	return strings.Contains(lower, "grand total") || lower == "grandtotal"
}

type normalizer struct {
	rows         []ResultRow
	rowFields    []string
	decimals     int
	derived      map[string]string
	valueColumns []string
}

func newNormalizer(rows []ResultRow, rowFields, columnFields []string, decimals int) *normalizer {
	// first-seen key order keeps the output deterministic
	seen := make(map[string]bool)
	var keys []string
	for _, row := range rows {
		rowKeys := make([]string, 0, len(row))
		for k := range row {
			rowKeys = append(rowKeys, k)
		}
		sort.Strings(rowKeys)
		for _, k := range rowKeys {
			if !seen[k] {
				seen[k] = true
				keys = append(keys, k)
			}
		}
	}

	byCanonical := make(map[string][]string)
	for _, k := range keys {
		c := CanonicalKey(k)
		byCanonical[c] = append(byCanonical[c], k)
	}
	// derived maps a canonical duplicate to the first real name it shadows
	derived := make(map[string]string)
	for _, k := range keys {
		if k != CanonicalKey(k) {
			continue
		}
		for _, other := range byCanonical[k] {
			if other != k {
				derived[k] = other
				break
			}
		}
	}

	dimensions := make(map[string]bool, len(rowFields)+len(columnFields))
	for _, f := range rowFields {
		dimensions[strings.ToLower(f)] = true
	}
	for _, f := range columnFields {
		dimensions[strings.ToLower(f)] = true
	}

	valueColumns := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, dup := derived[k]; dup || dimensions[strings.ToLower(k)] {
			continue
		}
		valueColumns = append(valueColumns, k)
	}

	return &normalizer{
		rows:         rows,
		rowFields:    rowFields,
		decimals:     decimals,
		derived:      derived,
		valueColumns: valueColumns,
	}
}

// stripped copies every row without the derived duplicate columns. A value
// held only under the derived name moves to the real column.
func (n *normalizer) stripped() []ResultRow {
	out := make([]ResultRow, len(n.rows))
	for i, row := range n.rows {
		clone := row.Clone()
		for k, name := range n.derived {
			v, ok := clone[k]
			if !ok {
				continue
			}
			delete(clone, k)
			if _, has := clone[name]; !has {
				clone[name] = v
			}
		}
		out[i] = clone
	}
	return out
}

// cell reads a numeric value by exact key, then by canonical key
func (n *normalizer) cell(row ResultRow, col string) (float64, bool) {
	if v, ok := row[col]; ok {
		if f, ok := toFloat(v); ok {
			return f, true
		}
	}
	if c := CanonicalKey(col); c != col {
		if v, ok := row[c]; ok {
			return toFloat(v)
		}
	}
	return 0, false
}

// present reports whether the row carries col under either key
func (n *normalizer) present(row ResultRow, col string) bool {
	if _, ok := row[col]; ok {
		return true
	}
	_, ok := row[CanonicalKey(col)]
	return ok
}

func (n *normalizer) isGrandTotalRow(row ResultRow) bool {
	for _, f := range n.rowFields {
		v, ok := lookupFold(row, f)
		if !ok {
			continue
		}
		if s, ok := v.(string); ok && isGrandTotalLabel(s) {
			return true
		}
	}
	return false
}

func (n *normalizer) percent(value, total float64) float64 {
	rounded, err := stats.Round(value/total*100, n.decimals)
	if err != nil {
		return value / total * 100
	}
	return rounded
}

func (n *normalizer) byRow(out []ResultRow, hierarchy []HierarchyNode) {
	hierarchyTotals := hierarchyTotalsByKey(hierarchy)

	for i, src := range n.rows {
		var cells []float64
		for _, col := range n.valueColumns {
			if IsGrandTotalColumn(col) {
				continue
			}
			if v, ok := n.cell(src, col); ok {
				cells = append(cells, v)
			}
		}
		total := floats.Sum(cells)
		if h, ok := hierarchyTotals[n.rowKey(src)]; ok && h > 0 {
			total = h
		}
		if total == 0 {
			continue
		}

		for _, col := range n.valueColumns {
			if IsGrandTotalColumn(col) {
				if n.present(src, col) {
					out[i][col] = 100.0
				}
				continue
			}
			if v, ok := n.cell(src, col); ok {
				out[i][col] = n.percent(v, total)
			}
		}
	}
}

func (n *normalizer) byColumn(out []ResultRow) {
	// grand total columns take part in this mode's column totals
	totals := make(map[string]float64, len(n.valueColumns))
	for _, col := range n.valueColumns {
		var cells []float64
		for _, row := range n.rows {
			if n.isGrandTotalRow(row) {
				continue
			}
			if v, ok := n.cell(row, col); ok {
				cells = append(cells, v)
			}
		}
		totals[col] = floats.Sum(cells)
	}

	for i, src := range n.rows {
		grandTotalRow := n.isGrandTotalRow(src)
		for _, col := range n.valueColumns {
			if grandTotalRow {
				if n.present(src, col) {
					out[i][col] = 100.0
				}
				continue
			}
			total := totals[col]
			if total == 0 {
				continue
			}
			if v, ok := n.cell(src, col); ok {
				out[i][col] = n.percent(v, total)
			}
		}
	}
}

func (n *normalizer) byGrandTotal(out []ResultRow) {
	var cells []float64
	for _, row := range n.rows {
		if n.isGrandTotalRow(row) {
			continue
		}
		for _, col := range n.valueColumns {
			if IsGrandTotalColumn(col) {
				continue
			}
			if v, ok := n.cell(row, col); ok {
				cells = append(cells, v)
			}
		}
	}
	total := floats.Sum(cells)
	if total == 0 {
		return
	}

	for i, src := range n.rows {
		for _, col := range n.valueColumns {
			if v, ok := n.cell(src, col); ok {
				out[i][col] = n.percent(v, total)
			}
		}
	}
}

// rowKey joins the canonical row-field values with "|"
func (n *normalizer) rowKey(row ResultRow) string {
	parts := make([]string, len(n.rowFields))
	for i, f := range n.rowFields {
		v, ok := lookupFold(row, f)
		if !ok || v == nil {
			continue
		}
		parts[i] = CanonicalKey(fmt.Sprint(v))
	}
	return strings.Join(parts, "|")
}

// hierarchyTotalsByKey indexes hierarchy nodes by canonical key. A node's
// total is its grand total value when it reports one, otherwise the sum of
// its values.
func hierarchyTotalsByKey(hierarchy []HierarchyNode) map[string]float64 {
	totals := make(map[string]float64, len(hierarchy))
	for _, node := range hierarchy {
		parts := strings.Split(node.Key, "|")
		for i, p := range parts {
			parts[i] = CanonicalKey(p)
		}
		totals[strings.Join(parts, "|")] = nodeTotal(node)
	}
	return totals
}

func nodeTotal(node HierarchyNode) float64 {
	keys := make([]string, 0, len(node.Values))
	for k := range node.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := make([]float64, 0, len(keys))
	for _, k := range keys {
		v := node.Values[k]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if IsGrandTotalColumn(k) {
			return v
		}
		values = append(values, v)
	}
	return floats.Sum(values)
}

func lookupFold(row ResultRow, field string) (any, bool) {
	if v, ok := row[field]; ok {
		return v, true
	}
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if strings.EqualFold(k, field) {
			return row[k], true
		}
	}
	return nil, false
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int32:
		f = float64(t)
	case int64:
		f = float64(t)
	case uint:
		f = float64(t)
	case uint32:
		f = float64(t)
	case uint64:
		f = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
