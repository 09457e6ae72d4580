package pivot

import (
	"encoding/json"
	"sort"
)

// signaturePayload fixes the key order of the serialized signature
type signaturePayload struct {
	DataSource  string              `json:"data_source"`
	Rows        []string            `json:"rows"`
	Columns     []string            `json:"columns"`
	Values      []ValueFieldSpec    `json:"values"`
	Filters     []string            `json:"filters"`
	Selections  map[string][]string `json:"selections"`
	GrandTotals GrandTotalsMode     `json:"grand_totals"`
	Sorting     []SortTarget        `json:"sorting"`
}

// ComputeSignature reduces a configuration to a canonical string. Two
// configurations with the same effective filters and sort behavior produce
// the same signature regardless of selection key casing or map order. A
// changed signature means the previous result is stale.
func ComputeSignature(cfg PivotConfiguration, catalog *Catalog) string {
	selections := make(map[string][]string)
	for _, field := range restrictedFields(cfg, catalog) {
		sel, _ := cfg.Selections.Lookup(field)
		selections[field] = sortedCopy(sel)
	}

	payload := signaturePayload{
		DataSource:  cfg.DataSource,
		Rows:        cloneStrings(cfg.Buckets.Rows),
		Columns:     cloneStrings(cfg.Buckets.Columns),
		Values:      append(make([]ValueFieldSpec, 0, len(cfg.Buckets.Values)), cfg.Buckets.Values...),
		Filters:     cloneStrings(cfg.Buckets.Filters),
		Selections:  selections,
		GrandTotals: cfg.GrandTotals,
		Sorting:     canonicalSorting(cfg),
	}

	// encoding/json sorts map keys, and every field here marshals cleanly
	raw, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	return string(raw)
}

// restrictedFields lists the fields that need filter consideration: every
// filter field, then row and column fields holding a non-empty selection that
// is narrower than the catalog.
func restrictedFields(cfg PivotConfiguration, catalog *Catalog) []string {
	fields := cloneStrings(cfg.Buckets.Filters)
	for _, f := range append(cloneStrings(cfg.Buckets.Rows), cfg.Buckets.Columns...) {
		sel, ok := cfg.Selections.Lookup(f)
		if !ok || len(sel) == 0 || catalog.IsFullSelection(f, sel) {
			continue
		}
		fields = append(fields, f)
	}
	return fields
}

// canonicalSorting resolves every sort entry to the exact-cased row or column
// field and derives its hierarchy level from the row position. Entries that
// match no row or column field are dropped.
func canonicalSorting(cfg PivotConfiguration) []SortTarget {
	keys := make([]string, 0, len(cfg.Sorting))
	for k := range cfg.Sorting {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	resolved := make(map[string]SortTarget, len(keys))
	for _, key := range keys {
		spec := cfg.Sorting[key]
		field := ""
		var level *int
		if i := indexFold(cfg.Buckets.Rows, key); i >= 0 {
			field = cfg.Buckets.Rows[i]
			lvl := i
			level = &lvl
		} else if i := indexFold(cfg.Buckets.Columns, key); i >= 0 {
			field = cfg.Buckets.Columns[i]
		}
		if field == "" {
			continue
		}
		if _, taken := resolved[field]; taken {
			continue
		}
		valueField := spec.ValueField
		if i := indexFold(cfg.Buckets.ValueFields(), valueField); i >= 0 {
			valueField = cfg.Buckets.Values[i].Field
		}
		resolved[field] = SortTarget{
			Field:      field,
			By:         spec.By,
			Direction:  spec.Direction,
			ValueField: valueField,
			Level:      level,
		}
	}

	fields := make([]string, 0, len(resolved))
	for f := range resolved {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	targets := make([]SortTarget, 0, len(fields))
	for _, f := range fields {
		targets = append(targets, resolved[f])
	}
	return targets
}

func sortedCopy(values []string) []string {
	out := cloneStrings(values)
	sort.Strings(out)
	return out
}
