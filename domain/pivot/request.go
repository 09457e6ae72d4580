package pivot

// BuildComputeRequest converts a configuration into the compute service
// payload. Filter fields whose selection covers the whole catalog are sent
// without an include list; restricted fields carry their sorted selection.
func BuildComputeRequest(cfg PivotConfiguration, catalog *Catalog) ComputeRequest {
	filters := make([]FilterSpec, 0, len(cfg.Buckets.Filters))
	for _, field := range restrictedFields(cfg, catalog) {
		sel, _ := cfg.Selections.Lookup(field)
		spec := FilterSpec{Field: field}
		if !catalog.IsFullSelection(field, sel) {
			spec.Include = sortedCopy(sel)
		}
		filters = append(filters, spec)
	}

	grandTotals := cfg.GrandTotals
	if !grandTotals.Valid() {
		grandTotals = GrandTotalsBoth
	}

	return ComputeRequest{
		Rows:        cloneStrings(cfg.Buckets.Rows),
		Columns:     cloneStrings(cfg.Buckets.Columns),
		Values:      append(make([]ValueFieldSpec, 0, len(cfg.Buckets.Values)), cfg.Buckets.Values...),
		Filters:     filters,
		Sorting:     canonicalSorting(cfg),
		GrandTotals: grandTotals,
	}
}
