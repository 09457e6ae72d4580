package pivot

import "strings"

// Editor owns the bucket assignment of one pivot configuration. It is not
// safe for concurrent use; callers serialize edits.
//
// Every mutating operation keeps the buckets pairwise disjoint and re-runs
// Reconcile, so selections never outlive the bucket change that made them
// stale. Operations on fields the catalog does not know are ignored. The
// returned bool reports whether anything changed.
type Editor struct {
	dataSource  string
	catalog     *Catalog
	state       BucketState
	selections  Selections
	grandTotals GrandTotalsMode
	sorting     map[string]SortSpec
}

// NewEditor creates an empty editor for a data source
func NewEditor(dataSource string, catalog *Catalog) *Editor {
	e := &Editor{}
	e.Reset(dataSource, catalog)
	return e
}

// NewEditorFromConfiguration restores a saved configuration against the
// current catalog. Fields the catalog no longer knows are dropped and the
// first placement of a duplicated field wins.
func NewEditorFromConfiguration(cfg PivotConfiguration, catalog *Catalog) *Editor {
	e := NewEditor(cfg.DataSource, catalog)
	if cfg.GrandTotals.Valid() {
		e.grandTotals = cfg.GrandTotals
	}

	placed := make(map[string]bool)
	admit := func(field string) bool {
		if !catalog.Has(field) || placed[field] {
			return false
		}
		placed[field] = true
		return true
	}
	for _, f := range cfg.Buckets.Rows {
		if admit(f) {
			e.state.Rows = append(e.state.Rows, f)
		}
	}
	for _, f := range cfg.Buckets.Columns {
		if admit(f) {
			e.state.Columns = append(e.state.Columns, f)
		}
	}
	for _, f := range cfg.Buckets.Filters {
		if admit(f) {
			e.state.Filters = append(e.state.Filters, f)
		}
	}
	for _, v := range cfg.Buckets.Values {
		if !v.Aggregation.Valid() || !admit(v.Field) {
			continue
		}
		if v.Aggregation != AggregationWeightedAverage {
			v.WeightColumn = ""
		}
		e.state.Values = append(e.state.Values, v)
	}

	e.selections = restoreSelections(cfg.Selections, catalog)
	for field, spec := range cfg.Sorting {
		if spec.Valid() {
			e.sorting[field] = spec
		}
	}
	e.sync()
	return e
}

// Reset discards all state and binds the editor to a new data source
func (e *Editor) Reset(dataSource string, catalog *Catalog) {
	e.dataSource = dataSource
	e.catalog = catalog
	e.state = BucketState{}.Clone()
	e.selections = Selections{}
	e.grandTotals = GrandTotalsBoth
	e.sorting = make(map[string]SortSpec)
}

func (e *Editor) DataSource() string { return e.dataSource }

func (e *Editor) Catalog() *Catalog { return e.catalog }

// State returns a copy of the bucket assignment
func (e *Editor) State() BucketState { return e.state.Clone() }

// Selections returns a copy of the selection map
func (e *Editor) Selections() Selections { return e.selections.Clone() }

// SelectedFields is the union of all bucket fields, derived on every call
func (e *Editor) SelectedFields() []string { return e.state.Fields() }

// IsSelected reports whether field is placed in any bucket
func (e *Editor) IsSelected(field string) bool {
	_, ok := e.state.BucketOf(field)
	return ok
}

// Configuration snapshots the editor as an explicit configuration record
func (e *Editor) Configuration() PivotConfiguration {
	sorting := make(map[string]SortSpec, len(e.sorting))
	for k, v := range e.sorting {
		sorting[k] = v
	}
	return PivotConfiguration{
		DataSource:  e.dataSource,
		Buckets:     e.state.Clone(),
		Selections:  e.selections.Clone(),
		GrandTotals: e.grandTotals,
		Sorting:     sorting,
	}
}

// Signature is the canonical signature of the current configuration
func (e *Editor) Signature() string {
	return ComputeSignature(e.Configuration(), e.catalog)
}

// ComputeRequest builds the outgoing compute payload
func (e *Editor) ComputeRequest() ComputeRequest {
	return BuildComputeRequest(e.Configuration(), e.catalog)
}

// ToggleField adds an unplaced field to rows when checked, or removes it from
// every bucket when unchecked. Re-adding a placed field is a no-op.
func (e *Editor) ToggleField(field string, checked bool) bool {
	if !e.catalog.Has(field) {
		return false
	}
	if checked {
		if e.IsSelected(field) {
			return false
		}
		e.state.Rows = append(e.state.Rows, field)
		e.sync()
		return true
	}
	if !e.IsSelected(field) {
		return false
	}
	e.detach(field)
	e.sync()
	return true
}

// MoveField removes field from all buckets and appends it to target. For the
// values bucket the aggregation hint is used, defaulting to sum. Moving a
// field onto the position it already holds reports no change.
func (e *Editor) MoveField(field string, target Bucket, aggregationHint Aggregation) bool {
	if !e.catalog.Has(field) || !target.Valid() {
		return false
	}
	before := e.state.Clone()
	e.detach(field)
	switch target {
	case BucketRows:
		e.state.Rows = append(e.state.Rows, field)
	case BucketColumns:
		e.state.Columns = append(e.state.Columns, field)
	case BucketFilters:
		e.state.Filters = append(e.state.Filters, field)
	case BucketValues:
		agg := aggregationHint
		if !agg.Valid() {
			agg = AggregationSum
		}
		e.state.Values = append(e.state.Values, ValueFieldSpec{Field: field, Aggregation: agg})
	}
	if e.state.Equal(before) {
		return false
	}
	e.sync()
	return true
}

// RemoveField removes field from the named bucket only
func (e *Editor) RemoveField(field string, bucket Bucket) bool {
	if !e.catalog.Has(field) {
		return false
	}
	before := len(e.state.Fields())
	switch bucket {
	case BucketRows:
		e.state.Rows = without(e.state.Rows, field)
	case BucketColumns:
		e.state.Columns = without(e.state.Columns, field)
	case BucketFilters:
		e.state.Filters = without(e.state.Filters, field)
	case BucketValues:
		e.state.Values = withoutValue(e.state.Values, field)
	default:
		return false
	}
	if len(e.state.Fields()) == before {
		return false
	}
	e.sync()
	return true
}

// SetAggregation changes the aggregation of a value field. Any aggregation
// other than weighted_average drops the weight column.
func (e *Editor) SetAggregation(field string, agg Aggregation) bool {
	i := e.state.valueIndex(field)
	if i < 0 || !agg.Valid() {
		return false
	}
	spec := e.state.Values[i]
	spec.Aggregation = agg
	if agg != AggregationWeightedAverage {
		spec.WeightColumn = ""
	}
	if spec == e.state.Values[i] {
		return false
	}
	e.state.Values[i] = spec
	e.sync()
	return true
}

// SetWeightColumn sets the weight column of a value field and switches it to
// weighted_average.
func (e *Editor) SetWeightColumn(field, weightColumn string) bool {
	i := e.state.valueIndex(field)
	if i < 0 || !e.catalog.Has(weightColumn) {
		return false
	}
	spec := ValueFieldSpec{Field: field, Aggregation: AggregationWeightedAverage, WeightColumn: weightColumn}
	if spec == e.state.Values[i] {
		return false
	}
	e.state.Values[i] = spec
	e.sync()
	return true
}

// SetSelection stores the included values for a field placed in filters,
// rows or columns. Values are restricted to, and ordered like, the catalog
// when it knows the field. An empty selection resets the field to its
// default.
func (e *Editor) SetSelection(field string, values []string) bool {
	bucket, ok := e.state.BucketOf(field)
	if !ok || bucket == BucketValues {
		return false
	}
	if len(values) == 0 {
		return e.ResetSelection(field)
	}

	sel := values
	if options := e.catalog.Options(field); len(options) > 0 {
		wanted := make(map[string]bool, len(values))
		for _, v := range values {
			wanted[v] = true
		}
		sel = make([]string, 0, len(values))
		for _, opt := range options {
			if wanted[opt] {
				sel = append(sel, opt)
			}
		}
		if len(sel) == 0 {
			return false
		}
	}

	before := e.selections.Clone()
	e.selections.set(field, dedupe(sel))
	e.sync()
	return !equalSelections(before, e.selections)
}

// SelectAll includes every catalog value for field
func (e *Editor) SelectAll(field string) bool {
	return e.SetSelection(field, e.catalog.Options(field))
}

// ResetSelection drops the stored selection of field. Filter fields fall back
// to including everything; row and column fields lose their restriction.
func (e *Editor) ResetSelection(field string) bool {
	if _, ok := e.state.BucketOf(field); !ok {
		return false
	}
	before := e.selections.Clone()
	e.selections.remove(field)
	e.sync()
	return !equalSelections(before, e.selections)
}

// SetGrandTotals changes which grand totals the compute service emits
func (e *Editor) SetGrandTotals(mode GrandTotalsMode) bool {
	if !mode.Valid() || mode == e.grandTotals {
		return false
	}
	e.grandTotals = mode
	return true
}

// SetSort configures sorting for a row or column field
func (e *Editor) SetSort(field string, spec SortSpec) bool {
	if !spec.Valid() {
		return false
	}
	if indexFold(e.state.Rows, field) < 0 && indexFold(e.state.Columns, field) < 0 {
		return false
	}
	if cur, ok := e.sorting[field]; ok && cur == spec {
		return false
	}
	e.sorting[field] = spec
	return true
}

// ClearSort removes the sort configuration of field
func (e *Editor) ClearSort(field string) bool {
	if _, ok := e.sorting[field]; !ok {
		return false
	}
	delete(e.sorting, field)
	return true
}

func (e *Editor) detach(field string) {
	e.state.Rows = without(e.state.Rows, field)
	e.state.Columns = without(e.state.Columns, field)
	e.state.Filters = without(e.state.Filters, field)
	e.state.Values = withoutValue(e.state.Values, field)
}

// activeFilterFields are the filters plus row and column fields that carry a
// non-empty selection.
func (e *Editor) activeFilterFields() []string {
	active := cloneStrings(e.state.Filters)
	for _, f := range append(cloneStrings(e.state.Rows), e.state.Columns...) {
		if len(e.selections.nonEmpty(f)) > 0 {
			active = append(active, f)
		}
	}
	return active
}

// sync restores derived state after a bucket change
func (e *Editor) sync() {
	e.selections = Reconcile(e.activeFilterFields(), e.selections, e.catalog)
	for field := range e.sorting {
		if indexFold(e.state.Rows, field) < 0 && indexFold(e.state.Columns, field) < 0 {
			delete(e.sorting, field)
		}
	}
}

// restoreSelections keeps only values the catalog still offers. A selection
// left empty is dropped so Reconcile falls back to the default.
func restoreSelections(saved Selections, catalog *Catalog) Selections {
	out := make(Selections, len(saved))
	for field, values := range saved {
		options := catalog.Options(field)
		if len(options) == 0 {
			out[field] = cloneStrings(values)
			continue
		}
		known := make(map[string]bool, len(options))
		for _, o := range options {
			known[o] = true
		}
		kept := make([]string, 0, len(values))
		for _, v := range values {
			if known[v] {
				kept = append(kept, v)
			}
		}
		if len(kept) > 0 {
			out[field] = dedupe(kept)
		}
	}
	return out
}

func withoutValue(values []ValueFieldSpec, field string) []ValueFieldSpec {
	out := make([]ValueFieldSpec, 0, len(values))
	for _, v := range values {
		if v.Field != field {
			out = append(out, v)
		}
	}
	return out
}

func equalSelections(a, b Selections) bool {
	if len(a) != len(b) {
		return false
	}
	for k, av := range a {
		bv, ok := b[k]
		if !ok || strings.Join(av, "\x00") != strings.Join(bv, "\x00") || len(av) != len(bv) {
			return false
		}
	}
	return true
}
