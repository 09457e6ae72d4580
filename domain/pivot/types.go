package pivot

import (
	"slices"
	"strings"
)

// Aggregation is the reduction the compute service applies to a value field
type Aggregation string

const (
	AggregationSum             Aggregation = "sum"
	AggregationAverage         Aggregation = "average"
	AggregationCount           Aggregation = "count"
	AggregationMin             Aggregation = "min"
	AggregationMax             Aggregation = "max"
	AggregationWeightedAverage Aggregation = "weighted_average"
)

// ParseAggregation normalizes user input into a known aggregation
func ParseAggregation(s string) (Aggregation, bool) {
	agg := Aggregation(strings.ToLower(strings.TrimSpace(s)))
	return agg, agg.Valid()
}

// Valid reports whether the aggregation is one the compute service understands
func (a Aggregation) Valid() bool {
	switch a {
	case AggregationSum, AggregationAverage, AggregationCount,
		AggregationMin, AggregationMax, AggregationWeightedAverage:
		return true
	}
	return false
}

// Bucket identifies one of the four mutually exclusive layout targets
type Bucket string

const (
	BucketRows    Bucket = "rows"
	BucketColumns Bucket = "columns"
	BucketFilters Bucket = "filters"
	BucketValues  Bucket = "values"
)

// ParseBucket normalizes user input into a known bucket
func ParseBucket(s string) (Bucket, bool) {
	b := Bucket(strings.ToLower(strings.TrimSpace(s)))
	return b, b.Valid()
}

func (b Bucket) Valid() bool {
	switch b {
	case BucketRows, BucketColumns, BucketFilters, BucketValues:
		return true
	}
	return false
}

// ValueFieldSpec describes a field placed in the values bucket.
// WeightColumn is only meaningful for weighted averages.
type ValueFieldSpec struct {
	Field        string      `json:"field"`
	Aggregation  Aggregation `json:"aggregation"`
	WeightColumn string      `json:"weight_column,omitempty"`
}

// BucketState is the four-way partition of fields. Each field appears in at
// most one bucket.
type BucketState struct {
	Rows    []string         `json:"rows"`
	Columns []string         `json:"columns"`
	Filters []string         `json:"filters"`
	Values  []ValueFieldSpec `json:"values"`
}

// Clone returns a deep copy with non-nil slices
func (s BucketState) Clone() BucketState {
	return BucketState{
		Rows:    cloneStrings(s.Rows),
		Columns: cloneStrings(s.Columns),
		Filters: cloneStrings(s.Filters),
		Values:  append(make([]ValueFieldSpec, 0, len(s.Values)), s.Values...),
	}
}

// Equal reports whether both states place the same fields in the same order
func (s BucketState) Equal(o BucketState) bool {
	return slices.Equal(s.Rows, o.Rows) &&
		slices.Equal(s.Columns, o.Columns) &&
		slices.Equal(s.Filters, o.Filters) &&
		slices.Equal(s.Values, o.Values)
}

// ValueFields returns the field names of the values bucket in order
func (s BucketState) ValueFields() []string {
	fields := make([]string, 0, len(s.Values))
	for _, v := range s.Values {
		fields = append(fields, v.Field)
	}
	return fields
}

// Fields returns every placed field: rows, columns, filters, then values
func (s BucketState) Fields() []string {
	fields := make([]string, 0, len(s.Rows)+len(s.Columns)+len(s.Filters)+len(s.Values))
	fields = append(fields, s.Rows...)
	fields = append(fields, s.Columns...)
	fields = append(fields, s.Filters...)
	fields = append(fields, s.ValueFields()...)
	return fields
}

// BucketOf returns the bucket holding field, if any
func (s BucketState) BucketOf(field string) (Bucket, bool) {
	switch {
	case indexOf(s.Rows, field) >= 0:
		return BucketRows, true
	case indexOf(s.Columns, field) >= 0:
		return BucketColumns, true
	case indexOf(s.Filters, field) >= 0:
		return BucketFilters, true
	case s.valueIndex(field) >= 0:
		return BucketValues, true
	}
	return "", false
}

func (s BucketState) valueIndex(field string) int {
	for i, v := range s.Values {
		if v.Field == field {
			return i
		}
	}
	return -1
}

// GrandTotalsMode controls which synthetic totals the compute service emits
type GrandTotalsMode string

const (
	GrandTotalsBoth    GrandTotalsMode = "both"
	GrandTotalsRows    GrandTotalsMode = "rows"
	GrandTotalsColumns GrandTotalsMode = "columns"
	GrandTotalsNone    GrandTotalsMode = "none"
)

func (m GrandTotalsMode) Valid() bool {
	switch m {
	case GrandTotalsBoth, GrandTotalsRows, GrandTotalsColumns, GrandTotalsNone:
		return true
	}
	return false
}

// SortSpec is the per-field sort configuration
type SortSpec struct {
	By         string `json:"by"`        // "key" or "value"
	Direction  string `json:"direction"` // "asc" or "desc"
	ValueField string `json:"value_field,omitempty"`
}

func (s SortSpec) Valid() bool {
	if s.By != "key" && s.By != "value" {
		return false
	}
	if s.Direction != "asc" && s.Direction != "desc" {
		return false
	}
	return s.By == "key" || s.ValueField != ""
}

// SortTarget is a SortSpec resolved against the bucket layout
type SortTarget struct {
	Field      string `json:"field"`
	By         string `json:"by"`
	Direction  string `json:"direction"`
	ValueField string `json:"value_field,omitempty"`
	Level      *int   `json:"level,omitempty"`
}

// PivotConfiguration is the full, explicit pivot setup for one data source
type PivotConfiguration struct {
	DataSource  string              `json:"data_source"`
	Buckets     BucketState         `json:"buckets"`
	Selections  Selections          `json:"selections"`
	GrandTotals GrandTotalsMode     `json:"grand_totals"`
	Sorting     map[string]SortSpec `json:"sorting,omitempty"`
}

// ResultRow is one row of a computed pivot grid
type ResultRow map[string]any

// Clone returns a shallow copy of the row
func (r ResultRow) Clone() ResultRow {
	out := make(ResultRow, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// HierarchyNode is a backend pre-aggregated total for one row group
type HierarchyNode struct {
	Key    string             `json:"key"`
	Values map[string]float64 `json:"values"`
}

// FilterSpec is one entry of the outgoing filter list. A nil Include means
// no restriction.
type FilterSpec struct {
	Field   string   `json:"field"`
	Include []string `json:"include,omitempty"`
}

// ComputeRequest is the payload sent to the external compute service
type ComputeRequest struct {
	Rows        []string         `json:"rows"`
	Columns     []string         `json:"columns"`
	Values      []ValueFieldSpec `json:"values"`
	Filters     []FilterSpec     `json:"filters"`
	Sorting     []SortTarget     `json:"sorting"`
	GrandTotals GrandTotalsMode  `json:"grand_totals"`
}

// ComputeResponse is what the compute service returns
type ComputeResponse struct {
	Data            []ResultRow     `json:"data"`
	Hierarchy       []HierarchyNode `json:"hierarchy,omitempty"`
	ColumnHierarchy []any           `json:"column_hierarchy,omitempty"`
}

// PercentageMode selects the normalization applied to a result grid
type PercentageMode string

const (
	PercentageOff        PercentageMode = "off"
	PercentageRow        PercentageMode = "row"
	PercentageColumn     PercentageMode = "column"
	PercentageGrandTotal PercentageMode = "grand_total"
)

// ParsePercentageMode accepts the mode names plus an empty string for off
func ParsePercentageMode(s string) (PercentageMode, bool) {
	m := PercentageMode(strings.ToLower(strings.TrimSpace(s)))
	if m == "" {
		return PercentageOff, true
	}
	switch m {
	case PercentageOff, PercentageRow, PercentageColumn, PercentageGrandTotal:
		return m, true
	}
	return "", false
}

func cloneStrings(in []string) []string {
	return append(make([]string, 0, len(in)), in...)
}

func indexOf(list []string, field string) int {
	for i, f := range list {
		if f == field {
			return i
		}
	}
	return -1
}

func indexFold(list []string, field string) int {
	for i, f := range list {
		if strings.EqualFold(f, field) {
			return i
		}
	}
	return -1
}

func without(list []string, field string) []string {
	out := make([]string, 0, len(list))
	for _, f := range list {
		if f != field {
			out = append(out, f)
		}
	}
	return out
}
