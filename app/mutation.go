package app

import (
	"fmt"
	"strings"

	"pivotdesk/domain/pivot"
	"pivotdesk/internal/errors"
)

// Mutation operations accepted by PivotService.Apply
const (
	OpToggle          = "toggle"
	OpMove            = "move"
	OpRemove          = "remove"
	OpSetAggregation  = "set_aggregation"
	OpSetWeightColumn = "set_weight_column"
	OpSetSelection    = "set_selection"
	OpSelectAll       = "select_all"
	OpResetSelection  = "reset_selection"
	OpSetGrandTotals  = "set_grand_totals"
	OpSetSort         = "set_sort"
	OpClearSort       = "clear_sort"
)

// Mutation is one edit decoded by the presentation layer. Which fields are
// read depends on Op.
type Mutation struct {
	Op           string          `json:"op"`
	Field        string          `json:"field"`
	Checked      bool            `json:"checked"`
	Bucket       string          `json:"bucket"`
	Aggregation  string          `json:"aggregation"`
	WeightColumn string          `json:"weight_column"`
	Values       []string        `json:"values"`
	GrandTotals  string          `json:"grand_totals"`
	Sort         *pivot.SortSpec `json:"sort"`
}

// apply runs m against e. Well-formed mutations that the editor rejects as
// no-ops report changed=false without an error.
func (m Mutation) apply(e *pivot.Editor) (bool, error) {
	op := strings.ToLower(strings.TrimSpace(m.Op))
	if op != OpSetGrandTotals && strings.TrimSpace(m.Field) == "" {
		return false, errors.InvalidInput(fmt.Sprintf("%s requires a field", op))
	}

	switch op {
	case OpToggle:
		return e.ToggleField(m.Field, m.Checked), nil

	case OpMove:
		bucket, ok := pivot.ParseBucket(m.Bucket)
		if !ok {
			return false, errors.InvalidInput(fmt.Sprintf("unknown bucket %q", m.Bucket))
		}
		var hint pivot.Aggregation
		if m.Aggregation != "" {
			if hint, ok = pivot.ParseAggregation(m.Aggregation); !ok {
				return false, errors.InvalidInput(fmt.Sprintf("unknown aggregation %q", m.Aggregation))
			}
		}
		return e.MoveField(m.Field, bucket, hint), nil

	case OpRemove:
		bucket, ok := pivot.ParseBucket(m.Bucket)
		if !ok {
			return false, errors.InvalidInput(fmt.Sprintf("unknown bucket %q", m.Bucket))
		}
		return e.RemoveField(m.Field, bucket), nil

	case OpSetAggregation:
		agg, ok := pivot.ParseAggregation(m.Aggregation)
		if !ok {
			return false, errors.InvalidInput(fmt.Sprintf("unknown aggregation %q", m.Aggregation))
		}
		return e.SetAggregation(m.Field, agg), nil

	case OpSetWeightColumn:
		return e.SetWeightColumn(m.Field, m.WeightColumn), nil

	case OpSetSelection:
		return e.SetSelection(m.Field, m.Values), nil

	case OpSelectAll:
		return e.SelectAll(m.Field), nil

	case OpResetSelection:
		return e.ResetSelection(m.Field), nil

	case OpSetGrandTotals:
		mode := pivot.GrandTotalsMode(strings.ToLower(strings.TrimSpace(m.GrandTotals)))
		if !mode.Valid() {
			return false, errors.InvalidInput(fmt.Sprintf("unknown grand totals mode %q", m.GrandTotals))
		}
		return e.SetGrandTotals(mode), nil

	case OpSetSort:
		if m.Sort == nil || !m.Sort.Valid() {
			return false, errors.InvalidInput("set_sort requires a valid sort")
		}
		return e.SetSort(m.Field, *m.Sort), nil

	case OpClearSort:
		return e.ClearSort(m.Field), nil
	}

	return false, errors.InvalidInput(fmt.Sprintf("unknown mutation %q", m.Op))
}
