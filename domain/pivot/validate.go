package pivot

import (
	"fmt"
	"strings"

	"pivotdesk/domain/core"
)

// Validate checks a configuration ingested from external JSON before it is
// restored into an Editor.
func Validate(cfg PivotConfiguration) error {
	if strings.TrimSpace(cfg.DataSource) == "" {
		return core.NewValidationError("data_source", "is required")
	}
	if cfg.GrandTotals != "" && !cfg.GrandTotals.Valid() {
		return core.NewValidationError("grand_totals", fmt.Sprintf("unknown mode %q", cfg.GrandTotals))
	}

	owner := make(map[string]Bucket)
	claim := func(field string, bucket Bucket) error {
		if strings.TrimSpace(field) == "" {
			return core.NewValidationError(string(bucket), "empty field name")
		}
		if prev, ok := owner[field]; ok {
			return core.NewValidationError(string(bucket), fmt.Sprintf("field %q already placed in %s", field, prev))
		}
		owner[field] = bucket
		return nil
	}

	for _, f := range cfg.Buckets.Rows {
		if err := claim(f, BucketRows); err != nil {
			return err
		}
	}
	for _, f := range cfg.Buckets.Columns {
		if err := claim(f, BucketColumns); err != nil {
			return err
		}
	}
	for _, f := range cfg.Buckets.Filters {
		if err := claim(f, BucketFilters); err != nil {
			return err
		}
	}
	for _, v := range cfg.Buckets.Values {
		if err := claim(v.Field, BucketValues); err != nil {
			return err
		}
		if !v.Aggregation.Valid() {
			return core.NewValidationError("values", fmt.Sprintf("field %q has unknown aggregation %q", v.Field, v.Aggregation))
		}
		if v.WeightColumn != "" && v.Aggregation != AggregationWeightedAverage {
			return core.NewValidationError("values", fmt.Sprintf("field %q sets a weight column without weighted_average", v.Field))
		}
	}

	for field, spec := range cfg.Sorting {
		if !spec.Valid() {
			return core.NewValidationError("sorting", fmt.Sprintf("invalid sort for %q", field))
		}
	}
	return nil
}
