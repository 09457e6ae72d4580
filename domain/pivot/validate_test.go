package pivot

import (
	"testing"

	"pivotdesk/domain/core"

	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*PivotConfiguration)
		wantErr bool
	}{
		{"valid", func(*PivotConfiguration) {}, false},
		{"missing data source", func(c *PivotConfiguration) { c.DataSource = " " }, true},
		{"duplicate across buckets", func(c *PivotConfiguration) { c.Buckets.Filters = []string{"Region"} }, true},
		{"bad aggregation", func(c *PivotConfiguration) { c.Buckets.Values[0].Aggregation = "median" }, true},
		{"weight without weighted average", func(c *PivotConfiguration) { c.Buckets.Values[0].WeightColumn = "Weight" }, true},
		{"bad grand totals", func(c *PivotConfiguration) { c.GrandTotals = "sometimes" }, true},
		{"bad sort", func(c *PivotConfiguration) {
			c.Sorting = map[string]SortSpec{"Region": {By: "value", Direction: "asc"}}
		}, true},
		{"empty field", func(c *PivotConfiguration) { c.Buckets.Rows = append(c.Buckets.Rows, "") }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfiguration()
			tt.mutate(&cfg)
			err := Validate(cfg)
			if tt.wantErr {
				assert.Error(t, err)
				assert.True(t, core.IsValidationError(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseHelpers(t *testing.T) {
	agg, ok := ParseAggregation(" Weighted_Average ")
	assert.True(t, ok)
	assert.Equal(t, AggregationWeightedAverage, agg)

	_, ok = ParseBucket("shelf")
	assert.False(t, ok)

	mode, ok := ParsePercentageMode("")
	assert.True(t, ok)
	assert.Equal(t, PercentageOff, mode)

	_, ok = ParsePercentageMode("percentile")
	assert.False(t, ok)
}
