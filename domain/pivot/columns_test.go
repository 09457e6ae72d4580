package pivot

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestColumnOrder(t *testing.T) {
	rows := []ResultRow{
		{"Region": "East", "Sales_sum": 1, "Profit_sum": 2},
		{"Region": "West", "Sales_sum": 3, "Grand Total": 4},
	}
	assert.Equal(t,
		[]string{"Region", "Profit_sum", "Sales_sum", "Grand Total"},
		ColumnOrder([]string{"Region"}, rows))

	assert.Equal(t, []string{"Region"}, ColumnOrder([]string{"Region", "Region"}, nil))
	assert.Empty(t, ColumnOrder(nil, nil))
}
