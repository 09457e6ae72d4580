package ports

import (
	"context"

	"pivotdesk/domain/pivot"
)

// ComputeService is the external service that aggregates raw rows into a
// pivot grid for a given request.
type ComputeService interface {
	Compute(ctx context.Context, dataSource string, req pivot.ComputeRequest) (*pivot.ComputeResponse, error)
}
