package ports

import (
	"context"

	"pivotdesk/domain/core"
	"pivotdesk/domain/pivot"
)

// ResultCache stores compute responses keyed by configuration signature hash
type ResultCache interface {
	// Get returns (nil, false, nil) on a miss
	Get(ctx context.Context, key core.SignatureHash) (*pivot.ComputeResponse, bool, error)
	Put(ctx context.Context, key core.SignatureHash, resp *pivot.ComputeResponse) error
	Invalidate(ctx context.Context, key core.SignatureHash) error
	Ping(ctx context.Context) error
}
