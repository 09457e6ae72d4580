package ports

import (
	"context"

	"pivotdesk/domain/pivot"
)

// CatalogSource lists data sources and loads the field catalog of one of them
type CatalogSource interface {
	ListDataSources(ctx context.Context) ([]string, error)
	LoadCatalog(ctx context.Context, dataSource string) (*pivot.Catalog, error)
}
