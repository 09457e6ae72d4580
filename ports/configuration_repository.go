package ports

import (
	"context"
	"time"

	"pivotdesk/domain/core"
	"pivotdesk/domain/pivot"
)

// SavedConfiguration is a named pivot configuration persisted by the UI layer
type SavedConfiguration struct {
	ID            core.ConfigurationID     `json:"id" db:"id"`
	Name          string                   `json:"name" db:"name"`
	DataSource    string                   `json:"data_source" db:"data_source"`
	Signature     core.SignatureHash       `json:"signature" db:"signature"`
	Configuration pivot.PivotConfiguration `json:"configuration" db:"-"`
	CreatedAt     time.Time                `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time                `json:"updated_at" db:"updated_at"`
}

// ConfigurationRepository persists saved pivot configurations
type ConfigurationRepository interface {
	Save(ctx context.Context, cfg *SavedConfiguration) error
	GetByID(ctx context.Context, id core.ConfigurationID) (*SavedConfiguration, error)
	ListByDataSource(ctx context.Context, dataSource string) ([]*SavedConfiguration, error)
	Delete(ctx context.Context, id core.ConfigurationID) error
}
