package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"pivotdesk/domain/core"
	"pivotdesk/internal/errors"
	"pivotdesk/ports"
)

// configurationRow is the pivot_configurations table layout
type configurationRow struct {
	ID            string    `db:"id"`
	Name          string    `db:"name"`
	DataSource    string    `db:"data_source"`
	Signature     string    `db:"signature"`
	Configuration []byte    `db:"configuration"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

func (row configurationRow) toSaved() (*ports.SavedConfiguration, error) {
	id, err := core.ParseConfigurationID(row.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration id %q: %w", row.ID, err)
	}
	saved := &ports.SavedConfiguration{
		ID:         id,
		Name:       row.Name,
		DataSource: row.DataSource,
		Signature:  core.SignatureHash(row.Signature),
		CreatedAt:  row.CreatedAt,
		UpdatedAt:  row.UpdatedAt,
	}
	if err := json.Unmarshal(row.Configuration, &saved.Configuration); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration %s: %w", row.ID, err)
	}
	return saved, nil
}

// ConfigurationRepository stores saved pivot configurations in PostgreSQL
type ConfigurationRepository struct {
	db *sqlx.DB
}

// NewConfigurationRepository creates a new PostgreSQL configuration repository
func NewConfigurationRepository(db *sqlx.DB) *ConfigurationRepository {
	return &ConfigurationRepository{db: db}
}

// Save inserts cfg, or updates it when the ID already exists. A zero ID is
// assigned a new one.
func (r *ConfigurationRepository) Save(ctx context.Context, cfg *ports.SavedConfiguration) error {
	if cfg.ID == "" {
		cfg.ID = core.NewConfigurationID()
	}
	now := time.Now().UTC()
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = now
	}
	cfg.UpdatedAt = now

	configJSON, err := json.Marshal(cfg.Configuration)
	if err != nil {
		return errors.Wrap(err, "failed to marshal pivot configuration")
	}

	query := `
		INSERT INTO pivot_configurations (id, name, data_source, signature, configuration, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			data_source = EXCLUDED.data_source,
			signature = EXCLUDED.signature,
			configuration = EXCLUDED.configuration,
			updated_at = EXCLUDED.updated_at`

	_, err = r.db.ExecContext(ctx, query,
		cfg.ID.String(),
		cfg.Name,
		cfg.DataSource,
		cfg.Signature.String(),
		configJSON,
		cfg.CreatedAt,
		cfg.UpdatedAt,
	)
	if err != nil {
		return errors.DatabaseError("failed to save pivot configuration", err)
	}
	return nil
}

// GetByID returns the configuration with id
func (r *ConfigurationRepository) GetByID(ctx context.Context, id core.ConfigurationID) (*ports.SavedConfiguration, error) {
	var row configurationRow
	err := r.db.GetContext(ctx, &row, `
		SELECT id, name, data_source, signature, configuration, created_at, updated_at
		FROM pivot_configurations
		WHERE id = $1
	`, id.String())
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: %s", core.ErrConfigurationNotFound, id)
		}
		return nil, errors.DatabaseError("failed to get pivot configuration", err)
	}
	return row.toSaved()
}

// ListByDataSource returns configurations for dataSource, most recently updated first
func (r *ConfigurationRepository) ListByDataSource(ctx context.Context, dataSource string) ([]*ports.SavedConfiguration, error) {
	var rows []configurationRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, name, data_source, signature, configuration, created_at, updated_at
		FROM pivot_configurations
		WHERE data_source = $1
		ORDER BY updated_at DESC, name ASC
	`, dataSource)
	if err != nil {
		return nil, errors.DatabaseError("failed to list pivot configurations", err)
	}

	configs := make([]*ports.SavedConfiguration, 0, len(rows))
	for _, row := range rows {
		saved, err := row.toSaved()
		if err != nil {
			return nil, err
		}
		configs = append(configs, saved)
	}
	return configs, nil
}

// Delete removes the configuration with id
func (r *ConfigurationRepository) Delete(ctx context.Context, id core.ConfigurationID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM pivot_configurations WHERE id = $1`, id.String())
	if err != nil {
		return errors.DatabaseError("failed to delete pivot configuration", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", core.ErrConfigurationNotFound, id)
	}
	return nil
}
