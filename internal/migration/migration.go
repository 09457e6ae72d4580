package migration

import (
	"context"

	"pivotdesk/internal/errors"

	"github.com/jmoiron/sqlx"
)

// Migrator defines the interface for database migration operations
type Migrator interface {
	Run(ctx context.Context, db *sqlx.DB) error
	Version() string
}

// MigrationRunner handles database schema migrations
type MigrationRunner struct {
	version string
}

// NewRunner creates a new migration runner
func NewRunner() *MigrationRunner {
	return &MigrationRunner{
		version: "1.0.0",
	}
}

// Version returns the migration version
func (r *MigrationRunner) Version() string {
	return r.version
}

// Statements returns the DDL executed by Run, in order
func (r *MigrationRunner) Statements() []string {
	return []string{
		createPivotConfigurationsTable,
		createPivotConfigurationsIndexes,
	}
}

// Run executes all database migrations in the correct order
func (r *MigrationRunner) Run(ctx context.Context, db *sqlx.DB) error {
	if err := r.exec(ctx, db, createPivotConfigurationsTable); err != nil {
		return errors.Wrap(err, "failed to create pivot_configurations table")
	}

	if err := r.exec(ctx, db, createPivotConfigurationsIndexes); err != nil {
		return errors.Wrap(err, "failed to create indexes")
	}

	return nil
}

func (r *MigrationRunner) exec(ctx context.Context, db *sqlx.DB, stmt string) error {
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return errors.DatabaseError("migration statement failed", err)
	}
	return nil
}

const createPivotConfigurationsTable = `
	CREATE TABLE IF NOT EXISTS pivot_configurations (
		id UUID PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		data_source VARCHAR(255) NOT NULL,
		signature VARCHAR(64) NOT NULL,
		configuration JSONB NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	)
`

const createPivotConfigurationsIndexes = `
	CREATE INDEX IF NOT EXISTS idx_pivot_configurations_data_source
		ON pivot_configurations (data_source, updated_at DESC);
	CREATE INDEX IF NOT EXISTS idx_pivot_configurations_signature
		ON pivot_configurations (signature)
`
