package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"pivotdesk/adapters/excel"
	"pivotdesk/adapters/postgres"
	"pivotdesk/domain/core"
	"pivotdesk/domain/pivot"
	"pivotdesk/internal/migration"
	"pivotdesk/ports"

	"github.com/jmoiron/sqlx"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

// configurationFile is the on-disk layout accepted by the importer. A file
// holding a bare pivot configuration is also accepted and named after the file.
type configurationFile struct {
	ID            string                    `json:"id"`
	Name          string                    `json:"name"`
	Configuration *pivot.PivotConfiguration `json:"configuration"`
}

func main() {
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		log.Fatal("Usage: migrate <database_url> [configurations_dir]")
	}
	databaseURL := os.Args[1]

	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	runner := migration.NewRunner()
	if err := runner.Run(ctx, db); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	log.Printf("Schema at version %s", runner.Version())

	if len(os.Args) < 3 {
		return
	}

	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		dataDir = "./data"
	}
	cfg := excel.DefaultExcelConfig()
	cfg.Dir = dataDir

	imported, skipped, err := importConfigurations(ctx, os.Args[2], excel.NewCatalogSource(cfg), postgres.NewConfigurationRepository(db))
	if err != nil {
		log.Fatalf("Import failed: %v", err)
	}
	log.Printf("Import complete: %d imported, %d skipped", imported, skipped)
}

func importConfigurations(ctx context.Context, dir string, catalogs ports.CatalogSource, repo ports.ConfigurationRepository) (int, int, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return 0, 0, err
	}
	log.Printf("Found %d configuration files in %s", len(files), dir)

	imported, skipped := 0, 0
	for _, file := range files {
		saved, err := loadConfiguration(ctx, file, catalogs)
		if err != nil {
			log.Printf("Skipping %s: %v", file, err)
			skipped++
			continue
		}
		if err := repo.Save(ctx, saved); err != nil {
			log.Printf("Failed to save %s: %v", file, err)
			skipped++
			continue
		}
		log.Printf("Imported %s as %s (%s)", filepath.Base(file), saved.ID, saved.Name)
		imported++
	}
	return imported, skipped, nil
}

// loadConfiguration parses file, restores it against the current catalog and
// returns it ready to save with a fresh signature.
func loadConfiguration(ctx context.Context, file string, catalogs ports.CatalogSource) (*ports.SavedConfiguration, error) {
	raw, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}

	var wrapped configurationFile
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if wrapped.Configuration == nil {
		var bare pivot.PivotConfiguration
		if err := json.Unmarshal(raw, &bare); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		wrapped.Configuration = &bare
	}
	if wrapped.Name == "" {
		wrapped.Name = strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	}
	if err := pivot.Validate(*wrapped.Configuration); err != nil {
		return nil, err
	}

	catalog, err := catalogs.LoadCatalog(ctx, wrapped.Configuration.DataSource)
	if err != nil {
		return nil, err
	}
	editor := pivot.NewEditorFromConfiguration(*wrapped.Configuration, catalog)

	saved := &ports.SavedConfiguration{
		Name:          wrapped.Name,
		DataSource:    editor.DataSource(),
		Signature:     core.NewSignatureHash(editor.Signature()),
		Configuration: editor.Configuration(),
	}
	if wrapped.ID != "" {
		id, err := core.ParseConfigurationID(wrapped.ID)
		if err != nil {
			return nil, err
		}
		saved.ID = id
	}
	return saved, nil
}
