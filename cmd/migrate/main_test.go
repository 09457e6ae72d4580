package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pivotdesk/domain/core"
	"pivotdesk/domain/pivot"
	"pivotdesk/ports"
)

type stubCatalogs struct{}

func (stubCatalogs) ListDataSources(ctx context.Context) ([]string, error) {
	return []string{"sales"}, nil
}

func (stubCatalogs) LoadCatalog(ctx context.Context, dataSource string) (*pivot.Catalog, error) {
	if dataSource != "sales" {
		return nil, core.ErrDataSourceNotFound
	}
	return pivot.NewCatalog([]string{"Region", "Sales"}, map[string][]string{
		"Region": {"East", "West"},
		"Sales":  {"10", "20"},
	}), nil
}

type recordingRepo struct {
	saved []*ports.SavedConfiguration
}

func (r *recordingRepo) Save(ctx context.Context, cfg *ports.SavedConfiguration) error {
	if cfg.ID == "" {
		cfg.ID = core.NewConfigurationID()
	}
	r.saved = append(r.saved, cfg)
	return nil
}

func (r *recordingRepo) GetByID(ctx context.Context, id core.ConfigurationID) (*ports.SavedConfiguration, error) {
	return nil, core.ErrConfigurationNotFound
}

func (r *recordingRepo) ListByDataSource(ctx context.Context, dataSource string) ([]*ports.SavedConfiguration, error) {
	return r.saved, nil
}

func (r *recordingRepo) Delete(ctx context.Context, id core.ConfigurationID) error { return nil }

func TestImportConfigurations(t *testing.T) {
	dir := t.TempDir()
	wrapped := `{"name": "By region", "configuration": {"data_source": "sales",
		"buckets": {"rows": ["Region", "Unknown"], "columns": [], "filters": [],
		"values": [{"field": "Sales", "aggregation": "sum"}]}, "grand_totals": "both"}}`
	bare := `{"data_source": "sales", "buckets": {"rows": [], "columns": ["Region"],
		"filters": [], "values": []}, "grand_totals": "none"}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wrapped.json"), []byte(wrapped), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "columns_only.json"), []byte(bare), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.json"), []byte(`{"data_source": "missing", "grand_totals": "both"}`), 0o644))

	repo := &recordingRepo{}
	imported, skipped, err := importConfigurations(context.Background(), dir, stubCatalogs{}, repo)
	require.NoError(t, err)
	assert.Equal(t, 2, imported)
	assert.Equal(t, 2, skipped)

	byName := map[string]*ports.SavedConfiguration{}
	for _, s := range repo.saved {
		byName[s.Name] = s
	}
	require.Contains(t, byName, "By region")
	require.Contains(t, byName, "columns_only")

	byRegion := byName["By region"]
	assert.Equal(t, []string{"Region"}, byRegion.Configuration.Buckets.Rows, "unknown fields are dropped on restore")
	editor := pivot.NewEditorFromConfiguration(byRegion.Configuration, mustCatalog(t))
	assert.Equal(t, core.NewSignatureHash(editor.Signature()), byRegion.Signature)
}

func TestLoadConfigurationKeepsID(t *testing.T) {
	id := core.NewConfigurationID()
	path := filepath.Join(t.TempDir(), "saved.json")
	body := `{"id": "` + id.String() + `", "name": "Kept", "configuration": {"data_source": "sales", "grand_totals": "rows"}}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	saved, err := loadConfiguration(context.Background(), path, stubCatalogs{})
	require.NoError(t, err)
	assert.Equal(t, id, saved.ID)
	assert.Equal(t, pivot.GrandTotalsRows, saved.Configuration.GrandTotals)
}

func mustCatalog(t *testing.T) *pivot.Catalog {
	t.Helper()
	c, err := stubCatalogs{}.LoadCatalog(context.Background(), "sales")
	require.NoError(t, err)
	return c
}
