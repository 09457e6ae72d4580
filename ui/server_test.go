package ui

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pivotdesk/adapters/excel"
	"pivotdesk/adapters/memory"
	"pivotdesk/app"
	"pivotdesk/domain/core"
	"pivotdesk/domain/pivot"
	"pivotdesk/internal"
	"pivotdesk/internal/api"
	"pivotdesk/ports"
)

type stubCatalogs struct{}

func (stubCatalogs) ListDataSources(ctx context.Context) ([]string, error) {
	return []string{"sales"}, nil
}

func (stubCatalogs) LoadCatalog(ctx context.Context, dataSource string) (*pivot.Catalog, error) {
	if dataSource != "sales" {
		return nil, fmt.Errorf("%w: %s", core.ErrDataSourceNotFound, dataSource)
	}
	return pivot.NewCatalog(
		[]string{"Region", "Sales", "Profit"},
		map[string][]string{"Region": {"East", "West"}},
	), nil
}

type stubCompute struct{ calls int }

func (s *stubCompute) Compute(ctx context.Context, dataSource string, req pivot.ComputeRequest) (*pivot.ComputeResponse, error) {
	s.calls++
	return &pivot.ComputeResponse{Data: []pivot.ResultRow{
		{"Region": "East", "Sales": 50.0, "Profit": 50.0},
		{"Region": "West", "Sales": 150.0, "Profit": 50.0},
	}}, nil
}

type memoryConfigs struct {
	items map[core.ConfigurationID]*ports.SavedConfiguration
}

func (m *memoryConfigs) Save(ctx context.Context, cfg *ports.SavedConfiguration) error {
	if cfg.ID == "" {
		cfg.ID = core.NewConfigurationID()
	}
	m.items[cfg.ID] = cfg
	return nil
}

func (m *memoryConfigs) GetByID(ctx context.Context, id core.ConfigurationID) (*ports.SavedConfiguration, error) {
	cfg, ok := m.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrConfigurationNotFound, id)
	}
	return cfg, nil
}

func (m *memoryConfigs) ListByDataSource(ctx context.Context, dataSource string) ([]*ports.SavedConfiguration, error) {
	out := []*ports.SavedConfiguration{}
	for _, cfg := range m.items {
		if cfg.DataSource == dataSource {
			out = append(out, cfg)
		}
	}
	return out, nil
}

func (m *memoryConfigs) Delete(ctx context.Context, id core.ConfigurationID) error {
	delete(m.items, id)
	return nil
}

func setupTestServer(t *testing.T) (*Server, *stubCompute) {
	t.Helper()
	return setupTestServerWithEvents(t, nil)
}

func setupTestServerWithEvents(t *testing.T, hub *api.SSEHub) (*Server, *stubCompute) {
	t.Helper()
	compute := &stubCompute{}
	svc := newTestService(compute, memory.NewResultCache(64, time.Minute), hub)
	return newTestServer(t, svc, hub), compute
}

func newTestService(compute *stubCompute, cache ports.ResultCache, hub *api.SSEHub) *app.PivotService {
	return app.NewPivotService(app.PivotServiceDeps{
		Catalogs: stubCatalogs{},
		Compute:  compute,
		Cache:    cache,
		Configs:  &memoryConfigs{items: map[core.ConfigurationID]*ports.SavedConfiguration{}},
		Exporter: excel.NewWorkbookExporter(),
		Events:   publisherOrNil(hub),
		Logger:   internal.NewLogger(internal.LogLevelError),
	}, app.PivotServiceConfig{DefaultDecimals: 2})
}

func newTestServer(t *testing.T, pivots PivotAPI, hub *api.SSEHub) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	var events EventStream
	if hub != nil {
		events = hub
	}
	srv, err := NewServer(pivots, events, internal.NewLogger(internal.LogLevelError))
	require.NoError(t, err)
	return srv
}

func publisherOrNil(hub *api.SSEHub) ports.EventPublisher {
	if hub == nil {
		return nil
	}
	return hub
}

func do(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

// openPivot creates a session with Region in rows and Sales, Profit as values
func openPivot(t *testing.T, srv *Server) string {
	t.Helper()
	w := do(t, srv, http.MethodPost, "/api/pivot/sessions", gin.H{"data_source": "sales"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := decode[app.SessionView](t, w).ID.String()

	for _, m := range []app.Mutation{
		{Op: app.OpToggle, Field: "Region", Checked: true},
		{Op: app.OpMove, Field: "Sales", Bucket: "values"},
		{Op: app.OpMove, Field: "Profit", Bucket: "values"},
	} {
		w := do(t, srv, http.MethodPost, "/api/pivot/sessions/"+id+"/mutations", m)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}
	return id
}

func TestHealth(t *testing.T) {
	srv, _ := setupTestServer(t)
	openPivot(t, srv)

	w := do(t, srv, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	body := decode[map[string]any](t, w)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "ok", body["cache"])
	assert.Equal(t, 1.0, body["sessions"])
	assert.NotContains(t, body, "streaming_sessions")
}

type unreachableCache struct{}

func (unreachableCache) Get(ctx context.Context, key core.SignatureHash) (*pivot.ComputeResponse, bool, error) {
	return nil, false, fmt.Errorf("connection refused")
}

func (unreachableCache) Put(ctx context.Context, key core.SignatureHash, resp *pivot.ComputeResponse) error {
	return fmt.Errorf("connection refused")
}

func (unreachableCache) Invalidate(ctx context.Context, key core.SignatureHash) error {
	return fmt.Errorf("connection refused")
}

func (unreachableCache) Ping(ctx context.Context) error {
	return fmt.Errorf("connection refused")
}

func TestHealthReportsCacheOutage(t *testing.T) {
	svc := newTestService(&stubCompute{}, unreachableCache{}, nil)
	srv := newTestServer(t, svc, nil)

	w := do(t, srv, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	body := decode[map[string]any](t, w)
	assert.Equal(t, "degraded", body["status"])
	assert.Contains(t, body["cache"], "connection refused")

	// results still compute without the cache
	id := openPivot(t, srv)
	w = do(t, srv, http.MethodGet, "/api/pivot/sessions/"+id+"/result", nil)
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestSessionLifecycle(t *testing.T) {
	srv, _ := setupTestServer(t)

	w := do(t, srv, http.MethodGet, "/api/pivot/data-sources", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"sales"`)

	id := openPivot(t, srv)

	w = do(t, srv, http.MethodGet, "/api/pivot/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	view := decode[app.SessionView](t, w)
	assert.Equal(t, []string{"Region", "Sales", "Profit"}, view.SelectedFields)

	w = do(t, srv, http.MethodPut, "/api/pivot/sessions/"+id+"/data-source", gin.H{"data_source": "sales"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[app.SessionView](t, w).SelectedFields)

	w = do(t, srv, http.MethodDelete, "/api/pivot/sessions/"+id, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, srv, http.MethodGet, "/api/pivot/sessions/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", decode[map[string]any](t, w)["code"])
}

func TestOpenSessionErrors(t *testing.T) {
	srv, _ := setupTestServer(t)

	w := do(t, srv, http.MethodPost, "/api/pivot/sessions", gin.H{"data_source": "nope"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/pivot/sessions", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMutations(t *testing.T) {
	srv, _ := setupTestServer(t)
	id := openPivot(t, srv)
	path := "/api/pivot/sessions/" + id + "/mutations"

	w := do(t, srv, http.MethodPost, path, app.Mutation{Op: app.OpToggle, Field: "Region", Checked: true})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode[map[string]any](t, w)["changed"])

	w = do(t, srv, http.MethodPost, path, app.Mutation{Op: app.OpMove, Field: "Region", Bucket: "nowhere"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_INPUT", decode[map[string]any](t, w)["code"])
}

func TestResultEndpoint(t *testing.T) {
	srv, compute := setupTestServer(t)
	id := openPivot(t, srv)

	w := do(t, srv, http.MethodGet, "/api/pivot/sessions/"+id+"/result", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	result := decode[app.ResultView](t, w)
	assert.Equal(t, app.SourceCompute, result.Source)
	assert.Len(t, result.Rows, 2)

	w = do(t, srv, http.MethodGet, "/api/pivot/sessions/"+id+"/result?mode=row&decimals=1", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	view := decode[app.NormalizedView](t, w)
	assert.Equal(t, pivot.PercentageRow, view.Mode)
	assert.Equal(t, 1, view.Decimals)
	assert.Equal(t, 75.0, view.Rows[1]["Sales"])
	assert.Equal(t, 1, compute.calls)

	w = do(t, srv, http.MethodGet, "/api/pivot/sessions/"+id+"/result?mode=weird", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = do(t, srv, http.MethodGet, "/api/pivot/sessions/"+id+"/result?mode=row&decimals=-3", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSummaryEndpoint(t *testing.T) {
	srv, _ := setupTestServer(t)
	id := openPivot(t, srv)

	w := do(t, srv, http.MethodGet, "/api/pivot/sessions/"+id+"/summary?mode=column", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	body := w.Body.String()
	assert.Contains(t, body, "<title>Pivot: sales</title>")
	assert.Contains(t, body, "<table>")
	assert.Contains(t, body, "25%")

	req := httptest.NewRequest(http.MethodGet, "/api/pivot/sessions/"+id+"/summary", nil)
	req.Header.Set("Accept", "text/markdown")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "# Pivot: sales"))
}

func TestExportEndpoint(t *testing.T) {
	srv, _ := setupTestServer(t)
	id := openPivot(t, srv)

	w := do(t, srv, http.MethodGet, "/api/pivot/sessions/"+id+"/export?mode=grand_total", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Type"), "spreadsheetml")
	assert.Contains(t, w.Header().Get("Content-Disposition"), `filename="sales_pivot_grand_total.xlsx"`)
	assert.Greater(t, w.Body.Len(), 0)
}

func TestSaveListRestore(t *testing.T) {
	srv, _ := setupTestServer(t)
	id := openPivot(t, srv)

	w := do(t, srv, http.MethodPost, "/api/pivot/sessions/"+id+"/save", gin.H{"name": "regions"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	saved := decode[ports.SavedConfiguration](t, w)
	assert.Equal(t, "regions", saved.Name)

	w = do(t, srv, http.MethodGet, "/api/pivot/configurations?data_source=sales", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[map[string][]ports.SavedConfiguration](t, w)
	require.Len(t, list["configurations"], 1)

	w = do(t, srv, http.MethodGet, "/api/pivot/configurations", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, srv, http.MethodPost, "/api/pivot/configurations/"+saved.ID.String()+"/restore", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	restored := decode[app.SessionView](t, w)
	assert.NotEqual(t, id, restored.ID.String())
	assert.Equal(t, []string{"Region", "Sales", "Profit"}, restored.SelectedFields)

	w = do(t, srv, http.MethodPost, "/api/pivot/configurations/not-a-uuid/restore", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, srv, http.MethodPost, "/api/pivot/configurations/"+core.NewConfigurationID().String()+"/restore", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEventsEndpoint(t *testing.T) {
	hub := api.NewSSEHub(internal.NewLogger(internal.LogLevelError))
	srv, _ := setupTestServerWithEvents(t, hub)
	id := openPivot(t, srv)

	w := do(t, srv, http.MethodGet, "/api/pivot/sessions/missing/events", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	body := make(chan string, 1)
	go func() {
		resp, err := http.Get(ts.URL + "/api/pivot/sessions/" + id + "/events")
		if err != nil {
			body <- err.Error()
			return
		}
		defer resp.Body.Close()
		raw, _ := io.ReadAll(resp.Body)
		body <- string(raw)
	}()

	require.Eventually(t, func() bool { return hub.ClientCount(core.SessionID(id)) == 1 }, 2*time.Second, 10*time.Millisecond)
	w = do(t, srv, http.MethodGet, "/health", nil)
	assert.Equal(t, 1.0, decode[map[string]any](t, w)["streaming_sessions"])
	w = do(t, srv, http.MethodPost, "/api/pivot/sessions/"+id+"/mutations", app.Mutation{Op: app.OpSetGrandTotals, GrandTotals: "none"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = do(t, srv, http.MethodDelete, "/api/pivot/sessions/"+id, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	select {
	case got := <-body:
		assert.Contains(t, got, "event:configuration_changed")
		assert.Contains(t, got, "event:session_closed")
	case <-time.After(5 * time.Second):
		t.Fatal("event stream did not end after the session closed")
	}
}

// closingPivots closes the session right after confirming it exists
type closingPivots struct {
	*app.PivotService
}

func (p closingPivots) GetSession(ctx context.Context, id core.SessionID) (*app.SessionView, error) {
	view, err := p.PivotService.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := p.PivotService.CloseSession(ctx, id); err != nil {
		return nil, err
	}
	return view, nil
}

func TestEventsEndpointSeesCloseDuringSessionCheck(t *testing.T) {
	hub := api.NewSSEHub(internal.NewLogger(internal.LogLevelError))
	svc := newTestService(&stubCompute{}, memory.NewResultCache(64, time.Minute), hub)
	srv := newTestServer(t, closingPivots{svc}, hub)
	id := openPivot(t, srv)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(ts.URL + "/api/pivot/sessions/" + id + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "event:session_closed")
	assert.Eventually(t, func() bool { return hub.ClientCount(core.SessionID(id)) == 0 }, 2*time.Second, 10*time.Millisecond)
}
