package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"pivotdesk/domain/core"
	"pivotdesk/domain/pivot"
	"pivotdesk/internal"
	"pivotdesk/internal/errors"
	"pivotdesk/ports"
)

// Where a ResultView came from
const (
	SourceSession = "session"
	SourceCache   = "cache"
	SourceCompute = "compute"
)

// PivotServiceDeps are the ports the service drives. Configs may be nil, in
// which case saving and restoring configurations is unavailable. Events may
// be nil.
type PivotServiceDeps struct {
	Catalogs ports.CatalogSource
	Compute  ports.ComputeService
	Cache    ports.ResultCache
	Configs  ports.ConfigurationRepository
	Exporter ports.Exporter
	Events   ports.EventPublisher
	Logger   *internal.Logger
}

// PivotServiceConfig tunes the service
type PivotServiceConfig struct {
	DefaultDecimals       int
	MaxConcurrentComputes int64
}

// SessionView is the externally visible state of one pivot session
type SessionView struct {
	ID             core.SessionID            `json:"id"`
	DataSource     string                    `json:"data_source"`
	Fields         []string                  `json:"fields"`
	Buckets        pivot.BucketState         `json:"buckets"`
	Selections     pivot.Selections          `json:"selections"`
	GrandTotals    pivot.GrandTotalsMode     `json:"grand_totals"`
	Sorting        map[string]pivot.SortSpec `json:"sorting,omitempty"`
	SelectedFields []string                  `json:"selected_fields"`
	Signature      core.SignatureHash        `json:"signature"`
	HasResult      bool                      `json:"has_result"`
}

// ResultView is a computed grid together with the layout it was computed for
type ResultView struct {
	Signature       core.SignatureHash    `json:"signature"`
	Source          string                `json:"source"`
	RowFields       []string              `json:"row_fields"`
	ColumnFields    []string              `json:"column_fields"`
	Rows            []pivot.ResultRow     `json:"rows"`
	Hierarchy       []pivot.HierarchyNode `json:"hierarchy,omitempty"`
	ColumnHierarchy []any                 `json:"column_hierarchy,omitempty"`
}

// NormalizedView is a result grid after percentage normalization
type NormalizedView struct {
	Signature core.SignatureHash   `json:"signature"`
	Mode      pivot.PercentageMode `json:"mode"`
	Decimals  int                  `json:"decimals"`
	Columns   []string             `json:"columns"`
	Rows      []pivot.ResultRow    `json:"rows"`
}

type heldResult struct {
	signature    string
	hash         core.SignatureHash
	rowFields    []string
	columnFields []string
	resp         *pivot.ComputeResponse
}

type session struct {
	mu         sync.Mutex
	id         core.SessionID
	editor     *pivot.Editor
	result     *heldResult
	lastAccess time.Time
}

// PivotService owns the pivot sessions of all users. Edits to one session are
// serialized by its mutex; compute calls for the same signature are shared
// across sessions.
type PivotService struct {
	deps     PivotServiceDeps
	config   PivotServiceConfig
	logger   *internal.Logger
	mu       sync.RWMutex
	sessions map[core.SessionID]*session
	flight   singleflight.Group
	slots    *semaphore.Weighted
	now      func() time.Time
}

// NewPivotService creates a pivot service
func NewPivotService(deps PivotServiceDeps, config PivotServiceConfig) *PivotService {
	if config.MaxConcurrentComputes <= 0 {
		config.MaxConcurrentComputes = 4
	}
	if config.DefaultDecimals < 0 {
		config.DefaultDecimals = 2
	}
	logger := deps.Logger
	if logger == nil {
		logger = internal.NewDefaultLogger()
	}
	return &PivotService{
		deps:     deps,
		config:   config,
		logger:   logger.With("PivotService"),
		sessions: make(map[core.SessionID]*session),
		slots:    semaphore.NewWeighted(config.MaxConcurrentComputes),
		now:      time.Now,
	}
}

// ListDataSources returns the data sources a session can bind to
func (s *PivotService) ListDataSources(ctx context.Context) ([]string, error) {
	names, err := s.deps.Catalogs.ListDataSources(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list data sources")
	}
	return names, nil
}

// OpenSession starts an empty pivot over dataSource
func (s *PivotService) OpenSession(ctx context.Context, dataSource string) (*SessionView, error) {
	catalog, err := s.loadCatalog(ctx, dataSource)
	if err != nil {
		return nil, err
	}
	sess := s.register(pivot.NewEditor(dataSource, catalog))
	s.logger.Info("opened session %s on %s (%d fields)", sess.id, dataSource, len(catalog.Fields()))

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.view(), nil
}

// GetSession returns the current state of a session
func (s *PivotService) GetSession(ctx context.Context, id core.SessionID) (*SessionView, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.view(), nil
}

// SelectDataSource rebinds a session to another data source, discarding all
// buckets, selections and the held result.
func (s *PivotService) SelectDataSource(ctx context.Context, id core.SessionID, dataSource string) (*SessionView, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	catalog, err := s.loadCatalog(ctx, dataSource)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	sess.editor.Reset(dataSource, catalog)
	sess.result = nil
	s.logger.Debug("session %s switched to %s", id, dataSource)
	view := sess.view()
	s.publish(ports.SessionEvent{
		SessionID:  id,
		EventType:  ports.EventDataSourceChanged,
		DataSource: dataSource,
		Signature:  view.Signature,
	})
	return view, nil
}

// Apply runs one mutation. The returned bool reports whether the
// configuration changed.
func (s *PivotService) Apply(ctx context.Context, id core.SessionID, m Mutation) (*SessionView, bool, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return nil, false, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	changed, err := m.apply(sess.editor)
	if err != nil {
		return nil, false, err
	}
	s.logger.Trace("session %s %s %q changed=%t", id, m.Op, m.Field, changed)
	view := sess.view()
	if changed {
		s.publish(ports.SessionEvent{
			SessionID:  id,
			EventType:  ports.EventConfigurationChanged,
			DataSource: view.DataSource,
			Signature:  view.Signature,
			Data:       map[string]any{"op": m.Op, "field": m.Field},
		})
	}
	return view, changed, nil
}

// Result returns the grid for the session's current configuration. The held
// result is reused while the signature is unchanged; otherwise the result
// cache is consulted before calling the compute service.
func (s *PivotService) Result(ctx context.Context, id core.SessionID) (*ResultView, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	signature := sess.editor.Signature()
	if held := sess.result; held != nil && held.signature == signature {
		sess.mu.Unlock()
		return held.view(SourceSession), nil
	}
	state := sess.editor.State()
	dataSource := sess.editor.DataSource()
	req := sess.editor.ComputeRequest()
	sess.mu.Unlock()

	if len(state.Values) == 0 && len(state.Rows) == 0 && len(state.Columns) == 0 {
		return nil, errors.InvalidInput("place at least one field before requesting a result")
	}

	hash := core.NewSignatureHash(signature)
	resp, source, err := s.fetch(ctx, hash, dataSource, req)
	if err != nil {
		return nil, err
	}

	held := &heldResult{
		signature:    signature,
		hash:         hash,
		rowFields:    state.Rows,
		columnFields: state.Columns,
		resp:         resp,
	}

	sess.mu.Lock()
	current := sess.editor.Signature() == signature
	if current {
		sess.result = held
	}
	sess.mu.Unlock()

	if current {
		s.publish(ports.SessionEvent{
			SessionID:  id,
			EventType:  ports.EventResultReady,
			DataSource: dataSource,
			Signature:  hash,
			Data:       map[string]any{"source": source, "rows": len(resp.Data)},
		})
	}
	return held.view(source), nil
}

// Normalized returns the session's result in percentage form. A negative
// decimals selects the configured default.
func (s *PivotService) Normalized(ctx context.Context, id core.SessionID, mode pivot.PercentageMode, decimals int) (*NormalizedView, error) {
	parsed, ok := pivot.ParsePercentageMode(string(mode))
	if !ok {
		return nil, errors.Wrap(fmt.Errorf("%w: %q", core.ErrInvalidMode, mode), "invalid percentage mode")
	}
	mode = parsed
	if decimals < 0 {
		decimals = s.config.DefaultDecimals
	}

	result, err := s.Result(ctx, id)
	if err != nil {
		return nil, err
	}

	rows := pivot.Normalize(result.Rows, result.RowFields, result.ColumnFields, mode, decimals, result.Hierarchy)
	return &NormalizedView{
		Signature: result.Signature,
		Mode:      mode,
		Decimals:  decimals,
		Columns:   pivot.ColumnOrder(result.RowFields, rows),
		Rows:      rows,
	}, nil
}

// Export writes the normalized grid through the configured exporter and
// returns the suggested file name.
func (s *PivotService) Export(ctx context.Context, id core.SessionID, mode pivot.PercentageMode, decimals int, w io.Writer) (string, error) {
	if s.deps.Exporter == nil {
		return "", errors.ConfigInvalid("no exporter configured")
	}
	view, err := s.Normalized(ctx, id, mode, decimals)
	if err != nil {
		return "", err
	}
	sess, err := s.lookup(id)
	if err != nil {
		return "", err
	}
	sess.mu.Lock()
	dataSource := sess.editor.DataSource()
	sess.mu.Unlock()

	if err := s.deps.Exporter.Export(w, dataSource, view.Columns, view.Rows); err != nil {
		return "", errors.Wrap(err, "failed to export pivot")
	}
	name := fmt.Sprintf("%s_pivot", sanitizeFileName(dataSource))
	if view.Mode != pivot.PercentageOff {
		name += "_" + string(view.Mode)
	}
	return name + s.deps.Exporter.FileExtension(), nil
}

// ExportContentType is the MIME type of Export output
func (s *PivotService) ExportContentType() string {
	if s.deps.Exporter == nil {
		return "application/octet-stream"
	}
	return s.deps.Exporter.ContentType()
}

// Save persists the session's configuration under name
func (s *PivotService) Save(ctx context.Context, id core.SessionID, name string) (*ports.SavedConfiguration, error) {
	if s.deps.Configs == nil {
		return nil, errors.ConfigInvalid("configuration storage is not configured")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.InvalidInput("configuration name is required")
	}
	sess, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	cfg := sess.editor.Configuration()
	signature := sess.editor.Signature()
	sess.mu.Unlock()

	saved := &ports.SavedConfiguration{
		Name:          name,
		DataSource:    cfg.DataSource,
		Signature:     core.NewSignatureHash(signature),
		Configuration: cfg,
	}
	if err := s.deps.Configs.Save(ctx, saved); err != nil {
		return nil, errors.Wrap(err, "failed to save configuration")
	}
	s.logger.Info("saved configuration %s (%s) for %s", saved.ID, name, cfg.DataSource)
	return saved, nil
}

// ListSaved returns the saved configurations of dataSource
func (s *PivotService) ListSaved(ctx context.Context, dataSource string) ([]*ports.SavedConfiguration, error) {
	if s.deps.Configs == nil {
		return nil, errors.ConfigInvalid("configuration storage is not configured")
	}
	configs, err := s.deps.Configs.ListByDataSource(ctx, dataSource)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list configurations")
	}
	return configs, nil
}

// Restore opens a new session from a saved configuration. The configuration
// is validated, then reconciled against the data source's current catalog.
func (s *PivotService) Restore(ctx context.Context, configID core.ConfigurationID) (*SessionView, error) {
	if s.deps.Configs == nil {
		return nil, errors.ConfigInvalid("configuration storage is not configured")
	}
	saved, err := s.deps.Configs.GetByID(ctx, configID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load configuration %s", configID)
	}
	if err := pivot.Validate(saved.Configuration); err != nil {
		return nil, errors.Wrap(err, "stored configuration is invalid")
	}
	catalog, err := s.loadCatalog(ctx, saved.Configuration.DataSource)
	if err != nil {
		return nil, err
	}

	sess := s.register(pivot.NewEditorFromConfiguration(saved.Configuration, catalog))
	s.logger.Info("restored configuration %s into session %s", configID, sess.id)

	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.view(), nil
}

// CloseSession discards a session
func (s *PivotService) CloseSession(ctx context.Context, id core.SessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return fmt.Errorf("%w: %s", core.ErrSessionNotFound, id)
	}
	delete(s.sessions, id)
	s.publish(ports.SessionEvent{SessionID: id, EventType: ports.EventSessionClosed})
	return nil
}

// PruneIdle closes sessions not touched within maxIdle and returns how many
// were closed.
func (s *PivotService) PruneIdle(maxIdle time.Duration) int {
	cutoff := s.now().Add(-maxIdle)
	s.mu.Lock()
	defer s.mu.Unlock()
	pruned := 0
	for id, sess := range s.sessions {
		sess.mu.Lock()
		idle := sess.lastAccess.Before(cutoff)
		sess.mu.Unlock()
		if idle {
			delete(s.sessions, id)
			s.publish(ports.SessionEvent{SessionID: id, EventType: ports.EventSessionClosed, Data: map[string]any{"reason": "idle"}})
			pruned++
		}
	}
	if pruned > 0 {
		s.logger.Debug("pruned %d idle sessions", pruned)
	}
	return pruned
}

// Ping reports whether the result cache is reachable
func (s *PivotService) Ping(ctx context.Context) error {
	if s.deps.Cache == nil {
		return nil
	}
	return s.deps.Cache.Ping(ctx)
}

// SessionCount reports the number of open sessions
func (s *PivotService) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *PivotService) fetch(ctx context.Context, hash core.SignatureHash, dataSource string, req pivot.ComputeRequest) (*pivot.ComputeResponse, string, error) {
	if s.deps.Cache != nil {
		resp, ok, err := s.deps.Cache.Get(ctx, hash)
		switch {
		case err != nil:
			s.logger.Warn("result cache lookup failed: %v", err)
		case ok && (resp == nil || resp.Data == nil):
			// a stored grid always has Data; anything else is stale
			s.logger.Warn("dropping unusable cached result %s", hash.String()[:12])
			if err := s.deps.Cache.Invalidate(ctx, hash); err != nil {
				s.logger.Warn("result cache invalidate failed: %v", err)
			}
		case ok:
			return resp, SourceCache, nil
		}
	}

	// Shared computes outlive any single caller; each caller stops waiting
	// on its own context.
	detached := context.WithoutCancel(ctx)
	ch := s.flight.DoChan(hash.String(), func() (interface{}, error) {
		if err := s.slots.Acquire(detached, 1); err != nil {
			return nil, err
		}
		defer s.slots.Release(1)

		start := s.now()
		resp, err := s.deps.Compute.Compute(detached, dataSource, req)
		if err != nil {
			return nil, err
		}
		s.logger.Debug("computed %s for %s in %s (%d rows)", hash.String()[:12], dataSource, s.now().Sub(start).Round(time.Millisecond), len(resp.Data))

		if s.deps.Cache != nil {
			if err := s.deps.Cache.Put(detached, hash, resp); err != nil {
				s.logger.Warn("result cache store failed: %v", err)
			}
		}
		return resp, nil
	})

	select {
	case <-ctx.Done():
		return nil, "", errors.Wrap(ctx.Err(), "pivot compute cancelled")
	case res := <-ch:
		if res.Err != nil {
			return nil, "", errors.Wrap(res.Err, "pivot compute failed")
		}
		return res.Val.(*pivot.ComputeResponse), SourceCompute, nil
	}
}

func (s *PivotService) publish(event ports.SessionEvent) {
	if s.deps.Events == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now().UTC()
	}
	s.deps.Events.Publish(event)
}

func (s *PivotService) loadCatalog(ctx context.Context, dataSource string) (*pivot.Catalog, error) {
	if strings.TrimSpace(dataSource) == "" {
		return nil, errors.InvalidInput("data source is required")
	}
	catalog, err := s.deps.Catalogs.LoadCatalog(ctx, dataSource)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load catalog for %s", dataSource)
	}
	return catalog, nil
}

func (s *PivotService) register(editor *pivot.Editor) *session {
	sess := &session{
		id:         core.NewSessionID(),
		editor:     editor,
		lastAccess: s.now(),
	}
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()
	return sess
}

func (s *PivotService) lookup(id core.SessionID) (*session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, errors.Wrap(fmt.Errorf("%w: %s", core.ErrSessionNotFound, id), "unknown session")
	}
	sess.mu.Lock()
	sess.lastAccess = s.now()
	sess.mu.Unlock()
	return sess, nil
}

// view must be called with sess.mu held
func (sess *session) view() *SessionView {
	cfg := sess.editor.Configuration()
	signature := sess.editor.Signature()
	return &SessionView{
		ID:             sess.id,
		DataSource:     cfg.DataSource,
		Fields:         sess.editor.Catalog().Fields(),
		Buckets:        cfg.Buckets,
		Selections:     cfg.Selections,
		GrandTotals:    cfg.GrandTotals,
		Sorting:        cfg.Sorting,
		SelectedFields: sess.editor.SelectedFields(),
		Signature:      core.NewSignatureHash(signature),
		HasResult:      sess.result != nil && sess.result.signature == signature,
	}
}

func (h *heldResult) view(source string) *ResultView {
	return &ResultView{
		Signature:       h.hash,
		Source:          source,
		RowFields:       append([]string(nil), h.rowFields...),
		ColumnFields:    append([]string(nil), h.columnFields...),
		Rows:            h.resp.Data,
		Hierarchy:       h.resp.Hierarchy,
		ColumnHierarchy: h.resp.ColumnHierarchy,
	}
}

func sanitizeFileName(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "pivot"
	}
	return b.String()
}
