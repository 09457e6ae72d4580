package ui

import (
	"context"
	"embed"
	"html/template"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"pivotdesk/app"
	"pivotdesk/domain/core"
	"pivotdesk/domain/pivot"
	"pivotdesk/internal"
	"pivotdesk/ports"
)

//go:embed templates/*.html
var templateFiles embed.FS

// PivotAPI is the application surface the HTTP layer drives
type PivotAPI interface {
	ListDataSources(ctx context.Context) ([]string, error)
	OpenSession(ctx context.Context, dataSource string) (*app.SessionView, error)
	GetSession(ctx context.Context, id core.SessionID) (*app.SessionView, error)
	SelectDataSource(ctx context.Context, id core.SessionID, dataSource string) (*app.SessionView, error)
	Apply(ctx context.Context, id core.SessionID, m app.Mutation) (*app.SessionView, bool, error)
	Result(ctx context.Context, id core.SessionID) (*app.ResultView, error)
	Normalized(ctx context.Context, id core.SessionID, mode pivot.PercentageMode, decimals int) (*app.NormalizedView, error)
	Summary(ctx context.Context, id core.SessionID, mode pivot.PercentageMode, decimals int) (string, error)
	Export(ctx context.Context, id core.SessionID, mode pivot.PercentageMode, decimals int, w io.Writer) (string, error)
	ExportContentType() string
	Save(ctx context.Context, id core.SessionID, name string) (*ports.SavedConfiguration, error)
	ListSaved(ctx context.Context, dataSource string) ([]*ports.SavedConfiguration, error)
	Restore(ctx context.Context, configID core.ConfigurationID) (*app.SessionView, error)
	CloseSession(ctx context.Context, id core.SessionID) error
	SessionCount() int
	Ping(ctx context.Context) error
}

// EventStream serves the live event feed of one session
type EventStream interface {
	Subscribe(sessionID core.SessionID) (<-chan ports.SessionEvent, func())
	Stream(c *gin.Context, events <-chan ports.SessionEvent)
	ActiveSessions() []core.SessionID
}

// Server represents the pivot HTTP API
type Server struct {
	router    *gin.Engine
	pivots    PivotAPI
	events    EventStream
	templates *template.Template
	logger    *internal.Logger
	startedAt time.Time
}

// NewServer creates the server and registers all routes. A nil events
// disables the session event feed.
func NewServer(pivots PivotAPI, events EventStream, logger *internal.Logger) (*Server, error) {
	if logger == nil {
		logger = internal.NewDefaultLogger()
	}
	tmpl, err := template.ParseFS(templateFiles, "templates/*.html")
	if err != nil {
		return nil, err
	}

	s := &Server{
		router:    gin.New(),
		pivots:    pivots,
		events:    events,
		templates: tmpl,
		logger:    logger.With("HTTP"),
		startedAt: time.Now(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s, nil
}

// Handler exposes the router, mainly for tests and custom listeners
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	api := s.router.Group("/api/pivot")
	{
		api.GET("/data-sources", s.handleListDataSources)

		api.POST("/sessions", s.handleOpenSession)
		api.GET("/sessions/:id", s.handleGetSession)
		api.DELETE("/sessions/:id", s.handleCloseSession)
		api.PUT("/sessions/:id/data-source", s.handleSelectDataSource)
		api.POST("/sessions/:id/mutations", s.handleApply)
		api.GET("/sessions/:id/result", s.handleResult)
		api.GET("/sessions/:id/summary", s.handleSummary)
		api.GET("/sessions/:id/export", s.handleExport)
		api.POST("/sessions/:id/save", s.handleSave)
		if s.events != nil {
			api.GET("/sessions/:id/events", s.handleEvents)
		}

		api.GET("/configurations", s.handleListSaved)
		api.POST("/configurations/:configId/restore", s.handleRestore)
	}
}

// Start serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening on http://%s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}
