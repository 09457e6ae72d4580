package ui

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"pivotdesk/app"
	"pivotdesk/domain/core"
	"pivotdesk/domain/pivot"
	"pivotdesk/internal/errors"
)

const healthTimeout = 2 * time.Second

type dataSourceRequest struct {
	DataSource string `json:"data_source"`
}

type saveRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	status, code, cache := "ok", http.StatusOK, "ok"
	if err := s.pivots.Ping(ctx); err != nil {
		s.logger.Warn("health check: %v", err)
		status, code, cache = "degraded", http.StatusServiceUnavailable, err.Error()
	}
	body := gin.H{
		"status":   status,
		"uptime":   time.Since(s.startedAt).Round(time.Second).String(),
		"sessions": s.pivots.SessionCount(),
		"cache":    cache,
	}
	if s.events != nil {
		body["streaming_sessions"] = len(s.events.ActiveSessions())
	}
	c.JSON(code, body)
}

func (s *Server) handleListDataSources(c *gin.Context) {
	names, err := s.pivots.ListDataSources(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data_sources": names})
}

func (s *Server) handleOpenSession(c *gin.Context) {
	var req dataSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, errors.InvalidInput("invalid request body: "+err.Error()))
		return
	}
	view, err := s.pivots.OpenSession(c.Request.Context(), req.DataSource)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

func (s *Server) handleGetSession(c *gin.Context) {
	view, err := s.pivots.GetSession(c.Request.Context(), sessionID(c))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) handleCloseSession(c *gin.Context) {
	if err := s.pivots.CloseSession(c.Request.Context(), sessionID(c)); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleSelectDataSource(c *gin.Context) {
	var req dataSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, errors.InvalidInput("invalid request body: "+err.Error()))
		return
	}
	view, err := s.pivots.SelectDataSource(c.Request.Context(), sessionID(c), req.DataSource)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) handleApply(c *gin.Context) {
	var m app.Mutation
	if err := c.ShouldBindJSON(&m); err != nil {
		s.respondError(c, errors.InvalidInput("invalid mutation: "+err.Error()))
		return
	}
	view, changed, err := s.pivots.Apply(c.Request.Context(), sessionID(c), m)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"changed": changed, "session": view})
}

// handleResult returns the raw grid when no mode is given, otherwise the
// normalized grid.
func (s *Server) handleResult(c *gin.Context) {
	mode, decimals, err := normalizationParams(c)
	if err != nil {
		s.respondError(c, err)
		return
	}

	if c.Query("mode") == "" {
		result, err := s.pivots.Result(c.Request.Context(), sessionID(c))
		if err != nil {
			s.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
		return
	}

	view, err := s.pivots.Normalized(c.Request.Context(), sessionID(c), mode, decimals)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (s *Server) handleSummary(c *gin.Context) {
	mode, decimals, err := normalizationParams(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	id := sessionID(c)
	md, err := s.pivots.Summary(c.Request.Context(), id, mode, decimals)
	if err != nil {
		s.respondError(c, err)
		return
	}
	session, err := s.pivots.GetSession(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}

	if strings.Contains(c.GetHeader("Accept"), "text/markdown") {
		c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(md))
		return
	}

	var buf bytes.Buffer
	err = s.templates.ExecuteTemplate(&buf, "summary.html", gin.H{
		"Title":     "Pivot: " + session.DataSource,
		"Body":      template.HTML(renderMarkdown(md)),
		"Signature": session.Signature.String(),
	})
	if err != nil {
		s.respondError(c, errors.Wrap(err, "failed to render summary"))
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

func (s *Server) handleExport(c *gin.Context) {
	mode, decimals, err := normalizationParams(c)
	if err != nil {
		s.respondError(c, err)
		return
	}

	var buf bytes.Buffer
	name, err := s.pivots.Export(c.Request.Context(), sessionID(c), mode, decimals, &buf)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	c.Data(http.StatusOK, s.pivots.ExportContentType(), buf.Bytes())
}

// handleEvents streams session events as SSE until the client leaves
func (s *Server) handleEvents(c *gin.Context) {
	id := sessionID(c)
	events, unsubscribe := s.events.Subscribe(id)
	defer unsubscribe()
	if _, err := s.pivots.GetSession(c.Request.Context(), id); err != nil {
		s.respondError(c, err)
		return
	}
	s.events.Stream(c, events)
}

func (s *Server) handleSave(c *gin.Context) {
	var req saveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, errors.InvalidInput("invalid request body: "+err.Error()))
		return
	}
	saved, err := s.pivots.Save(c.Request.Context(), sessionID(c), req.Name)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, saved)
}

func (s *Server) handleListSaved(c *gin.Context) {
	dataSource := strings.TrimSpace(c.Query("data_source"))
	if dataSource == "" {
		s.respondError(c, errors.InvalidInput("data_source query parameter is required"))
		return
	}
	configs, err := s.pivots.ListSaved(c.Request.Context(), dataSource)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"configurations": configs})
}

func (s *Server) handleRestore(c *gin.Context) {
	id, err := core.ParseConfigurationID(c.Param("configId"))
	if err != nil {
		s.respondError(c, errors.InvalidInput(err.Error()))
		return
	}
	view, err := s.pivots.Restore(c.Request.Context(), id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

func sessionID(c *gin.Context) core.SessionID {
	return core.SessionID(c.Param("id"))
}

// normalizationParams reads ?mode= and ?decimals=. A missing decimals is
// reported as -1 so the service applies its default.
func normalizationParams(c *gin.Context) (pivot.PercentageMode, int, error) {
	mode, ok := pivot.ParsePercentageMode(c.Query("mode"))
	if !ok {
		return "", 0, errors.InvalidInput(fmt.Sprintf("unknown mode %q", c.Query("mode")))
	}
	decimals := -1
	if raw := c.Query("decimals"); raw != "" {
		d, err := strconv.Atoi(raw)
		if err != nil || d < 0 || d > 10 {
			return "", 0, errors.InvalidInput(fmt.Sprintf("decimals must be an integer between 0 and 10, got %q", raw))
		}
		decimals = d
	}
	return mode, decimals, nil
}

func renderMarkdown(md string) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.Tables)
	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags | html.SkipHTML})
	return markdown.ToHTML([]byte(md), p, renderer)
}
