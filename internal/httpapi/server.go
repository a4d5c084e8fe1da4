// Package httpapi exposes stored alert summaries over HTTP.
package httpapi

import (
	"context"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"AlertEnricher/internal/domain"
	"AlertEnricher/internal/ports"
)

const viewTemplate = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Alert summaries</title></head>
<body>
<h1>Alert summaries</h1>
<form method="get" action="/alerts/view">
<input type="text" name="q" value="{{.Query}}" placeholder="Filter">
<button type="submit">Search</button>
</form>
{{if .Error}}<p class="error">{{.Error}}</p>{{end}}
<table id="alerts">
<thead><tr><th>Alert ID</th><th>Machine</th><th>Opinion</th><th>Mitigation</th><th>Relevant Info</th></tr></thead>
<tbody>
{{range .Rows}}<tr><td>{{.AlertID}}</td><td>{{.Machine}}</td><td>{{.Opinion}}</td><td>{{.Mitigation}}</td><td>{{.RelevantInfo}}</td></tr>
{{end}}</tbody>
</table>
</body>
</html>
`

// Server serves the summary list, an HTML view, health and metrics.
type Server struct {
	store  ports.SummaryStore
	log    *slog.Logger
	engine *gin.Engine
}

// NewServer builds the router. Call gin.SetMode before this to silence debug output.
func NewServer(store ports.SummaryStore, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{store: store, log: log}

	engine := gin.New()
	engine.Use(gin.Recovery(), s.requestLogger())
	engine.SetHTMLTemplate(template.Must(template.New("view").Parse(viewTemplate)))

	engine.GET("/alerts", s.listAlerts)
	engine.GET("/alerts/view", s.viewAlerts)
	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.engine = engine
	return s
}

// Handler returns the router for embedding or tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe serves on addr until ctx is cancelled, then drains for up to five seconds.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http api listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) listAlerts(c *gin.Context) {
	rows, err := s.store.List(c.Request.Context())
	if err != nil {
		s.log.Error("list summaries failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	c.JSON(http.StatusOK, rows)
}

type viewData struct {
	Query string
	Error string
	Rows  []domain.Summary
}

func (s *Server) viewAlerts(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))

	rows, err := s.store.List(c.Request.Context())
	if err != nil {
		s.log.Error("list summaries failed", "error", err)
		c.HTML(http.StatusInternalServerError, "view", viewData{Query: query, Error: "Failed to load alerts: " + err.Error()})
		return
	}

	c.HTML(http.StatusOK, "view", viewData{Query: query, Rows: FilterSummaries(rows, query)})
}

// FilterSummaries keeps rows where any column contains query, ignoring case.
func FilterSummaries(rows []domain.Summary, query string) []domain.Summary {
	if query == "" {
		return rows
	}
	needle := strings.ToLower(query)
	out := make([]domain.Summary, 0, len(rows))
	for _, r := range rows {
		fields := []string{
			r.AlertID,
			r.Machine,
			r.Opinion,
			r.Mitigation,
			r.RelevantInfo,
		}
		for _, f := range fields {
			if strings.Contains(strings.ToLower(f), needle) {
				out = append(out, r)
				break
			}
		}
	}
	return out
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed", time.Since(start),
		)
	}
}
