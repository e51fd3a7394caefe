// Package api exposes the investigation engine over HTTP and WebSocket
// (§6 EXPANSION "Transport"): a Gin handler for ticket submission and
// snapshot/cancel/human-input RPCs, plus a WebSocket endpoint that bridges
// pkg/stream.Bus to long-lived subscribers. Neither transport is part of
// the engine's own public contract — both simply read from the same Bus
// any other subscriber would.
package api

import (
	"context"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fourkites/rca-engine/pkg/eventlog"
	"github.com/fourkites/rca-engine/pkg/investigation"
	"github.com/fourkites/rca-engine/pkg/stream"
	"github.com/fourkites/rca-engine/pkg/version"
)

// Server is the HTTP/WS API server.
type Server struct {
	engine *gin.Engine

	httpServer     *http.Server
	supervisor     *investigation.Supervisor
	bus            *stream.Bus
	eventLog       *eventlog.Store // nil if optional persistence is disabled
	dashboardDir   string          // path to dashboard build dir (empty = no static serving)
	defaultOptions investigation.Options
}

// NewServer creates a new API server wired to one Supervisor and the Bus
// it publishes to.
func NewServer(supervisor *investigation.Supervisor, bus *stream.Bus) *Server {
	gin.SetMode(gin.ReleaseMode)
	e := gin.New()
	e.Use(gin.Recovery())
	e.Use(securityHeaders())

	s := &Server{
		engine:         e,
		supervisor:     supervisor,
		bus:            bus,
		defaultOptions: investigation.DefaultOptions(),
	}
	s.setupRoutes()
	return s
}

// SetDefaultOptions overrides the options a submission falls back to when a
// request leaves a field unset, e.g. from config.Config.Investigation.
// Submission-level fields always take priority over these.
func (s *Server) SetDefaultOptions(opts investigation.Options) {
	s.defaultOptions = opts
}

// SetEventLog wires the optional durable event-log store used by the
// replay endpoint. Leaving it nil keeps the engine entirely in-memory
// (§1 Non-goal 3).
func (s *Server) SetEventLog(store *eventlog.Store) {
	s.eventLog = store
}

// SetDashboardDir sets the path to a dashboard build directory and
// registers static file serving routes. When set and the directory
// contains an index.html, assets are served from /assets/* and a SPA
// fallback is registered for all non-API routes.
//
// Must be called after NewServer (which registers API routes first) so
// that API routes take priority over the wildcard SPA fallback.
func (s *Server) SetDashboardDir(dir string) {
	s.dashboardDir = dir
	s.setupDashboardRoutes()
}

// setupRoutes registers all API routes.
func (s *Server) setupRoutes() {
	// Server-wide body size limit (2 MB), well above any reasonable
	// ticket payload.
	s.engine.Use(func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 2*1024*1024)
		c.Next()
	})

	s.engine.GET("/health", s.healthHandler)

	v1 := s.engine.Group("/api/v1")
	v1.POST("/investigations", s.submitInvestigationHandler)
	v1.GET("/investigations/:id", s.getInvestigationHandler)
	v1.POST("/investigations/:id/cancel", s.cancelInvestigationHandler)
	v1.POST("/investigations/:id/human-input", s.humanInputHandler)

	// WebSocket endpoint kept under /api/v1 so every stateful endpoint
	// shares one auth rule at the proxy layer.
	v1.GET("/investigations/:id/stream", s.streamHandler)
	v1.GET("/investigations/:id/replay", s.replayHandler)

	// Dashboard static file serving is registered via SetDashboardDir(),
	// called after NewServer. This ensures API routes (registered above)
	// take priority over the wildcard SPA fallback.
}

// setupDashboardRoutes registers static file serving for the dashboard
// build directory. When dashboardDir is set and contains an index.html,
// Vite-built assets are served from /assets/* and all other non-API
// paths fall back to index.html (SPA routing).
//
// Cache headers:
//   - /assets/* — immutable (1 year): Vite-built files include content
//     hashes in their filenames, so aggressive caching is safe.
//   - index.html and other root files — no-cache: forces browser
//     revalidation on every visit so new asset hashes are picked up after
//     deployments.
func (s *Server) setupDashboardRoutes() {
	if s.dashboardDir == "" {
		return
	}

	indexPath := filepath.Join(s.dashboardDir, "index.html")
	if _, err := os.Stat(indexPath); os.IsNotExist(err) {
		slog.Warn("dashboard directory set but index.html not found, skipping static serving",
			"dir", s.dashboardDir)
		return
	}

	slog.Info("serving dashboard from disk", "dir", s.dashboardDir)
	dashFS := os.DirFS(s.dashboardDir)

	assetsFS, err := fs.Sub(dashFS, "assets")
	if err == nil {
		s.engine.StaticFS("/assets", http.FS(assetsFS))
	}

	s.engine.NoRoute(func(c *gin.Context) {
		path := c.Request.URL.Path
		if strings.HasPrefix(path, "/api/") || path == "/health" {
			c.AbortWithStatusJSON(http.StatusNotFound, apiError{Error: "not found"})
			return
		}

		c.Writer.Header().Set("Cache-Control", "no-cache")

		relPath := strings.TrimPrefix(path, "/")
		if relPath != "" {
			if info, statErr := fs.Stat(dashFS, relPath); statErr == nil && !info.IsDir() {
				http.ServeFileFS(c.Writer, c.Request, dashFS, relPath)
				return
			}
		}
		http.ServeFileFS(c.Writer, c.Request, dashFS, "index.html")
	})
}

// Start starts the HTTP server on the given address (blocking).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.engine}
	return s.httpServer.ListenAndServe()
}

// StartWithListener starts the HTTP server on a pre-created listener.
// Used by test infrastructure to serve on a random OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.engine}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// healthHandler handles GET /health.
func (s *Server) healthHandler(c *gin.Context) {
	_, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	c.JSON(http.StatusOK, &HealthResponse{
		Status:  "healthy",
		Version: version.Full(),
		Checks:  map[string]HealthCheck{"engine": {Status: "healthy"}},
	})
}
