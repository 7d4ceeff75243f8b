// Package server provides the HTTP server and routing for the dashboard.
package server

import (
	"context"
	"fmt"
	"io/fs"
	"mime"
	"net/http"
	"path/filepath"
	"time"

	"github.com/aristath/alphabeta/internal/modules/dashboard"
	"github.com/aristath/alphabeta/pkg/embedded"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

// Server represents the HTTP server
type Server struct {
	router   *chi.Mux
	server   *http.Server
	log      zerolog.Logger
	port     int
	sessions *SessionHandlers
	system   *SystemHandlers
}

// Config holds server configuration
type Config struct {
	Log     zerolog.Logger
	Manager *dashboard.Manager
	Port    int
	DevMode bool
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	// Register MIME types the embedded frontend relies on
	_ = mime.AddExtensionType(".js", "application/javascript")
	_ = mime.AddExtensionType(".css", "text/css")

	s := &Server{
		router:   chi.NewRouter(),
		log:      cfg.Log.With().Str("component", "server").Logger(),
		port:     cfg.Port,
		sessions: NewSessionHandlers(cfg.Manager, cfg.Log),
		system:   NewSystemHandlers(cfg.Manager, cfg.Log),
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	if devMode {
		s.router.Use(middleware.NoCache)
	}

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	// Health check
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/sessions", func(r chi.Router) {
			// Long-lived stream, no timeout or compression
			r.Get("/{id}/ws", s.sessions.HandleStream)

			r.Group(func(r chi.Router) {
				r.Use(middleware.Timeout(120 * time.Second))
				r.Use(middleware.Compress(5))

				r.Post("/", s.sessions.HandleCreate)
				r.Get("/{id}", s.sessions.HandleGet)
				r.Delete("/{id}", s.sessions.HandleDelete)
				r.Put("/{id}/inputs", s.sessions.HandleSetInputs)
				r.Put("/{id}/plot-range", s.sessions.HandleSetPlotRange)
				r.Post("/{id}/query", s.sessions.HandleQuery)
				r.Get("/{id}/history", s.sessions.HandleHistory)
				r.Get("/{id}/returns", s.sessions.HandleReturns)
				r.Get("/{id}/plot", s.sessions.HandlePlot)
				r.Get("/{id}/rolling", s.sessions.HandleRolling)
			})
		})

		r.With(middleware.Timeout(60*time.Second)).Get("/system/status", s.system.HandleStatus)
	})

	static, err := fs.Sub(embedded.Files, "static")
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to open embedded static files")
		return
	}
	s.router.Handle("/static/*", s.assetsHandler(http.StripPrefix("/static/", http.FileServer(http.FS(static)))))
	s.router.Get("/", s.handleDashboard(static))
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.log, http.StatusOK, map[string]string{"status": "healthy"})
}

// assetsHandler sets the MIME type from the file extension
func (s *Server) assetsHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		contentType := mime.TypeByExtension(filepath.Ext(r.URL.Path))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		w.Header().Set("Content-Type", contentType)
		next.ServeHTTP(w, r)
	})
}

// handleDashboard serves the dashboard page from the embedded filesystem
func (s *Server) handleDashboard(static fs.FS) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		data, err := fs.ReadFile(static, "index.html")
		if err != nil {
			s.log.Error().Err(err).Msg("Failed to read embedded index.html")
			http.Error(w, "Frontend not available", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if _, err := w.Write(data); err != nil {
			s.log.Error().Err(err).Msg("Failed to write index.html response")
		}
	}
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
