// Package server exposes the engine's operational state over a small HTTP
// API: health, status, live books, the execution log, and stuck-position
// management.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
	"github.com/alanyoungcy/crossarb/internal/server/handler"
	"github.com/alanyoungcy/crossarb/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string             // if empty, authentication is disabled
	Limiter     domain.RateLimiter // if nil, per-client rate limiting is disabled
}

// Handlers aggregates the HTTP handlers the server registers.
type Handlers struct {
	Health     *handler.HealthHandler
	Status     *handler.StatusHandler
	Books      *handler.BookHandler
	Executions *handler.ExecutionHandler
	Stuck      *handler.StuckHandler
}

// Server is the headless ops HTTP server for the crossarb engine.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered and the middleware
// chain (CORS, logging, auth) applied.
func NewServer(cfg Config, handlers Handlers, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", handlers.Health.HealthCheck)

	mux.HandleFunc("GET /api/v1/status", handlers.Status.GetStatus)
	mux.HandleFunc("GET /api/v1/books", handlers.Books.GetBooks)
	mux.HandleFunc("GET /api/v1/executions", handlers.Executions.ListExecutions)
	mux.HandleFunc("GET /api/v1/executions/{id}", handlers.Executions.GetExecution)
	mux.HandleFunc("GET /api/v1/stuck", handlers.Stuck.ListStuck)
	mux.HandleFunc("POST /api/v1/stuck/{id}/clear", handlers.Stuck.ClearStuck)

	var h http.Handler = mux
	h = authExceptHealth(cfg.APIKey, h)
	if cfg.Limiter != nil {
		h = middleware.RateLimit(cfg.Limiter, 60, time.Minute)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{httpServer: srv, logger: logger}
}

// authExceptHealth applies API-key auth to everything but the health check,
// so load balancers can probe /healthz without credentials.
func authExceptHealth(apiKey string, next http.Handler) http.Handler {
	authed := middleware.Auth(apiKey)(next)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}
		authed.ServeHTTP(w, r)
	})
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
