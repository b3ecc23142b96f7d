// Package server is the HTTP gateway: health, Prometheus metrics, the
// WebSocket feed and the read-only arbitrage API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alanyoungcy/arbbot/internal/domain"
	"github.com/alanyoungcy/arbbot/internal/server/handler"
	"github.com/alanyoungcy/arbbot/internal/server/middleware"
	"github.com/alanyoungcy/arbbot/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // empty disables authentication
	RateLimit   int    // requests per client per RateWindow, 0 disables
	RateWindow  time.Duration
}

// Handlers aggregates the handlers the server registers. Nil API handlers
// leave their routes unregistered, which lets non-gateway modes serve only
// health and metrics.
type Handlers struct {
	Health  *handler.HealthHandler
	Arb     *handler.ArbHandler
	Odds    *handler.OddsHandler
	Archive *handler.ArchiveHandler
}

// Server is the headless HTTP + WebSocket server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer registers every route and wraps them in the middleware chain.
// limiter may be nil.
func NewServer(cfg Config, handlers Handlers, hub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "http_server"))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", handlers.Health.HealthCheck)
	mux.Handle("GET /metrics", promhttp.Handler())
	if hub != nil {
		mux.HandleFunc("GET /ws", hub.HandleWS)
	}

	api := http.NewServeMux()
	if handlers.Arb != nil {
		api.HandleFunc("GET /api/arbitrage/recent", handlers.Arb.ListRecent)
		api.HandleFunc("GET /api/arbitrage/profit", handlers.Arb.Profit)
		api.HandleFunc("GET /api/arbitrage/audit", handlers.Arb.Audit)
		api.HandleFunc("GET /api/arbitrage/{id}", handlers.Arb.Get)
	}
	if handlers.Odds != nil {
		api.HandleFunc("GET /api/odds/{match}", handlers.Odds.Get)
		api.HandleFunc("GET /api/odds/{match}/history", handlers.Odds.History)
	}
	if handlers.Archive != nil {
		api.HandleFunc("GET /api/archive", handlers.Archive.List)
		api.HandleFunc("GET /api/archive/{path...}", handlers.Archive.Download)
	}

	var apiHandler http.Handler = api
	apiHandler = middleware.Auth(cfg.APIKey)(apiHandler)
	if limiter != nil && cfg.RateLimit > 0 {
		apiHandler = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow, logger)(apiHandler)
	}
	mux.Handle("/api/", apiHandler)

	var h http.Handler = mux
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      h,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// Handler returns the root handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start listens until the server is shut down.
func (s *Server) Start() error {
	s.logger.Info("server starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown waits for in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
