// Package server assembles the HTTP and WebSocket API for the staking ledger.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/stakeledger/stakeledger/internal/domain"
	"github.com/stakeledger/stakeledger/internal/server/handler"
	"github.com/stakeledger/stakeledger/internal/server/middleware"
	"github.com/stakeledger/stakeledger/internal/server/ws"
)

// rateLimitPerMinute bounds requests per client IP when a limiter is wired.
const rateLimitPerMinute = 300

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health    *handler.HealthHandler
	Tokens    *handler.TokenHandler
	Staking   *handler.StakingHandler
	Positions *handler.PositionHandler
	Interest  *handler.InterestHandler
	Reserve   *handler.ReserveHandler
	Audit     *handler.AuditHandler
}

// Server is the HTTP + WebSocket API server for the staking ledger.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (rate limiting, CORS, logging, auth) and attaches
// the WebSocket hub. limiter may be nil, in which case no rate limiting is
// applied.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// --- Register routes ---

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Token registry endpoints.
	mux.HandleFunc("GET /api/tokens", handlers.Tokens.ListTokens)
	mux.HandleFunc("POST /api/tokens", handlers.Tokens.CreateToken)
	mux.HandleFunc("GET /api/tokens/{symbol}", handlers.Tokens.GetToken)
	mux.HandleFunc("GET /api/tokens/{symbol}/staked", handlers.Staking.StakedTotal)

	// Staking endpoints.
	mux.HandleFunc("POST /api/stake", handlers.Staking.Stake)
	mux.HandleFunc("POST /api/positions/{id}/close", handlers.Staking.ClosePosition)

	// Position endpoints.
	mux.HandleFunc("GET /api/positions", handlers.Positions.ListPositions)
	mux.HandleFunc("GET /api/positions/{id}", handlers.Positions.GetPosition)
	mux.HandleFunc("PUT /api/positions/{id}/created-at", handlers.Positions.SetCreatedAt)

	// Interest quote endpoints.
	mux.HandleFunc("GET /api/interest", handlers.Interest.Quote)
	mux.HandleFunc("GET /api/interest/days", handlers.Interest.Days)

	// Reserve endpoints.
	mux.HandleFunc("GET /api/reserve", handlers.Reserve.GetReserve)
	mux.HandleFunc("POST /api/reserve/fund", handlers.Reserve.FundReserve)

	// Audit trail.
	mux.HandleFunc("GET /api/audit", handlers.Audit.ListEntries)

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain.
	var h http.Handler = mux

	// Apply auth middleware (skips if APIKey is empty).
	h = middleware.Auth(cfg.APIKey)(h)

	// Apply request logging middleware.
	h = middleware.Logging(logger)(h)

	// Apply per-client rate limiting when a limiter is available.
	if limiter != nil {
		h = middleware.RateLimit(limiter, rateLimitPerMinute, time.Minute)(h)
	}

	// Apply CORS middleware.
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
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
