package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/errly-io/errly/internal/api/middleware"
	"github.com/errly-io/errly/internal/ingestion"
	"github.com/errly-io/errly/internal/metrics"
	"github.com/errly-io/errly/internal/storage"
)

// Ingestor accepts validated event batches for one project.
type Ingestor interface {
	Process(ctx context.Context, projectID string, events []*ingestion.ErrorEvent) error
}

// Dependencies bundles the runtime collaborators of the server. Configuration
// (what) stays in ServerConfig; dependencies (how) are injected here.
//
// Registry and Limiter may be nil, which disables the corresponding
// middleware; the server then runs in a degraded but functional mode used by
// tests and local development.
type Dependencies struct {
	Registry storage.KeyRegistry
	Events   ingestion.EventStore
	Issues   ingestion.IssueStore
	Limiter  middleware.Limiter
	Ingest   Ingestor
	Metrics  *metrics.Metrics
}

// Server represents the HTTP API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	config     *ServerConfig
	rateConfig middleware.RateLimitConfig
	startTime  time.Time
	deps       Dependencies
}

// NewServer creates a new HTTP server instance with structured logging and
// the full middleware stack.
func NewServer(cfg *ServerConfig, rateCfg middleware.RateLimitConfig, deps Dependencies) *Server {
	// Create structured logger with configured log level
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	// Create base HTTP mux
	mux := http.NewServeMux()

	// Create server instance for route setup
	server := &Server{
		logger:     logger,
		config:     cfg,
		rateConfig: rateCfg,
		deps:       deps,
	}

	// Set up all API routes
	server.setupRoutes(mux)

	// Log middleware configuration
	if deps.Registry != nil {
		logger.Info("API key authentication middleware enabled")
	} else {
		logger.Warn("KeyRegistry not configured - authentication middleware disabled")
	}

	if deps.Limiter != nil {
		logger.Info("Rate limiting middleware enabled")
	} else {
		logger.Warn("Limiter not configured - rate limiting middleware disabled")
	}

	// Apply middleware chain using functional options pattern.
	// Middleware executes in the order listed (top-to-bottom):
	//   1. RequestID - attach request ID to all responses
	//   2. Recovery - catch panics in all downstream middleware
	//   3. Auth - resolve API key and project before any store work (optional)
	//   4. RateLimit - block requests before expensive operations (optional)
	//   5. RequestLogger - log only legitimate requests (not rate-limited spam)
	//   6. CORS - lightweight header manipulation
	handler := middleware.Apply(mux,
		middleware.WithRequestID(),
		middleware.WithRecovery(logger),
		middleware.WithAuth(deps.Registry, logger, deps.Metrics),
		middleware.WithRateLimit(deps.Limiter, rateCfg, logger, deps.Metrics),
		middleware.WithRequestLogger(logger, deps.Metrics),
		middleware.WithCORS(cfg.ToCORSConfig()),
	)

	httpServer := &http.Server{
		Addr:         cfg.Address(),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	// Set the httpServer field for the existing server instance
	server.httpServer = httpServer

	return server
}

// Handler returns the fully wrapped HTTP handler, for tests that drive the
// server through httptest instead of a real listener.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start starts the HTTP server and blocks until shutdown.
// It handles graceful shutdown on SIGINT and SIGTERM signals.
func (s *Server) Start() error {
	if err := s.config.Validate(); err != nil {
		return fmt.Errorf("invalid server configuration: %w", err)
	}

	// Record server start time for uptime calculation
	s.startTime = time.Now()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	// Start server in a goroutine
	go func() {
		s.logger.Info("Starting Errly API server",
			slog.String("address", s.config.Address()),
			slog.String("environment", s.config.Environment),
			slog.Duration("read_timeout", s.config.ReadTimeout),
			slog.Duration("write_timeout", s.config.WriteTimeout),
			slog.Duration("shutdown_timeout", s.config.ShutdownTimeout),
		)

		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Server failed to start",
				slog.String("address", s.config.Address()),
				slog.String("error", err.Error()),
			)

			serverErrors <- fmt.Errorf("server failed to start: %w", err)
		}
	}()

	// Block until we receive a signal or server error
	select {
	case err := <-serverErrors:
		return err
	case sig := <-stop:
		s.logger.Info("Received shutdown signal",
			slog.String("signal", sig.String()),
		)

		return s.shutdown()
	}
}

// shutdown gracefully shuts down the server and closes its dependencies.
func (s *Server) shutdown() error {
	// Create context with timeout for shutdown
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Initiating server shutdown",
		slog.Duration("shutdown_timeout", s.config.ShutdownTimeout),
	)

	// Attempt graceful shutdown of HTTP server
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("Server shutdown failed",
			slog.String("error", err.Error()),
			slog.Duration("shutdown_timeout", s.config.ShutdownTimeout),
		)

		return fmt.Errorf("server shutdown failed: %w", err)
	}

	// Close dependencies that hold connections or background goroutines.
	s.closeDependency("key registry", s.deps.Registry)
	s.closeDependency("event store", s.deps.Events)
	s.closeDependency("issue store", s.deps.Issues)
	s.closeDependency("rate limiter", s.deps.Limiter)

	s.logger.Info("Server shutdown completed successfully")

	return nil
}

// closeDependency closes a dependency when it implements io.Closer.
func (s *Server) closeDependency(name string, dep any) {
	if dep == nil {
		return
	}

	closer, ok := dep.(io.Closer)
	if !ok {
		return
	}

	if err := closer.Close(); err != nil {
		s.logger.Error("Failed to close "+name, slog.String("error", err.Error()))

		return
	}

	s.logger.Info("Closed " + name)
}
