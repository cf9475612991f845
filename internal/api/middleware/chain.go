package middleware

import (
	"log/slog"
	"net/http"

	"github.com/errly-io/errly/internal/metrics"
	"github.com/errly-io/errly/internal/storage"
)

type (
	// Option is a function that applies middleware to a handler.
	Option func(http.Handler) http.Handler
)

// Apply applies a chain of middleware options to a base handler.
// Middleware is applied in the order provided (first option wraps handler first).
//
// Example:
//
//	handler := middleware.Apply(mux,
//	    middleware.WithRequestID(),
//	    middleware.WithRecovery(logger),
//	    middleware.WithAuth(registry, logger, m),
//	    middleware.WithRateLimit(limiter, rateCfg, logger, m),
//	    middleware.WithRequestLogger(logger, m),
//	    middleware.WithCORS(corsConfig),
//	)
func Apply(handler http.Handler, options ...Option) http.Handler {
	// Apply middleware in reverse order so that the first option
	// becomes the outermost middleware in the chain
	for i := len(options) - 1; i >= 0; i-- {
		handler = options[i](handler)
	}

	return handler
}

// WithRequestID returns an option that adds request ID middleware.
func WithRequestID() Option {
	return func(next http.Handler) http.Handler {
		return RequestID()(next)
	}
}

// WithRecovery returns an option that adds panic recovery middleware.
func WithRecovery(logger *slog.Logger) Option {
	return func(next http.Handler) http.Handler {
		return Recovery(logger)(next)
	}
}

// WithAuth returns an option that adds API key authentication middleware.
// If registry is nil, this option is skipped (no middleware applied).
func WithAuth(registry storage.KeyRegistry, logger *slog.Logger, m *metrics.Metrics) Option {
	if registry == nil {
		return func(next http.Handler) http.Handler {
			return next // No-op if registry not configured
		}
	}

	return func(next http.Handler) http.Handler {
		return Authenticate(registry, logger, m)(next)
	}
}

// WithRateLimit returns an option that adds rate limiting middleware.
// If limiter is nil, this option is skipped (no middleware applied).
func WithRateLimit(limiter Limiter, cfg RateLimitConfig, logger *slog.Logger, m *metrics.Metrics) Option {
	if limiter == nil {
		return func(next http.Handler) http.Handler {
			return next // No-op if limiter not configured
		}
	}

	return func(next http.Handler) http.Handler {
		return RateLimit(limiter, cfg, logger, m)(next)
	}
}

// WithRequestLogger returns an option that adds request logging middleware.
func WithRequestLogger(logger *slog.Logger, m *metrics.Metrics) Option {
	return func(next http.Handler) http.Handler {
		return RequestLogger(logger, m)(next)
	}
}

// WithCORS returns an option that adds CORS middleware.
func WithCORS(config CORSConfig) Option {
	return func(next http.Handler) http.Handler {
		return CORS(config)(next)
	}
}
