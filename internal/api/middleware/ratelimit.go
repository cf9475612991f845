package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/errly-io/errly/internal/metrics"
)

// Bucket identifies one rate-limit counter: a class name plus the identity
// being limited within it. The limiter keys counters as
// "rate_limit:<name>:<id>".
type Bucket struct {
	// Name is the bucket class (api_key, ingest, burst, ip).
	Name string
	// ID is the limited identity: an API key ID or a client IP.
	ID string
	// Limit is the maximum number of requests per window.
	Limit int
	// Window is the sliding window length.
	Window time.Duration
}

// Key returns the limiter storage key for this bucket.
func (b Bucket) Key() string {
	return fmt.Sprintf("rate_limit:%s:%s", b.Name, b.ID)
}

// RateResult describes one limiter decision.
type RateResult struct {
	// Allowed reports whether the request may proceed.
	Allowed bool
	// Remaining is the number of requests left in the current window.
	Remaining int
	// ResetTime is when the current window fully drains.
	ResetTime time.Time
}

// Limiter decides whether a request fits inside a bucket's window.
// Implementations must be safe for concurrent use.
type Limiter interface {
	Allow(ctx context.Context, bucket Bucket) (*RateResult, error)
}

// RateLimit creates the rate-limiting middleware.
//
// Bucket selection per request:
//   - authenticated ingest requests check the ingest bucket and, when burst
//     limiting is enabled, the burst bucket;
//   - other authenticated requests check the api_key bucket;
//   - unauthenticated requests check the per-IP bucket.
//
// Public endpoints bypass limiting entirely. Limiter errors fail open: the
// request proceeds without rate-limit headers and the failure is logged.
func RateLimit(limiter Limiter, cfg RateLimitConfig, logger *slog.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil || isPublicEndpoint(r.URL.Path) {
				next.ServeHTTP(w, r)

				return
			}

			for _, bucket := range selectBuckets(r, cfg) {
				result, err := limiter.Allow(r.Context(), bucket)
				if err != nil {
					// Fail open: limiter trouble must not block ingestion.
					logger.Warn("rate limiter unavailable, allowing request",
						slog.String("bucket", bucket.Name),
						slog.String("request_id", GetRequestID(r.Context())),
						slog.String("error", err.Error()),
					)

					continue
				}

				writeRateHeaders(w, bucket, result)

				if !result.Allowed {
					m.RecordRateLimitDenial(bucket.Name)

					logger.Info("rate limit exceeded",
						slog.String("bucket", bucket.Name),
						slog.String("bucket_id", bucket.ID),
						slog.Int("limit", bucket.Limit),
						slog.String("request_id", GetRequestID(r.Context())),
					)

					writeRateLimitExceeded(w, bucket, result)

					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// selectBuckets picks the buckets a request must pass, in check order.
func selectBuckets(r *http.Request, cfg RateLimitConfig) []Bucket {
	authCtx, authenticated := GetAuthContext(r.Context())

	if !authenticated {
		return []Bucket{{
			Name:   "ip",
			ID:     clientIP(r),
			Limit:  cfg.IPLimit,
			Window: cfg.IPWindow,
		}}
	}

	keyID := authCtx.APIKey.ID

	if isIngestPath(r.URL.Path) {
		buckets := []Bucket{{
			Name:   "ingest",
			ID:     keyID,
			Limit:  cfg.IngestRPM,
			Window: time.Minute,
		}}

		if cfg.BurstSize > 0 {
			buckets = append(buckets, Bucket{
				Name:   "burst",
				ID:     keyID,
				Limit:  cfg.BurstSize,
				Window: burstWindow,
			})
		}

		return buckets
	}

	return []Bucket{{
		Name:   "api_key",
		ID:     keyID,
		Limit:  cfg.APIKeyRPM,
		Window: time.Minute,
	}}
}

// isIngestPath reports whether the path is an event-submission endpoint,
// which gets the stricter ingest budget.
func isIngestPath(path string) bool {
	return path == "/api/v1/ingest" || strings.HasPrefix(path, "/api/v1/ingest/")
}

// clientIP extracts the client host from RemoteAddr, tolerating a missing
// port.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}

// writeRateHeaders sets the standard X-RateLimit-* response headers for the
// most recently checked bucket.
func writeRateHeaders(w http.ResponseWriter, bucket Bucket, result *RateResult) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(bucket.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetTime.Unix(), 10))
}

// writeRateLimitExceeded writes the 429 envelope with Retry-After.
func writeRateLimitExceeded(w http.ResponseWriter, bucket Bucket, result *RateResult) {
	retryAfter := int(time.Until(result.ResetTime).Seconds())
	if retryAfter < 1 {
		retryAfter = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))

	writeErrorBody(w, http.StatusTooManyRequests, &errorBody{
		Error:     "Rate limit exceeded",
		Code:      "RATE_LIMIT_EXCEEDED",
		Limit:     bucket.Limit,
		Window:    int(bucket.Window.Seconds()),
		ResetTime: result.ResetTime.Unix(),
	})
}
