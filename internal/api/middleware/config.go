package middleware

import (
	"time"

	"github.com/errly-io/errly/internal/config"
)

const (
	// burstWindow is the short window used by the optional burst bucket.
	burstWindow = 10 * time.Second

	defaultAPIKeyRPM = 1000
	defaultIngestRPM = 100
	defaultBurstSize = 0

	// Unauthenticated traffic shares a fixed per-IP budget; it is not
	// operator-tunable because nothing legitimate hits the API without a key.
	defaultIPLimit  = 60
	defaultIPWindow = time.Minute
)

// RateLimitConfig holds the per-bucket budgets.
type RateLimitConfig struct {
	// APIKeyRPM is the per-key budget for non-ingest endpoints, per minute.
	APIKeyRPM int
	// IngestRPM is the per-key budget for event submission, per minute.
	IngestRPM int
	// BurstSize is the per-key budget over a 10 second window for ingest
	// endpoints. Zero disables burst limiting.
	BurstSize int
	// IPLimit and IPWindow bound unauthenticated traffic per client IP.
	IPLimit  int
	IPWindow time.Duration
}

// LoadRateLimitConfig reads the rate-limit budgets from the environment.
func LoadRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		APIKeyRPM: config.GetEnvInt("API_RPM_PER_KEY", defaultAPIKeyRPM),
		IngestRPM: config.GetEnvInt("INGEST_RPM", defaultIngestRPM),
		BurstSize: config.GetEnvInt("BURST_SIZE", defaultBurstSize),
		IPLimit:   defaultIPLimit,
		IPWindow:  defaultIPWindow,
	}
}
