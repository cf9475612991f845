package api

import (
	"context"
	"net/http"
	"sync"
	"time"
)

type (
	// HealthStatus is the /health response body.
	HealthStatus struct {
		Status      string                 `json:"status"`
		ServiceName string                 `json:"serviceName"`
		Version     string                 `json:"version"`
		Uptime      string                 `json:"uptime,omitempty"`
		Checks      map[string]CheckResult `json:"checks"`
	}

	// CheckResult is the outcome of one dependency probe.
	CheckResult struct {
		Status  string `json:"status"`
		Latency string `json:"latency,omitempty"`
		Error   string `json:"error,omitempty"`
	}
)

const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
)

// pinger is implemented by dependencies that can verify their backend,
// notably the Redis rate limiter.
type pinger interface {
	Ping(ctx context.Context) error
}

// handleHealth reports the health of every wired dependency. Probes run
// concurrently, each with its own 2 second budget, so one slow backend
// cannot starve the report.
//
// Responds 200 when every check passes (degraded checks included) and 503
// when any dependency is unhealthy.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	type probe struct {
		name  string
		check func(ctx context.Context) error
	}

	probes := make([]probe, 0, 3)

	if s.deps.Registry != nil {
		probes = append(probes, probe{"postgres", s.deps.Registry.HealthCheck})
	}

	if s.deps.Events != nil {
		probes = append(probes, probe{"clickhouse", s.deps.Events.HealthCheck})
	}

	checks := make(map[string]CheckResult, len(probes)+1)

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	for _, p := range probes {
		wg.Add(1)

		go func() {
			defer wg.Done()

			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			defer cancel()

			start := time.Now()
			err := p.check(ctx)
			latency := time.Since(start).Round(time.Millisecond).String()

			result := CheckResult{Status: statusHealthy, Latency: latency}
			if err != nil {
				result = CheckResult{Status: statusUnhealthy, Latency: latency, Error: err.Error()}
			}

			mu.Lock()
			checks[p.name] = result
			mu.Unlock()
		}()
	}

	wg.Wait()

	// The limiter check is synchronous and cheap. A memory limiter has no
	// backend to probe; it reports degraded so operators notice limits are
	// per-process only.
	if s.deps.Limiter != nil {
		if p, ok := s.deps.Limiter.(pinger); ok {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)

			start := time.Now()
			err := p.Ping(ctx)

			cancel()

			result := CheckResult{Status: statusHealthy, Latency: time.Since(start).Round(time.Millisecond).String()}
			if err != nil {
				result = CheckResult{Status: statusUnhealthy, Error: err.Error()}
			}

			checks["redis"] = result
		} else {
			checks["redis"] = CheckResult{Status: statusDegraded, Error: "in-memory rate limiter, limits are per process"}
		}
	}

	overall := statusHealthy
	httpStatus := http.StatusOK

	for _, result := range checks {
		switch result.Status {
		case statusUnhealthy:
			overall = statusUnhealthy
			httpStatus = http.StatusServiceUnavailable
		case statusDegraded:
			if overall == statusHealthy {
				overall = statusDegraded
			}
		}
	}

	var uptime string
	if !s.startTime.IsZero() {
		uptime = time.Since(s.startTime).Round(time.Second).String()
	}

	writeJSON(w, r, s.logger, httpStatus, HealthStatus{
		Status:      overall,
		ServiceName: "errly",
		Version:     serviceVersion,
		Uptime:      uptime,
		Checks:      checks,
	})
}
