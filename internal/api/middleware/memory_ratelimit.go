package middleware

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const memoryCleanupInterval = 5 * time.Minute

// memoryEntry pairs a token-bucket limiter with its last use, so idle
// buckets can be evicted.
type memoryEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// MemoryRateLimiter is the in-process fallback used when no Redis is
// configured. Counters are per process, so limits are only approximate
// behind a load balancer; a deployment that needs exact limits runs Redis.
type MemoryRateLimiter struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	done    chan struct{}
	once    sync.Once
}

// NewMemoryRateLimiter creates an in-process limiter and starts its idle
// bucket eviction loop.
func NewMemoryRateLimiter() *MemoryRateLimiter {
	l := &MemoryRateLimiter{
		entries: make(map[string]*memoryEntry),
		done:    make(chan struct{}),
	}

	go l.cleanupLoop()

	return l
}

// Allow reports whether the request fits the bucket's budget.
func (l *MemoryRateLimiter) Allow(_ context.Context, bucket Bucket) (*RateResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := bucket.Key()

	entry, ok := l.entries[key]
	if !ok {
		// Token bucket refilling at limit/window, with the full limit as
		// burst capacity. Approximates the sliding window closely enough
		// for a single-process deployment.
		entry = &memoryEntry{
			limiter: rate.NewLimiter(rate.Limit(float64(bucket.Limit)/bucket.Window.Seconds()), bucket.Limit),
		}
		l.entries[key] = entry
	}

	entry.lastSeen = time.Now()
	allowed := entry.limiter.Allow()

	remaining := int(entry.limiter.Tokens())
	if remaining < 0 {
		remaining = 0
	}

	return &RateResult{
		Allowed:   allowed,
		Remaining: remaining,
		ResetTime: time.Now().Add(bucket.Window),
	}, nil
}

// cleanupLoop evicts buckets idle for more than two cleanup intervals.
func (l *MemoryRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(memoryCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-2 * memoryCleanupInterval)

			l.mu.Lock()
			for key, entry := range l.entries {
				if entry.lastSeen.Before(cutoff) {
					delete(l.entries, key)
				}
			}
			l.mu.Unlock()
		}
	}
}

// Close stops the eviction loop. Safe to call more than once.
func (l *MemoryRateLimiter) Close() error {
	l.once.Do(func() { close(l.done) })

	return nil
}
