package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func testRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		APIKeyRPM: 1000,
		IngestRPM: 100,
		BurstSize: 0,
		IPLimit:   60,
		IPWindow:  time.Minute,
	}
}

func newTestRedisLimiter(t *testing.T) (*RedisRateLimiter, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)

	limiter, err := NewRedisRateLimiter(context.Background(), "redis://"+mr.Addr())
	if err != nil {
		t.Fatalf("failed to create redis limiter: %v", err)
	}

	t.Cleanup(func() { _ = limiter.Close() })

	return limiter, mr
}

// TestRedisLimiterExactBudget verifies exactly limit requests pass in a
// window and the next one is denied.
func TestRedisLimiterExactBudget(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	limiter, _ := newTestRedisLimiter(t)

	bucket := Bucket{Name: "ingest", ID: "key-1", Limit: 5, Window: time.Minute}

	for i := range 5 {
		result, err := limiter.Allow(context.Background(), bucket)
		if err != nil {
			t.Fatalf("request %d: unexpected error: %v", i, err)
		}

		if !result.Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
	}

	result, err := limiter.Allow(context.Background(), bucket)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Allowed {
		t.Error("request beyond the limit should be denied")
	}

	if result.Remaining != 0 {
		t.Errorf("expected 0 remaining, got %d", result.Remaining)
	}
}

// TestRedisLimiterWindowSlides verifies entries expire out of the window and
// capacity comes back.
func TestRedisLimiterWindowSlides(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	limiter, mr := newTestRedisLimiter(t)

	bucket := Bucket{Name: "ingest", ID: "key-1", Limit: 2, Window: time.Second}

	for range 2 {
		if result, err := limiter.Allow(context.Background(), bucket); err != nil || !result.Allowed {
			t.Fatalf("initial requests should be allowed (err=%v)", err)
		}
	}

	if result, _ := limiter.Allow(context.Background(), bucket); result.Allowed {
		t.Fatal("third request inside window should be denied")
	}

	// Slide past the window. The limiter trims by score, which is wall-clock
	// based, so sleeping is the honest way to age the entries.
	mr.FastForward(2 * time.Second)
	time.Sleep(1100 * time.Millisecond)

	result, err := limiter.Allow(context.Background(), bucket)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !result.Allowed {
		t.Error("request after the window slid should be allowed")
	}
}

// TestRedisLimiterBucketsIndependent verifies different keys and different
// bucket classes do not share counters.
func TestRedisLimiterBucketsIndependent(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	limiter, _ := newTestRedisLimiter(t)

	exhausted := Bucket{Name: "ingest", ID: "key-1", Limit: 1, Window: time.Minute}

	if result, _ := limiter.Allow(context.Background(), exhausted); !result.Allowed {
		t.Fatal("first request should pass")
	}

	if result, _ := limiter.Allow(context.Background(), exhausted); result.Allowed {
		t.Fatal("bucket should be exhausted")
	}

	for _, other := range []Bucket{
		{Name: "ingest", ID: "key-2", Limit: 1, Window: time.Minute},
		{Name: "api_key", ID: "key-1", Limit: 1, Window: time.Minute},
	} {
		result, err := limiter.Allow(context.Background(), other)
		if err != nil {
			t.Fatalf("bucket %s/%s: unexpected error: %v", other.Name, other.ID, err)
		}

		if !result.Allowed {
			t.Errorf("bucket %s/%s should have its own budget", other.Name, other.ID)
		}
	}
}

// TestRateLimitFailOpen verifies limiter outages let requests through
// without rate-limit headers.
func TestRateLimitFailOpen(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	resetEndpointRegistries(t)

	mr := miniredis.RunT(t)

	limiter, err := NewRedisRateLimiter(context.Background(), "redis://"+mr.Addr())
	if err != nil {
		t.Fatalf("failed to create limiter: %v", err)
	}

	// Kill the backend after connecting.
	mr.Close()

	handler := RateLimit(limiter, testRateLimitConfig(), testLogger(), nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest", nil)
	req = req.WithContext(SetAuthContext(req.Context(), AuthContext{
		APIKey:  testAPIKey(),
		Project: testProject(),
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 when limiter is down, got %d", rec.Code)
	}

	if rec.Header().Get("X-RateLimit-Limit") != "" {
		t.Error("rate-limit headers should be absent when the limiter failed")
	}
}

// TestRateLimitMiddlewareDenies exercises the full middleware: headers on
// success, 429 envelope with Retry-After on denial.
func TestRateLimitMiddlewareDenies(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	resetEndpointRegistries(t)

	limiter, _ := newTestRedisLimiter(t)

	cfg := testRateLimitConfig()
	cfg.IngestRPM = 2

	handler := RateLimit(limiter, cfg, testLogger(), nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest", nil)
		req = req.WithContext(SetAuthContext(req.Context(), AuthContext{
			APIKey:  testAPIKey(),
			Project: testProject(),
		}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		return rec
	}

	first := send()
	if first.Code != http.StatusAccepted {
		t.Fatalf("first request: expected 202, got %d", first.Code)
	}

	if got := first.Header().Get("X-RateLimit-Limit"); got != "2" {
		t.Errorf("expected X-RateLimit-Limit 2, got %q", got)
	}

	if got := first.Header().Get("X-RateLimit-Remaining"); got != "1" {
		t.Errorf("expected X-RateLimit-Remaining 1, got %q", got)
	}

	send()

	denied := send()
	if denied.Code != http.StatusTooManyRequests {
		t.Fatalf("third request: expected 429, got %d", denied.Code)
	}

	if denied.Header().Get("Retry-After") == "" {
		t.Error("429 response should carry Retry-After")
	}

	var body struct {
		Error     string `json:"error"`
		Code      string `json:"code"`
		Limit     int    `json:"limit"`
		Window    int    `json:"window"`
		ResetTime int64  `json:"reset_time"`
	}

	if err := json.NewDecoder(denied.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode 429 body: %v", err)
	}

	if body.Code != "RATE_LIMIT_EXCEEDED" {
		t.Errorf("expected RATE_LIMIT_EXCEEDED, got %q", body.Code)
	}

	if body.Limit != 2 || body.Window != 60 {
		t.Errorf("expected limit=2 window=60, got limit=%d window=%d", body.Limit, body.Window)
	}

	if body.ResetTime <= time.Now().Add(-time.Minute).Unix() {
		t.Errorf("reset_time looks stale: %d", body.ResetTime)
	}
}

// TestRateLimitBurstBucket verifies the short burst window denies before the
// minute budget is spent when burst limiting is enabled.
func TestRateLimitBurstBucket(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	resetEndpointRegistries(t)

	limiter, _ := newTestRedisLimiter(t)

	cfg := testRateLimitConfig()
	cfg.IngestRPM = 100
	cfg.BurstSize = 3

	handler := RateLimit(limiter, cfg, testLogger(), nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	var denied int

	for range 5 {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest", nil)
		req = req.WithContext(SetAuthContext(req.Context(), AuthContext{
			APIKey:  testAPIKey(),
			Project: testProject(),
		}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code == http.StatusTooManyRequests {
			denied++
		}
	}

	if denied != 2 {
		t.Errorf("expected 2 burst denials out of 5, got %d", denied)
	}
}

// TestRateLimitIPBucketForAnonymous verifies unauthenticated requests are
// limited per client IP.
func TestRateLimitIPBucketForAnonymous(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	resetEndpointRegistries(t)

	limiter, _ := newTestRedisLimiter(t)

	cfg := testRateLimitConfig()
	cfg.IPLimit = 1

	handler := RateLimit(limiter, cfg, testLogger(), nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(remoteAddr string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/ingest/info", nil)
		req.RemoteAddr = remoteAddr

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		return rec.Code
	}

	if code := send("10.0.0.1:1234"); code != http.StatusOK {
		t.Fatalf("first request from IP should pass, got %d", code)
	}

	if code := send("10.0.0.1:5678"); code != http.StatusTooManyRequests {
		t.Errorf("second request from same IP should be denied, got %d", code)
	}

	if code := send("10.0.0.2:1234"); code != http.StatusOK {
		t.Errorf("request from a different IP should pass, got %d", code)
	}
}

// TestRateLimitPublicEndpointBypass verifies health probes are never
// counted or denied.
func TestRateLimitPublicEndpointBypass(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	resetEndpointRegistries(t)
	RegisterPublicEndpoint("/health")

	limiter, _ := newTestRedisLimiter(t)

	cfg := testRateLimitConfig()
	cfg.IPLimit = 1

	handler := RateLimit(limiter, cfg, testLogger(), nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := range 10 {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.RemoteAddr = "10.0.0.1:1234"

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("health probe %d should bypass limiting, got %d", i, rec.Code)
		}
	}
}

func TestMemoryLimiterBudget(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	limiter := NewMemoryRateLimiter()
	defer limiter.Close()

	bucket := Bucket{Name: "api_key", ID: "key-1", Limit: 3, Window: time.Minute}

	allowed := 0

	for range 5 {
		result, err := limiter.Allow(context.Background(), bucket)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if result.Allowed {
			allowed++
		}
	}

	if allowed != 3 {
		t.Errorf("expected 3 allowed out of 5, got %d", allowed)
	}
}

func TestMemoryLimiterCloseIdempotent(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	limiter := NewMemoryRateLimiter()

	if err := limiter.Close(); err != nil {
		t.Fatalf("first close failed: %v", err)
	}

	if err := limiter.Close(); err != nil {
		t.Fatalf("second close failed: %v", err)
	}
}

func TestBucketKey(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	bucket := Bucket{Name: "ingest", ID: "key-1", Limit: 10, Window: time.Minute}

	if got := bucket.Key(); got != "rate_limit:ingest:key-1" {
		t.Errorf("unexpected bucket key: %q", got)
	}
}

func TestSelectBuckets(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	cfg := testRateLimitConfig()
	cfg.BurstSize = 20

	authCtx := AuthContext{APIKey: testAPIKey(), Project: testProject()}

	tests := []struct {
		name      string
		path      string
		withAuth  bool
		wantNames []string
	}{
		{"ingest gets ingest and burst", "/api/v1/ingest", true, []string{"ingest", "burst"}},
		{"ingest subpath gets ingest and burst", "/api/v1/ingest/info", true, []string{"ingest", "burst"}},
		{"other authenticated gets api_key", "/api/v1/auth/validate", true, []string{"api_key"}},
		{"anonymous gets ip", "/api/v1/ingest", false, []string{"ip"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, tt.path, nil)
			if tt.withAuth {
				req = req.WithContext(SetAuthContext(req.Context(), authCtx))
			}

			buckets := selectBuckets(req, cfg)

			if len(buckets) != len(tt.wantNames) {
				t.Fatalf("expected %d buckets, got %d", len(tt.wantNames), len(buckets))
			}

			for i, want := range tt.wantNames {
				if buckets[i].Name != want {
					t.Errorf("bucket %d: expected %q, got %q", i, want, buckets[i].Name)
				}
			}
		})
	}
}

func TestClientIP(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.10:" + strconv.Itoa(54321)

	if got := clientIP(req); got != "192.168.1.10" {
		t.Errorf("expected host without port, got %q", got)
	}

	req.RemoteAddr = "192.168.1.10"
	if got := clientIP(req); got != "192.168.1.10" {
		t.Errorf("expected raw addr when no port, got %q", got)
	}
}
