package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/errly-io/errly/internal/aliasing"
	"github.com/errly-io/errly/internal/api/middleware"
	"github.com/errly-io/errly/internal/ingestion"
	"github.com/errly-io/errly/internal/metrics"
	"github.com/errly-io/errly/internal/storage"
)

const testToken = "errly_ab12_" + // pragma: allowlist secret
	"0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

type testHarness struct {
	server   *Server
	registry *storage.MemoryKeyRegistry
	events   *ingestion.MemoryEventStore
	issues   *ingestion.MemoryIssueStore
}

type harnessOption func(*ServerConfig, *middleware.RateLimitConfig, *Dependencies)

func withLimiter(limiter middleware.Limiter) harnessOption {
	return func(_ *ServerConfig, _ *middleware.RateLimitConfig, deps *Dependencies) {
		deps.Limiter = limiter
	}
}

func withIngestRPM(rpm int) harnessOption {
	return func(_ *ServerConfig, rateCfg *middleware.RateLimitConfig, _ *Dependencies) {
		rateCfg.IngestRPM = rpm
	}
}

func withMaxRequestSize(size int64) harnessOption {
	return func(cfg *ServerConfig, _ *middleware.RateLimitConfig, _ *Dependencies) {
		cfg.MaxRequestSize = size
	}
}

// newTestHarness builds a fully wired server over in-memory stores, seeded
// with one ingest-scoped key for project proj-1.
func newTestHarness(t *testing.T, opts ...harnessOption) *testHarness {
	t.Helper()

	registry := storage.NewMemoryKeyRegistry()
	events := ingestion.NewMemoryEventStore()
	issues := ingestion.NewMemoryIssueStore()

	if err := registry.AddProject(&storage.Project{
		ID:      "proj-1",
		SpaceID: "space-1",
		Name:    "Checkout",
		Slug:    "checkout",
	}); err != nil {
		t.Fatalf("failed to seed project: %v", err)
	}

	if err := registry.AddKey(&storage.APIKey{
		ID:        "key-1",
		KeyHash:   storage.HashToken(testToken),
		KeyPrefix: storage.TokenPrefix(testToken),
		ProjectID: "proj-1",
		Scopes:    []storage.Scope{storage.ScopeIngest},
		CreatedAt: time.Now(),
	}); err != nil {
		t.Fatalf("failed to seed key: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(testWriter{t}, nil))
	service := ingestion.NewService(events, issues, aliasing.NewResolver(nil), logger)

	cfg := &ServerConfig{
		Port:               8080,
		Host:               "127.0.0.1",
		ReadTimeout:        defaultTimeout,
		WriteTimeout:       defaultTimeout,
		IdleTimeout:        defaultIdleTimeout,
		ShutdownTimeout:    defaultTimeout,
		LogLevel:           slog.LevelError,
		Environment:        "production", // keeps pprof off the test mux
		MaxRequestSize:     defaultMaxRequestSize,
		CORSAllowedOrigins: []string{"*"},
		CORSAllowedMethods: []string{"GET", "POST", "OPTIONS"},
		CORSAllowedHeaders: []string{"Content-Type", "Authorization"},
		CORSMaxAge:         defaultCORSMaxAge,
	}

	rateCfg := middleware.RateLimitConfig{
		APIKeyRPM: 1000,
		IngestRPM: 100,
		BurstSize: 0,
		IPLimit:   60,
		IPWindow:  time.Minute,
	}

	deps := Dependencies{
		Registry: registry,
		Events:   events,
		Issues:   issues,
		Ingest:   service,
		Metrics:  metrics.New(),
	}

	for _, opt := range opts {
		opt(cfg, &rateCfg, &deps)
	}

	return &testHarness{
		server:   NewServer(cfg, rateCfg, deps),
		registry: registry,
		events:   events,
		issues:   issues,
	}
}

// testWriter routes server logs through t.Log so failures show them.
type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(strings.TrimSpace(string(p)))

	return len(p), nil
}

func (h *testHarness) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reqBody *bytes.Reader
	if body != "" {
		reqBody = bytes.NewReader([]byte(body))
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)

	return rec
}

func ingestBody(events ...string) string {
	return `{"events":[` + strings.Join(events, ",") + `]}`
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()

	if err := json.NewDecoder(rec.Body).Decode(out); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func assertErrorCode(t *testing.T, rec *httptest.ResponseRecorder, wantStatus int, wantCode string) {
	t.Helper()

	if rec.Code != wantStatus {
		t.Fatalf("expected status %d, got %d: %s", wantStatus, rec.Code, rec.Body.String())
	}

	var body struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}

	decodeJSON(t, rec, &body)

	if body.Code != wantCode {
		t.Errorf("expected code %q, got %q (%s)", wantCode, body.Code, body.Error)
	}
}

// TestIngestSingleEvent covers the core accept path: a one-event batch lands
// as a stored event and a fresh issue aggregate.
func TestIngestSingleEvent(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	h := newTestHarness(t)

	rec := h.do(t, http.MethodPost, "/api/v1/ingest", testToken,
		ingestBody(`{"message":"E","environment":"prod","level":"error"}`))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp IngestResponse

	decodeJSON(t, rec, &resp)

	if resp.Accepted != 1 {
		t.Errorf("expected accepted=1, got %d", resp.Accepted)
	}

	stored, err := h.events.QueryEvents(context.Background(),
		ingestion.EventFilter{ProjectID: "proj-1"}, ingestion.Page{Limit: 10})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}

	if len(stored) != 1 {
		t.Fatalf("expected 1 stored event, got %d", len(stored))
	}

	if stored[0].ProjectID != "proj-1" || stored[0].Message != "E" {
		t.Errorf("stored event has wrong identity: %+v", stored[0])
	}

	issue, err := h.issues.Lookup(context.Background(), "proj-1", stored[0].Fingerprint)
	if err != nil {
		t.Fatalf("issue lookup failed: %v", err)
	}

	if issue.EventCount != 1 {
		t.Errorf("expected event_count=1, got %d", issue.EventCount)
	}

	if len(issue.Environments) != 1 || issue.Environments[0] != "prod" {
		t.Errorf("expected environments=[prod], got %v", issue.Environments)
	}
}

// TestIngestReplayAggregates verifies resubmitting the same batch grows the
// issue counter instead of opening a second issue.
func TestIngestReplayAggregates(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	h := newTestHarness(t)
	body := ingestBody(`{"message":"E","environment":"prod","level":"error"}`)

	for i := range 2 {
		if rec := h.do(t, http.MethodPost, "/api/v1/ingest", testToken, body); rec.Code != http.StatusAccepted {
			t.Fatalf("request %d: expected 202, got %d", i, rec.Code)
		}
	}

	if h.issues.Len() != 1 {
		t.Fatalf("expected one issue after replay, got %d", h.issues.Len())
	}

	stored, _ := h.events.QueryEvents(context.Background(),
		ingestion.EventFilter{ProjectID: "proj-1"}, ingestion.Page{Limit: 10})

	issue, err := h.issues.Lookup(context.Background(), "proj-1", stored[0].Fingerprint)
	if err != nil {
		t.Fatalf("issue lookup failed: %v", err)
	}

	if issue.EventCount != 2 {
		t.Errorf("expected event_count=2, got %d", issue.EventCount)
	}
}

// TestIngestBatchMultipleEnvironments verifies a batch spanning environments
// persists every event. Environment participates in grouping, so each
// environment carries its own aggregate.
func TestIngestBatchMultipleEnvironments(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	h := newTestHarness(t)

	rec := h.do(t, http.MethodPost, "/api/v1/ingest", testToken, ingestBody(
		`{"message":"E","environment":"prod","level":"error"}`,
		`{"message":"E","environment":"staging","level":"error"}`,
	))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	if h.events.Len() != 2 {
		t.Errorf("expected 2 stored events, got %d", h.events.Len())
	}

	if h.issues.Len() != 2 {
		t.Errorf("expected one issue per environment, got %d", h.issues.Len())
	}
}

// TestIngestBatchTooLarge verifies the 100-event cap.
func TestIngestBatchTooLarge(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	h := newTestHarness(t)

	events := make([]string, 101)
	for i := range events {
		events[i] = fmt.Sprintf(`{"message":"E%d","environment":"prod"}`, i)
	}

	rec := h.do(t, http.MethodPost, "/api/v1/ingest", testToken, ingestBody(events...))

	assertErrorCode(t, rec, http.StatusBadRequest, CodeBadRequest)

	if h.events.Len() != 0 {
		t.Errorf("oversized batch must not persist events, got %d", h.events.Len())
	}
}

func TestIngestEmptyBatch(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	h := newTestHarness(t)

	rec := h.do(t, http.MethodPost, "/api/v1/ingest", testToken, `{"events":[]}`)

	assertErrorCode(t, rec, http.StatusBadRequest, CodeBadRequest)
}

func TestIngestInvalidJSON(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	h := newTestHarness(t)

	rec := h.do(t, http.MethodPost, "/api/v1/ingest", testToken, `{"events":`)

	assertErrorCode(t, rec, http.StatusBadRequest, CodeBadRequest)
}

func TestIngestWrongContentType(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	h := newTestHarness(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest",
		strings.NewReader(ingestBody(`{"message":"E","environment":"prod"}`)))
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("Authorization", "Bearer "+testToken)

	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)

	assertErrorCode(t, rec, http.StatusBadRequest, CodeBadRequest)
}

// TestIngestValidationErrorNamesIndex verifies field validation failures
// point at the offending batch element.
func TestIngestValidationErrorNamesIndex(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	h := newTestHarness(t)

	rec := h.do(t, http.MethodPost, "/api/v1/ingest", testToken, ingestBody(
		`{"message":"E","environment":"prod"}`,
		`{"message":"","environment":"prod"}`,
	))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	var body struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}

	decodeJSON(t, rec, &body)

	if body.Code != CodeValidationError {
		t.Errorf("expected VALIDATION_ERROR, got %q", body.Code)
	}

	if !strings.Contains(body.Error, "events[1]") {
		t.Errorf("error message should name events[1], got %q", body.Error)
	}

	if h.events.Len() != 0 {
		t.Errorf("invalid batch must persist nothing, got %d events", h.events.Len())
	}
}

func TestIngestTimestampFormats(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	h := newTestHarness(t)

	for _, ts := range []string{
		"2026-08-25T10:00:00Z",
		"2026-08-25T10:00:00.123456789Z",
		"2026-08-25T10:00:00",
		"2026-08-25T10:00:00.123456",
	} {
		rec := h.do(t, http.MethodPost, "/api/v1/ingest", testToken,
			ingestBody(`{"message":"E","environment":"prod","timestamp":"`+ts+`"}`))

		if rec.Code != http.StatusAccepted {
			t.Errorf("timestamp %q: expected 202, got %d: %s", ts, rec.Code, rec.Body.String())
		}
	}

	rec := h.do(t, http.MethodPost, "/api/v1/ingest", testToken,
		ingestBody(`{"message":"E","environment":"prod","timestamp":"25/08/2026 10:00"}`))

	assertErrorCode(t, rec, http.StatusBadRequest, CodeInvalidTimestamp)
}

// TestIngestBodyTooLarge verifies the request size cap yields 400, not a
// connection reset.
func TestIngestBodyTooLarge(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	h := newTestHarness(t, withMaxRequestSize(256))

	big := ingestBody(`{"message":"` + strings.Repeat("x", 1024) + `","environment":"prod"}`)

	rec := h.do(t, http.MethodPost, "/api/v1/ingest", testToken, big)

	assertErrorCode(t, rec, http.StatusBadRequest, CodeBadRequest)
}

// TestIngestServiceFailure verifies store outages surface as the fixed
// ingest_failed envelope.
func TestIngestServiceFailure(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	h := newTestHarness(t)
	h.events.FailInserts = fmt.Errorf("clickhouse unreachable")

	rec := h.do(t, http.MethodPost, "/api/v1/ingest", testToken,
		ingestBody(`{"message":"E","environment":"prod"}`))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}

	var body struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}

	decodeJSON(t, rec, &body)

	if body.Error != "ingest_failed" || body.Code != CodeIngestFailed {
		t.Errorf("expected ingest_failed/INGEST_FAILED, got %q/%q", body.Error, body.Code)
	}
}

// TestIngestInsufficientScope verifies a read-only key cannot submit events.
func TestIngestInsufficientScope(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	h := newTestHarness(t)

	readToken := "errly_cd34_" + strings.Repeat("ab", 32)
	if err := h.registry.AddKey(&storage.APIKey{
		ID:        "key-read",
		KeyHash:   storage.HashToken(readToken),
		KeyPrefix: storage.TokenPrefix(readToken),
		ProjectID: "proj-1",
		Scopes:    []storage.Scope{storage.ScopeRead},
		CreatedAt: time.Now(),
	}); err != nil {
		t.Fatalf("failed to seed read key: %v", err)
	}

	rec := h.do(t, http.MethodPost, "/api/v1/ingest", readToken,
		ingestBody(`{"message":"E","environment":"prod"}`))

	assertErrorCode(t, rec, http.StatusForbidden, "INSUFFICIENT_SCOPE")
}

// TestIngestMalformedToken verifies format rejection happens at the gate.
func TestIngestMalformedToken(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	h := newTestHarness(t)

	rec := h.do(t, http.MethodPost, "/api/v1/ingest", "badformat",
		ingestBody(`{"message":"E","environment":"prod"}`))

	assertErrorCode(t, rec, http.StatusUnauthorized, "INVALID_API_KEY_FORMAT")
}

// TestIngestExpiredKey verifies expired keys are rejected before any store
// work happens.
func TestIngestExpiredKey(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	h := newTestHarness(t)

	expiredToken := "errly_ef56_" + strings.Repeat("cd", 32)
	expiry := time.Now().Add(-time.Second)

	if err := h.registry.AddKey(&storage.APIKey{
		ID:        "key-expired",
		KeyHash:   storage.HashToken(expiredToken),
		KeyPrefix: storage.TokenPrefix(expiredToken),
		ProjectID: "proj-1",
		Scopes:    []storage.Scope{storage.ScopeIngest},
		CreatedAt: time.Now().Add(-time.Hour),
		ExpiresAt: &expiry,
	}); err != nil {
		t.Fatalf("failed to seed expired key: %v", err)
	}

	rec := h.do(t, http.MethodPost, "/api/v1/ingest", expiredToken,
		ingestBody(`{"message":"E","environment":"prod"}`))

	assertErrorCode(t, rec, http.StatusUnauthorized, "API_KEY_EXPIRED")

	if h.events.Len() != 0 {
		t.Errorf("expired key must not reach the event store, got %d events", h.events.Len())
	}
}

// TestIngestRateLimited drives a miniredis-backed limiter to its budget:
// 202, 202, then 429 with Retry-After and a drained remaining count.
func TestIngestRateLimited(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	mr := miniredis.RunT(t)

	limiter, err := middleware.NewRedisRateLimiter(context.Background(), "redis://"+mr.Addr())
	if err != nil {
		t.Fatalf("failed to create limiter: %v", err)
	}

	t.Cleanup(func() { _ = limiter.Close() })

	h := newTestHarness(t, withLimiter(limiter), withIngestRPM(2))
	body := ingestBody(`{"message":"E","environment":"prod"}`)

	for i := range 2 {
		if rec := h.do(t, http.MethodPost, "/api/v1/ingest", testToken, body); rec.Code != http.StatusAccepted {
			t.Fatalf("request %d: expected 202, got %d: %s", i, rec.Code, rec.Body.String())
		}
	}

	rec := h.do(t, http.MethodPost, "/api/v1/ingest", testToken, body)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}

	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Errorf("expected X-RateLimit-Remaining 0, got %q", got)
	}

	retryAfter, err := strconv.Atoi(rec.Header().Get("Retry-After"))
	if err != nil || retryAfter < 1 || retryAfter > 60 {
		t.Errorf("expected Retry-After in [1,60], got %q", rec.Header().Get("Retry-After"))
	}

	var body429 struct {
		Code      string `json:"code"`
		Limit     int    `json:"limit"`
		Window    int    `json:"window"`
		ResetTime int64  `json:"reset_time"`
	}

	decodeJSON(t, rec, &body429)

	if body429.Code != "RATE_LIMIT_EXCEEDED" || body429.Limit != 2 || body429.Window != 60 {
		t.Errorf("unexpected 429 body: %+v", body429)
	}
}

// TestAuthValidate verifies the echo endpoint returns the resolved identity
// and never leaks key material.
func TestAuthValidate(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	h := newTestHarness(t)

	rec := h.do(t, http.MethodPost, "/api/v1/auth/validate", testToken, "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	raw := rec.Body.String()

	if strings.Contains(raw, testToken) || strings.Contains(raw, storage.HashToken(testToken)) {
		t.Fatal("response leaked token material")
	}

	var resp AuthValidateResponse

	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp.Project == nil || resp.Project.ID != "proj-1" {
		t.Errorf("expected project proj-1, got %+v", resp.Project)
	}

	if resp.Key == nil || resp.Key.KeyPrefix != storage.TokenPrefix(testToken) {
		t.Errorf("expected key prefix %q, got %+v", storage.TokenPrefix(testToken), resp.Key)
	}
}

func TestIngestInfo(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	h := newTestHarness(t)

	rec := h.do(t, http.MethodGet, "/api/v1/ingest/info", testToken, "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var info IngestInfo

	decodeJSON(t, rec, &info)

	if info.MaxBatchSize != 100 {
		t.Errorf("expected maxBatchSize=100, got %d", info.MaxBatchSize)
	}

	if len(info.TimestampFormats) != 4 {
		t.Errorf("expected 4 timestamp formats, got %d", len(info.TimestampFormats))
	}
}

func TestPing(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	h := newTestHarness(t)

	rec := h.do(t, http.MethodGet, "/ping", "", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	if rec.Body.String() != "pong" {
		t.Errorf("expected pong, got %q", rec.Body.String())
	}
}

// TestHealthHealthy verifies /health reports every wired store without
// requiring credentials.
func TestHealthHealthy(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	h := newTestHarness(t)

	rec := h.do(t, http.MethodGet, "/health", "", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var health HealthStatus

	decodeJSON(t, rec, &health)

	if health.Status != "healthy" {
		t.Errorf("expected healthy, got %q", health.Status)
	}

	for _, check := range []string{"postgres", "clickhouse"} {
		if health.Checks[check].Status != "healthy" {
			t.Errorf("check %q: expected healthy, got %+v", check, health.Checks[check])
		}
	}
}

// TestHealthMemoryLimiterDegraded verifies the in-memory limiter marks the
// redis check degraded without failing the probe.
func TestHealthMemoryLimiterDegraded(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	limiter := middleware.NewMemoryRateLimiter()
	t.Cleanup(func() { _ = limiter.Close() })

	h := newTestHarness(t, withLimiter(limiter))

	rec := h.do(t, http.MethodGet, "/health", "", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var health HealthStatus

	decodeJSON(t, rec, &health)

	if health.Status != "degraded" {
		t.Errorf("expected degraded, got %q", health.Status)
	}

	if health.Checks["redis"].Status != "degraded" {
		t.Errorf("expected redis degraded, got %+v", health.Checks["redis"])
	}
}

// TestUnknownRoute verifies unknown paths return the 404 envelope for
// authenticated callers, and the auth gate fires first for anonymous ones.
func TestUnknownRoute(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	h := newTestHarness(t)

	rec := h.do(t, http.MethodGet, "/nope", testToken, "")
	assertErrorCode(t, rec, http.StatusNotFound, CodeNotFound)

	rec = h.do(t, http.MethodGet, "/nope", "", "")
	assertErrorCode(t, rec, http.StatusUnauthorized, "MISSING_AUTH_HEADER")
}

func TestIngestRequiresAuth(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	h := newTestHarness(t)

	rec := h.do(t, http.MethodPost, "/api/v1/ingest", "",
		ingestBody(`{"message":"E","environment":"prod"}`))

	assertErrorCode(t, rec, http.StatusUnauthorized, "MISSING_AUTH_HEADER")
}
