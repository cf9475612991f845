package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/errly-io/errly/internal/metrics"
	"github.com/errly-io/errly/internal/storage"
)

const (
	// registryLookupTimeout bounds the key and project lookups.
	registryLookupTimeout = 5 * time.Second
	// touchTimeout bounds the background last-used update. The touch runs on
	// its own context so it survives the request's completion.
	touchTimeout = 10 * time.Second

	bearerPrefix = "Bearer "
)

// publicEndpoints lists exact paths that bypass authentication (health
// probes, metrics). Never add business endpoints here.
var publicEndpoints = map[string]bool{} //nolint:gochecknoglobals

// publicPrefixes lists path prefixes that bypass authentication, for route
// groups like /debug/pprof/ that fan out into many paths.
var publicPrefixes = []string{} //nolint:gochecknoglobals

// scopedEndpoints maps a path to the scopes its route requires. A path
// registered with no scopes accepts any valid key.
var scopedEndpoints = map[string][]storage.Scope{} //nolint:gochecknoglobals

// RegisterPublicEndpoint registers an exact path that bypasses
// authentication and rate limiting. Called during route setup only.
func RegisterPublicEndpoint(path string) {
	publicEndpoints[path] = true
}

// RegisterPublicPrefix registers a path prefix that bypasses authentication
// and rate limiting. Called during route setup only.
func RegisterPublicPrefix(prefix string) {
	publicPrefixes = append(publicPrefixes, prefix)
}

// RegisterScopedEndpoint declares the scopes a path requires. Paths never
// registered require a valid key but no particular scope.
func RegisterScopedEndpoint(path string, scopes ...storage.Scope) {
	scopedEndpoints[path] = scopes
}

// isPublicEndpoint reports whether the path bypasses the auth gate.
func isPublicEndpoint(path string) bool {
	if publicEndpoints[path] {
		return true
	}

	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}

	return false
}

// Authentication error types. Each maps to one stable symbolic code.
var (
	// ErrMissingAuthHeader is returned when no Authorization header is present.
	ErrMissingAuthHeader = errors.New("missing authorization header")
	// ErrInvalidAuthFormat is returned when the header is not a Bearer token.
	ErrInvalidAuthFormat = errors.New("authorization header must be a bearer token")
	// ErrInvalidKeyFormat is returned when the token does not match the
	// errly_<id>_<hex> shape.
	ErrInvalidKeyFormat = errors.New("invalid API key format")
	// ErrInvalidKey is returned when no key matches the token hash.
	ErrInvalidKey = errors.New("invalid API key")
	// ErrKeyExpired is returned when the key's expiry has passed.
	ErrKeyExpired = errors.New("API key expired")
	// ErrInsufficientScope is returned when the key lacks a required scope.
	ErrInsufficientScope = errors.New("insufficient scope")
	// ErrProjectMissing is returned when the key's project no longer resolves.
	ErrProjectMissing = errors.New("project not found")
	// ErrRegistryUnavailable is returned when the key registry itself fails.
	ErrRegistryUnavailable = errors.New("key registry unavailable")
)

// AuthError carries an authentication failure and its stable code.
type AuthError struct {
	Type    error
	Message string
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("authentication failed: %s: %s", e.Type.Error(), e.Message)
	}

	return "authentication failed: " + e.Type.Error()
}

// Unwrap returns the wrapped error type, enabling errors.Is behavior.
func (e *AuthError) Unwrap() error {
	return e.Type
}

// statusAndCode maps an auth failure to its HTTP status and symbolic code.
func statusAndCode(err error) (int, string) {
	switch {
	case errors.Is(err, ErrMissingAuthHeader):
		return http.StatusUnauthorized, "MISSING_AUTH_HEADER"
	case errors.Is(err, ErrInvalidAuthFormat):
		return http.StatusUnauthorized, "INVALID_AUTH_FORMAT"
	case errors.Is(err, ErrInvalidKeyFormat):
		return http.StatusUnauthorized, "INVALID_API_KEY_FORMAT"
	case errors.Is(err, ErrInvalidKey):
		return http.StatusUnauthorized, "INVALID_API_KEY"
	case errors.Is(err, ErrKeyExpired):
		return http.StatusUnauthorized, "API_KEY_EXPIRED"
	case errors.Is(err, ErrInsufficientScope):
		return http.StatusForbidden, "INSUFFICIENT_SCOPE"
	case errors.Is(err, ErrProjectMissing):
		return http.StatusUnauthorized, "PROJECT_NOT_FOUND"
	case errors.Is(err, ErrRegistryUnavailable):
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	default:
		return http.StatusUnauthorized, "INVALID_API_KEY"
	}
}

// AuthContext is the authenticated identity attached to the request context.
type AuthContext struct {
	APIKey  *storage.APIKey
	Project *storage.Project
}

// authContextKey is the context key for AuthContext.
type authContextKey struct{}

// SetAuthContext stores the authenticated identity in the context.
func SetAuthContext(ctx context.Context, authCtx AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey{}, authCtx)
}

// GetAuthContext extracts the authenticated identity from the context.
func GetAuthContext(ctx context.Context) (AuthContext, bool) {
	authCtx, ok := ctx.Value(authContextKey{}).(AuthContext)

	return authCtx, ok
}

// Authenticate creates the auth gate middleware.
//
// Checks run in a fixed order, each with its own failure code, and all of
// them precede any downstream store work: header present, bearer format,
// token shape, hash lookup (5 s deadline), expiry, required scopes, project
// resolve. On success the request context carries AuthContext and a
// background goroutine records the key's last use; that goroutine runs on
// its own context and its failure is logged, never propagated.
func Authenticate(registry storage.KeyRegistry, logger *slog.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublicEndpoint(r.URL.Path) {
				next.ServeHTTP(w, r)

				return
			}

			authStart := time.Now()

			authCtx, err := authenticateRequest(r, registry, logger)
			if err != nil {
				writeAuthError(w, r, logger, m, err)

				return
			}

			// Best-effort last-used touch on an independent context; the
			// request must not wait for it and its error must not fail it.
			keyID := authCtx.APIKey.ID

			go func() {
				touchCtx, cancel := context.WithTimeout(context.Background(), touchTimeout)
				defer cancel()

				if err := registry.TouchLastUsed(touchCtx, keyID); err != nil {
					logger.Warn("failed to touch key last_used_at",
						slog.String("key_id", keyID),
						slog.String("error", err.Error()),
					)
				}
			}()

			logger.Debug("API key authenticated",
				slog.String("key_id", authCtx.APIKey.ID),
				slog.String("key_prefix", authCtx.APIKey.KeyPrefix),
				slog.String("project_id", authCtx.Project.ID),
				slog.Duration("auth_latency", time.Since(authStart)),
				slog.String("request_id", GetRequestID(r.Context())),
				slog.String("endpoint", r.URL.Path),
			)

			next.ServeHTTP(w, r.WithContext(SetAuthContext(r.Context(), authCtx)))
		})
	}
}

// authenticateRequest runs the ordered check sequence for one request.
func authenticateRequest(
	r *http.Request,
	registry storage.KeyRegistry,
	logger *slog.Logger,
) (AuthContext, error) {
	// 1. Header present.
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return AuthContext{}, &AuthError{Type: ErrMissingAuthHeader, Message: "Authorization header required"}
	}

	// 2. Bearer shape.
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return AuthContext{}, &AuthError{Type: ErrInvalidAuthFormat, Message: "expected 'Bearer <token>'"}
	}

	token := strings.TrimPrefix(authHeader, bearerPrefix)

	// 3. Token shape. Checked before hashing so malformed tokens never reach
	// the registry.
	if err := storage.ValidateTokenFormat(token); err != nil {
		return AuthContext{}, &AuthError{Type: ErrInvalidKeyFormat, Message: "API key does not match the expected format"}
	}

	// 4. Hash lookup with a bounded deadline.
	lookupCtx, cancel := context.WithTimeout(r.Context(), registryLookupTimeout)
	defer cancel()

	apiKey, err := registry.GetByHash(lookupCtx, storage.HashToken(token))
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return AuthContext{}, &AuthError{Type: ErrInvalidKey, Message: "Invalid API key"}
		}

		logger.Error("key registry lookup failed",
			slog.String("request_id", GetRequestID(r.Context())),
			slog.String("error", err.Error()),
		)

		return AuthContext{}, &AuthError{Type: ErrRegistryUnavailable, Message: "authentication temporarily unavailable"}
	}

	// 5. Expiry.
	if apiKey.Expired(time.Now()) {
		return AuthContext{}, &AuthError{Type: ErrKeyExpired, Message: "API key has expired"}
	}

	// 6. Required scopes for this route.
	for _, required := range scopedEndpoints[r.URL.Path] {
		if !apiKey.HasScope(required) {
			return AuthContext{}, &AuthError{
				Type:    ErrInsufficientScope,
				Message: fmt.Sprintf("API key lacks required scope %q", required),
			}
		}
	}

	// 7. Project resolve.
	projectCtx, cancelProject := context.WithTimeout(r.Context(), registryLookupTimeout)
	defer cancelProject()

	project, err := registry.GetProject(projectCtx, apiKey.ProjectID)
	if err != nil {
		if errors.Is(err, storage.ErrProjectNotFound) {
			return AuthContext{}, &AuthError{Type: ErrProjectMissing, Message: "project for API key not found"}
		}

		logger.Error("project lookup failed",
			slog.String("request_id", GetRequestID(r.Context())),
			slog.String("project_id", apiKey.ProjectID),
			slog.String("error", err.Error()),
		)

		return AuthContext{}, &AuthError{Type: ErrRegistryUnavailable, Message: "authentication temporarily unavailable"}
	}

	return AuthContext{APIKey: apiKey, Project: project}, nil
}

// writeAuthError logs an auth failure and writes the error envelope.
// Raw tokens are never logged.
func writeAuthError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, m *metrics.Metrics, err error) {
	status, code := statusAndCode(err)

	m.RecordAuthFailure(code)

	logger.Warn("authentication failed",
		slog.String("code", code),
		slog.String("reason", err.Error()),
		slog.String("request_id", GetRequestID(r.Context())),
		slog.String("endpoint", r.URL.Path),
		slog.String("remote_addr", r.RemoteAddr),
	)

	var authErr *AuthError

	message := "authentication failed"
	if errors.As(err, &authErr) && authErr.Message != "" {
		message = authErr.Message
	}

	writeError(w, status, code, message)
}
