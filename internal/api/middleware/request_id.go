// Package middleware provides HTTP middleware components for the Errly API.
package middleware

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"
)

const requestIDSize = 8

// requestIDKey is the context key for the request ID.
type requestIDKey struct{}

// RequestID creates a middleware that attaches a request ID to each request.
// A client-supplied X-Request-ID header is honored; otherwise a new ID is
// generated. The ID is echoed in the response and carried in the context for
// all request-path log lines.
func RequestID() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get("X-Request-ID")

			if requestID == "" {
				requestID = generateRequestID()
			}

			w.Header().Set("X-Request-ID", requestID)

			ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetRequestID extracts the request ID from the request context.
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey{}).(string); ok {
		return requestID
	}

	return "unknown"
}

// generateRequestID returns 8 random bytes as hex, with a timestamp fallback
// should the system entropy source fail.
func generateRequestID() string {
	bytes := make([]byte, requestIDSize)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("%016x", time.Now().UnixNano())
	}

	return hex.EncodeToString(bytes)
}
