// Package storage provides data storage interfaces and domain types for the Errly API.
package storage

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

const (
	// API token format constants.
	randomBytesSize = 32
	tokenLength     = 75 // "errly_" + 4 + "_" + 64
	prefixLen       = 12 // Show "errly_<4 alnum>_" minus trailing underscore: "errly_ab12"
	suffixLen       = 4  // Show last 4 chars

	alnumAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	keyIDLen      = 4
)

// tokenRegex validates the full token shape: errly_<4 lowercase alnum>_<64 hex>.
var tokenRegex = regexp.MustCompile(`^errly_[a-z0-9]{4}_[a-f0-9]{64}$`)

var (
	// ErrKeyNotFound is returned when no API key matches the given hash or ID.
	ErrKeyNotFound = errors.New("API key not found")
	// ErrKeyNil is returned when a nil API key is provided.
	ErrKeyNil = errors.New("API key cannot be nil")
	// ErrKeyAlreadyExists is returned when inserting a key whose hash is already stored.
	ErrKeyAlreadyExists = errors.New("API key already exists")
	// ErrProjectNotFound is returned when no project matches the given ID.
	ErrProjectNotFound = errors.New("project not found")
	// ErrTokenEmpty is returned when an empty token string is provided.
	ErrTokenEmpty = errors.New("token cannot be empty")
	// ErrInvalidTokenFormat is returned when a token doesn't match the errly_<id>_<hex> shape.
	ErrInvalidTokenFormat = errors.New("invalid token format")
)

// Scope is a named capability attached to an API key.
type Scope string

// Scopes an API key may carry.
const (
	ScopeIngest Scope = "ingest"
	ScopeRead   Scope = "read"
	ScopeAdmin  Scope = "admin"
)

// ValidScope reports whether s is one of the enumerated scopes.
func ValidScope(s Scope) bool {
	switch s {
	case ScopeIngest, ScopeRead, ScopeAdmin:
		return true
	default:
		return false
	}
}

type (
	// APIKey represents a stored API key. The raw token is never persisted;
	// KeyHash holds the SHA-256 hex of the full token and KeyPrefix the first
	// 12 characters for display.
	APIKey struct {
		ID         string     `json:"id"`
		KeyHash    string     `json:"-"`
		KeyPrefix  string     `json:"keyPrefix"`
		ProjectID  string     `json:"projectId"`
		Scopes     []Scope    `json:"scopes"`
		CreatedAt  time.Time  `json:"createdAt"`
		ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
		LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
	}

	// Project is the unit of API-key scoping and data tenancy. The ingest core
	// treats projects as read-only; lifecycle is owned by the admin surface.
	Project struct {
		ID        string    `json:"id"`
		SpaceID   string    `json:"spaceId"`
		Name      string    `json:"name"`
		Slug      string    `json:"slug"`
		Platform  string    `json:"platform"`
		CreatedAt time.Time `json:"createdAt"`
		UpdatedAt time.Time `json:"updatedAt"`
	}

	// KeyRegistry defines lookup and maintenance operations over stored API keys.
	// Implementations must be safe for concurrent use.
	KeyRegistry interface {
		// GetByHash retrieves an API key by the SHA-256 hex of its raw token.
		// Returns ErrKeyNotFound when no key matches.
		GetByHash(ctx context.Context, keyHash string) (*APIKey, error)
		// TouchLastUsed records that the key was just used. Best-effort; callers
		// must not fail the request on error.
		TouchLastUsed(ctx context.Context, keyID string) error
		// GetProject resolves the project a key belongs to.
		// Returns ErrProjectNotFound when no project matches.
		GetProject(ctx context.Context, projectID string) (*Project, error)
		// HealthCheck verifies the backing store is reachable.
		HealthCheck(ctx context.Context) error
	}
)

// HasScope checks if the API key carries a specific scope.
func (k *APIKey) HasScope(scope Scope) bool {
	for _, s := range k.Scopes {
		if s == scope {
			return true
		}
	}

	return false
}

// Expired reports whether the key has an expiry in the past.
// A nil ExpiresAt means the key never expires.
func (k *APIKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && !k.ExpiresAt.After(now)
}

// GenerateToken creates a new API token in the form errly_<4 alnum>_<64 hex>.
// The caller is responsible for hashing it before storage; the raw token is
// shown to the user exactly once.
func GenerateToken() (string, error) {
	// 4 random alphanumeric chars form the short key id shown in the prefix
	keyID := make([]byte, keyIDLen)

	if _, err := rand.Read(keyID); err != nil {
		return "", fmt.Errorf("failed to generate token id: %w", err)
	}

	for i, b := range keyID {
		keyID[i] = alnumAlphabet[int(b)%len(alnumAlphabet)]
	}

	// 32 random bytes (256 bits) form the secret part
	randomBytes := make([]byte, randomBytesSize)

	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	token := "errly_" + string(keyID) + "_" + hex.EncodeToString(randomBytes) // pragma: allowlist secret

	return token, nil
}

// ValidateTokenFormat checks a raw token against the errly_<4 alnum>_<64 hex> shape.
func ValidateTokenFormat(token string) error {
	if token == "" {
		return ErrTokenEmpty
	}

	if !tokenRegex.MatchString(token) {
		return ErrInvalidTokenFormat
	}

	return nil
}

// TokenPrefix returns the display prefix of a token: its first 12 characters
// ("errly_" + 4 alnum + "_" + first hex char). Shorter inputs are returned
// unchanged.
func TokenPrefix(token string) string {
	if len(token) <= prefixLen {
		return token
	}

	return token[:prefixLen]
}

// MaskToken masks a raw token for secure logging by showing only the prefix
// and suffix. Designed for 75-character errly tokens in format:
// "errly_" + 4 alnum + "_" + 64 hex = 75 total chars.
func MaskToken(token string) string {
	if token == "" {
		return ""
	}

	tokenLen := len(token)

	// For our standard 75-character tokens, show meaningful prefix and suffix
	if tokenLen == tokenLength {
		maskedLen := tokenLen - prefixLen - suffixLen // 75 - 12 - 4 = 59

		return token[:prefixLen] + strings.Repeat("*", maskedLen) + token[tokenLen-suffixLen:]
	}

	// For any other token length (testing, development, etc.), mask completely
	return strings.Repeat("*", tokenLen)
}
