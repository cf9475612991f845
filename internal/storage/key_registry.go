package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"
)

// PersistentKeyRegistry implements KeyRegistry with a PostgreSQL backend.
// Lookups are single-row reads against the unique key_hash index; scope data
// is stored as JSONB.
type PersistentKeyRegistry struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPersistentKeyRegistry creates a PostgreSQL-backed key registry using an
// existing connection pool.
func NewPersistentKeyRegistry(conn *Connection, logger *slog.Logger) *PersistentKeyRegistry {
	return &PersistentKeyRegistry{
		conn:   conn,
		logger: logger,
	}
}

// GetByHash retrieves an API key by the SHA-256 hex of its raw token.
// Returns ErrKeyNotFound when no key matches.
func (r *PersistentKeyRegistry) GetByHash(ctx context.Context, keyHash string) (*APIKey, error) {
	if keyHash == "" {
		return nil, ErrKeyNotFound
	}

	query := `
		SELECT id, key_hash, key_prefix, project_id, scopes, created_at, expires_at, last_used_at
		FROM api_keys
		WHERE key_hash = $1
	`

	var (
		apiKey     APIKey
		scopesJSON []byte
	)

	err := r.conn.QueryRowContext(ctx, query, keyHash).Scan(
		&apiKey.ID,
		&apiKey.KeyHash,
		&apiKey.KeyPrefix,
		&apiKey.ProjectID,
		&scopesJSON,
		&apiKey.CreatedAt,
		&apiKey.ExpiresAt,
		&apiKey.LastUsedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrKeyNotFound
		}

		return nil, fmt.Errorf("failed to query API key: %w", err)
	}

	if err := json.Unmarshal(scopesJSON, &apiKey.Scopes); err != nil {
		return nil, fmt.Errorf("failed to parse key scopes: %w", err)
	}

	return &apiKey, nil
}

// TouchLastUsed records that the key was just used.
// Best-effort: callers launch this in the background and only log failures.
func (r *PersistentKeyRegistry) TouchLastUsed(ctx context.Context, keyID string) error {
	if keyID == "" {
		return ErrKeyNotFound
	}

	query := `
		UPDATE api_keys
		SET last_used_at = NOW()
		WHERE id = $1
	`

	result, err := r.conn.ExecContext(ctx, query, keyID)
	if err != nil {
		return fmt.Errorf("failed to touch API key: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return ErrKeyNotFound
	}

	return nil
}

// GetProject resolves the project a key belongs to.
// Returns ErrProjectNotFound when no project matches.
func (r *PersistentKeyRegistry) GetProject(ctx context.Context, projectID string) (*Project, error) {
	if projectID == "" {
		return nil, ErrProjectNotFound
	}

	query := `
		SELECT id, space_id, name, slug, platform, created_at, updated_at
		FROM projects
		WHERE id = $1
	`

	var project Project

	err := r.conn.QueryRowContext(ctx, query, projectID).Scan(
		&project.ID,
		&project.SpaceID,
		&project.Name,
		&project.Slug,
		&project.Platform,
		&project.CreatedAt,
		&project.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProjectNotFound
		}

		return nil, fmt.Errorf("failed to query project: %w", err)
	}

	return &project, nil
}

// Insert stores a new API key. Used by the key provisioning tool, not the
// request path. Returns ErrKeyAlreadyExists on a key_hash collision.
func (r *PersistentKeyRegistry) Insert(ctx context.Context, apiKey *APIKey) error {
	if apiKey == nil { // pragma: allowlist secret
		return ErrKeyNil
	}

	scopesJSON, err := scopesToJSON(apiKey.Scopes)
	if err != nil {
		return fmt.Errorf("failed to serialize scopes: %w", err)
	}

	query := `
		INSERT INTO api_keys (id, key_hash, key_prefix, project_id, scopes, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err = r.conn.ExecContext(
		ctx,
		query,
		apiKey.ID,
		apiKey.KeyHash,
		apiKey.KeyPrefix,
		apiKey.ProjectID,
		scopesJSON,
		apiKey.CreatedAt,
		apiKey.ExpiresAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" { // unique_violation
			return ErrKeyAlreadyExists
		}

		return fmt.Errorf("failed to insert API key: %w", err)
	}

	r.logger.Info("API key created",
		slog.String("key_id", apiKey.ID),
		slog.String("key_prefix", apiKey.KeyPrefix),
		slog.String("project_id", apiKey.ProjectID),
	)

	return nil
}

// HealthCheck verifies the backing store is reachable.
func (r *PersistentKeyRegistry) HealthCheck(ctx context.Context) error {
	return r.conn.HealthCheck(ctx)
}

// Close closes the underlying connection pool.
// This method is safe to call multiple times.
func (r *PersistentKeyRegistry) Close() error {
	if r.conn != nil {
		return r.conn.Close()
	}

	return nil
}

// scopesToJSON converts a scopes slice to JSON for PostgreSQL JSONB storage.
func scopesToJSON(scopes []Scope) ([]byte, error) {
	if scopes == nil {
		scopes = []Scope{}
	}

	return json.Marshal(scopes)
}
