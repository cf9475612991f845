// Package main provides the errly-keygen tool for minting API keys.
//
// The tool generates a token, prints it exactly once, and either inserts the
// hashed key directly (when -dsn is given) or prints the INSERT statement for
// the operator to run.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/errly-io/errly/internal/storage"
)

const insertTimeout = 10 * time.Second

func main() {
	var (
		projectID = flag.String("project", "", "project ID the key belongs to (required)")
		scopesArg = flag.String("scopes", "ingest", "comma-separated scopes (ingest,read,admin)")
		expiresIn = flag.Duration("expires", 0, "key lifetime, e.g. 720h; zero means no expiry")
		dsn       = flag.String("dsn", "", "postgres DSN; when set the key is inserted directly")
	)

	flag.Parse()

	if *projectID == "" {
		flag.Usage()
		log.Fatal("missing required -project flag")
	}

	scopes, err := parseScopes(*scopesArg)
	if err != nil {
		log.Fatalf("invalid scopes: %v", err)
	}

	token, err := storage.GenerateToken()
	if err != nil {
		log.Fatalf("failed to generate token: %v", err)
	}

	apiKey := &storage.APIKey{
		ID:        uuid.NewString(),
		KeyHash:   storage.HashToken(token),
		KeyPrefix: storage.TokenPrefix(token),
		ProjectID: *projectID,
		Scopes:    scopes,
		CreatedAt: time.Now().UTC(),
	}

	if *expiresIn > 0 {
		expiry := apiKey.CreatedAt.Add(*expiresIn)
		apiKey.ExpiresAt = &expiry
	}

	fmt.Printf("Token (shown once, store it now):\n  %s\n\n", token)
	fmt.Printf("Key ID:      %s\n", apiKey.ID)
	fmt.Printf("Key prefix:  %s\n", apiKey.KeyPrefix)
	fmt.Printf("Key hash:    %s\n", apiKey.KeyHash)
	fmt.Printf("Project:     %s\n", apiKey.ProjectID)
	fmt.Printf("Scopes:      %s\n", *scopesArg)

	if apiKey.ExpiresAt != nil {
		fmt.Printf("Expires at:  %s\n", apiKey.ExpiresAt.Format(time.RFC3339))
	} else {
		fmt.Println("Expires at:  never")
	}

	if *dsn == "" {
		fmt.Printf("\nRun against your database:\n%s\n", insertStatement(apiKey))

		return
	}

	if err := insertKey(*dsn, apiKey); err != nil {
		log.Fatalf("failed to insert key: %v", err)
	}

	fmt.Println("\nKey inserted.")
}

// parseScopes validates the comma-separated scope list.
func parseScopes(arg string) ([]storage.Scope, error) {
	parts := strings.Split(arg, ",")
	scopes := make([]storage.Scope, 0, len(parts))

	for _, part := range parts {
		scope := storage.Scope(strings.TrimSpace(part))
		if !storage.ValidScope(scope) {
			return nil, fmt.Errorf("unknown scope %q", scope)
		}

		scopes = append(scopes, scope)
	}

	if len(scopes) == 0 {
		return nil, fmt.Errorf("at least one scope is required")
	}

	return scopes, nil
}

// insertStatement renders the INSERT for manual execution. Scopes serialize
// as the JSONB array the registry reads back.
func insertStatement(apiKey *storage.APIKey) string {
	scopesJSON, _ := json.Marshal(apiKey.Scopes)

	expiresAt := "NULL"
	if apiKey.ExpiresAt != nil {
		expiresAt = fmt.Sprintf("'%s'", apiKey.ExpiresAt.Format(time.RFC3339))
	}

	return fmt.Sprintf(
		`INSERT INTO api_keys (id, key_hash, key_prefix, project_id, scopes, created_at, expires_at)
VALUES ('%s', '%s', '%s', '%s', '%s'::jsonb, '%s', %s);`,
		apiKey.ID,
		apiKey.KeyHash,
		apiKey.KeyPrefix,
		apiKey.ProjectID,
		string(scopesJSON),
		apiKey.CreatedAt.Format(time.RFC3339),
		expiresAt,
	)
}

// insertKey stores the key through the same registry the server uses.
func insertKey(dsn string, apiKey *storage.APIKey) error {
	conn, err := storage.NewConnection(storage.NewConfig(dsn))
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	defer func() { _ = conn.Close() }()

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	registry := storage.NewPersistentKeyRegistry(conn, logger)

	ctx, cancel := context.WithTimeout(context.Background(), insertTimeout)
	defer cancel()

	if err := registry.Insert(ctx, apiKey); err != nil {
		return fmt.Errorf("insert failed: %w", err)
	}

	return nil
}
