// Package main provides the Errly error tracking ingest service.
//
// The service authenticates API keys against Postgres, rate limits against
// Redis, persists error events to ClickHouse, and maintains issue aggregates
// through fingerprint-based grouping.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/errly-io/errly/internal/aliasing"
	"github.com/errly-io/errly/internal/api"
	"github.com/errly-io/errly/internal/api/middleware"
	"github.com/errly-io/errly/internal/config"
	"github.com/errly-io/errly/internal/ingestion"
	"github.com/errly-io/errly/internal/metrics"
	"github.com/errly-io/errly/internal/storage"
)

// Version information.
const (
	version = "1.0.0-dev"
	name    = "errly"
)

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	// .env is a development convenience; production configures through real
	// environment variables.
	if config.GetEnvStr("ENVIRONMENT", "development") != "production" {
		_ = godotenv.Load()
	}

	serverConfig := api.LoadServerConfig()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: serverConfig.LogLevel,
	}))

	logger.Info("Starting Errly service",
		slog.String("service", name),
		slog.String("version", version),
		slog.String("environment", serverConfig.Environment),
	)

	logger.Info("Loaded server configuration",
		slog.String("host", serverConfig.Host),
		slog.Int("port", serverConfig.Port),
		slog.Duration("read_timeout", serverConfig.ReadTimeout),
		slog.Duration("write_timeout", serverConfig.WriteTimeout),
		slog.Duration("shutdown_timeout", serverConfig.ShutdownTimeout),
		slog.String("log_level", serverConfig.LogLevel.String()),
	)

	// Postgres key registry.
	storageConfig := storage.LoadConfig()

	dbConn, err := storage.NewConnection(storageConfig)
	if err != nil {
		logger.Error("Failed to connect to postgres", slog.String("error", err.Error()))
		os.Exit(1)
	}

	registry := storage.NewPersistentKeyRegistry(dbConn, logger)

	logger.Info("Key registry initialized",
		slog.String("database_url", storageConfig.MaskDatabaseURL()),
	)

	// ClickHouse event and issue stores.
	clickhouseConfig := storage.LoadClickHouseConfig()

	chConn, err := storage.NewClickHouseConn(clickhouseConfig)
	if err != nil {
		logger.Error("Failed to connect to clickhouse", slog.String("error", err.Error()))

		_ = dbConn.Close()
		//nolint:gocritic // Explicit cleanup before os.Exit is intentional (defer won't run)
		os.Exit(1)
	}

	eventStore := storage.NewClickHouseEventStore(chConn, logger)
	issueStore := storage.NewClickHouseIssueStore(chConn, logger)

	logger.Info("Event and issue stores initialized",
		slog.String("clickhouse_addr", clickhouseConfig.URL),
	)

	// Rate limiter: Redis when configured, per-process fallback otherwise.
	rateConfig := middleware.LoadRateLimitConfig()
	limiter := buildLimiter(logger)

	// Environment aliasing is optional; a missing config file means no
	// aliases.
	aliasConfig, err := aliasing.LoadConfigFromEnv()
	if err != nil {
		logger.Warn("Failed to load environment alias config, continuing without aliases",
			slog.String("error", err.Error()),
		)
	}

	resolver := aliasing.NewResolver(aliasConfig)

	logger.Info("Environment alias resolver initialized",
		slog.Int("aliases", resolver.AliasCount()),
	)

	ingestService := ingestion.NewService(eventStore, issueStore, resolver, logger)

	server := api.NewServer(serverConfig, rateConfig, api.Dependencies{
		Registry: registry,
		Events:   eventStore,
		Issues:   issueStore,
		Limiter:  limiter,
		Ingest:   ingestService,
		Metrics:  metrics.New(),
	})

	if err := server.Start(); err != nil {
		logger.Error("Server failed to start",
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	logger.Info("Errly service stopped")
}

// buildLimiter prefers Redis so limits hold across replicas. Without
// REDIS_URL the in-memory limiter keeps the single-process deployment
// working; an unreachable Redis is a hard failure rather than a silent
// downgrade.
func buildLimiter(logger *slog.Logger) middleware.Limiter {
	redisURL := config.GetEnvStr("REDIS_URL", "")
	if redisURL == "" {
		logger.Warn("REDIS_URL not set - using in-memory rate limiter",
			slog.String("note", "limits are per process; configure Redis for multi-replica deployments"),
		)

		return middleware.NewMemoryRateLimiter()
	}

	limiter, err := middleware.NewRedisRateLimiter(context.Background(), redisURL)
	if err != nil {
		logger.Error("Failed to connect to redis", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Redis rate limiter initialized")

	return limiter
}
