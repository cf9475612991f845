package storage

import (
	"errors"
	"strings"
	"time"

	"github.com/errly-io/errly/internal/config"
)

const (
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 10 * time.Minute

	defaultClickHouseURL      = "localhost:9000"
	defaultClickHouseDatabase = "errly_events"
	defaultCHMaxOpenConns     = 10
	defaultCHMaxIdleConns     = 5
	defaultCHDialTimeout      = 10 * time.Second
)

var (
	// ErrDatabaseURLEmpty is returned when the database url is an empty string.
	ErrDatabaseURLEmpty = errors.New("database URL cannot be empty")
	// ErrClickHouseURLEmpty is returned when the ClickHouse endpoint is an empty string.
	ErrClickHouseURLEmpty = errors.New("ClickHouse URL cannot be empty")
)

// Config holds PostgreSQL connection configuration with production-ready defaults.
type Config struct {
	databaseURL     string
	MaxOpenConns    int           // Maximum number of open connections
	MaxIdleConns    int           // Maximum number of idle connections
	ConnMaxLifetime time.Duration // Maximum lifetime of connections
	ConnMaxIdleTime time.Duration // Maximum idle time for connections
}

// LoadConfig loads PostgreSQL configuration from environment variables with fallback to defaults.
func LoadConfig() *Config {
	return &Config{
		databaseURL:     config.GetEnvStr("POSTGRES_URL", ""), // databaseURL is private for obvious reasons.
		MaxOpenConns:    config.GetEnvInt("POSTGRES_MAX_OPEN_CONNS", defaultMaxOpenConns),
		MaxIdleConns:    config.GetEnvInt("POSTGRES_MAX_IDLE_CONNS", defaultMaxIdleConns),
		ConnMaxLifetime: config.GetEnvDuration("POSTGRES_CONN_MAX_LIFETIME", defaultConnMaxLifetime),
		ConnMaxIdleTime: config.GetEnvDuration("POSTGRES_CONN_MAX_IDLE_TIME", defaultConnMaxIdleTime),
	}
}

// NewConfig builds a Config for an explicit DSN with default pool settings.
// Used by tooling that takes the DSN as a flag instead of the environment.
func NewConfig(databaseURL string) *Config {
	return &Config{
		databaseURL:     databaseURL,
		MaxOpenConns:    defaultMaxOpenConns,
		MaxIdleConns:    defaultMaxIdleConns,
		ConnMaxLifetime: defaultConnMaxLifetime,
		ConnMaxIdleTime: defaultConnMaxIdleTime,
	}
}

// Validate checks if the PostgreSQL configuration is valid.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.databaseURL) == "" {
		return ErrDatabaseURLEmpty
	}

	return nil
}

// MaskDatabaseURL returns a masked databaseURL safe for logging.
func (c *Config) MaskDatabaseURL() string {
	return maskURL(c.databaseURL)
}

// ClickHouseConfig holds columnar store connection configuration.
// The URL carries host:port only; credentials are separate fields so logs
// never need URL scrubbing.
type ClickHouseConfig struct {
	URL          string
	Username     string
	password     string
	Database     string
	MaxOpenConns int
	MaxIdleConns int
	DialTimeout  time.Duration
}

// LoadClickHouseConfig loads ClickHouse configuration from environment variables
// with fallback to defaults.
func LoadClickHouseConfig() *ClickHouseConfig {
	return &ClickHouseConfig{
		URL:          config.GetEnvStr("CLICKHOUSE_URL", defaultClickHouseURL),
		Username:     config.GetEnvStr("CLICKHOUSE_USER", "default"),
		password:     config.GetEnvStr("CLICKHOUSE_PASSWORD", ""), // private, same reason as databaseURL
		Database:     config.GetEnvStr("CLICKHOUSE_DATABASE", defaultClickHouseDatabase),
		MaxOpenConns: config.GetEnvInt("CLICKHOUSE_MAX_OPEN_CONNS", defaultCHMaxOpenConns),
		MaxIdleConns: config.GetEnvInt("CLICKHOUSE_MAX_IDLE_CONNS", defaultCHMaxIdleConns),
		DialTimeout:  config.GetEnvDuration("CLICKHOUSE_DIAL_TIMEOUT", defaultCHDialTimeout),
	}
}

// Validate checks if the ClickHouse configuration is valid.
func (c *ClickHouseConfig) Validate() error {
	if strings.TrimSpace(c.URL) == "" {
		return ErrClickHouseURLEmpty
	}

	return nil
}

// maskURL masks the password portion of a URL-shaped DSN for logging.
func maskURL(url string) string {
	if url == "" {
		return ""
	}

	// Find the scheme separator
	schemeEnd := strings.Index(url, "://")
	if schemeEnd == -1 {
		return url
	}

	// Find the last @ which separates userinfo from host
	afterScheme := url[schemeEnd+3:]

	lastAtIndex := strings.LastIndex(afterScheme, "@")
	if lastAtIndex == -1 {
		// No @ found, no userinfo
		return url
	}

	// Extract userinfo
	userInfo := afterScheme[:lastAtIndex]

	colonIndex := strings.Index(userInfo, ":")
	if colonIndex == -1 {
		// No password
		return url
	}

	// Found username:password
	username := userInfo[:colonIndex]
	password := userInfo[colonIndex+1:]

	if password == "" {
		// Empty password, don't mask
		return url
	}

	// Build masked URL
	scheme := url[:schemeEnd]
	hostAndRest := afterScheme[lastAtIndex:]

	return scheme + "://" + username + ":***" + hostAndRest
}
