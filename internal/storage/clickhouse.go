package storage

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// ClickHouseConn wraps a pooled native-protocol ClickHouse connection with
// the configuration it was built from. All Errly columnar access goes
// through this type so pool sizing and health checking stay in one place.
type ClickHouseConn struct {
	conn   driver.Conn
	config *ClickHouseConfig
}

// NewClickHouseConn opens a ClickHouse connection pool and verifies
// connectivity. The initial ping is bounded by the configured dial timeout.
func NewClickHouseConn(config *ClickHouseConfig) (*ClickHouseConn, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid clickhouse config: %w", err)
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{config.URL},
		Auth: clickhouse.Auth{
			Database: config.Database,
			Username: config.Username,
			Password: config.password,
		},
		DialTimeout:  config.DialTimeout,
		MaxOpenConns: config.MaxOpenConns,
		MaxIdleConns: config.MaxIdleConns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open clickhouse connection: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.DialTimeout)
	defer cancel()

	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()

		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}

	return &ClickHouseConn{
		conn:   conn,
		config: config,
	}, nil
}

// PrepareBatch starts a bulk insert for the given INSERT statement.
func (c *ClickHouseConn) PrepareBatch(ctx context.Context, query string) (driver.Batch, error) {
	return c.conn.PrepareBatch(ctx, query)
}

// Query executes a query that returns rows.
func (c *ClickHouseConn) Query(ctx context.Context, query string, args ...any) (driver.Rows, error) {
	return c.conn.Query(ctx, query, args...)
}

// QueryRow executes a query expected to return at most one row.
func (c *ClickHouseConn) QueryRow(ctx context.Context, query string, args ...any) driver.Row {
	return c.conn.QueryRow(ctx, query, args...)
}

// Exec executes a statement without returning rows.
func (c *ClickHouseConn) Exec(ctx context.Context, query string, args ...any) error {
	return c.conn.Exec(ctx, query, args...)
}

// HealthCheck verifies the columnar store is reachable.
func (c *ClickHouseConn) HealthCheck(ctx context.Context) error {
	if err := c.conn.Ping(ctx); err != nil {
		return fmt.Errorf("clickhouse health check failed: %w", err)
	}

	return nil
}

// Close closes the connection pool. Safe to call multiple times.
func (c *ClickHouseConn) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}

	return nil
}
