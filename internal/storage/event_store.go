package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/errly-io/errly/internal/ingestion"
)

// Column list shared by the insert and select paths of error_events.
const eventColumns = `id, project_id, timestamp, message, stack_trace, environment,
	release_version, user_id, user_email, user_ip, browser, os, url,
	tags, extra, fingerprint, level, created_at`

const (
	defaultQueryLimit = 100
	maxQueryLimit     = 1000
)

// ClickHouseEventStore implements ingestion.EventStore on the columnar
// store. The backing table is a MergeTree partitioned by month of the event
// timestamp and ordered by (project_id, fingerprint, timestamp), which makes
// per-issue scans contiguous; a 90 day TTL enforces retention.
type ClickHouseEventStore struct {
	conn   *ClickHouseConn
	logger *slog.Logger
}

// NewClickHouseEventStore creates an event store over an existing connection
// pool.
func NewClickHouseEventStore(conn *ClickHouseConn, logger *slog.Logger) *ClickHouseEventStore {
	return &ClickHouseEventStore{
		conn:   conn,
		logger: logger,
	}
}

// InsertBatch appends a batch of events with a single bulk write.
//
// One PrepareBatch, one Append per event, one Send: no per-event round-trips.
// The store never retries; a failed batch is the caller's to re-send, and
// replayed events are tolerated by the aggregation merge.
func (s *ClickHouseEventStore) InsertBatch(ctx context.Context, events []*ingestion.ErrorEvent) error {
	if len(events) == 0 {
		return ingestion.ErrEmptyBatch
	}

	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO error_events ("+eventColumns+")")
	if err != nil {
		return fmt.Errorf("failed to prepare event batch: %w", err)
	}

	for _, event := range events {
		extraJSON, err := encodeExtra(event.Extra)
		if err != nil {
			return fmt.Errorf("failed to encode event extra: %w", err)
		}

		err = batch.Append(
			event.ID,
			event.ProjectID,
			event.Timestamp,
			event.Message,
			event.StackTrace,
			event.Environment,
			event.ReleaseVersion,
			event.UserID,
			event.UserEmail,
			event.UserIP,
			event.Browser,
			event.OS,
			event.URL,
			event.Tags,
			extraJSON,
			event.Fingerprint,
			string(event.Level),
			event.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to append event %s to batch: %w", event.ID, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send event batch: %w", err)
	}

	s.logger.Debug("event batch inserted",
		slog.String("project_id", events[0].ProjectID),
		slog.Int("batch_size", len(events)),
	)

	return nil
}

// QueryEvents returns events matching the filter, newest first.
// Read contract for the external query side.
func (s *ClickHouseEventStore) QueryEvents(
	ctx context.Context,
	filter ingestion.EventFilter,
	page ingestion.Page,
) ([]*ingestion.ErrorEvent, error) {
	where, args := buildEventFilter(filter)

	limit := page.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}

	if limit > maxQueryLimit {
		limit = maxQueryLimit
	}

	offset := page.Offset
	if offset < 0 {
		offset = 0
	}

	query := "SELECT " + eventColumns + " FROM error_events WHERE " + where +
		" ORDER BY timestamp DESC LIMIT " + strconv.Itoa(limit) + " OFFSET " + strconv.Itoa(offset)

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	events := make([]*ingestion.ErrorEvent, 0, limit)

	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}

		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}

	return events, nil
}

// TimeSeries returns bucketed event counts for a single fingerprint.
func (s *ClickHouseEventStore) TimeSeries(
	ctx context.Context,
	projectID, fingerprint string,
	from, to time.Time,
	bucket time.Duration,
) ([]ingestion.TimeBucket, error) {
	if bucket < time.Second {
		bucket = time.Second
	}

	query := fmt.Sprintf(`
		SELECT toStartOfInterval(timestamp, INTERVAL %d SECOND) AS bucket, count() AS events
		FROM error_events
		WHERE project_id = ? AND fingerprint = ? AND timestamp >= ? AND timestamp < ?
		GROUP BY bucket
		ORDER BY bucket
	`, int64(bucket.Seconds()))

	rows, err := s.conn.Query(ctx, query, projectID, fingerprint, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query time series: %w", err)
	}
	defer rows.Close()

	buckets := make([]ingestion.TimeBucket, 0)

	for rows.Next() {
		var point ingestion.TimeBucket

		if err := rows.Scan(&point.Start, &point.Count); err != nil {
			return nil, fmt.Errorf("failed to scan time bucket: %w", err)
		}

		buckets = append(buckets, point)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate time series: %w", err)
	}

	return buckets, nil
}

// HealthCheck verifies the columnar store is reachable.
func (s *ClickHouseEventStore) HealthCheck(ctx context.Context) error {
	return s.conn.HealthCheck(ctx)
}

// buildEventFilter renders the WHERE clause for an event scan.
// ProjectID always participates so a scan can never cross tenants.
func buildEventFilter(filter ingestion.EventFilter) (string, []any) {
	conditions := []string{"project_id = ?"}
	args := []any{filter.ProjectID}

	if filter.Fingerprint != "" {
		conditions = append(conditions, "fingerprint = ?")
		args = append(args, filter.Fingerprint)
	}

	if filter.Environment != "" {
		conditions = append(conditions, "environment = ?")
		args = append(args, filter.Environment)
	}

	if filter.Level != "" {
		conditions = append(conditions, "level = ?")
		args = append(args, string(filter.Level))
	}

	if !filter.From.IsZero() {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, filter.From)
	}

	if !filter.To.IsZero() {
		conditions = append(conditions, "timestamp < ?")
		args = append(args, filter.To)
	}

	return strings.Join(conditions, " AND "), args
}

// eventScanner is the subset of driver.Rows scanEvent needs.
type eventScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row eventScanner) (*ingestion.ErrorEvent, error) {
	var (
		event     ingestion.ErrorEvent
		level     string
		extraJSON string
	)

	err := row.Scan(
		&event.ID,
		&event.ProjectID,
		&event.Timestamp,
		&event.Message,
		&event.StackTrace,
		&event.Environment,
		&event.ReleaseVersion,
		&event.UserID,
		&event.UserEmail,
		&event.UserIP,
		&event.Browser,
		&event.OS,
		&event.URL,
		&event.Tags,
		&extraJSON,
		&event.Fingerprint,
		&level,
		&event.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan event: %w", err)
	}

	event.Level = ingestion.Level(level)

	if extraJSON != "" {
		if err := json.Unmarshal([]byte(extraJSON), &event.Extra); err != nil {
			return nil, fmt.Errorf("failed to decode event extra: %w", err)
		}
	}

	return &event, nil
}

// encodeExtra serializes the free-form extra mapping to a JSON string for the
// columnar store.
func encodeExtra(extra map[string]any) (string, error) {
	if len(extra) == 0 {
		return "{}", nil
	}

	data, err := json.Marshal(extra)
	if err != nil {
		return "", err
	}

	return string(data), nil
}
