package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/errly-io/errly/internal/ingestion"
)

// Column list shared by the insert and select paths of issues.
const issueColumns = `id, project_id, fingerprint, message, level, status,
	first_seen, last_seen, event_count, user_count, environments, tags, updated_at`

// ClickHouseIssueStore implements ingestion.IssueStore on a
// ReplacingMergeTree keyed by (project_id, id) with updated_at as the
// version column. Every Update appends a new row generation; background
// compaction keeps only the newest. Reads therefore select the generation
// with the highest updated_at themselves instead of relying on FINAL, so a
// lookup right after an update already sees the new row.
type ClickHouseIssueStore struct {
	conn   *ClickHouseConn
	logger *slog.Logger
}

// NewClickHouseIssueStore creates an issue store over an existing connection
// pool.
func NewClickHouseIssueStore(conn *ClickHouseConn, logger *slog.Logger) *ClickHouseIssueStore {
	return &ClickHouseIssueStore{
		conn:   conn,
		logger: logger,
	}
}

// Lookup returns the newest generation of the issue for
// (projectID, fingerprint), or ingestion.ErrIssueNotFound.
func (s *ClickHouseIssueStore) Lookup(ctx context.Context, projectID, fingerprint string) (*ingestion.Issue, error) {
	query := "SELECT " + issueColumns + ` FROM issues
		WHERE project_id = ? AND fingerprint = ?
		ORDER BY updated_at DESC
		LIMIT 1`

	rows, err := s.conn.Query(ctx, query, projectID, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("failed to query issue: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to read issue row: %w", err)
		}

		return nil, ingestion.ErrIssueNotFound
	}

	return scanIssue(rows)
}

// Insert creates a new issue aggregate.
func (s *ClickHouseIssueStore) Insert(ctx context.Context, issue *ingestion.Issue) error {
	if err := issue.Validate(); err != nil {
		return fmt.Errorf("invalid issue: %w", err)
	}

	if err := s.appendGeneration(ctx, issue); err != nil {
		return err
	}

	s.logger.Debug("issue created",
		slog.String("issue_id", issue.ID),
		slog.String("project_id", issue.ProjectID),
		slog.String("fingerprint", issue.Fingerprint),
	)

	return nil
}

// Update replaces the issue aggregate by appending a new generation. The
// caller must have bumped updated_at; the replacing merge keeps the highest.
func (s *ClickHouseIssueStore) Update(ctx context.Context, issue *ingestion.Issue) error {
	if err := issue.Validate(); err != nil {
		return fmt.Errorf("invalid issue: %w", err)
	}

	return s.appendGeneration(ctx, issue)
}

// SetStatus transitions an issue's triage state. Admin query path only.
func (s *ClickHouseIssueStore) SetStatus(
	ctx context.Context,
	projectID, issueID string,
	status ingestion.IssueStatus,
) error {
	if !status.Valid() {
		return fmt.Errorf("invalid issue status %q", status)
	}

	query := "SELECT " + issueColumns + ` FROM issues
		WHERE project_id = ? AND id = ?
		ORDER BY updated_at DESC
		LIMIT 1`

	rows, err := s.conn.Query(ctx, query, projectID, issueID)
	if err != nil {
		return fmt.Errorf("failed to query issue: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return fmt.Errorf("failed to read issue row: %w", err)
		}

		return ingestion.ErrIssueNotFound
	}

	issue, err := scanIssue(rows)
	if err != nil {
		return err
	}

	issue.Status = status
	issue.UpdatedAt = time.Now().UTC()

	return s.appendGeneration(ctx, issue)
}

// HealthCheck verifies the columnar store is reachable.
func (s *ClickHouseIssueStore) HealthCheck(ctx context.Context) error {
	return s.conn.HealthCheck(ctx)
}

// appendGeneration writes one issue row generation. Insert and Update share
// this path: a ReplacingMergeTree has no in-place update, only newer rows.
func (s *ClickHouseIssueStore) appendGeneration(ctx context.Context, issue *ingestion.Issue) error {
	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO issues ("+issueColumns+")")
	if err != nil {
		return fmt.Errorf("failed to prepare issue write: %w", err)
	}

	environments := issue.Environments
	if environments == nil {
		environments = []string{}
	}

	tags := issue.Tags
	if tags == nil {
		tags = map[string]string{}
	}

	err = batch.Append(
		issue.ID,
		issue.ProjectID,
		issue.Fingerprint,
		issue.Message,
		string(issue.Level),
		string(issue.Status),
		issue.FirstSeen,
		issue.LastSeen,
		issue.EventCount,
		issue.UserCount,
		environments,
		tags,
		issue.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append issue row: %w", err)
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to write issue: %w", err)
	}

	return nil
}

func scanIssue(row eventScanner) (*ingestion.Issue, error) {
	var (
		issue  ingestion.Issue
		level  string
		status string
	)

	err := row.Scan(
		&issue.ID,
		&issue.ProjectID,
		&issue.Fingerprint,
		&issue.Message,
		&level,
		&status,
		&issue.FirstSeen,
		&issue.LastSeen,
		&issue.EventCount,
		&issue.UserCount,
		&issue.Environments,
		&issue.Tags,
		&issue.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}

		return nil, fmt.Errorf("failed to scan issue: %w", err)
	}

	issue.Level = ingestion.Level(level)
	issue.Status = ingestion.IssueStatus(status)

	return &issue, nil
}
