package ingestion

import (
	"context"
	"errors"
	"time"
)

// Store errors shared by all EventStore and IssueStore implementations.
var (
	// ErrIssueNotFound is returned by IssueStore.Lookup when no issue matches
	// the (project, fingerprint) pair.
	ErrIssueNotFound = errors.New("issue not found")
	// ErrEmptyBatch is returned when InsertBatch is called with no events.
	ErrEmptyBatch = errors.New("event batch cannot be empty")
)

type (
	// EventFilter narrows an event scan. ProjectID is required; the rest are
	// optional and combine conjunctively.
	EventFilter struct {
		ProjectID   string
		Fingerprint string
		Environment string
		Level       Level
		From        time.Time
		To          time.Time
	}

	// Page is a limit/offset pair for paged scans.
	Page struct {
		Limit  int
		Offset int
	}

	// TimeBucket is one bucket of a per-issue time series.
	TimeBucket struct {
		Start time.Time
		Count uint64
	}

	// EventStore is the append-only writer and reader for raw error events.
	// InsertBatch is the throughput-critical path: implementations must issue
	// a single bulk write per call and never retry internally; the caller
	// owns retry semantics.
	EventStore interface {
		// InsertBatch appends a batch of events. Atomic at the batch level:
		// either all events are accepted or the call fails.
		InsertBatch(ctx context.Context, events []*ErrorEvent) error
		// QueryEvents returns events matching the filter, newest first.
		QueryEvents(ctx context.Context, filter EventFilter, page Page) ([]*ErrorEvent, error)
		// TimeSeries returns bucketed event counts for one fingerprint.
		TimeSeries(
			ctx context.Context,
			projectID, fingerprint string,
			from, to time.Time,
			bucket time.Duration,
		) ([]TimeBucket, error)
		// HealthCheck verifies the backing store is reachable.
		HealthCheck(ctx context.Context) error
	}

	// IssueStore holds the aggregated issue per (project, fingerprint).
	// The backing engine resolves concurrent generations by latest updated_at,
	// so writers must formulate updates as monotone merges.
	IssueStore interface {
		// Lookup returns the issue for (projectID, fingerprint) or
		// ErrIssueNotFound.
		Lookup(ctx context.Context, projectID, fingerprint string) (*Issue, error)
		// Insert creates a new issue aggregate.
		Insert(ctx context.Context, issue *Issue) error
		// Update replaces the issue aggregate; the newest updated_at wins
		// after background compaction.
		Update(ctx context.Context, issue *Issue) error
		// SetStatus transitions an issue's triage state. Admin query path
		// only; the ingest core never calls it.
		SetStatus(ctx context.Context, projectID, issueID string, status IssueStatus) error
		// HealthCheck verifies the backing store is reachable.
		HealthCheck(ctx context.Context) error
	}
)
