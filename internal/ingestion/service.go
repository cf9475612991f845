package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/errly-io/errly/internal/aliasing"
)

// Ingestion pipeline errors surfaced to the HTTP layer.
var (
	// ErrEventInsertFailed wraps a failed event batch write. The whole batch
	// is rejected; the client re-sends and the aggregation merge tolerates
	// the resulting duplicates.
	ErrEventInsertFailed = errors.New("event batch insert failed")
	// ErrIssueUpsertFailed wraps a failed issue lookup, insert or update.
	ErrIssueUpsertFailed = errors.New("issue upsert failed")
)

// storeCallTimeout bounds each event-store and issue-store round-trip.
const storeCallTimeout = 30 * time.Second

// Service orchestrates the ingest pipeline: normalize, fingerprint, persist
// events, then upsert the aggregated issue per fingerprint group. Safe for
// concurrent use; all cross-request coordination is delegated to the stores.
type Service struct {
	events   EventStore
	issues   IssueStore
	resolver *aliasing.Resolver
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates an ingest service. The resolver may be nil, which
// disables environment aliasing.
func NewService(events EventStore, issues IssueStore, resolver *aliasing.Resolver, logger *slog.Logger) *Service {
	return &Service{
		events:   events,
		issues:   issues,
		resolver: resolver,
		logger:   logger,
		now:      time.Now,
	}
}

// fingerprintGroup collects the events of one batch that share a fingerprint,
// in batch order. The first event supplies message, level and tags when a new
// issue is created.
type fingerprintGroup struct {
	fingerprint string
	events      []*ErrorEvent
}

// Process ingests a batch of events for a project.
//
// Events are normalized, fingerprinted and written to the event store before
// any issue work happens, so an aggregate can never reference an unrecorded
// event. A crash between the two phases leaves orphan events; the aggregate
// heals on the next batch for the same fingerprint because merges are
// monotone. Concurrent batches for the same (project, fingerprint) race on
// the issue row, and the latest updated_at generation wins; counters sum,
// environments union and the seen-window only widens, so the final aggregate
// is correct regardless of interleaving.
func (s *Service) Process(ctx context.Context, projectID string, events []*ErrorEvent) error {
	if len(events) == 0 {
		return ErrEmptyBatch
	}

	now := s.now().UTC()

	for _, event := range events {
		s.normalize(event, projectID, now)
		event.Fingerprint = Fingerprint(event)
	}

	groups := groupByFingerprint(events)

	insertCtx, cancel := context.WithTimeout(ctx, storeCallTimeout)
	defer cancel()

	if err := s.events.InsertBatch(insertCtx, events); err != nil {
		s.logger.Error("event batch insert failed",
			slog.String("project_id", projectID),
			slog.Int("batch_size", len(events)),
			slog.String("error", err.Error()),
		)

		return fmt.Errorf("%w: %w", ErrEventInsertFailed, err)
	}

	for _, group := range groups {
		if err := s.upsertIssue(ctx, projectID, group, now); err != nil {
			return err
		}
	}

	s.logger.Debug("batch ingested",
		slog.String("project_id", projectID),
		slog.Int("events", len(events)),
		slog.Int("fingerprints", len(groups)),
	)

	return nil
}

// normalize fills server-assigned fields in place. The project ID is forced
// to the authenticated project so a client cannot write across tenants.
func (s *Service) normalize(event *ErrorEvent, projectID string, now time.Time) {
	event.ID = uuid.NewString()
	event.ProjectID = projectID
	event.CreatedAt = now

	if event.Timestamp.IsZero() {
		event.Timestamp = now
	}

	if !event.Level.Valid() {
		event.Level = LevelError
	}

	if event.Tags == nil {
		event.Tags = map[string]string{}
	}

	if event.Extra == nil {
		event.Extra = map[string]any{}
	}

	if s.resolver != nil {
		event.Environment = s.resolver.Resolve(event.Environment)
	}
}

// groupByFingerprint partitions a batch into per-fingerprint groups,
// preserving batch order within and across groups.
func groupByFingerprint(events []*ErrorEvent) []*fingerprintGroup {
	index := make(map[string]*fingerprintGroup, len(events))
	groups := make([]*fingerprintGroup, 0, len(events))

	for _, event := range events {
		group, ok := index[event.Fingerprint]
		if !ok {
			group = &fingerprintGroup{fingerprint: event.Fingerprint}
			index[event.Fingerprint] = group
			groups = append(groups, group)
		}

		group.events = append(group.events, event)
	}

	return groups
}

// upsertIssue creates or monotonically merges the issue for one fingerprint
// group.
func (s *Service) upsertIssue(ctx context.Context, projectID string, group *fingerprintGroup, now time.Time) error {
	lookupCtx, cancel := context.WithTimeout(ctx, storeCallTimeout)
	defer cancel()

	existing, err := s.issues.Lookup(lookupCtx, projectID, group.fingerprint)

	switch {
	case err == nil:
		merged := mergeIssue(existing, group, now)

		if err := s.updateIssue(ctx, merged); err != nil {
			return err
		}
	case errors.Is(err, ErrIssueNotFound):
		issue := newIssue(projectID, group, now)

		if err := s.insertIssue(ctx, issue); err != nil {
			return err
		}
	default:
		s.logger.Error("issue lookup failed",
			slog.String("project_id", projectID),
			slog.String("fingerprint", group.fingerprint),
			slog.String("error", err.Error()),
		)

		return fmt.Errorf("%w: lookup: %w", ErrIssueUpsertFailed, err)
	}

	return nil
}

func (s *Service) insertIssue(ctx context.Context, issue *Issue) error {
	insertCtx, cancel := context.WithTimeout(ctx, storeCallTimeout)
	defer cancel()

	if err := s.issues.Insert(insertCtx, issue); err != nil {
		s.logger.Error("issue insert failed",
			slog.String("project_id", issue.ProjectID),
			slog.String("fingerprint", issue.Fingerprint),
			slog.String("error", err.Error()),
		)

		return fmt.Errorf("%w: insert: %w", ErrIssueUpsertFailed, err)
	}

	return nil
}

func (s *Service) updateIssue(ctx context.Context, issue *Issue) error {
	updateCtx, cancel := context.WithTimeout(ctx, storeCallTimeout)
	defer cancel()

	if err := s.issues.Update(updateCtx, issue); err != nil {
		s.logger.Error("issue update failed",
			slog.String("project_id", issue.ProjectID),
			slog.String("fingerprint", issue.Fingerprint),
			slog.String("error", err.Error()),
		)

		return fmt.Errorf("%w: update: %w", ErrIssueUpsertFailed, err)
	}

	return nil
}

// newIssue builds the initial aggregate for a fingerprint from its first
// batch. Message, level and tags come from the group's first event.
func newIssue(projectID string, group *fingerprintGroup, now time.Time) *Issue {
	first := group.events[0]

	issue := &Issue{
		ID:          uuid.NewString(),
		ProjectID:   projectID,
		Fingerprint: group.fingerprint,
		Message:     first.Message,
		Level:       first.Level,
		Status:      StatusUnresolved,
		FirstSeen:   minTimestamp(group.events),
		LastSeen:    maxTimestamp(group.events),
		EventCount:  uint64(len(group.events)),
		UserCount:   distinctUserCount(group.events),
		Tags:        first.Tags,
		UpdatedAt:   now,
	}

	for _, event := range group.events {
		issue.AddEnvironment(event.Environment)
	}

	return issue
}

// mergeIssue folds a fingerprint group into an existing aggregate. Every
// output is monotone over the input (sums, unions, min/max), so concurrent
// merges commute and the last-writer-wins store converges to a correct row.
//
// UserCount adds the batch's distinct users to the stored total: a user seen
// in two batches is counted twice. An exact distinct count would need a
// sketch on the issue row or a query-side projection over events.
func mergeIssue(existing *Issue, group *fingerprintGroup, now time.Time) *Issue {
	merged := *existing

	if earliest := minTimestamp(group.events); earliest.Before(merged.FirstSeen) {
		merged.FirstSeen = earliest
	}

	if latest := maxTimestamp(group.events); latest.After(merged.LastSeen) {
		merged.LastSeen = latest
	}

	merged.EventCount += uint64(len(group.events))
	merged.UserCount += distinctUserCount(group.events)
	merged.UpdatedAt = now

	merged.Environments = append([]string(nil), existing.Environments...)
	for _, event := range group.events {
		merged.AddEnvironment(event.Environment)
	}

	return &merged
}

func minTimestamp(events []*ErrorEvent) time.Time {
	earliest := events[0].Timestamp
	for _, event := range events[1:] {
		if event.Timestamp.Before(earliest) {
			earliest = event.Timestamp
		}
	}

	return earliest
}

func maxTimestamp(events []*ErrorEvent) time.Time {
	latest := events[0].Timestamp
	for _, event := range events[1:] {
		if event.Timestamp.After(latest) {
			latest = event.Timestamp
		}
	}

	return latest
}

// distinctUserCount counts distinct non-empty user IDs within one batch.
func distinctUserCount(events []*ErrorEvent) uint64 {
	users := make(map[string]struct{}, len(events))

	for _, event := range events {
		if event.UserID != "" {
			users[event.UserID] = struct{}{}
		}
	}

	return uint64(len(users))
}
