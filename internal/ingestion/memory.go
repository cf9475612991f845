package ingestion

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryEventStore is a thread-safe in-memory EventStore.
// Used for development without ClickHouse and as the fake in tests.
// FailInserts forces InsertBatch to fail for failure-injection tests.
type MemoryEventStore struct {
	mutex       sync.RWMutex
	events      []*ErrorEvent
	FailInserts error
}

// NewMemoryEventStore creates an empty in-memory event store.
func NewMemoryEventStore() *MemoryEventStore {
	return &MemoryEventStore{}
}

// InsertBatch appends a batch of events. Atomic: when FailInserts is set,
// nothing is stored.
func (s *MemoryEventStore) InsertBatch(_ context.Context, events []*ErrorEvent) error {
	if len(events) == 0 {
		return ErrEmptyBatch
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.FailInserts != nil {
		return s.FailInserts
	}

	for _, event := range events {
		copied := *event
		s.events = append(s.events, &copied)
	}

	return nil
}

// QueryEvents returns events matching the filter, newest first.
func (s *MemoryEventStore) QueryEvents(_ context.Context, filter EventFilter, page Page) ([]*ErrorEvent, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	matched := make([]*ErrorEvent, 0)

	for _, event := range s.events {
		if matchesFilter(event, filter) {
			copied := *event
			matched = append(matched, &copied)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	if page.Offset >= len(matched) {
		return []*ErrorEvent{}, nil
	}

	matched = matched[page.Offset:]

	if page.Limit > 0 && page.Limit < len(matched) {
		matched = matched[:page.Limit]
	}

	return matched, nil
}

// TimeSeries returns bucketed counts for one fingerprint.
func (s *MemoryEventStore) TimeSeries(
	_ context.Context,
	projectID, fingerprint string,
	from, to time.Time,
	bucket time.Duration,
) ([]TimeBucket, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	counts := make(map[time.Time]uint64)

	for _, event := range s.events {
		if event.ProjectID != projectID || event.Fingerprint != fingerprint {
			continue
		}

		if event.Timestamp.Before(from) || !event.Timestamp.Before(to) {
			continue
		}

		counts[event.Timestamp.Truncate(bucket)]++
	}

	buckets := make([]TimeBucket, 0, len(counts))
	for start, count := range counts {
		buckets = append(buckets, TimeBucket{Start: start, Count: count})
	}

	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].Start.Before(buckets[j].Start)
	})

	return buckets, nil
}

// HealthCheck always succeeds for the in-memory store.
func (s *MemoryEventStore) HealthCheck(_ context.Context) error {
	return nil
}

// Len returns the number of stored events.
func (s *MemoryEventStore) Len() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return len(s.events)
}

func matchesFilter(event *ErrorEvent, filter EventFilter) bool {
	if filter.ProjectID != "" && event.ProjectID != filter.ProjectID {
		return false
	}

	if filter.Fingerprint != "" && event.Fingerprint != filter.Fingerprint {
		return false
	}

	if filter.Environment != "" && event.Environment != filter.Environment {
		return false
	}

	if filter.Level != "" && event.Level != filter.Level {
		return false
	}

	if !filter.From.IsZero() && event.Timestamp.Before(filter.From) {
		return false
	}

	if !filter.To.IsZero() && !event.Timestamp.Before(filter.To) {
		return false
	}

	return true
}

// MemoryIssueStore is a thread-safe in-memory IssueStore keyed by
// (project_id, fingerprint). Unlike the columnar store it is immediately
// consistent, which makes uniqueness assertions in tests exact.
// FailLookups/FailWrites force errors for failure-injection tests.
type MemoryIssueStore struct {
	mutex       sync.RWMutex
	byKey       map[string]*Issue
	byID        map[string]*Issue
	FailLookups error
	FailWrites  error
}

// NewMemoryIssueStore creates an empty in-memory issue store.
func NewMemoryIssueStore() *MemoryIssueStore {
	return &MemoryIssueStore{
		byKey: make(map[string]*Issue),
		byID:  make(map[string]*Issue),
	}
}

func issueKey(projectID, fingerprint string) string {
	return projectID + "\x00" + fingerprint
}

// Lookup returns the issue for (projectID, fingerprint) or ErrIssueNotFound.
func (s *MemoryIssueStore) Lookup(_ context.Context, projectID, fingerprint string) (*Issue, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if s.FailLookups != nil {
		return nil, s.FailLookups
	}

	issue, ok := s.byKey[issueKey(projectID, fingerprint)]
	if !ok {
		return nil, ErrIssueNotFound
	}

	copied := *issue

	return &copied, nil
}

// Insert stores a new issue aggregate.
func (s *MemoryIssueStore) Insert(_ context.Context, issue *Issue) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.FailWrites != nil {
		return s.FailWrites
	}

	copied := *issue
	s.byKey[issueKey(issue.ProjectID, issue.Fingerprint)] = &copied
	s.byID[issue.ID] = &copied

	return nil
}

// Update replaces an issue aggregate when the new generation is not older.
// Mirrors the replacing-merge semantics of the columnar store: the highest
// updated_at wins.
func (s *MemoryIssueStore) Update(_ context.Context, issue *Issue) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.FailWrites != nil {
		return s.FailWrites
	}

	key := issueKey(issue.ProjectID, issue.Fingerprint)

	if existing, ok := s.byKey[key]; ok && existing.UpdatedAt.After(issue.UpdatedAt) {
		return nil
	}

	copied := *issue
	s.byKey[key] = &copied
	s.byID[issue.ID] = &copied

	return nil
}

// SetStatus transitions an issue's triage state.
func (s *MemoryIssueStore) SetStatus(_ context.Context, _ string, issueID string, status IssueStatus) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	issue, ok := s.byID[issueID]
	if !ok {
		return ErrIssueNotFound
	}

	issue.Status = status
	issue.UpdatedAt = time.Now().UTC()

	return nil
}

// HealthCheck always succeeds for the in-memory store.
func (s *MemoryIssueStore) HealthCheck(_ context.Context) error {
	return nil
}

// Len returns the number of stored issues.
func (s *MemoryIssueStore) Len() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	return len(s.byKey)
}
