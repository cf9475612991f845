// Package ingestion provides the Errly error-event domain model and the
// ingestion pipeline that turns client batches into persisted events and
// aggregated issues.
package ingestion

import (
	"errors"
	"fmt"
	"time"
)

// Validation errors for incoming events.
var (
	// ErrEventNil is returned when a nil event is provided.
	ErrEventNil = errors.New("event cannot be nil")
	// ErrEmptyMessage is returned when an event has no message.
	ErrEmptyMessage = errors.New("event message cannot be empty")
	// ErrEmptyEnvironment is returned when an event has no environment.
	ErrEmptyEnvironment = errors.New("event environment cannot be empty")
	// ErrEmptyProjectID is returned when an event carries no project ID.
	ErrEmptyProjectID = errors.New("event project ID cannot be empty")
)

// Level is the severity of an error event.
type Level string

// Severity levels an event may carry.
const (
	LevelError   Level = "error"
	LevelWarning Level = "warning"
	LevelInfo    Level = "info"
	LevelDebug   Level = "debug"
)

// Valid reports whether l is one of the enumerated levels.
func (l Level) Valid() bool {
	switch l {
	case LevelError, LevelWarning, LevelInfo, LevelDebug:
		return true
	default:
		return false
	}
}

// ParseLevel maps a client-supplied level string to a Level.
// Unknown or empty values normalize to LevelError so a misbehaving SDK
// never drops an event on severity alone.
func ParseLevel(s string) Level {
	level := Level(s)
	if level.Valid() {
		return level
	}

	return LevelError
}

// IssueStatus is the triage state of an issue.
type IssueStatus string

// Issue triage states. New issues always start unresolved; the ingest path
// never changes status, only the admin query path does.
const (
	StatusUnresolved IssueStatus = "unresolved"
	StatusResolved   IssueStatus = "resolved"
	StatusIgnored    IssueStatus = "ignored"
)

// Valid reports whether s is one of the enumerated statuses.
func (s IssueStatus) Valid() bool {
	switch s {
	case StatusUnresolved, StatusResolved, StatusIgnored:
		return true
	default:
		return false
	}
}

type (
	// ErrorEvent is a single error occurrence reported by a client SDK.
	// Events are immutable after insertion; the columnar store enforces
	// retention, not the application.
	ErrorEvent struct {
		ID             string
		ProjectID      string
		Timestamp      time.Time
		Message        string
		StackTrace     string
		Environment    string
		ReleaseVersion string
		UserID         string
		UserEmail      string
		UserIP         string
		Browser        string
		OS             string
		URL            string
		Tags           map[string]string
		Extra          map[string]any
		Fingerprint    string
		Level          Level
		CreatedAt      time.Time
	}

	// Issue is the aggregate of all events sharing a fingerprint within a
	// project. Message, level and tags come from the first observed event;
	// counters and the environment set grow monotonically across merges.
	Issue struct {
		ID           string
		ProjectID    string
		Fingerprint  string
		Message      string
		Level        Level
		Status       IssueStatus
		FirstSeen    time.Time
		LastSeen     time.Time
		EventCount   uint64
		UserCount    uint64
		Environments []string
		Tags         map[string]string
		UpdatedAt    time.Time
	}
)

// Validate checks the required fields of an event before ingestion.
func (e *ErrorEvent) Validate() error {
	if e == nil {
		return ErrEventNil
	}

	if e.ProjectID == "" {
		return ErrEmptyProjectID
	}

	if e.Message == "" {
		return ErrEmptyMessage
	}

	if e.Environment == "" {
		return ErrEmptyEnvironment
	}

	return nil
}

// HasEnvironment reports whether env is already in the issue's environment set.
func (i *Issue) HasEnvironment(env string) bool {
	for _, e := range i.Environments {
		if e == env {
			return true
		}
	}

	return false
}

// AddEnvironment adds env to the issue's environment set if not present.
// Empty names are ignored.
func (i *Issue) AddEnvironment(env string) {
	if env == "" || i.HasEnvironment(env) {
		return
	}

	i.Environments = append(i.Environments, env)
}

// Validate checks the structural invariants of an issue before storage.
func (i *Issue) Validate() error {
	if i.ID == "" {
		return errors.New("issue id cannot be empty")
	}

	if i.ProjectID == "" {
		return errors.New("issue project ID cannot be empty")
	}

	if i.Fingerprint == "" {
		return errors.New("issue fingerprint cannot be empty")
	}

	if i.FirstSeen.After(i.LastSeen) {
		return fmt.Errorf("issue first_seen %v is after last_seen %v", i.FirstSeen, i.LastSeen)
	}

	return nil
}
