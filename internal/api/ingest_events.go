package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/errly-io/errly/internal/api/middleware"
	"github.com/errly-io/errly/internal/ingestion"
)

const maxBatchSize = 100

// timestampLayouts are the accepted event timestamp formats, tried in order.
// Layouts without a zone are interpreted as UTC.
var timestampLayouts = []string{ //nolint:gochecknoglobals
	time.RFC3339,
	"2006-01-02T15:04:05.999999999Z07:00", // RFC3339 with fractional seconds
	"2006-01-02T15:04:05",                 // ISO-8601 without timezone
	"2006-01-02T15:04:05.000000",          // ISO-8601 with microseconds
}

// handleIngestEvents accepts a batch of error events for the authenticated
// project.
//
// The handler validates structure and fields, converts wire events to domain
// events, and hands the batch to the ingestion service. 202 means the events
// are persisted; aggregation may still be catching up.
func (s *Server) handleIngestEvents(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := middleware.GetAuthContext(r.Context())
	if !ok {
		// The auth gate guarantees this for scoped routes; reaching here
		// means the route was registered without it.
		WriteErrorResponse(w, r, s.logger, InternalServerError("Authentication context missing"))

		return
	}

	if !hasJSONContentType(r.Header.Get("Content-Type")) {
		WriteErrorResponse(w, r, s.logger, BadRequest("Content-Type must be application/json"))

		return
	}

	var req IngestRequest

	body := http.MaxBytesReader(w, r.Body, s.config.MaxRequestSize)

	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			WriteErrorResponse(w, r, s.logger,
				BadRequest(fmt.Sprintf("Request body exceeds %d bytes", maxBytesErr.Limit)))

			return
		}

		WriteErrorResponse(w, r, s.logger, BadRequest("Invalid JSON payload"))

		return
	}

	if len(req.Events) == 0 {
		WriteErrorResponse(w, r, s.logger, BadRequest("Batch must contain at least one event"))

		return
	}

	if len(req.Events) > maxBatchSize {
		WriteErrorResponse(w, r, s.logger,
			BadRequest(fmt.Sprintf("Batch exceeds %d events", maxBatchSize)))

		return
	}

	events := make([]*ingestion.ErrorEvent, 0, len(req.Events))

	for i, wireEvent := range req.Events {
		event, apiErr := convertIngestEvent(i, wireEvent)
		if apiErr != nil {
			WriteErrorResponse(w, r, s.logger, apiErr)

			return
		}

		events = append(events, event)
	}

	projectID := authCtx.Project.ID

	if err := s.deps.Ingest.Process(r.Context(), projectID, events); err != nil {
		s.logger.Error("ingest batch failed",
			slog.String("project_id", projectID),
			slog.Int("events", len(events)),
			slog.String("request_id", middleware.GetRequestID(r.Context())),
			slog.String("error", err.Error()),
		)
		s.deps.Metrics.RecordBatch(projectID, "failed", 0)

		WriteErrorResponse(w, r, s.logger, IngestFailed())

		return
	}

	s.deps.Metrics.RecordBatch(projectID, "accepted", len(events))

	writeJSON(w, r, s.logger, http.StatusAccepted, IngestResponse{Accepted: len(events)})
}

// convertIngestEvent validates one wire event and builds the domain event.
// The index goes into validation messages so clients can locate the bad
// element in their batch.
func convertIngestEvent(index int, wire IngestEvent) (*ingestion.ErrorEvent, *APIError) {
	if wire.Message == "" {
		return nil, ValidationError(fmt.Sprintf("events[%d]: message is required", index))
	}

	if wire.Environment == "" {
		return nil, ValidationError(fmt.Sprintf("events[%d]: environment is required", index))
	}

	var timestamp time.Time

	if wire.Timestamp != "" {
		parsed, err := parseTimestamp(wire.Timestamp)
		if err != nil {
			return nil, InvalidTimestamp(
				fmt.Sprintf("events[%d]: unparseable timestamp %q", index, wire.Timestamp))
		}

		timestamp = parsed
	}

	return &ingestion.ErrorEvent{
		Message:        wire.Message,
		Environment:    wire.Environment,
		Level:          ingestion.ParseLevel(wire.Level),
		Timestamp:      timestamp,
		StackTrace:     wire.StackTrace,
		ReleaseVersion: wire.ReleaseVersion,
		UserID:         wire.UserID,
		UserEmail:      wire.UserEmail,
		UserIP:         wire.UserIP,
		Browser:        wire.Browser,
		OS:             wire.OS,
		URL:            wire.URL,
		Tags:           wire.Tags,
		Extra:          wire.Extra,
	}, nil
}

// parseTimestamp tries the accepted layouts in order. Zoneless layouts parse
// in UTC.
func parseTimestamp(value string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if parsed, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return parsed, nil
		}
	}

	return time.Time{}, fmt.Errorf("timestamp %q matches no accepted layout", value)
}
