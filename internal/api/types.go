package api

import "github.com/errly-io/errly/internal/storage"

type (
	// IngestRequest is the POST /api/v1/ingest payload.
	IngestRequest struct {
		Events []IngestEvent `json:"events"`
	}

	// IngestEvent is one submitted error event. This is separate from the
	// domain model (ingestion.ErrorEvent) to decouple the API contract from
	// internal types: the wire timestamp is a string with several accepted
	// layouts, and server-assigned fields are absent.
	IngestEvent struct {
		Message        string            `json:"message"`
		Environment    string            `json:"environment"`
		Level          string            `json:"level,omitempty"`
		Timestamp      string            `json:"timestamp,omitempty"`
		StackTrace     string            `json:"stack_trace,omitempty"`     //nolint:tagliatelle // wire contract
		ReleaseVersion string            `json:"release_version,omitempty"` //nolint:tagliatelle // wire contract
		UserID         string            `json:"user_id,omitempty"`         //nolint:tagliatelle // wire contract
		UserEmail      string            `json:"user_email,omitempty"`      //nolint:tagliatelle // wire contract
		UserIP         string            `json:"user_ip,omitempty"`         //nolint:tagliatelle // wire contract
		Browser        string            `json:"browser,omitempty"`
		OS             string            `json:"os,omitempty"`
		URL            string            `json:"url,omitempty"`
		Tags           map[string]string `json:"tags,omitempty"`
		Extra          map[string]any    `json:"extra,omitempty"`
	}

	// IngestResponse is the 202 body: how many events were accepted.
	IngestResponse struct {
		Accepted int `json:"accepted"`
	}

	// AuthValidateResponse echoes the authenticated identity. The key is the
	// stored APIKey, whose hash field never serializes; the raw token is not
	// available at this point at all.
	AuthValidateResponse struct {
		Project *storage.Project `json:"project"`
		Key     *storage.APIKey  `json:"key"`
	}

	// IngestInfo documents the ingest contract for client developers.
	IngestInfo struct {
		MaxBatchSize     int      `json:"maxBatchSize"`
		MaxBodyBytes     int64    `json:"maxBodyBytes"`
		RequiredFields   []string `json:"requiredFields"`
		AcceptedLevels   []string `json:"acceptedLevels"`
		TimestampFormats []string `json:"timestampFormats"`
	}
)
