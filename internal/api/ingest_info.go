package api

import (
	"net/http"
	"time"
)

// handleIngestInfo documents the ingest contract so client developers can
// discover limits without reading the server source.
func (s *Server) handleIngestInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, s.logger, http.StatusOK, IngestInfo{
		MaxBatchSize:   maxBatchSize,
		MaxBodyBytes:   s.config.MaxRequestSize,
		RequiredFields: []string{"message", "environment"},
		AcceptedLevels: []string{"error", "warning", "info", "debug"},
		TimestampFormats: []string{
			time.RFC3339,
			"2006-01-02T15:04:05.999999999Z07:00",
			"2006-01-02T15:04:05",
			"2006-01-02T15:04:05.000000",
		},
	})
}
