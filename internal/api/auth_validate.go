package api

import (
	"net/http"

	"github.com/errly-io/errly/internal/api/middleware"
)

// handleAuthValidate lets SDKs and CI pipelines verify a key without side
// effects. The auth gate has already done all the work; the handler just
// echoes the resolved identity. Key material beyond the display prefix never
// appears in the response.
func (s *Server) handleAuthValidate(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := middleware.GetAuthContext(r.Context())
	if !ok {
		WriteErrorResponse(w, r, s.logger, InternalServerError("Authentication context missing"))

		return
	}

	writeJSON(w, r, s.logger, http.StatusOK, AuthValidateResponse{
		Project: authCtx.Project,
		Key:     authCtx.APIKey,
	})
}
