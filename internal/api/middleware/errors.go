package middleware

import (
	"encoding/json"
	"net/http"
)

// errorBody is the Errly error envelope: a human-readable message plus a
// stable symbolic code clients can branch on. Rate-limit denials additionally
// carry the limit, the window in seconds, and the window reset time.
//
// Defined here as well as in the api package so middleware does not import
// api (which would cycle).
type errorBody struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Limit     int    `json:"limit,omitempty"`
	Window    int    `json:"window,omitempty"`
	ResetTime int64  `json:"reset_time,omitempty"` //nolint:tagliatelle // wire contract
}

// writeError writes the Errly error envelope with the given status.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeErrorBody(w, status, &errorBody{Error: message, Code: code})
}

func writeErrorBody(w http.ResponseWriter, status int, body *errorBody) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		// Headers are already sent; nothing useful left to do.
		_ = err
	}
}
