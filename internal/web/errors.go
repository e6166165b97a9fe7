package web

// errors.go provides unified error response handling for the web layer.
//
// Handlers call respondError with the raw error; the technical detail is
// logged server-side with the request ID while the client receives the
// sanitized user message produced by core.MapError.

import (
	"encoding/json"
	"net/http"

	"github.com/GTFB/forlifely-sub001/internal/core"
	"github.com/GTFB/forlifely-sub001/internal/logging"
)

// ErrorResponse is the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// respondError logs the technical error and writes the user-facing form.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	userMsg := core.MapError(err)

	logging.FromContext(r.Context()).Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", userMsg.Code,
	)

	respondErrorJSON(w, userMsg, statusCode)
}

// respondErrorJSON writes a JSON error response.
func respondErrorJSON(w http.ResponseWriter, msg core.UserMessage, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

// statusForKind maps an engine error kind to an HTTP status.
func statusForKind(err error) int {
	switch core.KindOf(err) {
	case core.KindValidation:
		return http.StatusBadRequest
	case core.KindCommit:
		return http.StatusConflict
	case core.KindSchema:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
