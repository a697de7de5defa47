package web

// errors.go turns failures into JSON error responses.
//
// The technical error is logged with the request ID; the client receives
// the user-facing message from core.MapError.

import (
	"log/slog"
	"net/http"

	"github.com/JonMunkholm/reconcile/internal/core"
	"github.com/go-chi/chi/v5/middleware"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// respondError logs err and writes its user-facing form.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	userMsg := core.MapError(err)

	slog.Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", userMsg.Code,
		"request_id", middleware.GetReqID(r.Context()),
	)

	respondErrorJSON(w, userMsg, statusCode)
}

// respondErrorJSON writes a JSON error response.
func respondErrorJSON(w http.ResponseWriter, msg core.UserMessage, statusCode int) {
	writeJSON(w, statusCode, ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

// statusFor maps a batch outcome to an HTTP status. Row-level failures
// still answer 200; the body carries them.
func statusFor(res *core.BatchResult) int {
	switch res.ErrorType {
	case "":
		return http.StatusOK
	case core.ErrTypeUnknownEntity, core.ErrTypeFileNotFound:
		return http.StatusNotFound
	case core.ErrTypeUnsupportedFormat:
		return http.StatusUnsupportedMediaType
	case core.ErrTypeFileRead, core.ErrTypeMissingColumns, core.ErrTypePeriodMismatch:
		return http.StatusUnprocessableEntity
	case core.ErrTypeInvalidRequest:
		return http.StatusBadRequest
	case core.ErrTypeImportInProgress:
		return http.StatusConflict
	case core.ErrTypeDatabase:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
