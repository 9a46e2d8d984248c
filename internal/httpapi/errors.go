package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"vodpipe/internal/fileutil"
	"vodpipe/internal/logging"
	"vodpipe/internal/services"
)

type errorEnvelope struct {
	Error errorPayload `json:"error"`
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorEnvelope{Error: errorPayload{Code: code, Message: message}})
}

// writeServiceError maps a tagged service error onto a status code. Server
// side failures are logged with their full chain and reported generically.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytes), errors.Is(err, fileutil.ErrLimitExceeded):
		writeError(w, http.StatusRequestEntityTooLarge, "upload_too_large", "upload exceeds the configured size limit")
	case errors.Is(err, services.ErrMissingPayload):
		writeError(w, http.StatusBadRequest, "missing_video", "no video file provided")
	case errors.Is(err, services.ErrUpload), errors.Is(err, services.ErrValidation):
		writeError(w, http.StatusBadRequest, "invalid_upload", err.Error())
	case errors.Is(err, services.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "video not found")
	case errors.Is(err, services.ErrStorage):
		s.logFailure(r, "storage failure", err)
		writeError(w, http.StatusServiceUnavailable, "storage_unavailable", "video storage is unavailable")
	case errors.Is(err, services.ErrTransient):
		s.logFailure(r, "transient failure", err)
		writeError(w, http.StatusServiceUnavailable, "unavailable", "service temporarily unavailable")
	case errors.Is(err, services.ErrPersistence):
		s.logFailure(r, "persistence failure", err)
		writeError(w, http.StatusInternalServerError, "persistence_error", "database error")
	default:
		s.logFailure(r, "internal failure", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func (s *Server) logFailure(r *http.Request, msg string, err error) {
	logging.ErrorWithContext(logging.WithContext(r.Context(), s.logger), msg, "http_request_failed",
		logging.Error(err),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
	)
}
