package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"ffmpeg-api/internal/database"
	"ffmpeg-api/internal/ffmpeg"
	"ffmpeg-api/internal/jobs"
	"ffmpeg-api/internal/logging"
	"ffmpeg-api/internal/upload"
)

// writeJSON encodes v as JSON and writes it to the response writer.
// Any encoding or write errors are logged since we typically cannot
// recover from them in an HTTP handler context.
func writeJSON(w http.ResponseWriter, v interface{}) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("failed to encode JSON response: %v", err)
	}
}

// writeJSONStatus writes v as JSON with the given status code.
func writeJSONStatus(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	writeJSON(w, v)
}

// writeJSONError writes an error response as JSON with the given status code.
func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	writeJSONStatus(w, statusCode, map[string]string{"error": message})
}

// writeError maps err to a status code and client message. Process
// failures and unexpected errors get a generic message; the detail is
// logged.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := classify(err)
	if status >= http.StatusInternalServerError {
		logging.Error("%s %s: %v", r.Method, r.URL.Path, err)
	} else {
		logging.Debug("%s %s: %v", r.Method, r.URL.Path, err)
	}
	writeJSONError(w, message, status)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, upload.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, err.Error()
	case errors.Is(err, upload.ErrMissingFile), errors.Is(err, upload.ErrMalformed),
		errors.Is(err, ffmpeg.ErrInvalidTimestamp), errors.Is(err, ffmpeg.ErrInvalidParam),
		errors.Is(err, jobs.ErrInvalidJobType):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, ffmpeg.ErrEmptyInput):
		return http.StatusBadRequest, ffmpeg.ErrEmptyInput.Error()
	case errors.Is(err, ffmpeg.ErrInvalidMedia):
		return http.StatusBadRequest, ffmpeg.ErrInvalidMedia.Error()
	case errors.Is(err, database.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "processing timed out"
	case errors.Is(err, ffmpeg.ErrProcessFailed), errors.Is(err, ffmpeg.ErrNoOutput):
		return http.StatusInternalServerError, ffmpeg.ErrProcessFailed.Error()
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}
