package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/nlpipe/nlpipe/internal/logger"
)

// exceptionBody is the JSON shape of a 500 response. The field names are
// part of the wire protocol; clients unpack them to rebuild the error.
type exceptionBody struct {
	ExceptionClass string `json:"exception_class"`
	Message        string `json:"message"`
}

// writeText writes a plain text response with the given status code.
// Bodies on this API conventionally end with a newline.
func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	if _, err := io.WriteString(w, body); err != nil {
		logger.Debug("Failed to write response body", "error", err)
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("Failed to encode response body", "error", err)
	}
}

// writeException writes a structured error response.
func writeException(w http.ResponseWriter, status int, class, message string) {
	writeJSON(w, status, exceptionBody{ExceptionClass: class, Message: message})
}

// internalError reports an unexpected failure as a 500 with a structured
// body.
func internalError(w http.ResponseWriter, r *http.Request, err error) {
	logger.Error("API request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"error", err,
	)
	writeException(w, http.StatusInternalServerError, "InternalError", err.Error())
}
