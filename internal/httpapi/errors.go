package httpapi

import (
	"encoding/json"
	"net/http"

	"segmentd/internal/scheduler"
	"segmentd/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// statusForError maps scheduler errors to HTTP status codes.
//
//	timeout            -> 408
//	resource exhausted -> 507
//	queue full         -> 429
//	model not found    -> 404
//	shutdown           -> 503
func statusForError(err error) int {
	switch {
	case scheduler.IsTimeout(err):
		return http.StatusRequestTimeout
	case scheduler.IsResourceExhausted(err):
		return http.StatusInsufficientStorage
	case scheduler.IsQueueFull(err):
		return http.StatusTooManyRequests
	case scheduler.IsModelNotFound(err):
		return http.StatusNotFound
	case scheduler.IsShutdown(err):
		return http.StatusServiceUnavailable
	default:
		if he, ok := err.(HTTPError); ok {
			return he.StatusCode()
		}
		return http.StatusInternalServerError
	}
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}
