// Package api is the thin HTTP facade in front of the task registry and
// pipeline engine: it accepts submissions, reports progress, and serves
// files. Every response is wrapped in the envelope shape
// {success, data|error, meta:{request_id}}.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/zhuguadundan/videowhisper/internal/observability"
	"github.com/zhuguadundan/videowhisper/internal/task"
)

// envelope is the wire shape of every API response.
type envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *errorBody `json:"error,omitempty"`
	Meta    meta       `json:"meta"`
}

type errorBody struct {
	Kind    task.ErrorKind `json:"kind"`
	Message string         `json:"message"`
}

type meta struct {
	RequestID string `json:"request_id"`
}

func writeData(w http.ResponseWriter, r *http.Request, status int, data any) {
	writeJSON(w, status, envelope{
		Success: true,
		Data:    data,
		Meta:    meta{RequestID: observability.RequestIDFromContext(r.Context())},
	})
}

func writeError(w http.ResponseWriter, r *http.Request, status int, kind task.ErrorKind, message string) {
	writeJSON(w, status, envelope{
		Success: false,
		Error:   &errorBody{Kind: kind, Message: message},
		Meta:    meta{RequestID: observability.RequestIDFromContext(r.Context())},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusForKind maps a task.ErrorKind to its HTTP status.
func statusForKind(kind task.ErrorKind) int {
	switch kind {
	case task.ErrBadRequest, task.ErrURLRejected, task.ErrPathEscape:
		return http.StatusBadRequest
	case task.ErrUnauthorized:
		return http.StatusUnauthorized
	case task.ErrNotFound:
		return http.StatusNotFound
	case task.ErrConflictBusy:
		return http.StatusConflict
	case task.ErrTimeout:
		return http.StatusGatewayTimeout
	case task.ErrToolMissing, task.ErrNetwork, task.ErrVendorError, task.ErrVendorRateLimited,
		task.ErrSTTConsecutiveFailures, task.ErrCancelled, task.ErrStaleOnRestart, task.ErrDiskFull, task.ErrInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
