package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/plateful/api/internal/platform/requestctx"
)

const (
	maxCodeLength    = 64
	maxMessageLength = 512
)

// Error is the JSON error envelope every endpoint returns on failure.
type Error struct {
	Code    string
	Message string
	Status  int
}

// NewError builds an error envelope with the given machine-readable code,
// human-readable message, and HTTP status.
func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{
		Code:    clean(code, maxCodeLength),
		Message: clean(message, maxMessageLength),
		Status:  status,
	}
}

// WriteError serialises the envelope to the response writer, stamping the
// request and trace identifiers from the context when available.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error) {
	status := err.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}

	payload := map[string]any{
		"error":   err.Code,
		"message": err.Message,
		"status":  status,
	}
	if requestID := clean(middleware.GetReqID(ctx), maxCodeLength); requestID != "" {
		payload["request_id"] = requestID
	}
	if traceID := clean(requestctx.TraceID(ctx), maxCodeLength); traceID != "" {
		payload["trace_id"] = traceID
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func clean(value string, limit int) string {
	value = strings.NewReplacer("\n", " ", "\r", " ").Replace(value)
	value = strings.TrimSpace(value)
	if limit > 0 && len(value) > limit {
		value = value[:limit]
	}
	return value
}
