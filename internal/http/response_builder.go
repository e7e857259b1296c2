// This file implements a small builder for JSON responses and the mapping
// from domain errors to HTTP status codes.

package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"subtrack/internal/core"
	"subtrack/internal/log"
)

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	body       interface{}
	headers    map[string]string
}

func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

func (b *JSONResponseBuilder) Body(v interface{}) *JSONResponseBuilder {
	b.body = v
	return b
}

// Write sends the built response. A nil body writes no payload.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	if b.body == nil {
		w.WriteHeader(b.statusCode)
		return
	}

	payload, err := json.Marshal(b.body)
	if err != nil {
		slog.Error("Failed to encode response", log.FieldComponent, log.ComponentHTTP, log.FieldError, err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal error"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(b.statusCode)
	_, _ = w.Write(append(payload, '\n'))
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error  string      `json:"error"`
	Fields FieldErrors `json:"fields,omitempty"`
}

func ErrorResponse(statusCode int, message string) *JSONResponseBuilder {
	return NewJSONResponse().Status(statusCode).Body(ErrorBody{Error: message})
}

// errorResponseFor maps service errors onto status codes. Messages for
// server-side failures stay generic; the cause goes to the log.
func errorResponseFor(ctx context.Context, err error) *JSONResponseBuilder {
	var fields FieldErrors
	var verr *core.ValidationError

	switch {
	case errors.As(err, &fields):
		return NewJSONResponse().
			Status(http.StatusUnprocessableEntity).
			Body(ErrorBody{Error: "invalid subscription", Fields: fields})
	case errors.As(err, &verr):
		return NewJSONResponse().
			Status(http.StatusUnprocessableEntity).
			Body(ErrorBody{Error: "invalid subscription", Fields: FieldErrors{verr.Field: verr.Err.Error()}})
	case errors.Is(err, core.ErrNotFound):
		return ErrorResponse(http.StatusNotFound, "subscription not found")
	case errors.Is(err, core.ErrPermissionDenied):
		return ErrorResponse(http.StatusForbidden, "notification permission denied")
	case errors.Is(err, core.ErrStoreUnavailable):
		slog.ErrorContext(ctx, "Subscription store unavailable",
			log.FieldComponent, log.ComponentHTTP,
			log.FieldError, err)
		return ErrorResponse(http.StatusServiceUnavailable, "subscription store unavailable").
			Header("Retry-After", "30")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ErrorResponse(http.StatusServiceUnavailable, "request cancelled")
	default:
		slog.ErrorContext(ctx, "Unhandled request error",
			log.FieldComponent, log.ComponentHTTP,
			log.FieldError, err)
		return ErrorResponse(http.StatusInternalServerError, "internal error")
	}
}
