package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"subtrack/internal/core"
)

func TestJSONResponseBuilder(t *testing.T) {
	rec := httptest.NewRecorder()
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/subscriptions/1").
		Body(map[string]int{"n": 1}).
		Write(rec)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "/api/subscriptions/1", rec.Header().Get("Location"))
	assert.JSONEq(t, `{"n":1}`, rec.Body.String())
}

func TestJSONResponseBuilder_NoBody(t *testing.T) {
	rec := httptest.NewRecorder()
	NewJSONResponse().Status(http.StatusNoContent).Write(rec)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestJSONResponseBuilder_EncodeFailure(t *testing.T) {
	rec := httptest.NewRecorder()
	NewJSONResponse().Body(map[string]any{"bad": make(chan int)}).Write(rec)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal error"}`, rec.Body.String())
}

func TestErrorResponseFor(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{
			name:   "tag validation",
			err:    FieldErrors{"name": "is required"},
			status: http.StatusUnprocessableEntity,
			body:   `{"error":"invalid subscription","fields":{"name":"is required"}}`,
		},
		{
			name:   "domain validation",
			err:    &core.ValidationError{Field: "price", Err: core.ErrInvalidPrice},
			status: http.StatusUnprocessableEntity,
			body:   `{"error":"invalid subscription","fields":{"price":"invalid price"}}`,
		},
		{
			name:   "not found",
			err:    fmt.Errorf("subscription x: %w", core.ErrNotFound),
			status: http.StatusNotFound,
			body:   `{"error":"subscription not found"}`,
		},
		{
			name:   "permission",
			err:    core.ErrPermissionDenied,
			status: http.StatusForbidden,
			body:   `{"error":"notification permission denied"}`,
		},
		{
			name:   "store unavailable hides cause",
			err:    core.Unavailable("load", errors.New("secret path /var/db")),
			status: http.StatusServiceUnavailable,
			body:   `{"error":"subscription store unavailable"}`,
		},
		{
			name:   "cancelled",
			err:    context.Canceled,
			status: http.StatusServiceUnavailable,
			body:   `{"error":"request cancelled"}`,
		},
		{
			name:   "unknown",
			err:    errors.New("boom"),
			status: http.StatusInternalServerError,
			body:   `{"error":"internal error"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			errorResponseFor(context.Background(), tt.err).Write(rec)
			assert.Equal(t, tt.status, rec.Code)
			assert.JSONEq(t, tt.body, rec.Body.String())
		})
	}
}

func TestFieldErrors_Error(t *testing.T) {
	err := FieldErrors{"price": "is required", "name": "is required"}
	assert.Equal(t, "validation failed: name: is required; price: is required", err.Error())
}

func TestRequestValidator_UsesJSONNames(t *testing.T) {
	v := newRequestValidator()
	err := v.Struct(SubscriptionRequest{Cycle: "daily"})

	var fields FieldErrors
	assert.ErrorAs(t, err, &fields)
	assert.Equal(t, "is required", fields["name"])
	assert.Equal(t, "is required", fields["price"])
	assert.Equal(t, "is required", fields["renewal_date"])
	assert.Contains(t, fields["cycle"], "must be one of")
}
