package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zsiec/edgeview/internal/edgefilter"
	"github.com/zsiec/edgeview/internal/logger"
)

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp
}

func TestHandleError(t *testing.T) {
	log, hook := test.NewNullLogger()
	handler := NewErrorHandler(log)

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   ErrorType
		wantCode   string
		wantLevel  logrus.Level
	}{
		{
			name:       "app error",
			err:        NewValidationError("invalid input"),
			wantStatus: http.StatusBadRequest,
			wantType:   ErrorTypeValidation,
			wantLevel:  logrus.WarnLevel,
		},
		{
			name:       "standard error",
			err:        errors.New("something went wrong"),
			wantStatus: http.StatusInternalServerError,
			wantType:   ErrorTypeInternal,
			wantLevel:  logrus.ErrorLevel,
		},
		{
			name:       "filter mismatch",
			err:        fmt.Errorf("%w: 3 != 4", edgefilter.ErrSizeMismatch),
			wantStatus: http.StatusBadRequest,
			wantType:   ErrorTypeValidation,
			wantCode:   CodeFrameSizeMismatch,
			wantLevel:  logrus.WarnLevel,
		},
		{
			name:       "filter allocation",
			err:        edgefilter.ErrOutputAllocation,
			wantStatus: http.StatusServiceUnavailable,
			wantType:   ErrorTypeResourceExhausted,
			wantCode:   CodeFrameAllocation,
			wantLevel:  logrus.ErrorLevel,
		},
		{
			name:       "body too large",
			err:        fmt.Errorf("read body: %w", &http.MaxBytesError{Limit: 64}),
			wantStatus: http.StatusRequestEntityTooLarge,
			wantType:   ErrorTypePayloadTooLarge,
			wantLevel:  logrus.WarnLevel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hook.Reset()
			req := httptest.NewRequest(http.MethodPost, "/api/v1/frames", nil)
			req.Header.Set(logger.RequestIDHeader, "test-123")
			rr := httptest.NewRecorder()

			handler.HandleError(rr, req, tt.err)

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

			resp := decodeError(t, rr)
			assert.Equal(t, tt.wantType, resp.Error.Type)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.NotEmpty(t, resp.Error.Message)
			assert.Equal(t, "test-123", resp.TraceID)

			require.NotNil(t, hook.LastEntry())
			assert.Equal(t, tt.wantLevel, hook.LastEntry().Level)
		})
	}
}

func TestHandleError_PrefersContextRequestID(t *testing.T) {
	log, _ := test.NewNullLogger()
	handler := NewErrorHandler(log)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(logger.WithRequestID(req.Context(), "ctx-id"))
	rr := httptest.NewRecorder()

	handler.HandleError(rr, req, NewRateLimitError("slow down"))

	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "1", rr.Header().Get("Retry-After"))
	assert.Equal(t, "ctx-id", decodeError(t, rr).TraceID)
}

func TestHandleNotFoundAndMethodNotAllowed(t *testing.T) {
	log, _ := test.NewNullLogger()
	handler := NewErrorHandler(log)

	rr := httptest.NewRecorder()
	handler.HandleNotFound(rr, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "endpoint not found", decodeError(t, rr).Error.Message)

	rr = httptest.NewRecorder()
	handler.HandleMethodNotAllowed(rr, httptest.NewRequest(http.MethodDelete, "/api/v1/greet", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestMiddleware_RecoversPanic(t *testing.T) {
	log, hook := test.NewNullLogger()
	handler := NewErrorHandler(log)

	h := handler.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("kaboom")
	}))

	rr := httptest.NewRecorder()
	require.NotPanics(t, func() {
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	})

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, ErrorTypeInternal, decodeError(t, rr).Error.Type)

	var sawPanic bool
	for _, e := range hook.AllEntries() {
		if e.Message == "Panic recovered in HTTP handler" {
			sawPanic = true
			assert.Equal(t, "kaboom", e.Data["panic"])
			assert.True(t, strings.Contains(e.Data["stack"].(string), "goroutine"))
		}
	}
	assert.True(t, sawPanic)
}

func TestMiddleware_PassesThrough(t *testing.T) {
	log, _ := test.NewNullLogger()
	h := NewErrorHandler(log).Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, rr.Code)
}
