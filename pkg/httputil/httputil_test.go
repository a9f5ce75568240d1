package httputil

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/ViddeM/accounts/pkg/errors"
	"github.com/ViddeM/accounts/pkg/logger"
	"github.com/ViddeM/accounts/pkg/validator"
)

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp
}

func TestWriteJSON(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteJSON(rr, http.StatusCreated, Response{Data: map[string]string{"id": "abc"}})

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Body.String(), `"id":"abc"`)
}

func TestWriteError_AppErrorPassesThrough(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/accounts/abc", nil)
	rr := httptest.NewRecorder()

	WriteError(rr, req, apperrors.NotFound("account", "abc"), slog.Default())

	assert.Equal(t, http.StatusNotFound, rr.Code)
	resp := decodeResponse(t, rr)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "abc")
}

func TestWriteError_WrappedSentinel(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rr := httptest.NewRecorder()

	err := fmt.Errorf("load login details: %w", apperrors.ErrUnauthorized)
	WriteError(rr, req, err, slog.Default())

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	resp := decodeResponse(t, rr)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "UNAUTHORIZED", resp.Error.Code)
	assert.Equal(t, "authentication required", resp.Error.Message)
}

func TestWriteError_UnknownErrorHidesDetails(t *testing.T) {
	var buf bytes.Buffer
	fallback := slog.New(slog.NewJSONHandler(&buf, nil))

	req := httptest.NewRequest(http.MethodGet, "/accounts", nil)
	rr := httptest.NewRecorder()

	WriteError(rr, req, errors.New("pq: relation accounts does not exist"), fallback)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	resp := decodeResponse(t, rr)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INTERNAL_ERROR", resp.Error.Code)
	assert.NotContains(t, resp.Error.Message, "relation")

	// The cause must land in the log instead.
	assert.Contains(t, buf.String(), "relation accounts does not exist")
}

func TestWriteError_IncludesRequestID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(logger.WithCorrelationID(req.Context(), "req-42"))
	rr := httptest.NewRecorder()

	WriteError(rr, req, apperrors.Forbidden("nope"), slog.Default())

	resp := decodeResponse(t, rr)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "req-42", resp.Error.RequestID)
}

func TestWriteValidationError_FieldDetails(t *testing.T) {
	type createRequest struct {
		Email    string `validate:"required,email"`
		Password string `validate:"required,min=8"`
	}

	err := validator.Validate(createRequest{Email: "not-an-email", Password: "short"})
	require.Error(t, err)

	rr := httptest.NewRecorder()
	WriteValidationError(rr, err)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	resp := decodeResponse(t, rr)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
	assert.Contains(t, resp.Error.Fields, "Email")
	assert.Contains(t, resp.Error.Fields, "Password")
}

func TestWriteValidationError_PlainError(t *testing.T) {
	rr := httptest.NewRecorder()
	WriteValidationError(rr, errors.New("body must be valid JSON"))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	resp := decodeResponse(t, rr)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INVALID_INPUT", resp.Error.Code)
	assert.Equal(t, "body must be valid JSON", resp.Error.Message)
}

func TestParseUUID(t *testing.T) {
	rr := httptest.NewRecorder()
	id, ok := ParseUUID(rr, "0d4f4e5e-9f3c-4f9e-b2a7-2f1b6a3c8d90")
	require.True(t, ok)
	assert.Equal(t, "0d4f4e5e-9f3c-4f9e-b2a7-2f1b6a3c8d90", id.String())
}

func TestParseUUID_Invalid(t *testing.T) {
	rr := httptest.NewRecorder()
	_, ok := ParseUUID(rr, "not-a-uuid")

	require.False(t, ok)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	resp := decodeResponse(t, rr)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INVALID_PARAMETER", resp.Error.Code)
}
