package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "taskhub/pkg/domain-errors"
)

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestWriteError_StatusMapping(t *testing.T) {
	tests := []struct {
		code   dErrors.Code
		status int
		errStr string
	}{
		{dErrors.CodeUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
		{dErrors.CodeTokenExpired, http.StatusUnauthorized, "unauthenticated"},
		{dErrors.CodeTokenInvalid, http.StatusUnauthorized, "unauthenticated"},
		{dErrors.CodeTenantUnknown, http.StatusForbidden, "forbidden"},
		{dErrors.CodeTenantInactive, http.StatusForbidden, "forbidden"},
		{dErrors.CodeForbidden, http.StatusForbidden, "forbidden"},
		{dErrors.CodeNotFound, http.StatusNotFound, "not_found"},
		{dErrors.CodeValidation, http.StatusBadRequest, "validation_error"},
		{dErrors.CodeConflict, http.StatusConflict, "conflict"},
		{dErrors.CodeProvisioningFailed, http.StatusBadGateway, "provisioning_failed"},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, fmt.Errorf("handler: %w", dErrors.New(tt.code, "detail")))
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.errStr, decodeBody(t, w)["error"])
		})
	}
}

func TestWriteError_TenantOutcomesAreIndistinguishable(t *testing.T) {
	unknown := httptest.NewRecorder()
	WriteError(unknown, dErrors.New(dErrors.CodeTenantUnknown, "realm acme not registered"))
	inactive := httptest.NewRecorder()
	WriteError(inactive, dErrors.New(dErrors.CodeTenantInactive, "tenant suspended"))

	assert.Equal(t, unknown.Body.String(), inactive.Body.String())
	assert.NotContains(t, unknown.Body.String(), "acme")
}

func TestWriteError_ExpiredVersusInvalid(t *testing.T) {
	expired := httptest.NewRecorder()
	WriteError(expired, dErrors.New(dErrors.CodeTokenExpired, "exp in past"))
	invalid := httptest.NewRecorder()
	WriteError(invalid, dErrors.New(dErrors.CodeTokenInvalid, "bad signature"))

	assert.Equal(t, "token expired", decodeBody(t, expired)["error_description"])
	assert.Equal(t, "invalid token", decodeBody(t, invalid)["error_description"])
	assert.NotEmpty(t, expired.Header().Get("WWW-Authenticate"))
}

func TestWriteError_HidesInternalDetail(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, dErrors.Wrap(errors.New("pq: password authentication failed"), dErrors.CodeInternal, "db down"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "password")

	w = httptest.NewRecorder()
	WriteError(w, errors.New("plain"))
	assert.Equal(t, "internal_error", decodeBody(t, w)["error"])
}

type residueErr struct{ error }

func (residueErr) PartiallyCleanedUp() bool { return true }
func (e residueErr) Unwrap() error        { return e.error }

func TestWriteError_FlagsIncompleteCleanup(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, residueErr{dErrors.New(dErrors.CodeProvisioningFailed, "create realm failed")})
	body := decodeBody(t, w)
	assert.Equal(t, "incomplete", body["cleanup"])
	assert.Equal(t, "provisioning_failed", body["error"])
}

type createReq struct {
	Name  string `json:"name" validate:"required,min=2,max=10"`
	Email string `json:"email" validate:"required,email"`
}

func (r *createReq) Normalize() { r.Name = strings.TrimSpace(r.Name) }

func TestDecodeAndPrepare(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	run := func(body string) (*createReq, *httptest.ResponseRecorder) {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		w := httptest.NewRecorder()
		req, _ := DecodeAndPrepare[createReq](w, r, logger, r.Context(), "req-1")
		return req, w
	}

	t.Run("normalizes and validates", func(t *testing.T) {
		req, _ := run(`{"name":"  Acme ","email":"a@acme.io"}`)
		require.NotNil(t, req)
		assert.Equal(t, "Acme", req.Name)
	})

	t.Run("malformed json", func(t *testing.T) {
		req, w := run(`{`)
		assert.Nil(t, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "bad_request", decodeBody(t, w)["error"])
	})

	t.Run("unknown fields rejected", func(t *testing.T) {
		req, w := run(`{"name":"Acme","email":"a@acme.io","schema":"tenant_x"}`)
		assert.Nil(t, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("tag failures are listed", func(t *testing.T) {
		req, w := run(`{"name":"A","email":"nope"}`)
		assert.Nil(t, req)
		desc := decodeBody(t, w)["error_description"]
		assert.Contains(t, desc, "Name must be at least 2 characters")
		assert.Contains(t, desc, "Email must be a valid email")
	})
}
