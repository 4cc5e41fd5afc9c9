package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/authcore/internal/auth"
)

func TestStatusFor(t *testing.T) {
	cases := map[auth.Code]int{
		auth.CodeInvalidCredentials:   http.StatusUnauthorized,
		auth.CodeUnauthorized:         http.StatusUnauthorized,
		auth.CodeOTPExpired:           http.StatusUnauthorized,
		auth.CodeOTPTooManyAttempts:   http.StatusUnauthorized,
		auth.CodeOTPInvalidCode:       http.StatusUnauthorized,
		auth.CodeWeakPassword:         http.StatusBadRequest,
		auth.CodeEmailInUse:           http.StatusBadRequest,
		auth.CodeInvalidEmail:         http.StatusBadRequest,
		auth.CodeInvalidRequest:       http.StatusBadRequest,
		auth.CodeForbidden:            http.StatusForbidden,
		auth.CodeRegistrationDisabled: http.StatusForbidden,
		auth.CodeUserNotFound:         http.StatusNotFound,
		auth.CodeProviderNotFound:     http.StatusNotFound,
		auth.CodeRateLimited:          http.StatusTooManyRequests,
		auth.CodeInternal:             http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, StatusFor(code), string(code))
	}
}

func TestWriteErrorBody(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, auth.ErrWeakPassword.WithDetails("too short", "needs a number"))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body struct {
		Error   string   `json:"error"`
		Code    string   `json:"code"`
		Details []string `json:"details"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "weak-password", body.Code)
	assert.Equal(t, auth.ErrWeakPassword.Message, body.Error)
	assert.Equal(t, []string{"too short", "needs a number"}, body.Details)
}

func TestWriteErrorHidesInfraCause(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, fmt.Errorf("pg: dial tcp 10.0.0.1:5432: refused"))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "10.0.0.1")
	assert.Contains(t, rec.Body.String(), `"code":"internal-error"`)
}

func TestWriteErrorUnauthorizedChallenge(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, auth.ErrUnauthorized)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, `Bearer realm="api"`, rec.Header().Get("WWW-Authenticate"))
}

func TestAppErrorCopies(t *testing.T) {
	e := ErrInvalidJSON.WithDetail("unexpected EOF")
	assert.Empty(t, ErrInvalidJSON.Details)
	assert.Equal(t, []string{"unexpected EOF"}, e.Details)
	assert.Same(t, e, FromError(e))
}
