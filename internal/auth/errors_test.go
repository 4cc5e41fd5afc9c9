package auth

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_IsComparesByCode(t *testing.T) {
	err := ErrWeakPassword.WithDetails("too short")
	assert.ErrorIs(t, err, ErrWeakPassword)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)
	assert.Equal(t, []string{"too short"}, err.Details)
	assert.Empty(t, ErrWeakPassword.Details, "WithDetails no muta el error base")

	wrapped := fmt.Errorf("signup: %w", err)
	assert.ErrorIs(t, wrapped, ErrWeakPassword)
	assert.Equal(t, CodeWeakPassword, CodeOf(wrapped))
}

func TestError_CauseIsNotExposed(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := ErrInternal.WithCause(cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "Internal error", err.Message)
}

func TestAsError(t *testing.T) {
	assert.Nil(t, AsError(nil))
	assert.Equal(t, Code(""), CodeOf(nil))

	e := AsError(errors.New("boom"))
	require.NotNil(t, e)
	assert.Equal(t, CodeInternal, e.Code)
	assert.EqualError(t, e.Unwrap(), "boom")

	assert.Equal(t, CodeOTPExpired, CodeOf(fmt.Errorf("x: %w", ErrOTPExpired)))
}

func TestError_Codes(t *testing.T) {
	for code, err := range map[Code]*Error{
		"invalid-credentials":   ErrInvalidCredentials,
		"email-already-in-use":  ErrEmailInUse,
		"OTP:TOO_MANY_ATTEMPTS": ErrOTPTooManyAttempts,
		"OTP:INVALID_CODE":      ErrOTPInvalidCode,
		"rate-limited":          ErrRateLimited,
	} {
		assert.Equal(t, code, err.Code)
	}
}
