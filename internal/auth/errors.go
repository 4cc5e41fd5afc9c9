package auth

import (
	"errors"
	"fmt"
)

// Code es el código estable que viaja al cliente.
type Code string

const (
	CodeInvalidCredentials   Code = "invalid-credentials"
	CodeUserNotFound         Code = "user-not-found"
	CodeEmailInUse           Code = "email-already-in-use"
	CodeWeakPassword         Code = "weak-password"
	CodeRegistrationDisabled Code = "registration-disabled"
	CodeInvalidEmail         Code = "invalid-email"
	CodeInvalidOTP           Code = "invalid-otp"
	CodeOTPExpired           Code = "OTP:EXPIRED"
	CodeOTPTooManyAttempts   Code = "OTP:TOO_MANY_ATTEMPTS"
	CodeOTPInvalidCode       Code = "OTP:INVALID_CODE"
	CodeOTPDisabled          Code = "OTP:DISABLED"
	CodeUnauthorized         Code = "unauthorized"
	CodeForbidden            Code = "forbidden"
	CodeRateLimited          Code = "rate-limited"
	CodeInvalidRequest       Code = "invalid-request"
	CodeProviderNotFound     Code = "provider-not-found"
	CodeInternal             Code = "internal-error"
)

// Error es el error tipado del dominio de auth. Message es apto para el
// cliente; Err (la causa) no se expone.
type Error struct {
	Code    Code
	Message string
	Details []string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is compara por código: errors.Is(err, ErrForbidden).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// WithDetails devuelve una copia con detalles.
func (e *Error) WithDetails(details ...string) *Error {
	c := *e
	c.Details = append([]string(nil), details...)
	return &c
}

// WithCause devuelve una copia con la causa.
func (e *Error) WithCause(err error) *Error {
	c := *e
	c.Err = err
	return &c
}

// WithMessage devuelve una copia con otro mensaje.
func (e *Error) WithMessage(msg string) *Error {
	c := *e
	c.Message = msg
	return &c
}

// =================================================================================
// ERRORES PREDEFINIDOS
// =================================================================================

var (
	ErrInvalidCredentials   = &Error{Code: CodeInvalidCredentials, Message: "Invalid credentials"}
	ErrUserNotFound         = &Error{Code: CodeUserNotFound, Message: "User not found"}
	ErrEmailInUse           = &Error{Code: CodeEmailInUse, Message: "Email already in use"}
	ErrWeakPassword         = &Error{Code: CodeWeakPassword, Message: "Password does not meet the policy"}
	ErrRegistrationDisabled = &Error{Code: CodeRegistrationDisabled, Message: "Registration is disabled for this tenant"}
	ErrInvalidEmail         = &Error{Code: CodeInvalidEmail, Message: "Invalid or not allowed email"}
	ErrInvalidOTP           = &Error{Code: CodeInvalidOTP, Message: "Invalid one-time code"}
	ErrOTPExpired           = &Error{Code: CodeOTPExpired, Message: "Code expired"}
	ErrOTPTooManyAttempts   = &Error{Code: CodeOTPTooManyAttempts, Message: "Too many attempts"}
	ErrOTPInvalidCode       = &Error{Code: CodeOTPInvalidCode, Message: "Invalid code"}
	ErrOTPDisabled          = &Error{Code: CodeOTPDisabled, Message: "One-time codes are disabled for this channel"}
	ErrUnauthorized         = &Error{Code: CodeUnauthorized, Message: "Unauthorized"}
	ErrForbidden            = &Error{Code: CodeForbidden, Message: "Forbidden"}
	ErrRateLimited          = &Error{Code: CodeRateLimited, Message: "Too many requests"}
	ErrInvalidRequest       = &Error{Code: CodeInvalidRequest, Message: "Invalid request"}
	ErrProviderNotFound     = &Error{Code: CodeProviderNotFound, Message: "Provider not found"}
	ErrInternal             = &Error{Code: CodeInternal, Message: "Internal error"}
)

// AsError convierte cualquier error en *Error; lo que no es de auth queda
// como internal-error conservando la causa.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return ErrInternal.WithCause(err)
}

// CodeOf devuelve el código de err (internal-error si no es de auth).
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	return AsError(err).Code
}

func internal(op string, err error) *Error {
	return ErrInternal.WithCause(fmt.Errorf("%s: %w", op, err))
}
