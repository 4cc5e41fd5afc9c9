// Package errors traduce los errores del núcleo de auth a respuestas HTTP.
package errors

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/dropDatabas3/authcore/internal/auth"
)

// AppError es la forma HTTP de un error: status + código estable.
type AppError struct {
	Code       string   `json:"code"`
	Message    string   `json:"error"`
	Details    []string `json:"details,omitempty"`
	HTTPStatus int      `json:"-"`
	Err        error    `json:"-"` // causa original, solo para logs
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

// WithDetail devuelve una COPIA con un detalle agregado.
func (e *AppError) WithDetail(detail string) *AppError {
	c := *e
	c.Details = append(append([]string(nil), e.Details...), detail)
	return &c
}

// WithCause devuelve una COPIA con la causa.
func (e *AppError) WithCause(err error) *AppError {
	c := *e
	c.Err = err
	return &c
}

// =================================================================================
// ERRORES PROPIOS DE LA CAPA HTTP
// =================================================================================

var (
	ErrInvalidJSON = &AppError{
		Code:       string(auth.CodeInvalidRequest),
		Message:    "Request body is not valid JSON",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrUnsupportedMediaType = &AppError{
		Code:       string(auth.CodeInvalidRequest),
		Message:    "Content-Type must be application/json",
		HTTPStatus: http.StatusUnsupportedMediaType,
	}

	ErrBodyTooLarge = &AppError{
		Code:       string(auth.CodeInvalidRequest),
		Message:    "Request body too large",
		HTTPStatus: http.StatusRequestEntityTooLarge,
	}

	ErrNotFound = &AppError{
		Code:       "not-found",
		Message:    "Not found",
		HTTPStatus: http.StatusNotFound,
	}

	ErrMethodNotAllowed = &AppError{
		Code:       "method-not-allowed",
		Message:    "Method not allowed",
		HTTPStatus: http.StatusMethodNotAllowed,
	}

	ErrUnavailable = &AppError{
		Code:       "unavailable",
		Message:    "Service unavailable",
		HTTPStatus: http.StatusServiceUnavailable,
	}

	ErrInternal = &AppError{
		Code:       string(auth.CodeInternal),
		Message:    "Internal error",
		HTTPStatus: http.StatusInternalServerError,
	}
)

// StatusFor mapea un código de auth a su status HTTP.
func StatusFor(code auth.Code) int {
	switch code {
	case auth.CodeInvalidCredentials, auth.CodeUnauthorized,
		auth.CodeInvalidOTP, auth.CodeOTPExpired, auth.CodeOTPTooManyAttempts, auth.CodeOTPInvalidCode:
		return http.StatusUnauthorized
	case auth.CodeWeakPassword, auth.CodeInvalidEmail, auth.CodeInvalidRequest,
		auth.CodeEmailInUse, auth.CodeOTPDisabled:
		return http.StatusBadRequest
	case auth.CodeForbidden, auth.CodeRegistrationDisabled:
		return http.StatusForbidden
	case auth.CodeUserNotFound, auth.CodeProviderNotFound:
		return http.StatusNotFound
	case auth.CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// FromError convierte cualquier error en *AppError. Los errores que no son
// de auth terminan como internal-error sin exponer la causa.
func FromError(err error) *AppError {
	if app, ok := err.(*AppError); ok {
		return app
	}
	ae := auth.AsError(err)
	if ae == nil {
		return ErrInternal
	}
	status := StatusFor(ae.Code)
	msg := ae.Message
	if status == http.StatusInternalServerError {
		msg = ErrInternal.Message
	}
	return &AppError{
		Code:       string(ae.Code),
		Message:    msg,
		Details:    ae.Details,
		HTTPStatus: status,
		Err:        ae.Err,
	}
}

// WriteError escribe {error, code, details} con el status correspondiente.
func WriteError(w http.ResponseWriter, err error) {
	app := FromError(err)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if app.HTTPStatus == http.StatusUnauthorized && w.Header().Get("WWW-Authenticate") == "" && app.Code == string(auth.CodeUnauthorized) {
		w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
	}
	w.WriteHeader(app.HTTPStatus)
	_ = json.NewEncoder(w).Encode(app)
}
