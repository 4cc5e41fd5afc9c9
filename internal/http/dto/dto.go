// Package dto define los cuerpos JSON de la API. El SDK (internal/authclient)
// usa los mismos tipos.
package dto

import (
	"time"

	"github.com/dropDatabas3/authcore/internal/domain"
)

// ─── Auth ───

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	TenantID string `json:"tenantId"`
}

type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	TenantID string `json:"tenantId"`
	Name     string `json:"name,omitempty"`
	Username string `json:"username,omitempty"`
}

// UserSummary es la vista mínima del usuario que acompaña a un token.
type UserSummary struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	TenantID     string `json:"tenantId"`
	IsSuperAdmin bool   `json:"isSuperAdmin"`
}

func Summary(u *domain.User) UserSummary {
	return UserSummary{ID: u.ID, Email: u.Email, TenantID: u.TenantID, IsSuperAdmin: u.IsSuperAdmin}
}

type LoginResponse struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
	User      UserSummary `json:"user"`
}

// SignupResponse lleva {id, email} y además la sesión recién emitida.
type SignupResponse struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Token     string    `json:"token,omitempty"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
}

type MeResponse struct {
	User    *domain.User    `json:"user"`
	Session *domain.Session `json:"session,omitempty"`
}

type LogoutResponse struct {
	Success bool `json:"success"`
}

// ─── Config ───

type ConfigUpdateResponse struct {
	Success bool               `json:"success"`
	ID      string             `json:"id"`
	Config  *domain.AuthConfig `json:"config,omitempty"`
}

type ExamplesResponse struct {
	Examples []string `json:"examples"`
}

type ProvidersResponse struct {
	Providers []string `json:"providers"`
}

// ─── Users (admin) ───

type CreateUserRequest struct {
	Email         string `json:"email"`
	Password      string `json:"password,omitempty"`
	Username      string `json:"username,omitempty"`
	Name          string `json:"name,omitempty"`
	Phone         string `json:"phone,omitempty"`
	EmailVerified bool   `json:"emailVerified,omitempty"`
	IsSuperAdmin  bool   `json:"isSuperAdmin,omitempty"`
}

type CreateUserResponse struct {
	User *domain.User `json:"user"`
	// GeneratedPassword solo viaja cuando el server generó la contraseña.
	GeneratedPassword string `json:"generatedPassword,omitempty"`
}

type UserDetailResponse struct {
	User     *domain.User     `json:"user"`
	Sessions []domain.Session `json:"sessions"`
}

type RevokeResponse struct {
	Revoked int `json:"revoked"`
}

// ─── OTP ───

type OTPRequestBody struct {
	TenantID   string `json:"tenantId"`
	Identifier string `json:"identifier"`
	Channel    string `json:"channel"`
	Purpose    string `json:"purpose"`
}

type OTPRequestResponse struct {
	Sent      bool `json:"sent"`
	ExpiresIn int  `json:"expiresIn"` // segundos
}

type OTPVerifyBody struct {
	OTPRequestBody
	Code string `json:"code"`
}

type OTPVerifyResponse struct {
	Verified  bool         `json:"verified"`
	Token     string       `json:"token,omitempty"`
	ExpiresAt *time.Time   `json:"expiresAt,omitempty"`
	User      *UserSummary `json:"user,omitempty"`
}

// ─── Health ───

type HealthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}
