package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/authcore/internal/domain"
	"github.com/dropDatabas3/authcore/internal/security/password"
)

// BuildUser arma el registro a insertar a partir del alta: normaliza email,
// asigna id, hashea el password si viene en claro y fija timestamps. Lo usan
// todos los drivers para que el alta sea idéntica entre backends.
func BuildUser(h *password.Hasher, now time.Time, tenantID string, in domain.NewUser) (domain.User, error) {
	email := domain.NormalizeEmail(in.Email)
	if tenantID == "" {
		return domain.User{}, fmt.Errorf("%w: empty tenant id", ErrInvalidInput)
	}
	if email == "" || !strings.Contains(email, "@") {
		return domain.User{}, fmt.Errorf("%w: invalid email", ErrInvalidInput)
	}

	u := domain.User{
		ID:           uuid.NewString(),
		TenantID:     tenantID,
		Email:        email,
		Username:     strings.TrimSpace(in.Username),
		DisplayName:  strings.TrimSpace(in.DisplayName),
		Name:         strings.TrimSpace(in.Name),
		Phone:        strings.TrimSpace(in.Phone),
		IsActive:     true,
		IsSuperAdmin: in.IsSuperAdmin,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if in.EmailVerified {
		u.EmailVerified = true
		t := now
		u.EmailVerifiedAt = &t
	}
	if len(in.Metadata) > 0 {
		u.Metadata = make(map[string]any, len(in.Metadata))
		for k, v := range in.Metadata {
			u.Metadata[k] = v
		}
	}

	switch {
	case in.PasswordHash != "":
		ph := in.PasswordHash
		u.PasswordHash = &ph
	case in.Password != "":
		ph, err := h.Hash(in.Password)
		if err != nil {
			return domain.User{}, err
		}
		u.PasswordHash = &ph
	}
	return u, nil
}

// CheckPassword resuelve el final de VerifyPassword igual en todos los
// drivers: si no hay usuario o hash corre el hash dummy, y solo devuelve el
// usuario cuando el hash coincide.
func CheckPassword(h *password.Hasher, u *domain.User, plain string) *domain.User {
	if u == nil || !u.HasPassword() {
		h.Dummy(plain)
		return nil
	}
	if !h.Check(plain, *u.PasswordHash) {
		return nil
	}
	return u
}

// PrepareOTP completa id y timestamps de un OTP a insertar y lo valida.
// Los intentos siempre arrancan en cero.
func PrepareOTP(o domain.OtpSession, now time.Time) (domain.OtpSession, error) {
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.Attempts = 0
	if err := o.Validate(); err != nil {
		return domain.OtpSession{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return o, nil
}

// PrepareSession completa id y created_at de una sesión a insertar y la
// valida.
func PrepareSession(s domain.Session, now time.Time) (domain.Session, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	if s.Token == "" {
		return domain.Session{}, fmt.Errorf("%w: empty session token", ErrInvalidInput)
	}
	if err := s.Validate(); err != nil {
		return domain.Session{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return s, nil
}
