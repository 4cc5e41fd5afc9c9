package pg

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dropDatabas3/authcore/internal/domain"
	"github.com/dropDatabas3/authcore/internal/store"
)

// Cada entidad tiene su fila tipada y una función toDomain que valida y
// traduce campo por campo.

const userColumns = `id::text, tenant_id, email, username, display_name, name, phone, password_hash,
	email_verified, email_verified_at, phone_verified, phone_verified_at,
	user_verified, user_verified_at, is_active, is_super_admin, metadata, created_at, updated_at`

type userRow struct {
	ID, TenantID, Email                string
	Username, DisplayName, Name, Phone *string
	PasswordHash                       *string
	EmailVerified                      bool
	EmailVerifiedAt                    *time.Time
	PhoneVerified                      bool
	PhoneVerifiedAt                    *time.Time
	UserVerified                       bool
	UserVerifiedAt                     *time.Time
	IsActive, IsSuperAdmin             bool
	Metadata                           []byte
	CreatedAt, UpdatedAt               time.Time
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var r userRow
	err := row.Scan(&r.ID, &r.TenantID, &r.Email, &r.Username, &r.DisplayName, &r.Name, &r.Phone, &r.PasswordHash,
		&r.EmailVerified, &r.EmailVerifiedAt, &r.PhoneVerified, &r.PhoneVerifiedAt,
		&r.UserVerified, &r.UserVerifiedAt, &r.IsActive, &r.IsSuperAdmin, &r.Metadata, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return r.toDomain()
}

func (r userRow) toDomain() (*domain.User, error) {
	u := &domain.User{
		ID:              r.ID,
		TenantID:        r.TenantID,
		Email:           r.Email,
		Username:        deref(r.Username),
		DisplayName:     deref(r.DisplayName),
		Name:            deref(r.Name),
		Phone:           deref(r.Phone),
		PasswordHash:    r.PasswordHash,
		EmailVerified:   r.EmailVerified,
		EmailVerifiedAt: r.EmailVerifiedAt,
		PhoneVerified:   r.PhoneVerified,
		PhoneVerifiedAt: r.PhoneVerifiedAt,
		UserVerified:    r.UserVerified,
		UserVerifiedAt:  r.UserVerifiedAt,
		IsActive:        r.IsActive,
		IsSuperAdmin:    r.IsSuperAdmin,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
	if len(r.Metadata) > 0 && string(r.Metadata) != "{}" && string(r.Metadata) != "null" {
		if err := json.Unmarshal(r.Metadata, &u.Metadata); err != nil {
			return nil, fmt.Errorf("%w: user %s metadata: %v", store.ErrInvalidRecord, r.ID, err)
		}
	}
	if err := u.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidRecord, err)
	}
	return u, nil
}

const sessionColumns = `id::text, user_id::text, tenant_id, expires_at, auth_method, ip_address, user_agent, created_at`

type sessionRow struct {
	ID, UserID, TenantID             string
	ExpiresAt                        time.Time
	AuthMethod, IPAddress, UserAgent *string
	CreatedAt                        time.Time
}

// scanSession lee una sesión; tok es el token en claro si el caller lo
// conoce (la tabla solo guarda su hash).
func scanSession(row pgx.Row, tok string) (*domain.Session, error) {
	var r sessionRow
	if err := row.Scan(&r.ID, &r.UserID, &r.TenantID, &r.ExpiresAt, &r.AuthMethod, &r.IPAddress, &r.UserAgent, &r.CreatedAt); err != nil {
		return nil, err
	}
	s := &domain.Session{
		ID:         r.ID,
		UserID:     r.UserID,
		TenantID:   r.TenantID,
		Token:      tok,
		ExpiresAt:  r.ExpiresAt,
		AuthMethod: deref(r.AuthMethod),
		IPAddress:  deref(r.IPAddress),
		UserAgent:  deref(r.UserAgent),
		CreatedAt:  r.CreatedAt,
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidRecord, err)
	}
	return s, nil
}

const otpColumns = `id::text, tenant_id, identifier, purpose, channel, code, expires_at, attempts, created_at`

func scanOTP(row pgx.Row) (*domain.OtpSession, error) {
	var (
		o                domain.OtpSession
		purpose, channel string
	)
	if err := row.Scan(&o.ID, &o.TenantID, &o.Identifier, &purpose, &channel, &o.Code, &o.ExpiresAt, &o.Attempts, &o.CreatedAt); err != nil {
		return nil, err
	}
	o.Purpose = domain.OTPPurpose(purpose)
	o.Channel = domain.OTPChannel(channel)
	if err := o.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidRecord, err)
	}
	return &o, nil
}

func scanConfig(row pgx.Row) (*domain.AuthConfig, error) {
	var (
		id, tenantID         string
		doc                  []byte
		createdAt, updatedAt time.Time
	)
	if err := row.Scan(&id, &tenantID, &doc, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	var c domain.AuthConfig
	if err := json.Unmarshal(doc, &c); err != nil {
		return nil, fmt.Errorf("%w: auth config %s: %v", store.ErrInvalidRecord, tenantID, err)
	}
	c.ID, c.TenantID, c.CreatedAt, c.UpdatedAt = id, tenantID, createdAt, updatedAt
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidRecord, err)
	}
	return &c, nil
}
