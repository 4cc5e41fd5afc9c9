package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Ids de providers conocidos.
const (
	ProviderEmailPassword = "email_password"
	ProviderGoogle        = "google"
	ProviderGitHub        = "github"
)

// PasswordPolicy es el set de reglas del motor de políticas.
// MaxLength 0 = sin tope.
type PasswordPolicy struct {
	MinLength           int      `json:"minLength" jsonschema:"minimum=1,maximum=256"`
	MaxLength           int      `json:"maxLength" jsonschema:"minimum=0,maximum=1024"`
	RequireUppercase    bool     `json:"requireUppercase"`
	RequireLowercase    bool     `json:"requireLowercase"`
	RequireNumbers      bool     `json:"requireNumbers"`
	RequireSpecialChars bool     `json:"requireSpecialChars"`
	ForbiddenPatterns   []string `json:"forbiddenPatterns,omitempty"`
	PreventUserData     bool     `json:"preventUserData"`
	PreventCommon       bool     `json:"preventCommon"`
}

// OtpPolicy por canal. Enabled nil = habilitado; campos en cero toman el
// default (6 dígitos, 300s, 3 intentos).
type OtpPolicy struct {
	Enabled       *bool `json:"enabled,omitempty"`
	Length        int   `json:"length,omitempty" jsonschema:"minimum=4,maximum=10"`
	ExpirySeconds int   `json:"expirySeconds,omitempty" jsonschema:"minimum=30,maximum=86400"`
	MaxAttempts   int   `json:"maxAttempts,omitempty" jsonschema:"minimum=1,maximum=20"`
}

type IdentitySettings struct {
	OTP OtpPolicy `json:"otp"`
}

// LoginMethodSet indica qué métodos acepta un tipo de identidad.
type LoginMethodSet struct {
	Password  bool `json:"password"`
	OTP       bool `json:"otp"`
	MagicLink bool `json:"magicLink"`
	PIN       bool `json:"pin"`
}

type LoginMethods struct {
	Email    LoginMethodSet `json:"email"`
	Phone    LoginMethodSet `json:"phone"`
	Username LoginMethodSet `json:"username"`
}

// ProviderSettings guarda credenciales OAuth por tenant. Los campos vacíos
// caen al entorno (GOOGLE_CLIENT_ID, ...).
type ProviderSettings struct {
	Enabled      bool   `json:"enabled"`
	ClientID     string `json:"clientId,omitempty"`
	ClientSecret string `json:"clientSecret,omitempty"`
	RedirectURI  string `json:"redirectUri,omitempty"`
}

type Branding struct {
	AppName      string `json:"appName,omitempty"`
	LogoURL      string `json:"logoUrl,omitempty"`
	PrimaryColor string `json:"primaryColor,omitempty"`
	SupportEmail string `json:"supportEmail,omitempty"`
}

// AuthConfig es el documento de política de un tenant (una fila por tenant).
type AuthConfig struct {
	ID                  string                      `json:"id"`
	TenantID            string                      `json:"tenantId"`
	Providers           map[string]ProviderSettings `json:"providers"`
	AllowRegistration   bool                        `json:"allowRegistration"`
	PasswordPolicy      PasswordPolicy              `json:"passwordPolicy"`
	Email               IdentitySettings            `json:"email"`
	Phone               IdentitySettings            `json:"phone"`
	LoginMethods        LoginMethods                `json:"loginMethods"`
	MFAEnabled          bool                        `json:"mfaEnabled"`
	AllowedEmailDomains []string                    `json:"allowedEmailDomains,omitempty"`
	BlockedEmailDomains []string                    `json:"blockedEmailDomains,omitempty"`
	Branding            Branding                    `json:"branding"`
	CreatedAt           time.Time                   `json:"createdAt"`
	UpdatedAt           time.Time                   `json:"updatedAt"`
}

// DefaultPasswordPolicy es la política cuando el tenant no configuró nada.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		MinLength:           8,
		MaxLength:           128,
		RequireUppercase:    true,
		RequireLowercase:    true,
		RequireNumbers:      true,
		RequireSpecialChars: false,
	}
}

// DefaultAuthConfig es lo que devuelve GET /config cuando el tenant no tiene
// fila y la base sobre la que se aplica el primer upsert.
func DefaultAuthConfig(tenantID string) AuthConfig {
	return AuthConfig{
		TenantID: tenantID,
		Providers: map[string]ProviderSettings{
			ProviderEmailPassword: {Enabled: true},
		},
		AllowRegistration: true,
		PasswordPolicy:    DefaultPasswordPolicy(),
		LoginMethods: LoginMethods{
			Email:    LoginMethodSet{Password: true, OTP: true},
			Username: LoginMethodSet{Password: true},
		},
	}
}

// ProviderEnabled reporta si un provider está habilitado para el tenant.
// email_password está habilitado salvo que se lo desactive explícitamente.
func (c *AuthConfig) ProviderEnabled(id string) bool {
	ps, ok := c.Providers[id]
	if !ok {
		return id == ProviderEmailPassword
	}
	return ps.Enabled
}

// EmailDomainAllowed aplica las listas allow/block (block gana).
func (c *AuthConfig) EmailDomainAllowed(email string) bool {
	at := strings.LastIndexByte(email, '@')
	if at < 0 {
		return false
	}
	domain := strings.ToLower(email[at+1:])
	for _, d := range c.BlockedEmailDomains {
		if strings.EqualFold(strings.TrimSpace(d), domain) {
			return false
		}
	}
	if len(c.AllowedEmailDomains) == 0 {
		return true
	}
	for _, d := range c.AllowedEmailDomains {
		if strings.EqualFold(strings.TrimSpace(d), domain) {
			return true
		}
	}
	return false
}

func (c *AuthConfig) Validate() error {
	if c.TenantID == "" {
		return errors.New("auth config: empty tenant id")
	}
	p := c.PasswordPolicy
	if p.MinLength < 0 || p.MaxLength < 0 {
		return fmt.Errorf("auth config %s: negative password length", c.TenantID)
	}
	if p.MaxLength > 0 && p.MaxLength < p.MinLength {
		return fmt.Errorf("auth config %s: maxLength < minLength", c.TenantID)
	}
	return nil
}

// AuthConfigPatch es un documento JSON parcial. Se aplica decodificando
// sobre una copia del config actual: los objetos se mergean campo a campo,
// arrays y entradas de providers se reemplazan completas.
type AuthConfigPatch json.RawMessage

// ErrInvalidConfig envuelve los rechazos de ApplyPatch.
var ErrInvalidConfig = errors.New("invalid auth config")

// ApplyPatch devuelve base con el patch aplicado. Los campos de identidad
// (id, tenantId, timestamps) no son modificables.
func ApplyPatch(base AuthConfig, patch AuthConfigPatch) (AuthConfig, error) {
	out := base.Clone()
	if len(bytes.TrimSpace(patch)) > 0 {
		if err := json.Unmarshal(patch, &out); err != nil {
			return AuthConfig{}, fmt.Errorf("%w: patch: %v", ErrInvalidConfig, err)
		}
	}
	out.ID, out.TenantID = base.ID, base.TenantID
	out.CreatedAt, out.UpdatedAt = base.CreatedAt, base.UpdatedAt
	if err := out.Validate(); err != nil {
		return AuthConfig{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return out, nil
}

// Clone devuelve una copia profunda.
func (c AuthConfig) Clone() AuthConfig {
	out := c
	out.Providers = make(map[string]ProviderSettings, len(c.Providers))
	for k, v := range c.Providers {
		out.Providers[k] = v
	}
	out.PasswordPolicy.ForbiddenPatterns = append([]string(nil), c.PasswordPolicy.ForbiddenPatterns...)
	out.AllowedEmailDomains = append([]string(nil), c.AllowedEmailDomains...)
	out.BlockedEmailDomains = append([]string(nil), c.BlockedEmailDomains...)
	out.Email.OTP.Enabled = cloneBool(c.Email.OTP.Enabled)
	out.Phone.OTP.Enabled = cloneBool(c.Phone.OTP.Enabled)
	return out
}

func cloneBool(b *bool) *bool {
	if b == nil {
		return nil
	}
	v := *b
	return &v
}
