package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// User es una identidad dentro de exactamente un tenant.
type User struct {
	ID              string         `json:"id"`
	TenantID        string         `json:"tenantId"`
	Email           string         `json:"email"`
	Username        string         `json:"username,omitempty"`
	DisplayName     string         `json:"displayName,omitempty"`
	Name            string         `json:"name,omitempty"`
	Phone           string         `json:"phone,omitempty"`
	PasswordHash    *string        `json:"-"`
	EmailVerified   bool           `json:"emailVerified"`
	EmailVerifiedAt *time.Time     `json:"emailVerifiedAt,omitempty"`
	PhoneVerified   bool           `json:"phoneVerified"`
	PhoneVerifiedAt *time.Time     `json:"phoneVerifiedAt,omitempty"`
	UserVerified    bool           `json:"userVerified"`
	UserVerifiedAt  *time.Time     `json:"userVerifiedAt,omitempty"`
	IsActive        bool           `json:"isActive"`
	IsSuperAdmin    bool           `json:"isSuperAdmin"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// HasPassword indica si la cuenta tiene credencial local (las cuentas
// creadas solo por OAuth no la tienen).
func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

// Validate verifica los campos mínimos de un registro leído del store.
func (u *User) Validate() error {
	switch {
	case u.ID == "":
		return errors.New("user: empty id")
	case u.TenantID == "":
		return fmt.Errorf("user %s: empty tenant id", u.ID)
	case u.Email == "":
		return fmt.Errorf("user %s: empty email", u.ID)
	}
	return nil
}

// NewUser son los datos de alta. Si PasswordHash viene seteado se usa tal
// cual; si no, el adapter hashea Password (argon2id). Ambos vacíos = cuenta
// sin password (OAuth).
type NewUser struct {
	Email         string
	Username      string
	DisplayName   string
	Name          string
	Phone         string
	Password      string
	PasswordHash  string
	EmailVerified bool
	IsSuperAdmin  bool
	Metadata      map[string]any
}

// UserPatch actualiza solo los campos no nil. Metadata se mergea clave a
// clave; un valor nil borra la clave.
type UserPatch struct {
	Username      *string
	DisplayName   *string
	Name          *string
	Phone         *string
	PasswordHash  *string
	EmailVerified *bool
	PhoneVerified *bool
	UserVerified  *bool
	IsActive      *bool
	IsSuperAdmin  *bool
	Metadata      map[string]any
}

// Apply aplica el patch sobre u. Los timestamps de verificación se fijan a
// now al pasar a true y se limpian al pasar a false.
func (p UserPatch) Apply(u *User, now time.Time) {
	setStr := func(dst *string, v *string) {
		if v != nil {
			*dst = strings.TrimSpace(*v)
		}
	}
	setStr(&u.Username, p.Username)
	setStr(&u.DisplayName, p.DisplayName)
	setStr(&u.Name, p.Name)
	setStr(&u.Phone, p.Phone)
	if p.PasswordHash != nil {
		h := *p.PasswordHash
		u.PasswordHash = &h
	}
	applyFlag(&u.EmailVerified, &u.EmailVerifiedAt, p.EmailVerified, now)
	applyFlag(&u.PhoneVerified, &u.PhoneVerifiedAt, p.PhoneVerified, now)
	applyFlag(&u.UserVerified, &u.UserVerifiedAt, p.UserVerified, now)
	if p.IsActive != nil {
		u.IsActive = *p.IsActive
	}
	if p.IsSuperAdmin != nil {
		u.IsSuperAdmin = *p.IsSuperAdmin
	}
	if len(p.Metadata) > 0 {
		if u.Metadata == nil {
			u.Metadata = map[string]any{}
		}
		for k, v := range p.Metadata {
			if v == nil {
				delete(u.Metadata, k)
				continue
			}
			u.Metadata[k] = v
		}
	}
	u.UpdatedAt = now
}

func applyFlag(flag *bool, at **time.Time, v *bool, now time.Time) {
	if v == nil || *flag == *v {
		return
	}
	*flag = *v
	if *v {
		t := now
		*at = &t
	} else {
		*at = nil
	}
}

// NormalizeEmail es la forma canónica usada para unicidad por tenant.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ListOptions pagina listados de usuarios.
type ListOptions struct {
	Limit  int // default 50, max 200
	Offset int
	Search string // substring sobre email/username/name
}

// Normalize aplica defaults y topes.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = 50
	}
	if o.Limit > 200 {
		o.Limit = 200
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	o.Search = strings.ToLower(strings.TrimSpace(o.Search))
	return o
}

// Clone devuelve una copia sin aliasing (punteros y Metadata).
func (u User) Clone() User {
	out := u
	if u.PasswordHash != nil {
		h := *u.PasswordHash
		out.PasswordHash = &h
	}
	out.EmailVerifiedAt = cloneTime(u.EmailVerifiedAt)
	out.PhoneVerifiedAt = cloneTime(u.PhoneVerifiedAt)
	out.UserVerifiedAt = cloneTime(u.UserVerifiedAt)
	if u.Metadata != nil {
		out.Metadata = make(map[string]any, len(u.Metadata))
		for k, v := range u.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Matches reporta si el usuario coincide con un término de búsqueda ya
// normalizado (ver ListOptions.Normalize).
func (u *User) Matches(search string) bool {
	if search == "" {
		return true
	}
	for _, f := range []string{u.Email, u.Username, u.Name, u.DisplayName} {
		if strings.Contains(strings.ToLower(f), search) {
			return true
		}
	}
	return false
}
