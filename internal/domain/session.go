package domain

import (
	"errors"
	"fmt"
	"time"
)

// Método de autenticación con el que se emitió la sesión.
const (
	AuthMethodPassword = "password"
	AuthMethodOTP      = "otp"
	AuthMethodSignup   = "signup"
)

// Session es un grant vivo. Token tiene la forma "<tenantId>.<random>".
type Session struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	TenantID   string    `json:"tenantId"`
	Token      string    `json:"-"`
	ExpiresAt  time.Time `json:"expiresAt"`
	AuthMethod string    `json:"authMethod,omitempty"`
	IPAddress  string    `json:"ipAddress,omitempty"`
	UserAgent  string    `json:"userAgent,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Expired reporta si la sesión venció respecto de now.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

func (s *Session) Validate() error {
	switch {
	case s.ID == "":
		return errors.New("session: empty id")
	case s.UserID == "" || s.TenantID == "":
		return fmt.Errorf("session %s: missing owner", s.ID)
	case s.ExpiresAt.IsZero():
		return fmt.Errorf("session %s: zero expiry", s.ID)
	}
	return nil
}
