package domain

import (
	"errors"
	"fmt"
	"time"
)

type OTPPurpose string

const (
	PurposeLogin        OTPPurpose = "login"
	PurposeVerification OTPPurpose = "verification"
)

func ParsePurpose(s string) (OTPPurpose, error) {
	switch p := OTPPurpose(s); p {
	case PurposeLogin, PurposeVerification:
		return p, nil
	}
	return "", fmt.Errorf("unknown otp purpose %q", s)
}

type OTPChannel string

const (
	ChannelEmail    OTPChannel = "email"
	ChannelSMS      OTPChannel = "sms"
	ChannelWhatsApp OTPChannel = "whatsapp"
)

func ParseChannel(s string) (OTPChannel, error) {
	switch c := OTPChannel(s); c {
	case ChannelEmail, ChannelSMS, ChannelWhatsApp:
		return c, nil
	}
	return "", fmt.Errorf("unknown otp channel %q", s)
}

// IsPhone indica si el canal entrega a un número de teléfono.
func (c OTPChannel) IsPhone() bool {
	return c == ChannelSMS || c == ChannelWhatsApp
}

// OtpSession es un desafío de un solo uso. Existe como máximo uno por
// (TenantID, Identifier, Purpose); su ausencia representa los estados
// terminales (consumido, agotado, expirado).
type OtpSession struct {
	ID         string     `json:"id"`
	TenantID   string     `json:"tenantId"`
	Identifier string     `json:"identifier"`
	Code       string     `json:"-"`
	Purpose    OTPPurpose `json:"purpose"`
	Channel    OTPChannel `json:"channel"`
	ExpiresAt  time.Time  `json:"expiresAt"`
	Attempts   int        `json:"attempts"`
	CreatedAt  time.Time  `json:"createdAt"`
}

func (o *OtpSession) Expired(now time.Time) bool {
	return now.After(o.ExpiresAt)
}

func (o *OtpSession) Validate() error {
	if o.TenantID == "" || o.Identifier == "" {
		return errors.New("otp: missing key")
	}
	if o.Code == "" {
		return errors.New("otp: empty code")
	}
	if _, err := ParsePurpose(string(o.Purpose)); err != nil {
		return err
	}
	if _, err := ParseChannel(string(o.Channel)); err != nil {
		return err
	}
	if o.Attempts < 0 {
		return fmt.Errorf("otp: negative attempts %d", o.Attempts)
	}
	return nil
}
