package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"github.com/dropDatabas3/authcore/internal/domain"
	"github.com/dropDatabas3/authcore/internal/observability/logger"
	"github.com/dropDatabas3/authcore/internal/security/token"
	"github.com/dropDatabas3/authcore/internal/store"
)

// OTPPolicy es la política efectiva de un canal.
type OTPPolicy struct {
	Enabled     bool
	Length      int
	Expiry      time.Duration
	MaxAttempts int
}

// DefaultOTPPolicy aplica a los campos no configurados.
var DefaultOTPPolicy = OTPPolicy{Enabled: true, Length: 6, Expiry: 300 * time.Second, MaxAttempts: 3}

// ResolveOTPPolicy toma email.otp para el canal email y phone.otp para
// sms/whatsapp, completando campo a campo con DefaultOTPPolicy.
func ResolveOTPPolicy(cfg domain.AuthConfig, ch domain.OTPChannel) OTPPolicy {
	src := cfg.Email.OTP
	if ch.IsPhone() {
		src = cfg.Phone.OTP
	}
	p := DefaultOTPPolicy
	if src.Enabled != nil {
		p.Enabled = *src.Enabled
	}
	if src.Length > 0 {
		p.Length = src.Length
	}
	if src.ExpirySeconds > 0 {
		p.Expiry = time.Duration(src.ExpirySeconds) * time.Second
	}
	if src.MaxAttempts > 0 {
		p.MaxAttempts = src.MaxAttempts
	}
	return p
}

// Resultados de Verify.
const (
	OTPInvalidCode     = "INVALID_CODE"
	OTPExpired         = "EXPIRED"
	OTPTooManyAttempts = "TOO_MANY_ATTEMPTS"
)

// OTPResult es el resultado de Verify. Los fallos normales (código malo,
// vencido, agotado) viajan acá y no como error.
type OTPResult struct {
	IsValid bool `json:"isValid"`
	// Channel es el canal con que se emitió el OTP consumido.
	Channel domain.OTPChannel `json:"-"`
	Error   string            `json:"error,omitempty"`
}

// Err traduce un resultado fallido al error tipado OTP:<CODE>.
func (r OTPResult) Err() error {
	switch r.Error {
	case "":
		return nil
	case OTPExpired:
		return ErrOTPExpired
	case OTPTooManyAttempts:
		return ErrOTPTooManyAttempts
	default:
		return ErrOTPInvalidCode
	}
}

// NormalizeIdentifier recorta espacios y pasa emails a minúsculas.
func NormalizeIdentifier(identifier string) string {
	identifier = strings.TrimSpace(identifier)
	if strings.Contains(identifier, "@") {
		return strings.ToLower(identifier)
	}
	return identifier
}

// OTPManager emite y consume códigos de un solo uso. No entrega nada: el
// caller manda el código por el canal que corresponda.
type OTPManager struct {
	stores  store.Resolver
	configs ConfigSource
	now     Clock
}

type OTPOption func(*OTPManager)

func WithOTPClock(c Clock) OTPOption {
	return func(m *OTPManager) { m.now = c }
}

func NewOTPManager(stores store.Resolver, configs ConfigSource, opts ...OTPOption) *OTPManager {
	m := &OTPManager{stores: stores, configs: configs, now: time.Now}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Policy resuelve la política vigente de un canal para el tenant.
func (m *OTPManager) Policy(ctx context.Context, tenantID string, ch domain.OTPChannel) (OTPPolicy, error) {
	cfg, err := m.configs.Get(ctx, tenantID)
	if err != nil {
		return OTPPolicy{}, err
	}
	return ResolveOTPPolicy(cfg, ch), nil
}

// Generate emite un código nuevo y reemplaza cualquier OTP previo de la
// misma (tenant, identifier, purpose) en una sola escritura.
func (m *OTPManager) Generate(ctx context.Context, tenantID, identifier string, ch domain.OTPChannel, purpose domain.OTPPurpose) (string, error) {
	identifier = NormalizeIdentifier(identifier)
	if identifier == "" {
		return "", ErrInvalidRequest.WithMessage("identifier is required")
	}
	p, err := m.Policy(ctx, tenantID, ch)
	if err != nil {
		return "", err
	}
	if !p.Enabled {
		return "", ErrOTPDisabled
	}
	code, err := token.NumericCode(p.Length)
	if err != nil {
		return "", fmt.Errorf("otp: code: %w", err)
	}
	a, err := m.stores.For(ctx, tenantID)
	if err != nil {
		return "", err
	}
	_, err = a.UpsertOTP(ctx, domain.OtpSession{
		TenantID:   tenantID,
		Identifier: identifier,
		Code:       code,
		Purpose:    purpose,
		Channel:    ch,
		ExpiresAt:  m.now().Add(p.Expiry).UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("otp: store: %w", err)
	}
	logger.From(ctx).Info("otp issued",
		logger.TenantID(tenantID), logger.Identifier(identifier), logger.Channel(string(ch)), logger.Purpose(string(purpose)))
	return code, nil
}

// Verify consume el OTP si code coincide. Solo devuelve error por fallas
// de infraestructura.
func (m *OTPManager) Verify(ctx context.Context, tenantID, identifier, code string, purpose domain.OTPPurpose) (OTPResult, error) {
	identifier = NormalizeIdentifier(identifier)
	log := logger.From(ctx).With(logger.TenantID(tenantID), logger.Identifier(identifier), logger.Purpose(string(purpose)))

	a, err := m.stores.For(ctx, tenantID)
	if err != nil {
		return OTPResult{}, err
	}
	o, err := a.GetOTP(ctx, tenantID, identifier, purpose)
	if err != nil {
		return OTPResult{}, fmt.Errorf("otp: get: %w", err)
	}
	if o == nil {
		return OTPResult{Error: OTPInvalidCode}, nil
	}

	p, err := m.Policy(ctx, tenantID, o.Channel)
	if err != nil {
		return OTPResult{}, err
	}

	// El intento se cuenta antes de comparar; el store decide vencido o
	// agotado sobre el valor actual, no sobre la lectura de arriba.
	r, st, err := a.ReserveOTPAttempt(ctx, tenantID, identifier, purpose, o.ID, p.MaxAttempts, m.now())
	if err != nil {
		return OTPResult{}, fmt.Errorf("otp: reserve attempt: %w", err)
	}
	switch st {
	case store.OTPAttemptMissing:
		return OTPResult{Error: OTPInvalidCode}, nil
	case store.OTPAttemptExpired:
		log.Debug("otp expired")
		return OTPResult{Error: OTPExpired}, nil
	case store.OTPAttemptExhausted:
		log.Info("otp exhausted", logger.Int("max_attempts", p.MaxAttempts))
		return OTPResult{Error: OTPTooManyAttempts}, nil
	}

	if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(code)), []byte(r.Code)) != 1 {
		log.Debug("otp mismatch", logger.Int("attempts", r.Attempts))
		return OTPResult{Error: OTPInvalidCode}, nil
	}

	ok, err := a.ConsumeOTP(ctx, tenantID, identifier, purpose, r.ID)
	if err != nil {
		return OTPResult{}, fmt.Errorf("otp: consume: %w", err)
	}
	if !ok {
		log.Debug("otp already consumed")
		return OTPResult{Error: OTPInvalidCode}, nil
	}
	log.Info("otp consumed")
	return OTPResult{IsValid: true, Channel: r.Channel}, nil
}
