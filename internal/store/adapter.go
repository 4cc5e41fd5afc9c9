package store

import (
	"context"
	"errors"
	"time"

	"github.com/dropDatabas3/authcore/internal/domain"
)

var (
	// ErrEmailInUse indica colisión de (tenant, email) al crear un usuario.
	ErrEmailInUse = errors.New("store: email already in use")
	// ErrUsernameInUse indica colisión de (tenant, username).
	ErrUsernameInUse = errors.New("store: username already in use")
	// ErrUnknownDriver indica un driver no registrado.
	ErrUnknownDriver = errors.New("store: unknown driver")
	// ErrInvalidInput indica datos de alta inválidos (email vacío, etc).
	ErrInvalidInput = errors.New("store: invalid input")
	// ErrInvalidRecord indica una fila/registro que no pasa el mapeo a dominio.
	ErrInvalidRecord = errors.New("store: invalid record")
)

// Adapter es la superficie de persistencia que todo backend implementa.
type Adapter interface {
	Name() string

	// ─── Users ───

	CreateUser(ctx context.Context, tenantID string, in domain.NewUser) (*domain.User, error)
	GetUser(ctx context.Context, tenantID, id string) (*domain.User, error)
	GetUserByEmail(ctx context.Context, tenantID, email string) (*domain.User, error)
	GetUserByUsername(ctx context.Context, tenantID, username string) (*domain.User, error)
	GetUserByPhone(ctx context.Context, tenantID, phone string) (*domain.User, error)
	ListUsers(ctx context.Context, tenantID string, opts domain.ListOptions) ([]domain.User, error)
	// UpdateUser devuelve (nil, nil) si el usuario no existe.
	UpdateUser(ctx context.Context, tenantID, id string, patch domain.UserPatch) (*domain.User, error)
	// DeleteUser es idempotente y borra las sesiones del usuario.
	DeleteUser(ctx context.Context, tenantID, id string) error
	// VerifyPassword busca por email o username dentro del tenant.
	VerifyPassword(ctx context.Context, tenantID, identifier, plain string) (*domain.User, error)

	// ─── Sessions ───

	CreateSession(ctx context.Context, s domain.Session) (*domain.Session, error)
	GetSessionByToken(ctx context.Context, token string) (*domain.Session, error)
	ListUserSessions(ctx context.Context, tenantID, userID string) ([]domain.Session, error)
	DeleteSession(ctx context.Context, token string) error
	DeleteUserSessions(ctx context.Context, tenantID, userID string) (int, error)

	// ─── OTP ───

	// UpsertOTP reemplaza cualquier OTP previo de (tenant, identifier, purpose).
	UpsertOTP(ctx context.Context, o domain.OtpSession) (*domain.OtpSession, error)
	GetOTP(ctx context.Context, tenantID, identifier string, purpose domain.OTPPurpose) (*domain.OtpSession, error)
	// IncrementOTPAttempts devuelve el contador resultante; 0 si no existe.
	IncrementOTPAttempts(ctx context.Context, tenantID, identifier string, purpose domain.OTPPurpose) (int, error)
	// ReserveOTPAttempt, en un solo paso atómico sobre el OTP con ese id:
	// si venció lo borra (OTPAttemptExpired); si attempts >= maxAttempts lo
	// borra (OTPAttemptExhausted); si no, incrementa attempts y devuelve el
	// registro ya incrementado (OTPAttemptGranted). Otro id o ningún
	// registro: OTPAttemptMissing.
	ReserveOTPAttempt(ctx context.Context, tenantID, identifier string, purpose domain.OTPPurpose, id string, maxAttempts int, now time.Time) (*domain.OtpSession, OTPAttempt, error)
	// ConsumeOTP borra el OTP solo si sigue siendo el de ese id. true solo
	// para el caller que efectivamente lo borró.
	ConsumeOTP(ctx context.Context, tenantID, identifier string, purpose domain.OTPPurpose, id string) (bool, error)
	DeleteOTP(ctx context.Context, tenantID, identifier string, purpose domain.OTPPurpose) error

	// ─── AuthConfig ───

	GetAuthConfig(ctx context.Context, tenantID string) (*domain.AuthConfig, error)
	// UpsertAuthConfig crea el config con defaults si no existe y le aplica el patch.
	UpsertAuthConfig(ctx context.Context, tenantID string, patch domain.AuthConfigPatch) (*domain.AuthConfig, error)

	// ─── Housekeeping ───

	PurgeExpired(ctx context.Context, now time.Time) (PurgeStats, error)
	Ping(ctx context.Context) error
	Close() error
}

// OTPAttempt es el resultado de ReserveOTPAttempt.
type OTPAttempt int

const (
	OTPAttemptMissing OTPAttempt = iota
	OTPAttemptGranted
	OTPAttemptExpired
	OTPAttemptExhausted
)

func (a OTPAttempt) String() string {
	switch a {
	case OTPAttemptGranted:
		return "granted"
	case OTPAttemptExpired:
		return "expired"
	case OTPAttemptExhausted:
		return "exhausted"
	}
	return "missing"
}

// PurgeStats reporta lo eliminado por un barrido de expirados.
type PurgeStats struct {
	Sessions int
	OTPs     int
}

// Resolver devuelve el Adapter que guarda los datos de un tenant.
type Resolver interface {
	For(ctx context.Context, tenantID string) (Adapter, error)
}

// Static resuelve todos los tenants al mismo adapter (tests, single store).
func Static(a Adapter) Resolver { return staticResolver{a} }

type staticResolver struct{ a Adapter }

func (s staticResolver) For(context.Context, string) (Adapter, error) { return s.a, nil }
