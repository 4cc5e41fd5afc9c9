package providers

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/dropDatabas3/authcore/internal/auth"
	"github.com/dropDatabas3/authcore/internal/domain"
	"github.com/dropDatabas3/authcore/internal/security/password"
	"github.com/dropDatabas3/authcore/internal/store"
)

const (
	maxUsernameLen   = 32
	usernameAttempts = 3
)

// EmailPassword es el provider de credenciales locales.
type EmailPassword struct {
	stores    store.Resolver
	configs   auth.ConfigSource
	validator *password.Validator
}

var _ auth.SignUpProvider = (*EmailPassword)(nil)

func NewEmailPassword(stores store.Resolver, configs auth.ConfigSource, v *password.Validator) *EmailPassword {
	if v == nil {
		v = &password.Validator{}
	}
	return &EmailPassword{stores: stores, configs: configs, validator: v}
}

func (p *EmailPassword) ID() string { return domain.ProviderEmailPassword }

// SignIn no distingue usuario inexistente de password incorrecto.
func (p *EmailPassword) SignIn(ctx context.Context, creds auth.Credentials) (*domain.User, error) {
	a, err := p.stores.For(ctx, creds.TenantID)
	if err != nil {
		return nil, err
	}
	u, err := a.VerifyPassword(ctx, creds.TenantID, creds.Identifier, creds.Password)
	if err != nil {
		return nil, fmt.Errorf("email_password: verify: %w", err)
	}
	if u == nil {
		return nil, auth.ErrInvalidCredentials
	}
	return u, nil
}

// SignUp aplica, en orden: registro habilitado, email válido y permitido,
// política de password del tenant y unicidad del email.
func (p *EmailPassword) SignUp(ctx context.Context, creds auth.Credentials) (*domain.User, error) {
	cfg, err := p.configs.Get(ctx, creds.TenantID)
	if err != nil {
		return nil, err
	}
	if !cfg.AllowRegistration {
		return nil, auth.ErrRegistrationDisabled
	}
	email := domain.NormalizeEmail(creds.Identifier)
	if !validEmail(email) || !cfg.EmailDomainAllowed(email) {
		return nil, auth.ErrInvalidEmail
	}

	res := p.validator.Validate(creds.Password, cfg.PasswordPolicy, &password.UserContext{
		Email:    email,
		Username: creds.Username,
		Name:     creds.Name,
	})
	if !res.IsValid {
		return nil, auth.ErrWeakPassword.WithDetails(res.Errors...)
	}

	a, err := p.stores.For(ctx, creds.TenantID)
	if err != nil {
		return nil, err
	}
	in := domain.NewUser{
		Email:       email,
		Name:        strings.TrimSpace(creds.Name),
		DisplayName: strings.TrimSpace(creds.Name),
		Password:    creds.Password,
	}

	explicit := strings.TrimSpace(creds.Username) != ""
	base := strings.TrimSpace(creds.Username)
	if !explicit {
		base = DeriveUsername(email)
	}
	in.Username = base
	for attempt := 0; ; attempt++ {
		u, err := a.CreateUser(ctx, creds.TenantID, in)
		switch {
		case err == nil:
			return u, nil
		case errors.Is(err, store.ErrEmailInUse):
			return nil, auth.ErrEmailInUse
		case errors.Is(err, store.ErrUsernameInUse):
			if explicit {
				return nil, auth.ErrInvalidRequest.WithMessage("Username already in use")
			}
			if attempt+1 >= usernameAttempts {
				return nil, fmt.Errorf("email_password: no free username for %q", base)
			}
			in.Username = base + "-" + randomSuffix()
		case errors.Is(err, store.ErrInvalidInput):
			return nil, auth.ErrInvalidRequest.WithCause(err)
		default:
			return nil, fmt.Errorf("email_password: create user: %w", err)
		}
	}
}

func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return false
	}
	at := strings.LastIndexByte(email, '@')
	return at > 0 && strings.Contains(email[at+1:], ".")
}

// DeriveUsername arma un username a partir de la parte local del email:
// minúsculas, solo [a-z0-9._-], máximo 32 caracteres.
func DeriveUsername(email string) string {
	local := email
	if at := strings.IndexByte(email, '@'); at >= 0 {
		local = email[:at]
	}
	var b strings.Builder
	for _, r := range strings.ToLower(local) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		}
		if b.Len() >= maxUsernameLen {
			break
		}
	}
	out := strings.Trim(b.String(), "._-")
	if len(out) < 3 {
		return "user"
	}
	return out
}

func randomSuffix() string {
	b := make([]byte, 3)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
