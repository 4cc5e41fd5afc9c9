package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dropDatabas3/authcore/internal/audit"
	"github.com/dropDatabas3/authcore/internal/domain"
	"github.com/dropDatabas3/authcore/internal/notify"
	"github.com/dropDatabas3/authcore/internal/observability/logger"
	"github.com/dropDatabas3/authcore/internal/rate"
	"github.com/dropDatabas3/authcore/internal/security/password"
	"github.com/dropDatabas3/authcore/internal/security/token"
	"github.com/dropDatabas3/authcore/internal/store"
)

// Limits agrupa los limiters por identificador (tenant + email/phone).
// Los límites por IP viven en el middleware HTTP.
type Limits struct {
	Login  rate.Limiter
	Signup rate.Limiter
	OTP    rate.Limiter
}

// Deps son las dependencias del Engine. Solo Stores es obligatorio.
type Deps struct {
	Stores    store.Resolver
	Configs   ConfigSource
	Sessions  *SessionManager
	OTP       *OTPManager
	Providers *Registry
	States    *StateSigner
	Notifier  notify.Sender
	Limits    Limits
	Validator *password.Validator
	Observer  Observer
	Clock     Clock
}

// AuthResult es el resultado de un login exitoso.
type AuthResult struct {
	User    *domain.User
	Session *domain.Session
}

// Principal es el caller autenticado de un request.
type Principal struct {
	User    *domain.User
	Session *domain.Session
}

// Engine es la fachada del núcleo de auth. Es seguro para uso concurrente.
type Engine struct {
	stores    store.Resolver
	configs   ConfigSource
	sessions  *SessionManager
	otp       *OTPManager
	providers *Registry
	states    *StateSigner
	notifier  notify.Sender
	limits    Limits
	validator *password.Validator
	obs       Observer
	now       Clock
}

func NewEngine(d Deps) (*Engine, error) {
	if d.Stores == nil {
		return nil, errors.New("auth: engine needs a store resolver")
	}
	e := &Engine{
		stores:    d.Stores,
		configs:   d.Configs,
		sessions:  d.Sessions,
		otp:       d.OTP,
		providers: d.Providers,
		states:    d.States,
		notifier:  d.Notifier,
		limits:    d.Limits,
		validator: d.Validator,
		obs:       d.Observer,
		now:       d.Clock,
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.configs == nil {
		e.configs = StoreConfigs(e.stores)
	}
	if e.sessions == nil {
		e.sessions = NewSessionManager(e.stores, DefaultSessionDuration, WithSessionClock(e.now))
	}
	if e.otp == nil {
		e.otp = NewOTPManager(e.stores, e.configs, WithOTPClock(e.now))
	}
	if e.providers == nil {
		e.providers = NewRegistry()
	}
	if e.notifier == nil {
		e.notifier = notify.Router{}
	}
	if e.validator == nil {
		e.validator = &password.Validator{}
	}
	if e.obs == nil {
		e.obs = nopObserver{}
	}
	if e.limits.Login == nil {
		e.limits.Login = rate.Unlimited{}
	}
	if e.limits.Signup == nil {
		e.limits.Signup = rate.Unlimited{}
	}
	if e.limits.OTP == nil {
		e.limits.OTP = rate.Unlimited{}
	}
	return e, nil
}

func (e *Engine) Sessions() *SessionManager { return e.sessions }
func (e *Engine) Providers() *Registry      { return e.providers }

// fail traduce err a *Error; lo que no es de auth se loguea y sale como
// internal-error.
func (e *Engine) fail(ctx context.Context, op string, err error) error {
	ae := AsError(err)
	if ae.Code == CodeInternal {
		logger.From(ctx).Error("auth operation failed", logger.Op(op), logger.Err(err))
	}
	return ae
}

func checkTenant(tenantID string) error {
	if token.ValidateTenantID(tenantID) != nil {
		return ErrInvalidRequest.WithMessage("invalid tenantId")
	}
	return nil
}

// limit aplica l sobre key. Un limiter caído no bloquea el login.
func (e *Engine) limit(ctx context.Context, l rate.Limiter, key string) error {
	res, err := l.Allow(ctx, key)
	if err != nil {
		logger.From(ctx).Warn("rate limiter unavailable", logger.Err(err))
		return nil
	}
	if !res.Allowed {
		secs := int(res.RetryAfter.Round(time.Second) / time.Second)
		return ErrRateLimited.WithDetails(fmt.Sprintf("retry after %ds", secs))
	}
	return nil
}

func (e *Engine) enabledProvider(ctx context.Context, tenantID, providerID string) (Provider, domain.AuthConfig, error) {
	p, err := e.providers.Get(providerID)
	if err != nil {
		return nil, domain.AuthConfig{}, ErrProviderNotFound
	}
	cfg, err := e.configs.Get(ctx, tenantID)
	if err != nil {
		return nil, domain.AuthConfig{}, err
	}
	if !cfg.ProviderEnabled(providerID) {
		return nil, domain.AuthConfig{}, ErrProviderNotFound.WithMessage("Provider is disabled for this tenant")
	}
	return p, cfg, nil
}

// EnabledProviders lista los providers registrados y habilitados para el
// tenant, en orden estable.
func (e *Engine) EnabledProviders(ctx context.Context, tenantID string) ([]string, error) {
	if err := checkTenant(tenantID); err != nil {
		return nil, err
	}
	cfg, err := e.configs.Get(ctx, tenantID)
	if err != nil {
		return nil, e.fail(ctx, "providers", err)
	}
	out := make([]string, 0, len(e.providers.IDs()))
	for _, id := range e.providers.IDs() {
		if cfg.ProviderEnabled(id) {
			out = append(out, id)
		}
	}
	return out, nil
}

// ─── Sign in / sign up ───

// SignIn autentica con el provider y emite una sesión. Usuario inexistente,
// password incorrecto y usuario inactivo dan el mismo invalid-credentials.
func (e *Engine) SignIn(ctx context.Context, providerID string, creds Credentials, meta SessionMeta) (res *AuthResult, err error) {
	defer func() { e.obs.AuthAttempt(providerID, outcome(err)) }()

	if err := checkTenant(creds.TenantID); err != nil {
		return nil, err
	}
	creds.Identifier = NormalizeIdentifier(creds.Identifier)
	if creds.Identifier != "" {
		if err := e.limit(ctx, e.limits.Login, creds.TenantID+":"+creds.Identifier); err != nil {
			return nil, err
		}
	}
	p, _, err := e.enabledProvider(ctx, creds.TenantID, providerID)
	if err != nil {
		return nil, e.fail(ctx, "signin", err)
	}
	u, err := p.SignIn(ctx, creds)
	if err != nil {
		return nil, e.fail(ctx, "signin", err)
	}
	if u == nil || !u.IsActive || u.TenantID != creds.TenantID {
		return nil, ErrInvalidCredentials
	}
	if meta.AuthMethod == "" {
		meta.AuthMethod = domain.AuthMethodPassword
	}
	return e.issue(ctx, u, meta)
}

// SignUp da de alta con el provider (que aplica la política del tenant) y
// deja al usuario logueado.
func (e *Engine) SignUp(ctx context.Context, providerID string, creds Credentials, meta SessionMeta) (res *AuthResult, err error) {
	defer func() { e.obs.AuthAttempt("signup", outcome(err)) }()

	if err := checkTenant(creds.TenantID); err != nil {
		return nil, err
	}
	creds.Identifier = NormalizeIdentifier(creds.Identifier)
	if creds.Identifier == "" || creds.Password == "" {
		return nil, ErrInvalidRequest.WithMessage("email and password are required")
	}
	if err := e.limit(ctx, e.limits.Signup, creds.TenantID+":"+creds.Identifier); err != nil {
		return nil, err
	}
	p, _, err := e.enabledProvider(ctx, creds.TenantID, providerID)
	if err != nil {
		return nil, e.fail(ctx, "signup", err)
	}
	sp, ok := p.(SignUpProvider)
	if !ok {
		return nil, ErrProviderNotFound.WithMessage("Provider does not support sign up")
	}
	u, err := sp.SignUp(ctx, creds)
	if err != nil {
		return nil, e.fail(ctx, "signup", err)
	}
	audit.Log(ctx, audit.UserSignedUp, u.TenantID, "", logger.UserID(u.ID), logger.Provider(providerID))
	meta.AuthMethod = domain.AuthMethodSignup
	return e.issue(ctx, u, meta)
}

func (e *Engine) issue(ctx context.Context, u *domain.User, meta SessionMeta) (*AuthResult, error) {
	s, err := e.sessions.Create(ctx, u, meta)
	if err != nil {
		return nil, e.fail(ctx, "session.create", err)
	}
	return &AuthResult{User: u, Session: s}, nil
}

// ─── OAuth ───

// OAuthStart devuelve la URL de consentimiento del provider con un state
// firmado que ata tenant y provider.
func (e *Engine) OAuthStart(ctx context.Context, tenantID, providerID string) (string, error) {
	if err := checkTenant(tenantID); err != nil {
		return "", err
	}
	if e.states == nil {
		return "", ErrProviderNotFound.WithMessage("OAuth is not configured")
	}
	p, _, err := e.enabledProvider(ctx, tenantID, providerID)
	if err != nil {
		return "", e.fail(ctx, "oauth.start", err)
	}
	op, ok := p.(OAuthProvider)
	if !ok {
		return "", ErrProviderNotFound.WithMessage("Provider is not an OAuth provider")
	}
	state, err := e.states.Sign(tenantID, providerID)
	if err != nil {
		return "", e.fail(ctx, "oauth.state", err)
	}
	u, err := op.AuthURL(ctx, tenantID, state)
	if err != nil {
		return "", e.fail(ctx, "oauth.start", err)
	}
	return u, nil
}

// OAuthCallback valida el state, canjea el code y emite la sesión.
func (e *Engine) OAuthCallback(ctx context.Context, providerID, code, state string, meta SessionMeta) (*AuthResult, error) {
	if e.states == nil {
		return nil, ErrProviderNotFound.WithMessage("OAuth is not configured")
	}
	if strings.TrimSpace(code) == "" {
		return nil, ErrInvalidRequest.WithMessage("missing authorization code")
	}
	claims, err := e.states.Parse(state, providerID)
	if err != nil {
		return nil, ErrInvalidRequest.WithMessage("invalid oauth state").WithCause(err)
	}
	meta.AuthMethod = providerID
	return e.SignIn(ctx, providerID, Credentials{TenantID: claims.TenantID, Code: code}, meta)
}

// ─── Sesión actual ───

// Authenticate resuelve el bearer token a un Principal.
func (e *Engine) Authenticate(ctx context.Context, tok string) (*Principal, error) {
	s, err := e.sessions.Validate(ctx, tok)
	if err != nil {
		return nil, e.fail(ctx, "session.validate", err)
	}
	if s == nil {
		return nil, ErrUnauthorized
	}
	a, err := e.stores.For(ctx, s.TenantID)
	if err != nil {
		return nil, e.fail(ctx, "authenticate", err)
	}
	u, err := a.GetUser(ctx, s.TenantID, s.UserID)
	if err != nil {
		return nil, e.fail(ctx, "authenticate", err)
	}
	if u == nil || !u.IsActive {
		return nil, ErrUnauthorized
	}
	return &Principal{User: u, Session: s}, nil
}

func (e *Engine) Me(ctx context.Context, tok string) (*domain.User, *domain.Session, error) {
	p, err := e.Authenticate(ctx, tok)
	if err != nil {
		return nil, nil, err
	}
	return p.User, p.Session, nil
}

// SignOut es idempotente.
func (e *Engine) SignOut(ctx context.Context, tok string) error {
	if err := e.sessions.Destroy(ctx, tok); err != nil {
		return e.fail(ctx, "signout", err)
	}
	return nil
}

// ─── OTP ───

// OTPRequest pide un código para identifier por channel.
type OTPRequest struct {
	TenantID   string
	Identifier string
	Channel    domain.OTPChannel
	Purpose    domain.OTPPurpose
}

func (r OTPRequest) validate() error {
	if err := checkTenant(r.TenantID); err != nil {
		return err
	}
	if strings.TrimSpace(r.Identifier) == "" {
		return ErrInvalidRequest.WithMessage("identifier is required")
	}
	if _, err := domain.ParseChannel(string(r.Channel)); err != nil {
		return ErrInvalidRequest.WithMessage("invalid channel")
	}
	if _, err := domain.ParsePurpose(string(r.Purpose)); err != nil {
		return ErrInvalidRequest.WithMessage("invalid purpose")
	}
	return nil
}

func loginMethodAllowsOTP(cfg domain.AuthConfig, ch domain.OTPChannel) bool {
	if ch.IsPhone() {
		return cfg.LoginMethods.Phone.OTP
	}
	return cfg.LoginMethods.Email.OTP
}

// RequestOTP genera y entrega un código. La respuesta no depende de que
// exista un usuario con ese identifier. Devuelve la validez del código.
func (e *Engine) RequestOTP(ctx context.Context, r OTPRequest) (time.Duration, error) {
	if err := r.validate(); err != nil {
		return 0, err
	}
	r.Identifier = NormalizeIdentifier(r.Identifier)
	if err := e.limit(ctx, e.limits.OTP, r.TenantID+":"+r.Identifier); err != nil {
		return 0, err
	}
	cfg, err := e.configs.Get(ctx, r.TenantID)
	if err != nil {
		return 0, e.fail(ctx, "otp.request", err)
	}
	if r.Purpose == domain.PurposeLogin && !loginMethodAllowsOTP(cfg, r.Channel) {
		return 0, ErrOTPDisabled
	}
	code, err := e.otp.Generate(ctx, r.TenantID, r.Identifier, r.Channel, r.Purpose)
	if err != nil {
		if errors.Is(err, ErrOTPDisabled) {
			return 0, ErrOTPDisabled
		}
		return 0, e.fail(ctx, "otp.generate", err)
	}
	policy := ResolveOTPPolicy(cfg, r.Channel)
	err = e.notifier.Send(ctx, notify.Message{
		TenantID:  r.TenantID,
		Channel:   r.Channel,
		Purpose:   r.Purpose,
		To:        r.Identifier,
		Code:      code,
		ExpiresIn: policy.Expiry,
		AppName:   cfg.Branding.AppName,
	})
	if err != nil {
		return 0, e.fail(ctx, "otp.deliver", err)
	}
	e.obs.OTPIssued(string(r.Channel))
	return policy.Expiry, nil
}

// VerifyOTP consume el código. Para login emite una sesión (método otp);
// para verification marca el email o el teléfono como verificado.
func (e *Engine) VerifyOTP(ctx context.Context, r OTPRequest, code string, meta SessionMeta) (res *AuthResult, err error) {
	defer func() { e.obs.OTPVerified(outcome(err)) }()

	if err := r.validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(code) == "" {
		return nil, ErrInvalidOTP.WithMessage("code is required")
	}
	r.Identifier = NormalizeIdentifier(r.Identifier)
	vr, err := e.otp.Verify(ctx, r.TenantID, r.Identifier, code, r.Purpose)
	if err != nil {
		return nil, e.fail(ctx, "otp.verify", err)
	}
	if !vr.IsValid {
		return nil, vr.Err()
	}

	a, err := e.stores.For(ctx, r.TenantID)
	if err != nil {
		return nil, e.fail(ctx, "otp.verify", err)
	}
	// el canal del registro consumido manda sobre el de la request
	ch := vr.Channel
	if ch == "" {
		ch = r.Channel
	}
	var u *domain.User
	if ch.IsPhone() {
		u, err = a.GetUserByPhone(ctx, r.TenantID, r.Identifier)
	} else {
		u, err = a.GetUserByEmail(ctx, r.TenantID, r.Identifier)
	}
	if err != nil {
		return nil, e.fail(ctx, "otp.verify", err)
	}

	switch r.Purpose {
	case domain.PurposeVerification:
		if u == nil {
			return nil, ErrUserNotFound
		}
		yes := true
		patch := domain.UserPatch{EmailVerified: &yes}
		if ch.IsPhone() {
			patch = domain.UserPatch{PhoneVerified: &yes}
		}
		u, err = a.UpdateUser(ctx, r.TenantID, u.ID, patch)
		if err != nil {
			return nil, e.fail(ctx, "otp.verify", err)
		}
		if u == nil {
			return nil, ErrUserNotFound
		}
		return &AuthResult{User: u}, nil
	default:
		if u == nil || !u.IsActive {
			return nil, ErrInvalidCredentials
		}
		meta.AuthMethod = domain.AuthMethodOTP
		return e.issue(ctx, u, meta)
	}
}
