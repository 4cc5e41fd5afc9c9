// Package providers implementa los providers de identidad: credenciales
// locales (email_password) y OAuth (google, github). Los providers OAuth
// resuelven un perfil externo contra el adapter del tenant.
package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/dropDatabas3/authcore/internal/auth"
	"github.com/dropDatabas3/authcore/internal/domain"
	"github.com/dropDatabas3/authcore/internal/observability/logger"
	"github.com/dropDatabas3/authcore/internal/store"
)

const httpTimeout = 10 * time.Second

// Endpoints de un provider OAuth. Reemplazables en tests.
type Endpoints struct {
	Auth     string
	Token    string
	UserInfo string
	Emails   string // solo GitHub
}

// ClientCredentials son las credenciales OAuth efectivas de un tenant.
type ClientCredentials struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// Profile es el perfil normalizado que devuelve el provider externo.
type Profile struct {
	ProviderUserID string
	Email          string
	EmailVerified  bool
	Name           string
	AvatarURL      string
}

type OAuthOption func(*oauthClient)

// WithEndpoints reemplaza los endpoints del provider.
func WithEndpoints(ep Endpoints) OAuthOption {
	return func(c *oauthClient) {
		if ep.Auth != "" {
			c.endpoints.Auth = ep.Auth
		}
		if ep.Token != "" {
			c.endpoints.Token = ep.Token
		}
		if ep.UserInfo != "" {
			c.endpoints.UserInfo = ep.UserInfo
		}
		if ep.Emails != "" {
			c.endpoints.Emails = ep.Emails
		}
	}
}

func WithHTTPClient(hc *http.Client) OAuthOption {
	return func(c *oauthClient) { c.http = hc }
}

// WithEnv reemplaza os.Getenv para el fallback de credenciales.
func WithEnv(getenv func(string) string) OAuthOption {
	return func(c *oauthClient) { c.getenv = getenv }
}

// oauthClient es la parte común de google y github: credenciales por
// tenant, canje del code y alta/refresco del usuario.
type oauthClient struct {
	id        string
	envPrefix string
	scopes    []string
	endpoints Endpoints
	stores    store.Resolver
	configs   auth.ConfigSource
	http      *http.Client
	getenv    func(string) string
}

func newOAuthClient(id, envPrefix string, scopes []string, ep Endpoints, stores store.Resolver, configs auth.ConfigSource, opts []OAuthOption) *oauthClient {
	c := &oauthClient{
		id:        id,
		envPrefix: envPrefix,
		scopes:    scopes,
		endpoints: ep,
		stores:    stores,
		configs:   configs,
		http:      &http.Client{Timeout: httpTimeout},
		getenv:    os.Getenv,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// credentials toma lo configurado en el tenant y completa los vacíos con
// <PREFIX>_CLIENT_ID / _CLIENT_SECRET / _REDIRECT_URI.
func (c *oauthClient) credentials(cfg domain.AuthConfig) (ClientCredentials, error) {
	ps := cfg.Providers[c.id]
	cc := ClientCredentials{ClientID: ps.ClientID, ClientSecret: ps.ClientSecret, RedirectURI: ps.RedirectURI}
	if cc.ClientID == "" {
		cc.ClientID = c.getenv(c.envPrefix + "_CLIENT_ID")
	}
	if cc.ClientSecret == "" {
		cc.ClientSecret = c.getenv(c.envPrefix + "_CLIENT_SECRET")
	}
	if cc.RedirectURI == "" {
		cc.RedirectURI = c.getenv(c.envPrefix + "_REDIRECT_URI")
	}
	if cc.ClientID == "" || cc.ClientSecret == "" {
		return ClientCredentials{}, auth.ErrProviderNotFound.WithMessage(c.id + " credentials are not configured")
	}
	return cc, nil
}

func (c *oauthClient) authURL(ctx context.Context, tenantID, state string, extra url.Values) (string, error) {
	cfg, err := c.configs.Get(ctx, tenantID)
	if err != nil {
		return "", err
	}
	cc, err := c.credentials(cfg)
	if err != nil {
		return "", err
	}
	u, err := url.Parse(c.endpoints.Auth)
	if err != nil {
		return "", fmt.Errorf("%s: auth endpoint: %w", c.id, err)
	}
	q := u.Query()
	q.Set("response_type", "code")
	q.Set("client_id", cc.ClientID)
	q.Set("redirect_uri", cc.RedirectURI)
	q.Set("scope", strings.Join(c.scopes, " "))
	q.Set("state", state)
	for k, vs := range extra {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Error       string `json:"error,omitempty"`
	ErrorDesc   string `json:"error_description,omitempty"`
}

// exchange canjea el authorization code por un access token. Un code
// rechazado por el provider es invalid-credentials.
func (c *oauthClient) exchange(ctx context.Context, cc ClientCredentials, code string) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", cc.ClientID)
	form.Set("client_secret", cc.ClientSecret)
	form.Set("code", code)
	form.Set("redirect_uri", cc.RedirectURI)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoints.Token, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%s: token endpoint: %w", c.id, err)
	}
	defer resp.Body.Close()

	var tr tokenResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&tr); err != nil {
		return "", fmt.Errorf("%s: decode token response: %w", c.id, err)
	}
	if resp.StatusCode/100 != 2 || tr.Error != "" || tr.AccessToken == "" {
		return "", auth.ErrInvalidCredentials.WithCause(fmt.Errorf("%s: token exchange rejected: status %d %s %s", c.id, resp.StatusCode, tr.Error, tr.ErrorDesc))
	}
	return tr.AccessToken, nil
}

// getJSON hace un GET autenticado con el access token.
func (c *oauthClient) getJSON(ctx context.Context, endpoint, accessToken string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %s: %w", c.id, endpoint, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: %s: status %d", c.id, endpoint, resp.StatusCode)
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(out); err != nil {
		return fmt.Errorf("%s: decode %s: %w", c.id, endpoint, err)
	}
	return nil
}

// signIn es el flujo completo: credenciales del tenant, canje, perfil y
// resolución contra el adapter.
func (c *oauthClient) signIn(ctx context.Context, creds auth.Credentials, fetch func(ctx context.Context, accessToken string) (*Profile, error)) (*domain.User, error) {
	if strings.TrimSpace(creds.Code) == "" {
		return nil, auth.ErrInvalidCredentials
	}
	cfg, err := c.configs.Get(ctx, creds.TenantID)
	if err != nil {
		return nil, err
	}
	cc, err := c.credentials(cfg)
	if err != nil {
		return nil, err
	}
	at, err := c.exchange(ctx, cc, creds.Code)
	if err != nil {
		return nil, err
	}
	prof, err := fetch(ctx, at)
	if err != nil {
		return nil, err
	}
	prof.Email = domain.NormalizeEmail(prof.Email)
	if prof.Email == "" {
		return nil, auth.ErrInvalidEmail.WithMessage("The provider did not return an email")
	}
	return c.provision(ctx, cfg, prof)
}

// provision devuelve el usuario con ese email o lo crea sin password.
// Un usuario existente recibe nombre y avatar actualizados.
func (c *oauthClient) provision(ctx context.Context, cfg domain.AuthConfig, prof *Profile) (*domain.User, error) {
	tenantID := cfg.TenantID
	log := logger.From(ctx).With(logger.TenantID(tenantID), logger.Provider(c.id))
	a, err := c.stores.For(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	u, err := a.GetUserByEmail(ctx, tenantID, prof.Email)
	if err != nil {
		return nil, fmt.Errorf("%s: lookup user: %w", c.id, err)
	}
	if u != nil {
		return c.refresh(ctx, a, u, prof)
	}

	if !cfg.AllowRegistration {
		return nil, auth.ErrRegistrationDisabled
	}
	if !cfg.EmailDomainAllowed(prof.Email) {
		return nil, auth.ErrInvalidEmail
	}
	meta := map[string]any{
		"provider":         c.id,
		"provider_user_id": prof.ProviderUserID,
	}
	if prof.AvatarURL != "" {
		meta["avatar_url"] = prof.AvatarURL
	}
	u, err = a.CreateUser(ctx, tenantID, domain.NewUser{
		Email:         prof.Email,
		Name:          prof.Name,
		DisplayName:   prof.Name,
		EmailVerified: prof.EmailVerified,
		Metadata:      meta,
	})
	if errors.Is(err, store.ErrEmailInUse) {
		// alta concurrente del mismo email
		u, err = a.GetUserByEmail(ctx, tenantID, prof.Email)
		if err == nil && u == nil {
			err = store.ErrEmailInUse
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%s: create user: %w", c.id, err)
	}
	log.Info("user provisioned from oauth profile", logger.UserID(u.ID))
	return u, nil
}

func (c *oauthClient) refresh(ctx context.Context, a store.Adapter, u *domain.User, prof *Profile) (*domain.User, error) {
	var patch domain.UserPatch
	changed := false
	if prof.Name != "" && prof.Name != u.Name {
		patch.Name = &prof.Name
		changed = true
	}
	if prof.AvatarURL != "" && u.Metadata["avatar_url"] != prof.AvatarURL {
		patch.Metadata = map[string]any{"avatar_url": prof.AvatarURL}
		changed = true
	}
	if prof.EmailVerified && !u.EmailVerified {
		yes := true
		patch.EmailVerified = &yes
		changed = true
	}
	if !changed {
		return u, nil
	}
	nu, err := a.UpdateUser(ctx, u.TenantID, u.ID, patch)
	if err != nil {
		return nil, fmt.Errorf("%s: refresh profile: %w", c.id, err)
	}
	if nu == nil {
		return u, nil
	}
	return nu, nil
}
