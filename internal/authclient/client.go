// Package authclient es el SDK HTTP de la API de auth. Lo usan authctl y
// cualquier servicio Go que necesite autenticar contra authd.
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dropDatabas3/authcore/internal/domain"
	"github.com/dropDatabas3/authcore/internal/http/dto"
)

// APIError es una respuesta no-2xx de la API.
type APIError struct {
	Status  int
	Code    string   `json:"code"`
	Message string   `json:"error"`
	Details []string `json:"details"`
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("authclient: status %d", e.Status)
	}
	return fmt.Sprintf("authclient: %s (%d): %s", e.Code, e.Status, e.Message)
}

// CodeOf devuelve el código estable de err ("" si no vino de la API).
func CodeOf(err error) string {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// Client habla con authd. Guarda el token del último login en su State.
type Client struct {
	baseURL string
	http    *http.Client
	state   *State
}

// Option configura un Client.
type Option func(*Client)

func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

// WithState comparte un State existente (por ejemplo, restaurado de disco).
func WithState(s *State) Option { return func(c *Client) { c.state = s } }

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	if c.state == nil {
		c.state = NewState()
	}
	return c
}

// State devuelve el cache del usuario actual.
func (c *Client) State() *State { return c.state }

// do ejecuta el request con el token actual (si hay). Un 401 sobre un
// request autenticado invalida el State.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		switch v := in.(type) {
		case json.RawMessage:
			body = bytes.NewReader(v)
		default:
			b, err := json.Marshal(in)
			if err != nil {
				return fmt.Errorf("authclient: encode: %w", err)
			}
			body = bytes.NewReader(b)
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	tok := c.state.Current().Token
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("authclient: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("authclient: read: %w", err)
	}

	if resp.StatusCode/100 != 2 {
		ae := &APIError{Status: resp.StatusCode}
		_ = json.Unmarshal(raw, ae)
		if resp.StatusCode == http.StatusUnauthorized && tok != "" {
			c.state.Clear()
		}
		return ae
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("authclient: decode: %w", err)
	}
	return nil
}

func withTenant(path, tenantID string, extra url.Values) string {
	q := url.Values{}
	for k, v := range extra {
		q[k] = v
	}
	q.Set("tenantId", tenantID)
	return path + "?" + q.Encode()
}

// ─── Sesión ───

// SignIn hace login con email/password y guarda la sesión en el State.
func (c *Client) SignIn(ctx context.Context, tenantID, email, password string) (*dto.LoginResponse, error) {
	var out dto.LoginResponse
	if err := c.do(ctx, http.MethodPost, "/login", dto.LoginRequest{Email: email, Password: password, TenantID: tenantID}, &out); err != nil {
		return nil, err
	}
	c.state.Set(out.Token, out.User)
	return &out, nil
}

// SignUp registra al usuario y lo deja logueado.
func (c *Client) SignUp(ctx context.Context, in dto.SignupRequest) (*dto.SignupResponse, error) {
	var out dto.SignupResponse
	if err := c.do(ctx, http.MethodPost, "/signup", in, &out); err != nil {
		return nil, err
	}
	if out.Token != "" {
		c.state.Set(out.Token, dto.UserSummary{ID: out.ID, Email: out.Email, TenantID: in.TenantID})
	}
	return &out, nil
}

// UseToken adopta un token obtenido por otra vía (OTP, OAuth) y lo valida
// contra /me.
func (c *Client) UseToken(ctx context.Context, token string) (*dto.MeResponse, error) {
	c.state.Set(token, dto.UserSummary{})
	me, err := c.Me(ctx)
	if err != nil {
		c.state.Clear()
		return nil, err
	}
	return me, nil
}

// Me consulta /me y refresca el State.
func (c *Client) Me(ctx context.Context) (*dto.MeResponse, error) {
	var out dto.MeResponse
	if err := c.do(ctx, http.MethodGet, "/me", nil, &out); err != nil {
		return nil, err
	}
	if tok := c.state.Current().Token; tok != "" && out.User != nil {
		c.state.Set(tok, dto.Summary(out.User))
	}
	return &out, nil
}

// SignOut revoca la sesión en el server y siempre limpia el State, aunque
// el request falle.
func (c *Client) SignOut(ctx context.Context) error {
	defer c.state.Clear()
	if c.state.Current().Token == "" {
		return nil
	}
	return c.do(ctx, http.MethodPost, "/logout", nil, nil)
}

// ─── Config ───

func (c *Client) GetConfig(ctx context.Context, tenantID string) (*domain.AuthConfig, error) {
	var out domain.AuthConfig
	if err := c.do(ctx, http.MethodGet, withTenant("/config", tenantID, nil), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateConfig envía un patch JSON parcial.
func (c *Client) UpdateConfig(ctx context.Context, tenantID string, patch json.RawMessage) (*dto.ConfigUpdateResponse, error) {
	var out dto.ConfigUpdateResponse
	if err := c.do(ctx, http.MethodPatch, withTenant("/config", tenantID, nil), patch, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) PasswordExamples(ctx context.Context, tenantID string) ([]string, error) {
	var out dto.ExamplesResponse
	if err := c.do(ctx, http.MethodGet, withTenant("/password-policy/examples", tenantID, nil), nil, &out); err != nil {
		return nil, err
	}
	return out.Examples, nil
}

func (c *Client) Providers(ctx context.Context, tenantID string) ([]string, error) {
	var out dto.ProvidersResponse
	if err := c.do(ctx, http.MethodGet, withTenant("/providers", tenantID, nil), nil, &out); err != nil {
		return nil, err
	}
	return out.Providers, nil
}

// ─── Users ───

func (c *Client) ListUsers(ctx context.Context, tenantID, search string, limit, offset int) ([]domain.User, error) {
	extra := url.Values{}
	if search != "" {
		extra.Set("search", search)
	}
	if limit > 0 {
		extra.Set("limit", fmt.Sprint(limit))
	}
	if offset > 0 {
		extra.Set("offset", fmt.Sprint(offset))
	}
	var out []domain.User
	if err := c.do(ctx, http.MethodGet, withTenant("/users", tenantID, extra), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) GetUser(ctx context.Context, tenantID, userID string) (*dto.UserDetailResponse, error) {
	var out dto.UserDetailResponse
	if err := c.do(ctx, http.MethodGet, withTenant("/users/"+url.PathEscape(userID), tenantID, nil), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateUser(ctx context.Context, tenantID string, in dto.CreateUserRequest) (*dto.CreateUserResponse, error) {
	var out dto.CreateUserResponse
	if err := c.do(ctx, http.MethodPost, withTenant("/users", tenantID, nil), in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteUser(ctx context.Context, tenantID, userID string) error {
	return c.do(ctx, http.MethodDelete, withTenant("/users/"+url.PathEscape(userID), tenantID, nil), nil, nil)
}

func (c *Client) RevokeSessions(ctx context.Context, tenantID, userID string) (int, error) {
	var out dto.RevokeResponse
	if err := c.do(ctx, http.MethodPost, withTenant("/users/"+url.PathEscape(userID)+"/revoke-sessions", tenantID, nil), nil, &out); err != nil {
		return 0, err
	}
	return out.Revoked, nil
}

// ─── OTP ───

func (c *Client) RequestOTP(ctx context.Context, in dto.OTPRequestBody) (*dto.OTPRequestResponse, error) {
	var out dto.OTPRequestResponse
	if err := c.do(ctx, http.MethodPost, "/otp/request", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyOTP consume el código. Si el propósito era login, la sesión queda
// en el State.
func (c *Client) VerifyOTP(ctx context.Context, in dto.OTPVerifyBody) (*dto.OTPVerifyResponse, error) {
	var out dto.OTPVerifyResponse
	if err := c.do(ctx, http.MethodPost, "/otp/verify", in, &out); err != nil {
		return nil, err
	}
	if out.Token != "" && out.User != nil {
		c.state.Set(out.Token, *out.User)
	}
	return &out, nil
}

// ─── Health ───

func (c *Client) Ready(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/readyz", nil, nil)
}
