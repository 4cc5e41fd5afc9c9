package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/authcore/internal/auth"
	"github.com/dropDatabas3/authcore/internal/domain"
)

// fakeIdP simula token + userinfo (+ emails) de un provider OAuth.
type fakeIdP struct {
	*httptest.Server
	code     string
	userinfo any
	emails   any

	mu       sync.Mutex
	lastForm url.Values
}

func (f *fakeIdP) form() url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastForm
}

func newFakeIdP(t *testing.T, code string, userinfo, emails any) *fakeIdP {
	f := &fakeIdP{code: code, userinfo: userinfo, emails: emails}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		f.mu.Lock()
		f.lastForm = r.PostForm
		f.mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		if r.PostForm.Get("code") != f.code {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_grant"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"access_token": "at-123", "token_type": "bearer"})
	})
	serveJSON := func(v any) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer at-123" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			if v == nil {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			_ = json.NewEncoder(w).Encode(v)
		}
	}
	mux.HandleFunc("GET /userinfo", serveJSON(f.userinfo))
	mux.HandleFunc("GET /emails", serveJSON(f.emails))
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeIdP) endpoints() Endpoints {
	return Endpoints{
		Auth:     f.URL + "/authorize",
		Token:    f.URL + "/token",
		UserInfo: f.URL + "/userinfo",
		Emails:   f.URL + "/emails",
	}
}

func noEnv(string) string { return "" }

func TestGoogle_ProvisionsThenReuses(t *testing.T) {
	ctx := context.Background()
	mem, res, cfgs := newStore(t)
	patchConfig(t, mem, "acme", `{"providers":{"google":{"enabled":true,"clientId":"cid","clientSecret":"sec","redirectUri":"https://app/cb"}}}`)

	idp := newFakeIdP(t, "good-code", map[string]any{
		"sub": "g-1", "email": "Alice@Acme.com", "email_verified": true, "name": "Alice", "picture": "https://img/a.png",
	}, nil)
	g := NewGoogle(res, cfgs, WithEndpoints(idp.endpoints()), WithEnv(noEnv))

	u, err := g.SignIn(ctx, auth.Credentials{TenantID: "acme", Code: "good-code"})
	require.NoError(t, err)
	assert.Equal(t, "alice@acme.com", u.Email)
	assert.True(t, u.EmailVerified)
	assert.False(t, u.HasPassword())
	assert.Equal(t, "google", u.Metadata["provider"])
	assert.Equal(t, "g-1", u.Metadata["provider_user_id"])
	assert.Equal(t, "https://img/a.png", u.Metadata["avatar_url"])

	assert.Equal(t, "cid", idp.form().Get("client_id"))
	assert.Equal(t, "sec", idp.form().Get("client_secret"))
	assert.Equal(t, "https://app/cb", idp.form().Get("redirect_uri"))
	assert.Equal(t, "authorization_code", idp.form().Get("grant_type"))

	again, err := g.SignIn(ctx, auth.Credentials{TenantID: "acme", Code: "good-code"})
	require.NoError(t, err)
	assert.Equal(t, u.ID, again.ID)

	list, err := mem.ListUsers(ctx, "acme", domain.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestGoogle_RejectedCodeIsInvalidCredentials(t *testing.T) {
	mem, res, cfgs := newStore(t)
	patchConfig(t, mem, "acme", `{"providers":{"google":{"enabled":true,"clientId":"cid","clientSecret":"sec"}}}`)
	idp := newFakeIdP(t, "good-code", map[string]any{"sub": "1", "email": "a@acme.com"}, nil)

	_, err := NewGoogle(res, cfgs, WithEndpoints(idp.endpoints()), WithEnv(noEnv)).
		SignIn(context.Background(), auth.Credentials{TenantID: "acme", Code: "bad"})
	require.ErrorIs(t, err, auth.ErrInvalidCredentials)
}

func TestOAuth_EnvFallback(t *testing.T) {
	_, res, cfgs := newStore(t)
	env := map[string]string{
		"GITHUB_CLIENT_ID":     "env-id",
		"GITHUB_CLIENT_SECRET": "env-secret",
		"GITHUB_REDIRECT_URI":  "https://env/cb",
	}
	gh := NewGitHub(res, cfgs, WithEnv(func(k string) string { return env[k] }))

	raw, err := gh.AuthURL(context.Background(), "acme", "st4te")
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "github.com", u.Host)
	q := u.Query()
	assert.Equal(t, "env-id", q.Get("client_id"))
	assert.Equal(t, "https://env/cb", q.Get("redirect_uri"))
	assert.Equal(t, "st4te", q.Get("state"))
	assert.Equal(t, "read:user user:email", q.Get("scope"))
}

func TestOAuth_MissingCredentials(t *testing.T) {
	_, res, cfgs := newStore(t)
	_, err := NewGoogle(res, cfgs, WithEnv(noEnv)).AuthURL(context.Background(), "acme", "s")
	require.ErrorIs(t, err, auth.ErrProviderNotFound)
}

func TestGitHub_UsesPrimaryVerifiedEmail(t *testing.T) {
	ctx := context.Background()
	mem, res, cfgs := newStore(t)
	patchConfig(t, mem, "acme", `{"providers":{"github":{"enabled":true,"clientId":"cid","clientSecret":"sec"}}}`)
	idp := newFakeIdP(t, "c",
		map[string]any{"id": 42, "login": "octo", "email": "", "avatar_url": "https://img/o.png"},
		[]map[string]any{
			{"email": "old@acme.com", "primary": false, "verified": true},
			{"email": "octo@acme.com", "primary": true, "verified": true},
		})

	u, err := NewGitHub(res, cfgs, WithEndpoints(idp.endpoints()), WithEnv(noEnv)).
		SignIn(ctx, auth.Credentials{TenantID: "acme", Code: "c"})
	require.NoError(t, err)
	assert.Equal(t, "octo@acme.com", u.Email)
	assert.Equal(t, "octo", u.Name)
	assert.True(t, u.EmailVerified)
	assert.Equal(t, "42", u.Metadata["provider_user_id"])
}

func TestGitHub_NoEmailFails(t *testing.T) {
	mem, res, cfgs := newStore(t)
	patchConfig(t, mem, "acme", `{"providers":{"github":{"enabled":true,"clientId":"cid","clientSecret":"sec"}}}`)
	idp := newFakeIdP(t, "c", map[string]any{"id": 1, "login": "ghost"}, []map[string]any{})

	_, err := NewGitHub(res, cfgs, WithEndpoints(idp.endpoints()), WithEnv(noEnv)).
		SignIn(context.Background(), auth.Credentials{TenantID: "acme", Code: "c"})
	require.ErrorIs(t, err, auth.ErrInvalidEmail)
}

func TestOAuth_RespectsRegistrationToggle(t *testing.T) {
	ctx := context.Background()
	mem, res, cfgs := newStore(t)
	patchConfig(t, mem, "acme", `{"allowRegistration":false,"providers":{"google":{"enabled":true,"clientId":"cid","clientSecret":"sec"}}}`)
	idp := newFakeIdP(t, "c", map[string]any{"sub": "1", "email": "new@acme.com", "email_verified": true}, nil)
	g := NewGoogle(res, cfgs, WithEndpoints(idp.endpoints()), WithEnv(noEnv))

	_, err := g.SignIn(ctx, auth.Credentials{TenantID: "acme", Code: "c"})
	require.ErrorIs(t, err, auth.ErrRegistrationDisabled)

	// un usuario existente sigue pudiendo entrar
	_, err = mem.CreateUser(ctx, "acme", domain.NewUser{Email: "new@acme.com"})
	require.NoError(t, err)
	u, err := g.SignIn(ctx, auth.Credentials{TenantID: "acme", Code: "c"})
	require.NoError(t, err)
	assert.True(t, u.EmailVerified)
}

func TestOAuth_RefreshesExistingProfile(t *testing.T) {
	ctx := context.Background()
	mem, res, cfgs := newStore(t)
	patchConfig(t, mem, "acme", `{"providers":{"google":{"enabled":true,"clientId":"cid","clientSecret":"sec"}}}`)
	existing, err := mem.CreateUser(ctx, "acme", domain.NewUser{Email: "a@acme.com", Name: "Old", Password: "Secret123!"})
	require.NoError(t, err)

	idp := newFakeIdP(t, "c", map[string]any{"sub": "1", "email": "a@acme.com", "name": "New", "picture": "https://img/n.png"}, nil)
	u, err := NewGoogle(res, cfgs, WithEndpoints(idp.endpoints()), WithEnv(noEnv)).
		SignIn(ctx, auth.Credentials{TenantID: "acme", Code: "c"})
	require.NoError(t, err)
	assert.Equal(t, existing.ID, u.ID)
	assert.Equal(t, "New", u.Name)
	assert.Equal(t, "https://img/n.png", u.Metadata["avatar_url"])
	assert.True(t, u.HasPassword())
}
