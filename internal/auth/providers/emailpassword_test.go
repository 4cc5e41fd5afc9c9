package providers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/authcore/internal/auth"
	"github.com/dropDatabas3/authcore/internal/domain"
	"github.com/dropDatabas3/authcore/internal/store"
	"github.com/dropDatabas3/authcore/internal/store/adapters/memory"
	"github.com/dropDatabas3/authcore/internal/store/storetest"
)

func newStore(t *testing.T) (*memory.Adapter, store.Resolver, auth.ConfigSource) {
	t.Helper()
	mem := memory.New(store.AdapterConfig{Hasher: storetest.Hasher})
	res := store.Static(mem)
	return mem, res, auth.StoreConfigs(res)
}

func patchConfig(t *testing.T, a store.Adapter, tenantID, patch string) {
	t.Helper()
	_, err := a.UpsertAuthConfig(context.Background(), tenantID, domain.AuthConfigPatch(patch))
	require.NoError(t, err)
}

func TestEmailPassword_SignUpAndSignIn(t *testing.T) {
	ctx := context.Background()
	mem, res, cfgs := newStore(t)
	p := NewEmailPassword(res, cfgs, nil)

	u, err := p.SignUp(ctx, auth.Credentials{TenantID: "acme", Identifier: "Alice@Acme.com", Password: "Secret123!", Name: "Alice"})
	require.NoError(t, err)
	assert.Equal(t, "alice@acme.com", u.Email)
	assert.Equal(t, "alice", u.Username)
	assert.False(t, u.EmailVerified)
	assert.True(t, u.HasPassword())

	got, err := p.SignIn(ctx, auth.Credentials{TenantID: "acme", Identifier: "alice@acme.com", Password: "Secret123!"})
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	got, err = p.SignIn(ctx, auth.Credentials{TenantID: "acme", Identifier: "alice", Password: "Secret123!"})
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	other, err := mem.GetUserByEmail(ctx, "globex", "alice@acme.com")
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestEmailPassword_SignInFailuresAreIndistinguishable(t *testing.T) {
	ctx := context.Background()
	_, res, cfgs := newStore(t)
	p := NewEmailPassword(res, cfgs, nil)
	_, err := p.SignUp(ctx, auth.Credentials{TenantID: "acme", Identifier: "alice@acme.com", Password: "Secret123!"})
	require.NoError(t, err)

	_, wrongPw := p.SignIn(ctx, auth.Credentials{TenantID: "acme", Identifier: "alice@acme.com", Password: "nope"})
	_, noUser := p.SignIn(ctx, auth.Credentials{TenantID: "acme", Identifier: "bob@acme.com", Password: "Secret123!"})
	_, otherTenant := p.SignIn(ctx, auth.Credentials{TenantID: "globex", Identifier: "alice@acme.com", Password: "Secret123!"})

	for _, err := range []error{wrongPw, noUser, otherTenant} {
		require.ErrorIs(t, err, auth.ErrInvalidCredentials)
		assert.Equal(t, auth.ErrInvalidCredentials.Message, auth.AsError(err).Message)
	}
}

func TestEmailPassword_SignUpRules(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name  string
		patch string
		creds auth.Credentials
		code  auth.Code
	}{
		{
			name:  "registration disabled",
			patch: `{"allowRegistration":false}`,
			creds: auth.Credentials{Identifier: "a@acme.com", Password: "Secret123!"},
			code:  auth.CodeRegistrationDisabled,
		},
		{
			name:  "malformed email",
			creds: auth.Credentials{Identifier: "not-an-email", Password: "Secret123!"},
			code:  auth.CodeInvalidEmail,
		},
		{
			name:  "blocked domain",
			patch: `{"blockedEmailDomains":["acme.com"]}`,
			creds: auth.Credentials{Identifier: "a@acme.com", Password: "Secret123!"},
			code:  auth.CodeInvalidEmail,
		},
		{
			name:  "not in allow list",
			patch: `{"allowedEmailDomains":["globex.com"]}`,
			creds: auth.Credentials{Identifier: "a@acme.com", Password: "Secret123!"},
			code:  auth.CodeInvalidEmail,
		},
		{
			name:  "tenant policy applies",
			patch: `{"passwordPolicy":{"minLength":12}}`,
			creds: auth.Credentials{Identifier: "a@acme.com", Password: "Secret123!"},
			code:  auth.CodeWeakPassword,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			mem, res, cfgs := newStore(t)
			if tc.patch != "" {
				patchConfig(t, mem, "acme", tc.patch)
			}
			tc.creds.TenantID = "acme"
			_, err := NewEmailPassword(res, cfgs, nil).SignUp(ctx, tc.creds)
			require.Error(t, err)
			assert.Equal(t, tc.code, auth.CodeOf(err))
		})
	}
}

func TestEmailPassword_WeakPasswordCarriesDetails(t *testing.T) {
	_, res, cfgs := newStore(t)
	_, err := NewEmailPassword(res, cfgs, nil).SignUp(context.Background(),
		auth.Credentials{TenantID: "acme", Identifier: "a@acme.com", Password: "short"})
	require.ErrorIs(t, err, auth.ErrWeakPassword)
	assert.Contains(t, auth.AsError(err).Details, "Password must be at least 8 characters long")
}

func TestEmailPassword_DuplicateEmail(t *testing.T) {
	ctx := context.Background()
	_, res, cfgs := newStore(t)
	p := NewEmailPassword(res, cfgs, nil)

	_, err := p.SignUp(ctx, auth.Credentials{TenantID: "acme", Identifier: "a@acme.com", Password: "Secret123!"})
	require.NoError(t, err)
	_, err = p.SignUp(ctx, auth.Credentials{TenantID: "acme", Identifier: "A@acme.com", Password: "Secret123!"})
	require.ErrorIs(t, err, auth.ErrEmailInUse)

	// mismo email en otro tenant es otra identidad
	_, err = p.SignUp(ctx, auth.Credentials{TenantID: "globex", Identifier: "a@acme.com", Password: "Secret123!"})
	require.NoError(t, err)
}

func TestEmailPassword_UsernameCollisionGetsSuffix(t *testing.T) {
	ctx := context.Background()
	_, res, cfgs := newStore(t)
	p := NewEmailPassword(res, cfgs, nil)

	a, err := p.SignUp(ctx, auth.Credentials{TenantID: "acme", Identifier: "ana@acme.com", Password: "Secret123!"})
	require.NoError(t, err)
	b, err := p.SignUp(ctx, auth.Credentials{TenantID: "acme", Identifier: "ana@globex.com", Password: "Secret123!"})
	require.NoError(t, err)

	assert.Equal(t, "ana", a.Username)
	assert.Regexp(t, `^ana-[0-9a-f]{6}$`, b.Username)
}

func TestDeriveUsername(t *testing.T) {
	cases := map[string]string{
		"john.doe@acme.com":   "john.doe",
		"John+Tag@acme.com":   "johntag",
		"a@acme.com":          "user",
		"__x__@acme.com":      "user",
		"ñandú.2024@acme.com": "and.2024",
	}
	for in, want := range cases {
		assert.Equal(t, want, DeriveUsername(in), in)
	}
	assert.Len(t, DeriveUsername("very.long.local.part.that.goes.on.and.on@x.io"), 32)
}
