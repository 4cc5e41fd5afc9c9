package bootstrap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/authcore/internal/auth"
	"github.com/dropDatabas3/authcore/internal/domain"
	"github.com/dropDatabas3/authcore/internal/security/password"
	"github.com/dropDatabas3/authcore/internal/store"
	"github.com/dropDatabas3/authcore/internal/store/adapters/memory"
	"github.com/dropDatabas3/authcore/internal/store/storetest"
)

func setup(t *testing.T) (*memory.Adapter, store.Resolver, auth.ConfigSource) {
	t.Helper()
	a := memory.New(store.AdapterConfig{Hasher: storetest.Hasher})
	res := store.Static(a)
	return a, res, auth.StoreConfigs(res)
}

func TestEnsureSuperAdminCreatesOnce(t *testing.T) {
	ctx := context.Background()
	a, res, cfgs := setup(t)

	out, err := EnsureSuperAdmin(ctx, res, cfgs, &password.Validator{}, AdminConfig{TenantID: "acme", Email: " Root@Acme.io "})
	require.NoError(t, err)
	require.True(t, out.Created)
	assert.Equal(t, "root@acme.io", out.User.Email)
	assert.True(t, out.User.IsSuperAdmin)
	assert.True(t, out.User.EmailVerified)
	require.NotEmpty(t, out.GeneratedPassword)

	u, err := a.VerifyPassword(ctx, "acme", "root@acme.io", out.GeneratedPassword)
	require.NoError(t, err)
	require.NotNil(t, u)

	again, err := EnsureSuperAdmin(ctx, res, cfgs, &password.Validator{}, AdminConfig{TenantID: "acme", Email: "other@acme.io"})
	require.NoError(t, err)
	assert.False(t, again.Created)
	assert.Equal(t, out.User.ID, again.User.ID)
}

func TestEnsureSuperAdminValidatesPassword(t *testing.T) {
	_, res, cfgs := setup(t)
	_, err := EnsureSuperAdmin(context.Background(), res, cfgs, &password.Validator{}, AdminConfig{TenantID: "acme", Email: "root@acme.io", Password: "short"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rejected")
}

func TestEnsureSuperAdminPromotesExistingUser(t *testing.T) {
	ctx := context.Background()
	a, res, cfgs := setup(t)
	plain, err := a.CreateUser(ctx, "acme", domain.NewUser{Email: "root@acme.io", Password: "Sup3r-Secret-Pass!"})
	require.NoError(t, err)
	require.False(t, plain.IsSuperAdmin)

	out, err := EnsureSuperAdmin(ctx, res, cfgs, &password.Validator{}, AdminConfig{TenantID: "acme", Email: "root@acme.io"})
	require.NoError(t, err)
	assert.True(t, out.Created)
	assert.Equal(t, plain.ID, out.User.ID)
	assert.True(t, out.User.IsSuperAdmin)
	assert.Empty(t, out.GeneratedPassword, "existing password is kept")
}

func TestEnsureSuperAdminRequiresEmail(t *testing.T) {
	_, res, cfgs := setup(t)
	_, err := EnsureSuperAdmin(context.Background(), res, cfgs, &password.Validator{}, AdminConfig{TenantID: "acme"})
	require.Error(t, err)
}
