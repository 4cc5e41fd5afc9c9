package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/authcore/internal/domain"
	"github.com/dropDatabas3/authcore/internal/security/token"
	"github.com/dropDatabas3/authcore/internal/store"
	"github.com/dropDatabas3/authcore/internal/store/storetest"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	return mr, redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func newAdapter(t *testing.T) (*miniredis.Miniredis, *Adapter) {
	t.Helper()
	mr, rdb := newTestRedis(t)
	return mr, New(rdb, store.AdapterConfig{Hasher: storetest.Hasher})
}

func TestContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Adapter {
		_, a := newAdapter(t)
		return a
	})
}

func TestOpenThroughRegistry(t *testing.T) {
	mr := miniredis.RunT(t)
	a, err := store.Open(context.Background(), store.AdapterConfig{
		Driver: "redis",
		DSN:    "redis://" + mr.Addr() + "/0",
		Hasher: storetest.Hasher,
	})
	require.NoError(t, err)
	defer a.Close()
	assert.Equal(t, "redis", a.Name())
}

func TestSessionsAreStoredHashed(t *testing.T) {
	mr, a := newAdapter(t)
	ctx := context.Background()

	u, err := a.CreateUser(ctx, "acme", domain.NewUser{Email: "ana@acme.com"})
	require.NoError(t, err)
	tok, err := token.NewSessionToken("acme")
	require.NoError(t, err)
	_, err = a.CreateSession(ctx, domain.Session{UserID: u.ID, TenantID: "acme", Token: tok, ExpiresAt: time.Now().Add(time.Hour)})
	require.NoError(t, err)

	assert.True(t, mr.Exists("authcore:session:"+token.Hash(tok)))
	for _, k := range mr.Keys() {
		assert.NotContains(t, k, tok)
	}
	raw, err := mr.Get("authcore:session:" + token.Hash(tok))
	require.NoError(t, err)
	assert.NotContains(t, raw, tok)
}

func TestSessionKeyOutlivesExpiryByGrace(t *testing.T) {
	mr, a := newAdapter(t)
	ctx := context.Background()

	u, err := a.CreateUser(ctx, "acme", domain.NewUser{Email: "ana@acme.com"})
	require.NoError(t, err)
	_, err = a.CreateSession(ctx, domain.Session{UserID: u.ID, TenantID: "acme", Token: "acme.tok", ExpiresAt: time.Now().Add(time.Minute)})
	require.NoError(t, err)

	ttl := mr.TTL("authcore:session:" + token.Hash("acme.tok"))
	assert.Greater(t, ttl, expiryGrace)
}

func TestOTPStoredAsHash(t *testing.T) {
	mr, a := newAdapter(t)
	ctx := context.Background()

	_, err := a.UpsertOTP(ctx, domain.OtpSession{
		TenantID: "acme", Identifier: "ana@acme.com", Code: "123456",
		Purpose: domain.PurposeLogin, Channel: domain.ChannelEmail, ExpiresAt: time.Now().Add(time.Minute),
	})
	require.NoError(t, err)

	k := "authcore:t:acme:otp:login:ana@acme.com"
	assert.Equal(t, "123456", mr.HGet(k, "code"))
	assert.Equal(t, "0", mr.HGet(k, "attempts"))

	n, err := a.IncrementOTPAttempts(ctx, "acme", "ana@acme.com", domain.PurposeLogin)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "1", mr.HGet(k, "attempts"))
}

func TestCustomPrefix(t *testing.T) {
	mr, rdb := newTestRedis(t)
	a := New(rdb, store.AdapterConfig{Hasher: storetest.Hasher, KeyPrefix: "x:"})

	_, err := a.CreateUser(context.Background(), "acme", domain.NewUser{Email: "ana@acme.com"})
	require.NoError(t, err)
	assert.True(t, mr.Exists("x:t:acme:email:ana@acme.com"))
}
