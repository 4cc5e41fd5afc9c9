// Package storetest contiene la suite de contrato de store.Adapter. Cada
// driver la corre desde su propio _test.go:
//
//	storetest.Run(t, func(t *testing.T) store.Adapter { return memory.New(cfg) })
//
// El factory debe devolver un store vacío en cada llamada.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/authcore/internal/domain"
	"github.com/dropDatabas3/authcore/internal/security/password"
	"github.com/dropDatabas3/authcore/internal/security/token"
	"github.com/dropDatabas3/authcore/internal/store"
)

// Factory crea un Adapter vacío para un test.
type Factory func(t *testing.T) store.Adapter

// Hasher barato para que la suite no tarde segundos por hash.
var Hasher = password.NewHasher(password.LowCost)

const (
	tenantA = "tenant-a"
	tenantB = "tenant-b"
)

// Run ejecuta la suite completa.
func Run(t *testing.T, newStore Factory) {
	t.Helper()
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Adapter)
	}{
		{"CreateAndGetUser", testCreateAndGetUser},
		{"NotFoundIsNil", testNotFoundIsNil},
		{"DuplicateEmail", testDuplicateEmail},
		{"ConcurrentDuplicateEmail", testConcurrentDuplicateEmail},
		{"TenantIsolation", testTenantIsolation},
		{"UsernameAndPhone", testUsernameAndPhone},
		{"VerifyPassword", testVerifyPassword},
		{"UpdateUser", testUpdateUser},
		{"ListUsers", testListUsers},
		{"DeleteUserCascades", testDeleteUserCascades},
		{"Sessions", testSessions},
		{"OTPUpsertSupersedes", testOTPUpsertSupersedes},
		{"OTPConcurrentIncrement", testOTPConcurrentIncrement},
		{"OTPKeys", testOTPKeys},
		{"OTPReserveAttempt", testOTPReserveAttempt},
		{"OTPConcurrentReserve", testOTPConcurrentReserve},
		{"OTPConsumeOnce", testOTPConsumeOnce},
		{"AuthConfigUpsert", testAuthConfigUpsert},
		{"PurgeExpired", testPurgeExpired},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tc.fn(t, s)
		})
	}
}

func ctx() context.Context { return context.Background() }

func mustUser(t *testing.T, s store.Adapter, tenant string, in domain.NewUser) *domain.User {
	t.Helper()
	u, err := s.CreateUser(ctx(), tenant, in)
	require.NoError(t, err)
	require.NotNil(t, u)
	return u
}

func mustSession(t *testing.T, s store.Adapter, u *domain.User, ttl time.Duration) *domain.Session {
	t.Helper()
	tok, err := token.NewSessionToken(u.TenantID)
	require.NoError(t, err)
	sess, err := s.CreateSession(ctx(), domain.Session{
		UserID:     u.ID,
		TenantID:   u.TenantID,
		Token:      tok,
		ExpiresAt:  time.Now().Add(ttl).UTC().Truncate(time.Millisecond),
		AuthMethod: domain.AuthMethodPassword,
		IPAddress:  "10.0.0.1",
		UserAgent:  "storetest",
	})
	require.NoError(t, err)
	return sess
}

func otp(tenant, identifier, code string, purpose domain.OTPPurpose, ttl time.Duration) domain.OtpSession {
	return domain.OtpSession{
		TenantID:   tenant,
		Identifier: identifier,
		Code:       code,
		Purpose:    purpose,
		Channel:    domain.ChannelEmail,
		ExpiresAt:  time.Now().Add(ttl).UTC().Truncate(time.Millisecond),
	}
}

func testCreateAndGetUser(t *testing.T, s store.Adapter) {
	u := mustUser(t, s, tenantA, domain.NewUser{
		Email:    "  Alice@Acme.com ",
		Username: "alice",
		Name:     "Alice Liddell",
		Password: "Secret123!",
		Metadata: map[string]any{"plan": "pro"},
	})
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, tenantA, u.TenantID)
	assert.Equal(t, "alice@acme.com", u.Email)
	assert.True(t, u.IsActive)
	assert.False(t, u.EmailVerified)
	assert.False(t, u.IsSuperAdmin)
	require.True(t, u.HasPassword())
	assert.NotEqual(t, "Secret123!", *u.PasswordHash)

	got, err := s.GetUser(ctx(), tenantA, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, "Alice Liddell", got.Name)
	assert.Equal(t, "pro", got.Metadata["plan"])

	byEmail, err := s.GetUserByEmail(ctx(), tenantA, "ALICE@acme.COM")
	require.NoError(t, err)
	require.NotNil(t, byEmail)
	assert.Equal(t, u.ID, byEmail.ID)
}

func testNotFoundIsNil(t *testing.T, s store.Adapter) {
	u, err := s.GetUser(ctx(), tenantA, "00000000-0000-0000-0000-000000000000")
	assert.NoError(t, err)
	assert.Nil(t, u)

	u, err = s.GetUserByEmail(ctx(), tenantA, "nobody@acme.com")
	assert.NoError(t, err)
	assert.Nil(t, u)

	u, err = s.GetUserByUsername(ctx(), tenantA, "nobody")
	assert.NoError(t, err)
	assert.Nil(t, u)

	u, err = s.UpdateUser(ctx(), tenantA, "00000000-0000-0000-0000-000000000000", domain.UserPatch{})
	assert.NoError(t, err)
	assert.Nil(t, u)

	sess, err := s.GetSessionByToken(ctx(), tenantA+".missing")
	assert.NoError(t, err)
	assert.Nil(t, sess)

	o, err := s.GetOTP(ctx(), tenantA, "nobody@acme.com", domain.PurposeLogin)
	assert.NoError(t, err)
	assert.Nil(t, o)

	cfg, err := s.GetAuthConfig(ctx(), tenantA)
	assert.NoError(t, err)
	assert.Nil(t, cfg)

	assert.NoError(t, s.DeleteUser(ctx(), tenantA, "00000000-0000-0000-0000-000000000000"))
	assert.NoError(t, s.DeleteSession(ctx(), tenantA+".missing"))
	assert.NoError(t, s.DeleteOTP(ctx(), tenantA, "nobody@acme.com", domain.PurposeLogin))
}

func testDuplicateEmail(t *testing.T, s store.Adapter) {
	mustUser(t, s, tenantA, domain.NewUser{Email: "dup@acme.com", Password: "x"})

	_, err := s.CreateUser(ctx(), tenantA, domain.NewUser{Email: "DUP@acme.com", Password: "y"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrEmailInUse), "got %v", err)

	_, err = s.CreateUser(ctx(), tenantA, domain.NewUser{Email: "not-an-email"})
	assert.ErrorIs(t, err, store.ErrInvalidInput)
}

func testConcurrentDuplicateEmail(t *testing.T, s store.Adapter) {
	const n = 8
	var ok, dup atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.CreateUser(ctx(), tenantA, domain.NewUser{Email: "race@acme.com", PasswordHash: "$argon2id$stub"})
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, store.ErrEmailInUse):
				dup.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, ok.Load())
	assert.EqualValues(t, n-1, dup.Load())
}

func testTenantIsolation(t *testing.T, s store.Adapter) {
	a := mustUser(t, s, tenantA, domain.NewUser{Email: "same@acme.com", Password: "pw-a"})
	b := mustUser(t, s, tenantB, domain.NewUser{Email: "same@acme.com", Password: "pw-b"})
	assert.NotEqual(t, a.ID, b.ID)

	got, err := s.GetUser(ctx(), tenantB, a.ID)
	require.NoError(t, err)
	assert.Nil(t, got, "user of tenant A is invisible from tenant B")

	users, err := s.ListUsers(ctx(), tenantA, domain.ListOptions{})
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, a.ID, users[0].ID)

	require.NoError(t, s.DeleteUser(ctx(), tenantB, a.ID))
	still, err := s.GetUser(ctx(), tenantA, a.ID)
	require.NoError(t, err)
	assert.NotNil(t, still, "delete from another tenant is a no-op")
}

func testUsernameAndPhone(t *testing.T, s store.Adapter) {
	u := mustUser(t, s, tenantA, domain.NewUser{Email: "bob@acme.com", Username: "Bob", Phone: "+5491155550000"})

	got, err := s.GetUserByUsername(ctx(), tenantA, "bob")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, u.ID, got.ID)

	_, err = s.CreateUser(ctx(), tenantA, domain.NewUser{Email: "other@acme.com", Username: "BOB"})
	assert.ErrorIs(t, err, store.ErrUsernameInUse)

	byPhone, err := s.GetUserByPhone(ctx(), tenantA, "+5491155550000")
	require.NoError(t, err)
	require.NotNil(t, byPhone)
	assert.Equal(t, u.ID, byPhone.ID)

	none, err := s.GetUserByPhone(ctx(), tenantB, "+5491155550000")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func testVerifyPassword(t *testing.T, s store.Adapter) {
	u := mustUser(t, s, tenantA, domain.NewUser{Email: "alice@acme.com", Username: "alice", Password: "Secret123!"})
	mustUser(t, s, tenantA, domain.NewUser{Email: "oauth@acme.com"})

	byEmail, err := s.VerifyPassword(ctx(), tenantA, "Alice@Acme.com", "Secret123!")
	require.NoError(t, err)
	require.NotNil(t, byEmail)
	assert.Equal(t, u.ID, byEmail.ID)

	byUsername, err := s.VerifyPassword(ctx(), tenantA, "alice", "Secret123!")
	require.NoError(t, err)
	require.NotNil(t, byUsername)
	assert.Equal(t, u.ID, byUsername.ID)

	for _, tc := range []struct{ tenant, id, pw string }{
		{tenantA, "alice@acme.com", "wrong"},
		{tenantA, "ghost@acme.com", "Secret123!"},
		{tenantB, "alice@acme.com", "Secret123!"},
		{tenantA, "oauth@acme.com", ""},
		{tenantA, "oauth@acme.com", "anything"},
	} {
		got, err := s.VerifyPassword(ctx(), tc.tenant, tc.id, tc.pw)
		require.NoError(t, err, "%+v", tc)
		assert.Nil(t, got, "%+v", tc)
	}
}

func testUpdateUser(t *testing.T, s store.Adapter) {
	u := mustUser(t, s, tenantA, domain.NewUser{Email: "carol@acme.com", Username: "carol"})
	yes := true
	name, uname := "Carol C", "carol2"

	got, err := s.UpdateUser(ctx(), tenantA, u.ID, domain.UserPatch{
		Name:          &name,
		Username:      &uname,
		EmailVerified: &yes,
		IsSuperAdmin:  &yes,
		Metadata:      map[string]any{"k": "v"},
	})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Carol C", got.Name)
	assert.True(t, got.EmailVerified)
	assert.NotNil(t, got.EmailVerifiedAt)
	assert.True(t, got.IsSuperAdmin)

	reread, err := s.GetUser(ctx(), tenantA, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "carol2", reread.Username)
	assert.Equal(t, "v", reread.Metadata["k"])

	old, err := s.GetUserByUsername(ctx(), tenantA, "carol")
	require.NoError(t, err)
	assert.Nil(t, old, "old username index is released")

	other := mustUser(t, s, tenantA, domain.NewUser{Email: "dave@acme.com", Username: "dave"})
	_, err = s.UpdateUser(ctx(), tenantA, other.ID, domain.UserPatch{Username: &uname})
	assert.ErrorIs(t, err, store.ErrUsernameInUse)

	gone, err := s.UpdateUser(ctx(), tenantB, u.ID, domain.UserPatch{Name: &name})
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func testListUsers(t *testing.T, s store.Adapter) {
	for i := 0; i < 5; i++ {
		mustUser(t, s, tenantA, domain.NewUser{Email: fmt.Sprintf("user%d@acme.com", i), Name: fmt.Sprintf("User %d", i)})
	}
	mustUser(t, s, tenantB, domain.NewUser{Email: "user9@acme.com"})

	all, err := s.ListUsers(ctx(), tenantA, domain.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, all, 5)

	page, err := s.ListUsers(ctx(), tenantA, domain.ListOptions{Limit: 2, Offset: 4})
	require.NoError(t, err)
	assert.Len(t, page, 1)

	found, err := s.ListUsers(ctx(), tenantA, domain.ListOptions{Search: "USER3"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "user3@acme.com", found[0].Email)
}

func testDeleteUserCascades(t *testing.T, s store.Adapter) {
	u := mustUser(t, s, tenantA, domain.NewUser{Email: "erin@acme.com", Username: "erin"})
	s1 := mustSession(t, s, u, time.Hour)
	s2 := mustSession(t, s, u, time.Hour)

	require.NoError(t, s.DeleteUser(ctx(), tenantA, u.ID))
	require.NoError(t, s.DeleteUser(ctx(), tenantA, u.ID), "idempotent")

	for _, tok := range []string{s1.Token, s2.Token} {
		got, err := s.GetSessionByToken(ctx(), tok)
		require.NoError(t, err)
		assert.Nil(t, got)
	}
	got, err := s.GetUserByEmail(ctx(), tenantA, "erin@acme.com")
	require.NoError(t, err)
	assert.Nil(t, got)

	again := mustUser(t, s, tenantA, domain.NewUser{Email: "erin@acme.com", Username: "erin"})
	assert.NotEqual(t, u.ID, again.ID, "email and username are free again")
}

func testSessions(t *testing.T, s store.Adapter) {
	u := mustUser(t, s, tenantA, domain.NewUser{Email: "frank@acme.com"})
	sess := mustSession(t, s, u, time.Hour)
	assert.NotEmpty(t, sess.ID)

	got, err := s.GetSessionByToken(ctx(), sess.Token)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, sess.Token, got.Token)
	assert.Equal(t, u.ID, got.UserID)
	assert.Equal(t, tenantA, got.TenantID)
	assert.Equal(t, domain.AuthMethodPassword, got.AuthMethod)
	assert.Equal(t, "10.0.0.1", got.IPAddress)
	assert.True(t, sess.ExpiresAt.Equal(got.ExpiresAt), "expiry round-trips: %v vs %v", sess.ExpiresAt, got.ExpiresAt)

	mustSession(t, s, u, time.Hour)
	list, err := s.ListUserSessions(ctx(), tenantA, u.ID)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	require.NoError(t, s.DeleteSession(ctx(), sess.Token))
	require.NoError(t, s.DeleteSession(ctx(), sess.Token))
	got, err = s.GetSessionByToken(ctx(), sess.Token)
	require.NoError(t, err)
	assert.Nil(t, got)

	mustSession(t, s, u, time.Hour)
	n, err := s.DeleteUserSessions(ctx(), tenantA, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	list, err = s.ListUserSessions(ctx(), tenantA, u.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func testOTPUpsertSupersedes(t *testing.T, s store.Adapter) {
	_, err := s.UpsertOTP(ctx(), otp(tenantA, "gina@acme.com", "111111", domain.PurposeLogin, time.Minute))
	require.NoError(t, err)
	n, err := s.IncrementOTPAttempts(ctx(), tenantA, "gina@acme.com", domain.PurposeLogin)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.UpsertOTP(ctx(), otp(tenantA, "gina@acme.com", "222222", domain.PurposeLogin, time.Minute))
	require.NoError(t, err)

	got, err := s.GetOTP(ctx(), tenantA, "gina@acme.com", domain.PurposeLogin)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "222222", got.Code)
	assert.Equal(t, 0, got.Attempts, "new OTP resets attempts")
	assert.Equal(t, domain.ChannelEmail, got.Channel)

	require.NoError(t, s.DeleteOTP(ctx(), tenantA, "gina@acme.com", domain.PurposeLogin))
	got, err = s.GetOTP(ctx(), tenantA, "gina@acme.com", domain.PurposeLogin)
	require.NoError(t, err)
	assert.Nil(t, got)

	n, err = s.IncrementOTPAttempts(ctx(), tenantA, "gina@acme.com", domain.PurposeLogin)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "increment on a missing OTP is a no-op")
}

func testOTPConcurrentIncrement(t *testing.T, s store.Adapter) {
	_, err := s.UpsertOTP(ctx(), otp(tenantA, "hank@acme.com", "123456", domain.PurposeVerification, time.Minute))
	require.NoError(t, err)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.IncrementOTPAttempts(ctx(), tenantA, "hank@acme.com", domain.PurposeVerification)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := s.GetOTP(ctx(), tenantA, "hank@acme.com", domain.PurposeVerification)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, n, got.Attempts)
}

func testOTPKeys(t *testing.T, s store.Adapter) {
	_, err := s.UpsertOTP(ctx(), otp(tenantA, "ivy@acme.com", "111111", domain.PurposeLogin, time.Minute))
	require.NoError(t, err)
	_, err = s.UpsertOTP(ctx(), otp(tenantA, "ivy@acme.com", "222222", domain.PurposeVerification, time.Minute))
	require.NoError(t, err)
	_, err = s.UpsertOTP(ctx(), otp(tenantB, "ivy@acme.com", "333333", domain.PurposeLogin, time.Minute))
	require.NoError(t, err)

	for _, tc := range []struct {
		tenant  string
		purpose domain.OTPPurpose
		code    string
	}{
		{tenantA, domain.PurposeLogin, "111111"},
		{tenantA, domain.PurposeVerification, "222222"},
		{tenantB, domain.PurposeLogin, "333333"},
	} {
		got, err := s.GetOTP(ctx(), tc.tenant, "ivy@acme.com", tc.purpose)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, tc.code, got.Code)
	}

	_, err = s.UpsertOTP(ctx(), domain.OtpSession{TenantID: tenantA, Identifier: "x", Code: "1", Purpose: "bogus", Channel: domain.ChannelSMS})
	assert.Error(t, err)
}

func testOTPReserveAttempt(t *testing.T, s store.Adapter) {
	o, err := s.UpsertOTP(ctx(), otp(tenantA, "kim@acme.com", "123456", domain.PurposeLogin, time.Minute))
	require.NoError(t, err)
	now := time.Now()

	got, st, err := s.ReserveOTPAttempt(ctx(), tenantA, "kim@acme.com", domain.PurposeLogin, "stale-id", 2, now)
	require.NoError(t, err)
	assert.Equal(t, store.OTPAttemptMissing, st)
	assert.Nil(t, got)

	for want := 1; want <= 2; want++ {
		got, st, err = s.ReserveOTPAttempt(ctx(), tenantA, "kim@acme.com", domain.PurposeLogin, o.ID, 2, now)
		require.NoError(t, err)
		require.Equal(t, store.OTPAttemptGranted, st)
		require.NotNil(t, got)
		assert.Equal(t, "123456", got.Code)
		assert.Equal(t, want, got.Attempts)
		assert.Equal(t, domain.ChannelEmail, got.Channel)
	}

	_, st, err = s.ReserveOTPAttempt(ctx(), tenantA, "kim@acme.com", domain.PurposeLogin, o.ID, 2, now)
	require.NoError(t, err)
	assert.Equal(t, store.OTPAttemptExhausted, st)
	left, err := s.GetOTP(ctx(), tenantA, "kim@acme.com", domain.PurposeLogin)
	require.NoError(t, err)
	assert.Nil(t, left, "exhausted OTP is removed")

	o, err = s.UpsertOTP(ctx(), otp(tenantA, "kim@acme.com", "654321", domain.PurposeLogin, time.Minute))
	require.NoError(t, err)
	_, st, err = s.ReserveOTPAttempt(ctx(), tenantA, "kim@acme.com", domain.PurposeLogin, o.ID, 5, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, store.OTPAttemptExpired, st)
	left, err = s.GetOTP(ctx(), tenantA, "kim@acme.com", domain.PurposeLogin)
	require.NoError(t, err)
	assert.Nil(t, left, "expired OTP is removed")
}

func testOTPConcurrentReserve(t *testing.T, s store.Adapter) {
	o, err := s.UpsertOTP(ctx(), otp(tenantA, "lou@acme.com", "123456", domain.PurposeLogin, time.Minute))
	require.NoError(t, err)

	const (
		callers     = 10
		maxAttempts = 3
	)
	var (
		wg      sync.WaitGroup
		granted atomic.Int32
	)
	now := time.Now()
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, st, err := s.ReserveOTPAttempt(ctx(), tenantA, "lou@acme.com", domain.PurposeLogin, o.ID, maxAttempts, now)
			assert.NoError(t, err)
			if st == store.OTPAttemptGranted {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(maxAttempts), granted.Load())
}

func testOTPConsumeOnce(t *testing.T, s store.Adapter) {
	o, err := s.UpsertOTP(ctx(), otp(tenantA, "max@acme.com", "123456", domain.PurposeLogin, time.Minute))
	require.NoError(t, err)

	const callers = 10
	var (
		wg   sync.WaitGroup
		wins atomic.Int32
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := s.ConsumeOTP(ctx(), tenantA, "max@acme.com", domain.PurposeLogin, o.ID)
			assert.NoError(t, err)
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())

	// un id viejo no borra el OTP que lo reemplazó
	old, err := s.UpsertOTP(ctx(), otp(tenantA, "max@acme.com", "111111", domain.PurposeLogin, time.Minute))
	require.NoError(t, err)
	cur, err := s.UpsertOTP(ctx(), otp(tenantA, "max@acme.com", "222222", domain.PurposeLogin, time.Minute))
	require.NoError(t, err)
	require.NotEqual(t, old.ID, cur.ID)

	ok, err := s.ConsumeOTP(ctx(), tenantA, "max@acme.com", domain.PurposeLogin, old.ID)
	require.NoError(t, err)
	assert.False(t, ok)
	got, err := s.GetOTP(ctx(), tenantA, "max@acme.com", domain.PurposeLogin)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "222222", got.Code)

	ok, err = s.ConsumeOTP(ctx(), tenantA, "max@acme.com", domain.PurposeLogin, cur.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func testAuthConfigUpsert(t *testing.T, s store.Adapter) {
	created, err := s.UpsertAuthConfig(ctx(), tenantA, domain.AuthConfigPatch(`{"passwordPolicy":{"minLength":12}}`))
	require.NoError(t, err)
	require.NotNil(t, created)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, tenantA, created.TenantID)
	assert.Equal(t, 12, created.PasswordPolicy.MinLength)
	assert.True(t, created.AllowRegistration, "defaults fill the rest")

	updated, err := s.UpsertAuthConfig(ctx(), tenantA, domain.AuthConfigPatch(`{"allowRegistration":false,"blockedEmailDomains":["spam.io"]}`))
	require.NoError(t, err)
	assert.Equal(t, created.ID, updated.ID, "one row per tenant")
	assert.Equal(t, 12, updated.PasswordPolicy.MinLength, "previous patch survives")
	assert.False(t, updated.AllowRegistration)

	got, err := s.GetAuthConfig(ctx(), tenantA)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, []string{"spam.io"}, got.BlockedEmailDomains)
	assert.True(t, got.CreatedAt.Equal(created.CreatedAt) || got.CreatedAt.Sub(created.CreatedAt).Abs() < time.Millisecond)

	other, err := s.GetAuthConfig(ctx(), tenantB)
	require.NoError(t, err)
	assert.Nil(t, other)

	_, err = s.UpsertAuthConfig(ctx(), tenantA, domain.AuthConfigPatch(`{"passwordPolicy":{"minLength":50,"maxLength":10}}`))
	assert.Error(t, err)
	got, err = s.GetAuthConfig(ctx(), tenantA)
	require.NoError(t, err)
	assert.Equal(t, 12, got.PasswordPolicy.MinLength, "invalid patch leaves config untouched")
}

func testPurgeExpired(t *testing.T, s store.Adapter) {
	u := mustUser(t, s, tenantA, domain.NewUser{Email: "jack@acme.com"})
	short := mustSession(t, s, u, time.Minute)
	long := mustSession(t, s, u, 3*time.Hour)
	_, err := s.UpsertOTP(ctx(), otp(tenantA, "jack@acme.com", "123456", domain.PurposeLogin, time.Minute))
	require.NoError(t, err)

	st, err := s.PurgeExpired(ctx(), time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, st.Sessions)
	assert.Equal(t, 1, st.OTPs)

	got, err := s.GetSessionByToken(ctx(), short.Token)
	require.NoError(t, err)
	assert.Nil(t, got)
	got, err = s.GetSessionByToken(ctx(), long.Token)
	require.NoError(t, err)
	assert.NotNil(t, got)
}
