package auth

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/authcore/internal/domain"
	"github.com/dropDatabas3/authcore/internal/store"
)

func newOTP(t *testing.T) (*OTPManager, store.Adapter, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	mem := newMemory(clock)
	res := store.Static(mem)
	return NewOTPManager(res, StoreConfigs(res), WithOTPClock(clock.Now)), mem, clock
}

func wrongCode(code string) string {
	if code[0] == '9' {
		return "0" + code[1:]
	}
	return string(code[0]+1) + code[1:]
}

func TestOTP_Lifecycle(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newOTP(t)

	code, err := m.Generate(ctx, "acme", "Alice@Acme.com", domain.ChannelEmail, domain.PurposeLogin)
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^\d{6}$`), code)

	res, err := m.Verify(ctx, "acme", "alice@acme.com", code, domain.PurposeLogin)
	require.NoError(t, err)
	assert.Equal(t, OTPResult{IsValid: true, Channel: domain.ChannelEmail}, res)

	res, err = m.Verify(ctx, "acme", "alice@acme.com", code, domain.PurposeLogin)
	require.NoError(t, err)
	assert.Equal(t, OTPResult{Error: OTPInvalidCode}, res)
}

func TestOTP_Exhaustion(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newOTP(t)

	code, err := m.Generate(ctx, "acme", "a@acme.com", domain.ChannelEmail, domain.PurposeLogin)
	require.NoError(t, err)

	for i := 0; i < DefaultOTPPolicy.MaxAttempts; i++ {
		res, err := m.Verify(ctx, "acme", "a@acme.com", wrongCode(code), domain.PurposeLogin)
		require.NoError(t, err)
		assert.Equal(t, OTPInvalidCode, res.Error)
	}

	res, err := m.Verify(ctx, "acme", "a@acme.com", code, domain.PurposeLogin)
	require.NoError(t, err)
	assert.Equal(t, OTPResult{Error: OTPTooManyAttempts}, res)

	// el registro agotado ya no existe
	res, err = m.Verify(ctx, "acme", "a@acme.com", code, domain.PurposeLogin)
	require.NoError(t, err)
	assert.Equal(t, OTPInvalidCode, res.Error)
}

func TestOTP_Expiry(t *testing.T) {
	ctx := context.Background()
	m, mem, clock := newOTP(t)

	code, err := m.Generate(ctx, "acme", "a@acme.com", domain.ChannelEmail, domain.PurposeVerification)
	require.NoError(t, err)

	clock.Advance(DefaultOTPPolicy.Expiry + time.Second)
	res, err := m.Verify(ctx, "acme", "a@acme.com", code, domain.PurposeVerification)
	require.NoError(t, err)
	assert.Equal(t, OTPResult{Error: OTPExpired}, res)

	o, err := mem.GetOTP(ctx, "acme", "a@acme.com", domain.PurposeVerification)
	require.NoError(t, err)
	assert.Nil(t, o)
}

func TestOTP_NewCodeSupersedesPrevious(t *testing.T) {
	ctx := context.Background()
	m, mem, _ := newOTP(t)

	first, err := m.Generate(ctx, "acme", "a@acme.com", domain.ChannelEmail, domain.PurposeLogin)
	require.NoError(t, err)
	_, _ = m.Verify(ctx, "acme", "a@acme.com", wrongCode(first), domain.PurposeLogin)

	second, err := m.Generate(ctx, "acme", "a@acme.com", domain.ChannelEmail, domain.PurposeLogin)
	require.NoError(t, err)

	o, err := mem.GetOTP(ctx, "acme", "a@acme.com", domain.PurposeLogin)
	require.NoError(t, err)
	require.NotNil(t, o)
	assert.Equal(t, second, o.Code)
	assert.Zero(t, o.Attempts)

	if first != second {
		res, err := m.Verify(ctx, "acme", "a@acme.com", first, domain.PurposeLogin)
		require.NoError(t, err)
		assert.False(t, res.IsValid)
	}
	res, err := m.Verify(ctx, "acme", "a@acme.com", second, domain.PurposeLogin)
	require.NoError(t, err)
	assert.True(t, res.IsValid)
}

func TestOTP_KeysArePurposeAndTenantScoped(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newOTP(t)

	code, err := m.Generate(ctx, "acme", "a@acme.com", domain.ChannelEmail, domain.PurposeLogin)
	require.NoError(t, err)

	res, err := m.Verify(ctx, "acme", "a@acme.com", code, domain.PurposeVerification)
	require.NoError(t, err)
	assert.False(t, res.IsValid)
	res, err = m.Verify(ctx, "globex", "a@acme.com", code, domain.PurposeLogin)
	require.NoError(t, err)
	assert.False(t, res.IsValid)

	res, err = m.Verify(ctx, "acme", "a@acme.com", code, domain.PurposeLogin)
	require.NoError(t, err)
	assert.True(t, res.IsValid)
}

func TestOTP_TenantPolicy(t *testing.T) {
	ctx := context.Background()
	m, mem, clock := newOTP(t)
	_, err := mem.UpsertAuthConfig(ctx, "acme", domain.AuthConfigPatch(
		`{"phone":{"otp":{"length":8,"expirySeconds":60,"maxAttempts":1}},"email":{"otp":{"enabled":false}}}`))
	require.NoError(t, err)

	_, err = m.Generate(ctx, "acme", "a@acme.com", domain.ChannelEmail, domain.PurposeLogin)
	require.ErrorIs(t, err, ErrOTPDisabled)

	code, err := m.Generate(ctx, "acme", "+5491100000000", domain.ChannelSMS, domain.PurposeLogin)
	require.NoError(t, err)
	assert.Len(t, code, 8)

	o, err := mem.GetOTP(ctx, "acme", "+5491100000000", domain.PurposeLogin)
	require.NoError(t, err)
	assert.Equal(t, clock.Now().Add(time.Minute), o.ExpiresAt)

	res, err := m.Verify(ctx, "acme", "+5491100000000", wrongCode(code), domain.PurposeLogin)
	require.NoError(t, err)
	assert.Equal(t, OTPInvalidCode, res.Error)
	res, err = m.Verify(ctx, "acme", "+5491100000000", code, domain.PurposeLogin)
	require.NoError(t, err)
	assert.Equal(t, OTPTooManyAttempts, res.Error)
}

func TestResolveOTPPolicy(t *testing.T) {
	cfg := domain.DefaultAuthConfig("acme")
	assert.Equal(t, DefaultOTPPolicy, ResolveOTPPolicy(cfg, domain.ChannelEmail))
	assert.Equal(t, DefaultOTPPolicy, ResolveOTPPolicy(cfg, domain.ChannelWhatsApp))

	off := false
	cfg.Phone.OTP = domain.OtpPolicy{Enabled: &off, Length: 4}
	p := ResolveOTPPolicy(cfg, domain.ChannelWhatsApp)
	assert.False(t, p.Enabled)
	assert.Equal(t, 4, p.Length)
	assert.Equal(t, DefaultOTPPolicy.Expiry, p.Expiry)
	assert.True(t, ResolveOTPPolicy(cfg, domain.ChannelEmail).Enabled)
}

func TestOTP_ConcurrentWrongGuessesAreAllCounted(t *testing.T) {
	ctx := context.Background()
	m, mem, _ := newOTP(t)
	_, err := mem.UpsertAuthConfig(ctx, "acme", domain.AuthConfigPatch(`{"email":{"otp":{"maxAttempts":20}}}`))
	require.NoError(t, err)

	code, err := m.Generate(ctx, "acme", "a@acme.com", domain.ChannelEmail, domain.PurposeLogin)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Verify(ctx, "acme", "a@acme.com", wrongCode(code), domain.PurposeLogin)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	o, err := mem.GetOTP(ctx, "acme", "a@acme.com", domain.PurposeLogin)
	require.NoError(t, err)
	require.NotNil(t, o)
	assert.Equal(t, 10, o.Attempts)
}

// lockstepOTPs hace que n lectores de GetOTP vean el mismo registro antes
// de que cualquiera avance, y cuenta los intentos que el store concede.
type lockstepOTPs struct {
	store.Adapter
	n       int
	mu      sync.Mutex
	arrived int
	gate    chan struct{}
	granted int
}

func newLockstepOTPs(a store.Adapter, n int) *lockstepOTPs {
	return &lockstepOTPs{Adapter: a, n: n, gate: make(chan struct{})}
}

func (l *lockstepOTPs) GetOTP(ctx context.Context, tenantID, identifier string, purpose domain.OTPPurpose) (*domain.OtpSession, error) {
	o, err := l.Adapter.GetOTP(ctx, tenantID, identifier, purpose)
	l.mu.Lock()
	l.arrived++
	if l.arrived == l.n {
		close(l.gate)
	}
	l.mu.Unlock()
	select {
	case <-l.gate:
	case <-time.After(2 * time.Second):
	}
	return o, err
}

func (l *lockstepOTPs) ReserveOTPAttempt(ctx context.Context, tenantID, identifier string, purpose domain.OTPPurpose, id string, maxAttempts int, now time.Time) (*domain.OtpSession, store.OTPAttempt, error) {
	o, st, err := l.Adapter.ReserveOTPAttempt(ctx, tenantID, identifier, purpose, id, maxAttempts, now)
	if st == store.OTPAttemptGranted {
		l.mu.Lock()
		l.granted++
		l.mu.Unlock()
	}
	return o, st, err
}

func newLockstepOTP(t *testing.T, n int) (*OTPManager, *lockstepOTPs) {
	t.Helper()
	clock := newFakeClock()
	ls := newLockstepOTPs(newMemory(clock), n)
	res := store.Static(ls)
	return NewOTPManager(res, StoreConfigs(res), WithOTPClock(clock.Now)), ls
}

func TestOTP_ConcurrentGuessesNeverExceedMaxAttempts(t *testing.T) {
	ctx := context.Background()
	const callers = 10
	m, ls := newLockstepOTP(t, callers)

	code, err := m.Generate(ctx, "acme", "a@acme.com", domain.ChannelEmail, domain.PurposeLogin)
	require.NoError(t, err)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		valid int
	)
	for i := 0; i < callers; i++ {
		guess := wrongCode(code)
		if i == callers-1 {
			guess = code
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := m.Verify(ctx, "acme", "a@acme.com", guess, domain.PurposeLogin)
			assert.NoError(t, err)
			if res.IsValid {
				mu.Lock()
				valid++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, ls.granted, DefaultOTPPolicy.MaxAttempts)
	assert.LessOrEqual(t, valid, 1)
}

func TestOTP_ConcurrentCorrectCodeIsAcceptedOnce(t *testing.T) {
	ctx := context.Background()
	const callers = 8
	m, _ := newLockstepOTP(t, callers)
	a, err := m.stores.For(ctx, "acme")
	require.NoError(t, err)
	_, err = a.UpsertAuthConfig(ctx, "acme", domain.AuthConfigPatch(`{"email":{"otp":{"maxAttempts":20}}}`))
	require.NoError(t, err)

	code, err := m.Generate(ctx, "acme", "a@acme.com", domain.ChannelEmail, domain.PurposeLogin)
	require.NoError(t, err)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		valid int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := m.Verify(ctx, "acme", "a@acme.com", code, domain.PurposeLogin)
			assert.NoError(t, err)
			if res.IsValid {
				mu.Lock()
				valid++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, valid)
}

func TestOTPResult_Err(t *testing.T) {
	assert.NoError(t, OTPResult{IsValid: true}.Err())
	assert.ErrorIs(t, OTPResult{Error: OTPExpired}.Err(), ErrOTPExpired)
	assert.ErrorIs(t, OTPResult{Error: OTPTooManyAttempts}.Err(), ErrOTPTooManyAttempts)
	assert.ErrorIs(t, OTPResult{Error: OTPInvalidCode}.Err(), ErrOTPInvalidCode)
}

func TestNormalizeIdentifier(t *testing.T) {
	assert.Equal(t, "a@acme.com", NormalizeIdentifier("  A@ACME.com "))
	assert.Equal(t, "+54911", NormalizeIdentifier(" +54911 "))
}
