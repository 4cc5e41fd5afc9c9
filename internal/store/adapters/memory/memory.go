// Package memory implementa store.Adapter en memoria. Pensado para tests y
// desarrollo local: un único mutex serializa las escrituras, lo que hace
// atómicas las operaciones compuestas del contrato (alta con unicidad,
// upsert de OTP, incremento de intentos).
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/authcore/internal/domain"
	"github.com/dropDatabas3/authcore/internal/store"
)

func init() {
	store.Register(driver{})
}

type driver struct{}

func (driver) Name() string { return "memory" }

func (driver) Open(_ context.Context, cfg store.AdapterConfig) (store.Adapter, error) {
	return New(cfg), nil
}

// Adapter es el store en memoria.
type Adapter struct {
	cfg store.AdapterConfig

	mu         sync.RWMutex
	users      map[string]*domain.User // id → user
	byEmail    map[string]string       // tenant|email → id
	byUsername map[string]string       // tenant|lower(username) → id
	sessions   map[string]*domain.Session
	otps       map[string]*domain.OtpSession // tenant|identifier|purpose
	configs    map[string]*domain.AuthConfig
}

var _ store.Adapter = (*Adapter)(nil)

// New crea un store vacío. cfg solo aporta Hasher y Clock.
func New(cfg store.AdapterConfig) *Adapter {
	cfg.Driver = "memory"
	return &Adapter{
		cfg:        cfg.WithDefaults(),
		users:      map[string]*domain.User{},
		byEmail:    map[string]string{},
		byUsername: map[string]string{},
		sessions:   map[string]*domain.Session{},
		otps:       map[string]*domain.OtpSession{},
		configs:    map[string]*domain.AuthConfig{},
	}
}

func (a *Adapter) Name() string { return "memory" }

func (a *Adapter) now() time.Time { return a.cfg.Clock() }

func key(parts ...string) string { return strings.Join(parts, "|") }

func otpKey(tenantID, identifier string, purpose domain.OTPPurpose) string {
	return key(tenantID, identifier, string(purpose))
}

func cloneUser(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	c := u.Clone()
	return &c
}

// ─── Users ───

func (a *Adapter) CreateUser(_ context.Context, tenantID string, in domain.NewUser) (*domain.User, error) {
	// hash fuera del lock
	u, err := store.BuildUser(a.cfg.Hasher, a.now(), tenantID, in)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	ek := key(tenantID, u.Email)
	if _, taken := a.byEmail[ek]; taken {
		return nil, store.ErrEmailInUse
	}
	uk := ""
	if u.Username != "" {
		uk = key(tenantID, strings.ToLower(u.Username))
		if _, taken := a.byUsername[uk]; taken {
			return nil, store.ErrUsernameInUse
		}
	}

	a.users[u.ID] = &u
	a.byEmail[ek] = u.ID
	if uk != "" {
		a.byUsername[uk] = u.ID
	}
	return cloneUser(&u), nil
}

func (a *Adapter) GetUser(_ context.Context, tenantID, id string) (*domain.User, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return cloneUser(a.userLocked(tenantID, id)), nil
}

func (a *Adapter) userLocked(tenantID, id string) *domain.User {
	u, ok := a.users[id]
	if !ok || u.TenantID != tenantID {
		return nil
	}
	return u
}

func (a *Adapter) GetUserByEmail(_ context.Context, tenantID, email string) (*domain.User, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return cloneUser(a.byEmailLocked(tenantID, email)), nil
}

func (a *Adapter) byEmailLocked(tenantID, email string) *domain.User {
	id, ok := a.byEmail[key(tenantID, domain.NormalizeEmail(email))]
	if !ok {
		return nil
	}
	return a.users[id]
}

func (a *Adapter) GetUserByUsername(_ context.Context, tenantID, username string) (*domain.User, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return cloneUser(a.byUsernameLocked(tenantID, username)), nil
}

func (a *Adapter) byUsernameLocked(tenantID, username string) *domain.User {
	id, ok := a.byUsername[key(tenantID, strings.ToLower(strings.TrimSpace(username)))]
	if !ok {
		return nil
	}
	return a.users[id]
}

func (a *Adapter) GetUserByPhone(_ context.Context, tenantID, phone string) (*domain.User, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, nil
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, u := range a.users {
		if u.TenantID == tenantID && u.Phone == phone {
			return cloneUser(u), nil
		}
	}
	return nil, nil
}

func (a *Adapter) ListUsers(_ context.Context, tenantID string, opts domain.ListOptions) ([]domain.User, error) {
	opts = opts.Normalize()

	a.mu.RLock()
	var all []domain.User
	for _, u := range a.users {
		if u.TenantID == tenantID && u.Matches(opts.Search) {
			all = append(all, u.Clone())
		}
	}
	a.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.Before(all[j].CreatedAt)
		}
		return all[i].ID < all[j].ID
	})
	if opts.Offset >= len(all) {
		return []domain.User{}, nil
	}
	all = all[opts.Offset:]
	if len(all) > opts.Limit {
		all = all[:opts.Limit]
	}
	return all, nil
}

func (a *Adapter) UpdateUser(_ context.Context, tenantID, id string, patch domain.UserPatch) (*domain.User, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	u := a.userLocked(tenantID, id)
	if u == nil {
		return nil, nil
	}
	next := u.Clone()
	patch.Apply(&next, a.now())

	oldKey := key(tenantID, strings.ToLower(u.Username))
	newKey := key(tenantID, strings.ToLower(next.Username))
	if next.Username != "" && newKey != oldKey {
		if _, taken := a.byUsername[newKey]; taken {
			return nil, store.ErrUsernameInUse
		}
	}
	if newKey != oldKey {
		if u.Username != "" {
			delete(a.byUsername, oldKey)
		}
		if next.Username != "" {
			a.byUsername[newKey] = id
		}
	}
	*u = next
	return cloneUser(u), nil
}

func (a *Adapter) DeleteUser(_ context.Context, tenantID, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	u := a.userLocked(tenantID, id)
	if u == nil {
		return nil
	}
	delete(a.users, id)
	delete(a.byEmail, key(tenantID, u.Email))
	if u.Username != "" {
		delete(a.byUsername, key(tenantID, strings.ToLower(u.Username)))
	}
	for tok, s := range a.sessions {
		if s.UserID == id && s.TenantID == tenantID {
			delete(a.sessions, tok)
		}
	}
	return nil
}

func (a *Adapter) VerifyPassword(_ context.Context, tenantID, identifier, plain string) (*domain.User, error) {
	a.mu.RLock()
	u := a.byEmailLocked(tenantID, identifier)
	if u == nil {
		u = a.byUsernameLocked(tenantID, identifier)
	}
	u = cloneUser(u)
	a.mu.RUnlock()

	return store.CheckPassword(a.cfg.Hasher, u, plain), nil
}

// ─── Sessions ───

func (a *Adapter) CreateSession(_ context.Context, s domain.Session) (*domain.Session, error) {
	s, err := store.PrepareSession(s, a.now())
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, dup := a.sessions[s.Token]; dup {
		return nil, store.ErrInvalidInput
	}
	c := s
	a.sessions[s.Token] = &c
	return &s, nil
}

func (a *Adapter) GetSessionByToken(_ context.Context, token string) (*domain.Session, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s, ok := a.sessions[token]
	if !ok {
		return nil, nil
	}
	c := *s
	return &c, nil
}

func (a *Adapter) ListUserSessions(_ context.Context, tenantID, userID string) ([]domain.Session, error) {
	a.mu.RLock()
	out := []domain.Session{}
	for _, s := range a.sessions {
		if s.TenantID == tenantID && s.UserID == userID {
			out = append(out, *s)
		}
	}
	a.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (a *Adapter) DeleteSession(_ context.Context, token string) error {
	a.mu.Lock()
	delete(a.sessions, token)
	a.mu.Unlock()
	return nil
}

func (a *Adapter) DeleteUserSessions(_ context.Context, tenantID, userID string) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for tok, s := range a.sessions {
		if s.TenantID == tenantID && s.UserID == userID {
			delete(a.sessions, tok)
			n++
		}
	}
	return n, nil
}

// ─── OTP ───

func (a *Adapter) UpsertOTP(_ context.Context, o domain.OtpSession) (*domain.OtpSession, error) {
	o, err := store.PrepareOTP(o, a.now())
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	c := o
	a.otps[otpKey(o.TenantID, o.Identifier, o.Purpose)] = &c
	a.mu.Unlock()
	return &o, nil
}

func (a *Adapter) GetOTP(_ context.Context, tenantID, identifier string, purpose domain.OTPPurpose) (*domain.OtpSession, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	o, ok := a.otps[otpKey(tenantID, identifier, purpose)]
	if !ok {
		return nil, nil
	}
	c := *o
	return &c, nil
}

func (a *Adapter) IncrementOTPAttempts(_ context.Context, tenantID, identifier string, purpose domain.OTPPurpose) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	o, ok := a.otps[otpKey(tenantID, identifier, purpose)]
	if !ok {
		return 0, nil
	}
	o.Attempts++
	return o.Attempts, nil
}

func (a *Adapter) ReserveOTPAttempt(_ context.Context, tenantID, identifier string, purpose domain.OTPPurpose, id string, maxAttempts int, now time.Time) (*domain.OtpSession, store.OTPAttempt, error) {
	k := otpKey(tenantID, identifier, purpose)
	a.mu.Lock()
	defer a.mu.Unlock()
	o, ok := a.otps[k]
	switch {
	case !ok || o.ID != id:
		return nil, store.OTPAttemptMissing, nil
	case o.Expired(now):
		delete(a.otps, k)
		return nil, store.OTPAttemptExpired, nil
	case o.Attempts >= maxAttempts:
		delete(a.otps, k)
		return nil, store.OTPAttemptExhausted, nil
	}
	o.Attempts++
	c := *o
	return &c, store.OTPAttemptGranted, nil
}

func (a *Adapter) ConsumeOTP(_ context.Context, tenantID, identifier string, purpose domain.OTPPurpose, id string) (bool, error) {
	k := otpKey(tenantID, identifier, purpose)
	a.mu.Lock()
	defer a.mu.Unlock()
	if o, ok := a.otps[k]; !ok || o.ID != id {
		return false, nil
	}
	delete(a.otps, k)
	return true, nil
}

func (a *Adapter) DeleteOTP(_ context.Context, tenantID, identifier string, purpose domain.OTPPurpose) error {
	a.mu.Lock()
	delete(a.otps, otpKey(tenantID, identifier, purpose))
	a.mu.Unlock()
	return nil
}

// ─── AuthConfig ───

func (a *Adapter) GetAuthConfig(_ context.Context, tenantID string) (*domain.AuthConfig, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	c, ok := a.configs[tenantID]
	if !ok {
		return nil, nil
	}
	out := c.Clone()
	return &out, nil
}

func (a *Adapter) UpsertAuthConfig(_ context.Context, tenantID string, patch domain.AuthConfigPatch) (*domain.AuthConfig, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	base := domain.DefaultAuthConfig(tenantID)
	base.ID, base.CreatedAt = uuid.NewString(), now
	if cur, ok := a.configs[tenantID]; ok {
		base = cur.Clone()
	}
	next, err := domain.ApplyPatch(base, patch)
	if err != nil {
		return nil, err
	}
	next.UpdatedAt = now
	stored := next.Clone()
	a.configs[tenantID] = &stored
	return &next, nil
}

// ─── Housekeeping ───

func (a *Adapter) PurgeExpired(_ context.Context, now time.Time) (store.PurgeStats, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var st store.PurgeStats
	for tok, s := range a.sessions {
		if s.Expired(now) {
			delete(a.sessions, tok)
			st.Sessions++
		}
	}
	for k, o := range a.otps {
		if o.Expired(now) {
			delete(a.otps, k)
			st.OTPs++
		}
	}
	return st, nil
}

func (a *Adapter) Ping(context.Context) error { return nil }

func (a *Adapter) Close() error { return nil }
