package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dropDatabas3/authcore/internal/domain"
	"github.com/dropDatabas3/authcore/internal/observability/logger"
	"github.com/dropDatabas3/authcore/internal/security/token"
	"github.com/dropDatabas3/authcore/internal/store"
)

// DefaultSessionDuration se usa si no se configura otra.
const DefaultSessionDuration = 24 * time.Hour

// Clock es la fuente de tiempo inyectable.
type Clock func() time.Time

// SessionMeta describe cómo y desde dónde se autenticó el usuario.
type SessionMeta struct {
	AuthMethod string
	IPAddress  string
	UserAgent  string
}

// SessionManager emite, valida y revoca sesiones opacas. El tenant se lee
// del prefijo del token, así que Validate no necesita más contexto.
type SessionManager struct {
	stores   store.Resolver
	duration time.Duration
	now      Clock
}

type SessionOption func(*SessionManager)

// WithSessionClock reemplaza time.Now.
func WithSessionClock(c Clock) SessionOption {
	return func(m *SessionManager) { m.now = c }
}

func NewSessionManager(stores store.Resolver, duration time.Duration, opts ...SessionOption) *SessionManager {
	if duration <= 0 {
		duration = DefaultSessionDuration
	}
	m := &SessionManager{stores: stores, duration: duration, now: time.Now}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *SessionManager) Duration() time.Duration { return m.duration }

// Create persiste una sesión nueva para u.
func (m *SessionManager) Create(ctx context.Context, u *domain.User, meta SessionMeta) (*domain.Session, error) {
	if u == nil {
		return nil, errors.New("session: nil user")
	}
	tok, err := token.NewSessionToken(u.TenantID)
	if err != nil {
		return nil, fmt.Errorf("session: mint token: %w", err)
	}
	a, err := m.stores.For(ctx, u.TenantID)
	if err != nil {
		return nil, err
	}

	s, err := a.CreateSession(ctx, domain.Session{
		UserID:     u.ID,
		TenantID:   u.TenantID,
		Token:      tok,
		ExpiresAt:  m.now().Add(m.duration).UTC(),
		AuthMethod: meta.AuthMethod,
		IPAddress:  meta.IPAddress,
		UserAgent:  meta.UserAgent,
	})
	if err != nil {
		return nil, fmt.Errorf("session: create: %w", err)
	}
	logger.From(ctx).Debug("session created",
		logger.TenantID(u.TenantID), logger.UserID(u.ID), logger.AuthMethod(meta.AuthMethod), logger.TokenFP(tok))
	return s, nil
}

// Validate devuelve la sesión viva de tok o nil. Una sesión vencida se
// borra al detectarla. No extiende la expiración.
func (m *SessionManager) Validate(ctx context.Context, tok string) (*domain.Session, error) {
	tenantID, ok := token.TenantOf(tok)
	if !ok {
		return nil, nil
	}
	a, err := m.stores.For(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	s, err := a.GetSessionByToken(ctx, tok)
	if err != nil {
		return nil, fmt.Errorf("session: get: %w", err)
	}
	if s == nil {
		return nil, nil
	}
	if s.TenantID != tenantID {
		// el prefijo no coincide con el dueño: token adulterado
		return nil, nil
	}
	if s.Expired(m.now()) {
		if err := a.DeleteSession(ctx, tok); err != nil {
			return nil, fmt.Errorf("session: evict expired: %w", err)
		}
		logger.From(ctx).Debug("expired session evicted", logger.TenantID(tenantID), logger.TokenFP(tok))
		return nil, nil
	}
	return s, nil
}

// Destroy borra la sesión; no falla si no existe.
func (m *SessionManager) Destroy(ctx context.Context, tok string) error {
	tenantID, ok := token.TenantOf(tok)
	if !ok {
		return nil
	}
	a, err := m.stores.For(ctx, tenantID)
	if err != nil {
		return err
	}
	if err := a.DeleteSession(ctx, tok); err != nil {
		return fmt.Errorf("session: delete: %w", err)
	}
	return nil
}

// RevokeUser borra todas las sesiones de un usuario.
func (m *SessionManager) RevokeUser(ctx context.Context, tenantID, userID string) (int, error) {
	a, err := m.stores.For(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	n, err := a.DeleteUserSessions(ctx, tenantID, userID)
	if err != nil {
		return 0, fmt.Errorf("session: revoke user: %w", err)
	}
	return n, nil
}
