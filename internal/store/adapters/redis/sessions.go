package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"github.com/dropDatabas3/authcore/internal/domain"
	"github.com/dropDatabas3/authcore/internal/security/token"
	"github.com/dropDatabas3/authcore/internal/store"
)

// ─── Sessions ───
// Se indexan por sha256(token); el JSON de domain.Session omite el token.

func decodeSession(raw string, tok string) (*domain.Session, error) {
	var s domain.Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("%w: session: %v", store.ErrInvalidRecord, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidRecord, err)
	}
	s.Token = tok
	return &s, nil
}

func (a *Adapter) CreateSession(ctx context.Context, s domain.Session) (*domain.Session, error) {
	s, err := store.PrepareSession(s, a.now())
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}
	h := token.Hash(s.Token)
	sk := a.sessionKey(h)

	ok, err := a.rdb.SetNX(ctx, sk, raw, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: create session: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: duplicate session token", store.ErrInvalidInput)
	}
	_, err = a.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.PExpireAt(ctx, sk, s.ExpiresAt.Add(expiryGrace))
		p.SAdd(ctx, a.userSessionsKey(s.TenantID, s.UserID), h)
		p.ZAdd(ctx, a.sessionsExpKey(), redis.Z{Score: float64(s.ExpiresAt.UnixMilli()), Member: h})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("redis: create session: %w", err)
	}
	return &s, nil
}

func (a *Adapter) GetSessionByToken(ctx context.Context, tok string) (*domain.Session, error) {
	if tok == "" {
		return nil, nil
	}
	raw, err := a.rdb.Get(ctx, a.sessionKey(token.Hash(tok))).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get session: %w", err)
	}
	return decodeSession(raw, tok)
}

func (a *Adapter) ListUserSessions(ctx context.Context, tenantID, userID string) ([]domain.Session, error) {
	setKey := a.userSessionsKey(tenantID, userID)
	hashes, err := a.rdb.SMembers(ctx, setKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list sessions: %w", err)
	}
	out := []domain.Session{}
	if len(hashes) == 0 {
		return out, nil
	}
	keys := make([]string, len(hashes))
	for i, h := range hashes {
		keys[i] = a.sessionKey(h)
	}
	vals, err := a.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list sessions: %w", err)
	}
	var stale []any
	for i, v := range vals {
		raw, ok := v.(string)
		if !ok {
			stale = append(stale, hashes[i])
			continue
		}
		s, err := decodeSession(raw, "")
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	if len(stale) > 0 {
		a.rdb.SRem(ctx, setKey, stale...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (a *Adapter) DeleteSession(ctx context.Context, tok string) error {
	if tok == "" {
		return nil
	}
	h := token.Hash(tok)
	s, err := a.GetSessionByToken(ctx, tok)
	if err != nil || s == nil {
		return err
	}
	_, err = a.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, a.sessionKey(h))
		p.SRem(ctx, a.userSessionsKey(s.TenantID, s.UserID), h)
		p.ZRem(ctx, a.sessionsExpKey(), h)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: delete session: %w", err)
	}
	return nil
}

func (a *Adapter) DeleteUserSessions(ctx context.Context, tenantID, userID string) (int, error) {
	n, err := deleteSessionsLua.Run(ctx, a.rdb,
		[]string{a.userSessionsKey(tenantID, userID), a.sessionsExpKey()},
		a.key("session", "")).Int()
	if err != nil {
		return 0, fmt.Errorf("redis: delete user sessions: %w", err)
	}
	return n, nil
}
