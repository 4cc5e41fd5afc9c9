package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/dropDatabas3/authcore/internal/domain"
	"github.com/dropDatabas3/authcore/internal/store"
)

// ─── AuthConfig ───

func decodeConfig(raw string) (*domain.AuthConfig, error) {
	var c domain.AuthConfig
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return nil, fmt.Errorf("%w: auth config: %v", store.ErrInvalidRecord, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidRecord, err)
	}
	return &c, nil
}

func (a *Adapter) GetAuthConfig(ctx context.Context, tenantID string) (*domain.AuthConfig, error) {
	raw, err := a.rdb.Get(ctx, a.configKey(tenantID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get auth config: %w", err)
	}
	return decodeConfig(raw)
}

func (a *Adapter) UpsertAuthConfig(ctx context.Context, tenantID string, patch domain.AuthConfigPatch) (*domain.AuthConfig, error) {
	ck := a.configKey(tenantID)
	var out *domain.AuthConfig

	txf := func(tx *redis.Tx) error {
		now := a.now()
		base := domain.DefaultAuthConfig(tenantID)
		base.ID, base.CreatedAt = uuid.NewString(), now

		raw, err := tx.Get(ctx, ck).Result()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			cur, err := decodeConfig(raw)
			if err != nil {
				return err
			}
			base = *cur
		}

		next, err := domain.ApplyPatch(base, patch)
		if err != nil {
			return err
		}
		next.UpdatedAt = now
		enc, err := json.Marshal(next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, ck, enc, 0)
			return nil
		})
		if err == nil {
			out = &next
		}
		return err
	}

	for range maxTxRetries {
		err := a.rdb.Watch(ctx, txf, ck)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, fmt.Errorf("redis: upsert auth config: %w", redis.TxFailedErr)
}

// ─── Housekeeping ───

func (a *Adapter) PurgeExpired(ctx context.Context, now time.Time) (store.PurgeStats, error) {
	var st store.PurgeStats
	upper := "(" + strconv.FormatInt(now.UnixMilli(), 10)

	hashes, err := a.rdb.ZRangeByScore(ctx, a.sessionsExpKey(), &redis.ZRangeBy{Min: "-inf", Max: upper}).Result()
	if err != nil {
		return st, fmt.Errorf("redis: purge sessions: %w", err)
	}
	for _, h := range hashes {
		raw, err := a.rdb.Get(ctx, a.sessionKey(h)).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return st, fmt.Errorf("redis: purge sessions: %w", err)
		}
		removed, err := a.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.ZRem(ctx, a.sessionsExpKey(), h)
			p.Del(ctx, a.sessionKey(h))
			if raw != "" {
				if s, err := decodeSession(raw, ""); err == nil {
					p.SRem(ctx, a.userSessionsKey(s.TenantID, s.UserID), h)
				}
			}
			return nil
		})
		if err != nil {
			return st, fmt.Errorf("redis: purge sessions: %w", err)
		}
		st.Sessions += int(removed[0].(*redis.IntCmd).Val())
	}

	keys, err := a.rdb.ZRangeByScore(ctx, a.otpsExpKey(), &redis.ZRangeBy{Min: "-inf", Max: upper}).Result()
	if err != nil {
		return st, fmt.Errorf("redis: purge otps: %w", err)
	}
	for _, k := range keys {
		removed, err := a.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.ZRem(ctx, a.otpsExpKey(), k)
			p.Del(ctx, k)
			return nil
		})
		if err != nil {
			return st, fmt.Errorf("redis: purge otps: %w", err)
		}
		st.OTPs += int(removed[0].(*redis.IntCmd).Val())
	}
	return st, nil
}
