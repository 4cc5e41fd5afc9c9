package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dropDatabas3/authcore/internal/domain"
	"github.com/dropDatabas3/authcore/internal/observability/logger"
	"github.com/dropDatabas3/authcore/internal/store"
)

// ConfigCache resuelve el AuthConfig efectivo de un tenant (el guardado o
// los defaults) con cache y colapso de lecturas concurrentes.
type ConfigCache struct {
	client Client
	stores store.Resolver
	ttl    time.Duration
	sf     singleflight.Group
}

func NewConfigCache(client Client, stores store.Resolver, ttl time.Duration) *ConfigCache {
	return &ConfigCache{client: client, stores: stores, ttl: ttl}
}

func configKey(tenantID string) string { return "authcfg:" + tenantID }

// Get nunca devuelve nil: sin config guardada devuelve los defaults.
func (c *ConfigCache) Get(ctx context.Context, tenantID string) (domain.AuthConfig, error) {
	log := logger.From(ctx).With(logger.Component("cache.config"), logger.TenantID(tenantID))

	raw, err := c.client.Get(ctx, configKey(tenantID))
	switch {
	case err == nil:
		var cfg domain.AuthConfig
		if jerr := json.Unmarshal(raw, &cfg); jerr == nil {
			return cfg, nil
		}
		log.Warn("dropping undecodable cached config")
		_ = c.client.Delete(ctx, configKey(tenantID))
	case !errors.Is(err, ErrNotFound):
		log.Warn("config cache read failed", logger.Err(err))
	}

	v, err, _ := c.sf.Do(tenantID, func() (any, error) {
		return c.load(ctx, tenantID)
	})
	if err != nil {
		return domain.AuthConfig{}, err
	}
	return v.(domain.AuthConfig).Clone(), nil
}

func (c *ConfigCache) load(ctx context.Context, tenantID string) (domain.AuthConfig, error) {
	a, err := c.stores.For(ctx, tenantID)
	if err != nil {
		return domain.AuthConfig{}, err
	}
	stored, err := a.GetAuthConfig(ctx, tenantID)
	if err != nil {
		return domain.AuthConfig{}, fmt.Errorf("load auth config: %w", err)
	}
	cfg := domain.DefaultAuthConfig(tenantID)
	if stored != nil {
		cfg = *stored
	}
	if b, err := json.Marshal(cfg); err == nil {
		if err := c.client.Set(ctx, configKey(tenantID), b, c.ttl); err != nil {
			logger.From(ctx).Warn("config cache write failed", logger.TenantID(tenantID), logger.Err(err))
		}
	}
	return cfg, nil
}

// Invalidate descarta el config cacheado (tras un PATCH).
func (c *ConfigCache) Invalidate(ctx context.Context, tenantID string) {
	if err := c.client.Delete(ctx, configKey(tenantID)); err != nil {
		logger.From(ctx).Warn("config cache invalidate failed", logger.TenantID(tenantID), logger.Err(err))
	}
}
