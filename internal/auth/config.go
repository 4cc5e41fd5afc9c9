package auth

import (
	"context"
	"fmt"

	"github.com/dropDatabas3/authcore/internal/domain"
	"github.com/dropDatabas3/authcore/internal/store"
)

// ConfigSource resuelve el AuthConfig efectivo (guardado o defaults).
type ConfigSource interface {
	Get(ctx context.Context, tenantID string) (domain.AuthConfig, error)
	Invalidate(ctx context.Context, tenantID string)
}

// StoreConfigs lee el config directo del adapter, sin cache.
func StoreConfigs(stores store.Resolver) ConfigSource { return storeConfigs{stores} }

type storeConfigs struct{ stores store.Resolver }

func (s storeConfigs) Get(ctx context.Context, tenantID string) (domain.AuthConfig, error) {
	a, err := s.stores.For(ctx, tenantID)
	if err != nil {
		return domain.AuthConfig{}, err
	}
	c, err := a.GetAuthConfig(ctx, tenantID)
	if err != nil {
		return domain.AuthConfig{}, fmt.Errorf("get auth config: %w", err)
	}
	if c == nil {
		return domain.DefaultAuthConfig(tenantID), nil
	}
	return *c, nil
}

func (storeConfigs) Invalidate(context.Context, string) {}
