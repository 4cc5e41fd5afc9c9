package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/authcore/internal/domain"
	"github.com/dropDatabas3/authcore/internal/store"
	"github.com/dropDatabas3/authcore/internal/store/adapters/memory"
	"github.com/dropDatabas3/authcore/internal/store/storetest"
)

type countingAdapter struct {
	store.Adapter
	reads atomic.Int32
}

func (c *countingAdapter) GetAuthConfig(ctx context.Context, tenantID string) (*domain.AuthConfig, error) {
	c.reads.Add(1)
	time.Sleep(5 * time.Millisecond)
	return c.Adapter.GetAuthConfig(ctx, tenantID)
}

func newConfigCache(t *testing.T) (*ConfigCache, *countingAdapter) {
	t.Helper()
	a := &countingAdapter{Adapter: memory.New(store.AdapterConfig{Hasher: storetest.Hasher})}
	return NewConfigCache(NewMemory("", time.Minute), store.Static(a), time.Minute), a
}

func TestConfigCache_DefaultsWhenAbsent(t *testing.T) {
	cc, _ := newConfigCache(t)

	cfg, err := cc.Get(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, "acme", cfg.TenantID)
	assert.Equal(t, domain.DefaultPasswordPolicy(), cfg.PasswordPolicy)
	assert.True(t, cfg.AllowRegistration)
}

func TestConfigCache_CachesUntilInvalidated(t *testing.T) {
	cc, a := newConfigCache(t)
	ctx := context.Background()

	_, err := cc.Get(ctx, "acme")
	require.NoError(t, err)
	_, err = a.UpsertAuthConfig(ctx, "acme", domain.AuthConfigPatch(`{"allowRegistration":false}`))
	require.NoError(t, err)

	cfg, err := cc.Get(ctx, "acme")
	require.NoError(t, err)
	assert.True(t, cfg.AllowRegistration, "stale until invalidated")
	assert.EqualValues(t, 1, a.reads.Load())

	cc.Invalidate(ctx, "acme")
	cfg, err = cc.Get(ctx, "acme")
	require.NoError(t, err)
	assert.False(t, cfg.AllowRegistration)
	assert.EqualValues(t, 2, a.reads.Load())
}

func TestConfigCache_CollapsesConcurrentLoads(t *testing.T) {
	cc, a := newConfigCache(t)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cc.Get(context.Background(), "acme")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Less(t, a.reads.Load(), int32(5))
}

func TestConfigCache_ReturnsIndependentCopies(t *testing.T) {
	cc, _ := newConfigCache(t)
	ctx := context.Background()

	cfg, err := cc.Get(ctx, "acme")
	require.NoError(t, err)
	cfg.Providers["evil"] = domain.ProviderSettings{Enabled: true}

	again, err := cc.Get(ctx, "acme")
	require.NoError(t, err)
	assert.NotContains(t, again.Providers, "evil")
}
