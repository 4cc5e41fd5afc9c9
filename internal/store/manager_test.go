package store_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/authcore/internal/store"
	"github.com/dropDatabas3/authcore/internal/store/adapters/memory"
	"github.com/dropDatabas3/authcore/internal/store/storetest"
)

func TestManager_SharesDefaultStore(t *testing.T) {
	m := store.NewManager(store.AdapterConfig{Driver: "memory", Hasher: storetest.Hasher}, nil)
	defer m.CloseAll()

	a, err := m.For(context.Background(), "acme")
	require.NoError(t, err)
	b, err := m.For(context.Background(), "globex")
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Len(t, m.Stats(), 1)
}

func TestManager_TenantOverride(t *testing.T) {
	m := store.NewManager(
		store.AdapterConfig{Driver: "memory", Hasher: storetest.Hasher},
		map[string]store.AdapterConfig{"vip": {Driver: "memory", Hasher: storetest.Hasher}},
	)
	defer m.CloseAll()

	def, err := m.For(context.Background(), "acme")
	require.NoError(t, err)
	vip, err := m.For(context.Background(), "vip")
	require.NoError(t, err)
	assert.NotSame(t, def, vip)

	var keys []string
	require.NoError(t, m.Each(func(k string, _ store.Adapter) error {
		keys = append(keys, k)
		return nil
	}))
	assert.Equal(t, []string{"_default", "vip"}, keys)
}

func TestManager_ConcurrentOpenCollapses(t *testing.T) {
	var opened atomic.Int32
	m := store.NewManager(store.AdapterConfig{Driver: "memory", Hasher: storetest.Hasher}, nil)
	m.OnOpen = func(string, string) { opened.Add(1) }
	defer m.CloseAll()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.For(context.Background(), "acme")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, opened.Load())
}

func TestManager_RejectsInvalidTenant(t *testing.T) {
	m := store.NewManagerWith(memory.New(store.AdapterConfig{Hasher: storetest.Hasher}))
	_, err := m.For(context.Background(), "bad.tenant")
	assert.Error(t, err)
}

func TestManager_UnknownDriver(t *testing.T) {
	m := store.NewManager(store.AdapterConfig{Driver: "cassandra"}, nil)
	_, err := m.For(context.Background(), "acme")
	assert.True(t, errors.Is(err, store.ErrUnknownDriver), "got %v", err)
}

func TestManager_CloseAllForgetsConnections(t *testing.T) {
	m := store.NewManagerWith(memory.New(store.AdapterConfig{Hasher: storetest.Hasher}))
	require.NoError(t, m.Ping(context.Background()))
	require.NoError(t, m.CloseAll())
	assert.Empty(t, m.Stats())
}
