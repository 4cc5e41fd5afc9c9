package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Memory implementa Client sobre go-cache.
type Memory struct {
	prefix string
	ttl    time.Duration
	c      *gocache.Cache
}

func NewMemory(prefix string, defaultTTL time.Duration) *Memory {
	return &Memory{prefix: prefix, ttl: defaultTTL, c: gocache.New(defaultTTL, time.Minute)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := m.c.Get(prefixed(m.prefix, key))
	if !ok {
		return nil, ErrNotFound
	}
	b, _ := v.([]byte)
	return append([]byte(nil), b...), nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = m.ttl
	}
	m.c.Set(prefixed(m.prefix, key), append([]byte(nil), value...), ttl)
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.c.Delete(prefixed(m.prefix, key))
	return nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error {
	m.c.Flush()
	return nil
}

// Len cuenta las entradas (incluye expiradas aún no barridas).
func (m *Memory) Len() int { return m.c.ItemCount() }
