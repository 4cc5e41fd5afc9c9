package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dropDatabas3/authcore/internal/observability/logger"
	"github.com/dropDatabas3/authcore/internal/security/token"
)

const defaultKey = "_default"

// Manager resuelve tenant → Adapter. Todos los tenants comparten el store
// por defecto salvo los que tienen un override (store dedicado). Las
// conexiones se abren on-demand y se colapsan con singleflight.
type Manager struct {
	def       AdapterConfig
	overrides map[string]AdapterConfig

	mu    sync.RWMutex
	conns map[string]*managedConn
	sf    singleflight.Group

	// OnOpen se invoca al abrir una conexión nueva (métricas).
	OnOpen func(key, driver string)
}

type managedConn struct {
	adapter  Adapter
	openedAt time.Time
}

// NewManager crea un Manager. overrides mapea tenantID → config dedicada.
func NewManager(def AdapterConfig, overrides map[string]AdapterConfig) *Manager {
	o := make(map[string]AdapterConfig, len(overrides))
	for k, v := range overrides {
		o[k] = v
	}
	return &Manager{def: def, overrides: o, conns: map[string]*managedConn{}}
}

// NewManagerWith arma un Manager con un adapter por defecto ya abierto.
func NewManagerWith(a Adapter) *Manager {
	m := NewManager(AdapterConfig{Driver: a.Name()}, nil)
	m.conns[defaultKey] = &managedConn{adapter: a, openedAt: time.Now()}
	return m
}

// For implementa Resolver.
func (m *Manager) For(ctx context.Context, tenantID string) (Adapter, error) {
	if err := token.ValidateTenantID(tenantID); err != nil {
		return nil, err
	}
	key, cfg := defaultKey, m.def
	if o, ok := m.overrides[tenantID]; ok {
		key, cfg = tenantID, o
	}
	return m.get(ctx, key, cfg)
}

// Default devuelve el store compartido.
func (m *Manager) Default(ctx context.Context) (Adapter, error) {
	return m.get(ctx, defaultKey, m.def)
}

func (m *Manager) get(ctx context.Context, key string, cfg AdapterConfig) (Adapter, error) {
	m.mu.RLock()
	c, ok := m.conns[key]
	m.mu.RUnlock()
	if ok {
		return c.adapter, nil
	}

	v, err, _ := m.sf.Do(key, func() (any, error) {
		m.mu.RLock()
		c, ok := m.conns[key]
		m.mu.RUnlock()
		if ok {
			return c.adapter, nil
		}

		a, err := Open(ctx, cfg)
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		m.conns[key] = &managedConn{adapter: a, openedAt: time.Now()}
		m.mu.Unlock()

		logger.From(ctx).Info("tenant store connected",
			logger.Component("store.manager"), logger.String("key", key), logger.Driver(a.Name()))
		if m.OnOpen != nil {
			m.OnOpen(key, a.Name())
		}
		return a, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Adapter), nil
}

// Each recorre las conexiones abiertas (orden estable por clave).
func (m *Manager) Each(fn func(key string, a Adapter) error) error {
	m.mu.RLock()
	keys := make([]string, 0, len(m.conns))
	for k := range m.conns {
		keys = append(keys, k)
	}
	m.mu.RUnlock()
	sort.Strings(keys)

	var errs []error
	for _, k := range keys {
		m.mu.RLock()
		c, ok := m.conns[k]
		m.mu.RUnlock()
		if !ok {
			continue
		}
		if err := fn(k, c.adapter); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", k, err))
		}
	}
	return errors.Join(errs...)
}

// Ping verifica todas las conexiones abiertas (readiness).
func (m *Manager) Ping(ctx context.Context) error {
	return m.Each(func(_ string, a Adapter) error { return a.Ping(ctx) })
}

// ConnStats describe una conexión abierta.
type ConnStats struct {
	Key      string    `json:"key"`
	Driver   string    `json:"driver"`
	OpenedAt time.Time `json:"openedAt"`
}

func (m *Manager) Stats() []ConnStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ConnStats, 0, len(m.conns))
	for k, c := range m.conns {
		out = append(out, ConnStats{Key: k, Driver: c.adapter.Name(), OpenedAt: c.openedAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// CloseAll cierra y olvida todas las conexiones.
func (m *Manager) CloseAll() error {
	m.mu.Lock()
	conns := m.conns
	m.conns = map[string]*managedConn{}
	m.mu.Unlock()

	var errs []error
	for k, c := range conns {
		if err := c.adapter.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", k, err))
		}
	}
	return errors.Join(errs...)
}
