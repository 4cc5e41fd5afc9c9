package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/dropDatabas3/authcore/internal/observability/logger"
	"github.com/dropDatabas3/authcore/internal/security/password"
)

// Driver crea Adapters de un backend concreto. Cada driver se registra en
// su init().
type Driver interface {
	Name() string
	Open(ctx context.Context, cfg AdapterConfig) (Adapter, error)
}

// AdapterConfig configura la apertura de un Adapter.
type AdapterConfig struct {
	// Driver: "memory", "postgres", "redis".
	Driver string
	// DSN: connection string de postgres o URL redis://.
	DSN string

	MaxConns int32
	MinConns int32

	// KeyPrefix para drivers key-value (default "authcore:").
	KeyPrefix string

	// ConnectRetries reintentos con backoff exponencial al abrir (0 = sin reintentos).
	ConnectRetries uint64

	// Hasher para passwords (default argon2id password.Default).
	Hasher *password.Hasher
	// Clock para timestamps (default time.Now).
	Clock func() time.Time
}

// WithDefaults completa Hasher, Clock y prefijo.
func (c AdapterConfig) WithDefaults() AdapterConfig {
	c.Driver = strings.ToLower(strings.TrimSpace(c.Driver))
	switch c.Driver {
	case "pg", "postgresql":
		c.Driver = "postgres"
	case "mem", "inmemory":
		c.Driver = "memory"
	}
	if c.Hasher == nil {
		c.Hasher = password.NewHasher(password.Default)
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = "authcore:"
	}
	return c
}

var (
	registryMu sync.RWMutex
	drivers    = map[string]Driver{}
)

// Register agrega un driver al registry global. Panic ante duplicados.
func Register(d Driver) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := drivers[d.Name()]; dup {
		panic(fmt.Sprintf("store: driver %q already registered", d.Name()))
	}
	drivers[d.Name()] = d
}

// Drivers lista los drivers registrados, ordenados.
func Drivers() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(drivers))
	for name := range drivers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Open abre un Adapter con el driver de cfg y verifica la conexión con Ping.
func Open(ctx context.Context, cfg AdapterConfig) (Adapter, error) {
	cfg = cfg.WithDefaults()

	registryMu.RLock()
	d, ok := drivers[cfg.Driver]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (registered: %v)", ErrUnknownDriver, cfg.Driver, Drivers())
	}

	log := logger.From(ctx).With(logger.Component("store"), logger.Driver(cfg.Driver))

	var a Adapter
	backoff := retry.WithMaxRetries(cfg.ConnectRetries, retry.NewExponential(200*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		conn, err := d.Open(ctx, cfg)
		if err == nil {
			if err = conn.Ping(ctx); err != nil {
				_ = conn.Close()
			}
		}
		if err != nil {
			log.Warn("store open failed", logger.Err(err))
			return retry.RetryableError(err)
		}
		a = conn
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", cfg.Driver, err)
	}
	log.Debug("store opened")
	return a, nil
}
