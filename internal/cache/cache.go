// Package cache provee un cliente key/value con TTL y dos backends:
//
//   - memory (patrickmn/go-cache, in-process)
//   - redis  (go-redis, compartido entre réplicas)
//
// Encima vive ConfigCache, que cachea el AuthConfig efectivo por tenant.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound indica que la key no existe o expiró.
var ErrNotFound = errors.New("cache: key not found")

// Client define las operaciones de cache.
type Client interface {
	// Get obtiene un valor. Retorna ErrNotFound si no existe.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set guarda un valor; ttl 0 usa el TTL por defecto del cliente.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}

// Config configura el cliente.
type Config struct {
	Kind       string // "memory" | "redis"
	Prefix     string
	DefaultTTL time.Duration
}

// New crea un cliente según cfg.Kind. Para "redis" usa rdb, que no se
// cierra con el cliente.
func New(cfg Config, rdb *redis.Client) (Client, error) {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = time.Minute
	}
	switch strings.ToLower(cfg.Kind) {
	case "", "memory":
		return NewMemory(cfg.Prefix, cfg.DefaultTTL), nil
	case "redis":
		if rdb == nil {
			return nil, errors.New("cache: redis kind requires a redis client")
		}
		return NewRedis(rdb, cfg.Prefix, cfg.DefaultTTL), nil
	default:
		return nil, fmt.Errorf("cache: unknown kind %q", cfg.Kind)
	}
}

func prefixed(prefix, k string) string {
	if prefix == "" {
		return k
	}
	return prefix + ":" + k
}
