// Package rate implementa límites fixed-window por clave, en memoria
// (go-cache) o en Redis (INCR + EXPIRE).
package rate

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	rdb "github.com/redis/go-redis/v9"
)

type Result struct {
	Allowed     bool
	Remaining   int64
	RetryAfter  time.Duration
	CurrentHits int64
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// Rule es un límite de Max hits por Window.
type Rule struct {
	Max    int
	Window time.Duration
}

func (r Rule) Enabled() bool { return r.Max > 0 && r.Window > 0 }

func result(hits, limit int64, retry time.Duration) Result {
	res := Result{Allowed: hits <= limit, Remaining: limit - hits, CurrentHits: hits}
	if res.Remaining < 0 {
		res.Remaining = 0
	}
	if !res.Allowed {
		res.RetryAfter = retry
	}
	return res
}

func windowKey(prefix, key string, start time.Time) string {
	return fmt.Sprintf("%s%s:%d", prefix, strings.ReplaceAll(key, " ", "_"), start.Unix())
}

// RedisLimiter: fixed window sencillo (INCR + EXPIRE)
type RedisLimiter struct {
	Client *rdb.Client
	Prefix string
	Rule   Rule
}

func NewRedisLimiter(client *rdb.Client, prefix string, rule Rule) *RedisLimiter {
	if prefix == "" {
		prefix = "rl:"
	}
	return &RedisLimiter{Client: client, Prefix: prefix, Rule: rule}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	now := time.Now().UTC()
	redisKey := windowKey(l.Prefix, key, now.Truncate(l.Rule.Window))

	pipe := l.Client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	ttl := pipe.TTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, fmt.Errorf("rate: redis: %w", err)
	}

	// expiry en el primer hit de la ventana
	retry := ttl.Val()
	if incr.Val() == 1 {
		if err := l.Client.Expire(ctx, redisKey, l.Rule.Window).Err(); err != nil {
			return Result{}, fmt.Errorf("rate: redis: %w", err)
		}
		retry = l.Rule.Window
	}
	if retry < 0 {
		retry = time.Duration(math.Ceil(l.Rule.Window.Seconds())) * time.Second
	}
	return result(incr.Val(), int64(l.Rule.Max), retry), nil
}

// MemoryLimiter guarda los contadores de ventana en go-cache; sirve para
// una sola réplica.
type MemoryLimiter struct {
	Rule Rule

	mu sync.Mutex
	c  *gocache.Cache
	// now es inyectable en tests.
	now func() time.Time
}

func NewMemoryLimiter(rule Rule) *MemoryLimiter {
	return &MemoryLimiter{Rule: rule, c: gocache.New(rule.Window, time.Minute), now: time.Now}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Result, error) {
	now := l.now().UTC()
	start := now.Truncate(l.Rule.Window)
	k := windowKey("", key, start)

	l.mu.Lock()
	if _, found := l.c.Get(k); !found {
		l.c.Set(k, int64(0), l.Rule.Window)
	}
	hits, err := l.c.IncrementInt64(k, 1)
	l.mu.Unlock()
	if err != nil {
		return Result{}, fmt.Errorf("rate: memory: %w", err)
	}
	return result(hits, int64(l.Rule.Max), start.Add(l.Rule.Window).Sub(now)), nil
}

// Unlimited deja pasar todo (límite deshabilitado).
type Unlimited struct{}

func (Unlimited) Allow(context.Context, string) (Result, error) {
	return Result{Allowed: true, Remaining: math.MaxInt64}, nil
}

// New arma un limiter para rule: Unlimited si la regla está deshabilitada,
// redis si hay cliente, memoria si no.
func New(client *rdb.Client, prefix string, rule Rule) Limiter {
	switch {
	case !rule.Enabled():
		return Unlimited{}
	case client != nil:
		return NewRedisLimiter(client, prefix, rule)
	default:
		return NewMemoryLimiter(rule)
	}
}
