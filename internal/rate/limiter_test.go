package rate

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	rdb "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiters_FixedWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := rdb.NewClient(&rdb.Options{Addr: mr.Addr()})
	rule := Rule{Max: 3, Window: time.Hour}

	limiters := map[string]Limiter{
		"memory": NewMemoryLimiter(rule),
		"redis":  NewRedisLimiter(client, "rl:", rule),
	}
	for name, l := range limiters {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i := 1; i <= 3; i++ {
				res, err := l.Allow(ctx, "login:1.2.3.4")
				require.NoError(t, err)
				assert.True(t, res.Allowed, "hit %d", i)
				assert.EqualValues(t, 3-i, res.Remaining)
			}
			res, err := l.Allow(ctx, "login:1.2.3.4")
			require.NoError(t, err)
			assert.False(t, res.Allowed)
			assert.Positive(t, res.RetryAfter)
			assert.EqualValues(t, 4, res.CurrentHits)

			other, err := l.Allow(ctx, "login:5.6.7.8")
			require.NoError(t, err)
			assert.True(t, other.Allowed, "keys are independent")
		})
	}
}

func TestMemoryLimiter_NewWindowResets(t *testing.T) {
	now := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter(Rule{Max: 1, Window: time.Minute})
	l.now = func() time.Time { return now }

	res, _ := l.Allow(context.Background(), "k")
	assert.True(t, res.Allowed)
	res, _ = l.Allow(context.Background(), "k")
	assert.False(t, res.Allowed)
	assert.Equal(t, time.Minute, res.RetryAfter)

	now = now.Add(time.Minute)
	res, _ = l.Allow(context.Background(), "k")
	assert.True(t, res.Allowed)
}

func TestRedisLimiter_SetsExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := rdb.NewClient(&rdb.Options{Addr: mr.Addr()})
	l := NewRedisLimiter(client, "", Rule{Max: 5, Window: time.Minute})

	_, err := l.Allow(context.Background(), "signup key")
	require.NoError(t, err)

	keys := mr.Keys()
	require.Len(t, keys, 1)
	assert.Contains(t, keys[0], "rl:signup_key:")
	assert.Positive(t, mr.TTL(keys[0]))
}

func TestNew(t *testing.T) {
	assert.IsType(t, Unlimited{}, New(nil, "", Rule{}))
	assert.IsType(t, &MemoryLimiter{}, New(nil, "", Rule{Max: 1, Window: time.Second}))

	mr := miniredis.RunT(t)
	client := rdb.NewClient(&rdb.Options{Addr: mr.Addr()})
	assert.IsType(t, &RedisLimiter{}, New(client, "", Rule{Max: 1, Window: time.Second}))
}
