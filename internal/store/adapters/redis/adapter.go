// Package redis implementa store.Adapter sobre Redis (go-redis/v9).
//
// Layout de claves (prefijo configurable, default "authcore:"):
//
//	t:{tenant}:user:{id}             JSON del usuario (incluye hash)
//	t:{tenant}:email:{email}         → id
//	t:{tenant}:username:{lower}      → id
//	t:{tenant}:users                 ZSET id por created_at
//	t:{tenant}:user:{id}:sessions    SET de hashes de token
//	session:{sha256(token)}          JSON de la sesión
//	sessions:exp                     ZSET hash por expires_at
//	t:{tenant}:otp:{purpose}:{ident} HASH del OTP
//	otps:exp                         ZSET clave OTP por expires_at
//	t:{tenant}:config                JSON del AuthConfig
//
// Las escrituras con invariantes de unicidad o contadores corren en Lua.
package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dropDatabas3/authcore/internal/store"
)

// expiryGrace mantiene sesiones y OTPs vencidos visibles un rato para que
// el manager distinga "vencido" de "inexistente"; el sweeper los borra antes.
const expiryGrace = 24 * time.Hour

func init() {
	store.Register(driver{})
}

type driver struct{}

func (driver) Name() string { return "redis" }

func (driver) Open(_ context.Context, cfg store.AdapterConfig) (store.Adapter, error) {
	opts, err := redis.ParseURL(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("redis: parse DSN: %w", err)
	}
	if cfg.MaxConns > 0 {
		opts.PoolSize = int(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		opts.MinIdleConns = int(cfg.MinConns)
	}
	return New(redis.NewClient(opts), cfg), nil
}

// Adapter es el store redis.
type Adapter struct {
	rdb    *redis.Client
	cfg    store.AdapterConfig
	prefix string
}

var _ store.Adapter = (*Adapter)(nil)

// New envuelve un cliente ya creado; Close lo cierra.
func New(rdb *redis.Client, cfg store.AdapterConfig) *Adapter {
	cfg.Driver = "redis"
	cfg = cfg.WithDefaults()
	return &Adapter{rdb: rdb, cfg: cfg, prefix: cfg.KeyPrefix}
}

func (a *Adapter) Name() string { return "redis" }

func (a *Adapter) Ping(ctx context.Context) error {
	if err := a.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: ping: %w", err)
	}
	return nil
}

func (a *Adapter) Close() error { return a.rdb.Close() }

func (a *Adapter) now() time.Time { return a.cfg.Clock() }

// ─── keys ───

func (a *Adapter) key(parts ...string) string { return a.prefix + strings.Join(parts, ":") }

func (a *Adapter) userKey(tenant, id string) string { return a.key("t", tenant, "user", id) }
func (a *Adapter) emailKey(tenant, email string) string {
	return a.key("t", tenant, "email", email)
}
func (a *Adapter) usernameKey(tenant, username string) string {
	return a.key("t", tenant, "username", strings.ToLower(strings.TrimSpace(username)))
}
func (a *Adapter) usersKey(tenant string) string { return a.key("t", tenant, "users") }
func (a *Adapter) userSessionsKey(tenant, id string) string {
	return a.key("t", tenant, "user", id, "sessions")
}
func (a *Adapter) sessionKey(hash string) string { return a.key("session", hash) }
func (a *Adapter) sessionsExpKey() string        { return a.key("sessions", "exp") }
func (a *Adapter) otpKey(tenant, identifier, purpose string) string {
	return a.key("t", tenant, "otp", purpose, identifier)
}
func (a *Adapter) otpsExpKey() string             { return a.key("otps", "exp") }
func (a *Adapter) configKey(tenant string) string { return a.key("t", tenant, "config") }

// ─── scripts ───

// createUserLua inserta usuario + índices solo si email y username están libres.
// KEYS: email idx, username idx, user, users zset
// ARGV: id, json, score, hasUsername
var createUserLua = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 'email'
end
if ARGV[4] == '1' and redis.call('EXISTS', KEYS[2]) == 1 then
  return 'username'
end
redis.call('SET', KEYS[1], ARGV[1])
if ARGV[4] == '1' then
  redis.call('SET', KEYS[2], ARGV[1])
end
redis.call('SET', KEYS[3], ARGV[2])
redis.call('ZADD', KEYS[4], ARGV[3], ARGV[1])
return 'ok'
`)

// deleteSessionsLua borra todas las sesiones de un usuario.
// KEYS: user sessions set, sessions:exp
// ARGV: prefijo de clave de sesión
var deleteSessionsLua = redis.NewScript(`
local hashes = redis.call('SMEMBERS', KEYS[1])
local n = 0
for _, h in ipairs(hashes) do
  n = n + redis.call('DEL', ARGV[1] .. h)
  redis.call('ZREM', KEYS[2], h)
end
redis.call('DEL', KEYS[1])
return n
`)

// reserveOTPLua evalúa y cuenta un intento sobre el OTP vigente.
// KEYS: otp hash, otps:exp
// ARGV: id, maxAttempts, now (ms)
// Devuelve {estado} o {1, HGETALL} si el intento quedó reservado;
// estados: 0 missing, 2 expired, 3 exhausted.
var reserveOTPLua = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'id') ~= ARGV[1] then
  return {0}
end
local exp = redis.call('ZSCORE', KEYS[2], KEYS[1])
if exp and tonumber(exp) < tonumber(ARGV[3]) then
  redis.call('DEL', KEYS[1])
  redis.call('ZREM', KEYS[2], KEYS[1])
  return {2}
end
local n = tonumber(redis.call('HGET', KEYS[1], 'attempts') or '0')
if n >= tonumber(ARGV[2]) then
  redis.call('DEL', KEYS[1])
  redis.call('ZREM', KEYS[2], KEYS[1])
  return {3}
end
redis.call('HINCRBY', KEYS[1], 'attempts', 1)
return {1, redis.call('HGETALL', KEYS[1])}
`)

// consumeOTPLua borra el OTP solo si sigue siendo el registro id.
// KEYS: otp hash, otps:exp
// ARGV: id
var consumeOTPLua = redis.NewScript(`
if redis.call('HGET', KEYS[1], 'id') ~= ARGV[1] then
  return 0
end
redis.call('DEL', KEYS[1])
redis.call('ZREM', KEYS[2], KEYS[1])
return 1
`)

// incrOTPLua incrementa attempts solo si el OTP existe.
// KEYS: otp hash
var incrOTPLua = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
return redis.call('HINCRBY', KEYS[1], 'attempts', 1)
`)
