package logger

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ─── HTTP ───

func RequestID(v string) zap.Field       { return zap.String("request_id", v) }
func Method(v string) zap.Field          { return zap.String("method", v) }
func Path(v string) zap.Field            { return zap.String("path", v) }
func Status(v int) zap.Field             { return zap.Int("status", v) }
func Duration(v time.Duration) zap.Field { return zap.Duration("duration", v) }
func ClientIP(v string) zap.Field        { return zap.String("client_ip", v) }
func UserAgent(v string) zap.Field       { return zap.String("user_agent", v) }

// ─── Auth ───

func TenantID(v string) zap.Field   { return zap.String("tenant_id", v) }
func UserID(v string) zap.Field     { return zap.String("user_id", v) }
func Provider(v string) zap.Field   { return zap.String("provider", v) }
func Channel(v string) zap.Field    { return zap.String("channel", v) }
func Purpose(v string) zap.Field    { return zap.String("purpose", v) }
func AuthMethod(v string) zap.Field { return zap.String("auth_method", v) }
func Driver(v string) zap.Field     { return zap.String("driver", v) }

// Email loguea el email tal cual. Usar solo en debug.
func Email(v string) zap.Field { return zap.String("email", v) }

// Identifier enmascara el identificador OTP: emails como "a…@e….com",
// teléfonos dejando los últimos 4 dígitos.
func Identifier(v string) zap.Field { return zap.String("identifier", maskIdentifier(v)) }

func maskIdentifier(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	at := strings.IndexByte(s, '@')
	if at <= 0 {
		if len(s) <= 4 {
			return "****"
		}
		return "****" + s[len(s)-4:]
	}
	user, dom := s[:at], s[at+1:]
	if len(user) > 1 {
		user = user[:1] + "…"
	}
	parts := strings.Split(dom, ".")
	if len(parts[0]) > 1 {
		parts[0] = parts[0][:1] + "…"
	}
	return user + "@" + strings.Join(parts, ".")
}

// TokenFP loguea un fingerprint corto del token en lugar del token.
func TokenFP(tok string) zap.Field {
	sum := sha256.Sum256([]byte(tok))
	return zap.String("token_fp", hex.EncodeToString(sum[:6]))
}

// ─── Sistema ───

func Component(v string) zap.Field { return zap.String("component", v) }
func Op(v string) zap.Field        { return zap.String("op", v) }
func Layer(v string) zap.Field     { return zap.String("layer", v) }
func Err(err error) zap.Field      { return zap.Error(err) }
func Count(v int) zap.Field        { return zap.Int("count", v) }
func String(k, v string) zap.Field { return zap.String(k, v) }
func Int(k string, v int) zap.Field {
	return zap.Int(k, v)
}
func Bool(k string, v bool) zap.Field { return zap.Bool(k, v) }
func Any(k string, v any) zap.Field   { return zap.Any(k, v) }
func Bytes(v int) zap.Field           { return zap.Int("bytes", v) }
func Route(v string) zap.Field        { return zap.String("route", v) }
