// Package helpers contiene utilidades compartidas por controllers y
// middlewares: JSON, IP del cliente y metadatos de sesión.
package helpers

import (
	"net"
	"net/http"
	"strings"

	"github.com/dropDatabas3/authcore/internal/auth"
)

// ClientIP extrae la IP del cliente, considerando proxies.
func ClientIP(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		parts := strings.Split(xf, ",")
		return strings.TrimSpace(parts[0])
	}
	if xr := strings.TrimSpace(r.Header.Get("X-Real-IP")); xr != "" {
		return xr
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}

// BearerToken devuelve el token de "Authorization: Bearer <token>".
func BearerToken(r *http.Request) (string, bool) {
	ah := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(ah) < len("Bearer ") || !strings.EqualFold(ah[:len("Bearer ")], "Bearer ") {
		return "", false
	}
	tok := strings.TrimSpace(ah[len("Bearer "):])
	return tok, tok != ""
}

// SessionMeta arma los metadatos de la sesión desde el request.
func SessionMeta(r *http.Request, method string) auth.SessionMeta {
	ua := r.UserAgent()
	if len(ua) > 512 {
		ua = ua[:512]
	}
	return auth.SessionMeta{
		AuthMethod: method,
		IPAddress:  ClientIP(r),
		UserAgent:  ua,
	}
}

// TenantParam lee ?tenantId= (acepta también tenant_id).
func TenantParam(r *http.Request) string {
	q := r.URL.Query()
	if v := strings.TrimSpace(q.Get("tenantId")); v != "" {
		return v
	}
	return strings.TrimSpace(q.Get("tenant_id"))
}
