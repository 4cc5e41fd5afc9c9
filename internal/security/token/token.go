// Package token genera los secretos opacos del auth core: tokens de sesión
// con prefijo de tenant y códigos OTP numéricos. Todo sale de crypto/rand.
package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// SessionRandomBytes es la entropía de la parte aleatoria del token (256 bits).
const SessionRandomBytes = 32

const maxTenantIDLen = 64

var (
	ErrInvalidTenantID = errors.New("token: invalid tenant id")
	ErrInvalidLength   = errors.New("token: invalid code length")
)

// ValidateTenantID exige [A-Za-z0-9_-]{1,64}. El punto está prohibido porque
// separa el tenant del resto del token.
func ValidateTenantID(id string) error {
	if id == "" || len(id) > maxTenantIDLen {
		return ErrInvalidTenantID
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return ErrInvalidTenantID
		}
	}
	return nil
}

// Opaque devuelve n bytes aleatorios en base64url sin padding.
func Opaque(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("token: rand: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// NewSessionToken arma "<tenantId>.<random>". El alfabeto base64url no
// contiene '.', así que el primer punto siempre es el separador.
func NewSessionToken(tenantID string) (string, error) {
	if err := ValidateTenantID(tenantID); err != nil {
		return "", err
	}
	r, err := Opaque(SessionRandomBytes)
	if err != nil {
		return "", err
	}
	return tenantID + "." + r, nil
}

// TenantOf extrae el tenant de un token sin decodificar el resto.
func TenantOf(tok string) (string, bool) {
	tenant, rest, ok := strings.Cut(tok, ".")
	if !ok || rest == "" || ValidateTenantID(tenant) != nil {
		return "", false
	}
	return tenant, true
}

// NumericCode devuelve un código de length dígitos, uniforme sobre
// [0, 10^length) y con ceros a la izquierda.
func NumericCode(length int) (string, error) {
	if length < 1 || length > 18 {
		return "", ErrInvalidLength
	}
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("token: rand: %w", err)
	}
	return fmt.Sprintf("%0*d", length, n.Int64()), nil
}

// Hash es sha256 en base64url; los stores persistentes indexan por hash y
// nunca guardan el token en claro.
func Hash(tok string) string {
	sum := sha256.Sum256([]byte(tok))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
