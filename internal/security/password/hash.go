package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Params de argon2id.
type Params struct {
	Memory      uint32 // KiB
	Time        uint32
	Parallelism uint8
	KeyLen      uint32
}

var (
	// Default se usa en producción.
	Default = Params{Memory: 64 * 1024, Time: 3, Parallelism: 1, KeyLen: 32}
	// LowCost para tests y entornos con poca memoria.
	LowCost = Params{Memory: 8 * 1024, Time: 1, Parallelism: 1, KeyLen: 32}
)

var ErrEmptyPassword = errors.New("password: empty password")

// Hasher hashea con argon2id (PHC) y verifica tanto argon2id como bcrypt
// legacy. Dummy consume el mismo tiempo que una verificación real para
// usuarios inexistentes.
type Hasher struct {
	params Params

	dummyOnce sync.Once
	dummy     string
}

func NewHasher(p Params) *Hasher {
	if p.KeyLen == 0 {
		p = Default
	}
	return &Hasher{params: p}
}

// Hash devuelve $argon2id$v=19$m=..,t=..,p=..$<salt>$<key>.
func (h *Hasher) Hash(plain string) (string, error) {
	if plain == "" {
		return "", ErrEmptyPassword
	}
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("password: salt: %w", err)
	}
	p := h.params
	key := argon2.IDKey([]byte(plain), salt, p.Time, p.Memory, p.Parallelism, p.KeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.Memory, p.Time, p.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Check compara plain contra un hash guardado (argon2id o bcrypt).
func (h *Hasher) Check(plain, stored string) bool {
	switch {
	case strings.HasPrefix(stored, "$argon2id$"):
		return verifyArgon2id(plain, stored)
	case strings.HasPrefix(stored, "$2a$"), strings.HasPrefix(stored, "$2b$"), strings.HasPrefix(stored, "$2y$"):
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(plain)) == nil
	}
	return false
}

// Dummy verifica contra un hash descartable con los mismos parámetros, para
// que "usuario inexistente" tarde lo mismo que "password incorrecto".
func (h *Hasher) Dummy(plain string) {
	h.dummyOnce.Do(func() {
		h.dummy, _ = h.Hash("authcore-dummy-password")
	})
	_ = h.Check(plain, h.dummy)
}

func verifyArgon2id(plain, phc string) bool {
	// "", "argon2id", "v=19", "m=..,t=..,p=..", salt, key
	parts := strings.Split(phc, "$")
	if len(parts) != 6 || parts[2] != "v=19" {
		return false
	}
	var m, t uint32
	var p uint8
	for _, kv := range strings.Split(parts[3], ",") {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return false
		}
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return false
		}
		switch k {
		case "m":
			m = uint32(n)
		case "t":
			t = uint32(n)
		case "p":
			if n > 255 {
				return false
			}
			p = uint8(n)
		default:
			return false
		}
	}
	if m == 0 || t == 0 || p == 0 {
		return false
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(want) == 0 {
		return false
	}
	got := argon2.IDKey([]byte(plain), salt, t, m, p, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1
}
