package password

import (
	"crypto/rand"
	"math/big"

	"github.com/dropDatabas3/authcore/internal/domain"
)

const (
	poolUpper  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	poolLower  = "abcdefghijklmnopqrstuvwxyz"
	poolDigits = "0123456789"
)

// maxExampleAttempts acota la regeneración cuando un ejemplo choca con un
// forbiddenPattern o la blacklist.
const maxExampleAttempts = 64

// GenerateExamples arma tres passwords de ejemplo (weak, good, strong) con
// largos min, min+2 y min+6, topeados por MaxLength. Cada uno incluye un
// carácter por clase requerida, se completa con el pool combinado y se
// mezcla con crypto/rand.
//
// Para toda política satisfacible cada ejemplo pasa Validate con la misma
// política.
func GenerateExamples(policy domain.PasswordPolicy) [3]string {
	var out [3]string
	for i, extra := range []int{0, 2, 6} {
		n := exampleLength(policy, extra)
		var pw string
		for attempt := 0; attempt < maxExampleAttempts; attempt++ {
			pw = buildExample(policy, n)
			if Validate(pw, policy, nil).IsValid {
				break
			}
		}
		out[i] = pw
	}
	return out
}

func exampleLength(policy domain.PasswordPolicy, extra int) int {
	n := policy.MinLength + extra
	if n < 1 {
		n = 1
	}
	if policy.MaxLength > 0 && n > policy.MaxLength {
		n = policy.MaxLength
	}
	if req := len(requiredPools(policy)); n < req {
		n = req
	}
	return n
}

func requiredPools(policy domain.PasswordPolicy) []string {
	var pools []string
	if policy.RequireUppercase {
		pools = append(pools, poolUpper)
	}
	if policy.RequireLowercase {
		pools = append(pools, poolLower)
	}
	if policy.RequireNumbers {
		pools = append(pools, poolDigits)
	}
	if policy.RequireSpecialChars {
		pools = append(pools, SpecialChars)
	}
	return pools
}

func buildExample(policy domain.PasswordPolicy, n int) string {
	union := poolUpper + poolLower + poolDigits
	if policy.RequireSpecialChars {
		union += SpecialChars
	}

	buf := make([]byte, 0, n)
	for _, pool := range requiredPools(policy) {
		buf = append(buf, pick(pool))
	}
	for len(buf) < n {
		buf = append(buf, pick(union))
	}
	shuffle(buf)
	return string(buf)
}

func randIntn(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		panic("password: crypto/rand unavailable: " + err.Error())
	}
	return int(v.Int64())
}

func pick(pool string) byte { return pool[randIntn(len(pool))] }

// shuffle es Fisher–Yates sobre crypto/rand.
func shuffle(b []byte) {
	for i := len(b) - 1; i > 0; i-- {
		j := randIntn(i + 1)
		b[i], b[j] = b[j], b[i]
	}
}
