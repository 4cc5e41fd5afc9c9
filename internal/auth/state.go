package auth

import (
	"errors"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"

	"github.com/dropDatabas3/authcore/internal/security/token"
)

// StateTTL es la vida del parámetro state del flujo OAuth.
const StateTTL = 10 * time.Minute

const stateAudience = "oauth-state"

var (
	ErrStateInvalid  = errors.New("invalid state token")
	ErrStateExpired  = errors.New("state token expired")
	ErrStateProvider = errors.New("state provider mismatch")
)

// StateClaims viaja firmado en el parámetro state.
type StateClaims struct {
	TenantID string `json:"tid"`
	Provider string `json:"provider"`
	Nonce    string `json:"nonce"`
	jwtv5.RegisteredClaims
}

// StateSigner firma y valida el state con HS256.
type StateSigner struct {
	secret []byte
	ttl    time.Duration
	now    Clock
}

func NewStateSigner(secret []byte, ttl time.Duration) *StateSigner {
	if ttl <= 0 {
		ttl = StateTTL
	}
	return &StateSigner{secret: secret, ttl: ttl, now: time.Now}
}

// Sign emite un state para (tenant, provider) con nonce aleatorio.
func (s *StateSigner) Sign(tenantID, provider string) (string, error) {
	nonce, err := token.Opaque(16)
	if err != nil {
		return "", err
	}
	now := s.now().UTC()
	claims := StateClaims{
		TenantID: tenantID,
		Provider: provider,
		Nonce:    nonce,
		RegisteredClaims: jwtv5.RegisteredClaims{
			Audience:  jwtv5.ClaimStrings{stateAudience},
			IssuedAt:  jwtv5.NewNumericDate(now),
			ExpiresAt: jwtv5.NewNumericDate(now.Add(s.ttl)),
		},
	}
	return jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims).SignedString(s.secret)
}

// Parse valida firma, audiencia, expiración y provider esperado.
func (s *StateSigner) Parse(raw, provider string) (*StateClaims, error) {
	var c StateClaims
	_, err := jwtv5.ParseWithClaims(raw, &c,
		func(*jwtv5.Token) (any, error) { return s.secret, nil },
		jwtv5.WithValidMethods([]string{jwtv5.SigningMethodHS256.Alg()}),
		jwtv5.WithAudience(stateAudience),
		jwtv5.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwtv5.ErrTokenExpired) {
			return nil, ErrStateExpired
		}
		return nil, ErrStateInvalid
	}
	if c.Provider != provider {
		return nil, ErrStateProvider
	}
	if token.ValidateTenantID(c.TenantID) != nil {
		return nil, ErrStateInvalid
	}
	return &c, nil
}
