package token

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSessionToken_PrefixRoundTrip(t *testing.T) {
	for _, tenant := range []string{"acme", "A", "tenant_01", "t-2"} {
		tok, err := NewSessionToken(tenant)
		require.NoError(t, err)

		got, ok := TenantOf(tok)
		require.True(t, ok)
		assert.Equal(t, tenant, got)
		assert.Equal(t, tenant, tok[:strings.IndexByte(tok, '.')])

		raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(tok, tenant+"."))
		require.NoError(t, err)
		assert.Len(t, raw, SessionRandomBytes)
	}
}

func TestNewSessionToken_Unique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 1000; i++ {
		tok, err := NewSessionToken("acme")
		require.NoError(t, err)
		require.False(t, seen[tok])
		seen[tok] = true
	}
}

func TestNewSessionToken_RejectsBadTenant(t *testing.T) {
	for _, tenant := range []string{"", "a.b", "with space", strings.Repeat("x", 65), "ñ"} {
		_, err := NewSessionToken(tenant)
		assert.ErrorIs(t, err, ErrInvalidTenantID, tenant)
	}
}

func TestTenantOf_Malformed(t *testing.T) {
	for _, tok := range []string{"", "acme", "acme.", ".abc", "a b.xyz"} {
		_, ok := TenantOf(tok)
		assert.False(t, ok, tok)
	}
	tenant, ok := TenantOf("acme.abc.def")
	assert.True(t, ok)
	assert.Equal(t, "acme", tenant)
}

func TestNumericCode(t *testing.T) {
	for _, n := range []int{1, 4, 6, 8, 10} {
		code, err := NumericCode(n)
		require.NoError(t, err)
		require.Len(t, code, n)
		for _, r := range code {
			require.True(t, r >= '0' && r <= '9')
		}
	}
	_, err := NumericCode(0)
	assert.ErrorIs(t, err, ErrInvalidLength)
}

func TestNumericCode_CoversRange(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 2000; i++ {
		c, err := NumericCode(1)
		require.NoError(t, err)
		seen[c] = true
	}
	assert.Len(t, seen, 10)
}

func TestHash_Stable(t *testing.T) {
	assert.Equal(t, Hash("acme.x"), Hash("acme.x"))
	assert.NotEqual(t, Hash("acme.x"), Hash("acme.y"))
}
