package password

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHasher_RoundTrip(t *testing.T) {
	h := NewHasher(LowCost)
	phc, err := h.Hash("Secret123!")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(phc, "$argon2id$v=19$m=8192,t=1,p=1$"))

	assert.True(t, h.Check("Secret123!", phc))
	assert.False(t, h.Check("secret123!", phc))

	phc2, err := h.Hash("Secret123!")
	require.NoError(t, err)
	assert.NotEqual(t, phc, phc2, "random salt")
}

func TestHasher_VerifiesWithStoredParams(t *testing.T) {
	phc, err := NewHasher(LowCost).Hash("pw")
	require.NoError(t, err)
	assert.True(t, NewHasher(Default).Check("pw", phc))
}

func TestHasher_Bcrypt(t *testing.T) {
	legacy, err := bcrypt.GenerateFromPassword([]byte("old-pass"), bcrypt.MinCost)
	require.NoError(t, err)
	h := NewHasher(LowCost)
	assert.True(t, h.Check("old-pass", string(legacy)))
	assert.False(t, h.Check("nope", string(legacy)))
}

func TestHasher_RejectsGarbage(t *testing.T) {
	h := NewHasher(LowCost)
	for _, s := range []string{"", "plain", "$argon2id$v=18$m=1,t=1,p=1$AA$AA", "$argon2id$v=19$m=x$AA$AA", "$argon2id$v=19$m=0,t=1,p=1$AA$AA"} {
		assert.False(t, h.Check("pw", s), s)
	}
	_, err := h.Hash("")
	assert.ErrorIs(t, err, ErrEmptyPassword)
}

func TestHasher_Dummy(t *testing.T) {
	h := NewHasher(LowCost)
	h.Dummy("anything")
	assert.NotEmpty(t, h.dummy)
}

func TestLoadBlacklist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bl.txt")
	require.NoError(t, os.WriteFile(path, []byte("# comment\nHunter2\n\n  qwerty \n"), 0o600))

	bl, err := LoadBlacklist(path)
	require.NoError(t, err)
	assert.Equal(t, 2, bl.Len())
	assert.True(t, bl.Contains("hunter2"))
	assert.True(t, bl.Contains("QWERTY"))
	assert.False(t, bl.Contains("comment"))

	def, err := LoadBlacklist("")
	require.NoError(t, err)
	assert.Same(t, CommonPasswords, def)

	_, err = LoadBlacklist(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
