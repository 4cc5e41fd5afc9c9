package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/dropDatabas3/authcore/internal/domain"
	"github.com/dropDatabas3/authcore/internal/observability/logger"
)

func strictPolicy() domain.PasswordPolicy {
	return domain.PasswordPolicy{
		MinLength:           8,
		MaxLength:           64,
		RequireUppercase:    true,
		RequireLowercase:    true,
		RequireNumbers:      true,
		RequireSpecialChars: true,
	}
}

func TestValidate_AccumulatesInOrder(t *testing.T) {
	p := strictPolicy()
	p.ForbiddenPatterns = []string{"^a"}

	res := Validate("aaa", p, nil)
	require.False(t, res.IsValid)
	assert.Equal(t, []string{
		"Password must be at least 8 characters long",
		"Password must contain at least one uppercase letter",
		"Password must contain at least one number",
		"Password must contain at least one special character",
		MsgForbiddenPattern,
	}, res.Errors)
}

func TestValidate_ShortPasswordAlwaysFailsLength(t *testing.T) {
	p := strictPolicy()
	for n := 0; n < p.MinLength; n++ {
		res := Validate(strings.Repeat("A", n), p, nil)
		assert.False(t, res.IsValid)
		assert.Contains(t, res.Errors, "Password must be at least 8 characters long")
	}
}

func TestValidate_MaxLength(t *testing.T) {
	p := domain.PasswordPolicy{MinLength: 1, MaxLength: 4}
	res := Validate("abcde", p, nil)
	assert.Equal(t, []string{"Password must be at most 4 characters long"}, res.Errors)

	p.MaxLength = 0
	assert.True(t, Validate(strings.Repeat("x", 500), p, nil).IsValid)
}

func TestValidate_Scenario(t *testing.T) {
	res := Validate("Secret123!", strictPolicy(), nil)
	assert.True(t, res.IsValid, res.Errors)
	assert.Empty(t, res.Errors)
}

func TestValidate_ForbiddenPatternsCollapse(t *testing.T) {
	p := domain.PasswordPolicy{MinLength: 1, ForbiddenPatterns: []string{"123", "(?i)acme"}}
	res := Validate("Acme123", p, nil)
	assert.Equal(t, []string{MsgForbiddenPattern}, res.Errors)
}

func TestValidate_InvalidPatternIsLoggedAndSkipped(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	restore := logger.Replace(zap.New(core))
	defer restore()

	// lookahead no existe en RE2
	p := domain.PasswordPolicy{MinLength: 1, ForbiddenPatterns: []string{"(?=bad)x-unique-1", "zzz"}}
	res := Validate("hello", p, nil)
	assert.True(t, res.IsValid)
	require.Equal(t, 1, logs.FilterMessageSnippet("invalid forbidden pattern").Len())
}

func TestValidate_PreventUserData(t *testing.T) {
	p := domain.PasswordPolicy{MinLength: 1, PreventUserData: true}
	uc := &UserContext{Email: "alice.smith@acme.com", Username: "al", Name: "Bob Li"}

	cases := []struct {
		pw    string
		valid bool
	}{
		{"xxALICExx", false},
		{"my-smith-pw", false},
		{"iambob!", false},
		{"al-is-short", true}, // "al" < 3 chars
		{"li-is-short", true}, // "li" < 3 chars
		{"acme-domain", true}, // solo la parte local del email cuenta
		{"unrelated", true},
	}
	for _, tc := range cases {
		res := Validate(tc.pw, p, uc)
		assert.Equal(t, tc.valid, res.IsValid, tc.pw)
		if !tc.valid {
			assert.Equal(t, []string{MsgUserData}, res.Errors)
		}
	}

	assert.True(t, Validate("alice", p, nil).IsValid, "no user context, no check")
	p.PreventUserData = false
	assert.True(t, Validate("alice", p, uc).IsValid)
}

func TestValidate_PreventCommon(t *testing.T) {
	p := domain.PasswordPolicy{MinLength: 1, PreventCommon: true}
	assert.Equal(t, []string{MsgCommon}, Validate("Password123", p, nil).Errors)

	v := Validator{Blacklist: NewBlacklist("hunter2")}
	assert.False(t, v.Validate("HUNTER2", p, nil).IsValid)
	assert.True(t, v.Validate("password123", p, nil).IsValid)
}
