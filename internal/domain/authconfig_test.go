package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyPatchMergesNestedObjects(t *testing.T) {
	base := DefaultAuthConfig("acme")
	base.ID = "cfg-1"

	out, err := ApplyPatch(base, AuthConfigPatch(`{"passwordPolicy":{"minLength":12},"mfaEnabled":true}`))
	require.NoError(t, err)

	assert.Equal(t, 12, out.PasswordPolicy.MinLength)
	assert.True(t, out.PasswordPolicy.RequireUppercase, "unpatched fields survive")
	assert.True(t, out.MFAEnabled)
	assert.Equal(t, "cfg-1", out.ID)
	assert.Equal(t, 8, base.PasswordPolicy.MinLength, "base is not mutated")
}

func TestApplyPatchKeepsIdentityFields(t *testing.T) {
	base := DefaultAuthConfig("acme")
	out, err := ApplyPatch(base, AuthConfigPatch(`{"tenantId":"other","id":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, "acme", out.TenantID)
	assert.Empty(t, out.ID)
}

func TestApplyPatchRejectsInconsistentLengths(t *testing.T) {
	_, err := ApplyPatch(DefaultAuthConfig("acme"), AuthConfigPatch(`{"passwordPolicy":{"minLength":20,"maxLength":10}}`))
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidatePatch(t *testing.T) {
	cases := []struct {
		name  string
		patch string
		ok    bool
	}{
		{"partial policy", `{"passwordPolicy":{"minLength":10}}`, true},
		{"otp policy", `{"phone":{"otp":{"enabled":false,"length":8}}}`, true},
		{"providers", `{"providers":{"google":{"enabled":true,"clientId":"abc"}}}`, true},
		{"unknown field", `{"nope":1}`, false},
		{"wrong type", `{"allowRegistration":"yes"}`, false},
		{"otp length out of range", `{"email":{"otp":{"length":2}}}`, false},
		{"identity field", `{"tenantId":"x"}`, false},
		{"not json", `{`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidatePatch(AuthConfigPatch(tc.patch))
			if tc.ok {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
		})
	}
}

func TestEmailDomainAllowed(t *testing.T) {
	c := DefaultAuthConfig("acme")
	assert.True(t, c.EmailDomainAllowed("a@x.com"))

	c.BlockedEmailDomains = []string{"mailinator.com"}
	assert.False(t, c.EmailDomainAllowed("a@Mailinator.com"))

	c.AllowedEmailDomains = []string{"acme.com"}
	assert.True(t, c.EmailDomainAllowed("a@acme.com"))
	assert.False(t, c.EmailDomainAllowed("a@x.com"))
	assert.False(t, c.EmailDomainAllowed("no-at-sign"))
}

func TestProviderEnabledDefaults(t *testing.T) {
	c := AuthConfig{TenantID: "acme"}
	assert.True(t, c.ProviderEnabled(ProviderEmailPassword))
	assert.False(t, c.ProviderEnabled(ProviderGoogle))
}
