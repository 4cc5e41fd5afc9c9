package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserPatchVerificationTimestamps(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	u := &User{ID: "u1", TenantID: "t", Email: "a@b.c", IsActive: true}
	yes, no := true, false

	UserPatch{EmailVerified: &yes}.Apply(u, now)
	require.True(t, u.EmailVerified)
	require.NotNil(t, u.EmailVerifiedAt)
	assert.Equal(t, now, *u.EmailVerifiedAt)

	later := now.Add(time.Hour)
	UserPatch{EmailVerified: &yes}.Apply(u, later)
	assert.Equal(t, now, *u.EmailVerifiedAt, "re-verifying keeps the first timestamp")

	UserPatch{EmailVerified: &no}.Apply(u, later)
	assert.False(t, u.EmailVerified)
	assert.Nil(t, u.EmailVerifiedAt)
	assert.Equal(t, later, u.UpdatedAt)
}

func TestUserPatchMetadataMerge(t *testing.T) {
	u := &User{Metadata: map[string]any{"a": 1, "b": 2}}
	UserPatch{Metadata: map[string]any{"b": nil, "c": 3}}.Apply(u, time.Now())
	assert.Equal(t, map[string]any{"a": 1, "c": 3}, u.Metadata)
}

func TestListOptionsNormalize(t *testing.T) {
	o := ListOptions{Limit: 1000, Offset: -3, Search: "  Alice "}.Normalize()
	assert.Equal(t, 200, o.Limit)
	assert.Equal(t, 0, o.Offset)
	assert.Equal(t, "alice", o.Search)
	assert.Equal(t, 50, ListOptions{}.Normalize().Limit)
}
