//go:build integration

package pg

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	c, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("authcore"),
		postgres.WithUsername("authcore"),
		postgres.WithPassword("authcore"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(ctx) })

	dsn, err := c.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return dsn
}

func TestMigrator_UpDown(t *testing.T) {
	dsn := startPostgres(t)

	m, err := NewMigrator(dsn)
	require.NoError(t, err)
	defer m.Close()

	v, dirty, err := m.Version()
	require.NoError(t, err)
	assert.Zero(t, v)
	assert.False(t, dirty)

	require.NoError(t, m.Up())
	v, dirty, err = m.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)
	assert.False(t, dirty)

	// idempotente
	require.NoError(t, m.Up())

	require.NoError(t, m.Down())
	v, _, err = m.Version()
	require.NoError(t, err)
	assert.Zero(t, v)
}

func TestContract_Container(t *testing.T) {
	runContract(t, startPostgres(t))
}
