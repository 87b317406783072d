//go:build integration

package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrplatform/docingest/internal/logging"
	"github.com/hrplatform/docingest/internal/testutil"
)

func TestMigrator_UpDownVersion(t *testing.T) {
	ctx := context.Background()
	pc := testutil.NewPostgresContainer(ctx, t)
	defer pc.Terminate(ctx)

	m, err := NewMigrator(pc.ConnectionString(), logging.Discard())
	require.NoError(t, err)
	defer m.Close()

	version, _, err := m.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)

	require.NoError(t, m.Up())
	version, dirty, err := m.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)

	// Up again is a no-op.
	require.NoError(t, m.Up())

	pool, err := NewPool(ctx, pc.ConnectionString(), PoolConfig{MaxConns: 4})
	require.NoError(t, err)
	defer pool.Close()

	var exists bool
	require.NoError(t, pool.QueryRow(ctx, `SELECT to_regclass('public.document_chunks') IS NOT NULL`).Scan(&exists))
	assert.True(t, exists)

	require.NoError(t, m.Down())
	require.NoError(t, pool.QueryRow(ctx, `SELECT to_regclass('public.document_chunks') IS NOT NULL`).Scan(&exists))
	assert.False(t, exists)
}
