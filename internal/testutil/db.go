package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/kirinyoku/tixbook/migrations"
)

// NewTestPool connects to TEST_DATABASE_URL, applies migrations and empties
// every table. The test is skipped when the variable is unset or the
// database cannot be reached.
func NewTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Skipf("database unreachable: %v", err)
	}

	require.NoError(t, migrations.Apply(ctx, pool))
	TruncateAll(t, pool)

	t.Cleanup(pool.Close)

	return pool
}

func TruncateAll(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	_, err := pool.Exec(context.Background(),
		`TRUNCATE bookings, events, users RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
}
