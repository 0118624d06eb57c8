//go:build integration

package testsupport

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/gymlog/internal/persistence/postgres"
)

// StartPostgres launches a Postgres container, applies migrations and returns a pool.
func StartPostgres(ctx context.Context, t *testing.T) *pgxpool.Pool {
	t.Helper()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("gymlog"),
		postgrescontainer.WithUsername("gymlog"),
		postgrescontainer.WithPassword("gymlog"),
	)
	testcontainers.CleanupContainer(t, pg)
	require.NoError(t, err)

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	var pool *pgxpool.Pool
	require.Eventually(t, func() bool {
		pool, err = postgres.Connect(ctx, connStr)
		return err == nil
	}, 30*time.Second, time.Second, "postgres never became reachable")
	t.Cleanup(pool.Close)

	_, err = postgres.Migrate(ctx, pool)
	require.NoError(t, err)
	return pool
}

// ResetPostgres empties every table the services write to.
func ResetPostgres(ctx context.Context, t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	_, err := pool.Exec(ctx, `TRUNCATE gym_records, sessions, exercises, users, outbox, outbox_dlq, gym_event_log RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
}

// CountPostgres snapshots the core table sizes.
func CountPostgres(ctx context.Context, t *testing.T, pool *pgxpool.Pool) Counts {
	t.Helper()
	var c Counts
	err := pool.QueryRow(ctx, `SELECT
        (SELECT COUNT(*) FROM users),
        (SELECT COUNT(*) FROM exercises),
        (SELECT COUNT(*) FROM sessions),
        (SELECT COUNT(*) FROM gym_records)`).Scan(&c.Users, &c.Exercises, &c.Sessions, &c.Records)
	require.NoError(t, err)
	return c
}
