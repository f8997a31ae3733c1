package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const MigrationSQL = `
-- Send schedules, one row per job
CREATE TABLE mailer_schedules (
	job_id BIGINT PRIMARY KEY,
	name VARCHAR(255) NOT NULL,
	type TEXT NOT NULL DEFAULT 'immediate',
	super TEXT NOT NULL,
	total BIGINT NOT NULL DEFAULT 0,
	success BIGINT NOT NULL DEFAULT 0,
	failure BIGINT NOT NULL DEFAULT 0,
	status TEXT NOT NULL DEFAULT 'pending',
	send_time TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

-- Send records, append only
CREATE TABLE mailer_records (
	id UUID PRIMARY KEY,
	job_id BIGINT NOT NULL,
	job_name VARCHAR(255) NOT NULL,
	app_id BIGINT NOT NULL,
	app_name VARCHAR(255),
	receive VARCHAR(255) NOT NULL,
	super TEXT NOT NULL,
	status TEXT NOT NULL CHECK (status IN ('fulfilled', 'rejected')),
	sample_id BIGINT,
	sample_name VARCHAR(255),
	content TEXT,
	reason TEXT,
	user_id BIGINT,
	nickname VARCHAR(255),
	avatar TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX idx_mailer_schedules_status ON mailer_schedules(status);
CREATE INDEX idx_mailer_records_job_id ON mailer_records(job_id, created_at DESC);
`

// SetupTestDatabase starts a migrated PostgreSQL container and returns it with a
// pgx pool and the connection string for database/sql users.
func SetupTestDatabase(t *testing.T, ctx context.Context) (testcontainers.Container, *pgxpool.Pool, string) {
	pgContainer, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:15"),
		postgres.WithDatabase("mailer_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)

	_, err = pool.Exec(ctx, MigrationSQL)
	require.NoError(t, err)

	return pgContainer, pool, connStr
}

func CleanupTestDatabase(t *testing.T, ctx context.Context, container testcontainers.Container, pool *pgxpool.Pool) {
	if pool != nil {
		pool.Close()
	}
	if container != nil {
		err := container.Terminate(ctx)
		require.NoError(t, err)
	}
}

func TruncateTables(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	_, err := pool.Exec(ctx, "TRUNCATE TABLE mailer_schedules, mailer_records")
	require.NoError(t, err)
}
