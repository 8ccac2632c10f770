package integration

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/grantbase/grantbase/pkg/auth"
	"github.com/grantbase/grantbase/pkg/authz"
	"github.com/grantbase/grantbase/pkg/collaborative"
	"github.com/grantbase/grantbase/pkg/membership"
	"github.com/grantbase/grantbase/pkg/sponsorship"
	"github.com/grantbase/grantbase/pkg/storage/postgres"
)

// setupPostgres starts a disposable PostgreSQL container, applies every
// package's migrations, and returns a connected *sql.DB. Skips the test
// when Docker is unavailable.
func setupPostgres(t *testing.T) *sql.DB {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		t.Skip("Docker not available, skipping integration tests")
	}
	defer provider.Close()

	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("grantbase_test"),
		tcpostgres.WithUsername("grantbase"),
		tcpostgres.WithPassword("grantbase_test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Skipf("failed to start PostgreSQL container: %v", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	require.NoError(t, db.Ping())

	applyAllMigrations(t, db)

	t.Cleanup(func() {
		db.Close()

		// Fresh context: the test's context may already be cancelled.
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	return db
}

func applyAllMigrations(t *testing.T, db *sql.DB) {
	t.Helper()
	ctx := context.Background()

	sets := []struct {
		table      string
		migrations []postgres.Migration
	}{
		{auth.MigrationsTable, auth.GetMigrations()},
		{authz.MigrationsTable, authz.GetMigrations()},
		{membership.MigrationsTable, membership.GetMigrations()},
		{sponsorship.MigrationsTable, sponsorship.GetMigrations()},
		{collaborative.MigrationsTable, collaborative.GetMigrations()},
	}
	for _, set := range sets {
		require.NoError(t, postgres.ApplyMigrations(ctx, db, set.table, set.migrations), set.table)
	}
}

func seedActor(t *testing.T, db *sql.DB, id, name string, admin bool, groups ...string) *auth.Actor {
	t.Helper()

	_, err := db.Exec(
		`INSERT INTO actors (id, name, is_administrator) VALUES ($1, $2, $3)`,
		id, name, admin)
	require.NoError(t, err)
	for _, g := range groups {
		_, err := db.Exec(
			`INSERT INTO actor_groups (actor_id, group_id) VALUES ($1, $2)`,
			id, g)
		require.NoError(t, err)
	}
	return &auth.Actor{ID: id, Name: name, IsAdministrator: admin, Groups: groups}
}
