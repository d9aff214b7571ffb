//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"tollgate/internal/platform/config"
	"tollgate/pkg/testutil/containers"
)

func TestOpenAndMigrate(t *testing.T) {
	pg := containers.GetManager().GetPostgres(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := Open(ctx, config.Postgres{DSN: pg.DSN, MaxOpenConns: 2, MaxIdleConns: 1, ConnMaxLifetime: time.Minute})
	require.NoError(t, err)
	defer db.Close()

	schema := `CREATE TABLE IF NOT EXISTS platform_migrations_check (id INT PRIMARY KEY)`
	require.NoError(t, Migrate(ctx, db, schema, schema), "schemas must be re-runnable")
	_, err = db.ExecContext(ctx, `INSERT INTO platform_migrations_check (id) VALUES (1)`)
	require.NoError(t, err)
}
