package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"snowload/internal/storage"
)

// TestGateway_RollbackDiscards runs against a real server when
// SNOWLOAD_TEST_POSTGRES_DSN is set.
func TestGateway_RollbackDiscards(t *testing.T) {
	dsn := os.Getenv("SNOWLOAD_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SNOWLOAD_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()

	g, err := storage.Open(ctx, storage.Config{Kind: "postgres", DSN: dsn})
	require.NoError(t, err)
	require.NoError(t, storage.CreateSchema(ctx, g))

	resolve := storage.Statement{Op: storage.OpResolve, Table: storage.TableCategory}
	first, err := g.Execute(ctx, resolve, "rollback-probe")
	require.NoError(t, err)
	again, err := g.Execute(ctx, resolve, "rollback-probe")
	require.NoError(t, err)
	require.Equal(t, first, again)

	require.NoError(t, g.Rollback(ctx))
	require.NoError(t, g.Rollback(ctx))
	require.Error(t, g.Commit(ctx))
	require.NoError(t, g.Close())
}
