package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"snowload/internal/storage"
)

func openTemp(t *testing.T, path string) storage.Gateway {
	t.Helper()
	g, err := storage.Open(context.Background(), storage.Config{Kind: "sqlite", DSN: path})
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })
	return g
}

func TestWithPragmas(t *testing.T) {
	require.Equal(t, "a.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", withPragmas("a.db"))
	require.Equal(t, "file:a.db?mode=rwc&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", withPragmas("file:a.db?mode=rwc"))
	require.Equal(t, "a.db?_pragma=journal_mode(WAL)", withPragmas("a.db?_pragma=journal_mode(WAL)"))
}

func TestResolve_IdempotentWithinTransaction(t *testing.T) {
	ctx := context.Background()
	g := openTemp(t, filepath.Join(t.TempDir(), "resolve.db"))
	require.NoError(t, storage.CreateSchema(ctx, g))

	stmt := storage.Statement{Op: storage.OpResolve, Table: storage.TableCategory}
	tools, err := g.Execute(ctx, stmt, "Tools")
	require.NoError(t, err)
	toys, err := g.Execute(ctx, stmt, "Toys")
	require.NoError(t, err)
	again, err := g.Execute(ctx, stmt, "Tools")
	require.NoError(t, err)

	require.Equal(t, tools, again)
	require.NotEqual(t, tools, toys)

	n, err := g.Execute(ctx, storage.Statement{Op: storage.OpCount, Table: storage.TableCategory})
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
}

func TestCommit_PersistsAndRollbackDiscards(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tx.db")

	g, err := storage.Open(ctx, storage.Config{Kind: "sqlite", DSN: path})
	require.NoError(t, err)
	require.NoError(t, storage.CreateSchema(ctx, g))
	_, err = g.Execute(ctx, storage.Statement{Op: storage.OpResolve, Table: storage.TableBrand}, "Acme")
	require.NoError(t, err)
	require.NoError(t, g.Commit(ctx))
	require.NoError(t, g.Close())

	g, err = storage.Open(ctx, storage.Config{Kind: "sqlite", DSN: path})
	require.NoError(t, err)
	_, err = g.Execute(ctx, storage.Statement{Op: storage.OpResolve, Table: storage.TableBrand}, "Other")
	require.NoError(t, err)
	require.NoError(t, g.Rollback(ctx))
	require.NoError(t, g.Close())

	g = openTemp(t, path)
	n, err := g.Execute(ctx, storage.Statement{Op: storage.OpCount, Table: storage.TableBrand})
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestForeignKeysEnforced(t *testing.T) {
	ctx := context.Background()
	g := openTemp(t, filepath.Join(t.TempDir(), "fk.db"))
	require.NoError(t, storage.CreateSchema(ctx, g))

	_, err := g.Execute(ctx, storage.Statement{Op: storage.OpInsert, Table: storage.TableLocation}, 41, 42, 43)
	require.Error(t, err)
}

func TestOrphans_ZeroOnEmptySchema(t *testing.T) {
	ctx := context.Background()
	g := openTemp(t, filepath.Join(t.TempDir(), "orphans.db"))
	require.NoError(t, storage.CreateSchema(ctx, g))

	n, err := g.Execute(ctx, storage.Statement{Op: storage.OpOrphans, Table: storage.TableSales})
	require.NoError(t, err)
	require.Zero(t, n)
}
