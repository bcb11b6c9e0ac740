// Package sqldb implements storage.Gateway over database/sql drivers through
// sqlx. The sqlite and mssql backends share it and differ only in their
// storage.Dialect.
package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"snowload/internal/storage"
)

// Gateway runs catalog statements inside one sqlx transaction.
type Gateway struct {
	name    string
	db      *sqlx.DB
	tx      *sqlx.Tx
	catalog storage.Catalog
}

// Open opens driverName with dsn, pins the pool to one connection and begins
// the load transaction.
func Open(ctx context.Context, driverName, dsn string, d storage.Dialect) (*Gateway, error) {
	db, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: open: %w", d.Name(), err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: ping: %w", d.Name(), err)
	}
	g, err := New(ctx, db, d)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return g, nil
}

// New wraps an open handle. The handle is owned by the gateway from here on.
func New(ctx context.Context, db *sqlx.DB, d storage.Dialect) (*Gateway, error) {
	catalog, err := storage.BuildCatalog(d)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(1)
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: begin: %w", d.Name(), err)
	}
	return &Gateway{name: d.Name(), db: db, tx: tx, catalog: catalog}, nil
}

func (g *Gateway) active(stmt storage.Statement) (string, error) {
	if g.tx == nil {
		return "", fmt.Errorf("%s: %s: transaction is closed", g.name, stmt)
	}
	return g.catalog.SQL(stmt)
}

func (g *Gateway) Query(ctx context.Context, stmt storage.Statement, args ...any) (storage.Rows, error) {
	q, err := g.active(stmt)
	if err != nil {
		return nil, err
	}
	rows, err := g.tx.QueryxContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %s: %w", g.name, stmt, err)
	}
	return cursor{rows}, nil
}

func (g *Gateway) Execute(ctx context.Context, stmt storage.Statement, args ...any) (int64, error) {
	q, err := g.active(stmt)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := g.tx.QueryRowxContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("%s: %s: %w", g.name, stmt, err)
	}
	return n, nil
}

func (g *Gateway) Exec(ctx context.Context, stmt storage.Statement, args ...any) error {
	q, err := g.active(stmt)
	if err != nil {
		return err
	}
	if _, err := g.tx.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("%s: %s: %w", g.name, stmt, err)
	}
	return nil
}

func (g *Gateway) Commit(ctx context.Context) error {
	if g.tx == nil {
		return fmt.Errorf("%s: commit: transaction is closed", g.name)
	}
	err := g.tx.Commit()
	g.tx = nil
	if err != nil {
		return fmt.Errorf("%s: commit: %w", g.name, err)
	}
	return nil
}

func (g *Gateway) Rollback(ctx context.Context) error {
	if g.tx == nil {
		return nil
	}
	err := g.tx.Rollback()
	g.tx = nil
	if err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("%s: rollback: %w", g.name, err)
	}
	return nil
}

func (g *Gateway) Close() error {
	rbErr := g.Rollback(context.Background())
	if err := g.db.Close(); err != nil {
		return err
	}
	return rbErr
}

// cursor adapts *sqlx.Rows to storage.Rows.
type cursor struct{ rows *sqlx.Rows }

func (c cursor) Next() bool             { return c.rows.Next() }
func (c cursor) Scan(dest ...any) error { return c.rows.Scan(dest...) }
func (c cursor) Err() error             { return c.rows.Err() }
func (c cursor) Close()                 { _ = c.rows.Close() }
