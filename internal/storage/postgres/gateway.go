package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"snowload/internal/storage"
)

func init() {
	storage.Register("postgres", Open)
}

// Gateway implements storage.Gateway over one pgx connection and the
// transaction opened on it.
type Gateway struct {
	conn    *pgx.Conn
	tx      pgx.Tx
	catalog storage.Catalog
}

// Open connects to cfg.DSN and begins the load transaction.
func Open(ctx context.Context, cfg storage.Config) (storage.Gateway, error) {
	catalog, err := storage.BuildCatalog(Dialect{})
	if err != nil {
		return nil, err
	}

	conn, err := pgx.Connect(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	tx, err := conn.Begin(ctx)
	if err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("postgres: begin: %w", err)
	}
	return &Gateway{conn: conn, tx: tx, catalog: catalog}, nil
}

func (g *Gateway) active(stmt storage.Statement) (string, error) {
	if g.tx == nil {
		return "", fmt.Errorf("postgres: %s: transaction is closed", stmt)
	}
	return g.catalog.SQL(stmt)
}

func (g *Gateway) Query(ctx context.Context, stmt storage.Statement, args ...any) (storage.Rows, error) {
	q, err := g.active(stmt)
	if err != nil {
		return nil, err
	}
	rows, err := g.tx.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: %s: %w", stmt, err)
	}
	return rows, nil
}

func (g *Gateway) Execute(ctx context.Context, stmt storage.Statement, args ...any) (int64, error) {
	q, err := g.active(stmt)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := g.tx.QueryRow(ctx, q, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: %s: %w", stmt, err)
	}
	return n, nil
}

func (g *Gateway) Exec(ctx context.Context, stmt storage.Statement, args ...any) error {
	q, err := g.active(stmt)
	if err != nil {
		return err
	}
	if _, err := g.tx.Exec(ctx, q, args...); err != nil {
		return fmt.Errorf("postgres: %s: %w", stmt, err)
	}
	return nil
}

func (g *Gateway) Commit(ctx context.Context) error {
	if g.tx == nil {
		return fmt.Errorf("postgres: commit: transaction is closed")
	}
	err := g.tx.Commit(ctx)
	g.tx = nil
	if err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

func (g *Gateway) Rollback(ctx context.Context) error {
	if g.tx == nil {
		return nil
	}
	err := g.tx.Rollback(ctx)
	g.tx = nil
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("postgres: rollback: %w", err)
	}
	return nil
}

func (g *Gateway) Close() error {
	ctx := context.Background()
	rbErr := g.Rollback(ctx)
	if err := g.conn.Close(ctx); err != nil {
		return err
	}
	return rbErr
}
