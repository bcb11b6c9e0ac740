package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Config is the minimal configuration needed to open a Gateway.
//
// Edge cases:
//   - Kind must be non-empty and must match a registered backend kind.
//   - DSN is passed through to the backend factory; validation is backend-specific.
type Config struct {
	Kind string
	DSN  string
}

// Rows is a forward-only cursor over a query result.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

// Gateway executes catalog statements inside one transaction.
//
// IMPORTANT: A gateway opens its transaction when it is created. Every write
// made through it stays invisible to other connections until Commit, and is
// discarded by Rollback. Statements are addressed by catalog key only; raw SQL
// text never crosses this interface.
type Gateway interface {
	// Query runs stmt and returns a cursor over its rows.
	Query(ctx context.Context, stmt Statement, args ...any) (Rows, error)

	// Execute runs a statement that returns exactly one integer (a generated
	// id or a count) and returns it.
	Execute(ctx context.Context, stmt Statement, args ...any) (int64, error)

	// Exec runs a statement that returns no rows.
	Exec(ctx context.Context, stmt Statement, args ...any) error

	// Commit makes every write of the transaction durable.
	//
	// Edge cases:
	//   - Calling Commit twice returns an error.
	Commit(ctx context.Context) error

	// Rollback discards the transaction.
	//
	// Edge cases:
	//   - Rollback after a successful Commit is a no-op, so callers can defer it.
	Rollback(ctx context.Context) error

	// Close releases the connection. An open transaction is rolled back first.
	Close() error
}

type factory func(ctx context.Context, cfg Config) (Gateway, error)

var (
	mu        sync.RWMutex
	factories = map[string]factory{}
)

// Register registers a backend under a kind (e.g. "postgres", "sqlite").
//
// When to use:
//   - Call Register from an init() function in a backend package.
//   - The `kind` string becomes the lookup key used by Open.
//
// Panics:
//   - If kind is empty.
//   - If f is nil.
//   - If kind is already registered.
func Register(kind string, f factory) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if f == nil {
		panic("storage: Register called with nil factory")
	}
	if _, exists := factories[kind]; exists {
		panic(fmt.Sprintf("storage: factory already registered for kind=%q", kind))
	}

	factories[kind] = f
}

// Open constructs a Gateway using the registered backend factory.
//
// Errors:
//   - Returns an error if cfg.Kind is empty or unsupported.
//   - Returns whatever error the registered factory returns.
func Open(ctx context.Context, cfg Config) (Gateway, error) {
	if cfg.Kind == "" {
		return nil, fmt.Errorf("storage: missing storage.kind")
	}

	mu.RLock()
	f := factories[cfg.Kind]
	mu.RUnlock()

	if f == nil {
		return nil, fmt.Errorf("storage: unsupported storage.kind=%s (registered: %v)", cfg.Kind, Kinds())
	}
	return f(ctx, cfg)
}

// Kinds returns the registered backend kinds, sorted.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()

	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// CreateSchema runs every create statement in table order through g.
func CreateSchema(ctx context.Context, g Gateway) error {
	for _, t := range Tables() {
		if err := g.Exec(ctx, Statement{Op: OpCreate, Table: t}); err != nil {
			return fmt.Errorf("storage: create %s: %w", t, err)
		}
	}
	return nil
}

// CountRows returns the row count of every table, keyed by table name.
func CountRows(ctx context.Context, g Gateway) (map[string]int64, error) {
	out := make(map[string]int64, len(Tables()))
	for _, t := range Tables() {
		n, err := g.Execute(ctx, Statement{Op: OpCount, Table: t})
		if err != nil {
			return nil, fmt.Errorf("storage: count %s: %w", t, err)
		}
		out[t.String()] = n
	}
	return out, nil
}
