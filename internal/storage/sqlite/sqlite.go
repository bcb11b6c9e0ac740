// Package sqlite registers the "sqlite" storage kind on modernc.org/sqlite.
package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"snowload/internal/storage"
	"snowload/internal/storage/sqldb"
)

func init() {
	storage.Register("sqlite", Open)
}

// Open opens the database file named by cfg.DSN with foreign keys enforced.
func Open(ctx context.Context, cfg storage.Config) (storage.Gateway, error) {
	return sqldb.Open(ctx, "sqlite", withPragmas(cfg.DSN), Dialect{})
}

// withPragmas turns on foreign key enforcement and a busy timeout unless the
// DSN already sets pragmas of its own.
func withPragmas(dsn string) string {
	if strings.Contains(dsn, "_pragma=") {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// Dialect renders catalog statements for SQLite. Resolve relies on the
// UPSERT ... RETURNING support of SQLite 3.35 and later.
type Dialect struct{}

func (Dialect) Name() string { return "sqlite" }

func (Dialect) Quote(ident string) string { return sqlIdent(ident) }

func (Dialect) BindType() int { return sqlx.QUESTION }

func (Dialect) CreateTable(t storage.TableSpec) (string, error) { return buildCreateTableSQL(t) }

func (Dialect) Resolve(t storage.TableSpec) string {
	key := sqlIdent(t.NaturalKey)
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (?) ON CONFLICT (%s) DO UPDATE SET %s = excluded.%s RETURNING %s",
		sqlIdent(t.Name), key, key, key, key, sqlIdent(t.PrimaryKey.Name),
	)
}

func (d Dialect) Insert(t storage.TableSpec) string {
	cols := t.InsertColumns()
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		sqlIdent(t.Name), storage.QuoteList(d, cols), storage.Placeholders(len(cols)), sqlIdent(t.PrimaryKey.Name),
	)
}

func sqlIdent(id string) string {
	// SQLite supports "quoted identifiers"
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func buildCreateTableSQL(t storage.TableSpec) (string, error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", fmt.Errorf("table name is empty")
	}

	var parts []string
	if t.PrimaryKey != nil {
		// "INTEGER PRIMARY KEY" is special in sqlite: it becomes the rowid and auto-generates values.
		switch strings.TrimSpace(strings.ToLower(t.PrimaryKey.Type)) {
		case "serial", "bigserial":
			parts = append(parts, fmt.Sprintf(`%s INTEGER PRIMARY KEY AUTOINCREMENT`, sqlIdent(t.PrimaryKey.Name)))
		default:
			parts = append(parts, fmt.Sprintf(`%s %s PRIMARY KEY`, sqlIdent(t.PrimaryKey.Name), t.PrimaryKey.Type))
		}
	}

	for _, c := range t.Columns {
		col := fmt.Sprintf("%s %s", sqlIdent(c.Name), c.Type)
		if c.Nullable == nil || !*c.Nullable {
			col += " NOT NULL"
		}
		// enforced only with PRAGMA foreign_keys=ON
		if c.References != "" {
			col += " REFERENCES " + c.References
		}
		parts = append(parts, col)
	}

	for _, con := range t.Constraints {
		if con.Kind != "unique" {
			return "", fmt.Errorf("%s unsupported constraint kind: %s", t.Name, con.Kind)
		}
		var cols []string
		for _, c := range con.Columns {
			cols = append(cols, sqlIdent(c))
		}
		parts = append(parts, fmt.Sprintf("UNIQUE (%s)", strings.Join(cols, ", ")))
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n);", sqlIdent(t.Name), strings.Join(parts, ",\n  ")), nil
}
