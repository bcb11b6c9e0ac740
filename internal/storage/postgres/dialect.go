package postgres

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"snowload/internal/storage"
)

// Dialect renders catalog statements for Postgres.
//
// Resolve uses INSERT ... ON CONFLICT DO UPDATE so that the statement returns
// the surrogate id both when the key is new and when it already exists. A
// DO NOTHING conflict action returns no row for an existing key.
type Dialect struct{}

func (Dialect) Name() string { return "postgres" }

func (Dialect) Quote(ident string) string { return pgIdent(ident) }

func (Dialect) BindType() int { return sqlx.DOLLAR }

func (Dialect) CreateTable(t storage.TableSpec) (string, error) { return buildCreateSQL(t) }

func (Dialect) Resolve(t storage.TableSpec) string {
	key := pgIdent(t.NaturalKey)
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (?) ON CONFLICT (%s) DO UPDATE SET %s = EXCLUDED.%s RETURNING %s",
		pgIdent(t.Name), key, key, key, key, pgIdent(t.PrimaryKey.Name),
	)
}

func (d Dialect) Insert(t storage.TableSpec) string {
	cols := t.InsertColumns()
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		pgIdent(t.Name), storage.QuoteList(d, cols), storage.Placeholders(len(cols)), pgIdent(t.PrimaryKey.Name),
	)
}

// pgIdent double-quotes an identifier.
func pgIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

// buildCreateSQL renders CREATE TABLE IF NOT EXISTS for t.
//
// Primary key handling:
//   - The primary key is created as the first column and is not expected in
//     t.Columns.
//   - "serial" is native in Postgres and passes through unchanged.
func buildCreateSQL(t storage.TableSpec) (string, error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", fmt.Errorf("table name is empty")
	}

	cols := make([]string, 0, len(t.Columns)+len(t.Constraints)+1)
	if t.PrimaryKey != nil {
		pk := strings.TrimSpace(t.PrimaryKey.Name)
		pkType := strings.TrimSpace(t.PrimaryKey.Type)
		if pk == "" || pkType == "" {
			return "", fmt.Errorf("table %s: primary_key.name and primary_key.type are required", t.Name)
		}
		cols = append(cols, fmt.Sprintf(`%s %s PRIMARY KEY`, pgIdent(pk), pkType))
	}

	for _, c := range t.Columns {
		def, err := buildColumnDef(c)
		if err != nil {
			return "", fmt.Errorf("table %s: %w", t.Name, err)
		}
		cols = append(cols, def)
	}

	for _, c := range t.Constraints {
		if !strings.EqualFold(strings.TrimSpace(c.Kind), "unique") {
			return "", fmt.Errorf("table %s: unsupported constraint kind %q", t.Name, c.Kind)
		}
		if len(c.Columns) == 0 {
			return "", fmt.Errorf("table %s: unique constraint requires columns", t.Name)
		}
		quoted := make([]string, 0, len(c.Columns))
		for _, col := range c.Columns {
			quoted = append(quoted, pgIdent(strings.TrimSpace(col)))
		}
		cols = append(cols, "UNIQUE ("+strings.Join(quoted, ", ")+")")
	}

	if len(cols) == 0 {
		return "", fmt.Errorf("table %s: no columns", t.Name)
	}
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (%s);`, pgIdent(t.Name), strings.Join(cols, ", ")), nil
}

// buildColumnDef renders a single column definition.
//
// Nullable semantics:
//   - nullable == nil  => NOT NULL
//   - nullable == true => NULL (no NOT NULL clause)
func buildColumnDef(c storage.ColumnSpec) (string, error) {
	name := strings.TrimSpace(c.Name)
	typ := strings.TrimSpace(c.Type)
	if name == "" || typ == "" {
		return "", fmt.Errorf("column name/type must be set")
	}

	var b strings.Builder
	b.WriteString(pgIdent(name))
	b.WriteString(" ")
	b.WriteString(typ)

	if c.Nullable == nil || !*c.Nullable {
		b.WriteString(" NOT NULL")
	}
	if ref := strings.TrimSpace(c.References); ref != "" {
		b.WriteString(" REFERENCES ")
		b.WriteString(ref)
	}
	return b.String(), nil
}
