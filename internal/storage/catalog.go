package storage

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// Op is the kind of work a catalog statement performs.
type Op uint8

const (
	// OpCreate creates the table when it does not exist yet.
	OpCreate Op = iota + 1
	// OpResolve inserts a natural key if absent and returns its surrogate id,
	// in one statement. Leaf dimensions only.
	OpResolve
	// OpInsert inserts one row and returns the generated surrogate id.
	// Composite dimensions and the fact table only.
	OpInsert
	// OpCount counts the rows of a table.
	OpCount
	// OpOrphans counts fact rows with a foreign key that has no target row.
	OpOrphans
)

func (o Op) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpResolve:
		return "resolve"
	case OpInsert:
		return "insert"
	case OpCount:
		return "count"
	case OpOrphans:
		return "orphans"
	default:
		return fmt.Sprintf("op(%d)", o)
	}
}

// Statement keys one entry of the catalog.
type Statement struct {
	Op    Op
	Table Table
}

func (s Statement) String() string { return s.Op.String() + ":" + s.Table.String() }

// Dialect renders the backend-specific statement shapes. Statements are
// written with '?' placeholders; BuildCatalog rebinds them with BindType.
type Dialect interface {
	Name() string
	Quote(ident string) string
	BindType() int
	CreateTable(t TableSpec) (string, error)
	Resolve(t TableSpec) string
	Insert(t TableSpec) string
}

// Catalog is the complete, fixed set of statements a gateway may run.
type Catalog map[Statement]string

// RequiredStatements lists every statement a complete catalog carries.
func RequiredStatements() []Statement {
	var out []Statement
	for _, t := range Tables() {
		out = append(out, Statement{Op: OpCreate, Table: t}, Statement{Op: OpCount, Table: t})
		if t.Leaf() {
			out = append(out, Statement{Op: OpResolve, Table: t})
		} else {
			out = append(out, Statement{Op: OpInsert, Table: t})
		}
	}
	out = append(out, Statement{Op: OpOrphans, Table: TableSales})
	return out
}

// SQL returns the text for stmt.
func (c Catalog) SQL(stmt Statement) (string, error) {
	q, ok := c[stmt]
	if !ok || q == "" {
		return "", fmt.Errorf("storage: statement %s is not in the catalog", stmt)
	}
	return q, nil
}

// Validate reports the first required statement missing from c.
func (c Catalog) Validate() error {
	for _, s := range RequiredStatements() {
		if _, err := c.SQL(s); err != nil {
			return err
		}
	}
	return nil
}

// BuildCatalog renders every required statement for d.
func BuildCatalog(d Dialect) (Catalog, error) {
	if d == nil {
		return nil, fmt.Errorf("storage: BuildCatalog called with nil dialect")
	}

	c := make(Catalog, len(RequiredStatements()))
	for _, t := range Tables() {
		spec := t.Spec()

		ddl, err := d.CreateTable(spec)
		if err != nil {
			return nil, fmt.Errorf("storage: %s create %s: %w", d.Name(), spec.Name, err)
		}
		c[Statement{Op: OpCreate, Table: t}] = ddl
		c[Statement{Op: OpCount, Table: t}] = "SELECT COUNT(*) FROM " + d.Quote(spec.Name)

		if t.Leaf() {
			c[Statement{Op: OpResolve, Table: t}] = sqlx.Rebind(d.BindType(), d.Resolve(spec))
		} else {
			c[Statement{Op: OpInsert, Table: t}] = sqlx.Rebind(d.BindType(), d.Insert(spec))
		}
	}
	c[Statement{Op: OpOrphans, Table: TableSales}] = buildOrphansSQL(d)

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// buildOrphansSQL counts fact rows where any foreign key misses its target.
func buildOrphansSQL(d Dialect) string {
	fact := TableSales.Spec()

	var b strings.Builder
	b.WriteString("SELECT COUNT(*) FROM ")
	b.WriteString(d.Quote(fact.Name))
	b.WriteString(" f")

	refs := FactReferences()
	for i, r := range refs {
		target := r.Target.Spec()
		alias := fmt.Sprintf("r%d", i+1)
		b.WriteString(" LEFT JOIN ")
		b.WriteString(d.Quote(target.Name))
		b.WriteString(" " + alias + " ON " + alias + ".")
		b.WriteString(d.Quote(target.PrimaryKey.Name))
		b.WriteString(" = f.")
		b.WriteString(d.Quote(r.Column))
	}

	b.WriteString(" WHERE ")
	for i, r := range refs {
		if i > 0 {
			b.WriteString(" OR ")
		}
		b.WriteString(fmt.Sprintf("r%d.", i+1))
		b.WriteString(d.Quote(r.Target.Spec().PrimaryKey.Name))
		b.WriteString(" IS NULL")
	}
	return b.String()
}

// Placeholders returns n comma separated '?' markers.
func Placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// QuoteList quotes and joins column names with d.
func QuoteList(d Dialect, cols []string) string {
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		out = append(out, d.Quote(c))
	}
	return strings.Join(out, ", ")
}
