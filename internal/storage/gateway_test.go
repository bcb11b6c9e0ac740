package storage

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

type fakeGateway struct {
	execs    []Statement
	executes []Statement
	counts   map[Table]int64
	execErr  error
}

func (f *fakeGateway) Query(ctx context.Context, stmt Statement, args ...any) (Rows, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeGateway) Execute(ctx context.Context, stmt Statement, args ...any) (int64, error) {
	f.executes = append(f.executes, stmt)
	return f.counts[stmt.Table], nil
}

func (f *fakeGateway) Exec(ctx context.Context, stmt Statement, args ...any) error {
	f.execs = append(f.execs, stmt)
	return f.execErr
}

func (f *fakeGateway) Commit(ctx context.Context) error   { return nil }
func (f *fakeGateway) Rollback(ctx context.Context) error { return nil }
func (f *fakeGateway) Close() error                       { return nil }

// plainDialect renders unquoted identifiers with question mark binds.
type plainDialect struct{ createErr error }

func (plainDialect) Name() string              { return "plain" }
func (plainDialect) Quote(ident string) string { return ident }
func (plainDialect) BindType() int             { return sqlx.DOLLAR }
func (d plainDialect) CreateTable(t TableSpec) (string, error) {
	if d.createErr != nil {
		return "", d.createErr
	}
	return "CREATE TABLE " + t.Name, nil
}
func (d plainDialect) Resolve(t TableSpec) string {
	return "RESOLVE " + t.Name + " (" + t.NaturalKey + ") VALUES (?)"
}
func (d plainDialect) Insert(t TableSpec) string {
	cols := t.InsertColumns()
	return "INSERT " + t.Name + " (" + QuoteList(d, cols) + ") VALUES (" + Placeholders(len(cols)) + ")"
}

func TestRegister_PanicsOnDuplicateAndEmpty(t *testing.T) {
	f := func(ctx context.Context, cfg Config) (Gateway, error) { return &fakeGateway{}, nil }

	Register("test-dup", f)
	require.Panics(t, func() { Register("test-dup", f) })
	require.Panics(t, func() { Register("", f) })
	require.Panics(t, func() { Register("test-nil", nil) })
	require.Contains(t, Kinds(), "test-dup")
}

func TestOpen_UnknownAndEmptyKind(t *testing.T) {
	_, err := Open(context.Background(), Config{})
	require.ErrorContains(t, err, "missing storage.kind")

	_, err = Open(context.Background(), Config{Kind: "nope"})
	require.ErrorContains(t, err, "unsupported storage.kind=nope")
}

func TestOpen_PassesConfigToFactory(t *testing.T) {
	var got Config
	Register("test-open", func(ctx context.Context, cfg Config) (Gateway, error) {
		got = cfg
		return &fakeGateway{}, nil
	})

	g, err := Open(context.Background(), Config{Kind: "test-open", DSN: "mem"})
	require.NoError(t, err)
	require.NotNil(t, g)
	require.Equal(t, "mem", got.DSN)
}

func TestBuildCatalog_CoversEveryRequiredStatement(t *testing.T) {
	c, err := BuildCatalog(plainDialect{})
	require.NoError(t, err)
	require.NoError(t, c.Validate())
	require.Len(t, c, len(RequiredStatements()))

	// leaf tables resolve, everything else inserts
	_, err = c.SQL(Statement{Op: OpResolve, Table: TableCategory})
	require.NoError(t, err)
	_, err = c.SQL(Statement{Op: OpInsert, Table: TableCategory})
	require.Error(t, err)
	_, err = c.SQL(Statement{Op: OpResolve, Table: TableProduct})
	require.Error(t, err)
}

func TestBuildCatalog_RebindsPlaceholders(t *testing.T) {
	c, err := BuildCatalog(plainDialect{})
	require.NoError(t, err)

	q, err := c.SQL(Statement{Op: OpInsert, Table: TableSales})
	require.NoError(t, err)
	require.Equal(t,
		"INSERT sales_fact (product_id, customer_id, date_id, location_id, sales_amount, quantity_sold) VALUES ($1, $2, $3, $4, $5, $6)",
		q)
}

func TestBuildCatalog_PropagatesDialectError(t *testing.T) {
	_, err := BuildCatalog(plainDialect{createErr: errors.New("boom")})
	require.ErrorContains(t, err, "plain create category_dim: boom")

	_, err = BuildCatalog(nil)
	require.Error(t, err)
}

func TestCatalogValidate_ReportsMissingStatement(t *testing.T) {
	c, err := BuildCatalog(plainDialect{})
	require.NoError(t, err)

	delete(c, Statement{Op: OpOrphans, Table: TableSales})
	require.ErrorContains(t, c.Validate(), "orphans:sales_fact")
}

func TestOrphansSQL_JoinsEveryFactReference(t *testing.T) {
	q := buildOrphansSQL(plainDialect{})

	require.True(t, strings.HasPrefix(q, "SELECT COUNT(*) FROM sales_fact f"))
	for _, r := range FactReferences() {
		require.Contains(t, q, "LEFT JOIN "+r.Target.String())
		require.Contains(t, q, "= f."+r.Column)
	}
	require.Equal(t, 4, strings.Count(q, " IS NULL"))
}

func TestCreateSchema_RunsTablesInOrder(t *testing.T) {
	g := &fakeGateway{}
	require.NoError(t, CreateSchema(context.Background(), g))

	require.Len(t, g.execs, len(Tables()))
	for i, tbl := range Tables() {
		require.Equal(t, Statement{Op: OpCreate, Table: tbl}, g.execs[i])
	}
}

func TestCreateSchema_WrapsError(t *testing.T) {
	g := &fakeGateway{execErr: errors.New("denied")}
	err := CreateSchema(context.Background(), g)
	require.ErrorContains(t, err, "create category_dim: denied")
}

func TestCountRows_KeyedByTableName(t *testing.T) {
	g := &fakeGateway{counts: map[Table]int64{TableSales: 3, TableBrand: 1}}
	got, err := CountRows(context.Background(), g)
	require.NoError(t, err)
	require.Equal(t, int64(3), got["sales_fact"])
	require.Equal(t, int64(1), got["brand_dim"])
	require.Equal(t, int64(0), got["month_dim"])
}

func TestSchema_CreationOrderRespectsReferences(t *testing.T) {
	seen := map[string]bool{}
	for _, tbl := range Tables() {
		spec := tbl.Spec()
		for _, c := range spec.Columns {
			if c.References == "" {
				continue
			}
			target := c.References[:strings.Index(c.References, "(")]
			require.True(t, seen[target], "%s references %s before it is created", spec.Name, target)
		}
		seen[spec.Name] = true
	}
}

func TestSchema_LeafTablesCarryNaturalKey(t *testing.T) {
	for _, tbl := range LeafTables() {
		require.True(t, tbl.Leaf())
		require.NotEmpty(t, tbl.Spec().NaturalKey)
	}
	require.False(t, TableProduct.Leaf())
	require.False(t, TableSales.Leaf())
	require.Equal(t, "table(99)", Table(99).String())
}
