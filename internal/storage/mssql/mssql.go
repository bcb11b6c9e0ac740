// Package mssql registers the "mssql" storage kind on the Microsoft SQL
// Server driver.
package mssql

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/microsoft/go-mssqldb"

	"snowload/internal/storage"
	"snowload/internal/storage/sqldb"
)

func init() {
	storage.Register("mssql", Open)
}

// Open connects with the "sqlserver" driver.
func Open(ctx context.Context, cfg storage.Config) (storage.Gateway, error) {
	return sqldb.Open(ctx, "sqlserver", cfg.DSN, Dialect{})
}

// Dialect renders catalog statements for SQL Server.
//
// SQL Server has no INSERT ... ON CONFLICT. Resolve is a MERGE under
// HOLDLOCK whose OUTPUT clause yields the id of the matched or inserted row.
type Dialect struct{}

func (Dialect) Name() string { return "mssql" }

func (Dialect) Quote(ident string) string { return mssqlIdent(ident) }

func (Dialect) BindType() int { return sqlx.AT }

func (Dialect) CreateTable(t storage.TableSpec) (string, error) {
	if strings.TrimSpace(t.Name) == "" {
		return "", fmt.Errorf("mssql: table name is empty")
	}

	var defs []string
	if t.PrimaryKey != nil {
		pk, err := mssqlPrimaryKeyDef(*t.PrimaryKey)
		if err != nil {
			return "", err
		}
		defs = append(defs, pk)
	}
	for _, c := range t.Columns {
		def, err := mssqlColumnDef(c)
		if err != nil {
			return "", err
		}
		defs = append(defs, def)
	}
	for _, con := range t.Constraints {
		if !strings.EqualFold(con.Kind, "unique") {
			return "", fmt.Errorf("mssql: %s unsupported constraint kind: %s", t.Name, con.Kind)
		}
		cols := make([]string, 0, len(con.Columns))
		for _, c := range con.Columns {
			cols = append(cols, mssqlIdent(c))
		}
		defs = append(defs, fmt.Sprintf("UNIQUE (%s)", strings.Join(cols, ", ")))
	}

	return wrapCreateIfMissing(t.Name, strings.Join(defs, ", ")), nil
}

func (Dialect) Resolve(t storage.TableSpec) string {
	key := mssqlIdent(t.NaturalKey)
	return fmt.Sprintf(
		"MERGE INTO %s WITH (HOLDLOCK) AS tgt USING (SELECT ? AS %s) AS src ON tgt.%s = src.%s "+
			"WHEN MATCHED THEN UPDATE SET tgt.%s = src.%s "+
			"WHEN NOT MATCHED THEN INSERT (%s) VALUES (src.%s) "+
			"OUTPUT inserted.%s;",
		mssqlIdent(t.Name), key, key, key, key, key, key, key, mssqlIdent(t.PrimaryKey.Name),
	)
}

func (d Dialect) Insert(t storage.TableSpec) string {
	cols := t.InsertColumns()
	return fmt.Sprintf(
		"INSERT INTO %s (%s) OUTPUT INSERTED.%s VALUES (%s);",
		mssqlIdent(t.Name), storage.QuoteList(d, cols), mssqlIdent(t.PrimaryKey.Name), storage.Placeholders(len(cols)),
	)
}

// wrapCreateIfMissing guards CREATE TABLE, which SQL Server cannot express
// with IF NOT EXISTS.
func wrapCreateIfMissing(tableName string, innerDefs string) string {
	return fmt.Sprintf(
		"IF OBJECT_ID(N'%s', N'U') IS NULL BEGIN CREATE TABLE %s (%s); END;",
		tableName,
		mssqlIdent(tableName),
		innerDefs,
	)
}

// mssqlPrimaryKeyDef returns a column definition for an identity primary key.
//
// Supported types (case-insensitive):
//   - "serial" -> INT IDENTITY(1,1) PRIMARY KEY
//   - "bigserial" -> BIGINT IDENTITY(1,1) PRIMARY KEY
//   - otherwise uses pk.Type verbatim with PRIMARY KEY.
func mssqlPrimaryKeyDef(pk storage.PrimaryKeySpec) (string, error) {
	if strings.TrimSpace(pk.Name) == "" {
		return "", fmt.Errorf("mssql: primary key name is empty")
	}
	switch strings.ToLower(strings.TrimSpace(pk.Type)) {
	case "serial":
		return fmt.Sprintf("%s INT IDENTITY(1,1) PRIMARY KEY", mssqlIdent(pk.Name)), nil
	case "bigserial":
		return fmt.Sprintf("%s BIGINT IDENTITY(1,1) PRIMARY KEY", mssqlIdent(pk.Name)), nil
	default:
		return fmt.Sprintf("%s %s PRIMARY KEY", mssqlIdent(pk.Name), pk.Type), nil
	}
}

// mssqlColumnDef builds a SQL Server column definition. VARCHAR columns are
// widened to NVARCHAR so names outside the server code page survive.
func mssqlColumnDef(c storage.ColumnSpec) (string, error) {
	if strings.TrimSpace(c.Name) == "" {
		return "", fmt.Errorf("mssql: column name is empty")
	}
	if strings.TrimSpace(c.Type) == "" {
		return "", fmt.Errorf("mssql: column %s type is empty", c.Name)
	}

	typ := c.Type
	if strings.HasPrefix(strings.ToUpper(typ), "VARCHAR") {
		typ = "N" + typ
	}

	var b strings.Builder
	b.WriteString(mssqlIdent(c.Name))
	b.WriteString(" ")
	b.WriteString(typ)

	if c.Nullable == nil || !*c.Nullable {
		b.WriteString(" NOT NULL")
	}
	if strings.TrimSpace(c.References) != "" {
		b.WriteString(" REFERENCES ")
		b.WriteString(c.References)
	}
	return b.String(), nil
}

func mssqlIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}
