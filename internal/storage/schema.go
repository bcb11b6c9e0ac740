// The snowflake schema is fixed in code so that no table or column identifier
// ever reaches a statement from loaded data.
package storage

import "fmt"

// TableSpec describes one relation of the snowflake schema.
type TableSpec struct {
	Name        string
	Kind        string // "dimension" | "fact"
	PrimaryKey  *PrimaryKeySpec
	Columns     []ColumnSpec
	Constraints []ConstraintSpec

	// NaturalKey is set for leaf dimensions only. It names the unique column
	// a resolve statement matches on.
	NaturalKey string
}

type PrimaryKeySpec struct {
	Name string
	Type string // serial, mapped per dialect
}

type ColumnSpec struct {
	Name       string
	Type       string
	References string
	Nullable   *bool
}

type ConstraintSpec struct {
	Kind    string // "unique"
	Columns []string
}

// InsertColumns returns the column names written by an insert statement, in
// the order callers must bind their values.
func (t TableSpec) InsertColumns() []string {
	out := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		out = append(out, c.Name)
	}
	return out
}

// Table enumerates the relations of the schema.
type Table uint8

const (
	TableCategory Table = iota + 1
	TableBrand
	TableProduct
	TableCity
	TableState
	TableCountry
	TableLocation
	TableCustomer
	TableMonth
	TableDate
	TableSales
)

// Tables returns every table in creation order: referenced tables come
// before the tables that reference them.
func Tables() []Table {
	return []Table{
		TableCategory, TableBrand, TableProduct,
		TableCity, TableState, TableCountry, TableLocation,
		TableCustomer,
		TableMonth, TableDate,
		TableSales,
	}
}

// LeafTables returns the single-attribute dimensions that deduplicate by
// natural key.
func LeafTables() []Table {
	return []Table{TableCategory, TableBrand, TableCity, TableState, TableCountry, TableMonth}
}

// Spec returns the table definition. It panics for an unknown table, which
// can only happen through a conversion from an arbitrary integer.
func (t Table) Spec() TableSpec {
	s, ok := tableSpecs[t]
	if !ok {
		panic(fmt.Sprintf("storage: unknown table %d", t))
	}
	return s
}

// Leaf reports whether t deduplicates by natural key.
func (t Table) Leaf() bool {
	s, ok := tableSpecs[t]
	return ok && s.NaturalKey != ""
}

func (t Table) String() string {
	if s, ok := tableSpecs[t]; ok {
		return s.Name
	}
	return fmt.Sprintf("table(%d)", t)
}

func notNull() *bool { v := false; return &v }
func nullable() *bool { v := true; return &v }

func leafSpec(name, id, key string) TableSpec {
	return TableSpec{
		Name:        name,
		Kind:        "dimension",
		PrimaryKey:  &PrimaryKeySpec{Name: id, Type: "serial"},
		Columns:     []ColumnSpec{{Name: key, Type: "VARCHAR(255)", Nullable: notNull()}},
		Constraints: []ConstraintSpec{{Kind: "unique", Columns: []string{key}}},
		NaturalKey:  key,
	}
}

func ref(table, column string) string { return table + "(" + column + ")" }

var tableSpecs = map[Table]TableSpec{
	TableCategory: leafSpec("category_dim", "category_id", "category_name"),
	TableBrand:    leafSpec("brand_dim", "brand_id", "brand_name"),
	TableCity:     leafSpec("city_dim", "city_id", "city_name"),
	TableState:    leafSpec("state_dim", "state_id", "state_name"),
	TableCountry:  leafSpec("country_dim", "country_id", "country_name"),
	TableMonth:    leafSpec("month_dim", "month_id", "month_name"),

	TableProduct: {
		Name:       "product_dim",
		Kind:       "dimension",
		PrimaryKey: &PrimaryKeySpec{Name: "product_id", Type: "serial"},
		Columns: []ColumnSpec{
			{Name: "product_name", Type: "VARCHAR(255)", Nullable: notNull()},
			{Name: "category_id", Type: "INTEGER", References: ref("category_dim", "category_id"), Nullable: notNull()},
			{Name: "brand_id", Type: "INTEGER", References: ref("brand_dim", "brand_id"), Nullable: notNull()},
		},
	},
	TableLocation: {
		Name:       "location_dim",
		Kind:       "dimension",
		PrimaryKey: &PrimaryKeySpec{Name: "location_id", Type: "serial"},
		Columns: []ColumnSpec{
			{Name: "city_id", Type: "INTEGER", References: ref("city_dim", "city_id"), Nullable: notNull()},
			{Name: "state_id", Type: "INTEGER", References: ref("state_dim", "state_id"), Nullable: notNull()},
			{Name: "country_id", Type: "INTEGER", References: ref("country_dim", "country_id"), Nullable: notNull()},
		},
	},
	TableCustomer: {
		Name:       "customer_dim",
		Kind:       "dimension",
		PrimaryKey: &PrimaryKeySpec{Name: "customer_id", Type: "serial"},
		Columns: []ColumnSpec{
			{Name: "customer_name", Type: "VARCHAR(255)", Nullable: notNull()},
			{Name: "gender", Type: "VARCHAR(32)", Nullable: nullable()},
			{Name: "age_group", Type: "VARCHAR(32)", Nullable: nullable()},
			{Name: "location_id", Type: "INTEGER", References: ref("location_dim", "location_id"), Nullable: notNull()},
		},
	},
	TableDate: {
		Name:       "date_dim",
		Kind:       "dimension",
		PrimaryKey: &PrimaryKeySpec{Name: "date_id", Type: "serial"},
		Columns: []ColumnSpec{
			{Name: "year", Type: "INTEGER", Nullable: notNull()},
			{Name: "quarter", Type: "INTEGER", Nullable: notNull()},
			{Name: "month_id", Type: "INTEGER", References: ref("month_dim", "month_id"), Nullable: notNull()},
			{Name: "day", Type: "INTEGER", Nullable: notNull()},
			{Name: "weekday", Type: "VARCHAR(16)", Nullable: nullable()},
		},
	},
	TableSales: {
		Name:       "sales_fact",
		Kind:       "fact",
		PrimaryKey: &PrimaryKeySpec{Name: "sales_id", Type: "serial"},
		Columns: []ColumnSpec{
			{Name: "product_id", Type: "INTEGER", References: ref("product_dim", "product_id"), Nullable: notNull()},
			{Name: "customer_id", Type: "INTEGER", References: ref("customer_dim", "customer_id"), Nullable: notNull()},
			{Name: "date_id", Type: "INTEGER", References: ref("date_dim", "date_id"), Nullable: notNull()},
			{Name: "location_id", Type: "INTEGER", References: ref("location_dim", "location_id"), Nullable: notNull()},
			{Name: "sales_amount", Type: "DECIMAL(12,2)", Nullable: notNull()},
			{Name: "quantity_sold", Type: "INTEGER", Nullable: notNull()},
		},
	},
}

// FactReference is one foreign key of the fact table, used by the dangling
// reference check.
type FactReference struct {
	Column string
	Target Table
}

// FactReferences lists the foreign keys of sales_fact in column order.
func FactReferences() []FactReference {
	return []FactReference{
		{Column: "product_id", Target: TableProduct},
		{Column: "customer_id", Target: TableCustomer},
		{Column: "date_id", Target: TableDate},
		{Column: "location_id", Target: TableLocation},
	}
}
