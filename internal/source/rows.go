// Package source defines the five denormalized input row types and reads
// them from files.
package source

import "github.com/shopspring/decimal"

// ProductRow is one line of the product source.
type ProductRow struct {
	ProductName string `csv:"product_name"`
	Category    string `csv:"category"`
	Brand       string `csv:"brand"`
}

// LocationRow is one line of the location source.
type LocationRow struct {
	City    string `csv:"city"`
	State   string `csv:"state"`
	Country string `csv:"country"`
}

// CustomerRow is one line of the customer source. The city, state and
// country identify a location loaded earlier in the same run.
type CustomerRow struct {
	CustomerName string `csv:"customer_name"`
	Gender       string `csv:"gender"`
	AgeGroup     string `csv:"age_group"`
	City         string `csv:"city"`
	State        string `csv:"state"`
	Country      string `csv:"country"`
}

// DateRow is one line of the date source.
type DateRow struct {
	Year    int    `csv:"year"`
	Quarter int    `csv:"quarter"`
	Month   string `csv:"month"`
	Day     int    `csv:"day"`
	Weekday string `csv:"weekday"`
}

// SalesRow is one line of the sales source. Every dimension is referenced by
// natural key.
type SalesRow struct {
	ProductName  string          `csv:"product_name"`
	CustomerName string          `csv:"customer_name"`
	Year         int             `csv:"year"`
	Quarter      int             `csv:"quarter"`
	Month        string          `csv:"month"`
	Day          int             `csv:"day"`
	City         string          `csv:"city"`
	State        string          `csv:"state"`
	Country      string          `csv:"country"`
	SalesAmount  decimal.Decimal `csv:"sales_amount"`
	QuantitySold int             `csv:"quantity_sold"`
}
