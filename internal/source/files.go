package source

import (
	"context"
	"errors"
	"fmt"
	"os"

	"snowload/internal/parser/csv"
)

// Kind names one of the five sources.
type Kind string

const (
	Product  Kind = "product"
	Location Kind = "location"
	Customer Kind = "customer"
	Date     Kind = "date"
	Sales    Kind = "sales"
)

// Kinds returns the sources in load order.
func Kinds() []Kind { return []Kind{Product, Location, Customer, Date, Sales} }

// Files reads each source from a CSV file on disk.
type Files struct {
	Paths   map[Kind]string
	Options csv.Options
}

func (f Files) path(k Kind) (string, error) {
	p := f.Paths[k]
	if p == "" {
		return "", fmt.Errorf("source: no file configured for %s", k)
	}
	return p, nil
}

func each[T any](ctx context.Context, f Files, k Kind, fn func(T) error) error {
	p, err := f.path(k)
	if err != nil {
		return err
	}
	file, err := os.Open(p)
	if err != nil {
		return fmt.Errorf("source: %s: %w", k, err)
	}
	return csv.Each(ctx, file, p, f.Options, func(_ int, rec T) error { return fn(rec) })
}

func (f Files) Products(ctx context.Context, fn func(ProductRow) error) error {
	return each(ctx, f, Product, fn)
}

func (f Files) Locations(ctx context.Context, fn func(LocationRow) error) error {
	return each(ctx, f, Location, fn)
}

func (f Files) Customers(ctx context.Context, fn func(CustomerRow) error) error {
	return each(ctx, f, Customer, fn)
}

func (f Files) Dates(ctx context.Context, fn func(DateRow) error) error {
	return each(ctx, f, Date, fn)
}

func (f Files) Sales(ctx context.Context, fn func(SalesRow) error) error {
	return each(ctx, f, Sales, fn)
}

// CheckHeaders opens every source and verifies its header, without reading
// any record. All failures are joined.
func (f Files) CheckHeaders() error {
	var errs []error
	for _, k := range Kinds() {
		if err := f.checkHeader(k); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f Files) checkHeader(k Kind) error {
	p, err := f.path(k)
	if err != nil {
		return err
	}
	file, err := os.Open(p)
	if err != nil {
		return fmt.Errorf("source: %s: %w", k, err)
	}
	switch k {
	case Product:
		return csv.CheckHeader[ProductRow](file, p, f.Options)
	case Location:
		return csv.CheckHeader[LocationRow](file, p, f.Options)
	case Customer:
		return csv.CheckHeader[CustomerRow](file, p, f.Options)
	case Date:
		return csv.CheckHeader[DateRow](file, p, f.Options)
	case Sales:
		return csv.CheckHeader[SalesRow](file, p, f.Options)
	default:
		_ = file.Close()
		return fmt.Errorf("source: unknown kind %q", k)
	}
}
