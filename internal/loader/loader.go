// Package loader populates the snowflake schema from the five sources.
//
// A run resolves every dimension family before the facts that reference
// them: ProductDims -> LocationDims -> CustomerDim -> DateDims -> SalesFacts
// -> Commit. All work happens inside the gateway's single transaction, so a
// failure at any row leaves nothing behind once the transaction is rolled
// back.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"snowload/internal/dimension"
	"snowload/internal/metrics"
	"snowload/internal/source"
	"snowload/internal/storage"
)

// Logger is the minimal logging interface used by the loader.
// *log.Logger satisfies this interface.
type Logger interface {
	Printf(format string, v ...any)
}

// Source yields the rows of each source in file order.
type Source interface {
	Products(ctx context.Context, fn func(source.ProductRow) error) error
	Locations(ctx context.Context, fn func(source.LocationRow) error) error
	Customers(ctx context.Context, fn func(source.CustomerRow) error) error
	Dates(ctx context.Context, fn func(source.DateRow) error) error
	Sales(ctx context.Context, fn func(source.SalesRow) error) error
}

// ErrDanglingReferences reports fact rows whose foreign keys have no target.
var ErrDanglingReferences = errors.New("loader: fact rows with dangling references")

// Options controls optional run behavior.
type Options struct {
	// CreateSchema runs every create statement before the first stage.
	CreateSchema bool
	// Verify counts dangling fact references before committing.
	Verify bool
	// DryRun executes every stage, then rolls back instead of committing.
	DryRun bool
	// DebugTimings logs per-table resolution counters after each stage.
	DebugTimings bool
}

// LocationKey is the natural key of a location row.
type LocationKey struct {
	City, State, Country string
}

// DateKey is the natural key of a date row.
type DateKey struct {
	Year    int
	Quarter int
	Month   string
	Day     int
}

// Loader runs one load over an open gateway. The caller owns the gateway:
// Loader commits or rolls back but never closes it.
type Loader struct {
	Gateway storage.Gateway
	Source  Source
	Logger  Logger
	Options Options
	RunID   string

	machine  stageMachine
	resolver *dimension.Resolver

	products  *dimension.Cache[string]
	locations *dimension.Cache[LocationKey]
	customers *dimension.Cache[string]
	dates     *dimension.Cache[DateKey]

	report Report
}

func (l *Loader) logger() func(format string, v ...any) {
	if l.Logger == nil {
		return log.New(io.Discard, "", 0).Printf
	}
	return l.Logger.Printf
}

func durMS(start time.Time) time.Duration { return time.Since(start).Truncate(time.Millisecond) }

// Run executes every stage once. On error the transaction is left for the
// caller to roll back.
func (l *Loader) Run(ctx context.Context) (Report, error) {
	if l.Gateway == nil {
		return Report{}, fmt.Errorf("loader: Gateway is required")
	}
	if l.Source == nil {
		return Report{}, fmt.Errorf("loader: Source is required")
	}
	if l.machine.current() != StageIdle {
		return Report{}, fmt.Errorf("loader: run already started (stage=%s)", l.machine.current())
	}

	start := time.Now()
	logf := l.logger()

	l.resolver = dimension.NewResolver(l.Gateway)
	l.products = dimension.NewCache[string]("product")
	l.locations = dimension.NewCache[LocationKey]("location")
	l.customers = dimension.NewCache[string]("customer")
	l.dates = dimension.NewCache[DateKey]("date")
	l.report = newReport(l.RunID)
	l.report.DryRun = l.Options.DryRun

	if l.Options.CreateSchema {
		schemaStart := time.Now()
		err := storage.CreateSchema(ctx, l.Gateway)
		metrics.RecordStep("schema", schemaStart, err)
		if err != nil {
			return l.finish(start), err
		}
		logf("stage=schema ok duration=%s", durMS(schemaStart))
	}

	steps := []struct {
		stage Stage
		run   func(context.Context) (int, error)
	}{
		{StageProductDims, l.loadProducts},
		{StageLocationDims, l.loadLocations},
		{StageCustomerDim, l.loadCustomers},
		{StageDateDims, l.loadDates},
		{StageSalesFacts, l.loadSales},
		{StageCommit, l.commit},
	}
	for _, s := range steps {
		if err := l.runStage(ctx, s.stage, s.run); err != nil {
			return l.finish(start), err
		}
	}

	rep := l.finish(start)
	logf("stage=done run_id=%s committed=%t duration=%s", rep.RunID, rep.Committed, durMS(start))
	return rep, nil
}

func (l *Loader) runStage(ctx context.Context, stage Stage, fn func(context.Context) (int, error)) error {
	if err := l.machine.enter(stage); err != nil {
		return err
	}
	logf := l.logger()

	stageStart := time.Now()
	n, err := fn(ctx)
	metrics.RecordStep(stage.String(), stageStart, err)
	if stage != StageCommit {
		l.report.Rows[stage.String()] = n
	}
	if err != nil {
		logf("stage=%s status=error rows=%d duration=%s err=%v", stage, n, durMS(stageStart), err)
		return fmt.Errorf("%s: %w", stage, err)
	}
	logf("stage=%s ok rows=%d duration=%s", stage, n, durMS(stageStart))

	if l.Options.DebugTimings && l.resolver != nil {
		stats := l.resolver.Stats()
		for _, table := range sortedKeys(stats) {
			st := stats[table]
			if st.CacheHits+st.StoreResolves == 0 {
				continue
			}
			logf("stage=%s resolve table=%s cache_hits=%d store_resolves=%d", stage, table, st.CacheHits, st.StoreResolves)
		}
	}
	return nil
}

func (l *Loader) finish(start time.Time) Report {
	l.report.Duration = time.Since(start)
	if l.resolver != nil {
		l.report.Resolves = l.resolver.Stats()
	}
	return l.report
}

// insert runs the insert statement of a composite or fact table and counts it.
func (l *Loader) insert(ctx context.Context, t storage.Table, args ...any) (int64, error) {
	id, err := l.Gateway.Execute(ctx, storage.Statement{Op: storage.OpInsert, Table: t}, args...)
	if err != nil {
		return 0, err
	}
	l.report.Inserted[t.String()]++
	return id, nil
}

// naturalKey normalizes a required key attribute.
func naturalKey(entity, v string) (string, error) {
	k := dimension.NormalizeKey(v)
	if k == "" {
		return "", fmt.Errorf("%w: %s", dimension.ErrEmptyKey, entity)
	}
	return k, nil
}

// nullable maps a blank optional attribute to SQL NULL.
func nullable(v string) any {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return v
}

func locationKey(city, state, country string) LocationKey {
	return LocationKey{
		City:    dimension.NormalizeKey(city),
		State:   dimension.NormalizeKey(state),
		Country: dimension.NormalizeKey(country),
	}
}

func dateKey(year, quarter int, month string, day int) DateKey {
	return DateKey{Year: year, Quarter: quarter, Month: dimension.NormalizeKey(month), Day: day}
}

func (l *Loader) loadProducts(ctx context.Context) (int, error) {
	n := 0
	err := l.Source.Products(ctx, func(r source.ProductRow) error {
		n++
		name, err := naturalKey("product_name", r.ProductName)
		if err != nil {
			return err
		}
		categoryID, err := l.resolver.Resolve(ctx, storage.TableCategory, r.Category)
		if err != nil {
			return err
		}
		brandID, err := l.resolver.Resolve(ctx, storage.TableBrand, r.Brand)
		if err != nil {
			return err
		}
		id, err := l.insert(ctx, storage.TableProduct, name, categoryID, brandID)
		if err != nil {
			return err
		}
		l.products.Put(name, id)
		return nil
	})
	metrics.RecordRecords(string(source.Product), n)
	return n, err
}

func (l *Loader) loadLocations(ctx context.Context) (int, error) {
	n := 0
	err := l.Source.Locations(ctx, func(r source.LocationRow) error {
		n++
		cityID, err := l.resolver.Resolve(ctx, storage.TableCity, r.City)
		if err != nil {
			return err
		}
		stateID, err := l.resolver.Resolve(ctx, storage.TableState, r.State)
		if err != nil {
			return err
		}
		countryID, err := l.resolver.Resolve(ctx, storage.TableCountry, r.Country)
		if err != nil {
			return err
		}
		id, err := l.insert(ctx, storage.TableLocation, cityID, stateID, countryID)
		if err != nil {
			return err
		}
		l.locations.Put(locationKey(r.City, r.State, r.Country), id)
		return nil
	})
	metrics.RecordRecords(string(source.Location), n)
	return n, err
}

func (l *Loader) loadCustomers(ctx context.Context) (int, error) {
	n := 0
	err := l.Source.Customers(ctx, func(r source.CustomerRow) error {
		n++
		name, err := naturalKey("customer_name", r.CustomerName)
		if err != nil {
			return err
		}
		locationID, err := l.locations.Require(locationKey(r.City, r.State, r.Country))
		if err != nil {
			return err
		}
		id, err := l.insert(ctx, storage.TableCustomer, name, nullable(r.Gender), nullable(r.AgeGroup), locationID)
		if err != nil {
			return err
		}
		l.customers.Put(name, id)
		return nil
	})
	metrics.RecordRecords(string(source.Customer), n)
	return n, err
}

func (l *Loader) loadDates(ctx context.Context) (int, error) {
	n := 0
	err := l.Source.Dates(ctx, func(r source.DateRow) error {
		n++
		monthID, err := l.resolver.Resolve(ctx, storage.TableMonth, r.Month)
		if err != nil {
			return err
		}
		id, err := l.insert(ctx, storage.TableDate, r.Year, r.Quarter, monthID, r.Day, nullable(r.Weekday))
		if err != nil {
			return err
		}
		l.dates.Put(dateKey(r.Year, r.Quarter, r.Month, r.Day), id)
		return nil
	})
	metrics.RecordRecords(string(source.Date), n)
	return n, err
}

func (l *Loader) loadSales(ctx context.Context) (int, error) {
	n := 0
	err := l.Source.Sales(ctx, func(r source.SalesRow) error {
		n++
		productID, err := l.products.Require(dimension.NormalizeKey(r.ProductName))
		if err != nil {
			return err
		}
		customerID, err := l.customers.Require(dimension.NormalizeKey(r.CustomerName))
		if err != nil {
			return err
		}
		dateID, err := l.dates.Require(dateKey(r.Year, r.Quarter, r.Month, r.Day))
		if err != nil {
			return err
		}
		locationID, err := l.locations.Require(locationKey(r.City, r.State, r.Country))
		if err != nil {
			return err
		}
		_, err = l.insert(ctx, storage.TableSales,
			productID, customerID, dateID, locationID, r.SalesAmount.Round(2), r.QuantitySold)
		return err
	})
	metrics.RecordRecords(string(source.Sales), n)
	return n, err
}

// commit verifies the fact table when asked to, then commits, or rolls back
// on a dry run.
func (l *Loader) commit(ctx context.Context) (int, error) {
	logf := l.logger()

	if l.Options.Verify {
		verifyStart := time.Now()
		dangling, err := l.Gateway.Execute(ctx, storage.Statement{Op: storage.OpOrphans, Table: storage.TableSales})
		if err != nil {
			return 0, fmt.Errorf("verify: %w", err)
		}
		l.report.Dangling = dangling
		if dangling > 0 {
			return 0, fmt.Errorf("%w: %d rows", ErrDanglingReferences, dangling)
		}
		logf("stage=verify ok dangling=0 duration=%s", durMS(verifyStart))
	}

	if l.Options.DryRun {
		if err := l.Gateway.Rollback(ctx); err != nil {
			return 0, err
		}
		logf("stage=commit dry_run=true rolled_back=true")
		return 0, nil
	}

	if err := l.Gateway.Commit(ctx); err != nil {
		return 0, err
	}
	l.report.Committed = true
	return 0, nil
}
