package loader

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"snowload/internal/storage"
)

// Runner opens a gateway per invocation and owns its lifetime.
type Runner struct {
	// storage-agnostic factory seam
	Open func(ctx context.Context, cfg storage.Config) (storage.Gateway, error)

	Logger   Logger
	NewRunID func() string
}

func NewDefaultRunner(logger Logger) *Runner {
	return &Runner{
		Open:     storage.Open,
		Logger:   logger,
		NewRunID: uuid.NewString,
	}
}

func (r *Runner) open(ctx context.Context, cfg storage.Config) (storage.Gateway, error) {
	if r.Open == nil {
		return nil, fmt.Errorf("loader: Runner.Open is nil")
	}
	g, err := r.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Kind, err)
	}
	return g, nil
}

// release rolls back anything left open, then closes g.
func release(ctx context.Context, g storage.Gateway) {
	_ = g.Rollback(ctx)
	_ = g.Close()
}

// Run performs one full load. The gateway is released on every path, and
// an uncommitted transaction is rolled back.
func (r *Runner) Run(ctx context.Context, cfg storage.Config, src Source, opts Options) (Report, error) {
	g, err := r.open(ctx, cfg)
	if err != nil {
		return Report{}, err
	}
	defer release(ctx, g)

	runID := ""
	if r.NewRunID != nil {
		runID = r.NewRunID()
	}

	l := &Loader{
		Gateway: g,
		Source:  src,
		Logger:  r.Logger,
		Options: opts,
		RunID:   runID,
	}
	return l.Run(ctx)
}

// Bootstrap creates every table that does not exist yet and commits.
func (r *Runner) Bootstrap(ctx context.Context, cfg storage.Config) error {
	g, err := r.open(ctx, cfg)
	if err != nil {
		return err
	}
	defer release(ctx, g)

	if err := storage.CreateSchema(ctx, g); err != nil {
		return err
	}
	return g.Commit(ctx)
}

// CheckResult holds per-table row counts and the dangling fact count.
type CheckResult struct {
	Counts   map[string]int64
	Dangling int64
}

// Check reads table counts and dangling fact references without writing.
func (r *Runner) Check(ctx context.Context, cfg storage.Config) (CheckResult, error) {
	g, err := r.open(ctx, cfg)
	if err != nil {
		return CheckResult{}, err
	}
	defer release(ctx, g)

	counts, err := storage.CountRows(ctx, g)
	if err != nil {
		return CheckResult{}, err
	}
	dangling, err := g.Execute(ctx, storage.Statement{Op: storage.OpOrphans, Table: storage.TableSales})
	if err != nil {
		return CheckResult{}, fmt.Errorf("storage: orphans: %w", err)
	}
	return CheckResult{Counts: counts, Dangling: dangling}, nil
}
