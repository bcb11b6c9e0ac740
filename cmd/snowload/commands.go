package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"snowload/internal/config"
	"snowload/internal/loader"
	"snowload/internal/metrics"
	"snowload/internal/metrics/datadog"
	"snowload/internal/metrics/prompush"
)

func (a *app) loadCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Run a full load inside one transaction",
		Long: `Resolve every dimension family, insert the sales facts and commit once.

Stages run in order: product_dims, location_dims, customer_dim, date_dims,
sales_facts, commit. Any failure rolls the whole run back.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runLoad(cmd.Context())
		},
	}
	f := cmd.Flags()
	f.Bool("dry-run", false, "execute every stage, then roll back")
	f.Bool("verify", true, "count dangling fact references before commit")
	f.Bool("create-schema", false, "create missing tables inside the run transaction")
	f.Bool("debug-timings", false, "log per-table resolution counters after each stage")
	f.String("metrics-backend", "", "metrics backend: none, datadog or pushgateway")
	_ = a.v.BindPFlag("runtime.dry_run", f.Lookup("dry-run"))
	_ = a.v.BindPFlag("runtime.verify", f.Lookup("verify"))
	_ = a.v.BindPFlag("storage.create_schema", f.Lookup("create-schema"))
	_ = a.v.BindPFlag("runtime.debug_timings", f.Lookup("debug-timings"))
	_ = a.v.BindPFlag("metrics.backend", f.Lookup("metrics-backend"))
	return cmd
}

func (a *app) runLoad(ctx context.Context) error {
	p, err := a.pipeline(true)
	if err != nil {
		return err
	}
	files, err := p.Files()
	if err != nil {
		return usageError{err}
	}
	if err := files.CheckHeaders(); err != nil {
		return usageError{err}
	}

	closeMetrics := a.setupMetrics(ctx, p)
	defer closeMetrics()

	runner := loader.NewDefaultRunner(zap.NewStdLog(a.log))
	opts := loader.Options{
		CreateSchema: p.Storage.CreateSchema,
		Verify:       p.Runtime.Verify,
		DryRun:       p.Runtime.DryRun,
		DebugTimings: p.Runtime.DebugTimings,
	}

	a.log.Info("load starting",
		zap.String("job", p.Job),
		zap.String("storage", p.Storage.Kind),
		zap.Bool("dry_run", opts.DryRun),
		zap.Bool("verify", opts.Verify))

	rep, err := runner.Run(ctx, p.StorageConfig(), files, opts)
	if err != nil {
		a.log.Error("load failed",
			zap.String("run_id", rep.RunID),
			zap.String("storage", p.Storage.Kind),
			zap.Error(err))
		return err
	}

	a.log.Info("load finished",
		zap.String("run_id", rep.RunID),
		zap.String("storage", p.Storage.Kind),
		zap.Bool("committed", rep.Committed),
		zap.Duration("duration", rep.Duration.Truncate(time.Millisecond)))
	fmt.Fprint(a.stdout, rep.String())
	return nil
}

// setupMetrics installs the configured backend. A backend that fails to
// start is logged and replaced by the nop backend.
func (a *app) setupMetrics(ctx context.Context, p config.Pipeline) func() {
	var (
		b   metrics.Backend
		err error
	)
	switch p.Metrics.Backend {
	case "datadog":
		b, err = datadog.NewBackend(ctx, datadog.Options{
			JobName:    p.Job,
			Tags:       datadog.ParseTagsCSV(p.Metrics.Tags),
			FlushEvery: p.Metrics.FlushEvery,
		})
	case "pushgateway":
		grouping := map[string]string{}
		if host, herr := os.Hostname(); herr == nil {
			grouping["instance"] = host
		}
		b, err = prompush.New(ctx, prompush.Options{
			URL:      p.Metrics.PushgatewayURL,
			Job:      p.Job,
			Grouping: grouping,
		})
	default:
		a.log.Debug("metrics disabled", zap.String("backend", p.Metrics.Backend))
		return func() {}
	}
	if err != nil {
		a.log.Warn("metrics backend unavailable; using nop", zap.String("backend", p.Metrics.Backend), zap.Error(err))
		return func() {}
	}

	a.log.Info("metrics enabled", zap.String("backend", p.Metrics.Backend), zap.String("job", p.Job))
	metrics.SetBackend(b)
	return func() {
		if err := metrics.Close(); err != nil {
			a.log.Warn("metrics close", zap.Error(err))
		}
		metrics.SetBackend(nil)
	}
}

func (a *app) validateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and every source header, without touching storage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.pipeline(true)
			if err != nil {
				return err
			}
			files, err := p.Files()
			if err != nil {
				return usageError{err}
			}
			if err := files.CheckHeaders(); err != nil {
				return usageError{err}
			}
			fmt.Fprintf(a.stdout, "configuration is valid: %s\n", displayPath(a.cfgPath))
			return nil
		},
	}
}

func (a *app) schemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Create every missing table and commit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.pipeline(false)
			if err != nil {
				return err
			}
			runner := loader.NewDefaultRunner(zap.NewStdLog(a.log))
			if err := runner.Bootstrap(cmd.Context(), p.StorageConfig()); err != nil {
				return err
			}
			a.log.Info("schema ready", zap.String("storage", p.Storage.Kind))
			fmt.Fprintln(a.stdout, "schema ready")
			return nil
		},
	}
}

func (a *app) checkCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Print row counts per table and the dangling fact count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.pipeline(false)
			if err != nil {
				return err
			}
			runner := loader.NewDefaultRunner(zap.NewStdLog(a.log))
			res, err := runner.Check(cmd.Context(), p.StorageConfig())
			if err != nil {
				return err
			}

			tables := make([]string, 0, len(res.Counts))
			for t := range res.Counts {
				tables = append(tables, t)
			}
			sort.Strings(tables)
			for _, t := range tables {
				fmt.Fprintf(a.stdout, "table=%s rows=%d\n", t, res.Counts[t])
			}
			fmt.Fprintf(a.stdout, "dangling=%d\n", res.Dangling)
			if res.Dangling > 0 {
				return fmt.Errorf("%w: %d rows", loader.ErrDanglingReferences, res.Dangling)
			}
			return nil
		},
	}
}

func displayPath(p string) string {
	if p == "" {
		return "(defaults and environment)"
	}
	return p
}
