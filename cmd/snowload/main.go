// Command snowload loads the five sales sources into a snowflake schema.
//
// Usage:
//
//	snowload load --config configs/pipeline.yaml
//	snowload validate --config configs/pipeline.yaml
//	snowload schema --storage-kind sqlite --dsn ./snow.db
//	snowload check --config configs/pipeline.yaml
//
// Exit codes: 0 on success, 1 when a run fails, 2 on usage or
// configuration errors.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"snowload/internal/config"

	// register all backends with the storage factory.
	_ "snowload/internal/storage/all"
)

const (
	exitOK     = 0
	exitFailed = 1
	exitUsage  = 2
)

// usageError marks failures that exit with exitUsage.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func usagef(format string, a ...any) error { return usageError{fmt.Errorf(format, a...)} }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one CLI invocation and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{v: config.NewViper(), stdout: stdout, stderr: stderr}
	root := a.rootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if a.log != nil {
		_ = a.log.Sync()
	}
	if err == nil {
		return exitOK
	}

	fmt.Fprintf(stderr, "snowload: %v\n", err)
	var ue usageError
	if errors.As(err, &ue) || !a.started {
		// flag, argument and unknown command errors surface before any
		// command starts.
		return exitUsage
	}
	return exitFailed
}

// app carries state shared by every subcommand.
type app struct {
	v       *viper.Viper
	cfgPath string
	verbose bool
	started bool

	stdout, stderr io.Writer
	log            *zap.Logger
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "snowload",
		Short:         "Load sales, customer, product, location and date files into a snowflake schema",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.started = true
			a.log = newLogger(a.verbose, a.stderr)
			return nil
		},
	}
	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError{err}
	})

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgPath, "config", "", "pipeline config file (yaml, json or toml)")
	pf.String("storage-kind", "", "storage backend: postgres, sqlite or mssql")
	pf.String("dsn", "", "storage DSN; environment variables are expanded")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "enable verbose logs")
	_ = a.v.BindPFlag("storage.kind", pf.Lookup("storage-kind"))
	_ = a.v.BindPFlag("storage.dsn", pf.Lookup("dsn"))

	root.AddCommand(a.loadCommand(), a.validateCommand(), a.schemaCommand(), a.checkCommand())
	return root
}

// pipeline loads and validates the configuration. Validation errors are
// usage errors; warnings are logged.
func (a *app) pipeline(requireSources bool) (config.Pipeline, error) {
	p, err := config.LoadWith(a.v, a.cfgPath)
	if err != nil {
		return config.Pipeline{}, usageError{err}
	}

	var errs []error
	for _, iss := range config.ValidatePipeline(p) {
		if !requireSources && isSourceIssue(iss) {
			continue
		}
		if iss.Severity == config.SeverityError {
			errs = append(errs, errors.New(iss.String()))
			continue
		}
		a.log.Warn("config", zap.String("path", iss.Path), zap.String("issue", iss.Message))
	}
	if len(errs) > 0 {
		return config.Pipeline{}, usageError{fmt.Errorf("invalid configuration: %w", errors.Join(errs...))}
	}
	return p, nil
}

func isSourceIssue(iss config.Issue) bool { return strings.HasPrefix(iss.Path, "sources.") }

// newLogger builds production JSON logging, or a development console
// logger when verbose.
func newLogger(verbose bool, w io.Writer) *zap.Logger {
	if verbose {
		enc := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
		return zap.New(zapcore.NewCore(enc, zapcore.AddSync(w), zapcore.DebugLevel))
	}
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return zap.New(zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(w), zapcore.InfoLevel))
}
