// Command movieetl downloads the movie metadata archive, normalizes it into a
// star schema and writes the tables as CSV files plus the revenue report
// query.
//
//	movieetl [flags] <source-location>
//
// Everything the run reports goes to <out>/error_log.txt. The command prints
// a single line when it finishes: "ok" on success, the fatal error otherwise.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"movieetl/internal/config"
	"movieetl/internal/export"
	"movieetl/internal/metrics"
	"movieetl/internal/metrics/datadog"
	"movieetl/internal/pipeline"
	"movieetl/internal/runlog"

	// register every storage backend; -load-kind picks one at runtime
	_ "movieetl/internal/storage/all"
)

const usageLine = "Usage: movieetl [flags] <s3-endpoint-or-path>"

type runner interface {
	Run(ctx context.Context, cfg config.Pipeline) (*pipeline.Report, error)
}

type logSink interface {
	Printf(format string, v ...any)
	Errorf(format string, v ...any)
	Close() error
}

// appDeps holds the side-effecting collaborators of runMain so tests can
// replace them.
type appDeps struct {
	loadConfig    func(path string) (config.Pipeline, error)
	prepareOutput func(dir string) error
	openLog       func(dir string) (logSink, error)
	newRunner     func(logger pipeline.Logger) runner
	initMetrics   func(ctx context.Context, backend, job string) (func() error, error)
	getenv        func(key string) string
}

func defaultDeps() appDeps {
	return appDeps{
		loadConfig:    config.Load,
		prepareOutput: export.PrepareOutputDir,
		openLog: func(dir string) (logSink, error) {
			return runlog.OpenIn(dir)
		},
		newRunner: func(logger pipeline.Logger) runner {
			return pipeline.NewDefaultRunner(logger)
		},
		initMetrics: initMetrics,
		getenv:      os.Getenv,
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := runMain(ctx, os.Args[1:], os.Stdout, os.Stderr, defaultDeps())
	stop()
	os.Exit(code)
}

// runMain returns the process exit code: 0 on completion (row failures
// included), 1 on a fatal error, 2 on a usage error.
func runMain(ctx context.Context, args []string, stdout, stderr io.Writer, deps appDeps) int {
	fs := flag.NewFlagSet("movieetl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		cfgPath     string
		outDir      string
		metricsFlag string
		loadKind    string
		loadDSN     string
		httpRetries int
		validate    bool
	)
	fs.StringVar(&cfgPath, "config", "", "optional pipeline config JSON path")
	fs.StringVar(&outDir, "out", "", "output root, removed and recreated (overrides env MOVIEETL_OUT; default processed_data)")
	fs.StringVar(&metricsFlag, "metrics-backend", "", "metrics backend: none|datadog (overrides env METRICS_BACKEND)")
	fs.StringVar(&loadKind, "load-kind", "", "also load the tables into a database: sqlite|postgres|mssql")
	fs.StringVar(&loadDSN, "load-dsn", "", "database DSN for -load-kind")
	fs.IntVar(&httpRetries, "http-retries", -1, "download retry attempts (overrides env MOVIEETL_HTTP_RETRIES)")
	fs.BoolVar(&validate, "validate", false, "validate the configuration and exit")
	fs.Usage = func() {
		fmt.Fprintln(stderr, usageLine)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() > 1 {
		fmt.Fprintln(stderr, "Error: expected exactly one source location.")
		fmt.Fprintln(stderr, usageLine)
		return 2
	}
	location := strings.TrimSpace(fs.Arg(0))
	if location == "" && strings.TrimSpace(cfgPath) == "" {
		return usageError(stderr)
	}

	cfg, err := deps.loadConfig(strings.TrimSpace(cfgPath))
	if err != nil {
		fmt.Fprintf(stderr, "load config: %v\n", err)
		return 1
	}
	if location != "" {
		cfg.Source.Location = location
	}
	if strings.TrimSpace(cfg.Source.Location) == "" {
		return usageError(stderr)
	}
	if err := applyOverrides(&cfg, deps.getenv, outDir, loadKind, loadDSN, httpRetries); err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 2
	}

	if validate {
		issues := config.ValidatePipeline(cfg)
		for _, iss := range issues {
			fmt.Fprintf(stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
		}
		if config.HasErrors(issues) {
			return 1
		}
		fmt.Fprintln(stdout, "config ok")
		return 0
	}

	if err := deps.prepareOutput(cfg.Output.Dir); err != nil {
		fmt.Fprintf(stderr, "An unrecoverable error occurred: %v\n", err)
		return 1
	}
	sink, err := deps.openLog(cfg.Output.Dir)
	if err != nil {
		fmt.Fprintf(stderr, "An unrecoverable error occurred: %v\n", err)
		return 1
	}
	defer func() {
		if err := sink.Close(); err != nil {
			fmt.Fprintf(stderr, "close run log: %v\n", err)
		}
	}()

	sink.Printf("Starting data processing pipeline...")

	// Decide metrics backend: flag → env → default.
	backend := metricsFlag
	if backend == "" {
		backend = deps.getenv("METRICS_BACKEND")
	}
	closeMetrics, err := deps.initMetrics(ctx, backend, cfg.Job)
	if err != nil {
		sink.Printf("metrics: %v; using nop", err)
	} else {
		defer func() {
			if err := closeMetrics(); err != nil {
				sink.Printf("metrics: flush error: %v", err)
			}
		}()
	}

	if _, err := deps.newRunner(sink).Run(ctx, cfg); err != nil {
		sink.Errorf("An unrecoverable error occurred: %v", err)
		fmt.Fprintf(stderr, "An unrecoverable error occurred: %v\n", err)
		return 1
	}

	fmt.Fprintln(stdout, "ok")
	return 0
}

func usageError(stderr io.Writer) int {
	fmt.Fprintln(stderr, "Error: S3 endpoint not provided.")
	fmt.Fprintln(stderr, usageLine)
	return 2
}

// applyOverrides layers flags, then environment, over the config file values.
func applyOverrides(cfg *config.Pipeline, getenv func(string) string, outDir, loadKind, loadDSN string, httpRetries int) error {
	switch {
	case outDir != "":
		cfg.Output.Dir = outDir
	case getenv("MOVIEETL_OUT") != "":
		cfg.Output.Dir = getenv("MOVIEETL_OUT")
	}

	if httpRetries < 0 {
		if v := strings.TrimSpace(getenv("MOVIEETL_HTTP_RETRIES")); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return fmt.Errorf("invalid MOVIEETL_HTTP_RETRIES %q", v)
			}
			httpRetries = n
		}
	}
	if httpRetries == 0 {
		// config uses 0 for "default" and negative for "no retries"
		cfg.Source.HTTP.MaxRetries = -1
	} else if httpRetries > 0 {
		cfg.Source.HTTP.MaxRetries = httpRetries
	}

	if loadKind != "" {
		cfg.Storage.Kind = loadKind
	}
	if loadDSN != "" {
		cfg.Storage.DSN = loadDSN
	}
	return nil
}

// initMetrics installs the selected metrics backend and returns its shutdown
// func. "" and "none" keep the nop backend.
func initMetrics(ctx context.Context, backend, job string) (func() error, error) {
	switch backend {
	case "", "none":
		return func() error { return nil }, nil
	case "datadog":
		b, err := datadog.NewBackend(ctx, datadog.Options{
			JobName: job,
			Tags:    datadog.ParseTagsCSV(os.Getenv("METRICS_TAGS")),
		})
		if err != nil {
			return nil, err
		}
		metrics.SetBackend(b)
		// Close stops the flush loop and submits what is still buffered.
		return b.Close, nil
	default:
		return nil, errors.New("unknown metrics backend " + strconv.Quote(backend))
	}
}
