// Package pipeline runs one end-to-end normalization:
// acquire the source, stream and normalize every row, export the star
// schema, and optionally load it into a database.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"movieetl/internal/config"
	"movieetl/internal/datasource"
	"movieetl/internal/datasource/httpds"
	"movieetl/internal/export"
	"movieetl/internal/metrics"
	"movieetl/internal/multitable"
	"movieetl/internal/parser/csv"
	"movieetl/internal/runlog"
	"movieetl/internal/storage"
	"movieetl/internal/transformer"
)

// Logger is the minimal logging interface used by the runner.
// *log.Logger and *runlog.Sink satisfy it.
type Logger interface {
	Printf(format string, v ...any)
}

// Runner wires the stages together. The function fields are seams for tests.
type Runner struct {
	Logger Logger

	// TempRoot is where downloads and extracted archives are staged; "" uses
	// os.TempDir.
	TempRoot string

	Stage         func(ctx context.Context, location string, opt datasource.StageOptions) (*datasource.Staged, error)
	NewRepository func(ctx context.Context, cfg storage.MultiConfig) (storage.MultiRepository, error)
}

// NewDefaultRunner returns a Runner using the real datasource and storage
// factories.
func NewDefaultRunner(logger Logger) *Runner {
	return &Runner{
		Logger:        logger,
		Stage:         datasource.Stage,
		NewRepository: storage.NewMulti,
	}
}

// Report summarizes a completed run.
type Report struct {
	Stats            multitable.Stats
	MalformedRecords int64
	Export           *export.Summary
	Loaded           map[string]int64
	ErrorLogPath     string
}

// Run executes the pipeline for cfg. Row-level failures are logged and
// counted; any returned error is fatal for the run. Staged temporary files
// are removed before Run returns.
func (r *Runner) Run(ctx context.Context, cfg config.Pipeline) (*Report, error) {
	logf := r.logger()

	issues := config.ValidatePipeline(cfg)
	for _, iss := range issues {
		if iss.Severity == config.SeverityWarning {
			logf("config: %s", iss.Error())
		}
	}
	if config.HasErrors(issues) {
		var errs []error
		for _, iss := range issues {
			if iss.Severity == config.SeverityError {
				errs = append(errs, iss)
			}
		}
		return nil, fmt.Errorf("invalid pipeline config: %w", errors.Join(errs...))
	}

	job := cfg.Job

	// Acquire
	start := time.Now()
	st, err := r.stage()(ctx, cfg.Source.Location, datasource.StageOptions{
		ArchiveMember: cfg.Source.ArchiveMember,
		HTTP: httpds.Config{
			Timeout:            time.Duration(cfg.Source.HTTP.TimeoutSeconds) * time.Second,
			MaxRetries:         cfg.Source.HTTP.MaxRetries,
			InsecureSkipVerify: cfg.Source.HTTP.InsecureSkipVerify,
		},
		TempRoot: r.TempRoot,
		Logger:   r.Logger,
	})
	metrics.RecordStep(job, "acquire", err, time.Since(start))
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := st.Cleanup(); cerr != nil {
			logf("cleanup staged source: %v", cerr)
		}
	}()
	logf("stage=acquire ok bytes=%d duration=%s", st.Bytes, durMS(start))

	// Parse and normalize
	start = time.Now()
	res, malformed, err := r.normalize(ctx, cfg, st)
	metrics.RecordStep(job, "normalize", err, time.Since(start))
	if err != nil {
		return nil, err
	}
	rep := &Report{
		Stats:            res.Stats,
		MalformedRecords: malformed,
		ErrorLogPath:     filepath.Join(cfg.Output.Dir, runlog.FileName),
	}

	// Export
	start = time.Now()
	sum, err := (&export.Writer{Root: cfg.Output.Dir, Logger: r.Logger}).Write(res)
	metrics.RecordStep(job, "export", err, time.Since(start))
	if err != nil {
		return nil, err
	}
	rep.Export = sum

	if cfg.Storage.Enabled() {
		start = time.Now()
		loaded, err := r.load(ctx, cfg, res)
		metrics.RecordStep(job, "load", err, time.Since(start))
		if err != nil {
			return nil, err
		}
		rep.Loaded = loaded
	}

	logf("run stats: %s malformed_records=%d", res.Stats, malformed)
	logf("Data processing complete!")
	logf("Processed data saved to: %s", sum.DataDir)
	logf("SQL query saved to: %s", sum.QueryPath)
	logf("Error log saved to: %s", rep.ErrorLogPath)
	return rep, nil
}

// normalize streams the staged CSV through the engine. The reader runs in its
// own goroutine; the engine is the only consumer.
func (r *Runner) normalize(ctx context.Context, cfg config.Pipeline, st *datasource.Staged) (*multitable.Result, int64, error) {
	errf := logger(r.Logger, true)

	src, err := st.Open(ctx)
	if err != nil {
		return nil, 0, err
	}

	buf := cfg.Runtime.ChannelBuffer
	if buf <= 0 {
		buf = config.DefaultChannelBuffer
	}
	rows := make(chan *transformer.Row, buf)

	var malformed atomic.Int64
	onErr := func(line int, err error) {
		malformed.Add(1)
		errf("Skipping malformed record at line %d: %v", line, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(rows)
		if err := csv.StreamCSVRows(gctx, src, multitable.SourceColumns, cfg.Parser.Options, rows, onErr); err != nil {
			return fmt.Errorf("read source: %w", err)
		}
		return nil
	})

	var res *multitable.Result
	g.Go(func() error {
		var err error
		res, err = (&multitable.Engine{Job: cfg.Job, Logger: r.Logger}).Run(gctx, rows)
		if err != nil {
			// let the reader observe cancellation, then drain what it already queued
			for row := range rows {
				row.Drop()
			}
		}
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, malformed.Load(), err
	}
	return res, malformed.Load(), nil
}

func (r *Runner) load(ctx context.Context, cfg config.Pipeline, res *multitable.Result) (map[string]int64, error) {
	newRepo := r.NewRepository
	if newRepo == nil {
		newRepo = storage.NewMulti
	}
	repo, err := newRepo(ctx, storage.MultiConfig{
		Kind: cfg.Storage.Kind,
		DSN:  os.ExpandEnv(cfg.Storage.DSN),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", cfg.Storage.Kind, err)
	}
	defer repo.Close()

	l := &multitable.Loader{
		Repo:      repo,
		Job:       cfg.Job,
		BatchSize: cfg.Runtime.BatchSize,
		Logger:    r.Logger,
	}
	return l.Load(ctx, res)
}

func (r *Runner) stage() func(context.Context, string, datasource.StageOptions) (*datasource.Staged, error) {
	if r.Stage == nil {
		return datasource.Stage
	}
	return r.Stage
}

func (r *Runner) logger() func(format string, v ...any) { return logger(r.Logger, false) }

// logger returns the Printf of l, or its Errorf when asked for the error level
// and l has one.
func logger(l Logger, errLevel bool) func(format string, v ...any) {
	if l == nil {
		return log.New(io.Discard, "", 0).Printf
	}
	if el, ok := l.(multitable.ErrorLogger); ok && errLevel {
		return el.Errorf
	}
	return l.Printf
}

func durMS(start time.Time) time.Duration { return time.Since(start).Truncate(time.Millisecond) }
