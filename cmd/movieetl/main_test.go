package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"movieetl/internal/config"
	"movieetl/internal/datasource/httpds"
	"movieetl/internal/pipeline"
)

// fakeRunner records the config it received and returns a configurable error.
type fakeRunner struct {
	err   error
	calls atomic.Int64

	mu      sync.Mutex
	lastCfg config.Pipeline
	logger  pipeline.Logger
}

func (r *fakeRunner) Run(_ context.Context, cfg config.Pipeline) (*pipeline.Report, error) {
	r.calls.Add(1)
	r.mu.Lock()
	r.lastCfg = cfg
	r.mu.Unlock()
	if r.logger != nil {
		r.logger.Printf("runner called")
	}
	if r.err != nil {
		return nil, r.err
	}
	return &pipeline.Report{}, nil
}

type fakeSink struct {
	mu     sync.Mutex
	lines  []string
	closed int
}

func (s *fakeSink) Printf(format string, v ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, fmt.Sprintf(format, v...))
}

func (s *fakeSink) Errorf(format string, v ...any) { s.Printf("ERROR "+format, v...) }

func (s *fakeSink) Close() error {
	s.closed++
	return nil
}

type harness struct {
	runner        *fakeRunner
	sink          *fakeSink
	env           map[string]string
	preparedDir   string
	metricsClosed atomic.Int64
	backend       string
}

func newHarness() *harness {
	return &harness{runner: &fakeRunner{}, sink: &fakeSink{}, env: map[string]string{}}
}

func (h *harness) deps() appDeps {
	return appDeps{
		loadConfig: func(path string) (config.Pipeline, error) {
			if path == "" {
				return config.Defaults(), nil
			}
			return config.Load(path)
		},
		prepareOutput: func(dir string) error {
			h.preparedDir = dir
			return nil
		},
		openLog: func(string) (logSink, error) { return h.sink, nil },
		newRunner: func(logger pipeline.Logger) runner {
			h.runner.logger = logger
			return h.runner
		},
		initMetrics: func(_ context.Context, backend, _ string) (func() error, error) {
			h.backend = backend
			return func() error {
				h.metricsClosed.Add(1)
				return nil
			}, nil
		},
		getenv: func(k string) string { return h.env[k] },
	}
}

// panicDeps fails the test if any side effect is attempted.
func panicDeps(t *testing.T) appDeps {
	return appDeps{
		loadConfig: func(string) (config.Pipeline, error) {
			t.Fatalf("loadConfig must not be called on usage errors")
			return config.Pipeline{}, nil
		},
		prepareOutput: func(string) error {
			t.Fatalf("prepareOutput must not be called on usage errors")
			return nil
		},
		openLog: func(string) (logSink, error) {
			t.Fatalf("openLog must not be called on usage errors")
			return nil, nil
		},
		newRunner: func(pipeline.Logger) runner {
			t.Fatalf("newRunner must not be called on usage errors")
			return nil
		},
		initMetrics: func(context.Context, string, string) (func() error, error) {
			t.Fatalf("initMetrics must not be called on usage errors")
			return nil, nil
		},
		getenv: func(string) string { return "" },
	}
}

func TestRunMain_UsageErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		args          []string
		wantStderrSub string
	}{
		{name: "missing_location", args: nil, wantStderrSub: "Error: S3 endpoint not provided."},
		{name: "blank_location", args: []string{"   "}, wantStderrSub: "Error: S3 endpoint not provided."},
		{name: "two_locations", args: []string{"a.zip", "b.zip"}, wantStderrSub: "expected exactly one source location"},
		{name: "unknown_flag", args: []string{"-nope"}, wantStderrSub: "flag provided but not defined"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var stdout, stderr bytes.Buffer
			code := runMain(context.Background(), tc.args, &stdout, &stderr, panicDeps(t))
			if code != 2 {
				t.Fatalf("exit code=%d want 2; stderr=%q", code, stderr.String())
			}
			if !strings.Contains(stderr.String(), tc.wantStderrSub) {
				t.Fatalf("stderr=%q want contains %q", stderr.String(), tc.wantStderrSub)
			}
			if stdout.Len() != 0 {
				t.Fatalf("stdout=%q want empty", stdout.String())
			}
		})
	}
}

func TestRunMain_Success(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.env["MOVIEETL_OUT"] = "/tmp/from-env"
	h.env["METRICS_BACKEND"] = "none"

	var stdout, stderr bytes.Buffer
	code := runMain(context.Background(), []string{"-http-retries", "5", "https://bucket.example/movies.zip"}, &stdout, &stderr, h.deps())
	if code != 0 {
		t.Fatalf("exit code=%d stderr=%q", code, stderr.String())
	}
	if stdout.String() != "ok\n" || stderr.Len() != 0 {
		t.Fatalf("stdout=%q stderr=%q", stdout.String(), stderr.String())
	}

	cfg := h.runner.lastCfg
	if cfg.Source.Location != "https://bucket.example/movies.zip" {
		t.Fatalf("location=%q", cfg.Source.Location)
	}
	if cfg.Output.Dir != "/tmp/from-env" || h.preparedDir != "/tmp/from-env" {
		t.Fatalf("out=%q prepared=%q", cfg.Output.Dir, h.preparedDir)
	}
	if cfg.Source.HTTP.MaxRetries != 5 {
		t.Fatalf("MaxRetries=%d want 5", cfg.Source.HTTP.MaxRetries)
	}
	if h.backend != "none" || h.metricsClosed.Load() != 1 {
		t.Fatalf("backend=%q closed=%d", h.backend, h.metricsClosed.Load())
	}
	if len(h.sink.lines) < 2 || h.sink.lines[0] != "Starting data processing pipeline..." || h.sink.lines[1] != "runner called" {
		t.Fatalf("log lines=%q", h.sink.lines)
	}
	if h.sink.closed != 1 {
		t.Fatalf("sink closed %d times", h.sink.closed)
	}
}

func TestRunMain_FlagsOverrideEnv(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.env["MOVIEETL_OUT"] = "/tmp/from-env"
	h.env["MOVIEETL_HTTP_RETRIES"] = "7"

	var stdout, stderr bytes.Buffer
	code := runMain(context.Background(), []string{
		"-out", "/tmp/from-flag",
		"-metrics-backend", "datadog",
		"-load-kind", "sqlite", "-load-dsn", "file:movies.db",
		"movies.zip",
	}, &stdout, &stderr, h.deps())
	if code != 0 {
		t.Fatalf("exit code=%d stderr=%q", code, stderr.String())
	}

	cfg := h.runner.lastCfg
	if cfg.Output.Dir != "/tmp/from-flag" {
		t.Fatalf("out=%q", cfg.Output.Dir)
	}
	if cfg.Source.HTTP.MaxRetries != 7 {
		t.Fatalf("MaxRetries=%d want 7 from env", cfg.Source.HTTP.MaxRetries)
	}
	if cfg.Storage.Kind != "sqlite" || cfg.Storage.DSN != "file:movies.db" {
		t.Fatalf("storage=%+v", cfg.Storage)
	}
	if h.backend != "datadog" {
		t.Fatalf("backend=%q", h.backend)
	}
}

func TestRunMain_BadRetriesEnv(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.env["MOVIEETL_HTTP_RETRIES"] = "many"

	var stdout, stderr bytes.Buffer
	code := runMain(context.Background(), []string{"movies.zip"}, &stdout, &stderr, h.deps())
	if code != 2 || !strings.Contains(stderr.String(), "MOVIEETL_HTTP_RETRIES") {
		t.Fatalf("code=%d stderr=%q", code, stderr.String())
	}
	if h.runner.calls.Load() != 0 {
		t.Fatalf("runner called")
	}
}

func TestRunMain_FatalRunError(t *testing.T) {
	t.Parallel()

	h := newHarness()
	h.runner.err = fmt.Errorf("acquire: %w", &httpds.TransferError{URL: "https://x/movies.zip", Status: 403})

	var stdout, stderr bytes.Buffer
	code := runMain(context.Background(), []string{"https://x/movies.zip"}, &stdout, &stderr, h.deps())
	if code != 1 {
		t.Fatalf("exit code=%d want 1", code)
	}
	want := "An unrecoverable error occurred: acquire: download https://x/movies.zip: unexpected status 403"
	if strings.TrimSpace(stderr.String()) != want {
		t.Fatalf("stderr=%q want %q", stderr.String(), want)
	}
	if stdout.Len() != 0 {
		t.Fatalf("stdout=%q", stdout.String())
	}
	last := h.sink.lines[len(h.sink.lines)-1]
	if last != "ERROR "+want {
		t.Fatalf("last log line=%q", last)
	}
	if h.sink.closed != 1 {
		t.Fatalf("sink not closed")
	}
}

func TestRunMain_PrepareOutputFailure(t *testing.T) {
	t.Parallel()

	h := newHarness()
	deps := h.deps()
	deps.prepareOutput = func(string) error { return errors.New("permission denied") }
	deps.openLog = func(string) (logSink, error) {
		t.Fatalf("openLog must not be called when the output root cannot be prepared")
		return nil, nil
	}

	var stdout, stderr bytes.Buffer
	code := runMain(context.Background(), []string{"movies.zip"}, &stdout, &stderr, deps)
	if code != 1 || !strings.Contains(stderr.String(), "permission denied") {
		t.Fatalf("code=%d stderr=%q", code, stderr.String())
	}
}

func TestRunMain_MetricsInitFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	h := newHarness()
	deps := h.deps()
	deps.initMetrics = func(context.Context, string, string) (func() error, error) {
		return nil, errors.New("DD_API_KEY is not set")
	}

	var stdout, stderr bytes.Buffer
	code := runMain(context.Background(), []string{"movies.zip"}, &stdout, &stderr, deps)
	if code != 0 {
		t.Fatalf("exit code=%d stderr=%q", code, stderr.String())
	}
	if h.sink.lines[1] != "metrics: DD_API_KEY is not set; using nop" {
		t.Fatalf("log lines=%q", h.sink.lines)
	}
}

func TestRunMain_ConfigFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "pipeline.json")
	body := `{"job":"nightly","source":{"location":"https://bucket.example/movies.zip"},"output":{"dir":"out"}}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	h := newHarness()
	var stdout, stderr bytes.Buffer
	code := runMain(context.Background(), []string{"-config", path}, &stdout, &stderr, h.deps())
	if code != 0 {
		t.Fatalf("exit code=%d stderr=%q", code, stderr.String())
	}
	cfg := h.runner.lastCfg
	if cfg.Job != "nightly" || cfg.Source.Location != "https://bucket.example/movies.zip" || cfg.Output.Dir != "out" {
		t.Fatalf("cfg=%+v", cfg)
	}
	if cfg.Source.ArchiveMember != config.DefaultArchiveMember {
		t.Fatalf("defaults not applied: %q", cfg.Source.ArchiveMember)
	}
}

func TestRunMain_Validate(t *testing.T) {
	t.Parallel()

	h := newHarness()
	var stdout, stderr bytes.Buffer
	code := runMain(context.Background(), []string{"-validate", "-load-kind", "oracle", "movies.zip"}, &stdout, &stderr, h.deps())
	if code != 1 {
		t.Fatalf("exit code=%d want 1", code)
	}
	if !strings.Contains(stderr.String(), "storage.kind") {
		t.Fatalf("stderr=%q", stderr.String())
	}
	if h.runner.calls.Load() != 0 || h.preparedDir != "" {
		t.Fatalf("validate must not run the pipeline")
	}

	stdout.Reset()
	stderr.Reset()
	code = runMain(context.Background(), []string{"-validate", "movies.zip"}, &stdout, &stderr, h.deps())
	if code != 0 || stdout.String() != "config ok\n" {
		t.Fatalf("code=%d stdout=%q stderr=%q", code, stdout.String(), stderr.String())
	}
}

func TestInitMetrics(t *testing.T) {
	t.Parallel()

	closeFn, err := initMetrics(context.Background(), "none", "movieetl")
	if err != nil || closeFn() != nil {
		t.Fatalf("none backend: err=%v", err)
	}
	if _, err := initMetrics(context.Background(), "statsd", "movieetl"); err == nil {
		t.Fatalf("expected unknown backend error")
	}
}
