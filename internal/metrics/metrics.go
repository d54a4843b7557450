// Package metrics provides a small, backend-agnostic abstraction for recording
// operational metrics from the pipeline.
//
// The default backend is a no-op, so instrumentation is always safe to call
// even when no real backend is configured. Concrete systems live in
// subpackages (see metrics/datadog).
package metrics

import (
	"strconv"
	"sync"
	"time"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/size style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes buffered metrics, if the backend buffers.
	Flush() error
}

// Metric names shared with backends.
const (
	StepTotal           = "etl_step_total"
	StepDurationSeconds = "etl_step_duration_seconds"
	RecordsTotal        = "etl_records_total"
	BatchesTotal        = "etl_batches_total"
	HTTPRequestsTotal   = "etl_http_requests_total"
	HTTPErrorsTotal     = "etl_http_errors_total"
	HTTPRequestSeconds  = "etl_http_request_duration_seconds"
	HTTPDownloadBytes   = "etl_http_download_bytes"
)

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs a concrete backend. Passing nil restores the no-op
// backend.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		backend = nopBackend{}
		return
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

// Flush delegates to the current backend.
func Flush() error {
	return current().Flush()
}

// RecordStep measures latency and success/failure of one pipeline step
// (acquire, normalize, export, load).
func RecordStep(job, step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	lbls := Labels{"job": job, "step": step, "status": status}

	b := current()
	b.IncCounter(StepTotal, 1, lbls)
	b.ObserveHistogram(StepDurationSeconds, d.Seconds(), lbls)
}

// RecordRow increments a record-level counter. Kinds used by the pipeline:
// processed, row_errors, csv_errors, duplicate_movies, movies, genres,
// production_companies, movie_genres, movie_production_companies, loaded.
func RecordRow(job, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	current().IncCounter(RecordsTotal, float64(delta), Labels{"job": job, "kind": kind})
}

// RecordBatches increments a batch-level counter (database load batches).
func RecordBatches(job string, delta int64) {
	if delta <= 0 {
		return
	}
	current().IncCounter(BatchesTotal, float64(delta), Labels{"job": job})
}

// RecordHTTP records one HTTP attempt. status is 0 when no response was
// received. bytes is the size of a downloaded body, or negative when unknown.
func RecordHTTP(status int, d time.Duration, bytes int64, failed bool) {
	st := "error"
	if status > 0 {
		st = strconv.Itoa(status)
	}
	lbls := Labels{"status": st}

	b := current()
	b.IncCounter(HTTPRequestsTotal, 1, lbls)
	if failed {
		b.IncCounter(HTTPErrorsTotal, 1, lbls)
	}
	b.ObserveHistogram(HTTPRequestSeconds, d.Seconds(), lbls)
	if bytes >= 0 {
		b.ObserveHistogram(HTTPDownloadBytes, float64(bytes), lbls)
	}
}
