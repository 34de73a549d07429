// Package metrics records operational metrics of an indexing run through a
// small, backend-agnostic interface.
//
// A global backend defaults to a no-op, so instrumentation is always safe to
// call. Concrete systems (Prometheus Pushgateway, Datadog) live in
// subpackages and are installed with SetBackend at startup.
package metrics

import "time"

// Metric names emitted by the indexer.
const (
	StepTotal     = "catalog_step_total"
	StepDuration  = "catalog_step_duration_seconds"
	RecordsTotal  = "catalog_records_total"
	BatchesTotal  = "catalog_batches_total"
	statusSuccess = "success"
	statusFailure = "failure"
)

// Record kinds used with RecordRow.
const (
	KindExtracted = "extracted"
	KindSkipped   = "skipped"
	KindDuplicate = "duplicate"
	KindIndexed   = "indexed"
	KindRejected  = "rejected"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var backend Backend = nopBackend{}

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

// RecordStep counts one execution of a pipeline step (walk, bulk, ...) and
// records its duration, labeled by outcome.
func RecordStep(job, step string, err error, d time.Duration) {
	status := statusSuccess
	if err != nil {
		status = statusFailure
	}
	lbls := Labels{
		"job":    job,
		"step":   step,
		"status": status,
	}
	backend.IncCounter(StepTotal, 1, lbls)
	backend.ObserveHistogram(StepDuration, d.Seconds(), lbls)
}

// RecordRow adds delta records of the given kind.
func RecordRow(job, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(RecordsTotal, float64(delta), Labels{
		"job":  job,
		"kind": kind,
	})
}

// RecordBatches adds delta bulk requests.
func RecordBatches(job string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(BatchesTotal, float64(delta), Labels{
		"job": job,
	})
}
