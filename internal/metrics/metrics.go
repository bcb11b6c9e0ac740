// Package metrics is the process-wide metrics facade. Core packages record
// through the package functions; the CLI installs one Backend at startup.
package metrics

import (
	"sync"
	"time"
)

// Metric names shared by every backend.
const (
	StepTotal           = "etl_step_total"
	StepDurationSeconds = "etl_step_duration_seconds"
	RecordsTotal        = "etl_records_total"
	ResolveTotal        = "etl_dimension_resolve_total"
)

// Labels are metric dimensions, e.g. {"step": "sales_facts", "status": "ok"}.
type Labels map[string]string

// Backend receives metric events.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
	Close() error
}

type nop struct{}

func (nop) IncCounter(string, float64, Labels)       {}
func (nop) ObserveHistogram(string, float64, Labels) {}
func (nop) Flush() error                             { return nil }
func (nop) Close() error                             { return nil }

// Nop returns a backend that drops everything.
func Nop() Backend { return nop{} }

var (
	mu      sync.RWMutex
	current Backend = nop{}
)

// SetBackend installs b. A nil b installs the no-op backend.
func SetBackend(b Backend) {
	if b == nil {
		b = nop{}
	}
	mu.Lock()
	current = b
	mu.Unlock()
}

func get() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

func IncCounter(name string, delta float64, labels Labels) {
	get().IncCounter(name, delta, labels)
}

func ObserveHistogram(name string, value float64, labels Labels) {
	get().ObserveHistogram(name, value, labels)
}

func Flush() error { return get().Flush() }

func Close() error { return get().Close() }

// RecordStep counts one finished step and observes its duration, with
// status "ok" or "error" depending on err.
func RecordStep(step string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	l := Labels{"step": step, "status": status}
	IncCounter(StepTotal, 1, l)
	ObserveHistogram(StepDurationSeconds, time.Since(start).Seconds(), l)
}

// RecordRecords counts n processed records of kind.
func RecordRecords(kind string, n int) {
	if n <= 0 {
		return
	}
	IncCounter(RecordsTotal, float64(n), Labels{"kind": kind})
}

// RecordResolve counts one dimension key resolution. source is "cache" or
// "store".
func RecordResolve(table, source string) {
	IncCounter(ResolveTotal, 1, Labels{"table": table, "source": source})
}
