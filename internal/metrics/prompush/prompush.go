// Package prompush implements a Prometheus Pushgateway backend for the
// internal/metrics package. Metrics live in a private registry and the whole
// registry is pushed on Flush and Close.
package prompush

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"snowload/internal/metrics"
)

// Options configures the backend.
type Options struct {
	// URL is the Pushgateway base URL, e.g. http://pushgateway:9091.
	URL string
	// Job is the push job name. If empty, defaults to "snowload".
	Job string
	// Grouping adds grouping labels to the push path. Blank keys or values
	// are skipped.
	Grouping map[string]string
}

// Backend implements metrics.Backend on a prometheus.Registry.
type Backend struct {
	ctx      context.Context
	registry *prometheus.Registry
	pusher   *push.Pusher

	steps     *prometheus.CounterVec
	durations *prometheus.HistogramVec
	records   *prometheus.CounterVec
	resolves  *prometheus.CounterVec
}

// New registers the metric vectors and prepares the pusher.
func New(ctx context.Context, opts Options) (*Backend, error) {
	if strings.TrimSpace(opts.URL) == "" {
		return nil, errors.New("prompush: pushgateway url is required")
	}
	job := strings.TrimSpace(opts.Job)
	if job == "" {
		job = "snowload"
	}

	b := &Backend{
		ctx:      ctx,
		registry: prometheus.NewRegistry(),
		steps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.StepTotal,
			Help: "Load stages finished, by step and status.",
		}, []string{"step", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    metrics.StepDurationSeconds,
			Help:    "Load stage durations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"step", "status"}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.RecordsTotal,
			Help: "Source records processed, by source kind.",
		}, []string{"kind"}),
		resolves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.ResolveTotal,
			Help: "Leaf dimension key resolutions, by table and whether the cache or the store answered.",
		}, []string{"table", "source"}),
	}
	b.registry.MustRegister(b.steps, b.durations, b.records, b.resolves)

	pusher := push.New(opts.URL, job).Gatherer(b.registry)
	for k, v := range opts.Grouping {
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		pusher = pusher.Grouping(k, v)
	}
	b.pusher = pusher
	return b, nil
}

// Registry exposes the backing registry.
func (b *Backend) Registry() *prometheus.Registry { return b.registry }

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}
	switch name {
	case metrics.StepTotal:
		b.steps.WithLabelValues(labels["step"], labels["status"]).Add(delta)
	case metrics.RecordsTotal:
		b.records.WithLabelValues(labels["kind"]).Add(delta)
	case metrics.ResolveTotal:
		b.resolves.WithLabelValues(labels["table"], labels["source"]).Add(delta)
	}
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if value < 0 || name != metrics.StepDurationSeconds {
		return
	}
	b.durations.WithLabelValues(labels["step"], labels["status"]).Observe(value)
}

// Flush pushes the registry, replacing the previous push for this grouping.
func (b *Backend) Flush() error {
	ctx := b.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	if err := b.pusher.PushContext(ctx); err != nil {
		return fmt.Errorf("prompush: push: %w", err)
	}
	return nil
}

// Close performs the final push.
func (b *Backend) Close() error { return b.Flush() }

var _ metrics.Backend = (*Backend)(nil)
