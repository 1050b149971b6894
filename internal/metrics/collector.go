// Package metrics exports monitor outcomes as Prometheus metrics.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/netra-systems/zen-sub295/internal/watchdog"
)

// Collector is a watchdog.Observer that records event and run metrics
type Collector struct {
	gatherer prometheus.Gatherer

	eventsAccepted *prometheus.CounterVec
	violations     *prometheus.CounterVec
	payloadErrors  *prometheus.CounterVec
	runsFinished   *prometheus.CounterVec
	activeRuns     prometheus.Gauge
	completion     prometheus.Histogram

	mu   sync.Mutex
	runs map[string]struct{}
}

var _ watchdog.Observer = (*Collector)(nil)

// NewCollector registers the collectors on reg. A nil reg uses a fresh
// registry, which Handler then serves.
func NewCollector(reg *prometheus.Registry) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Collector{
		gatherer: reg,

		// eventsAccepted counts events accepted by a run's validator
		eventsAccepted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "eventseq_events_accepted_total",
			Help: "Total events accepted by event type",
		}, []string{"event_type"}),

		// violations counts rejected events by kind
		violations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "eventseq_violations_total",
			Help: "Total sequence violations by event type and kind",
		}, []string{"event_type", "kind"}),

		payloadErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "eventseq_payload_errors_total",
			Help: "Total payload check failures by event type",
		}, []string{"event_type"}),

		runsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "eventseq_runs_finished_total",
			Help: "Total finished runs by completion",
		}, []string{"complete"}),

		activeRuns: factory.NewGauge(prometheus.GaugeOpts{
			Name: "eventseq_active_runs",
			Help: "Runs that have received events and not finished",
		}),

		// completion tracks how far runs got before finishing
		completion: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "eventseq_run_completion_ratio",
			Help:    "Fraction of declared events that occurred, per finished run",
			Buckets: []float64{0, 0.2, 0.4, 0.6, 0.8, 0.99, 1},
		}),

		runs: make(map[string]struct{}),
	}
}

// ObserveEvent implements watchdog.Observer
func (c *Collector) ObserveEvent(_ context.Context, outcome watchdog.Outcome) error {
	if !outcome.Late {
		c.mu.Lock()
		if _, ok := c.runs[outcome.RunID]; !ok {
			c.runs[outcome.RunID] = struct{}{}
			c.activeRuns.Inc()
		}
		c.mu.Unlock()
	}

	eventType := string(outcome.Event.Type)
	if outcome.Accepted {
		c.eventsAccepted.WithLabelValues(eventType).Inc()
	} else if outcome.Violation != nil {
		c.violations.WithLabelValues(eventType, string(outcome.Violation.Kind)).Inc()
	}
	if outcome.PayloadErr != nil {
		c.payloadErrors.WithLabelValues(eventType).Inc()
	}
	return nil
}

// ObserveRunFinished implements watchdog.Observer
func (c *Collector) ObserveRunFinished(_ context.Context, report watchdog.RunReport) error {
	c.mu.Lock()
	if _, ok := c.runs[report.RunID]; ok {
		delete(c.runs, report.RunID)
		c.activeRuns.Dec()
	}
	c.mu.Unlock()

	c.runsFinished.WithLabelValues(strconv.FormatBool(report.Summary.IsComplete)).Inc()
	c.completion.Observe(report.Summary.CompletionPercentage / 100)
	return nil
}

// Handler serves the collector's registry in the Prometheus text format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}
