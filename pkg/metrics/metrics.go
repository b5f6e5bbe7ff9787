// Package metrics exposes Prometheus instrumentation for configuration runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Run outcomes used as the "result" label.
const (
	ResultChanged   = "changed"
	ResultUnchanged = "unchanged"
	ResultFailed    = "failed"
)

// Metrics holds the collectors updated by the runner. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	runsTotal       *prometheus.CounterVec
	statementsTotal *prometheus.CounterVec
	pushFailures    prometheus.Counter
	runDuration     prometheus.Histogram
	lastUnmanaged   prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edgecfg_runs_total",
			Help: "Configuration runs by result.",
		}, []string{"result", "mode"}),
		statementsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "edgecfg_statements_total",
			Help: "Statements produced by reconciliation, by kind.",
		}, []string{"kind"}),
		pushFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "edgecfg_push_failures_total",
			Help: "Device pushes that returned an error.",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "edgecfg_run_duration_seconds",
			Help:    "Wall time of a configuration run, including device I/O.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		lastUnmanaged: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "edgecfg_unmanaged_statements",
			Help: "Unmanaged statements found by the most recent run.",
		}),
	}
	reg.MustRegister(m.runsTotal, m.statementsTotal, m.pushFailures, m.runDuration, m.lastUnmanaged)
	return m
}

// ObserveRun records one finished run.
func (m *Metrics) ObserveRun(result string, check bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	mode := "apply"
	if check {
		mode = "check"
	}
	m.runsTotal.WithLabelValues(result, mode).Inc()
	m.runDuration.Observe(elapsed.Seconds())
}

// ObserveStatements records the sizes of a reconciliation result.
func (m *Metrics) ObserveStatements(updates, unmanaged, invalid int) {
	if m == nil {
		return
	}
	m.statementsTotal.WithLabelValues("update").Add(float64(updates))
	m.statementsTotal.WithLabelValues("unmanaged").Add(float64(unmanaged))
	m.statementsTotal.WithLabelValues("invalid").Add(float64(invalid))
	m.lastUnmanaged.Set(float64(unmanaged))
}

// PushFailed records a failed device push.
func (m *Metrics) PushFailed() {
	if m == nil {
		return
	}
	m.pushFailures.Inc()
}
