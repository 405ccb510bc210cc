// Package metrics exposes scheduler counters to Prometheus.
//
// Every method is safe on a nil *Metrics so components can be built without
// instrumentation in tests and CLI subcommands.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "cronpump"

// Execution results used as the "result" label.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultPanic   = "panic"
)

type Metrics struct {
	reg *prometheus.Registry

	ticks      prometheus.Counter
	tickLag    prometheus.Histogram
	matches    prometheus.Counter
	evalErrors prometheus.Counter
	expired    prometheus.Counter
	rules      prometheus.Gauge
	inFlight   prometheus.Gauge
	executions *prometheus.CounterVec
	duration   prometheus.Histogram
	retries    prometheus.Counter
}

// New registers all collectors, plus the Go runtime and process collectors,
// on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg: reg,
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "ticks_total",
			Help: "Evaluated seconds.",
		}),
		tickLag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "tick_lag_seconds",
			Help:    "Delay between a second boundary and its evaluation.",
			Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2, 5},
		}),
		matches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "matches_total",
			Help: "Rule matches handed to the dispatcher.",
		}),
		evalErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "evaluation_errors_total",
			Help: "Rules that failed during evaluation.",
		}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "expired_rules_total",
			Help: "Rules removed because they expired.",
		}),
		rules: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "rules",
			Help: "Registered active rules.",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "executions_in_flight",
			Help: "Executions currently running.",
		}),
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "executions_total",
			Help: "Finished executions by result.",
		}, []string{"result"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "execution_duration_seconds",
			Help:    "Wall time of finished executions.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 9),
		}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "retries_scheduled_total",
			Help: "One-shot retry rules scheduled after a failed attempt.",
		}),
	}
	reg.MustRegister(
		m.ticks, m.tickLag, m.matches, m.evalErrors, m.expired, m.rules,
		m.inFlight, m.executions, m.duration, m.retries,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) Tick(lag time.Duration) {
	if m == nil {
		return
	}
	m.ticks.Inc()
	if lag < 0 {
		lag = 0
	}
	m.tickLag.Observe(lag.Seconds())
}

func (m *Metrics) Matched() {
	if m != nil {
		m.matches.Inc()
	}
}

func (m *Metrics) EvaluationError() {
	if m != nil {
		m.evalErrors.Inc()
	}
}

func (m *Metrics) Expired() {
	if m != nil {
		m.expired.Inc()
	}
}

func (m *Metrics) SetRules(n int) {
	if m != nil {
		m.rules.Set(float64(n))
	}
}

func (m *Metrics) ExecutionStarted() {
	if m != nil {
		m.inFlight.Inc()
	}
}

func (m *Metrics) ExecutionFinished(result string, took time.Duration) {
	if m == nil {
		return
	}
	m.inFlight.Dec()
	m.executions.WithLabelValues(result).Inc()
	m.duration.Observe(took.Seconds())
}

func (m *Metrics) RetryScheduled() {
	if m != nil {
		m.retries.Inc()
	}
}
