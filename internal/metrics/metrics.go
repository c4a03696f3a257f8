// Package metrics exposes Prometheus instrumentation for the reconciler and
// the upstream client.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "autostrm"

	resultLabel = "result"
	toLabel     = "to"
	stateLabel  = "state"
	opLabel     = "op"
)

var passesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconcile_passes_total",
		Help:      "number of reconciliation passes by outcome",
	},
	[]string{resultLabel},
)

var passDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "reconcile_pass_duration_seconds",
		Help:      "wall time of a reconciliation pass",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
	},
)

var transitionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "job_transitions_total",
		Help:      "number of job state transitions by target state",
	},
	[]string{toLabel},
)

var jobsGauge = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "jobs",
		Help:      "number of jobs in each state",
	},
	[]string{stateLabel},
)

var upstreamRequests = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upstream_requests_total",
		Help:      "number of upstream API calls by operation and outcome",
	},
	[]string{opLabel, resultLabel},
)

var intervalGauge = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "reconcile_interval_seconds",
		Help:      "current delay before the next reconciliation pass",
	},
)

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(passesTotal)
	prometheus.MustRegister(passDuration)
	prometheus.MustRegister(transitionsTotal)
	prometheus.MustRegister(jobsGauge)
	prometheus.MustRegister(upstreamRequests)
	prometheus.MustRegister(intervalGauge)
}

// ObservePass records one reconciliation pass.
func ObservePass(d time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	passesTotal.With(prometheus.Labels{resultLabel: result}).Inc()
	passDuration.Observe(d.Seconds())
}

// IncTransition counts a job moving into state to.
func IncTransition(to string) {
	transitionsTotal.With(prometheus.Labels{toLabel: to}).Inc()
}

// SetJobCounts replaces the per-state job gauge. States missing from counts
// but previously reported drop to zero.
func SetJobCounts(counts map[string]int, states []string) {
	for _, s := range states {
		jobsGauge.With(prometheus.Labels{stateLabel: s}).Set(float64(counts[s]))
	}
}

// SetInterval records the delay chosen for the next pass.
func SetInterval(d time.Duration) {
	intervalGauge.Set(d.Seconds())
}

// ObserveUpstream counts one upstream call. result is a short outcome class
// such as "ok", "transient" or "not_found".
func ObserveUpstream(op, result string) {
	upstreamRequests.With(prometheus.Labels{opLabel: op, resultLabel: result}).Inc()
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
