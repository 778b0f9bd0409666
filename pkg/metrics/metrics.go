// Package metrics exposes prometheus metrics for runs, test results and connected clients.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace prefixes all metric names.
const Namespace = "webtest"

// run outcomes used as label values.
const (
	OutcomeCompleted = "completed"
	OutcomeStopped   = "stopped"
	OutcomeError     = "error"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "runs_total",
		Help:      "Count of finished runs by outcome",
	}, []string{"outcome"})

	runRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "runs_rejected_total",
		Help:      "Count of run requests rejected because a run was active",
	})

	runDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "run_duration_seconds",
		Help:      "Duration of runs from spawn to exit",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
	})

	runActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "run_active",
		Help:      "1 while a run is in progress",
	})

	testsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "tests_total",
		Help:      "Count of test results reported in run summaries",
	}, []string{"result"})

	clientsConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "clients_connected",
		Help:      "Number of connected websocket clients",
	})

	eventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "events_dropped_total",
		Help:      "Count of events dropped for slow or closed clients",
	})

	catalogCases = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "catalog_cases",
		Help:      "Number of discovered test cases by category",
	}, []string{"category"})
)

// RecordRunStarted marks a run as active.
func RecordRunStarted() {
	runActive.Set(1)
}

// RecordRunRejected counts a start request refused while another run was active.
func RecordRunRejected() {
	runRejectedTotal.Inc()
}

// RecordRunFinished records the terminal outcome of a run.
func RecordRunFinished(outcome string, d time.Duration) {
	runActive.Set(0)
	runsTotal.WithLabelValues(outcome).Inc()
	if d > 0 {
		runDuration.Observe(d.Seconds())
	}
}

// RecordResults adds the summary counters of a completed run.
func RecordResults(passed, failed, skipped int) {
	testsTotal.WithLabelValues("passed").Add(float64(passed))
	testsTotal.WithLabelValues("failed").Add(float64(failed))
	testsTotal.WithLabelValues("skipped").Add(float64(skipped))
}

// ClientConnected increments the connected clients gauge.
func ClientConnected() { clientsConnected.Inc() }

// ClientDisconnected decrements the connected clients gauge.
func ClientDisconnected() { clientsConnected.Dec() }

// RecordEventDropped counts an event not delivered to a client.
func RecordEventDropped() { eventsDropped.Inc() }

// RecordCatalog sets the case count per category, replacing previous values.
func RecordCatalog(counts map[string]int) {
	catalogCases.Reset()
	for category, n := range counts {
		catalogCases.WithLabelValues(category).Set(float64(n))
	}
}
