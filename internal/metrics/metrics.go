// Package metrics exposes Lifeline's Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SOSTriggered counts triggers by the status the event settled in.
	SOSTriggered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lifeline_sos_triggered_total",
		Help: "SOS triggers by final event status.",
	}, []string{"status"})

	// DispatchOutcomes counts per-recipient outcomes.
	DispatchOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "lifeline_dispatch_outcomes_total",
		Help: "Dispatch outcomes by channel and status.",
	}, []string{"channel", "status"})

	// DispatchDuration observes wall time of a full fan-out.
	DispatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "lifeline_dispatch_duration_seconds",
		Help:    "Time to fan out one SOS to every contact.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	})

	// SweptEvents counts events the stale sweep marked failed.
	SweptEvents = promauto.NewCounter(prometheus.CounterOpts{
		Name: "lifeline_sweep_failed_events_total",
		Help: "Active events marked failed by the stale-event sweep.",
	})
)

// ObserveTrigger records one completed trigger.
func ObserveTrigger(status string) {
	SOSTriggered.WithLabelValues(status).Inc()
}

// ObserveOutcome records one dispatch outcome.
func ObserveOutcome(channel, status string) {
	DispatchOutcomes.WithLabelValues(channel, status).Inc()
}

// ObserveDispatch records the duration of a fan-out that began at start.
func ObserveDispatch(start time.Time) {
	DispatchDuration.Observe(time.Since(start).Seconds())
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
