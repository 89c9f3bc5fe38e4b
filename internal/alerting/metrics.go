package alerting

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/stackalert/stackalert/internal/domain"
)

const namespace = "stackalert"

var (
	passes = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerting",
			Name:      "passes_total",
			Help:      "Total completed poll passes",
		},
	)

	passDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "alerting",
			Name:      "pass_duration_seconds",
			Help:      "Duration of a full poll pass",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	eventsDetected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerting",
			Name:      "events_detected_total",
			Help:      "Total detected state-transition events by type",
		},
		[]string{"type"},
	)

	emailsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerting",
			Name:      "emails_total",
			Help:      "Total alert emails by outcome",
		},
		[]string{"status"},
	)

	rateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerting",
			Name:      "rate_limited_total",
			Help:      "Total sends deferred to the pending queue by the rate limiter",
		},
	)

	sendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "alerting",
			Name:      "send_duration_seconds",
			Help:      "Time to send one alert email",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	pendingDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "alerting",
			Name:      "pending_events",
			Help:      "Current number of queued pending events",
		},
	)
)

// RecordPendingDepth updates the pending queue depth gauge. Called from the
// application-level metrics collector.
func RecordPendingDepth(n int) {
	pendingDepth.Set(float64(n))
}

func recordPass(d time.Duration) {
	passes.Inc()
	passDuration.Observe(d.Seconds())
}

func recordEventDetected(t domain.EventType) {
	eventsDetected.WithLabelValues(string(t)).Inc()
}

func recordEmailSent(status string) {
	emailsSent.WithLabelValues(status).Inc()
}

func recordRateLimited() {
	rateLimited.Inc()
}

func observeSendDuration(d time.Duration) {
	sendDuration.Observe(d.Seconds())
}
