package statuspage

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "stackalert"

var (
	upstreamFetches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "statuspage",
			Name:      "fetches_total",
			Help:      "Total upstream status fetches by result",
		},
		[]string{"service", "result"},
	)

	upstreamFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "statuspage",
			Name:      "fetch_duration_seconds",
			Help:      "Upstream status fetch duration",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 15},
		},
		[]string{"service"},
	)
)

// recordFetch records the result of one upstream fetch.
func recordFetch(service, result string) {
	upstreamFetches.WithLabelValues(service, result).Inc()
}

// observeFetchDuration records how long one upstream fetch took.
func observeFetchDuration(service string, d time.Duration) {
	upstreamFetchDuration.WithLabelValues(service).Observe(d.Seconds())
}
