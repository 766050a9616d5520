// Package telemetry holds the Prometheus metrics of the refresh and enrichment path.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tenderfinder"

var (
	TendersFetched = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tenders_fetched_total",
		Help:      "Publications read from TenderNed across all refreshes",
	})

	FetchErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fetch_errors_total",
		Help:      "TenderNed fetch failures by stage (listing, detail)",
	}, []string{"stage"})

	TendersEnriched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tenders_enriched_total",
		Help:      "Tenders enriched, by MSP-fit tier",
	}, []string{"msp_tier"})

	RefreshRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "refresh_runs_total",
		Help:      "Cache refresh runs by trigger and final status",
	}, []string{"trigger", "status"})

	RefreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "refresh_duration_seconds",
		Help:      "Wall time of a cache refresh",
		Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
	})

	StaleServed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stale_cache_served_total",
		Help:      "Listing requests answered from a stale cache after a failed refresh",
	})
)

// ObserveRefresh records one finished refresh run.
func ObserveRefresh(trigger, status string, fetched int, elapsed time.Duration) {
	RefreshRuns.WithLabelValues(trigger, status).Inc()
	RefreshDuration.Observe(elapsed.Seconds())
	TendersFetched.Add(float64(fetched))
}

// Handler serves the default registry for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
