// Package metrics exposes Prometheus counters and histograms for the sync
// orchestrator, the extraction pipeline, and the HTTP command surface.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SyncsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "umbrarelay_syncs_total",
			Help: "Total number of source syncs by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	SyncDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "umbrarelay_sync_duration_seconds",
			Help:    "Sync pipeline duration in seconds by source kind",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	ItemsIngestedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "umbrarelay_items_ingested_total",
			Help: "Total number of items normalized into the store by source kind",
		},
		[]string{"kind"},
	)

	ExtractionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "umbrarelay_extractions_total",
			Help: "Total number of extraction runs by outcome",
		},
		[]string{"outcome"},
	)

	ExtractionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "umbrarelay_extraction_duration_seconds",
			Help:    "Extraction pass duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	SecretsExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "umbrarelay_secrets_expired_total",
			Help: "Total number of secrets expired by the cleanup sweep",
		},
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "umbrarelay_http_requests_total",
			Help: "Total number of command surface requests by method and status",
		},
		[]string{"method", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "umbrarelay_http_request_duration_seconds",
			Help:    "Command surface request duration in seconds by method",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)
)

func init() {
	prometheus.MustRegister(
		SyncsTotal,
		SyncDuration,
		ItemsIngestedTotal,
		ExtractionsTotal,
		ExtractionDuration,
		SecretsExpiredTotal,
		HTTPRequestsTotal,
		HTTPRequestDuration,
	)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer times an in-flight operation for later observation.
type Timer struct {
	start time.Time
}

func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}
