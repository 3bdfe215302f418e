// Package metrics defines the Prometheus metric collectors used across the
// synchronizer and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the synchronizer.
type Metrics struct {
	DocumentsIndexedTotal *prometheus.CounterVec
	DocumentsRemovedTotal *prometheus.CounterVec
	DocumentsSkippedTotal *prometheus.CounterVec
	BatchesTotal          *prometheus.CounterVec
	RebuildDuration       *prometheus.HistogramVec
	RebuildRunning        prometheus.Gauge
	EventsTotal           *prometheus.CounterVec
	EventLagSeconds       prometheus.Histogram
	SearchQueriesTotal    *prometheus.CounterVec
	SearchLatency         *prometheus.HistogramVec
	SettingsReloadsTotal  prometheus.Counter
	TopicCacheHitsTotal   prometheus.Counter
	TopicCacheMissesTotal prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	m := &Metrics{
		DocumentsIndexedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "searchsync_documents_indexed_total",
				Help: "Documents written to the index engine, by document kind.",
			},
			[]string{"kind"},
		),
		DocumentsRemovedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "searchsync_documents_removed_total",
				Help: "Documents removed from the index engine, by document kind.",
			},
			[]string{"kind"},
		),
		DocumentsSkippedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "searchsync_documents_skipped_total",
				Help: "Documents rejected by the eligibility filter, by kind and reason.",
			},
			[]string{"kind", "reason"},
		),
		BatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "searchsync_batches_total",
				Help: "Batch pages processed during rebuilds, by kind and status.",
			},
			[]string{"kind", "status"},
		),
		RebuildDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "searchsync_rebuild_duration_seconds",
				Help:    "Duration of full rebuild and full clear operations.",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
			},
			[]string{"operation", "status"},
		),
		RebuildRunning: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "searchsync_rebuild_running",
				Help: "Whether a full rebuild or clear is currently running (0 or 1).",
			},
		),
		EventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "searchsync_events_total",
				Help: "Mutation events routed, by event kind and outcome.",
			},
			[]string{"kind", "outcome"},
		),
		EventLagSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "searchsync_event_lag_seconds",
				Help:    "Delay between event emission and processing.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
			},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "searchsync_search_queries_total",
				Help: "Search queries served, by document kind and status.",
			},
			[]string{"kind", "status"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "searchsync_search_latency_seconds",
				Help:    "Search query latency in seconds, by document kind.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"kind"},
		),
		SettingsReloadsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "searchsync_settings_reloads_total",
				Help: "Settings snapshots applied from broadcast announcements.",
			},
		),
		TopicCacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "searchsync_topic_cache_hits_total",
				Help: "Parent-topic cache hits in the event router.",
			},
		),
		TopicCacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "searchsync_topic_cache_misses_total",
				Help: "Parent-topic cache misses in the event router.",
			},
		),
	}

	prometheus.MustRegister(
		m.DocumentsIndexedTotal,
		m.DocumentsRemovedTotal,
		m.DocumentsSkippedTotal,
		m.BatchesTotal,
		m.RebuildDuration,
		m.RebuildRunning,
		m.EventsTotal,
		m.EventLagSeconds,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SettingsReloadsTotal,
		m.TopicCacheHitsTotal,
		m.TopicCacheMissesTotal,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
