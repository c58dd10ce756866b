// Package metrics declares the Prometheus collectors shared by the catalog,
// the scan orchestrator and the window sessions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Refresh metrics
var (
	RefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ghostcat_refresh_total",
			Help: "Total number of refresh calls by mode and outcome",
		},
		[]string{"mode", "outcome"},
	)

	RefreshInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ghostcat_refresh_in_flight",
			Help: "Number of Scanner calls currently running",
		},
	)

	ScanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ghostcat_scan_duration_seconds",
			Help:    "Duration of Scanner calls in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)
)

// Catalog metrics
var (
	CatalogRowsUpserted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ghostcat_catalog_rows_upserted_total",
			Help: "Total number of catalog rows inserted or rewritten",
		},
	)

	CatalogRowsUnchanged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ghostcat_catalog_rows_unchanged_total",
			Help: "Total number of incoming rows skipped because their fingerprint matched",
		},
	)

	CatalogRowsDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ghostcat_catalog_rows_deleted_total",
			Help: "Total number of stale catalog rows removed by replace",
		},
	)

	CatalogFullRewrites = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ghostcat_catalog_full_rewrites_total",
			Help: "Total number of replace calls that fell back to clear-then-insert",
		},
	)

	CatalogEvictedIdentities = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ghostcat_catalog_evicted_identities_total",
			Help: "Total number of configuration identities evicted",
		},
	)

	SearchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ghostcat_search_duration_seconds",
			Help:    "Catalog search duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
	)

	SearchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ghostcat_search_total",
			Help: "Total number of catalog searches by status",
		},
		[]string{"status"},
	)
)

// Window metrics
var (
	WindowFetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ghostcat_window_fetch_total",
			Help: "Window buffer fetches by how they were applied (merge, replace, discard)",
		},
		[]string{"result"},
	)

	WindowSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ghostcat_window_sessions",
			Help: "Number of live window sessions",
		},
	)
)
