// ================================
// internal/metrics/metrics.go - Conversion pipeline metrics
// ================================

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Conversion outcomes, one increment per finished job or sync conversion.
	ConversionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashbridge_conversions_total",
			Help: "Total number of dashboard conversions by mode and outcome",
		},
		[]string{"mode", "status"}, // mode: sync/job/batch, status: completed/failed
	)

	ConversionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dashbridge_conversion_duration_seconds",
			Help:    "Wall time of a full conversion pipeline run",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"mode"},
	)

	PanelsConverted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashbridge_panels_converted_total",
			Help: "Panels converted by target visualization family",
		},
		[]string{"family"},
	)

	QueryTranslations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashbridge_query_translations_total",
			Help: "Query translations by datasource kind and result",
		},
		[]string{"kind", "result"}, // result: translated/passthrough
	)

	WarningsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashbridge_conversion_warnings_total",
			Help: "Non-fatal conversion warnings by code",
		},
		[]string{"code"},
	)

	ActiveJobs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dashbridge_active_jobs",
			Help: "Number of conversion jobs currently processing",
		},
	)

	EnrichmentRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dashbridge_enrichment_requests_total",
			Help: "Query enrichment calls by provider and result",
		},
		[]string{"provider", "result"}, // result: hit/success/error
	)
)
