// Package metrics exposes the prometheus collectors solvo emits.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	KindLabel    = "kind"
	OutcomeLabel = "outcome"
)

var (
	solvesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "solvo_solves_total",
			Help: "Monotonic count of solve attempts",
		},
		[]string{KindLabel, OutcomeLabel},
	)

	solveDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "solvo_solve_duration_seconds",
			Help:    "The duration of a solve attempt",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		},
		[]string{KindLabel},
	)

	cacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "solvo_result_cache_hits_total",
			Help: "Monotonic count of solves answered from the fingerprint cache",
		},
	)

	cacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "solvo_result_cache_misses_total",
			Help: "Monotonic count of solves that missed the fingerprint cache",
		},
	)

	catalogModelCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "solvo_catalog_models",
			Help: "Number of models currently loaded from the catalog",
		},
	)
)

// RegisterServer registers every collector the server emits. Call it
// once per process.
func RegisterServer() {
	prometheus.MustRegister(solvesTotal)
	prometheus.MustRegister(solveDuration)
	prometheus.MustRegister(cacheHitsTotal)
	prometheus.MustRegister(cacheMissesTotal)
	prometheus.MustRegister(catalogModelCount)
}

// ObserveSolve records one solve attempt's outcome and duration.
func ObserveSolve(kind, outcome string, took time.Duration) {
	solvesTotal.WithLabelValues(kind, outcome).Inc()
	solveDuration.WithLabelValues(kind).Observe(took.Seconds())
}

func IncrementCacheHits() {
	cacheHitsTotal.Inc()
}

func IncrementCacheMisses() {
	cacheMissesTotal.Inc()
}

// SetCatalogModelCount tracks the catalog gauge across reloads.
func SetCatalogModelCount(count int) {
	catalogModelCount.Set(float64(count))
}
