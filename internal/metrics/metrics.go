// Package metrics defines the Prometheus collectors for the
// conversion pipeline. Collectors register themselves at init; the
// API server mounts the /metrics handler.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	unitsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagemill_units_processed_total",
		Help: "Extraction units processed, by backend and final status.",
	}, []string{"backend", "status"})

	extractionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pagemill_extraction_duration_seconds",
		Help:    "Per-unit extraction latency including retries.",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"backend"})

	documentsConverted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagemill_documents_converted_total",
		Help: "Conversion jobs finished, by outcome.",
	}, []string{"outcome"})

	jobsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pagemill_jobs_active",
		Help: "Jobs currently queued or processing.",
	})

	chunksProduced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pagemill_chunks_produced_total",
		Help: "Chunks produced by the splitter.",
	})
)

func UnitProcessed(backend, status string) {
	unitsProcessed.WithLabelValues(backend, status).Inc()
}

func ObserveExtraction(backend string, d time.Duration) {
	extractionDuration.WithLabelValues(backend).Observe(d.Seconds())
}

func DocumentConverted(outcome string) {
	documentsConverted.WithLabelValues(outcome).Inc()
}

func JobStarted() {
	jobsActive.Inc()
}

func JobFinished() {
	jobsActive.Dec()
}

func ChunksProduced(n int) {
	chunksProduced.Add(float64(n))
}
