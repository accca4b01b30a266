// Package metrics defines the Prometheus collectors for an index build and
// exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for a build.
type Metrics struct {
	DocumentsReadTotal   prometheus.Counter
	ChunksWrittenTotal   *prometheus.CounterVec
	PartialIndexesTotal  *prometheus.CounterVec
	MergesTotal          *prometheus.CounterVec
	MergeRoundsTotal     prometheus.Counter
	MergeDuration        prometheus.Histogram
	MergeWindowRefills   prometheus.Counter
	CarriedForwardTotal  prometheus.Counter
	FinalIndexTerms      prometheus.Gauge
	BuildDurationSeconds prometheus.Histogram
}

// New creates all collectors and registers them on reg. A nil reg uses the
// default Prometheus registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		DocumentsReadTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "bsbi_documents_read_total",
				Help: "Total documents pulled from the document source.",
			},
		),
		ChunksWrittenTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bsbi_chunks_written_total",
				Help: "Chunk artifacts persisted, by status.",
			},
			[]string{"status"},
		),
		PartialIndexesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bsbi_partial_indexes_total",
				Help: "Generation-0 partial indexes written, by status.",
			},
			[]string{"status"},
		),
		MergesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bsbi_merges_total",
				Help: "Pairwise external merges, by status.",
			},
			[]string{"status"},
		),
		MergeRoundsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "bsbi_merge_rounds_total",
				Help: "Completed merge rounds.",
			},
		),
		MergeDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "bsbi_merge_duration_seconds",
				Help:    "Duration of one pairwise external merge.",
				Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300},
			},
		),
		MergeWindowRefills: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "bsbi_merge_window_refills_total",
				Help: "Merge window refills read from disk.",
			},
		),
		CarriedForwardTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "bsbi_carried_forward_total",
				Help: "Unpaired partial indexes carried into the next generation.",
			},
		),
		FinalIndexTerms: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "bsbi_final_index_terms",
				Help: "Number of terms in the most recent final index.",
			},
		),
		BuildDurationSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "bsbi_build_duration_seconds",
				Help:    "End-to-end index build duration.",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
			},
		),
	}

	reg.MustRegister(
		m.DocumentsReadTotal,
		m.ChunksWrittenTotal,
		m.PartialIndexesTotal,
		m.MergesTotal,
		m.MergeRoundsTotal,
		m.MergeDuration,
		m.MergeWindowRefills,
		m.CarriedForwardTotal,
		m.FinalIndexTerms,
		m.BuildDurationSeconds,
	)

	return m
}

// Nop returns collectors registered on a throwaway registry, for callers that
// do not export metrics.
func Nop() *Metrics {
	return New(prometheus.NewRegistry())
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
