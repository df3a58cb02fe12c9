package correlate

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	heuristicDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetlens_heuristic_decisions_total",
			Help: "Heuristic correlation decisions by outcome.",
		},
		[]string{"outcome"},
	)
	edgesEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetlens_correlation_edges_total",
			Help: "Correlation edges proposed by reason.",
		},
		[]string{"reason"},
	)
	edgesRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "assetlens_correlation_edges_rejected_total",
			Help: "Edges dropped because both sides share a source kind.",
		},
	)
	warningsRaised = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetlens_correlation_warnings_total",
			Help: "Correlation warnings by kind.",
		},
		[]string{"kind"},
	)
	executionBatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "assetlens_execution_batch_duration_seconds",
			Help:    "Wall time of execution correlation batches.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)
	executionDispatched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "assetlens_execution_dispatched_total",
			Help: "Identification requests dispatched to executors.",
		},
	)
)
