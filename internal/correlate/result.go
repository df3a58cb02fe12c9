package correlate

import (
	"go.uber.org/zap"

	"assetlens/internal/domain"
)

// Result collects what a correlation pass proposes to the caller
type Result struct {
	Edges    []domain.CorrelationEdge
	Warnings []domain.Warning
}

// AddEdge appends the edge if it is valid; invalid edges are logged and dropped
func (r *Result) AddEdge(logger *zap.Logger, edge domain.CorrelationEdge) bool {
	if err := edge.Validate(); err != nil {
		logger.Error("Rejected correlation edge", zap.Error(err))
		edgesRejected.Inc()
		return false
	}
	r.Edges = append(r.Edges, edge)
	edgesEmitted.WithLabelValues(string(edge.Reason)).Inc()
	return true
}

// AddWarning appends a warning
func (r *Result) AddWarning(w domain.Warning) {
	r.Warnings = append(r.Warnings, w)
	warningsRaised.WithLabelValues(string(w.Kind)).Inc()
}

// Merge appends another result's edges and warnings
func (r *Result) Merge(other Result) {
	r.Edges = append(r.Edges, other.Edges...)
	r.Warnings = append(r.Warnings, other.Warnings...)
}

// Empty reports whether the result carries nothing
func (r Result) Empty() bool {
	return len(r.Edges) == 0 && len(r.Warnings) == 0
}
