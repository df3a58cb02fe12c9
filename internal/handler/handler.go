package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"assetlens/internal/adapter"
	"assetlens/internal/codec"
	"assetlens/internal/correlate"
	"assetlens/internal/domain"
	"assetlens/internal/repository"
	"assetlens/internal/service"
)

// Store is the read side of the correlation store
type Store interface {
	LoadEntities(ctx context.Context) ([]domain.Entity, error)
	GetEntity(ctx context.Context, id string) (*domain.Entity, error)
	ListEdges(ctx context.Context) ([]domain.CorrelationEdge, error)
	ListWarnings(ctx context.Context) ([]domain.Warning, error)
}

// Passes runs correlation passes
type Passes interface {
	ScannerPass(ctx context.Context, records []domain.SourceRecord) (service.ScannerSummary, error)
	ExecutionPass(ctx context.Context) (correlate.Result, error)
	Report(ctx context.Context) (*codec.Report, error)
}

// Sources lists registered sources and collects from the scanners among them
type Sources interface {
	ListSources() []adapter.SourceInfo
	CollectScanners(ctx context.Context) []domain.SourceRecord
}

// CorrelationHandler handles correlation API requests
type CorrelationHandler struct {
	store   Store
	passes  Passes
	sources Sources
	logger  *zap.Logger
}

// NewCorrelationHandler creates a new correlation handler
func NewCorrelationHandler(store Store, passes Passes, sources Sources, logger *zap.Logger) *CorrelationHandler {
	return &CorrelationHandler{
		store:   store,
		passes:  passes,
		sources: sources,
		logger:  logger.Named("handler"),
	}
}

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// Routes registers the API on mux
func (h *CorrelationHandler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/entities", h.ListEntities)
	mux.HandleFunc("GET /api/entities/{id}", h.GetEntity)
	mux.HandleFunc("GET /api/edges", h.ListEdges)
	mux.HandleFunc("GET /api/warnings", h.ListWarnings)
	mux.HandleFunc("GET /api/sources", h.ListSources)
	mux.HandleFunc("POST /api/passes/scanner", h.RunScannerPass)
	mux.HandleFunc("POST /api/passes/execution", h.RunExecutionPass)
	mux.HandleFunc("GET /api/export/{format}", h.Export)
}

// ListEntities returns all entities with their records
func (h *CorrelationHandler) ListEntities(w http.ResponseWriter, r *http.Request) {
	entities, err := h.store.LoadEntities(r.Context())
	if err != nil {
		h.logger.Error("Failed to load entities", zap.Error(err))
		h.writeError(w, "Failed to load entities", err.Error(), http.StatusInternalServerError)
		return
	}
	if entities == nil {
		entities = []domain.Entity{}
	}

	h.writeJSON(w, entities, http.StatusOK)
}

// GetEntity returns a single entity
func (h *CorrelationHandler) GetEntity(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	entity, err := h.store.GetEntity(r.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		h.writeError(w, "Not found", err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("Failed to get entity", zap.String("entity", id), zap.Error(err))
		h.writeError(w, "Failed to get entity", err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, entity, http.StatusOK)
}

// ListEdges returns every stored correlation edge
func (h *CorrelationHandler) ListEdges(w http.ResponseWriter, r *http.Request) {
	edges, err := h.store.ListEdges(r.Context())
	if err != nil {
		h.logger.Error("Failed to list edges", zap.Error(err))
		h.writeError(w, "Failed to list edges", err.Error(), http.StatusInternalServerError)
		return
	}
	if edges == nil {
		edges = []domain.CorrelationEdge{}
	}

	h.writeJSON(w, edges, http.StatusOK)
}

// ListWarnings returns every stored warning, optionally filtered by ?kind=
func (h *CorrelationHandler) ListWarnings(w http.ResponseWriter, r *http.Request) {
	warnings, err := h.store.ListWarnings(r.Context())
	if err != nil {
		h.logger.Error("Failed to list warnings", zap.Error(err))
		h.writeError(w, "Failed to list warnings", err.Error(), http.StatusInternalServerError)
		return
	}

	kind := domain.WarningKind(r.URL.Query().Get("kind"))
	filtered := make([]domain.Warning, 0, len(warnings))
	for _, warning := range warnings {
		if kind == "" || warning.Kind == kind {
			filtered = append(filtered, warning)
		}
	}

	h.writeJSON(w, filtered, http.StatusOK)
}

// ListSources returns the registered source instances
func (h *CorrelationHandler) ListSources(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.sources.ListSources(), http.StatusOK)
}

// RunScannerPass collects every enabled scanner and correlates its records
func (h *CorrelationHandler) RunScannerPass(w http.ResponseWriter, r *http.Request) {
	records := h.sources.CollectScanners(r.Context())

	summary, err := h.passes.ScannerPass(r.Context(), records)
	if err != nil {
		h.logger.Error("Scanner pass failed", zap.Error(err))
		h.writeError(w, "Scanner pass failed", err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, summary, http.StatusOK)
}

// RunExecutionPass runs the execution correlator over the stored entities
func (h *CorrelationHandler) RunExecutionPass(w http.ResponseWriter, r *http.Request) {
	result, err := h.passes.ExecutionPass(r.Context())
	if errors.Is(err, service.ErrExecutionDisabled) {
		h.writeError(w, "Execution pass unavailable", err.Error(), http.StatusConflict)
		return
	}
	if err != nil {
		h.logger.Error("Execution pass failed", zap.Error(err))
		h.writeError(w, "Execution pass failed", err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, codec.Report{Edges: result.Edges, Warnings: result.Warnings}, http.StatusOK)
}

// Export writes the full report in the requested format
func (h *CorrelationHandler) Export(w http.ResponseWriter, r *http.Request) {
	format := r.PathValue("format")
	_, exporter, ok := codec.ForFormat(format)
	if !ok {
		h.writeError(w, "Unsupported format", format, http.StatusBadRequest)
		return
	}

	report, err := h.passes.Report(r.Context())
	if err != nil {
		h.logger.Error("Failed to build report", zap.Error(err))
		h.writeError(w, "Failed to build report", err.Error(), http.StatusInternalServerError)
		return
	}

	if exporter.Format() == "yaml" {
		w.Header().Set("Content-Type", "application/x-yaml")
	} else {
		w.Header().Set("Content-Type", "application/json")
	}
	if err := exporter.Export(report, w); err != nil {
		// Headers are already sent
		h.logger.Error("Failed to export report", zap.String("format", format), zap.Error(err))
	}
}

func (h *CorrelationHandler) writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode JSON", zap.Error(err))
	}
}

func (h *CorrelationHandler) writeError(w http.ResponseWriter, error, details string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Details: details,
	}); err != nil {
		h.logger.Error("Failed to encode error response", zap.Error(err))
	}
}
