package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"assetlens/internal/codec"
	"assetlens/internal/correlate"
	"assetlens/internal/domain"
	"assetlens/internal/repository"
)

// ErrExecutionDisabled is returned by ExecutionPass when no executor is configured
var ErrExecutionDisabled = errors.New("execution correlation is not configured")

// ScannerSummary reports what a scanner pass did
type ScannerSummary struct {
	Records   int                            `json:"records"`
	Decisions map[correlate.DecisionKind]int `json:"decisions"`
	NewEdges  int                            `json:"new_edges"`
	Conflicts int                            `json:"conflicts"`
	Result    correlate.Result               `json:"-"`
}

// Option configures a CorrelationService
type Option func(*CorrelationService)

// WithEntityIDGenerator replaces the generator of new entity ids
func WithEntityIDGenerator(fn func() string) Option {
	return func(s *CorrelationService) {
		s.newEntityID = fn
	}
}

// WithHeuristicOptions passes options to the heuristic correlator of each pass
func WithHeuristicOptions(opts ...correlate.HeuristicOption) Option {
	return func(s *CorrelationService) {
		s.heuristicOpts = append(s.heuristicOpts, opts...)
	}
}

// CorrelationService runs heuristic and execution passes against the store.
// Passes are serialized.
type CorrelationService struct {
	repo          repository.Repository
	execution     *correlate.ExecutionCorrelator
	eventBus      *EventBus
	logger        *zap.Logger
	newEntityID   func() string
	heuristicOpts []correlate.HeuristicOption

	mu sync.Mutex
}

// NewCorrelationService creates a correlation service. execution may be nil
// when no execution channel is configured.
func NewCorrelationService(repo repository.Repository, execution *correlate.ExecutionCorrelator, eventBus *EventBus, logger *zap.Logger, opts ...Option) *CorrelationService {
	s := &CorrelationService{
		repo:        repo,
		execution:   execution,
		eventBus:    eventBus,
		logger:      logger.Named("service"),
		newEntityID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ScannerPass correlates scanner records against the stored entities.
// Self-correlated and adopted records are stored on the matched entity;
// correlated and standalone records become new entities.
func (s *CorrelationService) ScannerPass(ctx context.Context, records []domain.SourceRecord) (ScannerSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	summary := ScannerSummary{
		Records:   len(records),
		Decisions: make(map[correlate.DecisionKind]int),
	}

	entities, err := s.repo.LoadEntities(ctx)
	if err != nil {
		return summary, fmt.Errorf("load entities: %w", err)
	}
	heuristic := correlate.NewHeuristic(correlate.NewSnapshot(entities), s.logger, s.heuristicOpts...)

	for i := range records {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		record := records[i]
		decision := heuristic.FindCorrelation(&record)
		summary.Decisions[decision.Kind]++

		var entityID string
		switch decision.Kind {
		case correlate.DecisionSelfCorrelated, correlate.DecisionAdopted:
			entityID = decision.EntityID
		case correlate.DecisionCorrelated:
			entityID = s.newEntityID()
			summary.Result.AddEdge(s.logger, *decision.Edge)
		case correlate.DecisionStandalone:
			entityID = s.newEntityID()
		default:
			continue
		}

		err := s.repo.UpsertRecord(ctx, entityID, record)
		if errors.Is(err, repository.ErrInstanceConflict) {
			summary.Conflicts++
			summary.Result.AddWarning(conflictWarning(entityID, record, err))
			s.logger.Warn("Refusing conflicting record",
				zap.String("entity", entityID),
				zap.String("source_instance", record.SourceInstanceID),
				zap.String("external_id", record.ExternalID),
			)
			continue
		}
		if err != nil {
			return summary, fmt.Errorf("store record %s: %w", record.Ref(), err)
		}
	}

	summary.NewEdges, err = s.persist(ctx, summary.Result)
	if err != nil {
		return summary, err
	}

	s.logger.Info("Scanner pass complete",
		zap.Int("records", summary.Records),
		zap.Any("decisions", summary.Decisions),
		zap.Int("new_edges", summary.NewEdges),
		zap.Int("conflicts", summary.Conflicts),
	)
	s.eventBus.Publish(Event{Type: EventPassCompleted, Payload: map[string]any{
		"pass":      "scanner",
		"records":   summary.Records,
		"new_edges": summary.NewEdges,
	}})
	return summary, nil
}

// ExecutionPass runs the execution correlator over every stored entity and
// stores the edges and warnings it emits
func (s *CorrelationService) ExecutionPass(ctx context.Context) (correlate.Result, error) {
	if s.execution == nil {
		return correlate.Result{}, ErrExecutionDisabled
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entities, err := s.repo.LoadEntities(ctx)
	if err != nil {
		return correlate.Result{}, fmt.Errorf("load entities: %w", err)
	}

	result, err := s.execution.Run(ctx, entities)
	if err != nil {
		return result, fmt.Errorf("execution pass: %w", err)
	}

	newEdges, err := s.persist(ctx, result)
	if err != nil {
		return result, err
	}

	s.logger.Info("Execution pass complete",
		zap.Int("entities", len(entities)),
		zap.Int("edges", len(result.Edges)),
		zap.Int("new_edges", newEdges),
		zap.Int("warnings", len(result.Warnings)),
	)
	s.eventBus.Publish(Event{Type: EventPassCompleted, Payload: map[string]any{
		"pass":      "execution",
		"entities":  len(entities),
		"new_edges": newEdges,
	}})
	return result, nil
}

// Report reads the stored entities, edges and warnings
func (s *CorrelationService) Report(ctx context.Context) (*codec.Report, error) {
	entities, err := s.repo.LoadEntities(ctx)
	if err != nil {
		return nil, fmt.Errorf("load entities: %w", err)
	}
	edges, err := s.repo.ListEdges(ctx)
	if err != nil {
		return nil, fmt.Errorf("list edges: %w", err)
	}
	warnings, err := s.repo.ListWarnings(ctx)
	if err != nil {
		return nil, fmt.Errorf("list warnings: %w", err)
	}
	return &codec.Report{Entities: entities, Edges: edges, Warnings: warnings}, nil
}

// persist stores a pass result and publishes one event per edge and warning
func (s *CorrelationService) persist(ctx context.Context, result correlate.Result) (int, error) {
	newEdges, err := s.repo.SaveEdges(ctx, result.Edges)
	if err != nil {
		return 0, fmt.Errorf("save edges: %w", err)
	}
	if err := s.repo.SaveWarnings(ctx, result.Warnings); err != nil {
		return newEdges, fmt.Errorf("save warnings: %w", err)
	}

	for _, edge := range result.Edges {
		s.eventBus.Publish(Event{Type: EventEdgeProposed, Payload: edge})
	}
	for _, w := range result.Warnings {
		s.eventBus.Publish(Event{Type: EventWarningRaised, Payload: w})
	}
	return newEdges, nil
}

func conflictWarning(entityID string, record domain.SourceRecord, err error) domain.Warning {
	return domain.Warning{
		Kind:     domain.WarningContradiction,
		Message:  err.Error(),
		Values:   []string{record.SourceInstanceID, record.ExternalID},
		EntityID: entityID,
		RaisedAt: time.Now(),
	}
}
