package repository

import (
	"context"
	"errors"

	"assetlens/internal/domain"
)

var (
	// ErrNotFound is returned when a requested entity does not exist
	ErrNotFound = errors.New("not found")
	// ErrInstanceConflict is returned when an entity already holds a
	// different record of the same source instance
	ErrInstanceConflict = errors.New("entity already holds a record of this source instance")
)

// Repository defines the interface for correlation state access
type Repository interface {
	// Read operations
	LoadEntities(ctx context.Context) ([]domain.Entity, error)
	GetEntity(ctx context.Context, id string) (*domain.Entity, error)
	ListEdges(ctx context.Context) ([]domain.CorrelationEdge, error)
	ListWarnings(ctx context.Context) ([]domain.Warning, error)

	// Write operations
	UpsertRecord(ctx context.Context, entityID string, record domain.SourceRecord) error
	SaveEdges(ctx context.Context, edges []domain.CorrelationEdge) (int, error)
	SaveWarnings(ctx context.Context, warnings []domain.Warning) error

	// Close releases resources
	Close() error
}
