package adapter

import (
	"context"

	"assetlens/internal/domain"
)

// Source is one running instance of a data connector
type Source interface {
	// Kind returns the connector type, shared by all its instances
	Kind() string

	// InstanceID returns the unique identifier of this running instance
	InstanceID() string

	// Scanner reports whether records can only be correlated heuristically
	Scanner() bool

	// Start initializes the source (called once on startup)
	Start(ctx context.Context) error

	// Stop gracefully shuts down the source
	Stop() error

	// Collect returns the records currently observed by the source
	Collect(ctx context.Context) ([]domain.SourceRecord, error)
}

// CommandProvider is implemented by sources that know their own
// identification command per OS type
type CommandProvider interface {
	CorrelationCommands(ctx context.Context) (map[domain.OSType]string, error)
}

// SourceConfig holds per-instance registration settings
type SourceConfig struct {
	// Enabled determines if the source is started and collected
	Enabled bool `json:"enabled"`
	// Commands override the identification commands per OS type
	Commands map[domain.OSType]string `json:"commands,omitempty"`
}

// StaticSource stands in for a connector that runs outside this process.
// It contributes no records but carries the instance's kind and commands.
type StaticSource struct {
	kind     string
	instance string
	commands map[domain.OSType]string
}

// NewStaticSource creates a placeholder source for an external connector
func NewStaticSource(kind, instanceID string, commands map[domain.OSType]string) *StaticSource {
	return &StaticSource{kind: kind, instance: instanceID, commands: commands}
}

func (s *StaticSource) Kind() string                    { return s.kind }
func (s *StaticSource) InstanceID() string              { return s.instance }
func (s *StaticSource) Scanner() bool                   { return false }
func (s *StaticSource) Start(ctx context.Context) error { return nil }
func (s *StaticSource) Stop() error                     { return nil }

// Collect returns nothing; the external connector feeds records to the store
func (s *StaticSource) Collect(ctx context.Context) ([]domain.SourceRecord, error) {
	return nil, nil
}

// CorrelationCommands returns the configured table, falling back to the defaults for the kind
func (s *StaticSource) CorrelationCommands(ctx context.Context) (map[domain.OSType]string, error) {
	if len(s.commands) > 0 {
		return s.commands, nil
	}
	return DefaultCorrelationCommands[s.kind], nil
}
