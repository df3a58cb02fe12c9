package adapter

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"assetlens/internal/correlate"
	"assetlens/internal/domain"
)

// ErrUnknownSource is returned for lookups of an unregistered instance
var ErrUnknownSource = errors.New("unknown source instance")

// Registry manages registered source instances and their lifecycle. It also
// serves command tables and output parsing to the execution correlator.
type Registry struct {
	mu      sync.RWMutex
	sources map[string]Source
	configs map[string]SourceConfig
	order   []string
	parsers map[string]ParserFunc
	logger  *zap.Logger
}

// NewRegistry creates a registry with the default output parsers
func NewRegistry(logger *zap.Logger) *Registry {
	parsers := make(map[string]ParserFunc, len(DefaultParsers))
	for kind, fn := range DefaultParsers {
		parsers[kind] = fn
	}
	return &Registry{
		sources: make(map[string]Source),
		configs: make(map[string]SourceConfig),
		parsers: parsers,
		logger:  logger.Named("registry"),
	}
}

// Register adds a source instance to the registry
func (r *Registry) Register(src Source, config SourceConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := src.InstanceID()
	if id == "" {
		return fmt.Errorf("source of kind %s has no instance id", src.Kind())
	}
	if _, exists := r.sources[id]; exists {
		return fmt.Errorf("source instance %s already registered", id)
	}

	r.sources[id] = src
	r.configs[id] = config
	r.order = append(r.order, id)
	r.logger.Info("Registered source",
		zap.String("kind", src.Kind()),
		zap.String("instance", id),
		zap.Bool("scanner", src.Scanner()),
		zap.Bool("enabled", config.Enabled),
	)
	return nil
}

// RegisterParser sets the output parser for a source kind
func (r *Registry) RegisterParser(kind string, fn ParserFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parsers[kind] = fn
}

// Get returns a registered source by instance id
func (r *Registry) Get(instanceID string) (Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src, ok := r.sources[instanceID]
	return src, ok
}

// Start initializes all enabled sources. A source failing to start is
// disabled and logged; it does not stop the others.
func (r *Registry) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range r.order {
		config := r.configs[id]
		if !config.Enabled {
			r.logger.Info("Source disabled, skipping", zap.String("instance", id))
			continue
		}
		if err := r.sources[id].Start(ctx); err != nil {
			r.logger.Warn("Failed to start source", zap.String("instance", id), zap.Error(err))
			config.Enabled = false
			r.configs[id] = config
		}
	}
	return nil
}

// Stop gracefully shuts down all sources
func (r *Registry) Stop() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var errs []error
	for _, id := range r.order {
		if err := r.sources[id].Stop(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// CollectScanners gathers the records of every enabled scanner source.
// Failing sources are logged and skipped.
func (r *Registry) CollectScanners(ctx context.Context) []domain.SourceRecord {
	r.mu.RLock()
	var scanners []Source
	for _, id := range r.order {
		if src := r.sources[id]; src.Scanner() && r.configs[id].Enabled {
			scanners = append(scanners, src)
		}
	}
	r.mu.RUnlock()

	var records []domain.SourceRecord
	for _, src := range scanners {
		collected, err := src.Collect(ctx)
		if err != nil {
			r.logger.Warn("Scanner collection failed",
				zap.String("instance", src.InstanceID()),
				zap.Error(err),
			)
			continue
		}
		for _, rec := range collected {
			rec.SourceKind = src.Kind()
			rec.SourceInstanceID = src.InstanceID()
			records = append(records, rec)
		}
		r.logger.Info("Collected scanner records",
			zap.String("instance", src.InstanceID()),
			zap.Int("records", len(collected)),
		)
	}
	return records
}

// CorrelationCommands returns the identification commands of a source
// instance. Configured commands override those the source provides.
func (r *Registry) CorrelationCommands(ctx context.Context, instanceID string) (map[domain.OSType]string, error) {
	r.mu.RLock()
	src, ok := r.sources[instanceID]
	config := r.configs[instanceID]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, instanceID)
	}

	table := make(map[domain.OSType]string)
	if provider, ok := src.(CommandProvider); ok {
		provided, err := provider.CorrelationCommands(ctx)
		if err != nil {
			return nil, fmt.Errorf("commands of %s: %w", instanceID, err)
		}
		for os, cmd := range provided {
			table[os] = cmd
		}
	} else {
		for os, cmd := range DefaultCorrelationCommands[src.Kind()] {
			table[os] = cmd
		}
	}
	for os, cmd := range config.Commands {
		table[os] = cmd
	}
	return table, nil
}

// ParseCorrelationOutput parses identification output with the parser of
// the kind, or as a single trimmed line when the kind has none
func (r *Registry) ParseCorrelationOutput(kind string, out correlate.Output) (string, bool) {
	r.mu.RLock()
	parser, ok := r.parsers[kind]
	r.mu.RUnlock()
	if !ok {
		parser = parseSingleLine
	}

	id, err := parser(out)
	if err != nil {
		r.logger.Debug("Unparseable identification output",
			zap.String("kind", kind),
			zap.String("os", string(out.OSType)),
			zap.Error(err),
		)
		return "", false
	}
	return id, true
}

// SourceInfo provides read-only information about a registered source
type SourceInfo struct {
	Kind       string `json:"kind"`
	InstanceID string `json:"instance_id"`
	Scanner    bool   `json:"scanner"`
	Enabled    bool   `json:"enabled"`
}

// ListSources returns registered sources in registration order
func (r *Registry) ListSources() []SourceInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]SourceInfo, 0, len(r.order))
	for _, id := range r.order {
		src := r.sources[id]
		infos = append(infos, SourceInfo{
			Kind:       src.Kind(),
			InstanceID: id,
			Scanner:    src.Scanner(),
			Enabled:    r.configs[id].Enabled,
		})
	}
	return infos
}
