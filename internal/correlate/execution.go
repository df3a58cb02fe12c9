package correlate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"assetlens/internal/domain"
)

const (
	// NoopSentinel is the output of NoopCommand; it is never parsed
	NoopSentinel = "__assetlens_noop__"
	// NoopCommand fills command slots for kinds without a command for the asset's OS
	NoopCommand = "echo " + NoopSentinel

	// DefaultExecutionTimeout bounds how long a batch waits for its requests
	DefaultExecutionTimeout = 5 * time.Minute
)

// ExecutionRequest asks an executor to run identification commands on an entity
type ExecutionRequest struct {
	EntityID string
	OSType   domain.OSType
	Commands []string
	Entity   domain.Entity
}

// Executor dispatches command lists through a source's own execution channel.
// Dispatch must not block on the remote work.
type Executor interface {
	Dispatch(ctx context.Context, req ExecutionRequest) (Future, error)
}

// CommandSource returns the per-OS identification command of a source instance
type CommandSource interface {
	CorrelationCommands(ctx context.Context, sourceInstanceID string) (map[domain.OSType]string, error)
}

// Output is one command's raw output as handed to a parser
type Output struct {
	Text   string
	OSType domain.OSType
}

// OutputParser extracts a source kind's native id from identification output
type OutputParser interface {
	ParseCorrelationOutput(kind string, out Output) (string, bool)
}

// ExecutionConfig configures an ExecutionCorrelator
type ExecutionConfig struct {
	// Timeout is measured from batch start. Zero means DefaultExecutionTimeout.
	Timeout time.Duration
}

// ExecutionCorrelator resolves cross-source identifiers by running each
// source kind's identification command on the asset itself
type ExecutionCorrelator struct {
	executor Executor
	commands CommandSource
	parser   OutputParser
	timeout  time.Duration
	logger   *zap.Logger
}

// NewExecutionCorrelator creates an execution correlator
func NewExecutionCorrelator(executor Executor, commands CommandSource, parser OutputParser, logger *zap.Logger, cfg ExecutionConfig) *ExecutionCorrelator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultExecutionTimeout
	}
	return &ExecutionCorrelator{
		executor: executor,
		commands: commands,
		parser:   parser,
		timeout:  cfg.Timeout,
		logger:   logger.Named("execution"),
	}
}

// kindSlot is one command slot: a source kind and the instance representing it
type kindSlot struct {
	kind     string
	instance string
}

type eligibleEntity struct {
	entity *domain.Entity
	os     domain.OSType
}

type dispatch struct {
	eligibleEntity
	future Future
}

type resolution struct {
	kind string
	id   string
}

// Run executes one batch over the entity snapshot. Timeouts, contradictions
// and unusable outputs become warnings or skips; a dispatch failure, a
// rejected future or context cancellation is returned as an error.
func (x *ExecutionCorrelator) Run(ctx context.Context, entities []domain.Entity) (Result, error) {
	start := time.Now()
	deadline := start.Add(x.timeout)
	defer func() {
		executionBatchDuration.Observe(time.Since(start).Seconds())
	}()

	var result Result

	eligible := x.eligible(entities)
	if len(eligible) == 0 {
		return result, nil
	}

	slots := distinctKinds(eligible)
	tables := x.commandTables(ctx, slots)

	dispatched := make([]dispatch, 0, len(eligible))
	for _, e := range eligible {
		commands := make([]string, len(slots))
		for i, slot := range slots {
			cmd := tables[slot.kind][e.os]
			if cmd == "" {
				cmd = NoopCommand
			}
			commands[i] = cmd
		}

		future, err := x.executor.Dispatch(ctx, ExecutionRequest{
			EntityID: e.entity.ID,
			OSType:   e.os,
			Commands: commands,
			Entity:   *e.entity,
		})
		if err != nil {
			return result, fmt.Errorf("dispatch entity %s: %w", e.entity.ID, err)
		}
		executionDispatched.Inc()
		dispatched = append(dispatched, dispatch{eligibleEntity: e, future: future})
	}

	x.logger.Info("Dispatched identification commands",
		zap.Int("entities", len(dispatched)),
		zap.Int("source_kinds", len(slots)),
		zap.Duration("timeout", x.timeout),
	)

	settled, unresolved, err := join(ctx, dispatched, deadline)
	if err != nil {
		return result, fmt.Errorf("join execution batch: %w", err)
	}

	if len(unresolved) > 0 {
		ids := make([]string, len(unresolved))
		for i, d := range unresolved {
			ids[i] = d.entity.ID
		}
		result.AddWarning(domain.Warning{
			Kind:     domain.WarningExecutionTimeout,
			Message:  fmt.Sprintf("%d of %d execution requests did not settle within %s", len(unresolved), len(dispatched), x.timeout),
			Values:   ids,
			RaisedAt: time.Now(),
		})
		x.logger.Warn("Execution batch timed out",
			zap.Int("unresolved", len(unresolved)),
			zap.Strings("entities", ids),
		)
	}

	for _, d := range settled {
		outcome, err := d.future.Outcome()
		if err != nil {
			return result, fmt.Errorf("execution on entity %s: %w", d.entity.ID, err)
		}

		resolved := x.parseOutcome(d, slots, outcome)
		if len(resolved) == 0 {
			continue
		}

		if warnings := contradictions(d.entity, resolved); len(warnings) > 0 {
			for _, w := range warnings {
				result.AddWarning(w)
			}
			x.logger.Warn("Dropping execution results for contradicted entity",
				zap.String("entity", d.entity.ID),
				zap.Int("contradictions", len(warnings)),
			)
			continue
		}

		responder := outcome.Responder
		if responder.ExternalID == "" && len(d.entity.Records) > 0 {
			responder = d.entity.Records[0].Ref()
		}

		for _, r := range resolved {
			if d.entity.HasRecord(r.kind, r.id) {
				continue
			}
			justification := fmt.Sprintf("identification command for %s run through %s on entity %s (%s) returned id %s",
				r.kind, responder, d.entity.ID, d.os, r.id)
			result.AddEdge(x.logger, domain.CorrelationEdge{
				Left:          responder,
				Right:         domain.RecordRef{SourceKind: r.kind, ExternalID: r.id},
				Reason:        domain.ReasonExecution,
				Justification: justification,
			})
		}
	}

	return result, nil
}

// eligible keeps entities with exactly one determinable OS type
func (x *ExecutionCorrelator) eligible(entities []domain.Entity) []eligibleEntity {
	out := make([]eligibleEntity, 0, len(entities))
	for i := range entities {
		e := &entities[i]
		osType, err := e.OSType()
		switch {
		case errors.Is(err, domain.ErrInconsistentOS):
			x.logger.Debug("Skipping entity with inconsistent OS", zap.String("entity", e.ID))
			continue
		case err != nil:
			x.logger.Info("Skipping entity, OS type undeterminable", zap.String("entity", e.ID))
			continue
		}
		out = append(out, eligibleEntity{entity: e, os: osType})
	}
	return out
}

// distinctKinds lists source kinds in first-seen order. The first instance
// seen for a kind stands in for it when looking up commands.
func distinctKinds(eligible []eligibleEntity) []kindSlot {
	seen := make(map[string]struct{})
	var slots []kindSlot
	for _, e := range eligible {
		for _, r := range e.entity.Records {
			if _, ok := seen[r.SourceKind]; ok {
				continue
			}
			seen[r.SourceKind] = struct{}{}
			slots = append(slots, kindSlot{kind: r.SourceKind, instance: r.SourceInstanceID})
		}
	}
	return slots
}

func (x *ExecutionCorrelator) commandTables(ctx context.Context, slots []kindSlot) map[string]map[domain.OSType]string {
	tables := make(map[string]map[domain.OSType]string, len(slots))
	for _, slot := range slots {
		table, err := x.commands.CorrelationCommands(ctx, slot.instance)
		if err != nil {
			x.logger.Warn("Failed to fetch correlation commands",
				zap.String("source_kind", slot.kind),
				zap.String("source_instance", slot.instance),
				zap.Error(err),
			)
			table = nil
		}
		tables[slot.kind] = table
	}
	return tables
}

// parseOutcome maps a successful outcome's outputs to source kind ids
func (x *ExecutionCorrelator) parseOutcome(d dispatch, slots []kindSlot, outcome ExecutionOutcome) []resolution {
	if outcome.Status != StatusSuccess {
		x.logger.Debug("Execution did not succeed",
			zap.String("entity", d.entity.ID),
			zap.String("status", string(outcome.Status)),
			zap.String("message", outcome.Message),
		)
		return nil
	}
	if len(outcome.Outputs) != len(slots) {
		x.logger.Warn("Execution returned unexpected number of outputs",
			zap.String("entity", d.entity.ID),
			zap.Int("outputs", len(outcome.Outputs)),
			zap.Int("commands", len(slots)),
		)
		return nil
	}

	var resolved []resolution
	for i, slot := range slots {
		text := outcome.Outputs[i]
		if strings.TrimSpace(text) == NoopSentinel {
			continue
		}
		id, ok := x.parser.ParseCorrelationOutput(slot.kind, Output{Text: text, OSType: d.os})
		if !ok || id == "" {
			continue
		}
		resolved = append(resolved, resolution{kind: slot.kind, id: id})
	}
	return resolved
}

// contradictions reports every resolved kind the entity already holds under a different id
func contradictions(entity *domain.Entity, resolved []resolution) []domain.Warning {
	var warnings []domain.Warning
	for _, r := range resolved {
		existing := entity.RecordsOfKind(r.kind)
		if len(existing) == 0 || entity.HasRecord(r.kind, r.id) {
			continue
		}
		values := make([]string, 0, len(existing)+1)
		for _, rec := range existing {
			values = append(values, rec.ExternalID)
		}
		message := fmt.Sprintf("entity %s holds %s id %s but execution resolved %s",
			entity.ID, r.kind, strings.Join(values, ","), r.id)
		values = append(values, r.id)
		warnings = append(warnings, domain.Warning{
			Kind:     domain.WarningContradiction,
			Message:  message,
			Values:   values,
			EntityID: entity.ID,
			RaisedAt: time.Now(),
		})
	}
	return warnings
}

// join waits for futures until all settle or the deadline passes. Futures that
// settle are returned even if the deadline was hit while waiting for others.
func join(ctx context.Context, dispatched []dispatch, deadline time.Time) (settled, unresolved []dispatch, err error) {
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	expired := false
	for _, d := range dispatched {
		if !expired {
			select {
			case <-d.future.Done():
				settled = append(settled, d)
				continue
			case <-timer.C:
				expired = true
			case <-ctx.Done():
				return nil, nil, ctx.Err()
			}
		}

		select {
		case <-d.future.Done():
			settled = append(settled, d)
		default:
			unresolved = append(unresolved, d)
		}
	}
	return settled, unresolved, nil
}
