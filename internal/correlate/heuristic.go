package correlate

import (
	"fmt"
	"iter"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"assetlens/internal/domain"
	"assetlens/internal/match"
)

// DecisionKind is the outcome of correlating one scanner record
type DecisionKind string

const (
	// DecisionSelfCorrelated: the record re-observes one of its own source's records
	DecisionSelfCorrelated DecisionKind = "self_correlated"
	// DecisionAdopted: a cross-source match led back to a record of the same kind
	DecisionAdopted DecisionKind = "adopted"
	// DecisionCorrelated: an edge to a different source's record was proposed
	DecisionCorrelated DecisionKind = "correlated"
	// DecisionStandalone: no match, but enough identity to stand alone
	DecisionStandalone DecisionKind = "standalone"
	// DecisionDiscarded: no match and no MAC or hostname to identify the asset by
	DecisionDiscarded DecisionKind = "discarded"
)

// Decision describes what FindCorrelation concluded for a record
type Decision struct {
	Kind DecisionKind
	// EntityID is the entity of the matched candidate, empty for standalone/discarded
	EntityID string
	Edge     *domain.CorrelationEdge
}

var (
	selfPredicates = match.Predicates{
		match.Or(match.MACsOverlap, match.HostnameEquals),
	}
	crossPredicates = match.Predicates{
		match.DifferentSourceKind,
		match.MACDoesNotContradict,
		match.HostnameDoesNotContradict,
	}
	// Without a shared IP there must be positive evidence, not just absence of conflict
	crossFallbackPredicates = match.Predicates{
		match.DifferentSourceKind,
		match.Or(match.MACsOverlap, match.HostnameEquals),
		match.MACDoesNotContradict,
		match.HostnameDoesNotContradict,
	}
)

// HeuristicOption configures a Heuristic
type HeuristicOption func(*Heuristic)

// WithIDGenerator replaces the random id minted for unmatched records
func WithIDGenerator(fn func() string) HeuristicOption {
	return func(h *Heuristic) {
		h.newID = fn
	}
}

// Heuristic correlates records from scanner sources, which cannot be queried
// for identity, against a snapshot of known entities. It is not safe for
// concurrent use; run one record at a time.
type Heuristic struct {
	snapshot *Snapshot
	logger   *zap.Logger
	newID    func() string
}

// NewHeuristic creates a heuristic correlator over a pass snapshot
func NewHeuristic(snapshot *Snapshot, logger *zap.Logger, opts ...HeuristicOption) *Heuristic {
	h := &Heuristic{
		snapshot: snapshot,
		logger:   logger.Named("heuristic"),
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// FindSuitable yields, lazily and in order, the candidates whose view satisfies
// every predicate against v. A nil candidate slice means the whole snapshot.
// The returned sequence can be iterated more than once.
func (h *Heuristic) FindSuitable(v match.View, preds match.Predicates, candidates []*Candidate) iter.Seq[*Candidate] {
	if candidates == nil {
		candidates = h.snapshot.Candidates()
	}
	return func(yield func(*Candidate) bool) {
		for _, c := range candidates {
			if !preds.Match(v, c.View) {
				continue
			}
			if !yield(c) {
				return
			}
		}
	}
}

// FindSuitableNewest returns the suitable candidate observed most recently.
// Ties keep the earliest candidate in iteration order.
func (h *Heuristic) FindSuitableNewest(v match.View, preds match.Predicates, candidates []*Candidate) (*Candidate, bool) {
	var best *Candidate
	for c := range h.FindSuitable(v, preds, candidates) {
		if best == nil || c.Record.LastSeen.After(best.Record.LastSeen) {
			best = c
		}
	}
	return best, best != nil
}

// FindSuitableNewestByIP restricts the search to candidates sharing an IP with v
func (h *Heuristic) FindSuitableNewestByIP(v match.View, preds match.Predicates) (*Candidate, bool) {
	if len(v.IPs) == 0 {
		return nil, false
	}
	restricted := h.snapshot.ByIPs(v.IPList())
	if len(restricted) == 0 {
		return nil, false
	}
	return h.FindSuitableNewest(v, preds, restricted)
}

// FindSuitableNoIPContradiction returns the first suitable candidate whose IPs
// do not contradict v. First match wins, not the best one.
func (h *Heuristic) FindSuitableNoIPContradiction(v match.View, preds match.Predicates, candidates []*Candidate) (*Candidate, bool) {
	for c := range h.FindSuitable(v, preds, candidates) {
		if match.IPDoesNotContradict(v, c.View) {
			return c, true
		}
	}
	return nil, false
}

// FindCorrelation decides how a newly observed scanner record relates to the
// snapshot. It sets record.ExternalID: adopted from a match, or freshly minted.
func (h *Heuristic) FindCorrelation(record *domain.SourceRecord) Decision {
	d := h.findCorrelation(record)
	heuristicDecisions.WithLabelValues(string(d.Kind)).Inc()
	h.logger.Debug("Correlated scanner record",
		zap.String("source_kind", record.SourceKind),
		zap.String("source_instance", record.SourceInstanceID),
		zap.String("external_id", record.ExternalID),
		zap.String("decision", string(d.Kind)),
		zap.String("entity", d.EntityID),
	)
	return d
}

func (h *Heuristic) findCorrelation(record *domain.SourceRecord) Decision {
	v := match.Normalize(*record)

	if own := h.snapshot.ByInstance(record.SourceInstanceID); len(own) > 0 {
		if c, ok := h.FindSuitableNewest(v, selfPredicates, own); ok {
			record.ExternalID = c.Record.ExternalID
			return Decision{Kind: DecisionSelfCorrelated, EntityID: c.EntityID}
		}
	}

	record.ExternalID = h.newID()

	c, ok := h.FindSuitableNewestByIP(v, crossPredicates)
	if !ok {
		c, ok = h.FindSuitableNoIPContradiction(v, crossFallbackPredicates, nil)
	}
	if ok {
		if entity, found := h.snapshot.Entity(c.EntityID); found {
			if same := entity.RecordsOfKind(record.SourceKind); len(same) > 0 {
				record.ExternalID = same[0].ExternalID
				return Decision{Kind: DecisionAdopted, EntityID: c.EntityID}
			}
		}

		edge := domain.CorrelationEdge{
			Left:          record.Ref(),
			Right:         c.Record.Ref(),
			Reason:        domain.ReasonLogic,
			Justification: justify(v, c.View),
		}
		if err := edge.Validate(); err != nil {
			h.logger.Error("Rejected correlation edge", zap.Error(err))
			edgesRejected.Inc()
			return Decision{Kind: DecisionStandalone}
		}
		return Decision{Kind: DecisionCorrelated, EntityID: c.EntityID, Edge: &edge}
	}

	if v.HasIdentity() {
		return Decision{Kind: DecisionStandalone}
	}
	return Decision{Kind: DecisionDiscarded}
}

// justify describes the evidence shared by two views
func justify(a, b match.View) string {
	var evidence []string
	if match.MACsOverlap(a, b) {
		evidence = append(evidence, "MAC address")
	}
	if match.HostnameEquals(a, b) {
		evidence = append(evidence, fmt.Sprintf("hostname %q", a.Hostname))
	}
	if len(a.IPs) > 0 && len(b.IPs) > 0 && match.IPDoesNotContradict(a, b) {
		evidence = append(evidence, "IP address")
	}
	if len(evidence) == 0 {
		evidence = append(evidence, "no contradicting identity")
	}
	return fmt.Sprintf("%s record matches %s record on %s",
		a.SourceKind, b.SourceKind, strings.Join(evidence, ", "))
}
