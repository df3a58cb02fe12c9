package domain

import (
	"fmt"
	"time"
)

// Reason tags why a correlation edge was proposed
type Reason string

const (
	ReasonLogic     Reason = "Logic"     // heuristic match of scanner records
	ReasonExecution Reason = "Execution" // identifier returned by running a command on the asset
)

// RecordRef identifies one side of a correlation edge.
// SourceInstanceID may be empty when only the kind of the remote source is known.
type RecordRef struct {
	SourceKind       string `json:"source_kind"`
	SourceInstanceID string `json:"source_instance_id,omitempty"`
	ExternalID       string `json:"external_id"`
}

// String formats the ref for logs and justifications
func (r RecordRef) String() string {
	if r.SourceInstanceID == "" {
		return fmt.Sprintf("%s/%s", r.SourceKind, r.ExternalID)
	}
	return fmt.Sprintf("%s[%s]/%s", r.SourceKind, r.SourceInstanceID, r.ExternalID)
}

// CorrelationEdge proposes that two source records denote the same asset
type CorrelationEdge struct {
	Left          RecordRef `json:"left"`
	Right         RecordRef `json:"right"`
	Reason        Reason    `json:"reason"`
	Justification string    `json:"justification"`
}

// Validate rejects edges that would join two records of the same source kind.
// Same-kind identity is expressed by id adoption, never by an edge.
func (e CorrelationEdge) Validate() error {
	if e.Left.SourceKind == "" || e.Right.SourceKind == "" {
		return fmt.Errorf("edge side missing source kind: %s <-> %s", e.Left, e.Right)
	}
	if e.Left.ExternalID == "" || e.Right.ExternalID == "" {
		return fmt.Errorf("edge side missing external id: %s <-> %s", e.Left, e.Right)
	}
	if e.Left.SourceKind == e.Right.SourceKind {
		return fmt.Errorf("edge joins two records of source kind %s: %s <-> %s",
			e.Left.SourceKind, e.Left, e.Right)
	}
	return nil
}

// WarningKind classifies non-fatal anomalies raised during correlation
type WarningKind string

const (
	WarningContradiction    WarningKind = "CORRELATION_CONTRADICTION"
	WarningExecutionTimeout WarningKind = "EXECUTION_TIMEOUT"
)

// Warning is a non-fatal anomaly surfaced to operators
type Warning struct {
	Kind     WarningKind `json:"kind"`
	Message  string      `json:"message"`
	Values   []string    `json:"values,omitempty"`
	EntityID string      `json:"entity_id,omitempty"`
	RaisedAt time.Time   `json:"raised_at"`
}
