package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"assetlens/internal/domain"
)

// ============================================================================
// Null Type Conversion Helpers
// ============================================================================

// nullToString safely converts sql.NullString to string
func nullToString(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// stringToNull safely converts string to sql.NullString
func stringToNull(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// ============================================================================
// JSON Marshaling Helpers
// ============================================================================

// unmarshalJSONField safely unmarshals JSON from nullable string into target
func unmarshalJSONField(ns sql.NullString, target interface{}) error {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.Unmarshal([]byte(ns.String), target)
}

// marshalList marshals a string list to nullable JSON. Empty lists are stored as NULL.
func marshalList(list []string) (sql.NullString, error) {
	if len(list) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(list)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// ============================================================================
// Schema Evolution Guide
// ============================================================================
//
// To add a new column to the records table:
// 1. Add field to recordRow struct (below)
// 2. Update scanArgs() - APPEND to end to match column order
// 3. Update recordColumns constant - APPEND to end
// 4. Update toDomain() and recordInsertArgs()
// 5. Add the column in sqlite.go migrate()
//
// CRITICAL: Column order must match between recordColumns, scanArgs()
// and every SELECT using recordColumns. Same for edges and warnings.

// ============================================================================
// Record Row Scanner
// ============================================================================

// recordRow holds all columns from a record query for scanning
type recordRow struct {
	EntityID         string
	SourceKind       string
	SourceInstanceID string
	ExternalID       string
	Hostname         sql.NullString
	MACsJSON         sql.NullString
	IPsJSON          sql.NullString
	OS               sql.NullString
	LastSeen         time.Time
}

// scanArgs returns pointers to all fields for sql.Scan()
// MUST match recordColumns order exactly:
// entity_id, source_kind, source_instance_id, external_id, hostname,
// macs, ips, os, last_seen
func (r *recordRow) scanArgs() []interface{} {
	return []interface{}{
		&r.EntityID,         // 1
		&r.SourceKind,       // 2
		&r.SourceInstanceID, // 3
		&r.ExternalID,       // 4
		&r.Hostname,         // 5
		&r.MACsJSON,         // 6
		&r.IPsJSON,          // 7
		&r.OS,               // 8
		&r.LastSeen,         // 9
	}
}

// toDomain converts the scanned row to a domain.SourceRecord
func (r *recordRow) toDomain() (domain.SourceRecord, error) {
	rec := domain.SourceRecord{
		SourceKind:       r.SourceKind,
		SourceInstanceID: r.SourceInstanceID,
		ExternalID:       r.ExternalID,
		Hostname:         nullToString(r.Hostname),
		OS:               nullToString(r.OS),
		LastSeen:         r.LastSeen.UTC(),
	}
	if err := unmarshalJSONField(r.MACsJSON, &rec.MACs); err != nil {
		return rec, fmt.Errorf("unmarshal macs: %w", err)
	}
	if err := unmarshalJSONField(r.IPsJSON, &rec.IPs); err != nil {
		return rec, fmt.Errorf("unmarshal ips: %w", err)
	}
	return rec, nil
}

// recordColumns is the SELECT column list for record queries
const recordColumns = `entity_id, source_kind, source_instance_id, external_id,
	hostname, macs, ips, os, last_seen`

// recordInsertArgs prepares arguments for record INSERT/UPSERT, in recordColumns order
func recordInsertArgs(entityID string, rec domain.SourceRecord) ([]interface{}, error) {
	macs, err := marshalList(rec.MACs)
	if err != nil {
		return nil, fmt.Errorf("marshal macs: %w", err)
	}
	ips, err := marshalList(rec.IPs)
	if err != nil {
		return nil, fmt.Errorf("marshal ips: %w", err)
	}
	return []interface{}{
		entityID,
		rec.SourceKind,
		rec.SourceInstanceID,
		rec.ExternalID,
		stringToNull(rec.Hostname),
		macs,
		ips,
		stringToNull(rec.OS),
		rec.LastSeen.UTC(),
	}, nil
}

// ============================================================================
// Edge Row Scanner
// ============================================================================

// edgeRow holds all columns from an edge query for scanning
type edgeRow struct {
	LeftKind      string
	LeftInstance  sql.NullString
	LeftExternal  string
	RightKind     string
	RightInstance sql.NullString
	RightExternal string
	Reason        string
	Justification sql.NullString
}

// scanArgs returns pointers to all fields for sql.Scan()
// MUST match edgeColumns order exactly
func (r *edgeRow) scanArgs() []interface{} {
	return []interface{}{
		&r.LeftKind,      // 1
		&r.LeftInstance,  // 2
		&r.LeftExternal,  // 3
		&r.RightKind,     // 4
		&r.RightInstance, // 5
		&r.RightExternal, // 6
		&r.Reason,        // 7
		&r.Justification, // 8
	}
}

// toDomain converts the scanned row to a domain.CorrelationEdge
func (r *edgeRow) toDomain() domain.CorrelationEdge {
	return domain.CorrelationEdge{
		Left: domain.RecordRef{
			SourceKind:       r.LeftKind,
			SourceInstanceID: nullToString(r.LeftInstance),
			ExternalID:       r.LeftExternal,
		},
		Right: domain.RecordRef{
			SourceKind:       r.RightKind,
			SourceInstanceID: nullToString(r.RightInstance),
			ExternalID:       r.RightExternal,
		},
		Reason:        domain.Reason(r.Reason),
		Justification: nullToString(r.Justification),
	}
}

// edgeColumns is the SELECT column list for edge queries
const edgeColumns = `left_kind, left_instance, left_external,
	right_kind, right_instance, right_external, reason, justification`

// edgeInsertArgs prepares arguments for edge INSERT, in edgeColumns order.
// Missing instances are stored as empty strings so the unique key holds.
func edgeInsertArgs(edge domain.CorrelationEdge) []interface{} {
	return []interface{}{
		edge.Left.SourceKind,
		edge.Left.SourceInstanceID,
		edge.Left.ExternalID,
		edge.Right.SourceKind,
		edge.Right.SourceInstanceID,
		edge.Right.ExternalID,
		string(edge.Reason),
		stringToNull(edge.Justification),
	}
}

// ============================================================================
// Warning Row Scanner
// ============================================================================

// warningRow holds all columns from a warning query for scanning
type warningRow struct {
	Kind       string
	Message    string
	ValuesJSON sql.NullString
	EntityID   sql.NullString
	RaisedAt   time.Time
}

// scanArgs returns pointers to all fields for sql.Scan()
// MUST match warningColumns order exactly:
// kind, message, vals, entity_id, raised_at
func (r *warningRow) scanArgs() []interface{} {
	return []interface{}{
		&r.Kind,       // 1
		&r.Message,    // 2
		&r.ValuesJSON, // 3
		&r.EntityID,   // 4
		&r.RaisedAt,   // 5
	}
}

// toDomain converts the scanned row to a domain.Warning
func (r *warningRow) toDomain() (domain.Warning, error) {
	w := domain.Warning{
		Kind:     domain.WarningKind(r.Kind),
		Message:  r.Message,
		EntityID: nullToString(r.EntityID),
		RaisedAt: r.RaisedAt.UTC(),
	}
	if err := unmarshalJSONField(r.ValuesJSON, &w.Values); err != nil {
		return w, fmt.Errorf("unmarshal values: %w", err)
	}
	return w, nil
}

// warningColumns is the SELECT column list for warning queries
const warningColumns = `kind, message, vals, entity_id, raised_at`
