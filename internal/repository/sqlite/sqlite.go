package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"assetlens/internal/domain"
	"assetlens/internal/repository"
)

// Repository implements repository.Repository using SQLite
type Repository struct {
	db  *sql.DB
	now func() time.Time
}

var _ repository.Repository = (*Repository)(nil)

// New creates a new SQLite repository and migrates its schema
func New(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps per-connection pragmas and in-memory databases stable
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	repo := &Repository{db: db, now: time.Now}
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return repo, nil
}

func (r *Repository) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS entities (
		id TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS records (
		entity_id TEXT NOT NULL,
		source_kind TEXT NOT NULL,
		source_instance_id TEXT NOT NULL,
		external_id TEXT NOT NULL,
		hostname TEXT,
		macs JSON,
		ips JSON,
		os TEXT,
		last_seen DATETIME NOT NULL,
		PRIMARY KEY (entity_id, source_instance_id),
		FOREIGN KEY (entity_id) REFERENCES entities(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS edges (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		left_kind TEXT NOT NULL,
		left_instance TEXT NOT NULL DEFAULT '',
		left_external TEXT NOT NULL,
		right_kind TEXT NOT NULL,
		right_instance TEXT NOT NULL DEFAULT '',
		right_external TEXT NOT NULL,
		reason TEXT NOT NULL,
		justification TEXT,
		created_at DATETIME NOT NULL,
		UNIQUE (left_kind, left_instance, left_external,
			right_kind, right_instance, right_external, reason)
	);

	CREATE TABLE IF NOT EXISTS warnings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		message TEXT NOT NULL,
		vals JSON,
		entity_id TEXT,
		raised_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_records_instance ON records(source_instance_id, external_id);
	CREATE INDEX IF NOT EXISTS idx_warnings_entity ON warnings(entity_id);
	`

	_, err := r.db.Exec(schema)
	return err
}

// LoadEntities returns every entity with its records in insertion order
func (r *Repository) LoadEntities(ctx context.Context) ([]domain.Entity, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM entities ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}

	var entities []domain.Entity
	index := make(map[string]int)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		index[id] = len(entities)
		entities = append(entities, domain.Entity{ID: id})
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entities: %w", err)
	}

	records, err := r.queryRecords(ctx, `SELECT `+recordColumns+` FROM records ORDER BY rowid`)
	if err != nil {
		return nil, err
	}
	for _, row := range records {
		i, ok := index[row.entityID]
		if !ok {
			continue
		}
		entities[i].Records = append(entities[i].Records, row.record)
	}

	return entities, nil
}

// GetEntity returns one entity by id
func (r *Repository) GetEntity(ctx context.Context, id string) (*domain.Entity, error) {
	var exists int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM entities WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("entity %s: %w", id, repository.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query entity: %w", err)
	}

	records, err := r.queryRecords(ctx,
		`SELECT `+recordColumns+` FROM records WHERE entity_id = ? ORDER BY rowid`, id)
	if err != nil {
		return nil, err
	}

	entity := &domain.Entity{ID: id}
	for _, row := range records {
		entity.Records = append(entity.Records, row.record)
	}
	return entity, nil
}

type scannedRecord struct {
	entityID string
	record   domain.SourceRecord
}

func (r *Repository) queryRecords(ctx context.Context, query string, args ...interface{}) ([]scannedRecord, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var out []scannedRecord
	for rows.Next() {
		var row recordRow
		if err := rows.Scan(row.scanArgs()...); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		rec, err := row.toDomain()
		if err != nil {
			return nil, fmt.Errorf("record %s/%s: %w", row.SourceInstanceID, row.ExternalID, err)
		}
		out = append(out, scannedRecord{entityID: row.EntityID, record: rec})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}
	return out, nil
}

// UpsertRecord stores a record on an entity, creating the entity if needed.
// A record of the same instance with the same external id is updated in place;
// a different external id fails with repository.ErrInstanceConflict.
func (r *Repository) UpsertRecord(ctx context.Context, entityID string, record domain.SourceRecord) error {
	if entityID == "" {
		return fmt.Errorf("entity id is required")
	}
	if record.SourceKind == "" || record.SourceInstanceID == "" || record.ExternalID == "" {
		return fmt.Errorf("record needs source kind, instance and external id")
	}

	args, err := recordInsertArgs(entityID, record)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var existing string
	err = tx.QueryRowContext(ctx,
		`SELECT external_id FROM records WHERE entity_id = ? AND source_instance_id = ?`,
		entityID, record.SourceInstanceID,
	).Scan(&existing)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return fmt.Errorf("failed to query record: %w", err)
	case existing != record.ExternalID:
		return fmt.Errorf("entity %s instance %s holds %s, refusing %s: %w",
			entityID, record.SourceInstanceID, existing, record.ExternalID, repository.ErrInstanceConflict)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO entities (id, created_at) VALUES (?, ?)`,
		entityID, r.now().UTC(),
	); err != nil {
		return fmt.Errorf("failed to insert entity: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO records (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (entity_id, source_instance_id) DO UPDATE SET
			source_kind = excluded.source_kind,
			hostname = excluded.hostname,
			macs = excluded.macs,
			ips = excluded.ips,
			os = excluded.os,
			last_seen = excluded.last_seen
	`, args...); err != nil {
		return fmt.Errorf("failed to upsert record: %w", err)
	}

	return tx.Commit()
}

// SaveEdges stores edges, skipping ones already stored, and returns how many were new
func (r *Repository) SaveEdges(ctx context.Context, edges []domain.CorrelationEdge) (int, error) {
	if len(edges) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO edges (`+edgeColumns+`, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare edge insert: %w", err)
	}
	defer stmt.Close()

	now := r.now().UTC()
	inserted := 0
	for _, edge := range edges {
		if err := edge.Validate(); err != nil {
			return 0, fmt.Errorf("invalid edge %s -> %s: %w", edge.Left, edge.Right, err)
		}
		res, err := stmt.ExecContext(ctx, append(edgeInsertArgs(edge), now)...)
		if err != nil {
			return 0, fmt.Errorf("failed to insert edge: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit edges: %w", err)
	}
	return inserted, nil
}

// SaveWarnings appends warnings
func (r *Repository) SaveWarnings(ctx context.Context, warnings []domain.Warning) error {
	if len(warnings) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, w := range warnings {
		values, err := marshalList(w.Values)
		if err != nil {
			return fmt.Errorf("marshal warning values: %w", err)
		}
		raised := w.RaisedAt
		if raised.IsZero() {
			raised = r.now()
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO warnings (`+warningColumns+`) VALUES (?, ?, ?, ?, ?)`,
			string(w.Kind), w.Message, values, stringToNull(w.EntityID), raised.UTC(),
		); err != nil {
			return fmt.Errorf("failed to insert warning: %w", err)
		}
	}

	return tx.Commit()
}

// ListEdges returns stored edges in insertion order
func (r *Repository) ListEdges(ctx context.Context) ([]domain.CorrelationEdge, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+edgeColumns+` FROM edges ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query edges: %w", err)
	}
	defer rows.Close()

	var edges []domain.CorrelationEdge
	for rows.Next() {
		var row edgeRow
		if err := rows.Scan(row.scanArgs()...); err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		edges = append(edges, row.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating edges: %w", err)
	}
	return edges, nil
}

// ListWarnings returns stored warnings in insertion order
func (r *Repository) ListWarnings(ctx context.Context) ([]domain.Warning, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+warningColumns+` FROM warnings ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query warnings: %w", err)
	}
	defer rows.Close()

	var warnings []domain.Warning
	for rows.Next() {
		var row warningRow
		if err := rows.Scan(row.scanArgs()...); err != nil {
			return nil, fmt.Errorf("failed to scan warning: %w", err)
		}
		w, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		warnings = append(warnings, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating warnings: %w", err)
	}
	return warnings, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.db.Close()
}
