// Package repository defines the data access interfaces for assetlens.
//
// The store plays the caller role around the correlators: it holds the
// entities a pass runs against, records the outcome of heuristic decisions
// and keeps the edges and warnings the correlators emit. It never merges
// entities on its own.
//
// # SQLite Implementation
//
// The sqlite subpackage implements Repository on modernc.org/sqlite with
// WAL mode. The schema is created on startup. A record row is unique per
// (entity, source instance); storing a second external id for the same
// instance on an entity fails with ErrInstanceConflict.
package repository
