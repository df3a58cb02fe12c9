// Package handler implements the HTTP API over the correlation store.
//
// Entities, edges, warnings and registered sources are read-only resources.
// Scanner and execution passes are triggered with POST /api/passes/{pass};
// the full report is exported with GET /api/export/{json|yaml}.
//
// Errors are returned as JSON with {error, details} and an appropriate status.
// Live events are served separately by the hub package.
package handler
