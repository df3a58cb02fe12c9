// Package service runs correlation passes against the store.
//
// CorrelationService is the caller the correlators expect: it builds the
// snapshot, applies heuristic decisions by storing records onto entities,
// and persists the edges and warnings both correlators emit. Merging
// entities along edges is left to consumers of the stored edges.
//
// # Event System
//
// Every stored edge and warning is published on the EventBus, followed by
// one EventPassCompleted per pass. Slow subscribers miss events rather than
// block a pass.
package service
