// Package adapter connects assetlens to the data sources it correlates.
//
// A Source is one running instance of a connector. Scanner sources (nmap
// and the TCP connect scanner) report what they observed on the network and
// can only be correlated heuristically. Other sources expose an execution channel: the SSHExecutor
// runs each source kind's identification command on the asset itself so the
// execution correlator can learn cross-source identifiers directly.
//
// # Registry
//
// Registry keeps the registered source instances, answers per-instance
// command table lookups and dispatches identification output to the parser
// registered for each source kind.
//
// # Command Tables
//
// DefaultCorrelationCommands holds the identification command of each known
// source kind per OS type. Configured tables override them per instance.
package adapter
