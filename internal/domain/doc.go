// Package domain defines the data model shared by the correlators.
//
// A SourceRecord is one asset as reported by one source instance. An Entity
// groups the records the caller believes denote the same real asset, at most
// one per source instance. Correlators never merge entities; they propose
// CorrelationEdge values joining two records of different source kinds, and
// raise Warning values for anomalies such as contradictions and timeouts.
//
// OSType classifies free-form OS strings so identification commands can be
// chosen per platform.
package domain
