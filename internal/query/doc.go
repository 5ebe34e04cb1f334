// Package query defines the request model for querying a dataset
// version: the list of requested indicators plus a recursive boolean
// criteria tree (facet leaves composed with and/or/not) describing
// which observation rows to select.
//
// The criteria tree is a sealed sum type - only types in this package
// implement Criteria - so consumers (the normaliser here, the SQL
// lowering in internal/querysql, the engine) can type-switch
// exhaustively. An unknown node kind is a programming error, reported
// as *UnsupportedCriteriaError, never silently skipped.
//
// Normalise produces a canonical form of a request: sorted option
// lists and deterministically ordered boolean children. Semantically
// identical requests normalise to identical values, which makes the
// canonical JSON serialization (MarshalCanonical) usable as a cache
// key and for deduplicating stored permalinked queries.
package query
