// Package engine executes queries against published dataset versions.
//
// The engine resolves a public-id criteria tree (internal/query) into
// an internal-id resolved tree (internal/querysql), compiles it to a
// parameterised SQL fragment, runs the paginated read through
// internal/store, and maps the raw rows back to public identifiers.
//
// Only Published versions are queryable. Every resolution failure is
// reported against the reference the caller sent, never against
// internal ids.
package engine
