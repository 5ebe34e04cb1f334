// Package store persists one dataset version's tabular data and
// serves column-projected, predicate-filtered, paginated reads
// against it.
//
// Each version owns an exclusive directory (resolved by
// internal/paths) holding five parquet files - the canonical columnar
// artifacts - plus a SQLite query database built from the same rows
// during processing. Reads run parameterised SQL against the query
// database; the parquet files are the interchange format consumed by
// bulk downloads and by next-version mapping.
//
// Versions are immutable once published, so reads need no locking and
// are safe across arbitrarily many concurrent callers. A version
// whose files are absent or unreadable fails every read with
// *NotReadyError, which is distinct from an empty-but-successful
// result.
package store
