// Package lifecycle orchestrates dataset version state: creation,
// processing, dimension mapping between consecutive versions, publish,
// withdrawal and deletion.
//
// The package owns an in-memory registry of datasets and versions
// guarded by a mutex; the catalogue of record lives with the calling
// system. All file-level effects go through internal/store, so a
// version's directory is only ever touched by its own pipeline run.
package lifecycle
