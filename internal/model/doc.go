// Package model defines the core domain types shared across the
// factstore: datasets, immutable dataset versions and their status
// machine, dimension metadata (filters, locations, indicators, time
// periods) and the id/public-id pairing used to reference dimension
// options stably across versions.
//
// Types in this package are plain values. Persistence lives in
// internal/store and internal/columnar; orchestration in
// internal/lifecycle.
package model
