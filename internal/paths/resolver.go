// Package paths maps a dataset version to its storage directory and
// per-table file paths. Resolution is a pure function of the
// configured base path plus (dataset id, version) - no I/O, no
// caching, no environment inspection after construction.
package paths

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/openstats/factstore/internal/model"
)

// Table file names inside a version directory. The five parquet
// files are the canonical columnar artifacts; the query database is
// built from them during processing and serves reads.
const (
	DataFile        = "data.parquet"
	FiltersFile     = "filters.parquet"
	IndicatorsFile  = "indicators.parquet"
	LocationsFile   = "locations.parquet"
	TimePeriodsFile = "time_periods.parquet"
	QueryDBFile     = "data.sqlite"
)

// Config selects the storage root. The base path source differs by
// deployment (local scratch directory in development, mounted share
// in production) but that choice is made once by the caller; the
// resolver never inspects the environment itself.
type Config struct {
	BasePath string
}

// Resolver computes version directory and file paths.
type Resolver struct {
	basePath string
}

// NewResolver validates the configuration and returns a resolver.
// A blank base path is a configuration error and fails here, at
// construction - silently defaulting it would scatter version
// directories somewhere unintended.
func NewResolver(cfg Config) (*Resolver, error) {
	if strings.TrimSpace(cfg.BasePath) == "" {
		return nil, fmt.Errorf("paths: base path must not be blank")
	}
	return &Resolver{basePath: filepath.Clean(cfg.BasePath)}, nil
}

// DirectoryPath returns the directory holding one version's files:
// <base>/<datasetID>/v<major>.<minor>.
func (r *Resolver) DirectoryPath(datasetID string, version model.Version) string {
	return filepath.Join(r.basePath, datasetID, version.DirName())
}

// DataPath returns the facts table parquet path.
func (r *Resolver) DataPath(datasetID string, version model.Version) string {
	return filepath.Join(r.DirectoryPath(datasetID, version), DataFile)
}

// FiltersPath returns the filter options parquet path.
func (r *Resolver) FiltersPath(datasetID string, version model.Version) string {
	return filepath.Join(r.DirectoryPath(datasetID, version), FiltersFile)
}

// IndicatorsPath returns the indicators parquet path.
func (r *Resolver) IndicatorsPath(datasetID string, version model.Version) string {
	return filepath.Join(r.DirectoryPath(datasetID, version), IndicatorsFile)
}

// LocationsPath returns the location options parquet path.
func (r *Resolver) LocationsPath(datasetID string, version model.Version) string {
	return filepath.Join(r.DirectoryPath(datasetID, version), LocationsFile)
}

// TimePeriodsPath returns the time periods parquet path.
func (r *Resolver) TimePeriodsPath(datasetID string, version model.Version) string {
	return filepath.Join(r.DirectoryPath(datasetID, version), TimePeriodsFile)
}

// QueryDBPath returns the version's query database path.
func (r *Resolver) QueryDBPath(datasetID string, version model.Version) string {
	return filepath.Join(r.DirectoryPath(datasetID, version), QueryDBFile)
}
