package lifecycle

import (
	"fmt"
	"sort"

	"github.com/openstats/factstore/internal/model"
)

// Snapshot carries the registry contents so an embedding system can
// persist them between processes. The manager itself never touches
// disk for registry state.
type Snapshot struct {
	DataSets []model.DataSet `json:"dataSets"`
	Versions []VersionRecord `json:"versions"`
}

// VersionRecord pairs a version with the changelog its processing run
// produced, if any.
type VersionRecord struct {
	Version   model.DataSetVersion `json:"version"`
	Changelog *Changelog           `json:"changelog,omitempty"`
}

// Snapshot returns a copy of the current registry contents, datasets
// ordered by id and versions by (dataset id, version number).
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	var snap Snapshot
	for _, ds := range m.datasets {
		snap.DataSets = append(snap.DataSets, ds)
	}
	sortDataSets(snap.DataSets)

	for _, state := range m.versions {
		rec := VersionRecord{Version: state.version}
		if state.changelog != nil {
			clone := *state.changelog
			clone.Entries = append([]ChangeEntry(nil), state.changelog.Entries...)
			rec.Changelog = &clone
		}
		snap.Versions = append(snap.Versions, rec)
	}
	sortVersionRecords(snap.Versions)
	return snap
}

// Restore replaces the registry contents with a previously taken
// snapshot. Every version must reference a dataset in the snapshot.
func (m *Manager) Restore(snap Snapshot) error {
	datasets := make(map[string]model.DataSet, len(snap.DataSets))
	for _, ds := range snap.DataSets {
		datasets[ds.ID] = ds
	}

	versions := make(map[string]*versionState, len(snap.Versions))
	byInstance := make(map[string]string, len(snap.Versions))
	for _, rec := range snap.Versions {
		if _, ok := datasets[rec.Version.DataSetID]; !ok {
			return fmt.Errorf("restore: version %s references unknown dataset %s",
				rec.Version.ID, rec.Version.DataSetID)
		}
		versions[rec.Version.ID] = &versionState{
			version:   rec.Version,
			changelog: rec.Changelog,
		}
		if rec.Version.InstanceID != "" {
			byInstance[rec.Version.InstanceID] = rec.Version.ID
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.datasets = datasets
	m.versions = versions
	m.byInstance = byInstance
	return nil
}

func sortDataSets(ds []model.DataSet) {
	sort.Slice(ds, func(i, j int) bool { return ds[i].ID < ds[j].ID })
}

func sortVersionRecords(recs []VersionRecord) {
	sort.Slice(recs, func(i, j int) bool {
		a, b := recs[i].Version, recs[j].Version
		if a.DataSetID != b.DataSetID {
			return a.DataSetID < b.DataSetID
		}
		return a.Version.Compare(b.Version) < 0
	})
}
