package lifecycle

import (
	"context"
	"fmt"
	"os"

	"github.com/openstats/factstore/internal/model"
)

// DeleteVersion removes one version's registry entry and directory.
// Published versions are refused; withdraw or bulk-delete with force
// instead.
func (m *Manager) DeleteVersion(ctx context.Context, versionID string) error {
	m.mu.Lock()
	state, ok := m.versions[versionID]
	if !ok {
		m.mu.Unlock()
		return &NotFoundError{Kind: "version", ID: versionID}
	}
	if !state.version.Status.IsDeletable() {
		m.mu.Unlock()
		return &DeleteRefusedError{DataSetVersionID: versionID, Status: state.version.Status}
	}
	version := state.version
	m.removeLocked(versionID)
	m.mu.Unlock()

	return m.removeFiles(ctx, version)
}

// BulkDeleteVersions removes every version created from one release
// file. Published versions are skipped unless forceDeleteAll is set.
// Returns the number of versions deleted.
func (m *Manager) BulkDeleteVersions(ctx context.Context, releaseFileID string, forceDeleteAll bool) (int, error) {
	m.mu.Lock()
	var doomed []model.DataSetVersion
	for id, state := range m.versions {
		if state.version.ReleaseFileID != releaseFileID {
			continue
		}
		if !state.version.Status.IsDeletable() && !forceDeleteAll {
			continue
		}
		doomed = append(doomed, state.version)
		m.removeLocked(id)
	}
	m.mu.Unlock()

	for _, version := range doomed {
		if err := m.removeFiles(ctx, version); err != nil {
			return len(doomed), err
		}
	}

	m.logger.InfoContext(ctx, "bulk delete",
		"release_file_id", releaseFileID,
		"force", forceDeleteAll,
		"deleted", len(doomed),
	)
	return len(doomed), nil
}

// removeLocked drops a version from the registry maps. Callers hold
// the mutex.
func (m *Manager) removeLocked(versionID string) {
	state := m.versions[versionID]
	delete(m.byInstance, state.version.InstanceID)
	delete(m.versions, versionID)
}

func (m *Manager) removeFiles(ctx context.Context, version model.DataSetVersion) error {
	dir := m.store.Resolver().DirectoryPath(version.DataSetID, version.Version)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("delete version %s: %w", version.ID, err)
	}
	m.logger.InfoContext(ctx, "version deleted",
		"dataset_id", version.DataSetID,
		"version_id", version.ID,
		"version", version.Version.String(),
	)
	return nil
}
