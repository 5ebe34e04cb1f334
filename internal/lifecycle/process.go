package lifecycle

import (
	"context"
	"fmt"
	"os"

	"github.com/openstats/factstore/internal/model"
	"github.com/openstats/factstore/internal/store"
)

// ProcessVersion runs a Draft version through the pipeline: extract
// the source content, reconcile dimensions against the previous
// published version (next versions only), write the columnar files,
// and publish - or park the version in Mapping when flags need manual
// resolution.
//
// Any stage error transitions the version to Failed and removes its
// directory; previously published versions live in their own
// directories and are never touched.
func (m *Manager) ProcessVersion(ctx context.Context, versionID string, source Source) error {
	if err := m.transition(versionID, model.StatusProcessing); err != nil {
		return err
	}

	data, err := source.Extract(ctx)
	if err != nil {
		return m.failVersion(ctx, versionID, "extract", err)
	}

	prev, hasPrev := m.previousPublished(versionID)
	if hasPrev {
		if err := m.reconcile(ctx, versionID, prev, data); err != nil {
			return m.failVersion(ctx, versionID, "mapping", err)
		}
	}

	version, err := m.GetVersion(versionID)
	if err != nil {
		return err
	}
	if err := m.store.WriteDataFiles(ctx, version, data); err != nil {
		return m.failVersion(ctx, versionID, "write", err)
	}

	m.mu.Lock()
	state := m.versions[versionID]
	unresolved := 0
	if state.changelog != nil {
		unresolved = state.changelog.Unresolved()
	}
	next := model.StatusPublished
	if unresolved > 0 {
		next = model.StatusMapping
	}
	err = state.version.Transition(next, m.now())
	m.mu.Unlock()
	if err != nil {
		return m.failVersion(ctx, versionID, "transition", err)
	}

	m.logger.InfoContext(ctx, "version processed",
		"dataset_id", version.DataSetID,
		"version_id", versionID,
		"version", version.Version.String(),
		"status", string(next),
		"unresolved_flags", unresolved,
	)
	return nil
}

// reconcile builds the changelog against the previous published
// version and renumbers the new version to the next major when the
// changelog carries breaking changes. Runs before any file is
// written, so the version directory matches the final number.
func (m *Manager) reconcile(ctx context.Context, versionID string, prev model.DataSetVersion, data store.VersionData) error {
	prevOptions, err := m.store.ListFilterOptions(ctx, prev)
	if err != nil {
		return fmt.Errorf("read previous filter options: %w", err)
	}
	prevLocations, err := m.store.ListLocations(ctx, prev)
	if err != nil {
		return fmt.Errorf("read previous locations: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	state := m.versions[versionID]
	number := prev.Version.NextMinor()
	changelog := BuildChangelog(
		state.version.DataSetID,
		prev.Version, number,
		prevOptions, data.FilterOptions,
		prevLocations, data.Locations,
		m.policy,
	)
	if changelog.HasBreakingChanges() {
		number = prev.Version.NextMajor()
		changelog.ToVersion = number
	}
	state.version.Version = number
	state.changelog = changelog
	return nil
}

// previousPublished finds the published version a next version maps
// against. Initial versions have none.
func (m *Manager) previousPublished(versionID string) (model.DataSetVersion, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.versions[versionID]
	if !ok {
		return model.DataSetVersion{}, false
	}
	return m.latestPublishedLocked(state.version.DataSetID)
}

// failVersion marks the version Failed, removes its directory and
// wraps the stage error. Failure of one version never touches the
// files of any other.
func (m *Manager) failVersion(ctx context.Context, versionID, stage string, cause error) error {
	m.mu.Lock()
	state, ok := m.versions[versionID]
	var version model.DataSetVersion
	if ok {
		// Ignore the transition error: a version that cannot reach
		// Failed is already terminal.
		_ = state.version.Transition(model.StatusFailed, m.now())
		version = state.version
	}
	m.mu.Unlock()

	if ok {
		dir := m.store.Resolver().DirectoryPath(version.DataSetID, version.Version)
		if err := os.RemoveAll(dir); err != nil {
			m.logger.ErrorContext(ctx, "failed version cleanup",
				"version_id", versionID, "dir", dir, "error", err)
		}
	}

	m.logger.ErrorContext(ctx, "version processing failed",
		"version_id", versionID,
		"stage", stage,
		"error", cause,
	)
	return &ProcessingError{DataSetVersionID: versionID, Stage: stage, Err: cause}
}

// ResolveMapping settles one flagged changelog entry of a version in
// Mapping: mapTo names the next-version public id to map onto, or
// empty confirms the option's removal.
func (m *Manager) ResolveMapping(ctx context.Context, versionID string, kind MappingKind, prevPublicID, mapTo string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.versions[versionID]
	if !ok {
		return &NotFoundError{Kind: "version", ID: versionID}
	}
	if state.version.Status != model.StatusMapping {
		return &model.StateError{
			DataSetVersionID: versionID,
			From:             state.version.Status,
			To:               model.StatusMapping,
		}
	}
	if err := state.changelog.resolveEntry(kind, prevPublicID, mapTo); err != nil {
		return fmt.Errorf("resolve mapping for version %s: %w", versionID, err)
	}

	m.logger.InfoContext(ctx, "mapping resolved",
		"version_id", versionID,
		"kind", string(kind),
		"previous_public_id", prevPublicID,
		"mapped_to", mapTo,
	)
	return nil
}

// PublishVersion moves a version out of Mapping once every flag is
// resolved.
func (m *Manager) PublishVersion(ctx context.Context, versionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.versions[versionID]
	if !ok {
		return &NotFoundError{Kind: "version", ID: versionID}
	}
	if state.changelog != nil {
		if unresolved := state.changelog.Unresolved(); unresolved > 0 {
			return &UnresolvedMappingError{DataSetVersionID: versionID, Unresolved: unresolved}
		}
	}
	if err := state.version.Transition(model.StatusPublished, m.now()); err != nil {
		return err
	}

	m.logger.InfoContext(ctx, "version published",
		"dataset_id", state.version.DataSetID,
		"version_id", versionID,
		"version", state.version.Version.String(),
	)
	return nil
}
