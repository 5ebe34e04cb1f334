package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openstats/factstore/internal/model"
	"github.com/openstats/factstore/internal/store"
)

// Source supplies the extracted content of one version: dimension
// metadata with internal ids already assigned, plus the facts rows.
// Production wires internal/ingest here; tests feed literals.
type Source interface {
	Extract(ctx context.Context) (store.VersionData, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context) (store.VersionData, error)

func (f SourceFunc) Extract(ctx context.Context) (store.VersionData, error) {
	return f(ctx)
}

// Manager owns the dataset/version registry and drives every status
// transition. All registry access goes through its mutex; file writes
// are version-exclusive so they happen outside the lock.
type Manager struct {
	store  *store.Store
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
	policy MappingPolicy

	mu         sync.Mutex
	datasets   map[string]model.DataSet
	versions   map[string]*versionState
	byInstance map[string]string
}

type versionState struct {
	version   model.DataSetVersion
	changelog *Changelog
}

// Option configures manager construction.
type Option func(*Manager)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithClock overrides the wall clock. Tests pin it.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithIDGenerator overrides entity id generation. Tests pin it.
func WithIDGenerator(newID func() string) Option {
	return func(m *Manager) { m.newID = newID }
}

// WithMappingPolicy overrides the dimension mapping policy. Defaults
// to StructuralMatchPolicy.
func WithMappingPolicy(policy MappingPolicy) Option {
	return func(m *Manager) { m.policy = policy }
}

// NewManager creates a Manager over the given store.
func NewManager(s *store.Store, opts ...Option) *Manager {
	m := &Manager{
		store:      s,
		logger:     slog.Default(),
		now:        time.Now,
		newID:      func() string { return uuid.Must(uuid.NewV7()).String() },
		policy:     StructuralMatchPolicy{},
		datasets:   map[string]model.DataSet{},
		versions:   map[string]*versionState{},
		byInstance: map[string]string{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateResult identifies the entities a create call produced (or,
// on idempotent replay, produced earlier).
type CreateResult struct {
	DataSetID        string
	DataSetVersionID string
}

// InitialVersionRequest creates a new dataset with its first version.
type InitialVersionRequest struct {
	DataSetName    string
	DataSetSummary string
	ReleaseFileID  string

	// InstanceID is the idempotency key: repeating a request with the
	// same instance id returns the first call's result instead of
	// creating duplicates.
	InstanceID string
}

// CreateInitialVersion registers a new dataset and its Draft v1.0.
// Idempotent per InstanceID.
func (m *Manager) CreateInitialVersion(ctx context.Context, req InitialVersionRequest) (CreateResult, error) {
	if req.InstanceID == "" {
		return CreateResult{}, fmt.Errorf("create initial version: instance id required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if versionID, ok := m.byInstance[req.InstanceID]; ok {
		state := m.versions[versionID]
		return CreateResult{DataSetID: state.version.DataSetID, DataSetVersionID: versionID}, nil
	}

	ds := model.DataSet{
		ID:      m.newID(),
		Name:    req.DataSetName,
		Summary: req.DataSetSummary,
		Created: m.now(),
	}
	m.datasets[ds.ID] = ds

	version := model.DataSetVersion{
		ID:            m.newID(),
		DataSetID:     ds.ID,
		Version:       model.Version{Major: 1, Minor: 0},
		Status:        model.StatusDraft,
		ReleaseFileID: req.ReleaseFileID,
		InstanceID:    req.InstanceID,
		Created:       m.now(),
	}
	m.versions[version.ID] = &versionState{version: version}
	m.byInstance[req.InstanceID] = version.ID

	m.logger.InfoContext(ctx, "initial version created",
		"dataset_id", ds.ID,
		"version_id", version.ID,
		"release_file_id", req.ReleaseFileID,
	)

	return CreateResult{DataSetID: ds.ID, DataSetVersionID: version.ID}, nil
}

// NextVersionRequest creates a successor version of an existing
// dataset.
type NextVersionRequest struct {
	DataSetID     string
	ReleaseFileID string
	InstanceID    string
}

// CreateNextVersion registers a Draft successor of the dataset's
// latest published version. The version number starts as the next
// minor and is bumped to the next major during processing when the
// changelog shows breaking changes. Idempotent per InstanceID.
func (m *Manager) CreateNextVersion(ctx context.Context, req NextVersionRequest) (CreateResult, error) {
	if req.InstanceID == "" {
		return CreateResult{}, fmt.Errorf("create next version: instance id required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if versionID, ok := m.byInstance[req.InstanceID]; ok {
		state := m.versions[versionID]
		return CreateResult{DataSetID: state.version.DataSetID, DataSetVersionID: versionID}, nil
	}

	if _, ok := m.datasets[req.DataSetID]; !ok {
		return CreateResult{}, &NotFoundError{Kind: "dataset", ID: req.DataSetID}
	}
	prev, ok := m.latestPublishedLocked(req.DataSetID)
	if !ok {
		return CreateResult{}, fmt.Errorf("create next version: dataset %s has no published version", req.DataSetID)
	}

	version := model.DataSetVersion{
		ID:            m.newID(),
		DataSetID:     req.DataSetID,
		Version:       prev.Version.NextMinor(),
		Status:        model.StatusDraft,
		ReleaseFileID: req.ReleaseFileID,
		InstanceID:    req.InstanceID,
		Created:       m.now(),
	}
	m.versions[version.ID] = &versionState{version: version}
	m.byInstance[req.InstanceID] = version.ID

	m.logger.InfoContext(ctx, "next version created",
		"dataset_id", req.DataSetID,
		"version_id", version.ID,
		"base_version", prev.Version.String(),
	)

	return CreateResult{DataSetID: req.DataSetID, DataSetVersionID: version.ID}, nil
}

// GetVersion returns a snapshot of one version's registry entry.
func (m *Manager) GetVersion(versionID string) (model.DataSetVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.versions[versionID]
	if !ok {
		return model.DataSetVersion{}, &NotFoundError{Kind: "version", ID: versionID}
	}
	return state.version, nil
}

// ListVersions returns a dataset's versions ordered by version
// number.
func (m *Manager) ListVersions(dataSetID string) ([]model.DataSetVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.datasets[dataSetID]; !ok {
		return nil, &NotFoundError{Kind: "dataset", ID: dataSetID}
	}

	var versions []model.DataSetVersion
	for _, state := range m.versions {
		if state.version.DataSetID == dataSetID {
			versions = append(versions, state.version)
		}
	}
	sort.Slice(versions, func(i, j int) bool {
		return versions[i].Version.Compare(versions[j].Version) < 0
	})
	return versions, nil
}

// GetChangelog returns the mapping changelog a next version produced
// during processing. Initial versions have none.
func (m *Manager) GetChangelog(versionID string) (*Changelog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.versions[versionID]
	if !ok {
		return nil, &NotFoundError{Kind: "version", ID: versionID}
	}
	if state.changelog == nil {
		return nil, fmt.Errorf("version %s has no changelog", versionID)
	}
	clone := *state.changelog
	clone.Entries = append([]ChangeEntry(nil), state.changelog.Entries...)
	return &clone, nil
}

// WithdrawVersion takes a published version out of service. Its files
// stay on disk.
func (m *Manager) WithdrawVersion(ctx context.Context, versionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.versions[versionID]
	if !ok {
		return &NotFoundError{Kind: "version", ID: versionID}
	}
	if err := state.version.Transition(model.StatusWithdrawn, m.now()); err != nil {
		return err
	}

	m.logger.InfoContext(ctx, "version withdrawn",
		"dataset_id", state.version.DataSetID,
		"version_id", versionID,
	)
	return nil
}

// transition applies one status change under the lock.
func (m *Manager) transition(versionID string, to model.VersionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	state, ok := m.versions[versionID]
	if !ok {
		return &NotFoundError{Kind: "version", ID: versionID}
	}
	return state.version.Transition(to, m.now())
}

// latestPublishedLocked returns the highest-numbered Published
// version of a dataset. Callers hold the mutex.
func (m *Manager) latestPublishedLocked(dataSetID string) (model.DataSetVersion, bool) {
	var best model.DataSetVersion
	found := false
	for _, state := range m.versions {
		v := state.version
		if v.DataSetID != dataSetID || v.Status != model.StatusPublished {
			continue
		}
		if !found || v.Version.Compare(best.Version) > 0 {
			best = v
			found = true
		}
	}
	return best, found
}
