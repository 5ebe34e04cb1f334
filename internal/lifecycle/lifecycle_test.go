package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openstats/factstore/internal/columnar"
	"github.com/openstats/factstore/internal/model"
	"github.com/openstats/factstore/internal/paths"
	"github.com/openstats/factstore/internal/store"
	"github.com/openstats/factstore/internal/testutil"
)

func quietLogger() *slog.Logger {
	return testutil.QuietLogger()
}

// sequentialIDs yields id-1, id-2, ...
func sequentialIDs() func() string {
	return testutil.SequentialIDs("id-")
}

func fixedClock() func() time.Time {
	return testutil.FixedClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	resolver, err := paths.NewResolver(paths.Config{BasePath: t.TempDir()})
	require.NoError(t, err)
	return NewManager(store.New(resolver),
		WithLogger(quietLogger()),
		WithClock(fixedClock()),
		WithIDGenerator(sequentialIDs()),
	)
}

func v1Data() store.VersionData {
	return store.VersionData{
		Filters: map[string]model.Filter{
			"school_type": {Column: "school_type", Label: "School type"},
		},
		FilterOptions: []model.FilterOption{
			{ID: 1, PublicID: "sch-prim", Column: "school_type", Label: "Primary"},
			{ID: 2, PublicID: "sch-sec", Column: "school_type", Label: "Secondary"},
		},
		Locations: []model.LocationOption{
			{ID: 1, PublicID: "loc-eng", Level: model.LevelCountry, Code: "E92000001", Name: "England"},
		},
		Indicators: []model.Indicator{
			{ID: "pupils", Label: "Number of pupils"},
		},
		TimePeriods: []model.TimePeriod{
			{ID: 1, Code: "AY", Period: "2020/21", Ordinal: 202000},
		},
		Facts: []columnar.FactRow{
			{RowID: 1, GeographicLevel: "NAT", LocationID: 1, TimePeriodID: 1,
				FilterIDs:  map[string]int64{"school_type": 1},
				Indicators: map[string]string{"pupils": "4500"}},
			{RowID: 2, GeographicLevel: "NAT", LocationID: 1, TimePeriodID: 1,
				FilterIDs:  map[string]int64{"school_type": 2},
				Indicators: map[string]string{"pupils": "3700"}},
		},
	}
}

func literalSource(data store.VersionData) Source {
	return SourceFunc(func(context.Context) (store.VersionData, error) {
		return data, nil
	})
}

// publishInitial creates and processes a first version, returning its
// ids.
func publishInitial(t *testing.T, m *Manager) CreateResult {
	t.Helper()
	res, err := m.CreateInitialVersion(context.Background(), InitialVersionRequest{
		DataSetName:   "Pupil absence",
		ReleaseFileID: "release-1",
		InstanceID:    "instance-1",
	})
	require.NoError(t, err)
	require.NoError(t, m.ProcessVersion(context.Background(), res.DataSetVersionID, literalSource(v1Data())))
	return res
}

func TestCreateInitialVersionIdempotent(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	first, err := m.CreateInitialVersion(ctx, InitialVersionRequest{
		DataSetName: "Pupil absence", InstanceID: "instance-1",
	})
	require.NoError(t, err)

	again, err := m.CreateInitialVersion(ctx, InitialVersionRequest{
		DataSetName: "Pupil absence", InstanceID: "instance-1",
	})
	require.NoError(t, err)
	assert.Equal(t, first, again)

	other, err := m.CreateInitialVersion(ctx, InitialVersionRequest{
		DataSetName: "Pupil absence", InstanceID: "instance-2",
	})
	require.NoError(t, err)
	assert.NotEqual(t, first.DataSetVersionID, other.DataSetVersionID)

	_, err = m.CreateInitialVersion(ctx, InitialVersionRequest{DataSetName: "x"})
	assert.Error(t, err)
}

func TestProcessInitialVersionPublishes(t *testing.T) {
	m := newTestManager(t)
	res := publishInitial(t, m)

	version, err := m.GetVersion(res.DataSetVersionID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPublished, version.Status)
	assert.Equal(t, model.Version{Major: 1, Minor: 0}, version.Version)
	assert.Equal(t, fixedClock()(), version.Published)

	// Files exist where the resolver says they should.
	dir := m.store.Resolver().DirectoryPath(res.DataSetID, version.Version)
	_, err = os.Stat(dir)
	require.NoError(t, err)

	filters, err := m.store.Filters(context.Background(), version)
	require.NoError(t, err)
	assert.Len(t, filters, 1)
}

func TestCreateNextVersionRequiresPublished(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.CreateNextVersion(ctx, NextVersionRequest{
		DataSetID: "nope", InstanceID: "instance-9",
	})
	assert.True(t, IsNotFound(err))

	res, err := m.CreateInitialVersion(ctx, InitialVersionRequest{
		DataSetName: "Pupil absence", InstanceID: "instance-1",
	})
	require.NoError(t, err)

	// Still Draft: no published base version to build on.
	_, err = m.CreateNextVersion(ctx, NextVersionRequest{
		DataSetID: res.DataSetID, InstanceID: "instance-2",
	})
	assert.Error(t, err)
}

func TestProcessFailureIsolation(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	res := publishInitial(t, m)

	next, err := m.CreateNextVersion(ctx, NextVersionRequest{
		DataSetID: res.DataSetID, ReleaseFileID: "release-2", InstanceID: "instance-2",
	})
	require.NoError(t, err)

	failing := SourceFunc(func(context.Context) (store.VersionData, error) {
		return store.VersionData{}, fmt.Errorf("source file corrupt")
	})
	err = m.ProcessVersion(ctx, next.DataSetVersionID, failing)
	var pe *ProcessingError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "extract", pe.Stage)

	version, err := m.GetVersion(next.DataSetVersionID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, version.Status)

	// The published version is untouched and still readable.
	published, err := m.GetVersion(res.DataSetVersionID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPublished, published.Status)
	filters, err := m.store.Filters(ctx, published)
	require.NoError(t, err)
	assert.Len(t, filters, 1)
}

func TestProcessRejectsNonDraft(t *testing.T) {
	m := newTestManager(t)
	res := publishInitial(t, m)

	err := m.ProcessVersion(context.Background(), res.DataSetVersionID, literalSource(v1Data()))
	var se *model.StateError
	require.ErrorAs(t, err, &se)
}

func TestWithdrawVersion(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	res := publishInitial(t, m)

	require.NoError(t, m.WithdrawVersion(ctx, res.DataSetVersionID))
	version, err := m.GetVersion(res.DataSetVersionID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusWithdrawn, version.Status)

	// Withdrawn is terminal apart from deletion.
	err = m.WithdrawVersion(ctx, res.DataSetVersionID)
	var se *model.StateError
	require.ErrorAs(t, err, &se)
}

func TestListVersionsOrdered(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()
	res := publishInitial(t, m)

	next, err := m.CreateNextVersion(ctx, NextVersionRequest{
		DataSetID: res.DataSetID, ReleaseFileID: "release-2", InstanceID: "instance-2",
	})
	require.NoError(t, err)
	require.NoError(t, m.ProcessVersion(ctx, next.DataSetVersionID, literalSource(v2DataAdditive())))

	versions, err := m.ListVersions(res.DataSetID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, model.Version{Major: 1, Minor: 0}, versions[0].Version)
	assert.Equal(t, model.Version{Major: 1, Minor: 1}, versions[1].Version)

	_, err = m.ListVersions("nope")
	assert.True(t, IsNotFound(err))
}
