package lifecycle

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openstats/factstore/internal/model"
	"github.com/openstats/factstore/internal/paths"
	"github.com/openstats/factstore/internal/store"
)

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	resolver, err := paths.NewResolver(paths.Config{BasePath: t.TempDir()})
	require.NoError(t, err)
	st := store.New(resolver)

	m := NewManager(st,
		WithLogger(quietLogger()),
		WithClock(fixedClock()),
		WithIDGenerator(sequentialIDs()),
	)
	res := publishInitial(t, m)
	next := createNext(t, m, res.DataSetID)
	require.NoError(t, m.ProcessVersion(ctx, next.DataSetVersionID, literalSource(v2DataAdditive())))

	data, err := json.Marshal(m.Snapshot())
	require.NoError(t, err)
	var decoded Snapshot
	require.NoError(t, json.Unmarshal(data, &decoded))

	restored := NewManager(st, WithLogger(quietLogger()), WithClock(fixedClock()))
	require.NoError(t, restored.Restore(decoded))

	versions, err := restored.ListVersions(res.DataSetID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, model.Version{Major: 1, Minor: 1}, versions[1].Version)
	assert.Equal(t, model.StatusPublished, versions[1].Status)

	changelog, err := restored.GetChangelog(next.DataSetVersionID)
	require.NoError(t, err)
	assert.Equal(t, 0, changelog.Unresolved())

	// Idempotency keys survive the round trip.
	again, err := restored.CreateInitialVersion(ctx, InitialVersionRequest{
		DataSetName: "Pupil absence", ReleaseFileID: "release-1", InstanceID: "instance-1",
	})
	require.NoError(t, err)
	assert.Equal(t, res, again)
}

func TestRestoreRejectsOrphanVersion(t *testing.T) {
	m := newTestManager(t)
	err := m.Restore(Snapshot{
		Versions: []VersionRecord{
			{Version: model.DataSetVersion{ID: "v-1", DataSetID: "missing"}},
		},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown dataset")
}
