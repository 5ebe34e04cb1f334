package paths

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openstats/factstore/internal/model"
)

func TestNewResolverRejectsBlankBasePath(t *testing.T) {
	tests := []struct {
		name string
		base string
	}{
		{"empty", ""},
		{"whitespace", "   "},
		{"tab", "\t"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewResolver(Config{BasePath: tt.base})
			require.Error(t, err)
		})
	}
}

func TestDirectoryPath(t *testing.T) {
	r, err := NewResolver(Config{BasePath: "/var/data"})
	require.NoError(t, err)

	got := r.DirectoryPath("ds-1", model.Version{Major: 1, Minor: 2})
	assert.Equal(t, filepath.Join("/var/data", "ds-1", "v1.2"), got)
}

func TestFilePaths(t *testing.T) {
	r, err := NewResolver(Config{BasePath: "/var/data"})
	require.NoError(t, err)

	v := model.Version{Major: 2, Minor: 0}
	dir := r.DirectoryPath("ds-1", v)

	assert.Equal(t, filepath.Join(dir, "data.parquet"), r.DataPath("ds-1", v))
	assert.Equal(t, filepath.Join(dir, "filters.parquet"), r.FiltersPath("ds-1", v))
	assert.Equal(t, filepath.Join(dir, "indicators.parquet"), r.IndicatorsPath("ds-1", v))
	assert.Equal(t, filepath.Join(dir, "locations.parquet"), r.LocationsPath("ds-1", v))
	assert.Equal(t, filepath.Join(dir, "time_periods.parquet"), r.TimePeriodsPath("ds-1", v))
	assert.Equal(t, filepath.Join(dir, "data.sqlite"), r.QueryDBPath("ds-1", v))
}

// Different versions of the same dataset must never share a
// directory - version isolation depends on it.
func TestVersionDirectoriesDisjoint(t *testing.T) {
	r, err := NewResolver(Config{BasePath: "/var/data"})
	require.NoError(t, err)

	v10 := r.DirectoryPath("ds-1", model.Version{Major: 1, Minor: 0})
	v11 := r.DirectoryPath("ds-1", model.Version{Major: 1, Minor: 1})
	v20 := r.DirectoryPath("ds-1", model.Version{Major: 2, Minor: 0})

	assert.NotEqual(t, v10, v11)
	assert.NotEqual(t, v11, v20)
	assert.NotEqual(t, v10, v20)
}
