package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openstats/factstore/internal/columnar"
	"github.com/openstats/factstore/internal/model"
	"github.com/openstats/factstore/internal/paths"
	"github.com/openstats/factstore/internal/querysql"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	resolver, err := paths.NewResolver(paths.Config{BasePath: t.TempDir()})
	require.NoError(t, err)
	return New(resolver)
}

func testVersion() model.DataSetVersion {
	return model.DataSetVersion{
		ID:        "f2b1c3d4-0000-7000-8000-000000000001",
		DataSetID: "ds-pupil-absence",
		Version:   model.Version{Major: 1, Minor: 0},
		Status:    model.StatusPublished,
	}
}

func testVersionData() VersionData {
	return VersionData{
		Filters: map[string]model.Filter{
			"characteristic": {Column: "characteristic", Label: "Characteristic"},
			"school_type":    {Column: "school_type", Label: "School type", Hint: "Type of establishment"},
		},
		FilterOptions: []model.FilterOption{
			{ID: 1, PublicID: "eth-maj", Column: "characteristic", Label: "Ethnicity Major"},
			{ID: 2, PublicID: "eth-min", Column: "characteristic", Label: "Ethnicity Minor"},
			{ID: 3, PublicID: "sch-prim", Column: "school_type", Label: "Primary"},
			{ID: 4, PublicID: "sch-sec", Column: "school_type", Label: "Secondary"},
		},
		Locations: []model.LocationOption{
			{ID: 1, PublicID: "loc-eng", Level: model.LevelCountry, Code: "E92000001", Name: "England"},
			{ID: 2, PublicID: "loc-ne", Level: model.LevelRegion, Code: "E12000001", Name: "North East"},
			{ID: 3, PublicID: "loc-dur", Level: model.LevelLocalAuthority, Code: "E06000047", Name: "Durham", OldCode: "840"},
		},
		Indicators: []model.Indicator{
			{ID: "pupils", Label: "Number of pupils", Unit: "", DecimalPlaces: 0},
			{ID: "sess_authorised_percent", Label: "Authorised absence rate", Unit: "%", DecimalPlaces: 2},
		},
		TimePeriods: []model.TimePeriod{
			{ID: 1, Code: "AY", Period: "2020/21", Ordinal: 202000},
			{ID: 2, Code: "AY", Period: "2021/22", Ordinal: 202100},
		},
		Footnotes: []model.Footnote{
			{ID: "fn-general", Content: "Totals include estimates."},
			{ID: "fn-pupils", Content: "Pupil counts rounded to nearest 5.", Indicators: []string{"pupils"}},
			{ID: "fn-prim", Content: "Primary figures exclude nurseries.", FilterOptions: []string{"sch-prim"}},
		},
		Facts: []columnar.FactRow{
			{RowID: 1, GeographicLevel: "NAT", LocationID: 1, TimePeriodID: 1,
				FilterIDs:  map[string]int64{"characteristic": 1, "school_type": 3},
				Indicators: map[string]string{"pupils": "4500", "sess_authorised_percent": "3.10"}},
			{RowID: 2, GeographicLevel: "NAT", LocationID: 1, TimePeriodID: 1,
				FilterIDs:  map[string]int64{"characteristic": 2, "school_type": 3},
				Indicators: map[string]string{"pupils": "1200", "sess_authorised_percent": "2.95"}},
			{RowID: 3, GeographicLevel: "NAT", LocationID: 1, TimePeriodID: 2,
				FilterIDs:  map[string]int64{"characteristic": 1, "school_type": 4},
				Indicators: map[string]string{"pupils": "4700", "sess_authorised_percent": "z"}},
			{RowID: 4, GeographicLevel: "REG", LocationID: 2, TimePeriodID: 1,
				FilterIDs:  map[string]int64{"characteristic": 1, "school_type": 3},
				Indicators: map[string]string{"pupils": "800", "sess_authorised_percent": "3.40"}},
			{RowID: 5, GeographicLevel: "LA", LocationID: 3, TimePeriodID: 2,
				FilterIDs:  map[string]int64{"characteristic": 2, "school_type": 4},
				Indicators: map[string]string{"pupils": "150", "sess_authorised_percent": "4.05"}},
		},
	}
}

// seedVersion writes a full version fixture and returns the store
// serving it.
func seedVersion(t *testing.T) (*Store, model.DataSetVersion) {
	t.Helper()
	s := newTestStore(t)
	v := testVersion()
	require.NoError(t, s.WriteDataFiles(context.Background(), v, testVersionData()))
	return s, v
}

func TestWriteDataFilesRoundTrip(t *testing.T) {
	s, v := seedVersion(t)
	ctx := context.Background()

	filters, err := s.Filters(ctx, v)
	require.NoError(t, err)
	require.Len(t, filters, 2)
	assert.Equal(t, "School type", filters["school_type"].Label)
	assert.Equal(t, "Type of establishment", filters["school_type"].Hint)

	options, err := s.ListFilterOptions(ctx, v)
	require.NoError(t, err)
	require.Len(t, options, 4)
	assert.Equal(t, int64(1), options[0].ID)
	assert.Equal(t, "eth-maj", options[0].PublicID)

	indicators, err := s.Indicators(ctx, v)
	require.NoError(t, err)
	require.Len(t, indicators, 2)
	assert.Equal(t, 2, indicators[1].DecimalPlaces)

	periods, err := s.TimePeriods(ctx, v)
	require.NoError(t, err)
	require.Len(t, periods, 2)
	assert.Equal(t, "2020/21", periods[0].Period)

	columns, err := s.ListColumns(ctx, v)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"row_id", "geographic_level", "location_id", "time_period_id",
		"characteristic", "school_type",
		"pupils", "sess_authorised_percent",
	}, columns)

	levels, err := s.ListGeographicLevels(ctx, v)
	require.NoError(t, err)
	assert.Equal(t, []model.GeographicLevel{
		model.LevelLocalAuthority, model.LevelCountry, model.LevelRegion,
	}, levels)
}

func TestFilterOptionLookupModes(t *testing.T) {
	s, v := seedVersion(t)
	ctx := context.Background()

	byIDs, err := s.FilterOptionsByIDs(ctx, v, []int64{4, 2})
	require.NoError(t, err)
	require.Len(t, byIDs, 2)
	assert.Equal(t, "eth-min", byIDs[0].PublicID)
	assert.Equal(t, "sch-sec", byIDs[1].PublicID)

	byPublic, err := s.FilterOptionsByPublicIDs(ctx, v, []string{"sch-prim", "eth-maj", "no-such"})
	require.NoError(t, err)
	require.Len(t, byPublic, 2)
	assert.Equal(t, int64(1), byPublic[0].ID)
	assert.Equal(t, int64(3), byPublic[1].ID)

	empty, err := s.FilterOptionsByIDs(ctx, v, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestLocationLookupModes(t *testing.T) {
	s, v := seedVersion(t)
	ctx := context.Background()

	byIDs, err := s.LocationsByIDs(ctx, v, []int64{3, 1})
	require.NoError(t, err)
	require.Len(t, byIDs, 2)
	assert.Equal(t, "England", byIDs[0].Name)
	assert.Equal(t, "Durham", byIDs[1].Name)

	matches, err := s.LocationsByRefs(ctx, v, []model.LocationRef{
		{Level: model.LevelRegion, Code: "E12000001"},
		{Level: model.LevelLocalAuthority, OldCode: "840"},
		{Level: model.LevelCountry, ID: "loc-missing"},
	})
	require.NoError(t, err)
	require.Len(t, matches, 3)
	require.Len(t, matches[0].Options, 1)
	assert.Equal(t, "North East", matches[0].Options[0].Name)
	require.Len(t, matches[1].Options, 1)
	assert.Equal(t, "loc-dur", matches[1].Options[0].PublicID)
	assert.Empty(t, matches[2].Options)

	_, err = s.LocationsByRefs(ctx, v, []model.LocationRef{{Level: model.LevelCountry}})
	require.Error(t, err)
}

func TestTimePeriodsByRefs(t *testing.T) {
	s, v := seedVersion(t)

	periods, err := s.TimePeriodsByRefs(context.Background(), v, []model.TimePeriodRef{
		{Code: "AY", Period: "2021/22"},
		{Code: "AY", Period: "1999/00"},
	})
	require.NoError(t, err)
	require.Len(t, periods, 1)
	assert.Equal(t, int64(2), periods[0].ID)
}

func TestFootnoteSelection(t *testing.T) {
	s, v := seedVersion(t)
	ctx := context.Background()

	ids := func(fns []model.Footnote) []string {
		out := make([]string, len(fns))
		for i, fn := range fns {
			out[i] = fn.ID
		}
		return out
	}

	// Selector-less footnotes always apply.
	fns, err := s.Footnotes(ctx, v, []string{"sess_authorised_percent"}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"fn-general"}, ids(fns))

	fns, err = s.Footnotes(ctx, v, []string{"pupils"}, []string{"sch-prim"})
	require.NoError(t, err)
	assert.Equal(t, []string{"fn-general", "fn-prim", "fn-pupils"}, ids(fns))

	fns, err = s.Footnotes(ctx, v, nil, []string{"eth-maj"})
	require.NoError(t, err)
	assert.Equal(t, []string{"fn-general"}, ids(fns))
}

func TestCountAndListRows(t *testing.T) {
	s, v := seedVersion(t)
	ctx := context.Background()

	where := querysql.Fragment{
		SQL:  `"characteristic" IN (?)`,
		Args: []any{int64(1)},
	}

	count, err := s.CountRows(ctx, v, where)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	rows, err := s.ListRows(ctx, v,
		[]string{"row_id", "geographic_level", "pupils"},
		where,
		[]SortTerm{{Column: "pupils", Desc: true}},
		1, 10)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "800", rows[0]["pupils"])
	assert.Equal(t, "4700", rows[1]["pupils"])
	assert.Equal(t, "4500", rows[2]["pupils"])
	assert.Equal(t, int64(4), rows[0]["row_id"])
}

func TestListRowsPaginationComplete(t *testing.T) {
	s, v := seedVersion(t)
	ctx := context.Background()

	where := querysql.Fragment{SQL: "1 = 1"}
	seen := map[int64]bool{}

	for page := 1; ; page++ {
		rows, err := s.ListRows(ctx, v, []string{"row_id"}, where, nil, page, 2)
		require.NoError(t, err)
		if len(rows) == 0 {
			break
		}
		for _, row := range rows {
			id := row["row_id"].(int64)
			assert.False(t, seen[id], "row %d returned twice", id)
			seen[id] = true
		}
		require.LessOrEqual(t, page, 10, "runaway pagination")
	}

	assert.Len(t, seen, 5)
}

func TestListRowsValidation(t *testing.T) {
	s, v := seedVersion(t)
	ctx := context.Background()
	where := querysql.Fragment{SQL: "1 = 1"}

	_, err := s.ListRows(ctx, v, nil, where, nil, 1, 10)
	assert.Error(t, err)

	_, err = s.ListRows(ctx, v, []string{"row_id"}, where, nil, 0, 10)
	assert.Error(t, err)

	_, err = s.ListRows(ctx, v, []string{"row_id"}, where, nil, 1, 0)
	assert.Error(t, err)
}

func TestMissingVersionNotReady(t *testing.T) {
	s := newTestStore(t)
	v := testVersion()

	_, err := s.CountRows(context.Background(), v, querysql.Fragment{SQL: "1 = 1"})
	require.Error(t, err)
	assert.True(t, IsNotReady(err))

	_, err = s.Filters(context.Background(), v)
	assert.True(t, IsNotReady(err))
}

func TestColumnarFilesWritten(t *testing.T) {
	s, v := seedVersion(t)
	ctx := context.Background()

	filters, options, err := columnar.ReadFilterOptions(ctx, s.Resolver().FiltersPath(v.DataSetID, v.Version))
	require.NoError(t, err)
	assert.Len(t, filters, 2)
	assert.Len(t, options, 4)

	locations, err := columnar.ReadLocations(ctx, s.Resolver().LocationsPath(v.DataSetID, v.Version))
	require.NoError(t, err)
	assert.Len(t, locations, 3)

	periods, err := columnar.ReadTimePeriods(ctx, s.Resolver().TimePeriodsPath(v.DataSetID, v.Version))
	require.NoError(t, err)
	assert.Len(t, periods, 2)
}
