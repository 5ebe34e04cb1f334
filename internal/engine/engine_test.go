package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openstats/factstore/internal/columnar"
	"github.com/openstats/factstore/internal/model"
	"github.com/openstats/factstore/internal/paths"
	"github.com/openstats/factstore/internal/query"
	"github.com/openstats/factstore/internal/store"
)

func strPtr(s string) *string { return &s }

// seedEngine writes a published fixture version and returns an engine
// over it.
//
// Fixture layout: two filters (characteristic, school_type), three
// locations, two academic years, six facts rows.
func seedEngine(t *testing.T) (*Engine, model.DataSetVersion) {
	t.Helper()

	resolver, err := paths.NewResolver(paths.Config{BasePath: t.TempDir()})
	require.NoError(t, err)
	s := store.New(resolver)

	v := model.DataSetVersion{
		ID:        "0198a001-0000-7000-8000-000000000001",
		DataSetID: "ds-attendance",
		Version:   model.Version{Major: 1, Minor: 0},
		Status:    model.StatusPublished,
	}

	data := store.VersionData{
		Filters: map[string]model.Filter{
			"characteristic": {Column: "characteristic", Label: "Characteristic"},
			"school_type":    {Column: "school_type", Label: "School type"},
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
		},
		Indicators: []model.Indicator{
			{ID: "pupils", Label: "Number of pupils"},
			{ID: "attendance_percent", Label: "Attendance rate", Unit: "%", DecimalPlaces: 1},
		},
		// Ids in chronological ordinal order.
		TimePeriods: []model.TimePeriod{
			{ID: 1, Code: "AY", Period: "2020/21", Ordinal: 202000},
			{ID: 2, Code: "AY", Period: "2021/22", Ordinal: 202100},
		},
		Footnotes: []model.Footnote{
			{ID: "fn-always", Content: "All figures are provisional."},
			{ID: "fn-pupils", Content: "Counts rounded.", Indicators: []string{"pupils"}},
			{ID: "fn-sec", Content: "Secondary excludes sixth forms.", FilterOptions: []string{"sch-sec"}},
		},
		Facts: []columnar.FactRow{
			{RowID: 1, GeographicLevel: "NAT", LocationID: 1, TimePeriodID: 1,
				FilterIDs:  map[string]int64{"characteristic": 1, "school_type": 3},
				Indicators: map[string]string{"pupils": "4500", "attendance_percent": "93.1"}},
			{RowID: 2, GeographicLevel: "NAT", LocationID: 1, TimePeriodID: 1,
				FilterIDs:  map[string]int64{"characteristic": 2, "school_type": 3},
				Indicators: map[string]string{"pupils": "1200", "attendance_percent": "92.5"}},
			{RowID: 3, GeographicLevel: "NAT", LocationID: 1, TimePeriodID: 2,
				FilterIDs:  map[string]int64{"characteristic": 1, "school_type": 4},
				Indicators: map[string]string{"pupils": "4700", "attendance_percent": "z"}},
			{RowID: 4, GeographicLevel: "NAT", LocationID: 1, TimePeriodID: 2,
				FilterIDs:  map[string]int64{"characteristic": 2, "school_type": 4},
				Indicators: map[string]string{"pupils": "1250", "attendance_percent": "91.8"}},
			{RowID: 5, GeographicLevel: "REG", LocationID: 2, TimePeriodID: 1,
				FilterIDs:  map[string]int64{"characteristic": 1, "school_type": 3},
				Indicators: map[string]string{"pupils": "800", "attendance_percent": "92.9"}},
			{RowID: 6, GeographicLevel: "REG", LocationID: 2, TimePeriodID: 2,
				FilterIDs:  map[string]int64{"characteristic": 1, "school_type": 4},
				Indicators: map[string]string{"pupils": "820", "attendance_percent": "93.4"}},
		},
	}
	require.NoError(t, s.WriteDataFiles(context.Background(), v, data))

	return New(s), v
}

func TestRunQueryUnconstrained(t *testing.T) {
	e, v := seedEngine(t)

	resp, err := e.RunQuery(context.Background(), v, query.Request{
		Indicators: []string{"pupils"},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(6), resp.Paging.TotalResults)
	assert.Equal(t, 1, resp.Paging.Page)
	assert.Equal(t, DefaultPageSize, resp.Paging.PageSize)
	assert.Equal(t, 1, resp.Paging.TotalPages)
	require.Len(t, resp.Results, 6)

	// Default sort: newest time period first.
	assert.Equal(t, "2021/22", resp.Results[0].TimePeriod.Period)
	assert.Equal(t, "2020/21", resp.Results[5].TimePeriod.Period)
}

func TestRunQueryFilterIn(t *testing.T) {
	e, v := seedEngine(t)

	resp, err := e.RunQuery(context.Background(), v, query.Request{
		Indicators: []string{"pupils"},
		Criteria: query.Facets{
			Filters: &query.IDPredicate{In: []string{"eth-maj", "eth-min"}},
		},
	})
	require.NoError(t, err)
	// Every row has a characteristic in the set.
	assert.Equal(t, int64(6), resp.Paging.TotalResults)

	resp, err = e.RunQuery(context.Background(), v, query.Request{
		Indicators: []string{"pupils"},
		Criteria: query.Facets{
			Filters: &query.IDPredicate{Eq: strPtr("eth-min")},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), resp.Paging.TotalResults)
	for _, r := range resp.Results {
		assert.Equal(t, "eth-min", r.Filters["characteristic"])
	}
}

func TestRunQueryAndIntersection(t *testing.T) {
	e, v := seedEngine(t)

	resp, err := e.RunQuery(context.Background(), v, query.Request{
		Indicators: []string{"pupils", "attendance_percent"},
		Criteria: query.And{Children: []query.Criteria{
			query.Facets{Filters: &query.IDPredicate{Eq: strPtr("sch-sec")}},
			query.Facets{TimePeriods: &query.TimePeriodPredicate{
				Gte: &model.TimePeriodRef{Code: "AY", Period: "2021/22"},
			}},
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), resp.Paging.TotalResults)

	// Suppressed cells come back verbatim.
	values := map[string]string{}
	for _, r := range resp.Results {
		values[r.Filters["characteristic"]+"/"+r.LocationID] = r.Values["attendance_percent"]
	}
	assert.Equal(t, "z", values["eth-maj/loc-eng"])
}

func TestRunQueryLocationAndLevel(t *testing.T) {
	e, v := seedEngine(t)

	resp, err := e.RunQuery(context.Background(), v, query.Request{
		Indicators: []string{"pupils"},
		Criteria: query.Facets{
			Locations: &query.LocationPredicate{
				Eq: &model.LocationRef{Level: model.LevelRegion, Code: "E12000001"},
			},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), resp.Paging.TotalResults)
	for _, r := range resp.Results {
		assert.Equal(t, "loc-ne", r.LocationID)
		assert.Equal(t, "North East", r.LocationName)
	}

	resp, err = e.RunQuery(context.Background(), v, query.Request{
		Indicators: []string{"pupils"},
		Criteria: query.Facets{
			GeographicLevels: &query.IDPredicate{NotEq: strPtr("REG")},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4), resp.Paging.TotalResults)
}

func TestRunQueryNot(t *testing.T) {
	e, v := seedEngine(t)

	resp, err := e.RunQuery(context.Background(), v, query.Request{
		Indicators: []string{"pupils"},
		Criteria: query.Not{Child: query.Facets{
			Filters: &query.IDPredicate{Eq: strPtr("sch-prim")},
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), resp.Paging.TotalResults)
}

func TestRunQueryPaginationComplete(t *testing.T) {
	e, v := seedEngine(t)
	ctx := context.Background()

	seen := map[string]int{}
	var pages int
	for page := 1; ; page++ {
		resp, err := e.RunQuery(ctx, v, query.Request{
			Indicators: []string{"pupils"},
			Page:       page,
			PageSize:   4,
		})
		require.NoError(t, err)
		assert.Equal(t, 2, resp.Paging.TotalPages)
		if len(resp.Results) == 0 {
			break
		}
		pages++
		for _, r := range resp.Results {
			key := r.LocationID + "|" + r.TimePeriod.Period + "|" + r.Filters["characteristic"] + "|" + r.Filters["school_type"]
			seen[key]++
		}
		require.LessOrEqual(t, page, 5, "runaway pagination")
	}

	assert.Equal(t, 2, pages)
	assert.Len(t, seen, 6)
	for key, count := range seen {
		assert.Equal(t, 1, count, "row %s returned more than once", key)
	}
}

func TestRunQueryUnknownReferences(t *testing.T) {
	e, v := seedEngine(t)
	ctx := context.Background()

	_, err := e.RunQuery(ctx, v, query.Request{
		Indicators: []string{"no-such-indicator"},
	})
	assert.True(t, IsOptionNotFound(err), "got %v", err)

	_, err = e.RunQuery(ctx, v, query.Request{
		Indicators: []string{"pupils"},
		Criteria:   query.Facets{Filters: &query.IDPredicate{In: []string{"eth-maj", "no-such-option"}}},
	})
	assert.True(t, IsOptionNotFound(err), "got %v", err)

	_, err = e.RunQuery(ctx, v, query.Request{
		Indicators: []string{"pupils"},
		Criteria: query.Facets{Locations: &query.LocationPredicate{
			Eq: &model.LocationRef{Level: model.LevelCountry, Code: "X99999999"},
		}},
	})
	assert.True(t, IsOptionNotFound(err), "got %v", err)

	_, err = e.RunQuery(ctx, v, query.Request{
		Indicators: []string{"pupils"},
		Criteria: query.Facets{TimePeriods: &query.TimePeriodPredicate{
			Eq: &model.TimePeriodRef{Code: "AY", Period: "1999/00"},
		}},
	})
	assert.True(t, IsOptionNotFound(err), "got %v", err)
}

func TestRunQueryValidation(t *testing.T) {
	e, v := seedEngine(t)
	ctx := context.Background()

	_, err := e.RunQuery(ctx, v, query.Request{})
	var qe *QueryError
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, ErrCodeNoIndicators, qe.Code)

	_, err = e.RunQuery(ctx, v, query.Request{
		Indicators: []string{"pupils"},
		Sorts:      []query.Sort{{Name: "no-such-field", Order: query.SortAsc}},
	})
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, ErrCodeInvalidSort, qe.Code)

	_, err = e.RunQuery(ctx, v, query.Request{
		Indicators: []string{"pupils"},
		PageSize:   MaxPageSize + 1,
	})
	require.ErrorAs(t, err, &qe)
	assert.Equal(t, ErrCodeInvalidPage, qe.Code)
}

func TestRunQueryRejectsUnpublished(t *testing.T) {
	e, v := seedEngine(t)

	for _, status := range []model.VersionStatus{
		model.StatusDraft, model.StatusProcessing, model.StatusMapping,
		model.StatusFailed, model.StatusWithdrawn,
	} {
		unpublished := v
		unpublished.Status = status
		_, err := e.RunQuery(context.Background(), unpublished, query.Request{
			Indicators: []string{"pupils"},
		})
		assert.True(t, IsNotQueryable(err), "status %s: got %v", status, err)
	}
}

func TestRunQueryFootnotes(t *testing.T) {
	e, v := seedEngine(t)

	footnoteIDs := func(resp *Response) []string {
		ids := make([]string, len(resp.Footnotes))
		for i, fn := range resp.Footnotes {
			ids[i] = fn.ID
		}
		return ids
	}

	resp, err := e.RunQuery(context.Background(), v, query.Request{
		Indicators: []string{"attendance_percent"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"fn-always"}, footnoteIDs(resp))

	resp, err = e.RunQuery(context.Background(), v, query.Request{
		Indicators: []string{"pupils"},
		Criteria:   query.Facets{Filters: &query.IDPredicate{Eq: strPtr("sch-sec")}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"fn-always", "fn-pupils", "fn-sec"}, footnoteIDs(resp))
}

func TestRunQueryDraftPreview(t *testing.T) {
	e, v := seedEngine(t)
	draft := v
	draft.Status = model.StatusMapping

	_, err := e.RunQuery(context.Background(), draft, query.Request{Indicators: []string{"pupils"}})
	assert.True(t, IsNotQueryable(err))

	preview := New(e.store, WithDraftPreview())
	resp, err := preview.RunQuery(context.Background(), draft, query.Request{Indicators: []string{"pupils"}})
	require.NoError(t, err)
	assert.Equal(t, int64(6), resp.Paging.TotalResults)

	withdrawn := v
	withdrawn.Status = model.StatusWithdrawn
	_, err = preview.RunQuery(context.Background(), withdrawn, query.Request{Indicators: []string{"pupils"}})
	assert.True(t, IsNotQueryable(err))
}

func TestRunQuerySortByIndicator(t *testing.T) {
	e, v := seedEngine(t)

	resp, err := e.RunQuery(context.Background(), v, query.Request{
		Indicators: []string{"pupils"},
		Criteria:   query.Facets{GeographicLevels: &query.IDPredicate{Eq: strPtr("REG")}},
		Sorts:      []query.Sort{{Name: "pupils", Order: query.SortAsc}},
	})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "800", resp.Results[0].Values["pupils"])
	assert.Equal(t, "820", resp.Results[1].Values["pupils"])
}
