package query

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openstats/factstore/internal/model"
)

func TestDecodeRequest(t *testing.T) {
	raw := `{
		"indicators": ["pupils"],
		"criteria": {
			"and": [
				{"filters": {"in": ["A1"]}},
				{"timePeriods": {"gte": {"code": "AY", "period": "2020/21"}}}
			]
		},
		"sort": [{"name": "timePeriod", "order": "Desc"}],
		"page": 2,
		"pageSize": 50
	}`

	var req Request
	require.NoError(t, json.Unmarshal([]byte(raw), &req))

	assert.Equal(t, []string{"pupils"}, req.Indicators)
	assert.Equal(t, 2, req.Page)
	assert.Equal(t, 50, req.PageSize)
	assert.Equal(t, []Sort{{Name: "timePeriod", Order: SortDesc}}, req.Sorts)

	and, ok := req.Criteria.(And)
	require.True(t, ok)
	require.Len(t, and.Children, 2)

	first := and.Children[0].(Facets)
	assert.Equal(t, []string{"A1"}, first.Filters.In)

	second := and.Children[1].(Facets)
	require.NotNil(t, second.TimePeriods.Gte)
	assert.Equal(t, model.TimePeriodRef{Code: "AY", Period: "2020/21"}, *second.TimePeriods.Gte)
}

func TestDecodeNestedBoolean(t *testing.T) {
	raw := `{
		"indicators": ["pupils"],
		"criteria": {"not": {"or": [
			{"geographicLevels": {"eq": "REG"}},
			{"locations": {"in": [{"level": "LA", "code": "E09000003"}]}}
		]}}
	}`

	var req Request
	require.NoError(t, json.Unmarshal([]byte(raw), &req))

	not, ok := req.Criteria.(Not)
	require.True(t, ok)
	or, ok := not.Child.(Or)
	require.True(t, ok)
	require.Len(t, or.Children, 2)

	locations := or.Children[1].(Facets).Locations
	require.NotNil(t, locations)
	assert.Equal(t, model.LocationRef{Level: model.LevelLocalAuthority, Code: "E09000003"}, locations.In[0])
}

func TestDecodeMissingCriteria(t *testing.T) {
	var req Request
	require.NoError(t, json.Unmarshal([]byte(`{"indicators": ["pupils"]}`), &req))
	assert.Nil(t, req.Criteria)
}

func TestDecodeMalformedShapes(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not with array", `{"criteria": {"not": [{"filters": {"eq": "A1"}}]}}`},
		{"and with zero children", `{"criteria": {"and": []}}`},
		{"or with non-array", `{"criteria": {"or": {"filters": {"eq": "A1"}}}}`},
		{"mixed boolean keys", `{"criteria": {"and": [{"filters": {"eq": "A1"}}], "or": [{"filters": {"eq": "A1"}}]}}`},
		{"boolean mixed with facet", `{"criteria": {"not": {"filters": {"eq": "A1"}}, "filters": {"eq": "B2"}}}`},
		{"unknown key", `{"criteria": {"filtres": {"eq": "A1"}}}`},
		{"present but empty predicate", `{"criteria": {"filters": {}}}`},
		{"empty time periods", `{"criteria": {"timePeriods": {}}}`},
		{"criteria not an object", `{"criteria": ["filters"]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req Request
			err := json.Unmarshal([]byte(tt.raw), &req)
			require.Error(t, err)

			var se *ShapeError
			require.ErrorAs(t, err, &se, "want *ShapeError, got %v", err)
		})
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	req := Request{
		Indicators: []string{"pupils"},
		Criteria: Or{Children: []Criteria{
			Facets{Filters: &IDPredicate{NotIn: []string{"A1", "B2"}}},
			Not{Child: Facets{TimePeriods: &TimePeriodPredicate{
				Lt: &model.TimePeriodRef{Code: "CY", Period: "2019"},
			}}},
		}},
		Page:     1,
		PageSize: 10,
	}

	encoded, err := json.Marshal(req)
	require.NoError(t, err)

	var decoded Request
	require.NoError(t, json.Unmarshal(encoded, &decoded))
	assert.Equal(t, req, decoded)
}
