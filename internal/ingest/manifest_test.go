package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openstats/factstore/internal/model"
)

const validManifest = `
manifest: {
	name: "Pupil absence"
	summary: "Absence rates by school type"

	filters: school_type: {
		label: "School type"
		options: {
			"sch-prim": label: "Primary"
			"sch-sec":  label: "Secondary"
		}
	}

	indicators: {
		pupils: {label: "Number of pupils"}
		absence_percent: {label: "Absence rate", unit: "%", decimalPlaces: 1}
	}

	locations: [
		{publicId: "loc-eng", level: "NAT", code: "E92000001", name: "England"},
		{publicId: "loc-ne", level: "REG", code: "E12000001", name: "North East"},
	]

	timePeriods: [
		{code: "AY", period: "2021/22"},
		{code: "AY", period: "2020/21"},
	]

	footnotes: [
		{id: "fn-1", content: "Counts rounded.", indicators: ["pupils"]},
	]
}
`

func TestParseManifest(t *testing.T) {
	m, err := ParseManifest(validManifest, "manifest.cue")
	require.NoError(t, err)

	assert.Equal(t, "Pupil absence", m.Name)
	require.Len(t, m.Filters, 1)
	assert.Equal(t, "School type", m.Filters["school_type"].Label)

	// Option ids assigned by (column, public id).
	require.Len(t, m.FilterOptions, 2)
	assert.Equal(t, model.FilterOption{ID: 1, PublicID: "sch-prim", Column: "school_type", Label: "Primary"}, m.FilterOptions[0])
	assert.Equal(t, int64(2), m.FilterOptions[1].ID)

	// Location ids by (level, public id): NAT before REG.
	require.Len(t, m.Locations, 2)
	assert.Equal(t, "loc-eng", m.Locations[0].PublicID)
	assert.Equal(t, int64(1), m.Locations[0].ID)

	require.Len(t, m.Indicators, 2)
	assert.Equal(t, "absence_percent", m.Indicators[0].ID)
	assert.Equal(t, 1, m.Indicators[0].DecimalPlaces)

	// Periods reordered chronologically regardless of declaration
	// order; ids follow the chronological order.
	require.Len(t, m.TimePeriods, 2)
	assert.Equal(t, model.TimePeriod{ID: 1, Code: "AY", Period: "2020/21", Ordinal: 202000}, m.TimePeriods[0])
	assert.Equal(t, model.TimePeriod{ID: 2, Code: "AY", Period: "2021/22", Ordinal: 202100}, m.TimePeriods[1])

	require.Len(t, m.Footnotes, 1)
	assert.Equal(t, []string{"pupils"}, m.Footnotes[0].Indicators)
}

func TestParseManifestRejects(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{
			"missing name",
			`manifest: {
				filters: {}
				indicators: pupils: label: "Pupils"
				locations: [{publicId: "l", level: "NAT"}]
				timePeriods: [{code: "AY", period: "2020/21"}]
			}`,
		},
		{
			"no indicators",
			`manifest: {
				name: "x"
				filters: {}
				indicators: {}
				locations: [{publicId: "l", level: "NAT"}]
				timePeriods: [{code: "AY", period: "2020/21"}]
			}`,
		},
		{
			"duplicate option public id across filters",
			`manifest: {
				name: "x"
				filters: {
					a: {label: "A", options: "opt-1": label: "One"}
					b: {label: "B", options: "opt-1": label: "Uno"}
				}
				indicators: pupils: label: "Pupils"
				locations: [{publicId: "l", level: "NAT"}]
				timePeriods: [{code: "AY", period: "2020/21"}]
			}`,
		},
		{
			"unknown geographic level",
			`manifest: {
				name: "x"
				filters: {}
				indicators: pupils: label: "Pupils"
				locations: [{publicId: "l", level: "GALAXY"}]
				timePeriods: [{code: "AY", period: "2020/21"}]
			}`,
		},
		{
			"bad time period year",
			`manifest: {
				name: "x"
				filters: {}
				indicators: pupils: label: "Pupils"
				locations: [{publicId: "l", level: "NAT"}]
				timePeriods: [{code: "AY", period: "twenty-twenty"}]
			}`,
		},
		{
			"footnote references unknown indicator",
			`manifest: {
				name: "x"
				filters: {}
				indicators: pupils: label: "Pupils"
				locations: [{publicId: "l", level: "NAT"}]
				timePeriods: [{code: "AY", period: "2020/21"}]
				footnotes: [{id: "fn", content: "c", indicators: ["nope"]}]
			}`,
		},
		{
			"not CUE at all",
			`manifest: {`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseManifest(tt.src, "manifest.cue")
			var me *ManifestError
			require.ErrorAs(t, err, &me, "got %v", err)
		})
	}
}
