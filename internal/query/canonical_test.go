package query

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openstats/factstore/internal/model"
)

func TestMarshalCanonicalSortsKeys(t *testing.T) {
	got, err := MarshalCanonical(map[string]any{
		"zebra": 1,
		"alpha": []string{"b", "a"},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"alpha":["b","a"],"zebra":1}`, string(got))
}

func TestMarshalCanonicalNoHTMLEscaping(t *testing.T) {
	got, err := MarshalCanonical(map[string]string{"label": "<5 & >3"})
	require.NoError(t, err)
	assert.Equal(t, `{"label":"<5 & >3"}`, string(got))
}

func TestMarshalCanonicalNFCNormalisation(t *testing.T) {
	// "é" as combining sequence (e + U+0301) must serialize the same
	// as the precomposed form (U+00E9).
	composed, err := MarshalCanonical("café")
	require.NoError(t, err)
	decomposed, err := MarshalCanonical("café")
	require.NoError(t, err)
	assert.Equal(t, composed, decomposed)
}

// The canonical serialization of a normalised request is the cache
// key contract; the golden file pins it against accidental drift.
func TestCanonicalRequestGolden(t *testing.T) {
	req := Request{
		Indicators: []string{"schools", "pupils"},
		Criteria: And{Children: []Criteria{
			Facets{TimePeriods: &TimePeriodPredicate{
				Gte: &model.TimePeriodRef{Code: "AY", Period: "2020/21"},
			}},
			Facets{Filters: &IDPredicate{In: []string{"B2", "A1"}}},
		}},
		Page:     1,
		PageSize: 100,
	}

	normalised, err := Normalise(req)
	require.NoError(t, err)

	canonical, err := MarshalCanonical(normalised)
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "normalised_request", canonical)
}

func TestFingerprintShape(t *testing.T) {
	fp, err := Fingerprint(Request{Indicators: []string{"pupils"}})
	require.NoError(t, err)
	assert.Len(t, fp, 64) // sha256 hex

	again, err := Fingerprint(Request{Indicators: []string{"pupils"}})
	require.NoError(t, err)
	assert.Equal(t, fp, again)
}
