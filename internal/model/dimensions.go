package model

import "fmt"

// GeographicLevel identifies one tier of the geographic hierarchy.
// The code values follow the statistics service conventions and are
// stored verbatim in the facts table.
type GeographicLevel string

const (
	LevelCountry          GeographicLevel = "NAT"
	LevelRegion           GeographicLevel = "REG"
	LevelLocalAuthority   GeographicLevel = "LA"
	LevelLADistrict       GeographicLevel = "LAD"
	LevelParliamentaryCon GeographicLevel = "PCON"
	LevelWard             GeographicLevel = "WARD"
	LevelSchool           GeographicLevel = "SCH"
	LevelProvider         GeographicLevel = "PROV"
	LevelInstitution      GeographicLevel = "INST"
)

// geographicLevelLabels maps level codes to display labels.
var geographicLevelLabels = map[GeographicLevel]string{
	LevelCountry:          "National",
	LevelRegion:           "Regional",
	LevelLocalAuthority:   "Local authority",
	LevelLADistrict:       "Local authority district",
	LevelParliamentaryCon: "Parliamentary constituency",
	LevelWard:             "Ward",
	LevelSchool:           "School",
	LevelProvider:         "Provider",
	LevelInstitution:      "Institution",
}

// Label returns the display label for a level, or the raw code if the
// level is not a known tier.
func (l GeographicLevel) Label() string {
	if label, ok := geographicLevelLabels[l]; ok {
		return label
	}
	return string(l)
}

// IsKnown reports whether the level is a recognised tier.
func (l GeographicLevel) IsKnown() bool {
	_, ok := geographicLevelLabels[l]
	return ok
}

// Filter is a categorical dimension scoped to one dataset version.
// Column is the facts-table column holding the selected option's
// internal id for each row.
type Filter struct {
	Column string
	Label  string
	Hint   string
}

// FilterOption is one allowed value of a Filter. ID is the
// version-scoped internal integer id the facts table stores; PublicID
// is the durable string id stable across versions.
type FilterOption struct {
	ID       int64
	PublicID string
	Column   string
	Label    string
}

// LocationOption is one geographic dimension entry.
type LocationOption struct {
	ID       int64
	PublicID string
	Level    GeographicLevel
	Code     string
	Name     string

	// Level-specific attribute codes. Empty when not applicable.
	OldCode string
	URN     string
	LAEstab string
}

// Indicator is a numeric measure column of the facts table. It is
// identified by its stable string id (also the column name) - there
// is no internal integer id because indicators are never filtered by
// value, only projected.
type Indicator struct {
	ID            string
	Label         string
	Unit          string
	DecimalPlaces int
}

// IDPublicIDPair carries the bidirectional mapping between a
// version-scoped internal id and its durable public id. Dimension
// lookups return these so callers can re-associate results with the
// ids they asked for, whichever side they asked by.
type IDPublicIDPair struct {
	ID       int64
	PublicID string
}

// Footnote is an annotation attached to a version and selected into
// query responses when the query touches any of the indicators or
// filter options it targets. Empty selector lists mean the footnote
// applies to every query against the version.
type Footnote struct {
	ID            string
	Content       string
	Indicators    []string
	FilterOptions []string
}

// LocationRef is a structural reference to a location option: a
// geographic level plus exactly one identifying attribute. Queries use
// it to reference locations without knowing internal ids.
type LocationRef struct {
	Level   GeographicLevel `json:"level"`
	ID      string          `json:"id,omitempty"`
	Code    string          `json:"code,omitempty"`
	OldCode string          `json:"oldCode,omitempty"`
	URN     string          `json:"urn,omitempty"`
	LAEstab string          `json:"laEstab,omitempty"`
}

// CanonicalString renders the ref in a stable "level|attr:value" form
// used for deterministic sorting of location lists.
func (r LocationRef) CanonicalString() string {
	switch {
	case r.ID != "":
		return fmt.Sprintf("%s|id:%s", r.Level, r.ID)
	case r.Code != "":
		return fmt.Sprintf("%s|code:%s", r.Level, r.Code)
	case r.OldCode != "":
		return fmt.Sprintf("%s|oldCode:%s", r.Level, r.OldCode)
	case r.URN != "":
		return fmt.Sprintf("%s|urn:%s", r.Level, r.URN)
	case r.LAEstab != "":
		return fmt.Sprintf("%s|laEstab:%s", r.Level, r.LAEstab)
	default:
		return fmt.Sprintf("%s|", r.Level)
	}
}

// Validate checks the ref names a level and exactly one attribute.
func (r LocationRef) Validate() error {
	if r.Level == "" {
		return fmt.Errorf("location reference missing level")
	}
	set := 0
	for _, attr := range []string{r.ID, r.Code, r.OldCode, r.URN, r.LAEstab} {
		if attr != "" {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("location reference must set exactly one of id/code/oldCode/urn/laEstab, got %d", set)
	}
	return nil
}
