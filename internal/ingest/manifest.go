package ingest

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/openstats/factstore/internal/model"
)

//go:embed schema.cue
var schemaCUE string

// ManifestError reports a manifest that failed schema validation or
// semantic checks.
type ManifestError struct {
	Field   string
	Message string
}

func (e *ManifestError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("manifest: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("manifest: %s", e.Message)
}

// manifestDoc mirrors the CUE schema for decoding.
type manifestDoc struct {
	Name    string `json:"name"`
	Summary string `json:"summary"`

	Filters map[string]struct {
		Label   string `json:"label"`
		Hint    string `json:"hint"`
		Options map[string]struct {
			Label string `json:"label"`
		} `json:"options"`
	} `json:"filters"`

	Indicators map[string]struct {
		Label         string `json:"label"`
		Unit          string `json:"unit"`
		DecimalPlaces int    `json:"decimalPlaces"`
	} `json:"indicators"`

	Locations []locationDoc `json:"locations"`

	TimePeriods []struct {
		Code   string `json:"code"`
		Period string `json:"period"`
	} `json:"timePeriods"`

	Footnotes []struct {
		ID            string   `json:"id"`
		Content       string   `json:"content"`
		Indicators    []string `json:"indicators"`
		FilterOptions []string `json:"filterOptions"`
	} `json:"footnotes"`
}

type locationDoc struct {
	PublicID string `json:"publicId"`
	Level    string `json:"level"`
	Code     string `json:"code"`
	Name     string `json:"name"`
	OldCode  string `json:"oldCode"`
	URN      string `json:"urn"`
	LAEstab  string `json:"laEstab"`
}

// Manifest is a validated dataset manifest with internal ids
// assigned.
type Manifest struct {
	Name    string
	Summary string

	Filters       map[string]model.Filter
	FilterOptions []model.FilterOption
	Locations     []model.LocationOption
	Indicators    []model.Indicator
	TimePeriods   []model.TimePeriod
	Footnotes     []model.Footnote
}

// LoadManifest reads and parses a manifest CUE file.
func LoadManifest(path string) (*Manifest, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return ParseManifest(string(src), path)
}

// ParseManifest validates manifest CUE source against the embedded
// schema and assigns internal ids.
func ParseManifest(src, filename string) (*Manifest, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile manifest schema: %w", err)
	}

	value := ctx.CompileString(src, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return nil, &ManifestError{Message: fmt.Sprintf("parsing CUE: %v", err)}
	}

	unified := schema.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, &ManifestError{Message: fmt.Sprintf("schema validation: %v", err)}
	}

	manifestVal := unified.LookupPath(cue.ParsePath("manifest"))
	if !manifestVal.Exists() {
		return nil, &ManifestError{Field: "manifest", Message: "top-level manifest field is required"}
	}

	var doc manifestDoc
	if err := manifestVal.Decode(&doc); err != nil {
		return nil, &ManifestError{Message: fmt.Sprintf("decoding: %v", err)}
	}

	return buildManifest(doc)
}

// buildManifest runs the semantic checks CUE cannot express and
// assigns deterministic internal ids.
func buildManifest(doc manifestDoc) (*Manifest, error) {
	m := &Manifest{
		Name:    doc.Name,
		Summary: doc.Summary,
		Filters: make(map[string]model.Filter, len(doc.Filters)),
	}

	if len(doc.Indicators) == 0 {
		return nil, &ManifestError{Field: "indicators", Message: "at least one indicator is required"}
	}
	if len(doc.TimePeriods) == 0 {
		return nil, &ManifestError{Field: "timePeriods", Message: "at least one time period is required"}
	}
	if len(doc.Locations) == 0 {
		return nil, &ManifestError{Field: "locations", Message: "at least one location is required"}
	}

	// Filter options: ids assigned by (column, public id). Public ids
	// must be unique across columns - they identify options on their
	// own in queries and changelogs.
	seenOptions := map[string]string{}
	var id int64
	for _, column := range sortedKeys(doc.Filters) {
		filter := doc.Filters[column]
		m.Filters[column] = model.Filter{Column: column, Label: filter.Label, Hint: filter.Hint}
		for _, publicID := range sortedKeys(filter.Options) {
			if prev, dup := seenOptions[publicID]; dup {
				return nil, &ManifestError{
					Field:   "filters." + column,
					Message: fmt.Sprintf("option public id %q already used by filter %q", publicID, prev),
				}
			}
			seenOptions[publicID] = column
			id++
			m.FilterOptions = append(m.FilterOptions, model.FilterOption{
				ID:       id,
				PublicID: publicID,
				Column:   column,
				Label:    filter.Options[publicID].Label,
			})
		}
	}

	// Locations: ids by (level, public id).
	locations := append([]locationDoc(nil), doc.Locations...)
	sort.Slice(locations, func(i, j int) bool {
		if locations[i].Level != locations[j].Level {
			return locations[i].Level < locations[j].Level
		}
		return locations[i].PublicID < locations[j].PublicID
	})
	seenLocations := map[string]bool{}
	for i, loc := range locations {
		level := model.GeographicLevel(loc.Level)
		if !level.IsKnown() {
			return nil, &ManifestError{
				Field:   "locations",
				Message: fmt.Sprintf("unknown geographic level %q for %q", loc.Level, loc.PublicID),
			}
		}
		if seenLocations[loc.PublicID] {
			return nil, &ManifestError{
				Field:   "locations",
				Message: fmt.Sprintf("duplicate location public id %q", loc.PublicID),
			}
		}
		seenLocations[loc.PublicID] = true
		m.Locations = append(m.Locations, model.LocationOption{
			ID:       int64(i + 1),
			PublicID: loc.PublicID,
			Level:    level,
			Code:     loc.Code,
			Name:     loc.Name,
			OldCode:  loc.OldCode,
			URN:      loc.URN,
			LAEstab:  loc.LAEstab,
		})
	}

	// Indicators: sorted by id for stable column order.
	for _, indicatorID := range sortedKeys(doc.Indicators) {
		ind := doc.Indicators[indicatorID]
		m.Indicators = append(m.Indicators, model.Indicator{
			ID:            indicatorID,
			Label:         ind.Label,
			Unit:          ind.Unit,
			DecimalPlaces: ind.DecimalPlaces,
		})
	}

	// Time periods: ids assigned in chronological (code, ordinal)
	// order. The engine's time sorts depend on this.
	type periodWithOrdinal struct {
		code, period string
		ordinal      int64
	}
	periods := make([]periodWithOrdinal, 0, len(doc.TimePeriods))
	seenPeriods := map[string]bool{}
	for _, tp := range doc.TimePeriods {
		key := tp.Code + "|" + tp.Period
		if seenPeriods[key] {
			return nil, &ManifestError{
				Field:   "timePeriods",
				Message: fmt.Sprintf("duplicate time period %s %q", tp.Code, tp.Period),
			}
		}
		seenPeriods[key] = true
		ordinal, err := model.ParseOrdinal(tp.Code, tp.Period)
		if err != nil {
			return nil, &ManifestError{Field: "timePeriods", Message: err.Error()}
		}
		periods = append(periods, periodWithOrdinal{code: tp.Code, period: tp.Period, ordinal: ordinal})
	}
	sort.Slice(periods, func(i, j int) bool {
		if periods[i].code != periods[j].code {
			return periods[i].code < periods[j].code
		}
		return periods[i].ordinal < periods[j].ordinal
	})
	for i, tp := range periods {
		m.TimePeriods = append(m.TimePeriods, model.TimePeriod{
			ID:      int64(i + 1),
			Code:    tp.code,
			Period:  tp.period,
			Ordinal: tp.ordinal,
		})
	}

	// Footnote selectors must reference declared entities.
	indicatorSet := map[string]bool{}
	for _, ind := range m.Indicators {
		indicatorSet[ind.ID] = true
	}
	for _, fn := range doc.Footnotes {
		for _, ref := range fn.Indicators {
			if !indicatorSet[ref] {
				return nil, &ManifestError{
					Field:   "footnotes",
					Message: fmt.Sprintf("footnote %q references unknown indicator %q", fn.ID, ref),
				}
			}
		}
		for _, ref := range fn.FilterOptions {
			if _, ok := seenOptions[ref]; !ok {
				return nil, &ManifestError{
					Field:   "footnotes",
					Message: fmt.Sprintf("footnote %q references unknown filter option %q", fn.ID, ref),
				}
			}
		}
		m.Footnotes = append(m.Footnotes, model.Footnote{
			ID:            fn.ID,
			Content:       fn.Content,
			Indicators:    fn.Indicators,
			FilterOptions: fn.FilterOptions,
		})
	}

	return m, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
