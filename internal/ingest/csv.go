package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"

	"github.com/openstats/factstore/internal/columnar"
	"github.com/openstats/factstore/internal/model"
	"github.com/openstats/factstore/internal/store"
)

// Fixed facts CSV columns. Filter and indicator columns follow, named
// by filter column / indicator id.
const (
	csvColLevel    = "geographic_level"
	csvColLocation = "location"
	csvColTimeCode = "time_code"
	csvColPeriod   = "time_period"
)

const cancelCheckEvery = 1024

// RowError reports one invalid facts CSV cell.
type RowError struct {
	Line    int
	Column  string
	Message string
}

func (e *RowError) Error() string {
	return fmt.Sprintf("facts row %d, column %q: %s", e.Line, e.Column, e.Message)
}

// ReadFacts parses a facts CSV against the manifest: every cell must
// reference a declared dimension entry. Row ids are assigned in file
// order, starting at 1.
func ReadFacts(ctx context.Context, r io.Reader, m *Manifest) ([]columnar.FactRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = 0

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read facts header: %w", err)
	}
	layout, err := buildLayout(header, m)
	if err != nil {
		return nil, err
	}

	lookups := buildLookups(m)

	var rows []columnar.FactRow
	line := 1
	for {
		if len(rows)%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read facts row: %w", err)
		}
		line++

		row, err := layout.parseRow(line, record, lookups)
		if err != nil {
			return nil, err
		}
		row.RowID = int64(len(rows) + 1)
		rows = append(rows, row)
	}

	return rows, nil
}

// Extract loads a manifest and facts CSV pair into the VersionData
// the store writes.
func Extract(ctx context.Context, manifestPath, factsPath string) (store.VersionData, error) {
	manifest, err := LoadManifest(manifestPath)
	if err != nil {
		return store.VersionData{}, err
	}

	f, err := os.Open(factsPath)
	if err != nil {
		return store.VersionData{}, fmt.Errorf("open facts file: %w", err)
	}
	defer f.Close()

	facts, err := ReadFacts(ctx, f, manifest)
	if err != nil {
		return store.VersionData{}, err
	}

	return store.VersionData{
		Filters:       manifest.Filters,
		FilterOptions: manifest.FilterOptions,
		Locations:     manifest.Locations,
		Indicators:    manifest.Indicators,
		TimePeriods:   manifest.TimePeriods,
		Footnotes:     manifest.Footnotes,
		Facts:         facts,
	}, nil
}

// layout maps header positions to their roles.
type layout struct {
	level, location, timeCode, period int
	filters                           map[string]int // filter column -> position
	indicators                        map[string]int // indicator id -> position
}

func buildLayout(header []string, m *Manifest) (*layout, error) {
	l := &layout{
		level: -1, location: -1, timeCode: -1, period: -1,
		filters:    map[string]int{},
		indicators: map[string]int{},
	}

	indicatorSet := map[string]bool{}
	for _, ind := range m.Indicators {
		indicatorSet[ind.ID] = true
	}

	for i, name := range header {
		switch {
		case name == csvColLevel:
			l.level = i
		case name == csvColLocation:
			l.location = i
		case name == csvColTimeCode:
			l.timeCode = i
		case name == csvColPeriod:
			l.period = i
		default:
			if _, ok := m.Filters[name]; ok {
				l.filters[name] = i
				continue
			}
			if indicatorSet[name] {
				l.indicators[name] = i
				continue
			}
			return nil, &RowError{Line: 1, Column: name, Message: "column not declared in manifest"}
		}
	}

	for _, missing := range []struct {
		name string
		pos  int
	}{
		{csvColLevel, l.level}, {csvColLocation, l.location},
		{csvColTimeCode, l.timeCode}, {csvColPeriod, l.period},
	} {
		if missing.pos < 0 {
			return nil, &RowError{Line: 1, Column: missing.name, Message: "required column missing"}
		}
	}
	for column := range m.Filters {
		if _, ok := l.filters[column]; !ok {
			return nil, &RowError{Line: 1, Column: column, Message: "filter column missing"}
		}
	}
	for id := range indicatorSet {
		if _, ok := l.indicators[id]; !ok {
			return nil, &RowError{Line: 1, Column: id, Message: "indicator column missing"}
		}
	}

	return l, nil
}

// lookups resolves public references to manifest internal ids.
type lookups struct {
	locations map[string]int // public id -> index into manifest.Locations
	periods   map[string]int64
	options   map[string]optionRef
	manifest  *Manifest
}

type optionRef struct {
	id     int64
	column string
}

func buildLookups(m *Manifest) *lookups {
	l := &lookups{
		locations: make(map[string]int, len(m.Locations)),
		periods:   make(map[string]int64, len(m.TimePeriods)),
		options:   make(map[string]optionRef, len(m.FilterOptions)),
		manifest:  m,
	}
	for i, loc := range m.Locations {
		l.locations[loc.PublicID] = i
	}
	for _, tp := range m.TimePeriods {
		l.periods[tp.Code+"|"+tp.Period] = tp.ID
	}
	for _, opt := range m.FilterOptions {
		l.options[opt.PublicID] = optionRef{id: opt.ID, column: opt.Column}
	}
	return l
}

func (l *layout) parseRow(line int, record []string, lk *lookups) (columnar.FactRow, error) {
	row := columnar.FactRow{
		FilterIDs:  make(map[string]int64, len(l.filters)),
		Indicators: make(map[string]string, len(l.indicators)),
	}

	level := record[l.level]
	locIdx, ok := lk.locations[record[l.location]]
	if !ok {
		return row, &RowError{Line: line, Column: csvColLocation, Message: fmt.Sprintf("unknown location %q", record[l.location])}
	}
	loc := lk.manifest.Locations[locIdx]
	if string(loc.Level) != level {
		return row, &RowError{
			Line: line, Column: csvColLevel,
			Message: fmt.Sprintf("location %q is level %s, row says %q", loc.PublicID, loc.Level, level),
		}
	}
	row.GeographicLevel = model.GeographicLevel(level)
	row.LocationID = loc.ID

	periodKey := record[l.timeCode] + "|" + record[l.period]
	periodID, ok := lk.periods[periodKey]
	if !ok {
		return row, &RowError{Line: line, Column: csvColPeriod, Message: fmt.Sprintf("unknown time period %q", periodKey)}
	}
	row.TimePeriodID = periodID

	for column, pos := range l.filters {
		ref, ok := lk.options[record[pos]]
		if !ok || ref.column != column {
			return row, &RowError{Line: line, Column: column, Message: fmt.Sprintf("unknown option %q", record[pos])}
		}
		row.FilterIDs[column] = ref.id
	}
	for id, pos := range l.indicators {
		row.Indicators[id] = record[pos]
	}

	return row, nil
}
