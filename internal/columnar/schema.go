package columnar

import (
	"fmt"
	"sort"

	"github.com/openstats/factstore/internal/model"
)

// filterOptionRow is the on-disk shape of one filter option, with its
// parent filter's metadata flattened in so the file is self-contained.
type filterOptionRow struct {
	ID          int64  `parquet:"name=id, type=INT64"`
	PublicID    string `parquet:"name=public_id, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Column      string `parquet:"name=column_name, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Label       string `parquet:"name=label, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	FilterLabel string `parquet:"name=filter_label, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	FilterHint  string `parquet:"name=filter_hint, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
}

type locationRow struct {
	ID       int64  `parquet:"name=id, type=INT64"`
	PublicID string `parquet:"name=public_id, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Level    string `parquet:"name=level, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Code     string `parquet:"name=code, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Name     string `parquet:"name=name, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	OldCode  string `parquet:"name=old_code, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	URN      string `parquet:"name=urn, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	LAEstab  string `parquet:"name=laestab, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
}

type indicatorRow struct {
	ID            string `parquet:"name=id, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Label         string `parquet:"name=label, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Unit          string `parquet:"name=unit, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	DecimalPlaces int32  `parquet:"name=decimal_places, type=INT32"`
}

type timePeriodRow struct {
	ID      int64  `parquet:"name=id, type=INT64"`
	Code    string `parquet:"name=code, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Period  string `parquet:"name=period, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Ordinal int64  `parquet:"name=ordinal, type=INT64"`
}

// FactsSchema describes a version's facts table: the fixed columns
// plus the dataset's filter and indicator columns in deterministic
// (sorted) order.
type FactsSchema struct {
	FilterColumns    []string
	IndicatorColumns []string
}

// NewFactsSchema builds a schema from a version's metadata, sorting
// the dynamic columns so the file layout is deterministic.
func NewFactsSchema(filterColumns, indicatorColumns []string) FactsSchema {
	filters := append([]string(nil), filterColumns...)
	indicators := append([]string(nil), indicatorColumns...)
	sort.Strings(filters)
	sort.Strings(indicators)
	return FactsSchema{FilterColumns: filters, IndicatorColumns: indicators}
}

// Columns returns every column name in file order: row_id,
// geographic_level, location_id, time_period_id, filter columns,
// indicator columns.
func (s FactsSchema) Columns() []string {
	cols := []string{"row_id", "geographic_level", "location_id", "time_period_id"}
	cols = append(cols, s.FilterColumns...)
	cols = append(cols, s.IndicatorColumns...)
	return cols
}

// metadata returns the parquet-go CSV-writer schema strings for the
// facts table.
func (s FactsSchema) metadata() []string {
	md := []string{
		"name=row_id, type=INT64",
		"name=geographic_level, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY",
		"name=location_id, type=INT64",
		"name=time_period_id, type=INT64",
	}
	for _, column := range s.FilterColumns {
		md = append(md, fmt.Sprintf("name=%s, type=INT64", column))
	}
	for _, column := range s.IndicatorColumns {
		md = append(md, fmt.Sprintf("name=%s, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY", column))
	}
	return md
}

// FactRow is one observation row in memory. FilterIDs maps filter
// column name to the selected option's internal id; Indicators maps
// indicator id to the measure value (kept as a string - statistics
// values carry suppression markers like "z" and "c" alongside
// numbers).
type FactRow struct {
	RowID           int64
	GeographicLevel model.GeographicLevel
	LocationID      int64
	TimePeriodID    int64
	FilterIDs       map[string]int64
	Indicators      map[string]string
}

// record flattens the row into file column order.
func (r FactRow) record(schema FactsSchema) []any {
	rec := []any{r.RowID, string(r.GeographicLevel), r.LocationID, r.TimePeriodID}
	for _, column := range schema.FilterColumns {
		rec = append(rec, r.FilterIDs[column])
	}
	for _, column := range schema.IndicatorColumns {
		rec = append(rec, r.Indicators[column])
	}
	return rec
}
