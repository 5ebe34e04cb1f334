package columnar

import (
	"context"
	"fmt"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"

	"github.com/openstats/factstore/internal/model"
)

// ReadFilterOptions reads back a version's filter options plus the
// filter metadata flattened into the file.
func ReadFilterOptions(ctx context.Context, path string) (map[string]model.Filter, []model.FilterOption, error) {
	var rows []filterOptionRow
	if err := readRows(ctx, path, "filters", new(filterOptionRow), &rows); err != nil {
		return nil, nil, err
	}

	filters := make(map[string]model.Filter)
	options := make([]model.FilterOption, 0, len(rows))
	for _, row := range rows {
		if _, ok := filters[row.Column]; !ok {
			filters[row.Column] = model.Filter{
				Column: row.Column,
				Label:  row.FilterLabel,
				Hint:   row.FilterHint,
			}
		}
		options = append(options, model.FilterOption{
			ID:       row.ID,
			PublicID: row.PublicID,
			Column:   row.Column,
			Label:    row.Label,
		})
	}
	return filters, options, nil
}

// ReadLocations reads back a version's location options.
func ReadLocations(ctx context.Context, path string) ([]model.LocationOption, error) {
	var rows []locationRow
	if err := readRows(ctx, path, "locations", new(locationRow), &rows); err != nil {
		return nil, err
	}

	options := make([]model.LocationOption, 0, len(rows))
	for _, row := range rows {
		options = append(options, model.LocationOption{
			ID:       row.ID,
			PublicID: row.PublicID,
			Level:    model.GeographicLevel(row.Level),
			Code:     row.Code,
			Name:     row.Name,
			OldCode:  row.OldCode,
			URN:      row.URN,
			LAEstab:  row.LAEstab,
		})
	}
	return options, nil
}

// ReadIndicators reads back a version's indicators.
func ReadIndicators(ctx context.Context, path string) ([]model.Indicator, error) {
	var rows []indicatorRow
	if err := readRows(ctx, path, "indicators", new(indicatorRow), &rows); err != nil {
		return nil, err
	}

	indicators := make([]model.Indicator, 0, len(rows))
	for _, row := range rows {
		indicators = append(indicators, model.Indicator{
			ID:            row.ID,
			Label:         row.Label,
			Unit:          row.Unit,
			DecimalPlaces: int(row.DecimalPlaces),
		})
	}
	return indicators, nil
}

// ReadTimePeriods reads back a version's time periods.
func ReadTimePeriods(ctx context.Context, path string) ([]model.TimePeriod, error) {
	var rows []timePeriodRow
	if err := readRows(ctx, path, "time_periods", new(timePeriodRow), &rows); err != nil {
		return nil, err
	}

	periods := make([]model.TimePeriod, 0, len(rows))
	for _, row := range rows {
		periods = append(periods, model.TimePeriod{
			ID:      row.ID,
			Code:    row.Code,
			Period:  row.Period,
			Ordinal: row.Ordinal,
		})
	}
	return periods, nil
}

// readRows reads a whole statically-tagged parquet file into out,
// which must be a pointer to a slice of the row type.
func readRows[T any](ctx context.Context, path, table string, schema any, out *[]T) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("read %s: %w", table, err)
	}

	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return fmt.Errorf("read %s: open %s: %w", table, path, err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, schema, 2)
	if err != nil {
		return fmt.Errorf("read %s: reader: %w", table, err)
	}
	defer pr.ReadStop()

	num := int(pr.GetNumRows())
	rows := make([]T, num)
	if num > 0 {
		if err := pr.Read(&rows); err != nil {
			return fmt.Errorf("read %s: %w", table, err)
		}
	}
	*out = rows
	return nil
}
