package columnar

import (
	"context"
	"fmt"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/openstats/factstore/internal/model"
)

// cancelCheckEvery is how many rows are written between context
// checks on the facts table (dimension tables are small enough to
// check once per write).
const cancelCheckEvery = 1024

// WriteFacts writes the facts table. The schema's dynamic columns
// must cover every FilterIDs/Indicators key of every row.
func WriteFacts(ctx context.Context, path string, schema FactsSchema, rows []FactRow) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("write facts: open %s: %w", path, err)
	}
	defer fw.Close()

	pw, err := writer.NewCSVWriter(schema.metadata(), fw, 2)
	if err != nil {
		return fmt.Errorf("write facts: writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for i, row := range rows {
		if i%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("write facts: %w", err)
			}
		}
		if err := pw.Write(row.record(schema)); err != nil {
			return fmt.Errorf("write facts: row %d: %w", row.RowID, err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("write facts: finalize: %w", err)
	}
	return nil
}

// WriteFilterOptions writes the filter options table. Filter metadata
// is flattened into each option row so the file is self-contained.
func WriteFilterOptions(ctx context.Context, path string, filters map[string]model.Filter, options []model.FilterOption) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("write filters: %w", err)
	}

	rows := make([]filterOptionRow, 0, len(options))
	for _, opt := range options {
		meta := filters[opt.Column]
		rows = append(rows, filterOptionRow{
			ID:          opt.ID,
			PublicID:    opt.PublicID,
			Column:      opt.Column,
			Label:       opt.Label,
			FilterLabel: meta.Label,
			FilterHint:  meta.Hint,
		})
	}
	return writeRows(path, "filters", new(filterOptionRow), rows)
}

// WriteLocations writes the location options table.
func WriteLocations(ctx context.Context, path string, options []model.LocationOption) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("write locations: %w", err)
	}

	rows := make([]locationRow, 0, len(options))
	for _, opt := range options {
		rows = append(rows, locationRow{
			ID:       opt.ID,
			PublicID: opt.PublicID,
			Level:    string(opt.Level),
			Code:     opt.Code,
			Name:     opt.Name,
			OldCode:  opt.OldCode,
			URN:      opt.URN,
			LAEstab:  opt.LAEstab,
		})
	}
	return writeRows(path, "locations", new(locationRow), rows)
}

// WriteIndicators writes the indicators table.
func WriteIndicators(ctx context.Context, path string, indicators []model.Indicator) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("write indicators: %w", err)
	}

	rows := make([]indicatorRow, 0, len(indicators))
	for _, ind := range indicators {
		rows = append(rows, indicatorRow{
			ID:            ind.ID,
			Label:         ind.Label,
			Unit:          ind.Unit,
			DecimalPlaces: int32(ind.DecimalPlaces),
		})
	}
	return writeRows(path, "indicators", new(indicatorRow), rows)
}

// WriteTimePeriods writes the time periods table.
func WriteTimePeriods(ctx context.Context, path string, periods []model.TimePeriod) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("write time periods: %w", err)
	}

	rows := make([]timePeriodRow, 0, len(periods))
	for _, tp := range periods {
		rows = append(rows, timePeriodRow{
			ID:      tp.ID,
			Code:    tp.Code,
			Period:  tp.Period,
			Ordinal: tp.Ordinal,
		})
	}
	return writeRows(path, "time_periods", new(timePeriodRow), rows)
}

// writeRows writes a statically-tagged row slice as one parquet file.
func writeRows[T any](path, table string, schema any, rows []T) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("write %s: open %s: %w", table, path, err)
	}
	defer fw.Close()

	pw, err := writer.NewParquetWriter(fw, schema, 2)
	if err != nil {
		return fmt.Errorf("write %s: writer: %w", table, err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, row := range rows {
		if err := pw.Write(row); err != nil {
			return fmt.Errorf("write %s: %w", table, err)
		}
	}

	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("write %s: finalize: %w", table, err)
	}
	return nil
}
