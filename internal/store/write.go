package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	"github.com/openstats/factstore/internal/columnar"
	"github.com/openstats/factstore/internal/model"
	"github.com/openstats/factstore/internal/querysql"
)

// VersionData is the fully extracted content of one dataset version,
// handed to WriteDataFiles by the processing pipeline.
type VersionData struct {
	Filters       map[string]model.Filter
	FilterOptions []model.FilterOption
	Locations     []model.LocationOption
	Indicators    []model.Indicator
	TimePeriods   []model.TimePeriod
	Footnotes     []model.Footnote
	Facts         []columnar.FactRow
}

// FactsSchema derives the facts table schema from the version's
// metadata.
func (d VersionData) FactsSchema() columnar.FactsSchema {
	filterColumns := make([]string, 0, len(d.Filters))
	for column := range d.Filters {
		filterColumns = append(filterColumns, column)
	}
	indicatorColumns := make([]string, 0, len(d.Indicators))
	for _, ind := range d.Indicators {
		indicatorColumns = append(indicatorColumns, ind.ID)
	}
	return columnar.NewFactsSchema(filterColumns, indicatorColumns)
}

// WriteDataFiles transforms the extracted version content into the
// version's columnar file set: the five parquet files plus the query
// database, all inside the version-exclusive directory. The version
// is not queryable until the lifecycle transitions it, so a failure
// or cancellation mid-write is never visible to readers; the
// lifecycle removes the directory when it marks the version Failed.
func (s *Store) WriteDataFiles(ctx context.Context, v model.DataSetVersion, data VersionData) error {
	dir := s.resolver.DirectoryPath(v.DataSetID, v.Version)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("write data files: create %s: %w", dir, err)
	}

	schema := data.FactsSchema()

	if err := columnar.WriteFacts(ctx, s.resolver.DataPath(v.DataSetID, v.Version), schema, data.Facts); err != nil {
		return fmt.Errorf("write data files: %w", err)
	}
	if err := columnar.WriteFilterOptions(ctx, s.resolver.FiltersPath(v.DataSetID, v.Version), data.Filters, data.FilterOptions); err != nil {
		return fmt.Errorf("write data files: %w", err)
	}
	if err := columnar.WriteLocations(ctx, s.resolver.LocationsPath(v.DataSetID, v.Version), data.Locations); err != nil {
		return fmt.Errorf("write data files: %w", err)
	}
	if err := columnar.WriteIndicators(ctx, s.resolver.IndicatorsPath(v.DataSetID, v.Version), data.Indicators); err != nil {
		return fmt.Errorf("write data files: %w", err)
	}
	if err := columnar.WriteTimePeriods(ctx, s.resolver.TimePeriodsPath(v.DataSetID, v.Version), data.TimePeriods); err != nil {
		return fmt.Errorf("write data files: %w", err)
	}

	if err := s.writeQueryDB(ctx, v, schema, data); err != nil {
		return fmt.Errorf("write data files: %w", err)
	}
	return nil
}

// writeQueryDB builds the version's SQLite query database from the
// same rows the parquet files hold.
func (s *Store) writeQueryDB(ctx context.Context, v model.DataSetVersion, schema columnar.FactsSchema, data VersionData) error {
	db, err := s.openWrite(ctx, v)
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, dataTableDDL(schema)); err != nil {
		return fmt.Errorf("create data table: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	for column, meta := range data.Filters {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO filter_meta (column_name, label, hint) VALUES (?, ?, ?)`,
			column, meta.Label, meta.Hint,
		); err != nil {
			return fmt.Errorf("insert filter meta %q: %w", column, err)
		}
	}
	for _, opt := range data.FilterOptions {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO filter_options (id, public_id, column_name, label) VALUES (?, ?, ?, ?)`,
			opt.ID, opt.PublicID, opt.Column, opt.Label,
		); err != nil {
			return fmt.Errorf("insert filter option %q: %w", opt.PublicID, err)
		}
	}
	for _, loc := range data.Locations {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO locations (id, public_id, level, code, name, old_code, urn, laestab)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			loc.ID, loc.PublicID, string(loc.Level), loc.Code, loc.Name, loc.OldCode, loc.URN, loc.LAEstab,
		); err != nil {
			return fmt.Errorf("insert location %q: %w", loc.PublicID, err)
		}
	}
	for _, ind := range data.Indicators {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO indicators (id, label, unit, decimal_places) VALUES (?, ?, ?, ?)`,
			ind.ID, ind.Label, ind.Unit, ind.DecimalPlaces,
		); err != nil {
			return fmt.Errorf("insert indicator %q: %w", ind.ID, err)
		}
	}
	for _, tp := range data.TimePeriods {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO time_periods (id, code, period, ordinal) VALUES (?, ?, ?, ?)`,
			tp.ID, tp.Code, tp.Period, tp.Ordinal,
		); err != nil {
			return fmt.Errorf("insert time period %s %q: %w", tp.Code, tp.Period, err)
		}
	}
	for _, fn := range data.Footnotes {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO footnotes (id, content) VALUES (?, ?)`,
			fn.ID, fn.Content,
		); err != nil {
			return fmt.Errorf("insert footnote %q: %w", fn.ID, err)
		}
		for _, ref := range fn.Indicators {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO footnote_selectors (footnote_id, kind, ref) VALUES (?, 'indicator', ?)`,
				fn.ID, ref,
			); err != nil {
				return fmt.Errorf("insert footnote selector: %w", err)
			}
		}
		for _, ref := range fn.FilterOptions {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO footnote_selectors (footnote_id, kind, ref) VALUES (?, 'filter_option', ?)`,
				fn.ID, ref,
			); err != nil {
				return fmt.Errorf("insert footnote selector: %w", err)
			}
		}
	}

	if err := insertFacts(ctx, tx, schema, data.Facts); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// dataTableDDL builds the per-dataset facts table: fixed columns plus
// one INT64 column per filter and one TEXT column per indicator.
func dataTableDDL(schema columnar.FactsSchema) string {
	var b strings.Builder
	b.WriteString("CREATE TABLE data (\n")
	b.WriteString("    row_id INTEGER PRIMARY KEY,\n")
	b.WriteString("    geographic_level TEXT NOT NULL,\n")
	b.WriteString("    location_id INTEGER NOT NULL REFERENCES locations(id),\n")
	b.WriteString("    time_period_id INTEGER NOT NULL REFERENCES time_periods(id)")
	for _, column := range schema.FilterColumns {
		b.WriteString(",\n    ")
		b.WriteString(querysql.QuoteIdent(column))
		b.WriteString(" INTEGER NOT NULL REFERENCES filter_options(id)")
	}
	for _, column := range schema.IndicatorColumns {
		b.WriteString(",\n    ")
		b.WriteString(querysql.QuoteIdent(column))
		b.WriteString(" TEXT NOT NULL DEFAULT ''")
	}
	b.WriteString("\n)")
	return b.String()
}

func insertFacts(ctx context.Context, tx *sql.Tx, schema columnar.FactsSchema, rows []columnar.FactRow) error {
	columns := schema.Columns()
	quoted := make([]string, len(columns))
	for i, column := range columns {
		quoted[i] = querysql.QuoteIdent(column)
	}
	insertSQL := fmt.Sprintf(
		"INSERT INTO data (%s) VALUES (%s)",
		strings.Join(quoted, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", "),
	)

	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		return fmt.Errorf("prepare facts insert: %w", err)
	}
	defer stmt.Close()

	for i, row := range rows {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("insert facts: %w", err)
			}
		}

		args := []any{row.RowID, string(row.GeographicLevel), row.LocationID, row.TimePeriodID}
		for _, column := range schema.FilterColumns {
			args = append(args, row.FilterIDs[column])
		}
		for _, column := range schema.IndicatorColumns {
			args = append(args, row.Indicators[column])
		}

		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert fact row %d: %w", row.RowID, err)
		}
	}
	return nil
}
