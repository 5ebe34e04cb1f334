package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/openstats/factstore/internal/model"
	"github.com/openstats/factstore/internal/querysql"
)

// Row is one projected facts row: column name to value. Internal id
// columns carry int64, text columns string.
type Row map[string]any

// SortTerm is one validated ordering term over facts columns.
type SortTerm struct {
	Column string
	Desc   bool
}

// CountRows returns the number of facts rows matching the lowered
// predicate, ignoring pagination.
func (s *Store) CountRows(ctx context.Context, v model.DataSetVersion, where querysql.Fragment) (int64, error) {
	db, err := s.openRead(v)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	var count int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM data WHERE %s", where.SQL)
	if err := db.QueryRowContext(ctx, query, where.Args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count rows: %w", err)
	}
	return count, nil
}

// ListRows returns one page of facts rows projected to exactly the
// requested columns, filtered by the lowered predicate and ordered by
// the sort terms. Pages are 1-indexed. Ordering is always made
// deterministic by a trailing row_id tiebreak, so repeated calls with
// identical parameters paginate reproducibly.
func (s *Store) ListRows(
	ctx context.Context,
	v model.DataSetVersion,
	columns []string,
	where querysql.Fragment,
	sorts []SortTerm,
	page, pageSize int,
) ([]Row, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("list rows: no columns requested")
	}
	if page < 1 {
		return nil, fmt.Errorf("list rows: page must be >= 1, got %d", page)
	}
	if pageSize < 1 {
		return nil, fmt.Errorf("list rows: page size must be >= 1, got %d", pageSize)
	}

	db, err := s.openRead(v)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	quoted := make([]string, len(columns))
	for i, column := range columns {
		quoted[i] = querysql.QuoteIdent(column)
	}

	orderBy := buildOrderBy(sorts)

	query := fmt.Sprintf(
		"SELECT %s FROM data WHERE %s ORDER BY %s LIMIT ? OFFSET ?",
		strings.Join(quoted, ", "),
		where.SQL,
		orderBy,
	)
	args := append(append([]any{}, where.Args...), pageSize, (page-1)*pageSize)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list rows: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("list rows: scan: %w", err)
		}

		row := make(Row, len(columns))
		for i, column := range columns {
			row[column] = normaliseValue(values[i])
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list rows: iterate: %w", err)
	}

	if out == nil {
		out = []Row{}
	}
	return out, nil
}

// buildOrderBy renders the ORDER BY clause. Every query ends with a
// row_id tiebreak; an empty sort list orders by row_id alone.
func buildOrderBy(sorts []SortTerm) string {
	var parts []string
	for _, term := range sorts {
		dir := "ASC"
		if term.Desc {
			dir = "DESC"
		}
		parts = append(parts, fmt.Sprintf("%s %s", querysql.QuoteIdent(term.Column), dir))
	}
	parts = append(parts, querysql.ColRowID+" ASC")
	return strings.Join(parts, ", ")
}

// normaliseValue maps SQLite scan results to row values: []byte to
// string, everything else as scanned.
func normaliseValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// ListColumns returns the facts table's column names in declaration
// order. Used to validate that indicator/filter ids referenced by a
// query exist for the version.
func (s *Store) ListColumns(ctx context.Context, v model.DataSetVersion) ([]string, error) {
	db, err := s.openRead(v)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `SELECT name FROM pragma_table_info('data') ORDER BY cid`)
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}
	defer rows.Close()

	var columns []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("list columns: scan: %w", err)
		}
		columns = append(columns, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list columns: iterate: %w", err)
	}
	return columns, nil
}

// ListGeographicLevels returns the distinct levels present in the
// facts table. Pure metadata read.
func (s *Store) ListGeographicLevels(ctx context.Context, v model.DataSetVersion) ([]model.GeographicLevel, error) {
	db, err := s.openRead(v)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `SELECT DISTINCT geographic_level FROM data ORDER BY geographic_level`)
	if err != nil {
		return nil, fmt.Errorf("list geographic levels: %w", err)
	}
	defer rows.Close()

	var levels []model.GeographicLevel
	for rows.Next() {
		var level string
		if err := rows.Scan(&level); err != nil {
			return nil, fmt.Errorf("list geographic levels: scan: %w", err)
		}
		levels = append(levels, model.GeographicLevel(level))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list geographic levels: iterate: %w", err)
	}
	return levels, nil
}
