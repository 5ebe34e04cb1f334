package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/openstats/factstore/internal/model"
)

// Dimension lookups. Each dimension supports lookup by internal id
// set and by domain-level descriptor (public ids, structural location
// refs, (code, period) pairs). Results are ordered by internal id -
// storage order is not request order, so every returned option
// carries both sides of its id/public-id pair for re-association.

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func stringArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// Filters returns the version's filter metadata keyed by column name.
func (s *Store) Filters(ctx context.Context, v model.DataSetVersion) (map[string]model.Filter, error) {
	db, err := s.openRead(v)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `SELECT column_name, label, hint FROM filter_meta ORDER BY column_name`)
	if err != nil {
		return nil, fmt.Errorf("filters: %w", err)
	}
	defer rows.Close()

	filters := make(map[string]model.Filter)
	for rows.Next() {
		var f model.Filter
		if err := rows.Scan(&f.Column, &f.Label, &f.Hint); err != nil {
			return nil, fmt.Errorf("filters: scan: %w", err)
		}
		filters[f.Column] = f
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("filters: iterate: %w", err)
	}
	return filters, nil
}

// ListFilterOptions returns every filter option, ordered by internal
// id.
func (s *Store) ListFilterOptions(ctx context.Context, v model.DataSetVersion) ([]model.FilterOption, error) {
	return s.queryFilterOptions(ctx, v, `SELECT id, public_id, column_name, label FROM filter_options ORDER BY id`)
}

// FilterOptionsByIDs returns the options with the given internal ids,
// ordered by internal id. Missing ids are simply absent from the
// result; callers decide whether that is an error.
func (s *Store) FilterOptionsByIDs(ctx context.Context, v model.DataSetVersion, ids []int64) ([]model.FilterOption, error) {
	if len(ids) == 0 {
		return []model.FilterOption{}, nil
	}
	query := fmt.Sprintf(
		`SELECT id, public_id, column_name, label FROM filter_options WHERE id IN (%s) ORDER BY id`,
		placeholders(len(ids)))
	return s.queryFilterOptions(ctx, v, query, int64Args(ids)...)
}

// FilterOptionsByPublicIDs returns the options with the given public
// ids, ordered by internal id.
func (s *Store) FilterOptionsByPublicIDs(ctx context.Context, v model.DataSetVersion, publicIDs []string) ([]model.FilterOption, error) {
	if len(publicIDs) == 0 {
		return []model.FilterOption{}, nil
	}
	query := fmt.Sprintf(
		`SELECT id, public_id, column_name, label FROM filter_options WHERE public_id IN (%s) ORDER BY id`,
		placeholders(len(publicIDs)))
	return s.queryFilterOptions(ctx, v, query, stringArgs(publicIDs)...)
}

func (s *Store) queryFilterOptions(ctx context.Context, v model.DataSetVersion, query string, args ...any) ([]model.FilterOption, error) {
	db, err := s.openRead(v)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("filter options: %w", err)
	}
	defer rows.Close()

	var options []model.FilterOption
	for rows.Next() {
		var opt model.FilterOption
		if err := rows.Scan(&opt.ID, &opt.PublicID, &opt.Column, &opt.Label); err != nil {
			return nil, fmt.Errorf("filter options: scan: %w", err)
		}
		options = append(options, opt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("filter options: iterate: %w", err)
	}
	if options == nil {
		options = []model.FilterOption{}
	}
	return options, nil
}

const locationColumns = `id, public_id, level, code, name, old_code, urn, laestab`

// ListLocations returns every location option, ordered by internal
// id.
func (s *Store) ListLocations(ctx context.Context, v model.DataSetVersion) ([]model.LocationOption, error) {
	return s.queryLocations(ctx, v, fmt.Sprintf(`SELECT %s FROM locations ORDER BY id`, locationColumns))
}

// LocationsByIDs returns the locations with the given internal ids,
// ordered by internal id.
func (s *Store) LocationsByIDs(ctx context.Context, v model.DataSetVersion, ids []int64) ([]model.LocationOption, error) {
	if len(ids) == 0 {
		return []model.LocationOption{}, nil
	}
	query := fmt.Sprintf(
		`SELECT %s FROM locations WHERE id IN (%s) ORDER BY id`,
		locationColumns, placeholders(len(ids)))
	return s.queryLocations(ctx, v, query, int64Args(ids)...)
}

// LocationMatch pairs one requested structural ref with the location
// options matching it, so callers can re-associate results with what
// they asked for.
type LocationMatch struct {
	Ref     model.LocationRef
	Options []model.LocationOption
}

// LocationsByRefs resolves structural location references. The result
// is aligned with the request: one LocationMatch per ref, in request
// order, with an empty Options slice when nothing matches.
func (s *Store) LocationsByRefs(ctx context.Context, v model.DataSetVersion, refs []model.LocationRef) ([]LocationMatch, error) {
	matches := make([]LocationMatch, 0, len(refs))
	for _, ref := range refs {
		where, arg, err := locationRefPredicate(ref)
		if err != nil {
			return nil, err
		}
		query := fmt.Sprintf(
			`SELECT %s FROM locations WHERE level = ? AND %s ORDER BY id`,
			locationColumns, where)
		options, err := s.queryLocations(ctx, v, query, string(ref.Level), arg)
		if err != nil {
			return nil, err
		}
		matches = append(matches, LocationMatch{Ref: ref, Options: options})
	}
	return matches, nil
}

func locationRefPredicate(ref model.LocationRef) (string, any, error) {
	switch {
	case ref.ID != "":
		return "public_id = ?", ref.ID, nil
	case ref.Code != "":
		return "code = ?", ref.Code, nil
	case ref.OldCode != "":
		return "old_code = ?", ref.OldCode, nil
	case ref.URN != "":
		return "urn = ?", ref.URN, nil
	case ref.LAEstab != "":
		return "laestab = ?", ref.LAEstab, nil
	default:
		return "", nil, fmt.Errorf("location ref %s: no identifying attribute", ref.CanonicalString())
	}
}

func (s *Store) queryLocations(ctx context.Context, v model.DataSetVersion, query string, args ...any) ([]model.LocationOption, error) {
	db, err := s.openRead(v)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("locations: %w", err)
	}
	defer rows.Close()

	var options []model.LocationOption
	for rows.Next() {
		var (
			opt   model.LocationOption
			level string
		)
		if err := rows.Scan(&opt.ID, &opt.PublicID, &level, &opt.Code, &opt.Name, &opt.OldCode, &opt.URN, &opt.LAEstab); err != nil {
			return nil, fmt.Errorf("locations: scan: %w", err)
		}
		opt.Level = model.GeographicLevel(level)
		options = append(options, opt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("locations: iterate: %w", err)
	}
	if options == nil {
		options = []model.LocationOption{}
	}
	return options, nil
}

// Indicators returns the version's indicators ordered by id.
func (s *Store) Indicators(ctx context.Context, v model.DataSetVersion) ([]model.Indicator, error) {
	return s.queryIndicators(ctx, v, `SELECT id, label, unit, decimal_places FROM indicators ORDER BY id`)
}

// IndicatorsByIDs returns the indicators with the given ids, ordered
// by id.
func (s *Store) IndicatorsByIDs(ctx context.Context, v model.DataSetVersion, ids []string) ([]model.Indicator, error) {
	if len(ids) == 0 {
		return []model.Indicator{}, nil
	}
	query := fmt.Sprintf(
		`SELECT id, label, unit, decimal_places FROM indicators WHERE id IN (%s) ORDER BY id`,
		placeholders(len(ids)))
	return s.queryIndicators(ctx, v, query, stringArgs(ids)...)
}

func (s *Store) queryIndicators(ctx context.Context, v model.DataSetVersion, query string, args ...any) ([]model.Indicator, error) {
	db, err := s.openRead(v)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("indicators: %w", err)
	}
	defer rows.Close()

	var indicators []model.Indicator
	for rows.Next() {
		var ind model.Indicator
		if err := rows.Scan(&ind.ID, &ind.Label, &ind.Unit, &ind.DecimalPlaces); err != nil {
			return nil, fmt.Errorf("indicators: scan: %w", err)
		}
		indicators = append(indicators, ind)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("indicators: iterate: %w", err)
	}
	if indicators == nil {
		indicators = []model.Indicator{}
	}
	return indicators, nil
}

// TimePeriods returns the version's time periods in chronological
// order (code, then ordinal).
func (s *Store) TimePeriods(ctx context.Context, v model.DataSetVersion) ([]model.TimePeriod, error) {
	return s.queryTimePeriods(ctx, v, `SELECT id, code, period, ordinal FROM time_periods ORDER BY code, ordinal, id`)
}

// TimePeriodsByRefs returns the periods matching the given (code,
// period) pairs, ordered by internal id.
func (s *Store) TimePeriodsByRefs(ctx context.Context, v model.DataSetVersion, refs []model.TimePeriodRef) ([]model.TimePeriod, error) {
	if len(refs) == 0 {
		return []model.TimePeriod{}, nil
	}

	clauses := make([]string, len(refs))
	args := make([]any, 0, len(refs)*2)
	for i, ref := range refs {
		clauses[i] = "(code = ? AND period = ?)"
		args = append(args, ref.Code, ref.Period)
	}
	query := fmt.Sprintf(
		`SELECT id, code, period, ordinal FROM time_periods WHERE %s ORDER BY id`,
		strings.Join(clauses, " OR "))
	return s.queryTimePeriods(ctx, v, query, args...)
}

func (s *Store) queryTimePeriods(ctx context.Context, v model.DataSetVersion, query string, args ...any) ([]model.TimePeriod, error) {
	db, err := s.openRead(v)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("time periods: %w", err)
	}
	defer rows.Close()

	var periods []model.TimePeriod
	for rows.Next() {
		var tp model.TimePeriod
		if err := rows.Scan(&tp.ID, &tp.Code, &tp.Period, &tp.Ordinal); err != nil {
			return nil, fmt.Errorf("time periods: scan: %w", err)
		}
		periods = append(periods, tp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("time periods: iterate: %w", err)
	}
	if periods == nil {
		periods = []model.TimePeriod{}
	}
	return periods, nil
}

// Footnotes returns the footnotes selected by a query's indicators
// and filter options, plus footnotes with no selectors (which apply
// to every query). Ordered by footnote id.
func (s *Store) Footnotes(ctx context.Context, v model.DataSetVersion, indicatorIDs, filterOptionPublicIDs []string) ([]model.Footnote, error) {
	db, err := s.openRead(v)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	var conds []string
	var args []any

	// Footnotes with no selectors apply unconditionally.
	conds = append(conds, `NOT EXISTS (SELECT 1 FROM footnote_selectors fs WHERE fs.footnote_id = f.id)`)

	if len(indicatorIDs) > 0 {
		conds = append(conds, fmt.Sprintf(
			`EXISTS (SELECT 1 FROM footnote_selectors fs WHERE fs.footnote_id = f.id AND fs.kind = 'indicator' AND fs.ref IN (%s))`,
			placeholders(len(indicatorIDs))))
		args = append(args, stringArgs(indicatorIDs)...)
	}
	if len(filterOptionPublicIDs) > 0 {
		conds = append(conds, fmt.Sprintf(
			`EXISTS (SELECT 1 FROM footnote_selectors fs WHERE fs.footnote_id = f.id AND fs.kind = 'filter_option' AND fs.ref IN (%s))`,
			placeholders(len(filterOptionPublicIDs))))
		args = append(args, stringArgs(filterOptionPublicIDs)...)
	}

	query := fmt.Sprintf(
		`SELECT f.id, f.content FROM footnotes f WHERE %s ORDER BY f.id`,
		strings.Join(conds, " OR "))

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("footnotes: %w", err)
	}
	defer rows.Close()

	var footnotes []model.Footnote
	for rows.Next() {
		var fn model.Footnote
		if err := rows.Scan(&fn.ID, &fn.Content); err != nil {
			return nil, fmt.Errorf("footnotes: scan: %w", err)
		}
		footnotes = append(footnotes, fn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("footnotes: iterate: %w", err)
	}
	if footnotes == nil {
		footnotes = []model.Footnote{}
	}
	return footnotes, nil
}
