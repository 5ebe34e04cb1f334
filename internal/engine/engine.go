package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/openstats/factstore/internal/model"
	"github.com/openstats/factstore/internal/query"
	"github.com/openstats/factstore/internal/querysql"
	"github.com/openstats/factstore/internal/store"
)

// DefaultPageSize applies when a request leaves the page size unset.
const DefaultPageSize = 1000

// MaxPageSize caps one page. Larger requests must paginate.
const MaxPageSize = 10000

// Engine executes queries against published dataset versions.
//
// The engine is stateless: every call re-reads the version's stored
// dimensions, so versions published or withdrawn while the process
// runs are picked up without coordination.
type Engine struct {
	store         *store.Store
	logger        *slog.Logger
	previewDrafts bool
}

// Option configures engine construction.
type Option func(*Engine)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithDraftPreview lets unpublished versions whose data files exist
// (Draft and Mapping) serve queries. Used by review tooling; the
// public query surface never enables it.
func WithDraftPreview() Option {
	return func(e *Engine) {
		e.previewDrafts = true
	}
}

// New creates an Engine over the given store.
func New(s *store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:  s,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Paging describes the returned page relative to the full result set.
type Paging struct {
	Page         int   `json:"page"`
	PageSize     int   `json:"pageSize"`
	TotalResults int64 `json:"totalResults"`
	TotalPages   int   `json:"totalPages"`
}

// Result is one facts row mapped back to public identifiers. Values
// are the indicator cell texts exactly as stored, including
// suppression markers.
type Result struct {
	GeographicLevel model.GeographicLevel `json:"geographicLevel"`
	LocationID      string                `json:"locationId"`
	LocationCode    string                `json:"locationCode,omitempty"`
	LocationName    string                `json:"locationName,omitempty"`
	TimePeriod      model.TimePeriodRef   `json:"timePeriod"`
	Filters         map[string]string     `json:"filters"`
	Values          map[string]string     `json:"values"`
}

// Response is one page of query results plus the footnotes selected
// by the request's indicators and filter options.
type Response struct {
	Paging    Paging           `json:"paging"`
	Results   []Result         `json:"results"`
	Footnotes []model.Footnote `json:"footnotes"`
}

// RunQuery executes a query request against one dataset version.
//
// The request's criteria reference dimensions by public identifiers;
// unknown references are rejected with a *QueryError rather than
// silently matching nothing. Results are paginated deterministically:
// identical requests return identical pages, and walking all pages
// yields every matching row exactly once.
func (e *Engine) RunQuery(ctx context.Context, v model.DataSetVersion, req query.Request) (*Response, error) {
	if !e.queryable(v.Status) {
		return nil, &QueryError{
			Code:    ErrCodeNotQueryable,
			Message: fmt.Sprintf("dataset %s version %s is %s, not %s", v.DataSetID, v.Version, v.Status, model.StatusPublished),
		}
	}

	req, err := query.Normalise(req)
	if err != nil {
		return nil, err
	}

	page, pageSize, err := normalisePaging(req.Page, req.PageSize)
	if err != nil {
		return nil, err
	}

	filters, err := e.store.Filters(ctx, v)
	if err != nil {
		return nil, err
	}
	indicators, err := e.store.Indicators(ctx, v)
	if err != nil {
		return nil, err
	}

	if err := validateIndicators(req.Indicators, indicators); err != nil {
		return nil, err
	}
	sorts, err := buildSorts(req.Sorts, filters, req.Indicators)
	if err != nil {
		return nil, err
	}

	refs := newRefSet()
	if err := refs.collect(req.Criteria); err != nil {
		return nil, err
	}
	res, err := e.resolveRefs(ctx, v, refs)
	if err != nil {
		return nil, err
	}
	lowered, err := res.lower(req.Criteria)
	if err != nil {
		return nil, err
	}
	fragment, err := querysql.Compile(lowered)
	if err != nil {
		return nil, err
	}

	total, err := e.store.CountRows(ctx, v, fragment)
	if err != nil {
		return nil, err
	}

	columns := resultColumns(filters, req.Indicators)
	rows, err := e.store.ListRows(ctx, v, columns, fragment, sorts, page, pageSize)
	if err != nil {
		return nil, err
	}

	results, err := e.mapRows(ctx, v, rows, filters, req.Indicators)
	if err != nil {
		return nil, err
	}

	footnotes, err := e.store.Footnotes(ctx, v, req.Indicators, sortedMapKeys(res.filterOptions))
	if err != nil {
		return nil, err
	}

	e.logger.DebugContext(ctx, "query executed",
		"dataset_id", v.DataSetID,
		"version", v.Version.String(),
		"total_results", total,
		"page", page,
		"page_size", pageSize,
	)

	return &Response{
		Paging: Paging{
			Page:         page,
			PageSize:     pageSize,
			TotalResults: total,
			TotalPages:   totalPages(total, pageSize),
		},
		Results:   results,
		Footnotes: footnotes,
	}, nil
}

func (e *Engine) queryable(status model.VersionStatus) bool {
	if status.IsQueryable() {
		return true
	}
	return e.previewDrafts && (status == model.StatusDraft || status == model.StatusMapping)
}

func normalisePaging(page, pageSize int) (int, int, error) {
	if page == 0 {
		page = 1
	}
	if pageSize == 0 {
		pageSize = DefaultPageSize
	}
	if page < 1 {
		return 0, 0, &QueryError{Code: ErrCodeInvalidPage, Message: fmt.Sprintf("page must be >= 1, got %d", page)}
	}
	if pageSize < 1 || pageSize > MaxPageSize {
		return 0, 0, &QueryError{Code: ErrCodeInvalidPage, Message: fmt.Sprintf("page size must be 1..%d, got %d", MaxPageSize, pageSize)}
	}
	return page, pageSize, nil
}

func totalPages(total int64, pageSize int) int {
	if total == 0 {
		return 0
	}
	return int((total + int64(pageSize) - 1) / int64(pageSize))
}

func validateIndicators(requested []string, available []model.Indicator) error {
	if len(requested) == 0 {
		return &QueryError{Code: ErrCodeNoIndicators, Message: "request must name at least one indicator"}
	}
	known := make(map[string]bool, len(available))
	for _, ind := range available {
		known[ind.ID] = true
	}
	var missing []string
	for _, id := range requested {
		if !known[id] {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return optionNotFound("indicator", missing)
	}
	return nil
}

// buildSorts validates the caller's sort terms against the version's
// queryable fields and maps them to facts table columns. Time period
// internal ids are assigned in chronological order at ingest, so
// ordering by time_period_id is chronological. An empty sort list
// defaults to newest time period first; the store adds the row id
// tiebreak.
func buildSorts(sorts []query.Sort, filters map[string]model.Filter, indicators []string) ([]store.SortTerm, error) {
	if len(sorts) == 0 {
		return []store.SortTerm{{Column: querysql.ColTimePeriodID, Desc: true}}, nil
	}

	indicatorSet := make(map[string]bool, len(indicators))
	for _, id := range indicators {
		indicatorSet[id] = true
	}

	terms := make([]store.SortTerm, 0, len(sorts))
	for _, s := range sorts {
		var column string
		switch {
		case s.Name == "timePeriod":
			column = querysql.ColTimePeriodID
		case s.Name == "geographicLevel":
			column = querysql.ColGeographicLevel
		case s.Name == "location":
			column = querysql.ColLocationID
		default:
			if _, ok := filters[s.Name]; ok {
				column = s.Name
				break
			}
			if indicatorSet[s.Name] {
				column = s.Name
				break
			}
			return nil, &QueryError{
				Code:    ErrCodeInvalidSort,
				Message: "sort field is not queryable in this version",
				Refs:    []string{s.Name},
			}
		}
		terms = append(terms, store.SortTerm{Column: column, Desc: s.Order == query.SortDesc})
	}
	return terms, nil
}

// resultColumns is the projection ListRows runs: the fixed dimension
// columns, every filter column, and the requested indicators.
func resultColumns(filters map[string]model.Filter, indicators []string) []string {
	columns := []string{
		querysql.ColGeographicLevel,
		querysql.ColLocationID,
		querysql.ColTimePeriodID,
	}
	filterColumns := make([]string, 0, len(filters))
	for column := range filters {
		filterColumns = append(filterColumns, column)
	}
	sort.Strings(filterColumns)
	columns = append(columns, filterColumns...)
	return append(columns, indicators...)
}

// mapRows translates raw facts rows back to public identifiers: the
// internal location, time period and filter option ids each row
// carries become the ids and refs callers sent in.
func (e *Engine) mapRows(
	ctx context.Context,
	v model.DataSetVersion,
	rows []store.Row,
	filters map[string]model.Filter,
	indicators []string,
) ([]Result, error) {
	locationIDs := map[int64]struct{}{}
	for _, row := range rows {
		if id, ok := row[querysql.ColLocationID].(int64); ok {
			locationIDs[id] = struct{}{}
		}
	}
	locations, err := e.locationsByID(ctx, v, locationIDs)
	if err != nil {
		return nil, err
	}

	periods, err := e.periodsByID(ctx, v)
	if err != nil {
		return nil, err
	}

	options, err := e.store.ListFilterOptions(ctx, v)
	if err != nil {
		return nil, err
	}
	optionPublicIDs := make(map[int64]string, len(options))
	for _, opt := range options {
		optionPublicIDs[opt.ID] = opt.PublicID
	}

	filterColumns := make([]string, 0, len(filters))
	for column := range filters {
		filterColumns = append(filterColumns, column)
	}

	results := make([]Result, 0, len(rows))
	for _, row := range rows {
		result := Result{
			GeographicLevel: model.GeographicLevel(asString(row[querysql.ColGeographicLevel])),
			Filters:         make(map[string]string, len(filterColumns)),
			Values:          make(map[string]string, len(indicators)),
		}

		if id, ok := row[querysql.ColLocationID].(int64); ok {
			if loc, found := locations[id]; found {
				result.LocationID = loc.PublicID
				result.LocationCode = loc.Code
				result.LocationName = loc.Name
			}
		}
		if id, ok := row[querysql.ColTimePeriodID].(int64); ok {
			if tp, found := periods[id]; found {
				result.TimePeriod = model.TimePeriodRef{Code: tp.Code, Period: tp.Period}
			}
		}
		for _, column := range filterColumns {
			if id, ok := row[column].(int64); ok {
				result.Filters[column] = optionPublicIDs[id]
			}
		}
		for _, id := range indicators {
			result.Values[id] = asString(row[id])
		}

		results = append(results, result)
	}
	return results, nil
}

func (e *Engine) locationsByID(ctx context.Context, v model.DataSetVersion, idSet map[int64]struct{}) (map[int64]model.LocationOption, error) {
	if len(idSet) == 0 {
		return map[int64]model.LocationOption{}, nil
	}
	ids := make([]int64, 0, len(idSet))
	for id := range idSet {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	options, err := e.store.LocationsByIDs(ctx, v, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]model.LocationOption, len(options))
	for _, opt := range options {
		byID[opt.ID] = opt
	}
	return byID, nil
}

func (e *Engine) periodsByID(ctx context.Context, v model.DataSetVersion) (map[int64]model.TimePeriod, error) {
	periods, err := e.store.TimePeriods(ctx, v)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]model.TimePeriod, len(periods))
	for _, tp := range periods {
		byID[tp.ID] = tp
	}
	return byID, nil
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
