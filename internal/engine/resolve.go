package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/openstats/factstore/internal/model"
	"github.com/openstats/factstore/internal/query"
	"github.com/openstats/factstore/internal/querysql"
)

// refSet accumulates every dimension reference a criteria tree makes,
// deduplicated, so resolution hits the store once per dimension
// instead of once per node.
type refSet struct {
	filterOptions map[string]struct{}
	levels        map[string]struct{}
	locations     map[string]model.LocationRef
	periods       map[string]model.TimePeriodRef
}

func newRefSet() *refSet {
	return &refSet{
		filterOptions: map[string]struct{}{},
		levels:        map[string]struct{}{},
		locations:     map[string]model.LocationRef{},
		periods:       map[string]model.TimePeriodRef{},
	}
}

func (r *refSet) collect(c query.Criteria) error {
	switch node := c.(type) {
	case nil:
		return nil
	case query.Facets:
		r.collectFacets(node)
		return nil
	case query.And:
		return r.collectChildren(node.Children)
	case query.Or:
		return r.collectChildren(node.Children)
	case query.Not:
		return r.collect(node.Child)
	default:
		return &query.UnsupportedCriteriaError{Node: c}
	}
}

func (r *refSet) collectChildren(children []query.Criteria) error {
	for _, child := range children {
		if err := r.collect(child); err != nil {
			return err
		}
	}
	return nil
}

func (r *refSet) collectFacets(f query.Facets) {
	if f.Filters != nil {
		for _, id := range idPredicateValues(f.Filters) {
			r.filterOptions[id] = struct{}{}
		}
	}
	if f.GeographicLevels != nil {
		for _, code := range idPredicateValues(f.GeographicLevels) {
			r.levels[code] = struct{}{}
		}
	}
	if f.Locations != nil {
		for _, ref := range locationPredicateValues(f.Locations) {
			r.locations[ref.CanonicalString()] = ref
		}
	}
	if f.TimePeriods != nil {
		p := f.TimePeriods
		for _, ref := range periodSetValues(p) {
			r.periods[ref.CanonicalString()] = ref
		}
	}
}

func idPredicateValues(p *query.IDPredicate) []string {
	var values []string
	if p.Eq != nil {
		values = append(values, *p.Eq)
	}
	if p.NotEq != nil {
		values = append(values, *p.NotEq)
	}
	values = append(values, p.In...)
	values = append(values, p.NotIn...)
	return values
}

func locationPredicateValues(p *query.LocationPredicate) []model.LocationRef {
	var refs []model.LocationRef
	if p.Eq != nil {
		refs = append(refs, *p.Eq)
	}
	if p.NotEq != nil {
		refs = append(refs, *p.NotEq)
	}
	refs = append(refs, p.In...)
	refs = append(refs, p.NotIn...)
	return refs
}

// periodSetValues returns the set-operator refs only. Range bounds
// resolve arithmetically and never need a store lookup.
func periodSetValues(p *query.TimePeriodPredicate) []model.TimePeriodRef {
	var refs []model.TimePeriodRef
	if p.Eq != nil {
		refs = append(refs, *p.Eq)
	}
	if p.NotEq != nil {
		refs = append(refs, *p.NotEq)
	}
	refs = append(refs, p.In...)
	refs = append(refs, p.NotIn...)
	return refs
}

// resolution holds the lookup tables a resolved request needs:
// public references to the version's internal ids.
type resolution struct {
	filterOptions map[string]model.FilterOption
	locations     map[string][]int64
	periods       map[string]model.TimePeriod
}

// resolveRefs validates every collected reference against the
// version's stored dimensions. A reference the version does not know
// is a *QueryError with ErrCodeOptionNotFound naming the reference as
// the caller sent it.
func (e *Engine) resolveRefs(ctx context.Context, v model.DataSetVersion, refs *refSet) (*resolution, error) {
	res := &resolution{
		filterOptions: map[string]model.FilterOption{},
		locations:     map[string][]int64{},
		periods:       map[string]model.TimePeriod{},
	}

	if len(refs.filterOptions) > 0 {
		publicIDs := sortedSet(refs.filterOptions)
		options, err := e.store.FilterOptionsByPublicIDs(ctx, v, publicIDs)
		if err != nil {
			return nil, fmt.Errorf("resolve filter options: %w", err)
		}
		for _, opt := range options {
			res.filterOptions[opt.PublicID] = opt
		}
		var missing []string
		for _, id := range publicIDs {
			if _, ok := res.filterOptions[id]; !ok {
				missing = append(missing, id)
			}
		}
		if len(missing) > 0 {
			return nil, optionNotFound("filter option", missing)
		}
	}

	var unknownLevels []string
	for _, code := range sortedSet(refs.levels) {
		if !model.GeographicLevel(code).IsKnown() {
			unknownLevels = append(unknownLevels, code)
		}
	}
	if len(unknownLevels) > 0 {
		return nil, optionNotFound("geographic level", unknownLevels)
	}

	if len(refs.locations) > 0 {
		locationRefs := make([]model.LocationRef, 0, len(refs.locations))
		for _, key := range sortedMapKeys(refs.locations) {
			locationRefs = append(locationRefs, refs.locations[key])
		}
		matches, err := e.store.LocationsByRefs(ctx, v, locationRefs)
		if err != nil {
			return nil, fmt.Errorf("resolve locations: %w", err)
		}
		var missing []string
		for _, match := range matches {
			if len(match.Options) == 0 {
				missing = append(missing, match.Ref.CanonicalString())
				continue
			}
			ids := make([]int64, len(match.Options))
			for i, opt := range match.Options {
				ids[i] = opt.ID
			}
			res.locations[match.Ref.CanonicalString()] = ids
		}
		if len(missing) > 0 {
			return nil, optionNotFound("location", missing)
		}
	}

	if len(refs.periods) > 0 {
		periodRefs := make([]model.TimePeriodRef, 0, len(refs.periods))
		for _, key := range sortedMapKeys(refs.periods) {
			periodRefs = append(periodRefs, refs.periods[key])
		}
		periods, err := e.store.TimePeriodsByRefs(ctx, v, periodRefs)
		if err != nil {
			return nil, fmt.Errorf("resolve time periods: %w", err)
		}
		for _, tp := range periods {
			ref := model.TimePeriodRef{Code: tp.Code, Period: tp.Period}
			res.periods[ref.CanonicalString()] = tp
		}
		var missing []string
		for _, ref := range periodRefs {
			if _, ok := res.periods[ref.CanonicalString()]; !ok {
				missing = append(missing, ref.CanonicalString())
			}
		}
		if len(missing) > 0 {
			return nil, optionNotFound("time period", missing)
		}
	}

	return res, nil
}

// lower rewrites a public-id criteria tree into the internal-id
// resolved tree the SQL compiler consumes. resolveRefs has already
// validated every reference, so lookups here cannot miss.
func (res *resolution) lower(c query.Criteria) (querysql.Criteria, error) {
	switch node := c.(type) {
	case nil:
		return nil, nil
	case query.Facets:
		return res.lowerFacets(node)
	case query.And:
		children, err := res.lowerChildren(node.Children)
		if err != nil {
			return nil, err
		}
		return querysql.AndNode{Children: children}, nil
	case query.Or:
		children, err := res.lowerChildren(node.Children)
		if err != nil {
			return nil, err
		}
		return querysql.OrNode{Children: children}, nil
	case query.Not:
		child, err := res.lower(node.Child)
		if err != nil {
			return nil, err
		}
		return querysql.NotNode{Child: child}, nil
	default:
		return nil, &query.UnsupportedCriteriaError{Node: c}
	}
}

func (res *resolution) lowerChildren(children []query.Criteria) ([]querysql.Criteria, error) {
	lowered := make([]querysql.Criteria, 0, len(children))
	for _, child := range children {
		node, err := res.lower(child)
		if err != nil {
			return nil, err
		}
		lowered = append(lowered, node)
	}
	return lowered, nil
}

func (res *resolution) lowerFacets(f query.Facets) (querysql.Criteria, error) {
	leaf := querysql.Leaf{}

	if f.Filters != nil {
		cond := querysql.FilterCondition{
			In:    map[string][]int64{},
			NotIn: map[string][]int64{},
		}
		for _, id := range inValues(f.Filters.Eq, f.Filters.In) {
			opt := res.filterOptions[id]
			cond.In[opt.Column] = append(cond.In[opt.Column], opt.ID)
		}
		for _, id := range inValues(f.Filters.NotEq, f.Filters.NotIn) {
			opt := res.filterOptions[id]
			cond.NotIn[opt.Column] = append(cond.NotIn[opt.Column], opt.ID)
		}
		leaf.Filters = &cond
	}

	if f.GeographicLevels != nil {
		leaf.GeographicLevels = &querysql.LevelCondition{
			In:    inValues(f.GeographicLevels.Eq, f.GeographicLevels.In),
			NotIn: inValues(f.GeographicLevels.NotEq, f.GeographicLevels.NotIn),
		}
	}

	if f.Locations != nil {
		cond := querysql.IDCondition{}
		for _, ref := range locationInValues(f.Locations.Eq, f.Locations.In) {
			cond.In = append(cond.In, res.locations[ref.CanonicalString()]...)
		}
		for _, ref := range locationInValues(f.Locations.NotEq, f.Locations.NotIn) {
			cond.NotIn = append(cond.NotIn, res.locations[ref.CanonicalString()]...)
		}
		leaf.Locations = &cond
	}

	if f.TimePeriods != nil {
		cond, err := res.lowerPeriods(f.TimePeriods)
		if err != nil {
			return nil, err
		}
		leaf.TimePeriods = cond
	}

	return leaf, nil
}

func (res *resolution) lowerPeriods(p *query.TimePeriodPredicate) (*querysql.PeriodCondition, error) {
	cond := querysql.PeriodCondition{}

	for _, ref := range periodInValues(p.Eq, p.In) {
		cond.In = append(cond.In, res.periods[ref.CanonicalString()].ID)
	}
	for _, ref := range periodInValues(p.NotEq, p.NotIn) {
		cond.NotIn = append(cond.NotIn, res.periods[ref.CanonicalString()].ID)
	}

	bounds := []struct {
		op  querysql.BoundOp
		ref *model.TimePeriodRef
	}{
		{querysql.BoundGt, p.Gt},
		{querysql.BoundGte, p.Gte},
		{querysql.BoundLt, p.Lt},
		{querysql.BoundLte, p.Lte},
	}
	for _, b := range bounds {
		if b.ref == nil {
			continue
		}
		ordinal, err := model.ParseOrdinal(b.ref.Code, b.ref.Period)
		if err != nil {
			return nil, optionNotFound("time period", []string{b.ref.CanonicalString()})
		}
		cond.Bounds = append(cond.Bounds, querysql.PeriodBound{
			Op:      b.op,
			Code:    b.ref.Code,
			Ordinal: ordinal,
		})
	}

	return &cond, nil
}

func inValues(eq *string, in []string) []string {
	var values []string
	if eq != nil {
		values = append(values, *eq)
	}
	return append(values, in...)
}

func locationInValues(eq *model.LocationRef, in []model.LocationRef) []model.LocationRef {
	var refs []model.LocationRef
	if eq != nil {
		refs = append(refs, *eq)
	}
	return append(refs, in...)
}

func periodInValues(eq *model.TimePeriodRef, in []model.TimePeriodRef) []model.TimePeriodRef {
	var refs []model.TimePeriodRef
	if eq != nil {
		refs = append(refs, *eq)
	}
	return append(refs, in...)
}

func sortedSet(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func sortedMapKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
