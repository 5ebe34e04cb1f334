package query

import (
	"bytes"
	"sort"

	"github.com/openstats/factstore/internal/model"
)

// Normalise returns an equivalent request in canonical form:
//
//   - indicator ids sorted and deduplicated
//   - facet In/NotIn lists sorted (and deduplicated): ids lexically,
//     locations by their canonical string form, time periods by code
//     then chronological period
//   - And/Or children recursively normalised, then sorted by each
//     child's canonical JSON serialization
//   - Not's single child recursively normalised
//
// Normalisation is idempotent, and invariant under commutativity of
// And/Or and reordering of In/NotIn lists, so normalised requests are
// safe to use for cache keys and equivalence checks.
//
// The input is not mutated. An unknown criteria node kind returns
// *UnsupportedCriteriaError.
func Normalise(req Request) (Request, error) {
	out := req
	out.Indicators = sortedUniqueStrings(req.Indicators)
	out.Sorts = append([]Sort(nil), req.Sorts...)

	if req.Criteria != nil {
		criteria, err := normaliseCriteria(req.Criteria)
		if err != nil {
			return Request{}, err
		}
		out.Criteria = criteria
	}
	return out, nil
}

func normaliseCriteria(c Criteria) (Criteria, error) {
	switch node := c.(type) {
	case Facets:
		return normaliseFacets(node), nil

	case And:
		children, err := normaliseChildren(node.Children)
		if err != nil {
			return nil, err
		}
		return And{Children: children}, nil

	case Or:
		children, err := normaliseChildren(node.Children)
		if err != nil {
			return nil, err
		}
		return Or{Children: children}, nil

	case Not:
		child, err := normaliseCriteria(node.Child)
		if err != nil {
			return nil, err
		}
		return Not{Child: child}, nil

	default:
		return nil, &UnsupportedCriteriaError{Node: c}
	}
}

// normaliseChildren normalises each child, then orders children by
// their canonical JSON bytes. Equal serializations (duplicate
// children) are kept - dropping them would change Or semantics for
// future node kinds with side conditions, and sorting alone is enough
// for deterministic fingerprints.
func normaliseChildren(children []Criteria) ([]Criteria, error) {
	type keyed struct {
		child Criteria
		key   []byte
	}

	ks := make([]keyed, len(children))
	for i, child := range children {
		normalised, err := normaliseCriteria(child)
		if err != nil {
			return nil, err
		}
		key, err := CanonicalCriteria(normalised)
		if err != nil {
			return nil, err
		}
		ks[i] = keyed{child: normalised, key: key}
	}

	sort.SliceStable(ks, func(i, j int) bool {
		return bytes.Compare(ks[i].key, ks[j].key) < 0
	})

	out := make([]Criteria, len(ks))
	for i, k := range ks {
		out[i] = k.child
	}
	return out, nil
}

func normaliseFacets(f Facets) Facets {
	out := Facets{}

	if f.Filters != nil {
		p := *f.Filters
		p.In = sortedUniqueStrings(p.In)
		p.NotIn = sortedUniqueStrings(p.NotIn)
		out.Filters = &p
	}
	if f.GeographicLevels != nil {
		p := *f.GeographicLevels
		p.In = sortedUniqueStrings(p.In)
		p.NotIn = sortedUniqueStrings(p.NotIn)
		out.GeographicLevels = &p
	}
	if f.Locations != nil {
		p := *f.Locations
		p.In = sortedUniqueLocations(p.In)
		p.NotIn = sortedUniqueLocations(p.NotIn)
		out.Locations = &p
	}
	if f.TimePeriods != nil {
		p := *f.TimePeriods
		p.In = sortedUniquePeriods(p.In)
		p.NotIn = sortedUniquePeriods(p.NotIn)
		out.TimePeriods = &p
	}
	return out
}

func sortedUniqueStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := append([]string(nil), in...)
	sort.Strings(out)
	return compact(out, func(a, b string) bool { return a == b })
}

func sortedUniqueLocations(in []model.LocationRef) []model.LocationRef {
	if in == nil {
		return nil
	}
	out := append([]model.LocationRef(nil), in...)
	sort.Slice(out, func(i, j int) bool {
		return out[i].CanonicalString() < out[j].CanonicalString()
	})
	return compact(out, func(a, b model.LocationRef) bool { return a == b })
}

func sortedUniquePeriods(in []model.TimePeriodRef) []model.TimePeriodRef {
	if in == nil {
		return nil
	}
	out := append([]model.TimePeriodRef(nil), in...)
	sort.Slice(out, func(i, j int) bool {
		return model.CompareRefs(out[i], out[j]) < 0
	})
	return compact(out, func(a, b model.TimePeriodRef) bool { return a == b })
}

// compact removes adjacent duplicates from a sorted slice.
func compact[T any](sorted []T, eq func(a, b T) bool) []T {
	if len(sorted) < 2 {
		return sorted
	}
	out := sorted[:1]
	for _, elem := range sorted[1:] {
		if !eq(out[len(out)-1], elem) {
			out = append(out, elem)
		}
	}
	return out
}
