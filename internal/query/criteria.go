package query

import (
	"fmt"

	"github.com/openstats/factstore/internal/model"
)

// Criteria is one node of the boolean selection tree.
//
// This is a sealed interface - only types in this package implement
// it. The marker method pattern prevents external implementations and
// enables exhaustive type switches in the normaliser and the SQL
// lowering.
//
// Node kinds:
//   - Facets: leaf combining optional per-facet predicates
//   - And / Or: composition over one-or-more children
//   - Not: negation of exactly one child
type Criteria interface {
	criteriaNode() // Marker method - seals interface to this package
}

// Facets is a leaf selecting rows by per-facet predicates. Every
// field is optional; an absent predicate places no constraint on that
// facet (a fully empty Facets leaf matches every row).
type Facets struct {
	Filters          *IDPredicate
	GeographicLevels *IDPredicate
	Locations        *LocationPredicate
	TimePeriods      *TimePeriodPredicate
}

func (Facets) criteriaNode() {}

// And matches rows satisfying every child.
type And struct {
	Children []Criteria
}

func (And) criteriaNode() {}

// Or matches rows satisfying at least one child.
type Or struct {
	Children []Criteria
}

func (Or) criteriaNode() {}

// Not matches rows not satisfying its single child.
type Not struct {
	Child Criteria
}

func (Not) criteriaNode() {}

// IDPredicate constrains an id-like facet (filter option public ids,
// geographic level codes). At most the set operators apply - ids have
// no ordering.
type IDPredicate struct {
	Eq    *string  `json:"eq,omitempty"`
	NotEq *string  `json:"notEq,omitempty"`
	In    []string `json:"in,omitempty"`
	NotIn []string `json:"notIn,omitempty"`
}

// IsEmpty reports whether no operator is present. An empty-but-present
// predicate is a malformed shape (absence means "no constraint", an
// empty object means the caller sent something broken).
func (p *IDPredicate) IsEmpty() bool {
	return p.Eq == nil && p.NotEq == nil && p.In == nil && p.NotIn == nil
}

// LocationPredicate constrains the location facet by structural
// references (level plus one identifying attribute each).
type LocationPredicate struct {
	Eq    *model.LocationRef  `json:"eq,omitempty"`
	NotEq *model.LocationRef  `json:"notEq,omitempty"`
	In    []model.LocationRef `json:"in,omitempty"`
	NotIn []model.LocationRef `json:"notIn,omitempty"`
}

func (p *LocationPredicate) IsEmpty() bool {
	return p.Eq == nil && p.NotEq == nil && p.In == nil && p.NotIn == nil
}

// TimePeriodPredicate constrains the time period facet. Besides the
// set operators it supports range bounds, compared chronologically by
// (code, period) ordinal - never by lexical period string order.
type TimePeriodPredicate struct {
	Eq    *model.TimePeriodRef  `json:"eq,omitempty"`
	NotEq *model.TimePeriodRef  `json:"notEq,omitempty"`
	In    []model.TimePeriodRef `json:"in,omitempty"`
	NotIn []model.TimePeriodRef `json:"notIn,omitempty"`
	Gt    *model.TimePeriodRef  `json:"gt,omitempty"`
	Gte   *model.TimePeriodRef  `json:"gte,omitempty"`
	Lt    *model.TimePeriodRef  `json:"lt,omitempty"`
	Lte   *model.TimePeriodRef  `json:"lte,omitempty"`
}

func (p *TimePeriodPredicate) IsEmpty() bool {
	return p.Eq == nil && p.NotEq == nil && p.In == nil && p.NotIn == nil &&
		p.Gt == nil && p.Gte == nil && p.Lt == nil && p.Lte == nil
}

// SortOrder is the direction of one sort term.
type SortOrder string

const (
	SortAsc  SortOrder = "Asc"
	SortDesc SortOrder = "Desc"
)

// Sort is one caller-specified ordering term. Name references a
// queryable column: a filter column, "timePeriod", "geographicLevel",
// "location" or an indicator id.
type Sort struct {
	Name  string    `json:"name"`
	Order SortOrder `json:"order"`
}

// Request is a full query against one dataset version.
type Request struct {
	Indicators []string
	Criteria   Criteria // nil = no row constraint
	Sorts      []Sort
	Page       int
	PageSize   int
}

// UnsupportedCriteriaError reports a criteria node kind unknown to a
// consumer of the tree. This is a programming contract violation (the
// sealed interface was extended without updating an exhaustive
// switch), not a user input error: callers should treat it as fatal
// and log it, never retry.
type UnsupportedCriteriaError struct {
	Node any
}

func (e *UnsupportedCriteriaError) Error() string {
	return fmt.Sprintf("unsupported criteria type %T", e.Node)
}
