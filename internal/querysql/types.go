// Package querysql lowers a resolved criteria tree to a
// parameterised SQL predicate for the per-version query database.
//
// The tree here is the *resolved* counterpart of internal/query's
// criteria: every public id has already been replaced by the
// version's internal integer id (filters, locations) or ordinal
// (time period bounds) by the engine. Compilation never sees public
// ids - an unresolved reference reaching this package is a
// programming error upstream, not something this package papers over.
//
// All values are parameterised with ? placeholders, never
// interpolated into the SQL text.
package querysql

import "fmt"

// Criteria is one node of the resolved selection tree.
//
// Sealed interface - only types in this package implement it, so
// Compile can type-switch exhaustively.
type Criteria interface {
	resolvedNode() // Marker method - seals interface to this package
}

// Leaf selects rows by per-facet conditions over internal ids. Every
// field is optional; an absent condition places no constraint, and an
// entirely empty leaf matches every row.
type Leaf struct {
	Filters          *FilterCondition
	GeographicLevels *LevelCondition
	Locations        *IDCondition
	TimePeriods      *PeriodCondition
}

func (Leaf) resolvedNode() {}

// AndNode matches rows satisfying every child.
type AndNode struct {
	Children []Criteria
}

func (AndNode) resolvedNode() {}

// OrNode matches rows satisfying at least one child.
type OrNode struct {
	Children []Criteria
}

func (OrNode) resolvedNode() {}

// NotNode matches rows not satisfying its single child.
type NotNode struct {
	Child Criteria
}

func (NotNode) resolvedNode() {}

// FilterCondition constrains filter columns. Option ids are grouped
// by the filter column they belong to. In-groups combine with OR (a
// row matches if any of its filter columns holds one of the listed
// options); NotIn-groups combine with AND (none of the listed options
// anywhere).
type FilterCondition struct {
	In    map[string][]int64
	NotIn map[string][]int64
}

// LevelCondition constrains the geographic_level column by level code.
type LevelCondition struct {
	In    []string
	NotIn []string
}

// IDCondition constrains a single internal-id column (location_id).
type IDCondition struct {
	In    []int64
	NotIn []int64
}

// PeriodCondition constrains the time_period_id column. Set operators
// arrive pre-resolved to internal ids; range bounds keep the (code,
// ordinal) pair and compile to a subquery over the time_periods
// table, so comparison is chronological rather than lexical.
type PeriodCondition struct {
	In     []int64
	NotIn  []int64
	Bounds []PeriodBound
}

// BoundOp is a chronological comparison operator.
type BoundOp string

const (
	BoundGt  BoundOp = ">"
	BoundGte BoundOp = ">="
	BoundLt  BoundOp = "<"
	BoundLte BoundOp = "<="
)

// PeriodBound is one range bound: rows whose time period shares Code
// and whose ordinal satisfies Op against Ordinal.
type PeriodBound struct {
	Op      BoundOp
	Code    string
	Ordinal int64
}

// UnsupportedNodeError reports a resolved criteria node kind unknown
// to the compiler. Programming contract violation; fatal.
type UnsupportedNodeError struct {
	Node any
}

func (e *UnsupportedNodeError) Error() string {
	return fmt.Sprintf("unsupported resolved criteria type %T", e.Node)
}
