package querysql

import (
	"fmt"
	"sort"
	"strings"
)

// Fixed columns of the facts table. Filter columns are per-dataset
// and arrive through FilterCondition keys.
const (
	ColRowID           = "row_id"
	ColGeographicLevel = "geographic_level"
	ColLocationID      = "location_id"
	ColTimePeriodID    = "time_period_id"
)

// Fragment is a parameterised SQL predicate: SQL text with ?
// placeholders plus the matching argument list.
type Fragment struct {
	SQL  string
	Args []any
}

// alwaysTrue is the fragment for an absent constraint.
func alwaysTrue() Fragment {
	return Fragment{SQL: "1 = 1"}
}

// Compile lowers a resolved criteria tree to a WHERE-clause fragment.
// A nil tree compiles to an always-true predicate (no constraint).
func Compile(c Criteria) (Fragment, error) {
	if c == nil {
		return alwaysTrue(), nil
	}

	switch node := c.(type) {
	case Leaf:
		return compileLeaf(node)

	case AndNode:
		return compileBoolean(node.Children, " AND ")

	case OrNode:
		return compileBoolean(node.Children, " OR ")

	case NotNode:
		child, err := Compile(node.Child)
		if err != nil {
			return Fragment{}, err
		}
		return Fragment{
			SQL:  fmt.Sprintf("NOT (%s)", child.SQL),
			Args: child.Args,
		}, nil

	default:
		return Fragment{}, &UnsupportedNodeError{Node: c}
	}
}

func compileBoolean(children []Criteria, joiner string) (Fragment, error) {
	if len(children) == 0 {
		// The wire codec rejects empty and/or; an empty node here is
		// vacuously true, matching And semantics.
		return alwaysTrue(), nil
	}

	parts := make([]string, 0, len(children))
	var args []any
	for _, child := range children {
		frag, err := Compile(child)
		if err != nil {
			return Fragment{}, err
		}
		parts = append(parts, frag.SQL)
		args = append(args, frag.Args...)
	}

	return Fragment{
		SQL:  "(" + strings.Join(parts, joiner) + ")",
		Args: args,
	}, nil
}

// compileLeaf lowers a facets leaf to the conjunction of its present
// conditions. Absent conditions contribute nothing - absence is
// universally true, not universally false.
func compileLeaf(leaf Leaf) (Fragment, error) {
	var parts []string
	var args []any

	appendFrag := func(f Fragment) {
		parts = append(parts, f.SQL)
		args = append(args, f.Args...)
	}

	if leaf.Filters != nil {
		if f := compileFilters(*leaf.Filters); f.SQL != "" {
			appendFrag(f)
		}
	}
	if leaf.GeographicLevels != nil {
		if f := compileLevels(*leaf.GeographicLevels); f.SQL != "" {
			appendFrag(f)
		}
	}
	if leaf.Locations != nil {
		if f := compileIDs(ColLocationID, *leaf.Locations); f.SQL != "" {
			appendFrag(f)
		}
	}
	if leaf.TimePeriods != nil {
		if f := compilePeriods(*leaf.TimePeriods); f.SQL != "" {
			appendFrag(f)
		}
	}

	if len(parts) == 0 {
		return alwaysTrue(), nil
	}
	if len(parts) == 1 {
		return Fragment{SQL: parts[0], Args: args}, nil
	}
	return Fragment{
		SQL:  "(" + strings.Join(parts, " AND ") + ")",
		Args: args,
	}, nil
}

func compileFilters(cond FilterCondition) Fragment {
	var parts []string
	var args []any

	// In-groups: a row matches if any filter column holds one of its
	// listed options. Columns iterate in sorted order so the SQL text
	// and argument order are deterministic.
	if len(cond.In) > 0 {
		var inParts []string
		for _, column := range sortedKeys(cond.In) {
			ids := cond.In[column]
			if len(ids) == 0 {
				continue
			}
			inParts = append(inParts, fmt.Sprintf("%s IN (%s)", QuoteIdent(column), placeholders(len(ids))))
			for _, id := range ids {
				args = append(args, id)
			}
		}
		if len(inParts) == 1 {
			parts = append(parts, inParts[0])
		} else if len(inParts) > 1 {
			parts = append(parts, "("+strings.Join(inParts, " OR ")+")")
		}
	}

	// NotIn-groups: none of the listed options anywhere.
	if len(cond.NotIn) > 0 {
		for _, column := range sortedKeys(cond.NotIn) {
			ids := cond.NotIn[column]
			if len(ids) == 0 {
				continue
			}
			parts = append(parts, fmt.Sprintf("%s NOT IN (%s)", QuoteIdent(column), placeholders(len(ids))))
			for _, id := range ids {
				args = append(args, id)
			}
		}
	}

	return joinAnd(parts, args)
}

func compileLevels(cond LevelCondition) Fragment {
	var parts []string
	var args []any

	if len(cond.In) > 0 {
		parts = append(parts, fmt.Sprintf("%s IN (%s)", ColGeographicLevel, placeholders(len(cond.In))))
		for _, level := range cond.In {
			args = append(args, level)
		}
	}
	if len(cond.NotIn) > 0 {
		parts = append(parts, fmt.Sprintf("%s NOT IN (%s)", ColGeographicLevel, placeholders(len(cond.NotIn))))
		for _, level := range cond.NotIn {
			args = append(args, level)
		}
	}

	return joinAnd(parts, args)
}

func compileIDs(column string, cond IDCondition) Fragment {
	var parts []string
	var args []any

	if len(cond.In) > 0 {
		parts = append(parts, fmt.Sprintf("%s IN (%s)", column, placeholders(len(cond.In))))
		for _, id := range cond.In {
			args = append(args, id)
		}
	}
	if len(cond.NotIn) > 0 {
		parts = append(parts, fmt.Sprintf("%s NOT IN (%s)", column, placeholders(len(cond.NotIn))))
		for _, id := range cond.NotIn {
			args = append(args, id)
		}
	}

	return joinAnd(parts, args)
}

func compilePeriods(cond PeriodCondition) Fragment {
	var parts []string
	var args []any

	if len(cond.In) > 0 {
		parts = append(parts, fmt.Sprintf("%s IN (%s)", ColTimePeriodID, placeholders(len(cond.In))))
		for _, id := range cond.In {
			args = append(args, id)
		}
	}
	if len(cond.NotIn) > 0 {
		parts = append(parts, fmt.Sprintf("%s NOT IN (%s)", ColTimePeriodID, placeholders(len(cond.NotIn))))
		for _, id := range cond.NotIn {
			args = append(args, id)
		}
	}

	// Bounds compare chronologically via the time_periods ordinal
	// column, scoped to the bound's code. Period strings never
	// participate in the comparison.
	for _, bound := range cond.Bounds {
		parts = append(parts, fmt.Sprintf(
			"%s IN (SELECT id FROM time_periods WHERE code = ? AND ordinal %s ?)",
			ColTimePeriodID, bound.Op))
		args = append(args, bound.Code, bound.Ordinal)
	}

	return joinAnd(parts, args)
}

func joinAnd(parts []string, args []any) Fragment {
	switch len(parts) {
	case 0:
		return Fragment{}
	case 1:
		return Fragment{SQL: parts[0], Args: args}
	default:
		return Fragment{SQL: "(" + strings.Join(parts, " AND ") + ")", Args: args}
	}
}

// QuoteIdent quotes an identifier for SQLite, doubling embedded
// quotes. Filter columns come from dataset manifests, so they are
// data, not trusted SQL text.
func QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func placeholders(n int) string {
	if n == 1 {
		return "?"
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
