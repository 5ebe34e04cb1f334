package query

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// The wire format uses camelCase keys. A criteria node is either a
// facets leaf:
//
//	{"filters": {...}, "locations": {...}, "geographicLevels": {...}, "timePeriods": {...}}
//
// or a boolean composite:
//
//	{"and": [node, ...]} | {"or": [node, ...]} | {"not": node}
//
// A node mixing boolean and facet keys, carrying more than one
// boolean key, or carrying an unrecognised key is a malformed shape.

var facetKeys = map[string]bool{
	"filters":          true,
	"geographicLevels": true,
	"locations":        true,
	"timePeriods":      true,
}

// ShapeError reports a malformed criteria or request shape. It is a
// caller-correctable validation error.
type ShapeError struct {
	Path    string
	Message string
}

func (e *ShapeError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("malformed query: %s", e.Message)
	}
	return fmt.Sprintf("malformed query at %s: %s", e.Path, e.Message)
}

// requestJSON is the wire shape of a Request.
type requestJSON struct {
	Indicators []string        `json:"indicators"`
	Criteria   json.RawMessage `json:"criteria,omitempty"`
	Sorts      []Sort          `json:"sort,omitempty"`
	Page       int             `json:"page,omitempty"`
	PageSize   int             `json:"pageSize,omitempty"`
}

// UnmarshalJSON decodes a request, including the polymorphic criteria
// tree. Shape problems are reported as *ShapeError.
func (r *Request) UnmarshalJSON(data []byte) error {
	var raw requestJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return &ShapeError{Message: err.Error()}
	}

	r.Indicators = raw.Indicators
	r.Sorts = raw.Sorts
	r.Page = raw.Page
	r.PageSize = raw.PageSize

	if len(raw.Criteria) == 0 || string(raw.Criteria) == "null" {
		r.Criteria = nil
		return nil
	}

	criteria, err := DecodeCriteria(raw.Criteria, "criteria")
	if err != nil {
		return err
	}
	r.Criteria = criteria
	return nil
}

// MarshalJSON encodes a request in the wire shape.
func (r Request) MarshalJSON() ([]byte, error) {
	raw := requestJSON{
		Indicators: r.Indicators,
		Sorts:      r.Sorts,
		Page:       r.Page,
		PageSize:   r.PageSize,
	}
	if r.Criteria != nil {
		encoded, err := EncodeCriteria(r.Criteria)
		if err != nil {
			return nil, err
		}
		raw.Criteria = encoded
	}
	return json.Marshal(raw)
}

// DecodeCriteria decodes one criteria node from raw JSON. The path is
// carried into shape errors for diagnostics ("criteria.and[1].not").
func DecodeCriteria(data json.RawMessage, path string) (Criteria, error) {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, &ShapeError{Path: path, Message: "criteria node must be an object"}
	}

	var boolKeys, unknownKeys []string
	hasFacetKey := false
	for k := range keys {
		switch {
		case k == "and" || k == "or" || k == "not":
			boolKeys = append(boolKeys, k)
		case facetKeys[k]:
			hasFacetKey = true
		default:
			unknownKeys = append(unknownKeys, k)
		}
	}
	sort.Strings(unknownKeys)

	if len(unknownKeys) > 0 {
		return nil, &ShapeError{Path: path, Message: fmt.Sprintf("unrecognised keys: %s", strings.Join(unknownKeys, ", "))}
	}
	if len(boolKeys) > 1 {
		sort.Strings(boolKeys)
		return nil, &ShapeError{Path: path, Message: fmt.Sprintf("node carries multiple boolean keys: %s", strings.Join(boolKeys, ", "))}
	}
	if len(boolKeys) == 1 && hasFacetKey {
		return nil, &ShapeError{Path: path, Message: fmt.Sprintf("node mixes %q with facet keys", boolKeys[0])}
	}

	if len(boolKeys) == 1 {
		return decodeBoolean(boolKeys[0], keys[boolKeys[0]], path)
	}
	return decodeFacets(data, path)
}

func decodeBoolean(key string, data json.RawMessage, path string) (Criteria, error) {
	switch key {
	case "not":
		if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
			return nil, &ShapeError{Path: path + ".not", Message: "not wraps exactly one node, not an array"}
		}
		child, err := DecodeCriteria(data, path+".not")
		if err != nil {
			return nil, err
		}
		return Not{Child: child}, nil

	case "and", "or":
		var rawChildren []json.RawMessage
		if err := json.Unmarshal(data, &rawChildren); err != nil {
			return nil, &ShapeError{Path: path + "." + key, Message: "expected an array of nodes"}
		}
		if len(rawChildren) == 0 {
			return nil, &ShapeError{Path: path + "." + key, Message: "requires one-or-more children"}
		}
		children := make([]Criteria, len(rawChildren))
		for i, rawChild := range rawChildren {
			child, err := DecodeCriteria(rawChild, fmt.Sprintf("%s.%s[%d]", path, key, i))
			if err != nil {
				return nil, err
			}
			children[i] = child
		}
		if key == "and" {
			return And{Children: children}, nil
		}
		return Or{Children: children}, nil

	default:
		// Unreachable: callers only pass and/or/not.
		return nil, &ShapeError{Path: path, Message: fmt.Sprintf("unknown boolean key %q", key)}
	}
}

func decodeFacets(data json.RawMessage, path string) (Criteria, error) {
	var leaf struct {
		Filters          *IDPredicate         `json:"filters"`
		GeographicLevels *IDPredicate         `json:"geographicLevels"`
		Locations        *LocationPredicate   `json:"locations"`
		TimePeriods      *TimePeriodPredicate `json:"timePeriods"`
	}
	if err := json.Unmarshal(data, &leaf); err != nil {
		return nil, &ShapeError{Path: path, Message: err.Error()}
	}

	// A present-but-empty predicate means the caller sent a broken
	// request; absence is the way to express "no constraint".
	if leaf.Filters != nil && leaf.Filters.IsEmpty() {
		return nil, &ShapeError{Path: path + ".filters", Message: "predicate present but empty"}
	}
	if leaf.GeographicLevels != nil && leaf.GeographicLevels.IsEmpty() {
		return nil, &ShapeError{Path: path + ".geographicLevels", Message: "predicate present but empty"}
	}
	if leaf.Locations != nil && leaf.Locations.IsEmpty() {
		return nil, &ShapeError{Path: path + ".locations", Message: "predicate present but empty"}
	}
	if leaf.TimePeriods != nil && leaf.TimePeriods.IsEmpty() {
		return nil, &ShapeError{Path: path + ".timePeriods", Message: "predicate present but empty"}
	}

	return Facets{
		Filters:          leaf.Filters,
		GeographicLevels: leaf.GeographicLevels,
		Locations:        leaf.Locations,
		TimePeriods:      leaf.TimePeriods,
	}, nil
}

// EncodeCriteria encodes one criteria node to its wire shape.
func EncodeCriteria(c Criteria) (json.RawMessage, error) {
	switch node := c.(type) {
	case Facets:
		return json.Marshal(struct {
			Filters          *IDPredicate         `json:"filters,omitempty"`
			GeographicLevels *IDPredicate         `json:"geographicLevels,omitempty"`
			Locations        *LocationPredicate   `json:"locations,omitempty"`
			TimePeriods      *TimePeriodPredicate `json:"timePeriods,omitempty"`
		}{node.Filters, node.GeographicLevels, node.Locations, node.TimePeriods})

	case And:
		children, err := encodeChildren(node.Children)
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string][]json.RawMessage{"and": children})

	case Or:
		children, err := encodeChildren(node.Children)
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string][]json.RawMessage{"or": children})

	case Not:
		child, err := EncodeCriteria(node.Child)
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string]json.RawMessage{"not": child})

	default:
		return nil, &UnsupportedCriteriaError{Node: c}
	}
}

func encodeChildren(children []Criteria) ([]json.RawMessage, error) {
	encoded := make([]json.RawMessage, len(children))
	for i, child := range children {
		raw, err := EncodeCriteria(child)
		if err != nil {
			return nil, err
		}
		encoded[i] = raw
	}
	return encoded, nil
}
