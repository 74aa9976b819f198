// Package criteria converts saved filter criteria as stored by the Stash UI
// into the filter input accepted by the Stash GraphQL find queries.
//
// Saved filters store each criterion the way the UI edits it, e.g.
//
//	{"tags":{"modifier":"INCLUDES","value":{"items":[{"id":"5","label":"x"}],"excluded":[],"depth":0}}}
//
// while the query wants
//
//	{"tags":{"modifier":"INCLUDES","value":["5"],"excludes":[],"depth":0}}
package criteria

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/erikbos/stashfin/stash"
)

// Kind is the shape of a criterion.
type Kind int

const (
	// Scalar is passed through unchanged.
	Scalar Kind = iota
	// Existence tests for null or not null.
	Existence
	// Range is a two sided interval.
	Range
	// Comparison is a single valued comparison or equality.
	Comparison
	// Hierarchical references other objects by id, with exclusions.
	Hierarchical
	// Combinator is AND, OR or NOT over a nested tree.
	Combinator
	// Missing is the is_missing criterion, which the query takes as a bare field name.
	Missing
)

func (k Kind) String() string {
	switch k {
	case Scalar:
		return "scalar"
	case Existence:
		return "existence"
	case Range:
		return "range"
	case Comparison:
		return "comparison"
	case Hierarchical:
		return "hierarchical"
	case Combinator:
		return "combinator"
	case Missing:
		return "missing"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Modifiers used by the Stash criterion inputs.
const (
	ModEquals     = "EQUALS"
	ModIsNull     = "IS_NULL"
	ModNotNull    = "NOT_NULL"
	ModBetween    = "BETWEEN"
	ModNotBetween = "NOT_BETWEEN"
)

// Criterion is one node of a criteria tree.
type Criterion struct {
	Field    string
	Kind     Kind
	Modifier string
	// Value is the scalar, the single comparison operand or the lower range bound.
	Value any
	// Value2 is the upper range bound.
	Value2 any
	// Items are the referenced ids of a hierarchical criterion.
	Items []string
	// Excluded are the excluded ids of a hierarchical criterion, nil when absent.
	Excluded []string
	Depth    *int
	// Children is the nested tree of a combinator.
	Children Tree
}

// Tree is a list of criteria ordered by field name.
type Tree []Criterion

// controlKeys are UI pagination and sort settings that some Stash versions
// keep inside object_filter. They are not predicates.
var controlKeys = map[string]bool{
	"sortby": true, "sortdir": true, "sort": true, "direction": true,
	"page": true, "perpage": true, "per_page": true, "q": true,
	"disp": true, "c": true, "z": true,
}

// ParseJSON parses a raw object_filter document. Empty input is an empty tree.
func ParseJSON(b []byte) (Tree, error) {
	if len(b) == 0 || string(b) == "null" {
		return nil, nil
	}
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("object filter: %w", err)
	}
	return Parse(raw), nil
}

// Parse builds a tree from a decoded object_filter.
func Parse(raw map[string]any) Tree {
	fields := make([]string, 0, len(raw))
	for field := range raw {
		if controlKeys[strings.ToLower(field)] {
			continue
		}
		fields = append(fields, field)
	}
	sort.Strings(fields)

	tree := make(Tree, 0, len(fields))
	for _, field := range fields {
		tree = append(tree, parseCriterion(field, raw[field]))
	}
	return tree
}

func parseCriterion(field string, v any) Criterion {
	c := Criterion{Field: field}

	obj, isObject := v.(map[string]any)
	switch {
	case isCombinator(field):
		c.Kind = Combinator
		if isObject {
			c.Children = Parse(obj)
		}
		return c
	case !isObject:
		c.Kind = Scalar
		c.Value = v
		return c
	}

	c.Modifier, _ = obj["modifier"].(string)
	value, hasValue := obj["value"]
	if c.Modifier == "" && !hasValue {
		c.Kind = Scalar
		c.Value = v
		return c
	}

	switch {
	case field == "is_missing" && c.Modifier == ModEquals:
		c.Kind = Missing
		c.Value = value
		return c
	case c.Modifier == ModIsNull || c.Modifier == ModNotNull:
		c.Kind = Existence
		return c
	}

	value2 := obj["value2"]
	switch inner := value.(type) {
	case map[string]any:
		_, hasItems := inner["items"]
		excluded, hasExcluded := inner["excluded"]
		if hasItems || hasExcluded {
			c.Kind = Hierarchical
			c.Items = ids(inner["items"])
			if hasExcluded {
				c.Excluded = ids(excluded)
				if c.Excluded == nil {
					c.Excluded = []string{}
				}
			}
			c.Depth = intPointer(inner["depth"])
			return c
		}
		// newer UI format nests both operands: {"value":{"value":60,"value2":90}}
		value = inner["value"]
		if v2, ok := inner["value2"]; ok {
			value2 = v2
		}
	case []any:
		if isReferenceList(inner) {
			c.Kind = Hierarchical
			c.Items = ids(inner)
			c.Depth = intPointer(obj["depth"])
			return c
		}
	}

	c.Value = value
	if c.Modifier == ModBetween || c.Modifier == ModNotBetween {
		c.Kind = Range
		c.Value2 = value2
		return c
	}
	c.Kind = Comparison
	return c
}

func isCombinator(field string) bool {
	return field == "AND" || field == "OR" || field == "NOT"
}

// isReferenceList reports whether list holds {id,label} entries.
func isReferenceList(list []any) bool {
	if len(list) == 0 {
		return false
	}
	for _, e := range list {
		if _, ok := e.(map[string]any); !ok {
			return false
		}
	}
	return true
}

// ids flattens a list of {id,label} entries or bare ids into id strings.
func ids(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, e := range list {
		switch item := e.(type) {
		case map[string]any:
			if id := idString(item["id"]); id != "" {
				out = append(out, id)
			}
		default:
			if id := idString(item); id != "" {
				out = append(out, id)
			}
		}
	}
	return out
}

func idString(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return fmt.Sprintf("%.0f", id)
	case json.Number:
		return id.String()
	}
	return ""
}

func intPointer(v any) *int {
	switch n := v.(type) {
	case float64:
		i := int(n)
		return &i
	case int:
		return &n
	}
	return nil
}

// IsSortOnly reports whether a saved filter carries no predicate at all:
// an empty free-text query and a tree without any non-empty criterion.
// Such filters only sort and would show the unfiltered collection.
func IsSortOnly(tree Tree, q string) bool {
	if strings.TrimSpace(q) != "" {
		return false
	}
	return !tree.hasPredicate()
}

// SavedFilterIsSortOnly classifies a saved filter as returned by the backend.
func SavedFilterIsSortOnly(f stash.SavedFilter) bool {
	q := ""
	if f.FindFilter != nil {
		q = f.FindFilter.Q
	}
	tree, err := ParseJSON(f.ObjectFilter)
	if err != nil {
		// unparseable criteria cannot be applied either
		return strings.TrimSpace(q) == ""
	}
	return IsSortOnly(tree, q)
}

func (t Tree) hasPredicate() bool {
	for _, c := range t {
		if c.isPredicate() {
			return true
		}
	}
	return false
}

func (c Criterion) isPredicate() bool {
	switch c.Kind {
	case Existence:
		return true
	case Combinator:
		return c.Children.hasPredicate()
	case Hierarchical:
		return len(c.Items) > 0 || len(c.Excluded) > 0
	case Range:
		return nonEmpty(c.Value) || nonEmpty(c.Value2)
	}
	return nonEmpty(c.Value)
}

// nonEmpty reports whether v is set. Nil, false, zero, empty strings and
// empty collections are unset.
func nonEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case float64:
		return x != 0
	case int:
		return x != 0
	case json.Number:
		f, err := x.Float64()
		return err != nil || f != 0
	case string:
		return strings.TrimSpace(x) != ""
	case []any:
		return len(x) > 0
	case map[string]any:
		for _, e := range x {
			if nonEmpty(e) {
				return true
			}
		}
		return false
	}
	return true
}
