// Package filter turns the where arguments of a parsed request into query
// filters.
//
// A where map holds scalar conditions keyed by field name, the logical
// operators AND, OR and NOT, and compound unique keys joining field names
// with an underscore:
//
//	{"email": "a@b.c"}                         email = "a@b.c"
//	{"age": {"gte": 18, "lt": 65}}             age >= 18 AND age < 65
//	{"OR": [{"name": "a"}, {"name": "b"}]}     name = "a" OR name = "b"
//	{"first_last": {"first": "a", "last": "b"}} compound unique
//
// Keys are processed in sorted order so that equal maps yield equal filters.
package filter

import (
	"fmt"
	"sort"
	"strings"

	"github.com/syssam/qengine"
	"github.com/syssam/qengine/query"
	"github.com/syssam/qengine/schema"
)

// Logical operator keys.
const (
	AndKey = "AND"
	OrKey  = "OR"
	NotKey = "NOT"
)

var operators = map[string]query.Condition{
	"equals":     query.Equals,
	"not":        query.NotEquals,
	"in":         query.In,
	"notIn":      query.NotIn,
	"lt":         query.LT,
	"lte":        query.LTE,
	"gt":         query.GT,
	"gte":        query.GTE,
	"contains":   query.Contains,
	"startsWith": query.StartsWith,
	"endsWith":   query.EndsWith,
}

// Extract returns the filter of a where map. A nil or empty map matches
// every record.
func Extract(m *schema.Model, where map[string]any) (query.Filter, error) {
	if len(where) == 0 {
		return query.Empty, nil
	}
	var and query.And
	for _, key := range sortedKeys(where) {
		f, err := extractKey(m, key, where[key])
		if err != nil {
			return nil, err
		}
		and = append(and, f)
	}
	if len(and) == 1 {
		return and[0], nil
	}
	return and, nil
}

func extractKey(m *schema.Model, key string, v any) (query.Filter, error) {
	switch key {
	case AndKey, OrKey, NotKey:
		maps, err := whereList(key, v)
		if err != nil {
			return nil, err
		}
		fs := make([]query.Filter, 0, len(maps))
		for _, w := range maps {
			f, err := Extract(m, w)
			if err != nil {
				return nil, err
			}
			fs = append(fs, f)
		}
		switch key {
		case AndKey:
			return query.And(fs), nil
		case OrKey:
			return query.Or(fs), nil
		default:
			return query.Not(fs), nil
		}
	}
	if f, ok := m.Field(key); ok {
		return scalar(f, v)
	}
	if fields, ok := compound(m, key); ok {
		return compoundFilter(m, key, fields, v)
	}
	if _, ok := m.RelationField(key); ok {
		return nil, qengine.NewBuilderError(qengine.InputError, "relation filter on %s.%s is not supported", m.Name, key)
	}
	return nil, qengine.NewBuilderError(qengine.InputError, "unknown field %q in where argument of %s", key, m.Name)
}

// whereList accepts a single where map or a list of them.
func whereList(key string, v any) ([]map[string]any, error) {
	switch v := v.(type) {
	case map[string]any:
		return []map[string]any{v}, nil
	case []map[string]any:
		return v, nil
	case []any:
		out := make([]map[string]any, len(v))
		for i, e := range v {
			w, ok := e.(map[string]any)
			if !ok {
				return nil, qengine.NewBuilderError(qengine.InputError, "%s expects where objects, got %T", key, e)
			}
			out[i] = w
		}
		return out, nil
	}
	return nil, qengine.NewBuilderError(qengine.InputError, "%s expects a where object or a list, got %T", key, v)
}

func scalar(f *schema.Field, v any) (query.Filter, error) {
	ops, ok := v.(map[string]any)
	if !ok {
		return condition(f, "equals", v)
	}
	if len(ops) == 0 {
		return nil, qengine.NewBuilderError(qengine.InputError, "empty condition on %s", f)
	}
	var and query.And
	for _, op := range sortedKeys(ops) {
		c, err := condition(f, op, ops[op])
		if err != nil {
			return nil, err
		}
		and = append(and, c)
	}
	if len(and) == 1 {
		return and[0], nil
	}
	return and, nil
}

func condition(f *schema.Field, op string, v any) (query.Filter, error) {
	cond, ok := operators[op]
	if !ok {
		return nil, qengine.NewBuilderError(qengine.InputError, "unknown operator %q on %s", op, f)
	}
	switch cond {
	case query.Equals, query.NotEquals:
		if v == nil {
			if cond == query.Equals {
				return &query.Scalar{Field: f, Cond: query.IsNull}, nil
			}
			return &query.Scalar{Field: f, Cond: query.IsNotNull}, nil
		}
	case query.In, query.NotIn:
		list, ok := v.([]any)
		if !ok {
			return nil, qengine.NewBuilderError(qengine.InputError, "%s on %s expects a list, got %T", op, f, v)
		}
		vs := make([]any, len(list))
		for i, e := range list {
			n, err := normalize(f, e)
			if err != nil {
				return nil, err
			}
			vs[i] = n
		}
		return &query.Scalar{Field: f, Cond: cond, Value: vs}, nil
	case query.Contains, query.StartsWith, query.EndsWith:
		if _, ok := v.(string); !ok {
			return nil, qengine.NewBuilderError(qengine.InputError, "%s on %s expects a string, got %T", op, f, v)
		}
		return &query.Scalar{Field: f, Cond: cond, Value: v}, nil
	}
	n, err := normalize(f, v)
	if err != nil {
		return nil, err
	}
	return &query.Scalar{Field: f, Cond: cond, Value: n}, nil
}

func normalize(f *schema.Field, v any) (any, error) {
	n, err := f.Type.Normalize(v)
	if err != nil {
		return nil, &qengine.BuilderError{Kind: qengine.InputError, Msg: fmt.Sprintf("invalid value for %s", f), Err: err}
	}
	return n, nil
}

// compound resolves a key naming a unique criteria by its fields joined with
// an underscore.
func compound(m *schema.Model, key string) ([]*schema.Field, bool) {
	for _, fields := range m.UniqueCriterias() {
		if len(fields) < 2 {
			continue
		}
		names := make([]string, len(fields))
		for i, f := range fields {
			names[i] = f.Name
		}
		if strings.Join(names, "_") == key {
			return fields, true
		}
	}
	return nil, false
}

func compoundFilter(m *schema.Model, key string, fields []*schema.Field, v any) (query.Filter, error) {
	values, ok := v.(map[string]any)
	if !ok {
		return nil, qengine.NewBuilderError(qengine.InputError, "compound key %s.%s expects an object, got %T", m.Name, key, v)
	}
	and := make(query.And, 0, len(fields))
	for _, f := range fields {
		fv, ok := values[f.Name]
		if !ok {
			return nil, qengine.NewBuilderError(qengine.InputError, "compound key %s.%s is missing %s", m.Name, key, f.Name)
		}
		c, err := condition(f, "equals", fv)
		if err != nil {
			return nil, err
		}
		and = append(and, c)
	}
	if len(values) != len(fields) {
		return nil, qengine.NewBuilderError(qengine.InputError, "compound key %s.%s has unknown fields", m.Name, key)
	}
	return and, nil
}

// ExtractUnique returns the filter of a where map that designates at most one
// record: it must fix every field of a unique criteria with an equality.
func ExtractUnique(m *schema.Model, where map[string]any) (query.Filter, error) {
	if _, ok := UniqueSelection(m, where); !ok {
		return nil, qengine.NewBuilderError(qengine.InputError, "where argument of %s must fix a unique criteria", m.Name)
	}
	return Extract(m, where)
}

// UniqueSelection returns the values of the first unique criteria fixed by
// where. Only top-level equalities count.
func UniqueSelection(m *schema.Model, where map[string]any) (query.SelectionResult, bool) {
	fixed := make(map[*schema.Field]any)
	for key, v := range where {
		if f, ok := m.Field(key); ok {
			if ev, ok := equality(f, v); ok {
				fixed[f] = ev
			}
			continue
		}
		fields, ok := compound(m, key)
		if !ok {
			continue
		}
		values, ok := v.(map[string]any)
		if !ok {
			continue
		}
		for _, f := range fields {
			if ev, ok := equality(f, values[f.Name]); ok {
				fixed[f] = ev
			}
		}
	}
	for _, criteria := range m.UniqueCriterias() {
		values := make([]any, 0, len(criteria))
		for _, f := range criteria {
			v, ok := fixed[f]
			if !ok {
				break
			}
			values = append(values, v)
		}
		if len(values) == len(criteria) {
			return query.NewSelectionResult(criteria, values), true
		}
	}
	return nil, false
}

// equality returns the normalized value of a non-null equality condition.
func equality(f *schema.Field, v any) (any, bool) {
	if ops, ok := v.(map[string]any); ok {
		if len(ops) != 1 {
			return nil, false
		}
		if v, ok = ops["equals"]; !ok {
			return nil, false
		}
	}
	if v == nil {
		return nil, false
	}
	if _, ok := v.([]any); ok {
		return nil, false
	}
	n, err := f.Type.Normalize(v)
	if err != nil {
		return nil, false
	}
	return n, true
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
