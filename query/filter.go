package query

import (
	"fmt"
	"strings"

	"github.com/syssam/qengine/schema"
)

// Filter is a predicate over the records of a model. Its variants are
// And, Or, Not, *Scalar and Empty.
type Filter interface {
	fmt.Stringer
	filter()
}

type (
	// And matches records matching every filter. An empty And matches everything.
	And []Filter
	// Or matches records matching any filter. An empty Or matches nothing.
	Or []Filter
	// Not matches records matching none of the filters.
	Not []Filter
	// Scalar compares a field with a value.
	Scalar struct {
		Field *schema.Field
		Cond  Condition
		Value any // []any for In and NotIn.
	}
	empty struct{}
)

// Empty is the filter matching every record.
var Empty Filter = empty{}

func (And) filter()     {}
func (Or) filter()      {}
func (Not) filter()     {}
func (*Scalar) filter() {}
func (empty) filter()   {}

// IsEmpty reports if f matches every record without a condition.
func IsEmpty(f Filter) bool {
	switch f := f.(type) {
	case nil, empty:
		return true
	case And:
		for _, sub := range f {
			if !IsEmpty(sub) {
				return false
			}
		}
		return true
	}
	return false
}

// Condition is the comparison of a scalar filter.
type Condition uint8

// Scalar conditions.
const (
	Equals Condition = iota + 1
	NotEquals
	In
	NotIn
	LT
	LTE
	GT
	GTE
	Contains
	StartsWith
	EndsWith
	IsNull
	IsNotNull
)

var condNames = map[Condition]string{
	Equals:     "=",
	NotEquals:  "<>",
	In:         "IN",
	NotIn:      "NOT IN",
	LT:         "<",
	LTE:        "<=",
	GT:         ">",
	GTE:        ">=",
	Contains:   "CONTAINS",
	StartsWith: "STARTS WITH",
	EndsWith:   "ENDS WITH",
	IsNull:     "IS NULL",
	IsNotNull:  "IS NOT NULL",
}

// String implements fmt.Stringer.
func (c Condition) String() string { return condNames[c] }

// Eq returns a filter matching records where f equals v.
func Eq(f *schema.Field, v any) *Scalar { return &Scalar{Field: f, Cond: Equals, Value: v} }

// InValues returns a filter matching records where f is one of vs.
func InValues(f *schema.Field, vs ...any) *Scalar { return &Scalar{Field: f, Cond: In, Value: vs} }

// FromSelections returns the filter matching exactly the given records.
// An empty list matches nothing.
func FromSelections(ids []SelectionResult) Filter {
	if len(ids) == 0 {
		return Or{}
	}
	if len(ids[0]) == 1 {
		values := make([]any, 0, len(ids))
		var nulls bool
		for _, id := range ids {
			if id[0].Value == nil {
				nulls = true
				continue
			}
			values = append(values, id[0].Value)
		}
		in := InValues(ids[0][0].Field, values...)
		if nulls {
			return Or{in, &Scalar{Field: ids[0][0].Field, Cond: IsNull}}
		}
		return in
	}
	or := make(Or, len(ids))
	for i, id := range ids {
		or[i] = id.Filter()
	}
	return or
}

// Conjoin joins filters with AND, dropping empty ones.
func Conjoin(filters ...Filter) Filter {
	var and And
	for _, f := range filters {
		if !IsEmpty(f) {
			and = append(and, f)
		}
	}
	switch len(and) {
	case 0:
		return Empty
	case 1:
		return and[0]
	}
	return and
}

func (empty) String() string { return "TRUE" }

func (f And) String() string { return joinFilters("AND", f, "TRUE") }
func (f Or) String() string  { return joinFilters("OR", f, "FALSE") }
func (f Not) String() string { return "NOT " + joinFilters("OR", f, "FALSE") }

func (s *Scalar) String() string {
	switch s.Cond {
	case IsNull, IsNotNull:
		return fmt.Sprintf("%s %s", s.Field.Name, s.Cond)
	}
	return fmt.Sprintf("%s %s %s", s.Field.Name, s.Cond, valueKey(s.Value))
}

func joinFilters(op string, fs []Filter, zero string) string {
	if len(fs) == 0 {
		return zero
	}
	parts := make([]string, len(fs))
	for i, f := range fs {
		parts[i] = f.String()
	}
	return "(" + strings.Join(parts, " "+op+" ") + ")"
}

// RecordFilter selects the records a write applies to. When selectors are
// set they take precedence over Filter and pin the write to exactly those
// records, regardless of what Filter would match at execution time.
type RecordFilter struct {
	Filter    Filter
	Selectors []SelectionResult
	selected  bool
}

// NewRecordFilter returns a record filter with no selectors.
func NewRecordFilter(f Filter) RecordFilter {
	if f == nil {
		f = Empty
	}
	return RecordFilter{Filter: f}
}

// SelectorsFilter returns a record filter pinned to the given records.
func SelectorsFilter(ids []SelectionResult) RecordFilter {
	var rf RecordFilter
	rf.Filter = Empty
	rf.SetSelectors(ids)
	return rf
}

// SetSelectors pins the filter to the given records. An empty list pins it
// to no record at all.
func (rf *RecordFilter) SetSelectors(ids []SelectionResult) {
	rf.Selectors = ids
	rf.selected = true
}

// HasSelectors reports if the filter is pinned to selectors.
func (rf RecordFilter) HasSelectors() bool { return rf.selected }

// Effective returns the filter to evaluate against the store.
func (rf RecordFilter) Effective() Filter {
	if rf.selected {
		return FromSelections(rf.Selectors)
	}
	if rf.Filter == nil {
		return Empty
	}
	return rf.Filter
}

// String implements fmt.Stringer.
func (rf RecordFilter) String() string { return rf.Effective().String() }
