// Package query holds the data structures shared by the builder, the executor
// and connectors: field selections and their projected values, records,
// filters, write arguments and query arguments.
package query

import (
	"fmt"
	"strings"
	"time"

	"github.com/syssam/qengine/schema"
)

// FieldSelection is an ordered set of scalar fields.
type FieldSelection []*schema.Field

// Select returns a selection of the given fields.
func Select(fields ...*schema.Field) FieldSelection { return FieldSelection(fields) }

// PrimaryIdentifier returns the primary key selection of a model.
func PrimaryIdentifier(m *schema.Model) FieldSelection {
	return FieldSelection(m.PrimaryKeyFields())
}

// Names returns the field names of the selection.
func (s FieldSelection) Names() []string {
	names := make([]string, len(s))
	for i, f := range s {
		names[i] = f.Name
	}
	return names
}

// Contains reports if the selection contains f.
func (s FieldSelection) Contains(f *schema.Field) bool {
	for _, sf := range s {
		if sf == f {
			return true
		}
	}
	return false
}

// IsSubsetOf reports if all fields of s are part of other.
func (s FieldSelection) IsSubsetOf(other FieldSelection) bool {
	for _, f := range s {
		if !other.Contains(f) {
			return false
		}
	}
	return true
}

// Merge returns the union of both selections, keeping the order of s first.
func (s FieldSelection) Merge(other FieldSelection) FieldSelection {
	merged := make(FieldSelection, len(s), len(s)+len(other))
	copy(merged, s)
	for _, f := range other {
		if !merged.Contains(f) {
			merged = append(merged, f)
		}
	}
	return merged
}

// Pair is a field and its value.
type Pair struct {
	Field *schema.Field
	Value any
}

// SelectionResult holds the values of a FieldSelection for one record.
type SelectionResult []Pair

// NewSelectionResult zips fields and values.
func NewSelectionResult(fields FieldSelection, values []any) SelectionResult {
	r := make(SelectionResult, len(fields))
	for i, f := range fields {
		r[i] = Pair{Field: f, Value: values[i]}
	}
	return r
}

// Get returns the value of f.
func (r SelectionResult) Get(f *schema.Field) (any, bool) {
	for _, p := range r {
		if p.Field == f {
			return p.Value, true
		}
	}
	return nil, false
}

// Fields returns the selected fields.
func (r SelectionResult) Fields() FieldSelection {
	fields := make(FieldSelection, len(r))
	for i, p := range r {
		fields[i] = p.Field
	}
	return fields
}

// Values returns the selected values.
func (r SelectionResult) Values() []any {
	values := make([]any, len(r))
	for i, p := range r {
		values[i] = p.Value
	}
	return values
}

// Rebind assigns the values of r, positionally, to other fields. It is used
// to turn a referenced key into the foreign key pointing at it.
func (r SelectionResult) Rebind(fields []*schema.Field) (SelectionResult, error) {
	if len(fields) != len(r) {
		return nil, fmt.Errorf("query: cannot bind %d values to %d fields", len(r), len(fields))
	}
	out := make(SelectionResult, len(r))
	for i, f := range fields {
		v, err := f.Type.Normalize(r[i].Value)
		if err != nil {
			return nil, fmt.Errorf("query: bind %s: %w", f, err)
		}
		out[i] = Pair{Field: f, Value: v}
	}
	return out, nil
}

// HasNull reports if any value is nil.
func (r SelectionResult) HasNull() bool {
	for _, p := range r {
		if p.Value == nil {
			return true
		}
	}
	return false
}

// Key returns a string usable as a map key. Two results with equal values
// have equal keys.
func (r SelectionResult) Key() string {
	var sb strings.Builder
	for i, p := range r {
		if i > 0 {
			sb.WriteByte(0)
		}
		sb.WriteString(valueKey(p.Value))
	}
	return sb.String()
}

// Equal reports if both results hold the same values.
func (r SelectionResult) Equal(other SelectionResult) bool {
	return len(r) == len(other) && r.Key() == other.Key()
}

// Filter returns the filter matching exactly this result.
func (r SelectionResult) Filter() Filter {
	and := make(And, len(r))
	for i, p := range r {
		if p.Value == nil {
			and[i] = &Scalar{Field: p.Field, Cond: IsNull}
			continue
		}
		and[i] = &Scalar{Field: p.Field, Cond: Equals, Value: p.Value}
	}
	if len(and) == 1 {
		return and[0]
	}
	return and
}

// String implements fmt.Stringer.
func (r SelectionResult) String() string {
	parts := make([]string, len(r))
	for i, p := range r {
		parts[i] = fmt.Sprintf("%s=%v", p.Field.Name, p.Value)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func valueKey(v any) string {
	switch v := v.(type) {
	case nil:
		return "<nil>"
	case time.Time:
		return "t:" + v.UTC().Format(time.RFC3339Nano)
	case []byte:
		return fmt.Sprintf("b:%x", v)
	case []any:
		parts := make([]string, len(v))
		for i, e := range v {
			parts[i] = valueKey(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	default:
		return fmt.Sprintf("%T:%v", v, v)
	}
}

// DistinctSelections removes duplicated results, keeping the first occurrence.
func DistinctSelections(rs []SelectionResult) []SelectionResult {
	seen := make(map[string]struct{}, len(rs))
	out := make([]SelectionResult, 0, len(rs))
	for _, r := range rs {
		k := r.Key()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out
}
