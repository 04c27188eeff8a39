package query

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/syssam/qengine/schema"
)

// WriteOp is the kind of a field write.
type WriteOp uint8

// Write operations.
const (
	OpSet WriteOp = iota + 1
	OpIncrement
	OpDecrement
	OpMultiply
	OpDivide
)

// String implements fmt.Stringer.
func (o WriteOp) String() string {
	switch o {
	case OpSet:
		return "set"
	case OpIncrement:
		return "increment"
	case OpDecrement:
		return "decrement"
	case OpMultiply:
		return "multiply"
	case OpDivide:
		return "divide"
	}
	return "invalid"
}

// WriteOperation is the value written to one field.
type WriteOperation struct {
	Op    WriteOp
	Value any
}

// Set returns a WriteOperation setting v.
func Set(v any) WriteOperation { return WriteOperation{Op: OpSet, Value: v} }

// WriteArgs holds the field writes of a create or update, in insertion order.
type WriteArgs struct {
	fields []*schema.Field
	ops    map[*schema.Field]WriteOperation
}

// NewWriteArgs returns empty write arguments.
func NewWriteArgs() *WriteArgs {
	return &WriteArgs{ops: make(map[*schema.Field]WriteOperation)}
}

// Insert sets the write of f, replacing any previous one.
func (a *WriteArgs) Insert(f *schema.Field, op WriteOperation) {
	if _, ok := a.ops[f]; !ok {
		a.fields = append(a.fields, f)
	}
	a.ops[f] = op
}

// Set is a shorthand for Insert(f, Set(v)).
func (a *WriteArgs) Set(f *schema.Field, v any) { a.Insert(f, Set(v)) }

// SetSelection sets every field of r to its value.
func (a *WriteArgs) SetSelection(r SelectionResult) {
	for _, p := range r {
		a.Set(p.Field, p.Value)
	}
}

// Get returns the write of f.
func (a *WriteArgs) Get(f *schema.Field) (WriteOperation, bool) {
	op, ok := a.ops[f]
	return op, ok
}

// Has reports if f is written.
func (a *WriteArgs) Has(f *schema.Field) bool {
	_, ok := a.ops[f]
	return ok
}

// TouchesAny reports if any of the fields is written.
func (a *WriteArgs) TouchesAny(fields []*schema.Field) bool {
	for _, f := range fields {
		if a.Has(f) {
			return true
		}
	}
	return false
}

// Fields returns the written fields in insertion order.
func (a *WriteArgs) Fields() []*schema.Field { return a.fields }

// Len returns the number of written fields.
func (a *WriteArgs) Len() int { return len(a.fields) }

// IsEmpty reports if no field is written.
func (a *WriteArgs) IsEmpty() bool { return len(a.fields) == 0 }

// Clone returns a copy of the arguments.
func (a *WriteArgs) Clone() *WriteArgs {
	c := &WriteArgs{
		fields: make([]*schema.Field, len(a.fields)),
		ops:    make(map[*schema.Field]WriteOperation, len(a.ops)),
	}
	copy(c.fields, a.fields)
	for f, op := range a.ops {
		c.ops[f] = op
	}
	return c
}

// UpdateDateTimes sets the updatedAt fields of the model to now, unless
// written explicitly. Empty arguments are left untouched.
func (a *WriteArgs) UpdateDateTimes(m *schema.Model, now time.Time) {
	if a.IsEmpty() {
		return
	}
	for _, f := range m.Fields {
		if f.UpdatedAt && !a.Has(f) {
			a.Set(f, now.UTC())
		}
	}
}

// ApplyDefaults fills the fields omitted on create with their defaults.
// Autoincrement fields are left to the database.
func (a *WriteArgs) ApplyDefaults(m *schema.Model, now time.Time) error {
	for _, f := range m.Fields {
		if a.Has(f) {
			continue
		}
		switch {
		case f.UpdatedAt:
			a.Set(f, now.UTC())
		case f.Default == nil:
		case f.Default.Kind == schema.DefaultValue:
			v, err := f.Type.Normalize(f.Default.Value)
			if err != nil {
				return fmt.Errorf("query: default of %s: %w", f, err)
			}
			a.Set(f, v)
		case f.Default.Kind == schema.DefaultUUID:
			a.Set(f, uuid.NewString())
		case f.Default.Kind == schema.DefaultNow:
			a.Set(f, now.UTC())
		}
	}
	return nil
}

// Values returns the set values of sel, if every field of sel is written
// with a Set operation.
func (a *WriteArgs) Values(sel FieldSelection) (SelectionResult, bool) {
	r := make(SelectionResult, len(sel))
	for i, f := range sel {
		op, ok := a.ops[f]
		if !ok || op.Op != OpSet {
			return nil, false
		}
		r[i] = Pair{Field: f, Value: op.Value}
	}
	return r, true
}

// Apply returns the values of r after the writes of a are applied to them.
// Only Set operations are applied; r is returned unchanged for the others.
func (a *WriteArgs) Apply(r SelectionResult) SelectionResult {
	out := make(SelectionResult, len(r))
	copy(out, r)
	for i, p := range out {
		if op, ok := a.ops[p.Field]; ok && op.Op == OpSet {
			out[i].Value = op.Value
		}
	}
	return out
}

// String implements fmt.Stringer.
func (a *WriteArgs) String() string {
	parts := make([]string, len(a.fields))
	for i, f := range a.fields {
		op := a.ops[f]
		parts[i] = fmt.Sprintf("%s %s %v", f.Name, op.Op, op.Value)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// OrderBy orders records by a field.
type OrderBy struct {
	Field *schema.Field
	Desc  bool
}

// QueryArguments are the arguments of a read.
type QueryArguments struct {
	Filter   Filter
	OrderBy  []OrderBy
	Take     *int // Negative values take from the end of the ordering.
	Skip     int
	Distinct FieldSelection
}

// NewQueryArguments returns arguments with the given filter.
func NewQueryArguments(f Filter) QueryArguments {
	if f == nil {
		f = Empty
	}
	return QueryArguments{Filter: f}
}

// RequiresInMemoryProcessing reports if the arguments can not be fully
// delegated to the store.
func (a QueryArguments) RequiresInMemoryProcessing() bool {
	return len(a.Distinct) > 0
}

// TakeAbs returns the number of records to take and if records are taken
// from the end of the ordering.
func (a QueryArguments) TakeAbs() (n int, backwards, ok bool) {
	if a.Take == nil {
		return 0, false, false
	}
	if *a.Take < 0 {
		return -*a.Take, true, true
	}
	return *a.Take, false, true
}

// AggregationKind is the function of an aggregation.
type AggregationKind uint8

// Aggregation functions.
const (
	AggCount AggregationKind = iota + 1
	AggSum
	AggAvg
	AggMin
	AggMax
)

// String returns the selection name of the aggregation.
func (k AggregationKind) String() string {
	switch k {
	case AggCount:
		return "_count"
	case AggSum:
		return "_sum"
	case AggAvg:
		return "_avg"
	case AggMin:
		return "_min"
	case AggMax:
		return "_max"
	}
	return "invalid"
}

// AggregationSelection selects an aggregation of a field. A nil field with
// AggCount counts all records.
type AggregationSelection struct {
	Kind  AggregationKind
	Field *schema.Field
}

// Name returns the output name of the selection.
func (s AggregationSelection) Name() string {
	if s.Field == nil {
		return "_all"
	}
	return s.Field.Name
}
