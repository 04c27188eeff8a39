package query

import (
	"fmt"

	"github.com/syssam/qengine/schema"
)

// SingleRecord is one record with the values of Fields.
type SingleRecord struct {
	Fields FieldSelection
	Values []any
}

// Get returns the value of f.
func (r *SingleRecord) Get(f *schema.Field) (any, bool) {
	for i, sf := range r.Fields {
		if sf == f {
			return r.Values[i], true
		}
	}
	return nil, false
}

// Project extracts the values of sel from the record.
func (r *SingleRecord) Project(sel FieldSelection) (SelectionResult, error) {
	out := make(SelectionResult, len(sel))
	for i, f := range sel {
		v, ok := r.Get(f)
		if !ok {
			return nil, fmt.Errorf("query: field %s is not part of the record", f)
		}
		out[i] = Pair{Field: f, Value: v}
	}
	return out, nil
}

// ManyRecords is a list of records sharing the same field selection.
type ManyRecords struct {
	Fields FieldSelection
	Rows   [][]any
}

// Len returns the number of records.
func (m *ManyRecords) Len() int { return len(m.Rows) }

// Record returns the i-th record.
func (m *ManyRecords) Record(i int) *SingleRecord {
	return &SingleRecord{Fields: m.Fields, Values: m.Rows[i]}
}

// Push appends a record. The record must have the same field selection.
func (m *ManyRecords) Push(r *SingleRecord) {
	m.Rows = append(m.Rows, r.Values)
}

// Project extracts the values of sel from every record.
func (m *ManyRecords) Project(sel FieldSelection) ([]SelectionResult, error) {
	idx := make([]int, len(sel))
	for i, f := range sel {
		idx[i] = -1
		for j, rf := range m.Fields {
			if rf == f {
				idx[i] = j
				break
			}
		}
		if idx[i] < 0 {
			return nil, fmt.Errorf("query: field %s is not part of the records", f)
		}
	}
	out := make([]SelectionResult, len(m.Rows))
	for r, row := range m.Rows {
		res := make(SelectionResult, len(sel))
		for i, f := range sel {
			res[i] = Pair{Field: f, Value: row[idx[i]]}
		}
		out[r] = res
	}
	return out, nil
}

// Normalize converts every value to the canonical representation of its field type.
func (m *ManyRecords) Normalize() error {
	for _, row := range m.Rows {
		for i, f := range m.Fields {
			v, err := f.Type.Normalize(row[i])
			if err != nil {
				return fmt.Errorf("query: normalize %s: %w", f, err)
			}
			row[i] = v
		}
	}
	return nil
}
