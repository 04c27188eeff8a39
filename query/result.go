package query

import (
	"fmt"

	"github.com/syssam/qengine/schema"
)

// Result is the output of one executed operation. Every result can be
// projected onto a field selection for the edges leaving its node.
type Result interface {
	Project(sel FieldSelection) ([]SelectionResult, error)
	result()
}

// RecordSelection holds the records returned by a read or a returning write.
type RecordSelection struct {
	Name    string
	Model   *schema.Model
	Order   []string
	Records ManyRecords
	// ParentKeys hold, for nested reads, the parent linking values of every
	// record, aligned with Records.Rows.
	ParentKeys []SelectionResult
	Nested     []*RecordSelection
	// Unique reports if the selection answers a single record request.
	Unique bool
}

// IDResult holds the primary identifier of a written record, or nil if no
// record was written.
type IDResult struct {
	ID SelectionResult
}

// CountResult holds the number of affected records.
type CountResult struct {
	Count int
}

// AggregationValue is the value of one aggregation selection.
type AggregationValue struct {
	Selection AggregationSelection
	Value     any
}

// AggregationResult holds the values of an aggregation query.
type AggregationResult struct {
	Name   string
	Values []AggregationValue
}

// RawResult holds the rows of a raw query.
type RawResult struct {
	Columns []string
	Rows    [][]any
}

// UnitResult is the result of operations returning nothing.
type UnitResult struct{}

func (*RecordSelection) result()   {}
func (*IDResult) result()          {}
func (*CountResult) result()       {}
func (*AggregationResult) result() {}
func (*RawResult) result()         {}
func (*UnitResult) result()        {}

// Project implements Result.
func (r *RecordSelection) Project(sel FieldSelection) ([]SelectionResult, error) {
	return r.Records.Project(sel)
}

// Project implements Result.
func (r *IDResult) Project(sel FieldSelection) ([]SelectionResult, error) {
	if r.ID == nil {
		return nil, nil
	}
	out := make(SelectionResult, len(sel))
	for i, f := range sel {
		v, ok := r.ID.Get(f)
		if !ok {
			return nil, fmt.Errorf("query: field %s is not part of the written identifier", f)
		}
		out[i] = Pair{Field: f, Value: v}
	}
	return []SelectionResult{out}, nil
}

// Project implements Result. Counts only project onto the empty selection,
// yielding one empty result per affected record.
func (r *CountResult) Project(sel FieldSelection) ([]SelectionResult, error) {
	if len(sel) > 0 {
		return nil, fmt.Errorf("query: count results can not be projected onto %v", sel.Names())
	}
	return make([]SelectionResult, r.Count), nil
}

// Project implements Result.
func (r *AggregationResult) Project(sel FieldSelection) ([]SelectionResult, error) {
	if len(sel) > 0 {
		return nil, fmt.Errorf("query: aggregation results can not be projected onto %v", sel.Names())
	}
	return nil, nil
}

// Project implements Result.
func (r *RawResult) Project(sel FieldSelection) ([]SelectionResult, error) {
	if len(sel) > 0 {
		return nil, fmt.Errorf("query: raw results can not be projected onto %v", sel.Names())
	}
	return make([]SelectionResult, len(r.Rows)), nil
}

// Project implements Result.
func (*UnitResult) Project(sel FieldSelection) ([]SelectionResult, error) {
	if len(sel) > 0 {
		return nil, fmt.Errorf("query: unit results can not be projected onto %v", sel.Names())
	}
	return nil, nil
}
