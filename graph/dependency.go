package graph

import (
	"fmt"
	"strings"

	"github.com/syssam/qengine"
	"github.com/syssam/qengine/query"
	"github.com/syssam/qengine/schema"
)

// Dependency is the kind of an edge. Its variants are ExecutionOrder,
// ProjectedDataDependency, ProjectedDataSinkDependency, Then and Else.
type Dependency interface {
	fmt.Stringer
	dependency()
}

type (
	// ExecutionOrder only orders the target after the source.
	ExecutionOrder struct{}

	// ProjectedDataDependency projects the source result onto Selection and
	// folds it into the target with Transform.
	ProjectedDataDependency struct {
		Selection   query.FieldSelection
		Transform   Transform
		Expectation *DataExpectation
	}

	// ProjectedDataSinkDependency projects the source result onto Selection
	// and writes it into an argument slot of the target.
	ProjectedDataSinkDependency struct {
		Selection   query.FieldSelection
		Sink        RowSink
		Expectation *DataExpectation
	}

	// Then is followed when the source If node evaluates to true.
	Then struct{}

	// Else is followed when the source If node evaluates to false.
	Else struct{}
)

func (ExecutionOrder) dependency()              {}
func (ProjectedDataDependency) dependency()     {}
func (ProjectedDataSinkDependency) dependency() {}
func (Then) dependency()                        {}
func (Else) dependency()                        {}

func (ExecutionOrder) String() string { return "ExecutionOrder" }
func (Then) String() string           { return "Then" }
func (Else) String() string           { return "Else" }

func (d ProjectedDataDependency) String() string {
	return fmt.Sprintf("ProjectedDataDependency(%s)", strings.Join(d.Selection.Names(), ", "))
}

func (d ProjectedDataSinkDependency) String() string {
	return fmt.Sprintf("ProjectedDataSinkDependency(%s, %s)", strings.Join(d.Selection.Names(), ", "), d.Sink)
}

// IsBranch reports if d is a Then or an Else dependency.
func IsBranch(d Dependency) bool {
	switch d.(type) {
	case Then, Else:
		return true
	}
	return false
}

// SelectionOf returns the projection required by d.
func SelectionOf(d Dependency) query.FieldSelection {
	switch d := d.(type) {
	case ProjectedDataDependency:
		return d.Selection
	case ProjectedDataSinkDependency:
		return d.Selection
	}
	return nil
}

// ExpectationOf returns the expectation attached to d, if any.
func ExpectationOf(d Dependency) *DataExpectation {
	switch d := d.(type) {
	case ProjectedDataDependency:
		return d.Expectation
	case ProjectedDataSinkDependency:
		return d.Expectation
	}
	return nil
}

// Transform folds the projected rows of a parent into a not yet executed node.
type Transform interface {
	Apply(n Node, rows []query.SelectionResult) (Node, error)
}

// TransformFunc adapts a function to the Transform interface.
type TransformFunc func(Node, []query.SelectionResult) (Node, error)

// Apply implements Transform.
func (f TransformFunc) Apply(n Node, rows []query.SelectionResult) (Node, error) {
	return f(n, rows)
}

// Passthrough leaves the node unchanged. It is used on edges that only
// carry an expectation.
var Passthrough Transform = TransformFunc(func(n Node, _ []query.SelectionResult) (Node, error) {
	return n, nil
})

// Cardinality is the number of rows a RowSink accepts.
type Cardinality uint8

// Row sink cardinalities.
const (
	All Cardinality = iota + 1
	ExactlyOne
	AtMostOne
	ExactlyOneFilter
	AtMostOneFilter
)

// String implements fmt.Stringer.
func (c Cardinality) String() string {
	switch c {
	case All:
		return "All"
	case ExactlyOne:
		return "ExactlyOne"
	case AtMostOne:
		return "AtMostOne"
	case ExactlyOneFilter:
		return "ExactlyOneFilter"
	case AtMostOneFilter:
		return "AtMostOneFilter"
	}
	return "invalid"
}

// InputField writes projected rows into an argument slot of a node.
type InputField interface {
	Name() string
	Input(n Node, rows []query.SelectionResult) (Node, error)
}

// RowSink checks the number of projected rows and writes them into Field.
type RowSink struct {
	Cardinality Cardinality
	Field       InputField
}

// String implements fmt.Stringer.
func (s RowSink) String() string {
	return fmt.Sprintf("%s(%s)", s.Cardinality, s.Field.Name())
}

// Apply checks the cardinality of rows and writes them into the node.
func (s RowSink) Apply(n Node, rows []query.SelectionResult) (Node, error) {
	switch s.Cardinality {
	case ExactlyOne, ExactlyOneFilter:
		if len(rows) != 1 {
			return nil, qengine.NewBuilderError(qengine.AssertionError,
				"%s expected exactly one row for %s, got %d", s.Cardinality, s.Field.Name(), len(rows))
		}
	case AtMostOne, AtMostOneFilter:
		if len(rows) > 1 {
			return nil, qengine.NewBuilderError(qengine.AssertionError,
				"%s expected at most one row for %s, got %d", s.Cardinality, s.Field.Name(), len(rows))
		}
	}
	return s.Field.Input(n, rows)
}

type inputField struct {
	name  string
	input func(Node, []query.SelectionResult) (Node, error)
}

func (f inputField) Name() string { return f.name }

func (f inputField) Input(n Node, rows []query.SelectionResult) (Node, error) {
	return f.input(n, rows)
}

// Input fields writing into the operations of the query package.
var (
	// RecordSelectors pins the record filter of an update or a delete to the rows.
	RecordSelectors InputField = inputField{name: "RecordSelectors", input: func(n Node, rows []query.SelectionResult) (Node, error) {
		w, err := queryOf[query.FilteredWrite](n, "RecordSelectors")
		if err != nil {
			return nil, err
		}
		w.Where().SetSelectors(rows)
		return n, nil
	}}

	// RecordQueryFilter replaces the filter of a read with the filter
	// matching exactly the rows.
	RecordQueryFilter InputField = inputField{name: "RecordQueryFilter", input: func(n Node, rows []query.SelectionResult) (Node, error) {
		q, err := queryOf[query.ReadQuery](n, "RecordQueryFilter")
		if err != nil {
			return nil, err
		}
		f := query.FromSelections(rows)
		switch q := q.(type) {
		case *query.ReadOneRecord:
			q.Args.Filter = f
		case *query.ReadManyRecords:
			q.Args.Filter = f
		case *query.AggregateRecords:
			q.Args.Filter = f
		default:
			return nil, sinkMismatch("RecordQueryFilter", n)
		}
		return n, nil
	}}

	// RelatedParents sets the parents of a related records read.
	RelatedParents InputField = inputField{name: "RelatedParents", input: func(n Node, rows []query.SelectionResult) (Node, error) {
		q, err := queryOf[*query.RelatedRecords](n, "RelatedParents")
		if err != nil {
			return nil, err
		}
		q.ParentIDs = query.DistinctSelections(rows)
		return n, nil
	}}

	// FlowInput sets the rows evaluated by an If node.
	FlowInput InputField = inputField{name: "FlowInput", input: func(n Node, rows []query.SelectionResult) (Node, error) {
		f, ok := n.(*If)
		if !ok {
			return nil, sinkMismatch("FlowInput", n)
		}
		f.Input = rows
		return n, nil
	}}
)

// ForeignKey writes the first row, bound positionally to fields, into the
// write arguments of a create or an update. It is used to inline the key of
// a related record.
func ForeignKey(fields []*schema.Field) InputField {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	name := "ForeignKey(" + strings.Join(names, ", ") + ")"
	return inputField{name: name, input: func(n Node, rows []query.SelectionResult) (Node, error) {
		w, err := queryOf[query.ArgsWrite](n, name)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return n, nil
		}
		v, err := rows[0].Rebind(fields)
		if err != nil {
			return nil, qengine.NewBuilderError(qengine.AssertionError, "%s: %v", name, err)
		}
		w.WriteArgs().SetSelection(v)
		return n, nil
	}}
}

func queryOf[T query.Query](n Node, field string) (T, error) {
	var zero T
	qn, ok := n.(*QueryNode)
	if !ok {
		return zero, sinkMismatch(field, n)
	}
	q, ok := qn.Query.(T)
	if !ok {
		return zero, sinkMismatch(field, n)
	}
	return q, nil
}

func sinkMismatch(field string, n Node) error {
	return qengine.NewBuilderError(qengine.InvariantViolation, "input field %s does not apply to node %s", field, n)
}

type expectationKind uint8

const (
	expectNonEmpty expectationKind = iota + 1
	expectEmpty
	expectExact
)

// DataExpectation is an assertion on the number of rows projected by an
// edge, checked before its transform runs.
type DataExpectation struct {
	kind  expectationKind
	count int
	err   qengine.ExpectationError
}

// NonEmptyRows expects at least one row and fails with err otherwise.
func NonEmptyRows(err qengine.ExpectationError) *DataExpectation {
	return &DataExpectation{kind: expectNonEmpty, err: err}
}

// EmptyRows expects no row and fails with err otherwise.
func EmptyRows(err qengine.ExpectationError) *DataExpectation {
	return &DataExpectation{kind: expectEmpty, err: err}
}

// ExactRowCount expects exactly n rows and fails with err otherwise.
func ExactRowCount(n int, err qengine.ExpectationError) *DataExpectation {
	return &DataExpectation{kind: expectExact, count: n, err: err}
}

// Check returns the expectation error, carrying the actual row count, if
// rows do not satisfy the expectation.
func (e *DataExpectation) Check(rows []query.SelectionResult) error {
	if e == nil {
		return nil
	}
	var ok bool
	switch e.kind {
	case expectNonEmpty:
		ok = len(rows) > 0
	case expectEmpty:
		ok = len(rows) == 0
	case expectExact:
		ok = len(rows) == e.count
	}
	if ok {
		return nil
	}
	return e.err.WithRowCount(len(rows))
}

// String implements fmt.Stringer.
func (e *DataExpectation) String() string {
	switch e.kind {
	case expectNonEmpty:
		return "NonEmptyRows"
	case expectEmpty:
		return "EmptyRows"
	case expectExact:
		return fmt.Sprintf("ExactRowCount(%d)", e.count)
	}
	return "invalid"
}
