// Package executor runs a query graph against a connector.
//
// Nodes run one at a time in a topological order of the graph, ties broken
// by creation order, so that identical graphs and identical connector
// responses always yield the same sequence of operations. Before a node
// runs, the expectations and transforms of its incoming edges are applied in
// edge creation order. The executor never commits or rolls back: callers
// wrap transactional graphs in a connector transaction.
package executor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/syssam/qengine"
	"github.com/syssam/qengine/connector"
	"github.com/syssam/qengine/graph"
	"github.com/syssam/qengine/query"
)

// State is the execution state of a node.
type State uint8

// Node states. Executed, Skipped and Failed are terminal.
const (
	Pending State = iota
	Executed
	Skipped
	Failed
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Executed:
		return "executed"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	}
	return "invalid"
}

// Executor runs query graphs.
type Executor struct {
	q   connector.Queryable
	log *slog.Logger
}

// Option configures the Executor.
type Option func(*Executor)

// WithLogger sets the logger used for per-node debug logs.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) {
		e.log = l
	}
}

// New returns an executor running operations on q, which is either a
// connector or a transaction.
func New(q connector.Queryable, opts ...Option) *Executor {
	e := &Executor{q: q, log: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs the graph and returns the result of its result node. Graphs
// without a result node return a *query.UnitResult.
func (e *Executor) Execute(ctx context.Context, g *graph.QueryGraph) (query.Result, error) {
	run, err := e.Run(ctx, g)
	if err != nil {
		return nil, err
	}
	return run.Result()
}

// Run runs the graph and returns the per-node outcome.
func (e *Executor) Run(ctx context.Context, g *graph.QueryGraph) (*Run, error) {
	order, err := g.Sort()
	if err != nil {
		return nil, err
	}
	r := &Run{
		graph:   g,
		states:  make([]State, g.Len()),
		results: make([]query.Result, g.Len()),
		taken:   make([]bool, g.Len()),
	}
	for _, ref := range order {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("executor: stopped before node %d: %w", ref, err)
		}
		if r.skip(ref) {
			r.states[ref] = Skipped
			e.log.DebugContext(ctx, "skipping node", "ref", int(ref), "node", g.Node(ref).String())
			continue
		}
		n, err := r.fold(ref)
		if err != nil {
			r.states[ref] = Failed
			return nil, err
		}
		g.Replace(ref, n)
		e.log.DebugContext(ctx, "executing node", "ref", int(ref), "node", n.String())
		res, err := e.execute(ctx, r, ref, n)
		if err != nil {
			r.states[ref] = Failed
			return nil, err
		}
		r.results[ref] = res
		r.states[ref] = Executed
	}
	return r, nil
}

// Run is the outcome of a graph execution.
type Run struct {
	graph   *graph.QueryGraph
	states  []State
	results []query.Result
	taken   []bool
}

// State returns the state of a node.
func (r *Run) State(ref graph.NodeRef) State { return r.states[ref] }

// NodeResult returns the result of an executed node.
func (r *Run) NodeResult(ref graph.NodeRef) query.Result { return r.results[ref] }

// Result returns the result of the result node, or the missing record error
// of the graph if the result node was skipped.
func (r *Run) Result() (query.Result, error) {
	ref, ok := r.graph.ResultNode()
	if !ok {
		return &query.UnitResult{}, nil
	}
	if r.states[ref] != Executed {
		return nil, r.graph.MissingRecordError()
	}
	return r.results[ref], nil
}

// skip reports if a node must not run: a branch leading to it was not
// taken, or one of its parents was skipped. Flatten nodes are only skipped
// when none of their parents executed.
func (r *Run) skip(ref graph.NodeRef) bool {
	in := r.graph.IncomingEdges(ref)
	if _, ok := r.graph.Node(ref).(graph.Flatten); ok {
		for _, e := range in {
			if r.states[e.From] == Executed {
				return false
			}
		}
		return len(in) > 0
	}
	for _, e := range in {
		if r.states[e.From] == Skipped {
			return true
		}
		switch e.Dependency.(type) {
		case graph.Then:
			if !r.taken[e.From] {
				return true
			}
		case graph.Else:
			if r.taken[e.From] {
				return true
			}
		}
	}
	return false
}

// fold applies the incoming edges of a node in creation order: first the
// expectation, then the transform or the row sink.
func (r *Run) fold(ref graph.NodeRef) (graph.Node, error) {
	n := r.graph.Node(ref)
	for _, e := range r.graph.IncomingEdges(ref) {
		if r.states[e.From] != Executed {
			continue
		}
		var (
			sel       = graph.SelectionOf(e.Dependency)
			exp       = graph.ExpectationOf(e.Dependency)
			transform graph.Transform
		)
		switch dep := e.Dependency.(type) {
		case graph.ExecutionOrder, graph.Then, graph.Else:
			continue
		case graph.ProjectedDataDependency:
			transform = dep.Transform
			if transform == nil {
				transform = graph.Passthrough
			}
		case graph.ProjectedDataSinkDependency:
			transform = dep.Sink
		default:
			return nil, fmt.Errorf("executor: unknown dependency %T", dep)
		}
		rows, err := r.results[e.From].Project(sel)
		if err != nil {
			return nil, fmt.Errorf("executor: project node %d for edge %s: %w", e.From, e, err)
		}
		if err := exp.Check(rows); err != nil {
			return nil, err
		}
		if n, err = transform.Apply(n, rows); err != nil {
			return nil, err
		}
	}
	return n, nil
}

func (e *Executor) execute(ctx context.Context, r *Run, ref graph.NodeRef, n graph.Node) (query.Result, error) {
	switch n := n.(type) {
	case graph.Empty:
		return &query.UnitResult{}, nil
	case graph.Flatten:
		for _, in := range r.graph.IncomingEdges(ref) {
			if r.states[in.From] == Executed {
				return r.results[in.From], nil
			}
		}
		return &query.UnitResult{}, nil
	case *graph.If:
		r.taken[ref] = n.Evaluate()
		return &query.UnitResult{}, nil
	case *graph.QueryNode:
		switch q := n.Query.(type) {
		case query.ReadQuery:
			return e.read(ctx, q)
		case query.WriteQuery:
			return e.write(ctx, q)
		}
	}
	return nil, qengine.NewBuilderError(qengine.InvariantViolation, "node %d has unknown kind %T", ref, n)
}
