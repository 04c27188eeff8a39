package graph

import (
	"container/heap"
	"fmt"

	"github.com/syssam/qengine"
	"github.com/syssam/qengine/query"
)

// NodeRef is the stable index of a node in its graph.
type NodeRef int

// Node is a unit of work of the graph. Its variants are *QueryNode, Empty,
// *If and Flatten.
type Node interface {
	fmt.Stringer
	node()
}

type (
	// QueryNode runs one operation against the connector.
	QueryNode struct {
		Query query.Query
	}
	// Empty does nothing. Its incoming expectations are still checked.
	Empty struct{}
	// Flatten forwards the result of the first parent that executed. It is
	// skipped only when all its parents are skipped.
	Flatten struct{}
	// If evaluates Cond over the rows written into Input by its incoming
	// edges, and enables its Then or its Else edges accordingly.
	If struct {
		Input []query.SelectionResult
		Cond  func([]query.SelectionResult) bool
	}
)

func (*QueryNode) node() {}
func (Empty) node()      {}
func (Flatten) node()    {}
func (*If) node()        {}

func (n *QueryNode) String() string { return n.Query.String() }
func (Empty) String() string        { return "Empty" }
func (Flatten) String() string      { return "Flatten" }
func (n *If) String() string        { return fmt.Sprintf("If(%d rows)", len(n.Input)) }

// IfNonEmpty returns a flow node taking its Then branch when its input holds
// at least one row.
func IfNonEmpty() *If {
	return &If{Cond: func(rows []query.SelectionResult) bool { return len(rows) > 0 }}
}

// Evaluate returns the branch taken by the node.
func (n *If) Evaluate() bool {
	if n.Cond == nil {
		return len(n.Input) > 0
	}
	return n.Cond(n.Input)
}

// Edge is a directed dependency between two nodes.
type Edge struct {
	ID         int
	From, To   NodeRef
	Dependency Dependency
}

// String implements fmt.Stringer.
func (e *Edge) String() string {
	return fmt.Sprintf("%d -> %d (%s)", e.From, e.To, e.Dependency)
}

// QueryGraph owns the nodes and edges built for one client operation.
// It is built once, executed once and discarded.
type QueryGraph struct {
	nodes         []Node
	edges         []*Edge
	incoming      [][]*Edge
	outgoing      [][]*Edge
	result        NodeRef
	hasResult     bool
	transactional bool
	missing       error
}

// New returns an empty graph.
func New() *QueryGraph {
	return &QueryGraph{}
}

// CreateNode inserts a node and returns its reference.
func (g *QueryGraph) CreateNode(n Node) NodeRef {
	g.nodes = append(g.nodes, n)
	g.incoming = append(g.incoming, nil)
	g.outgoing = append(g.outgoing, nil)
	return NodeRef(len(g.nodes) - 1)
}

// CreateQueryNode inserts a node running q.
func (g *QueryGraph) CreateQueryNode(q query.Query) NodeRef {
	return g.CreateNode(&QueryNode{Query: q})
}

// Len returns the number of nodes.
func (g *QueryGraph) Len() int { return len(g.nodes) }

// Valid reports if ref belongs to the graph.
func (g *QueryGraph) Valid(ref NodeRef) bool {
	return ref >= 0 && int(ref) < len(g.nodes)
}

// Node returns the node of ref.
func (g *QueryGraph) Node(ref NodeRef) Node { return g.nodes[ref] }

// Replace sets the node of ref. It is used by the executor to store the
// node rewritten by the transforms of its incoming edges.
func (g *QueryGraph) Replace(ref NodeRef, n Node) { g.nodes[ref] = n }

// Query returns the operation of ref, if ref is a query node.
func (g *QueryGraph) Query(ref NodeRef) (query.Query, bool) {
	if qn, ok := g.nodes[ref].(*QueryNode); ok {
		return qn.Query, true
	}
	return nil, false
}

// Nodes returns the references of all nodes in creation order.
func (g *QueryGraph) Nodes() []NodeRef {
	refs := make([]NodeRef, len(g.nodes))
	for i := range refs {
		refs[i] = NodeRef(i)
	}
	return refs
}

// CreateEdge inserts an edge from one node to another. It fails for unknown
// nodes, self edges, branch edges leaving a non-flow node and branch edges
// entering the result node.
func (g *QueryGraph) CreateEdge(from, to NodeRef, dep Dependency) error {
	switch {
	case !g.Valid(from) || !g.Valid(to):
		return qengine.NewBuilderError(qengine.InvariantViolation, "edge %d -> %d references an unknown node", from, to)
	case from == to:
		return qengine.NewBuilderError(qengine.InvariantViolation, "self edge on node %d", from)
	case dep == nil:
		return qengine.NewBuilderError(qengine.InvariantViolation, "edge %d -> %d has no dependency", from, to)
	}
	if IsBranch(dep) {
		if _, ok := g.nodes[from].(*If); !ok {
			return qengine.NewBuilderError(qengine.InvariantViolation, "%s edge %d -> %d must leave a flow node", dep, from, to)
		}
		if g.hasResult && g.result == to {
			return qengine.NewBuilderError(qengine.InvariantViolation, "%s edge %d -> %d enters the result node", dep, from, to)
		}
	}
	e := &Edge{ID: len(g.edges), From: from, To: to, Dependency: dep}
	g.edges = append(g.edges, e)
	g.outgoing[from] = append(g.outgoing[from], e)
	g.incoming[to] = append(g.incoming[to], e)
	return nil
}

// Edges returns all edges in creation order.
func (g *QueryGraph) Edges() []*Edge { return g.edges }

// IncomingEdges returns the edges entering ref in creation order.
func (g *QueryGraph) IncomingEdges(ref NodeRef) []*Edge { return g.incoming[ref] }

// OutgoingEdges returns the edges leaving ref in creation order.
func (g *QueryGraph) OutgoingEdges(ref NodeRef) []*Edge { return g.outgoing[ref] }

// Parents returns the distinct sources of the edges entering ref.
func (g *QueryGraph) Parents(ref NodeRef) []NodeRef {
	var (
		parents []NodeRef
		seen    = make(map[NodeRef]struct{})
	)
	for _, e := range g.incoming[ref] {
		if _, ok := seen[e.From]; !ok {
			seen[e.From] = struct{}{}
			parents = append(parents, e.From)
		}
	}
	return parents
}

// AddResultNode designates the node whose output answers the operation.
// A graph has at most one result node.
func (g *QueryGraph) AddResultNode(ref NodeRef) error {
	if !g.Valid(ref) {
		return qengine.NewBuilderError(qengine.InvariantViolation, "result node %d does not exist", ref)
	}
	if g.hasResult && g.result != ref {
		return qengine.NewBuilderError(qengine.InvariantViolation, "graph already has result node %d", g.result)
	}
	for _, e := range g.incoming[ref] {
		if IsBranch(e.Dependency) {
			return qengine.NewBuilderError(qengine.InvariantViolation, "result node %d is the target of a %s edge", ref, e.Dependency)
		}
	}
	g.result, g.hasResult = ref, true
	return nil
}

// ResultNode returns the result node, if any.
func (g *QueryGraph) ResultNode() (NodeRef, bool) { return g.result, g.hasResult }

// IsResultNode reports if ref is the result node.
func (g *QueryGraph) IsResultNode(ref NodeRef) bool { return g.hasResult && g.result == ref }

// FlagTransactional marks the graph as requiring an all-or-nothing
// execution. It is idempotent.
func (g *QueryGraph) FlagTransactional() { g.transactional = true }

// NeedsTransaction reports if the graph was flagged transactional.
func (g *QueryGraph) NeedsTransaction() bool { return g.transactional }

// SetMissingRecordError sets the error returned when the result node is skipped.
func (g *QueryGraph) SetMissingRecordError(err error) { g.missing = err }

// MissingRecordError returns the error returned when the result node is
// skipped. It defaults to a RecordNotFoundError for a query.
func (g *QueryGraph) MissingRecordError() error {
	if g.missing != nil {
		return g.missing
	}
	return qengine.MissingRecord(qengine.OpQuery)
}

// Sort returns the nodes in a topological order. Among the nodes ready at
// the same time, the one created first comes first, so the order only
// depends on the shape of the graph.
func (g *QueryGraph) Sort() ([]NodeRef, error) {
	indegree := make([]int, len(g.nodes))
	for _, e := range g.edges {
		indegree[e.To]++
	}
	ready := &refHeap{}
	for i, d := range indegree {
		if d == 0 {
			heap.Push(ready, NodeRef(i))
		}
	}
	order := make([]NodeRef, 0, len(g.nodes))
	for ready.Len() > 0 {
		ref := heap.Pop(ready).(NodeRef)
		order = append(order, ref)
		for _, e := range g.outgoing[ref] {
			if indegree[e.To]--; indegree[e.To] == 0 {
				heap.Push(ready, e.To)
			}
		}
	}
	if len(order) != len(g.nodes) {
		return nil, qengine.NewBuilderError(qengine.InvariantViolation, "query graph has a cycle")
	}
	return order, nil
}

// refHeap is a min-heap of node references.
type refHeap []NodeRef

func (h refHeap) Len() int           { return len(h) }
func (h refHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h refHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *refHeap) Push(x any)        { *h = append(*h, x.(NodeRef)) }

func (h *refHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
