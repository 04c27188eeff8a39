package builder

import (
	"github.com/syssam/qengine"
	"github.com/syssam/qengine/graph"
	"github.com/syssam/qengine/query"
	"github.com/syssam/qengine/schema"
)

// ConnectRecordsNode adds a node linking the record of parent to the
// records of child through the m:n relation rf. Exactly expected child
// records must resolve, or the execution fails with an
// IncompleteConnectInputError. The graph is flagged transactional.
func ConnectRecordsNode(g *graph.QueryGraph, parent, child graph.NodeRef, rf *schema.RelationField, expected int) (graph.NodeRef, error) {
	if !rf.Relation.IsManyToMany() {
		return 0, qengine.NewBuilderError(qengine.InvariantViolation, "connect node on %s requires a m:n relation", rf)
	}
	g.FlagTransactional()
	n := g.CreateQueryNode(&query.ConnectRecords{ParentField: rf})
	err := createEdges(g,
		edge{parent, n, parentIDDependency(rf, "connect")},
		edge{child, n, graph.ProjectedDataDependency{
			Selection: query.PrimaryIdentifier(rf.Related),
			Transform: graph.TransformFunc(func(n graph.Node, rows []query.SelectionResult) (graph.Node, error) {
				q, err := nodeQuery[*query.ConnectRecords](n)
				if err != nil {
					return nil, err
				}
				q.ChildIDs = rows
				return n, nil
			}),
			Expectation: graph.ExactRowCount(expected, qengine.IncompleteConnectInput(expected)),
		}},
	)
	return n, err
}

// DisconnectRecordsNode adds a node unlinking the records of child from the
// record of parent through the m:n relation rf. Children that are not
// linked are ignored.
func DisconnectRecordsNode(g *graph.QueryGraph, parent, child graph.NodeRef, rf *schema.RelationField) (graph.NodeRef, error) {
	if !rf.Relation.IsManyToMany() {
		return 0, qengine.NewBuilderError(qengine.InvariantViolation, "disconnect node on %s requires a m:n relation", rf)
	}
	g.FlagTransactional()
	n := g.CreateQueryNode(&query.DisconnectRecords{ParentField: rf})
	err := createEdges(g,
		edge{parent, n, parentIDDependency(rf, "disconnect")},
		edge{child, n, graph.ProjectedDataDependency{
			Selection: query.PrimaryIdentifier(rf.Related),
			Transform: graph.TransformFunc(func(n graph.Node, rows []query.SelectionResult) (graph.Node, error) {
				q, err := nodeQuery[*query.DisconnectRecords](n)
				if err != nil {
					return nil, err
				}
				q.ChildIDs = rows
				return n, nil
			}),
		}},
	)
	return n, err
}

func parentIDDependency(rf *schema.RelationField, op string) graph.ProjectedDataDependency {
	return graph.ProjectedDataDependency{
		Selection: query.PrimaryIdentifier(rf.Model),
		Transform: graph.TransformFunc(func(n graph.Node, rows []query.SelectionResult) (graph.Node, error) {
			if len(rows) == 0 {
				return nil, qengine.NewBuilderError(qengine.AssertionError,
					"Required exactly one parent ID to be present for %s query, found 0.", op)
			}
			id := rows[len(rows)-1]
			qn, _ := n.(*graph.QueryNode)
			if qn != nil {
				switch q := qn.Query.(type) {
				case *query.ConnectRecords:
					q.ParentID = id
					return n, nil
				case *query.DisconnectRecords:
					q.ParentID = id
					return n, nil
				}
			}
			return nil, qengine.NewBuilderError(qengine.InvariantViolation, "unexpected node %s", n)
		}),
	}
}

func nodeQuery[T query.Query](n graph.Node) (T, error) {
	var zero T
	if qn, ok := n.(*graph.QueryNode); ok {
		if q, ok := qn.Query.(T); ok {
			return q, nil
		}
	}
	return zero, qengine.NewBuilderError(qengine.InvariantViolation, "unexpected node %s", n)
}
