// Package graph provides the query graph: an arena of nodes addressed by
// NodeRef and a list of edges carrying data dependencies between them.
//
// # Nodes
//
// A node is one of:
//
//   - *QueryNode: a read or write operation of the query package.
//   - Empty: a no-op check point, used to assert an upstream result.
//   - *If: a flow node choosing between its Then and Else edges.
//   - Flatten: a marker forwarding the result of its first executed parent.
//
// Nodes never point at other nodes; edges reference them by index.
//
// # Edges
//
// Every edge carries a Dependency:
//
//	ExecutionOrder                   // ordering only
//	ProjectedDataDependency          // projection + Transform + optional expectation
//	ProjectedDataSinkDependency      // projection + RowSink + optional expectation
//	Then, Else                       // branches of an If node
//
// Before a node runs, the projections of its parents are checked against the
// edge DataExpectation, then folded into the node by the Transform or the
// RowSink of the edge, in edge creation order. A later edge writing the same
// argument slot as an earlier one wins.
//
// # Graph flags
//
//	g := graph.New()
//	read := g.CreateQueryNode(readIDs)
//	update := g.CreateQueryNode(update)
//	err := g.CreateEdge(read, update, graph.ProjectedDataSinkDependency{
//	    Selection:   query.PrimaryIdentifier(model),
//	    Sink:        graph.RowSink{Cardinality: graph.All, Field: graph.RecordSelectors},
//	    Expectation: graph.NonEmptyRows(qengine.MissingRecord(qengine.OpUpdate)),
//	})
//	g.FlagTransactional()
//	err = g.AddResultNode(update)
package graph
