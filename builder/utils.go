package builder

import (
	"github.com/syssam/qengine"
	"github.com/syssam/qengine/connector"
	"github.com/syssam/qengine/graph"
	"github.com/syssam/qengine/query"
	"github.com/syssam/qengine/schema"
)

// readIDs adds a read of the primary identifiers of the records of m
// matching f.
func readIDs(g *graph.QueryGraph, m *schema.Model, f query.Filter) graph.NodeRef {
	return g.CreateQueryNode(&query.ReadManyRecords{
		Name:      m.Name,
		Model:     m,
		Args:      query.NewQueryArguments(f),
		Selection: query.PrimaryIdentifier(m),
	})
}

// withFields returns a node whose result holds fields for the records
// written or read by ref. The selection of ref is extended in place when
// the operation can return them; otherwise a read of the records of ref is
// added.
func withFields(g *graph.QueryGraph, s *QuerySchema, ref graph.NodeRef, m *schema.Model, fields []*schema.Field) (graph.NodeRef, error) {
	want := query.Select(fields...)
	pk := query.PrimaryIdentifier(m)
	if q, ok := g.Query(ref); ok {
		switch q := q.(type) {
		case *query.ReadOneRecord:
			q.Selection = q.Selection.Merge(want)
			return ref, nil
		case *query.ReadManyRecords:
			q.Selection = q.Selection.Merge(want)
			return ref, nil
		case *query.RelatedRecords:
			q.Selection = q.Selection.Merge(want)
			return ref, nil
		case *query.UpdateRecordWithSelection:
			q.Selection = q.Selection.Merge(want)
			return ref, nil
		case *query.NativeUpsert:
			q.Selection = q.Selection.Merge(want)
			return ref, nil
		case *query.CreateRecord:
			if s.HasCapability(connector.InsertReturning) || want.IsSubsetOf(pk) {
				q.Selection = q.Selection.Merge(want)
				return ref, nil
			}
		case *query.UpdateRecordWithoutSelection:
			if want.IsSubsetOf(pk) {
				return ref, nil
			}
		case *query.DeleteRecord:
			if len(q.Selection) == 0 && want.IsSubsetOf(pk) {
				return ref, nil
			}
		}
	}
	read := g.CreateQueryNode(&query.ReadManyRecords{
		Name:      m.Name,
		Model:     m,
		Args:      query.NewQueryArguments(query.Empty),
		Selection: pk.Merge(want),
	})
	err := g.CreateEdge(ref, read, graph.ProjectedDataSinkDependency{
		Selection: pk,
		Sink:      graph.RowSink{Cardinality: graph.All, Field: graph.RecordQueryFilter},
	})
	return read, err
}

// relatedNode adds a read of the primary identifiers of the records related
// through rf to the records of parent, restricted by f.
func relatedNode(g *graph.QueryGraph, s *QuerySchema, parent graph.NodeRef, rf *schema.RelationField, f query.Filter) (graph.NodeRef, error) {
	src, err := withFields(g, s, parent, rf.Model, rf.LinkingFields())
	if err != nil {
		return 0, err
	}
	n := g.CreateQueryNode(&query.RelatedRecords{
		Name:        rf.Name,
		ParentField: rf,
		Args:        query.NewQueryArguments(f),
		Selection:   query.PrimaryIdentifier(rf.Related),
	})
	err = g.CreateEdge(src, n, graph.ProjectedDataSinkDependency{
		Selection: query.Select(rf.LinkingFields()...),
		Sink:      graph.RowSink{Cardinality: graph.All, Field: graph.RelatedParents},
	})
	return n, err
}

// disconnectExisting releases the child currently linked to parent through
// a 1:1 relation whose opposite side holds the foreign key. The returned
// node must run before a new child is linked.
func disconnectExisting(g *graph.QueryGraph, s *QuerySchema, parent graph.NodeRef, rf *schema.RelationField) (graph.NodeRef, error) {
	fk := rf.Opposite()
	existing, err := relatedNode(g, s, parent, rf, query.Empty)
	if err != nil {
		return 0, err
	}
	if fk.IsRequired() {
		check := g.CreateNode(graph.Empty{})
		err := g.CreateEdge(existing, check, graph.ProjectedDataDependency{
			Selection:   query.PrimaryIdentifier(rf.Related),
			Transform:   graph.Passthrough,
			Expectation: graph.EmptyRows(violation(rf.Relation)),
		})
		return check, err
	}
	release := g.CreateQueryNode(&query.UpdateManyRecords{
		Name:   rf.Related.Name,
		Model:  rf.Related,
		Filter: query.NewRecordFilter(query.Empty),
		Args:   nullArgs(fk.Fields),
	})
	err = g.CreateEdge(existing, release, selectorsSink(rf.Related, nil))
	return release, err
}

// selectorsSink pins the target write to the projected primary identifiers.
func selectorsSink(m *schema.Model, exp *graph.DataExpectation) graph.ProjectedDataSinkDependency {
	return graph.ProjectedDataSinkDependency{
		Selection:   query.PrimaryIdentifier(m),
		Sink:        graph.RowSink{Cardinality: graph.All, Field: graph.RecordSelectors},
		Expectation: exp,
	}
}

// readBackSink fetches the record written by the source node.
func readBackSink(m *schema.Model, exp *graph.DataExpectation) graph.ProjectedDataSinkDependency {
	return graph.ProjectedDataSinkDependency{
		Selection:   query.PrimaryIdentifier(m),
		Sink:        graph.RowSink{Cardinality: graph.ExactlyOneFilter, Field: graph.RecordQueryFilter},
		Expectation: exp,
	}
}

func nullArgs(fields []*schema.Field) *query.WriteArgs {
	args := query.NewWriteArgs()
	for _, f := range fields {
		args.Set(f, nil)
	}
	return args
}

// defaultArgs sets fields to their static default, or to null.
func defaultArgs(fields []*schema.Field) (*query.WriteArgs, error) {
	args := query.NewWriteArgs()
	for _, f := range fields {
		var v any
		if f.Default != nil && f.Default.Kind == schema.DefaultValue {
			nv, err := f.Type.Normalize(f.Default.Value)
			if err != nil {
				return nil, inputErr(err, "invalid default of %s", f)
			}
			v = nv
		}
		args.Set(f, v)
	}
	return args, nil
}

func violation(r *schema.Relation) *qengine.RelationViolationError {
	return qengine.RelationViolation(r.Name, r.A.Model.Name, r.B.Model.Name)
}

// fkSink writes the projected key of the source, bound to the foreign key
// fields to, into the write arguments of the target.
func fkSink(from, to []*schema.Field, exp *graph.DataExpectation) graph.ProjectedDataSinkDependency {
	return graph.ProjectedDataSinkDependency{
		Selection:   query.Select(from...),
		Sink:        graph.RowSink{Cardinality: graph.ExactlyOne, Field: graph.ForeignKey(to)},
		Expectation: exp,
	}
}

// afterAll orders target after every node of [from, to) without outgoing
// edges, so that it observes the writes of the whole range.
func afterAll(g *graph.QueryGraph, from, to, target graph.NodeRef) error {
	for ref := from; ref < to; ref++ {
		if ref == target || len(g.OutgoingEdges(ref)) > 0 {
			continue
		}
		if err := g.CreateEdge(ref, target, graph.ExecutionOrder{}); err != nil {
			return err
		}
	}
	return nil
}

// gate makes every root of the subgraph [from, to) depend on a branch of
// the flow node cond. Nodes of the range only reached from inside the
// range are skipped along with their roots.
func gate(g *graph.QueryGraph, cond, from, to graph.NodeRef, branch graph.Dependency) error {
	for ref := from; ref < to; ref++ {
		inside := false
		for _, e := range g.IncomingEdges(ref) {
			if e.From >= from && e.From < to {
				inside = true
				break
			}
		}
		if inside {
			continue
		}
		if err := g.CreateEdge(cond, ref, branch); err != nil {
			return err
		}
	}
	return nil
}

func writesAll(args *query.WriteArgs, fields []*schema.Field) bool {
	for _, f := range fields {
		if !args.Has(f) {
			return false
		}
	}
	return true
}
