package builder

import (
	"github.com/syssam/qengine"
	"github.com/syssam/qengine/connector"
	"github.com/syssam/qengine/document"
	"github.com/syssam/qengine/filter"
	"github.com/syssam/qengine/graph"
	"github.com/syssam/qengine/query"
	"github.com/syssam/qengine/schema"
)

// UpsertRecord updates the record designated by a unique filter, or creates
// it when it does not exist.
//
// Flat upserts whose create payload sets the same unique values as the
// filter run as one native statement when the connector supports it. The
// others read the record first and branch:
//
//	read -> if(found) -Then-> update -> read back --\
//	                  -Else-> create -> read back ---> flatten (result)
func UpsertRecord(g *graph.QueryGraph, s *QuerySchema, m *schema.Model, op *document.Operation) error {
	where, err := op.Map(document.ArgWhere)
	if err != nil {
		return inputErr(err, "invalid where argument")
	}
	f, err := filter.ExtractUnique(m, where)
	if err != nil {
		return err
	}
	createData, err := op.Map(document.ArgCreate)
	if err != nil {
		return inputErr(err, "invalid create argument")
	}
	updateData, err := op.Map(document.ArgUpdate)
	if err != nil {
		return inputErr(err, "invalid update argument")
	}
	cin, err := extractWriteArgs(m, createData)
	if err != nil {
		return err
	}
	uin, err := extractWriteArgs(m, updateData)
	if err != nil {
		return err
	}
	sel, err := extractSelection(m, op.Selection)
	if err != nil {
		return err
	}
	if conflict, ok := nativeUpsertConflict(s, m, where, cin, uin, op.Selection); ok {
		if err := cin.args.ApplyDefaults(m, s.now()); err != nil {
			return inputErr(err, "invalid defaults of %s", m.Name)
		}
		uin.args.UpdateDateTimes(m, s.now())
		n := g.CreateQueryNode(&query.NativeUpsert{
			Name:      resultName(op),
			Model:     m,
			Filter:    f,
			Conflict:  conflict,
			Create:    cin.args,
			Update:    uin.args,
			Selection: sel.fields,
			Order:     sel.order,
		})
		return g.AddResultNode(n)
	}

	g.FlagTransactional()
	g.SetMissingRecordError(qengine.MissingRecord(qengine.OpUpsert))
	read := readIDs(g, m, f)
	cond := g.CreateNode(graph.IfNonEmpty())
	err = g.CreateEdge(read, cond, graph.ProjectedDataSinkDependency{
		Selection: query.PrimaryIdentifier(m),
		Sink:      graph.RowSink{Cardinality: graph.All, Field: graph.FlowInput},
	})
	if err != nil {
		return err
	}

	thenStart := graph.NodeRef(g.Len())
	upd := updateRecordNode(g, s, m, query.NewRecordFilter(query.Empty), uin.args, m.Name, nil)
	if err := g.CreateEdge(read, upd, selectorsSink(m, nil)); err != nil {
		return err
	}
	if s.RelationMode().IsEmulated() {
		if err := insertEmulatedOnUpdate(g, s, m, read, upd, uin.args); err != nil {
			return err
		}
	}
	if err := nestedWrites(g, s, upd, uin.nested, false); err != nil {
		return err
	}
	elseStart := graph.NodeRef(g.Len())
	create, err := createNode(g, s, m, cin, nil)
	if err != nil {
		return err
	}
	end := graph.NodeRef(g.Len())
	if err := gate(g, cond, thenStart, elseStart, graph.Then{}); err != nil {
		return err
	}
	if err := gate(g, cond, elseStart, end, graph.Else{}); err != nil {
		return err
	}

	updated, err := upsertReadBack(g, m, op, &sel, upd, thenStart, elseStart)
	if err != nil {
		return err
	}
	created, err := upsertReadBack(g, m, op, &sel, create, elseStart, end)
	if err != nil {
		return err
	}
	flat := g.CreateNode(graph.Flatten{})
	if err := createEdges(g,
		edge{updated, flat, graph.ExecutionOrder{}},
		edge{created, flat, graph.ExecutionOrder{}},
	); err != nil {
		return err
	}
	return g.AddResultNode(flat)
}

// upsertReadBack reads the record written by n once the branch [from, to)
// completed.
func upsertReadBack(g *graph.QueryGraph, m *schema.Model, op *document.Operation, sel *selection, n, from, to graph.NodeRef) (graph.NodeRef, error) {
	read := g.CreateQueryNode(&query.ReadOneRecord{
		Name:      resultName(op),
		Model:     m,
		Args:      query.NewQueryArguments(query.Empty),
		Selection: sel.fields,
		Order:     sel.order,
		Nested:    sel.nested,
	})
	if err := g.CreateEdge(n, read, readBackSink(m, graph.NonEmptyRows(qengine.MissingRecord(qengine.OpUpsert)))); err != nil {
		return 0, err
	}
	return read, afterAll(g, from, to, read)
}

// nativeUpsertConflict returns the unique fields of a native upsert, if the
// request qualifies for one.
func nativeUpsertConflict(s *QuerySchema, m *schema.Model, where map[string]any, cin, uin writeInput, sel []document.Field) (query.FieldSelection, bool) {
	if !s.HasCapability(connector.NativeUpsert) || s.RelationMode().IsEmulated() {
		return nil, false
	}
	if len(cin.nested) > 0 || len(uin.nested) > 0 || document.HasNested(sel) {
		return nil, false
	}
	unique, ok := filter.UniqueSelection(m, where)
	if !ok {
		return nil, false
	}
	values, ok := cin.args.Values(unique.Fields())
	if !ok || !values.Equal(unique) {
		return nil, false
	}
	return unique.Fields(), true
}
