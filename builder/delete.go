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

// DeleteRecord deletes the record designated by a unique filter and returns
// it. The record is read before the delete unless the connector returns
// deleted rows and no referential action has to be emulated.
func DeleteRecord(g *graph.QueryGraph, s *QuerySchema, m *schema.Model, op *document.Operation) error {
	where, err := op.Map(document.ArgWhere)
	if err != nil {
		return inputErr(err, "invalid where argument")
	}
	f, err := filter.ExtractUnique(m, where)
	if err != nil {
		return err
	}
	sel, err := extractSelection(m, op.Selection)
	if err != nil {
		return err
	}
	missing := qengine.MissingRecordFor(m.Name, qengine.OpDelete)
	if s.HasCapability(connector.DeleteReturning) && !s.RelationMode().IsEmulated() && len(sel.nested) == 0 {
		n := g.CreateQueryNode(&query.DeleteRecord{
			Name:      resultName(op),
			Model:     m,
			Filter:    query.NewRecordFilter(f),
			Selection: sel.fields,
			Order:     sel.order,
		})
		if err := g.AddResultNode(n); err != nil {
			return err
		}
		return checkWritten(g, n, m, missing)
	}
	g.FlagTransactional()
	read := g.CreateQueryNode(&query.ReadOneRecord{
		Name:      resultName(op),
		Model:     m,
		Args:      query.NewQueryArguments(f),
		Selection: sel.fields,
		Order:     sel.order,
		Nested:    sel.nested,
	})
	if err := g.AddResultNode(read); err != nil {
		return err
	}
	del := g.CreateQueryNode(&query.DeleteRecord{
		Name:   m.Name,
		Model:  m,
		Filter: query.NewRecordFilter(query.Empty),
	})
	if err := g.CreateEdge(read, del, selectorsSink(m, graph.NonEmptyRows(missing))); err != nil {
		return err
	}
	return insertEmulatedOnDelete(g, s, m, read, del)
}

// DeleteManyRecords deletes every record matching the where filter and
// returns their count.
func DeleteManyRecords(g *graph.QueryGraph, s *QuerySchema, m *schema.Model, op *document.Operation) error {
	where, err := op.Map(document.ArgWhere)
	if err != nil {
		return inputErr(err, "invalid where argument")
	}
	f, err := filter.Extract(m, where)
	if err != nil {
		return err
	}
	if !s.RelationMode().IsEmulated() {
		n := g.CreateQueryNode(&query.DeleteManyRecords{
			Name:   resultName(op),
			Model:  m,
			Filter: query.NewRecordFilter(f),
		})
		return g.AddResultNode(n)
	}
	g.FlagTransactional()
	read := readIDs(g, m, f)
	del := g.CreateQueryNode(&query.DeleteManyRecords{
		Name:   resultName(op),
		Model:  m,
		Filter: query.NewRecordFilter(query.Empty),
	})
	if err := g.CreateEdge(read, del, selectorsSink(m, nil)); err != nil {
		return err
	}
	if err := insertEmulatedOnDelete(g, s, m, read, del); err != nil {
		return err
	}
	return g.AddResultNode(del)
}
