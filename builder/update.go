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

// CanUseAtomicUpdate reports if an update of m can be answered by the
// update statement alone: the connector returns updated rows, and the
// request has neither a nested selection nor a nested write.
func CanUseAtomicUpdate(s *QuerySchema, m *schema.Model, data map[string]any, sel []document.Field) bool {
	return s.HasCapability(connector.UpdateReturning) && !document.HasNested(sel) && !HasNestedOperation(m, data)
}

// UpdateRecord updates the record designated by a unique filter.
//
// On the atomic path the update is the result node. Otherwise the result is
// read back once all nested writes ran. The primary identifier is read
// before the update only when the connector cannot return updated rows or
// the relations are emulated by the engine; the update is then pinned to
// it.
func UpdateRecord(g *graph.QueryGraph, s *QuerySchema, m *schema.Model, op *document.Operation) error {
	where, err := op.Map(document.ArgWhere)
	if err != nil {
		return inputErr(err, "invalid where argument")
	}
	f, err := filter.ExtractUnique(m, where)
	if err != nil {
		return err
	}
	data, err := op.Map(document.ArgData)
	if err != nil {
		return inputErr(err, "invalid data argument")
	}
	in, err := extractWriteArgs(m, data)
	if err != nil {
		return err
	}
	sel, err := extractSelection(m, op.Selection)
	if err != nil {
		return err
	}
	var (
		atomic   = CanUseAtomicUpdate(s, m, data, op.Selection)
		emulated = s.RelationMode().IsEmulated()
		preRead  = !s.HasCapability(connector.UpdateReturning) || emulated
		missing  = qengine.MissingRecord(qengine.OpUpdate)
	)
	if atomic && !emulated {
		n := updateRecordNode(g, s, m, query.NewRecordFilter(f), in.args, resultName(op), &sel)
		if err := g.AddResultNode(n); err != nil {
			return err
		}
		return checkWritten(g, n, m, missing)
	}
	g.FlagTransactional()
	start := graph.NodeRef(g.Len())
	var rsel *selection
	if atomic {
		rsel = &sel
	}
	var n graph.NodeRef
	if preRead {
		read := g.CreateQueryNode(&query.ReadOneRecord{
			Name:      m.Name,
			Model:     m,
			Args:      query.NewQueryArguments(f),
			Selection: query.PrimaryIdentifier(m),
		})
		n = updateRecordNode(g, s, m, query.NewRecordFilter(query.Empty), in.args, resultName(op), rsel)
		if err := g.CreateEdge(read, n, selectorsSink(m, graph.NonEmptyRows(missing))); err != nil {
			return err
		}
		if emulated {
			if err := insertEmulatedOnUpdate(g, s, m, read, n, in.args); err != nil {
				return err
			}
		}
	} else {
		n = updateRecordNode(g, s, m, query.NewRecordFilter(f), in.args, resultName(op), rsel)
		if err := checkWritten(g, n, m, missing); err != nil {
			return err
		}
	}
	if atomic {
		if err := g.AddResultNode(n); err != nil {
			return err
		}
		return checkWritten(g, n, m, missing)
	}
	if err := nestedWrites(g, s, n, in.nested, false); err != nil {
		return err
	}
	result := g.CreateQueryNode(&query.ReadOneRecord{
		Name:      resultName(op),
		Model:     m,
		Args:      query.NewQueryArguments(query.Empty),
		Selection: sel.fields,
		Order:     sel.order,
		Nested:    sel.nested,
	})
	if err := g.CreateEdge(n, result, readBackSink(m, graph.NonEmptyRows(missing))); err != nil {
		return err
	}
	if err := afterAll(g, start, result, result); err != nil {
		return err
	}
	return g.AddResultNode(result)
}

// updateRecordNode adds the update of one record. Connectors returning
// updated rows answer with sel, or with the primary identifier when sel is
// nil.
func updateRecordNode(g *graph.QueryGraph, s *QuerySchema, m *schema.Model, rf query.RecordFilter, args *query.WriteArgs, name string, sel *selection) graph.NodeRef {
	args.UpdateDateTimes(m, s.now())
	if !s.HasCapability(connector.UpdateReturning) {
		return g.CreateQueryNode(&query.UpdateRecordWithoutSelection{Model: m, Filter: rf, Args: args})
	}
	q := &query.UpdateRecordWithSelection{
		Name:      name,
		Model:     m,
		Filter:    rf,
		Args:      args,
		Selection: query.PrimaryIdentifier(m),
	}
	if sel != nil {
		q.Selection, q.Order = sel.fields, sel.order
	}
	return g.CreateQueryNode(q)
}

// checkWritten fails the execution with err when n wrote no record.
func checkWritten(g *graph.QueryGraph, n graph.NodeRef, m *schema.Model, err qengine.ExpectationError) error {
	check := g.CreateNode(graph.Empty{})
	return g.CreateEdge(n, check, graph.ProjectedDataDependency{
		Selection:   query.PrimaryIdentifier(m),
		Transform:   graph.Passthrough,
		Expectation: graph.NonEmptyRows(err),
	})
}

// UpdateManyRecords updates every record matching the where filter and
// returns their count, or the updated records when returning is set.
//
// The identifiers are read first and the update is pinned to exactly them
// when the relations are emulated, when a limit bounds the update, or when
// the records are returned. Returned records are read back by these
// identifiers once the update ran.
func UpdateManyRecords(g *graph.QueryGraph, s *QuerySchema, m *schema.Model, op *document.Operation, returning bool) error {
	where, err := op.Map(document.ArgWhere)
	if err != nil {
		return inputErr(err, "invalid where argument")
	}
	f, err := filter.Extract(m, where)
	if err != nil {
		return err
	}
	limit, err := limitArg(op)
	if err != nil {
		return err
	}
	data, err := op.Map(document.ArgData)
	if err != nil {
		return inputErr(err, "invalid data argument")
	}
	in, err := extractWriteArgs(m, data)
	if err != nil {
		return err
	}
	if len(in.nested) > 0 {
		return qengine.NewBuilderError(qengine.InputError, "%s does not accept nested writes on %s", op.Action, in.nested[0].field)
	}
	var sel selection
	if returning {
		if sel, err = extractSelection(m, op.Selection); err != nil {
			return err
		}
	}
	in.args.UpdateDateTimes(m, s.now())
	g.FlagTransactional()
	emulated := s.RelationMode().IsEmulated()
	if !emulated && limit == nil && !returning {
		n := g.CreateQueryNode(&query.UpdateManyRecords{
			Name:   resultName(op),
			Model:  m,
			Filter: query.NewRecordFilter(f),
			Args:   in.args,
		})
		return g.AddResultNode(n)
	}
	args := query.NewQueryArguments(f)
	args.Take = limit
	read := g.CreateQueryNode(&query.ReadManyRecords{
		Name:      m.Name,
		Model:     m,
		Args:      args,
		Selection: query.PrimaryIdentifier(m),
	})
	n := g.CreateQueryNode(&query.UpdateManyRecords{
		Name:   resultName(op),
		Model:  m,
		Filter: query.NewRecordFilter(query.Empty),
		Args:   in.args,
	})
	if err := g.CreateEdge(read, n, selectorsSink(m, nil)); err != nil {
		return err
	}
	if emulated {
		if err := insertEmulatedOnUpdate(g, s, m, read, n, in.args); err != nil {
			return err
		}
	}
	if !returning {
		return g.AddResultNode(n)
	}
	result := g.CreateQueryNode(&query.ReadManyRecords{
		Name:      resultName(op),
		Model:     m,
		Args:      query.NewQueryArguments(query.Empty),
		Selection: sel.fields,
		Order:     sel.order,
		Nested:    sel.nested,
	})
	if err := createEdges(g,
		edge{read, result, idsAfterUpdate(m, in.args)},
		edge{n, result, graph.ExecutionOrder{}},
	); err != nil {
		return err
	}
	return g.AddResultNode(result)
}

// idsAfterUpdate filters a read to the records identified by the rows once
// args were applied to them, so that updated primary keys are followed.
func idsAfterUpdate(m *schema.Model, args *query.WriteArgs) graph.ProjectedDataDependency {
	return graph.ProjectedDataDependency{
		Selection: query.PrimaryIdentifier(m),
		Transform: graph.TransformFunc(func(n graph.Node, rows []query.SelectionResult) (graph.Node, error) {
			updated := make([]query.SelectionResult, len(rows))
			for i, r := range rows {
				updated[i] = args.Apply(r)
			}
			return graph.RecordQueryFilter.Input(n, updated)
		}),
	}
}

// limitArg returns the limit argument of op, or nil when it is not set.
func limitArg(op *document.Operation) (*int, error) {
	v, ok := op.Arg(document.ArgLimit)
	if !ok || v == nil {
		return nil, nil
	}
	n, err := intArg(document.ArgLimit, v)
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, qengine.NewBuilderError(qengine.InputError, "limit must not be negative, got %d", n)
	}
	return &n, nil
}
