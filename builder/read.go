package builder

import (
	"github.com/syssam/qengine"
	"github.com/syssam/qengine/document"
	"github.com/syssam/qengine/filter"
	"github.com/syssam/qengine/graph"
	"github.com/syssam/qengine/query"
	"github.com/syssam/qengine/schema"
)

// FindUnique reads the record designated by a unique filter. With throw, a
// missing record fails the execution.
func FindUnique(g *graph.QueryGraph, s *QuerySchema, m *schema.Model, op *document.Operation, throw bool) error {
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
	n := g.CreateQueryNode(&query.ReadOneRecord{
		Name:      resultName(op),
		Model:     m,
		Args:      query.NewQueryArguments(f),
		Selection: sel.fields,
		Order:     sel.order,
		Nested:    sel.nested,
	})
	return readResult(g, n, m, throw)
}

// FindFirst reads the first record matching the query arguments.
func FindFirst(g *graph.QueryGraph, s *QuerySchema, m *schema.Model, op *document.Operation, throw bool) error {
	args, err := extractQueryArgs(m, op.Arguments)
	if err != nil {
		return err
	}
	take := 1
	if n, backwards, ok := args.TakeAbs(); ok && n != 0 && backwards {
		take = -1
	}
	args.Take = &take
	sel, err := extractSelection(m, op.Selection)
	if err != nil {
		return err
	}
	n := g.CreateQueryNode(&query.ReadOneRecord{
		Name:      resultName(op),
		Model:     m,
		Args:      args,
		Selection: sel.fields,
		Order:     sel.order,
		Nested:    sel.nested,
	})
	return readResult(g, n, m, throw)
}

// FindMany reads the records matching the query arguments.
func FindMany(g *graph.QueryGraph, s *QuerySchema, m *schema.Model, op *document.Operation) error {
	args, err := extractQueryArgs(m, op.Arguments)
	if err != nil {
		return err
	}
	sel, err := extractSelection(m, op.Selection)
	if err != nil {
		return err
	}
	n := g.CreateQueryNode(&query.ReadManyRecords{
		Name:      resultName(op),
		Model:     m,
		Args:      args,
		Selection: sel.fields,
		Order:     sel.order,
		Nested:    sel.nested,
	})
	return g.AddResultNode(n)
}

func readResult(g *graph.QueryGraph, n graph.NodeRef, m *schema.Model, throw bool) error {
	if err := g.AddResultNode(n); err != nil {
		return err
	}
	if !throw {
		return nil
	}
	check := g.CreateNode(graph.Empty{})
	return g.CreateEdge(n, check, graph.ProjectedDataDependency{
		Selection:   query.PrimaryIdentifier(m),
		Transform:   graph.Passthrough,
		Expectation: graph.NonEmptyRows(qengine.MissingRecordFor(m.Name, qengine.OpQuery)),
	})
}

var aggregations = map[string]query.AggregationKind{
	query.AggCount.String(): query.AggCount,
	query.AggSum.String():   query.AggSum,
	query.AggAvg.String():   query.AggAvg,
	query.AggMin.String():   query.AggMin,
	query.AggMax.String():   query.AggMax,
}

// Aggregate computes the selected aggregations over the records matching
// the query arguments.
func Aggregate(g *graph.QueryGraph, s *QuerySchema, m *schema.Model, op *document.Operation) error {
	args, err := extractQueryArgs(m, op.Arguments)
	if err != nil {
		return err
	}
	if args.RequiresInMemoryProcessing() {
		return qengine.NewBuilderError(qengine.InputError, "distinct is not supported on aggregations")
	}
	var sels []query.AggregationSelection
	for _, sf := range op.Selection {
		kind, ok := aggregations[sf.Name]
		if !ok {
			return qengine.NewBuilderError(qengine.InputError, "unknown aggregation %q on %s", sf.Name, m.Name)
		}
		if len(sf.Selection) == 0 {
			return qengine.NewBuilderError(qengine.InputError, "aggregation %s on %s selects no field", sf.Name, m.Name)
		}
		for _, nf := range sf.Selection {
			if kind == query.AggCount && nf.Name == "_all" {
				sels = append(sels, query.AggregationSelection{Kind: kind})
				continue
			}
			f, ok := m.Field(nf.Name)
			if !ok {
				return qengine.NewBuilderError(qengine.InputError, "unknown field %q in %s of %s", nf.Name, sf.Name, m.Name)
			}
			if (kind == query.AggSum || kind == query.AggAvg) && !f.Type.Numeric() {
				return qengine.NewBuilderError(qengine.InputError, "%s requires a numeric field, %s is %s", sf.Name, f, f.Type)
			}
			sels = append(sels, query.AggregationSelection{Kind: kind, Field: f})
		}
	}
	if len(sels) == 0 {
		return qengine.NewBuilderError(qengine.InputError, "aggregate on %s selects nothing", m.Name)
	}
	n := g.CreateQueryNode(&query.AggregateRecords{
		Name:       resultName(op),
		Model:      m,
		Args:       args,
		Selections: sels,
	})
	return g.AddResultNode(n)
}
