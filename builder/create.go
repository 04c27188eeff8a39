package builder

import (
	"github.com/syssam/qengine"
	"github.com/syssam/qengine/connector"
	"github.com/syssam/qengine/document"
	"github.com/syssam/qengine/graph"
	"github.com/syssam/qengine/query"
	"github.com/syssam/qengine/schema"
)

// CreateRecord inserts a record with its nested writes. The record is
// returned from the insert itself when the connector supports it and the
// request is flat; otherwise it is read back after all nested writes.
func CreateRecord(g *graph.QueryGraph, s *QuerySchema, m *schema.Model, op *document.Operation) error {
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
	start := graph.NodeRef(g.Len())
	n, err := createNode(g, s, m, in, nil)
	if err != nil {
		return err
	}
	if s.HasCapability(connector.InsertReturning) && len(in.nested) == 0 && len(sel.nested) == 0 {
		q, _ := g.Query(n)
		create := q.(*query.CreateRecord)
		create.Name, create.Selection, create.Order = resultName(op), sel.fields, sel.order
		return g.AddResultNode(n)
	}
	read := g.CreateQueryNode(&query.ReadOneRecord{
		Name:      resultName(op),
		Model:     m,
		Args:      query.NewQueryArguments(query.Empty),
		Selection: sel.fields,
		Order:     sel.order,
		Nested:    sel.nested,
	})
	if err := g.CreateEdge(n, read, readBackSink(m, nil)); err != nil {
		return err
	}
	if err := afterAll(g, start, read, read); err != nil {
		return err
	}
	return g.AddResultNode(read)
}

// createNode adds the insert of a record of m and its nested writes. inject
// is the relation whose foreign key is written by an incoming edge.
func createNode(g *graph.QueryGraph, s *QuerySchema, m *schema.Model, in writeInput, inject *schema.RelationField) (graph.NodeRef, error) {
	if err := in.args.ApplyDefaults(m, s.now()); err != nil {
		return 0, inputErr(err, "invalid defaults of %s", m.Name)
	}
	for _, rf := range m.Relations() {
		if !rf.IsRequired() || rf == inject || writesAll(in.args, rf.Fields) || linksNested(in.nested, rf) {
			continue
		}
		return 0, qengine.NewBuilderError(qengine.MissingRequiredArgument,
			"required relation %s is missing in the create of %s", rf.Name, m.Name)
	}
	n := g.CreateQueryNode(&query.CreateRecord{
		Name:      m.Name,
		Model:     m,
		Args:      in.args,
		Selection: query.PrimaryIdentifier(m),
	})
	if len(in.nested) == 0 {
		return n, nil
	}
	g.FlagTransactional()
	return n, nestedWrites(g, s, n, in.nested, true)
}

// linksNested reports if a nested create or connect sets rf.
func linksNested(nested []nestedWrite, rf *schema.RelationField) bool {
	for _, nw := range nested {
		if nw.field == rf && (nw.op == document.NestedCreate || nw.op == document.NestedConnect) {
			return true
		}
	}
	return false
}

// CreateManyRecords inserts a list of flat records and returns their count.
func CreateManyRecords(g *graph.QueryGraph, s *QuerySchema, m *schema.Model, op *document.Operation) error {
	if !s.HasCapability(connector.CreateMany) {
		return qengine.NewBuilderError(qengine.InputError, "createMany is not supported by the connector")
	}
	var skip bool
	if v, ok := op.Arg(document.ArgSkipDuplicates); ok && v != nil {
		b, ok := v.(bool)
		if !ok {
			return qengine.NewBuilderError(qengine.InputError, "skipDuplicates expects a boolean, got %T", v)
		}
		skip = b
	}
	if skip && !s.HasCapability(connector.CreateSkipDuplicates) {
		return qengine.NewBuilderError(qengine.InputError, "skipDuplicates is not supported by the connector")
	}
	v, _ := op.Arg(document.ArgData)
	var items []any
	switch v := v.(type) {
	case []any:
		items = v
	case map[string]any:
		items = []any{v}
	default:
		return qengine.NewBuilderError(qengine.InputError, "createMany expects a list of objects, got %T", v)
	}
	args := make([]*query.WriteArgs, 0, len(items))
	for i, item := range items {
		data, ok := item.(map[string]any)
		if !ok {
			return qengine.NewBuilderError(qengine.InputError, "createMany item %d is not an object", i)
		}
		in, err := extractWriteArgs(m, data)
		if err != nil {
			return err
		}
		if len(in.nested) > 0 {
			return qengine.NewBuilderError(qengine.InputError, "createMany item %d holds nested writes on %s", i, in.nested[0].field)
		}
		if err := in.args.ApplyDefaults(m, s.now()); err != nil {
			return inputErr(err, "invalid defaults of %s", m.Name)
		}
		args = append(args, in.args)
	}
	n := g.CreateQueryNode(&query.CreateManyRecords{
		Name:           resultName(op),
		Model:          m,
		Args:           args,
		SkipDuplicates: skip,
	})
	return g.AddResultNode(n)
}
