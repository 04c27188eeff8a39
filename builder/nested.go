package builder

import (
	"github.com/syssam/qengine"
	"github.com/syssam/qengine/document"
	"github.com/syssam/qengine/filter"
	"github.com/syssam/qengine/graph"
	"github.com/syssam/qengine/query"
	"github.com/syssam/qengine/schema"
)

// nestedWrites adds the nested writes of the record written by parent.
// Nested creates only accept nested creates and connects.
//
// Where the foreign key lives decides the wiring:
//
//	parent holds it     the child is resolved first and its key is written into the parent
//	child holds it      the parent key is written into the child after the parent
//	join table (m:n)    both are resolved and linked by a connect node
func nestedWrites(g *graph.QueryGraph, s *QuerySchema, parent graph.NodeRef, nested []nestedWrite, creating bool) error {
	for _, nw := range nested {
		if creating && nw.op != document.NestedCreate && nw.op != document.NestedConnect {
			return qengine.NewBuilderError(qengine.InputError, "%s on %s is not allowed in a create", nw.op, nw.field)
		}
		var err error
		switch nw.op {
		case document.NestedCreate:
			err = nestedCreate(g, s, parent, nw.field, nw.value, creating)
		case document.NestedConnect:
			err = nestedConnect(g, s, parent, nw.field, nw.value, creating)
		case document.NestedDisconnect:
			err = nestedDisconnect(g, s, parent, nw.field, nw.value)
		case document.NestedUpdate:
			err = nestedUpdate(g, s, parent, nw.field, nw.value)
		case document.NestedDelete:
			err = nestedDelete(g, s, parent, nw.field, nw.value)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func nestedCreate(g *graph.QueryGraph, s *QuerySchema, parent graph.NodeRef, rf *schema.RelationField, v any, creating bool) error {
	objs, err := objects(rf, document.NestedCreate, v)
	if err != nil {
		return err
	}
	ins := make([]writeInput, len(objs))
	for i, obj := range objs {
		if ins[i], err = extractWriteArgs(rf.Related, obj); err != nil {
			return err
		}
	}
	switch {
	case rf.IsInlined():
		child, err := createNode(g, s, rf.Related, ins[0], nil)
		if err != nil {
			return err
		}
		src, err := withFields(g, s, child, rf.Related, rf.References)
		if err != nil {
			return err
		}
		return g.CreateEdge(src, parent, fkSink(rf.References, rf.Fields, nil))
	case rf.Opposite().IsInlined():
		fk := rf.Opposite()
		prev, hasPrev, err := releaseToOne(g, s, parent, rf, creating)
		if err != nil {
			return err
		}
		src, err := withFields(g, s, parent, rf.Model, rf.LinkingFields())
		if err != nil {
			return err
		}
		for _, in := range ins {
			child, err := createNode(g, s, rf.Related, in, fk)
			if err != nil {
				return err
			}
			if err := g.CreateEdge(src, child, fkSink(rf.LinkingFields(), fk.Fields, nil)); err != nil {
				return err
			}
			if hasPrev {
				if err := g.CreateEdge(prev, child, graph.ExecutionOrder{}); err != nil {
					return err
				}
			}
		}
		return nil
	default:
		src, err := withFields(g, s, parent, rf.Model, query.PrimaryIdentifier(rf.Model))
		if err != nil {
			return err
		}
		for _, in := range ins {
			child, err := createNode(g, s, rf.Related, in, nil)
			if err != nil {
				return err
			}
			if _, err := ConnectRecordsNode(g, src, child, rf, 1); err != nil {
				return err
			}
		}
		return nil
	}
}

func nestedConnect(g *graph.QueryGraph, s *QuerySchema, parent graph.NodeRef, rf *schema.RelationField, v any, creating bool) error {
	objs, err := objects(rf, document.NestedConnect, v)
	if err != nil {
		return err
	}
	f, err := uniqueFilters(rf.Related, objs)
	if err != nil {
		return err
	}
	k := len(objs)
	switch {
	case rf.IsInlined():
		read := g.CreateQueryNode(&query.ReadManyRecords{
			Name:      rf.Related.Name,
			Model:     rf.Related,
			Args:      query.NewQueryArguments(f),
			Selection: query.PrimaryIdentifier(rf.Related).Merge(rf.References),
		})
		if rf.Relation.Kind == schema.OneToOne && !rf.IsRequired() {
			// The child may only have one parent: unlink the current one.
			others, err := relatedNode(g, s, read, rf.Opposite(), query.Empty)
			if err != nil {
				return err
			}
			release := g.CreateQueryNode(&query.UpdateManyRecords{
				Name:   rf.Model.Name,
				Model:  rf.Model,
				Filter: query.NewRecordFilter(query.Empty),
				Args:   nullArgs(rf.Fields),
			})
			if err := createEdges(g,
				edge{others, release, selectorsSink(rf.Model, nil)},
				edge{release, parent, graph.ExecutionOrder{}},
			); err != nil {
				return err
			}
		}
		missing := qengine.MissingRecordFor(rf.Related.Name, qengine.OpNestedConnect)
		return g.CreateEdge(read, parent, fkSink(rf.References, rf.Fields, graph.NonEmptyRows(missing)))
	case rf.Opposite().IsInlined():
		fk := rf.Opposite()
		prev, hasPrev, err := releaseToOne(g, s, parent, rf, creating)
		if err != nil {
			return err
		}
		read := readIDs(g, rf.Related, f)
		upd := g.CreateQueryNode(&query.UpdateManyRecords{
			Name:   rf.Related.Name,
			Model:  rf.Related,
			Filter: query.NewRecordFilter(query.Empty),
			Args:   query.NewWriteArgs(),
		})
		src, err := withFields(g, s, parent, rf.Model, rf.LinkingFields())
		if err != nil {
			return err
		}
		if err := createEdges(g,
			edge{read, upd, selectorsSink(rf.Related, graph.ExactRowCount(k, qengine.IncompleteConnectInput(k)))},
			edge{src, upd, fkSink(rf.LinkingFields(), fk.Fields, nil)},
		); err != nil {
			return err
		}
		if hasPrev {
			return g.CreateEdge(prev, upd, graph.ExecutionOrder{})
		}
		return nil
	default:
		src, err := withFields(g, s, parent, rf.Model, query.PrimaryIdentifier(rf.Model))
		if err != nil {
			return err
		}
		read := readIDs(g, rf.Related, f)
		_, err = ConnectRecordsNode(g, src, read, rf, k)
		return err
	}
}

// releaseToOne unlinks the child of an updated parent before another child
// is linked through a to-one relation held by the child.
func releaseToOne(g *graph.QueryGraph, s *QuerySchema, parent graph.NodeRef, rf *schema.RelationField, creating bool) (graph.NodeRef, bool, error) {
	if creating || rf.List {
		return 0, false, nil
	}
	n, err := disconnectExisting(g, s, parent, rf)
	return n, err == nil, err
}

func nestedDisconnect(g *graph.QueryGraph, s *QuerySchema, parent graph.NodeRef, rf *schema.RelationField, v any) error {
	if !rf.List {
		b, ok := v.(bool)
		if !ok {
			return qengine.NewBuilderError(qengine.InputError, "disconnect on to-one relation %s expects true, got %T", rf, v)
		}
		if !b {
			return nil
		}
	}
	switch {
	case rf.IsInlined():
		if rf.IsRequired() {
			return relationViolation(rf, "disconnect")
		}
		q, ok := g.Query(parent)
		if !ok {
			return qengine.NewBuilderError(qengine.InvariantViolation, "disconnect parent %d is not a query", parent)
		}
		w, ok := q.(query.ArgsWrite)
		if !ok {
			return qengine.NewBuilderError(qengine.InvariantViolation, "disconnect parent %s has no write arguments", q)
		}
		for _, f := range rf.Fields {
			w.WriteArgs().Set(f, nil)
		}
		return nil
	case rf.Opposite().IsInlined():
		fk := rf.Opposite()
		if fk.IsRequired() {
			return relationViolation(rf, "disconnect")
		}
		f, err := listFilter(rf, document.NestedDisconnect, v)
		if err != nil {
			return err
		}
		children, err := relatedNode(g, s, parent, rf, f)
		if err != nil {
			return err
		}
		upd := g.CreateQueryNode(&query.UpdateManyRecords{
			Name:   rf.Related.Name,
			Model:  rf.Related,
			Filter: query.NewRecordFilter(query.Empty),
			Args:   nullArgs(fk.Fields),
		})
		return g.CreateEdge(children, upd, selectorsSink(rf.Related, nil))
	default:
		f, err := listFilter(rf, document.NestedDisconnect, v)
		if err != nil {
			return err
		}
		src, err := withFields(g, s, parent, rf.Model, query.PrimaryIdentifier(rf.Model))
		if err != nil {
			return err
		}
		read := readIDs(g, rf.Related, f)
		_, err = DisconnectRecordsNode(g, src, read, rf)
		return err
	}
}

// listFilter returns the filter of the unique selectors of a to-many
// nested operation, or Empty for to-one relations.
func listFilter(rf *schema.RelationField, op string, v any) (query.Filter, error) {
	if !rf.List {
		return query.Empty, nil
	}
	objs, err := objects(rf, op, v)
	if err != nil {
		return nil, err
	}
	return uniqueFilters(rf.Related, objs)
}

func relationViolation(rf *schema.RelationField, op string) error {
	return &qengine.BuilderError{
		Kind: qengine.InputError,
		Msg:  op + " on required relation " + rf.String(),
		Err:  violation(rf.Relation),
	}
}

// nestedUpdateItem is one nested update: the related records matching
// where get data.
type nestedUpdateItem struct {
	where query.Filter
	data  map[string]any
}

func nestedUpdate(g *graph.QueryGraph, s *QuerySchema, parent graph.NodeRef, rf *schema.RelationField, v any) error {
	items, err := nestedUpdateItems(rf, v)
	if err != nil {
		return err
	}
	child := rf.Related
	for _, item := range items {
		in, err := extractWriteArgs(child, item.data)
		if err != nil {
			return err
		}
		related, err := relatedNode(g, s, parent, rf, item.where)
		if err != nil {
			return err
		}
		upd := updateRecordNode(g, s, child, query.NewRecordFilter(query.Empty), in.args, child.Name, nil)
		missing := qengine.MissingRecordFor(child.Name, qengine.OpNestedUpdate)
		if err := g.CreateEdge(related, upd, selectorsSink(child, graph.NonEmptyRows(missing))); err != nil {
			return err
		}
		if err := insertEmulatedOnUpdate(g, s, child, related, upd, in.args); err != nil {
			return err
		}
		if err := nestedWrites(g, s, upd, in.nested, false); err != nil {
			return err
		}
	}
	return nil
}

// nestedUpdateItems parses the value of a nested update. To-one relations
// take the data directly or as {where, data}; to-many relations take one or
// a list of {where, data} with a unique where.
func nestedUpdateItems(rf *schema.RelationField, v any) ([]nestedUpdateItem, error) {
	var raw []map[string]any
	switch v := v.(type) {
	case map[string]any:
		if !rf.List && !isWhereData(rf.Related, v) {
			return []nestedUpdateItem{{where: query.Empty, data: v}}, nil
		}
		raw = []map[string]any{v}
	default:
		objs, err := objects(rf, document.NestedUpdate, v)
		if err != nil {
			return nil, err
		}
		raw = objs
	}
	items := make([]nestedUpdateItem, 0, len(raw))
	for _, obj := range raw {
		if !isWhereData(rf.Related, obj) {
			return nil, qengine.NewBuilderError(qengine.InputError, "update on %s expects {where, data}, got %s", rf, describe(obj))
		}
		where, err := document.MapArg(obj, document.ArgWhere)
		if err != nil {
			return nil, inputErr(err, "invalid where of update on %s", rf)
		}
		data, err := document.MapArg(obj, document.ArgData)
		if err != nil {
			return nil, inputErr(err, "invalid data of update on %s", rf)
		}
		var f query.Filter
		if rf.List {
			f, err = filter.ExtractUnique(rf.Related, where)
		} else {
			f, err = filter.Extract(rf.Related, where)
		}
		if err != nil {
			return nil, err
		}
		items = append(items, nestedUpdateItem{where: f, data: data})
	}
	return items, nil
}

// isWhereData reports if obj has the {where, data} shape rather than being
// the data of m itself.
func isWhereData(m *schema.Model, obj map[string]any) bool {
	if _, ok := obj[document.ArgData]; !ok {
		return false
	}
	if _, ok := m.Field(document.ArgData); ok {
		return false
	}
	for key := range obj {
		if key != document.ArgWhere && key != document.ArgData {
			return false
		}
	}
	return true
}

func nestedDelete(g *graph.QueryGraph, s *QuerySchema, parent graph.NodeRef, rf *schema.RelationField, v any) error {
	k := 1
	if rf.List {
		objs, err := objects(rf, document.NestedDelete, v)
		if err != nil {
			return err
		}
		k = len(objs)
	} else if b, ok := v.(bool); !ok {
		return qengine.NewBuilderError(qengine.InputError, "delete on to-one relation %s expects true, got %T", rf, v)
	} else if !b {
		return nil
	}
	f, err := listFilter(rf, document.NestedDelete, v)
	if err != nil {
		return err
	}
	child := rf.Related
	related, err := relatedNode(g, s, parent, rf, f)
	if err != nil {
		return err
	}
	del := g.CreateQueryNode(&query.DeleteManyRecords{
		Name:   child.Name,
		Model:  child,
		Filter: query.NewRecordFilter(query.Empty),
	})
	notConnected := qengine.RecordsNotConnected(rf.Relation.Name, rf.Model.Name, child.Name, k)
	if err := g.CreateEdge(related, del, selectorsSink(child, graph.ExactRowCount(k, notConnected))); err != nil {
		return err
	}
	return insertEmulatedOnDelete(g, s, child, related, del)
}
