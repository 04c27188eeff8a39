package builder

import (
	"github.com/syssam/qengine"
	"github.com/syssam/qengine/graph"
	"github.com/syssam/qengine/query"
	"github.com/syssam/qengine/schema"
)

// insertEmulatedOnDelete adds the on-delete actions of the relations
// referencing m, for the records read by ids and deleted by del. It does
// nothing when the database enforces relations.
//
// Restrict and NoAction fail when a child exists, Cascade deletes the
// children (recursively), SetNull and SetDefault rewrite their foreign
// keys. Every action runs before del.
func insertEmulatedOnDelete(g *graph.QueryGraph, s *QuerySchema, m *schema.Model, ids, del graph.NodeRef) error {
	if !s.RelationMode().IsEmulated() {
		return nil
	}
	return onDelete(g, s, m, ids, del, nil)
}

func onDelete(g *graph.QueryGraph, s *QuerySchema, m *schema.Model, ids, del graph.NodeRef, path []*schema.Relation) error {
	for _, rf := range referencing(m) {
		if onPath(path, rf.Relation) {
			continue
		}
		var (
			fk    = rf.Opposite()
			child = rf.Related
		)
		children, err := relatedNode(g, s, ids, rf, query.Empty)
		if err != nil {
			return err
		}
		var action graph.NodeRef
		switch rf.Relation.OnDelete {
		case schema.Cascade:
			action = g.CreateQueryNode(&query.DeleteManyRecords{
				Name:   child.Name,
				Model:  child,
				Filter: query.NewRecordFilter(query.Empty),
			})
			if err := g.CreateEdge(children, action, selectorsSink(child, nil)); err != nil {
				return err
			}
			next := append(append([]*schema.Relation(nil), path...), rf.Relation)
			if err := onDelete(g, s, child, children, action, next); err != nil {
				return err
			}
		case schema.SetNull, schema.SetDefault:
			args := nullArgs(fk.Fields)
			if rf.Relation.OnDelete == schema.SetDefault {
				if args, err = defaultArgs(fk.Fields); err != nil {
					return err
				}
			}
			action = g.CreateQueryNode(&query.UpdateManyRecords{
				Name:   child.Name,
				Model:  child,
				Filter: query.NewRecordFilter(query.Empty),
				Args:   args,
			})
			if err := g.CreateEdge(children, action, selectorsSink(child, nil)); err != nil {
				return err
			}
		default:
			action = g.CreateNode(graph.Empty{})
			err := g.CreateEdge(children, action, graph.ProjectedDataDependency{
				Selection:   query.PrimaryIdentifier(child),
				Transform:   graph.Passthrough,
				Expectation: graph.EmptyRows(violation(rf.Relation)),
			})
			if err != nil {
				return err
			}
		}
		if err := g.CreateEdge(action, del, graph.ExecutionOrder{}); err != nil {
			return err
		}
	}
	return nil
}

// insertEmulatedOnUpdate adds the on-update actions of the relations whose
// referenced fields of m are written by args, for the records read by ids
// and updated by upd. It does nothing when the database enforces relations.
func insertEmulatedOnUpdate(g *graph.QueryGraph, s *QuerySchema, m *schema.Model, ids, upd graph.NodeRef, args *query.WriteArgs) error {
	if !s.RelationMode().IsEmulated() {
		return nil
	}
	for _, rf := range referencing(m) {
		fk := rf.Opposite()
		if !args.TouchesAny(fk.References) {
			continue
		}
		child := rf.Related
		children, err := relatedNode(g, s, ids, rf, query.Empty)
		if err != nil {
			return err
		}
		switch rf.Relation.OnUpdate {
		case schema.Cascade:
			values, ok := args.Values(fk.References)
			if !ok {
				return qengine.NewBuilderError(qengine.InputError,
					"cascading the update of %s to %s requires setting all of %v", m.Name, child.Name, query.Select(fk.References...).Names())
			}
			keys, err := values.Rebind(fk.Fields)
			if err != nil {
				return inputErr(err, "invalid cascaded key of %s", fk)
			}
			cargs := query.NewWriteArgs()
			cargs.SetSelection(keys)
			cascade := g.CreateQueryNode(&query.UpdateManyRecords{
				Name:   child.Name,
				Model:  child,
				Filter: query.NewRecordFilter(query.Empty),
				Args:   cargs,
			})
			if err := createEdges(g,
				edge{children, cascade, selectorsSink(child, nil)},
				edge{upd, cascade, graph.ExecutionOrder{}},
			); err != nil {
				return err
			}
		case schema.SetNull, schema.SetDefault:
			cargs := nullArgs(fk.Fields)
			if rf.Relation.OnUpdate == schema.SetDefault {
				if cargs, err = defaultArgs(fk.Fields); err != nil {
					return err
				}
			}
			release := g.CreateQueryNode(&query.UpdateManyRecords{
				Name:   child.Name,
				Model:  child,
				Filter: query.NewRecordFilter(query.Empty),
				Args:   cargs,
			})
			if err := createEdges(g,
				edge{children, release, selectorsSink(child, nil)},
				edge{release, upd, graph.ExecutionOrder{}},
			); err != nil {
				return err
			}
		default:
			check := g.CreateNode(graph.Empty{})
			if err := createEdges(g,
				edge{children, check, graph.ProjectedDataDependency{
					Selection:   query.PrimaryIdentifier(child),
					Transform:   graph.Passthrough,
					Expectation: graph.EmptyRows(violation(rf.Relation)),
				}},
				edge{check, upd, graph.ExecutionOrder{}},
			); err != nil {
				return err
			}
		}
	}
	return nil
}

// referencing returns the relation fields of m whose related model holds a
// foreign key to m. Join tables of m:n relations are not included.
func referencing(m *schema.Model) []*schema.RelationField {
	var out []*schema.RelationField
	for _, rf := range m.Relations() {
		if !rf.Relation.IsManyToMany() && rf.Opposite().IsInlined() {
			out = append(out, rf)
		}
	}
	return out
}

func onPath(path []*schema.Relation, r *schema.Relation) bool {
	for _, p := range path {
		if p == r {
			return true
		}
	}
	return false
}
