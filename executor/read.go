package executor

import (
	"context"
	"fmt"

	"github.com/syssam/qengine/query"
)

func (e *Executor) read(ctx context.Context, q query.ReadQuery) (query.Result, error) {
	switch q := q.(type) {
	case *query.ReadOneRecord:
		rec, err := e.q.GetSingleRecord(ctx, q.Model, q.Args, q.Selection)
		if err != nil {
			return nil, err
		}
		rs := &query.RecordSelection{
			Name:    q.Name,
			Model:   q.Model,
			Order:   q.Order,
			Records: query.ManyRecords{Fields: q.Selection},
			Unique:  true,
		}
		if rec != nil {
			rs.Records.Fields = rec.Fields
			rs.Records.Push(rec)
		}
		return rs, e.readNested(ctx, rs, q.Nested)
	case *query.ReadManyRecords:
		recs, err := e.q.GetManyRecords(ctx, q.Model, q.Args, q.Selection)
		if err != nil {
			return nil, err
		}
		if recs, err = distinct(recs, q.Args.Distinct); err != nil {
			return nil, err
		}
		rs := &query.RecordSelection{Name: q.Name, Model: q.Model, Order: q.Order, Records: *recs}
		return rs, e.readNested(ctx, rs, q.Nested)
	case *query.RelatedRecords:
		return e.related(ctx, q)
	case *query.AggregateRecords:
		values, err := e.q.Aggregate(ctx, q.Model, q.Args, q.Selections)
		if err != nil {
			return nil, err
		}
		return &query.AggregationResult{Name: q.Name, Values: values}, nil
	}
	return nil, fmt.Errorf("executor: unknown read %T", q)
}

// related reads the records related to the parents of q. A read without
// parents resolves to no record without calling the connector.
func (e *Executor) related(ctx context.Context, q *query.RelatedRecords) (*query.RecordSelection, error) {
	rs := &query.RecordSelection{
		Name:    q.Name,
		Model:   q.ParentField.Related,
		Order:   q.Order,
		Records: query.ManyRecords{Fields: q.Selection},
		Unique:  !q.ParentField.List,
	}
	var parents []query.SelectionResult
	for _, p := range q.ParentIDs {
		if !p.HasNull() {
			parents = append(parents, p)
		}
	}
	if len(parents) == 0 {
		return rs, nil
	}
	recs, keys, err := e.q.GetRelatedRecords(ctx, q.ParentField, parents, q.Args, q.Selection)
	if err != nil {
		return nil, err
	}
	rs.Records, rs.ParentKeys = *recs, keys
	return rs, e.readNested(ctx, rs, q.Nested)
}

// readNested resolves the nested reads of a selection and attaches them to it.
func (e *Executor) readNested(ctx context.Context, rs *query.RecordSelection, nested []*query.RelatedRecords) error {
	for _, nr := range nested {
		ids, err := rs.Records.Project(nr.ParentField.LinkingFields())
		if err != nil {
			return fmt.Errorf("executor: nested read %s: %w", nr.Name, err)
		}
		child := *nr
		child.ParentIDs = query.DistinctSelections(ids)
		crs, err := e.related(ctx, &child)
		if err != nil {
			return err
		}
		rs.Nested = append(rs.Nested, crs)
	}
	return nil
}

// distinct keeps the first record of every distinct value of fields.
func distinct(recs *query.ManyRecords, fields query.FieldSelection) (*query.ManyRecords, error) {
	if len(fields) == 0 {
		return recs, nil
	}
	keys, err := recs.Project(fields)
	if err != nil {
		return nil, err
	}
	out := &query.ManyRecords{Fields: recs.Fields}
	seen := make(map[string]struct{}, len(keys))
	for i, k := range keys {
		if _, ok := seen[k.Key()]; ok {
			continue
		}
		seen[k.Key()] = struct{}{}
		out.Rows = append(out.Rows, recs.Rows[i])
	}
	return out, nil
}
