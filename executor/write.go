package executor

import (
	"context"
	"fmt"

	"github.com/syssam/qengine"
	"github.com/syssam/qengine/query"
	"github.com/syssam/qengine/schema"
)

func (e *Executor) write(ctx context.Context, q query.WriteQuery) (query.Result, error) {
	switch q := q.(type) {
	case *query.CreateRecord:
		rec, err := e.q.CreateRecord(ctx, q.Model, q.Args, q.Selection)
		if err != nil {
			return nil, err
		}
		return single(q.Name, q.Model, q.Order, q.Selection, rec), nil
	case *query.CreateManyRecords:
		n, err := e.q.CreateRecords(ctx, q.Model, q.Args, q.SkipDuplicates)
		if err != nil {
			return nil, err
		}
		return &query.CountResult{Count: n}, nil
	case *query.UpdateRecordWithSelection:
		rec, err := e.q.UpdateRecord(ctx, q.Model, q.Filter, q.Args, q.Selection)
		if err != nil {
			return nil, err
		}
		return single(q.Name, q.Model, q.Order, q.Selection, rec), nil
	case *query.UpdateRecordWithoutSelection:
		rec, err := e.q.UpdateRecord(ctx, q.Model, q.Filter, q.Args, nil)
		if err != nil {
			return nil, err
		}
		return identifier(rec, query.PrimaryIdentifier(q.Model))
	case *query.UpdateManyRecords:
		n, err := e.q.UpdateRecords(ctx, q.Model, q.Filter, q.Args)
		if err != nil {
			return nil, err
		}
		return &query.CountResult{Count: n}, nil
	case *query.DeleteRecord:
		rec, err := e.q.DeleteRecord(ctx, q.Model, q.Filter, q.Selection)
		if err != nil {
			return nil, err
		}
		if len(q.Selection) == 0 {
			return identifier(rec, query.PrimaryIdentifier(q.Model))
		}
		return single(q.Name, q.Model, q.Order, q.Selection, rec), nil
	case *query.DeleteManyRecords:
		n, err := e.q.DeleteRecords(ctx, q.Model, q.Filter)
		if err != nil {
			return nil, err
		}
		return &query.CountResult{Count: n}, nil
	case *query.ConnectRecords:
		if q.ParentID == nil {
			return nil, qengine.NewBuilderError(qengine.AssertionError, "connect on %s has no parent id", q.ParentField)
		}
		if len(q.ChildIDs) > 0 {
			if err := e.q.ConnectRecords(ctx, q.ParentField, q.ParentID, q.ChildIDs); err != nil {
				return nil, err
			}
		}
		return &query.CountResult{Count: len(q.ChildIDs)}, nil
	case *query.DisconnectRecords:
		if q.ParentID == nil {
			return nil, qengine.NewBuilderError(qengine.AssertionError, "disconnect on %s has no parent id", q.ParentField)
		}
		if len(q.ChildIDs) > 0 {
			if err := e.q.DisconnectRecords(ctx, q.ParentField, q.ParentID, q.ChildIDs); err != nil {
				return nil, err
			}
		}
		return &query.CountResult{Count: len(q.ChildIDs)}, nil
	case *query.NativeUpsert:
		rec, err := e.q.NativeUpsert(ctx, q)
		if err != nil {
			return nil, err
		}
		return single(q.Name, q.Model, q.Order, q.Selection, rec), nil
	case *query.ExecuteRaw:
		n, err := e.q.ExecuteRaw(ctx, q.SQL, q.Params)
		if err != nil {
			return nil, err
		}
		return &query.CountResult{Count: n}, nil
	case *query.QueryRaw:
		return e.q.QueryRaw(ctx, q.SQL, q.Params)
	}
	return nil, fmt.Errorf("executor: unknown write %T", q)
}

func single(name string, m *schema.Model, order []string, sel query.FieldSelection, rec *query.SingleRecord) *query.RecordSelection {
	rs := &query.RecordSelection{
		Name:    name,
		Model:   m,
		Order:   order,
		Records: query.ManyRecords{Fields: sel},
		Unique:  true,
	}
	if rec != nil {
		rs.Records.Fields = rec.Fields
		rs.Records.Push(rec)
	}
	return rs
}

func identifier(rec *query.SingleRecord, pk query.FieldSelection) (*query.IDResult, error) {
	if rec == nil {
		return &query.IDResult{}, nil
	}
	id, err := rec.Project(pk)
	if err != nil {
		return nil, fmt.Errorf("executor: %w", err)
	}
	return &query.IDResult{ID: id}, nil
}
