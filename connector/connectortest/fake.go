// Package connectortest provides a scriptable connector for tests.
package connectortest

import (
	"context"
	"fmt"
	"sync"

	"github.com/syssam/qengine/connector"
	"github.com/syssam/qengine/query"
	"github.com/syssam/qengine/schema"
)

// Fake is a connector recording every operation it receives. Operations
// without a hook return empty results: no record, zero counts.
type Fake struct {
	Caps connector.Capabilities

	GetSingleRecordFunc   func(ctx context.Context, m *schema.Model, args query.QueryArguments, sel query.FieldSelection) (*query.SingleRecord, error)
	GetManyRecordsFunc    func(ctx context.Context, m *schema.Model, args query.QueryArguments, sel query.FieldSelection) (*query.ManyRecords, error)
	GetRelatedRecordsFunc func(ctx context.Context, rf *schema.RelationField, parents []query.SelectionResult, args query.QueryArguments, sel query.FieldSelection) (*query.ManyRecords, []query.SelectionResult, error)
	AggregateFunc         func(ctx context.Context, m *schema.Model, args query.QueryArguments, sels []query.AggregationSelection) ([]query.AggregationValue, error)
	CreateRecordFunc      func(ctx context.Context, m *schema.Model, args *query.WriteArgs, sel query.FieldSelection) (*query.SingleRecord, error)
	UpdateRecordFunc      func(ctx context.Context, m *schema.Model, rf query.RecordFilter, args *query.WriteArgs, sel query.FieldSelection) (*query.SingleRecord, error)
	UpdateRecordsFunc     func(ctx context.Context, m *schema.Model, rf query.RecordFilter, args *query.WriteArgs) (int, error)
	DeleteRecordFunc      func(ctx context.Context, m *schema.Model, rf query.RecordFilter, sel query.FieldSelection) (*query.SingleRecord, error)
	DeleteRecordsFunc     func(ctx context.Context, m *schema.Model, rf query.RecordFilter) (int, error)
	ConnectRecordsFunc    func(ctx context.Context, rf *schema.RelationField, parent query.SelectionResult, children []query.SelectionResult) error
	DisconnectRecordsFunc func(ctx context.Context, rf *schema.RelationField, parent query.SelectionResult, children []query.SelectionResult) error
	NativeUpsertFunc      func(ctx context.Context, u *query.NativeUpsert) (*query.SingleRecord, error)

	mu    sync.Mutex
	calls []string
}

var _ connector.Connector = (*Fake)(nil)

// Calls returns the recorded operations, formatted as "Op(Target)".
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Reset clears the recorded operations.
func (f *Fake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func (f *Fake) record(op string, target fmt.Stringer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if target == nil {
		f.calls = append(f.calls, op)
		return
	}
	f.calls = append(f.calls, op+"("+target.String()+")")
}

// GetSingleRecord implements connector.ReadOperations.
func (f *Fake) GetSingleRecord(ctx context.Context, m *schema.Model, args query.QueryArguments, sel query.FieldSelection) (*query.SingleRecord, error) {
	f.record("GetSingleRecord", m)
	if f.GetSingleRecordFunc != nil {
		return f.GetSingleRecordFunc(ctx, m, args, sel)
	}
	return nil, nil
}

// GetManyRecords implements connector.ReadOperations.
func (f *Fake) GetManyRecords(ctx context.Context, m *schema.Model, args query.QueryArguments, sel query.FieldSelection) (*query.ManyRecords, error) {
	f.record("GetManyRecords", m)
	if f.GetManyRecordsFunc != nil {
		return f.GetManyRecordsFunc(ctx, m, args, sel)
	}
	return &query.ManyRecords{Fields: sel}, nil
}

// GetRelatedRecords implements connector.ReadOperations.
func (f *Fake) GetRelatedRecords(ctx context.Context, rf *schema.RelationField, parents []query.SelectionResult, args query.QueryArguments, sel query.FieldSelection) (*query.ManyRecords, []query.SelectionResult, error) {
	f.record("GetRelatedRecords", rf)
	if f.GetRelatedRecordsFunc != nil {
		return f.GetRelatedRecordsFunc(ctx, rf, parents, args, sel)
	}
	return &query.ManyRecords{Fields: sel}, nil, nil
}

// Aggregate implements connector.ReadOperations.
func (f *Fake) Aggregate(ctx context.Context, m *schema.Model, args query.QueryArguments, sels []query.AggregationSelection) ([]query.AggregationValue, error) {
	f.record("Aggregate", m)
	if f.AggregateFunc != nil {
		return f.AggregateFunc(ctx, m, args, sels)
	}
	return nil, nil
}

// QueryRaw implements connector.ReadOperations.
func (f *Fake) QueryRaw(context.Context, string, []any) (*query.RawResult, error) {
	f.record("QueryRaw", nil)
	return &query.RawResult{}, nil
}

// CreateRecord implements connector.WriteOperations.
func (f *Fake) CreateRecord(ctx context.Context, m *schema.Model, args *query.WriteArgs, sel query.FieldSelection) (*query.SingleRecord, error) {
	f.record("CreateRecord", m)
	if f.CreateRecordFunc != nil {
		return f.CreateRecordFunc(ctx, m, args, sel)
	}
	rec := &query.SingleRecord{Fields: sel, Values: make([]any, len(sel))}
	for i, fd := range sel {
		if op, ok := args.Get(fd); ok {
			rec.Values[i] = op.Value
		}
	}
	return rec, nil
}

// CreateRecords implements connector.WriteOperations.
func (f *Fake) CreateRecords(_ context.Context, m *schema.Model, args []*query.WriteArgs, _ bool) (int, error) {
	f.record("CreateRecords", m)
	return len(args), nil
}

// UpdateRecord implements connector.WriteOperations.
func (f *Fake) UpdateRecord(ctx context.Context, m *schema.Model, rf query.RecordFilter, args *query.WriteArgs, sel query.FieldSelection) (*query.SingleRecord, error) {
	f.record("UpdateRecord", m)
	if f.UpdateRecordFunc != nil {
		return f.UpdateRecordFunc(ctx, m, rf, args, sel)
	}
	return nil, nil
}

// UpdateRecords implements connector.WriteOperations.
func (f *Fake) UpdateRecords(ctx context.Context, m *schema.Model, rf query.RecordFilter, args *query.WriteArgs) (int, error) {
	f.record("UpdateRecords", m)
	if f.UpdateRecordsFunc != nil {
		return f.UpdateRecordsFunc(ctx, m, rf, args)
	}
	return len(rf.Selectors), nil
}

// DeleteRecord implements connector.WriteOperations.
func (f *Fake) DeleteRecord(ctx context.Context, m *schema.Model, rf query.RecordFilter, sel query.FieldSelection) (*query.SingleRecord, error) {
	f.record("DeleteRecord", m)
	if f.DeleteRecordFunc != nil {
		return f.DeleteRecordFunc(ctx, m, rf, sel)
	}
	return nil, nil
}

// DeleteRecords implements connector.WriteOperations.
func (f *Fake) DeleteRecords(ctx context.Context, m *schema.Model, rf query.RecordFilter) (int, error) {
	f.record("DeleteRecords", m)
	if f.DeleteRecordsFunc != nil {
		return f.DeleteRecordsFunc(ctx, m, rf)
	}
	return len(rf.Selectors), nil
}

// ConnectRecords implements connector.WriteOperations.
func (f *Fake) ConnectRecords(ctx context.Context, rf *schema.RelationField, parent query.SelectionResult, children []query.SelectionResult) error {
	f.record("ConnectRecords", rf)
	if f.ConnectRecordsFunc != nil {
		return f.ConnectRecordsFunc(ctx, rf, parent, children)
	}
	return nil
}

// DisconnectRecords implements connector.WriteOperations.
func (f *Fake) DisconnectRecords(ctx context.Context, rf *schema.RelationField, parent query.SelectionResult, children []query.SelectionResult) error {
	f.record("DisconnectRecords", rf)
	if f.DisconnectRecordsFunc != nil {
		return f.DisconnectRecordsFunc(ctx, rf, parent, children)
	}
	return nil
}

// NativeUpsert implements connector.WriteOperations.
func (f *Fake) NativeUpsert(ctx context.Context, u *query.NativeUpsert) (*query.SingleRecord, error) {
	f.record("NativeUpsert", u.Model)
	if f.NativeUpsertFunc != nil {
		return f.NativeUpsertFunc(ctx, u)
	}
	return &query.SingleRecord{Fields: u.Selection, Values: make([]any, len(u.Selection))}, nil
}

// ExecuteRaw implements connector.WriteOperations.
func (f *Fake) ExecuteRaw(context.Context, string, []any) (int, error) {
	f.record("ExecuteRaw", nil)
	return 0, nil
}

// Begin implements connector.Connector.
func (f *Fake) Begin(context.Context) (connector.Transaction, error) {
	f.record("Begin", nil)
	return &Tx{Fake: f}, nil
}

// Capabilities implements connector.Connector.
func (f *Fake) Capabilities() connector.Capabilities { return f.Caps }

// Name implements connector.Connector.
func (*Fake) Name() string { return "fake" }

// Close implements connector.Connector.
func (*Fake) Close() error { return nil }

// Tx is a transaction of a Fake. Operations are recorded on the Fake.
type Tx struct {
	*Fake
}

// Commit implements connector.Transaction.
func (tx *Tx) Commit() error {
	tx.record("Commit", nil)
	return nil
}

// Rollback implements connector.Transaction.
func (tx *Tx) Rollback() error {
	tx.record("Rollback", nil)
	return nil
}
