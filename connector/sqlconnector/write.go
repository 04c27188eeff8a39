package sqlconnector

import (
	"context"
	"fmt"
	"slices"

	"github.com/syssam/qengine/connector"
	"github.com/syssam/qengine/dialect/sql"
	"github.com/syssam/qengine/dialect/sql/sqlgraph"
	"github.com/syssam/qengine/query"
	"github.com/syssam/qengine/schema"
)

// CreateRecord implements connector.WriteOperations.
func (q *queryable) CreateRecord(ctx context.Context, m *schema.Model, args *query.WriteArgs, sel query.FieldSelection) (*query.SingleRecord, error) {
	pk := query.PrimaryIdentifier(m)
	if len(sel) == 0 {
		sel = pk
	}
	cols, values, err := insertValues(args)
	if err != nil {
		return nil, err
	}
	ins := q.builder().Insert(m.Table).Columns(cols...)
	if len(cols) > 0 {
		ins.Values(values...)
	}
	if q.caps.Has(connector.InsertReturning) {
		rows, err := q.query(ctx, ins.Returning(columns(sel)...), typesOf(sel))
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, fmt.Errorf("sqlconnector: insert into %s returned no row", m.Table)
		}
		return firstRecord(sel, rows), nil
	}
	stmt, params := ins.Query()
	var res sql.Result
	if err := q.ex.Exec(ctx, stmt, params, &res); err != nil {
		return nil, sqlgraph.ConstraintError(err)
	}
	id, ok := args.Values(pk)
	if !ok {
		if len(pk) != 1 || !pk[0].IsAutoincrement() {
			return nil, fmt.Errorf("sqlconnector: insert into %s: primary key of %s is not known", m.Table, m)
		}
		last, err := res.LastInsertId()
		if err != nil {
			return nil, fmt.Errorf("sqlconnector: last insert id: %w", err)
		}
		id = query.NewSelectionResult(pk, []any{last})
	}
	return q.GetSingleRecord(ctx, m, query.NewQueryArguments(id.Filter()), sel)
}

// batchSize bounds the rows of one multi-row INSERT.
const batchSize = 500

// CreateRecords implements connector.WriteOperations. Consecutive records
// writing the same fields are inserted by one statement.
func (q *queryable) CreateRecords(ctx context.Context, m *schema.Model, args []*query.WriteArgs, skipDuplicates bool) (int, error) {
	var total int
	for start := 0; start < len(args); {
		cols, _, err := insertValues(args[start])
		if err != nil {
			return 0, err
		}
		ins := q.builder().Insert(m.Table).Columns(cols...)
		end := start
		for ; end < len(args); end++ {
			c, values, err := insertValues(args[end])
			if err != nil {
				return 0, err
			}
			if !slices.Equal(c, cols) || end-start == batchSize || (len(cols) == 0 && end > start) {
				break
			}
			if len(cols) > 0 {
				ins.Values(values...)
			}
		}
		if skipDuplicates {
			ins.OnConflictIgnore()
		}
		n, err := q.exec(ctx, ins)
		if err != nil {
			return 0, err
		}
		total += n
		start = end
	}
	return total, nil
}

// UpdateRecord implements connector.WriteOperations. rf designates at most
// one record. Connectors returning updated rows write and read it back in a
// single statement. Otherwise the record is first resolved to its primary
// identifier so that at most one record is written.
func (q *queryable) UpdateRecord(ctx context.Context, m *schema.Model, rf query.RecordFilter, args *query.WriteArgs, sel query.FieldSelection) (*query.SingleRecord, error) {
	pk := query.PrimaryIdentifier(m)
	if len(sel) == 0 {
		sel = pk
	}
	if q.caps.Has(connector.UpdateReturning) {
		if args.IsEmpty() {
			return q.GetSingleRecord(ctx, m, query.NewQueryArguments(rf.Effective()), sel)
		}
		upd, err := q.update(m, args, rf.Effective())
		if err != nil {
			return nil, err
		}
		rows, err := q.query(ctx, upd.Returning(columns(sel)...), typesOf(sel))
		if err != nil {
			return nil, err
		}
		return firstRecord(sel, rows), nil
	}
	rec, err := q.GetSingleRecord(ctx, m, query.NewQueryArguments(rf.Effective()), pk)
	if err != nil || rec == nil {
		return nil, err
	}
	id, err := rec.Project(pk)
	if err != nil {
		return nil, err
	}
	if args.IsEmpty() {
		return q.GetSingleRecord(ctx, m, query.NewQueryArguments(id.Filter()), sel)
	}
	upd, err := q.update(m, args, id.Filter())
	if err != nil {
		return nil, err
	}
	if _, err := q.exec(ctx, upd); err != nil {
		return nil, err
	}
	return q.GetSingleRecord(ctx, m, query.NewQueryArguments(args.Apply(id).Filter()), sel)
}

// UpdateRecords implements connector.WriteOperations. Updates without
// writes return the number of matching records.
func (q *queryable) UpdateRecords(ctx context.Context, m *schema.Model, rf query.RecordFilter, args *query.WriteArgs) (int, error) {
	if args.IsEmpty() {
		values, err := q.Aggregate(ctx, m, query.NewQueryArguments(rf.Effective()), []query.AggregationSelection{{Kind: query.AggCount}})
		if err != nil {
			return 0, err
		}
		n, _ := values[0].Value.(int64)
		return int(n), nil
	}
	upd, err := q.update(m, args, rf.Effective())
	if err != nil {
		return 0, err
	}
	return q.exec(ctx, upd)
}

// update returns the UPDATE statement of args on the records matching f.
func (q *queryable) update(m *schema.Model, args *query.WriteArgs, f query.Filter) (*sql.UpdateBuilder, error) {
	upd := q.builder().Update(m.Table)
	if err := setValues(upd, args); err != nil {
		return nil, err
	}
	if !query.IsEmpty(f) {
		p, err := predicate(f, "")
		if err != nil {
			return nil, err
		}
		upd.Where(p)
	}
	return upd, nil
}

// DeleteRecord implements connector.WriteOperations.
func (q *queryable) DeleteRecord(ctx context.Context, m *schema.Model, rf query.RecordFilter, sel query.FieldSelection) (*query.SingleRecord, error) {
	pk := query.PrimaryIdentifier(m)
	if len(sel) == 0 {
		sel = pk
	}
	rec, err := q.GetSingleRecord(ctx, m, query.NewQueryArguments(rf.Effective()), sel.Merge(pk))
	if err != nil || rec == nil {
		return nil, err
	}
	id, err := rec.Project(pk)
	if err != nil {
		return nil, err
	}
	if _, err := q.DeleteRecords(ctx, m, query.NewRecordFilter(id.Filter())); err != nil {
		return nil, err
	}
	values, err := rec.Project(sel)
	if err != nil {
		return nil, err
	}
	return &query.SingleRecord{Fields: sel, Values: values.Values()}, nil
}

// DeleteRecords implements connector.WriteOperations.
func (q *queryable) DeleteRecords(ctx context.Context, m *schema.Model, rf query.RecordFilter) (int, error) {
	del := q.builder().Delete(m.Table)
	if f := rf.Effective(); !query.IsEmpty(f) {
		p, err := predicate(f, "")
		if err != nil {
			return 0, err
		}
		del.Where(p)
	}
	return q.exec(ctx, del)
}

// ConnectRecords implements connector.WriteOperations. Existing links are
// kept.
func (q *queryable) ConnectRecords(ctx context.Context, rf *schema.RelationField, parent query.SelectionResult, children []query.SelectionResult) error {
	if !rf.Relation.IsManyToMany() {
		return fmt.Errorf("sqlconnector: connect records: %s is not a m:n relation", rf)
	}
	if len(children) == 0 {
		return nil
	}
	ins := q.builder().Insert(rf.Relation.Table).Columns(rf.JoinColumn(), rf.Opposite().JoinColumn())
	for _, c := range children {
		ins.Values(parent[0].Value, c[0].Value)
	}
	_, err := q.exec(ctx, ins.OnConflictIgnore())
	return err
}

// DisconnectRecords implements connector.WriteOperations.
func (q *queryable) DisconnectRecords(ctx context.Context, rf *schema.RelationField, parent query.SelectionResult, children []query.SelectionResult) error {
	if !rf.Relation.IsManyToMany() {
		return fmt.Errorf("sqlconnector: disconnect records: %s is not a m:n relation", rf)
	}
	if len(children) == 0 {
		return nil
	}
	values := make([]any, len(children))
	for i, c := range children {
		values[i] = c[0].Value
	}
	del := q.builder().Delete(rf.Relation.Table).
		Where(sql.EQ(rf.JoinColumn(), parent[0].Value)).
		Where(sql.In(rf.Opposite().JoinColumn(), values...))
	_, err := q.exec(ctx, del)
	return err
}

// NativeUpsert implements connector.WriteOperations.
func (q *queryable) NativeUpsert(ctx context.Context, u *query.NativeUpsert) (*query.SingleRecord, error) {
	if !q.caps.Has(connector.NativeUpsert) {
		return nil, fmt.Errorf("sqlconnector: native upsert is not supported by %s", q.dialect)
	}
	sel := u.Selection
	if len(sel) == 0 {
		sel = query.PrimaryIdentifier(u.Model)
	}
	cols, values, err := insertValues(u.Create)
	if err != nil {
		return nil, err
	}
	upd := q.builder().Update(u.Model.Table)
	if err := setValues(upd, u.Update); err != nil {
		return nil, err
	}
	conflict := columns(u.Conflict)
	if upd.Empty() {
		// DO NOTHING would not return the conflicting row.
		upd.SetExpr(conflict[0], sql.Column(u.Model.Table+"."+conflict[0]))
	}
	ins := q.builder().Insert(u.Model.Table).
		Columns(cols...).
		Values(values...).
		OnConflictUpdate(conflict, upd).
		Returning(columns(sel)...)
	rows, err := q.query(ctx, ins, typesOf(sel))
	if err != nil {
		return nil, err
	}
	return firstRecord(sel, rows), nil
}

// ExecuteRaw implements connector.WriteOperations.
func (q *queryable) ExecuteRaw(ctx context.Context, stmt string, params []any) (int, error) {
	if params == nil {
		params = []any{}
	}
	var res sql.Result
	if err := q.ex.Exec(ctx, stmt, params, &res); err != nil {
		return 0, fmt.Errorf("sqlconnector: raw exec: %w", sqlgraph.ConstraintError(err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlconnector: rows affected: %w", err)
	}
	return int(n), nil
}

// insertValues returns the columns and values of a create. Only set
// operations are valid on create.
func insertValues(args *query.WriteArgs) ([]string, []any, error) {
	fields := args.Fields()
	cols := make([]string, len(fields))
	values := make([]any, len(fields))
	for i, f := range fields {
		op, _ := args.Get(f)
		if op.Op != query.OpSet {
			return nil, nil, fmt.Errorf("sqlconnector: %s %s is not valid on create", op.Op, f)
		}
		cols[i], values[i] = f.DBName(), op.Value
	}
	return cols, values, nil
}

var arith = map[query.WriteOp]string{
	query.OpIncrement: "+",
	query.OpDecrement: "-",
	query.OpMultiply:  "*",
	query.OpDivide:    "/",
}

func setValues(upd *sql.UpdateBuilder, args *query.WriteArgs) error {
	if args == nil {
		return nil
	}
	for _, f := range args.Fields() {
		op, _ := args.Get(f)
		if op.Op == query.OpSet {
			upd.Set(f.DBName(), op.Value)
			continue
		}
		sym, ok := arith[op.Op]
		if !ok || !f.Type.Numeric() {
			return fmt.Errorf("sqlconnector: %s is not valid on %s", op.Op, f)
		}
		upd.Arith(f.DBName(), sym, op.Value)
	}
	return nil
}
