package sqlconnector

import (
	"context"
	"fmt"

	"github.com/syssam/qengine/dialect/sql"
	"github.com/syssam/qengine/query"
	"github.com/syssam/qengine/schema"
	"github.com/syssam/qengine/schema/field"
)

// GetSingleRecord implements connector.ReadOperations.
func (q *queryable) GetSingleRecord(ctx context.Context, m *schema.Model, args query.QueryArguments, sel query.FieldSelection) (*query.SingleRecord, error) {
	take := 1
	if n, backwards, ok := args.TakeAbs(); ok {
		if n == 0 {
			return nil, nil
		}
		if backwards {
			take = -1
		}
	}
	args.Take = &take
	recs, err := q.GetManyRecords(ctx, m, args, sel)
	if err != nil {
		return nil, err
	}
	return firstRecord(recs.Fields, recs.Rows), nil
}

// GetManyRecords implements connector.ReadOperations. Distinct arguments are
// applied in memory, before skip and take.
func (q *queryable) GetManyRecords(ctx context.Context, m *schema.Model, args query.QueryArguments, sel query.FieldSelection) (*query.ManyRecords, error) {
	fields := sel
	if len(args.Distinct) > 0 {
		fields = sel.Merge(args.Distinct)
	}
	recs := &query.ManyRecords{Fields: fields}
	n, backwards, hasTake := args.TakeAbs()
	if hasTake && n == 0 {
		return recs, nil
	}
	s, err := q.selector(m, "", args.Filter, columns(fields))
	if err != nil {
		return nil, err
	}
	orderBy(s, "", m, args.OrderBy, backwards)
	if len(args.Distinct) == 0 {
		paginate(s, args)
	}
	if recs.Rows, err = q.query(ctx, s, typesOf(fields)); err != nil {
		return nil, err
	}
	if len(args.Distinct) > 0 {
		if err := distinctPage(recs, args); err != nil {
			return nil, err
		}
	}
	if backwards {
		reverse(recs.Rows)
	}
	return recs, nil
}

// GetRelatedRecords implements connector.ReadOperations. Arguments with a
// take, a skip or a distinct run one statement per parent.
func (q *queryable) GetRelatedRecords(ctx context.Context, rf *schema.RelationField, parents []query.SelectionResult, args query.QueryArguments, sel query.FieldSelection) (*query.ManyRecords, []query.SelectionResult, error) {
	if args.Take == nil && args.Skip == 0 && len(args.Distinct) == 0 {
		return q.related(ctx, rf, parents, args, sel)
	}
	var (
		recs *query.ManyRecords
		keys []query.SelectionResult
	)
	for _, p := range parents {
		r, k, err := q.related(ctx, rf, []query.SelectionResult{p}, args, sel)
		if err != nil {
			return nil, nil, err
		}
		if recs == nil {
			recs = &query.ManyRecords{Fields: r.Fields}
		}
		recs.Rows = append(recs.Rows, r.Rows...)
		keys = append(keys, k...)
	}
	if recs == nil {
		recs = &query.ManyRecords{Fields: sel}
	}
	return recs, keys, nil
}

// related reads the records related to parents in one statement. Pagination
// arguments apply to the whole statement.
func (q *queryable) related(ctx context.Context, rf *schema.RelationField, parents []query.SelectionResult, args query.QueryArguments, sel query.FieldSelection) (*query.ManyRecords, []query.SelectionResult, error) {
	if rf.Relation.IsManyToMany() {
		return q.relatedThroughTable(ctx, rf, parents, args, sel)
	}
	// child are the fields of the related model matching the parent keys.
	child := rf.Opposite().Fields
	if rf.IsInlined() {
		child = rf.References
	}
	ids := make([]query.SelectionResult, len(parents))
	for i, p := range parents {
		id, err := p.Rebind(child)
		if err != nil {
			return nil, nil, err
		}
		ids[i] = id
	}
	cargs := args
	cargs.Filter = query.Conjoin(query.FromSelections(ids), args.Filter)
	recs, err := q.GetManyRecords(ctx, rf.Related, cargs, sel.Merge(child))
	if err != nil {
		return nil, nil, err
	}
	cvals, err := recs.Project(child)
	if err != nil {
		return nil, nil, err
	}
	keys := make([]query.SelectionResult, len(cvals))
	for i, v := range cvals {
		if keys[i], err = v.Rebind(rf.LinkingFields()); err != nil {
			return nil, nil, err
		}
	}
	return recs, keys, nil
}

const (
	relatedAlias = "t"
	joinAlias    = "j"
)

// relatedThroughTable reads the records linked to parents by the join table
// of a m:n relation. The parent key is read from the join table.
func (q *queryable) relatedThroughTable(ctx context.Context, rf *schema.RelationField, parents []query.SelectionResult, args query.QueryArguments, sel query.FieldSelection) (*query.ManyRecords, []query.SelectionResult, error) {
	parentPK, relatedPK := rf.Model.PrimaryKeyFields(), rf.Related.PrimaryKeyFields()
	if len(parentPK) != 1 || len(relatedPK) != 1 {
		return nil, nil, fmt.Errorf("sqlconnector: relation %s requires single field primary keys", rf)
	}
	if len(args.Distinct) > 0 {
		sel = sel.Merge(args.Distinct)
	}
	n, backwards, hasTake := args.TakeAbs()
	recs := &query.ManyRecords{Fields: sel}
	if hasTake && n == 0 {
		return recs, nil, nil
	}
	values := make([]any, len(parents))
	for i, p := range parents {
		values[i] = p[0].Value
	}
	parentCol := joinAlias + "." + rf.JoinColumn()
	s, err := q.selector(rf.Related, relatedAlias, args.Filter, qualified(relatedAlias, sel))
	if err != nil {
		return nil, nil, err
	}
	s.AppendSelect(parentCol).
		Join(sql.Table(rf.Relation.Table).As(joinAlias), joinAlias+"."+rf.Opposite().JoinColumn(), relatedAlias+"."+relatedPK[0].DBName()).
		Where(sql.In(parentCol, values...))
	orderBy(s, relatedAlias, rf.Related, args.OrderBy, backwards)
	if len(args.Distinct) == 0 {
		paginate(s, args)
	}
	rows, err := q.query(ctx, s, append(typesOf(sel), parentPK[0].Type))
	if err != nil {
		return nil, nil, err
	}
	recs.Rows = rows
	if len(args.Distinct) > 0 {
		if err := distinctPage(recs, args); err != nil {
			return nil, nil, err
		}
	}
	if backwards {
		reverse(recs.Rows)
	}
	keys := make([]query.SelectionResult, len(recs.Rows))
	for i, row := range recs.Rows {
		keys[i] = query.NewSelectionResult(parentPK, []any{row[len(sel)]})
		recs.Rows[i] = row[:len(sel):len(sel)]
	}
	return recs, keys, nil
}

// Aggregate implements connector.ReadOperations.
func (q *queryable) Aggregate(ctx context.Context, m *schema.Model, args query.QueryArguments, sels []query.AggregationSelection) ([]query.AggregationValue, error) {
	exprs := make([]sql.Expr, len(sels))
	types := make([]field.Type, len(sels))
	for i, a := range sels {
		col := "*"
		if a.Field != nil {
			col = a.Field.DBName()
		}
		switch a.Kind {
		case query.AggCount:
			exprs[i], types[i] = sql.Count(col), field.TypeInt
		case query.AggAvg:
			exprs[i], types[i] = sql.Avg(col), field.TypeFloat
		case query.AggSum:
			exprs[i], types[i] = sql.Sum(col), a.Field.Type
		case query.AggMin:
			exprs[i], types[i] = sql.Min(col), a.Field.Type
		case query.AggMax:
			exprs[i], types[i] = sql.Max(col), a.Field.Type
		default:
			return nil, fmt.Errorf("sqlconnector: unknown aggregation %s", a.Kind)
		}
	}
	n, backwards, hasTake := args.TakeAbs()
	var s *sql.Selector
	if hasTake || args.Skip > 0 {
		if hasTake && n == 0 {
			args.Filter = query.Or{}
		}
		sub, err := q.selector(m, "", args.Filter, []string{"*"})
		if err != nil {
			return nil, err
		}
		orderBy(sub, "", m, args.OrderBy, backwards)
		paginate(sub, args)
		s = q.builder().Select().From(sub.As("sub"))
	} else {
		var err error
		if s, err = q.selector(m, "", args.Filter, nil); err != nil {
			return nil, err
		}
	}
	s.AppendSelectExpr(exprs...)
	rows, err := q.query(ctx, s, types)
	if err != nil {
		return nil, err
	}
	if len(rows) != 1 {
		return nil, fmt.Errorf("sqlconnector: aggregate returned %d rows", len(rows))
	}
	values := make([]query.AggregationValue, len(sels))
	for i, a := range sels {
		values[i] = query.AggregationValue{Selection: a, Value: rows[0][i]}
	}
	return values, nil
}

// QueryRaw implements connector.ReadOperations. Text columns returned as
// bytes are converted to strings.
func (q *queryable) QueryRaw(ctx context.Context, stmt string, params []any) (*query.RawResult, error) {
	if params == nil {
		params = []any{}
	}
	rows := &sql.Rows{}
	if err := q.ex.Query(ctx, stmt, params, rows); err != nil {
		return nil, fmt.Errorf("sqlconnector: raw query: %w", err)
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("sqlconnector: raw query columns: %w", err)
	}
	res := &query.RawResult{Columns: cols}
	if res.Rows, err = scanRows(rows, make([]field.Type, len(cols))); err != nil {
		return nil, err
	}
	for _, row := range res.Rows {
		for i, v := range row {
			if b, ok := v.([]byte); ok {
				row[i] = string(b)
			}
		}
	}
	return res, nil
}

// selector returns a SELECT of columns from the table of m filtered by f.
func (q *queryable) selector(m *schema.Model, alias string, f query.Filter, cols []string) (*sql.Selector, error) {
	t := sql.Table(m.Table)
	if alias != "" {
		t.As(alias)
	}
	s := q.builder().Select(cols...).From(t)
	if !query.IsEmpty(f) {
		p, err := predicate(f, alias)
		if err != nil {
			return nil, err
		}
		s.Where(p)
	}
	return s, nil
}

// orderBy adds the ordering of args, completed by the primary key to make
// it total. Backwards reads flip every direction.
func orderBy(s *sql.Selector, alias string, m *schema.Model, order []query.OrderBy, backwards bool) {
	seen := make(map[*schema.Field]bool, len(order))
	add := func(f *schema.Field, desc bool) {
		if seen[f] {
			return
		}
		seen[f] = true
		dir := sql.OrderAsc
		if desc != backwards {
			dir = sql.OrderDesc
		}
		s.OrderBy(column(alias, f), dir)
	}
	for _, o := range order {
		add(o.Field, o.Desc)
	}
	for _, f := range m.PrimaryKeyFields() {
		add(f, false)
	}
}

func paginate(s *sql.Selector, args query.QueryArguments) {
	if n, _, ok := args.TakeAbs(); ok {
		s.Limit(n)
	}
	if args.Skip > 0 {
		s.Offset(args.Skip)
	}
}

// distinctPage keeps the first record of every distinct value, then applies
// skip and take.
func distinctPage(recs *query.ManyRecords, args query.QueryArguments) error {
	keys, err := recs.Project(args.Distinct)
	if err != nil {
		return err
	}
	seen := make(map[string]bool, len(keys))
	rows := recs.Rows[:0]
	for i, k := range keys {
		if seen[k.Key()] {
			continue
		}
		seen[k.Key()] = true
		rows = append(rows, recs.Rows[i])
	}
	if args.Skip >= len(rows) {
		rows = rows[:0]
	} else {
		rows = rows[args.Skip:]
	}
	if n, _, ok := args.TakeAbs(); ok && n < len(rows) {
		rows = rows[:n]
	}
	recs.Rows = rows
	return nil
}
