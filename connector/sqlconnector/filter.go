package sqlconnector

import (
	"fmt"

	"github.com/syssam/qengine/dialect/sql"
	"github.com/syssam/qengine/query"
	"github.com/syssam/qengine/schema"
)

// predicate compiles a filter into a SQL predicate. Columns are qualified by
// table when it is not empty.
func predicate(f query.Filter, table string) (*sql.Predicate, error) {
	switch f := f.(type) {
	case nil:
		return sql.True(), nil
	case query.And:
		ps, err := predicates(f, table)
		if err != nil {
			return nil, err
		}
		return sql.And(ps...), nil
	case query.Or:
		ps, err := predicates(f, table)
		if err != nil {
			return nil, err
		}
		return sql.Or(ps...), nil
	case query.Not:
		ps, err := predicates(f, table)
		if err != nil {
			return nil, err
		}
		return sql.Not(sql.Or(ps...)), nil
	case *query.Scalar:
		return scalar(f, column(table, f.Field))
	}
	if query.IsEmpty(f) {
		return sql.True(), nil
	}
	return nil, fmt.Errorf("sqlconnector: unsupported filter %T", f)
}

func predicates(fs []query.Filter, table string) ([]*sql.Predicate, error) {
	ps := make([]*sql.Predicate, len(fs))
	for i, f := range fs {
		p, err := predicate(f, table)
		if err != nil {
			return nil, err
		}
		ps[i] = p
	}
	return ps, nil
}

func scalar(s *query.Scalar, col string) (*sql.Predicate, error) {
	switch s.Cond {
	case query.Equals:
		if s.Value == nil {
			return sql.IsNull(col), nil
		}
		return sql.EQ(col, s.Value), nil
	case query.NotEquals:
		if s.Value == nil {
			return sql.NotNull(col), nil
		}
		return sql.NEQ(col, s.Value), nil
	case query.In, query.NotIn:
		vs, ok := s.Value.([]any)
		if !ok {
			return nil, fmt.Errorf("sqlconnector: %s %s expects a list, got %T", s.Field, s.Cond, s.Value)
		}
		if s.Cond == query.In {
			return sql.In(col, vs...), nil
		}
		return sql.NotIn(col, vs...), nil
	case query.LT:
		return sql.LT(col, s.Value), nil
	case query.LTE:
		return sql.LTE(col, s.Value), nil
	case query.GT:
		return sql.GT(col, s.Value), nil
	case query.GTE:
		return sql.GTE(col, s.Value), nil
	case query.Contains, query.StartsWith, query.EndsWith:
		v, ok := s.Value.(string)
		if !ok {
			return nil, fmt.Errorf("sqlconnector: %s %s expects a string, got %T", s.Field, s.Cond, s.Value)
		}
		switch s.Cond {
		case query.Contains:
			return sql.Contains(col, v), nil
		case query.StartsWith:
			return sql.HasPrefix(col, v), nil
		}
		return sql.HasSuffix(col, v), nil
	case query.IsNull:
		return sql.IsNull(col), nil
	case query.IsNotNull:
		return sql.NotNull(col), nil
	}
	return nil, fmt.Errorf("sqlconnector: unsupported condition %s on %s", s.Cond, s.Field)
}

func column(table string, f *schema.Field) string {
	if table == "" {
		return f.DBName()
	}
	return table + "." + f.DBName()
}
