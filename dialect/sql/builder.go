package sql

import (
	"strconv"
	"strings"

	"github.com/syssam/qengine/dialect"
)

// Querier wraps the Query method, returning a statement and its arguments.
type Querier interface {
	Query() (string, []any)
}

// Builder is the low-level statement writer shared by every statement. It
// quotes identifiers and numbers placeholders for its dialect.
type Builder struct {
	sb      strings.Builder
	args    []any
	dialect string
}

// Quote quotes an identifier for the dialect.
func (b *Builder) Quote(ident string) string {
	if b.dialect == dialect.MySQL {
		return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// Ident writes a possibly qualified identifier, "table.column" included.
// "*" is written as is.
func (b *Builder) Ident(s string) *Builder {
	if s == "*" {
		b.sb.WriteString(s)
		return b
	}
	for i, part := range strings.Split(s, ".") {
		if i > 0 {
			b.sb.WriteByte('.')
		}
		if part == "*" {
			b.sb.WriteString(part)
			continue
		}
		b.sb.WriteString(b.Quote(part))
	}
	return b
}

// IdentComma writes identifiers separated by commas.
func (b *Builder) IdentComma(idents ...string) *Builder {
	for i, s := range idents {
		if i > 0 {
			b.sb.WriteString(", ")
		}
		b.Ident(s)
	}
	return b
}

// WriteString writes a raw string.
func (b *Builder) WriteString(s string) *Builder {
	b.sb.WriteString(s)
	return b
}

// Arg writes a placeholder and records its argument.
func (b *Builder) Arg(v any) *Builder {
	b.args = append(b.args, v)
	if b.dialect == dialect.Postgres {
		b.sb.WriteString("$" + strconv.Itoa(len(b.args)))
	} else {
		b.sb.WriteByte('?')
	}
	return b
}

// Args writes comma separated placeholders.
func (b *Builder) Args(vs ...any) *Builder {
	for i, v := range vs {
		if i > 0 {
			b.sb.WriteString(", ")
		}
		b.Arg(v)
	}
	return b
}

// Dialect returns the dialect of the builder.
func (b *Builder) Dialect() string { return b.dialect }

// Query implements Querier.
func (b *Builder) Query() (string, []any) {
	return b.sb.String(), b.args
}

// DialectBuilder creates statements of one dialect.
type DialectBuilder struct {
	dialect string
}

// Dialect returns a statement factory of the dialect.
func Dialect(name string) *DialectBuilder {
	return &DialectBuilder{dialect: name}
}

// Select returns a SELECT of the given columns.
func (d *DialectBuilder) Select(columns ...string) *Selector {
	return &Selector{dialect: d.dialect, columns: columnExprs(columns)}
}

// Insert returns an INSERT into table.
func (d *DialectBuilder) Insert(table string) *InsertBuilder {
	return &InsertBuilder{dialect: d.dialect, table: table}
}

// Update returns an UPDATE of table.
func (d *DialectBuilder) Update(table string) *UpdateBuilder {
	return &UpdateBuilder{dialect: d.dialect, table: table}
}

// Delete returns a DELETE from table.
func (d *DialectBuilder) Delete(table string) *DeleteBuilder {
	return &DeleteBuilder{dialect: d.dialect, table: table}
}

// Expr is a fragment written into the builder of the enclosing statement.
type Expr func(*Builder)

// Column returns the expression of a column.
func Column(name string) Expr {
	return func(b *Builder) { b.Ident(name) }
}

// Raw returns a raw SQL expression.
func Raw(s string) Expr {
	return func(b *Builder) { b.WriteString(s) }
}

// As aliases an expression.
func As(e Expr, alias string) Expr {
	return func(b *Builder) {
		e(b)
		b.WriteString(" AS ").Ident(alias)
	}
}

func fn(name, column string) Expr {
	return func(b *Builder) {
		b.WriteString(name + "(")
		b.Ident(column)
		b.WriteString(")")
	}
}

// Count returns COUNT(column). Count("*") counts rows.
func Count(column string) Expr { return fn("COUNT", column) }

// Sum returns SUM(column).
func Sum(column string) Expr { return fn("SUM", column) }

// Avg returns AVG(column).
func Avg(column string) Expr { return fn("AVG", column) }

// Min returns MIN(column).
func Min(column string) Expr { return fn("MIN", column) }

// Max returns MAX(column).
func Max(column string) Expr { return fn("MAX", column) }

func columnExprs(columns []string) []Expr {
	exprs := make([]Expr, len(columns))
	for i, c := range columns {
		exprs[i] = Column(c)
	}
	return exprs
}

// TableView is a table or a subquery a selector reads from.
type TableView interface {
	view(*Builder)
}

// SelectTable is a table reference with an optional alias.
type SelectTable struct {
	name, as string
}

// Table returns a table reference.
func Table(name string) *SelectTable { return &SelectTable{name: name} }

// As sets the alias of the table.
func (t *SelectTable) As(alias string) *SelectTable {
	t.as = alias
	return t
}

// C returns the qualified name of a column of the table.
func (t *SelectTable) C(column string) string {
	if t.as != "" {
		return t.as + "." + column
	}
	return t.name + "." + column
}

func (t *SelectTable) view(b *Builder) {
	b.Ident(t.name)
	if t.as != "" {
		b.WriteString(" AS ").Ident(t.as)
	}
}

// OrderDirection is the direction of an ORDER BY term.
type OrderDirection string

// Order directions.
const (
	OrderAsc  OrderDirection = "ASC"
	OrderDesc OrderDirection = "DESC"
)

type orderTerm struct {
	column string
	dir    OrderDirection
}

type join struct {
	table *SelectTable
	on    *Predicate
}

// Selector builds SELECT statements.
type Selector struct {
	dialect  string
	columns  []Expr
	distinct bool
	from     TableView
	as       string
	joins    []join
	where    *Predicate
	order    []orderTerm
	limit    *int
	offset   *int
}

// Select returns a SELECT of the given columns without dialect. The dialect
// is taken from the statement embedding it.
func Select(columns ...string) *Selector {
	return &Selector{columns: columnExprs(columns)}
}

// AppendSelect adds columns to the selection.
func (s *Selector) AppendSelect(columns ...string) *Selector {
	s.columns = append(s.columns, columnExprs(columns)...)
	return s
}

// AppendSelectExpr adds expressions to the selection.
func (s *Selector) AppendSelectExpr(exprs ...Expr) *Selector {
	s.columns = append(s.columns, exprs...)
	return s
}

// Distinct sets the DISTINCT clause.
func (s *Selector) Distinct() *Selector {
	s.distinct = true
	return s
}

// From sets the source of the selector.
func (s *Selector) From(t TableView) *Selector {
	s.from = t
	return s
}

// As sets the alias of the selector used as a subquery.
func (s *Selector) As(alias string) *Selector {
	s.as = alias
	return s
}

func (s *Selector) view(b *Builder) {
	b.WriteString("(")
	s.write(b)
	b.WriteString(")")
	if s.as != "" {
		b.WriteString(" AS ").Ident(s.as)
	}
}

// Join adds an INNER JOIN of t on the equality of two columns.
func (s *Selector) Join(t *SelectTable, left, right string) *Selector {
	s.joins = append(s.joins, join{table: t, on: ColumnsEQ(left, right)})
	return s
}

// Where adds a predicate, joined to the existing ones with AND.
func (s *Selector) Where(p *Predicate) *Selector {
	if s.where == nil {
		s.where = p
	} else {
		s.where = And(s.where, p)
	}
	return s
}

// OrderBy adds ORDER BY terms.
func (s *Selector) OrderBy(column string, dir OrderDirection) *Selector {
	s.order = append(s.order, orderTerm{column: column, dir: dir})
	return s
}

// Limit sets the LIMIT clause.
func (s *Selector) Limit(n int) *Selector {
	s.limit = &n
	return s
}

// Offset sets the OFFSET clause.
func (s *Selector) Offset(n int) *Selector {
	s.offset = &n
	return s
}

// Query implements Querier.
func (s *Selector) Query() (string, []any) {
	b := &Builder{dialect: s.dialect}
	s.write(b)
	return b.Query()
}

func (s *Selector) write(b *Builder) {
	b.WriteString("SELECT ")
	if s.distinct {
		b.WriteString("DISTINCT ")
	}
	if len(s.columns) == 0 {
		b.WriteString("*")
	}
	for i, c := range s.columns {
		if i > 0 {
			b.WriteString(", ")
		}
		c(b)
	}
	if s.from != nil {
		b.WriteString(" FROM ")
		s.from.view(b)
	}
	for _, j := range s.joins {
		b.WriteString(" JOIN ")
		j.table.view(b)
		b.WriteString(" ON ")
		j.on.write(b)
	}
	if s.where != nil {
		b.WriteString(" WHERE ")
		s.where.write(b)
	}
	for i, o := range s.order {
		if i == 0 {
			b.WriteString(" ORDER BY ")
		} else {
			b.WriteString(", ")
		}
		b.Ident(o.column)
		if o.dir == OrderDesc {
			b.WriteString(" DESC")
		}
	}
	switch {
	case s.limit != nil:
		b.WriteString(" LIMIT ").Arg(*s.limit)
	case s.offset != nil && b.dialect == dialect.MySQL:
		// MySQL and SQLite accept OFFSET only after a LIMIT.
		b.WriteString(" LIMIT 18446744073709551615")
	case s.offset != nil && b.dialect == dialect.SQLite:
		b.WriteString(" LIMIT -1")
	}
	if s.offset != nil {
		b.WriteString(" OFFSET ").Arg(*s.offset)
	}
}

type assignment struct {
	column string
	value  Expr
}

// InsertBuilder builds INSERT statements.
type InsertBuilder struct {
	dialect   string
	table     string
	columns   []string
	values    [][]any
	returning []string
	conflict  *conflict
}

type conflict struct {
	columns []string
	ignore  bool
	updates []assignment
}

// Columns sets the inserted columns.
func (i *InsertBuilder) Columns(columns ...string) *InsertBuilder {
	i.columns = columns
	return i
}

// Values adds a row of values, aligned with the columns.
func (i *InsertBuilder) Values(values ...any) *InsertBuilder {
	i.values = append(i.values, values)
	return i
}

// Returning sets the RETURNING clause.
func (i *InsertBuilder) Returning(columns ...string) *InsertBuilder {
	i.returning = columns
	return i
}

// OnConflictIgnore skips the rows violating a unique constraint.
func (i *InsertBuilder) OnConflictIgnore() *InsertBuilder {
	i.conflict = &conflict{ignore: true}
	return i
}

// OnConflictUpdate updates the conflicting row on a violation of the unique
// constraint of columns. MySQL resolves the constraint itself.
func (i *InsertBuilder) OnConflictUpdate(columns []string, updates *UpdateBuilder) *InsertBuilder {
	i.conflict = &conflict{columns: columns, updates: updates.sets}
	return i
}

// Query implements Querier.
func (i *InsertBuilder) Query() (string, []any) {
	b := &Builder{dialect: i.dialect}
	b.WriteString("INSERT ")
	if i.conflict != nil && i.conflict.ignore && i.dialect == dialect.MySQL {
		b.WriteString("IGNORE ")
	}
	b.WriteString("INTO ").Ident(i.table)
	if len(i.columns) == 0 {
		if i.dialect == dialect.MySQL {
			b.WriteString(" () VALUES ()")
		} else {
			b.WriteString(" DEFAULT VALUES")
		}
	} else {
		b.WriteString(" (").IdentComma(i.columns...).WriteString(") VALUES ")
		for j, row := range i.values {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString("(").Args(row...).WriteString(")")
		}
	}
	if c := i.conflict; c != nil {
		switch {
		case c.ignore && i.dialect != dialect.MySQL:
			b.WriteString(" ON CONFLICT DO NOTHING")
		case !c.ignore && i.dialect == dialect.MySQL:
			b.WriteString(" ON DUPLICATE KEY UPDATE ")
			writeAssignments(b, c.updates)
		case !c.ignore:
			b.WriteString(" ON CONFLICT (").IdentComma(c.columns...).WriteString(") DO UPDATE SET ")
			writeAssignments(b, c.updates)
		}
	}
	writeReturning(b, i.returning)
	return b.Query()
}

// UpdateBuilder builds UPDATE statements.
type UpdateBuilder struct {
	dialect   string
	table     string
	sets      []assignment
	where     *Predicate
	returning []string
}

// Set sets a column to a value.
func (u *UpdateBuilder) Set(column string, v any) *UpdateBuilder {
	u.sets = append(u.sets, assignment{column: column, value: func(b *Builder) { b.Arg(v) }})
	return u
}

// SetExpr sets a column to an expression.
func (u *UpdateBuilder) SetExpr(column string, e Expr) *UpdateBuilder {
	u.sets = append(u.sets, assignment{column: column, value: e})
	return u
}

// Arith sets a column to the result of an arithmetic operator ("+", "-",
// "*" or "/") applied to its current value and v.
func (u *UpdateBuilder) Arith(column, op string, v any) *UpdateBuilder {
	table := u.table
	return u.SetExpr(column, func(b *Builder) {
		b.Ident(table + "." + column).WriteString(" " + op + " ").Arg(v)
	})
}

// Empty reports if the update sets nothing.
func (u *UpdateBuilder) Empty() bool { return len(u.sets) == 0 }

// Where adds a predicate, joined to the existing ones with AND.
func (u *UpdateBuilder) Where(p *Predicate) *UpdateBuilder {
	if u.where == nil {
		u.where = p
	} else {
		u.where = And(u.where, p)
	}
	return u
}

// Returning sets the RETURNING clause.
func (u *UpdateBuilder) Returning(columns ...string) *UpdateBuilder {
	u.returning = columns
	return u
}

// Query implements Querier.
func (u *UpdateBuilder) Query() (string, []any) {
	b := &Builder{dialect: u.dialect}
	b.WriteString("UPDATE ").Ident(u.table).WriteString(" SET ")
	writeAssignments(b, u.sets)
	if u.where != nil {
		b.WriteString(" WHERE ")
		u.where.write(b)
	}
	writeReturning(b, u.returning)
	return b.Query()
}

// DeleteBuilder builds DELETE statements.
type DeleteBuilder struct {
	dialect   string
	table     string
	where     *Predicate
	returning []string
}

// Where adds a predicate, joined to the existing ones with AND.
func (d *DeleteBuilder) Where(p *Predicate) *DeleteBuilder {
	if d.where == nil {
		d.where = p
	} else {
		d.where = And(d.where, p)
	}
	return d
}

// Returning sets the RETURNING clause.
func (d *DeleteBuilder) Returning(columns ...string) *DeleteBuilder {
	d.returning = columns
	return d
}

// Query implements Querier.
func (d *DeleteBuilder) Query() (string, []any) {
	b := &Builder{dialect: d.dialect}
	b.WriteString("DELETE FROM ").Ident(d.table)
	if d.where != nil {
		b.WriteString(" WHERE ")
		d.where.write(b)
	}
	writeReturning(b, d.returning)
	return b.Query()
}

func writeAssignments(b *Builder, sets []assignment) {
	for i, a := range sets {
		if i > 0 {
			b.WriteString(", ")
		}
		b.Ident(a.column).WriteString(" = ")
		a.value(b)
	}
}

func writeReturning(b *Builder, columns []string) {
	if len(columns) == 0 || b.dialect == dialect.MySQL {
		return
	}
	b.WriteString(" RETURNING ").IdentComma(columns...)
}

// Predicate is a boolean expression of a WHERE or ON clause.
type Predicate struct {
	write func(*Builder)
}

// P returns a predicate written by fn.
func P(fn func(*Builder)) *Predicate { return &Predicate{write: fn} }

// Query renders the predicate on its own, for tests and logging.
func (p *Predicate) Query(dialectName string) (string, []any) {
	b := &Builder{dialect: dialectName}
	p.write(b)
	return b.Query()
}

func cmp(column, op string, v any) *Predicate {
	return P(func(b *Builder) {
		b.Ident(column).WriteString(" " + op + " ").Arg(v)
	})
}

// EQ returns a "column = v" predicate.
func EQ(column string, v any) *Predicate { return cmp(column, "=", v) }

// NEQ returns a "column <> v" predicate.
func NEQ(column string, v any) *Predicate { return cmp(column, "<>", v) }

// LT returns a "column < v" predicate.
func LT(column string, v any) *Predicate { return cmp(column, "<", v) }

// LTE returns a "column <= v" predicate.
func LTE(column string, v any) *Predicate { return cmp(column, "<=", v) }

// GT returns a "column > v" predicate.
func GT(column string, v any) *Predicate { return cmp(column, ">", v) }

// GTE returns a "column >= v" predicate.
func GTE(column string, v any) *Predicate { return cmp(column, ">=", v) }

// ColumnsEQ returns a "left = right" predicate between two columns.
func ColumnsEQ(left, right string) *Predicate {
	return P(func(b *Builder) {
		b.Ident(left).WriteString(" = ").Ident(right)
	})
}

// In returns a "column IN (vs)" predicate. An empty list matches nothing.
func In(column string, vs ...any) *Predicate {
	if len(vs) == 0 {
		return False()
	}
	return P(func(b *Builder) {
		b.Ident(column).WriteString(" IN (").Args(vs...).WriteString(")")
	})
}

// NotIn returns a "column NOT IN (vs)" predicate. An empty list matches
// everything.
func NotIn(column string, vs ...any) *Predicate {
	if len(vs) == 0 {
		return True()
	}
	return P(func(b *Builder) {
		b.Ident(column).WriteString(" NOT IN (").Args(vs...).WriteString(")")
	})
}

// IsNull returns a "column IS NULL" predicate.
func IsNull(column string) *Predicate {
	return P(func(b *Builder) { b.Ident(column).WriteString(" IS NULL") })
}

// NotNull returns a "column IS NOT NULL" predicate.
func NotNull(column string) *Predicate {
	return P(func(b *Builder) { b.Ident(column).WriteString(" IS NOT NULL") })
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func like(column, pattern string) *Predicate {
	return P(func(b *Builder) {
		b.Ident(column).WriteString(" LIKE ").Arg(pattern)
		if b.dialect != dialect.MySQL {
			b.WriteString(` ESCAPE '\'`)
		}
	})
}

// Contains returns a predicate matching values containing sub.
func Contains(column, sub string) *Predicate {
	return like(column, "%"+likeEscaper.Replace(sub)+"%")
}

// HasPrefix returns a predicate matching values starting with prefix.
func HasPrefix(column, prefix string) *Predicate {
	return like(column, likeEscaper.Replace(prefix)+"%")
}

// HasSuffix returns a predicate matching values ending with suffix.
func HasSuffix(column, suffix string) *Predicate {
	return like(column, "%"+likeEscaper.Replace(suffix))
}

// True returns an always true predicate.
func True() *Predicate {
	return P(func(b *Builder) { b.WriteString("1 = 1") })
}

// False returns an always false predicate.
func False() *Predicate {
	return P(func(b *Builder) { b.WriteString("1 = 0") })
}

// And joins predicates with AND. No predicate is true.
func And(ps ...*Predicate) *Predicate {
	return joinPredicates(ps, "AND", True)
}

// Or joins predicates with OR. No predicate is false.
func Or(ps ...*Predicate) *Predicate {
	return joinPredicates(ps, "OR", False)
}

// Not negates a predicate.
func Not(p *Predicate) *Predicate {
	return P(func(b *Builder) {
		b.WriteString("NOT (")
		p.write(b)
		b.WriteString(")")
	})
}

func joinPredicates(ps []*Predicate, op string, zero func() *Predicate) *Predicate {
	switch len(ps) {
	case 0:
		return zero()
	case 1:
		return ps[0]
	}
	return P(func(b *Builder) {
		b.WriteString("(")
		for i, p := range ps {
			if i > 0 {
				b.WriteString(" " + op + " ")
			}
			p.write(b)
		}
		b.WriteString(")")
	})
}
