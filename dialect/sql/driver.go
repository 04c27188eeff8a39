package sql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/syssam/qengine/dialect"
)

// Driver is a dialect.Driver over a database/sql handle.
type Driver struct {
	Conn
}

// Open opens a database/sql handle of the named driver and wraps it.
func Open(name, source string) (*Driver, error) {
	db, err := sql.Open(name, source)
	if err != nil {
		return nil, err
	}
	return OpenDB(name, db), nil
}

// OpenDB wraps an opened database/sql handle.
func OpenDB(name string, db *sql.DB) *Driver {
	return &Driver{Conn{ExecQuerier: db, dialect: name}}
}

// DB returns the underlying *sql.DB.
func (d *Driver) DB() *sql.DB {
	return d.ExecQuerier.(*sql.DB)
}

// Dialect implements dialect.Driver. Driver names carrying a suffix, such as
// "postgres+otel", resolve to their base dialect.
func (d *Driver) Dialect() string {
	for _, name := range []string{dialect.Postgres, dialect.MySQL, dialect.SQLite} {
		if strings.HasPrefix(d.dialect, name) {
			return name
		}
	}
	return d.dialect
}

// Tx implements dialect.Driver.
func (d *Driver) Tx(ctx context.Context) (dialect.Tx, error) {
	return d.BeginTx(ctx, nil)
}

// BeginTx starts a transaction with options.
func (d *Driver) BeginTx(ctx context.Context, opts *TxOptions) (dialect.Tx, error) {
	tx, err := d.DB().BeginTx(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("dialect/sql: begin: %w", err)
	}
	return &Tx{Conn: Conn{ExecQuerier: tx, dialect: d.dialect}, tx: tx}, nil
}

// Close implements dialect.Driver.
func (d *Driver) Close() error { return d.DB().Close() }

// Tx is a dialect.Tx over a database/sql transaction.
type Tx struct {
	Conn
	tx *sql.Tx
}

// Commit implements dialect.Tx.
func (t *Tx) Commit() error { return t.tx.Commit() }

// Rollback implements dialect.Tx.
func (t *Tx) Rollback() error { return t.tx.Rollback() }

// ExecQuerier is implemented by *sql.DB, *sql.Tx and *sql.Conn.
type ExecQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Conn implements dialect.ExecQuerier over an ExecQuerier.
type Conn struct {
	ExecQuerier
	dialect string
}

// Exec implements dialect.ExecQuerier. v is nil or a *Result.
func (c Conn) Exec(ctx context.Context, query string, args, v any) (rerr error) {
	argv, ok := args.([]any)
	if !ok {
		return fmt.Errorf("dialect/sql: invalid type %T. expect []any for args", args)
	}
	res, ok := v.(*Result)
	if v != nil && !ok {
		return fmt.Errorf("dialect/sql: invalid type %T. expect *sql.Result", v)
	}
	ex, release, err := c.session(ctx)
	if err != nil {
		return fmt.Errorf("dialect/sql: exec: set session vars: %w", err)
	}
	if release != nil {
		defer func() { rerr = errors.Join(rerr, release()) }()
	}
	r, err := ex.ExecContext(ctx, query, argv...)
	if err != nil {
		return fmt.Errorf("dialect/sql: exec: %w", err)
	}
	if res != nil {
		*res = r
	}
	return nil
}

// Query implements dialect.ExecQuerier. v is a *Rows, which the caller
// closes.
func (c Conn) Query(ctx context.Context, query string, args, v any) error {
	rows, ok := v.(*Rows)
	if !ok {
		return fmt.Errorf("dialect/sql: invalid type %T. expect *sql.Rows", v)
	}
	argv, ok := args.([]any)
	if !ok {
		return fmt.Errorf("dialect/sql: invalid type %T. expect []any for args", args)
	}
	ex, release, err := c.session(ctx)
	if err != nil {
		return fmt.Errorf("dialect/sql: query: set session vars: %w", err)
	}
	r, err := ex.QueryContext(ctx, query, argv...)
	if err != nil {
		if release != nil {
			err = errors.Join(err, release())
		}
		return fmt.Errorf("dialect/sql: query: %w", err)
	}
	rows.ColumnScanner = r
	if release != nil {
		rows.ColumnScanner = rowsWithCloser{r, release}
	}
	return nil
}

type ctxVarsKey struct{}

type sessionVar struct{ name, value string }

// WithVar returns a context holding a session variable that is set before
// every statement run with it, e.g. statement_timeout on Postgres.
func WithVar(ctx context.Context, name, value string) context.Context {
	vars, _ := ctx.Value(ctxVarsKey{}).([]sessionVar)
	vars = append(vars[:len(vars):len(vars)], sessionVar{name: name, value: value})
	return context.WithValue(ctx, ctxVarsKey{}, vars)
}

// WithIntVar calls WithVar with the decimal representation of value.
func WithIntVar(ctx context.Context, name string, value int) context.Context {
	return WithVar(ctx, name, strconv.Itoa(value))
}

// VarFromContext returns the last value of a session variable set on ctx.
func VarFromContext(ctx context.Context, name string) (string, bool) {
	vars, _ := ctx.Value(ctxVarsKey{}).([]sessionVar)
	for i := len(vars) - 1; i >= 0; i-- {
		if vars[i].name == name {
			return vars[i].value, true
		}
	}
	return "", false
}

var identRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_.]*$`)

// session pins a connection and sets the session variables of ctx on it.
// The returned release function resets them and returns the connection to
// the pool. Transactions already own their connection and are not reset.
func (c Conn) session(ctx context.Context) (ExecQuerier, func() error, error) {
	vars, _ := ctx.Value(ctxVarsKey{}).([]sessionVar)
	if len(vars) == 0 {
		return c.ExecQuerier, nil, nil
	}
	var (
		ex      ExecQuerier
		release func() error
	)
	switch e := c.ExecQuerier.(type) {
	case *sql.Tx:
		ex = e
	case *sql.DB:
		conn, err := e.Conn(ctx)
		if err != nil {
			return nil, nil, err
		}
		ex, release = conn, conn.Close
	default:
		return nil, nil, fmt.Errorf("unsupported ExecQuerier type: %T", c.ExecQuerier)
	}
	fail := func(err error) (ExecQuerier, func() error, error) {
		if release != nil {
			err = errors.Join(err, release())
		}
		return nil, nil, err
	}
	var (
		resets []string
		seen   = make(map[string]bool, len(vars))
	)
	for _, v := range vars {
		if len(v.name) > 128 || !identRe.MatchString(v.name) {
			return fail(fmt.Errorf("invalid session variable name: %q", v.name))
		}
		if !seen[v.name] {
			seen[v.name] = true
			switch c.dialect {
			case dialect.Postgres:
				resets = append(resets, "RESET "+v.name)
			case dialect.MySQL:
				resets = append(resets, "SET "+v.name+" = NULL")
			}
		}
		value := strings.ReplaceAll(strings.ReplaceAll(v.value, `\`, `\\`), "'", "''")
		if _, err := ex.ExecContext(ctx, fmt.Sprintf("SET %s = '%s'", v.name, value)); err != nil {
			return fail(err)
		}
	}
	if release == nil || len(resets) == 0 {
		return ex, release, nil
	}
	closeConn := release
	release = func() error {
		// The request context may be canceled by now.
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		for _, q := range resets {
			if _, err := ex.ExecContext(rctx, q); err != nil {
				return errors.Join(err, closeConn())
			}
		}
		return closeConn()
	}
	return ex, release, nil
}

var _ dialect.Driver = (*Driver)(nil)

type (
	// Rows wraps the sql.Rows to avoid locks copy.
	Rows struct{ ColumnScanner }
	// Result is an alias to sql.Result.
	Result = sql.Result
	// TxOptions holds the transaction options to be used in DB.BeginTx.
	TxOptions = sql.TxOptions
)

// ColumnScanner is the interface that wraps the standard
// sql.Rows methods used for scanning database rows.
type ColumnScanner interface {
	Close() error
	ColumnTypes() ([]*sql.ColumnType, error)
	Columns() ([]string, error)
	Err() error
	Next() bool
	NextResultSet() bool
	Scan(dest ...any) error
}

// rowsWithCloser releases the session connection once the rows are closed.
type rowsWithCloser struct {
	ColumnScanner
	closer func() error
}

func (r rowsWithCloser) Close() error {
	return errors.Join(r.ColumnScanner.Close(), r.closer())
}
