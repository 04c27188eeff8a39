// Package sqlconnector implements connector.Connector on SQL databases
// through the dialect/sql driver and statement builder. PostgreSQL, MySQL
// and SQLite are supported.
package sqlconnector

import (
	"context"
	"fmt"

	"github.com/syssam/qengine/connector"
	"github.com/syssam/qengine/dialect"
	"github.com/syssam/qengine/dialect/sql"
	"github.com/syssam/qengine/dialect/sql/sqlgraph"
	"github.com/syssam/qengine/schema/field"
)

// Capabilities returns the capabilities of a dialect.
func Capabilities(name string) connector.Capabilities {
	switch name {
	case dialect.Postgres, dialect.SQLite:
		return connector.NewCapabilities(
			connector.UpdateReturning,
			connector.InsertReturning,
			connector.DeleteReturning,
			connector.NativeUpsert,
			connector.CreateMany,
			connector.CreateSkipDuplicates,
		)
	case dialect.MySQL:
		return connector.NewCapabilities(connector.CreateMany, connector.CreateSkipDuplicates)
	}
	return connector.NewCapabilities()
}

// Option configures a Connector.
type Option func(*Connector)

// WithCapabilities overrides the capabilities derived from the dialect.
func WithCapabilities(caps connector.Capabilities) Option {
	return func(c *Connector) {
		c.caps = caps
	}
}

// Connector is a connector.Connector over a dialect.Driver.
type Connector struct {
	queryable
	drv dialect.Driver
}

var _ connector.Connector = (*Connector)(nil)

// New returns a connector running its statements on drv.
func New(drv dialect.Driver, opts ...Option) (*Connector, error) {
	name := drv.Dialect()
	switch name {
	case dialect.Postgres, dialect.MySQL, dialect.SQLite:
	default:
		return nil, fmt.Errorf("sqlconnector: unsupported dialect %q", name)
	}
	c := &Connector{
		queryable: queryable{ex: drv, dialect: name, caps: Capabilities(name)},
		drv:       drv,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Open opens a database of the named dialect and returns its connector.
func Open(name, source string, opts ...Option) (*Connector, error) {
	drv, err := sql.Open(name, source)
	if err != nil {
		return nil, err
	}
	return New(drv, opts...)
}

// Begin implements connector.Connector.
func (c *Connector) Begin(ctx context.Context) (connector.Transaction, error) {
	tx, err := c.drv.Tx(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlconnector: begin: %w", err)
	}
	return &Tx{queryable: queryable{ex: tx, dialect: c.dialect, caps: c.caps}, tx: tx}, nil
}

// Capabilities implements connector.Connector.
func (c *Connector) Capabilities() connector.Capabilities { return c.caps }

// Name implements connector.Connector.
func (c *Connector) Name() string { return c.dialect }

// Close implements connector.Connector.
func (c *Connector) Close() error { return c.drv.Close() }

// Driver returns the underlying driver.
func (c *Connector) Driver() dialect.Driver { return c.drv }

// Tx is a connector.Transaction over a dialect.Tx.
type Tx struct {
	queryable
	tx dialect.Tx
}

var _ connector.Transaction = (*Tx)(nil)

// Commit implements connector.Transaction.
func (t *Tx) Commit() error { return t.tx.Commit() }

// Rollback implements connector.Transaction.
func (t *Tx) Rollback() error { return t.tx.Rollback() }

// queryable runs the read and write operations on a driver or a
// transaction.
type queryable struct {
	ex      dialect.ExecQuerier
	dialect string
	caps    connector.Capabilities
}

func (q *queryable) builder() *sql.DialectBuilder { return sql.Dialect(q.dialect) }

// query runs a statement and scans its rows, normalizing every column to its field type.
func (q *queryable) query(ctx context.Context, stmt sql.Querier, types []field.Type) ([][]any, error) {
	query, args := stmt.Query()
	rows := &sql.Rows{}
	if err := q.ex.Query(ctx, query, args, rows); err != nil {
		return nil, sqlgraph.ConstraintError(err)
	}
	defer rows.Close()
	records, err := scanRows(rows, types)
	if err != nil {
		return nil, sqlgraph.ConstraintError(err)
	}
	return records, nil
}

// exec runs a statement and returns the number of affected rows.
func (q *queryable) exec(ctx context.Context, stmt sql.Querier) (int, error) {
	query, args := stmt.Query()
	var res sql.Result
	if err := q.ex.Exec(ctx, query, args, &res); err != nil {
		return 0, sqlgraph.ConstraintError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlconnector: rows affected: %w", err)
	}
	return int(n), nil
}
