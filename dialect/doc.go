// Package dialect defines the database abstraction the SQL connector runs on.
//
// # Supported Dialects
//
//   - Postgres: PostgreSQL
//   - MySQL: MySQL/MariaDB
//   - SQLite: SQLite
//
// # Driver Interface
//
//	type Driver interface {
//	    Exec(ctx context.Context, query string, args, v any) error
//	    Query(ctx context.Context, query string, args, v any) error
//	    Tx(ctx context.Context) (Tx, error)
//	    Close() error
//	    Dialect() string
//	}
//
// A Tx is an ExecQuerier scoped to one transaction, with Commit and
// Rollback. Both Driver and Tx satisfy ExecQuerier, so the statements of a
// connector run unchanged inside or outside of a transaction.
//
// # Sub-packages
//
//   - dialect/sql: database/sql driver wrapper, statement builder and query statistics
//   - dialect/sql/sqlgraph: classification of constraint violations
package dialect
