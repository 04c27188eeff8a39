// Package sql wraps database/sql for the SQL connector: a dialect.Driver
// over *sql.DB, a statement builder that quotes identifiers and numbers
// placeholders per dialect, and statistics and debug logging decorators.
//
// # Opening a Driver
//
//	drv, err := sql.Open(dialect.SQLite, "file:app.db?_pragma=foreign_keys(1)")
//	if err != nil {
//	    return err
//	}
//	defer drv.Close()
//
// # Building Statements
//
//	t := sql.Table("users")
//	query, args := sql.Dialect(dialect.Postgres).
//	    Select(t.C("id"), t.C("name")).
//	    From(t).
//	    Where(sql.And(sql.EQ(t.C("active"), true), sql.In(t.C("id"), 1, 2))).
//	    OrderBy(t.C("id"), sql.OrderAsc).
//	    Limit(10).
//	    Query()
//	// SELECT "users"."id", "users"."name" FROM "users"
//	// WHERE ("users"."active" = $1 AND "users"."id" IN ($2, $3))
//	// ORDER BY "users"."id" LIMIT $4
//
// Insert, Update and Delete builders support RETURNING, and inserts support
// ON CONFLICT DO NOTHING and upserts.
//
// # Statistics
//
// NewStatsDriver counts statements and transactions and logs the ones slower
// than a threshold:
//
//	stats := sql.NewStatsDriver(drv, sql.WithSlowThreshold(200*time.Millisecond))
//	fmt.Println(stats.QueryStats().Stats())
//
// NewDebugDriver logs every statement with its arguments.
//
// # Session Variables
//
// WithIntVar attaches a session variable, such as a statement timeout, to a
// context. The driver sets it on the connection before the statement runs.
package sql
