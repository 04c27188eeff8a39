package sql

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/qengine/dialect"
)

func TestWithVars(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	drv := OpenDB(dialect.Postgres, db)

	mock.ExpectExec("SET statement_timeout = '500'").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectExec("RESET statement_timeout").WillReturnResult(sqlmock.NewResult(0, 0))
	rows := &Rows{}
	err = drv.Query(WithIntVar(context.Background(), "statement_timeout", 500), "SELECT 1", []any{}, rows)
	require.NoError(t, err)
	require.NoError(t, rows.Close(), "closing the rows releases the session")
	require.NoError(t, mock.ExpectationsWereMet())

	// A variable set twice is reset once.
	mock.ExpectExec("SET foo = 'bar'").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("SET foo = 'baz'").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO users DEFAULT VALUES").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("RESET foo").WillReturnResult(sqlmock.NewResult(0, 0))
	ctx := WithVar(WithVar(context.Background(), "foo", "bar"), "foo", "baz")
	require.NoError(t, drv.Exec(ctx, "INSERT INTO users DEFAULT VALUES", []any{}, nil))
	require.NoError(t, mock.ExpectationsWereMet())

	// Transactions own their connection and are not reset.
	mock.ExpectBegin()
	mock.ExpectExec("SET foo = 'bar'").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectCommit()
	tx, err := drv.Tx(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx.Query(WithVar(context.Background(), "foo", "bar"), "SELECT 1", []any{}, rows))
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithVarsEscaping(t *testing.T) {
	t.Parallel()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	drv := OpenDB(dialect.MySQL, db)

	mock.ExpectExec(`SET foo = 'it''s \\x'`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM t").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("SET foo = NULL").WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, drv.Exec(WithVar(context.Background(), "foo", `it's \x`), "DELETE FROM t", []any{}, nil))
	require.NoError(t, mock.ExpectationsWereMet())

	err = drv.Exec(WithVar(context.Background(), "foo; DROP TABLE users", "bar"), "DELETE FROM t", []any{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid session variable name")
}

func TestVarFromContext(t *testing.T) {
	t.Parallel()
	ctx := WithVar(context.Background(), "a", "1")
	child := WithVar(ctx, "a", "2")
	v, ok := VarFromContext(child, "a")
	require.True(t, ok)
	assert.Equal(t, "2", v)
	v, _ = VarFromContext(ctx, "a")
	assert.Equal(t, "1", v, "parent context is not modified")
	_, ok = VarFromContext(ctx, "b")
	assert.False(t, ok)
}

func TestDriverDialect(t *testing.T) {
	t.Parallel()
	for name, want := range map[string]string{
		dialect.Postgres: dialect.Postgres,
		dialect.MySQL:    dialect.MySQL,
		dialect.SQLite:   dialect.SQLite,
		"sqlite3":        dialect.SQLite,
		"pgx":            "pgx",
	} {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		assert.Equal(t, want, OpenDB(name, db).Dialect(), name)
		mock.ExpectClose()
		require.NoError(t, db.Close())
		require.NoError(t, mock.ExpectationsWereMet())
	}
}

func TestDriverExecQuery(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	drv := OpenDB(dialect.Postgres, db)

	t.Run("Query", func(t *testing.T) {
		mock.ExpectQuery(`SELECT name FROM users WHERE id = \$1`).
			WithArgs(1).
			WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("a8m"))
		rows := &Rows{}
		require.NoError(t, drv.Query(context.Background(), "SELECT name FROM users WHERE id = $1", []any{1}, rows))
		require.True(t, rows.Next())
		var name string
		require.NoError(t, rows.Scan(&name))
		assert.Equal(t, "a8m", name)
		require.NoError(t, rows.Close())
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ExecResult", func(t *testing.T) {
		mock.ExpectExec("UPDATE users").WillReturnResult(sqlmock.NewResult(0, 3))
		var res Result
		require.NoError(t, drv.Exec(context.Background(), "UPDATE users SET a = 1", []any{}, &res))
		n, err := res.RowsAffected()
		require.NoError(t, err)
		assert.EqualValues(t, 3, n)
	})

	t.Run("InvalidArgs", func(t *testing.T) {
		err := drv.Exec(context.Background(), "DELETE FROM users", 1, nil)
		require.Error(t, err)
		err = drv.Query(context.Background(), "SELECT 1", []any{}, new(int))
		require.Error(t, err)
	})

	t.Run("Error", func(t *testing.T) {
		mock.ExpectExec("DELETE").WillReturnError(errors.New("constraint violation"))
		err := drv.Exec(context.Background(), "DELETE FROM users", []any{}, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "constraint violation")
	})
}

func TestDriverTx(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	drv := OpenDB(dialect.SQLite, db)

	t.Run("Commit", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO users").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()
		tx, err := drv.Tx(context.Background())
		require.NoError(t, err)
		require.NoError(t, tx.Exec(context.Background(), "INSERT INTO users DEFAULT VALUES", []any{}, nil))
		require.NoError(t, tx.Commit())
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Rollback", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO users").WillReturnError(errors.New("boom"))
		mock.ExpectRollback()
		tx, err := drv.Tx(context.Background())
		require.NoError(t, err)
		require.Error(t, tx.Exec(context.Background(), "INSERT INTO users DEFAULT VALUES", []any{}, nil))
		require.NoError(t, tx.Rollback())
		require.NoError(t, mock.ExpectationsWereMet())
	})
}
