package sqlconnector_test

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/qengine"
	"github.com/syssam/qengine/connector/sqlconnector"
	"github.com/syssam/qengine/dialect"
	"github.com/syssam/qengine/dialect/sql"
	"github.com/syssam/qengine/query"
)

func newMySQL(t *testing.T) (*sqlconnector.Connector, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	conn, err := sqlconnector.New(sql.OpenDB(dialect.MySQL, db))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return conn, mock
}

func TestMySQLCreateRecord(t *testing.T) {
	t.Parallel()
	users, _, _ := catalogModels(t)
	conn, mock := newMySQL(t)

	mock.ExpectExec("INSERT INTO `users` (`name`, `email`) VALUES (?, ?)").
		WithArgs("a8m", "a8m@x.io").
		WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectQuery("SELECT `id`, `name` FROM `users` WHERE `id` = ? ORDER BY `id` LIMIT ?").
		WithArgs(int64(7), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(7), "a8m"))
	rec, err := conn.CreateRecord(context.Background(), users, writeArgs(t, users, "name", "a8m", "email", "a8m@x.io"), sel(t, users, "id", "name"))
	require.NoError(t, err)
	assert.Equal(t, []any{int64(7), "a8m"}, rec.Values)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLUpdateRecord(t *testing.T) {
	t.Parallel()
	users, _, _ := catalogModels(t)
	conn, mock := newMySQL(t)

	mock.ExpectQuery("SELECT `id` FROM `users` WHERE `email` = ? ORDER BY `id` LIMIT ?").
		WithArgs("a8m@x.io", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectExec("UPDATE `users` SET `name` = ?, `age` = `users`.`age` + ? WHERE `id` = ?").
		WithArgs("ariel", int64(1), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT `id`, `name` FROM `users` WHERE `id` = ? ORDER BY `id` LIMIT ?").
		WithArgs(int64(7), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(7), "ariel"))

	args := writeArgs(t, users, "name", "ariel")
	args.Insert(fieldOf(t, users, "age"), query.WriteOperation{Op: query.OpIncrement, Value: int64(1)})
	rf := query.NewRecordFilter(query.Eq(fieldOf(t, users, "email"), "a8m@x.io"))
	rec, err := conn.UpdateRecord(context.Background(), users, rf, args, sel(t, users, "id", "name"))
	require.NoError(t, err)
	assert.Equal(t, []any{int64(7), "ariel"}, rec.Values)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLConstraintError(t *testing.T) {
	t.Parallel()
	users, _, _ := catalogModels(t)
	conn, mock := newMySQL(t)

	mock.ExpectExec("DELETE FROM `users`").
		WillReturnError(&mysql.MySQLError{Number: 1451, Message: "Cannot delete or update a parent row"})
	_, err := conn.DeleteRecords(context.Background(), users, query.NewRecordFilter(nil))
	var cerr qengine.ConstraintError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, qengine.ForeignKeyConstraint, cerr.Kind)

	_, err = conn.NativeUpsert(context.Background(), &query.NativeUpsert{Model: users})
	assert.Error(t, err, "mysql has no native upsert")
	require.NoError(t, mock.ExpectationsWereMet())
}
