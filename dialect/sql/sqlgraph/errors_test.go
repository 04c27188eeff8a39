package sqlgraph_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/qengine"
	"github.com/syssam/qengine/dialect/sql/sqlgraph"
)

type sqlState string

func (s sqlState) Error() string    { return "pgx: " + string(s) }
func (s sqlState) SQLState() string { return string(s) }

func TestConstraintError(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		kind qengine.ConstraintKind
	}{
		{"PostgresUnique", &pq.Error{Code: "23505", Message: "duplicate key"}, qengine.UniqueConstraint},
		{"PostgresForeignKey", &pq.Error{Code: "23503"}, qengine.ForeignKeyConstraint},
		{"PostgresCheck", &pq.Error{Code: "23514"}, qengine.CheckConstraint},
		{"MySQLDuplicate", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}, qengine.UniqueConstraint},
		{"MySQLParentRow", &mysql.MySQLError{Number: 1451}, qengine.ForeignKeyConstraint},
		{"MySQLChildRow", &mysql.MySQLError{Number: 1452}, qengine.ForeignKeyConstraint},
		{"SQLState", sqlState("23505"), qengine.UniqueConstraint},
		{"SQLiteUnique", errors.New("constraint failed: UNIQUE constraint failed: users.email (2067)"), qengine.UniqueConstraint},
		{"SQLiteForeignKey", errors.New("constraint failed: FOREIGN KEY constraint failed (787)"), qengine.ForeignKeyConstraint},
		{"Wrapped", fmt.Errorf("dialect/sql: exec: %w", &pq.Error{Code: "23505"}), qengine.UniqueConstraint},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := sqlgraph.ConstraintError(tt.err)
			var cerr qengine.ConstraintError
			require.ErrorAs(t, err, &cerr)
			assert.Equal(t, tt.kind, cerr.Kind)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestConstraintErrorPassThrough(t *testing.T) {
	t.Parallel()
	assert.NoError(t, sqlgraph.ConstraintError(nil))

	err := errors.New("connection refused")
	assert.Same(t, err, sqlgraph.ConstraintError(err))

	pgErr := &pq.Error{Code: "42P01"}
	assert.Equal(t, error(pgErr), sqlgraph.ConstraintError(pgErr))

	cerr := qengine.NewConstraintError(qengine.CheckConstraint, "age", nil)
	assert.Equal(t, cerr, sqlgraph.ConstraintError(cerr))
}

func TestIsConstraintKind(t *testing.T) {
	t.Parallel()
	assert.True(t, sqlgraph.IsUniqueConstraintError(&mysql.MySQLError{Number: 1062}))
	assert.False(t, sqlgraph.IsUniqueConstraintError(&mysql.MySQLError{Number: 1452}))
	assert.True(t, sqlgraph.IsForeignKeyConstraintError(errors.New("pq: insert violates foreign key constraint \"fk\"")))
	assert.True(t, sqlgraph.IsCheckConstraintError(errors.New("CHECK constraint failed: age")))
	assert.False(t, sqlgraph.IsCheckConstraintError(nil))
}
