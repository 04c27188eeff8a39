// Package sqlgraph classifies the errors of SQL drivers into the constraint
// errors of qengine.
package sqlgraph

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"

	"github.com/syssam/qengine"
)

// PostgreSQL SQLSTATE codes of class 23.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

// MySQL error numbers.
const (
	mysqlDuplicateEntry   = 1062
	mysqlForeignKeyParent = 1451 // cannot delete or update a parent row
	mysqlForeignKeyChild  = 1452 // cannot add or update a child row
	mysqlCheckViolation   = 3819
)

// sqlStateError is implemented by pgx and other drivers exposing SQLSTATE.
type sqlStateError interface {
	SQLState() string
}

// ConstraintError returns err as a qengine.ConstraintError if it resulted
// from a constraint violation, and err unchanged otherwise.
func ConstraintError(err error) error {
	if err == nil || qengine.IsConstraintError(err) {
		return err
	}
	if kind, ok := constraintKind(err); ok {
		return qengine.NewConstraintError(kind, err.Error(), err)
	}
	return err
}

// IsUniqueConstraintError reports if the error resulted from a unique
// constraint violation.
func IsUniqueConstraintError(err error) bool {
	kind, ok := constraintKind(err)
	return ok && kind == qengine.UniqueConstraint
}

// IsForeignKeyConstraintError reports if the error resulted from a foreign
// key constraint violation.
func IsForeignKeyConstraintError(err error) bool {
	kind, ok := constraintKind(err)
	return ok && kind == qengine.ForeignKeyConstraint
}

// IsCheckConstraintError reports if the error resulted from a check
// constraint violation.
func IsCheckConstraintError(err error) bool {
	kind, ok := constraintKind(err)
	return ok && kind == qengine.CheckConstraint
}

func constraintKind(err error) (qengine.ConstraintKind, bool) {
	if err == nil {
		return 0, false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pgKind(string(pqErr.Code))
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return mysqlKind(myErr.Number)
	}
	if e, ok := asError[sqlStateError](err); ok {
		if kind, ok := pgKind(e.SQLState()); ok {
			return kind, true
		}
	}
	// modernc.org/sqlite reports constraint failures in the message only.
	msg := err.Error()
	switch {
	case containsAny(msg, "UNIQUE constraint failed", "violates unique constraint", "Error 1062"):
		return qengine.UniqueConstraint, true
	case containsAny(msg, "FOREIGN KEY constraint failed", "violates foreign key constraint", "Error 1451", "Error 1452"):
		return qengine.ForeignKeyConstraint, true
	case containsAny(msg, "CHECK constraint failed", "violates check constraint", "Error 3819"):
		return qengine.CheckConstraint, true
	}
	return 0, false
}

func pgKind(code string) (qengine.ConstraintKind, bool) {
	switch code {
	case pgUniqueViolation:
		return qengine.UniqueConstraint, true
	case pgForeignKeyViolation:
		return qengine.ForeignKeyConstraint, true
	case pgCheckViolation:
		return qengine.CheckConstraint, true
	}
	return 0, false
}

func mysqlKind(n uint16) (qengine.ConstraintKind, bool) {
	switch n {
	case mysqlDuplicateEntry:
		return qengine.UniqueConstraint, true
	case mysqlForeignKeyParent, mysqlForeignKeyChild:
		return qengine.ForeignKeyConstraint, true
	case mysqlCheckViolation:
		return qengine.CheckConstraint, true
	}
	return 0, false
}

// asError returns the first error in the chain implementing T.
func asError[T any](err error) (T, bool) {
	var target T
	for err != nil {
		if e, ok := err.(T); ok {
			return e, true
		}
		err = errors.Unwrap(err)
	}
	return target, false
}

func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
