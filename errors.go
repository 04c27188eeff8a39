package qengine

import (
	"errors"
	"fmt"
	"strings"
)

// Standard sentinel errors for common failures.
var (
	// ErrRecordNotFound is returned when a record required by an operation does not exist.
	ErrRecordNotFound = errors.New("qengine: record not found")

	// ErrRelationViolation is returned when a change would break a required relation.
	ErrRelationViolation = errors.New("qengine: relation violation")

	// ErrIncompleteConnect is returned when fewer records than requested were resolved for a connect.
	ErrIncompleteConnect = errors.New("qengine: incomplete connect")
)

// DataOperation names the operation a missing record was required for.
type DataOperation string

// Data operations reported by RecordNotFoundError.
const (
	OpQuery            DataOperation = "query"
	OpUpdate           DataOperation = "update"
	OpUpsert           DataOperation = "upsert"
	OpDelete           DataOperation = "delete"
	OpConnect          DataOperation = "connect"
	OpDisconnect       DataOperation = "disconnect"
	OpNestedUpdate     DataOperation = "nested update"
	OpNestedDelete     DataOperation = "nested delete"
	OpNestedConnect    DataOperation = "nested connect"
	OpNestedDisconnect DataOperation = "nested disconnect"
)

// ExpectationError is implemented by the user-facing errors raised when an
// intermediate result does not have the expected number of rows.
type ExpectationError interface {
	error
	// WithRowCount returns a copy of the error carrying the observed row count.
	WithRowCount(n int) ExpectationError
}

// RecordNotFoundError reports a record that was required by an operation but not found.
type RecordNotFoundError struct {
	Op    DataOperation
	Model string // Optional: model the record belongs to.
	Cause string // Optional: additional detail.
}

// Error returns the error string.
func (e *RecordNotFoundError) Error() string {
	var sb strings.Builder
	sb.WriteString("qengine: ")
	if e.Model != "" {
		sb.WriteString(e.Model)
		sb.WriteString(": ")
	}
	if e.Op == "" || e.Op == OpQuery {
		sb.WriteString("no record found for a query")
	} else {
		fmt.Fprintf(&sb, "record to %s not found", e.Op)
	}
	if e.Cause != "" {
		sb.WriteString(" (")
		sb.WriteString(e.Cause)
		sb.WriteString(")")
	}
	return sb.String()
}

// Is reports whether the target error matches RecordNotFoundError.
// This allows errors.Is(err, ErrRecordNotFound) to return true.
func (e *RecordNotFoundError) Is(err error) bool {
	return err == ErrRecordNotFound
}

// WithRowCount implements ExpectationError. The row count is not part of the message.
func (e *RecordNotFoundError) WithRowCount(int) ExpectationError {
	cp := *e
	return &cp
}

// MissingRecord returns a RecordNotFoundError for the given operation.
func MissingRecord(op DataOperation) *RecordNotFoundError {
	return &RecordNotFoundError{Op: op}
}

// MissingRecordFor returns a RecordNotFoundError for the given operation on a model.
func MissingRecordFor(model string, op DataOperation) *RecordNotFoundError {
	return &RecordNotFoundError{Op: op, Model: model}
}

// IsRecordNotFound returns true if the error is a RecordNotFoundError.
func IsRecordNotFound(err error) bool {
	if err == nil {
		return false
	}
	var e *RecordNotFoundError
	return errors.As(err, &e) || errors.Is(err, ErrRecordNotFound)
}

// IncompleteConnectInputError reports that fewer related records were resolved
// than the client asked to connect.
type IncompleteConnectInputError struct {
	Expected int
	Actual   int // -1 if unknown
}

// Error returns the error string.
func (e *IncompleteConnectInputError) Error() string {
	if e.Actual >= 0 {
		return fmt.Sprintf("qengine: expected %d records to be connected, found only %d", e.Expected, e.Actual)
	}
	return fmt.Sprintf("qengine: expected %d records to be connected", e.Expected)
}

// Is reports whether the target error matches ErrIncompleteConnect.
func (e *IncompleteConnectInputError) Is(err error) bool {
	return err == ErrIncompleteConnect
}

// WithRowCount implements ExpectationError.
func (e *IncompleteConnectInputError) WithRowCount(n int) ExpectationError {
	return &IncompleteConnectInputError{Expected: e.Expected, Actual: n}
}

// IncompleteConnectInput returns an IncompleteConnectInputError expecting n rows.
func IncompleteConnectInput(expected int) *IncompleteConnectInputError {
	return &IncompleteConnectInputError{Expected: expected, Actual: -1}
}

// IsIncompleteConnect returns true if the error is an IncompleteConnectInputError.
func IsIncompleteConnect(err error) bool {
	if err == nil {
		return false
	}
	var e *IncompleteConnectInputError
	return errors.As(err, &e)
}

// RelationViolationError reports a change that would violate a required relation.
type RelationViolationError struct {
	Relation string
	ModelA   string
	ModelB   string
}

// Error returns the error string.
func (e *RelationViolationError) Error() string {
	return fmt.Sprintf("qengine: the change you are trying to make would violate the required relation %q between the %s and %s models",
		e.Relation, e.ModelA, e.ModelB)
}

// Is reports whether the target error matches ErrRelationViolation.
func (e *RelationViolationError) Is(err error) bool {
	return err == ErrRelationViolation
}

// WithRowCount implements ExpectationError.
func (e *RelationViolationError) WithRowCount(int) ExpectationError {
	cp := *e
	return &cp
}

// RelationViolation returns a new RelationViolationError.
func RelationViolation(relation, modelA, modelB string) *RelationViolationError {
	return &RelationViolationError{Relation: relation, ModelA: modelA, ModelB: modelB}
}

// IsRelationViolation returns true if the error is a RelationViolationError.
func IsRelationViolation(err error) bool {
	if err == nil {
		return false
	}
	var e *RelationViolationError
	return errors.As(err, &e)
}

// RecordsNotConnectedError reports records expected to be connected through a relation that are not.
type RecordsNotConnectedError struct {
	Relation string
	Parent   string
	Child    string
	Expected int
	Actual   int
}

// Error returns the error string.
func (e *RecordsNotConnectedError) Error() string {
	msg := fmt.Sprintf("qengine: the records for relation %q between the %s and %s models are not connected",
		e.Relation, e.Parent, e.Child)
	if e.Actual >= 0 {
		msg += fmt.Sprintf(" (expected %d, found %d)", e.Expected, e.Actual)
	}
	return msg
}

// Is reports whether the target error matches ErrRecordNotFound.
func (e *RecordsNotConnectedError) Is(err error) bool {
	return err == ErrRecordNotFound
}

// WithRowCount implements ExpectationError.
func (e *RecordsNotConnectedError) WithRowCount(n int) ExpectationError {
	cp := *e
	cp.Actual = n
	return &cp
}

// RecordsNotConnected returns a new RecordsNotConnectedError expecting n connected rows.
func RecordsNotConnected(relation, parent, child string, expected int) *RecordsNotConnectedError {
	return &RecordsNotConnectedError{Relation: relation, Parent: parent, Child: child, Expected: expected, Actual: -1}
}

// BuilderErrorKind classifies query graph builder errors.
type BuilderErrorKind uint8

// Builder error kinds.
const (
	InputError BuilderErrorKind = iota + 1
	AssertionError
	MissingRequiredArgument
	InvariantViolation
)

func (k BuilderErrorKind) String() string {
	switch k {
	case InputError:
		return "input error"
	case AssertionError:
		return "assertion error"
	case MissingRequiredArgument:
		return "missing required argument"
	case InvariantViolation:
		return "invariant violation"
	default:
		return "builder error"
	}
}

// BuilderError is returned for malformed or contradictory client arguments and
// for structural assertion failures while wiring the query graph.
type BuilderError struct {
	Kind BuilderErrorKind
	Msg  string
	Err  error // Optional underlying error
}

// Error returns the error string.
func (e *BuilderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("qengine: query graph %s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("qengine: query graph %s: %s", e.Kind, e.Msg)
}

// Unwrap returns the underlying error.
func (e *BuilderError) Unwrap() error {
	return e.Err
}

// NewBuilderError returns a new BuilderError.
func NewBuilderError(kind BuilderErrorKind, format string, args ...any) *BuilderError {
	return &BuilderError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// IsBuilderError returns true if the error is a BuilderError.
func IsBuilderError(err error) bool {
	if err == nil {
		return false
	}
	var e *BuilderError
	return errors.As(err, &e)
}

// ConstraintKind classifies database constraint violations.
type ConstraintKind uint8

// Constraint kinds.
const (
	UniqueConstraint ConstraintKind = iota + 1
	ForeignKeyConstraint
	CheckConstraint
)

// ConstraintError represents a database constraint violation error.
type ConstraintError struct {
	Kind ConstraintKind
	msg  string
	wrap error
}

// Error returns the error string.
func (e ConstraintError) Error() string {
	return fmt.Sprintf("qengine: constraint failed: %s", e.msg)
}

// Unwrap returns the underlying error.
func (e ConstraintError) Unwrap() error {
	return e.wrap
}

// NewConstraintError returns a new ConstraintError with the given message.
func NewConstraintError(kind ConstraintKind, msg string, wrap error) error {
	return ConstraintError{Kind: kind, msg: msg, wrap: wrap}
}

// IsConstraintError returns true if the error is a ConstraintError.
func IsConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var e ConstraintError
	return errors.As(err, &e)
}

// IsUniqueConstraintError returns true if the error is a unique ConstraintError.
func IsUniqueConstraintError(err error) bool {
	var e ConstraintError
	return errors.As(err, &e) && e.Kind == UniqueConstraint
}

// InternalError wraps a panic recovered at the request boundary.
type InternalError struct {
	Value any
}

// Error returns the error string.
func (e *InternalError) Error() string {
	return fmt.Sprintf("qengine: internal error: %v", e.Value)
}

// RollbackError wraps an error that occurred during a transaction rollback.
type RollbackError struct {
	Err error // Original error that triggered rollback
}

// Error returns the error string.
func (e *RollbackError) Error() string {
	return fmt.Sprintf("qengine: rollback failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *RollbackError) Unwrap() error {
	return e.Err
}

// AggregateError represents multiple errors collected during an operation.
type AggregateError struct {
	Errors []error
}

// Error returns the error string.
func (e *AggregateError) Error() string {
	if len(e.Errors) == 0 {
		return "qengine: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var sb strings.Builder
	sb.WriteString("qengine: multiple errors:")
	for i, err := range e.Errors {
		fmt.Fprintf(&sb, "\n  [%d] %v", i+1, err)
	}
	return sb.String()
}

// NewAggregateError returns a new AggregateError if there are errors,
// otherwise returns nil.
func NewAggregateError(errs ...error) error {
	var filtered []error
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &AggregateError{Errors: filtered}
}

// Unwrap returns the collected errors.
func (e *AggregateError) Unwrap() []error {
	return e.Errors
}
