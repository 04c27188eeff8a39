package query

import (
	"fmt"

	"github.com/syssam/qengine/schema"
)

// Query is a single physical operation: a ReadQuery or a WriteQuery.
type Query interface {
	fmt.Stringer
	// TargetModel returns the model the operation acts on, or nil for raw queries.
	TargetModel() *schema.Model
	query()
}

// ReadQuery is implemented by the read variants: *ReadOneRecord,
// *ReadManyRecords, *RelatedRecords and *AggregateRecords.
type ReadQuery interface {
	Query
	read()
}

// WriteQuery is implemented by the write variants.
type WriteQuery interface {
	Query
	write()
}

// FilteredWrite is implemented by writes applying to the records of a RecordFilter.
type FilteredWrite interface {
	WriteQuery
	Where() *RecordFilter
}

// ArgsWrite is implemented by writes carrying field writes.
type ArgsWrite interface {
	WriteQuery
	WriteArgs() *WriteArgs
}

// ReadOneRecord reads at most one record.
type ReadOneRecord struct {
	Name      string
	Model     *schema.Model
	Args      QueryArguments
	Selection FieldSelection
	Order     []string // Output order of scalar and nested names.
	Nested    []*RelatedRecords
}

// ReadManyRecords reads a list of records.
type ReadManyRecords struct {
	Name      string
	Model     *schema.Model
	Args      QueryArguments
	Selection FieldSelection
	Order     []string
	Nested    []*RelatedRecords
}

// RelatedRecords reads the records related to already resolved parents.
// ParentIDs hold the values of the parent linking fields.
type RelatedRecords struct {
	Name        string
	ParentField *schema.RelationField
	ParentIDs   []SelectionResult
	Args        QueryArguments
	Selection   FieldSelection
	Order       []string
	Nested      []*RelatedRecords
}

// AggregateRecords computes aggregations over the records matching Args.
type AggregateRecords struct {
	Name       string
	Model      *schema.Model
	Args       QueryArguments
	Selections []AggregationSelection
}

// CreateRecord inserts one record.
type CreateRecord struct {
	Name      string
	Model     *schema.Model
	Args      *WriteArgs
	Selection FieldSelection
	Order     []string
}

// CreateManyRecords inserts a list of records without returning them.
type CreateManyRecords struct {
	Name           string
	Model          *schema.Model
	Args           []*WriteArgs
	SkipDuplicates bool
}

// UpdateRecordWithSelection updates one record and returns its selection
// from the same statement.
type UpdateRecordWithSelection struct {
	Name      string
	Model     *schema.Model
	Filter    RecordFilter
	Args      *WriteArgs
	Selection FieldSelection
	Order     []string
}

// UpdateRecordWithoutSelection updates one record and returns its primary identifier.
type UpdateRecordWithoutSelection struct {
	Model  *schema.Model
	Filter RecordFilter
	Args   *WriteArgs
}

// UpdateManyRecords updates every record of Filter and returns the count.
type UpdateManyRecords struct {
	Name   string
	Model  *schema.Model
	Filter RecordFilter
	Args   *WriteArgs
}

// DeleteRecord deletes one record. With a selection the deleted record is
// returned from the same statement.
type DeleteRecord struct {
	Name      string
	Model     *schema.Model
	Filter    RecordFilter
	Selection FieldSelection
	Order     []string
}

// DeleteManyRecords deletes every record of Filter and returns the count.
type DeleteManyRecords struct {
	Name   string
	Model  *schema.Model
	Filter RecordFilter
}

// ConnectRecords links a parent to children through a m:n relation.
type ConnectRecords struct {
	ParentField *schema.RelationField
	ParentID    SelectionResult
	ChildIDs    []SelectionResult
}

// DisconnectRecords unlinks children from a parent of a m:n relation.
type DisconnectRecords struct {
	ParentField *schema.RelationField
	ParentID    SelectionResult
	ChildIDs    []SelectionResult
}

// NativeUpsert inserts a record, or updates it when Conflict already exists,
// in one statement.
type NativeUpsert struct {
	Name      string
	Model     *schema.Model
	Filter    Filter
	Conflict  FieldSelection
	Create    *WriteArgs
	Update    *WriteArgs
	Selection FieldSelection
	Order     []string
}

// ExecuteRaw runs a raw statement and returns the affected row count.
type ExecuteRaw struct {
	SQL    string
	Params []any
}

// QueryRaw runs a raw query and returns its rows.
type QueryRaw struct {
	SQL    string
	Params []any
}

func (*ReadOneRecord) query()                {}
func (*ReadManyRecords) query()              {}
func (*RelatedRecords) query()               {}
func (*AggregateRecords) query()             {}
func (*CreateRecord) query()                 {}
func (*CreateManyRecords) query()            {}
func (*UpdateRecordWithSelection) query()    {}
func (*UpdateRecordWithoutSelection) query() {}
func (*UpdateManyRecords) query()            {}
func (*DeleteRecord) query()                 {}
func (*DeleteManyRecords) query()            {}
func (*ConnectRecords) query()               {}
func (*DisconnectRecords) query()            {}
func (*NativeUpsert) query()                 {}
func (*ExecuteRaw) query()                   {}
func (*QueryRaw) query()                     {}

func (*ReadOneRecord) read()    {}
func (*ReadManyRecords) read()  {}
func (*RelatedRecords) read()   {}
func (*AggregateRecords) read() {}

func (*CreateRecord) write()                 {}
func (*CreateManyRecords) write()            {}
func (*UpdateRecordWithSelection) write()    {}
func (*UpdateRecordWithoutSelection) write() {}
func (*UpdateManyRecords) write()            {}
func (*DeleteRecord) write()                 {}
func (*DeleteManyRecords) write()            {}
func (*ConnectRecords) write()               {}
func (*DisconnectRecords) write()            {}
func (*NativeUpsert) write()                 {}
func (*ExecuteRaw) write()                   {}
func (*QueryRaw) write()                     {}

func (q *ReadOneRecord) TargetModel() *schema.Model                { return q.Model }
func (q *ReadManyRecords) TargetModel() *schema.Model              { return q.Model }
func (q *RelatedRecords) TargetModel() *schema.Model               { return q.ParentField.Related }
func (q *AggregateRecords) TargetModel() *schema.Model             { return q.Model }
func (q *CreateRecord) TargetModel() *schema.Model                 { return q.Model }
func (q *CreateManyRecords) TargetModel() *schema.Model            { return q.Model }
func (q *UpdateRecordWithSelection) TargetModel() *schema.Model    { return q.Model }
func (q *UpdateRecordWithoutSelection) TargetModel() *schema.Model { return q.Model }
func (q *UpdateManyRecords) TargetModel() *schema.Model            { return q.Model }
func (q *DeleteRecord) TargetModel() *schema.Model                 { return q.Model }
func (q *DeleteManyRecords) TargetModel() *schema.Model            { return q.Model }
func (q *ConnectRecords) TargetModel() *schema.Model               { return q.ParentField.Model }
func (q *DisconnectRecords) TargetModel() *schema.Model            { return q.ParentField.Model }
func (q *NativeUpsert) TargetModel() *schema.Model                 { return q.Model }
func (*ExecuteRaw) TargetModel() *schema.Model                     { return nil }
func (*QueryRaw) TargetModel() *schema.Model                       { return nil }

func (q *UpdateRecordWithSelection) Where() *RecordFilter    { return &q.Filter }
func (q *UpdateRecordWithoutSelection) Where() *RecordFilter { return &q.Filter }
func (q *UpdateManyRecords) Where() *RecordFilter            { return &q.Filter }
func (q *DeleteRecord) Where() *RecordFilter                 { return &q.Filter }
func (q *DeleteManyRecords) Where() *RecordFilter            { return &q.Filter }

func (q *CreateRecord) WriteArgs() *WriteArgs                 { return q.Args }
func (q *UpdateRecordWithSelection) WriteArgs() *WriteArgs    { return q.Args }
func (q *UpdateRecordWithoutSelection) WriteArgs() *WriteArgs { return q.Args }
func (q *UpdateManyRecords) WriteArgs() *WriteArgs            { return q.Args }

func (q *ReadOneRecord) String() string {
	return fmt.Sprintf("ReadOneRecord(%s, %s)", q.Model, filterString(q.Args.Filter))
}

func (q *ReadManyRecords) String() string {
	return fmt.Sprintf("ReadManyRecords(%s, %s)", q.Model, filterString(q.Args.Filter))
}

func (q *RelatedRecords) String() string {
	return fmt.Sprintf("RelatedRecords(%s, %d parents)", q.ParentField, len(q.ParentIDs))
}

func (q *AggregateRecords) String() string {
	return fmt.Sprintf("AggregateRecords(%s, %s)", q.Model, filterString(q.Args.Filter))
}

func (q *CreateRecord) String() string {
	return fmt.Sprintf("CreateRecord(%s, %s)", q.Model, q.Args)
}

func (q *CreateManyRecords) String() string {
	return fmt.Sprintf("CreateManyRecords(%s, %d records)", q.Model, len(q.Args))
}

func (q *UpdateRecordWithSelection) String() string {
	return fmt.Sprintf("UpdateRecordWithSelection(%s, %s, %s)", q.Model, q.Filter, q.Args)
}

func (q *UpdateRecordWithoutSelection) String() string {
	return fmt.Sprintf("UpdateRecordWithoutSelection(%s, %s, %s)", q.Model, q.Filter, q.Args)
}

func (q *UpdateManyRecords) String() string {
	return fmt.Sprintf("UpdateManyRecords(%s, %s, %s)", q.Model, q.Filter, q.Args)
}

func (q *DeleteRecord) String() string {
	return fmt.Sprintf("DeleteRecord(%s, %s)", q.Model, q.Filter)
}

func (q *DeleteManyRecords) String() string {
	return fmt.Sprintf("DeleteManyRecords(%s, %s)", q.Model, q.Filter)
}

func (q *ConnectRecords) String() string {
	return fmt.Sprintf("ConnectRecords(%s, %v, %v)", q.ParentField, q.ParentID, q.ChildIDs)
}

func (q *DisconnectRecords) String() string {
	return fmt.Sprintf("DisconnectRecords(%s, %v, %v)", q.ParentField, q.ParentID, q.ChildIDs)
}

func (q *NativeUpsert) String() string {
	return fmt.Sprintf("NativeUpsert(%s, %s)", q.Model, filterString(q.Filter))
}

func (q *ExecuteRaw) String() string { return fmt.Sprintf("ExecuteRaw(%q)", q.SQL) }
func (q *QueryRaw) String() string   { return fmt.Sprintf("QueryRaw(%q)", q.SQL) }

func filterString(f Filter) string {
	if f == nil {
		return Empty.String()
	}
	return f.String()
}
