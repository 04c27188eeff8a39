// Package connector defines the interface between the query engine and a
// datasource: read and write primitives executing one physical operation,
// transaction scopes and capability flags consulted by the graph builder.
package connector

import (
	"context"
	"strings"

	"github.com/syssam/qengine/query"
	"github.com/syssam/qengine/schema"
)

// Capability is a feature a datasource may support.
type Capability uint16

// Capabilities consulted by the builder.
const (
	// UpdateReturning returns updated rows from the UPDATE statement.
	UpdateReturning Capability = 1 << iota
	// InsertReturning returns inserted rows from the INSERT statement.
	InsertReturning
	// DeleteReturning returns deleted rows from the DELETE statement.
	DeleteReturning
	// NativeUpsert supports INSERT .. ON CONFLICT DO UPDATE.
	NativeUpsert
	// CreateMany supports multi-row inserts.
	CreateMany
	// CreateSkipDuplicates supports ignoring conflicting rows on multi-row inserts.
	CreateSkipDuplicates
)

var capabilityNames = []struct {
	c    Capability
	name string
}{
	{UpdateReturning, "UpdateReturning"},
	{InsertReturning, "InsertReturning"},
	{DeleteReturning, "DeleteReturning"},
	{NativeUpsert, "NativeUpsert"},
	{CreateMany, "CreateMany"},
	{CreateSkipDuplicates, "CreateSkipDuplicates"},
}

// Capabilities is a set of capabilities.
type Capabilities Capability

// NewCapabilities returns the set of the given capabilities.
func NewCapabilities(cs ...Capability) Capabilities {
	var set Capabilities
	for _, c := range cs {
		set |= Capabilities(c)
	}
	return set
}

// Has reports if c is part of the set.
func (s Capabilities) Has(c Capability) bool { return s&Capabilities(c) != 0 }

// Without returns the set without c.
func (s Capabilities) Without(c Capability) Capabilities { return s &^ Capabilities(c) }

// String implements fmt.Stringer.
func (s Capabilities) String() string {
	var names []string
	for _, cn := range capabilityNames {
		if s.Has(cn.c) {
			names = append(names, cn.name)
		}
	}
	return strings.Join(names, "|")
}

// ReadOperations are the read primitives of a datasource.
type ReadOperations interface {
	// GetSingleRecord returns the first record matching args, or nil.
	GetSingleRecord(ctx context.Context, m *schema.Model, args query.QueryArguments, sel query.FieldSelection) (*query.SingleRecord, error)
	// GetManyRecords returns the records matching args.
	GetManyRecords(ctx context.Context, m *schema.Model, args query.QueryArguments, sel query.FieldSelection) (*query.ManyRecords, error)
	// GetRelatedRecords returns the records related to the parents through
	// rf, together with the parent linking values of every record. args
	// apply per parent.
	GetRelatedRecords(ctx context.Context, rf *schema.RelationField, parents []query.SelectionResult, args query.QueryArguments, sel query.FieldSelection) (*query.ManyRecords, []query.SelectionResult, error)
	// Aggregate computes aggregations over the records matching args.
	Aggregate(ctx context.Context, m *schema.Model, args query.QueryArguments, sels []query.AggregationSelection) ([]query.AggregationValue, error)
	// QueryRaw runs a raw query.
	QueryRaw(ctx context.Context, sql string, params []any) (*query.RawResult, error)
}

// WriteOperations are the write primitives of a datasource.
type WriteOperations interface {
	// CreateRecord inserts a record and returns sel, which always contains
	// the primary identifier.
	CreateRecord(ctx context.Context, m *schema.Model, args *query.WriteArgs, sel query.FieldSelection) (*query.SingleRecord, error)
	// CreateRecords inserts many records and returns the inserted count.
	CreateRecords(ctx context.Context, m *schema.Model, args []*query.WriteArgs, skipDuplicates bool) (int, error)
	// UpdateRecord updates at most one record and returns sel of the
	// updated record, or nil if no record matched. With an empty sel only
	// the primary identifier is returned.
	UpdateRecord(ctx context.Context, m *schema.Model, rf query.RecordFilter, args *query.WriteArgs, sel query.FieldSelection) (*query.SingleRecord, error)
	// UpdateRecords updates every record of rf and returns the count.
	UpdateRecords(ctx context.Context, m *schema.Model, rf query.RecordFilter, args *query.WriteArgs) (int, error)
	// DeleteRecord deletes at most one record and returns sel of the deleted
	// record, or nil if no record matched.
	DeleteRecord(ctx context.Context, m *schema.Model, rf query.RecordFilter, sel query.FieldSelection) (*query.SingleRecord, error)
	// DeleteRecords deletes every record of rf and returns the count.
	DeleteRecords(ctx context.Context, m *schema.Model, rf query.RecordFilter) (int, error)
	// ConnectRecords links the children to the parent through a m:n relation.
	ConnectRecords(ctx context.Context, rf *schema.RelationField, parent query.SelectionResult, children []query.SelectionResult) error
	// DisconnectRecords unlinks the children from the parent of a m:n relation.
	DisconnectRecords(ctx context.Context, rf *schema.RelationField, parent query.SelectionResult, children []query.SelectionResult) error
	// NativeUpsert inserts or updates a record in one statement.
	NativeUpsert(ctx context.Context, u *query.NativeUpsert) (*query.SingleRecord, error)
	// ExecuteRaw runs a raw statement and returns the affected row count.
	ExecuteRaw(ctx context.Context, sql string, params []any) (int, error)
}

// Queryable executes single physical operations.
type Queryable interface {
	ReadOperations
	WriteOperations
}

// Transaction is a Queryable scoped to an all-or-nothing transaction.
type Transaction interface {
	Queryable
	Commit() error
	Rollback() error
}

// Connector is a datasource. Operations executed on the connector itself
// run outside of any transaction.
type Connector interface {
	Queryable
	// Begin starts a transaction.
	Begin(ctx context.Context) (Transaction, error)
	// Capabilities returns the supported capabilities.
	Capabilities() Capabilities
	// Name returns the name of the datasource dialect.
	Name() string
	// Close releases the datasource.
	Close() error
}
