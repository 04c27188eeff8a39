// Package builder translates parsed client operations into query graphs.
//
// Every builder function receives the graph it writes into and performs no
// I/O: it only creates nodes and edges, and reports malformed input as a
// *qengine.BuilderError before anything runs. The shape of a graph depends
// on the capabilities of the connector and on the relation mode of the
// catalog, both exposed by a QuerySchema.
//
// Nested writes are processed per relation in the declaration order of the
// model, and per relation in the order create, connect, disconnect, update,
// delete, so that equal requests always produce equal graphs.
package builder

import (
	"time"

	"github.com/syssam/qengine"
	"github.com/syssam/qengine/connector"
	"github.com/syssam/qengine/document"
	"github.com/syssam/qengine/graph"
	"github.com/syssam/qengine/schema"
)

// QuerySchema is the view of the datasource the builder works against.
type QuerySchema struct {
	catalog *schema.Catalog
	caps    connector.Capabilities
	now     func() time.Time
}

// SchemaOption configures a QuerySchema.
type SchemaOption func(*QuerySchema)

// WithClock sets the clock used for updatedAt and now() defaults.
func WithClock(now func() time.Time) SchemaOption {
	return func(s *QuerySchema) {
		s.now = now
	}
}

// NewQuerySchema returns the query schema of a catalog served by a connector
// with the given capabilities.
func NewQuerySchema(c *schema.Catalog, caps connector.Capabilities, opts ...SchemaOption) *QuerySchema {
	s := &QuerySchema{catalog: c, caps: caps, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Catalog returns the model catalog.
func (s *QuerySchema) Catalog() *schema.Catalog { return s.catalog }

// HasCapability reports if the connector supports c.
func (s *QuerySchema) HasCapability(c connector.Capability) bool { return s.caps.Has(c) }

// RelationMode returns the relation mode of the catalog.
func (s *QuerySchema) RelationMode() schema.RelationMode { return s.catalog.Mode }

// Build returns the graph of a client operation.
func Build(s *QuerySchema, op *document.Operation) (*graph.QueryGraph, error) {
	g := graph.New()
	if err := BuildInto(g, s, op); err != nil {
		return nil, err
	}
	return g, nil
}

// BuildInto adds the nodes of a client operation to g.
func BuildInto(g *graph.QueryGraph, s *QuerySchema, op *document.Operation) error {
	if err := op.Validate(); err != nil {
		return &qengine.BuilderError{Kind: qengine.InputError, Msg: "invalid operation", Err: err}
	}
	switch op.Action {
	case document.ExecuteRaw:
		return ExecuteRaw(g, op)
	case document.QueryRaw:
		return QueryRaw(g, op)
	}
	m, ok := s.catalog.Model(op.Model)
	if !ok {
		return qengine.NewBuilderError(qengine.InputError, "unknown model %q", op.Model)
	}
	switch op.Action {
	case document.FindUnique:
		return FindUnique(g, s, m, op, false)
	case document.FindUniqueOrThrow:
		return FindUnique(g, s, m, op, true)
	case document.FindFirst:
		return FindFirst(g, s, m, op, false)
	case document.FindFirstOrThrow:
		return FindFirst(g, s, m, op, true)
	case document.FindMany:
		return FindMany(g, s, m, op)
	case document.Aggregate:
		return Aggregate(g, s, m, op)
	case document.CreateOne:
		return CreateRecord(g, s, m, op)
	case document.CreateMany:
		return CreateManyRecords(g, s, m, op)
	case document.UpdateOne:
		return UpdateRecord(g, s, m, op)
	case document.UpdateMany:
		return UpdateManyRecords(g, s, m, op, false)
	case document.UpdateManyAndReturn:
		return UpdateManyRecords(g, s, m, op, true)
	case document.UpsertOne:
		return UpsertRecord(g, s, m, op)
	case document.DeleteOne:
		return DeleteRecord(g, s, m, op)
	case document.DeleteMany:
		return DeleteManyRecords(g, s, m, op)
	}
	return qengine.NewBuilderError(qengine.InputError, "unsupported action %q", op.Action)
}

// resultName is the name of the top-level result of an operation.
func resultName(op *document.Operation) string {
	return string(op.Action) + op.Model
}

func inputErr(err error, format string, args ...any) error {
	if qengine.IsBuilderError(err) {
		return err
	}
	be := qengine.NewBuilderError(qengine.InputError, format, args...)
	be.Err = err
	return be
}

// edge is an edge to insert with createEdges.
type edge struct {
	from, to graph.NodeRef
	dep      graph.Dependency
}

// createEdges inserts edges in order and stops at the first failure.
func createEdges(g *graph.QueryGraph, edges ...edge) error {
	for _, e := range edges {
		if err := g.CreateEdge(e.from, e.to, e.dep); err != nil {
			return err
		}
	}
	return nil
}
