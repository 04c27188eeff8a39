// Package document holds parsed client requests: one Operation per logical
// client call, with its argument maps and its output selection.
//
// Argument maps are already decoded, e.g. from JSON, and are never mutated
// by the builder.
package document

import (
	"encoding/json"
	"fmt"
	"io"
)

// Action is the kind of a client operation.
type Action string

// Client operations.
const (
	FindUnique          Action = "findUnique"
	FindUniqueOrThrow   Action = "findUniqueOrThrow"
	FindFirst           Action = "findFirst"
	FindFirstOrThrow    Action = "findFirstOrThrow"
	FindMany            Action = "findMany"
	Aggregate           Action = "aggregate"
	CreateOne           Action = "createOne"
	CreateMany          Action = "createMany"
	UpdateOne           Action = "updateOne"
	UpdateMany          Action = "updateMany"
	UpdateManyAndReturn Action = "updateManyAndReturn"
	UpsertOne           Action = "upsertOne"
	DeleteOne           Action = "deleteOne"
	DeleteMany          Action = "deleteMany"
	ExecuteRaw          Action = "executeRaw"
	QueryRaw            Action = "queryRaw"
)

var actions = map[Action]bool{
	FindUnique: false, FindUniqueOrThrow: false, FindFirst: false, FindFirstOrThrow: false,
	FindMany: false, Aggregate: false, QueryRaw: false,
	CreateOne: true, CreateMany: true, UpdateOne: true, UpdateMany: true, UpdateManyAndReturn: true,
	UpsertOne: true, DeleteOne: true, DeleteMany: true, ExecuteRaw: true,
}

// Valid reports if a is a known action.
func (a Action) Valid() bool {
	_, ok := actions[a]
	return ok
}

// IsWrite reports if the action writes to the datasource.
func (a Action) IsWrite() bool { return actions[a] }

// Argument names.
const (
	ArgWhere          = "where"
	ArgData           = "data"
	ArgCreate         = "create"
	ArgUpdate         = "update"
	ArgTake           = "take"
	ArgSkip           = "skip"
	ArgOrderBy        = "orderBy"
	ArgDistinct       = "distinct"
	ArgCursor         = "cursor"
	ArgSkipDuplicates = "skipDuplicates"
	ArgLimit          = "limit"
	ArgQuery          = "query"
	ArgParameters     = "parameters"
)

// Nested write operations, in the order the builder applies them.
const (
	NestedCreate     = "create"
	NestedConnect    = "connect"
	NestedDisconnect = "disconnect"
	NestedUpdate     = "update"
	NestedDelete     = "delete"
)

// NestedOrder is the processing order of nested writes on one relation.
var NestedOrder = []string{NestedCreate, NestedConnect, NestedDisconnect, NestedUpdate, NestedDelete}

// Operation is one client operation on a model.
type Operation struct {
	Action    Action         `json:"action" yaml:"action"`
	Model     string         `json:"modelName,omitempty" yaml:"model,omitempty"`
	Arguments map[string]any `json:"arguments,omitempty" yaml:"arguments,omitempty"`
	Selection []Field        `json:"selection,omitempty" yaml:"selection,omitempty"`
}

// Field is a selected output field. Relation and aggregation fields carry a
// nested selection; relation fields may carry read arguments.
type Field struct {
	Name      string         `json:"name" yaml:"name"`
	Arguments map[string]any `json:"arguments,omitempty" yaml:"arguments,omitempty"`
	Selection []Field        `json:"selection,omitempty" yaml:"selection,omitempty"`
}

// HasNested reports if any selected field has a nested selection.
func HasNested(sel []Field) bool {
	for _, f := range sel {
		if len(f.Selection) > 0 {
			return true
		}
	}
	return false
}

// Arg returns the argument with the given name.
func (op *Operation) Arg(name string) (any, bool) {
	v, ok := op.Arguments[name]
	return v, ok
}

// Map returns the argument with the given name as a map. A missing argument
// yields a nil map.
func (op *Operation) Map(name string) (map[string]any, error) {
	return MapArg(op.Arguments, name)
}

// MapArg returns args[name] as a map. A missing argument yields a nil map.
func MapArg(args map[string]any, name string) (map[string]any, error) {
	v, ok := args[name]
	if !ok || v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("document: argument %q must be an object, got %T", name, v)
	}
	return m, nil
}

// Validate checks the shape of the operation.
func (op *Operation) Validate() error {
	if !op.Action.Valid() {
		return fmt.Errorf("document: unknown action %q", op.Action)
	}
	if op.Model == "" && op.Action != ExecuteRaw && op.Action != QueryRaw {
		return fmt.Errorf("document: action %s requires a model", op.Action)
	}
	return nil
}

// Request is a single operation or a batch of operations.
type Request struct {
	Batch         []Operation `json:"batch,omitempty"`
	Transactional bool        `json:"transaction,omitempty"`
	Operation
}

// Decode reads a JSON request. Numbers are kept as json.Number so that
// integer arguments keep their precision until normalized.
func Decode(r io.Reader) (*Request, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var req Request
	if err := dec.Decode(&req); err != nil {
		return nil, fmt.Errorf("document: decode request: %w", err)
	}
	if len(req.Batch) == 0 {
		if err := req.Operation.Validate(); err != nil {
			return nil, err
		}
		return &req, nil
	}
	for i := range req.Batch {
		if err := req.Batch[i].Validate(); err != nil {
			return nil, fmt.Errorf("document: batch operation %d: %w", i, err)
		}
	}
	return &req, nil
}
