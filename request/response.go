package request

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/syssam/qengine"
	"github.com/syssam/qengine/privacy"
	"github.com/syssam/qengine/query"
)

// Response is the response of a single operation. Data is keyed by the
// operation name, e.g. "findManyUser".
type Response struct {
	Data   map[string]any `json:"data,omitempty"`
	Errors []Error        `json:"errors,omitempty"`
}

// Err returns the first error of the response, or nil.
func (r *Response) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	return r.Errors[0]
}

// BatchResponse is the response of a batch. A batch failing as a whole, e.g.
// a rolled back transactional batch, only carries Errors.
type BatchResponse struct {
	Batch  []*Response `json:"batchResult,omitempty"`
	Errors []Error     `json:"errors,omitempty"`
}

// ErrorKind classifies the errors returned to clients.
type ErrorKind string

// Error kinds.
const (
	KindRecordNotFound       ErrorKind = "RecordNotFound"
	KindIncompleteConnect    ErrorKind = "IncompleteConnect"
	KindRelationViolation    ErrorKind = "RelationViolation"
	KindRecordsNotConnected  ErrorKind = "RecordsNotConnected"
	KindUniqueConstraint     ErrorKind = "UniqueConstraint"
	KindForeignKeyConstraint ErrorKind = "ForeignKeyConstraint"
	KindCheckConstraint      ErrorKind = "CheckConstraint"
	KindInvalidInput         ErrorKind = "InvalidInput"
	KindAccessDenied         ErrorKind = "AccessDenied"
	KindInternal             ErrorKind = "Internal"
	KindUnknown              ErrorKind = "Unknown"
)

// Error is an error returned to clients.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	err     error
}

// Error implements the error interface.
func (e Error) Error() string { return e.Message }

// Unwrap returns the underlying error.
func (e Error) Unwrap() error { return e.err }

// errorOf classifies err.
func errorOf(err error) Error {
	e := Error{Message: err.Error(), err: err, Kind: KindUnknown}
	var (
		notConnected *qengine.RecordsNotConnectedError
		notFound     *qengine.RecordNotFoundError
		incomplete   *qengine.IncompleteConnectInputError
		violation    *qengine.RelationViolationError
		constraint   qengine.ConstraintError
		builder      *qengine.BuilderError
		internal     *qengine.InternalError
	)
	switch {
	case errors.As(err, &internal):
		e.Kind = KindInternal
	case privacy.IsDenied(err):
		e.Kind = KindAccessDenied
	case errors.As(err, &notConnected):
		e.Kind = KindRecordsNotConnected
	case errors.As(err, &notFound), errors.Is(err, qengine.ErrRecordNotFound):
		e.Kind = KindRecordNotFound
	case errors.As(err, &incomplete):
		e.Kind = KindIncompleteConnect
	case errors.As(err, &violation):
		e.Kind = KindRelationViolation
	case errors.As(err, &constraint):
		switch constraint.Kind {
		case qengine.UniqueConstraint:
			e.Kind = KindUniqueConstraint
		case qengine.ForeignKeyConstraint:
			e.Kind = KindForeignKeyConstraint
		default:
			e.Kind = KindCheckConstraint
		}
	case errors.As(err, &builder):
		e.Kind = KindInvalidInput
	}
	return e
}

// Object is a JSON object keeping its keys in insertion order.
type Object struct {
	Keys   []string
	Values []any
}

// Set appends a key.
func (o *Object) Set(key string, value any) {
	o.Keys = append(o.Keys, key)
	o.Values = append(o.Values, value)
}

// Get returns the value of key.
func (o *Object) Get(key string) (any, bool) {
	for i, k := range o.Keys {
		if k == key {
			return o.Values[i], true
		}
	}
	return nil, false
}

// MarshalJSON implements json.Marshaler.
func (o *Object) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range o.Keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		value, err := json.Marshal(o.Values[i])
		if err != nil {
			return nil, fmt.Errorf("request: marshal %q: %w", k, err)
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// serialize turns the result of an operation into its client shape.
func serialize(res query.Result) (any, error) {
	switch res := res.(type) {
	case *query.RecordSelection:
		return selection(res)
	case *query.IDResult:
		if res.ID == nil {
			return nil, nil
		}
		obj := &Object{}
		for _, p := range res.ID {
			obj.Set(p.Field.Name, p.Value)
		}
		return obj, nil
	case *query.CountResult:
		return &Object{Keys: []string{"count"}, Values: []any{res.Count}}, nil
	case *query.AggregationResult:
		return aggregation(res), nil
	case *query.RawResult:
		rows := make([]*Object, len(res.Rows))
		for i, row := range res.Rows {
			rows[i] = &Object{Keys: res.Columns, Values: row}
		}
		return rows, nil
	case *query.UnitResult, nil:
		return nil, nil
	}
	return nil, fmt.Errorf("request: unexpected result %T", res)
}

// selection serializes records. Unique selections yield an object or nil,
// others a list.
func selection(rs *query.RecordSelection) (any, error) {
	objs, err := objects(rs)
	if err != nil {
		return nil, err
	}
	if rs.Unique {
		if len(objs) == 0 {
			return nil, nil
		}
		return objs[0], nil
	}
	return objs, nil
}

// objects returns one object per record, with the keys of the selection
// order. Nested records are matched to their parent by the relation linking
// values.
func objects(rs *query.RecordSelection) ([]*Object, error) {
	fields := make(map[string]int, len(rs.Records.Fields))
	for i, f := range rs.Records.Fields {
		fields[f.Name] = i
	}
	type nested struct {
		list    bool
		keys    []query.SelectionResult
		records map[string][]*Object
	}
	children := make(map[string]*nested, len(rs.Nested))
	for _, child := range rs.Nested {
		rf, ok := rs.Model.RelationField(child.Name)
		if !ok {
			return nil, fmt.Errorf("request: unknown relation %s.%s", rs.Model.Name, child.Name)
		}
		objs, err := objects(child)
		if err != nil {
			return nil, err
		}
		if len(child.ParentKeys) != len(objs) {
			return nil, fmt.Errorf("request: relation %s: %d parent keys for %d records", rf, len(child.ParentKeys), len(objs))
		}
		keys, err := rs.Records.Project(rf.LinkingFields())
		if err != nil {
			return nil, fmt.Errorf("request: relation %s: %w", rf, err)
		}
		n := &nested{list: rf.List, keys: keys, records: make(map[string][]*Object)}
		for i, obj := range objs {
			k := child.ParentKeys[i].Key()
			n.records[k] = append(n.records[k], obj)
		}
		children[child.Name] = n
	}
	out := make([]*Object, len(rs.Records.Rows))
	for r, row := range rs.Records.Rows {
		obj := &Object{Keys: make([]string, 0, len(rs.Order)), Values: make([]any, 0, len(rs.Order))}
		for _, name := range rs.Order {
			if i, ok := fields[name]; ok {
				obj.Set(name, row[i])
				continue
			}
			n, ok := children[name]
			if !ok {
				return nil, fmt.Errorf("request: field %s.%s is not part of the records", rs.Model.Name, name)
			}
			related := n.records[n.keys[r].Key()]
			switch {
			case n.list && related == nil:
				obj.Set(name, []*Object{})
			case n.list:
				obj.Set(name, related)
			case len(related) == 0:
				obj.Set(name, nil)
			default:
				obj.Set(name, related[0])
			}
		}
		out[r] = obj
	}
	return out, nil
}

// aggregation groups the values by aggregation function, e.g.
// {"_count": {"_all": 3}, "_max": {"age": 42}}.
func aggregation(res *query.AggregationResult) *Object {
	out := &Object{}
	for _, v := range res.Values {
		kind := v.Selection.Kind.String()
		group, ok := out.Get(kind)
		if !ok {
			group = &Object{}
			out.Set(kind, group)
		}
		group.(*Object).Set(v.Selection.Name(), v.Value)
	}
	return out
}
