package builder

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/syssam/qengine"
	"github.com/syssam/qengine/document"
	"github.com/syssam/qengine/filter"
	"github.com/syssam/qengine/query"
	"github.com/syssam/qengine/schema"
	"github.com/syssam/qengine/schema/field"
)

// nestedWrite is one nested operation on a relation of a written record.
type nestedWrite struct {
	field *schema.RelationField
	op    string
	value any
}

// writeInput is the parsed data argument of a create or an update.
type writeInput struct {
	args   *query.WriteArgs
	nested []nestedWrite
}

var writeOps = map[string]query.WriteOp{
	"set":       query.OpSet,
	"increment": query.OpIncrement,
	"decrement": query.OpDecrement,
	"multiply":  query.OpMultiply,
	"divide":    query.OpDivide,
}

// HasNestedOperation reports if data holds a write on a relation of m.
func HasNestedOperation(m *schema.Model, data map[string]any) bool {
	for key := range data {
		if _, ok := m.RelationField(key); ok {
			return true
		}
	}
	return false
}

// extractWriteArgs parses a data map. Scalars are taken in field order and
// relations in relation order.
func extractWriteArgs(m *schema.Model, data map[string]any) (writeInput, error) {
	in := writeInput{args: query.NewWriteArgs()}
	seen := 0
	for _, f := range m.Fields {
		v, ok := data[f.Name]
		if !ok {
			continue
		}
		seen++
		op, err := writeOperation(f, v)
		if err != nil {
			return in, err
		}
		in.args.Insert(f, op)
	}
	for _, rf := range m.Relations() {
		v, ok := data[rf.Name]
		if !ok {
			continue
		}
		seen++
		ops, ok := v.(map[string]any)
		if !ok {
			return in, qengine.NewBuilderError(qengine.InputError, "relation %s expects nested operations, got %T", rf, v)
		}
		for key := range ops {
			if !isNestedOp(key) {
				return in, qengine.NewBuilderError(qengine.InputError, "unknown nested operation %q on %s", key, rf)
			}
		}
		for _, op := range document.NestedOrder {
			if nv, ok := ops[op]; ok {
				in.nested = append(in.nested, nestedWrite{field: rf, op: op, value: nv})
			}
		}
	}
	if seen != len(data) {
		for _, key := range sortedKeys(data) {
			if _, ok := m.Field(key); ok {
				continue
			}
			if _, ok := m.RelationField(key); ok {
				continue
			}
			return in, qengine.NewBuilderError(qengine.InputError, "unknown field %q in data of %s", key, m.Name)
		}
	}
	return in, nil
}

func isNestedOp(key string) bool {
	for _, op := range document.NestedOrder {
		if op == key {
			return true
		}
	}
	return false
}

func writeOperation(f *schema.Field, v any) (query.WriteOperation, error) {
	if ops, ok := v.(map[string]any); ok && len(ops) == 1 {
		for name, ov := range ops {
			op, known := writeOps[name]
			switch {
			case !known && f.Type == field.TypeJSON:
			case !known:
				return query.WriteOperation{}, qengine.NewBuilderError(qengine.InputError, "unknown write operation %q on %s", name, f)
			case op != query.OpSet && !f.Type.Numeric():
				return query.WriteOperation{}, qengine.NewBuilderError(qengine.InputError, "%s requires a numeric field, %s is %s", name, f, f.Type)
			case op != query.OpSet && ov == nil:
				return query.WriteOperation{}, qengine.NewBuilderError(qengine.InputError, "%s on %s requires a value", name, f)
			default:
				nv, err := writeValue(f, ov)
				if err != nil {
					return query.WriteOperation{}, err
				}
				return query.WriteOperation{Op: op, Value: nv}, nil
			}
		}
	}
	nv, err := writeValue(f, v)
	if err != nil {
		return query.WriteOperation{}, err
	}
	return query.Set(nv), nil
}

func writeValue(f *schema.Field, v any) (any, error) {
	if v == nil {
		if !f.Optional {
			return nil, qengine.NewBuilderError(qengine.InputError, "field %s is required and can not be set to null", f)
		}
		return nil, nil
	}
	nv, err := f.Type.Normalize(v)
	if err != nil {
		return nil, inputErr(err, "invalid value for %s", f)
	}
	return nv, nil
}

// extractQueryArgs parses the read arguments of a model.
func extractQueryArgs(m *schema.Model, args map[string]any) (query.QueryArguments, error) {
	where, err := document.MapArg(args, document.ArgWhere)
	if err != nil {
		return query.QueryArguments{}, inputErr(err, "invalid where argument")
	}
	f, err := filter.Extract(m, where)
	if err != nil {
		return query.QueryArguments{}, err
	}
	qa := query.NewQueryArguments(f)
	if _, ok := args[document.ArgCursor]; ok {
		return qa, qengine.NewBuilderError(qengine.InputError, "cursor pagination is not supported")
	}
	if v, ok := args[document.ArgTake]; ok && v != nil {
		n, err := intArg(document.ArgTake, v)
		if err != nil {
			return qa, err
		}
		qa.Take = &n
	}
	if v, ok := args[document.ArgSkip]; ok && v != nil {
		n, err := intArg(document.ArgSkip, v)
		if err != nil {
			return qa, err
		}
		if n < 0 {
			return qa, qengine.NewBuilderError(qengine.InputError, "skip must not be negative, got %d", n)
		}
		qa.Skip = n
	}
	if v, ok := args[document.ArgOrderBy]; ok && v != nil {
		if qa.OrderBy, err = orderBy(m, v); err != nil {
			return qa, err
		}
	}
	if v, ok := args[document.ArgDistinct]; ok && v != nil {
		if qa.Distinct, err = fieldList(m, document.ArgDistinct, v); err != nil {
			return qa, err
		}
	}
	return qa, nil
}

func orderBy(m *schema.Model, v any) ([]query.OrderBy, error) {
	var items []any
	switch v := v.(type) {
	case []any:
		items = v
	default:
		items = []any{v}
	}
	var out []query.OrderBy
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, qengine.NewBuilderError(qengine.InputError, "orderBy expects objects, got %T", item)
		}
		for _, name := range sortedKeys(obj) {
			f, ok := m.Field(name)
			if !ok {
				return nil, qengine.NewBuilderError(qengine.InputError, "unknown field %q in orderBy of %s", name, m.Name)
			}
			switch obj[name] {
			case "asc":
				out = append(out, query.OrderBy{Field: f})
			case "desc":
				out = append(out, query.OrderBy{Field: f, Desc: true})
			default:
				return nil, qengine.NewBuilderError(qengine.InputError, "orderBy of %s expects asc or desc, got %v", f, obj[name])
			}
		}
	}
	return out, nil
}

func fieldList(m *schema.Model, arg string, v any) (query.FieldSelection, error) {
	var names []any
	switch v := v.(type) {
	case []any:
		names = v
	case string:
		names = []any{v}
	default:
		return nil, qengine.NewBuilderError(qengine.InputError, "%s expects field names, got %T", arg, v)
	}
	var sel query.FieldSelection
	for _, n := range names {
		name, ok := n.(string)
		if !ok {
			return nil, qengine.NewBuilderError(qengine.InputError, "%s expects field names, got %T", arg, n)
		}
		f, ok := m.Field(name)
		if !ok {
			return nil, qengine.NewBuilderError(qengine.InputError, "unknown field %q in %s of %s", name, arg, m.Name)
		}
		sel = sel.Merge(query.Select(f))
	}
	return sel, nil
}

func intArg(name string, v any) (int, error) {
	switch v := v.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v == math.Trunc(v) {
			return int(v), nil
		}
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n), nil
		}
	}
	return 0, qengine.NewBuilderError(qengine.InputError, "%s expects an integer, got %v", name, v)
}

// objects returns a nested operation value as a list of objects. Single
// objects are accepted for every relation, lists only for to-many ones.
func objects(rf *schema.RelationField, op string, v any) ([]map[string]any, error) {
	switch v := v.(type) {
	case map[string]any:
		return []map[string]any{v}, nil
	case []any:
		if !rf.List {
			return nil, qengine.NewBuilderError(qengine.InputError, "%s on to-one relation %s expects a single object", op, rf)
		}
		out := make([]map[string]any, len(v))
		for i, e := range v {
			obj, ok := e.(map[string]any)
			if !ok {
				return nil, qengine.NewBuilderError(qengine.InputError, "%s on %s expects objects, got %T", op, rf, e)
			}
			out[i] = obj
		}
		return out, nil
	}
	return nil, qengine.NewBuilderError(qengine.InputError, "%s on %s expects an object, got %T", op, rf, v)
}

// uniqueFilters returns the filter of every where object, each required to
// designate a unique record.
func uniqueFilters(m *schema.Model, wheres []map[string]any) (query.Filter, error) {
	or := make(query.Or, 0, len(wheres))
	for _, w := range wheres {
		f, err := filter.ExtractUnique(m, w)
		if err != nil {
			return nil, err
		}
		or = append(or, f)
	}
	if len(or) == 1 {
		return or[0], nil
	}
	return or, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func describe(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
