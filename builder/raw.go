package builder

import (
	"encoding/json"
	"strings"

	"github.com/syssam/qengine"
	"github.com/syssam/qengine/document"
	"github.com/syssam/qengine/graph"
	"github.com/syssam/qengine/query"
)

// ExecuteRaw runs a raw statement and returns the affected row count.
func ExecuteRaw(g *graph.QueryGraph, op *document.Operation) error {
	sql, params, err := rawArgs(op)
	if err != nil {
		return err
	}
	return g.AddResultNode(g.CreateQueryNode(&query.ExecuteRaw{SQL: sql, Params: params}))
}

// QueryRaw runs a raw query and returns its rows.
func QueryRaw(g *graph.QueryGraph, op *document.Operation) error {
	sql, params, err := rawArgs(op)
	if err != nil {
		return err
	}
	return g.AddResultNode(g.CreateQueryNode(&query.QueryRaw{SQL: sql, Params: params}))
}

// rawArgs returns the query and its parameters. Parameters are a list, or
// a JSON encoded list.
func rawArgs(op *document.Operation) (string, []any, error) {
	v, _ := op.Arg(document.ArgQuery)
	sql, ok := v.(string)
	if !ok || sql == "" {
		return "", nil, qengine.NewBuilderError(qengine.InputError, "%s requires a query string", op.Action)
	}
	var params []any
	switch v, _ := op.Arg(document.ArgParameters); v := v.(type) {
	case nil:
	case []any:
		params = v
	case string:
		dec := json.NewDecoder(strings.NewReader(v))
		dec.UseNumber()
		if err := dec.Decode(&params); err != nil {
			return "", nil, inputErr(err, "invalid parameters of %s", op.Action)
		}
	default:
		return "", nil, qengine.NewBuilderError(qengine.InputError, "%s parameters must be a list, got %T", op.Action, v)
	}
	for i, p := range params {
		if n, ok := p.(json.Number); ok {
			if iv, err := n.Int64(); err == nil {
				params[i] = iv
			} else if fv, err := n.Float64(); err == nil {
				params[i] = fv
			}
		}
	}
	return sql, params, nil
}
